// Copyright 2024 The Retrace Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build linux
// +build linux

// Package hpc counts retired instructions of a traced thread with a
// hardware performance counter, and can arrange for counter overflow to
// interrupt the thread with a designated signal. The recorder uses this to
// drive fixed-length execution intervals for deterministic scheduling.
package hpc

import (
	"golang.org/x/sys/unix"

	"retrace.dev/retrace/pkg/abi/linux"
	"retrace.dev/retrace/pkg/hostarch"
)

// Counters is the per-thread hardware counter state.
type Counters struct {
	fd  int
	tid int
}

// Open creates a retired-instruction counter for tid, counting user-space
// instructions only. The counter starts disabled; call Reset to begin an
// interval.
func Open(tid int) (*Counters, error) {
	attr := unix.PerfEventAttr{
		Type:   unix.PERF_TYPE_HARDWARE,
		Size:   unix.PERF_ATTR_SIZE_VER1,
		Config: unix.PERF_COUNT_HW_INSTRUCTIONS,
		Bits:   unix.PerfBitDisabled | unix.PerfBitExcludeKernel | unix.PerfBitExcludeHv,
		Wakeup: 1,
	}
	fd, err := unix.PerfEventOpen(&attr, tid, -1, -1, unix.PERF_FLAG_FD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &Counters{fd: fd, tid: tid}, nil
}

// RouteOverflow arranges for counter overflow to deliver sig to the traced
// thread itself, so an exceeded interval shows up as a signal stop.
func (c *Counters) RouteOverflow(sig linux.Signal) error {
	if _, err := unix.FcntlInt(uintptr(c.fd), unix.F_SETFL, unix.O_ASYNC); err != nil {
		return err
	}
	if _, err := unix.FcntlInt(uintptr(c.fd), unix.F_SETSIG, int(sig)); err != nil {
		return err
	}
	return c.setOwner()
}

// Reset clears the counter, programs the overflow period and re-enables
// counting.
func (c *Counters) Reset(period uint64) error {
	if err := unix.IoctlSetInt(c.fd, unix.PERF_EVENT_IOC_RESET, 0); err != nil {
		return err
	}
	if err := c.setPeriod(period); err != nil {
		return err
	}
	return unix.IoctlSetInt(c.fd, unix.PERF_EVENT_IOC_ENABLE, 0)
}

// Read returns the number of instructions retired since the last Reset.
func (c *Counters) Read() (uint64, error) {
	var buf [8]byte
	n, err := unix.Read(c.fd, buf[:])
	if err != nil {
		return 0, err
	}
	if n != len(buf) {
		return 0, unix.EIO
	}
	return hostarch.ByteOrder.Uint64(buf[:]), nil
}

// Close releases the counter.
func (c *Counters) Close() error {
	return unix.Close(c.fd)
}
