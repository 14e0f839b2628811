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

package hpc

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// setPeriod programs the counter's overflow period.
func (c *Counters) setPeriod(period uint64) error {
	_, _, errno := unix.Syscall(
		unix.SYS_IOCTL,
		uintptr(c.fd),
		uintptr(unix.PERF_EVENT_IOC_PERIOD),
		uintptr(unsafe.Pointer(&period)))
	if errno != 0 {
		return errno
	}
	return nil
}

// fOwnerEx mirrors the kernel's struct f_owner_ex, which
// golang.org/x/sys/unix does not define.
type fOwnerEx struct {
	Type int32
	Pid  int32
}

// fOwnerTID is the kernel's F_OWNER_TID, likewise absent from
// golang.org/x/sys/unix.
const fOwnerTID = 0

// setOwner directs fd ownership (and thus overflow signals) to the traced
// thread rather than to a whole process.
func (c *Counters) setOwner() error {
	owner := fOwnerEx{
		Type: fOwnerTID,
		Pid:  int32(c.tid),
	}
	_, _, errno := unix.Syscall(
		unix.SYS_FCNTL,
		uintptr(c.fd),
		unix.F_SETOWN_EX,
		uintptr(unsafe.Pointer(&owner)))
	if errno != 0 {
		return errno
	}
	return nil
}
