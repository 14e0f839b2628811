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

// Package ptracer provides low-level control of a traced thread: register
// access, signal info, single-stepping with signal injection, waiting for
// stops, and memory access through the ptrace window.
//
// All operations on a thread must be issued from the OS thread that traces
// it, strictly ordered: each resume must be matched by a wait before the
// next control operation.
package ptracer

import (
	"golang.org/x/sys/unix"

	"retrace.dev/retrace/pkg/abi/linux"
	"retrace.dev/retrace/pkg/arch"
	"retrace.dev/retrace/pkg/hostarch"
)

// Thread is a single traced thread.
type Thread struct {
	tid int

	// Status is the last observed wait status.
	Status unix.WaitStatus
}

// New returns a Thread for an already-traced tid.
func New(tid int) *Thread {
	return &Thread{tid: tid}
}

// Tid returns the thread id.
func (t *Thread) Tid() int {
	return t.tid
}

// SetOptions sets ptrace options on the thread.
func (t *Thread) SetOptions(options int) error {
	return unix.PtraceSetOptions(t.tid, options)
}

// GetRegs reads the thread's general-purpose registers.
func (t *Thread) GetRegs(regs *arch.Registers) error {
	return unix.PtraceGetRegs(t.tid, &regs.PtraceRegs)
}

// SetRegs writes the thread's general-purpose registers.
func (t *Thread) SetRegs(regs *arch.Registers) error {
	return unix.PtraceSetRegs(t.tid, &regs.PtraceRegs)
}

// resume restarts the stopped thread with the given ptrace request,
// injecting sig if nonzero.
func (t *Thread) resume(req int, sig linux.Signal) error {
	_, _, errno := unix.Syscall6(
		unix.SYS_PTRACE,
		uintptr(req),
		uintptr(t.tid),
		0,
		uintptr(sig),
		0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// SingleStep executes one instruction, delivering sig first if nonzero.
// The thread must be in a ptrace-stop; the caller must Wait for the
// resulting stop before issuing further control operations.
func (t *Thread) SingleStep(sig linux.Signal) error {
	return t.resume(unix.PTRACE_SINGLESTEP, sig)
}

// Cont resumes execution, delivering sig first if nonzero.
func (t *Thread) Cont(sig linux.Signal) error {
	return t.resume(unix.PTRACE_CONT, sig)
}

// Wait blocks until the thread changes state and refreshes Status.
func (t *Thread) Wait() error {
	for {
		if _, err := unix.Wait4(t.tid, &t.Status, unix.WALL, nil); err != unix.EINTR {
			return err
		}
	}
}

// Exited returns true if the thread has exited or was killed by a signal.
func (t *Thread) Exited() bool {
	return t.Status.Exited() || t.Status.Signaled()
}

// StopSignal returns the signal that stopped the thread, or 0 if the thread
// is not in a signal-delivery stop.
func (t *Thread) StopSignal() linux.Signal {
	if !t.Status.Stopped() {
		return 0
	}
	return linux.Signal(t.Status.StopSignal())
}

// ReadMem reads len(b) bytes of the thread's memory at addr. The ptrace
// access path is privileged: it succeeds even where the thread's own page
// protections would fault, which the fault emulators depend on.
func (t *Thread) ReadMem(addr hostarch.Addr, b []byte) error {
	n, err := unix.PtracePeekData(t.tid, uintptr(addr), b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return unix.EIO
	}
	return nil
}

// WriteMem writes b to the thread's memory at addr, bypassing page
// protections like ReadMem.
func (t *Thread) WriteMem(addr hostarch.Addr, b []byte) error {
	n, err := unix.PtracePokeData(t.tid, uintptr(addr), b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return unix.EIO
	}
	return nil
}
