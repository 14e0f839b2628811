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

package linux

import (
	"retrace.dev/retrace/pkg/hostarch"
)

// SignalInfoSize is the size of the kernel siginfo_t buffer filled by
// PTRACE_GETSIGINFO.
const SignalInfoSize = 128

// SignalInfo represents information about a signal being delivered, and is
// equivalent to struct siginfo in the Linux kernel
// (linux/include/uapi/asm-generic/siginfo.h).
type SignalInfo struct {
	Signo int32 // Signal number
	Errno int32 // Errno value
	Code  int32 // Signal code
	_     uint32

	// struct siginfo::_sifields is a union; fields in the union are
	// accessed through methods. For fault signals (SIGSEGV, SIGBUS, SIGILL,
	// SIGFPE), the first word is the faulting address.
	Fields [SignalInfoSize - 16]byte
}

// Sig returns the signal number carried by the siginfo.
func (s *SignalInfo) Sig() Signal {
	return Signal(s.Signo)
}

// Addr returns the faulting address stored in the siginfo. Only meaningful
// for fault-class signals.
func (s *SignalInfo) Addr() uint64 {
	return hostarch.ByteOrder.Uint64(s.Fields[0:8])
}

// SetAddr sets the faulting address.
func (s *SignalInfo) SetAddr(v uint64) {
	hostarch.ByteOrder.PutUint64(s.Fields[0:8], v)
}

// Possible values for SignalInfo.Code. These values originate from the Linux
// kernel's include/uapi/asm-generic/siginfo.h. Strictly positive values are
// reserved for kernel-generated signals; zero and negative values indicate a
// signal raised by a user process.
const (
	// SI_USER indicates that a signal was sent from kill() or raise().
	SI_USER = 0

	// SI_KERNEL indicates that the signal was sent by the kernel.
	SI_KERNEL = 0x80

	// SI_QUEUE indicates that the signal was sent by sigqueue.
	SI_QUEUE = -1

	// SI_TIMER indicates that the signal was sent by timer expiration.
	SI_TIMER = -2

	// SI_MESGQ indicates that the signal was sent by real time mesq state
	// change.
	SI_MESGQ = -3

	// SI_ASYNCIO indicates that the signal was sent by AIO completion.
	SI_ASYNCIO = -4

	// SI_SIGIO indicates that the signal was sent by queued SIGIO.
	SI_SIGIO = -5

	// SI_TKILL indicates that the signal was sent from tkill() or tgkill().
	SI_TKILL = -6
)

// Fault si_codes for SIGSEGV.
const (
	// SEGV_MAPERR means the address is not mapped to an object.
	SEGV_MAPERR = 1

	// SEGV_ACCERR means invalid permissions for a mapped object.
	SEGV_ACCERR = 2
)

// Trap si_codes for SIGTRAP.
const (
	// TRAP_BRKPT means a process breakpoint.
	TRAP_BRKPT = 1

	// TRAP_TRACE means a process trace trap.
	TRAP_TRACE = 2
)
