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

//go:build amd64 && linux
// +build amd64,linux

package arch

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
	"golang.org/x/sys/unix"
)

// TrapFlag is the x86 trap flag (EFLAGS.TF); set while single-stepping.
const TrapFlag uint64 = 1 << 8

// Registers is the general-purpose register snapshot of a traced thread.
type Registers struct {
	unix.PtraceRegs
}

// IP returns the instruction pointer.
func (r *Registers) IP() uint64 {
	return r.Rip
}

// SetIP sets the instruction pointer.
func (r *Registers) SetIP(v uint64) {
	r.Rip = v
}

// SP returns the stack pointer.
func (r *Registers) SP() uint64 {
	return r.Rsp
}

// SetSP sets the stack pointer.
func (r *Registers) SetSP(v uint64) {
	r.Rsp = v
}

// SingleStepping returns true if the trap flag is set.
func (r *Registers) SingleStepping() bool {
	return r.Eflags&TrapFlag != 0
}

// SetTSC writes a 64-bit counter value into the registers the RDTSC
// instruction targets: the low half to RAX, the high half to RDX.
func (r *Registers) SetTSC(v uint64) {
	r.Rax = v & 0xffffffff
	r.Rdx = v >> 32
}

// field returns the 64-bit register backing the given operand register, or
// nil if the register has no supported backing field (segment registers,
// high-byte registers such as AH).
func (r *Registers) field(reg x86asm.Reg) *uint64 {
	switch reg {
	case x86asm.AL, x86asm.AX, x86asm.EAX, x86asm.RAX:
		return &r.Rax
	case x86asm.CL, x86asm.CX, x86asm.ECX, x86asm.RCX:
		return &r.Rcx
	case x86asm.DL, x86asm.DX, x86asm.EDX, x86asm.RDX:
		return &r.Rdx
	case x86asm.BL, x86asm.BX, x86asm.EBX, x86asm.RBX:
		return &r.Rbx
	case x86asm.SPB, x86asm.SP, x86asm.ESP, x86asm.RSP:
		return &r.Rsp
	case x86asm.BPB, x86asm.BP, x86asm.EBP, x86asm.RBP:
		return &r.Rbp
	case x86asm.SIB, x86asm.SI, x86asm.ESI, x86asm.RSI:
		return &r.Rsi
	case x86asm.DIB, x86asm.DI, x86asm.EDI, x86asm.RDI:
		return &r.Rdi
	case x86asm.R8B, x86asm.R8W, x86asm.R8L, x86asm.R8:
		return &r.R8
	case x86asm.R9B, x86asm.R9W, x86asm.R9L, x86asm.R9:
		return &r.R9
	case x86asm.R10B, x86asm.R10W, x86asm.R10L, x86asm.R10:
		return &r.R10
	case x86asm.R11B, x86asm.R11W, x86asm.R11L, x86asm.R11:
		return &r.R11
	case x86asm.R12B, x86asm.R12W, x86asm.R12L, x86asm.R12:
		return &r.R12
	case x86asm.R13B, x86asm.R13W, x86asm.R13L, x86asm.R13:
		return &r.R13
	case x86asm.R14B, x86asm.R14W, x86asm.R14L, x86asm.R14:
		return &r.R14
	case x86asm.R15B, x86asm.R15W, x86asm.R15L, x86asm.R15:
		return &r.R15
	}
	return nil
}

// RegWidth returns the operand width in bytes of reg, or 0 if reg is not a
// general-purpose register.
func RegWidth(reg x86asm.Reg) int {
	switch {
	case reg >= x86asm.AL && reg <= x86asm.R15B:
		return 1
	case reg >= x86asm.AX && reg <= x86asm.R15W:
		return 2
	case reg >= x86asm.EAX && reg <= x86asm.R15L:
		return 4
	case reg >= x86asm.RAX && reg <= x86asm.R15:
		return 8
	}
	return 0
}

// Value returns the current value of the given operand register, truncated
// to its operand width.
func (r *Registers) Value(reg x86asm.Reg) (uint64, error) {
	f := r.field(reg)
	if f == nil {
		return 0, fmt.Errorf("unsupported register %v", reg)
	}
	switch RegWidth(reg) {
	case 1:
		return *f & 0xff, nil
	case 2:
		return *f & 0xffff, nil
	case 4:
		return *f & 0xffffffff, nil
	default:
		return *f, nil
	}
}

// SetValue writes v into the given operand register with the architectural
// merge semantics: 8- and 16-bit writes preserve the upper bits of the
// backing register, 32-bit writes zero-extend.
func (r *Registers) SetValue(reg x86asm.Reg, v uint64) error {
	f := r.field(reg)
	if f == nil {
		return fmt.Errorf("unsupported register %v", reg)
	}
	switch RegWidth(reg) {
	case 1:
		*f = (*f &^ 0xff) | (v & 0xff)
	case 2:
		*f = (*f &^ 0xffff) | (v & 0xffff)
	case 4:
		*f = v & 0xffffffff
	default:
		*f = v
	}
	return nil
}
