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

// Package decode classifies the instruction at a traced thread's stop
// address: its byte length, whether it is a timestamp read, and for
// MOV-family memory transfers, the access direction and operands.
//
// This is deliberately not a general emulator. Only the instructions the
// recorder traps (RDTSC, MOV to or from an access-controlled region) are
// understood; everything else reports ErrUnsupported.
package decode

import (
	"errors"

	"golang.org/x/arch/x86/x86asm"

	"retrace.dev/retrace/pkg/hostarch"
)

// MaxInstructionLen is the architectural upper bound on x86 instruction
// length, and thus the number of code bytes needed to decode any single
// instruction.
const MaxInstructionLen = 15

// ErrUnsupported is returned when an instruction is outside the small set
// the recorder knows how to emulate.
var ErrUnsupported = errors.New("unsupported instruction")

// Inst is a decoded instruction.
type Inst struct {
	x86asm.Inst
}

// Decode decodes the first instruction in code, in 64-bit mode.
func Decode(code []byte) (Inst, error) {
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return Inst{}, err
	}
	return Inst{inst}, nil
}

// IsRDTSC returns true if the instruction is a timestamp-counter read.
func (i Inst) IsRDTSC() bool {
	return i.Op == x86asm.RDTSC
}

// MemAccess describes a single MOV-family memory transfer.
type MemAccess struct {
	// Access is the direction of the transfer with respect to memory:
	// Read for a load (memory to register), Write for a store.
	Access hostarch.AccessType

	// Width is the transfer size in bytes.
	Width int

	// Reg is the register operand. Unset for an immediate store.
	Reg x86asm.Reg

	// Imm is the immediate source of a store, valid iff HasImm.
	Imm    int64
	HasImm bool
}

// MemAccess classifies the instruction as a memory load or store. It
// returns ErrUnsupported for anything but a MOV between memory and a
// general-purpose register or immediate.
func (i Inst) MemAccess() (MemAccess, error) {
	if i.Op != x86asm.MOV || i.MemBytes == 0 {
		return MemAccess{}, ErrUnsupported
	}
	dst, src := i.Args[0], i.Args[1]
	if _, ok := dst.(x86asm.Mem); ok {
		switch v := src.(type) {
		case x86asm.Reg:
			return MemAccess{Access: hostarch.Write, Width: i.MemBytes, Reg: v}, nil
		case x86asm.Imm:
			return MemAccess{Access: hostarch.Write, Width: i.MemBytes, Imm: int64(v), HasImm: true}, nil
		}
		return MemAccess{}, ErrUnsupported
	}
	if _, ok := src.(x86asm.Mem); ok {
		r, ok := dst.(x86asm.Reg)
		if !ok {
			return MemAccess{}, ErrUnsupported
		}
		return MemAccess{Access: hostarch.Read, Width: i.MemBytes, Reg: r}, nil
	}
	return MemAccess{}, ErrUnsupported
}
