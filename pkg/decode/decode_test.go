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

package decode

import (
	"errors"
	"testing"

	"golang.org/x/arch/x86/x86asm"

	"retrace.dev/retrace/pkg/hostarch"
)

func TestDecodeRDTSC(t *testing.T) {
	inst, err := Decode([]byte{0x0f, 0x31})
	if err != nil {
		t.Fatalf("Decode(rdtsc): %v", err)
	}
	if !inst.IsRDTSC() {
		t.Errorf("IsRDTSC: got false, wanted true")
	}
	if inst.Len != 2 {
		t.Errorf("Len: got %d, wanted 2", inst.Len)
	}
	if _, err := inst.MemAccess(); !errors.Is(err, ErrUnsupported) {
		t.Errorf("MemAccess(rdtsc): got %v, wanted ErrUnsupported", err)
	}
}

func TestMemAccess(t *testing.T) {
	for _, test := range []struct {
		name string
		code []byte
		want MemAccess
		len  int
	}{
		{
			name: "load64",
			code: []byte{0x48, 0x8b, 0x03}, // mov rax, [rbx]
			want: MemAccess{Access: hostarch.Read, Width: 8, Reg: x86asm.RAX},
			len:  3,
		},
		{
			name: "store32",
			code: []byte{0x89, 0x03}, // mov [rbx], eax
			want: MemAccess{Access: hostarch.Write, Width: 4, Reg: x86asm.EAX},
			len:  2,
		},
		{
			name: "store8",
			code: []byte{0x88, 0x0b}, // mov [rbx], cl
			want: MemAccess{Access: hostarch.Write, Width: 1, Reg: x86asm.CL},
			len:  2,
		},
		{
			name: "load16",
			code: []byte{0x66, 0x8b, 0x33}, // mov si, [rbx]
			want: MemAccess{Access: hostarch.Read, Width: 2, Reg: x86asm.SI},
			len:  3,
		},
		{
			name: "store-imm8",
			code: []byte{0xc6, 0x03, 0x2a}, // mov byte [rbx], 42
			want: MemAccess{Access: hostarch.Write, Width: 1, Imm: 42, HasImm: true},
			len:  3,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			inst, err := Decode(test.code)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if inst.Len != test.len {
				t.Errorf("Len: got %d, wanted %d", inst.Len, test.len)
			}
			got, err := inst.MemAccess()
			if err != nil {
				t.Fatalf("MemAccess: %v", err)
			}
			if got != test.want {
				t.Errorf("MemAccess: got %+v, wanted %+v", got, test.want)
			}
		})
	}
}

func TestMemAccessUnsupported(t *testing.T) {
	for _, test := range []struct {
		name string
		code []byte
	}{
		{"reg-to-reg", []byte{0x48, 0x89, 0xd8}}, // mov rax, rbx
		{"add", []byte{0x03, 0x03}},              // add eax, [rbx]
		{"push", []byte{0xff, 0x33}},             // push [rbx]
	} {
		t.Run(test.name, func(t *testing.T) {
			inst, err := Decode(test.code)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if _, err := inst.MemAccess(); !errors.Is(err, ErrUnsupported) {
				t.Errorf("MemAccess: got %v, wanted ErrUnsupported", err)
			}
		})
	}
}

func TestDecodeInvalid(t *testing.T) {
	// 0x06 (push es) is not a valid instruction in 64-bit mode.
	if _, err := Decode([]byte{0x06}); err == nil {
		t.Errorf("Decode(invalid): got nil error, wanted failure")
	}
}
