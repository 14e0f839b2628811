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
	"testing"
	"unsafe"
)

// SignalInfo must match the size of the kernel buffer filled by
// PTRACE_GETSIGINFO exactly.
func TestSignalInfoSize(t *testing.T) {
	if got := unsafe.Sizeof(SignalInfo{}); got != SignalInfoSize {
		t.Errorf("sizeof(SignalInfo): got %d, wanted %d", got, SignalInfoSize)
	}
}

func TestSignalInfoAddr(t *testing.T) {
	si := SignalInfo{Signo: int32(SIGSEGV), Code: SEGV_ACCERR}
	si.SetAddr(0x7f001234)
	if got := si.Addr(); got != 0x7f001234 {
		t.Errorf("Addr: got %#x, wanted 0x7f001234", got)
	}
	if got := si.Sig(); got != SIGSEGV {
		t.Errorf("Sig: got %v, wanted %v", got, SIGSEGV)
	}
}
