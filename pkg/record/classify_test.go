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

package record

import (
	"testing"

	"retrace.dev/retrace/pkg/abi/linux"
)

func TestDeterministicSignal(t *testing.T) {
	for _, tc := range []struct {
		name string
		sig  linux.Signal
		code int32
		want bool
	}{
		{"segv-maperr", linux.SIGSEGV, linux.SEGV_MAPERR, true},
		{"segv-accerr", linux.SIGSEGV, linux.SEGV_ACCERR, true},
		{"segv-kill", linux.SIGSEGV, linux.SI_USER, false},
		{"segv-tkill", linux.SIGSEGV, linux.SI_TKILL, false},
		{"fpe-kernel", linux.SIGFPE, 1, true},
		{"ill-kernel", linux.SIGILL, 1, true},
		{"bus-kernel", linux.SIGBUS, 1, true},
		{"trap-brkpt", linux.SIGTRAP, linux.TRAP_BRKPT, true},
		{"stkflt-kernel", linux.SIGSTKFLT, 1, true},
		{"int-kernel", linux.SIGINT, 1, false},
		{"usr1-user", linux.SIGUSR1, linux.SI_USER, false},
		{"io-kernel", linux.SIGIO, 1, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			si := linux.SignalInfo{Signo: int32(tc.sig), Code: tc.code}
			if got := deterministicSignal(&si); got != tc.want {
				t.Errorf("deterministicSignal(%v, code=%d): got %t, wanted %t", tc.sig, tc.code, got, tc.want)
			}
		})
	}
}
