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
	"retrace.dev/retrace/pkg/abi/linux"
)

// deterministicSignal returns true if the signal described by si must have
// been raised synchronously by execution of the current instruction, so
// that replaying the instruction reproduces the delivery.
func deterministicSignal(si *linux.SignalInfo) bool {
	switch si.Sig() {
	case linux.SIGILL, linux.SIGTRAP, linux.SIGBUS, linux.SIGFPE, linux.SIGSEGV, linux.SIGSTKFLT:
		// These signals may be delivered deterministically. Strictly
		// positive si_code values are reserved for kernel-generated
		// signals, so if the kernel attributed the signal it must have
		// been raised by the instruction itself.
		return si.Code > 0
	default:
		// All other signals can never be delivered deterministically to
		// the precision replay requires.
		return false
	}
}
