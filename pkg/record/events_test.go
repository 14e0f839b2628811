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

	"github.com/google/go-cmp/cmp"

	"retrace.dev/retrace/pkg/abi/linux"
)

func TestEncodedTag(t *testing.T) {
	for _, tc := range []struct {
		name string
		ev   Event
		want int32
	}{
		{"none", Event{}, 0},
		{"syscall-read", Event{Kind: EventSyscall, Sysno: 0}, 1000},
		{"syscall-write", Event{Kind: EventSyscall, Sysno: 1}, 1},
		{"usr1", Event{Kind: EventSignal, Signal: linux.SIGUSR1}, -10},
		{"det-fpe", Event{Kind: EventSignal, Signal: linux.SIGFPE, Deterministic: true}, -136},
		{"det-segv", Event{Kind: EventSignal, Signal: linux.SIGSEGV, Deterministic: true}, -139},
		{"rdtsc", Event{Kind: EventRdtscTrap}, 1001},
		{"region-read", Event{Kind: EventRegionRead}, 1002},
		{"region-write", Event{Kind: EventRegionWrite}, 1003},
		{"sched", Event{Kind: EventSched}, 1004},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.ev.EncodedTag(); got != tc.want {
				t.Errorf("EncodedTag(%+v): got %d, wanted %d", tc.ev, got, tc.want)
			}
		})
	}
}

func TestDecodeTag(t *testing.T) {
	for _, ev := range []Event{
		{Kind: EventSyscall},
		{Kind: EventSyscall, Sysno: 39},
		{Kind: EventSignal, Signal: linux.SIGUSR1},
		{Kind: EventSignal, Signal: linux.SIGSEGV, Deterministic: true},
		{Kind: EventSignal, Signal: linux.Signal(64)},
		{Kind: EventRdtscTrap},
		{Kind: EventRegionRead},
		{Kind: EventRegionWrite},
		{Kind: EventSched},
	} {
		got := DecodeTag(ev.EncodedTag())
		if diff := cmp.Diff(ev, got); diff != "" {
			t.Errorf("DecodeTag(EncodedTag) mismatch (-want +got):\n%s", diff)
		}
	}
}
