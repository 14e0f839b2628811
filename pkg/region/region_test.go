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

package region

import (
	"testing"

	"retrace.dev/retrace/pkg/hostarch"
)

func TestFind(t *testing.T) {
	r := New()
	low := hostarch.AddrRange{Start: 0x10000, End: 0x11000}
	high := hostarch.AddrRange{Start: 0x20000, End: 0x24000}
	r.Insert(low)
	r.Insert(high)

	for _, test := range []struct {
		addr hostarch.Addr
		want hostarch.AddrRange
		ok   bool
	}{
		{0xffff, hostarch.AddrRange{}, false},
		{0x10000, low, true},
		{0x10fff, low, true},
		{0x11000, hostarch.AddrRange{}, false},
		{0x23abc, high, true},
		{0x24000, hostarch.AddrRange{}, false},
	} {
		got, ok := r.Find(test.addr)
		if ok != test.ok || got != test.want {
			t.Errorf("Find(%#x): got (%v, %t), wanted (%v, %t)", test.addr, got, ok, test.want, test.ok)
		}
	}
}

func TestRemove(t *testing.T) {
	r := New()
	rng := hostarch.AddrRange{Start: 0x10000, End: 0x11000}
	r.Insert(rng)
	if !r.Remove(rng) {
		t.Fatalf("Remove(%v): got false, wanted true", rng)
	}
	if r.Contains(0x10800) {
		t.Errorf("Contains(0x10800) after Remove: got true, wanted false")
	}
	if r.Remove(rng) {
		t.Errorf("Remove(%v) again: got true, wanted false", rng)
	}
}

func TestAdjacentRangesAllowed(t *testing.T) {
	r := New()
	r.Insert(hostarch.AddrRange{Start: 0x10000, End: 0x11000})
	r.Insert(hostarch.AddrRange{Start: 0x11000, End: 0x12000})
	if got := r.Len(); got != 2 {
		t.Errorf("Len: got %d, wanted 2", got)
	}
}

func TestOverlapPanics(t *testing.T) {
	r := New()
	r.Insert(hostarch.AddrRange{Start: 0x10000, End: 0x12000})
	defer func() {
		if recover() == nil {
			t.Errorf("Insert of overlapping range did not panic")
		}
	}()
	r.Insert(hostarch.AddrRange{Start: 0x11000, End: 0x13000})
}
