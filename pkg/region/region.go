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

// Package region tracks the memory ranges the recorder has placed under
// restricted access so that reads and writes can be intercepted and
// recorded.
//
// The registry is mutated only by the memory-management side (when a region
// is protected or torn down) and queried by the fault emulators; the two
// never run concurrently, so no locking is done here.
package region

import (
	"fmt"

	"github.com/google/btree"

	"retrace.dev/retrace/pkg/hostarch"
)

// degree is the btree branching factor. The registry is small; this value
// is not tuned.
const degree = 16

// Registry is a set of non-overlapping protected address ranges, ordered by
// start address.
type Registry struct {
	ranges *btree.BTreeG[hostarch.AddrRange]
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		ranges: btree.NewG(degree, func(a, b hostarch.AddrRange) bool {
			return a.Start < b.Start
		}),
	}
}

// Insert adds a protected range. The range must be well-formed, non-empty
// and must not overlap an existing range.
func (r *Registry) Insert(rng hostarch.AddrRange) {
	if !rng.WellFormed() || rng.Len() == 0 {
		panic(fmt.Sprintf("invalid protected range %v", rng))
	}
	if found, ok := r.findRange(rng.End - 1); ok && found.Overlaps(rng) {
		panic(fmt.Sprintf("protected range %v overlaps %v", rng, found))
	}
	r.ranges.ReplaceOrInsert(rng)
}

// Remove drops the range starting at rng.Start. It returns false if no such
// range is registered.
func (r *Registry) Remove(rng hostarch.AddrRange) bool {
	_, ok := r.ranges.Delete(rng)
	return ok
}

// findRange returns the registered range with the greatest start address
// <= addr.
func (r *Registry) findRange(addr hostarch.Addr) (hostarch.AddrRange, bool) {
	var (
		found hostarch.AddrRange
		ok    bool
	)
	r.ranges.DescendLessOrEqual(hostarch.AddrRange{Start: addr}, func(item hostarch.AddrRange) bool {
		found, ok = item, true
		return false
	})
	return found, ok
}

// Find returns the registered range containing addr, if any.
func (r *Registry) Find(addr hostarch.Addr) (hostarch.AddrRange, bool) {
	if found, ok := r.findRange(addr); ok && found.Contains(addr) {
		return found, true
	}
	return hostarch.AddrRange{}, false
}

// Contains returns true if addr lies inside a registered range.
func (r *Registry) Contains(addr hostarch.Addr) bool {
	_, ok := r.Find(addr)
	return ok
}

// Len returns the number of registered ranges.
func (r *Registry) Len() int {
	return r.ranges.Len()
}
