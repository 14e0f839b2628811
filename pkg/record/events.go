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
	"fmt"

	"retrace.dev/retrace/pkg/abi/linux"
)

// EventKind classifies a resolved traced-thread stop.
type EventKind int

// Event kinds.
const (
	// EventNone means no event has been resolved for the current stop.
	EventNone EventKind = iota

	// EventSyscall is an ordinary syscall stop.
	EventSyscall

	// EventSignal is a delivered signal.
	EventSignal

	// EventRdtscTrap is a trapped timestamp read, resolved internally.
	EventRdtscTrap

	// EventRegionRead and EventRegionWrite are emulated accesses to a
	// protected region, resolved internally.
	EventRegionRead
	EventRegionWrite

	// EventSched is the recorder's own scheduling interrupt.
	EventSched
)

// String implements fmt.Stringer.String.
func (k EventKind) String() string {
	switch k {
	case EventNone:
		return "none"
	case EventSyscall:
		return "syscall"
	case EventSignal:
		return "signal"
	case EventRdtscTrap:
		return "rdtsc"
	case EventRegionRead:
		return "region-read"
	case EventRegionWrite:
		return "region-write"
	case EventSched:
		return "sched"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is the classification attached to a traced-thread stop: a delivered
// signal, an internal emulation, a scheduling tick, or a syscall.
type Event struct {
	Kind EventKind

	// Sysno is the syscall number; meaningful for EventSyscall only.
	Sysno int32

	// Signal is the delivered signal and Deterministic whether it was
	// raised synchronously by the instruction stream; meaningful for
	// EventSignal only.
	Signal        linux.Signal
	Deterministic bool
}

// detSignalBit marks a deterministic signal in the encoded tag. It sits
// above the signal number range (1..64).
const detSignalBit = 0x80

// Synthetic event tags. The range sits above any syscall number so encoded
// tags stay unambiguous. Syscall number 0 (read on amd64) cannot encode as
// its own value, since tag 0 means no event; it gets a synthetic tag too.
const (
	tagSyscallZero int32 = 1000
	tagRdtscTrap   int32 = 1001
	tagRegionRead  int32 = 1002
	tagRegionWrite int32 = 1003
	tagSched       int32 = 1004
)

// EncodedTag returns the compact integer form of the event persisted in the
// trace: negative values encode a delivered signal (determinism flagged via
// detSignalBit), positive values below the synthetic range encode a syscall
// number, and the synthetic range encodes internal events.
func (e Event) EncodedTag() int32 {
	switch e.Kind {
	case EventNone:
		return 0
	case EventSyscall:
		if e.Sysno == 0 {
			return tagSyscallZero
		}
		return e.Sysno
	case EventSignal:
		tag := int32(e.Signal)
		if e.Deterministic {
			tag |= detSignalBit
		}
		return -tag
	case EventRdtscTrap:
		return tagRdtscTrap
	case EventRegionRead:
		return tagRegionRead
	case EventRegionWrite:
		return tagRegionWrite
	case EventSched:
		return tagSched
	}
	panic(fmt.Sprintf("invalid event %+v", e))
}

// DecodeTag is the inverse of EncodedTag.
func DecodeTag(tag int32) Event {
	switch {
	case tag == 0:
		return Event{Kind: EventNone}
	case tag < 0:
		return Event{
			Kind:          EventSignal,
			Signal:        linux.Signal(-tag &^ detSignalBit),
			Deterministic: -tag&detSignalBit != 0,
		}
	case tag == tagSyscallZero:
		return Event{Kind: EventSyscall}
	case tag == tagRdtscTrap:
		return Event{Kind: EventRdtscTrap}
	case tag == tagRegionRead:
		return Event{Kind: EventRegionRead}
	case tag == tagRegionWrite:
		return Event{Kind: EventRegionWrite}
	case tag == tagSched:
		return Event{Kind: EventSched}
	default:
		return Event{Kind: EventSyscall, Sysno: tag}
	}
}

// Checkpoint states persisted with an event record.
const (
	// StateSyscallEntry checkpoints the thread as if at syscall entry.
	StateSyscallEntry int32 = iota

	// StateSyscallExit checkpoints the thread as if at syscall exit.
	StateSyscallExit
)
