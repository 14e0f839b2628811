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

// Package record resolves pending-signal stops of a traced thread during
// recording. Faults caused by the recorder's own instrumentation (trapped
// timestamp reads, accesses to protected regions) are emulated internally
// and hidden from the tracee; the recorder's scheduling interrupt becomes
// an internal event; every other signal is classified and captured with
// enough state for replay to reproduce the identical delivery.
package record

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"retrace.dev/retrace/pkg/abi/linux"
	"retrace.dev/retrace/pkg/arch"
	"retrace.dev/retrace/pkg/hostarch"
	"retrace.dev/retrace/pkg/tsc"
)

// Process is the control surface of a stopped traced thread. Each resume
// (SingleStep) must be matched by a Wait before any further operation; all
// calls must come from the OS thread that traces the thread.
type Process interface {
	Tid() int
	GetRegs(regs *arch.Registers) error
	SetRegs(regs *arch.Registers) error
	GetSignalInfo(si *linux.SignalInfo) error
	SingleStep(sig linux.Signal) error
	Wait() error
	StopSignal() linux.Signal
	ReadMem(addr hostarch.Addr, b []byte) error
	WriteMem(addr hostarch.Addr, b []byte) error
}

// PerfCounters is the retired-instruction counter of a traced thread.
type PerfCounters interface {
	// Reset clears the counter and programs the overflow period.
	Reset(period uint64) error

	// Read returns instructions retired since the last Reset.
	Read() (uint64, error)
}

// RegionSet is the read-only query surface of the protected-region
// registry.
type RegionSet interface {
	Find(addr hostarch.Addr) (hostarch.AddrRange, bool)
}

// Sink receives resolved events and captured tracee memory.
type Sink interface {
	Event(tid int32, tag int32, regs *arch.Registers, state int32) error
	Data(tag int32, addr hostarch.Addr, data []byte) error
}

// Section reports whether an instruction pointer lies inside the
// instrumented wrapper's critical section. hostarch.AddrRange satisfies
// Section.
type Section interface {
	Contains(addr hostarch.Addr) bool
}

// Context is the recording state of one traced thread. It is owned by the
// recording engine for the thread's lifetime and mutated only by the single
// dispatch sequence driving the thread; no locking is needed.
type Context struct {
	// Process is the thread under control; it carries the thread id and
	// the last observed wait status.
	Process Process

	// Perf is the thread's hardware-counter state.
	Perf PerfCounters

	// Regs is the cached register snapshot, refreshed after every stop.
	Regs arch.Registers

	// Ev is the event resolved for the current stop. It is recomputed on
	// every dispatch before anything downstream consumes it.
	Ev Event

	// PendingSignal is the signal to deliver on the next resume; 0 means
	// none. Internally resolved stops clear it so the tracee never
	// observes the fault.
	PendingSignal linux.Signal
}

// Options configures a Recorder.
type Options struct {
	// SchedSignal is the signal number of the recorder's scheduling
	// interrupt. Defaults to SIGIO.
	SchedSignal linux.Signal

	// Interval is the scheduling interval in retired instructions.
	Interval uint64

	// SigframeMax is the conservative bound on the kernel signal frame.
	SigframeMax uint64

	// Wrapper bounds the instrumented wrapper's critical section; nil
	// means no wrapper is instrumented.
	Wrapper Section
}

// Defaults for Options.
const (
	DefaultInterval    = 1000000
	DefaultSigframeMax = 1024
)

// Recorder resolves pending-signal stops against the injected
// collaborators. A single Recorder may serve multiple contexts, but calls
// for one context must be serialized by the caller.
type Recorder struct {
	regions     RegionSet
	sink        Sink
	wrapper     Section
	schedSignal linux.Signal
	interval    uint64
	sigframeMax uint64

	// now samples the recorder's timestamp counter; overridable in tests.
	now func() uint64
}

// New returns a Recorder writing to sink and consulting regions for
// protected-region faults.
func New(regions RegionSet, sink Sink, opts Options) *Recorder {
	r := &Recorder{
		regions:     regions,
		sink:        sink,
		wrapper:     opts.Wrapper,
		schedSignal: opts.SchedSignal,
		interval:    opts.Interval,
		sigframeMax: opts.SigframeMax,
		now:         tsc.Cycles,
	}
	if r.schedSignal == 0 {
		r.schedSignal = linux.SIGIO
	}
	if r.interval == 0 {
		r.interval = DefaultInterval
	}
	if r.sigframeMax == 0 {
		r.sigframeMax = DefaultSigframeMax
	}
	return r
}

// HandleSignal resolves one pending-signal stop. On return ctx.Ev and
// ctx.PendingSignal reflect either an internally-resolved emulation event
// (pending signal cleared) or a recorded signal (pending signal set for
// delivery on the next resume).
func (r *Recorder) HandleSignal(ctx *Context) error {
	sig := ctx.Process.StopSignal()
	if sig == linux.SIGTRAP {
		// SIGTRAP stops belong to the syscall boundary detector; one
		// reaching signal handling indicates a prior dispatch error.
		panic(fmt.Sprintf("tid %d: trap signal reached signal handling", ctx.Process.Tid()))
	}
	ctx.Ev = Event{}

	logrus.WithFields(logrus.Fields{
		"tid": ctx.Process.Tid(),
		"sig": sig,
		"ip":  fmt.Sprintf("%#x", ctx.Regs.IP()),
	}).Debug("handling signal")

	// A signal that lands inside the wrapper's critical section cannot be
	// delivered there: partial wrapper state would make the interruption
	// point unreproducible at replay. Step out first, leaving sig pending.
	for r.wrapper != nil && r.wrapper.Contains(hostarch.Addr(ctx.Regs.IP())) {
		logrus.WithFields(logrus.Fields{
			"tid": ctx.Process.Tid(),
			"sig": sig,
			"ip":  fmt.Sprintf("%#x", ctx.Regs.IP()),
		}).Debug("deferring signal inside wrapper critical section")
		if err := ctx.Process.SingleStep(0); err != nil {
			return err
		}
		if err := ctx.Process.Wait(); err != nil {
			return err
		}
		if err := ctx.Process.GetRegs(&ctx.Regs); err != nil {
			return err
		}
	}

	// See if this stop occurred because of the recorder's own
	// instrumentation, and resolve it internally if so.
	switch sig {
	case linux.SIGSEGV:
		if ok, err := r.tryHandleRdtsc(ctx); ok || err != nil {
			return err
		}
		if ok, err := r.tryHandleRegionAccess(ctx); ok || err != nil {
			return err
		}
	case r.schedSignal:
		n, err := ctx.Perf.Read()
		if err != nil {
			return err
		}
		if n >= r.interval {
			// Counter interrupt from exceeding the time slice. This is
			// the recorder's doing; never delivered.
			ctx.Ev = Event{Kind: EventSched}
			ctx.PendingSignal = 0
			if err := r.recordEvent(ctx); err != nil {
				return err
			}
			// Start the next slice. Without a reset every later arrival
			// of the signal would read as an expired interval.
			return ctx.Perf.Reset(r.interval)
		}
	}

	// The signal was generated by the program or an external source;
	// record it normally.
	return r.recordSignal(ctx, sig)
}

// recordEvent persists ctx.Ev with the current register snapshot.
func (r *Recorder) recordEvent(ctx *Context) error {
	return r.sink.Event(int32(ctx.Process.Tid()), ctx.Ev.EncodedTag(), &ctx.Regs, StateSyscallEntry)
}

// recordSignal captures a replayable record of a signal delivery: the
// classified event, a checkpoint at the stop, and the signal frame the
// kernel constructs when the handler is entered.
func (r *Recorder) recordSignal(ctx *Context, sig linux.Signal) error {
	if sig <= 0 {
		return nil
	}
	ctx.PendingSignal = sig

	var si linux.SignalInfo
	if err := ctx.Process.GetSignalInfo(&si); err != nil {
		return err
	}
	ctx.Ev = Event{
		Kind:          EventSignal,
		Signal:        sig,
		Deterministic: deterministicSignal(&si),
	}

	if err := r.recordEvent(ctx); err != nil {
		return err
	}
	if err := ctx.Perf.Reset(r.interval); err != nil {
		return err
	}

	// Step into the handler, delivering the signal.
	if err := ctx.Process.SingleStep(sig); err != nil {
		return err
	}
	if err := ctx.Process.Wait(); err != nil {
		return err
	}
	insts, err := ctx.Perf.Read()
	if err != nil {
		return err
	}

	// Zero retired instructions means the step entered a handler: the
	// kernel built a signal frame on the stack. Its true size cannot be
	// derived portably, so a conservative bound is captured.
	var frameSize uint64
	if insts == 0 {
		frameSize = r.sigframeMax
	}

	if err := ctx.Process.GetRegs(&ctx.Regs); err != nil {
		return err
	}
	frame := make([]byte, frameSize)
	sp := hostarch.Addr(ctx.Regs.SP())
	if frameSize > 0 {
		if err := ctx.Process.ReadMem(sp, frame); err != nil {
			return err
		}
	}
	return r.sink.Data(ctx.Ev.EncodedTag(), sp, frame)
}
