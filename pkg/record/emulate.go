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

package record

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"retrace.dev/retrace/pkg/abi/linux"
	"retrace.dev/retrace/pkg/decode"
	"retrace.dev/retrace/pkg/hostarch"
)

// decodeAt decodes the instruction at addr in the tracee.
func (r *Recorder) decodeAt(ctx *Context, addr hostarch.Addr) (decode.Inst, error) {
	var code [decode.MaxInstructionLen]byte
	if err := ctx.Process.ReadMem(addr, code[:]); err != nil {
		return decode.Inst{}, err
	}
	return decode.Decode(code[:])
}

// tryHandleRdtsc reports whether the stop is a SIGSEGV from a trapped
// timestamp-read instruction, and if so emulates it: the recorder's own
// counter sample lands in the result registers, the instruction pointer
// advances past the instruction, and the fault is never delivered. On
// decline, nothing is mutated.
func (r *Recorder) tryHandleRdtsc(ctx *Context) (bool, error) {
	if ctx.Process.StopSignal() != linux.SIGSEGV {
		return false, nil
	}
	// An unreadable or undecodable IP is a decline, not a failure: a
	// SIGSEGV from executing an unmapped address faults at the IP itself,
	// and must fall through to be recorded as an ordinary deterministic
	// signal.
	inst, err := r.decodeAt(ctx, hostarch.Addr(ctx.Regs.IP()))
	if err != nil || !inst.IsRDTSC() {
		return false, nil
	}

	ctx.Regs.SetTSC(r.now())
	ctx.Regs.SetIP(ctx.Regs.IP() + uint64(inst.Len))
	if err := ctx.Process.SetRegs(&ctx.Regs); err != nil {
		return false, err
	}
	ctx.Ev = Event{Kind: EventRdtscTrap}
	ctx.PendingSignal = 0
	// The substitute counter value exists only in the post-emulation
	// registers, so that snapshot is what the event must carry.
	if err := r.recordEvent(ctx); err != nil {
		return false, err
	}
	logrus.WithFields(logrus.Fields{
		"tid": ctx.Process.Tid(),
		"ip":  fmt.Sprintf("%#x", ctx.Regs.IP()),
	}).Debug("emulated rdtsc")
	return true, nil
}

// tryHandleRegionAccess reports whether the stop is a SIGSEGV from an
// access to a protected region, and if so emulates the faulting transfer
// in place. The event tag is set before emulation, because emulation
// advances the instruction pointer and the tag must reflect pre-execution
// intent. On decline, nothing is mutated.
func (r *Recorder) tryHandleRegionAccess(ctx *Context) (bool, error) {
	if r.regions == nil || ctx.Process.StopSignal() != linux.SIGSEGV {
		return false, nil
	}
	var si linux.SignalInfo
	if err := ctx.Process.GetSignalInfo(&si); err != nil {
		return false, err
	}
	addr := hostarch.Addr(si.Addr())
	if _, ok := r.regions.Find(addr); !ok {
		return false, nil
	}

	inst, err := r.decodeAt(ctx, hostarch.Addr(ctx.Regs.IP()))
	if err != nil {
		return false, fmt.Errorf("decoding protected-region access at %#x: %w", ctx.Regs.IP(), err)
	}
	acc, err := inst.MemAccess()
	if err != nil {
		return false, fmt.Errorf("classifying protected-region access at %#x: %w", ctx.Regs.IP(), err)
	}
	if acc.Access.Write {
		ctx.Ev = Event{Kind: EventRegionWrite}
	} else {
		ctx.Ev = Event{Kind: EventRegionRead}
	}
	// The event carries the pre-emulation snapshot: replay re-executes the
	// transfer from the registers as they stood at the fault.
	if err := r.recordEvent(ctx); err != nil {
		return false, err
	}
	if err := r.emulateAccess(ctx, inst, acc, addr); err != nil {
		return false, err
	}
	ctx.PendingSignal = 0
	logrus.WithFields(logrus.Fields{
		"tid":    ctx.Process.Tid(),
		"addr":   fmt.Sprintf("%#x", addr),
		"access": acc.Access,
	}).Debug("emulated protected-region access")
	return true, nil
}

// emulateAccess applies the side effect of the faulting transfer through
// the ptrace access path, which ignores the region's protections. Emulating
// in place avoids a window where another thread could observe the region
// unprotected, and a stop/continue round trip per access.
func (r *Recorder) emulateAccess(ctx *Context, inst decode.Inst, acc decode.MemAccess, addr hostarch.Addr) error {
	buf := make([]byte, acc.Width)
	if acc.Access.Write {
		v := uint64(acc.Imm)
		if !acc.HasImm {
			var err error
			if v, err = ctx.Regs.Value(acc.Reg); err != nil {
				return err
			}
		}
		var word [8]byte
		hostarch.ByteOrder.PutUint64(word[:], v)
		copy(buf, word[:acc.Width])
		if err := ctx.Process.WriteMem(addr, buf); err != nil {
			return err
		}
	} else {
		if err := ctx.Process.ReadMem(addr, buf); err != nil {
			return err
		}
		var word [8]byte
		copy(word[:], buf)
		if err := ctx.Regs.SetValue(acc.Reg, hostarch.ByteOrder.Uint64(word[:])); err != nil {
			return err
		}
		// Only reads need their data in the trace; a replayed write
		// regenerates the value from the register state.
		if err := r.sink.Data(ctx.Ev.EncodedTag(), addr, buf); err != nil {
			return err
		}
	}
	ctx.Regs.SetIP(ctx.Regs.IP() + uint64(inst.Len))
	return ctx.Process.SetRegs(&ctx.Regs)
}
