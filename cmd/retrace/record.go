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

package main

import (
	"context"
	"flag"
	"os"
	"runtime"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"retrace.dev/retrace/pkg/abi/linux"
	"retrace.dev/retrace/pkg/config"
	"retrace.dev/retrace/pkg/hostarch"
	"retrace.dev/retrace/pkg/hpc"
	"retrace.dev/retrace/pkg/ptracer"
	"retrace.dev/retrace/pkg/record"
	"retrace.dev/retrace/pkg/region"
	"retrace.dev/retrace/pkg/trace"
)

// recordCmd implements subcommands.Command for the "record" command.
type recordCmd struct {
	configPath string
	tracePath  string
}

// Name implements subcommands.Command.Name.
func (*recordCmd) Name() string {
	return "record"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*recordCmd) Synopsis() string {
	return "record the execution of a command for later replay"
}

// Usage implements subcommands.Command.Usage.
func (*recordCmd) Usage() string {
	return "record [flags] -- command [args...]\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *recordCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "path to a TOML configuration file")
	f.StringVar(&c.tracePath, "trace", "", "trace output path (overrides config)")
}

// Execute implements subcommands.Command.Execute.
func (c *recordCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	argv := f.Args()
	if len(argv) == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	conf := config.Default()
	if c.configPath != "" {
		var err error
		if conf, err = config.Load(c.configPath); err != nil {
			logrus.WithError(err).Error("loading configuration")
			return subcommands.ExitFailure
		}
	}
	if c.tracePath != "" {
		conf.TracePath = c.tracePath
	}
	if lvl, err := logrus.ParseLevel(conf.LogLevel); err == nil {
		logrus.SetLevel(lvl)
	}

	if err := c.record(conf, argv); err != nil {
		logrus.WithError(err).Error("recording failed")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// record runs argv under trace and drives the stop/dispatch loop until the
// tracee exits.
func (c *recordCmd) record(conf config.Config, argv []string) error {
	// Every control operation on the tracee must come from the same OS
	// thread for the lifetime of the recording.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	out, err := os.Create(conf.TracePath)
	if err != nil {
		return err
	}
	tw, err := trace.NewWriter(out)
	if err != nil {
		out.Close()
		return err
	}
	defer tw.Close()

	th, err := ptracer.Start(argv)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"tid":   th.Tid(),
		"trace": conf.TracePath,
	}).Info("recording")

	perf, err := hpc.Open(th.Tid())
	if err != nil {
		return err
	}
	defer perf.Close()
	schedSignal := linux.Signal(conf.SchedSignal)
	if err := perf.RouteOverflow(schedSignal); err != nil {
		return err
	}
	if err := perf.Reset(conf.MaxRecordInterval); err != nil {
		return err
	}

	// The protected-region registry is populated by the shared-memory
	// interposition layer as the tracee maps regions; it starts empty.
	regions := region.New()

	opts := record.Options{
		SchedSignal: schedSignal,
		Interval:    conf.MaxRecordInterval,
		SigframeMax: conf.SigframeMax,
	}
	if conf.WrapperEnd > conf.WrapperStart {
		opts.Wrapper = hostarch.AddrRange{
			Start: hostarch.Addr(conf.WrapperStart),
			End:   hostarch.Addr(conf.WrapperEnd),
		}
	}
	rec := record.New(regions, tw, opts)
	rctx := &record.Context{Process: th, Perf: perf}

	for {
		// Any signal delivery already happened inside HandleSignal's
		// single-step; resume without injecting.
		if err := th.Cont(0); err != nil {
			return err
		}
		if err := th.Wait(); err != nil {
			return err
		}
		if th.Exited() {
			logrus.WithField("tid", th.Tid()).Info("tracee exited")
			return nil
		}

		sig := th.StopSignal()
		if sig == linux.SIGTRAP {
			// Trap stops (exec, syscall boundaries) are the syscall
			// dispatcher's concern, not signal handling's.
			continue
		}
		if err := th.GetRegs(&rctx.Regs); err != nil {
			return err
		}
		if err := rec.HandleSignal(rctx); err != nil {
			return err
		}
	}
}
