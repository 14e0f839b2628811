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

// Package config holds the recorder configuration.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config is the recorder configuration.
type Config struct {
	// MaxRecordInterval is the scheduling interval in retired
	// instructions: the tracee is interrupted for a scheduling decision
	// after executing this many instructions.
	MaxRecordInterval uint64 `toml:"max_record_interval"`

	// SchedSignal is the signal number the hardware counter delivers when
	// the interval is exceeded.
	SchedSignal int32 `toml:"sched_signal"`

	// SigframeMax is the conservative upper bound, in bytes, on the signal
	// frame the kernel constructs on handler entry. The true size cannot
	// be derived portably, so this bound is captured instead.
	SigframeMax uint64 `toml:"sigframe_max"`

	// WrapperStart and WrapperEnd bound the instrumented wrapper's
	// critical section; signals arriving while the instruction pointer is
	// inside are deferred. Both zero means no wrapper is instrumented.
	WrapperStart uint64 `toml:"wrapper_start"`
	WrapperEnd   uint64 `toml:"wrapper_end"`

	// TracePath is where the trace is written.
	TracePath string `toml:"trace_path"`

	// LogLevel is the logrus level name.
	LogLevel string `toml:"log_level"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		MaxRecordInterval: 1000000,
		SchedSignal:       29, // SIGIO
		SigframeMax:       1024,
		TracePath:         "trace.bin",
		LogLevel:          "info",
	}
}

// Load reads a TOML configuration from path, applied on top of the
// defaults.
func Load(path string) (Config, error) {
	c := Default()
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return c, err
	}
	if err := c.validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (c Config) validate() error {
	if c.MaxRecordInterval == 0 {
		return fmt.Errorf("max_record_interval must be positive")
	}
	if c.SchedSignal <= 0 || c.SchedSignal > 64 {
		return fmt.Errorf("sched_signal %d out of range", c.SchedSignal)
	}
	if c.WrapperEnd < c.WrapperStart {
		return fmt.Errorf("wrapper bounds [%#x, %#x) are not well-formed", c.WrapperStart, c.WrapperEnd)
	}
	return nil
}
