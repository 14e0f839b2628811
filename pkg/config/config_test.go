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

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "retrace.toml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
max_record_interval = 50000
sched_signal = 16
wrapper_start = 0x400000
wrapper_end = 0x401000
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.MaxRecordInterval != 50000 {
		t.Errorf("MaxRecordInterval: got %d, wanted 50000", c.MaxRecordInterval)
	}
	if c.SchedSignal != 16 {
		t.Errorf("SchedSignal: got %d, wanted 16", c.SchedSignal)
	}
	if c.WrapperStart != 0x400000 || c.WrapperEnd != 0x401000 {
		t.Errorf("wrapper bounds: got [%#x, %#x), wanted [0x400000, 0x401000)", c.WrapperStart, c.WrapperEnd)
	}
	// Unset fields keep their defaults.
	if want := Default().SigframeMax; c.SigframeMax != want {
		t.Errorf("SigframeMax: got %d, wanted default %d", c.SigframeMax, want)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	for _, test := range []struct {
		name     string
		contents string
	}{
		{"zero interval", "max_record_interval = 0"},
		{"bad signal", "sched_signal = 99"},
		{"inverted wrapper", "wrapper_start = 0x2000\nwrapper_end = 0x1000"},
	} {
		t.Run(test.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, test.contents)); err == nil {
				t.Errorf("Load: got nil error, wanted validation failure")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Errorf("Load of missing file: got nil error, wanted failure")
	}
}
