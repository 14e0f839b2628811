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

package trace

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"retrace.dev/retrace/pkg/arch"
)

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.bin")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w, err := NewWriter(f)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	var regs arch.Registers
	regs.SetIP(0x401000)
	regs.SetSP(0x7ffe1000)
	regs.Rax = 42
	if err := w.Event(1234, -10, &regs, 0); err != nil {
		t.Fatalf("Event: %v", err)
	}
	frame := bytes.Repeat([]byte{0xaa, 0xbb}, 512)
	if err := w.Data(-10, 0x7ffe1000, frame); err != nil {
		t.Fatalf("Data: %v", err)
	}
	if err := w.Data(1002, 0x20000, nil); err != nil {
		t.Fatalf("Data(empty): %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	in, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewReader(in)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	rec, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if rec.Kind != KindEvent || rec.Tid != 1234 || rec.Tag != -10 {
		t.Errorf("event record: got kind=%d tid=%d tag=%d, wanted kind=%d tid=1234 tag=-10", rec.Kind, rec.Tid, rec.Tag, KindEvent)
	}
	if rec.Regs.IP() != 0x401000 || rec.Regs.Rax != 42 {
		t.Errorf("event regs: got ip=%#x rax=%d, wanted ip=0x401000 rax=42", rec.Regs.IP(), rec.Regs.Rax)
	}

	rec, err = r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if rec.Kind != KindData || rec.Addr != 0x7ffe1000 || !bytes.Equal(rec.Data, frame) {
		t.Errorf("data record: got kind=%d addr=%#x len=%d, wanted kind=%d addr=0x7ffe1000 len=%d", rec.Kind, rec.Addr, len(rec.Data), KindData, len(frame))
	}

	rec, err = r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if rec.Kind != KindData || rec.Tag != 1002 || len(rec.Data) != 0 {
		t.Errorf("empty data record: got kind=%d tag=%d len=%d, wanted kind=%d tag=1002 len=0", rec.Kind, rec.Tag, len(rec.Data), KindData)
	}

	if _, err := r.Next(); err != io.EOF {
		t.Errorf("Next at end: got %v, wanted io.EOF", err)
	}
}

func TestRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-trace")
	if err := os.WriteFile(path, []byte("definitely not a trace file"), 0644); err != nil {
		t.Fatal(err)
	}
	in, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer in.Close()
	if _, err := NewReader(in); err == nil {
		t.Errorf("NewReader: got nil error, wanted bad magic")
	}
}
