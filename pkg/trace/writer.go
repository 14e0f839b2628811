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
	"bufio"
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/zstd"

	"retrace.dev/retrace/pkg/arch"
	"retrace.dev/retrace/pkg/hostarch"
)

// Writer appends records to a trace. It is driven by a single recording
// thread and is not safe for concurrent use.
type Writer struct {
	w   *bufio.Writer
	c   io.Closer
	enc *zstd.Encoder
}

// NewWriter creates a trace on f and writes the file header.
func NewWriter(f io.WriteCloser) (*Writer, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	w := &Writer{
		w:   bufio.NewWriter(f),
		c:   f,
		enc: enc,
	}
	hdr := fileHeader{Magic: magic, Version: version}
	if err := binary.Write(w.w, hostarch.ByteOrder, &hdr); err != nil {
		return nil, err
	}
	return w, nil
}

// Event appends an event record: the tag of the resolved stop, the thread
// it happened on, its register snapshot and the checkpoint state.
func (w *Writer) Event(tid int32, tag int32, regs *arch.Registers, state int32) error {
	if err := w.w.WriteByte(recordEvent); err != nil {
		return err
	}
	hdr := eventHeader{Tid: tid, Tag: tag, State: state}
	if err := binary.Write(w.w, hostarch.ByteOrder, &hdr); err != nil {
		return err
	}
	return binary.Write(w.w, hostarch.ByteOrder, &regs.PtraceRegs)
}

// Data appends a data record: raw tracee memory captured at addr for the
// event with the given tag. Zero-length captures are recorded too; replay
// uses them to keep event and data streams aligned.
func (w *Writer) Data(tag int32, addr hostarch.Addr, data []byte) error {
	comp := w.enc.EncodeAll(data, nil)
	if err := w.w.WriteByte(recordData); err != nil {
		return err
	}
	hdr := dataHeader{
		Tag:     tag,
		Addr:    uint64(addr),
		RawLen:  uint32(len(data)),
		CompLen: uint32(len(comp)),
	}
	if err := binary.Write(w.w, hostarch.ByteOrder, &hdr); err != nil {
		return err
	}
	_, err := w.w.Write(comp)
	return err
}

// Close flushes buffered records and closes the underlying file.
func (w *Writer) Close() error {
	flushErr := w.w.Flush()
	w.enc.Close()
	if err := w.c.Close(); err != nil {
		return err
	}
	return flushErr
}
