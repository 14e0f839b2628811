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
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"retrace.dev/retrace/pkg/arch"
	"retrace.dev/retrace/pkg/hostarch"
)

// Kind distinguishes trace record types.
type Kind int

// Record kinds.
const (
	KindEvent Kind = iota + 1
	KindData
)

// Record is one decoded trace record.
type Record struct {
	Kind Kind

	// Event fields.
	Tid   int32
	Tag   int32
	State int32
	Regs  arch.Registers

	// Data fields.
	Addr hostarch.Addr
	Data []byte
}

// Reader iterates over the records of a trace.
type Reader struct {
	r   *bufio.Reader
	c   io.Closer
	dec *zstd.Decoder
}

// NewReader opens a trace from f and validates the file header.
func NewReader(f io.ReadCloser) (*Reader, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	r := &Reader{
		r:   bufio.NewReader(f),
		c:   f,
		dec: dec,
	}
	var hdr fileHeader
	if err := binary.Read(r.r, hostarch.ByteOrder, &hdr); err != nil {
		return nil, err
	}
	if err := checkHeader(hdr); err != nil {
		return nil, err
	}
	return r, nil
}

// Next returns the next record, or io.EOF at the end of the trace.
func (r *Reader) Next() (Record, error) {
	kind, err := r.r.ReadByte()
	if err != nil {
		return Record{}, err
	}
	switch kind {
	case recordEvent:
		var hdr eventHeader
		if err := binary.Read(r.r, hostarch.ByteOrder, &hdr); err != nil {
			return Record{}, eof(err)
		}
		rec := Record{
			Kind:  KindEvent,
			Tid:   hdr.Tid,
			Tag:   hdr.Tag,
			State: hdr.State,
		}
		if err := binary.Read(r.r, hostarch.ByteOrder, &rec.Regs.PtraceRegs); err != nil {
			return Record{}, eof(err)
		}
		return rec, nil
	case recordData:
		var hdr dataHeader
		if err := binary.Read(r.r, hostarch.ByteOrder, &hdr); err != nil {
			return Record{}, eof(err)
		}
		comp := make([]byte, hdr.CompLen)
		if _, err := io.ReadFull(r.r, comp); err != nil {
			return Record{}, eof(err)
		}
		data, err := r.dec.DecodeAll(comp, nil)
		if err != nil {
			return Record{}, err
		}
		if uint32(len(data)) != hdr.RawLen {
			return Record{}, fmt.Errorf("corrupt trace: data length %d, header says %d", len(data), hdr.RawLen)
		}
		return Record{
			Kind: KindData,
			Tag:  hdr.Tag,
			Addr: hostarch.Addr(hdr.Addr),
			Data: data,
		}, nil
	default:
		return Record{}, fmt.Errorf("corrupt trace: unknown record type %d", kind)
	}
}

// eof converts an EOF inside a record into an unexpected-EOF error; a trace
// may only end at a record boundary.
func eof(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Close releases the decoder and closes the underlying file.
func (r *Reader) Close() error {
	r.dec.Close()
	return r.c.Close()
}
