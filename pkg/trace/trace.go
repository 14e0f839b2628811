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

// Package trace is the append-only event log of a recording. Each recorded
// stop produces an event record (tag, register snapshot, checkpoint state)
// and zero or more data records (raw tracee memory captured for replay);
// data payloads are zstd-compressed.
package trace

import (
	"fmt"
)

const (
	magic   = uint32(0x43525452) // "RTRC"
	version = uint16(1)
)

// Record types.
const (
	recordEvent byte = 1
	recordData  byte = 2
)

// fileHeader starts a trace file.
type fileHeader struct {
	Magic   uint32
	Version uint16
	_       uint16
}

// eventHeader precedes the raw register snapshot of an event record.
type eventHeader struct {
	Tid   int32
	Tag   int32
	State int32
	_     int32
}

// dataHeader precedes the compressed payload of a data record.
type dataHeader struct {
	Tag     int32
	_       int32
	Addr    uint64
	RawLen  uint32
	CompLen uint32
}

func checkHeader(hdr fileHeader) error {
	if hdr.Magic != magic {
		return fmt.Errorf("not a trace file: magic %#x", hdr.Magic)
	}
	if hdr.Version != version {
		return fmt.Errorf("unsupported trace version %d", hdr.Version)
	}
	return nil
}
