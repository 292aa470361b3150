// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trigger // import "github.com/go-daq/tdaq-trigger/trigger"

import (
	"bytes"

	"github.com/go-daq/tdaq-trigger/wire"
)

// FragmentType selects how a Fragment's packed Payload is interpreted.
type FragmentType uint8

const (
	FragTypeTP FragmentType = iota
	FragTypeTA
	FragTypeTC
)

// Fragment error bits, set when a DataRequest cannot be (fully)
// satisfied.
const (
	ErrNone         uint32 = 0
	ErrDataNotFound uint32 = 1 << 0
	ErrIncomplete   uint32 = 1 << 1
)

// Fragment is the response to a DataRequest.
type Fragment struct {
	TriggerNumber    uint64
	TriggerTimestamp Timestamp
	WindowBegin      Timestamp
	WindowEnd        Timestamp
	RunNumber        uint32
	ElementId        uint32
	FragmentType     FragmentType
	SequenceNumber   uint64
	ErrorBits        uint32
	Payload          []byte
}

func (f Fragment) MarshalTDAQ() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := wire.NewEncoder(buf)
	enc.WriteU64(f.TriggerNumber)
	enc.WriteU64(uint64(f.TriggerTimestamp))
	enc.WriteU64(uint64(f.WindowBegin))
	enc.WriteU64(uint64(f.WindowEnd))
	enc.WriteU32(f.RunNumber)
	enc.WriteU32(f.ElementId)
	enc.WriteU8(uint8(f.FragmentType))
	enc.WriteU64(f.SequenceNumber)
	enc.WriteU32(f.ErrorBits)
	enc.WriteBytes(f.Payload)
	return buf.Bytes(), enc.Err()
}

func (f *Fragment) UnmarshalTDAQ(p []byte) error {
	dec := wire.NewDecoder(bytes.NewReader(p))
	f.TriggerNumber = dec.ReadU64()
	f.TriggerTimestamp = Timestamp(dec.ReadU64())
	f.WindowBegin = Timestamp(dec.ReadU64())
	f.WindowEnd = Timestamp(dec.ReadU64())
	f.RunNumber = dec.ReadU32()
	f.ElementId = dec.ReadU32()
	f.FragmentType = FragmentType(dec.ReadU8())
	f.SequenceNumber = dec.ReadU64()
	f.ErrorBits = dec.ReadU32()
	f.Payload = dec.ReadBytes()
	return dec.Err()
}

var (
	_ Marshaler   = Fragment{}
	_ Unmarshaler = (*Fragment)(nil)
)
