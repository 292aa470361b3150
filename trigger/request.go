// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trigger // import "github.com/go-daq/tdaq-trigger/trigger"

import (
	"bytes"

	"github.com/go-daq/tdaq-trigger/wire"
)

// TriggerNumberInvalid marks a TriggerDecisionToken carrying "initial
// credit" rather than a return for a specific trigger.
const TriggerNumberInvalid uint64 = ^uint64(0)

// DataRequest asks for every object whose time_start falls within
// [WindowBegin, WindowEnd].
type DataRequest struct {
	TriggerNumber    uint64
	RunNumber        uint32
	SequenceNumber   uint64
	TriggerTimestamp Timestamp
	Component        string
	WindowBegin      Timestamp
	WindowEnd        Timestamp
	Destination      string
}

func (r DataRequest) MarshalTDAQ() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := wire.NewEncoder(buf)
	enc.WriteU64(r.TriggerNumber)
	enc.WriteU32(r.RunNumber)
	enc.WriteU64(r.SequenceNumber)
	enc.WriteU64(uint64(r.TriggerTimestamp))
	enc.WriteStr(r.Component)
	enc.WriteU64(uint64(r.WindowBegin))
	enc.WriteU64(uint64(r.WindowEnd))
	enc.WriteStr(r.Destination)
	return buf.Bytes(), enc.Err()
}

func (r *DataRequest) UnmarshalTDAQ(p []byte) error {
	dec := wire.NewDecoder(bytes.NewReader(p))
	r.TriggerNumber = dec.ReadU64()
	r.RunNumber = dec.ReadU32()
	r.SequenceNumber = dec.ReadU64()
	r.TriggerTimestamp = Timestamp(dec.ReadU64())
	r.Component = dec.ReadStr()
	r.WindowBegin = Timestamp(dec.ReadU64())
	r.WindowEnd = Timestamp(dec.ReadU64())
	r.Destination = dec.ReadStr()
	return dec.Err()
}

// TriggerInhibit is a back-pressure signal from downstream.
type TriggerInhibit struct {
	RunNumber uint32
	Busy      bool
}

func (in TriggerInhibit) MarshalTDAQ() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := wire.NewEncoder(buf)
	enc.WriteU32(in.RunNumber)
	enc.WriteBool(in.Busy)
	return buf.Bytes(), enc.Err()
}

func (in *TriggerInhibit) UnmarshalTDAQ(p []byte) error {
	dec := wire.NewDecoder(bytes.NewReader(p))
	in.RunNumber = dec.ReadU32()
	in.Busy = dec.ReadBool()
	return dec.Err()
}

// TriggerDecisionToken returns credit for one TD emission.
// TriggerNumber == TriggerNumberInvalid means "initial credit".
type TriggerDecisionToken struct {
	RunNumber     uint32
	TriggerNumber uint64
}

func (tok TriggerDecisionToken) MarshalTDAQ() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := wire.NewEncoder(buf)
	enc.WriteU32(tok.RunNumber)
	enc.WriteU64(tok.TriggerNumber)
	return buf.Bytes(), enc.Err()
}

func (tok *TriggerDecisionToken) UnmarshalTDAQ(p []byte) error {
	dec := wire.NewDecoder(bytes.NewReader(p))
	tok.RunNumber = dec.ReadU32()
	tok.TriggerNumber = dec.ReadU64()
	return dec.Err()
}

var (
	_ Marshaler   = DataRequest{}
	_ Unmarshaler = (*DataRequest)(nil)
	_ Marshaler   = TriggerInhibit{}
	_ Unmarshaler = (*TriggerInhibit)(nil)
	_ Marshaler   = TriggerDecisionToken{}
	_ Unmarshaler = (*TriggerDecisionToken)(nil)
)
