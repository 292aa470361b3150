// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trigger // import "github.com/go-daq/tdaq-trigger/trigger"

import (
	"bytes"

	"github.com/go-daq/tdaq-trigger/wire"
)

// TCType identifies the algorithm family that produced a
// TriggerCandidate. kTiming candidates get special treatment in the HSI
// passthrough trigger-type encoding the mlt package applies when it
// builds a TriggerDecision.
type TCType uint8

const (
	TCTypeUnknown TCType = iota
	TCTypeTiming
	TCTypeTPCLowE
	TCTypeSupernova
	TCTypeRandom
	TCTypePrescale
	TCTypeDBSCAN
	TCTypeHorizontalMuon
)

// TriggerCandidate is an event-of-interest candidate: a cluster of
// TriggerActivities bounded by a readout interval.
type TriggerCandidate struct {
	Start     Timestamp
	End       Timestamp
	Candidate Timestamp // time_candidate: the timestamp used to seed a TD's trigger_timestamp
	DetId     uint32
	Type      TCType
	Algorithm string
	Inputs    []TriggerActivity
}

// TimeStart implements Carrier.
func (tc TriggerCandidate) TimeStart() Timestamp { return tc.Start }

// SizeBytes implements Carrier.
func (tc TriggerCandidate) SizeBytes() int {
	n := 8*3 + 4 + 1 + 8 + len(tc.Algorithm) + 8
	for _, ta := range tc.Inputs {
		n += ta.SizeBytes()
	}
	return n
}

func (tc TriggerCandidate) MarshalTDAQ() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := wire.NewEncoder(buf)
	enc.WriteU64(uint64(tc.Start))
	enc.WriteU64(uint64(tc.End))
	enc.WriteU64(uint64(tc.Candidate))
	enc.WriteU32(tc.DetId)
	enc.WriteU8(uint8(tc.Type))
	enc.WriteStr(tc.Algorithm)
	enc.WriteU64(uint64(len(tc.Inputs)))
	for _, ta := range tc.Inputs {
		raw, err := ta.MarshalTDAQ()
		if err != nil {
			return nil, err
		}
		enc.WriteBytes(raw)
	}
	return buf.Bytes(), enc.Err()
}

func (tc *TriggerCandidate) UnmarshalTDAQ(p []byte) error {
	dec := wire.NewDecoder(bytes.NewReader(p))
	tc.Start = Timestamp(dec.ReadU64())
	tc.End = Timestamp(dec.ReadU64())
	tc.Candidate = Timestamp(dec.ReadU64())
	tc.DetId = dec.ReadU32()
	tc.Type = TCType(dec.ReadU8())
	tc.Algorithm = dec.ReadStr()

	n := int(dec.ReadU64())
	tc.Inputs = make([]TriggerActivity, n)
	for i := range tc.Inputs {
		raw := dec.ReadBytes()
		if dec.Err() != nil {
			return dec.Err()
		}
		if err := tc.Inputs[i].UnmarshalTDAQ(raw); err != nil {
			return err
		}
	}
	return dec.Err()
}

// ReadoutInterval returns the [start, end] interval a TC of this type
// requests from readout, given the configured per-type before/after
// margins.
func (tc TriggerCandidate) ReadoutInterval(before, after Timestamp) (start, end Timestamp) {
	if tc.Candidate < before {
		start = 0
	} else {
		start = tc.Candidate - before
	}
	end = tc.Candidate + after
	return start, end
}

// HSIEvent describes a Hardware Signal Interface event: a timing/
// external trigger source reading that seeds a kTiming TriggerCandidate.
type HSIEvent struct {
	DetId     uint32
	SignalMap uint32
	Type      TCType
	Timestamp Timestamp
}

var (
	_ Carrier = TriggerCandidate{}
)
