// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trigger // import "github.com/go-daq/tdaq-trigger/trigger"

import (
	"bytes"

	"github.com/go-daq/tdaq-trigger/wire"
)

// TPType identifies the detector-signal algorithm that formed a
// TriggerPrimitive.
type TPType uint8

const (
	TPTypeUnknown TPType = iota
	TPTypeTPCHit
	TPTypePDSHit
	TPTypeChannelIdle
)

// TriggerPrimitive is the smallest detector-signal unit the pipeline
// carries: a single pulse descriptor.
type TriggerPrimitive struct {
	Start             Timestamp
	TimeOverThreshold Timestamp
	TimePeak          Timestamp
	Channel           uint32
	AdcIntegral       uint32
	AdcPeak           uint32
	DetId             uint32
	Type              TPType
}

// TimeStart implements Carrier.
func (tp TriggerPrimitive) TimeStart() Timestamp { return tp.Start }

// SizeBytes implements Carrier; it is the fixed encoded size of a TP.
func (tp TriggerPrimitive) SizeBytes() int {
	return 8*3 + 4*4 + 1
}

func (tp TriggerPrimitive) MarshalTDAQ() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := wire.NewEncoder(buf)
	enc.WriteU64(uint64(tp.Start))
	enc.WriteU64(uint64(tp.TimeOverThreshold))
	enc.WriteU64(uint64(tp.TimePeak))
	enc.WriteU32(tp.Channel)
	enc.WriteU32(tp.AdcIntegral)
	enc.WriteU32(tp.AdcPeak)
	enc.WriteU32(tp.DetId)
	enc.WriteU8(uint8(tp.Type))
	return buf.Bytes(), enc.Err()
}

func (tp *TriggerPrimitive) UnmarshalTDAQ(p []byte) error {
	dec := wire.NewDecoder(bytes.NewReader(p))
	tp.Start = Timestamp(dec.ReadU64())
	tp.TimeOverThreshold = Timestamp(dec.ReadU64())
	tp.TimePeak = Timestamp(dec.ReadU64())
	tp.Channel = dec.ReadU32()
	tp.AdcIntegral = dec.ReadU32()
	tp.AdcPeak = dec.ReadU32()
	tp.DetId = dec.ReadU32()
	tp.Type = TPType(dec.ReadU8())
	return dec.Err()
}

var (
	_ Carrier = TriggerPrimitive{}
)
