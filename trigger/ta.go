// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trigger // import "github.com/go-daq/tdaq-trigger/trigger"

import (
	"bytes"

	"github.com/go-daq/tdaq-trigger/wire"
)

// TriggerActivity is a spatial/temporal cluster of TriggerPrimitives.
type TriggerActivity struct {
	Start        Timestamp
	End          Timestamp
	ChannelStart uint32
	ChannelEnd   uint32
	Inputs       []TriggerPrimitive
}

// TimeStart implements Carrier.
func (ta TriggerActivity) TimeStart() Timestamp { return ta.Start }

// SizeBytes implements Carrier.
func (ta TriggerActivity) SizeBytes() int {
	n := 8*2 + 4*2 + 8
	for _, tp := range ta.Inputs {
		n += tp.SizeBytes()
	}
	return n
}

func (ta TriggerActivity) MarshalTDAQ() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := wire.NewEncoder(buf)
	enc.WriteU64(uint64(ta.Start))
	enc.WriteU64(uint64(ta.End))
	enc.WriteU32(ta.ChannelStart)
	enc.WriteU32(ta.ChannelEnd)
	enc.WriteU64(uint64(len(ta.Inputs)))
	for _, tp := range ta.Inputs {
		raw, err := tp.MarshalTDAQ()
		if err != nil {
			return nil, err
		}
		enc.WriteBytes(raw)
	}
	return buf.Bytes(), enc.Err()
}

func (ta *TriggerActivity) UnmarshalTDAQ(p []byte) error {
	dec := wire.NewDecoder(bytes.NewReader(p))
	ta.Start = Timestamp(dec.ReadU64())
	ta.End = Timestamp(dec.ReadU64())
	ta.ChannelStart = dec.ReadU32()
	ta.ChannelEnd = dec.ReadU32()

	n := int(dec.ReadU64())
	ta.Inputs = make([]TriggerPrimitive, n)
	for i := range ta.Inputs {
		raw := dec.ReadBytes()
		if dec.Err() != nil {
			return dec.Err()
		}
		if err := ta.Inputs[i].UnmarshalTDAQ(raw); err != nil {
			return err
		}
	}
	return dec.Err()
}

var (
	_ Carrier = TriggerActivity{}
)
