// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trigger // import "github.com/go-daq/tdaq-trigger/trigger"

import (
	"bytes"

	"github.com/go-daq/tdaq-trigger/wire"
)

// ComponentRequest asks one readout component for the window
// [WindowBegin, WindowEnd].
type ComponentRequest struct {
	Component   string
	WindowBegin Timestamp
	WindowEnd   Timestamp
}

// TriggerDecision is the MLT's output: instructs readout to assemble
// fragments for the listed components.
type TriggerDecision struct {
	TriggerNumber    uint64
	RunNumber        uint32
	TriggerTimestamp Timestamp
	TriggerType      uint16
	ReadoutType      string
	Requests         []ComponentRequest
}

func (td TriggerDecision) MarshalTDAQ() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := wire.NewEncoder(buf)
	enc.WriteU64(td.TriggerNumber)
	enc.WriteU32(td.RunNumber)
	enc.WriteU64(uint64(td.TriggerTimestamp))
	enc.WriteU16(td.TriggerType)
	enc.WriteStr(td.ReadoutType)
	enc.WriteU64(uint64(len(td.Requests)))
	for _, r := range td.Requests {
		enc.WriteStr(r.Component)
		enc.WriteU64(uint64(r.WindowBegin))
		enc.WriteU64(uint64(r.WindowEnd))
	}
	return buf.Bytes(), enc.Err()
}

func (td *TriggerDecision) UnmarshalTDAQ(p []byte) error {
	dec := wire.NewDecoder(bytes.NewReader(p))
	td.TriggerNumber = dec.ReadU64()
	td.RunNumber = dec.ReadU32()
	td.TriggerTimestamp = Timestamp(dec.ReadU64())
	td.TriggerType = dec.ReadU16()
	td.ReadoutType = dec.ReadStr()

	n := int(dec.ReadU64())
	td.Requests = make([]ComponentRequest, n)
	for i := range td.Requests {
		td.Requests[i] = ComponentRequest{
			Component:   dec.ReadStr(),
			WindowBegin: Timestamp(dec.ReadU64()),
			WindowEnd:   Timestamp(dec.ReadU64()),
		}
	}
	return dec.Err()
}

var (
	_ Marshaler   = TriggerDecision{}
	_ Unmarshaler = (*TriggerDecision)(nil)
)
