// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package trigger implements the data model of the trigger decision
// pipeline: trigger primitives, activities, candidates, the sets that
// carry them between pipeline stages, and the data-request/decision
// messages exchanged with downstream readout.
package trigger // import "github.com/go-daq/tdaq-trigger/trigger"

import "fmt"

// Timestamp is a 64-bit monotonic tick count from a detector clock
// (nominal 50 MHz). It is the universal ordering key throughout the
// pipeline.
type Timestamp uint64

// Marshaler is implemented by every value that crosses a queue or
// network boundary.
type Marshaler interface {
	MarshalTDAQ() ([]byte, error)
}

// Unmarshaler is implemented by every value that crosses a queue or
// network boundary.
type Unmarshaler interface {
	UnmarshalTDAQ([]byte) error
}

// Carrier is the capability the Zipper, Slicer, and Latency Buffer need
// from any type they carry (TriggerPrimitive, TriggerActivity,
// TriggerCandidate): a time-ordering key, a size for bookkeeping, and
// the ability to serialize itself. A single generic component,
// parameterized over Carrier, implements each of those three
// subsystems; no tagged union of TP/TA/TC is needed.
type Carrier interface {
	TimeStart() Timestamp
	SizeBytes() int
	Marshaler
}

// StreamId identifies one producer in a Zipper's fan-in: a
// (system, region, element) triple packed into a 64-bit integer.
type StreamId uint64

// NewStreamId packs a (system, region, element) triple into a StreamId.
func NewStreamId(system, region, element uint16) StreamId {
	return StreamId(uint64(system)<<32 | uint64(region)<<16 | uint64(element))
}

func (id StreamId) System() uint16  { return uint16(id >> 32) }
func (id StreamId) Region() uint16  { return uint16(id >> 16) }
func (id StreamId) Element() uint16 { return uint16(id) }

func (id StreamId) String() string {
	return fmt.Sprintf("stream(sys=%d,region=%d,elt=%d)", id.System(), id.Region(), id.Element())
}

// SetKind distinguishes a Payload set (carries objects) from a
// Heartbeat set (carries none, asserts "no data up to this timestamp").
type SetKind uint8

const (
	Payload SetKind = iota
	Heartbeat
)

func (k SetKind) String() string {
	switch k {
	case Payload:
		return "payload"
	case Heartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}
