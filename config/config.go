// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds the configuration types handed to each trigger
// component's Configure/OnConfig handler.
package config // import "github.com/go-daq/tdaq-trigger/config"

import (
	"time"

	"github.com/go-daq/tdaq-trigger/log"
)

// Process describes how a trigger-pipeline process should be
// configured from the command line.
type Process struct {
	Name   string    // name of the process
	Level  log.Level // verbosity level of the process
	Net    string    // network used for the TDAQ network ("tcp", "unix")
	RunCtl string    // address of the run-ctl of the flock of processes

	Args []string // additional flag arguments
}

// Zipper configures a Zipper[T]: a k-way time-ordered merger of
// StreamId-tagged input queues.
type Zipper struct {
	MaxLatencyMS int64  // wall-clock bound, in ms, before a stale head drains anyway
	Cardinality  int    // number of distinct StreamIds expected before draining eagerly
	RegionId     uint16 // output StreamId region
	ElementId    uint16 // output StreamId element
}

// Slicer configures a Slicer[T]: a heartbeat-driven windowed set
// builder over a single merged stream.
type Slicer struct {
	WindowTicks uint64 // window size, in detector ticks
	BufferTicks uint64 // grace period past window end, in detector ticks
}

// HeartbeatGen configures a FakeHeartbeatGenerator.
type HeartbeatGen struct {
	ClockFrequencyHz      float64       // detector clock frequency
	HeartbeatInterval     uint64        // heartbeat period, in detector ticks
	HeartbeatSendOffsetMS int64         // ms subtracted from the extrapolated boundary
	PollPeriod            time.Duration // ticker period driving the extrapolation loop
}

// LatencyBuffer configures a latency.Buffer[T] plus its DataRequest
// handler.
type LatencyBuffer struct {
	Capacity  int    // max elements retained; insertion beyond this evicts the oldest
	RegionId  uint16 // StreamId region this buffer serves
	ElementId uint16 // StreamId element this buffer serves
}

// ReadoutWindow is one row of the MLT's c0..c7 table: the readout
// window applied to a TriggerCandidate of the given type.
type ReadoutWindow struct {
	CandidateType uint8 // trigger.TCType
	TimeBefore    uint64
	TimeAfter     uint64
}

// MLT configures the Module-Level Trigger.
type MLT struct {
	Links               []string        // readout components to request per TriggerDecision
	DFOConnection       string          // endpoint name for TriggerDecision output
	DFOBusyConnection   string          // endpoint name for TriggerInhibit input
	HSITriggerTypePassthrough bool      // select the trigger_type encoding rule for HSI events
	ReadoutWindows      []ReadoutWindow // the c0..c7 table
	BufferTimeout       time.Duration   // wall-clock time to wait for late TCs
	TDOutOfTimeout      bool            // true: keep TDs overlapping a recently-sent TD; false: drop them
	RecentlySentWindow  int             // size of the "recently sent" TD deque; defaults to 20
}
