// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trigger_test // import "github.com/go-daq/tdaq-trigger/trigger"

import (
	"reflect"
	"testing"

	"github.com/go-daq/tdaq-trigger/trigger"
)

func TestTPRoundTrip(t *testing.T) {
	want := trigger.TriggerPrimitive{
		Start:             100,
		TimeOverThreshold: 5,
		TimePeak:          102,
		Channel:           7,
		AdcIntegral:       1234,
		AdcPeak:           99,
		DetId:             3,
		Type:              trigger.TPTypeTPCHit,
	}

	raw, err := want.MarshalTDAQ()
	if err != nil {
		t.Fatalf("could not marshal TP: %+v", err)
	}

	var got trigger.TriggerPrimitive
	if err := got.UnmarshalTDAQ(raw); err != nil {
		t.Fatalf("could not unmarshal TP: %+v", err)
	}

	if !reflect.DeepEqual(want, got) {
		t.Fatalf("round-trip mismatch.\ngot = %#v\nwant= %#v\n", got, want)
	}
}

func TestSetRoundTrip(t *testing.T) {
	want := trigger.Set[trigger.TriggerPrimitive]{
		Origin:    trigger.NewStreamId(1, 2, 3),
		RunNumber: 42,
		SeqNo:     7,
		StartTime: 100,
		EndTime:   200,
		Kind:      trigger.Payload,
		Objects: []trigger.TriggerPrimitive{
			{Start: 110, Channel: 1},
			{Start: 150, Channel: 2},
		},
	}

	raw, err := want.MarshalTDAQ()
	if err != nil {
		t.Fatalf("could not marshal set: %+v", err)
	}

	var got trigger.Set[trigger.TriggerPrimitive]
	err = got.UnmarshalTDAQ(raw, func(b []byte) (trigger.TriggerPrimitive, error) {
		var tp trigger.TriggerPrimitive
		err := tp.UnmarshalTDAQ(b)
		return tp, err
	})
	if err != nil {
		t.Fatalf("could not unmarshal set: %+v", err)
	}

	if !reflect.DeepEqual(want, got) {
		t.Fatalf("round-trip mismatch.\ngot = %#v\nwant= %#v\n", got, want)
	}
}

func TestHeartbeatSet(t *testing.T) {
	hb := trigger.NewHeartbeat[trigger.TriggerPrimitive](trigger.NewStreamId(1, 1, 1), 1, 0, 500)
	if !hb.IsHeartbeat() {
		t.Fatalf("expected a heartbeat set")
	}
	if len(hb.Objects) != 0 {
		t.Fatalf("expected no objects in a heartbeat set")
	}
	if hb.StartTime != hb.EndTime {
		t.Fatalf("expected StartTime == EndTime for a heartbeat")
	}
}

func TestStreamIdPacking(t *testing.T) {
	id := trigger.NewStreamId(10, 20, 30)
	if id.System() != 10 || id.Region() != 20 || id.Element() != 30 {
		t.Fatalf("StreamId packing broken: %v", id)
	}
}

func TestReadoutInterval(t *testing.T) {
	tc := trigger.TriggerCandidate{Candidate: 50}
	start, end := tc.ReadoutInterval(0, 100)
	if start != 50 || end != 150 {
		t.Fatalf("ReadoutInterval = [%d,%d], want [50,150]", start, end)
	}

	// a before-margin larger than the candidate time clamps to zero,
	// rather than wrapping around the unsigned Timestamp.
	tc2 := trigger.TriggerCandidate{Candidate: 5}
	start2, _ := tc2.ReadoutInterval(10, 0)
	if start2 != 0 {
		t.Fatalf("ReadoutInterval start = %d, want 0 (clamped)", start2)
	}
}
