// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hbeat_test // import "github.com/go-daq/tdaq-trigger/hbeat"

import (
	"testing"
	"time"

	"github.com/go-daq/tdaq-trigger/config"
	"github.com/go-daq/tdaq-trigger/hbeat"
	"github.com/go-daq/tdaq-trigger/trigger"
)

func TestPendingHeartbeats(t *testing.T) {
	g := hbeat.New[trigger.TriggerPrimitive](nil, trigger.NewStreamId(1, 1, 1), 1)
	g.Configure(config.HeartbeatGen{
		ClockFrequencyHz:      1000, // 1 tick per ms, to keep the math easy
		HeartbeatInterval:     100,
		HeartbeatSendOffsetMS: 0,
	})

	t0 := time.Now()
	g.Observe(0, t0)

	pending := g.Pending(t0.Add(250*time.Millisecond), nil)
	want := []trigger.Timestamp{100, 200}
	if len(pending) != len(want) {
		t.Fatalf("pending = %v, want %v", pending, want)
	}
	for i, ts := range want {
		if pending[i] != ts {
			t.Fatalf("pending[%d] = %d, want %d", i, pending[i], ts)
		}
	}
}

func TestEmitBeforePreservesOrdering(t *testing.T) {
	g := hbeat.New[trigger.TriggerPrimitive](nil, trigger.NewStreamId(1, 1, 1), 1)
	g.Configure(config.HeartbeatGen{ClockFrequencyHz: 1000, HeartbeatInterval: 100})

	t0 := time.Now()
	g.Observe(0, t0)

	out := make(chan trigger.Set[trigger.TriggerPrimitive], 8)
	payload := trigger.Set[trigger.TriggerPrimitive]{
		Origin:    trigger.NewStreamId(1, 1, 1),
		StartTime: 150,
		EndTime:   151,
		Kind:      trigger.Payload,
		Objects:   []trigger.TriggerPrimitive{{Start: 150}},
	}
	g.EmitBefore(t0.Add(200*time.Millisecond), payload, out)
	close(out)

	var kinds []trigger.SetKind
	for s := range out {
		kinds = append(kinds, s.Kind)
	}
	if len(kinds) < 2 || kinds[len(kinds)-1] != trigger.Payload {
		t.Fatalf("expected the payload last, got kinds=%v", kinds)
	}
	for _, k := range kinds[:len(kinds)-1] {
		if k != trigger.Heartbeat {
			t.Fatalf("expected only heartbeats before the payload, got %v", kinds)
		}
	}
}

func TestLastSeenAccessor(t *testing.T) {
	g := hbeat.New[trigger.TriggerPrimitive](nil, trigger.NewStreamId(1, 1, 1), 1)
	now := time.Now()
	g.Observe(42, now)

	ts, wall := g.LastSeen()
	if ts != 42 {
		t.Fatalf("LastSeen timestamp = %d, want 42", ts)
	}
	if !wall.Equal(now) {
		t.Fatalf("LastSeen wall-clock mismatch")
	}
}
