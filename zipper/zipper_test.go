// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipper_test // import "github.com/go-daq/tdaq-trigger/zipper"

import (
	"testing"
	"time"

	"github.com/go-daq/tdaq-trigger/config"
	"github.com/go-daq/tdaq-trigger/trigger"
	"github.com/go-daq/tdaq-trigger/zipper"
)

func tpSet(origin trigger.StreamId, start trigger.Timestamp) trigger.Set[trigger.TriggerPrimitive] {
	return trigger.Set[trigger.TriggerPrimitive]{
		Origin:    origin,
		StartTime: start,
		EndTime:   start + 1,
		Kind:      trigger.Payload,
		Objects:   []trigger.TriggerPrimitive{{Start: start}},
	}
}

func TestTwoStreamMerge(t *testing.T) {
	z := zipper.New[trigger.TriggerPrimitive](nil)
	err := z.Configure(config.Zipper{MaxLatencyMS: 100, Cardinality: 2})
	if err != nil {
		t.Fatalf("could not configure zipper: %+v", err)
	}

	s1 := trigger.NewStreamId(1, 1, 1)
	s2 := trigger.NewStreamId(1, 1, 2)

	for _, ts := range []trigger.Timestamp{10, 12} {
		z.Feed(tpSet(s1, ts))
	}
	for _, ts := range []trigger.Timestamp{11, 13, 14} {
		z.Feed(tpSet(s2, ts))
	}

	out := make(chan trigger.Set[trigger.TriggerPrimitive], 16)
	n := z.DrainWaiting(out)
	close(out)

	var got []trigger.Timestamp
	for s := range out {
		got = append(got, s.StartTime)
	}

	// 13 and 14 stay queued: after 12, stream s1 has no head left.
	want := []trigger.Timestamp{10, 11, 12}
	if n != len(want) {
		t.Fatalf("drained %d sets, want %d", n, len(want))
	}
	for i, ts := range want {
		if got[i] != ts {
			t.Fatalf("out[%d] = %d, want %d (full=%v)", i, got[i], ts, got)
		}
	}
}

func TestCardinalityBlockedDrain(t *testing.T) {
	z := zipper.New[trigger.TriggerPrimitive](nil)
	err := z.Configure(config.Zipper{MaxLatencyMS: 50, Cardinality: 2})
	if err != nil {
		t.Fatalf("could not configure zipper: %+v", err)
	}

	s1 := trigger.NewStreamId(1, 1, 1)
	for _, ts := range []trigger.Timestamp{10, 20, 30} {
		z.Feed(tpSet(s1, ts))
	}

	out := make(chan trigger.Set[trigger.TriggerPrimitive], 16)

	if n := z.DrainWaiting(out); n != 0 {
		t.Fatalf("expected no output before the latency bound fires, got %d", n)
	}

	time.Sleep(80 * time.Millisecond)

	n := z.DrainPrompt(out)
	close(out)
	if n != 3 {
		t.Fatalf("drained %d sets after latency bound, want 3", n)
	}

	want := []trigger.Timestamp{10, 20, 30}
	i := 0
	for s := range out {
		if s.StartTime != want[i] {
			t.Fatalf("out[%d] = %d, want %d", i, s.StartTime, want[i])
		}
		i++
	}
}

func TestTardyFeedRejected(t *testing.T) {
	z := zipper.New[trigger.TriggerPrimitive](nil)
	_ = z.Configure(config.Zipper{MaxLatencyMS: 100, Cardinality: 1})

	s1 := trigger.NewStreamId(1, 1, 1)
	out := make(chan trigger.Set[trigger.TriggerPrimitive], 4)
	z.Feed(tpSet(s1, 100))
	z.DrainWaiting(out)

	if accepted := z.Feed(tpSet(s1, 50)); accepted {
		t.Fatalf("expected a tardy set (50 < origin 100) to be rejected")
	}

	stats := z.Stats()
	if stats[s1] != 1 {
		t.Fatalf("tardy counter for %v = %d, want 1", s1, stats[s1])
	}
}

func TestHeartbeatBeforePayloadTieBreak(t *testing.T) {
	z := zipper.New[trigger.TriggerPrimitive](nil)
	_ = z.Configure(config.Zipper{MaxLatencyMS: 100, Cardinality: 2})

	s1 := trigger.NewStreamId(1, 1, 1)
	s2 := trigger.NewStreamId(1, 1, 2)

	z.Feed(tpSet(s1, 10))
	z.Feed(trigger.NewHeartbeat[trigger.TriggerPrimitive](s2, 0, 0, 10))

	out := make(chan trigger.Set[trigger.TriggerPrimitive], 4)
	z.DrainWaiting(out)
	close(out)

	first := <-out
	if !first.IsHeartbeat() {
		t.Fatalf("expected the heartbeat at the same StartTime to be emitted first")
	}
}
