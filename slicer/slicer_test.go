// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slicer_test // import "github.com/go-daq/tdaq-trigger/slicer"

import (
	"testing"

	"github.com/go-daq/tdaq-trigger/config"
	"github.com/go-daq/tdaq-trigger/slicer"
	"github.com/go-daq/tdaq-trigger/trigger"
)

func newSlicer(t *testing.T) *slicer.Slicer[trigger.TriggerPrimitive] {
	t.Helper()
	s := slicer.New[trigger.TriggerPrimitive](nil, trigger.NewStreamId(1, 1, 1), 7)
	if err := s.Configure(config.Slicer{WindowTicks: 10, BufferTicks: 2}); err != nil {
		t.Fatalf("could not configure slicer: %+v", err)
	}
	return s
}

func TestFlushOrdersByWindow(t *testing.T) {
	s := newSlicer(t)

	s.Buffer([]trigger.TriggerPrimitive{
		{Start: 3}, {Start: 7}, {Start: 1},
	})
	s.Buffer([]trigger.TriggerPrimitive{{Start: 25}})

	if s.Ready() {
		t.Fatalf("slicer should not be ready until the grace period clears")
	}

	s.Buffer([]trigger.TriggerPrimitive{{Start: 13}})

	if !s.Ready() {
		t.Fatalf("slicer should be ready: max observed (25) exceeds 0+10+2")
	}

	out, ok := s.Flush()
	if !ok {
		t.Fatalf("expected a flush to succeed")
	}
	if out.StartTime != 0 || out.EndTime != 10 {
		t.Fatalf("window = [%d,%d), want [0,10)", out.StartTime, out.EndTime)
	}
	if len(out.Objects) != 3 {
		t.Fatalf("got %d objects in first window, want 3", len(out.Objects))
	}
	for i, obj := range out.Objects {
		if i > 0 && obj.Start < out.Objects[i-1].Start {
			t.Fatalf("objects not time-ordered: %v", out.Objects)
		}
	}

	if s.NextWindowStart() != 10 {
		t.Fatalf("next_window_start = %d, want 10", s.NextWindowStart())
	}
}

func TestTardyObjectDiscarded(t *testing.T) {
	s := newSlicer(t)
	s.Buffer([]trigger.TriggerPrimitive{{Start: 50}})
	s.Buffer([]trigger.TriggerPrimitive{{Start: 500}})
	s.Flush() // advances next_window_start to 10

	s.Buffer([]trigger.TriggerPrimitive{{Start: 5}})
	out, ok := s.Flush()
	if !ok {
		t.Fatalf("expected second flush to succeed")
	}
	for _, obj := range out.Objects {
		if obj.Start == 5 {
			t.Fatalf("tardy object (t=5) should have been discarded, found in %v", out.Objects)
		}
	}
}

func TestHeartbeatDoesNotAdvanceWindow(t *testing.T) {
	s := newSlicer(t)
	s.BufferHeartbeat(trigger.NewHeartbeat[trigger.TriggerPrimitive](trigger.NewStreamId(1, 1, 2), 7, 0, 0))

	if !s.Ready() {
		t.Fatalf("slicer should be ready: heartbeat queued at next_window_start")
	}

	out, ok := s.Flush()
	if !ok || !out.IsHeartbeat() {
		t.Fatalf("expected a heartbeat Set to flush")
	}
	if s.NextWindowStart() != 0 {
		t.Fatalf("next_window_start advanced after a heartbeat flush: %d", s.NextWindowStart())
	}
}

func TestHeartbeatForFutureWindowResolvesLater(t *testing.T) {
	s := newSlicer(t)

	// A heartbeat for window [20,30) arrives well before that window
	// is current; it must stay staged rather than be discarded.
	s.BufferHeartbeat(trigger.NewHeartbeat[trigger.TriggerPrimitive](trigger.NewStreamId(1, 1, 2), 7, 0, 20))

	if !s.Ready() {
		t.Fatalf("slicer should be ready: the staged heartbeat at 20 clears window 0's grace period (0+10+2)")
	}

	s.Buffer([]trigger.TriggerPrimitive{{Start: 1}})
	s.Buffer([]trigger.TriggerPrimitive{{Start: 25}})

	out, ok := s.Flush()
	if !ok || out.IsHeartbeat() {
		t.Fatalf("expected window 0 to flush as a payload Set, not a heartbeat")
	}
	if s.NextWindowStart() != 10 {
		t.Fatalf("next_window_start = %d, want 10", s.NextWindowStart())
	}

	out, ok = s.Flush()
	if !ok || out.IsHeartbeat() {
		t.Fatalf("expected window 10 to flush as a payload Set, not a heartbeat")
	}
	if s.NextWindowStart() != 20 {
		t.Fatalf("next_window_start = %d, want 20", s.NextWindowStart())
	}

	out, ok = s.Flush()
	if !ok || !out.IsHeartbeat() {
		t.Fatalf("expected the staged heartbeat for window 20 to resolve now that next_window_start caught up to it")
	}
	if s.NextWindowStart() != 20 {
		t.Fatalf("next_window_start advanced after a heartbeat flush: %d", s.NextWindowStart())
	}
}

func TestMisalignedHeartbeatDiscarded(t *testing.T) {
	s := newSlicer(t)
	s.BufferHeartbeat(trigger.NewHeartbeat[trigger.TriggerPrimitive](trigger.NewStreamId(1, 1, 2), 7, 0, 3))
	if s.Ready() {
		t.Fatalf("a heartbeat not aligned to window_ticks must be discarded, not queued")
	}
}
