// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package slicer transforms a time-ordered stream of raw per-region
// objects into uniform fixed-duration windows, guaranteeing that each
// window is emitted exactly once, on time, even when no payload falls
// within it.
package slicer // import "github.com/go-daq/tdaq-trigger/slicer"

import (
	"sync"

	"github.com/google/btree"
	"golang.org/x/xerrors"

	"github.com/go-daq/tdaq-trigger/config"
	"github.com/go-daq/tdaq-trigger/log"
	"github.com/go-daq/tdaq-trigger/trigger"
)

// item is one staged object, ordered by (time_start, insertion
// sequence) so that objects sharing a time_start keep FIFO order.
type item[T trigger.Carrier] struct {
	key Timestamp
	seq uint64
	obj T
}

// Timestamp aliases trigger.Timestamp to keep item's field declaration
// readable.
type Timestamp = trigger.Timestamp

func less[T trigger.Carrier](a, b item[T]) bool {
	if a.key != b.key {
		return a.key < b.key
	}
	return a.seq < b.seq
}

func lessTimestamp(a, b Timestamp) bool { return a < b }

// Slicer buffers objects of a single Carrier type and emits them as
// fixed-width trigger.Set[T] windows.
type Slicer[T trigger.Carrier] struct {
	msg log.MsgStream
	cfg config.Slicer

	mu              sync.Mutex
	heap            *btree.BTreeG[item[T]]
	seq             uint64
	nextWindowStart Timestamp
	maxObserved     Timestamp

	// heartbeats holds every buffered heartbeat's StartTime, ordered.
	// A heartbeat for a window beyond the one currently pending stays
	// here until next_window_start catches up to it; Flush/ready check
	// the minimum against next_window_start rather than assuming the
	// most recently buffered heartbeat is the relevant one.
	heartbeats *btree.BTreeG[Timestamp]

	origin    trigger.StreamId
	runNumber uint32
	outSeqNo  uint64
}

// New creates a Slicer tagged with origin/run for its output Sets.
func New[T trigger.Carrier](msg log.MsgStream, origin trigger.StreamId, run uint32) *Slicer[T] {
	if msg == nil {
		msg = log.Default
	}
	return &Slicer[T]{
		msg:        msg,
		heap:       btree.NewG(32, less[T]),
		heartbeats: btree.NewG(32, lessTimestamp),
		origin:     origin,
		runNumber:  run,
	}
}

// Configure applies cfg and resets the Slicer's window cursor.
func (s *Slicer[T]) Configure(cfg config.Slicer) error {
	if cfg.WindowTicks == 0 {
		return xerrors.Errorf("slicer: invalid window_ticks %d", cfg.WindowTicks)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.nextWindowStart = 0
	s.maxObserved = 0
	s.heap = btree.NewG(32, less[T])
	s.heartbeats = btree.NewG(32, lessTimestamp)
	return nil
}

// windowOf returns the aligned window start containing t.
func (s *Slicer[T]) windowOf(t Timestamp) Timestamp {
	return (t / Timestamp(s.cfg.WindowTicks)) * Timestamp(s.cfg.WindowTicks)
}

// Buffer inserts objects into the staging structure. Objects whose
// time_start predates next_window_start are tardy: logged and
// discarded.
func (s *Slicer[T]) Buffer(objects []T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, obj := range objects {
		t := obj.TimeStart()
		if t < s.nextWindowStart {
			s.msg.Warnf("slicer: tardy object at t=%d (next_window_start=%d), discarded", t, s.nextWindowStart)
			continue
		}
		s.seq++
		s.heap.ReplaceOrInsert(item[T]{key: t, seq: s.seq, obj: obj})
		if t > s.maxObserved {
			s.maxObserved = t
		}
	}
}

// BufferHeartbeat stages a heartbeat at hb.StartTime for later
// resolution against next_window_start. The timestamp must be a
// multiple of window_ticks and no earlier than next_window_start;
// otherwise it is discarded with a warning. A heartbeat for a window
// that has not yet been reached is kept, not dropped, so it can still
// resolve the window once next_window_start catches up to it.
func (s *Slicer[T]) BufferHeartbeat(hb trigger.Set[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hb.StartTime%Timestamp(s.cfg.WindowTicks) != 0 {
		s.msg.Warnf("slicer: heartbeat at t=%d not a multiple of window_ticks=%d, discarded", hb.StartTime, s.cfg.WindowTicks)
		return
	}
	if hb.StartTime < s.nextWindowStart {
		s.msg.Warnf("slicer: tardy heartbeat at t=%d (next_window_start=%d), discarded", hb.StartTime, s.nextWindowStart)
		return
	}
	s.heartbeats.ReplaceOrInsert(hb.StartTime)
	if hb.StartTime > s.maxObserved {
		s.maxObserved = hb.StartTime
	}
}

// Ready reports whether the next window can be flushed: either the
// earliest staged heartbeat matches next_window_start, or the largest
// observed timestamp has cleared the window's grace period.
func (s *Slicer[T]) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready()
}

func (s *Slicer[T]) ready() bool {
	if top, ok := s.heartbeats.Min(); ok && top == s.nextWindowStart {
		return true
	}
	return s.maxObserved > s.nextWindowStart+Timestamp(s.cfg.WindowTicks)+Timestamp(s.cfg.BufferTicks)
}

// Flush emits the next Set, if Ready. A queued heartbeat at
// next_window_start is emitted as an empty Heartbeat Set without
// advancing next_window_start, so that any payload belonging to the
// same window is still emitted immediately after. Otherwise a Payload
// Set covering [next_window_start, next_window_start+window_ticks) is
// emitted and next_window_start advances.
func (s *Slicer[T]) Flush() (trigger.Set[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready() {
		return trigger.Set[T]{}, false
	}

	if top, ok := s.heartbeats.Min(); ok && top == s.nextWindowStart {
		s.heartbeats.DeleteMin()
		s.outSeqNo++
		return trigger.NewHeartbeat[T](s.origin, s.runNumber, s.outSeqNo, s.nextWindowStart), true
	}

	begin := s.nextWindowStart
	end := begin + Timestamp(s.cfg.WindowTicks)

	var objs []T
	for {
		it, ok := s.heap.Min()
		if !ok || it.key >= end {
			break
		}
		s.heap.DeleteMin()
		objs = append(objs, it.obj)
	}

	s.nextWindowStart += Timestamp(s.cfg.WindowTicks)
	s.outSeqNo++

	// Any heartbeat still staged below the new cursor can never match
	// next_window_start again; drop it instead of growing unbounded.
	for {
		top, ok := s.heartbeats.Min()
		if !ok || top >= s.nextWindowStart {
			break
		}
		s.heartbeats.DeleteMin()
	}

	return trigger.Set[T]{
		Origin:    s.origin,
		RunNumber: s.runNumber,
		SeqNo:     s.outSeqNo,
		StartTime: begin,
		EndTime:   end,
		Kind:      trigger.Payload,
		Objects:   objs,
	}, true
}

// NextWindowStart reports the current window cursor, mostly useful for
// tests and status reporting.
func (s *Slicer[T]) NextWindowStart() Timestamp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextWindowStart
}
