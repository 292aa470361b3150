// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package zipper merges several per-StreamId ordered queues of
// trigger.Set[T] into a single stream whose StartTime is monotonically
// non-decreasing, subject to a configurable maximum latency.
package zipper // import "github.com/go-daq/tdaq-trigger/zipper"

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/go-daq/tdaq-trigger/config"
	"github.com/go-daq/tdaq-trigger/log"
	"github.com/go-daq/tdaq-trigger/trigger"
)

// node is one queued Set, timestamped with its arrival wall-clock so
// the max-latency drain bound can be evaluated.
type node[T trigger.Carrier] struct {
	set     trigger.Set[T]
	arrived time.Time
}

// kindOrder ranks a SetKind for the tie-break rule: a Heartbeat at
// StartTime t asserts "everything up to t has been seen", so it must
// be emitted before a Payload set that also starts at t.
func kindOrder(k trigger.SetKind) int {
	if k == trigger.Heartbeat {
		return 0
	}
	return 1
}

// Zipper merges K StreamId-tagged input queues of trigger.Set[T] into
// one time-ordered output. One Zipper is instantiated per carried type
// (TP, TA, TC); tagged variants of a single Zipper are unnecessary.
type Zipper[T trigger.Carrier] struct {
	msg log.MsgStream
	cfg config.Zipper

	mu      sync.Mutex
	streams map[trigger.StreamId]*list.List
	tardy   map[trigger.StreamId]uint64
	origin  trigger.Timestamp
	seqno   uint64
}

// New creates a Zipper that logs to msg.
func New[T trigger.Carrier](msg log.MsgStream) *Zipper[T] {
	if msg == nil {
		msg = log.Default
	}
	return &Zipper[T]{
		msg:     msg,
		streams: make(map[trigger.StreamId]*list.List),
		tardy:   make(map[trigger.StreamId]uint64),
	}
}

// Configure applies cfg and resets origin.
func (z *Zipper[T]) Configure(cfg config.Zipper) error {
	if cfg.Cardinality <= 0 {
		return xerrors.Errorf("zipper: invalid cardinality %d", cfg.Cardinality)
	}
	if cfg.MaxLatencyMS <= 0 {
		return xerrors.Errorf("zipper: invalid max_latency_ms %d", cfg.MaxLatencyMS)
	}
	z.mu.Lock()
	defer z.mu.Unlock()
	z.cfg = cfg
	z.origin = 0
	z.streams = make(map[trigger.StreamId]*list.List)
	z.tardy = make(map[trigger.StreamId]uint64)
	z.seqno = 0
	return nil
}

// Feed inserts s into its StreamId's queue, returning false (tardy) if
// s.StartTime is older than the last emitted key, in which case s is
// dropped and counted against its stream.
func (z *Zipper[T]) Feed(s trigger.Set[T]) bool {
	z.mu.Lock()
	defer z.mu.Unlock()

	if s.StartTime < z.origin {
		z.tardy[s.Origin]++
		z.msg.Warnf("zipper: tardy set from %v (start=%d < origin=%d)", s.Origin, s.StartTime, z.origin)
		return false
	}

	q, ok := z.streams[s.Origin]
	if !ok {
		q = list.New()
		z.streams[s.Origin] = q
	}
	q.PushBack(node[T]{set: s, arrived: time.Now()})
	return true
}

// Stats returns the per-StreamId tardy-drop counters.
func (z *Zipper[T]) Stats() map[trigger.StreamId]uint64 {
	z.mu.Lock()
	defer z.mu.Unlock()
	out := make(map[trigger.StreamId]uint64, len(z.tardy))
	for k, v := range z.tardy {
		out[k] = v
	}
	return out
}

// Clear empties all per-stream buffers and resets origin.
func (z *Zipper[T]) Clear() {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.streams = make(map[trigger.StreamId]*list.List)
	z.origin = 0
}

// headSet picks, among all non-empty streams, the head with the
// smallest (StartTime, kindOrder) key. It returns the owning StreamId,
// the head node, and whether every known stream currently has a head
// (cardinality satisfied).
func (z *Zipper[T]) headSet() (trigger.StreamId, node[T], bool, bool) {
	var (
		bestId   trigger.StreamId
		best     node[T]
		found    bool
		complete = len(z.streams) >= z.cfg.Cardinality
	)
	for id, q := range z.streams {
		if q.Len() == 0 {
			complete = false
			continue
		}
		n := q.Front().Value.(node[T])
		if !found {
			bestId, best, found = id, n, true
			continue
		}
		if less(n, best) {
			bestId, best = id, n
		}
	}
	return bestId, best, found, complete
}

func less[T trigger.Carrier](a, b node[T]) bool {
	if a.set.StartTime != b.set.StartTime {
		return a.set.StartTime < b.set.StartTime
	}
	return kindOrder(a.set.Kind) < kindOrder(b.set.Kind)
}

// emit pops and returns the head of stream id, advancing origin.
func (z *Zipper[T]) emit(id trigger.StreamId, out chan<- trigger.Set[T]) {
	q := z.streams[id]
	n := q.Remove(q.Front()).(node[T])
	z.origin = n.set.StartTime
	z.seqno++
	out <- n.set
}

// DrainPrompt emits heads in (StartTime, kind) order, regardless of
// cardinality, for as long as the smallest head has waited at least
// max_latency; it stops at the first smallest head that has not, even
// if another stream holds an older one. It returns the number of sets
// emitted.
func (z *Zipper[T]) DrainPrompt(out chan<- trigger.Set[T]) int {
	z.mu.Lock()
	defer z.mu.Unlock()

	n := 0
	bound := time.Duration(z.cfg.MaxLatencyMS) * time.Millisecond
	for {
		id, head, found, _ := z.headSet()
		if !found || time.Since(head.arrived) < bound {
			return n
		}
		z.emit(id, out)
		n++
	}
}

// DrainWaiting emits heads only while the k-way cardinality invariant
// is satisfied (a head present on every known stream). It returns the
// number of sets emitted.
func (z *Zipper[T]) DrainWaiting(out chan<- trigger.Set[T]) int {
	z.mu.Lock()
	defer z.mu.Unlock()

	n := 0
	for {
		id, _, found, complete := z.headSet()
		if !found || !complete {
			return n
		}
		z.emit(id, out)
		n++
	}
}

// DrainFull empties every stream's buffer, used on flush/scrap.
func (z *Zipper[T]) DrainFull(out chan<- trigger.Set[T]) int {
	z.mu.Lock()
	defer z.mu.Unlock()

	n := 0
	for {
		id, _, found, _ := z.headSet()
		if !found {
			return n
		}
		z.emit(id, out)
		n++
	}
}

// Run drives the Zipper from in to out until ctx is canceled: it feeds
// every arriving Set and periodically attempts DrainWaiting followed by
// DrainPrompt, matching the teacher's ctx-cancellable worker-loop shape.
func (z *Zipper[T]) Run(ctx context.Context, in <-chan trigger.Set[T], out chan<- trigger.Set[T]) error {
	grp, ctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case s, ok := <-in:
				if !ok {
					return nil
				}
				z.Feed(s)
			}
		}
	})

	grp.Go(func() error {
		tick := time.NewTicker(5 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				z.DrainFull(out)
				return ctx.Err()
			case <-tick.C:
				z.DrainWaiting(out)
				z.DrainPrompt(out)
			}
		}
	})

	err := grp.Wait()
	if err != nil && !xerrors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
