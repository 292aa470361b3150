// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package latency keeps a time-sorted, capacity-bounded buffer of the
// N most recent trigger.Carrier values and answers trigger.DataRequest
// queries against it, parking requests for data that has not yet
// arrived.
package latency // import "github.com/go-daq/tdaq-trigger/latency"

import (
	"sync"

	"github.com/google/btree"

	"github.com/go-daq/tdaq-trigger/config"
	"github.com/go-daq/tdaq-trigger/log"
	"github.com/go-daq/tdaq-trigger/trigger"
)

// Outcome classifies how a DataRequest was resolved.
type Outcome int

const (
	Success Outcome = iota
	Empty
	Late
	Incomplete
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "Success"
	case Empty:
		return "Empty"
	case Late:
		return "Late"
	case Incomplete:
		return "Incomplete"
	default:
		return "unknown"
	}
}

type entry[T trigger.Carrier] struct {
	key trigger.Timestamp
	seq uint64
	obj T
}

func entryLess[T trigger.Carrier](a, b entry[T]) bool {
	if a.key != b.key {
		return a.key < b.key
	}
	return a.seq < b.seq
}

type hold struct {
	req trigger.DataRequest
	seq uint64
}

func holdLess(a, b hold) bool {
	if a.req.WindowEnd != b.req.WindowEnd {
		return a.req.WindowEnd < b.req.WindowEnd
	}
	return a.seq < b.seq
}

// Buffer is the latency buffer + DataRequest handler for a single
// Carrier type T at one readout StreamId.
type Buffer[T trigger.Carrier] struct {
	msg log.MsgStream
	cfg config.LatencyBuffer

	fragType trigger.FragmentType

	mu      sync.Mutex
	tree    *btree.BTreeG[entry[T]]
	onHold  *btree.BTreeG[hold]
	seq     uint64
	holdSeq uint64
	counts  map[Outcome]uint64
}

// New creates a Buffer that marshals fragments tagged with fragType
// (FragTypeTP/TA/TC).
func New[T trigger.Carrier](msg log.MsgStream, fragType trigger.FragmentType) *Buffer[T] {
	if msg == nil {
		msg = log.Default
	}
	return &Buffer[T]{
		msg:      msg,
		fragType: fragType,
		tree:     btree.NewG(32, entryLess[T]),
		onHold:   btree.NewG(32, holdLess),
		counts:   make(map[Outcome]uint64),
	}
}

// Configure applies cfg, clamping capacity to a minimum of 1 (guards a
// configuration error).
func (b *Buffer[T]) Configure(cfg config.LatencyBuffer) {
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg = cfg
	b.tree = btree.NewG(32, entryLess[T])
	b.onHold = btree.NewG(32, holdLess)
	b.counts = make(map[Outcome]uint64)
}

// Counts returns the running per-outcome tally.
func (b *Buffer[T]) Counts() map[Outcome]uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[Outcome]uint64, len(b.counts))
	for k, v := range b.counts {
		out[k] = v
	}
	return out
}

// Insert stores obj, evicting the oldest element if capacity is
// exceeded, then returns every on-hold request newly resolved by the
// arrival of obj.
func (b *Buffer[T]) Insert(obj T) []trigger.Fragment {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	b.tree.ReplaceOrInsert(entry[T]{key: obj.TimeStart(), seq: b.seq, obj: obj})
	if b.tree.Len() > b.cfg.Capacity {
		b.tree.DeleteMin()
	}

	_, latest := b.extentLocked()

	var resolved []trigger.Fragment
	var settled []hold
	b.onHold.Ascend(func(h hold) bool {
		if h.req.WindowEnd > latest {
			return false
		}
		settled = append(settled, h)
		return true
	})
	for _, h := range settled {
		b.onHold.Delete(h)
		frag, outcome := b.resolveLocked(h.req)
		b.counts[outcome]++
		resolved = append(resolved, frag)
	}
	return resolved
}

// extentLocked returns the buffer's current [earliest, latest] time
// extent. Callers must hold b.mu.
func (b *Buffer[T]) extentLocked() (earliest, latest trigger.Timestamp) {
	if min, ok := b.tree.Min(); ok {
		earliest = min.key
	}
	if max, ok := b.tree.Max(); ok {
		latest = max.key
	}
	return earliest, latest
}

// Request resolves req against the buffer's current extent. Success
// and Empty resolve immediately; Late parks req in the on-hold map and
// reports ok=false — the caller should not respond yet.
func (b *Buffer[T]) Request(req trigger.DataRequest) (frag trigger.Fragment, outcome Outcome, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, latest := b.extentLocked()
	if req.WindowEnd > latest {
		b.holdSeq++
		b.onHold.ReplaceOrInsert(hold{req: req, seq: b.holdSeq})
		return trigger.Fragment{}, Late, false
	}

	frag, outcome = b.resolveLocked(req)
	b.counts[outcome]++
	return frag, outcome, true
}

// resolveLocked assembles the Fragment for req, assuming req's window
// end has already cleared the buffer's latest timestamp. Callers must
// hold b.mu.
func (b *Buffer[T]) resolveLocked(req trigger.DataRequest) (trigger.Fragment, Outcome) {
	earliest, _ := b.extentLocked()

	if req.WindowEnd < earliest {
		return b.emptyFragLocked(req, trigger.ErrDataNotFound), Empty
	}

	var objs []T
	b.tree.AscendRange(
		entry[T]{key: req.WindowBegin},
		entry[T]{key: req.WindowEnd + 1},
		func(e entry[T]) bool {
			objs = append(objs, e.obj)
			return true
		},
	)

	set := trigger.Set[T]{
		StartTime: req.WindowBegin,
		EndTime:   req.WindowEnd,
		Kind:      trigger.Payload,
		Objects:   objs,
	}
	payload, err := set.MarshalTDAQ()
	errBits := trigger.ErrNone
	if err != nil {
		b.msg.Warnf("latency: could not marshal fragment payload: %+v", err)
		errBits = trigger.ErrIncomplete
	}

	return trigger.Fragment{
		TriggerNumber:    req.TriggerNumber,
		TriggerTimestamp: req.TriggerTimestamp,
		WindowBegin:      req.WindowBegin,
		WindowEnd:        req.WindowEnd,
		RunNumber:        req.RunNumber,
		FragmentType:     b.fragType,
		SequenceNumber:   req.SequenceNumber,
		ErrorBits:        errBits,
		Payload:          payload,
	}, Success
}

func (b *Buffer[T]) emptyFragLocked(req trigger.DataRequest, errBits uint32) trigger.Fragment {
	return trigger.Fragment{
		TriggerNumber:    req.TriggerNumber,
		TriggerTimestamp: req.TriggerTimestamp,
		WindowBegin:      req.WindowBegin,
		WindowEnd:        req.WindowEnd,
		RunNumber:        req.RunNumber,
		FragmentType:     b.fragType,
		SequenceNumber:   req.SequenceNumber,
		ErrorBits:        errBits,
	}
}

// Stop flushes every on-hold request: Incomplete if the buffer holds
// any data, DataNotFound if it is empty. Whether that data falls
// inside the request's own window is not checked.
func (b *Buffer[T]) Stop() []trigger.Fragment {
	b.mu.Lock()
	defer b.mu.Unlock()

	earliest, latest := b.extentLocked()
	var out []trigger.Fragment
	b.onHold.Ascend(func(h hold) bool {
		errBits := trigger.ErrIncomplete
		outcome := Incomplete
		if latest == 0 && earliest == 0 && b.tree.Len() == 0 {
			errBits = trigger.ErrDataNotFound
			outcome = Empty
		}
		frag := b.emptyFragLocked(h.req, errBits)
		b.counts[outcome]++
		out = append(out, frag)
		return true
	})
	b.onHold.Clear(false)
	return out
}
