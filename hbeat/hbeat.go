// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hbeat synthesizes Heartbeat Sets for a per-region source
// whose upstream may be silent for long periods, so that downstream
// Zippers and Slicers keep making progress.
package hbeat // import "github.com/go-daq/tdaq-trigger/hbeat"

import (
	"context"
	"sync"
	"time"

	"github.com/go-daq/tdaq-trigger/config"
	"github.com/go-daq/tdaq-trigger/log"
	"github.com/go-daq/tdaq-trigger/trigger"
)

// Generator extrapolates "now, in detector ticks" from the last seen
// payload and emits periodic Heartbeat trigger.Set[T] values at
// multiples of heartbeat_interval.
type Generator[T trigger.Carrier] struct {
	msg log.MsgStream
	cfg config.HeartbeatGen

	origin    trigger.StreamId
	runNumber uint32

	mu             sync.Mutex
	lastSeenTS     trigger.Timestamp
	lastSeenWall   time.Time
	lastSentSetAt  trigger.Timestamp
	haveSeenFirst  bool
	outSeqNo       uint64
}

// New creates a Generator tagged with origin/run for its output Sets.
func New[T trigger.Carrier](msg log.MsgStream, origin trigger.StreamId, run uint32) *Generator[T] {
	if msg == nil {
		msg = log.Default
	}
	return &Generator[T]{msg: msg, origin: origin, runNumber: run}
}

// Configure applies cfg, defaulting PollPeriod to 10ms if unset.
func (g *Generator[T]) Configure(cfg config.HeartbeatGen) {
	if cfg.PollPeriod <= 0 {
		cfg.PollPeriod = 10 * time.Millisecond
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg = cfg
	g.haveSeenFirst = false
	g.lastSentSetAt = 0
}

// Observe records a real payload's time_start and the wall-clock
// instant it arrived, used as the extrapolation anchor.
func (g *Generator[T]) Observe(ts trigger.Timestamp, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastSeenTS = ts
	g.lastSeenWall = now
	g.haveSeenFirst = true
}

// LastSeen reports the last observed (timestamp, wall-clock) anchor.
func (g *Generator[T]) LastSeen() (trigger.Timestamp, time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastSeenTS, g.lastSeenWall
}

// extrapolateLocked computes "now, in detector ticks", offset by
// heartbeat_send_offset_ms. Callers must hold g.mu.
func (g *Generator[T]) extrapolateLocked(now time.Time) trigger.Timestamp {
	if !g.haveSeenFirst {
		return 0
	}
	elapsed := now.Sub(g.lastSeenWall).Seconds()
	extrapolated := float64(g.lastSeenTS) + elapsed*g.cfg.ClockFrequencyHz
	offsetTicks := float64(g.cfg.HeartbeatSendOffsetMS) / 1000 * g.cfg.ClockFrequencyHz
	boundary := extrapolated - offsetTicks
	if boundary < 0 {
		return 0
	}
	return trigger.Timestamp(boundary)
}

// Pending returns every heartbeat timestamp strictly greater than the
// last-sent boundary and ≤ the extrapolated boundary, in order. Used
// both by the periodic poll loop and to flush outstanding heartbeats
// immediately before a real payload at payloadTS.
func (g *Generator[T]) Pending(now time.Time, payloadTS *trigger.Timestamp) []trigger.Timestamp {
	g.mu.Lock()
	defer g.mu.Unlock()

	boundary := g.extrapolateLocked(now)
	if payloadTS != nil && *payloadTS < boundary {
		boundary = *payloadTS
	}

	var out []trigger.Timestamp
	interval := trigger.Timestamp(g.cfg.HeartbeatInterval)
	if interval == 0 {
		return out
	}
	next := g.lastSentSetAt - (g.lastSentSetAt % interval) + interval
	if g.lastSentSetAt == 0 && g.outSeqNo == 0 {
		next = interval
	}
	for next <= boundary {
		out = append(out, next)
		next += interval
	}
	return out
}

// emitLocked builds a heartbeat Set at t, enforcing monotonicity: a
// Set whose start_time is less than the previously emitted one is an
// internal invariant violation, not a recoverable condition.
func (g *Generator[T]) emitLocked(t trigger.Timestamp) trigger.Set[T] {
	if g.outSeqNo > 0 && t < g.lastSentSetAt {
		log.Panicf("hbeat: monotonicity violated: emitting t=%d after t=%d", t, g.lastSentSetAt)
	}
	g.lastSentSetAt = t
	g.outSeqNo++
	return trigger.NewHeartbeat[T](g.origin, g.runNumber, g.outSeqNo, t)
}

// EmitPending emits to out every heartbeat due by now, in order.
func (g *Generator[T]) EmitPending(now time.Time, out chan<- trigger.Set[T]) int {
	pending := g.Pending(now, nil)
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, t := range pending {
		out <- g.emitLocked(t)
	}
	return len(pending)
}

// EmitBefore emits every outstanding heartbeat timestamp ≤ payload's
// time_start, then the payload itself, preserving the
// heartbeat-before-payload ordering the Zipper relies on.
func (g *Generator[T]) EmitBefore(now time.Time, payload trigger.Set[T], out chan<- trigger.Set[T]) {
	ts := payload.StartTime
	pending := g.Pending(now, &ts)

	g.mu.Lock()
	for _, t := range pending {
		out <- g.emitLocked(t)
	}
	g.mu.Unlock()

	g.Observe(payload.StartTime, now)
	out <- payload
}

// Run polls at cfg.PollPeriod, emitting outstanding heartbeats, until
// ctx is canceled.
func (g *Generator[T]) Run(ctx context.Context, out chan<- trigger.Set[T]) error {
	g.mu.Lock()
	period := g.cfg.PollPeriod
	g.mu.Unlock()
	if period <= 0 {
		period = 10 * time.Millisecond
	}

	tick := time.NewTicker(period)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-tick.C:
			g.EmitPending(now, out)
		}
	}
}
