// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mlt // import "github.com/go-daq/tdaq-trigger/mlt"

import (
	"sync"
	"time"
)

// LivetimeState is one of the three states a run can be in from the
// MLT's perspective.
type LivetimeState int

const (
	Live LivetimeState = iota
	Paused
	Dead
)

func (s LivetimeState) String() string {
	switch s {
	case Live:
		return "live"
	case Paused:
		return "paused"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// LivetimeCounter integrates wall-clock time spent in each
// LivetimeState, via a delta accumulated on every SetState call rather
// than a periodic sampler.
type LivetimeCounter struct {
	mu              sync.Mutex
	state           LivetimeState
	lastChange      time.Time
	accumulated     map[LivetimeState]time.Duration
}

// NewLivetimeCounter creates a counter starting in state.
func NewLivetimeCounter(state LivetimeState) *LivetimeCounter {
	return &LivetimeCounter{
		state:      state,
		lastChange: time.Now(),
		accumulated: map[LivetimeState]time.Duration{
			Live:   0,
			Paused: 0,
			Dead:   0,
		},
	}
}

// updateLocked folds the time since the last state change into the
// current state's accumulator. Callers must hold lc.mu.
func (lc *LivetimeCounter) updateLocked() {
	now := time.Now()
	lc.accumulated[lc.state] += now.Sub(lc.lastChange)
	lc.lastChange = now
}

// SetState transitions to state, first crediting the elapsed time to
// the outgoing state.
func (lc *LivetimeCounter) SetState(state LivetimeState) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.updateLocked()
	lc.state = state
}

// State reports the current state.
func (lc *LivetimeCounter) State() LivetimeState {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.state
}

// Time reports accumulated time in state, including time since the
// last transition.
func (lc *LivetimeCounter) Time(state LivetimeState) time.Duration {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.updateLocked()
	return lc.accumulated[state]
}

// TimeMap reports accumulated time in every state.
func (lc *LivetimeCounter) TimeMap() map[LivetimeState]time.Duration {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.updateLocked()
	out := make(map[LivetimeState]time.Duration, len(lc.accumulated))
	for k, v := range lc.accumulated {
		out[k] = v
	}
	return out
}
