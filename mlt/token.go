// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mlt // import "github.com/go-daq/tdaq-trigger/mlt"

import (
	"sync"
	"sync/atomic"

	"github.com/go-daq/tdaq-trigger/trigger"
)

// TokenManager tracks the MLT's emission credit: one token is consumed
// per TriggerDecision sent, and returned by a matching
// TriggerDecisionToken from downstream.
type TokenManager struct {
	runNumber uint32
	nTokens   int64 // atomic

	mu      sync.Mutex
	inFlight map[uint64]struct{}

	lc *LivetimeCounter
}

// NewTokenManager creates a TokenManager with initialTokens of credit
// for runNumber, reporting livetime transitions to lc.
func NewTokenManager(runNumber uint32, initialTokens int, lc *LivetimeCounter) *TokenManager {
	return &TokenManager{
		runNumber: runNumber,
		nTokens:   int64(initialTokens),
		inFlight:  make(map[uint64]struct{}),
		lc:        lc,
	}
}

// NTokens reports the current token count.
func (tm *TokenManager) NTokens() int {
	return int(atomic.LoadInt64(&tm.nTokens))
}

// TriggersAllowed reports whether at least one token is available.
func (tm *TokenManager) TriggersAllowed() bool {
	return tm.NTokens() > 0
}

// TriggerSent records that triggerNumber was just emitted, decrementing
// the token count and recording the trigger as in-flight. If this
// exhausts the last token, the livetime counter moves to Dead.
func (tm *TokenManager) TriggerSent(triggerNumber uint64) {
	tm.mu.Lock()
	tm.inFlight[triggerNumber] = struct{}{}
	tm.mu.Unlock()

	if atomic.AddInt64(&tm.nTokens, -1) == 0 && tm.lc != nil {
		tm.lc.SetState(Dead)
	}
}

// ReceiveToken processes an incoming TriggerDecisionToken. Tokens for a
// different run are ignored. A token carrying a valid trigger number
// clears that trigger from the in-flight set.
func (tm *TokenManager) ReceiveToken(tok trigger.TriggerDecisionToken) {
	if tok.RunNumber != tm.runNumber {
		return
	}

	if atomic.LoadInt64(&tm.nTokens) == 0 && tm.lc != nil {
		tm.lc.SetState(Live)
	}
	atomic.AddInt64(&tm.nTokens, 1)

	if tok.TriggerNumber == trigger.TriggerNumberInvalid {
		return
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()
	if _, ok := tm.inFlight[tok.TriggerNumber]; ok {
		delete(tm.inFlight, tok.TriggerNumber)
	}
}

// InFlight reports the number of trigger decisions awaiting a token.
func (tm *TokenManager) InFlight() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.inFlight)
}
