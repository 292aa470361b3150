// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mlt_test // import "github.com/go-daq/tdaq-trigger/mlt"

import (
	"sync"
	"testing"
	"time"

	"github.com/go-daq/tdaq-trigger/config"
	"github.com/go-daq/tdaq-trigger/mlt"
	"github.com/go-daq/tdaq-trigger/trigger"
)

type fakeSender struct {
	mu  sync.Mutex
	tds []trigger.TriggerDecision
}

func (f *fakeSender) Send(td trigger.TriggerDecision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tds = append(f.tds, td)
	return nil
}

func (f *fakeSender) sent() []trigger.TriggerDecision {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]trigger.TriggerDecision, len(f.tds))
	copy(out, f.tds)
	return out
}

func newMLT(t *testing.T, sender mlt.Sender) *mlt.MLT {
	t.Helper()
	lc := mlt.NewLivetimeCounter(mlt.Live)
	tm := mlt.NewTokenManager(1, 10, lc)
	m := mlt.New(nil, 1, sender, tm, lc)
	err := m.Configure(config.MLT{
		Links: []string{"tpc-readout-0"},
		ReadoutWindows: []config.ReadoutWindow{
			{CandidateType: uint8(trigger.TCTypeRandom), TimeBefore: 10, TimeAfter: 10},
		},
		BufferTimeout:      0,
		TDOutOfTimeout:     false,
		RecentlySentWindow: 20,
	})
	if err != nil {
		t.Fatalf("could not configure mlt: %+v", err)
	}
	return m
}

func TestIngestTCClustersOverlapping(t *testing.T) {
	sender := &fakeSender{}
	m := newMLT(t, sender)
	m.Start()
	m.Resume()

	tc1 := trigger.TriggerCandidate{Candidate: 100, Type: trigger.TCTypeRandom}
	tc2 := trigger.TriggerCandidate{Candidate: 105, Type: trigger.TCTypeRandom} // overlaps tc1's [90,110]

	if err := m.IngestTC(tc1); err != nil {
		t.Fatalf("could not ingest tc1: %+v", err)
	}
	if err := m.IngestTC(tc2); err != nil {
		t.Fatalf("could not ingest tc2: %+v", err)
	}

	ready := m.PollExpiry(1 << 62) // force every pending TD to be ready
	if len(ready) != 1 {
		t.Fatalf("expected the two overlapping TCs to cluster into one pending TD, got %d pending", len(ready))
	}
}

func TestEmitGatedByPause(t *testing.T) {
	sender := &fakeSender{}
	m := newMLT(t, sender)
	m.Start() // initial state is Paused until Resume

	tc := trigger.TriggerCandidate{Candidate: 100, Type: trigger.TCTypeRandom}
	m.IngestTC(tc)

	ready := m.PollExpiry(1 << 62)
	for _, p := range ready {
		m.Emit(p, false)
	}
	if len(sender.sent()) != 0 {
		t.Fatalf("expected no TD sent while paused, got %d", len(sender.sent()))
	}

	paused, _, _, _ := m.Counts()
	if paused == 0 {
		t.Fatalf("expected td_paused_count to be incremented")
	}
}

func TestEmitSendsWhenResumed(t *testing.T) {
	sender := &fakeSender{}
	m := newMLT(t, sender)
	m.Start()
	m.Resume()

	tc := trigger.TriggerCandidate{Candidate: 100, Type: trigger.TCTypeRandom}
	m.IngestTC(tc)

	ready := m.PollExpiry(1 << 62)
	for _, p := range ready {
		m.Emit(p, false)
	}

	sent := sender.sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 TD sent, got %d", len(sent))
	}
	if len(sent[0].Requests) != 1 || sent[0].Requests[0].Component != "tpc-readout-0" {
		t.Fatalf("unexpected requests: %+v", sent[0].Requests)
	}
}

func TestEmitGatedByTokenStarvation(t *testing.T) {
	sender := &fakeSender{}
	lc := mlt.NewLivetimeCounter(mlt.Live)
	tm := mlt.NewTokenManager(1, 0, lc)
	m := mlt.New(nil, 1, sender, tm, lc)
	err := m.Configure(config.MLT{
		Links: []string{"tpc-readout-0"},
		ReadoutWindows: []config.ReadoutWindow{
			{CandidateType: uint8(trigger.TCTypeRandom), TimeBefore: 10, TimeAfter: 10},
		},
		RecentlySentWindow: 20,
	})
	if err != nil {
		t.Fatalf("could not configure mlt: %+v", err)
	}
	m.Start()
	m.Resume()

	tc := trigger.TriggerCandidate{Candidate: 100, Type: trigger.TCTypeRandom}
	m.IngestTC(tc)

	ready := m.PollExpiry(1 << 62)
	for _, p := range ready {
		m.Emit(p, false)
	}
	if len(sender.sent()) != 0 {
		t.Fatalf("expected no TD sent with no tokens available, got %d", len(sender.sent()))
	}

	_, _, _, tokenStarved := m.Counts()
	if tokenStarved == 0 {
		t.Fatalf("expected td_token_starved_count to be incremented")
	}
}

func TestStopFlushesRegardlessOfPause(t *testing.T) {
	sender := &fakeSender{}
	m := newMLT(t, sender)
	m.Start() // paused

	m.IngestTC(trigger.TriggerCandidate{Candidate: 100, Type: trigger.TCTypeRandom})

	sent := m.Stop()
	if len(sent) != 1 {
		t.Fatalf("expected Stop to flush the pending TD regardless of pause, got %d", len(sent))
	}
}

func TestTokenManagerCreditCycle(t *testing.T) {
	lc := mlt.NewLivetimeCounter(mlt.Live)
	tm := mlt.NewTokenManager(7, 1, lc)

	if !tm.TriggersAllowed() {
		t.Fatalf("expected 1 initial token to allow triggers")
	}
	tm.TriggerSent(42)
	if tm.TriggersAllowed() {
		t.Fatalf("expected triggers to be disallowed after consuming the only token")
	}
	if tm.InFlight() != 1 {
		t.Fatalf("expected 1 in-flight trigger, got %d", tm.InFlight())
	}

	tm.ReceiveToken(trigger.TriggerDecisionToken{RunNumber: 7, TriggerNumber: 42})
	if !tm.TriggersAllowed() {
		t.Fatalf("expected the returned token to re-allow triggers")
	}
	if tm.InFlight() != 0 {
		t.Fatalf("expected 0 in-flight triggers after the matching token arrived, got %d", tm.InFlight())
	}
}

func TestLivetimeCounterAccumulates(t *testing.T) {
	lc := mlt.NewLivetimeCounter(mlt.Live)
	time.Sleep(15 * time.Millisecond)
	lc.SetState(mlt.Paused)
	time.Sleep(15 * time.Millisecond)

	live := lc.Time(mlt.Live)
	paused := lc.Time(mlt.Paused)
	if live <= 0 || paused <= 0 {
		t.Fatalf("expected positive accumulated time in both states, got live=%v paused=%v", live, paused)
	}
}
