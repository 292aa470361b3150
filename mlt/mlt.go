// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mlt implements the Module-Level Trigger: it consumes trigger
// candidates, clusters overlapping ones into pending trigger
// decisions, and emits them subject to pause, inhibit, and token
// availability.
package mlt // import "github.com/go-daq/tdaq-trigger/mlt"

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/xerrors"

	"github.com/go-daq/tdaq-trigger/config"
	"github.com/go-daq/tdaq-trigger/log"
	"github.com/go-daq/tdaq-trigger/trigger"
)

// Sender is the abstract TriggerDecision transport: the MLT never
// touches a socket directly.
type Sender interface {
	Send(td trigger.TriggerDecision) error
}

type interval struct {
	start, end trigger.Timestamp
}

func (a interval) overlaps(b interval) bool {
	return a.start <= b.end && b.start <= a.end
}

func (a interval) union(b interval) interval {
	u := a
	if b.start < u.start {
		u.start = b.start
	}
	if b.end > u.end {
		u.end = b.end
	}
	return u
}

type pendingTD struct {
	readout           interval
	walltimeExpiresMS int64
	contributing      []trigger.TriggerCandidate
}

// MLT is the Module-Level Trigger.
type MLT struct {
	msg       log.MsgStream
	cfg       config.MLT
	runNumber uint32
	sender    Sender

	tokens *TokenManager
	lc     *LivetimeCounter

	paused  int32 // atomic bool
	dfoBusy int32 // atomic bool

	mu           sync.Mutex
	pending      []*pendingTD
	recentlySent *list.List // of interval
	lastTD       uint64

	tdPausedCount       uint64
	tdInhibitedCount    uint64
	tcOutOfTimeoutCount uint64
	tdTokenStarvedCount uint64
}

// New creates an MLT for runNumber, sending accepted decisions via
// sender and reporting livetime through lc.
func New(msg log.MsgStream, runNumber uint32, sender Sender, tokens *TokenManager, lc *LivetimeCounter) *MLT {
	if msg == nil {
		msg = log.Default
	}
	return &MLT{
		msg:          msg,
		runNumber:    runNumber,
		sender:       sender,
		tokens:       tokens,
		lc:           lc,
		recentlySent: list.New(),
		paused:       1,
	}
}

// Configure applies cfg, defaulting RecentlySentWindow to 20 (the
// original's magic number, made configurable).
func (m *MLT) Configure(cfg config.MLT) error {
	if len(cfg.Links) == 0 {
		return xerrors.Errorf("mlt: no readout links configured")
	}
	if len(cfg.ReadoutWindows) == 0 {
		return xerrors.Errorf("mlt: no readout-window table configured")
	}
	if cfg.RecentlySentWindow <= 0 {
		cfg.RecentlySentWindow = 20
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	return nil
}

// Start enters Running, initially Paused (inhibit up) until an
// explicit Resume.
func (m *MLT) Start() {
	atomic.StoreInt32(&m.paused, 1)
	m.lc.SetState(Paused)
}

// Pause suspends emission without discarding pending TDs.
func (m *MLT) Pause() {
	atomic.StoreInt32(&m.paused, 1)
	m.lc.SetState(Paused)
}

// Resume allows emission to proceed.
func (m *MLT) Resume() {
	atomic.StoreInt32(&m.paused, 0)
	m.lc.SetState(Live)
}

// IngestInhibit applies a downstream back-pressure signal.
func (m *MLT) IngestInhibit(in trigger.TriggerInhibit) {
	busy := int32(0)
	if in.Busy {
		busy = 1
	}
	atomic.StoreInt32(&m.dfoBusy, busy)
	if in.Busy {
		m.lc.SetState(Dead)
	}
}

func (m *MLT) readoutWindow(t trigger.TCType) (before, after trigger.Timestamp, ok bool) {
	for _, w := range m.cfg.ReadoutWindows {
		if trigger.TCType(w.CandidateType) == t {
			return trigger.Timestamp(w.TimeBefore), trigger.Timestamp(w.TimeAfter), true
		}
	}
	return 0, 0, false
}

// IngestTC clusters tc into an existing pending TD whose readout
// interval overlaps it, or seeds a new one.
func (m *MLT) IngestTC(tc trigger.TriggerCandidate) error {
	before, after, ok := m.readoutWindow(tc.Type)
	if !ok {
		return xerrors.Errorf("mlt: no readout window configured for TC type %v", tc.Type)
	}
	start, end := tc.ReadoutInterval(before, after)
	iv := interval{start: start, end: end}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.pending {
		if p.readout.overlaps(iv) {
			p.readout = p.readout.union(iv)
			p.walltimeExpiresMS = walltimeExpirationMS(p.readout.end, m.cfg.BufferTimeout)
			p.contributing = append(p.contributing, tc)
			return nil
		}
	}

	m.pending = append(m.pending, &pendingTD{
		readout:           iv,
		walltimeExpiresMS: walltimeExpirationMS(iv.end, m.cfg.BufferTimeout),
		contributing:      []trigger.TriggerCandidate{tc},
	})
	return nil
}

// walltimeExpirationMS converts a readout_end in detector ticks to the
// wall-clock expiration in ms at the nominal 50 MHz detector clock:
// readout_end_ticks/(freq_hz/1000) + buffer_timeout_ms.
func walltimeExpirationMS(readoutEnd trigger.Timestamp, bufferTimeout time.Duration) int64 {
	const clockFrequencyHz = 50_000_000.0 // nominal 50MHz detector clock
	return int64(float64(readoutEnd)/(clockFrequencyHz/1000)) + bufferTimeout.Milliseconds()
}

// IngestHSI applies the HSI-passthrough decoding rule to ev, returning
// the TriggerCandidate it represents. An event whose Type this MLT has
// no readout window for, or whose DetId has stray high bits set, is a
// bad-event condition: it is rejected with an error rather than fed to
// IngestTC. No counter of rejected events is kept.
func (m *MLT) IngestHSI(ev trigger.HSIEvent) (trigger.TriggerCandidate, error) {
	if ev.DetId&0xffffff00 != 0 {
		return trigger.TriggerCandidate{}, xerrors.Errorf("mlt: HSI event has a malformed trigger bitmask (detid=%#x)", ev.DetId)
	}
	if _, _, ok := m.readoutWindow(ev.Type); !ok {
		return trigger.TriggerCandidate{}, xerrors.Errorf("mlt: HSI event carries unrecognized signal_map type %v", ev.Type)
	}
	return trigger.TriggerCandidate{
		Start:     ev.Timestamp,
		End:       ev.Timestamp,
		Candidate: ev.Timestamp,
		DetId:     ev.DetId,
		Type:      ev.Type,
		Algorithm: "hsi-passthrough",
	}, nil
}

// PollExpiry extracts every pending TD whose wall-clock expiration has
// passed, in FIFO order.
func (m *MLT) PollExpiry(nowMS int64) []*pendingTD {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ready []*pendingTD
	var rest []*pendingTD
	for _, p := range m.pending {
		if p.walltimeExpiresMS <= nowMS {
			ready = append(ready, p)
		} else {
			rest = append(rest, p)
		}
	}
	m.pending = rest
	return ready
}

// overlapsRecentlySentLocked reports whether iv overlaps any entry in
// the bounded "recently sent" window. Callers must hold m.mu.
func (m *MLT) overlapsRecentlySentLocked(iv interval) bool {
	for e := m.recentlySent.Front(); e != nil; e = e.Next() {
		if e.Value.(interval).overlaps(iv) {
			return true
		}
	}
	return false
}

func (m *MLT) recordSentLocked(iv interval) {
	m.recentlySent.PushBack(iv)
	for m.recentlySent.Len() > m.cfg.RecentlySentWindow {
		m.recentlySent.Remove(m.recentlySent.Front())
	}
}

// buildDecisionLocked assembles the TriggerDecision for a ready
// pendingTD. Callers must hold m.mu.
func (m *MLT) buildDecisionLocked(p *pendingTD) trigger.TriggerDecision {
	first := p.contributing[0]

	var triggerType uint16
	switch {
	case m.cfg.HSITriggerTypePassthrough && first.Type == trigger.TCTypeTiming:
		triggerType = uint16(first.DetId & 0xff)
	case m.cfg.HSITriggerTypePassthrough:
		triggerType = uint16(first.Type) << 8
	default:
		triggerType = 1
	}

	reqs := make([]trigger.ComponentRequest, 0, len(m.cfg.Links))
	for _, link := range m.cfg.Links {
		reqs = append(reqs, trigger.ComponentRequest{
			Component:   link,
			WindowBegin: p.readout.start,
			WindowEnd:   p.readout.end,
		})
	}

	m.lastTD++
	return trigger.TriggerDecision{
		TriggerNumber:    m.lastTD,
		RunNumber:        m.runNumber,
		TriggerTimestamp: first.Candidate,
		TriggerType:      triggerType,
		ReadoutType:      "default",
		Requests:         reqs,
	}
}

// Emit applies the out-of-timeout/pause/inhibit/token gating rules to
// a ready pendingTD and sends its TriggerDecision. The TCOutOfTimeout
// overlap check runs unconditionally, before any pause/inhibit/token
// gate, so it is recorded and logged regardless of whether the TD
// would also be dropped for another reason. override bypasses pause,
// inhibit and token gating (used during the stop flush).
func (m *MLT) Emit(p *pendingTD, override bool) (*trigger.TriggerDecision, error) {
	m.mu.Lock()
	outOfTimeout := m.overlapsRecentlySentLocked(p.readout)
	if outOfTimeout {
		m.tcOutOfTimeoutCount++
		m.msg.Warnf("mlt: TCOutOfTimeout: pending TD overlaps a recently-sent TD")
		if !m.cfg.TDOutOfTimeout {
			m.mu.Unlock()
			return nil, nil
		}
	}
	m.mu.Unlock()

	if !override && atomic.LoadInt32(&m.paused) != 0 {
		m.mu.Lock()
		m.tdPausedCount++
		m.mu.Unlock()
		m.msg.Debugf("mlt: triggers are paused, not sending a TriggerDecision")
		return nil, nil
	}

	if !override && atomic.LoadInt32(&m.dfoBusy) != 0 {
		m.mu.Lock()
		m.tdInhibitedCount++
		m.mu.Unlock()
		m.msg.Warnf("mlt: TriggerInhibited: dfo is busy")
		return nil, nil
	}

	if !override && m.tokens != nil && !m.tokens.TriggersAllowed() {
		m.mu.Lock()
		m.tdTokenStarvedCount++
		m.mu.Unlock()
		m.msg.Warnf("mlt: TriggerInhibited: no tokens available")
		return nil, nil
	}

	m.mu.Lock()
	td := m.buildDecisionLocked(p)
	m.mu.Unlock()

	if err := m.sender.Send(td); err != nil {
		m.msg.Warnf("mlt: could not send TriggerDecision %d: %+v", td.TriggerNumber, err)
		m.mu.Lock()
		m.lastTD--
		m.mu.Unlock()
		return nil, err
	}

	if m.tokens != nil {
		m.tokens.TriggerSent(td.TriggerNumber)
	}

	m.mu.Lock()
	m.recordSentLocked(p.readout)
	m.mu.Unlock()

	return &td, nil
}

// Counts reports the running td_paused_count/td_inhibited_count/
// tc_out_of_timeout/token_starved counters.
func (m *MLT) Counts() (paused, inhibited, outOfTimeout, tokenStarved uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tdPausedCount, m.tdInhibitedCount, m.tcOutOfTimeoutCount, m.tdTokenStarvedCount
}

// Paused reports whether emission is currently suspended.
func (m *MLT) Paused() bool { return atomic.LoadInt32(&m.paused) != 0 }

// NTokens reports the token manager's current credit, satisfying
// webctl.Source.
func (m *MLT) NTokens() int {
	if m.tokens == nil {
		return 0
	}
	return m.tokens.NTokens()
}

// InFlight reports the token manager's in-flight trigger count,
// satisfying webctl.Source.
func (m *MLT) InFlight() int {
	if m.tokens == nil {
		return 0
	}
	return m.tokens.InFlight()
}

// LivetimeState reports the current livetime state as a string,
// satisfying webctl.Source.
func (m *MLT) LivetimeState() string {
	return m.lc.State().String()
}

// Stop flushes every pending TD with override=true regardless of
// pause/inhibit state, and resets the livetime counter.
func (m *MLT) Stop() []*trigger.TriggerDecision {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	var sent []*trigger.TriggerDecision
	for _, p := range pending {
		td, err := m.Emit(p, true)
		if err == nil && td != nil {
			sent = append(sent, td)
		}
	}

	m.lc = NewLivetimeCounter(Paused)
	return sent
}

// Run polls for expired pending TDs every poll and emits them, until
// ctx is canceled.
func (m *MLT) Run(ctx context.Context, poll time.Duration) error {
	if poll <= 0 {
		poll = 10 * time.Millisecond
	}
	tick := time.NewTicker(poll)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-tick.C:
			for _, p := range m.PollExpiry(now.UnixMilli()) {
				m.Emit(p, false)
			}
		}
	}
}
