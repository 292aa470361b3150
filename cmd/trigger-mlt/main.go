// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command trigger-mlt runs the Module-Level Trigger as a standalone
// process: it ingests TriggerCandidates, TriggerInhibits, and
// TriggerDecisionTokens over netio PULL sockets, emits TriggerDecisions
// to the DFO over a PUSH socket, accepts pause/resume control commands,
// and serves a webctl status page. It stops on an interrupt signal;
// there is no stop control command.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/go-daq/tdaq-trigger/config"
	"github.com/go-daq/tdaq-trigger/flags"
	"github.com/go-daq/tdaq-trigger/log"
	"github.com/go-daq/tdaq-trigger/mlt"
	"github.com/go-daq/tdaq-trigger/netio"
	"github.com/go-daq/tdaq-trigger/trigger"
	"github.com/go-daq/tdaq-trigger/webctl"
)

// dfoSender adapts a netio.Sender to mlt.Sender, marshaling each
// TriggerDecision before pushing it to the DFO.
type dfoSender struct {
	send netio.Sender
}

func (d dfoSender) Send(td trigger.TriggerDecision) error {
	raw, err := td.MarshalTDAQ()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	return d.send.Send(ctx, raw)
}

func main() {
	var (
		tcInput       = flag.String("tc", "", "PULL endpoint to listen on for TriggerCandidates")
		inhibitInput  = flag.String("inhibit", "", "PULL endpoint to listen on for TriggerInhibits")
		tokenInput    = flag.String("token", "", "PULL endpoint to listen on for TriggerDecisionTokens")
		ctrlInput     = flag.String("ctrl", "", "PULL endpoint to listen on for pause/resume control commands")
		dfoOutput     = flag.String("dfo", "", "PUSH endpoint to dial for TriggerDecisions")
		webAddr       = flag.String("web", "", "address for the webctl status page; empty disables it")
		run           = flag.Uint64("run", 1, "run number")
		links         = flag.String("links", "", "comma-separated list of readout component names")
		windowsFlag   = flag.String("readout-windows", "", "comma-separated candidate_type:before:after triples")
		bufferTimeout = flag.Duration("buffer-timeout", 100*time.Millisecond, "wall-clock time to wait for late TCs")
		hsiPassthru   = flag.Bool("hsi-passthrough", false, "select the trigger_type encoding rule for HSI events")
		tdOutOfTime   = flag.Bool("td-out-of-timeout", false, "keep TDs overlapping a recently-sent TD instead of dropping them")
		recentWindow  = flag.Int("recently-sent-window", 20, "size of the recently-sent TD deque")
		initialTokens = flag.Int("initial-tokens", 1, "initial token credit")
		poll          = flag.Duration("poll", 10*time.Millisecond, "pending-TD expiry poll period")
	)

	cmd := flags.New()
	msg := log.NewMsgStream(cmd.Name, cmd.Level, os.Stdout)

	if *tcInput == "" || *dfoOutput == "" {
		log.Fatalf("trigger-mlt: -tc and -dfo are required")
	}

	cfg := config.MLT{
		Links:                     splitNonEmpty(*links),
		BufferTimeout:             *bufferTimeout,
		HSITriggerTypePassthrough: *hsiPassthru,
		TDOutOfTimeout:            *tdOutOfTime,
		RecentlySentWindow:        *recentWindow,
		ReadoutWindows:            parseReadoutWindows(*windowsFlag),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	dfo, err := netio.DialPush(*dfoOutput)
	if err != nil {
		log.Fatalf("%+v", errors.Wrapf(err, "trigger-mlt: could not dial %q", *dfoOutput))
	}
	defer dfo.Close()

	lc := mlt.NewLivetimeCounter(mlt.Paused)
	tokens := mlt.NewTokenManager(uint32(*run), *initialTokens, lc)

	m := mlt.New(msg, uint32(*run), dfoSender{send: dfo}, tokens, lc)
	if err := m.Configure(cfg); err != nil {
		log.Fatalf("trigger-mlt: could not configure: %+v", err)
	}
	m.Start()

	if *webAddr != "" {
		page := webctl.New(msg, *webAddr, m, time.Second)
		go func() {
			if err := page.ListenAndServe(ctx); err != nil {
				msg.Errorf("trigger-mlt: webctl page exited: %+v", err)
			}
		}()
	}

	if *inhibitInput != "" {
		recv, err := netio.ListenPull(*inhibitInput)
		if err != nil {
			log.Fatalf("%+v", errors.Wrapf(err, "trigger-mlt: could not listen on %q", *inhibitInput))
		}
		defer recv.Close()
		go ingestInhibit(ctx, msg, recv, m)
	}

	if *tokenInput != "" {
		recv, err := netio.ListenPull(*tokenInput)
		if err != nil {
			log.Fatalf("%+v", errors.Wrapf(err, "trigger-mlt: could not listen on %q", *tokenInput))
		}
		defer recv.Close()
		go ingestTokens(ctx, msg, recv, tokens)
	}

	if *ctrlInput != "" {
		recv, err := netio.ListenPull(*ctrlInput)
		if err != nil {
			log.Fatalf("%+v", errors.Wrapf(err, "trigger-mlt: could not listen on %q", *ctrlInput))
		}
		defer recv.Close()
		go serveControl(ctx, msg, recv, m)
	}

	tc, err := netio.ListenPull(*tcInput)
	if err != nil {
		log.Fatalf("%+v", errors.Wrapf(err, "trigger-mlt: could not listen on %q", *tcInput))
	}
	defer tc.Close()

	go func() {
		if err := m.Run(ctx, *poll); err != nil && ctx.Err() == nil {
			msg.Errorf("trigger-mlt: expiry poll loop exited: %+v", err)
		}
	}()

	msg.Infof("trigger-mlt %q running, run=%d links=%v", cmd.Name, *run, cfg.Links)
	ingestTC(ctx, msg, tc, m)

	for _, td := range m.Stop() {
		msg.Infof("trigger-mlt: flushed TriggerDecision %d on shutdown", td.TriggerNumber)
	}
}

func ingestTC(ctx context.Context, msg log.MsgStream, recv netio.Receiver, m *mlt.MLT) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		raw, err := recv.Recv(ctx)
		if err != nil {
			continue
		}
		var tc trigger.TriggerCandidate
		if err := tc.UnmarshalTDAQ(raw); err != nil {
			msg.Warnf("trigger-mlt: dropping malformed TriggerCandidate: %+v", err)
			continue
		}
		if err := m.IngestTC(tc); err != nil {
			msg.Warnf("trigger-mlt: could not ingest TriggerCandidate: %+v", err)
		}
	}
}

func ingestInhibit(ctx context.Context, msg log.MsgStream, recv netio.Receiver, m *mlt.MLT) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		raw, err := recv.Recv(ctx)
		if err != nil {
			continue
		}
		var in trigger.TriggerInhibit
		if err := in.UnmarshalTDAQ(raw); err != nil {
			msg.Warnf("trigger-mlt: dropping malformed TriggerInhibit: %+v", err)
			continue
		}
		m.IngestInhibit(in)
	}
}

func ingestTokens(ctx context.Context, msg log.MsgStream, recv netio.Receiver, tokens *mlt.TokenManager) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		raw, err := recv.Recv(ctx)
		if err != nil {
			continue
		}
		var tok trigger.TriggerDecisionToken
		if err := tok.UnmarshalTDAQ(raw); err != nil {
			msg.Warnf("trigger-mlt: dropping malformed TriggerDecisionToken: %+v", err)
			continue
		}
		tokens.ReceiveToken(tok)
	}
}

func serveControl(ctx context.Context, msg log.MsgStream, recv netio.Receiver, m *mlt.MLT) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		raw, err := recv.Recv(ctx)
		if err != nil {
			continue
		}
		switch strings.TrimSpace(string(raw)) {
		case "pause":
			m.Pause()
		case "resume":
			m.Resume()
		default:
			msg.Warnf("trigger-mlt: unrecognized control command %q", raw)
		}
	}
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// parseReadoutWindows decodes "type:before:after,type:before:after"
// into the c0..c7 table, skipping malformed entries (with a warning on
// the default log stream) rather than failing the whole process over
// one typo.
func parseReadoutWindows(s string) []config.ReadoutWindow {
	if s == "" {
		return nil
	}
	var out []config.ReadoutWindow
	for _, triple := range strings.Split(s, ",") {
		parts := strings.Split(strings.TrimSpace(triple), ":")
		if len(parts) != 3 {
			log.Warnf("trigger-mlt: malformed readout-window entry %q, skipping", triple)
			continue
		}
		typ, err1 := strconv.Atoi(parts[0])
		before, err2 := strconv.ParseUint(parts[1], 10, 64)
		after, err3 := strconv.ParseUint(parts[2], 10, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			log.Warnf("trigger-mlt: malformed readout-window entry %q, skipping", triple)
			continue
		}
		out = append(out, config.ReadoutWindow{
			CandidateType: uint8(typ),
			TimeBefore:    before,
			TimeAfter:     after,
		})
	}
	return out
}
