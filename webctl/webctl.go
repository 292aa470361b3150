// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package webctl serves a small HTTP+WebSocket status page reporting
// the MLT's livetime and counter state, in the manner of the teacher's
// run-control web GUI.
package webctl // import "github.com/go-daq/tdaq-trigger/webctl"

import (
	"context"
	"errors"
	"html/template"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/websocket"

	"github.com/go-daq/tdaq-trigger/log"
)

// Source reports the live counters a Page publishes. A *mlt.MLT
// satisfies it directly through its Counts/NTokens/InFlight/Paused/
// LivetimeState methods; webctl itself does not import mlt.
type Source interface {
	NTokens() int
	InFlight() int
	Paused() bool
	Counts() (tdPaused, tdInhibited, tcOutOfTimeout, tdTokenStarved uint64)
	LivetimeState() string
}

// Page is an HTTP+WebSocket server exposing a Source's state.
type Page struct {
	msg    log.MsgStream
	src    Source
	srv    *http.Server
	period time.Duration
}

// New creates a Page serving addr, polling src every period for the
// websocket status feed.
func New(msg log.MsgStream, addr string, src Source, period time.Duration) *Page {
	if msg == nil {
		msg = log.Default
	}
	if period <= 0 {
		period = time.Second
	}
	p := &Page{msg: msg, src: src, period: period}

	mux := http.NewServeMux()
	mux.HandleFunc("/", p.home)
	mux.Handle("/status", websocket.Handler(p.status))
	p.srv = &http.Server{Addr: addr, Handler: mux}
	return p
}

// ListenAndServe blocks serving the status page until ctx is canceled
// or the server errors out.
func (p *Page) ListenAndServe(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = p.srv.Shutdown(context.Background())
	}()

	p.msg.Infof("starting mlt status page on %q...", p.srv.Addr)
	err := p.srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (p *Page) home(w http.ResponseWriter, r *http.Request) {
	t, err := template.New("mlt-home").Parse(homePage)
	if err != nil {
		p.msg.Errorf("webctl: could not parse home page: %+v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := t.Execute(w, nil); err != nil {
		p.msg.Errorf("webctl: could not execute home page template: %+v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type statusReport struct {
	NTokens        int    `json:"n_tokens"`
	InFlight       int    `json:"in_flight"`
	Paused         bool   `json:"paused"`
	TDPaused       uint64 `json:"td_paused_count"`
	TDInhibited    uint64 `json:"td_inhibited_count"`
	TCOutOfTime    uint64 `json:"tc_out_of_timeout_count"`
	TDTokenStarved uint64 `json:"td_token_starved_count"`
	LivetimeState  string `json:"livetime_state"`
	Timestamp      string `json:"timestamp"`
}

func (p *Page) status(ws *websocket.Conn) {
	defer ws.Close()

	tick := time.NewTicker(p.period)
	defer tick.Stop()

	for range tick.C {
		tdPaused, tdInhibited, tcOutOfTime, tdTokenStarved := p.src.Counts()
		report := statusReport{
			NTokens:        p.src.NTokens(),
			InFlight:       p.src.InFlight(),
			Paused:         p.src.Paused(),
			TDPaused:       tdPaused,
			TDInhibited:    tdInhibited,
			TCOutOfTime:    tcOutOfTime,
			TDTokenStarved: tdTokenStarved,
			LivetimeState:  p.src.LivetimeState(),
			Timestamp:      time.Now().UTC().Format("2006-01-02 15:04:05") + " (UTC)",
		}
		if err := websocket.JSON.Send(ws, report); err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				return
			}
			p.msg.Errorf("webctl: could not send status report: %+v", err)
			return
		}
	}
}

const homePage = `<html>
<head>
	<title>MLT Status</title>
	<meta name="viewport" content="width=device-width, initial-scale=1">
</head>
<body>
<h2>Module-Level Trigger</h2>
<table>
<tbody>
	<tr><th>n_tokens</th><td id="n-tokens">N/A</td></tr>
	<tr><th>in_flight</th><td id="in-flight">N/A</td></tr>
	<tr><th>paused</th><td id="paused">N/A</td></tr>
	<tr><th>td_paused_count</th><td id="td-paused">N/A</td></tr>
	<tr><th>td_inhibited_count</th><td id="td-inhibited">N/A</td></tr>
	<tr><th>tc_out_of_timeout_count</th><td id="tc-out-of-timeout">N/A</td></tr>
	<tr><th>livetime_state</th><td id="livetime-state">N/A</td></tr>
</tbody>
</table>
<span>Last update: <span id="ts">N/A</span></span>
<script type="text/javascript">
"use strict";
var ws = new WebSocket("ws://" + location.host + "/status");
ws.onmessage = function(event) {
	var data = JSON.parse(event.data);
	document.getElementById("n-tokens").innerText = data.n_tokens;
	document.getElementById("in-flight").innerText = data.in_flight;
	document.getElementById("paused").innerText = data.paused;
	document.getElementById("td-paused").innerText = data.td_paused_count;
	document.getElementById("td-inhibited").innerText = data.td_inhibited_count;
	document.getElementById("tc-out-of-timeout").innerText = data.tc_out_of_timeout_count;
	document.getElementById("livetime-state").innerText = data.livetime_state;
	document.getElementById("ts").innerText = data.timestamp;
};
</script>
</body>
</html>
`
