// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package webctl_test // import "github.com/go-daq/tdaq-trigger/webctl"

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/go-daq/tdaq-trigger/webctl"
)

type fakeSource struct{}

func (fakeSource) NTokens() int  { return 3 }
func (fakeSource) InFlight() int { return 1 }
func (fakeSource) Paused() bool  { return false }
func (fakeSource) Counts() (paused, inhibited, outOfTimeout, tokenStarved uint64) {
	return 2, 0, 1, 0
}
func (fakeSource) LivetimeState() string { return "live" }

func freeAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("could not find a free tcp port: %+v", err)
	}
	addr := lis.Addr().String()
	lis.Close()
	return addr
}

func TestHomePage(t *testing.T) {
	addr := freeAddr(t)
	page := webctl.New(nil, addr, fakeSource{}, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- page.ListenAndServe(ctx) }()
	time.Sleep(50 * time.Millisecond)

	resp, err := http.Get("http://" + addr + "/")
	if err != nil {
		t.Fatalf("could not GET /: %+v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET / = %d, want 200", resp.StatusCode)
	}
	if len(body) == 0 {
		t.Fatalf("expected a non-empty home page body")
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("ListenAndServe returned an error: %+v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("ListenAndServe did not shut down in time")
	}
}

func TestStatusWebsocket(t *testing.T) {
	addr := freeAddr(t)
	page := webctl.New(nil, addr, fakeSource{}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go page.ListenAndServe(ctx)
	time.Sleep(50 * time.Millisecond)

	origin := "http://" + addr + "/"
	url := "ws://" + addr + "/status"
	ws, err := websocket.Dial(url, "", origin)
	if err != nil {
		t.Fatalf("could not dial status websocket: %+v", err)
	}
	defer ws.Close()

	var data struct {
		NTokens       int    `json:"n_tokens"`
		LivetimeState string `json:"livetime_state"`
	}
	ws.SetReadDeadline(time.Now().Add(time.Second))
	if err := websocket.JSON.Receive(ws, &data); err != nil {
		t.Fatalf("could not receive status report: %+v", err)
	}
	if data.NTokens != 3 {
		t.Fatalf("n_tokens = %d, want 3", data.NTokens)
	}
	if data.LivetimeState != "live" {
		t.Fatalf("livetime_state = %q, want %q", data.LivetimeState, "live")
	}
}
