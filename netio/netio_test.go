// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package netio_test // import "github.com/go-daq/tdaq-trigger/netio"

import (
	"context"
	"testing"
	"time"

	"github.com/go-daq/tdaq-trigger/netio"
)

func TestPushPullRoundTrip(t *testing.T) {
	ep := "inproc://netio-test-pushpull"

	recv, err := netio.ListenPull(ep)
	if err != nil {
		t.Fatalf("could not listen pull: %+v", err)
	}
	defer recv.Close()

	send, err := netio.DialPush(ep)
	if err != nil {
		t.Fatalf("could not dial push: %+v", err)
	}
	defer send.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := send.Send(ctx, []byte("hello")); err != nil {
		t.Fatalf("could not send: %+v", err)
	}

	got, err := recv.Recv(ctx)
	if err != nil {
		t.Fatalf("could not recv: %+v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

func TestPubSubRoundTrip(t *testing.T) {
	ep := "inproc://netio-test-pubsub"

	send, err := netio.ListenPub(ep)
	if err != nil {
		t.Fatalf("could not listen pub: %+v", err)
	}
	defer send.Close()

	recv, err := netio.DialSub(ep)
	if err != nil {
		t.Fatalf("could not dial sub: %+v", err)
	}
	defer recv.Close()

	// give the subscriber a moment to finish its handshake.
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := send.Send(ctx, []byte("heartbeat")); err != nil {
		t.Fatalf("could not send: %+v", err)
	}

	got, err := recv.Recv(ctx)
	if err != nil {
		t.Fatalf("could not recv: %+v", err)
	}
	if string(got) != "heartbeat" {
		t.Fatalf("got %q, want %q", got, "heartbeat")
	}
}
