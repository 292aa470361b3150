// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command trigger-latbuf runs a latency.Buffer[trigger.TriggerPrimitive]
// as a standalone process: it retains the most recent TPs and answers
// DataRequests against them, parking requests for data that has not
// yet arrived and resolving them as soon as it does.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"

	"github.com/go-daq/tdaq-trigger/config"
	"github.com/go-daq/tdaq-trigger/flags"
	"github.com/go-daq/tdaq-trigger/latency"
	"github.com/go-daq/tdaq-trigger/log"
	"github.com/go-daq/tdaq-trigger/netio"
	"github.com/go-daq/tdaq-trigger/trigger"
)

func main() {
	var (
		dataInput    = flag.String("i", "", "PULL endpoint to listen on for the raw TP stream")
		reqInput     = flag.String("req", "", "PULL endpoint to listen on for DataRequests")
		fragOutput   = flag.String("o", "", "PUSH endpoint to dial for resolved Fragments")
		capacity     = flag.Int("capacity", 10000, "max TPs retained; insertion beyond this evicts the oldest")
		region       = flag.Int("region", 0, "StreamId region this buffer serves")
		element      = flag.Int("element", 0, "StreamId element this buffer serves")
	)

	cmd := flags.New()
	msg := log.NewMsgStream(cmd.Name, cmd.Level, os.Stdout)

	if *dataInput == "" || *reqInput == "" || *fragOutput == "" {
		log.Fatalf("trigger-latbuf: -i, -req and -o are required")
	}

	buf := latency.New[trigger.TriggerPrimitive](msg, trigger.FragTypeTP)
	buf.Configure(config.LatencyBuffer{
		Capacity:  *capacity,
		RegionId:  uint16(*region),
		ElementId: uint16(*element),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	data, err := netio.ListenPull(*dataInput)
	if err != nil {
		log.Fatalf("%+v", errors.Wrapf(err, "trigger-latbuf: could not listen on %q", *dataInput))
	}
	defer data.Close()

	reqs, err := netio.ListenPull(*reqInput)
	if err != nil {
		log.Fatalf("%+v", errors.Wrapf(err, "trigger-latbuf: could not listen on %q", *reqInput))
	}
	defer reqs.Close()

	send, err := netio.DialPush(*fragOutput)
	if err != nil {
		log.Fatalf("%+v", errors.Wrapf(err, "trigger-latbuf: could not dial %q", *fragOutput))
	}
	defer send.Close()

	msg.Infof("trigger-latbuf %q running, capacity=%d", cmd.Name, *capacity)

	go serveRequests(ctx, msg, reqs, send, buf)
	ingest(ctx, msg, data, send, buf)

	for _, frag := range buf.Stop() {
		emit(ctx, msg, send, frag)
	}
}

func ingest(ctx context.Context, msg log.MsgStream, recv netio.Receiver, send netio.Sender, buf *latency.Buffer[trigger.TriggerPrimitive]) {
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
		var tp trigger.TriggerPrimitive
		if err := tp.UnmarshalTDAQ(raw); err != nil {
			msg.Warnf("trigger-latbuf: dropping malformed TP: %+v", err)
			continue
		}
		for _, frag := range buf.Insert(tp) {
			emit(ctx, msg, send, frag)
		}
	}
}

func serveRequests(ctx context.Context, msg log.MsgStream, recv netio.Receiver, send netio.Sender, buf *latency.Buffer[trigger.TriggerPrimitive]) {
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
		var req trigger.DataRequest
		if err := req.UnmarshalTDAQ(raw); err != nil {
			msg.Warnf("trigger-latbuf: dropping malformed DataRequest: %+v", err)
			continue
		}
		frag, outcome, ok := buf.Request(req)
		if !ok {
			msg.Debugf("trigger-latbuf: request for trigger %d parked (%v)", req.TriggerNumber, outcome)
			continue
		}
		emit(ctx, msg, send, frag)
	}
}

func emit(ctx context.Context, msg log.MsgStream, send netio.Sender, frag trigger.Fragment) {
	raw, err := frag.MarshalTDAQ()
	if err != nil {
		msg.Warnf("trigger-latbuf: could not marshal fragment: %+v", err)
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if err := send.Send(sendCtx, raw); err != nil {
		msg.Warnf("trigger-latbuf: could not send fragment: %+v", err)
	}
}
