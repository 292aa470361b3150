// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command trigger-zipper runs a Zipper[trigger.TriggerPrimitive] as a
// standalone process: it pulls per-StreamId TP sets from one PULL
// socket per configured input, merges them into time order, and pushes
// the merged stream to a single output socket.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"

	"github.com/pkg/errors"

	"github.com/go-daq/tdaq-trigger/config"
	"github.com/go-daq/tdaq-trigger/flags"
	"github.com/go-daq/tdaq-trigger/log"
	"github.com/go-daq/tdaq-trigger/netio"
	"github.com/go-daq/tdaq-trigger/trigger"
	"github.com/go-daq/tdaq-trigger/zipper"
)

func main() {
	var (
		inputs       = flag.String("inputs", "", "comma-separated list of PULL endpoints, one per input StreamId")
		output       = flag.String("o", "", "PUSH endpoint to dial for the merged output stream")
		cardinality  = flag.Int("cardinality", 1, "number of distinct StreamIds expected before draining eagerly")
		maxLatencyMS = flag.Int64("max-latency-ms", 50, "wall-clock bound, in ms, before a stale head drains anyway")
		region       = flag.Int("region", 0, "output StreamId region")
		element      = flag.Int("element", 0, "output StreamId element")
	)

	cmd := flags.New()
	msg := log.NewMsgStream(cmd.Name, cmd.Level, os.Stdout)

	if *inputs == "" || *output == "" {
		log.Fatalf("trigger-zipper: -inputs and -o are required")
	}

	z := zipper.New[trigger.TriggerPrimitive](msg)
	err := z.Configure(config.Zipper{
		MaxLatencyMS: *maxLatencyMS,
		Cardinality:  *cardinality,
		RegionId:     uint16(*region),
		ElementId:    uint16(*element),
	})
	if err != nil {
		log.Fatalf("trigger-zipper: could not configure: %+v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	in := make(chan trigger.Set[trigger.TriggerPrimitive], 64)
	out := make(chan trigger.Set[trigger.TriggerPrimitive], 64)

	for _, ep := range strings.Split(*inputs, ",") {
		ep := strings.TrimSpace(ep)
		if ep == "" {
			continue
		}
		recv, err := netio.ListenPull(ep)
		if err != nil {
			log.Fatalf("%+v", errors.Wrapf(err, "trigger-zipper: could not listen on %q", ep))
		}
		defer recv.Close()
		go pullSets(ctx, msg, recv, in)
	}

	send, err := netio.DialPush(*output)
	if err != nil {
		log.Fatalf("%+v", errors.Wrapf(err, "trigger-zipper: could not dial %q", *output))
	}
	defer send.Close()
	go pushSets(ctx, msg, send, out)

	msg.Infof("trigger-zipper %q running, cardinality=%d max_latency_ms=%d", cmd.Name, *cardinality, *maxLatencyMS)
	if err := z.Run(ctx, in, out); err != nil && ctx.Err() == nil {
		log.Fatalf("trigger-zipper: run loop exited: %+v", err)
	}
}

func pullSets(ctx context.Context, msg log.MsgStream, recv netio.Receiver, out chan<- trigger.Set[trigger.TriggerPrimitive]) {
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
		var s trigger.Set[trigger.TriggerPrimitive]
		if err := s.UnmarshalTDAQ(raw, unmarshalTP); err != nil {
			msg.Warnf("trigger-zipper: dropping malformed set: %+v", err)
			continue
		}
		select {
		case out <- s:
		case <-ctx.Done():
			return
		}
	}
}

func pushSets(ctx context.Context, msg log.MsgStream, send netio.Sender, in <-chan trigger.Set[trigger.TriggerPrimitive]) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-in:
			raw, err := s.MarshalTDAQ()
			if err != nil {
				msg.Warnf("trigger-zipper: could not marshal merged set: %+v", err)
				continue
			}
			if err := send.Send(ctx, raw); err != nil {
				msg.Warnf("trigger-zipper: could not send merged set: %+v", err)
			}
		}
	}
}

func unmarshalTP(p []byte) (trigger.TriggerPrimitive, error) {
	var tp trigger.TriggerPrimitive
	err := tp.UnmarshalTDAQ(p)
	return tp, err
}
