// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command trigger-hbeatgen runs a hbeat.Generator[trigger.TriggerPrimitive]
// as a standalone process: it forwards a real TP stream downstream,
// interleaving synthesized heartbeats so that a Zipper fed by this
// process keeps making progress even when the detector falls silent.
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
	"github.com/go-daq/tdaq-trigger/hbeat"
	"github.com/go-daq/tdaq-trigger/log"
	"github.com/go-daq/tdaq-trigger/netio"
	"github.com/go-daq/tdaq-trigger/trigger"
)

func main() {
	var (
		input           = flag.String("i", "", "PULL endpoint to listen on for the raw TP stream")
		output          = flag.String("o", "", "PUSH endpoint to dial for the heartbeat-interleaved stream")
		clockFrequency  = flag.Float64("clock-hz", 50_000_000, "detector clock frequency")
		hbInterval      = flag.Uint64("hb-interval", 1000, "heartbeat period, in detector ticks")
		hbSendOffsetMS  = flag.Int64("hb-send-offset-ms", 10, "ms subtracted from the extrapolated boundary")
		pollPeriod      = flag.Duration("poll", 10*time.Millisecond, "extrapolation poll period")
		run             = flag.Uint64("run", 1, "run number tagged on emitted sets")
		region          = flag.Int("region", 0, "output StreamId region")
		element         = flag.Int("element", 0, "output StreamId element")
	)

	cmd := flags.New()
	msg := log.NewMsgStream(cmd.Name, cmd.Level, os.Stdout)

	if *input == "" || *output == "" {
		log.Fatalf("trigger-hbeatgen: -i and -o are required")
	}

	origin := trigger.NewStreamId(1, uint16(*region), uint16(*element))
	g := hbeat.New[trigger.TriggerPrimitive](msg, origin, uint32(*run))
	g.Configure(config.HeartbeatGen{
		ClockFrequencyHz:      *clockFrequency,
		HeartbeatInterval:     *hbInterval,
		HeartbeatSendOffsetMS: *hbSendOffsetMS,
		PollPeriod:            *pollPeriod,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	recv, err := netio.ListenPull(*input)
	if err != nil {
		log.Fatalf("%+v", errors.Wrapf(err, "trigger-hbeatgen: could not listen on %q", *input))
	}
	defer recv.Close()

	send, err := netio.DialPush(*output)
	if err != nil {
		log.Fatalf("%+v", errors.Wrapf(err, "trigger-hbeatgen: could not dial %q", *output))
	}
	defer send.Close()

	out := make(chan trigger.Set[trigger.TriggerPrimitive], 64)
	go forward(ctx, msg, send, out)
	go func() {
		if err := g.Run(ctx, out); err != nil && ctx.Err() == nil {
			msg.Errorf("trigger-hbeatgen: periodic poll loop exited: %+v", err)
		}
	}()

	msg.Infof("trigger-hbeatgen %q running, hb_interval=%d", cmd.Name, *hbInterval)
	feed(ctx, msg, recv, g, out)
}

func feed(ctx context.Context, msg log.MsgStream, recv netio.Receiver, g *hbeat.Generator[trigger.TriggerPrimitive], out chan<- trigger.Set[trigger.TriggerPrimitive]) {
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
		var set trigger.Set[trigger.TriggerPrimitive]
		if err := set.UnmarshalTDAQ(raw, unmarshalTP); err != nil {
			msg.Warnf("trigger-hbeatgen: dropping malformed set: %+v", err)
			continue
		}
		g.EmitBefore(time.Now(), set, out)
	}
}

func forward(ctx context.Context, msg log.MsgStream, send netio.Sender, in <-chan trigger.Set[trigger.TriggerPrimitive]) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-in:
			raw, err := s.MarshalTDAQ()
			if err != nil {
				msg.Warnf("trigger-hbeatgen: could not marshal set: %+v", err)
				continue
			}
			sendCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
			err = send.Send(sendCtx, raw)
			cancel()
			if err != nil {
				msg.Warnf("trigger-hbeatgen: could not send set: %+v", err)
			}
		}
	}
}

func unmarshalTP(p []byte) (trigger.TriggerPrimitive, error) {
	var tp trigger.TriggerPrimitive
	err := tp.UnmarshalTDAQ(p)
	return tp, err
}
