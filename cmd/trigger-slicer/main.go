// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command trigger-slicer runs a Slicer[trigger.TriggerPrimitive] as a
// standalone process: it pulls a single merged TP stream, buffers
// objects into fixed-width windows, and pushes each completed window
// downstream as soon as it is ready.
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
	"github.com/go-daq/tdaq-trigger/log"
	"github.com/go-daq/tdaq-trigger/netio"
	"github.com/go-daq/tdaq-trigger/slicer"
	"github.com/go-daq/tdaq-trigger/trigger"
)

func main() {
	var (
		input       = flag.String("i", "", "PULL endpoint to listen on for the merged TP stream")
		output      = flag.String("o", "", "PUSH endpoint to dial for completed windows")
		windowTicks = flag.Uint64("window-ticks", 1000, "window size, in detector ticks")
		bufferTicks = flag.Uint64("buffer-ticks", 500, "grace period past window end, in detector ticks")
		run         = flag.Uint64("run", 1, "run number tagged on emitted sets")
		region      = flag.Int("region", 0, "output StreamId region")
		element     = flag.Int("element", 0, "output StreamId element")
		poll        = flag.Duration("poll", 5*time.Millisecond, "flush poll period")
	)

	cmd := flags.New()
	msg := log.NewMsgStream(cmd.Name, cmd.Level, os.Stdout)

	if *input == "" || *output == "" {
		log.Fatalf("trigger-slicer: -i and -o are required")
	}

	origin := trigger.NewStreamId(1, uint16(*region), uint16(*element))
	s := slicer.New[trigger.TriggerPrimitive](msg, origin, uint32(*run))
	if err := s.Configure(config.Slicer{WindowTicks: *windowTicks, BufferTicks: *bufferTicks}); err != nil {
		log.Fatalf("trigger-slicer: could not configure: %+v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	recv, err := netio.ListenPull(*input)
	if err != nil {
		log.Fatalf("%+v", errors.Wrapf(err, "trigger-slicer: could not listen on %q", *input))
	}
	defer recv.Close()

	send, err := netio.DialPush(*output)
	if err != nil {
		log.Fatalf("%+v", errors.Wrapf(err, "trigger-slicer: could not dial %q", *output))
	}
	defer send.Close()

	msg.Infof("trigger-slicer %q running, window_ticks=%d buffer_ticks=%d", cmd.Name, *windowTicks, *bufferTicks)

	go feed(ctx, msg, recv, s)
	flushLoop(ctx, msg, send, s, *poll)
}

func feed(ctx context.Context, msg log.MsgStream, recv netio.Receiver, s *slicer.Slicer[trigger.TriggerPrimitive]) {
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
			msg.Warnf("trigger-slicer: dropping malformed set: %+v", err)
			continue
		}
		if set.IsHeartbeat() {
			s.BufferHeartbeat(set)
			continue
		}
		s.Buffer(set.Objects)
	}
}

func flushLoop(ctx context.Context, msg log.MsgStream, send netio.Sender, s *slicer.Slicer[trigger.TriggerPrimitive], poll time.Duration) {
	tick := time.NewTicker(poll)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			for {
				set, ok := s.Flush()
				if !ok {
					break
				}
				raw, err := set.MarshalTDAQ()
				if err != nil {
					msg.Warnf("trigger-slicer: could not marshal window: %+v", err)
					continue
				}
				sendCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
				err = send.Send(sendCtx, raw)
				cancel()
				if err != nil {
					msg.Warnf("trigger-slicer: could not send window: %+v", err)
				}
			}
		}
	}
}

func unmarshalTP(p []byte) (trigger.TriggerPrimitive, error) {
	var tp trigger.TriggerPrimitive
	err := tp.UnmarshalTDAQ(p)
	return tp, err
}
