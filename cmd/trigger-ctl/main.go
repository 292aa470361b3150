// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command trigger-ctl is an interactive shell for a running
// trigger-mlt process: it sends pause/resume control commands over a
// netio PUSH socket and reports status by polling the MLT's webctl
// websocket. Before admitting any command it validates the pipeline's
// declared queue wiring for cycles.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/peterh/liner"
	"golang.org/x/net/websocket"

	"github.com/go-daq/tdaq-trigger/flags"
	"github.com/go-daq/tdaq-trigger/log"
	"github.com/go-daq/tdaq-trigger/netio"
	"github.com/go-daq/tdaq-trigger/topology"
)

func main() {
	var (
		ctrlOutput = flag.String("ctrl", "", "PUSH endpoint to dial for pause/resume control commands; defaults to -rc-addr")
		statusAddr = flag.String("status", "", "ws://host:port/status endpoint of the MLT's webctl page")
	)

	cmd := flags.New()
	msg := log.NewMsgStream(cmd.Name, cmd.Level, os.Stdout)

	if err := validateTopology(); err != nil {
		log.Fatalf("trigger-ctl: pipeline wiring is invalid: %+v", err)
	}

	// -ctrl, if unset, falls back to the -rc-addr endpoint flags.New()
	// already parsed into cmd.RunCtl, so a bare "trigger-ctl -id ctl"
	// talks to the conventional run-control address without repeating
	// it. Since that value is a default rather than an explicit ask,
	// a failed dial here only disables pause/resume instead of exiting.
	ctrlEndpoint := *ctrlOutput
	if ctrlEndpoint == "" {
		ctrlEndpoint = cmd.RunCtl
	}

	var send netio.Sender
	if ctrlEndpoint != "" {
		var err error
		send, err = netio.DialPush(ctrlEndpoint)
		if err != nil {
			msg.Warnf("trigger-ctl: could not dial run-control endpoint %q, pause/resume disabled: %+v", ctrlEndpoint, err)
			send = nil
		} else {
			defer send.Close()
		}
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	msg.Infof("trigger-ctl %q ready. commands: pause, resume, status, quit", cmd.Name)
	for {
		cmdline, err := line.Prompt("trigger-ctl> ")
		if err != nil {
			if err == io.EOF || err == liner.ErrPromptAborted {
				return
			}
			msg.Errorf("trigger-ctl: could not read command: %+v", err)
			return
		}
		cmdline = strings.TrimSpace(cmdline)
		if cmdline == "" {
			continue
		}
		line.AppendHistory(cmdline)

		switch cmdline {
		case "quit", "exit":
			return
		case "status":
			printStatus(*statusAddr)
		case "pause", "resume":
			sendControl(send, msg, cmdline)
		default:
			fmt.Printf("unknown command %q (try: pause, resume, status, quit)\n", cmdline)
		}
	}
}

func sendControl(send netio.Sender, msg log.MsgStream, cmd string) {
	if send == nil {
		fmt.Println("no -ctrl endpoint configured, cannot send control commands")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := send.Send(ctx, []byte(cmd)); err != nil {
		msg.Errorf("trigger-ctl: could not send %q: %+v", cmd, err)
	}
}

func printStatus(addr string) {
	if addr == "" {
		fmt.Println("no -status endpoint configured")
		return
	}
	ws, err := websocket.Dial(addr, "", "http://localhost/")
	if err != nil {
		fmt.Printf("could not dial status endpoint: %+v\n", err)
		return
	}
	defer ws.Close()

	ws.SetReadDeadline(time.Now().Add(time.Second))
	var report map[string]interface{}
	if err := websocket.JSON.Receive(ws, &report); err != nil {
		fmt.Printf("could not receive status report: %+v\n", err)
		return
	}
	for k, v := range report {
		fmt.Printf("  %-20s %v\n", k, v)
	}
}

// validateTopology checks the fixed five-stage pipeline this shell
// drives (hbeatgen -> zipper -> slicer -> mlt, latbuf serving readout
// requests off the merged stream) for cyclic or undeclared wiring
// before admitting any interactive command.
func validateTopology() error {
	g := topology.New()
	if err := g.Add("trigger-hbeatgen", nil, []string{"tp.raw.0"}); err != nil {
		return err
	}
	if err := g.Add("trigger-zipper", []string{"tp.raw.0"}, []string{"tp.merged"}); err != nil {
		return err
	}
	if err := g.Add("trigger-slicer", []string{"tp.merged"}, []string{"tp.windows"}); err != nil {
		return err
	}
	if err := g.Add("trigger-latbuf", []string{"tp.merged"}, []string{"tp.fragments"}); err != nil {
		return err
	}
	if err := g.Add("trigger-mlt", []string{"tp.windows"}, []string{"td.decisions"}); err != nil {
		return err
	}
	return g.Analyze()
}
