// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package netio provides the bounded-queue Sender/Receiver contract
// the trigger pipeline's components exchange Sets, DataRequests, and
// TriggerDecisions over, plus mangos-backed adapters for it.
package netio // import "github.com/go-daq/tdaq-trigger/netio"

import (
	"context"
	"time"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pub"
	"go.nanomsg.org/mangos/v3/protocol/pull"
	"go.nanomsg.org/mangos/v3/protocol/push"
	"go.nanomsg.org/mangos/v3/protocol/sub"
	_ "go.nanomsg.org/mangos/v3/transport/inproc"
	_ "go.nanomsg.org/mangos/v3/transport/ipc"
	_ "go.nanomsg.org/mangos/v3/transport/tcp"
	"golang.org/x/xerrors"
)

// Sender delivers a message, blocking up to an internal send timeout;
// on timeout the send is dropped and logged by the caller, per the
// queue.send(value, timeout) contract.
type Sender interface {
	Send(ctx context.Context, p []byte) error
	Close() error
}

// Receiver blocks up to an internal receive timeout (or up to ctx's
// deadline, when it has one), returning either the received message or
// the socket's receive-timeout error, per the queue.receive(timeout)
// contract.
type Receiver interface {
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

const (
	defaultRecvTimeout = 100 * time.Millisecond
	defaultSendTimeout = 10 * time.Millisecond
)

// pushSender is a point-to-point Sender, one writer fan-in to one
// reader (DataRequest, TriggerDecision, Fragment traffic).
type pushSender struct {
	sck mangos.Socket
}

// DialPush connects a PUSH socket to ep.
func DialPush(ep string) (Sender, error) {
	sck, err := push.NewSocket()
	if err != nil {
		return nil, xerrors.Errorf("netio: could not create push socket: %w", err)
	}
	if err := sck.SetOption(mangos.OptionSendDeadline, defaultSendTimeout); err != nil {
		return nil, xerrors.Errorf("netio: could not set send deadline: %w", err)
	}
	if err := sck.Dial(ep); err != nil {
		_ = sck.Close()
		return nil, xerrors.Errorf("netio: could not dial %q: %w", ep, err)
	}
	return &pushSender{sck: sck}, nil
}

func (s *pushSender) Send(ctx context.Context, p []byte) error {
	if dl, ok := ctx.Deadline(); ok {
		_ = s.sck.SetOption(mangos.OptionSendDeadline, time.Until(dl))
	}
	return s.sck.Send(p)
}

func (s *pushSender) Close() error { return s.sck.Close() }

// pullReceiver is the listening side of a PUSH/PULL pair.
type pullReceiver struct {
	sck mangos.Socket
}

// ListenPull binds a PULL socket at ep.
func ListenPull(ep string) (Receiver, error) {
	sck, err := pull.NewSocket()
	if err != nil {
		return nil, xerrors.Errorf("netio: could not create pull socket: %w", err)
	}
	if err := sck.SetOption(mangos.OptionRecvDeadline, defaultRecvTimeout); err != nil {
		return nil, xerrors.Errorf("netio: could not set recv deadline: %w", err)
	}
	if err := sck.Listen(ep); err != nil {
		_ = sck.Close()
		return nil, xerrors.Errorf("netio: could not listen on %q: %w", ep, err)
	}
	return &pullReceiver{sck: sck}, nil
}

func (r *pullReceiver) Recv(ctx context.Context) ([]byte, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = r.sck.SetOption(mangos.OptionRecvDeadline, time.Until(dl))
	}
	return r.sck.Recv()
}

func (r *pullReceiver) Close() error { return r.sck.Close() }

// pubSender is a fan-out Sender (one producer, many subscribers): used
// for heartbeat and TriggerInhibit broadcast.
type pubSender struct {
	sck mangos.Socket
}

// ListenPub binds a PUB socket at ep.
func ListenPub(ep string) (Sender, error) {
	sck, err := pub.NewSocket()
	if err != nil {
		return nil, xerrors.Errorf("netio: could not create pub socket: %w", err)
	}
	if err := sck.Listen(ep); err != nil {
		_ = sck.Close()
		return nil, xerrors.Errorf("netio: could not listen on %q: %w", ep, err)
	}
	return &pubSender{sck: sck}, nil
}

func (s *pubSender) Send(ctx context.Context, p []byte) error { return s.sck.Send(p) }
func (s *pubSender) Close() error                             { return s.sck.Close() }

// subReceiver is the subscribing side of a PUB/SUB pair.
type subReceiver struct {
	sck mangos.Socket
}

// DialSub connects a SUB socket to ep, subscribed to every topic.
func DialSub(ep string) (Receiver, error) {
	sck, err := sub.NewSocket()
	if err != nil {
		return nil, xerrors.Errorf("netio: could not create sub socket: %w", err)
	}
	if err := sck.SetOption(mangos.OptionSubscribe, []byte("")); err != nil {
		return nil, xerrors.Errorf("netio: could not subscribe: %w", err)
	}
	if err := sck.SetOption(mangos.OptionRecvDeadline, defaultRecvTimeout); err != nil {
		return nil, xerrors.Errorf("netio: could not set recv deadline: %w", err)
	}
	if err := sck.Dial(ep); err != nil {
		_ = sck.Close()
		return nil, xerrors.Errorf("netio: could not dial %q: %w", ep, err)
	}
	return &subReceiver{sck: sck}, nil
}

func (r *subReceiver) Recv(ctx context.Context) ([]byte, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = r.sck.SetOption(mangos.OptionRecvDeadline, time.Until(dl))
	}
	return r.sck.Recv()
}

func (r *subReceiver) Close() error { return r.sck.Close() }
