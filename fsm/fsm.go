// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fsm describes the lifecycle states shared by every trigger
// pipeline component (Zipper, Slicer, heartbeat generator, latency
// buffer, MLT).
package fsm // import "github.com/go-daq/tdaq-trigger/fsm"

import (
	"fmt"
)

// Status describes the current lifecycle state of a pipeline component.
type Status uint8

const (
	Idle Status = iota
	Configured
	Running
	Paused
	Stopped
	Exiting
	Error
)

func (st Status) String() string {
	switch st {
	case Idle:
		return "idle"
	case Configured:
		return "configured"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	case Exiting:
		return "exiting"
	case Error:
		return "error"
	default:
		panic(fmt.Errorf("invalid status value %d", uint8(st)))
	}
}

// CanConfigure reports whether conf is a legal transition from st.
func (st Status) CanConfigure() bool {
	switch st {
	case Idle, Configured, Stopped, Error:
		return true
	default:
		return false
	}
}

// CanStart reports whether start is a legal transition from st.
func (st Status) CanStart() bool {
	switch st {
	case Configured, Stopped:
		return true
	default:
		return false
	}
}

// CanStop reports whether stop is a legal transition from st.
func (st Status) CanStop() bool {
	switch st {
	case Running, Paused:
		return true
	default:
		return false
	}
}
