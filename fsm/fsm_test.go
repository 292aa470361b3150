// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fsm // import "github.com/go-daq/tdaq-trigger/fsm"

import "testing"

func TestStatus(t *testing.T) {
	for _, tt := range []struct {
		status Status
		want   string
		panics bool
	}{
		{status: Idle, want: "idle"},
		{status: Configured, want: "configured"},
		{status: Running, want: "running"},
		{status: Paused, want: "paused"},
		{status: Stopped, want: "stopped"},
		{status: Exiting, want: "exiting"},
		{status: Error, want: "error"},
		{status: Status(255), panics: true},
	} {
		t.Run("", func(t *testing.T) {
			if tt.panics {
				defer func() {
					err := recover()
					if err == nil {
						t.Fatalf("expected a panic")
					}
				}()
			}

			got := tt.status.String()
			if got != tt.want {
				t.Fatalf("invalid stringer value.\ngot = %q\nwant= %q\n", got, tt.want)
			}
		})
	}
}

func TestTransitions(t *testing.T) {
	for _, tt := range []struct {
		status                     Status
		canConf, canStart, canStop bool
	}{
		{Idle, true, false, false},
		{Configured, true, true, false},
		{Running, false, false, true},
		{Paused, false, false, true},
		{Stopped, true, true, false},
		{Exiting, false, false, false},
		{Error, true, false, false},
	} {
		if got := tt.status.CanConfigure(); got != tt.canConf {
			t.Errorf("%v.CanConfigure() = %v, want %v", tt.status, got, tt.canConf)
		}
		if got := tt.status.CanStart(); got != tt.canStart {
			t.Errorf("%v.CanStart() = %v, want %v", tt.status, got, tt.canStart)
		}
		if got := tt.status.CanStop(); got != tt.canStop {
			t.Errorf("%v.CanStop() = %v, want %v", tt.status, got, tt.canStop)
		}
	}
}
