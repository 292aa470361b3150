// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package latency_test // import "github.com/go-daq/tdaq-trigger/latency"

import (
	"testing"

	"github.com/go-daq/tdaq-trigger/config"
	"github.com/go-daq/tdaq-trigger/latency"
	"github.com/go-daq/tdaq-trigger/trigger"
)

func newBuf(t *testing.T, capacity int) *latency.Buffer[trigger.TriggerPrimitive] {
	t.Helper()
	b := latency.New[trigger.TriggerPrimitive](nil, trigger.FragTypeTP)
	b.Configure(config.LatencyBuffer{Capacity: capacity})
	return b
}

func TestRequestSuccess(t *testing.T) {
	b := newBuf(t, 100)
	for _, ts := range []trigger.Timestamp{10, 20, 30, 40} {
		b.Insert(trigger.TriggerPrimitive{Start: ts})
	}

	req := trigger.DataRequest{WindowBegin: 15, WindowEnd: 35}
	frag, outcome, ok := b.Request(req)
	if !ok || outcome != latency.Success {
		t.Fatalf("expected Success, got outcome=%v ok=%v", outcome, ok)
	}
	if frag.ErrorBits != trigger.ErrNone {
		t.Fatalf("expected no error bits, got %d", frag.ErrorBits)
	}

	var set trigger.Set[trigger.TriggerPrimitive]
	err := set.UnmarshalTDAQ(frag.Payload, func(p []byte) (trigger.TriggerPrimitive, error) {
		var tp trigger.TriggerPrimitive
		err := tp.UnmarshalTDAQ(p)
		return tp, err
	})
	if err != nil {
		t.Fatalf("could not unmarshal fragment payload: %+v", err)
	}
	if len(set.Objects) != 2 {
		t.Fatalf("fragment carries %d objects, want 2 (ts=20,30)", len(set.Objects))
	}
}

func TestRequestEmpty(t *testing.T) {
	b := newBuf(t, 2)
	for _, ts := range []trigger.Timestamp{100, 200, 300} {
		b.Insert(trigger.TriggerPrimitive{Start: ts})
	}
	// capacity 2 evicted ts=100; earliest is now 200.

	req := trigger.DataRequest{WindowBegin: 0, WindowEnd: 50}
	frag, outcome, ok := b.Request(req)
	if !ok || outcome != latency.Empty {
		t.Fatalf("expected Empty, got outcome=%v ok=%v", outcome, ok)
	}
	if frag.ErrorBits&trigger.ErrDataNotFound == 0 {
		t.Fatalf("expected ErrDataNotFound set, got %d", frag.ErrorBits)
	}
}

func TestRequestLateThenResolved(t *testing.T) {
	b := newBuf(t, 100)
	b.Insert(trigger.TriggerPrimitive{Start: 10})

	req := trigger.DataRequest{WindowBegin: 5, WindowEnd: 50}
	_, _, ok := b.Request(req)
	if ok {
		t.Fatalf("expected the request to be parked (Late), got ok=true")
	}

	resolved := b.Insert(trigger.TriggerPrimitive{Start: 60})
	if len(resolved) != 1 {
		t.Fatalf("expected the parked request to resolve on a later insert, got %d", len(resolved))
	}
}

func TestStopFlushesOnHold(t *testing.T) {
	b := newBuf(t, 100)
	b.Insert(trigger.TriggerPrimitive{Start: 10})

	req := trigger.DataRequest{WindowBegin: 5, WindowEnd: 5000}
	_, _, ok := b.Request(req)
	if ok {
		t.Fatalf("expected the request to be parked")
	}

	flushed := b.Stop()
	if len(flushed) != 1 {
		t.Fatalf("expected Stop to flush 1 request, got %d", len(flushed))
	}
	if flushed[0].ErrorBits&trigger.ErrIncomplete == 0 {
		t.Fatalf("expected ErrIncomplete on stop-flushed fragment, got %d", flushed[0].ErrorBits)
	}
}
