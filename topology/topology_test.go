// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package topology_test // import "github.com/go-daq/tdaq-trigger/topology"

import (
	"testing"

	"github.com/go-daq/tdaq-trigger/topology"
)

func TestPipelineWiring(t *testing.T) {
	g := topology.New()
	for _, tt := range []struct {
		name string
		in   []string
		out  []string
		err  bool
	}{
		{name: "tp-hbeatgen-0", out: []string{"tp.raw.0"}},
		{name: "tp-hbeatgen-1", out: []string{"tp.raw.1"}},
		{name: "tp-zipper", in: []string{"tp.raw.0", "tp.raw.1"}, out: []string{"tp.merged"}},
		{name: "tp-slicer", in: []string{"tp.merged"}, out: []string{"tp.sets"}},
		{name: "tp-latbuf", in: []string{"tp.sets"}, out: []string{"tp.fragments"}},
		{name: "mlt", in: []string{"tc.merged"}, out: []string{"td.decisions"}},
	} {
		err := g.Add(tt.name, tt.in, tt.out)
		if (err != nil) != tt.err {
			t.Fatalf("Add(%q, %v, %v): got err=%v, want err=%v", tt.name, tt.in, tt.out, err, tt.err)
		}
	}

	if err := g.Analyze(); err == nil {
		t.Fatalf("expected Analyze to fail: mlt consumes tc.merged, which nothing produces")
	}

	if err := g.Add("tc-zipper", nil, []string{"tc.merged"}); err != nil {
		t.Fatalf("could not add tc-zipper: %+v", err)
	}
	if err := g.Analyze(); err != nil {
		t.Fatalf("expected a fully-wired acyclic pipeline to validate, got: %+v", err)
	}
}

func TestCycleDetected(t *testing.T) {
	g := topology.New()
	mustAdd(t, g, "a", []string{"y"}, []string{"x"})
	mustAdd(t, g, "b", []string{"x"}, []string{"y"})

	if err := g.Analyze(); err == nil {
		t.Fatalf("expected a cycle a->b->a to be detected")
	}
}

func TestDuplicateProducer(t *testing.T) {
	g := topology.New()
	mustAdd(t, g, "a", nil, []string{"q"})
	mustAdd(t, g, "b", nil, []string{"q"})

	if err := g.Analyze(); err == nil {
		t.Fatalf("expected two producers of the same queue to be rejected")
	}
}

func mustAdd(t *testing.T, g *topology.Graph, name string, in, out []string) {
	t.Helper()
	if err := g.Add(name, in, out); err != nil {
		t.Fatalf("could not add %q: %+v", name, err)
	}
}
