// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package topology validates the wiring of the trigger pipeline: each
// component declares the named queues it reads from and writes to, and
// Graph.Analyze checks that every input is produced by exactly one
// component and that the resulting dependency graph is acyclic.
package topology // import "github.com/go-daq/tdaq-trigger/topology"

import (
	"sort"
	"strings"

	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Graph is a dependency graph of trigger-pipeline components, each
// identified by name and wired together through named queues (a
// Zipper's output queue, a Slicer's input queue, a latency buffer's
// DataRequest endpoint, ...).
type Graph struct {
	dg    *simple.DirectedGraph
	nodes map[string]*node
	edges map[string]*edge
}

type node struct {
	id   int64
	name string
	in   map[string]struct{}
	out  map[string]struct{}
}

func (n node) ID() int64 { return n.id }

type edge struct {
	name string
	from []int64
	to   []int64
}

// New creates an empty topology graph.
func New() *Graph {
	return &Graph{
		dg:    simple.NewDirectedGraph(),
		nodes: make(map[string]*node),
		edges: make(map[string]*edge),
	}
}

// Has reports whether a component named name has been added.
func (g *Graph) Has(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// Add declares a component named name, consuming the named queues in
// and producing the named queues out.
func (g *Graph) Add(name string, in, out []string) error {
	if _, dup := g.nodes[name]; dup {
		return xerrors.Errorf("topology: duplicate component %q", name)
	}
	if dups := duplicates(in); len(dups) > 0 {
		return xerrors.Errorf("topology: duplicate inputs for %q: %v", name, dups)
	}
	if dups := duplicates(out); len(dups) > 0 {
		return xerrors.Errorf("topology: duplicate outputs for %q: %v", name, dups)
	}

	n := &node{
		name: name,
		id:   int64(len(g.nodes) + 1), // id must not be zero
		in:   make(map[string]struct{}, len(in)),
		out:  make(map[string]struct{}, len(out)),
	}
	for _, q := range in {
		n.in[q] = struct{}{}
		e := g.edgeFor(q)
		e.to = append(e.to, n.id)
	}
	for _, q := range out {
		n.out[q] = struct{}{}
		e := g.edgeFor(q)
		e.from = append(e.from, n.id)
	}

	g.nodes[name] = n
	g.dg.AddNode(n)
	return nil
}

func (g *Graph) edgeFor(queue string) *edge {
	e, ok := g.edges[queue]
	if !ok {
		e = &edge{name: queue}
		g.edges[queue] = e
	}
	return e
}

func (g *Graph) build() (*simple.DirectedGraph, error) {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	producer := make(map[string]string) // queue name -> component name
	for _, name := range names {
		n := g.nodes[name]
		for q := range n.out {
			if other, dup := producer[q]; dup {
				return nil, xerrors.Errorf("topology: queue %q produced by both %q and %q", q, other, name)
			}
			producer[q] = name
		}
	}

	for _, name := range names {
		n := g.nodes[name]
		for q := range n.in {
			if _, ok := producer[q]; !ok {
				return nil, xerrors.Errorf("topology: component %q consumes queue %q, which no component produces", name, q)
			}
		}
	}

	for _, e := range g.edges {
		for _, from := range e.from {
			for _, to := range e.to {
				if from == to {
					return nil, xerrors.Errorf("topology: cycle detected: component %q consumes its own output queue %q", g.dg.Node(from).(*node).name, e.name)
				}
				g.dg.SetEdge(simple.Edge{F: g.dg.Node(from), T: g.dg.Node(to)})
			}
		}
	}

	dg := g.dg
	g.dg = simple.NewDirectedGraph()
	for _, n := range g.nodes {
		g.dg.AddNode(n)
	}
	return dg, nil
}

// Analyze validates the wiring declared so far: every consumed queue
// must be produced by exactly one component, and the resulting
// component graph must be acyclic (no component may feed itself,
// directly or transitively).
func (g *Graph) Analyze() error {
	dg, err := g.build()
	if err != nil {
		return xerrors.Errorf("topology: could not build dependency graph: %w", err)
	}
	return g.check(dg)
}

func (g *Graph) check(dg *simple.DirectedGraph) error {
	for _, scc := range topo.TarjanSCC(dg) {
		if len(scc) == 1 {
			continue
		}
		cycle := make([]string, 0, len(scc))
		for _, n := range scc {
			cycle = append(cycle, n.(*node).name)
		}
		return xerrors.Errorf("topology: cycle detected: %v", strings.Join(cycle, " -> "))
	}
	return nil
}

func duplicates(vs []string) []string {
	var (
		dups []string
		seen = make(map[string]struct{}, len(vs))
	)
	for _, v := range vs {
		if _, dup := seen[v]; dup {
			dups = append(dups, v)
			continue
		}
		seen[v] = struct{}{}
	}
	return dups
}

var _ graph.Node = (*node)(nil)
