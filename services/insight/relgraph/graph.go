// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package relgraph builds the relationship graph of a context document and
// resolves join paths across it.
//
// Nodes are the document's local dataset ids; edges are its declared
// relationships, kept in declaration order. The graph is built once per
// validated document and is cacheable by document fingerprint (see Cache).
// All graph state is immutable after Build, so a Graph is safe for
// concurrent use.
package relgraph

import (
	"math"
	"sort"
	"sync"

	"github.com/AleutianAI/AleutianInsight/services/insight/contextdoc"
)

// Edge is one relationship embedded in the graph.
type Edge struct {
	// Rel is the declared relationship.
	Rel contextdoc.Relationship

	// Index is the declaration order within the document, starting at 0.
	// It is the deterministic tie-break for equal-cost paths.
	Index int

	// Weight is the traversal cost. Defaults to 1; overridable with
	// row-count estimates (see WithRowEstimates).
	Weight float64
}

// Graph is the immutable relationship graph of one document version.
type Graph struct {
	fingerprint string
	nodes       []string
	nodeIndex   map[string]int
	edges       []Edge

	// out holds directed adjacency (declaration direction), used by cycle
	// detection.
	out map[string][]int // node -> edge indices

	// adj holds undirected adjacency, used by path resolution: a join
	// condition is a symmetric predicate, so a relationship connects its
	// endpoints regardless of which side declared it.
	adj map[string][]int // node -> edge indices
}

// Option configures Build.
type Option func(*buildOptions)

type buildOptions struct {
	rowEstimates map[string]int64
}

// WithRowEstimates weights edges by the estimated row counts of their
// endpoint datasets, keyed by local id. An edge's weight becomes
// 1 + log10(1 + rows(to)), so joins into large datasets are preferred
// last. Datasets without an estimate keep weight 1.
func WithRowEstimates(estimates map[string]int64) Option {
	return func(o *buildOptions) {
		o.rowEstimates = estimates
	}
}

// Build constructs the relationship graph for a document.
//
// Description:
//
//	Every declared dataset becomes a node, present or not in any
//	relationship, so single-dataset documents and isolated datasets are
//	representable. Relationships referencing undeclared datasets are
//	still added as edges; the validator reports them separately, and the
//	resolver treats their endpoints as ordinary nodes.
//
// Inputs:
//
//	doc - The parsed document. Must not be nil.
//	opts - Optional build configuration.
//
// Outputs:
//
//	*Graph - Immutable graph, safe for concurrent use.
func Build(doc *contextdoc.ContextDocument, opts ...Option) *Graph {
	var options buildOptions
	for _, opt := range opts {
		opt(&options)
	}

	g := &Graph{
		fingerprint: doc.Fingerprint,
		nodeIndex:   make(map[string]int),
		out:         make(map[string][]int),
		adj:         make(map[string][]int),
	}

	addNode := func(id string) {
		if _, ok := g.nodeIndex[id]; !ok {
			g.nodeIndex[id] = len(g.nodes)
			g.nodes = append(g.nodes, id)
		}
	}
	for _, ds := range doc.Datasets {
		addNode(ds.LocalID)
	}

	for i, rel := range doc.Relationships {
		addNode(rel.From.Dataset)
		addNode(rel.To.Dataset)
		weight := 1.0
		if rows, ok := options.rowEstimates[rel.To.Dataset]; ok && rows > 0 {
			weight = 1 + math.Log10(1+float64(rows))
		}
		g.edges = append(g.edges, Edge{Rel: rel, Index: i, Weight: weight})
		g.out[rel.From.Dataset] = append(g.out[rel.From.Dataset], i)
		g.adj[rel.From.Dataset] = append(g.adj[rel.From.Dataset], i)
		if rel.To.Dataset != rel.From.Dataset {
			g.adj[rel.To.Dataset] = append(g.adj[rel.To.Dataset], i)
		}
	}
	return g
}

// Fingerprint returns the document fingerprint the graph was built from.
func (g *Graph) Fingerprint() string {
	return g.fingerprint
}

// Nodes returns the node ids in declaration order.
func (g *Graph) Nodes() []string {
	out := make([]string, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Edges returns the edges in declaration order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// HasNode reports whether the local id is a graph node.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodeIndex[id]
	return ok
}

// =============================================================================
// Cycle detection
// =============================================================================

// Cycles returns every directed cycle in the graph.
//
// Description:
//
//	Depth-first search with an explicit recursion-stack set. When an edge
//	reaches a node currently on the stack, the stack segment from that
//	node onward is one cycle. Each cycle is reported once, as the node
//	sequence in traversal order (the closing node is not repeated).
//
//	Declared cycles are legal in a document; they only become errors when
//	a query structurally requires traversing one (the validator decides
//	that). Path resolution always refuses to revisit a node regardless.
//
// Outputs:
//
//	[][]string - One slice of local ids per cycle, deterministic order.
func (g *Graph) Cycles() [][]string {
	const (
		white = 0 // unvisited
		gray  = 1 // on recursion stack
		black = 2 // done
	)
	state := make(map[string]int, len(g.nodes))
	var stack []string
	onStack := make(map[string]int) // node -> stack position
	var cycles [][]string
	seen := make(map[string]bool) // canonical cycle key -> reported

	var dfs func(node string)
	dfs = func(node string) {
		state[node] = gray
		onStack[node] = len(stack)
		stack = append(stack, node)

		for _, ei := range g.out[node] {
			next := g.edges[ei].Rel.To.Dataset
			switch state[next] {
			case white:
				dfs(next)
			case gray:
				start := onStack[next]
				cycle := make([]string, len(stack)-start)
				copy(cycle, stack[start:])
				key := canonicalCycleKey(cycle)
				if !seen[key] {
					seen[key] = true
					cycles = append(cycles, cycle)
				}
			}
		}

		stack = stack[:len(stack)-1]
		delete(onStack, node)
		state[node] = black
	}

	for _, node := range g.nodes {
		if state[node] == white {
			dfs(node)
		}
	}
	return cycles
}

// canonicalCycleKey builds a rotation-invariant key so the same cycle
// discovered from two entry points is reported once.
func canonicalCycleKey(cycle []string) string {
	sorted := make([]string, len(cycle))
	copy(sorted, cycle)
	sort.Strings(sorted)
	key := ""
	for _, n := range sorted {
		key += n + "\x00"
	}
	return key
}

// DuplicateEdge is a relationship repeating an earlier declaration's
// ordered (dataset, column) endpoint pair.
type DuplicateEdge struct {
	// First is the declaration index of the original relationship.
	First int

	// Dup is the declaration index of the repeated relationship.
	Dup int
}

// DuplicateEdges returns the duplicated relationship declarations.
// Duplicates are warnings, not errors: the earliest declaration wins
// during path resolution.
func (g *Graph) DuplicateEdges() []DuplicateEdge {
	type pair struct{ from, to string }
	first := make(map[pair]int)
	var dups []DuplicateEdge
	for _, e := range g.edges {
		p := pair{e.Rel.From.String(), e.Rel.To.String()}
		if orig, ok := first[p]; ok {
			dups = append(dups, DuplicateEdge{First: orig, Dup: e.Index})
			continue
		}
		first[p] = e.Index
	}
	return dups
}

// =============================================================================
// Graph cache
// =============================================================================

// Cache memoizes built graphs by document fingerprint.
//
// Graphs are pure derivations of document content, so fingerprint equality
// means graph equality. Safe for concurrent use. Entries are never evicted;
// the number of distinct live document versions is small and bounded by the
// repository.
type Cache struct {
	mu     sync.RWMutex
	graphs map[string]*Graph
}

// NewCache creates an empty graph cache.
func NewCache() *Cache {
	return &Cache{graphs: make(map[string]*Graph)}
}

// Contains reports whether a graph for the fingerprint is already cached.
func (c *Cache) Contains(fingerprint string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.graphs[fingerprint]
	return ok
}

// For returns the cached graph for the document, building it on first use.
func (c *Cache) For(doc *contextdoc.ContextDocument, opts ...Option) *Graph {
	c.mu.RLock()
	g, ok := c.graphs[doc.Fingerprint]
	c.mu.RUnlock()
	if ok {
		return g
	}

	built := Build(doc, opts...)
	c.mu.Lock()
	defer c.mu.Unlock()
	// A concurrent builder may have won; keep the first stored graph so
	// callers share one instance.
	if g, ok := c.graphs[doc.Fingerprint]; ok {
		return g
	}
	c.graphs[doc.Fingerprint] = built
	return built
}
