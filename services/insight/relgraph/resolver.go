// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package relgraph

import (
	"container/heap"

	"github.com/AleutianAI/AleutianInsight/services/insight/contextdoc"
)

// FindJoinPath resolves the minimal join path connecting the requested
// datasets.
//
// Description:
//
//	Connecting an arbitrary dataset subset at minimum total edge weight is
//	the Steiner tree problem, which is NP-hard. This resolver uses the
//	documented greedy heuristic instead: start a tree at one requested
//	dataset, then repeatedly attach the nearest unreached requested
//	dataset via its shortest path from the current tree, until all
//	requested datasets are connected. The result is a simple tree: no
//	dataset is ever revisited.
//
//	Traversal ignores relationship declaration direction: a join
//	condition is a symmetric predicate, so an edge connects its endpoints
//	either way. Declaration direction still matters for cycle detection
//	and for how each relationship in the result is oriented (relationships
//	are returned exactly as declared). The tree root is the requested
//	dataset declared earliest in the document.
//
//	Tie-breaks are deterministic throughout: equal-cost paths prefer the
//	relationship declared earliest in the document, and equally near
//	terminals are attached in declaration order.
//
// Inputs:
//
//	requested - Local ids of the datasets the query touches. Duplicates
//	            are ignored. Must all be declared in the document.
//
// Outputs:
//
//	[]contextdoc.Relationship - Join path in attachment order. Empty for
//	                            a single requested dataset. For N
//	                            requested datasets connected without
//	                            intermediates, exactly N-1 relationships.
//	error - *NoPathError when the requested set is disconnected or
//	        contains unknown ids; *CircularPathError when the set is
//	        connected but only by revisiting a dataset.
func (g *Graph) FindJoinPath(requested []string) ([]contextdoc.Relationship, error) {
	terminals, unknown := g.normalizeRequested(requested)
	if len(unknown) > 0 {
		return nil, &NoPathError{Requested: requested, Unknown: unknown}
	}
	if len(terminals) <= 1 {
		return nil, nil
	}

	if path, ok := g.growTree(terminals[0], terminals); ok {
		return path, nil
	}

	// The tree could not span the terminals. Disconnection is the normal
	// cause; a connected set that still resists a simple spanning tree
	// means every candidate path revisits a dataset.
	if unreachable := g.unreachableFrom(terminals); len(unreachable) > 0 {
		return nil, &NoPathError{Requested: terminals, Unreachable: unreachable}
	}
	return nil, &CircularPathError{Requested: terminals}
}

// normalizeRequested deduplicates the requested set, orders it by document
// declaration order, and splits off undeclared ids.
func (g *Graph) normalizeRequested(requested []string) (terminals, unknown []string) {
	seen := make(map[string]bool, len(requested))
	for _, id := range requested {
		if seen[id] {
			continue
		}
		seen[id] = true
		if !g.HasNode(id) {
			unknown = append(unknown, id)
		}
	}
	for _, node := range g.nodes {
		if seen[node] {
			terminals = append(terminals, node)
		}
	}
	return terminals, unknown
}

// growTree runs the greedy attachment loop from one root.
// Returns the edge path in attachment order and whether all terminals
// were connected.
func (g *Graph) growTree(root string, terminals []string) ([]contextdoc.Relationship, bool) {
	inTree := map[string]bool{root: true}
	remaining := make(map[string]bool, len(terminals))
	for _, t := range terminals {
		if t != root {
			remaining[t] = true
		}
	}

	var path []contextdoc.Relationship
	for len(remaining) > 0 {
		dist, prevEdge := g.shortestFrom(inTree)

		// Nearest unreached terminal; declaration order breaks ties.
		nearest := ""
		for _, t := range terminals {
			if !remaining[t] {
				continue
			}
			d, ok := dist[t]
			if !ok {
				continue
			}
			if nearest == "" || d < dist[nearest] {
				nearest = t
			}
		}
		if nearest == "" {
			return nil, false
		}

		// Walk back from the terminal to the tree, collecting edges. Each
		// step crosses to the arrival edge's other endpoint, whichever
		// side of the declaration that is.
		var segment []contextdoc.Relationship
		node := nearest
		for !inTree[node] {
			e := g.edges[prevEdge[node]]
			segment = append(segment, e.Rel)
			if e.Rel.From.Dataset == node {
				node = e.Rel.To.Dataset
			} else {
				node = e.Rel.From.Dataset
			}
		}
		// Reverse into attachment order (tree outward).
		for i := len(segment) - 1; i >= 0; i-- {
			path = append(path, segment[i])
			inTree[segment[i].From.Dataset] = true
			inTree[segment[i].To.Dataset] = true
		}
		delete(remaining, nearest)
	}
	return path, true
}

// =============================================================================
// Shortest paths
// =============================================================================

// pqItem is one priority queue entry for Dijkstra.
type pqItem struct {
	node    string
	dist    float64
	viaEdge int // arrival edge declaration index; -1 for sources
}

// pq orders by distance, then arrival edge declaration index, then node
// declaration index, so traversal order is fully deterministic.
type pq struct {
	items []pqItem
	g     *Graph
}

func (q *pq) Len() int { return len(q.items) }

func (q *pq) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	if a.viaEdge != b.viaEdge {
		return a.viaEdge < b.viaEdge
	}
	return q.g.nodeIndex[a.node] < q.g.nodeIndex[b.node]
}

func (q *pq) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *pq) Push(x any) { q.items = append(q.items, x.(pqItem)) }

func (q *pq) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	q.items = old[:n-1]
	return item
}

// shortestFrom runs multi-source Dijkstra from every tree node, crossing
// edges in either direction. Self-loops never improve a path and are
// skipped. Returns the distance map and, per reached node, the declaration
// index of the edge it was reached through.
func (g *Graph) shortestFrom(sources map[string]bool) (map[string]float64, map[string]int) {
	dist := make(map[string]float64, len(g.nodes))
	prevEdge := make(map[string]int, len(g.nodes))
	done := make(map[string]bool, len(g.nodes))

	q := &pq{g: g}
	for node := range sources {
		dist[node] = 0
		q.items = append(q.items, pqItem{node: node, dist: 0, viaEdge: -1})
	}
	heap.Init(q)

	for q.Len() > 0 {
		item := heap.Pop(q).(pqItem)
		if done[item.node] {
			continue
		}
		done[item.node] = true

		for _, ei := range g.adj[item.node] {
			e := g.edges[ei]
			next := e.Rel.To.Dataset
			if next == item.node {
				next = e.Rel.From.Dataset
			}
			if next == item.node || done[next] {
				continue
			}
			nd := item.dist + e.Weight
			cur, seen := dist[next]
			if !seen || nd < cur || (nd == cur && ei < prevEdge[next]) {
				dist[next] = nd
				prevEdge[next] = ei
				heap.Push(q, pqItem{node: next, dist: nd, viaEdge: ei})
			}
		}
	}
	return dist, prevEdge
}

// unreachableFrom returns the terminals not connected to the first
// terminal. Used only to pick between NoPathError and CircularPathError
// after tree growth has failed.
func (g *Graph) unreachableFrom(terminals []string) []string {
	adj := make(map[string][]string, len(g.nodes))
	for _, e := range g.edges {
		from, to := e.Rel.From.Dataset, e.Rel.To.Dataset
		if from == to {
			continue
		}
		adj[from] = append(adj[from], to)
		adj[to] = append(adj[to], from)
	}

	reached := map[string]bool{terminals[0]: true}
	queue := []string{terminals[0]}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, next := range adj[node] {
			if !reached[next] {
				reached[next] = true
				queue = append(queue, next)
			}
		}
	}

	var unreachable []string
	for _, t := range terminals[1:] {
		if !reached[t] {
			unreachable = append(unreachable, t)
		}
	}
	return unreachable
}
