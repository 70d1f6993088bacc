// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history keeps a bounded, per-context record of query executions.
//
// The engine is request-scoped with no background workers, so history is a
// fixed-size in-memory ring per context: O(1) append, bounded memory, the
// oldest record overwritten when full. History is observability, not
// state; losing it on restart is fine.
package history

import (
	"sync"

	"github.com/AleutianAI/AleutianInsight/services/insight/contextdoc"
)

// DefaultCapacity is the per-context record limit.
const DefaultCapacity = 100

// ring is a fixed-size circular buffer of execution records.
// Not safe for concurrent use; Recorder synchronizes.
type ring struct {
	data  []contextdoc.ExecutionRecord
	head  int // next write position
	count int
}

func newRing(capacity int) *ring {
	return &ring{data: make([]contextdoc.ExecutionRecord, capacity)}
}

func (r *ring) push(rec contextdoc.ExecutionRecord) {
	r.data[r.head] = rec
	r.head = (r.head + 1) % len(r.data)
	if r.count < len(r.data) {
		r.count++
	}
}

// snapshot returns the records oldest-first.
func (r *ring) snapshot() []contextdoc.ExecutionRecord {
	out := make([]contextdoc.ExecutionRecord, 0, r.count)
	start := r.head - r.count
	if start < 0 {
		start += len(r.data)
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.data[(start+i)%len(r.data)])
	}
	return out
}

// Recorder holds execution history per context id.
//
// Safe for concurrent use.
type Recorder struct {
	mu       sync.RWMutex
	capacity int
	rings    map[string]*ring
}

// NewRecorder creates a recorder keeping up to capacity records per
// context. Non-positive capacity uses DefaultCapacity.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Recorder{
		capacity: capacity,
		rings:    make(map[string]*ring),
	}
}

// Append records one execution.
func (r *Recorder) Append(rec contextdoc.ExecutionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rg, ok := r.rings[rec.ContextID]
	if !ok {
		rg = newRing(r.capacity)
		r.rings[rec.ContextID] = rg
	}
	rg.push(rec)
}

// For returns the recorded executions for a context, oldest first.
func (r *Recorder) For(contextID string) []contextdoc.ExecutionRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rg, ok := r.rings[contextID]
	if !ok {
		return nil
	}
	return rg.snapshot()
}
