// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianInsight/services/insight/contextdoc"
)

// =============================================================================
// MemoryDatasetStore
// =============================================================================

// MemoryDatasetStore is an in-memory DatasetStore for tests and local runs.
//
// Schemas are registered per user. Query execution returns canned rows set
// via SetRows, optionally after an artificial delay (for timeout tests).
// Safe for concurrent use.
type MemoryDatasetStore struct {
	mu      sync.RWMutex
	schemas map[string]map[string]*DatasetSchema // userID -> datasetID -> schema
	rows    map[string][]contextdoc.Row          // query text -> rows
	def     []contextdoc.Row                     // fallback rows
	execErr error
	delay   time.Duration
	execs   int
}

// NewMemoryDatasetStore creates an empty store.
func NewMemoryDatasetStore() *MemoryDatasetStore {
	return &MemoryDatasetStore{
		schemas: make(map[string]map[string]*DatasetSchema),
		rows:    make(map[string][]contextdoc.Row),
	}
}

// AddSchema registers a dataset schema visible to the given user.
func (s *MemoryDatasetStore) AddSchema(userID string, schema *DatasetSchema) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schemas[userID] == nil {
		s.schemas[userID] = make(map[string]*DatasetSchema)
	}
	s.schemas[userID][schema.DatasetID] = schema
}

// SetRows sets the rows returned for an exact query text.
func (s *MemoryDatasetStore) SetRows(query string, rows []contextdoc.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[query] = rows
}

// SetDefaultRows sets the rows returned for any query without an exact match.
func (s *MemoryDatasetStore) SetDefaultRows(rows []contextdoc.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.def = rows
}

// SetExecError makes Execute fail with the given error.
func (s *MemoryDatasetStore) SetExecError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execErr = err
}

// SetDelay makes Execute block for d before responding, honoring context
// cancellation. Used to exercise execution timeouts.
func (s *MemoryDatasetStore) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Executions returns how many times Execute has been called.
func (s *MemoryDatasetStore) Executions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.execs
}

// Lookup implements DatasetStore.
func (s *MemoryDatasetStore) Lookup(ctx context.Context, datasetID, userID string) (*DatasetSchema, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	schema, ok := s.schemas[userID][datasetID]
	if !ok {
		return nil, ErrDatasetNotFound
	}
	return schema, nil
}

// Execute implements DatasetStore.
func (s *MemoryDatasetStore) Execute(ctx context.Context, query string, params map[string]any) ([]contextdoc.Row, error) {
	s.mu.Lock()
	s.execs++
	delay := s.delay
	execErr := s.execErr
	rows, exact := s.rows[query]
	if !exact {
		rows = s.def
	}
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if execErr != nil {
		return nil, execErr
	}
	return rows, nil
}

// =============================================================================
// MemoryContextRepository
// =============================================================================

// versionKey identifies one stored version.
type versionKey struct {
	id, version string
}

// MemoryContextRepository is an in-memory ContextRepository.
//
// It enforces the lifecycle invariants documented on the interface:
// draft -> active -> deprecated transitions only, and one active context
// per external dataset. Safe for concurrent use.
type MemoryContextRepository struct {
	mu       sync.RWMutex
	versions map[versionKey]*StoredContext
	order    map[string][]string // contextID -> versions in save order
	owners   map[string]string   // external dataset id -> active context id
}

// NewMemoryContextRepository creates an empty repository.
func NewMemoryContextRepository() *MemoryContextRepository {
	return &MemoryContextRepository{
		versions: make(map[versionKey]*StoredContext),
		order:    make(map[string][]string),
		owners:   make(map[string]string),
	}
}

// Get implements ContextRepository.
func (r *MemoryContextRepository) Get(ctx context.Context, contextID string) (*StoredContext, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions := r.order[contextID]
	if len(versions) == 0 {
		return nil, ErrContextNotFound
	}
	return r.versions[versionKey{contextID, versions[len(versions)-1]}], nil
}

// GetVersion implements ContextRepository.
func (r *MemoryContextRepository) GetVersion(ctx context.Context, contextID, version string) (*StoredContext, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.order[contextID]) == 0 {
		return nil, ErrContextNotFound
	}
	sc, ok := r.versions[versionKey{contextID, version}]
	if !ok {
		return nil, ErrVersionNotFound
	}
	return sc, nil
}

// GetActive implements ContextRepository.
func (r *MemoryContextRepository) GetActive(ctx context.Context, contextID string) (*StoredContext, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions := r.order[contextID]
	if len(versions) == 0 {
		return nil, ErrContextNotFound
	}
	for _, v := range versions {
		sc := r.versions[versionKey{contextID, v}]
		if sc.Document.Status == contextdoc.StatusActive {
			return sc, nil
		}
	}
	return nil, ErrVersionNotFound
}

// List implements ContextRepository.
func (r *MemoryContextRepository) List(ctx context.Context) ([]*StoredContext, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*StoredContext, 0, len(r.order))
	for id, versions := range r.order {
		out = append(out, r.versions[versionKey{id, versions[len(versions)-1]}])
	}
	return out, nil
}

// Save implements ContextRepository. The stored document is a copy; the
// caller's document is not retained.
func (r *MemoryContextRepository) Save(ctx context.Context, doc *contextdoc.ContextDocument, result contextdoc.ValidationResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *doc
	key := versionKey{doc.ID, doc.Version}
	if _, exists := r.versions[key]; !exists {
		r.order[doc.ID] = append(r.order[doc.ID], doc.Version)
	}
	r.versions[key] = &StoredContext{
		Document:   &stored,
		Validation: result,
		SavedAt:    time.Now().UTC(),
	}
	return nil
}

// Activate implements ContextRepository.
func (r *MemoryContextRepository) Activate(ctx context.Context, contextID, version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sc, ok := r.versions[versionKey{contextID, version}]
	if !ok {
		if len(r.order[contextID]) == 0 {
			return ErrContextNotFound
		}
		return ErrVersionNotFound
	}
	if sc.Validation.Status == contextdoc.ValidationFailed {
		return ErrValidationBlocked
	}

	// One active context per external dataset.
	for _, ds := range sc.Document.Datasets {
		if owner, claimed := r.owners[ds.ExternalID()]; claimed && owner != contextID {
			return ErrDatasetOwned
		}
	}

	// Supersede the prior active version.
	for _, v := range r.order[contextID] {
		prev := r.versions[versionKey{contextID, v}]
		if v != version && prev.Document.Status == contextdoc.StatusActive {
			prev.Document.Status = contextdoc.StatusDeprecated
		}
	}

	sc.Document.Status = contextdoc.StatusActive
	for _, ds := range sc.Document.Datasets {
		r.owners[ds.ExternalID()] = contextID
	}
	return nil
}
