// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store defines the external collaborator interfaces the query
// engine depends on: the dataset store (schemas and query execution) and
// the context repository (document versions and lifecycle).
//
// The engine only ever talks to these interfaces. In-memory
// implementations in this package back tests and local single-process
// runs; production deployments plug in warehouse- or database-backed
// implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/AleutianAI/AleutianInsight/services/insight/contextdoc"
)

// Sentinel errors shared by store implementations.
var (
	// ErrDatasetNotFound indicates the dataset id does not exist or is
	// not visible to the requesting user.
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrContextNotFound indicates no stored context matches the id.
	ErrContextNotFound = errors.New("context not found")

	// ErrVersionNotFound indicates the context exists but not at the
	// requested version.
	ErrVersionNotFound = errors.New("context version not found")

	// ErrValidationBlocked indicates activation was attempted on a
	// version whose stored validation result is failed.
	ErrValidationBlocked = errors.New("context version failed validation")

	// ErrDatasetOwned indicates another active context already claims one
	// of the document's external datasets.
	ErrDatasetOwned = errors.New("dataset already owned by an active context")
)

// DatasetSchema is the store's view of one dataset.
type DatasetSchema struct {
	// DatasetID is the external identifier.
	DatasetID string `json:"dataset_id"`

	// Name is the display name.
	Name string `json:"name"`

	// Columns is the authoritative column list.
	Columns []contextdoc.Column `json:"columns"`

	// RowEstimate is an approximate row count, used as an edge weight
	// hint by the join path resolver. Zero means unknown.
	RowEstimate int64 `json:"row_estimate,omitempty"`
}

// HasColumn reports whether the schema declares the named column.
func (s *DatasetSchema) HasColumn(name string) bool {
	for _, c := range s.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// DatasetStore resolves dataset schemas and executes compiled queries.
//
// Execute is the engine's only blocking I/O path; callers bound it with a
// context deadline. Implementations must honor context cancellation on
// both methods.
type DatasetStore interface {
	// Lookup returns the schema of a dataset visible to the user.
	// Returns ErrDatasetNotFound for unknown or foreign datasets; tenant
	// isolation happens here, not in the engine.
	Lookup(ctx context.Context, datasetID, userID string) (*DatasetSchema, error)

	// Execute runs a compiled query with bound parameters and returns
	// the result rows.
	Execute(ctx context.Context, query string, params map[string]any) ([]contextdoc.Row, error)
}

// StoredContext is a context document version with its last validation
// result, as persisted by the repository.
type StoredContext struct {
	Document   *contextdoc.ContextDocument `json:"document"`
	Validation contextdoc.ValidationResult `json:"validation"`
	SavedAt    time.Time                   `json:"saved_at"`
}

// ContextRepository persists context document versions.
//
// The repository owns the lifecycle invariants: a version's status moves
// draft -> active -> deprecated and never backwards, and at most one
// active version exists per external dataset.
type ContextRepository interface {
	// Get returns the most recent version of a context.
	Get(ctx context.Context, contextID string) (*StoredContext, error)

	// GetVersion returns a specific version.
	GetVersion(ctx context.Context, contextID, version string) (*StoredContext, error)

	// GetActive returns the active version, or ErrVersionNotFound when
	// no version is active.
	GetActive(ctx context.Context, contextID string) (*StoredContext, error)

	// List returns the latest version of every stored context.
	List(ctx context.Context) ([]*StoredContext, error)

	// Save persists a document version together with its validation
	// result. Saving never changes status; new versions arrive as draft.
	Save(ctx context.Context, doc *contextdoc.ContextDocument, result contextdoc.ValidationResult) error

	// Activate promotes a version to active. The version's stored
	// validation must not be failed (ErrValidationBlocked). Any prior
	// active version of the same context is deprecated. If a different
	// context is active for one of the document's external datasets,
	// activation fails with ErrDatasetOwned.
	Activate(ctx context.Context, contextID, version string) error
}
