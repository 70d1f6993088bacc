// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package contextdoc defines the value types for context documents.
//
// A context document is a declarative description of one or more datasets,
// their relationships, derived metrics, named filters and business rules.
// Documents are parsed from text (see the parser package), validated in four
// passes (see the validator package), and never mutated after creation: a
// document edit always produces a new version.
//
// The types here are a closed set. Everything downstream (validator, path
// resolver, compiler) matches exhaustively on these types rather than
// walking untyped maps, so a malformed document fails at parse or
// validation time instead of deep inside query compilation.
package contextdoc

import (
	"time"
)

// =============================================================================
// Enumerations
// =============================================================================

// Status is the lifecycle state of a context document version.
type Status string

const (
	// StatusDraft is the initial state. Drafts are editable targets for
	// re-validation and never serve queries.
	StatusDraft Status = "draft"

	// StatusActive marks the single serving version for its datasets.
	StatusActive Status = "active"

	// StatusDeprecated is terminal. A version becomes deprecated when a
	// newer version is activated; it is kept for history, never revived.
	StatusDeprecated Status = "deprecated"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusDeprecated:
		return true
	}
	return false
}

// DocumentType distinguishes single- from multi-dataset documents.
// It is derived from the dataset count, never declared by the author.
type DocumentType string

const (
	TypeSingleDataset DocumentType = "single_dataset"
	TypeMultiDataset  DocumentType = "multi_dataset"
)

// JoinType is the declared join semantics of a relationship.
type JoinType string

const (
	JoinInner JoinType = "inner"
	JoinLeft  JoinType = "left"
	JoinRight JoinType = "right"
	JoinOuter JoinType = "outer"
)

// Valid reports whether j is a known join type.
func (j JoinType) Valid() bool {
	switch j {
	case JoinInner, JoinLeft, JoinRight, JoinOuter:
		return true
	}
	return false
}

// SQL returns the SQL join keyword for the join type.
// The zero value compiles as a left outer join.
func (j JoinType) SQL() string {
	switch j {
	case JoinInner:
		return "INNER JOIN"
	case JoinRight:
		return "RIGHT JOIN"
	case JoinOuter:
		return "FULL OUTER JOIN"
	default:
		return "LEFT JOIN"
	}
}

// Severity classifies a business rule.
type Severity string

const (
	// SeverityError rules are mandatory filters: every compiled plan
	// includes them in its WHERE clause.
	SeverityError Severity = "error"

	// SeverityWarning rules are advisory; they annotate results but are
	// never injected into the query.
	SeverityWarning Severity = "warning"

	// SeverityInfo rules are informational annotations only.
	SeverityInfo Severity = "info"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityError, SeverityWarning, SeverityInfo:
		return true
	}
	return false
}

// =============================================================================
// Document components
// =============================================================================

// Column describes one column of a referenced dataset.
type Column struct {
	// Name is the physical column name.
	Name string `json:"name" yaml:"name"`

	// BusinessName is the human-facing name (optional).
	BusinessName string `json:"business_name,omitempty" yaml:"business_name,omitempty"`

	// Type is the declared column type (e.g. "string", "decimal").
	Type string `json:"type,omitempty" yaml:"type,omitempty"`

	// Nullable indicates whether the column may contain NULLs.
	Nullable bool `json:"nullable,omitempty" yaml:"nullable,omitempty"`
}

// DatasetRef binds a document-local identifier to an external dataset.
//
// The local id (e.g. "o1") is how every other part of the document refers
// to the dataset. The external DatasetID is resolved against the dataset
// store during semantic validation.
type DatasetRef struct {
	// LocalID is the document-local identifier. Unique within a document.
	LocalID string `json:"local_id" yaml:"id" validate:"required"`

	// DatasetID is the external dataset identifier in the dataset store.
	DatasetID string `json:"dataset_id" yaml:"dataset_id,omitempty"`

	// Name is the display name.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Columns declared for this dataset. May be empty, in which case the
	// store's schema is authoritative.
	Columns []Column `json:"columns,omitempty" yaml:"columns,omitempty"`
}

// ExternalID returns the dataset store identifier for this reference.
// Convention-format documents declare no external id; the local id doubles
// as the store identifier in that case.
func (d DatasetRef) ExternalID() string {
	if d.DatasetID != "" {
		return d.DatasetID
	}
	return d.LocalID
}

// Column returns the declared column with the given name, if any.
func (d DatasetRef) Column(name string) (Column, bool) {
	for _, c := range d.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Endpoint is one side of a relationship: a local dataset id plus column.
type Endpoint struct {
	Dataset string `json:"dataset" yaml:"dataset" validate:"required"`
	Column  string `json:"column" yaml:"column" validate:"required"`
}

// String returns the endpoint in "dataset.column" form.
func (e Endpoint) String() string {
	return e.Dataset + "." + e.Column
}

// Relationship is a typed join condition between two datasets.
type Relationship struct {
	ID string `json:"id" yaml:"id,omitempty"`

	From Endpoint `json:"from" yaml:"from"`
	To   Endpoint `json:"to" yaml:"to"`

	// JoinType defaults to left when empty.
	JoinType JoinType `json:"join_type,omitempty" yaml:"join_type,omitempty"`
}

// Metric is a named, reusable aggregate expression.
type Metric struct {
	ID string `json:"id" yaml:"id,omitempty"`

	// Name is the handle used in query requests.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Expression references only declared local ids and columns,
	// e.g. "SUM(o1.amount)".
	Expression string `json:"expression" yaml:"expression" validate:"required"`

	// ResultType is the declared result type (optional).
	ResultType string `json:"result_type,omitempty" yaml:"result_type,omitempty"`

	// Format is the display format applied when rows are rendered,
	// e.g. "currency", "percent", "number". Empty means raw.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// NamedFilter is a reusable boolean condition requestable by name.
type NamedFilter struct {
	ID        string `json:"id" yaml:"id,omitempty"`
	Name      string `json:"name" yaml:"name" validate:"required"`
	Condition string `json:"condition" yaml:"condition" validate:"required"`
}

// BusinessRule is a named boolean condition with a severity.
// Error-severity rules are enforced as mandatory filters at compile time.
type BusinessRule struct {
	ID        string   `json:"id" yaml:"id,omitempty"`
	Name      string   `json:"name" yaml:"name" validate:"required"`
	Severity  Severity `json:"severity" yaml:"severity"`
	Condition string   `json:"condition" yaml:"condition" validate:"required"`
}

// GlossaryEntry documents domain vocabulary. Glossary entries are carried
// through parsing for display and LLM prompting; they are not validated
// beyond being non-empty.
type GlossaryEntry struct {
	Term       string `json:"term" yaml:"term"`
	Definition string `json:"definition" yaml:"definition"`
}

// =============================================================================
// ContextDocument
// =============================================================================

// ContextDocument is the parsed, immutable form of a context document.
//
// Instances are created by the parser and treated as read-only afterwards.
// Status transitions (draft -> active -> deprecated) are performed by the
// context repository on copies, never in place.
type ContextDocument struct {
	// ID identifies the document across versions.
	ID string `json:"id" yaml:"-"`

	// Name is the human-facing document name.
	Name string `json:"name" yaml:"name" validate:"required,min=3,max=100"`

	// Version is a semantic version string ("1.2.0").
	Version string `json:"version" yaml:"version" validate:"required"`

	// Description explains what the document covers.
	Description string `json:"description" yaml:"description" validate:"required,min=10"`

	// Status is the lifecycle state. Parsed documents start as draft.
	Status Status `json:"status" yaml:"-"`

	Datasets      []DatasetRef    `json:"datasets" yaml:"datasets" validate:"required,min=1,dive"`
	Relationships []Relationship  `json:"relationships,omitempty" yaml:"relationships,omitempty" validate:"dive"`
	Metrics       []Metric        `json:"metrics,omitempty" yaml:"metrics,omitempty" validate:"dive"`
	Filters       []NamedFilter   `json:"filters,omitempty" yaml:"filters,omitempty" validate:"dive"`
	Rules         []BusinessRule  `json:"rules,omitempty" yaml:"rules,omitempty" validate:"dive"`
	Glossary      []GlossaryEntry `json:"glossary,omitempty" yaml:"glossary,omitempty"`

	// CacheTTLSeconds overrides the default result cache TTL for queries
	// against this context. Zero means use the service default.
	CacheTTLSeconds int `json:"cache_ttl_seconds,omitempty" yaml:"cache_ttl_seconds,omitempty"`

	// Fingerprint is the hash of the normalized source text. It keys the
	// relationship graph cache and is folded into every result cache key,
	// so a document edit invalidates all cached results at once.
	Fingerprint string `json:"fingerprint" yaml:"-"`

	CreatedAt time.Time `json:"created_at,omitempty" yaml:"-"`
}

// Type derives the document type from the dataset count.
func (d *ContextDocument) Type() DocumentType {
	if len(d.Datasets) > 1 {
		return TypeMultiDataset
	}
	return TypeSingleDataset
}

// Dataset returns the dataset declared under the given local id.
func (d *ContextDocument) Dataset(localID string) (DatasetRef, bool) {
	for _, ds := range d.Datasets {
		if ds.LocalID == localID {
			return ds, true
		}
	}
	return DatasetRef{}, false
}

// Metric returns the metric with the given name.
func (d *ContextDocument) Metric(name string) (Metric, bool) {
	for _, m := range d.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return Metric{}, false
}

// Filter returns the named filter with the given name.
func (d *ContextDocument) Filter(name string) (NamedFilter, bool) {
	for _, f := range d.Filters {
		if f.Name == name {
			return f, true
		}
	}
	return NamedFilter{}, false
}

// LocalIDs returns the declared local ids in declaration order.
func (d *ContextDocument) LocalIDs() []string {
	ids := make([]string, 0, len(d.Datasets))
	for _, ds := range d.Datasets {
		ids = append(ids, ds.LocalID)
	}
	return ids
}

// =============================================================================
// Validation result
// =============================================================================

// ValidationStatus is the overall outcome of the four validation passes.
type ValidationStatus string

const (
	// ValidationPassed means no issues at all.
	ValidationPassed ValidationStatus = "passed"

	// ValidationWarning means only non-blocking issues were found.
	// Activation is allowed.
	ValidationWarning ValidationStatus = "warning"

	// ValidationFailed means at least one blocking error was found.
	// Activation is refused.
	ValidationFailed ValidationStatus = "failed"
)

// Issue is a single validation finding.
type Issue struct {
	// Code is a stable machine-readable code (e.g. "NO_DATASETS",
	// "MISSING_COLUMN", "RELATIONSHIP_CYCLE").
	Code string `json:"code"`

	// Message is the human-readable description.
	Message string `json:"message"`

	// Location names the offending element ("datasets[o1]",
	// "metrics[total_revenue]"). Empty for document-level issues.
	Location string `json:"location,omitempty"`
}

// ValidationResult aggregates all findings from all passes.
type ValidationResult struct {
	Status   ValidationStatus `json:"status"`
	Errors   []Issue          `json:"errors"`
	Warnings []Issue          `json:"warnings"`

	// Fingerprint is the document fingerprint the findings were computed
	// against. A stored result whose fingerprint no longer matches its
	// document is stale and must be recomputed before it is trusted.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// Blocking reports whether the result prevents activation.
func (r ValidationResult) Blocking() bool {
	return r.Status == ValidationFailed
}

// =============================================================================
// Query types
// =============================================================================

// SortKey is one ORDER BY term.
type SortKey struct {
	// Field is a "local_id.column" reference or a metric name.
	Field string `json:"field"`

	// Descending sorts high-to-low when true.
	Descending bool `json:"descending,omitempty"`
}

// QueryRequest describes one query against a validated context.
//
// Requests are produced directly by API callers or by the NL translator.
// All dataset references use document-local ids.
type QueryRequest struct {
	// Datasets is the set of local ids the query touches. Datasets
	// referenced only through metrics or fields are added implicitly
	// during compilation.
	Datasets []string `json:"datasets,omitempty"`

	// Metrics names metrics declared in the context.
	Metrics []string `json:"metrics,omitempty"`

	// Fields are plain "local_id.column" projections.
	Fields []string `json:"fields,omitempty"`

	// Filters names declared named filters to apply.
	Filters []string `json:"filters,omitempty"`

	// Conditions are ad-hoc boolean predicates supplied by the caller,
	// ANDed with named filters and mandatory rules.
	Conditions []string `json:"conditions,omitempty"`

	// Parameters are bound values referenced by conditions as :name.
	// They participate in the cache key.
	Parameters map[string]any `json:"parameters,omitempty"`

	GroupBy []string  `json:"group_by,omitempty"`
	Sort    []SortKey `json:"sort,omitempty"`
	Limit   int       `json:"limit,omitempty"`
}

// Advisory is a non-mandatory business rule attached to a plan. Advisories
// are returned alongside results, never injected into the query.
type Advisory struct {
	RuleID    string   `json:"rule_id"`
	Name      string   `json:"name"`
	Severity  Severity `json:"severity"`
	Condition string   `json:"condition"`
}

// CompiledPlan is the executable form of a query request.
//
// Plans are produced by the compiler as a pure function of
// (request, document, join path); identical inputs yield byte-identical
// plans, which is what makes CacheKey sound.
type CompiledPlan struct {
	ContextID   string `json:"context_id"`
	Fingerprint string `json:"fingerprint"`

	// Joins is the resolved join path in application order.
	Joins []Relationship `json:"joins"`

	// SQL is the generated query text.
	SQL string `json:"sql"`

	// AppliedMetrics, AppliedFilters and AppliedRules record what was
	// folded into the query, by name.
	AppliedMetrics []string `json:"applied_metrics,omitempty"`
	AppliedFilters []string `json:"applied_filters,omitempty"`
	AppliedRules   []string `json:"applied_rules,omitempty"`

	// Advisories are warning/info rules surfaced with results.
	Advisories []Advisory `json:"advisories,omitempty"`

	// CacheKey = hash(fingerprint + SQL + bound parameters).
	CacheKey string `json:"cache_key"`
}

// Row is one result row keyed by output column name.
type Row map[string]any

// ExecutionRecord is one entry of a context's execution history.
type ExecutionRecord struct {
	ContextID string    `json:"context_id"`
	CacheKey  string    `json:"cache_key"`
	SQL       string    `json:"sql"`
	RowCount  int       `json:"row_count"`
	LatencyMS int64     `json:"latency_ms"`
	Cached    bool      `json:"cached"`
	At        time.Time `json:"at"`
}
