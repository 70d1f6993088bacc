// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validator checks context documents in four ordered passes:
//
//  1. Schema: field presence, lengths, enums, version format.
//  2. Semantic: every local id resolves to a dataset the caller owns,
//     every referenced column exists in that dataset's schema.
//  3. Relationship graph: duplicate edges, cycle detection.
//  4. Business rules: severities and condition syntax.
//
// Passes never short-circuit: all issues across all passes are
// accumulated into one ValidationResult, so an author fixes a document in
// one round trip instead of peeling errors one at a time. Only pass 1 and
// pass 2 errors block activation; later-pass findings are surfaced but a
// document carrying them may still be activated deliberately.
package validator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	playvalidator "github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianInsight/services/insight/contextdoc"
	"github.com/AleutianAI/AleutianInsight/services/insight/relgraph"
	"github.com/AleutianAI/AleutianInsight/services/insight/store"
)

// Stable issue codes. These are API surface: clients key remediation UI
// off them, so they never change meaning.
const (
	CodeInvalidName          = "INVALID_NAME"
	CodeInvalidVersion       = "INVALID_VERSION"
	CodeInvalidDescription   = "INVALID_DESCRIPTION"
	CodeNoDatasets           = "NO_DATASETS"
	CodeDuplicateLocalID     = "DUPLICATE_LOCAL_ID"
	CodeInvalidJoinType      = "INVALID_JOIN_TYPE"
	CodeMissingDataset       = "MISSING_DATASET"
	CodeMissingColumn        = "MISSING_COLUMN"
	CodeDuplicateRelation    = "DUPLICATE_RELATIONSHIP"
	CodeRelationshipCycle    = "RELATIONSHIP_CYCLE"
	CodeInvalidSeverity      = "INVALID_SEVERITY"
	CodeUnparsableCondition  = "UNPARSABLE_CONDITION"
	CodeMissingRequiredField = "MISSING_REQUIRED_FIELD"
)

// semverPattern accepts "major.minor.patch" with an optional pre-release
// tag, the subset of SemVer 2.0.0 the repository stores.
var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[0-9A-Za-z.\-]+)?$`)

// Validator runs the four passes against a dataset store.
//
// A Validator is stateless and safe for concurrent use; per-call state
// lives in the run struct.
type Validator struct {
	store  store.DatasetStore
	checks *playvalidator.Validate
}

// New creates a Validator backed by the given dataset store.
func New(datasets store.DatasetStore) *Validator {
	return &Validator{
		store:  datasets,
		checks: playvalidator.New(playvalidator.WithRequiredStructEnabled()),
	}
}

// run accumulates per-validation state.
type run struct {
	doc    *contextdoc.ContextDocument
	errors []contextdoc.Issue
	warns  []contextdoc.Issue

	// blocking counts pass-1/2 errors, the only ones that force failed.
	blocking int

	// schemas holds the store schema per local id, for column checks.
	// A local id missing here failed dataset resolution.
	schemas map[string]*store.DatasetSchema

	// declared is the set of local ids declared in the document.
	declared map[string]bool
}

func (r *run) errorf(blocking bool, code, location, format string, args ...any) {
	r.errors = append(r.errors, contextdoc.Issue{
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Location: location,
	})
	if blocking {
		r.blocking++
	}
}

func (r *run) warnf(code, location, format string, args ...any) {
	r.warns = append(r.warns, contextdoc.Issue{
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Location: location,
	})
}

// Validate runs all four passes and aggregates the findings.
//
// Description:
//
//	Every pass runs regardless of earlier findings. The result status is:
//
//	  - failed: any pass-1 or pass-2 error (blocks activation)
//	  - warning: any other finding
//	  - passed: nothing found
//
// Inputs:
//
//	ctx - Context for store lookups.
//	doc - The parsed document. Must not be nil.
//	userID - The caller; dataset ownership is checked against it.
//
// Outputs:
//
//	contextdoc.ValidationResult - All issues, never an error: validation
//	                              findings are data, not failures.
func (v *Validator) Validate(ctx context.Context, doc *contextdoc.ContextDocument, userID string) contextdoc.ValidationResult {
	r := &run{
		doc:      doc,
		schemas:  make(map[string]*store.DatasetSchema),
		declared: make(map[string]bool),
	}
	for _, ds := range doc.Datasets {
		r.declared[ds.LocalID] = true
	}

	v.passSchema(r)
	v.passSemantic(ctx, r, userID)
	v.passGraph(r)
	v.passRules(r)

	status := contextdoc.ValidationPassed
	switch {
	case r.blocking > 0:
		status = contextdoc.ValidationFailed
	case len(r.errors) > 0 || len(r.warns) > 0:
		status = contextdoc.ValidationWarning
	}
	return contextdoc.ValidationResult{
		Status:      status,
		Errors:      r.errors,
		Warnings:    r.warns,
		Fingerprint: doc.Fingerprint,
	}
}

// =============================================================================
// Pass 1: schema
// =============================================================================

func (v *Validator) passSchema(r *run) {
	doc := r.doc

	if n := len(strings.TrimSpace(doc.Name)); n < 3 || n > 100 {
		r.errorf(true, CodeInvalidName, "name", "name must be 3-100 characters, got %d", n)
	}
	if !semverPattern.MatchString(doc.Version) {
		r.errorf(true, CodeInvalidVersion, "version", "version %q is not a semantic version", doc.Version)
	}
	if len(strings.TrimSpace(doc.Description)) < 10 {
		r.errorf(true, CodeInvalidDescription, "description", "description must be at least 10 characters")
	}
	if len(doc.Datasets) == 0 {
		r.errorf(true, CodeNoDatasets, "datasets", "document declares no datasets")
	}
	if doc.Status != "" && !doc.Status.Valid() {
		r.errorf(true, CodeMissingRequiredField, "status", "unknown status %q", doc.Status)
	}

	seen := make(map[string]bool, len(doc.Datasets))
	for _, ds := range doc.Datasets {
		loc := "datasets[" + ds.LocalID + "]"
		if strings.TrimSpace(ds.LocalID) == "" {
			r.errorf(true, CodeMissingRequiredField, loc, "dataset %q has no local id", ds.Name)
			continue
		}
		if seen[ds.LocalID] {
			r.errorf(true, CodeDuplicateLocalID, loc, "local id %q declared more than once", ds.LocalID)
		}
		seen[ds.LocalID] = true
	}

	for _, rel := range doc.Relationships {
		if rel.JoinType != "" && !rel.JoinType.Valid() {
			r.errorf(true, CodeInvalidJoinType, "relationships["+rel.ID+"]",
				"unknown join type %q", rel.JoinType)
		}
	}

	// Struct-tag rules catch what the explicit checks above do not
	// (missing metric names, empty expressions, and so on).
	if err := v.checks.Struct(doc); err != nil {
		var fieldErrs playvalidator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				if knownSchemaField(fe.Namespace()) {
					continue // already reported with a precise code
				}
				r.errorf(true, CodeMissingRequiredField, fe.Namespace(),
					"field fails %q constraint", fe.Tag())
			}
		} else {
			r.errorf(true, CodeMissingRequiredField, "", "schema validation: %v", err)
		}
	}
}

// knownSchemaField reports whether the struct-tag namespace duplicates one
// of the explicit pass-1 checks.
func knownSchemaField(namespace string) bool {
	for _, suffix := range []string{".Name", ".Version", ".Description", ".Datasets"} {
		if namespace == "ContextDocument"+suffix {
			return true
		}
	}
	return false
}

// =============================================================================
// Pass 2: semantic
// =============================================================================

func (v *Validator) passSemantic(ctx context.Context, r *run, userID string) {
	doc := r.doc

	for _, ds := range doc.Datasets {
		schema, err := v.store.Lookup(ctx, ds.ExternalID(), userID)
		if err != nil {
			r.errorf(true, CodeMissingDataset, "datasets["+ds.LocalID+"]",
				"dataset %q does not resolve for this user", ds.ExternalID())
			continue
		}
		r.schemas[ds.LocalID] = schema
	}

	for _, rel := range doc.Relationships {
		loc := "relationships[" + rel.ID + "]"
		r.checkRef(rel.From, loc)
		r.checkRef(rel.To, loc)
	}
	for _, m := range doc.Metrics {
		r.checkExprRefs(m.Expression, "metrics["+m.Name+"]")
	}
	for _, f := range doc.Filters {
		r.checkExprRefs(f.Condition, "filters["+f.Name+"]")
	}
	for _, rule := range doc.Rules {
		r.checkExprRefs(rule.Condition, "rules["+rule.Name+"]")
	}
}

// checkExprRefs resolves every dataset.column reference in an expression.
func (r *run) checkExprRefs(expr, location string) {
	for _, ref := range contextdoc.ExtractRefs(expr) {
		r.checkRef(ref, location)
	}
}

// checkRef resolves one dataset.column reference.
func (r *run) checkRef(ref contextdoc.Endpoint, location string) {
	if !r.declared[ref.Dataset] {
		r.errorf(true, CodeMissingDataset, location,
			"reference %s: dataset %q is not declared", ref, ref.Dataset)
		return
	}
	schema, resolved := r.schemas[ref.Dataset]
	if !resolved {
		// Dataset lookup already failed; one error is enough.
		return
	}
	if !columnKnown(schema, r.doc, ref) {
		r.errorf(true, CodeMissingColumn, location,
			"reference %s: column %q does not exist in dataset %q",
			ref, ref.Column, ref.Dataset)
	}
}

// columnKnown checks the store schema; when the store declares no columns
// the document's own declarations are the fallback authority.
func columnKnown(schema *store.DatasetSchema, doc *contextdoc.ContextDocument, ref contextdoc.Endpoint) bool {
	if len(schema.Columns) > 0 {
		return schema.HasColumn(ref.Column)
	}
	ds, ok := doc.Dataset(ref.Dataset)
	if !ok {
		return false
	}
	_, ok = ds.Column(ref.Column)
	return ok
}

// =============================================================================
// Pass 3: relationship graph
// =============================================================================

func (v *Validator) passGraph(r *run) {
	g := relgraph.Build(r.doc)

	for _, dup := range g.DuplicateEdges() {
		rel := r.doc.Relationships[dup.Dup]
		r.warnf(CodeDuplicateRelation, "relationships["+rel.ID+"]",
			"relationship %s -> %s duplicates an earlier declaration; the earliest wins during path resolution",
			rel.From, rel.To)
	}

	for _, cycle := range g.Cycles() {
		members := strings.Join(cycle, " -> ")
		if v.cycleForced(r.doc, cycle) {
			r.errorf(false, CodeRelationshipCycle, "relationships",
				"relationship cycle %s is required by a declared metric or filter", members)
		} else {
			r.warnf(CodeRelationshipCycle, "relationships",
				"relationship cycle detected: %s", members)
		}
	}
}

// cycleForced reports whether some metric or filter references every
// dataset on the cycle, which would force any query using it to traverse
// the cycle.
func (v *Validator) cycleForced(doc *contextdoc.ContextDocument, cycle []string) bool {
	onCycle := make(map[string]bool, len(cycle))
	for _, n := range cycle {
		onCycle[n] = true
	}

	coversCycle := func(expr string) bool {
		referenced := make(map[string]bool)
		for _, ref := range contextdoc.ExtractRefs(expr) {
			if onCycle[ref.Dataset] {
				referenced[ref.Dataset] = true
			}
		}
		return len(referenced) == len(cycle)
	}

	for _, m := range doc.Metrics {
		if coversCycle(m.Expression) {
			return true
		}
	}
	for _, f := range doc.Filters {
		if coversCycle(f.Condition) {
			return true
		}
	}
	return false
}

// =============================================================================
// Pass 4: business rules
// =============================================================================

func (v *Validator) passRules(r *run) {
	for _, rule := range r.doc.Rules {
		loc := "rules[" + rule.Name + "]"
		if !rule.Severity.Valid() {
			r.errorf(false, CodeInvalidSeverity, loc,
				"severity %q is not one of error, warning, info", rule.Severity)
		}
		if err := contextdoc.CheckSyntax(rule.Condition); err != nil {
			r.errorf(false, CodeUnparsableCondition, loc, "condition: %v", err)
		}
	}

	// Metric and filter expressions get the same lexical check; their
	// reference resolution already happened in pass 2.
	for _, m := range r.doc.Metrics {
		if err := contextdoc.CheckSyntax(m.Expression); err != nil {
			r.errorf(false, CodeUnparsableCondition, "metrics["+m.Name+"]", "expression: %v", err)
		}
	}
	for _, f := range r.doc.Filters {
		if err := contextdoc.CheckSyntax(f.Condition); err != nil {
			r.errorf(false, CodeUnparsableCondition, "filters["+f.Name+"]", "condition: %v", err)
		}
	}
}
