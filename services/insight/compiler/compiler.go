// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compiler turns a query request plus a validated context and a
// resolved join path into an executable plan.
//
// Compile is a pure function: no I/O, no clock, no randomness, and fully
// deterministic iteration. Identical inputs produce byte-identical plans,
// which is what makes the plan's cache key sound and the compiler
// trivially testable.
package compiler

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/AleutianAI/AleutianInsight/services/insight/contextdoc"
)

// Compile builds the executable plan for one query.
//
// Description:
//
//	The generated query selects the requested fields and inlined metric
//	expressions, joins along the resolved path honoring each
//	relationship's declared join type (left when unspecified), and ANDs
//	three predicate groups into WHERE: the caller's ad-hoc conditions,
//	the requested named filters, and every error-severity business rule.
//	Error rules are mandatory and always injected; warning and info rules
//	are returned as advisories, never injected.
//
//	Datasets appear in the query under their local ids:
//	"FROM <external> AS <local>".
//
// Inputs:
//
//	req - The query request.
//	doc - The validated context document. Must not be nil.
//	joinPath - Resolved relationships in application order. May be empty
//	           for single-dataset queries.
//
// Outputs:
//
//	*contextdoc.CompiledPlan - Deterministic plan with cache key.
//	error - *UndefinedMetricError, *UndefinedFilterError or *CompileError.
func Compile(req contextdoc.QueryRequest, doc *contextdoc.ContextDocument, joinPath []contextdoc.Relationship) (*contextdoc.CompiledPlan, error) {
	plan := &contextdoc.CompiledPlan{
		ContextID:   doc.ID,
		Fingerprint: doc.Fingerprint,
		Joins:       joinPath,
	}

	selects, err := buildProjection(req, doc, plan)
	if err != nil {
		return nil, err
	}

	base, err := baseDataset(req, doc, joinPath)
	if err != nil {
		return nil, err
	}

	where, err := buildPredicates(req, doc, plan)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(selects, ", "))
	b.WriteString("\nFROM ")
	b.WriteString(tableRef(doc, base))

	// Each path edge attaches one new dataset to those already in the
	// query; which declared endpoint that is depends on the direction the
	// resolver crossed the relationship.
	introduced := map[string]bool{base: true}
	for _, rel := range joinPath {
		joined := rel.To.Dataset
		if introduced[joined] {
			joined = rel.From.Dataset
		}
		introduced[joined] = true

		b.WriteString("\n")
		b.WriteString(rel.JoinType.SQL())
		b.WriteString(" ")
		b.WriteString(tableRef(doc, joined))
		b.WriteString(" ON ")
		b.WriteString(rel.From.String())
		b.WriteString(" = ")
		b.WriteString(rel.To.String())
	}

	if len(where) > 0 {
		b.WriteString("\nWHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}

	if len(req.GroupBy) > 0 {
		for _, g := range req.GroupBy {
			if err := checkFieldRef(g, doc); err != nil {
				return nil, err
			}
		}
		b.WriteString("\nGROUP BY ")
		b.WriteString(strings.Join(req.GroupBy, ", "))
	}

	if len(req.Sort) > 0 {
		terms := make([]string, 0, len(req.Sort))
		for _, s := range req.Sort {
			if err := checkFieldRef(s.Field, doc); err != nil {
				return nil, err
			}
			term := s.Field
			if s.Descending {
				term += " DESC"
			}
			terms = append(terms, term)
		}
		b.WriteString("\nORDER BY ")
		b.WriteString(strings.Join(terms, ", "))
	}

	if req.Limit > 0 {
		b.WriteString("\nLIMIT ")
		b.WriteString(strconv.Itoa(req.Limit))
	}

	plan.SQL = b.String()
	plan.CacheKey = cacheKey(doc.Fingerprint, plan.SQL, req.Parameters)
	return plan, nil
}

// buildProjection assembles the SELECT list and records applied metrics.
func buildProjection(req contextdoc.QueryRequest, doc *contextdoc.ContextDocument, plan *contextdoc.CompiledPlan) ([]string, error) {
	if len(req.Fields) == 0 && len(req.Metrics) == 0 {
		return nil, compileErrorf("request projects nothing: no fields and no metrics")
	}

	selects := make([]string, 0, len(req.Fields)+len(req.Metrics))
	for _, f := range req.Fields {
		if err := checkFieldRef(f, doc); err != nil {
			return nil, err
		}
		selects = append(selects, f)
	}
	for _, name := range req.Metrics {
		m, ok := doc.Metric(name)
		if !ok {
			return nil, &UndefinedMetricError{Name: name}
		}
		selects = append(selects, "("+m.Expression+") AS "+m.Name)
		plan.AppliedMetrics = append(plan.AppliedMetrics, m.Name)
	}
	return selects, nil
}

// buildPredicates assembles WHERE terms: ad-hoc conditions, named filters,
// mandatory rules. Advisory rules land on the plan instead.
func buildPredicates(req contextdoc.QueryRequest, doc *contextdoc.ContextDocument, plan *contextdoc.CompiledPlan) ([]string, error) {
	var where []string

	for _, cond := range req.Conditions {
		if strings.TrimSpace(cond) == "" {
			return nil, compileErrorf("empty ad-hoc condition")
		}
		where = append(where, "("+cond+")")
	}

	for _, name := range req.Filters {
		f, ok := doc.Filter(name)
		if !ok {
			return nil, &UndefinedFilterError{Name: name}
		}
		where = append(where, "("+f.Condition+")")
		plan.AppliedFilters = append(plan.AppliedFilters, f.Name)
	}

	for _, rule := range doc.Rules {
		switch rule.Severity {
		case contextdoc.SeverityError:
			where = append(where, "("+rule.Condition+")")
			plan.AppliedRules = append(plan.AppliedRules, rule.Name)
		case contextdoc.SeverityWarning, contextdoc.SeverityInfo:
			plan.Advisories = append(plan.Advisories, contextdoc.Advisory{
				RuleID:    rule.ID,
				Name:      rule.Name,
				Severity:  rule.Severity,
				Condition: rule.Condition,
			})
		}
	}
	return where, nil
}

// baseDataset picks the FROM dataset: the join path's origin when joining,
// otherwise the single dataset the request touches.
func baseDataset(req contextdoc.QueryRequest, doc *contextdoc.ContextDocument, joinPath []contextdoc.Relationship) (string, error) {
	if len(joinPath) > 0 {
		return joinPath[0].From.Dataset, nil
	}
	if len(req.Datasets) > 0 {
		if _, ok := doc.Dataset(req.Datasets[0]); !ok {
			return "", compileErrorf("unknown dataset %q", req.Datasets[0])
		}
		return req.Datasets[0], nil
	}
	// Fall back to the first dataset referenced by the projection.
	for _, f := range req.Fields {
		refs := contextdoc.ExtractRefs(f)
		if len(refs) > 0 {
			return refs[0].Dataset, nil
		}
	}
	for _, name := range req.Metrics {
		if m, ok := doc.Metric(name); ok {
			refs := contextdoc.ExtractRefs(m.Expression)
			if len(refs) > 0 {
				return refs[0].Dataset, nil
			}
		}
	}
	return "", compileErrorf("cannot determine base dataset for the query")
}

// checkFieldRef validates one "local_id.column" projection or grouping
// term against the document.
func checkFieldRef(field string, doc *contextdoc.ContextDocument) error {
	refs := contextdoc.ExtractRefs(field)
	if len(refs) == 0 {
		// A bare metric name in GROUP BY is legal; anything else is not
		// resolvable.
		if _, ok := doc.Metric(field); ok {
			return nil
		}
		return compileErrorf("field %q is not a dataset.column reference or metric", field)
	}
	for _, ref := range refs {
		ds, ok := doc.Dataset(ref.Dataset)
		if !ok {
			return compileErrorf("field %q references undeclared dataset %q", field, ref.Dataset)
		}
		if len(ds.Columns) > 0 {
			if _, ok := ds.Column(ref.Column); !ok {
				return compileErrorf("field %q references unknown column %q of dataset %q",
					field, ref.Column, ref.Dataset)
			}
		}
	}
	return nil
}

// tableRef renders "external AS local", or just the local id when the
// document declares no separate external id.
func tableRef(doc *contextdoc.ContextDocument, localID string) string {
	ds, ok := doc.Dataset(localID)
	if !ok || ds.ExternalID() == localID {
		return localID
	}
	return ds.ExternalID() + " AS " + localID
}

// cacheKey hashes the fingerprint, the generated query text and the bound
// parameter values. Parameters are serialized with sorted keys so map
// iteration order cannot leak into the key.
func cacheKey(fingerprint, sql string, params map[string]any) string {
	h := sha256.New()
	h.Write([]byte(fingerprint))
	h.Write([]byte{0})
	h.Write([]byte(sql))
	h.Write([]byte{0})

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%v;", k, params[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}
