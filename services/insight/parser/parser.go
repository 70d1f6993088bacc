// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package parser turns raw context document text into a
// contextdoc.ContextDocument.
//
// Two input formats are supported behind a single Parse entry point:
//
//   - Structured: the document opens with a YAML front-matter block
//     ("---" fenced) conforming to the contextdoc schema, optionally
//     followed by free-form prose.
//   - Convention: plain markdown-style text. Structure is inferred from
//     headings ("Datasets", "Relationships", ...) and bullet conventions.
//
// Format selection is a cheap prefix check, not content sniffing: a
// document whose first non-blank line is "---" is structured, everything
// else goes through the convention scanner. The two strategies are
// independent functions, not an inheritance hierarchy.
//
// The parser checks syntax only. Whether referenced datasets and columns
// actually exist is the validator's job.
package parser

import (
	"strconv"
	"strings"

	"github.com/AleutianAI/AleutianInsight/services/insight/contextdoc"
)

// frontMatterDelimiter fences the structured block.
const frontMatterDelimiter = "---"

// Parse converts document text into a ContextDocument.
//
// Description:
//
//	Dispatches to the structured or convention parser based on the opening
//	delimiter, then normalizes the result: draft status, deterministic ids
//	for elements declared without one, and a content fingerprint over the
//	normalized source bytes.
//
// Inputs:
//
//	text - Raw document source. Must not be empty.
//
// Outputs:
//
//	*contextdoc.ContextDocument - The parsed document, status draft.
//	error - *ParseError on malformed input, ErrEmptyDocument on empty input.
func Parse(text string) (*contextdoc.ContextDocument, error) {
	normalized := contextdoc.Normalize(text)
	if normalized == "" {
		return nil, ErrEmptyDocument
	}

	var (
		doc *contextdoc.ContextDocument
		err error
	)
	if isStructured(normalized) {
		doc, err = parseStructured(normalized)
	} else {
		doc, err = parseConvention(normalized)
	}
	if err != nil {
		return nil, err
	}

	doc.Status = contextdoc.StatusDraft
	doc.Fingerprint = contextdoc.Fingerprint(text)
	assignIDs(doc)
	return doc, nil
}

// isStructured reports whether the text opens with the front-matter fence.
func isStructured(normalized string) bool {
	first := normalized
	if i := strings.IndexByte(first, '\n'); i >= 0 {
		first = first[:i]
	}
	return strings.TrimSpace(first) == frontMatterDelimiter
}

// assignIDs fills in deterministic identifiers for document elements that
// were declared without one. Running it twice is a no-op, which keeps
// serialize/parse round trips stable.
func assignIDs(doc *contextdoc.ContextDocument) {
	for i := range doc.Relationships {
		if doc.Relationships[i].ID == "" {
			doc.Relationships[i].ID = "rel_" + strconv.Itoa(i+1)
		}
		if doc.Relationships[i].JoinType == "" {
			doc.Relationships[i].JoinType = contextdoc.JoinLeft
		}
	}
	for i := range doc.Metrics {
		if doc.Metrics[i].ID == "" {
			doc.Metrics[i].ID = "metric_" + strconv.Itoa(i+1)
		}
	}
	for i := range doc.Filters {
		if doc.Filters[i].ID == "" {
			doc.Filters[i].ID = "filter_" + strconv.Itoa(i+1)
		}
	}
	for i := range doc.Rules {
		if doc.Rules[i].ID == "" {
			doc.Rules[i].ID = "rule_" + strconv.Itoa(i+1)
		}
	}
}
