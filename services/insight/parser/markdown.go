// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package parser

import (
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianInsight/services/insight/contextdoc"
)

// Convention-format line patterns.
var (
	// "- Orders (id: o1)"
	datasetBulletRe = regexp.MustCompile(`^-\s+(.+?)\s*\(\s*id:\s*([A-Za-z_][A-Za-z0-9_]*)\s*\)\s*$`)

	// "## Dataset: Orders (id: o1)"
	datasetHeadingRe = regexp.MustCompile(`^##+\s*Dataset:\s*(.+?)\s*\(\s*id:\s*([A-Za-z_][A-Za-z0-9_]*)\s*\)\s*$`)

	// "- o1 -> c1 via customer_id [inner]" (either arrow glyph; join tag optional)
	relationshipRe = regexp.MustCompile(`^-\s+([A-Za-z_][A-Za-z0-9_]*)\s*(?:->|→)\s*([A-Za-z_][A-Za-z0-9_]*)\s+via\s+([A-Za-z_][A-Za-z0-9_]*)(?:\s*\[\s*([a-z]+)\s*\])?\s*$`)

	// "- total_revenue = SUM(o1.amount)"
	metricRe = regexp.MustCompile(`^-\s+([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(.+)$`)

	// "- recent_orders: o1.created_at > :since"
	filterRe = regexp.MustCompile(`^-\s+([A-Za-z_][A-Za-z0-9_]*)\s*:\s*(.+)$`)

	// "- [error] positive_amount: o1.amount >= 0"
	ruleRe = regexp.MustCompile(`^-\s+\[\s*([a-z]+)\s*\]\s*([A-Za-z_][A-Za-z0-9_]*)\s*:\s*(.+)$`)

	// "- Churn: customers with no order in 90 days"
	glossaryRe = regexp.MustCompile(`^-\s+(.+?)\s*:\s*(.+)$`)
)

// section identifies which convention section the scanner is in.
type section int

const (
	sectionNone section = iota
	sectionDatasets
	sectionRelationships
	sectionMetrics
	sectionFilters
	sectionRules
	sectionGlossary
	sectionOther
)

// sectionFor maps a heading title to its section.
func sectionFor(title string) section {
	switch {
	case strings.Contains(title, "dataset"):
		return sectionDatasets
	case strings.Contains(title, "relationship"):
		return sectionRelationships
	case strings.Contains(title, "metric"):
		return sectionMetrics
	case strings.Contains(title, "filter"):
		return sectionFilters
	case strings.Contains(title, "rule"):
		return sectionRules
	case strings.Contains(title, "glossary"):
		return sectionGlossary
	}
	return sectionOther
}

// parseConvention infers document structure from markdown conventions.
//
// Description:
//
//	Scans the text line by line:
//
//	  - first top-level heading -> document name
//	  - first paragraph after the heading -> description
//	  - "Datasets" section: "- Name (id: x)" bullets or
//	    "## Dataset: Name (id: x)" headings
//	  - "Relationships" section: "- a -> b via column" bullets with an
//	    optional "[join]" suffix
//	  - "Metrics": "- name = expression"
//	  - "Filters": "- name: condition"
//	  - "Rules": "- [severity] name: condition"
//	  - "Glossary": "- Term: definition"
//
//	A dataset bullet whose identifier cannot be resolved, a duplicate
//	dataset name or id, or a malformed relationship line is a ParseError.
//	Whether the referenced datasets and columns exist is not checked here.
func parseConvention(normalized string) (*contextdoc.ContextDocument, error) {
	doc := &contextdoc.ContextDocument{}
	lines := strings.Split(normalized, "\n")

	cur := sectionNone
	var descLines []string
	descDone := false
	seenNames := map[string]int{}
	seenIDs := map[string]int{}

	for i, raw := range lines {
		lineNo := i + 1
		line := strings.TrimSpace(raw)
		if line == "" {
			if len(descLines) > 0 {
				descDone = true
			}
			continue
		}

		// Dataset headings double as dataset declarations, so they are
		// matched before generic section dispatch.
		if m := datasetHeadingRe.FindStringSubmatch(line); m != nil {
			if err := addDataset(doc, seenNames, seenIDs, m[1], m[2], lineNo); err != nil {
				return nil, err
			}
			cur = sectionDatasets
			continue
		}

		if strings.HasPrefix(line, "##") {
			title := strings.ToLower(strings.TrimSpace(strings.TrimLeft(line, "#")))
			cur = sectionFor(title)
			continue
		}
		if strings.HasPrefix(line, "#") {
			if doc.Name == "" {
				doc.Name = strings.TrimSpace(strings.TrimLeft(line, "#"))
			}
			cur = sectionNone
			continue
		}

		switch cur {
		case sectionNone:
			if !descDone && !strings.HasPrefix(line, "-") {
				descLines = append(descLines, line)
			}

		case sectionDatasets:
			if !strings.HasPrefix(line, "-") {
				continue // prose inside the section
			}
			m := datasetBulletRe.FindStringSubmatch(line)
			if m == nil {
				return nil, parseErrorf(lineNo, "dataset entry %q: cannot resolve identifier, expected \"- Name (id: x)\"", line)
			}
			if err := addDataset(doc, seenNames, seenIDs, m[1], m[2], lineNo); err != nil {
				return nil, err
			}

		case sectionRelationships:
			if !strings.HasPrefix(line, "-") {
				continue
			}
			m := relationshipRe.FindStringSubmatch(line)
			if m == nil {
				return nil, parseErrorf(lineNo, "relationship entry %q: expected \"- a -> b via column\"", line)
			}
			join := contextdoc.JoinType(m[4])
			if m[4] != "" && !join.Valid() {
				return nil, parseErrorf(lineNo, "relationship entry: unknown join type %q", m[4])
			}
			doc.Relationships = append(doc.Relationships, contextdoc.Relationship{
				From:     contextdoc.Endpoint{Dataset: m[1], Column: m[3]},
				To:       contextdoc.Endpoint{Dataset: m[2], Column: m[3]},
				JoinType: join,
			})

		case sectionMetrics:
			if !strings.HasPrefix(line, "-") {
				continue
			}
			m := metricRe.FindStringSubmatch(line)
			if m == nil {
				return nil, parseErrorf(lineNo, "metric entry %q: expected \"- name = expression\"", line)
			}
			doc.Metrics = append(doc.Metrics, contextdoc.Metric{
				Name:       m[1],
				Expression: strings.TrimSpace(m[2]),
			})

		case sectionFilters:
			if !strings.HasPrefix(line, "-") {
				continue
			}
			m := filterRe.FindStringSubmatch(line)
			if m == nil {
				return nil, parseErrorf(lineNo, "filter entry %q: expected \"- name: condition\"", line)
			}
			doc.Filters = append(doc.Filters, contextdoc.NamedFilter{
				Name:      m[1],
				Condition: strings.TrimSpace(m[2]),
			})

		case sectionRules:
			if !strings.HasPrefix(line, "-") {
				continue
			}
			m := ruleRe.FindStringSubmatch(line)
			if m == nil {
				return nil, parseErrorf(lineNo, "rule entry %q: expected \"- [severity] name: condition\"", line)
			}
			doc.Rules = append(doc.Rules, contextdoc.BusinessRule{
				Name:      m[2],
				Severity:  contextdoc.Severity(m[1]),
				Condition: strings.TrimSpace(m[3]),
			})

		case sectionGlossary:
			if !strings.HasPrefix(line, "-") {
				continue
			}
			if m := glossaryRe.FindStringSubmatch(line); m != nil {
				doc.Glossary = append(doc.Glossary, contextdoc.GlossaryEntry{
					Term:       m[1],
					Definition: strings.TrimSpace(m[2]),
				})
			}

		case sectionOther:
			// Unrecognized sections are prose; ignored.
		}
	}

	doc.Description = strings.Join(descLines, " ")
	if doc.Name == "" {
		return nil, parseErrorf(0, "no top-level heading found for document name")
	}
	if len(doc.Datasets) == 0 {
		return nil, parseErrorf(0, "no datasets declared")
	}
	return doc, nil
}

// addDataset appends a dataset declaration, rejecting duplicates.
func addDataset(doc *contextdoc.ContextDocument, seenNames, seenIDs map[string]int, name, id string, lineNo int) error {
	name = strings.TrimSpace(name)
	if prev, ok := seenIDs[id]; ok {
		return parseErrorf(lineNo, "duplicate dataset id %q (first declared at line %d)", id, prev)
	}
	if prev, ok := seenNames[name]; ok {
		return parseErrorf(lineNo, "duplicate dataset name %q (first declared at line %d)", name, prev)
	}
	seenIDs[id] = lineNo
	seenNames[name] = lineNo
	doc.Datasets = append(doc.Datasets, contextdoc.DatasetRef{
		LocalID: id,
		Name:    name,
	})
	return nil
}
