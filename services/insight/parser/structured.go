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
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianInsight/services/insight/contextdoc"
)

// parseStructured parses a document opening with a YAML front-matter block.
//
// The block is fenced by "---" lines. Everything after the closing fence is
// free-form prose and is carried only through the fingerprint.
func parseStructured(normalized string) (*contextdoc.ContextDocument, error) {
	lines := strings.Split(normalized, "\n")

	// lines[0] is the opening fence (checked by the dispatcher).
	closing := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == frontMatterDelimiter {
			closing = i
			break
		}
	}
	if closing < 0 {
		return nil, parseErrorf(1, "structured block is not closed: missing %q fence", frontMatterDelimiter)
	}

	block := strings.Join(lines[1:closing], "\n")
	var doc contextdoc.ContextDocument
	if err := yaml.Unmarshal([]byte(block), &doc); err != nil {
		return nil, parseErrorf(0, "invalid structured block: %v", err)
	}

	if err := checkRequired(&doc); err != nil {
		return nil, err
	}
	for _, rel := range doc.Relationships {
		if rel.JoinType != "" && !rel.JoinType.Valid() {
			return nil, parseErrorf(0, "relationship %s->%s: unknown join type %q",
				rel.From.Dataset, rel.To.Dataset, rel.JoinType)
		}
	}
	return &doc, nil
}

// checkRequired enforces the structured block's required fields.
// Length and format constraints beyond bare presence belong to the
// validator's schema pass.
func checkRequired(doc *contextdoc.ContextDocument) error {
	switch {
	case strings.TrimSpace(doc.Name) == "":
		return parseErrorf(0, "required field missing: name")
	case strings.TrimSpace(doc.Version) == "":
		return parseErrorf(0, "required field missing: version")
	case strings.TrimSpace(doc.Description) == "":
		return parseErrorf(0, "required field missing: description")
	case len(doc.Datasets) == 0:
		return parseErrorf(0, "required field missing: at least one dataset")
	}
	for _, ds := range doc.Datasets {
		if strings.TrimSpace(ds.LocalID) == "" {
			return parseErrorf(0, "dataset %q: required field missing: id", ds.Name)
		}
	}
	return nil
}

// Serialize renders a document back into structured form.
//
// Description:
//
//	Produces a canonical front-matter document: "---" fence, YAML body in
//	struct declaration order, closing fence. Serialization is stable, so
//	Parse(Serialize(doc)) yields a document value-equal to doc for any doc
//	whose fingerprint matches its own serialized form; parsing the output
//	of Serialize always has that property.
//
// Inputs:
//
//	doc - The document to render. Must not be nil.
//
// Outputs:
//
//	string - Structured document text.
//	error - Non-nil only if the document cannot be marshaled.
func Serialize(doc *contextdoc.ContextDocument) (string, error) {
	body, err := yaml.Marshal(doc)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(frontMatterDelimiter)
	b.WriteByte('\n')
	b.Write(body)
	b.WriteString(frontMatterDelimiter)
	b.WriteByte('\n')
	return b.String(), nil
}
