// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package translator converts free-text questions into query requests.
//
// The translator sits outside the engine core: Execute and Explain never
// depend on it. It exists so the /ask endpoint can hand a natural-language
// question plus an active context to an LLM and get back a structured
// QueryRequest that then flows through the normal compile/execute path.
package translator

import (
	"context"

	"github.com/AleutianAI/AleutianInsight/services/insight/contextdoc"
)

// Translator converts a question into a query request against a context.
type Translator interface {
	// Translate builds a QueryRequest answering the question using only
	// the datasets, metrics and filters the document declares.
	Translate(ctx context.Context, doc *contextdoc.ContextDocument, question string) (*contextdoc.QueryRequest, error)
}
