// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/AleutianInsight/services/insight/contextdoc"
)

const systemPrompt = `You translate analytics questions into JSON query requests.
Reply with a single JSON object and nothing else. Schema:
{"datasets":[],"metrics":[],"fields":[],"filters":[],"conditions":[],"group_by":[],"sort":[{"field":"","descending":false}],"limit":0}
Use only the dataset ids, column names, metric names and filter names listed
in the context. Do not invent identifiers.`

// OpenAITranslator implements Translator with a chat completion call.
type OpenAITranslator struct {
	client *openai.Client
	model  string
}

// NewOpenAITranslator creates a translator from environment configuration.
//
// OPENAI_API_KEY is required (falling back to the container secret at
// /run/secrets/openai_api_key); OPENAI_MODEL defaults to gpt-4o-mini.
func NewOpenAITranslator() (*OpenAITranslator, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		if data, err := os.ReadFile(secretPath); err == nil {
			apiKey = strings.TrimSpace(string(data))
			slog.Info("Read the OpenAI API key from container secrets")
		} else {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	}
	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}
	return &OpenAITranslator{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Translate implements Translator.
func (t *OpenAITranslator) Translate(ctx context.Context, doc *contextdoc.ContextDocument, question string) (*contextdoc.QueryRequest, error) {
	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: contextSummary(doc) + "\n\nQuestion: " + question},
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("translate question: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("translate question: model returned no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var req contextdoc.QueryRequest
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &req); err != nil {
		return nil, fmt.Errorf("translate question: model reply is not a query request: %w", err)
	}
	return &req, nil
}

// contextSummary renders the parts of the document the model may use.
func contextSummary(doc *contextdoc.ContextDocument) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Context: %s\n%s\n", doc.Name, doc.Description)
	b.WriteString("Datasets:\n")
	for _, ds := range doc.Datasets {
		fmt.Fprintf(&b, "  %s (%s):", ds.LocalID, ds.Name)
		for _, c := range ds.Columns {
			fmt.Fprintf(&b, " %s", c.Name)
		}
		b.WriteByte('\n')
	}
	if len(doc.Metrics) > 0 {
		b.WriteString("Metrics:\n")
		for _, m := range doc.Metrics {
			fmt.Fprintf(&b, "  %s = %s\n", m.Name, m.Expression)
		}
	}
	if len(doc.Filters) > 0 {
		b.WriteString("Filters:\n")
		for _, f := range doc.Filters {
			fmt.Fprintf(&b, "  %s: %s\n", f.Name, f.Condition)
		}
	}
	if len(doc.Glossary) > 0 {
		b.WriteString("Glossary:\n")
		for _, g := range doc.Glossary {
			fmt.Fprintf(&b, "  %s: %s\n", g.Term, g.Definition)
		}
	}
	return b.String()
}
