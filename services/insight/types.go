// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package insight

import (
	"time"

	"github.com/AleutianAI/AleutianInsight/services/insight/contextdoc"
)

// Default resource bounds.
const (
	// DefaultExecuteTimeout bounds one dataset store execution.
	DefaultExecuteTimeout = 30 * time.Second

	// DefaultHistoryCapacity is the per-context execution history depth.
	DefaultHistoryCapacity = 100
)

// ExecuteOptions tunes one Execute call.
type ExecuteOptions struct {
	// UseCache enables result cache lookup and storage. Default true.
	UseCache bool

	// Timeout bounds the dataset store execution. Zero means
	// DefaultExecuteTimeout.
	Timeout time.Duration
}

// DefaultExecuteOptions returns the standard options.
func DefaultExecuteOptions() ExecuteOptions {
	return ExecuteOptions{UseCache: true}
}

// ExecuteResult is the outcome of one executed query.
type ExecuteResult struct {
	// Plan is the compiled plan that produced the rows.
	Plan *contextdoc.CompiledPlan `json:"plan"`

	// Rows are the formatted result rows.
	Rows []contextdoc.Row `json:"rows"`

	// Cached is true when the rows came from the result cache.
	Cached bool `json:"cached"`

	// LatencyMS is the end-to-end latency of this call.
	LatencyMS int64 `json:"latency_ms"`
}

// =============================================================================
// HTTP request/response bodies
// =============================================================================

// ExecuteRequest is the body of POST /v1/insight/execute.
type ExecuteRequest struct {
	ContextID string                  `json:"context_id" binding:"required"`
	Query     contextdoc.QueryRequest `json:"query" binding:"required"`

	// UseCache defaults to true when omitted.
	UseCache *bool `json:"use_cache,omitempty"`

	// TimeoutSeconds bounds execution; zero uses the service default.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// ExplainRequest is the body of POST /v1/insight/explain.
type ExplainRequest struct {
	ContextID string                  `json:"context_id" binding:"required"`
	Query     contextdoc.QueryRequest `json:"query" binding:"required"`
}

// ValidateRequest is the body of POST /v1/insight/contexts/validate.
type ValidateRequest struct {
	// Text is the raw document source, structured or convention format.
	Text string `json:"text" binding:"required"`
}

// ValidateResponse returns the parsed document and its findings.
type ValidateResponse struct {
	Document   *contextdoc.ContextDocument `json:"document"`
	Validation contextdoc.ValidationResult `json:"validation"`
}

// SaveContextRequest is the body of POST /v1/insight/contexts.
type SaveContextRequest struct {
	// ContextID groups versions; empty means a new context.
	ContextID string `json:"context_id,omitempty"`

	// Text is the raw document source.
	Text string `json:"text" binding:"required"`
}

// AskRequest is the body of POST /v1/insight/ask.
type AskRequest struct {
	ContextID string `json:"context_id" binding:"required"`
	Question  string `json:"question" binding:"required"`
}

// AskResponse carries the translated request and its execution result.
type AskResponse struct {
	Query  contextdoc.QueryRequest `json:"query"`
	Result *ExecuteResult          `json:"result"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`

	// Retryable hints whether the same request may succeed later.
	Retryable bool `json:"retryable,omitempty"`
}
