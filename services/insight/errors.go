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
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the insight service.
var (
	// ErrContextInvalid indicates the context's validation is failed;
	// queries against it are refused until the document is fixed.
	ErrContextInvalid = errors.New("context failed validation")

	// ErrEmptyQuestion indicates a natural-language request without a
	// question.
	ErrEmptyQuestion = errors.New("question must not be empty")

	// ErrNoTranslator indicates /ask was called but no translator is
	// configured.
	ErrNoTranslator = errors.New("no translator configured")
)

// ExecutionTimeout indicates the dataset store did not answer within the
// caller's deadline. Retryable: nothing was cached and the query is
// idempotent.
type ExecutionTimeout struct {
	Timeout time.Duration
}

// Error implements the error interface.
func (e *ExecutionTimeout) Error() string {
	return fmt.Sprintf("execution timed out after %s (retryable)", e.Timeout)
}

// ExecutionError wraps a dataset store failure. Never cached, never
// converted into an empty result.
type ExecutionError struct {
	Err error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return "execution failed: " + e.Err.Error()
}

// Unwrap returns the underlying store error.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}
