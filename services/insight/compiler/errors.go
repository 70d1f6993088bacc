// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compiler

import "fmt"

// UndefinedMetricError indicates a requested metric is not declared in the
// context document.
type UndefinedMetricError struct {
	Name string
}

// Error implements the error interface.
func (e *UndefinedMetricError) Error() string {
	return fmt.Sprintf("undefined metric %q", e.Name)
}

// UndefinedFilterError indicates a requested named filter is not declared
// in the context document.
type UndefinedFilterError struct {
	Name string
}

// Error implements the error interface.
func (e *UndefinedFilterError) Error() string {
	return fmt.Sprintf("undefined filter %q", e.Name)
}

// CompileError indicates a request that cannot be compiled against the
// context: unknown dataset or column references, empty projections, and
// similar. Per-query and non-retryable without changing the request.
type CompileError struct {
	Reason string
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	return "compile error: " + e.Reason
}

func compileErrorf(format string, args ...any) *CompileError {
	return &CompileError{Reason: fmt.Sprintf(format, args...)}
}
