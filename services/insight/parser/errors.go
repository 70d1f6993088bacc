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
	"errors"
	"fmt"
)

// ErrEmptyDocument is returned when the input contains no content.
var ErrEmptyDocument = errors.New("document is empty")

// ParseError describes a malformed document.
//
// Parse errors are non-retryable: the document text must be edited before
// another attempt can succeed.
type ParseError struct {
	// Line is the 1-based line number of the offending content.
	// Zero when the error is not attributable to a single line.
	Line int

	// Reason describes what was wrong.
	Reason string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("parse error: %s", e.Reason)
}

// parseErrorf builds a ParseError with a formatted reason.
func parseErrorf(line int, format string, args ...any) *ParseError {
	return &ParseError{Line: line, Reason: fmt.Sprintf(format, args...)}
}
