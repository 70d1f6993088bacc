// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package relgraph

import (
	"fmt"
	"strings"
)

// NoPathError indicates the requested datasets are not connected by the
// document's relationships. The caller should narrow the requested set or
// add relationships to the context.
type NoPathError struct {
	// Requested is the dataset set that could not be connected.
	Requested []string

	// Unreachable lists the datasets that could not be reached from the
	// rest of the requested set. Empty when a requested dataset is not
	// declared at all.
	Unreachable []string

	// Unknown lists requested local ids not present in the document.
	Unknown []string
}

// Error implements the error interface.
func (e *NoPathError) Error() string {
	if len(e.Unknown) > 0 {
		return fmt.Sprintf("no join path: unknown datasets %s", strings.Join(e.Unknown, ", "))
	}
	return fmt.Sprintf("no join path connecting %s: unreachable %s",
		strings.Join(e.Requested, ", "), strings.Join(e.Unreachable, ", "))
}

// CircularPathError indicates the requested datasets are connected, but
// every connecting path would revisit a dataset. Join paths must be simple.
type CircularPathError struct {
	Requested []string
}

// Error implements the error interface.
func (e *CircularPathError) Error() string {
	return fmt.Sprintf("no simple join path connecting %s: every candidate path revisits a dataset",
		strings.Join(e.Requested, ", "))
}
