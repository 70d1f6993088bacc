// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package contextdoc

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint computes the content fingerprint of a document's source text.
//
// Description:
//
//	The fingerprint is a sha256 hex digest over the normalized bytes.
//	Normalization makes the digest insensitive to line-ending style and
//	trailing whitespace, so a document re-saved by a different editor does
//	not spuriously invalidate cached results:
//
//	  - CRLF and lone CR become LF
//	  - trailing whitespace is stripped per line
//	  - leading and trailing blank lines are dropped
//
//	Any change that survives normalization is a real edit and changes the
//	fingerprint, which eagerly invalidates every cached result for the
//	document (the fingerprint is folded into each cache key).
//
// Inputs:
//
//	text - Raw document source.
//
// Outputs:
//
//	string - 64-character lowercase hex digest.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}

// Normalize returns the canonical form of document source text used for
// fingerprinting. Exported so the parser can serialize round-trip-stable
// output.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}
