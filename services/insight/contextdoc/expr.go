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
	"errors"
	"fmt"
	"unicode"
)

// Expression scanning shared by the validator (reference and syntax
// checks) and the compiler (implicit dataset discovery).
//
// This is deliberately not a SQL parser. It resolves "local_id.column"
// references and checks lexical well-formedness (balanced parentheses,
// terminated string literals). Full grammar validation is the backing
// store's job at execution time.

// ErrUnterminatedString indicates an expression with an unclosed quote.
var ErrUnterminatedString = errors.New("unterminated string literal")

// ErrUnbalancedParens indicates mismatched parentheses.
var ErrUnbalancedParens = errors.New("unbalanced parentheses")

// ExtractRefs returns every "identifier.identifier" reference in the
// expression as an Endpoint, in order of appearance. References inside
// string literals are ignored. Bind parameters (":name") are skipped.
func ExtractRefs(expr string) []Endpoint {
	var refs []Endpoint
	runes := []rune(expr)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case r == '\'' || r == '"':
			i = skipString(runes, i)
		case r == ':':
			i++
			for i < len(runes) && isIdentRune(runes[i]) {
				i++
			}
		case isIdentStart(r):
			start := i
			for i < len(runes) && isIdentRune(runes[i]) {
				i++
			}
			first := string(runes[start:i])
			if i < len(runes) && runes[i] == '.' && i+1 < len(runes) && isIdentStart(runes[i+1]) {
				i++ // consume '.'
				colStart := i
				for i < len(runes) && isIdentRune(runes[i]) {
					i++
				}
				refs = append(refs, Endpoint{Dataset: first, Column: string(runes[colStart:i])})
			}
		default:
			i++
		}
	}
	return refs
}

// CheckSyntax verifies lexical well-formedness of a condition or metric
// expression: non-empty, balanced parentheses, terminated strings.
func CheckSyntax(expr string) error {
	if len(expr) == 0 {
		return errors.New("empty expression")
	}
	depth := 0
	runes := []rune(expr)
	i := 0
	for i < len(runes) {
		switch runes[i] {
		case '\'', '"':
			next := skipString(runes, i)
			if next > len(runes) {
				return ErrUnterminatedString
			}
			i = next
			continue
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return ErrUnbalancedParens
			}
		}
		i++
	}
	if depth != 0 {
		return ErrUnbalancedParens
	}
	return nil
}

// skipString advances past a quoted literal starting at runes[i].
// Returns len(runes)+1 when the literal never closes, so callers can
// distinguish exhaustion from termination.
func skipString(runes []rune, i int) int {
	quote := runes[i]
	i++
	for i < len(runes) {
		if runes[i] == quote {
			return i + 1
		}
		i++
	}
	return len(runes) + 1
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// RefError describes an expression reference that does not resolve against
// the document's declared datasets and columns.
type RefError struct {
	Ref    Endpoint
	Reason string
}

// Error implements the error interface.
func (e *RefError) Error() string {
	return fmt.Sprintf("unresolved reference %s: %s", e.Ref, e.Reason)
}
