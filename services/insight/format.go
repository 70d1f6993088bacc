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
	"fmt"
	"strconv"

	"github.com/AleutianAI/AleutianInsight/services/insight/contextdoc"
)

// formatRows applies each applied metric's display format to its output
// column. Non-numeric values and metrics without a format pass through
// unchanged; formatting happens before caching so cached and fresh results
// render identically.
func formatRows(rows []contextdoc.Row, doc *contextdoc.ContextDocument, appliedMetrics []string) []contextdoc.Row {
	formats := make(map[string]string)
	for _, name := range appliedMetrics {
		if m, ok := doc.Metric(name); ok && m.Format != "" {
			formats[m.Name] = m.Format
		}
	}
	if len(formats) == 0 {
		return rows
	}

	out := make([]contextdoc.Row, len(rows))
	for i, row := range rows {
		formatted := make(contextdoc.Row, len(row))
		for col, val := range row {
			if format, ok := formats[col]; ok {
				formatted[col] = formatValue(val, format)
			} else {
				formatted[col] = val
			}
		}
		out[i] = formatted
	}
	return out
}

// formatValue renders one metric value for display.
func formatValue(val any, format string) any {
	num, ok := asFloat(val)
	if !ok {
		return val
	}
	switch format {
	case "currency":
		return fmt.Sprintf("$%.2f", num)
	case "percent":
		return fmt.Sprintf("%.1f%%", num)
	case "number":
		return strconv.FormatFloat(num, 'f', -1, 64)
	default:
		return val
	}
}

// asFloat widens the numeric types a dataset store may hand back.
// JSON-decoded cached rows arrive as float64; live rows may carry the
// driver's native integer types.
func asFloat(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}
