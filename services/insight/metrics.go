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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the execute path, exposed on /metrics.
var (
	metricCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "insight_result_cache_hits_total",
		Help: "Number of execute calls served from the result cache.",
	})

	metricCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "insight_result_cache_misses_total",
		Help: "Number of execute calls that missed the result cache.",
	})

	metricExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insight_executions_total",
		Help: "Dataset store executions by outcome.",
	}, []string{"status"})

	metricExecuteLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "insight_execute_duration_seconds",
		Help:    "End-to-end latency of execute calls.",
		Buckets: prometheus.DefBuckets,
	})
)
