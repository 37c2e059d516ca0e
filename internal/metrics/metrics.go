// Copyright (C) 2025 DiffGraph Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package metrics holds the Prometheus collectors for the analysis
// pipeline. Collectors register on the default registry via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChunksTotal counts chunk analyses by terminal parse status
	// (ok, unparsable, timed_out).
	ChunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diffgraph",
		Subsystem: "pipeline",
		Name:      "chunks_total",
		Help:      "Chunk analyses by terminal parse status.",
	}, []string{"status"})

	// ProviderCalls counts AI provider calls by tool and outcome.
	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diffgraph",
		Subsystem: "provider",
		Name:      "calls_total",
		Help:      "AI provider calls by tool (extract, map) and outcome (ok, error).",
	}, []string{"tool", "outcome"})

	// ExtractionDuration observes provider call latency per tool.
	ExtractionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "diffgraph",
		Subsystem: "provider",
		Name:      "call_duration_seconds",
		Help:      "AI provider call latency.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"tool"})

	// MergeConflicts counts components re-extracted with divergent
	// attributes (resolved last-writer-wins).
	MergeConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "diffgraph",
		Subsystem: "graph",
		Name:      "merge_conflicts_total",
		Help:      "Component merges resolved last-writer-wins.",
	})

	// PendingEdges tracks the size of the unresolved-edge table after the
	// most recent merge.
	PendingEdges = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "diffgraph",
		Subsystem: "graph",
		Name:      "pending_edges",
		Help:      "Unresolved edges awaiting a target component.",
	})
)
