package vectorstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AddsTotal counts Add calls by result (success, error, noop).
	AddsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "vectorstore",
			Name:      "adds_total",
			Help:      "Total number of document store add operations",
		},
		[]string{"result"},
	)

	// ChunksAdded counts chunks inserted across all stores.
	ChunksAdded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "vectorstore",
			Name:      "chunks_added_total",
			Help:      "Total number of chunks inserted into document stores",
		},
	)

	// SearchesTotal counts searches by result (hit, empty, error).
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "vectorstore",
			Name:      "searches_total",
			Help:      "Total number of document store searches",
		},
		[]string{"result"},
	)

	// SearchDuration tracks search latency by backend.
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "vectorstore",
			Name:      "search_duration_seconds",
			Help:      "Duration of document store searches in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"backend"},
	)

	// ResetsTotal counts store resets.
	ResetsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "vectorstore",
			Name:      "resets_total",
			Help:      "Total number of document store resets",
		},
	)
)
