package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reindex run outcomes, used as the "outcome" label.
const (
	outcomeSuccess      = "success"
	outcomeWriteFailure = "write_failure"
	outcomeError        = "error"
)

var (
	reindexRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalogue_reindex_runs_total",
			Help: "Total number of reindex runs by outcome",
		},
		[]string{"index", "outcome"},
	)

	reindexDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalogue_reindex_duration_seconds",
			Help:    "End-to-end duration of reindex runs in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"index"},
	)

	indexedDocuments = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catalogue_indexed_documents",
			Help: "Number of documents in the index after the last successful reindex",
		},
		[]string{"index"},
	)

	searchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalogue_search_requests_total",
			Help: "Total number of search requests by outcome",
		},
		[]string{"outcome"},
	)

	searchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalogue_search_duration_seconds",
			Help:    "Duration of search executions in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
