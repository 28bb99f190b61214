package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// watchRuns counts pipeline runs started by watch mode.
	// Labels: outcome (ok, failed)
	watchRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sketchd",
			Subsystem: "watch",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs triggered by document changes or the API",
		},
		[]string{"outcome"},
	)

	// watchRunDuration tracks end-to-end run time, document load included.
	watchRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sketchd",
			Subsystem: "watch",
			Name:      "run_duration_seconds",
			Help:      "Duration of a watch-mode pipeline run in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// watchEvents counts filesystem events on the watched document.
	watchEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sketchd",
			Subsystem: "watch",
			Name:      "document_events_total",
			Help:      "Total number of filesystem events seen for the watched document",
		},
	)
)
