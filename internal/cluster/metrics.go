package cluster

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CandidatesGenerated counts distinct candidates produced by expansions.
	CandidatesGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sketchd",
			Subsystem: "search",
			Name:      "candidates_generated_total",
			Help:      "Total number of distinct candidate clusters produced by expansion",
		},
	)

	// DuplicatesSkipped counts derived clusters dropped by content-hash dedup.
	DuplicatesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sketchd",
			Subsystem: "search",
			Name:      "duplicates_skipped_total",
			Help:      "Total number of derived clusters skipped because an identical candidate was already found",
		},
	)

	// ScoreCacheLookups counts score cache lookups.
	// Labels: result (hit, miss)
	ScoreCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sketchd",
			Subsystem: "search",
			Name:      "score_cache_lookups_total",
			Help:      "Total number of candidate score cache lookups",
		},
		[]string{"result"},
	)

	// ExpansionDuration tracks how long one seed's expansion and scoring take.
	ExpansionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sketchd",
			Subsystem: "search",
			Name:      "expansion_duration_seconds",
			Help:      "Duration of a single seed expansion including scoring, in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
