package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// filesParsed counts files parsed by language
	filesParsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ckg_ingest_files_parsed_total",
		Help: "Total files parsed by language",
	}, []string{"language"})

	// filesSkipped counts files left out of a snapshot by reason
	filesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ckg_ingest_files_skipped_total",
		Help: "Total files skipped by reason",
	}, []string{"reason"})

	writeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ckg_ingest_write_failures_total",
		Help: "Total graph write units that failed",
	})

	parseCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ckg_parse_cache_lookups_total",
		Help: "Parse cache lookups by result",
	}, []string{"result"})

	// runDuration tracks end-to-end ingestion latency
	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ckg_ingest_run_duration_seconds",
		Help:    "Ingestion run duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
	}, []string{"result"})
)

const (
	skipUnsupported = "unsupported_language"
	skipDisabled    = "language_disabled"
	skipTimeout     = "parse_timeout"
)
