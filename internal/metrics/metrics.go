package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	RecordsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sshwatch_ingest_records_received_total",
			Help: "Total number of shipper records received",
		},
	)

	EventsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sshwatch_ingest_events_accepted_total",
			Help: "Total number of events stored",
		},
	)

	EventsDuplicate = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sshwatch_ingest_events_duplicate_total",
			Help: "Total number of records skipped as duplicates",
		},
	)

	RecordsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sshwatch_ingest_records_skipped_total",
			Help: "Total number of records skipped as malformed or empty",
		},
	)

	// Search index metrics
	IndexSyncErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sshwatch_index_sync_errors_total",
			Help: "Total number of search index sync failures",
		},
	)

	// Anomaly scorer metrics
	ScoreDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sshwatch_anomaly_score_duration_seconds",
			Help:    "Duration of anomaly score computation in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ScoreErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sshwatch_anomaly_score_errors_total",
			Help: "Total number of anomaly scorer failures",
		},
	)

	SuspiciousEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sshwatch_anomaly_suspicious_events_total",
			Help: "Total number of events flagged as suspicious",
		},
	)

	// Broadcast metrics
	StreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sshwatch_stream_subscribers",
			Help: "Number of connected live stream subscribers",
		},
	)

	StreamDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sshwatch_stream_dropped_messages_total",
			Help: "Total number of messages dropped for slow subscribers",
		},
	)

	// Rate limiting metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sshwatch_ingest_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"key"},
	)
)
