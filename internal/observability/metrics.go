// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Stream metrics
	CreationsReceived prometheus.Counter
	TradesReceived    prometheus.Counter
	CreationsRejected *prometheus.CounterVec
	Reconnects        prometheus.Counter

	// State metrics
	CacheSize     prometheus.Gauge
	WatchlistSize prometheus.Gauge
	TrackedMints  prometheus.Gauge
	PendingSubs   prometheus.Gauge
	CacheExpired  prometheus.Counter
	CacheEvicted  prometheus.Counter

	// Lifecycle metrics
	PhaseAdvances   prometheus.Counter
	Graduations     prometheus.Counter
	StreamsFinished prometheus.Counter
	StaleDetections prometheus.Counter
	Resubscribes    prometheus.Counter

	// Flush metrics
	MetricRowsFlushed    prometheus.Counter
	RawTradesFlushed     prometheus.Counter
	MetricBatchesDropped prometheus.Counter
	ATHEntriesFlushed    prometheus.Counter
	PipelineDegraded     prometheus.Gauge
	FlushDuration        prometheus.Histogram

	// Health metrics
	LastEventTimestamp prometheus.Gauge
	LastFlushTimestamp prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "token_stream_lab"
	}

	return &Metrics{
		// Stream metrics
		CreationsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "creations_received_total",
			Help:      "Total number of token creation events received",
		}),
		TradesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "trades_received_total",
			Help:      "Total number of trade events received",
		}),
		CreationsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "creations_rejected_total",
			Help:      "Total number of creation events rejected by reason",
		}, []string{"reason"}),
		Reconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Total number of feed reconnections",
		}),

		// State metrics
		CacheSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "cache_size",
			Help:      "Current number of entries in the discovery cache",
		}),
		WatchlistSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "watchlist_size",
			Help:      "Current number of actively tracked tokens",
		}),
		TrackedMints: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "tracked_mints",
			Help:      "Current number of trade-subscribed mints",
		}),
		PendingSubs: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "pending_subscriptions",
			Help:      "Current number of pending subscribe requests",
		}),
		CacheExpired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "cache_expired_total",
			Help:      "Total number of cache entries expired by TTL",
		}),
		CacheEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "cache_evicted_total",
			Help:      "Total number of cache entries evicted at capacity",
		}),

		// Lifecycle metrics
		PhaseAdvances: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "phase_advances_total",
			Help:      "Total number of phase transitions",
		}),
		Graduations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "graduations_total",
			Help:      "Total number of tokens that completed the bonding curve",
		}),
		StreamsFinished: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "streams_finished_total",
			Help:      "Total number of streams that exhausted their lifecycle",
		}),
		StaleDetections: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "stale_detections_total",
			Help:      "Total number of stale interval signatures detected",
		}),
		Resubscribes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "resubscribes_total",
			Help:      "Total number of forced resubscribe cycles",
		}),

		// Flush metrics
		MetricRowsFlushed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flush",
			Name:      "metric_rows_total",
			Help:      "Total number of metric rows written",
		}),
		RawTradesFlushed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flush",
			Name:      "raw_trades_total",
			Help:      "Total number of raw trades written",
		}),
		MetricBatchesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flush",
			Name:      "metric_batches_dropped_total",
			Help:      "Total number of metric batches dropped after retries",
		}),
		ATHEntriesFlushed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flush",
			Name:      "ath_entries_total",
			Help:      "Total number of ATH entries written",
		}),
		PipelineDegraded: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "flush",
			Name:      "pipeline_degraded",
			Help:      "1 when the last metrics batch was dropped, 0 otherwise",
		}),
		FlushDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "flush",
			Name:      "duration_seconds",
			Help:      "Flush pass duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Health metrics
		LastEventTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_event_timestamp",
			Help:      "Unix timestamp of the last feed event received",
		}),
		LastFlushTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_flush_timestamp",
			Help:      "Unix timestamp of the last successful flush pass",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")
