// Package metrics exposes Prometheus instrumentation and the /healthz probe.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the setup engine and gateway.
type Metrics struct {
	// Ingest
	SamplesTotal   *prometheus.CounterVec // labels: source
	SamplesDropped *prometheus.CounterVec // labels: reason
	FeedReconnects prometheus.Counter

	// Signal engine
	SetupsTotal  *prometheus.CounterVec // labels: setup_type, strength
	AnalysisDur  prometheus.Histogram
	SetupLatency prometheus.Histogram // sample timestamp to alert emit

	// Gateway
	WSConnections   prometheus.Gauge
	Subscriptions   prometheus.Gauge
	BroadcastsTotal *prometheus.CounterVec // labels: kind
	DeliveriesTotal *prometheus.CounterVec // labels: kind
	SendFailures    prometheus.Counter
	Evictions       prometheus.Counter
	FanoutDur       prometheus.Histogram

	// Storage
	SQLiteCommitDur prometheus.Histogram
	RedisWriteDur   prometheus.Histogram

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter

	// Notifications
	NotificationsTotal *prometheus.CounterVec // labels: result
}

// NewMetrics creates all metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in binaries and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SamplesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficlight_samples_total",
			Help: "Market samples accepted from ingest sources",
		}, []string{"source"}),
		SamplesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficlight_samples_dropped_total",
			Help: "Market samples dropped before reaching the engine",
		}, []string{"reason"}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trafficlight_feed_reconnects_total",
			Help: "Sample feed reconnection attempts",
		}),

		SetupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficlight_setups_total",
			Help: "Trade setup alerts emitted",
		}, []string{"setup_type", "strength"}),
		AnalysisDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trafficlight_analysis_duration_seconds",
			Help:    "On-demand analysis latency including storage reads",
			Buckets: prometheus.DefBuckets,
		}),
		SetupLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trafficlight_setup_latency_seconds",
			Help:    "Latency from sample timestamp to setup alert fan-out",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),

		WSConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trafficlight_ws_connections",
			Help: "Currently connected live subscribers",
		}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trafficlight_ws_subscriptions",
			Help: "Active (connection, symbol) subscriptions",
		}),
		BroadcastsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficlight_broadcasts_total",
			Help: "Fan-out operations by message kind",
		}, []string{"kind"}),
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficlight_deliveries_total",
			Help: "Messages successfully queued to a subscriber",
		}, []string{"kind"}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trafficlight_send_failures_total",
			Help: "Sends that failed or timed out",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trafficlight_evictions_total",
			Help: "Connections evicted after a failed send",
		}),
		FanoutDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trafficlight_fanout_duration_seconds",
			Help:    "Time to deliver one message to every subscriber of a symbol",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		}),

		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trafficlight_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trafficlight_redis_write_duration_seconds",
			Help:    "Redis write latency",
			Buckets: prometheus.DefBuckets,
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trafficlight_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trafficlight_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trafficlight_redis_buffered_writes_total",
			Help: "Writes buffered locally while the Redis circuit breaker was open",
		}),

		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficlight_notifications_total",
			Help: "Setup notifications by delivery result",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.SamplesTotal,
		m.SamplesDropped,
		m.FeedReconnects,
		m.SetupsTotal,
		m.AnalysisDur,
		m.SetupLatency,
		m.WSConnections,
		m.Subscriptions,
		m.BroadcastsTotal,
		m.DeliveriesTotal,
		m.SendFailures,
		m.Evictions,
		m.FanoutDur,
		m.SQLiteCommitDur,
		m.RedisWriteDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.NotificationsTotal,
	)

	return m
}
