package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Consumer Metrics
var (
	// ConsumerMessagesTotal tracks consumed messages by queue and result
	ConsumerMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_messages_total",
			Help: "Total consumed messages by queue and result (acked/malformed/permanent/requeued/dead_lettered)",
		},
		[]string{"queue", "result"},
	)

	// ConsumerHandleDuration tracks handler latency by queue
	ConsumerHandleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "consumer_handle_duration_seconds",
			Help:    "Message handler duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"queue"},
	)

	// ConsumerReconnectsTotal tracks broker reconnection attempts
	ConsumerReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "consumer_reconnects_total",
			Help: "Total broker reconnection attempts after a connection loss",
		},
	)

	// ConsumerConnected tracks whether the broker connection is up (1) or down (0)
	ConsumerConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "consumer_connected",
			Help: "1 if the broker connection is established, 0 while disconnected",
		},
	)

	// DeadLetteredTotal tracks messages routed to a dead-letter queue
	DeadLetteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_dead_lettered_total",
			Help: "Total messages routed to the dead-letter queue by source queue",
		},
		[]string{"queue"},
	)
)

// Lifecycle Metrics
var (
	// StreamTransitionsTotal tracks applied lifecycle transitions by event and outcome
	StreamTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_transitions_total",
			Help: "Total lifecycle transitions by event type and outcome (applied/noop/not_found/deleted/error)",
		},
		[]string{"event", "outcome"},
	)

	// TxUnitsTotal tracks units of work by result
	TxUnitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tx_units_total",
			Help: "Total transaction units by result (committed/aborted)",
		},
		[]string{"result"},
	)
)

// Publisher Metrics
var (
	// PublishTotal tracks published messages by queue and result
	PublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publisher_messages_total",
			Help: "Total published messages by queue and result (success/error/breaker_open)",
		},
		[]string{"queue", "result"},
	)

	// PublisherBreakerState tracks the publisher circuit breaker state (0=closed, 1=half-open, 2=open)
	PublisherBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "publisher_breaker_state",
			Help: "Publisher circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)
)

// Live List Cache Metrics
var (
	// LiveCacheHits tracks live-list cache hits
	LiveCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "live_cache_hits_total",
			Help: "Total live-stream listing cache hits",
		},
	)

	// LiveCacheMisses tracks live-list cache misses
	LiveCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "live_cache_misses_total",
			Help: "Total live-stream listing cache misses",
		},
	)

	// LiveCacheInvalidations tracks version bumps after lifecycle transitions
	LiveCacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "live_cache_invalidations_total",
			Help: "Total live-stream listing cache invalidations",
		},
	)
)
