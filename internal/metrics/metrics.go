// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesIngestedTotal counts frames accepted by the ingest callback
	FramesIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wsinspect_frames_ingested_total",
			Help: "Total number of WebSocket frames handed to the ingest queue",
		},
		[]string{"direction"},
	)

	// QueueDepth tracks frames waiting for the next drain cycle
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wsinspect_queue_depth",
			Help: "Number of frames waiting in the ingest queue",
		},
	)

	// DrainCyclesTotal counts drain cycles by result (drained, empty, skipped)
	DrainCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wsinspect_drain_cycles_total",
			Help: "Total number of drain cycles by result",
		},
		[]string{"result"},
	)

	// DrainLatencySeconds measures how long a non-empty drain cycle takes
	DrainLatencySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wsinspect_drain_latency_seconds",
			Help:    "Latency of non-empty drain cycles in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 20), // 10µs to ~5s
		},
	)

	// DrainBatchSize tracks how many frames one drain cycle processed
	DrainBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wsinspect_drain_batch_size",
			Help:    "Number of frames processed per drain cycle",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16), // 1, 2, 4, ..., 32768
		},
	)

	// FrameErrorsTotal counts per-frame reassembly problems by kind
	FrameErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wsinspect_frame_errors_total",
			Help: "Total number of frames that hit a reassembly error",
		},
		[]string{"kind"},
	)

	// PendingMessages tracks partial messages held by the reassembler
	PendingMessages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wsinspect_pending_messages",
			Help: "Number of partially reassembled messages",
		},
	)

	// AbandonedMessagesTotal counts partial messages replaced, expired or dropped at shutdown
	AbandonedMessagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wsinspect_abandoned_messages_total",
			Help: "Total number of partial messages discarded before completion",
		},
	)

	// MessagesEmittedTotal counts synthetic requests handed to the emitter
	MessagesEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wsinspect_messages_emitted_total",
			Help: "Total number of reassembled messages emitted",
		},
		[]string{"message_type"},
	)

	// EmitDropsTotal counts messages dropped because the dispatch queue was full
	EmitDropsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wsinspect_emit_drops_total",
			Help: "Total number of synthetic requests dropped before submission",
		},
	)

	// InjectorErrorsTotal counts injector failures by name and stage
	InjectorErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wsinspect_injector_errors_total",
			Help: "Total number of synthetic request submission failures",
		},
		[]string{"injector", "stage"},
	)

	// RelayConnections tracks open relay connections
	RelayConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wsinspect_relay_connections",
			Help: "Number of WebSocket connections currently relayed",
		},
	)
)

// Drain cycle result label values
const (
	CycleDrained = "drained"
	CycleEmpty   = "empty"
	CycleSkipped = "skipped"
)
