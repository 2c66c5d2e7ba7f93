package pipeline

import (
	"firestige.xyz/wsinspect/internal/core"
	"firestige.xyz/wsinspect/internal/metrics"
)

// IngestFunc is the hook a host adapter calls once per arriving frame.
type IngestFunc func(core.RawFrame)

// NewIngestCallback returns an IngestFunc that only enqueues into q.
// It performs no decoding, formatting or I/O, so it is safe to call from the
// host's frame delivery goroutines.
func NewIngestCallback(q *FrameQueue) IngestFunc {
	outbound := metrics.FramesIngestedTotal.WithLabelValues(core.Outbound.String())
	inbound := metrics.FramesIngestedTotal.WithLabelValues(core.Inbound.String())

	return func(f core.RawFrame) {
		q.Enqueue(f)
		if f.Direction == core.Inbound {
			inbound.Inc()
		} else {
			outbound.Inc()
		}
	}
}
