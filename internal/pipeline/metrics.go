package pipeline

import (
	"sync/atomic"
)

// Metrics contains per-scheduler counters.
type Metrics struct {
	Cycles      atomic.Uint64
	Empty       atomic.Uint64
	Skipped     atomic.Uint64
	Frames      atomic.Uint64
	FrameErrors atomic.Uint64
	Expired     atomic.Uint64
}

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() Stats {
	return Stats{
		Cycles:      m.Cycles.Load(),
		Empty:       m.Empty.Load(),
		Skipped:     m.Skipped.Load(),
		Frames:      m.Frames.Load(),
		FrameErrors: m.FrameErrors.Load(),
		Expired:     m.Expired.Load(),
	}
}

// Stats represents drain statistics.
type Stats struct {
	Cycles      uint64
	Empty       uint64
	Skipped     uint64
	Frames      uint64
	FrameErrors uint64
	Expired     uint64
}
