package pipeline

import (
	"sync"

	"github.com/eapache/queue"

	"firestige.xyz/wsinspect/internal/core"
	"firestige.xyz/wsinspect/internal/metrics"
)

// FrameQueue is the FIFO hand-off between ingest callbacks and the drain
// scheduler. Every operation holds one queue-wide mutex.
type FrameQueue struct {
	mu    sync.Mutex
	items *queue.Queue
}

// NewFrameQueue creates an empty queue.
func NewFrameQueue() *FrameQueue {
	return &FrameQueue{items: queue.New()}
}

// Enqueue appends f. It never blocks beyond the mutex and never drops.
func (q *FrameQueue) Enqueue(f core.RawFrame) {
	q.mu.Lock()
	q.items.Add(f)
	n := q.items.Length()
	q.mu.Unlock()

	metrics.QueueDepth.Set(float64(n))
}

// DrainAll removes and returns every queued frame in insertion order.
// An empty queue yields nil.
func (q *FrameQueue) DrainAll() []core.RawFrame {
	q.mu.Lock()
	if q.items.Length() == 0 {
		q.mu.Unlock()
		return nil
	}
	drained := q.items
	q.items = queue.New()
	q.mu.Unlock()

	metrics.QueueDepth.Set(0)

	// drained is no longer reachable by producers
	out := make([]core.RawFrame, drained.Length())
	for i := range out {
		out[i] = drained.Get(i).(core.RawFrame)
	}
	return out
}

// Len returns the number of queued frames.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}
