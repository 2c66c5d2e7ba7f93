// Package pipeline implements the frame ingest queue and the periodic drain
// scheduler that feeds the reassembler.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"firestige.xyz/wsinspect/internal/core"
	"firestige.xyz/wsinspect/internal/metrics"
)

// DefaultDrainInterval is the period between drain cycles.
const DefaultDrainInterval = 2 * time.Second

// Folder consumes drained frames. The reassembler implements it.
type Folder interface {
	Fold(f core.RawFrame) error
	Pending() int
	Expire(now time.Time, maxIdle time.Duration) int
	Reset() int
}

// SchedulerConfig contains drain scheduler configuration.
type SchedulerConfig struct {
	Interval       time.Duration // Drain period, default 2s
	Queue          *FrameQueue
	Folder         Folder
	PartialTimeout time.Duration // Idle limit for partial messages, 0 disables expiry
	FinalDrain     bool          // Run one last cycle on Stop
	Logger         *slog.Logger
}

// CycleResult describes one drain cycle.
type CycleResult struct {
	Outcome string // metrics.CycleDrained, CycleEmpty or CycleSkipped
	Frames  int
	Errors  int
	Expired int
}

// Scheduler drains the queue on a fixed interval and folds each frame in order.
type Scheduler struct {
	cfg     SchedulerConfig
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time

	draining   atomic.Bool
	intervalCh chan time.Duration

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewScheduler creates a scheduler. Start must be called to begin ticking.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultDrainInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:        cfg,
		logger:     logger,
		metrics:    &Metrics{},
		now:        time.Now,
		intervalCh: make(chan time.Duration, 1),
	}
}

// Start launches the ticker goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("drain scheduler started", "interval", s.cfg.Interval)
}

// Stop cancels the ticker, optionally runs a final drain, then discards
// whatever partial messages remain. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()

		if s.cfg.FinalDrain {
			res := s.RunOnce()
			s.logger.Debug("final drain cycle", "frames", res.Frames, "errors", res.Errors)
		}

		// wait out any cycle started through Pipeline.Drain
		for !s.draining.CompareAndSwap(false, true) {
			runtime.Gosched()
		}
		dropped := s.cfg.Folder.Reset()
		s.draining.Store(false)

		if dropped > 0 {
			metrics.AbandonedMessagesTotal.Add(float64(dropped))
			s.logger.Warn("dropping incomplete messages on shutdown", "count", dropped)
		}
		metrics.PendingMessages.Set(0)

		s.logger.Info("drain scheduler stopped",
			"cycles", s.metrics.Cycles.Load(),
			"frames", s.metrics.Frames.Load(),
			"frame_errors", s.metrics.FrameErrors.Load(),
		)
	})
}

// UpdateInterval changes the drain period of a running scheduler.
func (s *Scheduler) UpdateInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	// keep only the latest request
	select {
	case <-s.intervalCh:
	default:
	}
	s.intervalCh <- d
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-s.intervalCh:
			ticker.Reset(d)
			s.logger.Info("drain interval updated", "interval", d)
		case <-ticker.C:
			s.RunOnce()
		}
	}
}

// RunOnce performs one drain cycle. A call that overlaps a cycle already in
// progress returns immediately with CycleSkipped.
func (s *Scheduler) RunOnce() CycleResult {
	if !s.draining.CompareAndSwap(false, true) {
		s.metrics.Skipped.Add(1)
		metrics.DrainCyclesTotal.WithLabelValues(metrics.CycleSkipped).Inc()
		return CycleResult{Outcome: metrics.CycleSkipped}
	}
	defer s.draining.Store(false)

	s.metrics.Cycles.Add(1)
	res := CycleResult{Outcome: metrics.CycleEmpty}

	frames := s.cfg.Queue.DrainAll()
	if len(frames) > 0 {
		start := time.Now()
		res.Outcome = metrics.CycleDrained
		res.Frames = len(frames)

		for i := range frames {
			if err := s.foldOne(frames[i]); err != nil {
				res.Errors++
				s.logger.Warn("frame reassembly error",
					"message_id", frames[i].MessageID(),
					"session", frames[i].Session,
					"error", err,
				)
			}
		}

		s.metrics.Frames.Add(uint64(res.Frames))
		s.metrics.FrameErrors.Add(uint64(res.Errors))
		metrics.DrainBatchSize.Observe(float64(res.Frames))
		metrics.DrainLatencySeconds.Observe(time.Since(start).Seconds())

		// expiry only runs on cycles that drained frames; an empty cycle
		// leaves partial messages untouched
		if s.cfg.PartialTimeout > 0 {
			res.Expired = s.cfg.Folder.Expire(s.now(), s.cfg.PartialTimeout)
			if res.Expired > 0 {
				s.metrics.Expired.Add(uint64(res.Expired))
				metrics.AbandonedMessagesTotal.Add(float64(res.Expired))
			}
		}
	} else {
		s.metrics.Empty.Add(1)
	}

	metrics.DrainCyclesTotal.WithLabelValues(res.Outcome).Inc()
	metrics.PendingMessages.Set(float64(s.cfg.Folder.Pending()))
	return res
}

// foldOne folds a single frame, converting a panic into an error so the rest
// of the batch is still processed.
func (s *Scheduler) foldOne(f core.RawFrame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic folding frame: %v", r)
			metrics.FrameErrorsTotal.WithLabelValues("panic").Inc()
		}
	}()

	err = s.cfg.Folder.Fold(f)
	if err != nil {
		metrics.FrameErrorsTotal.WithLabelValues(errorKind(err)).Inc()
	}
	return err
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, core.ErrMalformedHexPayload):
		return "malformed_hex"
	case errors.Is(err, core.ErrOrphanContinuation):
		return "orphan_continuation"
	default:
		return "other"
	}
}

// Stats returns scheduler statistics.
func (s *Scheduler) Stats() Stats {
	return s.metrics.Snapshot()
}
