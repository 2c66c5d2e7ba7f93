package pipeline

import (
	"context"
	"log/slog"
	"time"

	"firestige.xyz/wsinspect/internal/reassembly"
)

// Pipeline wires the ingest queue, the reassembler and the drain scheduler.
type Pipeline struct {
	queue       *FrameQueue
	reassembler *reassembly.Reassembler
	scheduler   *Scheduler
	ingest      IngestFunc
}

// Config contains pipeline configuration.
type Config struct {
	Interval       time.Duration
	PartialTimeout time.Duration
	FinalDrain     bool
	Sink           reassembly.Sink
	Logger         *slog.Logger
}

// New creates a pipeline from cfg.
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	q := NewFrameQueue()
	r := reassembly.New(cfg.Sink, reassembly.WithLogger(logger))
	return &Pipeline{
		queue:       q,
		reassembler: r,
		scheduler: NewScheduler(SchedulerConfig{
			Interval:       cfg.Interval,
			Queue:          q,
			Folder:         r,
			PartialTimeout: cfg.PartialTimeout,
			FinalDrain:     cfg.FinalDrain,
			Logger:         logger,
		}),
		ingest: NewIngestCallback(q),
	}
}

// Start starts the drain scheduler.
func (p *Pipeline) Start(ctx context.Context) {
	p.scheduler.Start(ctx)
}

// Stop stops the drain scheduler.
func (p *Pipeline) Stop() {
	p.scheduler.Stop()
}

// Ingest returns the callback host adapters deliver frames to.
func (p *Pipeline) Ingest() IngestFunc {
	return p.ingest
}

// Drain runs one drain cycle immediately.
func (p *Pipeline) Drain() CycleResult {
	return p.scheduler.RunOnce()
}

// UpdateInterval changes the drain period.
func (p *Pipeline) UpdateInterval(d time.Duration) {
	p.scheduler.UpdateInterval(d)
}

// QueueLen returns the number of frames waiting to be drained.
func (p *Pipeline) QueueLen() int {
	return p.queue.Len()
}

// Stats returns drain statistics.
func (p *Pipeline) Stats() Stats {
	return p.scheduler.Stats()
}

// Builder provides a fluent interface for building pipelines.
// This is an alternative to using Config directly.
type Builder struct {
	config Config
}

// NewBuilder creates a new pipeline builder.
func NewBuilder() *Builder {
	return &Builder{
		config: Config{
			Interval:   DefaultDrainInterval,
			FinalDrain: true,
		},
	}
}

// WithInterval sets the drain interval.
func (b *Builder) WithInterval(d time.Duration) *Builder {
	b.config.Interval = d
	return b
}

// WithPartialTimeout sets how long a partial message may stay idle.
func (b *Builder) WithPartialTimeout(d time.Duration) *Builder {
	b.config.PartialTimeout = d
	return b
}

// WithFinalDrain controls the extra drain cycle on Stop.
func (b *Builder) WithFinalDrain(enabled bool) *Builder {
	b.config.FinalDrain = enabled
	return b
}

// WithSink sets the receiver of completed messages.
func (b *Builder) WithSink(sink reassembly.Sink) *Builder {
	b.config.Sink = sink
	return b
}

// WithLogger sets the logger.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.config.Logger = l
	return b
}

// Build creates the pipeline.
func (b *Builder) Build() *Pipeline {
	return New(b.config)
}
