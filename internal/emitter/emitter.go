// Package emitter turns reassembled messages into synthetic HTTP requests and
// hands them to the host through an injector.
package emitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"firestige.xyz/wsinspect/internal/core"
	"firestige.xyz/wsinspect/internal/metrics"
	"firestige.xyz/wsinspect/internal/reassembly"
	"firestige.xyz/wsinspect/pkg/plugin"
)

const (
	defaultQueueCapacity = 1024
	defaultSubmitTimeout = 3 * time.Second
)

// Config contains configuration for creating an Emitter.
type Config struct {
	Primary       plugin.Injector
	Fallback      plugin.Injector // nil if no fallback
	Host          string          // synthetic host, default "fakewebsocket"
	UserAgent     string          // default "wsinspect"
	QueueCapacity int
	SubmitTimeout time.Duration
	Logger        *slog.Logger
}

// Emitter sits between the reassembler and the injector plugins:
//
//	drain goroutine → Emitter.Emit() → dispatchLoop → Injector.Inject()
//	                                               └→ fallback Injector (on primary failure)
//
// Emit never blocks: when the dispatch queue is full the message is dropped
// and counted.
type Emitter struct {
	primary       plugin.Injector
	fallback      plugin.Injector
	host          string
	userAgent     string
	submitTimeout time.Duration
	logger        *slog.Logger

	mu      sync.RWMutex // guards ch against send-after-close
	closed  bool
	started atomic.Bool
	ch     chan *plugin.SyntheticRequest
	doneCh chan struct{}

	emitted   atomic.Uint64
	dropped   atomic.Uint64
	submitted atomic.Uint64
	failed    atomic.Uint64
}

// New creates an emitter. Start must be called before messages are submitted.
func New(cfg Config) (*Emitter, error) {
	if cfg.Primary == nil {
		return nil, errors.New("emitter: primary injector is required")
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = defaultQueueCapacity
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = defaultSubmitTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Emitter{
		primary:       cfg.Primary,
		fallback:      cfg.Fallback,
		host:          cfg.Host,
		userAgent:     cfg.UserAgent,
		submitTimeout: cfg.SubmitTimeout,
		logger:        logger,
		ch:            make(chan *plugin.SyntheticRequest, cfg.QueueCapacity),
		doneCh:        make(chan struct{}),
	}, nil
}

// Start starts the dispatch goroutine. It does not start the injectors.
// Only the first call has an effect, and Start after Close does nothing.
func (e *Emitter) Start(ctx context.Context) {
	if !e.started.CompareAndSwap(false, true) {
		return
	}
	go e.dispatchLoop(ctx)
}

// Emit implements reassembly.Sink.
func (e *Emitter) Emit(msg reassembly.Message) {
	req := &plugin.SyntheticRequest{
		URLPath:    msg.URLPath,
		SessionKey: msg.SessionKey,
		MessageID:  msg.MessageID,
		Labels: core.Labels{
			core.LabelSession:     msg.SessionKey,
			core.LabelMessageID:   msg.MessageID,
			core.LabelMessageType: msg.Type.String(),
			core.LabelURLPath:     msg.URLPath,
			core.LabelParts:       strconv.Itoa(msg.Parts),
		},
		Raw: BuildRequest(e.host, e.userAgent, msg.URLPath, msg.Body),
	}
	if err := e.enqueue(req); err != nil {
		e.logger.Warn("dropping synthetic request",
			"message_id", msg.MessageID,
			"session", msg.SessionKey,
			"error", err,
		)
		return
	}
	metrics.MessagesEmittedTotal.WithLabelValues(msg.Type.String()).Inc()
}

// EmitRaw packages an already rendered body under urlPath.
func (e *Emitter) EmitRaw(urlPath, body string) error {
	return e.enqueue(&plugin.SyntheticRequest{
		URLPath: urlPath,
		Labels:  core.Labels{core.LabelURLPath: urlPath},
		Raw:     BuildRequest(e.host, e.userAgent, urlPath, body),
	})
}

func (e *Emitter) enqueue(req *plugin.SyntheticRequest) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		e.dropped.Add(1)
		metrics.EmitDropsTotal.Inc()
		return fmt.Errorf("%w: emitter closed", core.ErrEmissionFailed)
	}

	select {
	case e.ch <- req:
		e.emitted.Add(1)
		return nil
	default:
		e.dropped.Add(1)
		metrics.EmitDropsTotal.Inc()
		return core.ErrEmitQueueFull
	}
}

// Close stops accepting requests and waits until pending ones are submitted.
func (e *Emitter) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.ch)
	e.mu.Unlock()

	if e.started.CompareAndSwap(false, true) {
		// never started: nothing will submit what is queued
		for range e.ch {
			e.dropped.Add(1)
			metrics.EmitDropsTotal.Inc()
		}
		close(e.doneCh)
	}

	<-e.doneCh
	e.logger.Info("emitter closed",
		"emitted", e.emitted.Load(),
		"submitted", e.submitted.Load(),
		"failed", e.failed.Load(),
		"dropped", e.dropped.Load(),
	)
}

func (e *Emitter) dispatchLoop(ctx context.Context) {
	defer close(e.doneCh)

	// pending requests are still flushed after ctx is cancelled
	base := context.WithoutCancel(ctx)
	for req := range e.ch {
		e.submit(base, req)
	}
}

// submit hands req to the primary injector, then the fallback. Failures are
// logged and counted, never returned.
func (e *Emitter) submit(ctx context.Context, req *plugin.SyntheticRequest) {
	err := e.inject(ctx, e.primary, req)
	if err == nil {
		e.submitted.Add(1)
		return
	}
	metrics.InjectorErrorsTotal.WithLabelValues(e.primary.Name(), "primary").Inc()
	e.logger.Warn("primary injector failed",
		"injector", e.primary.Name(),
		"message_id", req.MessageID,
		"error", err,
	)

	if e.fallback != nil {
		fbErr := e.inject(ctx, e.fallback, req)
		if fbErr == nil {
			e.submitted.Add(1)
			return
		}
		metrics.InjectorErrorsTotal.WithLabelValues(e.fallback.Name(), "fallback").Inc()
		e.logger.Warn("fallback injector also failed",
			"injector", e.fallback.Name(),
			"message_id", req.MessageID,
			"error", fbErr,
		)
	}

	e.failed.Add(1)
	e.logger.Error("synthetic request dropped",
		"message_id", req.MessageID,
		"url_path", req.URLPath,
		"error", fmt.Errorf("%w: %w", core.ErrEmissionFailed, err),
	)
}

func (e *Emitter) inject(ctx context.Context, inj plugin.Injector, req *plugin.SyntheticRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("injector %s panicked: %v", inj.Name(), r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, e.submitTimeout)
	defer cancel()
	return inj.Inject(ctx, req)
}

// Stats returns emitter counters.
func (e *Emitter) Stats() Stats {
	return Stats{
		Emitted:   e.emitted.Load(),
		Dropped:   e.dropped.Load(),
		Submitted: e.submitted.Load(),
		Failed:    e.failed.Load(),
	}
}

// Stats represents emitter statistics.
type Stats struct {
	Emitted   uint64
	Dropped   uint64
	Submitted uint64
	Failed    uint64
}
