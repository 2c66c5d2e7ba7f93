// Package relay implements an intercepting WebSocket relay. Clients connect to
// the relay, which dials the configured upstream and forwards every frame
// unchanged while reporting a copy to the pipeline.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"firestige.xyz/wsinspect/internal/core"
	"firestige.xyz/wsinspect/internal/metrics"
	"firestige.xyz/wsinspect/internal/pipeline"
	"firestige.xyz/wsinspect/internal/wsframe"
)

const defaultHandshakeTimeout = 10 * time.Second

// forwardedHeaders are copied from the client handshake to the upstream one.
var forwardedHeaders = []string{"Origin", "Cookie", "Authorization", "User-Agent"}

// Config contains relay configuration.
type Config struct {
	Listen           string // client facing address, e.g. ":8081"
	Upstream         string // ws:// or wss:// base URL; the request URI is appended
	IgnoreControl    bool   // do not report Ping/Pong frames
	HandshakeTimeout time.Duration
	Logger           *slog.Logger
}

// Relay accepts WebSocket clients and bridges them to the upstream.
type Relay struct {
	cfg    Config
	ingest pipeline.IngestFunc
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	cancel   context.CancelFunc
	conns    sync.WaitGroup

	active atomic.Int64
}

// New creates a relay that reports frames to ingest.
func New(cfg Config, ingest pipeline.IngestFunc) *Relay {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	cfg.Upstream = strings.TrimRight(cfg.Upstream, "/")
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		cfg:    cfg,
		ingest: ingest,
		logger: logger.With("component", "relay"),
	}
}

// Listen binds the client facing address. Serve must be called afterwards.
func (r *Relay) Listen() error {
	ln, err := net.Listen("tcp", r.cfg.Listen)
	if err != nil {
		return fmt.Errorf("relay listen on %s: %w", r.cfg.Listen, err)
	}
	r.mu.Lock()
	r.listener = ln
	r.mu.Unlock()
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (r *Relay) Addr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener != nil {
		return r.listener.Addr().String()
	}
	return r.cfg.Listen
}

// ListenAndServe binds and serves until ctx is cancelled or Shutdown is called.
func (r *Relay) ListenAndServe(ctx context.Context) error {
	if err := r.Listen(); err != nil {
		return err
	}
	return r.Serve(ctx)
}

// Serve serves clients on the bound listener.
func (r *Relay) Serve(ctx context.Context) error {
	r.mu.Lock()
	ln := r.listener
	if ln == nil {
		r.mu.Unlock()
		return errors.New("relay: Serve called before Listen")
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.server = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: r.cfg.HandshakeTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	srv := r.server
	r.mu.Unlock()

	r.logger.Info("relay listening", "addr", ln.Addr().String(), "upstream", r.cfg.Upstream)

	go func() {
		<-ctx.Done()
		_ = r.Shutdown(context.Background())
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("relay serve: %w", err)
	}
	return nil
}

// Shutdown stops accepting clients, tears down open bridges and waits for
// them to finish or ctx to expire.
func (r *Relay) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	srv, cancel := r.server, r.cancel
	r.mu.Unlock()
	if srv == nil {
		return nil
	}

	err := srv.Shutdown(ctx)
	// hijacked connections are not tracked by http.Server
	cancel()

	done := make(chan struct{})
	go func() {
		r.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// Active returns the number of open bridges.
func (r *Relay) Active() int64 {
	return r.active.Load()
}

// ServeHTTP upgrades a client request and bridges it to the upstream.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	session := id + "." + req.RemoteAddr
	log := r.logger.With("session", session)

	target := r.cfg.Upstream + req.URL.RequestURI()

	dialCtx, cancel := context.WithTimeout(req.Context(), r.cfg.HandshakeTimeout)
	dialer := ws.Dialer{
		Timeout:   r.cfg.HandshakeTimeout,
		Protocols: requestedProtocols(req),
		Header:    ws.HandshakeHeaderHTTP(forwardHeaders(req)),
	}
	upConn, upReader, upHS, err := dialer.Dial(dialCtx, target)
	cancel()
	if err != nil {
		log.Warn("upstream dial failed", "target", target, "error", err)
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}

	upgrader := ws.HTTPUpgrader{
		Timeout: r.cfg.HandshakeTimeout,
		Protocol: func(p string) bool {
			return p == upHS.Protocol
		},
	}
	clientConn, clientRW, _, err := upgrader.Upgrade(req, w)
	if err != nil {
		log.Warn("client upgrade failed", "error", err)
		upConn.Close()
		return
	}

	r.conns.Add(1)
	defer r.conns.Done()
	r.active.Add(1)
	metrics.RelayConnections.Inc()
	defer func() {
		r.active.Add(-1)
		metrics.RelayConnections.Dec()
	}()

	log.Info("websocket session opened", "target", target, "protocol", upHS.Protocol)

	var upSrc io.Reader = upConn
	if upReader != nil {
		upSrc = upReader
	}
	var clientSrc io.Reader = clientConn
	if clientRW != nil {
		clientSrc = clientRW.Reader
	}

	b := &bridge{
		relay:   r,
		session: session,
		logger:  log,
	}
	err = b.run(req.Context(), clientConn, clientSrc, upConn, upSrc)
	if upReader != nil {
		ws.PutReader(upReader)
	}
	log.Info("websocket session closed",
		"outbound_frames", b.outSeq.Load(),
		"inbound_frames", b.inSeq.Load(),
		"reason", closeReason(err),
	)
}

// bridge is one client/upstream pair.
type bridge struct {
	relay   *Relay
	session string
	logger  *slog.Logger

	outSeq atomic.Uint64
	inSeq  atomic.Uint64
}

func (b *bridge) run(ctx context.Context, client net.Conn, clientSrc io.Reader, upstream net.Conn, upSrc io.Reader) error {
	g, ctx := errgroup.WithContext(ctx)

	// either side finishing tears down both
	g.Go(func() error {
		<-ctx.Done()
		client.Close()
		upstream.Close()
		return nil
	})
	g.Go(func() error {
		return b.pump(clientSrc, upstream, core.Outbound, &b.outSeq)
	})
	g.Go(func() error {
		return b.pump(upSrc, client, core.Inbound, &b.inSeq)
	})

	return g.Wait()
}

// pump copies frames from src to dst byte for byte; client frames keep their
// mask. It returns when either connection fails, which cancels the group.
// After a Close frame the pump keeps reading so the peer's reply still passes.
func (b *bridge) pump(src io.Reader, dst io.Writer, dir core.Direction, seq *atomic.Uint64) error {
	for {
		frame, err := ws.ReadFrame(src)
		if err != nil {
			return err
		}

		b.report(frame, dir, seq)

		if err := ws.WriteFrame(dst, frame); err != nil {
			return fmt.Errorf("forward %s frame: %w", dir, err)
		}
	}
}

func (b *bridge) report(frame ws.Frame, dir core.Direction, seq *atomic.Uint64) {
	if b.relay.cfg.IgnoreControl {
		switch frame.Header.OpCode {
		case ws.OpPing, ws.OpPong:
			return
		}
	}
	rf, ok := wsframe.ToRawFrame(frame, dir, seq.Add(1), b.session, time.Now())
	if !ok {
		b.logger.Debug("skipping frame with reserved opcode", "opcode", frame.Header.OpCode)
		return
	}
	b.relay.ingest(rf)
}

func requestedProtocols(req *http.Request) []string {
	var out []string
	for _, v := range req.Header.Values("Sec-WebSocket-Protocol") {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func forwardHeaders(req *http.Request) http.Header {
	h := make(http.Header)
	for _, k := range forwardedHeaders {
		if v := req.Header.Values(k); len(v) > 0 {
			h[k] = v
		}
	}
	return h
}

func closeReason(err error) string {
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return "closed"
	case errors.Is(err, net.ErrClosed), errors.Is(err, context.Canceled):
		return "shutdown"
	default:
		return err.Error()
	}
}
