// Package proxy implements an injector that replays synthetic requests into
// an HTTP debugging proxy's listener, so they appear in its session list.
package proxy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"firestige.xyz/wsinspect/pkg/plugin"
)

const (
	defaultDialTimeout = 2 * time.Second
	maxResponseDrain   = 64 << 10
)

// Config represents proxy injector configuration.
type Config struct {
	Addr         string        `mapstructure:"addr"`          // required, host:port of the proxy listener
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`  // optional, default 2s
	ReadResponse *bool         `mapstructure:"read_response"` // optional, default true
}

// Injector writes each synthetic request on a fresh TCP connection to the proxy.
type Injector struct {
	name   string
	config Config
	dialer net.Dialer

	injectedCount atomic.Uint64
	errorCount    atomic.Uint64
}

// New creates a new proxy injector.
func New() plugin.Injector {
	return &Injector{name: "proxy"}
}

// Name returns the plugin name.
func (i *Injector) Name() string {
	return i.name
}

// Init initializes the injector with configuration.
func (i *Injector) Init(config map[string]any) error {
	if config == nil {
		return fmt.Errorf("proxy injector requires configuration")
	}

	cfg := Config{DialTimeout: defaultDialTimeout}
	if err := plugin.DecodeOptions(config, &cfg); err != nil {
		return err
	}
	if cfg.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		return fmt.Errorf("invalid addr %q: %w", cfg.Addr, err)
	}
	if cfg.ReadResponse == nil {
		t := true
		cfg.ReadResponse = &t
	}

	i.config = cfg
	i.dialer = net.Dialer{Timeout: cfg.DialTimeout}
	return nil
}

// Start starts the injector.
func (i *Injector) Start(ctx context.Context) error {
	slog.Info("proxy injector started",
		"addr", i.config.Addr,
		"dial_timeout", i.config.DialTimeout,
		"read_response", *i.config.ReadResponse,
	)
	return nil
}

// Stop stops the injector.
func (i *Injector) Stop(ctx context.Context) error {
	slog.Info("proxy injector stopped",
		"total_injected", i.injectedCount.Load(),
		"total_errors", i.errorCount.Load(),
	)
	return nil
}

// Inject sends req.Raw to the proxy and, when configured, waits for its
// response as confirmation of receipt.
func (i *Injector) Inject(ctx context.Context, req *plugin.SyntheticRequest) error {
	if req == nil {
		return fmt.Errorf("nil request")
	}
	if err := i.send(ctx, req); err != nil {
		i.errorCount.Add(1)
		return err
	}
	i.injectedCount.Add(1)
	return nil
}

func (i *Injector) send(ctx context.Context, req *plugin.SyntheticRequest) error {
	conn, err := i.dialer.DialContext(ctx, "tcp", i.config.Addr)
	if err != nil {
		return fmt.Errorf("dial proxy %s: %w", i.config.Addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write(req.Raw); err != nil {
		return fmt.Errorf("write request %s: %w", req.URLPath, err)
	}
	if !*i.config.ReadResponse {
		return nil
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		return fmt.Errorf("read proxy response: %w", err)
	}
	_, _ = io.CopyN(io.Discard, resp.Body, maxResponseDrain)
	resp.Body.Close()

	// Any response means the proxy has recorded the request. The synthetic
	// host never resolves, so 502/504 are the normal answer. Only an auth
	// challenge from the proxy itself means it was refused.
	if resp.StatusCode == http.StatusProxyAuthRequired {
		return fmt.Errorf("proxy rejected %s: %s", req.URLPath, resp.Status)
	}
	slog.Debug("synthetic request recorded by proxy", "url_path", req.URLPath, "status", resp.StatusCode)
	return nil
}
