// Package console implements a console injector.
// Writes synthetic requests to stdout for debugging.
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"firestige.xyz/wsinspect/pkg/plugin"
)

// Injector prints synthetic requests instead of handing them to a host.
type Injector struct {
	name   string
	format string // "raw", "json" or "summary"

	mu  sync.Mutex
	out io.Writer

	injectedCount atomic.Uint64
}

// Config represents console injector configuration.
type Config struct {
	Format string `mapstructure:"format"` // "raw", "json" or "summary", default "raw"
}

// New creates a new console injector writing to stdout.
func New() plugin.Injector {
	return &Injector{
		name:   "console",
		format: "raw",
		out:    os.Stdout,
	}
}

// NewWithWriter creates a console injector writing to w.
func NewWithWriter(w io.Writer) *Injector {
	inj := New().(*Injector)
	inj.out = w
	return inj
}

// Name returns the plugin name.
func (i *Injector) Name() string {
	return i.name
}

// Init initializes the injector with configuration.
func (i *Injector) Init(config map[string]any) error {
	if config == nil {
		return nil
	}

	var cfg Config
	if err := plugin.DecodeOptions(config, &cfg); err != nil {
		return err
	}
	switch cfg.Format {
	case "":
	case "raw", "json", "summary":
		i.format = cfg.Format
	default:
		return fmt.Errorf("invalid format %q, must be raw, json or summary", cfg.Format)
	}
	return nil
}

// Start starts the injector.
func (i *Injector) Start(ctx context.Context) error {
	slog.Info("console injector started", "format", i.format)
	return nil
}

// Stop stops the injector.
func (i *Injector) Stop(ctx context.Context) error {
	slog.Info("console injector stopped", "total_injected", i.injectedCount.Load())
	return nil
}

// Inject writes req to the console.
func (i *Injector) Inject(ctx context.Context, req *plugin.SyntheticRequest) error {
	if req == nil {
		return fmt.Errorf("nil request")
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	var err error
	switch i.format {
	case "json":
		err = i.writeJSON(req)
	case "summary":
		_, err = fmt.Fprintf(i.out, "%s session=%s id=%s bytes=%d\n",
			req.URLPath, req.SessionKey, req.MessageID, len(req.Raw))
	default:
		_, err = fmt.Fprintf(i.out, "%s\n\n", req.Raw)
	}
	if err != nil {
		return fmt.Errorf("console write failed: %w", err)
	}

	i.injectedCount.Add(1)
	return nil
}

func (i *Injector) writeJSON(req *plugin.SyntheticRequest) error {
	data, err := json.Marshal(map[string]any{
		"url_path":   req.URLPath,
		"session":    req.SessionKey,
		"message_id": req.MessageID,
		"labels":     req.Labels,
		"request":    string(req.Raw),
	})
	if err != nil {
		return fmt.Errorf("json marshal failed: %w", err)
	}
	_, err = fmt.Fprintln(i.out, string(data))
	return err
}
