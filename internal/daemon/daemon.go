// Package daemon implements the daemon lifecycle manager.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"firestige.xyz/wsinspect/internal/config"
	logpkg "firestige.xyz/wsinspect/internal/log"
	"firestige.xyz/wsinspect/internal/metrics"
	"firestige.xyz/wsinspect/internal/pipeline"
	"firestige.xyz/wsinspect/internal/relay"
)

// Version is reported at startup and by the CLI.
const Version = "0.1.0"

const shutdownTimeout = 10 * time.Second

// Daemon manages the wsinspect process lifecycle.
type Daemon struct {
	// Configuration
	config     *config.GlobalConfig
	configPath string
	pidFile    string

	// Core components
	output        *Output
	pipeline      *pipeline.Pipeline
	relay         *relay.Relay    // nil if relay disabled
	metricsServer *metrics.Server // nil if metrics disabled

	// Lifecycle management
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownChan chan struct{}
	sigChan      chan os.Signal
	relayDone    chan error
	stopped      bool
}

// New creates a new Daemon instance. A non-empty pidFile overrides
// control.pid_file from the configuration.
func New(configPath, pidFile string) (*Daemon, error) {
	globalConfig, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if pidFile == "" {
		pidFile = globalConfig.Control.PIDFile
	}

	d := &Daemon{
		config:       globalConfig,
		configPath:   configPath,
		pidFile:      pidFile,
		shutdownChan: make(chan struct{}, 1),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	return d, nil
}

// Start initializes and starts all daemon components.
func (d *Daemon) Start() error {
	// 1. Initialize logging system
	if err := d.initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	slog.Info("starting wsinspect daemon",
		"version", Version,
		"config", d.configPath,
		"pid_file", d.pidFile,
	)

	// 2. Write PID file
	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// 3. Start metrics server
	if err := d.startMetrics(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 4. Injectors + emitter
	output, err := StartOutput(d.ctx, d.config.Emitter)
	if err != nil {
		return fmt.Errorf("failed to start emitter: %w", err)
	}
	d.output = output

	// 5. Queue, reassembler and drain scheduler
	d.pipeline = pipeline.New(pipeline.Config{
		Interval:       d.config.Pipeline.DrainIntervalDuration(),
		PartialTimeout: d.config.Pipeline.PartialTimeoutDuration(),
		FinalDrain:     d.config.Pipeline.FlushOnShutdown,
		Sink:           d.output.Emitter,
		Logger:         slog.Default().With("component", "pipeline"),
	})
	d.pipeline.Start(d.ctx)

	// 6. Relay host adapter
	if err := d.startRelay(); err != nil {
		return fmt.Errorf("failed to start relay: %w", err)
	}

	slog.Info("daemon started successfully")
	return nil
}

// Stop performs graceful shutdown of all daemon components.
func (d *Daemon) Stop() {
	if d.stopped {
		return
	}
	d.stopped = true
	slog.Info("initiating graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// 1. Stop accepting frames
	if d.relay != nil {
		slog.Info("stopping relay")
		if err := d.relay.Shutdown(ctx); err != nil {
			slog.Error("error stopping relay", "error", err)
		}
	}

	// 2. Final drain, then hand remaining requests to the injectors
	if d.pipeline != nil {
		d.pipeline.Stop()
	}
	if d.output != nil {
		d.output.Close(ctx)
	}

	// 3. Stop metrics server
	if d.metricsServer != nil {
		slog.Info("stopping metrics server")
		if err := d.metricsServer.Stop(ctx); err != nil {
			slog.Error("error stopping metrics server", "error", err)
		}
	}

	// 4. Cancel context to signal all goroutines
	d.cancel()

	// 5. Unregister signal handler to prevent goroutine leak
	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}

	// 6. Remove PID file
	if err := d.removePIDFile(); err != nil {
		slog.Error("error removing PID file", "error", err)
	}

	slog.Info("daemon stopped gracefully")

	// 7. Flush logs
	logpkg.Flush()
}

// Run blocks until shutdown is triggered by SIGTERM/SIGINT, TriggerShutdown
// or a relay failure. SIGHUP reloads the configuration.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	slog.Info("daemon running, waiting for signals")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				slog.Info("received shutdown signal", "signal", sig)
				d.Stop()
				return nil

			case syscall.SIGHUP:
				slog.Info("received reload signal")
				if err := d.Reload(); err != nil {
					slog.Error("failed to reload config", "error", err)
				}
			}

		case <-d.shutdownChan:
			slog.Info("shutdown triggered")
			d.Stop()
			return nil

		case err := <-d.relayDone:
			slog.Error("relay stopped unexpectedly", "error", err)
			d.Stop()
			return err

		case <-d.ctx.Done():
			slog.Info("context cancelled", "error", d.ctx.Err())
			d.Stop()
			return d.ctx.Err()
		}
	}
}

// Reload reloads the global configuration.
// Hot-reloadable: log level/format, drain interval.
// Cold (requires restart): listen addresses, upstream, injector selection.
func (d *Daemon) Reload() error {
	slog.Info("reloading configuration", "path", d.configPath)

	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	oldConfig := d.config
	hotReloaded := []string{}

	// 1. Re-initialize logging with new config (log level + format)
	d.config = newConfig
	if err := d.initLogging(); err != nil {
		slog.Error("failed to reinitialize logging", "error", err)
	} else if newConfig.Log != oldConfig.Log {
		hotReloaded = append(hotReloaded, "log")
	}

	// 2. Drain interval
	if newConfig.Pipeline.DrainInterval != oldConfig.Pipeline.DrainInterval && d.pipeline != nil {
		d.pipeline.UpdateInterval(newConfig.Pipeline.DrainIntervalDuration())
		hotReloaded = append(hotReloaded, "pipeline.drain_interval")
	}

	// 3. Warn about cold-reload items that changed
	requiresRestart := []string{}
	if newConfig.Metrics != oldConfig.Metrics {
		requiresRestart = append(requiresRestart, "metrics")
	}
	if newConfig.Relay != oldConfig.Relay {
		requiresRestart = append(requiresRestart, "relay")
	}
	if newConfig.Emitter.Injector.Type != oldConfig.Emitter.Injector.Type ||
		newConfig.Emitter.Fallback.Type != oldConfig.Emitter.Fallback.Type {
		requiresRestart = append(requiresRestart, "emitter.injector")
	}
	if newConfig.Pipeline.PartialTimeout != oldConfig.Pipeline.PartialTimeout {
		requiresRestart = append(requiresRestart, "pipeline.partial_timeout")
	}

	slog.Info("configuration reloaded",
		"hot_reloaded", hotReloaded,
		"requires_restart", requiresRestart,
	)

	return nil
}

// TriggerShutdown triggers graceful shutdown from an external caller.
func (d *Daemon) TriggerShutdown() {
	select {
	case d.shutdownChan <- struct{}{}:
	default:
	}
}

// Pipeline exposes the running pipeline.
func (d *Daemon) Pipeline() *pipeline.Pipeline {
	return d.pipeline
}

// RelayAddr returns the relay's bound address, or "" if the relay is disabled.
func (d *Daemon) RelayAddr() string {
	if d.relay == nil {
		return ""
	}
	return d.relay.Addr()
}

// initLogging initializes the logging system from config.
func (d *Daemon) initLogging() error {
	if err := logpkg.Init(d.config.Log); err != nil {
		return err
	}

	slog.Debug("logging initialized",
		"level", d.config.Log.Level,
		"format", d.config.Log.Format,
	)

	return nil
}

// startRelay binds the relay listener and serves in the background.
func (d *Daemon) startRelay() error {
	if !d.config.Relay.Enabled {
		slog.Info("relay disabled")
		return nil
	}

	d.relay = relay.New(relay.Config{
		Listen:           d.config.Relay.Listen,
		Upstream:         d.config.Relay.Upstream,
		IgnoreControl:    d.config.Relay.IgnoreControl,
		HandshakeTimeout: d.config.Relay.HandshakeTimeoutDuration(),
		Logger:           slog.Default(),
	}, d.pipeline.Ingest())
	if err := d.relay.Listen(); err != nil {
		return err
	}

	d.relayDone = make(chan error, 1)
	go func() {
		if err := d.relay.Serve(d.ctx); err != nil {
			d.relayDone <- err
		}
	}()
	return nil
}

// startMetrics starts the metrics HTTP server if enabled.
func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		slog.Info("metrics server disabled")
		return nil
	}

	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	if err := d.metricsServer.Start(d.ctx); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	return nil
}

// writePIDFile writes the current process ID to the PID file.
func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	pid := os.Getpid()
	data := []byte(strconv.Itoa(pid) + "\n")

	if err := os.WriteFile(d.pidFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.pidFile, err)
	}

	slog.Debug("PID file written", "path", d.pidFile, "pid", pid)
	return nil
}

// removePIDFile removes the PID file.
func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", d.pidFile, err)
	}

	slog.Debug("PID file removed", "path", d.pidFile)
	return nil
}
