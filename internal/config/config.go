// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/wsinspect/internal/core"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `wsinspect:` root key in YAML.
type GlobalConfig struct {
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Control  ControlConfig  `mapstructure:"control" yaml:"control"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
	Emitter  EmitterConfig  `mapstructure:"emitter" yaml:"emitter"`
	Relay    RelayConfig    `mapstructure:"relay" yaml:"relay"`
}

// ─── Control Plane ───

// ControlConfig contains local process control settings.
type ControlConfig struct {
	PIDFile string `mapstructure:"pid_file" yaml:"pid_file"`
}

// ─── Pipeline ───

// PipelineConfig controls the drain scheduler.
type PipelineConfig struct {
	DrainInterval   string `mapstructure:"drain_interval" yaml:"drain_interval"`   // e.g. "2s", hot-reloadable
	PartialTimeout  string `mapstructure:"partial_timeout" yaml:"partial_timeout"` // "0" disables expiry
	FlushOnShutdown bool   `mapstructure:"flush_on_shutdown" yaml:"flush_on_shutdown"`

	drainInterval  time.Duration
	partialTimeout time.Duration
}

// DrainIntervalDuration returns the validated drain interval.
func (p PipelineConfig) DrainIntervalDuration() time.Duration { return p.drainInterval }

// PartialTimeoutDuration returns the validated partial message timeout.
func (p PipelineConfig) PartialTimeoutDuration() time.Duration { return p.partialTimeout }

// ─── Emitter ───

// EmitterConfig controls synthetic request construction and submission.
type EmitterConfig struct {
	Host          string         `mapstructure:"host" yaml:"host"`
	UserAgent     string         `mapstructure:"user_agent" yaml:"user_agent"`
	QueueCapacity int            `mapstructure:"queue_capacity" yaml:"queue_capacity"`
	SubmitTimeout string         `mapstructure:"submit_timeout" yaml:"submit_timeout"`
	Injector      InjectorConfig `mapstructure:"injector" yaml:"injector"`
	Fallback      InjectorConfig `mapstructure:"fallback" yaml:"fallback"` // empty type = no fallback

	submitTimeout time.Duration
}

// SubmitTimeoutDuration returns the validated per-request submit timeout.
func (e EmitterConfig) SubmitTimeoutDuration() time.Duration { return e.submitTimeout }

// InjectorConfig selects an injector plugin and its options.
type InjectorConfig struct {
	Type    string         `mapstructure:"type" yaml:"type"`
	Options map[string]any `mapstructure:"options" yaml:"options,omitempty"`
}

// ─── Relay ───

// RelayConfig configures the intercepting WebSocket relay.
type RelayConfig struct {
	Enabled          bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen           string `mapstructure:"listen" yaml:"listen"`
	Upstream         string `mapstructure:"upstream" yaml:"upstream"` // ws:// or wss:// base URL
	IgnoreControl    bool   `mapstructure:"ignore_control" yaml:"ignore_control"`
	HandshakeTimeout string `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`

	handshakeTimeout time.Duration
}

// HandshakeTimeoutDuration returns the validated handshake timeout.
func (r RelayConfig) HandshakeTimeoutDuration() time.Duration { return r.handshakeTimeout }

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level" yaml:"level"`   // debug / info / warn / error
	Format  string           `mapstructure:"format" yaml:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs" yaml:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Path     string         `mapstructure:"path" yaml:"path"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `wsinspect: ...`.
type configRoot struct {
	WSInspect GlobalConfig `mapstructure:"wsinspect"`
}

// Load loads configuration from file. An empty path yields defaults plus
// environment overrides.
// The YAML file uses `wsinspect:` as root key; env vars use the WSINSPECT_
// prefix (e.g., WSINSPECT_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// key "wsinspect.log.level" → env "WSINSPECT_LOG_LEVEL"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.WSInspect

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use "wsinspect." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Control defaults
	v.SetDefault("wsinspect.control.pid_file", "/var/run/wsinspect.pid")

	// Log defaults
	v.SetDefault("wsinspect.log.level", "info")
	v.SetDefault("wsinspect.log.format", "json")
	v.SetDefault("wsinspect.log.outputs.file.enabled", false)
	v.SetDefault("wsinspect.log.outputs.file.path", "/var/log/wsinspect/wsinspect.log")
	v.SetDefault("wsinspect.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("wsinspect.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("wsinspect.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("wsinspect.log.outputs.file.rotation.compress", true)

	// Metrics defaults
	v.SetDefault("wsinspect.metrics.enabled", true)
	v.SetDefault("wsinspect.metrics.listen", ":9091")
	v.SetDefault("wsinspect.metrics.path", "/metrics")

	// Pipeline defaults
	v.SetDefault("wsinspect.pipeline.drain_interval", "2s")
	v.SetDefault("wsinspect.pipeline.partial_timeout", "60s")
	v.SetDefault("wsinspect.pipeline.flush_on_shutdown", true)

	// Emitter defaults
	v.SetDefault("wsinspect.emitter.host", "fakewebsocket")
	v.SetDefault("wsinspect.emitter.user_agent", "wsinspect")
	v.SetDefault("wsinspect.emitter.queue_capacity", 1024)
	v.SetDefault("wsinspect.emitter.submit_timeout", "3s")
	v.SetDefault("wsinspect.emitter.injector.type", "console")
	v.SetDefault("wsinspect.emitter.fallback.type", "")

	// Relay defaults
	v.SetDefault("wsinspect.relay.enabled", false)
	v.SetDefault("wsinspect.relay.listen", ":8081")
	v.SetDefault("wsinspect.relay.upstream", "")
	v.SetDefault("wsinspect.relay.ignore_control", false)
	v.SetDefault("wsinspect.relay.handshake_timeout", "10s")
}

// ValidateAndApplyDefaults validates configuration and resolves durations.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return invalid("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return invalid("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return invalid("log.outputs.file.path is required when file output is enabled")
	}

	// ── Pipeline ──
	var err error
	if cfg.Pipeline.drainInterval, err = parsePositive("pipeline.drain_interval", cfg.Pipeline.DrainInterval); err != nil {
		return err
	}
	if cfg.Pipeline.partialTimeout, err = parseDuration("pipeline.partial_timeout", cfg.Pipeline.PartialTimeout); err != nil {
		return err
	}

	// ── Emitter ──
	if cfg.Emitter.Host == "" {
		return invalid("emitter.host must not be empty")
	}
	if strings.ContainsAny(cfg.Emitter.Host, "/ \r\n") {
		return invalid("emitter.host %q must be a bare host name", cfg.Emitter.Host)
	}
	if strings.ContainsAny(cfg.Emitter.UserAgent, "\r\n") {
		return invalid("emitter.user_agent must be a single line")
	}
	if cfg.Emitter.QueueCapacity <= 0 {
		return invalid("emitter.queue_capacity must be positive, got %d", cfg.Emitter.QueueCapacity)
	}
	if cfg.Emitter.submitTimeout, err = parsePositive("emitter.submit_timeout", cfg.Emitter.SubmitTimeout); err != nil {
		return err
	}
	if cfg.Emitter.Injector.Type == "" {
		return invalid("emitter.injector.type is required")
	}

	// ── Relay ──
	if cfg.Relay.handshakeTimeout, err = parsePositive("relay.handshake_timeout", cfg.Relay.HandshakeTimeout); err != nil {
		return err
	}
	if cfg.Relay.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Relay.Listen); err != nil {
			return invalid("relay.listen %q: %v", cfg.Relay.Listen, err)
		}
		u, err := url.Parse(cfg.Relay.Upstream)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return invalid("relay.upstream %q must be a ws:// or wss:// URL", cfg.Relay.Upstream)
		}
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return invalid("metrics.listen is required when metrics.enabled=true")
	}

	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", core.ErrConfigInvalid, fmt.Sprintf(format, args...))
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, invalid("%s: %v", key, err)
	}
	if d < 0 {
		return 0, invalid("%s must not be negative", key)
	}
	return d, nil
}

func parsePositive(key, value string) (time.Duration, error) {
	d, err := parseDuration(key, value)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return 0, invalid("%s must be positive", key)
	}
	return d, nil
}
