// Package kafka implements a Kafka injector.
// Publishes synthetic requests to a topic for hosts that consume captures from Kafka.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"firestige.xyz/wsinspect/pkg/plugin"
)

const (
	defaultBatchSize    = 100
	defaultBatchTimeout = 100 * time.Millisecond
	defaultCompression  = "snappy"
	defaultMaxAttempts  = 3
)

// Injector sends synthetic requests to Kafka.
type Injector struct {
	name   string
	writer *kafka.Writer
	config Config

	injectedCount atomic.Uint64
	errorCount    atomic.Uint64
}

// Config represents Kafka injector configuration.
type Config struct {
	Brokers      []string      `mapstructure:"brokers"`       // required
	Topic        string        `mapstructure:"topic"`         // required
	BatchSize    int           `mapstructure:"batch_size"`    // optional, default 100
	BatchTimeout time.Duration `mapstructure:"batch_timeout"` // optional, default 100ms
	Compression  string        `mapstructure:"compression"`   // optional: none|gzip|snappy|lz4|zstd, default snappy
	MaxAttempts  int           `mapstructure:"max_attempts"`  // optional, default 3
}

// New creates a new Kafka injector.
func New() plugin.Injector {
	return &Injector{
		name: "kafka",
	}
}

// Name returns the plugin name.
func (i *Injector) Name() string {
	return i.name
}

// Init initializes the injector with configuration.
func (i *Injector) Init(config map[string]any) error {
	if config == nil {
		return fmt.Errorf("kafka injector requires configuration")
	}

	cfg := Config{
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
		Compression:  defaultCompression,
		MaxAttempts:  defaultMaxAttempts,
	}
	if err := plugin.DecodeOptions(config, &cfg); err != nil {
		return err
	}
	if len(cfg.Brokers) == 0 {
		return fmt.Errorf("brokers is required")
	}
	if cfg.Topic == "" {
		return fmt.Errorf("topic is required")
	}

	writerConfig := kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{}, // messages of one session stay in one partition
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		MaxAttempts:  cfg.MaxAttempts,
		Async:        false,
	}

	switch cfg.Compression {
	case "none", "":
		writerConfig.CompressionCodec = nil
	case "gzip":
		writerConfig.CompressionCodec = compress.Gzip.Codec()
	case "snappy":
		writerConfig.CompressionCodec = compress.Snappy.Codec()
	case "lz4":
		writerConfig.CompressionCodec = compress.Lz4.Codec()
	case "zstd":
		writerConfig.CompressionCodec = compress.Zstd.Codec()
	default:
		return fmt.Errorf("invalid compression type: %s", cfg.Compression)
	}

	i.config = cfg
	i.writer = kafka.NewWriter(writerConfig)
	return nil
}

// Start starts the injector.
func (i *Injector) Start(ctx context.Context) error {
	slog.Info("kafka injector started",
		"brokers", i.config.Brokers,
		"topic", i.config.Topic,
		"batch_size", i.config.BatchSize,
		"batch_timeout", i.config.BatchTimeout,
		"compression", i.config.Compression,
	)
	return nil
}

// Stop flushes pending messages and closes the writer.
func (i *Injector) Stop(ctx context.Context) error {
	if i.writer != nil {
		if err := i.writer.Close(); err != nil {
			slog.Error("error closing kafka writer", "error", err)
			return err
		}
	}

	slog.Info("kafka injector stopped",
		"total_injected", i.injectedCount.Load(),
		"total_errors", i.errorCount.Load(),
	)
	return nil
}

// Inject publishes req to Kafka.
func (i *Injector) Inject(ctx context.Context, req *plugin.SyntheticRequest) error {
	if req == nil {
		return fmt.Errorf("nil request")
	}

	if err := i.writer.WriteMessages(ctx, buildMessage(req, time.Now())); err != nil {
		i.errorCount.Add(1)
		return fmt.Errorf("kafka write failed: %w", err)
	}

	i.injectedCount.Add(1)
	return nil
}

// buildMessage keys the record by session so per-session order survives
// partitioning. The value is the raw request; labels become headers.
func buildMessage(req *plugin.SyntheticRequest, now time.Time) kafka.Message {
	msg := kafka.Message{
		Key:   []byte(req.SessionKey),
		Value: req.Raw,
		Time:  now,
	}
	if len(req.Labels) > 0 {
		msg.Headers = make([]kafka.Header, 0, len(req.Labels))
		for k, v := range req.Labels {
			msg.Headers = append(msg.Headers, kafka.Header{
				Key:   k,
				Value: []byte(v),
			})
		}
	}
	return msg
}
