// Package kafka implements a reporter that forwards inspect messages to a
// Kafka topic, JSON or protobuf (google.protobuf.Struct) encoded.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"firestige.xyz/busctl/internal/log"
	"firestige.xyz/busctl/internal/metrics"
	"firestige.xyz/busctl/internal/protocol/inspect"
	"firestige.xyz/busctl/internal/reporter"
)

// Name is the registry name of the Kafka reporter.
const Name = "kafka"

const (
	defaultBatchSize    = 100
	defaultBatchTimeout = 100 * time.Millisecond
	defaultCompression  = "snappy"
	defaultMaxAttempts  = 3
	defaultEncoding     = "json"
)

// Config represents Kafka reporter configuration.
type Config struct {
	Brokers      []string      `mapstructure:"brokers"`       // required
	Topic        string        `mapstructure:"topic"`         // required
	Encoding     string        `mapstructure:"encoding"`      // json | proto, default json
	BatchSize    int           `mapstructure:"batch_size"`    // default 100
	BatchTimeout time.Duration `mapstructure:"batch_timeout"` // default 100ms
	Compression  string        `mapstructure:"compression"`   // none|gzip|snappy|lz4, default snappy
	MaxAttempts  int           `mapstructure:"max_attempts"`  // default 3
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaReporter writes one Kafka message per inspect message, keyed by the
// source node so that a node's traffic stays ordered within a partition.
type KafkaReporter struct {
	config Config
	writer messageWriter
	log    log.Logger

	reportedCount atomic.Uint64
	errorCount    atomic.Uint64
}

// New creates an uninitialized Kafka reporter.
func New() reporter.Reporter {
	return &KafkaReporter{log: log.GetLogger().WithField("reporter", Name)}
}

func (r *KafkaReporter) Name() string {
	return Name
}

// ParseConfig decodes and validates the reporter section of the config file.
func ParseConfig(raw map[string]any) (Config, error) {
	if raw == nil {
		return Config{}, fmt.Errorf("kafka reporter requires configuration")
	}
	cfg := Config{
		Encoding:     defaultEncoding,
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
		Compression:  defaultCompression,
		MaxAttempts:  defaultMaxAttempts,
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return Config{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("decode kafka reporter config: %w", err)
	}

	if len(cfg.Brokers) == 0 {
		return Config{}, fmt.Errorf("brokers is required")
	}
	if cfg.Topic == "" {
		return Config{}, fmt.Errorf("topic is required")
	}
	if cfg.Encoding != "json" && cfg.Encoding != "proto" {
		return Config{}, fmt.Errorf("invalid encoding %q, must be json or proto", cfg.Encoding)
	}
	if _, err := codec(cfg.Compression); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func codec(name string) (compress.Codec, error) {
	switch name {
	case "none", "":
		return nil, nil
	case "gzip":
		return compress.Gzip.Codec(), nil
	case "snappy":
		return compress.Snappy.Codec(), nil
	case "lz4":
		return compress.Lz4.Codec(), nil
	default:
		return nil, fmt.Errorf("invalid compression type: %s", name)
	}
}

// Init parses the configuration and creates the Kafka writer.
func (r *KafkaReporter) Init(config map[string]any) error {
	cfg, err := ParseConfig(config)
	if err != nil {
		return err
	}
	r.config = cfg

	c, _ := codec(cfg.Compression)
	r.writer = kafka.NewWriter(kafka.WriterConfig{
		Brokers:          cfg.Brokers,
		Topic:            cfg.Topic,
		Balancer:         &kafka.Hash{},
		BatchSize:        cfg.BatchSize,
		BatchTimeout:     cfg.BatchTimeout,
		MaxAttempts:      cfg.MaxAttempts,
		CompressionCodec: c,
		Async:            false,
	})
	return nil
}

func (r *KafkaReporter) Start(ctx context.Context) error {
	r.log.WithFields(map[string]interface{}{
		"brokers":     r.config.Brokers,
		"topic":       r.config.Topic,
		"encoding":    r.config.Encoding,
		"compression": r.config.Compression,
	}).Info("kafka reporter started")
	return nil
}

func (r *KafkaReporter) Stop(ctx context.Context) error {
	if r.writer != nil {
		if err := r.writer.Close(); err != nil {
			r.log.WithError(err).Error("error closing kafka writer")
			return err
		}
	}
	r.log.WithFields(map[string]interface{}{
		"total_reported": r.reportedCount.Load(),
		"total_errors":   r.errorCount.Load(),
	}).Info("kafka reporter stopped")
	return nil
}

// Report encodes msg and writes it to the topic.
func (r *KafkaReporter) Report(ctx context.Context, msg inspect.Message) error {
	if r.writer == nil {
		return fmt.Errorf("kafka reporter not initialized")
	}
	value, err := Encode(r.config.Encoding, msg)
	if err != nil {
		r.errorCount.Add(1)
		return fmt.Errorf("serialize message failed: %w", err)
	}

	km := kafka.Message{
		Key:   []byte(fmt.Sprintf("%03X", msg.Source)),
		Value: value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "command", Value: []byte(metrics.CommandLabel(msg.Command))},
			{Key: "encoding", Value: []byte(r.config.Encoding)},
		},
	}
	if err := r.writer.WriteMessages(ctx, km); err != nil {
		r.errorCount.Add(1)
		return fmt.Errorf("kafka write failed: %w", err)
	}
	r.reportedCount.Add(1)
	return nil
}

// Flush is a no-op: the writer is synchronous and flushes per batch.
func (r *KafkaReporter) Flush(ctx context.Context) error {
	return nil
}

// Encode renders msg as JSON or as a serialized google.protobuf.Struct.
func Encode(encoding string, msg inspect.Message) ([]byte, error) {
	switch encoding {
	case "json", "":
		return json.Marshal(msg)
	case "proto":
		s, err := structpb.NewStruct(Fields(msg))
		if err != nil {
			return nil, err
		}
		return proto.Marshal(s)
	default:
		return nil, fmt.Errorf("invalid encoding %q", encoding)
	}
}

// Fields flattens msg into structpb-compatible values. The payload is hex.
func Fields(msg inspect.Message) map[string]any {
	return map[string]any{
		"timestamp":   fmt.Sprint(msg.Timestamp),
		"protocol":    int(msg.Protocol),
		"target":      int(msg.Target),
		"target_mode": int(msg.TargetMode),
		"source":      int(msg.Source),
		"command":     int(msg.Command),
		"size":        int(msg.Size),
		"payload":     msg.Payload.String(),
		"truncated":   msg.Truncated(),
	}
}
