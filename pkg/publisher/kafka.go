package publisher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/dcn-collector/pkg/collector"
	"github.com/dcn-collector/pkg/config"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher 同步批量写入：linger/batch bytes/compression 由 kafka.Writer 负责
type KafkaPublisher struct {
	w            messageWriter
	flushTimeout time.Duration
	log          *zap.Logger
	skipped      prometheus.Counter

	mu     sync.Mutex
	closed bool
}

// Option configures optional publisher dependencies.
type Option func(*KafkaPublisher)

// WithSkippedCounter counts records skipped because they could not be encoded.
func WithSkippedCounter(c prometheus.Counter) Option {
	return func(p *KafkaPublisher) { p.skipped = c }
}

// NewKafkaPublisher builds the broker writer from config. No connection is
// opened until the first Send.
func NewKafkaPublisher(cfg config.KafkaConfig, log *zap.Logger, opts ...Option) (*KafkaPublisher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "publisher"))

	compression, err := ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	acks, err := ParseRequiredAcks(cfg.RequiredAcks)
	if err != nil {
		return nil, err
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("publisher: no brokers configured")
	}

	sugar := log.Sugar()
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.Linger,
		BatchBytes:   cfg.BatchBytes,
		Compression:  compression,
		RequiredAcks: acks,
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.FlushTimeout,
		Transport: &kafka.Transport{
			ClientID: cfg.ClientID,
		},
		Logger:      kafka.LoggerFunc(func(msg string, args ...interface{}) { sugar.Debugf(msg, args...) }),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) { sugar.Warnf(msg, args...) }),
	}
	log.Info("kafka publisher configured",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("client_id", cfg.ClientID),
		zap.Duration("linger", cfg.Linger),
		zap.Int64("batch_bytes", cfg.BatchBytes),
		zap.String("compression", cfg.Compression),
		zap.String("required_acks", cfg.RequiredAcks))
	return newKafkaPublisher(w, cfg.FlushTimeout, log, opts...), nil
}

func newKafkaPublisher(w messageWriter, flushTimeout time.Duration, log *zap.Logger, opts ...Option) *KafkaPublisher {
	if flushTimeout <= 0 {
		flushTimeout = 10 * time.Second
	}
	p := &KafkaPublisher{w: w, flushTimeout: flushTimeout, log: log}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Send 编码整批记录并一次写入；broker 拒绝任意记录则整批视为失败（不重试、不缓存）
func (p *KafkaPublisher) Send(ctx context.Context, topic string, metrics []collector.Metric) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	if len(metrics) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	// 单条记录编码失败只跳过该条，不拖累整批
	msgs := make([]kafka.Message, 0, len(metrics))
	var encErrs []error
	for _, m := range metrics {
		msg, err := EncodeRecord(topic, m)
		if err != nil {
			encErrs = append(encErrs, err)
			continue
		}
		msgs = append(msgs, msg)
	}
	if len(encErrs) > 0 {
		if p.skipped != nil {
			p.skipped.Add(float64(len(encErrs)))
		}
		p.log.Warn("records skipped, encode failed",
			zap.String("topic", topic),
			zap.Int("skipped", len(encErrs)),
			zap.Error(errors.Join(encErrs...)))
	}
	if len(msgs) == 0 {
		return &PublishError{Topic: topic, Total: len(metrics), Failed: len(metrics), Err: errors.Join(encErrs...)}
	}

	ctx, cancel := context.WithTimeout(ctx, p.flushTimeout)
	defer cancel()

	start := time.Now()
	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		failed := len(msgs)
		var werrs kafka.WriteErrors
		if errors.As(err, &werrs) {
			failed = werrs.Count()
		}
		return &PublishError{Topic: topic, Total: len(msgs), Failed: failed, Err: err}
	}
	p.log.Debug("batch acknowledged",
		zap.String("topic", topic),
		zap.Int("records", len(msgs)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Close 刷出并关闭 writer；重复调用无副作用
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if err := p.w.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}

// ParseCompression maps the config name to the kafka-go codec.
func ParseCompression(name string) (kafka.Compression, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	default:
		return 0, fmt.Errorf("publisher: unknown compression %q", name)
	}
}

// ParseRequiredAcks maps all/one/none to kafka.RequiredAcks.
func ParseRequiredAcks(name string) (kafka.RequiredAcks, error) {
	switch strings.ToLower(name) {
	case "", "all":
		return kafka.RequireAll, nil
	case "one":
		return kafka.RequireOne, nil
	case "none":
		return kafka.RequireNone, nil
	default:
		return 0, fmt.Errorf("publisher: unknown required_acks %q", name)
	}
}
