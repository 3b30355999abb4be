package kafka

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/NordCoder/Taskboard/internal/obs/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

type Handler func(ctx context.Context, key, value []byte) error

const defaultMaxRedeliveries = 3

var consumedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "taskboard_kafka_consumed_total",
	Help: "Kafka messages handled by consumers, by outcome.",
}, []string{"topic", "outcome"})

type ConsumerConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	GroupID       string   `mapstructure:"group_id"`
	Topic         string   `mapstructure:"topic"`
	Partitions    int      `mapstructure:"partitions"`
	FromBeginning bool     `mapstructure:"from_beginning"`
	// MaxRedeliveries bounds how often a failing message is handed to the
	// handler again before it is committed and dropped.
	MaxRedeliveries int         `mapstructure:"max_redeliveries"`
	Logger          *zap.Logger `mapstructure:"-"`
}

type Consumer struct {
	reader  *kafka.Reader
	log     *zap.Logger
	topic   string
	group   string
	retries int
	backoff retry.ExpoJitter
}

func NewConsumer(cfg *ConsumerConfig) *Consumer {
	start := kafka.LastOffset
	if cfg.FromBeginning {
		start = kafka.FirstOffset
	}
	retries := cfg.MaxRedeliveries
	if retries <= 0 {
		retries = defaultMaxRedeliveries
	}

	c := &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:               cfg.Brokers,
			GroupID:               cfg.GroupID,
			Topic:                 cfg.Topic,
			StartOffset:           start,
			WatchPartitionChanges: true,
			MinBytes:              1e3,
			MaxBytes:              10e6,
			SessionTimeout:        10 * time.Second,
			RebalanceTimeout:      15 * time.Second,
			HeartbeatInterval:     3 * time.Second,
		}),
		topic:   cfg.Topic,
		group:   cfg.GroupID,
		retries: retries,
		backoff: retry.ExpoJitter{Base: 200 * time.Millisecond, Max: 5 * time.Second, Jitter: 0.1},
	}
	return c.WithLogger(cfg.Logger)
}

// WithLogger returns a copy logging through l. A nil l falls back to the
// global logger.
func (c *Consumer) WithLogger(l *zap.Logger) *Consumer {
	if l == nil {
		l = zap.L()
	}
	cp := *c
	cp.log = l.With(
		zap.String("component", "kafka.consumer"),
		zap.String("topic", c.topic),
		zap.String("group", c.group),
	)
	return &cp
}

// Consume fetches messages until ctx is done. A message is committed once
// the handler accepts it or after it failed MaxRedeliveries+1 times.
func (c *Consumer) Consume(ctx context.Context, h Handler) error {
	c.log.Info("consumer started")
	defer c.log.Info("consumer stopped")

	fetchFailures := 0
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait := c.backoff.Next(fetchFailures)
			fetchFailures++
			if errors.Is(err, io.EOF) {
				c.log.Debug("fetch EOF, retrying", zap.Duration("backoff", wait))
			} else {
				c.log.Warn("fetch failed, retrying", zap.Error(err), zap.Duration("backoff", wait))
			}
			if err := sleepCtx(ctx, wait); err != nil {
				return err
			}
			continue
		}
		fetchFailures = 0

		if err := c.handle(ctx, msg, h); err != nil {
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("commit failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// handle only returns an error when ctx ends while waiting to redeliver.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message, h Handler) error {
	msgCtx := otel.GetTextMapPropagator().Extract(ctx, carrierFor(&msg.Headers))
	for attempt := 0; ; attempt++ {
		err := h(msgCtx, msg.Key, msg.Value)
		if err == nil {
			consumedMessages.WithLabelValues(c.topic, "ok").Inc()
			return nil
		}
		log := c.log.With(
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		if attempt >= c.retries {
			consumedMessages.WithLabelValues(c.topic, "dropped").Inc()
			log.Error("handler failed, dropping message")
			return nil
		}
		consumedMessages.WithLabelValues(c.topic, "retried").Inc()
		log.Warn("handler failed, redelivering")
		if err := sleepCtx(ctx, c.backoff.Next(attempt)); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Consumer) Close() error { return c.reader.Close() }
