package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const bootstrapTopicWait = 5 * time.Second

// BootstrapConsumer makes a best effort to create the consumed topic before
// joining the group. Creation failures are logged by EnsureTopic and the
// reader keeps retrying on its own.
func BootstrapConsumer(ctx context.Context, cfg *ConsumerConfig, logger *zap.Logger) *Consumer {
	if cfg.Topic == "" {
		cfg.Topic = DefaultNotificationsTopic
	}
	_ = EnsureTopic(ctx, cfg.Brokers, TopicSpec{
		Name:              cfg.Topic,
		NumPartitions:     cfg.Partitions,
		ReplicationFactor: 1,
		MaxWait:           bootstrapTopicWait,
	}, logger)
	if cfg.Logger == nil {
		cfg.Logger = logger
	}
	return NewConsumer(cfg)
}

func BootstrapProducer(ctx context.Context, cfg ProducerConfig, logger *zap.Logger) *Producer {
	if cfg.Topic == "" {
		cfg.Topic = DefaultNotificationsTopic
	}
	_ = EnsureTopic(ctx, cfg.Brokers, TopicSpec{Name: cfg.Topic, MaxWait: bootstrapTopicWait}, logger)
	return NewProducer(cfg).WithLogger(logger)
}
