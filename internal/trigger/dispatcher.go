// Package trigger turns task mutations into notifications: it decides what
// is warranted, writes it to the store and pushes it to live channels.
package trigger

import (
	"context"
	"errors"
	"time"

	"github.com/NordCoder/Taskboard/internal/domain/kafka"
	"github.com/NordCoder/Taskboard/internal/domain/notification"
	"github.com/NordCoder/Taskboard/internal/domain/task"
	"github.com/NordCoder/Taskboard/internal/obs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type Store interface {
	Create(ctx context.Context, n *notification.Notification) error
}

type Publisher interface {
	Publish(recipient string, n notification.Notification) int
}

var (
	mDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trigger_notifications_total", Help: "Notifications produced by task mutations.",
	}, []string{"type"})
	mStoreFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trigger_store_failures_total", Help: "Notifications lost because the store failed.",
	})
	mMirrorFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trigger_mirror_failures_total", Help: "Notifications not mirrored to the event stream.",
	})
)

type BreakerConfig struct {
	Name                string        `mapstructure:"name"`
	MaxRequests         uint32        `mapstructure:"max_requests"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
}

func NewBreaker(cfg BreakerConfig, log *zap.Logger) *gobreaker.CircuitBreaker {
	if cfg.Name == "" {
		cfg.Name = "notifications-cb"
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 3
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			// bad input is not a sign of an unhealthy store
			return err == nil || errors.Is(err, notification.ErrInvalid) || errors.Is(err, notification.ErrInvalidType)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
}

type Dispatcher struct {
	log    *zap.Logger
	store  Store
	pub    Publisher
	mirror kafka.NotificationEvents
	cb     *gobreaker.CircuitBreaker
}

// NewDispatcher wires the store, the live broker and an optional event mirror
// (nil disables mirroring). A nil breaker disables circuit breaking.
func NewDispatcher(log *zap.Logger, store Store, pub Publisher, mirror kafka.NotificationEvents, cb *gobreaker.CircuitBreaker) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		log:    log.With(zap.String("component", "trigger")),
		store:  store,
		pub:    pub,
		mirror: mirror,
		cb:     cb,
	}
}

// Deliver durably creates n and then pushes it best-effort. Only the store
// write can fail the call.
func (d *Dispatcher) Deliver(ctx context.Context, n *notification.Notification) error {
	create := func() (any, error) { return nil, d.store.Create(ctx, n) }

	var err error
	if d.cb != nil {
		_, err = d.cb.Execute(create)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = errors.Join(notification.ErrStorageUnavailable, err)
		}
	} else {
		_, err = create()
	}
	if err != nil {
		return err
	}

	mDecisions.WithLabelValues(string(n.Type)).Inc()
	d.pub.Publish(n.Recipient, *n)

	if d.mirror != nil {
		if err := d.mirror.PublishNotificationCreated(ctx, *n); err != nil {
			mMirrorFailures.Inc()
			obs.WithTrace(ctx, d.log).Warn("notification mirror failed",
				zap.String("notification", n.ID), zap.Error(err))
		}
	}
	return nil
}

// OnMutation runs the rules for a committed task mutation and delivers the
// result. Failures are logged and never returned: the mutation already
// succeeded.
func (d *Dispatcher) OnMutation(ctx context.Context, m task.Mutation, actor string) error {
	for _, n := range Evaluate(m, actor) {
		if err := d.Deliver(ctx, &n); err != nil {
			mStoreFailures.Inc()
			obs.WithTrace(ctx, d.log).Error("notification lost",
				zap.String("recipient", n.Recipient),
				zap.String("type", string(n.Type)),
				zap.String("task", m.TaskID),
				zap.Error(err),
			)
		}
	}
	return nil
}
