package notifier

import (
	"context"
	"encoding/json"
	"errors"

	kafkax "github.com/NordCoder/Taskboard/internal/repository/kafka"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	consumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "email_notifier_messages_consumed_total",
		Help: "NotificationCreated events consumed",
	})
	sent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "email_notifier_emails_sent_total",
		Help: "Emails sent",
	})
	skipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "email_notifier_skipped_total",
		Help: "Events not mailed, by reason",
	}, []string{"reason"})
	failures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "email_notifier_errors_total",
		Help: "Errors",
	})
)

type Subscriber interface {
	Consume(ctx context.Context, h kafkax.Handler) error
}

type Controller struct {
	Log *zap.Logger
	Sub Subscriber
	UC  *Handler
}

// Handler decodes NotificationCreated events. Undecodable messages are logged
// and committed.
func (c *Controller) Handler() kafkax.Handler {
	h := kafkax.JSONHandler(func(ctx context.Context, _ []byte, ev kafkax.NotificationCreated) error {
		consumed.Inc()
		if ev.Recipient == "" || ev.ID == "" {
			c.Log.Warn("notification event without id or recipient", zap.String("id", ev.ID))
			return nil
		}
		err := c.UC.HandleNotification(ctx, Event{
			ID:          ev.ID,
			Recipient:   ev.Recipient,
			Type:        ev.Type,
			Message:     ev.Message,
			RelatedTask: ev.RelatedTask,
			CreatedAt:   ev.CreatedAt,
		})
		if err != nil {
			failures.Inc()
		}
		return err
	})
	return func(ctx context.Context, key, value []byte) error {
		err := h(ctx, key, value)
		var syn *json.SyntaxError
		var typ *json.UnmarshalTypeError
		if errors.As(err, &syn) || errors.As(err, &typ) {
			skipped.WithLabelValues("malformed").Inc()
			c.Log.Warn("malformed notification event", zap.Error(err))
			return nil
		}
		return err
	}
}

func (c *Controller) Run(ctx context.Context) error {
	err := c.Sub.Consume(ctx, c.Handler())
	if err != nil && !errors.Is(err, context.Canceled) {
		c.Log.Warn("kafka consume", zap.Error(err))
		return err
	}
	return nil
}
