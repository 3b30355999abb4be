package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Taskboard/internal/domain/notification"
	"github.com/NordCoder/Taskboard/internal/domain/outbox"
	"github.com/NordCoder/Taskboard/internal/obs"
	"github.com/NordCoder/Taskboard/internal/obs/retry"
	"github.com/NordCoder/Taskboard/internal/trigger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Deliverer stores a notification and pushes it to live channels.
type Deliverer interface {
	Deliver(ctx context.Context, n *notification.Notification) error
}

var (
	outboxHandlerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_handler_latency_seconds",
		Help:    "Latency of outbox handlers.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	outboxHandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_handler_errors_total",
		Help: "Errors in outbox handlers (after retries).",
	}, []string{"kind"})
	outboxHandlerDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_handler_discarded_total",
		Help: "Messages dropped because they can never be handled.",
	}, []string{"kind"})
)

var errPermanent = errors.New("permanent outbox failure")

func instrument(kind string, h outbox.KindHandler, pol retry.Policy, log *zap.Logger) outbox.KindHandler {
	tr := otel.Tracer("outbox.handler")
	if pol.Name == "" {
		pol.Name = "outbox_" + kind
	}
	retryable := pol.Retryable
	pol.Retryable = func(err error) bool {
		if errors.Is(err, errPermanent) {
			return false
		}
		return retryable == nil || retryable(err)
	}
	return func(ctx context.Context, data []byte) error {
		ctx, span := tr.Start(ctx, "outbox.handle")
		defer span.End()

		start := time.Now()
		err := retry.Do(ctx, func() error { return h(ctx, data) }, pol)
		outboxHandlerLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		if errors.Is(err, errPermanent) {
			outboxHandlerDiscarded.WithLabelValues(kind).Inc()
			obs.WithTrace(ctx, log).Error("outbox message discarded", zap.String("kind", kind), zap.Error(err))
			return nil
		}
		if err != nil {
			span.RecordError(err)
			outboxHandlerErrors.WithLabelValues(kind).Inc()
		}
		return err
	}
}

// MakeGlobalOutboxHandler routes outbox kinds to their handlers. Notification
// intents are delivered through d; the dedupe key stored with each intent
// keeps redelivery from creating duplicates.
func MakeGlobalOutboxHandler(d Deliverer, pol retry.Policy, log *zap.Logger) outbox.GlobalHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(kind outbox.Kind) (outbox.KindHandler, error) {
		switch kind {
		case outbox.KindNotificationIntent:
			base := func(ctx context.Context, data []byte) error {
				var in trigger.Intent
				if err := json.Unmarshal(data, &in); err != nil {
					return fmt.Errorf("%w: unmarshal intent: %v", errPermanent, err)
				}
				n := in.Notification()
				err := d.Deliver(ctx, &n)
				if errors.Is(err, notification.ErrInvalid) || errors.Is(err, notification.ErrInvalidType) {
					return fmt.Errorf("%w: %v", errPermanent, err)
				}
				return err
			}
			return instrument(kind.String(), base, pol, log), nil
		default:
			return nil, fmt.Errorf("unsupported outbox kind: %d", int(kind))
		}
	}
}
