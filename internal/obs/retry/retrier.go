// Package retry runs an operation under a bounded retry policy and records
// attempts, exhaustion and latency per policy name.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Backoff interface {
	Next(attempt int) time.Duration
}

// ExpoJitter doubles Base per attempt, caps at Max and spreads the result by
// +/- Jitter (a fraction, 0.2 means 20%).
type ExpoJitter struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

func (b ExpoJitter) Next(attempt int) time.Duration {
	attempt = max(attempt, 0)
	d := float64(b.Base) * math.Pow(2, float64(attempt))
	if b.Max > 0 {
		d = math.Min(d, float64(b.Max))
	}
	if b.Jitter > 0 {
		d *= 1 + (rand.Float64()*2-1)*b.Jitter
	}
	return time.Duration(d)
}

var defaultBackoff = ExpoJitter{Base: 100 * time.Millisecond, Max: 2 * time.Second, Jitter: 0.2}

type Policy struct {
	Name     string
	Attempts int
	// Backoff defaults to 100ms doubling up to 2s.
	Backoff Backoff
	// Retryable defaults to retrying every non-nil error.
	Retryable func(error) bool
	OnAttempt func(attempt int, err error)
	OnExhaust func(lastErr error)
}

var (
	retryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskboard_retry_attempts_total",
		Help: "Retried operation attempts, the final one included.",
	}, []string{"name"})
	retryExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskboard_retry_exhausted_total",
		Help: "Operations that gave up with an error.",
	}, []string{"name"})
	retryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taskboard_retry_duration_seconds",
		Help:    "Wall time spent in retry.Do.",
		Buckets: prometheus.DefBuckets,
	}, []string{"name"})
)

func (p Policy) withDefaults() Policy {
	if p.Name == "" {
		p.Name = "default"
	}
	p.Attempts = max(p.Attempts, 1)
	if p.Backoff == nil {
		p.Backoff = defaultBackoff
	}
	if p.Retryable == nil {
		p.Retryable = func(err error) bool { return err != nil }
	}
	return p
}

// Do calls fn until it succeeds, returns a non-retryable error, runs out of
// attempts or ctx is done. A cancelled wait returns ctx.Err().
func Do(ctx context.Context, fn func() error, p Policy) error {
	p = p.withDefaults()
	start := time.Now()
	defer func() { retryLatency.WithLabelValues(p.Name).Observe(time.Since(start).Seconds()) }()

	span := trace.SpanFromContext(ctx)
	for i := 0; ; i++ {
		err := fn()
		retryAttempts.WithLabelValues(p.Name).Inc()
		if err == nil {
			return nil
		}
		if p.OnAttempt != nil {
			p.OnAttempt(i, err)
		}
		span.AddEvent("retry.attempt", trace.WithAttributes(
			attribute.String("retry.name", p.Name),
			attribute.Int("retry.attempt", i+1),
			attribute.String("error", err.Error()),
		))
		if !p.Retryable(err) || i == p.Attempts-1 {
			retryExhausted.WithLabelValues(p.Name).Inc()
			if p.OnExhaust != nil {
				p.OnExhaust(err)
			}
			return err
		}

		t := time.NewTimer(p.Backoff.Next(i))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
