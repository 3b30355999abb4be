package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DefaultOutboxPolicy retries a delivery a few times within one pick; rows
// that still fail are picked again once their in-progress lease expires.
func DefaultOutboxPolicy(log *zap.Logger) Policy {
	return Policy{
		Name:     "outbox",
		Attempts: 4,
		Backoff:  ExpoJitter{Base: 200 * time.Millisecond, Max: 5 * time.Second, Jitter: 0.2},
		OnAttempt: func(i int, err error) {
			if log != nil {
				log.Warn("outbox retry", zap.Int("attempt", i+1), zap.Error(err))
			}
		},
		OnExhaust: func(err error) {
			if log != nil && !errors.Is(err, context.Canceled) {
				log.Error("outbox retries exhausted", zap.Error(err))
			}
		},
	}
}
