// Package outbox describes the transactional outbox used to hand created
// notifications to the broker after the owning transaction commits.
package outbox

import (
	"context"
	"time"
)

// Status mirrors the status column of outbox rows.
type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSuccess    Status = "SUCCESS"
)

// Kind selects the handler a row is dispatched to.
type Kind int

const (
	// KindNotificationIntent carries a JSON-encoded notification that has
	// already been persisted and still needs to be pushed.
	KindNotificationIntent Kind = 1
)

func (k Kind) String() string {
	switch k {
	case KindNotificationIntent:
		return "notification_intent"
	default:
		return "unknown"
	}
}

// Message is one picked outbox row. The trace fields restore the span of the
// request that enqueued it.
type Message struct {
	IdempotencyKey string
	Kind           Kind
	Data           []byte
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Traceparent    string
	Tracestate     string
	Baggage        string
}

type Repository interface {
	// Enqueue is a no-op when key is already present.
	Enqueue(ctx context.Context, key string, kind Kind, data []byte) error
	// PickBatch leases up to batch rows that are CREATED or whose lease is
	// older than inProgressTTL.
	PickBatch(ctx context.Context, batch int, inProgressTTL time.Duration) ([]Message, error)
	MarkSuccess(ctx context.Context, keys []string) error
}

type KindHandler func(ctx context.Context, data []byte) error

type GlobalHandler func(kind Kind) (KindHandler, error)
