package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/NordCoder/Taskboard/internal/domain/outbox"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

var _ outbox.Repository = (*OutboxRepo)(nil)

// OutboxRepo stores notification intents written inside task transactions.
type OutboxRepo struct{ db *DB }

func NewOutboxRepo(db *DB) *OutboxRepo { return &OutboxRepo{db: db} }

const (
	qOutboxEnqueue = `
INSERT INTO outbox (idempotency_key, data, status, kind, traceparent, tracestate, baggage)
VALUES (@key, @data, @created, @kind, @traceparent, @tracestate, @baggage)
ON CONFLICT (idempotency_key) DO NOTHING`

	// Leased rows are skipped by concurrent pickers until the lease expires.
	qOutboxPick = `
WITH cand AS (
   SELECT idempotency_key
   FROM outbox
   WHERE status = @created
      OR (status = @leased AND updated_at < now() - make_interval(secs => @ttl))
   ORDER BY created_at
   LIMIT @batch
   FOR UPDATE SKIP LOCKED
)
UPDATE outbox o
   SET status = @leased, updated_at = now()
  FROM cand
 WHERE o.idempotency_key = cand.idempotency_key
RETURNING o.idempotency_key, o.kind, o.data, o.status, o.traceparent, o.tracestate, o.baggage, o.created_at, o.updated_at`

	qOutboxDone = `
UPDATE outbox
   SET status = @done, updated_at = now()
 WHERE idempotency_key = ANY(@keys)`
)

// Enqueue joins the caller's transaction when the context carries one and
// stores the current trace context next to the payload.
func (r *OutboxRepo) Enqueue(ctx context.Context, key string, kind outbox.Kind, data []byte) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tc := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, tc)

	_, err := r.db.execQueryer(ctx).Exec(ctx, qOutboxEnqueue, pgx.NamedArgs{
		"key":         key,
		"data":        data,
		"created":     string(outbox.StatusCreated),
		"kind":        int(kind),
		"traceparent": tc.Get("traceparent"),
		"tracestate":  tc.Get("tracestate"),
		"baggage":     tc.Get("baggage"),
	})
	if err != nil {
		return fmt.Errorf("outbox enqueue %s: %w", kind, err)
	}
	return nil
}

func (r *OutboxRepo) PickBatch(ctx context.Context, batch int, inProgressTTL time.Duration) ([]outbox.Message, error) {
	if batch <= 0 {
		return nil, errors.New("outbox pick: batch must be positive")
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qOutboxPick, pgx.NamedArgs{
		"created": string(outbox.StatusCreated),
		"leased":  string(outbox.StatusInProgress),
		"ttl":     inProgressTTL.Seconds(),
		"batch":   batch,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox pick: %w", err)
	}
	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (outbox.Message, error) {
		var (
			m      outbox.Message
			kind   int
			status string
		)
		err := row.Scan(&m.IdempotencyKey, &kind, &m.Data, &status,
			&m.Traceparent, &m.Tracestate, &m.Baggage, &m.CreatedAt, &m.UpdatedAt)
		m.Kind, m.Status = outbox.Kind(kind), outbox.Status(status)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("outbox scan: %w", err)
	}
	// UPDATE ... RETURNING has no defined order
	slices.SortFunc(msgs, func(a, b outbox.Message) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return msgs, nil
}

func (r *OutboxRepo) MarkSuccess(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()
	if _, err := r.db.Pool.Exec(ctx, qOutboxDone, pgx.NamedArgs{
		"done": string(outbox.StatusSuccess),
		"keys": keys,
	}); err != nil {
		return fmt.Errorf("outbox mark success: %w", err)
	}
	return nil
}
