package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

type txKey struct{}

// Transactor runs a task mutation, its notifications and their outbox rows
// in one read-committed transaction. Repositories built on the same DB pick
// the transaction up from the context; a nested WithTx joins it.
type Transactor struct {
	db  *DB
	log *zap.Logger
}

func NewTransactor(db *DB, log *zap.Logger) *Transactor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Transactor{db: db, log: log.With(zap.String("component", "pg.tx"))}
}

func (t *Transactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := txFrom(ctx); ok {
		return fn(ctx)
	}

	ctx, span := otel.Tracer("taskboard/postgres").Start(ctx, "pg.tx")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	tx, err := t.db.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	txCtx := context.WithValue(ctx, txKey{}, tx)

	defer func() {
		if p := recover(); p != nil {
			t.rollback(ctx, tx)
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		t.rollback(ctx, tx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		t.log.Error("commit", zap.Error(err))
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (t *Transactor) rollback(ctx context.Context, tx pgx.Tx) {
	// the caller's ctx may already be cancelled
	if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		t.log.Error("rollback", zap.Error(err))
	}
}

func txFrom(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok && tx != nil
}

type execQueryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (db *DB) execQueryer(ctx context.Context) execQueryer {
	if tx, ok := txFrom(ctx); ok {
		return tx
	}
	return db.Pool
}
