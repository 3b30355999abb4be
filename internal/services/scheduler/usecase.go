package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/NordCoder/Taskboard/internal/domain/task"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type DueSource interface {
	FetchDue(ctx context.Context, before time.Time, limit int) ([]task.Due, error)
}

type Reminder interface {
	Remind(ctx context.Context, due task.Due) error
}

// Usecase sends one deadline_approaching notification per task whose
// deadline enters the reminder window. The source claims tasks as it returns
// them, so a task is reminded about at most once per deadline.
type Usecase struct {
	Source   DueSource
	Reminder Reminder
	Now      func() time.Time
}

func NewUC(source DueSource, reminder Reminder) *Usecase {
	return &Usecase{Source: source, Reminder: reminder, Now: time.Now}
}

func (u *Usecase) Tick(ctx context.Context, window time.Duration, limit int) (int, int, int, error) {
	if limit <= 0 {
		limit = 100
	}

	tr := otel.Tracer("scheduler.uc")
	ctxTick, span := tr.Start(ctx, "scheduler.tick",
		trace.WithAttributes(
			attribute.Int("batch.limit", limit),
			attribute.String("window", window.String()),
		),
	)
	defer span.End()

	due, err := u.Source.FetchDue(ctxTick, u.Now().Add(window), limit)
	if err != nil {
		span.RecordError(err)
		return 0, 0, 1, fmt.Errorf("fetch due: %w", err)
	}
	span.SetAttributes(attribute.Int("batch.fetched", len(due)))
	if len(due) == 0 {
		return 0, 0, 0, nil
	}

	sent, errs := 0, 0
	for _, d := range due {
		ctxRemind, sp := tr.Start(ctxTick, "scheduler.remind",
			trace.WithAttributes(
				attribute.String("task.id", d.TaskID),
				attribute.String("task.assignee", d.Assignee),
			),
		)
		if err := u.Reminder.Remind(ctxRemind, d); err != nil {
			errs++
			sp.RecordError(err)
			sp.End()
			continue
		}
		sent++
		sp.End()
	}

	span.SetAttributes(
		attribute.Int("batch.sent", sent),
		attribute.Int("batch.errors", errs),
	)
	return len(due), sent, errs, nil
}
