package repo

import (
	"context"
	"time"

	"github.com/NordCoder/Taskboard/internal/domain/notification"
	"github.com/NordCoder/Taskboard/internal/domain/task"
	"github.com/NordCoder/Taskboard/internal/trigger"
)

type Deliverer interface {
	Deliver(ctx context.Context, n *notification.Notification) error
}

type TaskRepo struct{ R task.Repo }

type Reminders struct{ D Deliverer }

func (a TaskRepo) FetchDue(ctx context.Context, before time.Time, limit int) ([]task.Due, error) {
	return a.R.FetchDueSoon(ctx, before, limit)
}

func (r Reminders) Remind(ctx context.Context, due task.Due) error {
	n := trigger.DeadlineReminder(due)
	return r.D.Deliver(ctx, &n)
}
