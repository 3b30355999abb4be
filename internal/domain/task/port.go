package task

import (
	"context"
	"time"
)

type Repo interface {
	Create(ctx context.Context, t *Task) error
	GetByID(ctx context.Context, id string) (*Task, error)
	// Update stores t only while the row still has prev's status and
	// assignee, and returns ErrConflict otherwise.
	Update(ctx context.Context, t, prev *Task) error
	Delete(ctx context.Context, id string) error
	// FetchDueSoon claims up to limit undone, assigned tasks whose deadline is
	// before the given instant and that were never reminded about.
	FetchDueSoon(ctx context.Context, before time.Time, limit int) ([]Due, error)
}
