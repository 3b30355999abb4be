package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Taskboard/internal/domain/task"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var _ task.Repo = (*TaskRepo)(nil)

type TaskRepo struct {
	s   *Store
	now func() time.Time
}

func NewTaskRepo(s *Store) *TaskRepo { return &TaskRepo{s: s, now: time.Now} }

type taskRow struct {
	ID          string         `db:"id"`
	Title       string         `db:"title"`
	Description string         `db:"description"`
	Status      string         `db:"status"`
	Priority    string         `db:"priority"`
	Deadline    sql.NullInt64  `db:"deadline"`
	AssignedTo  sql.NullString `db:"assigned_to"`
	Project     sql.NullString `db:"project"`
	CreatedBy   string         `db:"created_by"`
	CreatedAt   int64          `db:"created_at"`
	UpdatedAt   int64          `db:"updated_at"`
}

func (r taskRow) toDomain() *task.Task {
	t := &task.Task{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Status:      task.Status(r.Status),
		Priority:    task.Priority(r.Priority),
		AssignedTo:  fromNull(r.AssignedTo),
		Project:     fromNull(r.Project),
		CreatedBy:   r.CreatedBy,
		CreatedAt:   time.Unix(0, r.CreatedAt).UTC(),
		UpdatedAt:   time.Unix(0, r.UpdatedAt).UTC(),
	}
	if r.Deadline.Valid {
		d := time.Unix(0, r.Deadline.Int64).UTC()
		t.Deadline = &d
	}
	return t
}

const taskColumns = `id, title, description, status, priority, deadline, assigned_to, project, created_by, created_at, updated_at`

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func (r *TaskRepo) Create(ctx context.Context, t *task.Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := r.now().UTC()
	if _, err := r.s.db.ExecContext(ctx, `
INSERT INTO tasks (id, title, description, status, priority, deadline, assigned_to, project, created_by, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, string(t.Status), string(t.Priority),
		nullTime(t.Deadline), toNull(t.AssignedTo), toNull(t.Project), t.CreatedBy,
		now.UnixNano(), now.UnixNano(),
	); err != nil {
		return fmt.Errorf("task insert: %w", err)
	}
	t.CreatedAt, t.UpdatedAt = now, now
	return nil
}

func (r *TaskRepo) GetByID(ctx context.Context, id string) (*task.Task, error) {
	var row taskRow
	err := r.s.db.GetContext(ctx, &row, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, task.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return row.toDomain(), nil
}

// Update only applies while status and assignee still equal prev's.
func (r *TaskRepo) Update(ctx context.Context, t, prev *task.Task) error {
	now := r.now().UTC()
	res, err := r.s.db.ExecContext(ctx, `
UPDATE tasks
SET title = ?, description = ?, status = ?, priority = ?, deadline = ?, assigned_to = ?, project = ?,
    deadline_notified_at = CASE
        WHEN deadline IS NOT ? OR assigned_to IS NOT ? THEN NULL
        ELSE deadline_notified_at
    END,
    updated_at = ?
WHERE id = ? AND status = ? AND assigned_to IS ?`,
		t.Title, t.Description, string(t.Status), string(t.Priority),
		nullTime(t.Deadline), toNull(t.AssignedTo), toNull(t.Project),
		nullTime(t.Deadline), toNull(t.AssignedTo),
		now.UnixNano(), t.ID,
		string(prev.Status), toNull(prev.AssignedTo),
	)
	if err != nil {
		return fmt.Errorf("task update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := r.s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = ?)`, t.ID); err != nil {
			return fmt.Errorf("task exists: %w", err)
		}
		if exists {
			return task.ErrConflict
		}
		return task.ErrNotFound
	}
	t.UpdatedAt = now
	return nil
}

func (r *TaskRepo) Delete(ctx context.Context, id string) error {
	res, err := r.s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return task.ErrNotFound
	}
	return nil
}

func (r *TaskRepo) FetchDueSoon(ctx context.Context, before time.Time, limit int) ([]task.Due, error) {
	if limit <= 0 {
		limit = 100
	}

	tx, err := r.s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var rows []struct {
		ID         string         `db:"id"`
		Title      string         `db:"title"`
		Project    sql.NullString `db:"project"`
		AssignedTo string         `db:"assigned_to"`
		Deadline   int64          `db:"deadline"`
	}
	if err := tx.SelectContext(ctx, &rows, `
SELECT id, title, project, assigned_to, deadline
FROM tasks
WHERE status <> 'Done'
  AND assigned_to IS NOT NULL
  AND deadline IS NOT NULL
  AND deadline <= ?
  AND deadline_notified_at IS NULL
ORDER BY deadline
LIMIT ?`, before.UnixNano(), limit); err != nil {
		return nil, fmt.Errorf("fetch due soon: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	out := make([]task.Due, 0, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, task.Due{
			TaskID:   row.ID,
			Title:    row.Title,
			Project:  fromNull(row.Project),
			Assignee: row.AssignedTo,
			Deadline: time.Unix(0, row.Deadline).UTC(),
		})
		ids = append(ids, row.ID)
	}

	q, args, err := sqlx.In(`UPDATE tasks SET deadline_notified_at = ? WHERE id IN (?)`, r.now().UnixNano(), ids)
	if err != nil {
		return nil, fmt.Errorf("build reminded update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("mark reminded: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}
