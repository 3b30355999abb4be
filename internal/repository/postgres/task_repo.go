package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Taskboard/internal/domain/task"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var _ task.Repo = (*TaskRepoImpl)(nil)

type TaskRepoImpl struct {
	db *DB
}

func NewTaskRepo(db *DB) *TaskRepoImpl { return &TaskRepoImpl{db: db} }

const taskColumns = `id::text, title, description, status, priority, deadline, assigned_to, project, created_by, created_at, updated_at`

const (
	qTaskInsert = `
INSERT INTO tasks (id, title, description, status, priority, deadline, assigned_to, project, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + taskColumns + `;
`

	qTaskGetByID = `
SELECT ` + taskColumns + `
FROM tasks
WHERE id = $1;
`

	qTaskUpdate = `
UPDATE tasks
SET title       = $2,
    description = $3,
    status      = $4,
    priority    = $5,
    deadline    = $6,
    assigned_to = $7,
    project     = $8,
    deadline_notified_at = CASE
        WHEN deadline IS DISTINCT FROM $6 OR assigned_to IS DISTINCT FROM $7 THEN NULL
        ELSE deadline_notified_at
    END,
    updated_at  = now()
WHERE id = $1
  AND status = $9
  AND assigned_to IS NOT DISTINCT FROM $10
RETURNING ` + taskColumns + `;
`

	qTaskExists = `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1);`

	qTaskDelete = `DELETE FROM tasks WHERE id = $1;`

	qTaskFetchDueSoon = `
SELECT id::text, title, project, assigned_to, deadline
FROM tasks
WHERE status <> 'Done'
  AND assigned_to IS NOT NULL
  AND deadline IS NOT NULL
  AND deadline <= $1
  AND deadline_notified_at IS NULL
ORDER BY deadline
LIMIT $2
FOR UPDATE SKIP LOCKED;
`

	qTaskMarkReminded = `
UPDATE tasks
SET deadline_notified_at = now()
WHERE id = ANY($1::uuid[]);
`
)

func scanTask(row pgx.Row, t *task.Task) error {
	var status, priority string
	if err := row.Scan(
		&t.ID,
		&t.Title,
		&t.Description,
		&status,
		&priority,
		&t.Deadline,
		&t.AssignedTo,
		&t.Project,
		&t.CreatedBy,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return task.ErrNotFound
		}
		return fmt.Errorf("scan task: %w", err)
	}
	t.Status = task.Status(status)
	t.Priority = task.Priority(priority)
	return nil
}

func (r *TaskRepoImpl) Create(ctx context.Context, t *task.Task) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	row := r.db.execQueryer(ctx).QueryRow(ctx, qTaskInsert,
		t.ID, t.Title, t.Description, string(t.Status), string(t.Priority),
		t.Deadline, t.AssignedTo, t.Project, t.CreatedBy,
	)
	if err := scanTask(row, t); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("task insert: %w", err)
	}
	return nil
}

func (r *TaskRepoImpl) GetByID(ctx context.Context, id string) (*task.Task, error) {
	if !validUUID(id) {
		return nil, task.ErrNotFound
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var t task.Task
	if err := scanTask(r.db.execQueryer(ctx).QueryRow(ctx, qTaskGetByID, id), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Update is a compare-and-set on status and assignee. Under read committed a
// concurrent writer blocks on the row lock and then re-checks the guard
// against the committed row, so only one of two racing transitions applies.
func (r *TaskRepoImpl) Update(ctx context.Context, t, prev *task.Task) error {
	if !validUUID(t.ID) {
		return task.ErrNotFound
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	row := eq.QueryRow(ctx, qTaskUpdate,
		t.ID, t.Title, t.Description, string(t.Status), string(t.Priority),
		t.Deadline, t.AssignedTo, t.Project,
		string(prev.Status), prev.AssignedTo,
	)
	err := scanTask(row, t)
	if !errors.Is(err, task.ErrNotFound) {
		return err
	}
	var exists bool
	if err := eq.QueryRow(ctx, qTaskExists, t.ID).Scan(&exists); err != nil {
		return fmt.Errorf("task exists: %w", err)
	}
	if exists {
		return task.ErrConflict
	}
	return task.ErrNotFound
}

func (r *TaskRepoImpl) Delete(ctx context.Context, id string) error {
	if !validUUID(id) {
		return task.ErrNotFound
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	cmd, err := r.db.execQueryer(ctx).Exec(ctx, qTaskDelete, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return task.ErrNotFound
	}
	return nil
}

func (r *TaskRepoImpl) FetchDueSoon(ctx context.Context, before time.Time, limit int) ([]task.Due, error) {
	if limit <= 0 {
		limit = 100
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, qTaskFetchDueSoon, before, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch due soon: %w", err)
	}
	defer rows.Close()

	var (
		out []task.Due
		ids []string
	)
	for rows.Next() {
		var d task.Due
		if err := rows.Scan(&d.TaskID, &d.Title, &d.Project, &d.Assignee, &d.Deadline); err != nil {
			return nil, fmt.Errorf("scan due task: %w", err)
		}
		out = append(out, d)
		ids = append(ids, d.TaskID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	rows.Close()
	if len(ids) == 0 {
		return nil, nil
	}

	if _, err := tx.Exec(ctx, qTaskMarkReminded, ids); err != nil {
		return nil, fmt.Errorf("mark reminded: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}
