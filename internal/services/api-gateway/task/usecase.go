package task

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/NordCoder/Taskboard/internal/domain/task"
	"github.com/NordCoder/Taskboard/internal/obs"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrForbidden = errors.New("forbidden")

type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NoTx runs fn directly, for stores without multi-statement transactions.
type NoTx struct{}

func (NoTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

// MutationHook reacts to a task create or update.
type MutationHook interface {
	OnMutation(ctx context.Context, m task.Mutation, actor string) error
}

// Hooks are both optional. InTx runs inside the task transaction and can
// abort it; AfterCommit runs once the write is durable and cannot.
type Hooks struct {
	InTx        MutationHook
	AfterCommit MutationHook
}

type Usecase struct {
	log   *zap.Logger
	repo  task.Repo
	tx    Transactor
	hooks Hooks
	newID func() string
}

func NewUsecase(log *zap.Logger, repo task.Repo, tx Transactor, hooks Hooks) *Usecase {
	if tx == nil {
		tx = NoTx{}
	}
	return &Usecase{
		log:   log.With(zap.String("component", "task")),
		repo:  repo,
		tx:    tx,
		hooks: hooks,
		newID: uuid.NewString,
	}
}

type CreateInput struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Status      task.Status   `json:"status"`
	Priority    task.Priority `json:"priority"`
	Deadline    *time.Time    `json:"deadline"`
	AssignedTo  *string       `json:"assignedTo"`
	Project     *string       `json:"project"`
}

// Optional distinguishes an absent JSON field from an explicit null.
type Optional[T any] struct {
	Set   bool
	Value *T
}

func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// Patch is a partial update; nil pointers and unset optionals keep the
// current value.
type Patch struct {
	Title       *string             `json:"title"`
	Description *string             `json:"description"`
	Status      *task.Status        `json:"status"`
	Priority    *task.Priority      `json:"priority"`
	Deadline    Optional[time.Time] `json:"deadline"`
	AssignedTo  Optional[string]    `json:"assignedTo"`
	Project     Optional[string]    `json:"project"`
}

func invalid(msg string) error { return errors.Join(task.ErrInvalid, errors.New(msg)) }

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func (u *Usecase) Create(ctx context.Context, actor string, in CreateInput) (*task.Task, error) {
	t := &task.Task{
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Status:      in.Status,
		Priority:    in.Priority,
		Deadline:    in.Deadline,
		AssignedTo:  blankToNil(in.AssignedTo),
		Project:     blankToNil(in.Project),
		CreatedBy:   actor,
	}
	if t.Status == "" {
		t.Status = task.StatusTodo
	}
	if t.Priority == "" {
		t.Priority = task.PriorityMedium
	}
	if err := validate(t); err != nil {
		return nil, err
	}

	var m task.Mutation
	err := u.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := u.repo.Create(ctx, t); err != nil {
			return err
		}
		m = task.CreatedMutation(u.newID(), t)
		return u.inTx(ctx, m, actor)
	})
	if err != nil {
		return nil, err
	}
	u.afterCommit(ctx, m, actor)
	return t, nil
}

func (u *Usecase) Get(ctx context.Context, id string) (*task.Task, error) {
	return u.repo.GetByID(ctx, id)
}

const updateAttempts = 3

// Update applies p for actor, who must be the creator or the current assignee.
// The mutation handed to the hooks is computed from the row the write actually
// replaced: when another update moves the status or assignee first, the patch
// is re-applied to the fresh row, so a repeated transition notifies nobody.
func (u *Usecase) Update(ctx context.Context, actor, id string, p Patch) (*task.Task, error) {
	var (
		next *task.Task
		m    task.Mutation
	)
	err := u.tx.WithTx(ctx, func(ctx context.Context) error {
		for attempt := 1; ; attempt++ {
			prev, err := u.repo.GetByID(ctx, id)
			if err != nil {
				return err
			}
			if !canEdit(prev, actor) {
				return ErrForbidden
			}

			cp := *prev
			next = &cp
			apply(next, p)
			if err := validate(next); err != nil {
				return err
			}
			err = u.repo.Update(ctx, next, prev)
			if errors.Is(err, task.ErrConflict) && attempt < updateAttempts {
				continue
			}
			if err != nil {
				return err
			}
			m = task.UpdatedMutation(u.newID(), prev, next)
			return u.inTx(ctx, m, actor)
		}
	})
	if err != nil {
		return nil, err
	}
	u.afterCommit(ctx, m, actor)
	return next, nil
}

func (u *Usecase) Delete(ctx context.Context, actor, id string) error {
	cur, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if cur.CreatedBy != actor {
		return ErrForbidden
	}
	return u.repo.Delete(ctx, id)
}

func canEdit(t *task.Task, actor string) bool {
	return t.CreatedBy == actor || (t.AssignedTo != nil && *t.AssignedTo == actor)
}

func apply(t *task.Task, p Patch) {
	if p.Title != nil {
		t.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Deadline.Set {
		t.Deadline = p.Deadline.Value
	}
	if p.AssignedTo.Set {
		t.AssignedTo = blankToNil(p.AssignedTo.Value)
	}
	if p.Project.Set {
		t.Project = blankToNil(p.Project.Value)
	}
}

func validate(t *task.Task) error {
	if t.Title == "" {
		return invalid("title is required")
	}
	if !t.Status.Valid() {
		return invalid("unknown status " + string(t.Status))
	}
	if !t.Priority.Valid() {
		return invalid("unknown priority " + string(t.Priority))
	}
	return nil
}

func (u *Usecase) inTx(ctx context.Context, m task.Mutation, actor string) error {
	if u.hooks.InTx == nil {
		return nil
	}
	return u.hooks.InTx.OnMutation(ctx, m, actor)
}

func (u *Usecase) afterCommit(ctx context.Context, m task.Mutation, actor string) {
	if u.hooks.AfterCommit == nil {
		return
	}
	if err := u.hooks.AfterCommit.OnMutation(ctx, m, actor); err != nil {
		obs.WithTrace(ctx, u.log).Warn("post-commit task hook failed",
			zap.String("task", m.TaskID), zap.Error(err))
	}
}
