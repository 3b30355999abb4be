package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/NordCoder/Taskboard/internal/broker"
	"github.com/NordCoder/Taskboard/internal/domain/notification"
	"github.com/NordCoder/Taskboard/internal/domain/task"
	"github.com/NordCoder/Taskboard/internal/repository/sqlite"
	"github.com/NordCoder/Taskboard/internal/services/scheduler/repo"
	"github.com/NordCoder/Taskboard/internal/trigger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func strp(s string) *string { return &s }

func TestTick_RemindsOncePerDeadline(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	tasks := sqlite.NewTaskRepo(store)
	notifs := sqlite.NewNotificationRepo(store, notification.NewMonotonicClock(nil))
	d := trigger.NewDispatcher(zap.NewNop(), notifs, broker.New(nil), nil, nil)

	now := time.Now().UTC()
	soon, later := now.Add(2*time.Hour), now.Add(72*time.Hour)
	require.NoError(t, tasks.Create(ctx, &task.Task{Title: "soon", Status: task.StatusTodo, Priority: task.PriorityLow, Deadline: &soon, AssignedTo: strp("bob"), CreatedBy: "alice"}))
	require.NoError(t, tasks.Create(ctx, &task.Task{Title: "later", Status: task.StatusTodo, Priority: task.PriorityLow, Deadline: &later, AssignedTo: strp("bob"), CreatedBy: "alice"}))
	require.NoError(t, tasks.Create(ctx, &task.Task{Title: "done", Status: task.StatusDone, Priority: task.PriorityLow, Deadline: &soon, AssignedTo: strp("bob"), CreatedBy: "alice"}))
	require.NoError(t, tasks.Create(ctx, &task.Task{Title: "nobody", Status: task.StatusTodo, Priority: task.PriorityLow, Deadline: &soon, CreatedBy: "alice"}))

	uc := NewUC(repo.TaskRepo{R: tasks}, repo.Reminders{D: d})
	uc.Now = func() time.Time { return now }

	fetched, sent, errs, err := uc.Tick(ctx, 24*time.Hour, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, fetched)
	assert.Equal(t, 1, sent)
	assert.Zero(t, errs)

	fetched, _, _, err = uc.Tick(ctx, 24*time.Hour, 10)
	require.NoError(t, err)
	assert.Zero(t, fetched)

	page, err := notifs.List(ctx, "bob", 10, 0)
	require.NoError(t, err)
	require.Len(t, page.Notifications, 1)
	assert.Equal(t, notification.TypeDeadlineApproaching, page.Notifications[0].Type)
	assert.Contains(t, page.Notifications[0].Message, "soon")
}

type stubSource struct {
	due []task.Due
	err error
}

func (s stubSource) FetchDue(context.Context, time.Time, int) ([]task.Due, error) {
	return s.due, s.err
}

type stubReminder struct{ failFor string }

func (s stubReminder) Remind(_ context.Context, d task.Due) error {
	if d.TaskID == s.failFor {
		return errors.New("store down")
	}
	return nil
}

func TestTick_CountsFailures(t *testing.T) {
	uc := NewUC(stubSource{due: []task.Due{{TaskID: "a"}, {TaskID: "b"}, {TaskID: "c"}}}, stubReminder{failFor: "b"})
	fetched, sent, errs, err := uc.Tick(context.Background(), time.Hour, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, fetched)
	assert.Equal(t, 2, sent)
	assert.Equal(t, 1, errs)

	uc = NewUC(stubSource{err: errors.New("db down")}, stubReminder{})
	_, _, errs, err = uc.Tick(context.Background(), time.Hour, 0)
	assert.Error(t, err)
	assert.Equal(t, 1, errs)
}

func TestRunner_StopsOnCancel(t *testing.T) {
	uc := NewUC(stubSource{}, stubReminder{})
	r := New(zap.NewNop(), uc, Config{Tick: 5 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Run(ctx), context.DeadlineExceeded)
}
