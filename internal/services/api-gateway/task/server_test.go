package task

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jwtauth "github.com/NordCoder/Taskboard/internal/auth"
	"github.com/NordCoder/Taskboard/internal/broker"
	"github.com/NordCoder/Taskboard/internal/domain/notification"
	"github.com/NordCoder/Taskboard/internal/domain/task"
	"github.com/NordCoder/Taskboard/internal/repository/sqlite"
	"github.com/NordCoder/Taskboard/internal/services/api-gateway/auth"
	"github.com/NordCoder/Taskboard/internal/trigger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type env struct {
	router *gin.Engine
	tokens *jwtauth.Tokens
	notifs *sqlite.NotificationRepo
	uc     *Usecase
}

func setup(t *testing.T, hooks func(d *trigger.Dispatcher) Hooks) *env {
	t.Helper()
	return setupRepo(t, hooks, nil)
}

// setupRepo lets a test wrap the task repository the usecase writes through.
func setupRepo(t *testing.T, hooks func(d *trigger.Dispatcher) Hooks, wrap func(task.Repo) task.Repo) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	notifs := sqlite.NewNotificationRepo(store, notification.NewMonotonicClock(nil))
	d := trigger.NewDispatcher(zap.NewNop(), notifs, broker.New(nil), nil, nil)
	tokens := jwtauth.NewTokens(jwtauth.Config{Secret: []byte("secret"), AccessTTL: time.Hour})

	r := gin.New()
	api := r.Group("/api/v1", auth.Middleware(tokens))
	var repo task.Repo = sqlite.NewTaskRepo(store)
	if wrap != nil {
		repo = wrap(repo)
	}
	uc := NewUsecase(zap.NewNop(), repo, NoTx{}, hooks(d))
	NewServer(zap.NewNop(), uc).Register(api)

	return &env{router: r, tokens: tokens, notifs: notifs, uc: uc}
}

func directHooks(d *trigger.Dispatcher) Hooks { return Hooks{AfterCommit: d} }

func (e *env) do(t *testing.T, user, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	tok, err := e.tokens.Issue(user)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) createTask(t *testing.T, user, body string) task.Task {
	t.Helper()
	w := e.do(t, user, http.MethodPost, "/api/v1/tasks", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var out task.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (e *env) mailbox(t *testing.T, user string) []notification.Notification {
	t.Helper()
	p, err := e.notifs.List(context.Background(), user, notification.MaxLimit, 0)
	require.NoError(t, err)
	return p.Notifications
}

func TestCreate_Defaults(t *testing.T) {
	e := setup(t, directHooks)
	tk := e.createTask(t, "alice", `{"title":"Write docs"}`)

	assert.NotEmpty(t, tk.ID)
	assert.Equal(t, task.StatusTodo, tk.Status)
	assert.Equal(t, task.PriorityMedium, tk.Priority)
	assert.Equal(t, "alice", tk.CreatedBy)

	w := e.do(t, "bob", http.MethodGet, "/api/v1/tasks/"+tk.ID, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreate_Validation(t *testing.T) {
	e := setup(t, directHooks)
	for _, body := range []string{`{}`, `{"title":"x","status":"Blocked"}`, `{"title":"x","priority":"Urgent"}`, `not json`} {
		assert.Equal(t, http.StatusBadRequest, e.do(t, "alice", http.MethodPost, "/api/v1/tasks", body).Code, body)
	}
}

func TestCreate_AssignedToOtherNotifiesAssignee(t *testing.T) {
	e := setup(t, directHooks)
	tk := e.createTask(t, "alice", `{"title":"Ship it","assignedTo":"bob","project":"p1"}`)

	box := e.mailbox(t, "bob")
	require.Len(t, box, 1)
	assert.Equal(t, notification.TypeTaskAssigned, box[0].Type)
	assert.Equal(t, tk.ID, *box[0].RelatedTask)
	assert.Equal(t, "p1", *box[0].RelatedProject)
	assert.Equal(t, "alice", *box[0].Sender)
	assert.Empty(t, e.mailbox(t, "alice"))
}

func TestCreate_SelfAssignedIsSilent(t *testing.T) {
	e := setup(t, directHooks)
	e.createTask(t, "alice", `{"title":"Mine","assignedTo":"alice"}`)
	assert.Empty(t, e.mailbox(t, "alice"))
}

func TestUpdate_ReassignAndComplete(t *testing.T) {
	e := setup(t, directHooks)
	tk := e.createTask(t, "alice", `{"title":"Ship it","assignedTo":"bob"}`)

	w := e.do(t, "alice", http.MethodPut, "/api/v1/tasks/"+tk.ID, `{"assignedTo":"carol"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, e.mailbox(t, "bob"), 1)
	require.Len(t, e.mailbox(t, "carol"), 1)

	// same assignee again: nothing new
	w = e.do(t, "alice", http.MethodPut, "/api/v1/tasks/"+tk.ID, `{"assignedTo":"carol","description":"more"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, e.mailbox(t, "carol"), 1)

	w = e.do(t, "carol", http.MethodPut, "/api/v1/tasks/"+tk.ID, `{"status":"Done"}`)
	require.Equal(t, http.StatusOK, w.Code)
	box := e.mailbox(t, "alice")
	require.Len(t, box, 1)
	assert.Equal(t, notification.TypeTaskCompleted, box[0].Type)

	// already done
	w = e.do(t, "carol", http.MethodPut, "/api/v1/tasks/"+tk.ID, `{"status":"Done"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, e.mailbox(t, "alice"), 1)
}

func TestUpdate_NullClearsAssignee(t *testing.T) {
	e := setup(t, directHooks)
	tk := e.createTask(t, "alice", `{"title":"Ship it","assignedTo":"bob","project":"p1"}`)

	w := e.do(t, "alice", http.MethodPut, "/api/v1/tasks/"+tk.ID, `{"assignedTo":null}`)
	require.Equal(t, http.StatusOK, w.Code)
	var got task.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Nil(t, got.AssignedTo)
	require.NotNil(t, got.Project)
	assert.Equal(t, "p1", *got.Project)
}

func TestUpdate_Permissions(t *testing.T) {
	e := setup(t, directHooks)
	tk := e.createTask(t, "alice", `{"title":"Ship it","assignedTo":"bob"}`)

	assert.Equal(t, http.StatusForbidden, e.do(t, "mallory", http.MethodPut, "/api/v1/tasks/"+tk.ID, `{"title":"mine"}`).Code)
	assert.Equal(t, http.StatusOK, e.do(t, "bob", http.MethodPut, "/api/v1/tasks/"+tk.ID, `{"status":"In Progress"}`).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, "alice", http.MethodPut, "/api/v1/tasks/nope", `{"title":"x"}`).Code)
}

func TestDelete(t *testing.T) {
	e := setup(t, directHooks)
	tk := e.createTask(t, "alice", `{"title":"Temp"}`)

	assert.Equal(t, http.StatusForbidden, e.do(t, "bob", http.MethodDelete, "/api/v1/tasks/"+tk.ID, "").Code)
	assert.Equal(t, http.StatusNoContent, e.do(t, "alice", http.MethodDelete, "/api/v1/tasks/"+tk.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, "alice", http.MethodGet, "/api/v1/tasks/"+tk.ID, "").Code)
}

type failingHook struct{ calls int }

func (h *failingHook) OnMutation(context.Context, task.Mutation, string) error {
	h.calls++
	return errors.New("outbox unavailable")
}

type countingHook struct{ calls int }

func (h *countingHook) OnMutation(context.Context, task.Mutation, string) error {
	h.calls++
	return nil
}

func TestInTxHookFailureFailsTheWrite(t *testing.T) {
	inTx, after := &failingHook{}, &countingHook{}
	e := setup(t, func(*trigger.Dispatcher) Hooks { return Hooks{InTx: inTx, AfterCommit: after} })

	w := e.do(t, "alice", http.MethodPost, "/api/v1/tasks", `{"title":"x","assignedTo":"bob"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 1, inTx.calls)
	assert.Zero(t, after.calls)
}

func TestAfterCommitFailureDoesNotFailTheWrite(t *testing.T) {
	after := &failingHook{}
	e := setup(t, func(*trigger.Dispatcher) Hooks { return Hooks{AfterCommit: after} })

	e.createTask(t, "alice", `{"title":"x","assignedTo":"bob"}`)
	assert.Equal(t, 1, after.calls)
}

// lockstepRepo holds the first n reads until all of them arrived, so every
// racing update computes its change from the same stale row.
type lockstepRepo struct {
	task.Repo
	reads atomic.Int32
	n     int32
	wg    sync.WaitGroup
}

func newLockstepRepo(inner task.Repo, n int) *lockstepRepo {
	r := &lockstepRepo{Repo: inner, n: int32(n)}
	r.wg.Add(n)
	return r
}

func (r *lockstepRepo) GetByID(ctx context.Context, id string) (*task.Task, error) {
	t, err := r.Repo.GetByID(ctx, id)
	if r.reads.Add(1) <= r.n {
		r.wg.Done()
		r.wg.Wait()
	}
	return t, err
}

func TestUpdate_ConcurrentCompletionNotifiesOnce(t *testing.T) {
	e := setup(t, directHooks)
	tk := e.createTask(t, "carol", `{"title":"Write spec","assignedTo":"bob"}`)
	lock := newLockstepRepo(e.uc.repo, 2)
	e.uc.repo = lock

	done := task.StatusDone
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = e.uc.Update(context.Background(), "bob", tk.ID, Patch{Status: &done})
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	completed := 0
	for _, n := range e.mailbox(t, "carol") {
		if n.Type == notification.TypeTaskCompleted {
			completed++
		}
	}
	assert.Equal(t, 1, completed)
	assert.GreaterOrEqual(t, lock.reads.Load(), int32(3), "the losing update re-reads the row")
}

type conflictRepo struct{ task.Repo }

func (conflictRepo) Update(context.Context, *task.Task, *task.Task) error { return task.ErrConflict }

func TestUpdate_PersistentConflictIs409(t *testing.T) {
	e := setupRepo(t, directHooks, func(inner task.Repo) task.Repo { return conflictRepo{inner} })
	tk := e.createTask(t, "alice", `{"title":"Ship it"}`)

	w := e.do(t, "alice", http.MethodPut, "/api/v1/tasks/"+tk.ID, `{"status":"Done"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}
