package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	config "github.com/NordCoder/Taskboard/internal/config/email-notifier"
	"github.com/NordCoder/Taskboard/internal/domain/notification"
	"github.com/NordCoder/Taskboard/internal/domain/user"
	"github.com/NordCoder/Taskboard/internal/obs/retry"
	kafkax "github.com/NordCoder/Taskboard/internal/repository/kafka"
	"github.com/NordCoder/Taskboard/internal/services/email-notifier/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memUsers map[string]*user.User

func (m memUsers) Upsert(_ context.Context, u *user.User) error { m[u.ID] = u; return nil }

func (m memUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	u, ok := m[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

type mail struct{ to, subject, body string }

type fakeSender struct {
	fails int
	sent  []mail
}

func (f *fakeSender) Send(_ context.Context, to, subject, body string) error {
	if f.fails > 0 {
		f.fails--
		return errors.New("smtp: 421 try later")
	}
	f.sent = append(f.sent, mail{to, subject, body})
	return nil
}

func newHandler(out *fakeSender) *Handler {
	users := memUsers{
		"bob":   {ID: "bob", Email: "bob@example.com"},
		"ghost": {ID: "ghost"},
	}
	return &Handler{
		Users: repo.UserReader{R: users},
		Out:   out,
		Retry: retry.Policy{Attempts: 3, Backoff: retry.ExpoJitter{Base: time.Millisecond}},
		Log:   zap.NewNop(),
	}
}

func TestHandleNotification_MailsAssignedTask(t *testing.T) {
	out := &fakeSender{}
	h := newHandler(out)
	task := "task-1"

	err := h.HandleNotification(t.Context(), Event{
		ID:          "n1",
		Recipient:   "bob",
		Type:        notification.TypeTaskAssigned,
		Message:     `You were assigned to task "Write docs"`,
		RelatedTask: &task,
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, out.sent, 1)
	assert.Equal(t, "bob@example.com", out.sent[0].to)
	assert.Equal(t, "New task assigned", out.sent[0].subject)
	assert.Contains(t, out.sent[0].body, `You were assigned to task "Write docs"`)
	assert.Contains(t, out.sent[0].body, "Task: task-1")
	assert.Contains(t, out.sent[0].body, "2026-01-02T03:04:05Z")
}

func TestHandleNotification_SkipsUnmailedTypes(t *testing.T) {
	out := &fakeSender{}
	h := newHandler(out)

	for _, typ := range []notification.Type{notification.TypeTaskUpdated, notification.TypeMention, notification.TypeGeneral} {
		require.NoError(t, h.HandleNotification(t.Context(), Event{ID: "n", Recipient: "bob", Type: typ, Message: "m"}))
	}
	assert.Empty(t, out.sent)
}

func TestHandleNotification_SkipsRecipientsWithoutAddress(t *testing.T) {
	out := &fakeSender{}
	h := newHandler(out)

	require.NoError(t, h.HandleNotification(t.Context(), Event{ID: "n", Recipient: "nobody", Type: notification.TypeTaskCompleted, Message: "m"}))
	require.NoError(t, h.HandleNotification(t.Context(), Event{ID: "n", Recipient: "ghost", Type: notification.TypeTaskCompleted, Message: "m"}))
	assert.Empty(t, out.sent)
}

func TestHandleNotification_RetriesSend(t *testing.T) {
	out := &fakeSender{fails: 2}
	h := newHandler(out)

	require.NoError(t, h.HandleNotification(t.Context(), Event{ID: "n", Recipient: "bob", Type: notification.TypeDeadlineApproaching, Message: "m"}))
	assert.Len(t, out.sent, 1)

	out.fails = 5
	err := h.HandleNotification(t.Context(), Event{ID: "n", Recipient: "bob", Type: notification.TypeDeadlineApproaching, Message: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send email")
}

func TestController_Handler(t *testing.T) {
	out := &fakeSender{}
	c := &Controller{Log: zap.NewNop(), UC: newHandler(out)}
	h := c.Handler()

	raw, err := json.Marshal(kafkax.NotificationCreated{
		ID:        "n1",
		Recipient: "bob",
		Type:      notification.TypeTaskCompleted,
		Message:   `Task "Ship" was completed`,
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, h(t.Context(), []byte("bob"), raw))
	require.Len(t, out.sent, 1)
	assert.Equal(t, "Task completed", out.sent[0].subject)

	assert.NoError(t, h(t.Context(), nil, []byte("{not json")), "malformed events are committed")
	assert.NoError(t, h(t.Context(), nil, []byte(`{"id":"x"}`)), "events without recipient are committed")
	assert.Len(t, out.sent, 1)
}

type fakeSub struct{ err error }

func (f fakeSub) Consume(ctx context.Context, _ kafkax.Handler) error {
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestController_Run(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	c := &Controller{Log: zap.NewNop(), Sub: fakeSub{}, UC: newHandler(&fakeSender{})}
	assert.NoError(t, c.Run(ctx))

	c.Sub = fakeSub{err: errors.New("broker down")}
	assert.Error(t, c.Run(t.Context()))
}

func TestMailer_Compose(t *testing.T) {
	m := New(config.SMTP{Addr: "smtp.example.com:25", From: "Taskboard <noreply@taskboard.dev>", SubjPrefix: "[Taskboard]"})
	msg := string(m.compose("bob@example.com", "Task completed", "line1\nline2", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))

	assert.Contains(t, msg, "Subject: [Taskboard] Task completed\r\n")
	assert.Contains(t, msg, "To: bob@example.com\r\n")
	assert.Contains(t, msg, "@taskboard.dev>\r\n")
	assert.Contains(t, msg, "Date: Fri, 02 Jan 2026 03:04:05 +0000\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\nline1\r\nline2\r\n"))
}
