package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/NordCoder/Taskboard/internal/domain/notification"
	"github.com/NordCoder/Taskboard/internal/domain/outbox"
	"github.com/NordCoder/Taskboard/internal/domain/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	mu      sync.Mutex
	err     error
	created []notification.Notification
}

func (s *fakeStore) Create(_ context.Context, n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	n.ID = "n" + string(rune('0'+len(s.created)))
	n.CreatedAt = time.Now()
	s.created = append(s.created, *n)
	return nil
}

type fakePublisher struct {
	mu   sync.Mutex
	sent map[string][]notification.Notification
}

func (p *fakePublisher) Publish(recipient string, n notification.Notification) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sent == nil {
		p.sent = map[string][]notification.Notification{}
	}
	p.sent[recipient] = append(p.sent[recipient], n)
	return 1
}

type fakeMirror struct {
	err   error
	calls int
}

func (m *fakeMirror) PublishNotificationCreated(context.Context, notification.Notification) error {
	m.calls++
	return m.err
}

func TestDispatcher_StoresThenPublishes(t *testing.T) {
	store, pub, mirror := &fakeStore{}, &fakePublisher{}, &fakeMirror{}
	d := NewDispatcher(zap.NewNop(), store, pub, mirror, nil)

	m := task.Mutation{ID: "m1", TaskID: "t1", Title: "Write spec", Created: true, NextAssignee: ptr("U"), Creator: "A"}
	require.NoError(t, d.OnMutation(context.Background(), m, "A"))

	require.Len(t, store.created, 1)
	require.Len(t, pub.sent["U"], 1)
	assert.Equal(t, store.created[0].ID, pub.sent["U"][0].ID)
	assert.Empty(t, pub.sent["A"])
	assert.Equal(t, 1, mirror.calls)
}

func TestDispatcher_StoreFailureIsSwallowed(t *testing.T) {
	store, pub := &fakeStore{err: notification.ErrStorageUnavailable}, &fakePublisher{}
	d := NewDispatcher(zap.NewNop(), store, pub, nil, nil)

	m := task.Mutation{ID: "m1", TaskID: "t1", Created: true, NextAssignee: ptr("U"), Creator: "A"}
	assert.NoError(t, d.OnMutation(context.Background(), m, "A"))
	assert.Empty(t, pub.sent)
}

func TestDispatcher_MirrorFailureDoesNotFailDelivery(t *testing.T) {
	store, pub := &fakeStore{}, &fakePublisher{}
	d := NewDispatcher(zap.NewNop(), store, pub, &fakeMirror{err: errors.New("kafka down")}, nil)

	n := &notification.Notification{Recipient: "U", Type: notification.TypeGeneral, Message: "hi"}
	require.NoError(t, d.Deliver(context.Background(), n))
	assert.Len(t, pub.sent["U"], 1)
}

func TestDispatcher_BreakerOpensOnRepeatedFailures(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	cb := NewBreaker(BreakerConfig{ConsecutiveFailures: 2, Timeout: time.Minute}, zap.NewNop())
	d := NewDispatcher(zap.NewNop(), store, &fakePublisher{}, nil, cb)

	n := func() *notification.Notification {
		return &notification.Notification{Recipient: "U", Type: notification.TypeGeneral, Message: "hi"}
	}
	for i := 0; i < 3; i++ {
		require.Error(t, d.Deliver(context.Background(), n()))
	}

	store.mu.Lock()
	store.err = nil
	store.mu.Unlock()

	err := d.Deliver(context.Background(), n())
	assert.ErrorIs(t, err, notification.ErrStorageUnavailable)
	assert.Empty(t, store.created)
}

type fakeOutbox struct {
	keys []string
	data [][]byte
	err  error
}

func (f *fakeOutbox) Enqueue(_ context.Context, key string, _ outbox.Kind, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.data = append(f.data, data)
	return nil
}

func (f *fakeOutbox) PickBatch(context.Context, int, time.Duration) ([]outbox.Message, error) {
	return nil, nil
}

func (f *fakeOutbox) MarkSuccess(context.Context, []string) error { return nil }

func TestOutboxRecorder_EnqueuesIntents(t *testing.T) {
	ob := &fakeOutbox{}
	rec := NewOutboxRecorder(ob)

	m := task.Mutation{ID: "m1", TaskID: "t1", PrevAssignee: ptr("U"), NextAssignee: ptr("V"),
		PrevStatus: task.StatusTodo, NextStatus: task.StatusDone, Creator: "C"}
	require.NoError(t, rec.OnMutation(context.Background(), m, "A"))
	require.Len(t, ob.keys, 2)

	var in Intent
	require.NoError(t, json.Unmarshal(ob.data[0], &in))
	assert.Equal(t, "V", in.Recipient)
	assert.Equal(t, ob.keys[0], in.DedupeKey)
	assert.Equal(t, notification.TypeTaskAssigned, in.Notification().Type)
}

func TestOutboxRecorder_PropagatesErrors(t *testing.T) {
	rec := NewOutboxRecorder(&fakeOutbox{err: errors.New("tx aborted")})
	m := task.Mutation{ID: "m1", TaskID: "t1", Created: true, NextAssignee: ptr("U")}
	assert.Error(t, rec.OnMutation(context.Background(), m, "A"))
}
