package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/NordCoder/Taskboard/internal/domain/notification"
	"github.com/NordCoder/Taskboard/internal/domain/outbox"
	"github.com/NordCoder/Taskboard/internal/obs/retry"
	"github.com/NordCoder/Taskboard/internal/trigger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memOutbox struct {
	mu      sync.Mutex
	pending []outbox.Message
	done    []string
	pickErr error
}

func (m *memOutbox) Enqueue(_ context.Context, key string, kind outbox.Kind, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, outbox.Message{IdempotencyKey: key, Kind: kind, Data: data})
	return nil
}

func (m *memOutbox) PickBatch(_ context.Context, batch int, _ time.Duration) ([]outbox.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pickErr != nil {
		return nil, m.pickErr
	}
	if batch > len(m.pending) {
		batch = len(m.pending)
	}
	out := append([]outbox.Message(nil), m.pending[:batch]...)
	return out, nil
}

func (m *memOutbox) MarkSuccess(_ context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done = append(m.done, keys...)
	left := m.pending[:0]
	for _, p := range m.pending {
		if !contains(keys, p.IdempotencyKey) {
			left = append(left, p)
		}
	}
	m.pending = left
	return nil
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

type fakeDeliverer struct {
	mu        sync.Mutex
	err       error
	delivered []notification.Notification
}

func (f *fakeDeliverer) Deliver(_ context.Context, n *notification.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.delivered = append(f.delivered, *n)
	return nil
}

func enqueueIntent(t *testing.T, ob *memOutbox, n notification.Notification) {
	t.Helper()
	data, err := json.Marshal(trigger.IntentFrom(n))
	require.NoError(t, err)
	require.NoError(t, ob.Enqueue(context.Background(), n.DedupeKey, outbox.KindNotificationIntent, data))
}

var noRetry = retry.Policy{Attempts: 1, Backoff: retry.ExpoJitter{Base: time.Millisecond}}

func TestRunner_DeliversIntentsAndMarksSuccess(t *testing.T) {
	ob := &memOutbox{}
	d := &fakeDeliverer{}
	enqueueIntent(t, ob, notification.Notification{Recipient: "U", Type: notification.TypeTaskAssigned, Message: "a", DedupeKey: "k1"})
	enqueueIntent(t, ob, notification.Notification{Recipient: "V", Type: notification.TypeGeneral, Message: "b", DedupeKey: "k2"})

	r := NewOutboxRunner(zap.NewNop(), ob, MakeGlobalOutboxHandler(d, noRetry, nil), RunnerConfig{BatchSize: 10})
	assert.Equal(t, 2, r.tick(context.Background()))

	require.Len(t, d.delivered, 2)
	assert.Equal(t, "k1", d.delivered[0].DedupeKey)
	assert.Equal(t, "U", d.delivered[0].Recipient)
	assert.ElementsMatch(t, []string{"k1", "k2"}, ob.done)
	assert.Empty(t, ob.pending)
}

func TestRunner_KeepsFailedMessagesPending(t *testing.T) {
	ob := &memOutbox{}
	d := &fakeDeliverer{err: notification.ErrStorageUnavailable}
	enqueueIntent(t, ob, notification.Notification{Recipient: "U", Type: notification.TypeGeneral, Message: "a", DedupeKey: "k1"})

	r := NewOutboxRunner(zap.NewNop(), ob, MakeGlobalOutboxHandler(d, noRetry, nil), RunnerConfig{})
	assert.Equal(t, 0, r.tick(context.Background()))
	assert.Len(t, ob.pending, 1)

	d.err = nil
	assert.Equal(t, 1, r.tick(context.Background()))
	assert.Empty(t, ob.pending)
}

func TestRunner_DiscardsUnreadablePayloads(t *testing.T) {
	ob := &memOutbox{}
	require.NoError(t, ob.Enqueue(context.Background(), "bad", outbox.KindNotificationIntent, []byte("{")))

	r := NewOutboxRunner(zap.NewNop(), ob, MakeGlobalOutboxHandler(&fakeDeliverer{}, noRetry, nil), RunnerConfig{})
	assert.Equal(t, 1, r.tick(context.Background()))
	assert.Equal(t, []string{"bad"}, ob.done)
}

func TestRunner_UnknownKindStaysPending(t *testing.T) {
	ob := &memOutbox{}
	require.NoError(t, ob.Enqueue(context.Background(), "k", outbox.Kind(99), []byte("{}")))

	r := NewOutboxRunner(zap.NewNop(), ob, MakeGlobalOutboxHandler(&fakeDeliverer{}, noRetry, nil), RunnerConfig{})
	assert.Equal(t, 0, r.tick(context.Background()))
	assert.Len(t, ob.pending, 1)
}

func TestRunner_PickErrorIsSurvivable(t *testing.T) {
	ob := &memOutbox{pickErr: errors.New("db down")}
	r := NewOutboxRunner(zap.NewNop(), ob, MakeGlobalOutboxHandler(&fakeDeliverer{}, noRetry, nil), RunnerConfig{})
	assert.Equal(t, 0, r.tick(context.Background()))
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	ob := &memOutbox{}
	d := &fakeDeliverer{}
	enqueueIntent(t, ob, notification.Notification{Recipient: "U", Type: notification.TypeGeneral, Message: "a", DedupeKey: "k1"})

	r := NewOutboxRunner(zap.NewNop(), ob, MakeGlobalOutboxHandler(d, noRetry, nil),
		RunnerConfig{Workers: 2, WaitTime: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		ob.mu.Lock()
		defer ob.mu.Unlock()
		return len(ob.pending) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
}
