package broker

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/NordCoder/Taskboard/internal/domain/notification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	id       string
	identity string
	full     atomic.Bool

	mu  sync.Mutex
	got []notification.Notification
}

func newFake(id, identity string) *fakeChannel { return &fakeChannel{id: id, identity: identity} }

func (f *fakeChannel) ID() string       { return f.id }
func (f *fakeChannel) Identity() string { return f.identity }
func (f *fakeChannel) Send(n notification.Notification) bool {
	if f.full.Load() {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, n)
	return true
}

func (f *fakeChannel) received() []notification.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notification.Notification(nil), f.got...)
}

func note(id string) notification.Notification {
	return notification.Notification{ID: id, Recipient: "u1", Type: notification.TypeGeneral, Message: id}
}

func TestBroker_PublishReachesBoundChannelsOnly(t *testing.T) {
	b := New(nil)
	phone, laptop, other := newFake("c1", "u1"), newFake("c2", "u1"), newFake("c3", "u2")
	require.NoError(t, b.Join(phone, "u1"))
	require.NoError(t, b.Join(laptop, "u1"))
	require.NoError(t, b.Join(other, "u2"))

	assert.Equal(t, 2, b.Publish("u1", note("n1")))

	assert.Len(t, phone.received(), 1)
	assert.Len(t, laptop.received(), 1)
	assert.Empty(t, other.received())
}

func TestBroker_NothingAfterLeave(t *testing.T) {
	b := New(nil)
	ch := newFake("c1", "u1")
	require.NoError(t, b.Join(ch, "u1"))

	b.Publish("u1", note("n1"))
	b.Leave("c1")
	b.Leave("c1")
	assert.Equal(t, 0, b.Publish("u1", note("n2")))

	got := ch.received()
	require.Len(t, got, 1)
	assert.Equal(t, "n1", got[0].ID)
	_, bound := b.Recipient("c1")
	assert.False(t, bound)
}

func TestBroker_PublishWithoutChannelsIsDropped(t *testing.T) {
	b := New(nil)
	assert.Equal(t, 0, b.Publish("nobody", note("n1")))
}

func TestBroker_JoinRefusesUnauthenticated(t *testing.T) {
	b := New(nil)

	assert.ErrorIs(t, b.Join(newFake("c1", ""), "u1"), ErrUnauthenticated)
	assert.ErrorIs(t, b.Join(newFake("c2", "u2"), "u1"), ErrIdentityMismatch)
	assert.Equal(t, 0, b.Channels("u1"))
	assert.Equal(t, 0, b.Publish("u1", note("n1")))
}

func TestBroker_RejoinIsIdempotent(t *testing.T) {
	b := New(nil)
	ch := newFake("c1", "u1")
	require.NoError(t, b.Join(ch, "u1"))
	require.NoError(t, b.Join(ch, "u1"))

	assert.Equal(t, 1, b.Channels("u1"))
	assert.Equal(t, 1, b.Publish("u1", note("n1")))
	assert.Len(t, ch.received(), 1)
}

func TestBroker_FullChannelDoesNotBlockOthers(t *testing.T) {
	b := New(nil)
	slow, fast := newFake("c1", "u1"), newFake("c2", "u1")
	slow.full.Store(true)
	require.NoError(t, b.Join(slow, "u1"))
	require.NoError(t, b.Join(fast, "u1"))

	assert.Equal(t, 1, b.Publish("u1", note("n1")))
	assert.Len(t, fast.received(), 1)
}

func TestBroker_ConcurrentJoinLeavePublish(t *testing.T) {
	b := New(nil)
	const recipients, perRecipient = 8, 16

	stable := make([]*fakeChannel, recipients)
	for r := 0; r < recipients; r++ {
		stable[r] = newFake(fmt.Sprintf("stable-%d", r), fmt.Sprintf("u%d", r))
		require.NoError(t, b.Join(stable[r], fmt.Sprintf("u%d", r)))
	}

	var wg sync.WaitGroup
	for r := 0; r < recipients; r++ {
		recipient := fmt.Sprintf("u%d", r)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < perRecipient; i++ {
				ch := newFake(fmt.Sprintf("%s-%d", recipient, i), recipient)
				_ = b.Join(ch, recipient)
				b.Leave(ch.ID())
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < perRecipient; i++ {
				b.Publish(recipient, note(fmt.Sprintf("%s-n%d", recipient, i)))
			}
		}()
	}
	wg.Wait()

	for r := 0; r < recipients; r++ {
		assert.Len(t, stable[r].received(), perRecipient)
		assert.Equal(t, 1, b.Channels(fmt.Sprintf("u%d", r)))
	}
}
