// Package broker fans newly created notifications out to the live channels
// bound to their recipient. Delivery is best-effort: nothing is queued for
// recipients without a bound channel.
package broker

import (
	"errors"
	"strings"
	"sync"

	"github.com/NordCoder/Taskboard/internal/domain/notification"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	ErrUnauthenticated  = errors.New("channel has no authenticated identity")
	ErrIdentityMismatch = errors.New("recipient does not match channel identity")
)

// Channel is one live client connection.
type Channel interface {
	ID() string
	// Identity is the user the channel was authenticated as, empty if none.
	Identity() string
	// Send must not block; it reports whether the notification was accepted.
	Send(n notification.Notification) bool
}

var (
	mBound = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "broker_bound_channels", Help: "Channels currently bound to a recipient.",
	})
	mPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broker_publish_total", Help: "Publish calls.",
	})
	mDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broker_delivered_total", Help: "Notifications accepted by a channel.",
	})
	mDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_dropped_total", Help: "Publishes not delivered to a channel.",
	}, []string{"reason"})
)

type binding struct {
	recipient string
	ch        Channel
}

type Broker struct {
	log *zap.Logger

	mu          sync.RWMutex
	byRecipient map[string]map[string]Channel
	byChannel   map[string]binding
}

func New(log *zap.Logger) *Broker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Broker{
		log:         log.With(zap.String("component", "broker")),
		byRecipient: make(map[string]map[string]Channel),
		byChannel:   make(map[string]binding),
	}
}

// Join binds ch to recipient, replacing any previous binding of the same
// channel. Channels without an identity, or whose identity differs from
// recipient, are refused and nothing is registered.
func (b *Broker) Join(ch Channel, recipient string) error {
	recipient = strings.TrimSpace(recipient)
	identity := strings.TrimSpace(ch.Identity())
	if identity == "" {
		return ErrUnauthenticated
	}
	if recipient != identity {
		return ErrIdentityMismatch
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := ch.ID()
	if prev, ok := b.byChannel[id]; ok {
		if prev.recipient == recipient {
			return nil
		}
		b.unbindLocked(id, prev.recipient)
	}

	group, ok := b.byRecipient[recipient]
	if !ok {
		group = make(map[string]Channel)
		b.byRecipient[recipient] = group
	}
	group[id] = ch
	b.byChannel[id] = binding{recipient: recipient, ch: ch}
	mBound.Inc()

	b.log.Debug("channel joined", zap.String("channel", id), zap.String("recipient", recipient))
	return nil
}

// Leave unbinds the channel. Unknown channels are ignored.
func (b *Broker) Leave(channelID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev, ok := b.byChannel[channelID]
	if !ok {
		return
	}
	b.unbindLocked(channelID, prev.recipient)
	b.log.Debug("channel left", zap.String("channel", channelID), zap.String("recipient", prev.recipient))
}

func (b *Broker) unbindLocked(channelID, recipient string) {
	delete(b.byChannel, channelID)
	if group, ok := b.byRecipient[recipient]; ok {
		delete(group, channelID)
		if len(group) == 0 {
			delete(b.byRecipient, recipient)
		}
	}
	mBound.Dec()
}

// Publish hands n to every channel bound to recipient when the call takes its
// snapshot of the registry and returns how many accepted it.
func (b *Broker) Publish(recipient string, n notification.Notification) int {
	mPublished.Inc()

	b.mu.RLock()
	group := b.byRecipient[recipient]
	targets := make([]Channel, 0, len(group))
	for _, ch := range group {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	if len(targets) == 0 {
		mDropped.WithLabelValues("no_channel").Inc()
		return 0
	}

	delivered := 0
	for _, ch := range targets {
		if ch.Send(n) {
			delivered++
			continue
		}
		mDropped.WithLabelValues("channel_full").Inc()
		b.log.Warn("push dropped", zap.String("channel", ch.ID()), zap.String("recipient", recipient),
			zap.String("notification", n.ID))
	}
	mDelivered.Add(float64(delivered))
	return delivered
}

// Recipient reports what the channel is bound to.
func (b *Broker) Recipient(channelID string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bnd, ok := b.byChannel[channelID]
	return bnd.recipient, ok
}

// Channels counts channels bound to recipient.
func (b *Broker) Channels(recipient string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byRecipient[recipient])
}
