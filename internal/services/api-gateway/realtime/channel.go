package realtime

import (
	"sync"

	"github.com/NordCoder/Taskboard/internal/broker"
	"github.com/NordCoder/Taskboard/internal/domain/notification"
	"golang.org/x/net/websocket"
)

// peer serialises writes to one websocket connection.
type peer struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (p *peer) write(f Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return websocket.JSON.Send(p.conn, f)
}

// channel is the broker-facing side of a connection. Pushes go through a
// bounded queue drained by the connection's writer.
type channel struct {
	id       string
	identity string
	queue    chan Frame

	done      chan struct{}
	closeOnce sync.Once
}

var _ broker.Channel = (*channel)(nil)

func newChannel(id, identity string, buffer int) *channel {
	if buffer <= 0 {
		buffer = 1
	}
	return &channel{
		id:       id,
		identity: identity,
		queue:    make(chan Frame, buffer),
		done:     make(chan struct{}),
	}
}

func (c *channel) ID() string       { return c.id }
func (c *channel) Identity() string { return c.identity }

func (c *channel) Send(n notification.Notification) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.queue <- notificationFrame(n):
		return true
	default:
		return false
	}
}

// close stops the writer. The queue itself is never closed so a concurrent
// Send cannot panic.
func (c *channel) close() {
	c.closeOnce.Do(func() { close(c.done) })
}
