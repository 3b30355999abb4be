package notifyclient

import "sync"

// mailbox is the agent's local view: a bounded window of the newest entries
// plus the unread counter of the whole mailbox.
type mailbox struct {
	mu       sync.Mutex
	capacity int
	items    []Notification
	unread   int64
}

func newMailbox(capacity int) *mailbox {
	return &mailbox{capacity: capacity}
}

func (m *mailbox) seed(p *Page) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := min(len(p.Notifications), m.capacity)
	m.items = append(m.items[:0:0], p.Notifications[:n]...)
	m.unread = max(p.UnreadCount, 0)
}

// push prepends n. Entries already in the window are ignored.
func (m *mailbox) push(n Notification) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.indexLocked(n.ID) >= 0 {
		return false
	}
	m.items = append([]Notification{n}, m.items...)
	if len(m.items) > m.capacity {
		m.items = m.items[:m.capacity]
	}
	if !n.Read {
		m.unread++
	}
	return true
}

// markRead reports whether id was in the window.
func (m *mailbox) markRead(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexLocked(id)
	if i < 0 {
		return false
	}
	if !m.items[i].Read {
		m.items[i].Read = true
		m.decUnreadLocked()
	}
	return true
}

func (m *mailbox) markAllRead() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.items {
		m.items[i].Read = true
	}
	m.unread = 0
}

// remove reports whether id was in the window.
func (m *mailbox) remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexLocked(id)
	if i < 0 {
		return false
	}
	if !m.items[i].Read {
		m.decUnreadLocked()
	}
	m.items = append(m.items[:i], m.items[i+1:]...)
	return true
}

func (m *mailbox) setUnread(n int64) {
	m.mu.Lock()
	m.unread = max(n, 0)
	m.mu.Unlock()
}

func (m *mailbox) snapshot() ([]Notification, int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notification(nil), m.items...), m.unread
}

func (m *mailbox) decUnreadLocked() {
	if m.unread > 0 {
		m.unread--
	}
}

func (m *mailbox) indexLocked(id string) int {
	for i := range m.items {
		if m.items[i].ID == id {
			return i
		}
	}
	return -1
}
