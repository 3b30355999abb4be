package notification

import (
	"context"
	"errors"
	"sync"
	"time"
)

type Type string

const (
	TypeTaskAssigned        Type = "task_assigned"
	TypeTaskUpdated         Type = "task_updated"
	TypeTaskCompleted       Type = "task_completed"
	TypeDeadlineApproaching Type = "deadline_approaching"
	TypeMention             Type = "mention"
	TypeGeneral             Type = "general"
)

func (t Type) Valid() bool {
	switch t {
	case TypeTaskAssigned, TypeTaskUpdated, TypeTaskCompleted,
		TypeDeadlineApproaching, TypeMention, TypeGeneral:
		return true
	}
	return false
}

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

var (
	ErrNotFound           = errors.New("notification not found")
	ErrStorageUnavailable = errors.New("notification storage unavailable")
	ErrInvalidType        = errors.New("invalid notification type")
	ErrInvalid            = errors.New("invalid notification")
)

// Notification is one entry of a recipient's mailbox. Only Read changes after
// creation.
type Notification struct {
	ID             string    `json:"id"`
	Recipient      string    `json:"recipient"`
	Type           Type      `json:"type"`
	Message        string    `json:"message"`
	Read           bool      `json:"read"`
	RelatedTask    *string   `json:"relatedTask,omitempty"`
	RelatedProject *string   `json:"relatedProject,omitempty"`
	Sender         *string   `json:"sender,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`

	// DedupeKey makes Create idempotent for redelivered outbox intents.
	DedupeKey string `json:"-"`
}

func (n *Notification) Validate() error {
	if n.Recipient == "" {
		return errors.Join(ErrInvalid, errors.New("recipient is required"))
	}
	if n.Message == "" {
		return errors.Join(ErrInvalid, errors.New("message is required"))
	}
	if !n.Type.Valid() {
		return ErrInvalidType
	}
	return nil
}

// Page is a slice of a mailbox plus the unread count of the whole mailbox.
type Page struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int64          `json:"unreadCount"`
}

func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Clock interface {
	Now() time.Time
}

// MonotonicClock never returns the same instant twice, so creation order is
// total even for notifications written within one clock tick.
type MonotonicClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func NewMonotonicClock(now func() time.Time) *MonotonicClock {
	if now == nil {
		now = time.Now
	}
	return &MonotonicClock{now: now}
}

func (c *MonotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}
