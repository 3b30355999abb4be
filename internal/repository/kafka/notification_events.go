package kafka

import (
	"context"
	"time"

	"github.com/NordCoder/Taskboard/internal/domain/kafka"
	"github.com/NordCoder/Taskboard/internal/domain/notification"
)

const DefaultNotificationsTopic = "taskboard.notifications"

// NotificationCreated is the event written for every stored notification.
type NotificationCreated struct {
	ID             string            `json:"id"`
	Recipient      string            `json:"recipient"`
	Type           notification.Type `json:"type"`
	Message        string            `json:"message"`
	RelatedTask    *string           `json:"related_task,omitempty"`
	RelatedProject *string           `json:"related_project,omitempty"`
	Sender         *string           `json:"sender,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

type NotificationEventsKafka struct {
	p *Producer
}

func NewNotificationEventsKafka(p *Producer) *NotificationEventsKafka {
	return &NotificationEventsKafka{p: p}
}

var _ kafka.NotificationEvents = (*NotificationEventsKafka)(nil)

func (e *NotificationEventsKafka) PublishNotificationCreated(ctx context.Context, n notification.Notification) error {
	return e.p.PublishJSON(ctx, []byte(n.Recipient), NotificationCreated{
		ID:             n.ID,
		Recipient:      n.Recipient,
		Type:           n.Type,
		Message:        n.Message,
		RelatedTask:    n.RelatedTask,
		RelatedProject: n.RelatedProject,
		Sender:         n.Sender,
		CreatedAt:      n.CreatedAt,
	})
}
