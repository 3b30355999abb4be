package trigger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/NordCoder/Taskboard/internal/domain/notification"
	"github.com/NordCoder/Taskboard/internal/domain/outbox"
	"github.com/NordCoder/Taskboard/internal/domain/task"
)

// Intent is the outbox payload for one notification still to be delivered.
type Intent struct {
	Recipient      string            `json:"recipient"`
	Type           notification.Type `json:"type"`
	Message        string            `json:"message"`
	RelatedTask    *string           `json:"related_task,omitempty"`
	RelatedProject *string           `json:"related_project,omitempty"`
	Sender         *string           `json:"sender,omitempty"`
	DedupeKey      string            `json:"dedupe_key"`
}

func IntentFrom(n notification.Notification) Intent {
	return Intent{
		Recipient:      n.Recipient,
		Type:           n.Type,
		Message:        n.Message,
		RelatedTask:    n.RelatedTask,
		RelatedProject: n.RelatedProject,
		Sender:         n.Sender,
		DedupeKey:      n.DedupeKey,
	}
}

func (i Intent) Notification() notification.Notification {
	return notification.Notification{
		Recipient:      i.Recipient,
		Type:           i.Type,
		Message:        i.Message,
		RelatedTask:    i.RelatedTask,
		RelatedProject: i.RelatedProject,
		Sender:         i.Sender,
		DedupeKey:      i.DedupeKey,
	}
}

// OutboxRecorder writes notification intents into the outbox. Called inside
// the task transaction, the intents commit or roll back with the task.
type OutboxRecorder struct {
	repo outbox.Repository
}

func NewOutboxRecorder(repo outbox.Repository) *OutboxRecorder {
	return &OutboxRecorder{repo: repo}
}

func (r *OutboxRecorder) OnMutation(ctx context.Context, m task.Mutation, actor string) error {
	for _, n := range Evaluate(m, actor) {
		if err := r.Record(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (r *OutboxRecorder) Record(ctx context.Context, n notification.Notification) error {
	data, err := json.Marshal(IntentFrom(n))
	if err != nil {
		return fmt.Errorf("marshal intent: %w", err)
	}
	if err := r.repo.Enqueue(ctx, n.DedupeKey, outbox.KindNotificationIntent, data); err != nil {
		return fmt.Errorf("enqueue intent: %w", err)
	}
	return nil
}
