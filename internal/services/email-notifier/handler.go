package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Taskboard/internal/domain/notification"
	"github.com/NordCoder/Taskboard/internal/domain/user"
	"github.com/NordCoder/Taskboard/internal/obs"
	"github.com/NordCoder/Taskboard/internal/obs/retry"
	"go.uber.org/zap"
)

// Event is the part of a NotificationCreated message the notifier reads.
type Event struct {
	ID          string
	Recipient   string
	Type        notification.Type
	Message     string
	RelatedTask *string
	CreatedAt   time.Time
}

type EmailLookup interface {
	Email(ctx context.Context, userID string) (string, error)
}

// Mailed lists the notification types that are also sent by email.
var Mailed = map[notification.Type]string{
	notification.TypeTaskAssigned:        "New task assigned",
	notification.TypeTaskCompleted:       "Task completed",
	notification.TypeDeadlineApproaching: "Deadline approaching",
}

type Handler struct {
	Users EmailLookup
	Out   notification.EmailSender
	Retry retry.Policy
	Log   *zap.Logger
}

// HandleNotification mails ev to its recipient when the type is mailed.
// Returns nil for events that can never be mailed so the consumer commits them.
func (h *Handler) HandleNotification(ctx context.Context, ev Event) error {
	if h.Log == nil {
		h.Log = zap.NewNop()
	}
	log := obs.WithTrace(ctx, h.Log).With(
		zap.String("notification_id", ev.ID),
		zap.String("recipient", ev.Recipient),
		zap.String("type", string(ev.Type)),
	)

	subject, ok := Mailed[ev.Type]
	if !ok {
		skipped.WithLabelValues("type").Inc()
		return nil
	}

	to, err := h.Users.Email(ctx, ev.Recipient)
	if errors.Is(err, user.ErrNotFound) || (err == nil && to == "") {
		skipped.WithLabelValues("no_address").Inc()
		log.Info("recipient has no email address")
		return nil
	}
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	text := body(ev)
	err = retry.Do(ctx, func() error { return h.Out.Send(ctx, to, subject, text) }, h.Retry)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	sent.Inc()
	log.Debug("email sent")
	return nil
}

func body(ev Event) string {
	b := fmt.Sprintf("Hello!\n\n%s\n", ev.Message)
	if ev.RelatedTask != nil {
		b += fmt.Sprintf("\nTask: %s\n", *ev.RelatedTask)
	}
	b += fmt.Sprintf("\nSent at %s.\n\nTaskboard", ev.CreatedAt.UTC().Format(time.RFC3339))
	return b
}
