package kafka

import (
	"context"

	"github.com/NordCoder/Taskboard/internal/domain/notification"
)

type NotificationEvents interface {
	PublishNotificationCreated(ctx context.Context, n notification.Notification) error
}
