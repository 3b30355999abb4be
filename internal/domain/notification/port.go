package notification

import "context"

type Repo interface {
	Create(ctx context.Context, n *Notification) error
	List(ctx context.Context, recipient string, limit, offset int) (*Page, error)
	// MarkRead is scoped to the recipient: ids owned by others are ErrNotFound.
	MarkRead(ctx context.Context, recipient, id string) error
	MarkAllRead(ctx context.Context, recipient string) (int64, error)
	Delete(ctx context.Context, recipient, id string) error
	Get(ctx context.Context, recipient, id string) (*Notification, error)
}
