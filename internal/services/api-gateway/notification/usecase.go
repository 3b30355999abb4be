package notification

import (
	"context"
	"strings"

	"github.com/NordCoder/Taskboard/internal/domain/notification"
)

// Deliverer durably creates a notification and pushes it to live channels.
type Deliverer interface {
	Deliver(ctx context.Context, n *notification.Notification) error
}

type Usecase struct {
	repo    notification.Repo
	deliver Deliverer
}

func NewUsecase(repo notification.Repo, deliver Deliverer) *Usecase {
	return &Usecase{repo: repo, deliver: deliver}
}

func (u *Usecase) List(ctx context.Context, recipient string, limit, offset int) (*notification.Page, error) {
	return u.repo.List(ctx, recipient, limit, offset)
}

// Get returns one of recipient's notifications; other mailboxes are ErrNotFound.
func (u *Usecase) Get(ctx context.Context, recipient, id string) (*notification.Notification, error) {
	return u.repo.Get(ctx, recipient, id)
}

func (u *Usecase) MarkRead(ctx context.Context, recipient, id string) error {
	return u.repo.MarkRead(ctx, recipient, id)
}

func (u *Usecase) MarkAllRead(ctx context.Context, recipient string) (int64, error) {
	return u.repo.MarkAllRead(ctx, recipient)
}

func (u *Usecase) Delete(ctx context.Context, recipient, id string) error {
	return u.repo.Delete(ctx, recipient, id)
}

type SendInput struct {
	Recipient      string            `json:"recipient"`
	Type           notification.Type `json:"type"`
	Message        string            `json:"message"`
	RelatedTask    *string           `json:"relatedTask,omitempty"`
	RelatedProject *string           `json:"relatedProject,omitempty"`
}

// Send creates a general or mention notification on behalf of sender. Task
// notifications come only from the trigger rules.
func (u *Usecase) Send(ctx context.Context, sender string, in SendInput) (*notification.Notification, error) {
	if in.Type != notification.TypeGeneral && in.Type != notification.TypeMention {
		return nil, notification.ErrInvalidType
	}
	n := &notification.Notification{
		Recipient:      strings.TrimSpace(in.Recipient),
		Type:           in.Type,
		Message:        strings.TrimSpace(in.Message),
		RelatedTask:    in.RelatedTask,
		RelatedProject: in.RelatedProject,
		Sender:         &sender,
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	if err := u.deliver.Deliver(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}
