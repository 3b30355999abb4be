package repo

import (
	"context"

	"github.com/NordCoder/Taskboard/internal/domain/user"
)

// UserReader narrows user.Repo to the lookup the notifier needs.
type UserReader struct{ R user.Repo }

func (a UserReader) Email(ctx context.Context, id string) (string, error) {
	u, err := a.R.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Email, nil
}
