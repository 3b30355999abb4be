package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Taskboard/internal/domain/user"
)

var _ user.Repo = (*UserRepo)(nil)

type UserRepo struct{ s *Store }

func NewUserRepo(s *Store) *UserRepo { return &UserRepo{s: s} }

func (r *UserRepo) Upsert(ctx context.Context, u *user.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if _, err := r.s.db.ExecContext(ctx, `
INSERT INTO users (id, email, name, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET email = excluded.email, name = excluded.name`,
		u.ID, u.Email, u.Name, u.CreatedAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("user upsert: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*user.User, error) {
	var row struct {
		ID        string `db:"id"`
		Email     string `db:"email"`
		Name      string `db:"name"`
		CreatedAt int64  `db:"created_at"`
	}
	err := r.s.db.GetContext(ctx, &row, `SELECT id, email, name, created_at FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, user.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user.User{ID: row.ID, Email: row.Email, Name: row.Name, CreatedAt: time.Unix(0, row.CreatedAt).UTC()}, nil
}
