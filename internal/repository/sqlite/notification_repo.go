package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Taskboard/internal/domain/notification"
	"github.com/google/uuid"
)

var _ notification.Repo = (*NotificationRepo)(nil)

type NotificationRepo struct {
	s     *Store
	clock notification.Clock
}

func NewNotificationRepo(s *Store, clock notification.Clock) *NotificationRepo {
	if clock == nil {
		clock = notification.NewMonotonicClock(nil)
	}
	return &NotificationRepo{s: s, clock: clock}
}

type notificationRow struct {
	ID             string         `db:"id"`
	Recipient      string         `db:"recipient"`
	Type           string         `db:"type"`
	Message        string         `db:"message"`
	Read           bool           `db:"read"`
	RelatedTask    sql.NullString `db:"related_task"`
	RelatedProject sql.NullString `db:"related_project"`
	Sender         sql.NullString `db:"sender"`
	CreatedAt      int64          `db:"created_at"`
}

func (r notificationRow) toDomain() notification.Notification {
	return notification.Notification{
		ID:             r.ID,
		Recipient:      r.Recipient,
		Type:           notification.Type(r.Type),
		Message:        r.Message,
		Read:           r.Read,
		RelatedTask:    fromNull(r.RelatedTask),
		RelatedProject: fromNull(r.RelatedProject),
		Sender:         fromNull(r.Sender),
		CreatedAt:      time.Unix(0, r.CreatedAt).UTC(),
	}
}

const notifColumns = `id, recipient, type, message, read, related_task, related_project, sender, created_at`

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(notification.ErrStorageUnavailable, err))
}

func (r *NotificationRepo) Create(ctx context.Context, n *notification.Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.Read = false
	n.CreatedAt = r.clock.Now()

	res, err := r.s.db.ExecContext(ctx, `
INSERT INTO notifications (id, recipient, type, message, read, related_task, related_project, sender, dedupe_key, created_at)
VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?, ?)
ON CONFLICT (dedupe_key) DO NOTHING`,
		n.ID, n.Recipient, string(n.Type), n.Message,
		toNull(n.RelatedTask), toNull(n.RelatedProject), toNull(n.Sender),
		nullKey(n.DedupeKey), n.CreatedAt.UnixNano(),
	)
	if err != nil {
		return unavailable("insert notification", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 && n.DedupeKey != "" {
		var row notificationRow
		if err := r.s.db.GetContext(ctx, &row,
			`SELECT `+notifColumns+` FROM notifications WHERE dedupe_key = ?`, n.DedupeKey); err != nil {
			return unavailable("load deduplicated notification", err)
		}
		key := n.DedupeKey
		*n = row.toDomain()
		n.DedupeKey = key
	}
	return nil
}

func (r *NotificationRepo) List(ctx context.Context, recipient string, limit, offset int) (*notification.Page, error) {
	limit = notification.NormalizeLimit(limit)
	if offset < 0 {
		offset = 0
	}

	tx, err := r.s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin list", err)
	}
	defer func() { _ = tx.Rollback() }()

	var rows []notificationRow
	if err := tx.SelectContext(ctx, &rows, `
SELECT `+notifColumns+`
FROM notifications
WHERE recipient = ?
ORDER BY created_at DESC, seq DESC
LIMIT ? OFFSET ?`, recipient, limit, offset); err != nil {
		return nil, unavailable("query notifications", err)
	}

	page := &notification.Page{Notifications: make([]notification.Notification, 0, len(rows))}
	for _, row := range rows {
		page.Notifications = append(page.Notifications, row.toDomain())
	}
	if err := tx.GetContext(ctx, &page.UnreadCount,
		`SELECT count(*) FROM notifications WHERE recipient = ? AND read = 0`, recipient); err != nil {
		return nil, unavailable("count unread", err)
	}
	return page, nil
}

func (r *NotificationRepo) Get(ctx context.Context, recipient, id string) (*notification.Notification, error) {
	var row notificationRow
	err := r.s.db.GetContext(ctx, &row,
		`SELECT `+notifColumns+` FROM notifications WHERE id = ? AND recipient = ?`, id, recipient)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notification.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get notification", err)
	}
	n := row.toDomain()
	return &n, nil
}

func (r *NotificationRepo) MarkRead(ctx context.Context, recipient, id string) error {
	res, err := r.s.db.ExecContext(ctx,
		`UPDATE notifications SET read = 1 WHERE id = ? AND recipient = ?`, id, recipient)
	if err != nil {
		return unavailable("mark read", err)
	}
	return requireAffected(res)
}

func (r *NotificationRepo) MarkAllRead(ctx context.Context, recipient string) (int64, error) {
	res, err := r.s.db.ExecContext(ctx,
		`UPDATE notifications SET read = 1 WHERE recipient = ? AND read = 0`, recipient)
	if err != nil {
		return 0, unavailable("mark all read", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable("rows affected", err)
	}
	return n, nil
}

func (r *NotificationRepo) Delete(ctx context.Context, recipient, id string) error {
	res, err := r.s.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE id = ? AND recipient = ?`, id, recipient)
	if err != nil {
		return unavailable("delete notification", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("rows affected", err)
	}
	if n == 0 {
		return notification.ErrNotFound
	}
	return nil
}

func toNull(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNull(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullKey(k string) sql.NullString {
	return sql.NullString{String: k, Valid: k != ""}
}
