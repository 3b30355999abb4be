package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/NordCoder/Taskboard/internal/domain/notification"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var _ notification.Repo = (*NotificationRepoImpl)(nil)

type NotificationRepoImpl struct {
	db    *DB
	clock notification.Clock
}

func NewNotificationRepo(db *DB, clock notification.Clock) *NotificationRepoImpl {
	if clock == nil {
		clock = notification.NewMonotonicClock(nil)
	}
	return &NotificationRepoImpl{db: db, clock: clock}
}

const notifColumns = `id::text, recipient, type, message, read, related_task, related_project, sender, created_at`

const (
	qNotifInsert = `
INSERT INTO notifications (id, recipient, type, message, read, related_task, related_project, sender, dedupe_key, created_at)
VALUES ($1, $2, $3, $4, FALSE, $5, $6, $7, $8, $9)
ON CONFLICT (dedupe_key) DO NOTHING
RETURNING seq;
`
	qNotifByDedupe = `
SELECT ` + notifColumns + `
FROM notifications
WHERE dedupe_key = $1;
`
	qNotifPage = `
SELECT ` + notifColumns + `
FROM notifications
WHERE recipient = $1
ORDER BY created_at DESC, seq DESC
LIMIT $2 OFFSET $3;
`
	qNotifUnread = `
SELECT count(*)
FROM notifications
WHERE recipient = $1 AND read = FALSE;
`
	qNotifGet = `
SELECT ` + notifColumns + `
FROM notifications
WHERE id = $1 AND recipient = $2;
`
	qNotifMarkRead = `
UPDATE notifications
SET read = TRUE
WHERE id = $1 AND recipient = $2;
`
	qNotifMarkAllRead = `
UPDATE notifications
SET read = TRUE
WHERE recipient = $1 AND read = FALSE;
`
	qNotifDelete = `DELETE FROM notifications WHERE id = $1 AND recipient = $2;`
)

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(notification.ErrStorageUnavailable, err))
}

func scanNotification(row pgx.Row, n *notification.Notification) error {
	var typ string
	if err := row.Scan(
		&n.ID,
		&n.Recipient,
		&typ,
		&n.Message,
		&n.Read,
		&n.RelatedTask,
		&n.RelatedProject,
		&n.Sender,
		&n.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notification.ErrNotFound
		}
		return unavailable("scan notification", err)
	}
	n.Type = notification.Type(typ)
	n.CreatedAt = n.CreatedAt.UTC()
	return nil
}

func (r *NotificationRepoImpl) Create(ctx context.Context, n *notification.Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.Read = false
	n.CreatedAt = r.clock.Now()

	eq := r.db.execQueryer(ctx)
	var seq int64
	err := eq.QueryRow(ctx, qNotifInsert,
		n.ID,
		n.Recipient,
		string(n.Type),
		n.Message,
		n.RelatedTask,
		n.RelatedProject,
		n.Sender,
		nullString(n.DedupeKey),
		n.CreatedAt,
	).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) && n.DedupeKey != "" {
		// already delivered once; hand back the stored record
		key := n.DedupeKey
		if err := scanNotification(eq.QueryRow(ctx, qNotifByDedupe, key), n); err != nil {
			return err
		}
		n.DedupeKey = key
		return nil
	}
	if err != nil {
		return unavailable("insert notification", err)
	}
	return nil
}

func (r *NotificationRepoImpl) List(ctx context.Context, recipient string, limit, offset int) (*notification.Page, error) {
	limit = notification.NormalizeLimit(limit)
	if offset < 0 {
		offset = 0
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	// page and counter come from one snapshot
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, unavailable("begin list", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, qNotifPage, recipient, limit, offset)
	if err != nil {
		return nil, unavailable("query notifications", err)
	}
	defer rows.Close()

	page := &notification.Page{Notifications: make([]notification.Notification, 0, limit)}
	for rows.Next() {
		var n notification.Notification
		if err := scanNotification(rows, &n); err != nil {
			return nil, err
		}
		page.Notifications = append(page.Notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("rows", err)
	}
	rows.Close()

	if err := tx.QueryRow(ctx, qNotifUnread, recipient).Scan(&page.UnreadCount); err != nil {
		return nil, unavailable("count unread", err)
	}
	return page, nil
}

func (r *NotificationRepoImpl) Get(ctx context.Context, recipient, id string) (*notification.Notification, error) {
	if !validUUID(id) {
		return nil, notification.ErrNotFound
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var n notification.Notification
	if err := scanNotification(r.db.execQueryer(ctx).QueryRow(ctx, qNotifGet, id, recipient), &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepoImpl) MarkRead(ctx context.Context, recipient, id string) error {
	if !validUUID(id) {
		return notification.ErrNotFound
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	cmd, err := r.db.execQueryer(ctx).Exec(ctx, qNotifMarkRead, id, recipient)
	if err != nil {
		return unavailable("mark read", err)
	}
	if cmd.RowsAffected() == 0 {
		return notification.ErrNotFound
	}
	return nil
}

func (r *NotificationRepoImpl) MarkAllRead(ctx context.Context, recipient string) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	cmd, err := r.db.execQueryer(ctx).Exec(ctx, qNotifMarkAllRead, recipient)
	if err != nil {
		return 0, unavailable("mark all read", err)
	}
	return cmd.RowsAffected(), nil
}

func (r *NotificationRepoImpl) Delete(ctx context.Context, recipient, id string) error {
	if !validUUID(id) {
		return notification.ErrNotFound
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	cmd, err := r.db.execQueryer(ctx).Exec(ctx, qNotifDelete, id, recipient)
	if err != nil {
		return unavailable("delete notification", err)
	}
	if cmd.RowsAffected() == 0 {
		return notification.ErrNotFound
	}
	return nil
}
