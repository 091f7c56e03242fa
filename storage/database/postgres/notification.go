package pgrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/nyumbani/core"
	"github.com/trezcool/nyumbani/core/notification"
)

type notificationRepository struct {
	db     *sqlx.DB
	dsn    string
	logger core.Logger
}

var (
	_ notification.Repository = (*notificationRepository)(nil) // interface compliance check
	_ notification.Watcher    = (*notificationRepository)(nil)
)

// NewNotificationRepository needs the connection string on top of the pool:
// the watcher opens its own LISTEN connection per subscriber.
func NewNotificationRepository(db *sqlx.DB, dsn string, logger core.Logger) *notificationRepository {
	return &notificationRepository{db: db, dsn: dsn, logger: logger}
}

type notificationRow struct {
	ID        string      `db:"id"`
	Title     string      `db:"title"`
	Message   string      `db:"message"`
	Type      string      `db:"type"`
	Target    string      `db:"target"`
	Read      bool        `db:"read"`
	Sender    null.String `db:"sender"`
	CreatedAt time.Time   `db:"created_at"`
}

func (r notificationRow) notification() notification.Notification {
	return notification.Notification{
		ID:        r.ID,
		Title:     r.Title,
		Message:   r.Message,
		Type:      r.Type,
		Target:    r.Target,
		Read:      r.Read,
		Sender:    r.Sender,
		CreatedAt: r.CreatedAt,
	}
}

const notificationColumns = `id, title, message, type, target, read, sender, created_at`

func (repo notificationRepository) CreateNotification(ctx context.Context, nf notification.Notification) (notification.Notification, error) {
	q := `
INSERT INTO notification (title, message, type, target, sender, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + notificationColumns

	var row notificationRow
	err := repo.db.GetContext(ctx, &row, q, nf.Title, nf.Message, nf.Type, nf.Target, nf.Sender, nf.CreatedAt)
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "creating notification")
	}
	return row.notification(), nil
}

func (repo notificationRepository) GetNotificationByID(ctx context.Context, id string) (notification.Notification, error) {
	var row notificationRow
	q := `SELECT ` + notificationColumns + ` FROM notification WHERE id = $1`
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notification.Notification{}, notification.ErrNotFound
		}
		return notification.Notification{}, errors.Wrap(err, "getting notification")
	}
	return row.notification(), nil
}

func (repo notificationRepository) QueryVisibleTo(ctx context.Context, userID string, groups []string) ([]notification.Notification, error) {
	q := `
SELECT ` + notificationColumns + `
FROM notification
WHERE target = $1 OR target = ANY($2)
ORDER BY created_at DESC`

	var rows []notificationRow
	if err := repo.db.SelectContext(ctx, &rows, q, userID, pq.Array(groups)); err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	all := make([]notification.Notification, 0, len(rows))
	for _, r := range rows {
		all = append(all, r.notification())
	}
	return all, nil
}

func (repo notificationRepository) MarkNotificationRead(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `UPDATE notification SET read = TRUE WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "marking notification read")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notification.ErrNotFound
	}
	return nil
}

func (repo notificationRepository) UnreadIDsFor(ctx context.Context, userID string, groups []string) ([]string, error) {
	q := `
SELECT id
FROM notification
WHERE NOT read AND (target = $1 OR target = ANY($2))
ORDER BY id`

	var ids []string
	if err := repo.db.SelectContext(ctx, &ids, q, userID, pq.Array(groups)); err != nil {
		return nil, errors.Wrap(err, "querying unread notifications")
	}
	return ids, nil
}
