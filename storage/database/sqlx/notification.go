package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pqasys/langcsebkg5-sub007/core/notification"
)

type preferenceRow struct {
	UserID   string `db:"user_id"`
	Category string `db:"category"`
	Email    bool   `db:"email"`
	InApp    bool   `db:"in_app"`
	Digest   string `db:"digest"`
}

func (r preferenceRow) preference() notification.Preference {
	return notification.Preference{Category: r.Category, Email: r.Email, InApp: r.InApp, Digest: r.Digest}
}

type notificationRow struct {
	ID        string      `db:"id"`
	UserID    string      `db:"user_id"`
	TenantID  null.String `db:"tenant_id"`
	Category  string      `db:"category"`
	Title     string      `db:"title"`
	Body      string      `db:"body"`
	ReadAt    null.Time   `db:"read_at"`
	CreatedAt time.Time   `db:"created_at"`
}

func (r notificationRow) notification() notification.Notification {
	return notification.Notification{
		ID:        r.ID,
		UserID:    r.UserID,
		TenantID:  r.TenantID.String,
		Category:  r.Category,
		Title:     r.Title,
		Body:      r.Body,
		ReadAt:    r.ReadAt.Ptr(),
		CreatedAt: r.CreatedAt,
	}
}

type notificationRepository struct {
	db *sqlx.DB
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(db *sqlx.DB) notification.Repository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) GetPreferences(ctx context.Context, userID string) ([]notification.Preference, error) {
	var rows []preferenceRow
	q := `SELECT user_id, category, email, in_app, digest FROM notification_preferences WHERE user_id = $1 ORDER BY category`
	if err := repo.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "selecting preferences")
	}
	prefs := make([]notification.Preference, len(rows))
	for i, r := range rows {
		prefs[i] = r.preference()
	}
	return prefs, nil
}

func (repo *notificationRepository) SavePreferences(ctx context.Context, userID string, prefs ...notification.Preference) error {
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := `INSERT INTO notification_preferences (user_id, category, email, in_app, digest) VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id, category) DO UPDATE SET email = EXCLUDED.email, in_app = EXCLUDED.in_app, digest = EXCLUDED.digest`
		for _, p := range prefs {
			if _, err := tx.ExecContext(ctx, q, userID, p.Category, p.Email, p.InApp, p.Digest); err != nil {
				return errors.Wrap(err, "upserting preference")
			}
		}
		return nil
	})
}

func (repo *notificationRepository) DeletePreferences(ctx context.Context, userID string) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM notification_preferences WHERE user_id = $1`, userID)
	return errors.Wrap(err, "deleting preferences")
}

func (repo *notificationRepository) QueryDigestSubscribers(ctx context.Context, digest string) (map[string][]notification.Preference, error) {
	var rows []preferenceRow
	q := `SELECT user_id, category, email, in_app, digest FROM notification_preferences
		WHERE email AND digest = $1 ORDER BY user_id, category`
	if err := repo.db.SelectContext(ctx, &rows, q, digest); err != nil {
		return nil, errors.Wrap(err, "selecting digest subscribers")
	}
	subs := make(map[string][]notification.Preference)
	for _, r := range rows {
		subs[r.UserID] = append(subs[r.UserID], r.preference())
	}
	return subs, nil
}

func (repo *notificationRepository) CreateNotifications(ctx context.Context, ns ...notification.Notification) ([]notification.Notification, error) {
	created := make([]notification.Notification, 0, len(ns))
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := `INSERT INTO notifications (id, user_id, tenant_id, category, title, body, read_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
		for _, n := range ns {
			n.ID = newID()
			_, err := tx.ExecContext(ctx, q, n.ID, n.UserID, nullString(n.TenantID), n.Category, n.Title, n.Body,
				null.TimeFromPtr(n.ReadAt), n.CreatedAt)
			if err != nil {
				return errors.Wrap(err, "inserting notification")
			}
			created = append(created, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (repo *notificationRepository) QueryNotifications(ctx context.Context, filter *notification.QueryFilter) ([]notification.Notification, error) {
	var where conditions
	where.add("user_id = ?", filter.UserID)
	if filter.UnreadOnly {
		where.add("read_at IS NULL")
	}
	if filter.Category != "" {
		where.add("category = ?", filter.Category)
	}
	if len(filter.Categories) > 0 {
		where.add("category = ANY(?)", pq.Array(filter.Categories))
	}
	if !filter.CreatedFrom.IsZero() {
		where.add("created_at >= ?", filter.CreatedFrom)
	}
	q := `SELECT id, user_id, tenant_id, category, title, body, read_at, created_at FROM notifications` +
		where.String() + ` ORDER BY created_at DESC, id`

	var rows []notificationRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), where.args...); err != nil {
		return nil, errors.Wrap(err, "selecting notifications")
	}
	ns := make([]notification.Notification, len(rows))
	for i, r := range rows {
		ns[i] = r.notification()
	}
	return ns, nil
}

func (repo *notificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var cnt int
	q := `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read_at IS NULL`
	if err := repo.db.GetContext(ctx, &cnt, q, userID); err != nil {
		return 0, errors.Wrap(err, "counting unread notifications")
	}
	return cnt, nil
}

func (repo *notificationRepository) MarkRead(ctx context.Context, userID string, at time.Time, ids ...string) (int, error) {
	var where conditions
	where.add("user_id = ?", userID)
	where.add("read_at IS NULL")
	if len(ids) > 0 {
		where.add("id::text = ANY(?)", pq.Array(ids))
	}
	args := append([]interface{}{at}, where.args...)
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(`UPDATE notifications SET read_at = ?`+where.String()), args...)
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications read")
	}
	return affected(res, nil)
}
