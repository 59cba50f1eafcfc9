package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trash2action-backend/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const notificationColumns = `id::text, recipient_id, recipient_role, type, title, message,
	related_id, related_type, is_read, created_at`

// NotificationRepository keeps notifications and the per-recipient unread
// counter in step: every statement that flips read state adjusts the counter
// in the same write.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

func scanNotification(row pgx.Row) (*model.Notification, error) {
	n := &model.Notification{}
	err := row.Scan(&n.ID, &n.RecipientID, &n.RecipientRole, &n.Type, &n.Title, &n.Message,
		&n.RelatedID, &n.RelatedType, &n.Read, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return n, nil
}

func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) (*model.Notification, error) {
	stored, err := scanNotification(r.pool.QueryRow(ctx, `
		WITH n AS (
			INSERT INTO notifications (recipient_id, recipient_role, type, title, message, related_id, related_type)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING `+notificationColumns+`
		), c AS (
			INSERT INTO notification_counters (recipient_id, recipient_role, unread)
			VALUES ($1, $2, 1)
			ON CONFLICT (recipient_id, recipient_role)
			DO UPDATE SET unread = notification_counters.unread + 1
		)
		SELECT * FROM n
	`, n.RecipientID, n.RecipientRole, n.Type, n.Title, n.Message, n.RelatedID, n.RelatedType))
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	return stored, nil
}

func (r *NotificationRepository) Get(ctx context.Context, id string) (*model.Notification, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.ErrNotFound
	}
	return scanNotification(r.pool.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
}

// ListFor returns up to limit notifications of rcpt, newest first, and the
// recipient's unread counter.
func (r *NotificationRepository) ListFor(ctx context.Context, rcpt model.Recipient, limit int) ([]model.Notification, int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE recipient_id = $1 AND recipient_role = $2
		ORDER BY created_at DESC, id DESC
		LIMIT NULLIF($3, 0)
	`, rcpt.ID, rcpt.Role, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var items []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var unread int
	err = r.pool.QueryRow(ctx, `
		SELECT unread FROM notification_counters WHERE recipient_id = $1 AND recipient_role = $2
	`, rcpt.ID, rcpt.Role).Scan(&unread)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, fmt.Errorf("read unread counter: %w", err)
	}
	return items, unread, nil
}

// MarkRead is idempotent: the counter only moves when the row flips.
func (r *NotificationRepository) MarkRead(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return model.ErrNotFound
	}

	var exists bool
	err := r.pool.QueryRow(ctx, `
		WITH n AS (
			UPDATE notifications SET is_read = TRUE
			WHERE id = $1 AND NOT is_read
			RETURNING recipient_id, recipient_role
		), c AS (
			UPDATE notification_counters nc SET unread = GREATEST(nc.unread - 1, 0)
			FROM n
			WHERE nc.recipient_id = n.recipient_id AND nc.recipient_role = n.recipient_role
		)
		SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1)
	`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if !exists {
		return model.ErrNotFound
	}
	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, rcpt model.Recipient) (int64, error) {
	var flipped int64
	err := r.pool.QueryRow(ctx, `
		WITH n AS (
			UPDATE notifications SET is_read = TRUE
			WHERE recipient_id = $1 AND recipient_role = $2 AND NOT is_read
			RETURNING 1
		), c AS (
			UPDATE notification_counters
			SET unread = GREATEST(unread - (SELECT COUNT(*) FROM n), 0)
			WHERE recipient_id = $1 AND recipient_role = $2
		)
		SELECT COUNT(*) FROM n
	`, rcpt.ID, rcpt.Role).Scan(&flipped)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return flipped, nil
}

func (r *NotificationRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return model.ErrNotFound
	}

	var deleted int64
	err := r.pool.QueryRow(ctx, `
		WITH n AS (
			DELETE FROM notifications WHERE id = $1
			RETURNING recipient_id, recipient_role, is_read
		), c AS (
			UPDATE notification_counters nc SET unread = GREATEST(nc.unread - 1, 0)
			FROM n
			WHERE nc.recipient_id = n.recipient_id AND nc.recipient_role = n.recipient_role AND NOT n.is_read
		)
		SELECT COUNT(*) FROM n
	`, id).Scan(&deleted)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if deleted == 0 {
		return model.ErrNotFound
	}
	return nil
}

// DeleteReadOlderThan only removes read rows, so counters are untouched.
func (r *NotificationRepository) DeleteReadOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM notifications WHERE is_read AND created_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}
