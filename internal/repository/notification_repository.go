package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leanrobert/telegram-jira-bot/internal/domain"
)

// NotificationRepository stores the append-only delivery ledger.
type NotificationRepository interface {
	// Create appends a delivery record. It reports false when the
	// (chat, key, type, old, new) tuple was already present, which makes
	// concurrent writers race-safe: exactly one insert wins.
	Create(ctx context.Context, rec *domain.NotificationRecord) (inserted bool, err error)
	Exists(ctx context.Context, chatID int64, jiraKey string, nType domain.NotificationType, oldValue, newValue string) (bool, error)
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository builds repository.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

func (r *notificationRepository) Create(ctx context.Context, rec *domain.NotificationRecord) (bool, error) {
	const query = `
        INSERT INTO notifications (chat_id, jira_key, notification_type, old_value, new_value)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT DO NOTHING`
	cmd, err := r.pool.Exec(ctx, query,
		rec.ChatID,
		rec.JiraKey,
		rec.Type,
		rec.OldValue,
		rec.NewValue,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *notificationRepository) Exists(ctx context.Context, chatID int64, jiraKey string, nType domain.NotificationType, oldValue, newValue string) (bool, error) {
	const query = `
        SELECT EXISTS (
            SELECT 1 FROM notifications
            WHERE chat_id=$1 AND jira_key=$2 AND notification_type=$3
              AND old_value=$4 AND new_value=$5
        )`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, chatID, jiraKey, nType, oldValue, newValue).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
