package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leanrobert/telegram-jira-bot/internal/domain"
)

// SubscriberRepository encapsulates subscriber persistence.
type SubscriberRepository interface {
	Upsert(ctx context.Context, sub *domain.Subscriber) error
	SetNotificationsEnabled(ctx context.Context, chatID int64, enabled bool) error
	GetByChatID(ctx context.Context, chatID int64) (*domain.Subscriber, error)
	ListEnabled(ctx context.Context) ([]domain.Subscriber, error)
}

type subscriberRepository struct {
	pool *pgxpool.Pool
}

// NewSubscriberRepository instantiates repository.
func NewSubscriberRepository(pool *pgxpool.Pool) SubscriberRepository {
	return &subscriberRepository{pool: pool}
}

// Upsert writes identity fields, preserving the notifications flag of an
// existing row.
func (r *subscriberRepository) Upsert(ctx context.Context, sub *domain.Subscriber) error {
	const query = `
        INSERT INTO subscribers (chat_id, telegram_user_id, username, first_name, last_name)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (chat_id) DO UPDATE SET
            telegram_user_id=EXCLUDED.telegram_user_id,
            username=EXCLUDED.username,
            first_name=EXCLUDED.first_name,
            last_name=EXCLUDED.last_name,
            updated_at=NOW()
        RETURNING notifications_enabled, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		sub.ChatID,
		sub.TelegramUserID,
		sub.Username,
		sub.FirstName,
		sub.LastName,
	).Scan(&sub.NotificationsEnabled, &sub.CreatedAt, &sub.UpdatedAt)
}

func (r *subscriberRepository) SetNotificationsEnabled(ctx context.Context, chatID int64, enabled bool) error {
	const query = `
        UPDATE subscribers SET notifications_enabled=$1, updated_at=NOW()
        WHERE chat_id=$2`
	_, err := r.pool.Exec(ctx, query, enabled, chatID)
	return err
}

func (r *subscriberRepository) GetByChatID(ctx context.Context, chatID int64) (*domain.Subscriber, error) {
	const query = `
        SELECT chat_id, telegram_user_id, username, first_name, last_name,
               notifications_enabled, created_at, updated_at
        FROM subscribers WHERE chat_id=$1`
	var sub domain.Subscriber
	if err := r.pool.QueryRow(ctx, query, chatID).Scan(
		&sub.ChatID,
		&sub.TelegramUserID,
		&sub.Username,
		&sub.FirstName,
		&sub.LastName,
		&sub.NotificationsEnabled,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriberRepository) ListEnabled(ctx context.Context) ([]domain.Subscriber, error) {
	const query = `
        SELECT chat_id, telegram_user_id, username, first_name, last_name,
               notifications_enabled, created_at, updated_at
        FROM subscribers WHERE notifications_enabled ORDER BY chat_id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubscribers(rows)
}

func scanSubscribers(rows pgx.Rows) ([]domain.Subscriber, error) {
	var result []domain.Subscriber
	for rows.Next() {
		var sub domain.Subscriber
		if err := rows.Scan(
			&sub.ChatID,
			&sub.TelegramUserID,
			&sub.Username,
			&sub.FirstName,
			&sub.LastName,
			&sub.NotificationsEnabled,
			&sub.CreatedAt,
			&sub.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, rows.Err()
}
