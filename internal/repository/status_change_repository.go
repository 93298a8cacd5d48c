package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leanrobert/telegram-jira-bot/internal/domain"
)

// StatusChangeRepository stores the append-only transition ledger.
type StatusChangeRepository interface {
	// FindOrCreate records the change unless a row for the same
	// (jira_key, old, new) already exists with changed_at within ±tolerance
	// of the candidate's. It returns the surviving row and whether it was
	// created by this call. Check and insert are atomic per transition key.
	FindOrCreate(ctx context.Context, change *domain.StatusChange, tolerance time.Duration) (created bool, err error)
	MarkNotificationSent(ctx context.Context, id int64) error
	ListUnsentForChat(ctx context.Context, chatID int64, firstSeenAfter time.Time) ([]domain.StatusChange, error)
	CountUnsent(ctx context.Context) (int64, error)
}

type statusChangeRepository struct {
	pool *pgxpool.Pool
}

// NewStatusChangeRepository builds repository.
func NewStatusChangeRepository(pool *pgxpool.Pool) StatusChangeRepository {
	return &statusChangeRepository{pool: pool}
}

func (r *statusChangeRepository) FindOrCreate(ctx context.Context, change *domain.StatusChange, tolerance time.Duration) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Serialize concurrent cycles racing on the same transition key. The
	// lock is transaction-scoped and released at commit/rollback.
	const lockQuery = `SELECT pg_advisory_xact_lock(hashtext($1))`
	lockKey := change.JiraKey + "|" + change.OldStatus + "|" + change.NewStatus
	if _, err := tx.Exec(ctx, lockQuery, lockKey); err != nil {
		return false, err
	}

	const matchQuery = `
        SELECT id, changed_by, changed_at, first_seen_at, notification_sent
        FROM status_changes
        WHERE jira_key=$1 AND old_status=$2 AND new_status=$3
          AND changed_at BETWEEN $4 AND $5
        ORDER BY id LIMIT 1`
	err = tx.QueryRow(ctx, matchQuery,
		change.JiraKey,
		change.OldStatus,
		change.NewStatus,
		change.ChangedAt.Add(-tolerance),
		change.ChangedAt.Add(tolerance),
	).Scan(&change.ID, &change.ChangedBy, &change.ChangedAt, &change.FirstSeenAt, &change.NotificationSent)

	created := false
	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		const insertQuery = `
            INSERT INTO status_changes (jira_key, old_status, new_status, changed_by, changed_at)
            VALUES ($1,$2,$3,$4,$5)
            RETURNING id, first_seen_at`
		if err := tx.QueryRow(ctx, insertQuery,
			change.JiraKey,
			change.OldStatus,
			change.NewStatus,
			change.ChangedBy,
			change.ChangedAt,
		).Scan(&change.ID, &change.FirstSeenAt); err != nil {
			return false, err
		}
		change.NotificationSent = false
		created = true
	default:
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return created, nil
}

func (r *statusChangeRepository) MarkNotificationSent(ctx context.Context, id int64) error {
	const query = `UPDATE status_changes SET notification_sent=TRUE WHERE id=$1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

// ListUnsentForChat returns undelivered status changes of tickets owned by
// the chat, oldest first, bounded below by firstSeenAfter.
func (r *statusChangeRepository) ListUnsentForChat(ctx context.Context, chatID int64, firstSeenAfter time.Time) ([]domain.StatusChange, error) {
	const query = `
        SELECT sc.id, sc.jira_key, sc.old_status, sc.new_status, sc.changed_by,
               sc.changed_at, sc.first_seen_at, sc.notification_sent
        FROM status_changes sc
        JOIN tickets t ON t.jira_key = sc.jira_key
        WHERE t.chat_id=$1 AND NOT sc.notification_sent AND sc.first_seen_at >= $2
        ORDER BY sc.first_seen_at`
	rows, err := r.pool.Query(ctx, query, chatID, firstSeenAfter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.StatusChange
	for rows.Next() {
		var change domain.StatusChange
		if err := rows.Scan(
			&change.ID,
			&change.JiraKey,
			&change.OldStatus,
			&change.NewStatus,
			&change.ChangedBy,
			&change.ChangedAt,
			&change.FirstSeenAt,
			&change.NotificationSent,
		); err != nil {
			return nil, err
		}
		result = append(result, change)
	}
	return result, rows.Err()
}

func (r *statusChangeRepository) CountUnsent(ctx context.Context) (int64, error) {
	const query = `SELECT COUNT(*) FROM status_changes WHERE NOT notification_sent`
	var count int64
	if err := r.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
