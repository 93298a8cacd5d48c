package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leanrobert/telegram-jira-bot/internal/domain"
)

// TicketRepository encapsulates the local ticket mirror.
type TicketRepository interface {
	Upsert(ctx context.Context, ticket *domain.Ticket) error
	UpdateStatus(ctx context.Context, jiraKey, status string) error
	GetByKey(ctx context.Context, jiraKey string) (*domain.Ticket, error)
	ListByChat(ctx context.Context, chatID int64, limit, offset int) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

// Upsert inserts a ticket or refreshes its mutable mirror fields. The owning
// chat of an existing row is kept; a ticket does not change hands because a
// different subscriber's search returned it.
func (r *ticketRepository) Upsert(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (jira_key, chat_id, telegram_user_id, category, title, description,
                             status, priority, start_date, due_date)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (jira_key) DO UPDATE SET
            category=EXCLUDED.category,
            title=EXCLUDED.title,
            description=EXCLUDED.description,
            status=EXCLUDED.status,
            priority=EXCLUDED.priority,
            due_date=EXCLUDED.due_date,
            updated_at=NOW()
        RETURNING id, chat_id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.JiraKey,
		ticket.ChatID,
		ticket.TelegramUserID,
		ticket.Category,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.StartDate,
		ticket.DueDate,
	).Scan(&ticket.ID, &ticket.ChatID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) UpdateStatus(ctx context.Context, jiraKey, status string) error {
	const query = `
        UPDATE tickets SET status=$1, updated_at=NOW()
        WHERE jira_key=$2`
	_, err := r.pool.Exec(ctx, query, status, jiraKey)
	return err
}

func (r *ticketRepository) GetByKey(ctx context.Context, jiraKey string) (*domain.Ticket, error) {
	const query = `
        SELECT id, jira_key, chat_id, telegram_user_id, category, title, description,
               status, priority, start_date, due_date, created_at, updated_at
        FROM tickets WHERE jira_key=$1`
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, jiraKey).Scan(
		&ticket.ID,
		&ticket.JiraKey,
		&ticket.ChatID,
		&ticket.TelegramUserID,
		&ticket.Category,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.StartDate,
		&ticket.DueDate,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListByChat(ctx context.Context, chatID int64, limit, offset int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, jira_key, chat_id, telegram_user_id, category, title, description,
               status, priority, start_date, due_date, created_at, updated_at
        FROM tickets WHERE chat_id=$1 ORDER BY updated_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, chatID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.JiraKey,
			&ticket.ChatID,
			&ticket.TelegramUserID,
			&ticket.Category,
			&ticket.Title,
			&ticket.Description,
			&ticket.Status,
			&ticket.Priority,
			&ticket.StartDate,
			&ticket.DueDate,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
