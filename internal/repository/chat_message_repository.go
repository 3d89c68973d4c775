package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/service-desk/internal/domain"
)

// ChatMessageRepository stores the durable copies of ticket-room messages.
type ChatMessageRepository interface {
	Create(ctx context.Context, msg *domain.ChatMessage) error
	ListByRoom(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error)
	ListByTicket(ctx context.Context, ticketID string, limit int) ([]domain.ChatMessage, error)
}

type chatMessageRepository struct {
	pool *pgxpool.Pool
}

// NewChatMessageRepository builds repository.
func NewChatMessageRepository(pool *pgxpool.Pool) ChatMessageRepository {
	return &chatMessageRepository{pool: pool}
}

func (r *chatMessageRepository) Create(ctx context.Context, msg *domain.ChatMessage) error {
	const query = `
        INSERT INTO chat_messages (id, room_id, ticket_id, sender_id, sender_label, body, kind, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := r.pool.Exec(ctx, query,
		msg.ID,
		msg.RoomID,
		msg.TicketID,
		msg.SenderID,
		msg.SenderLabel,
		msg.Body,
		msg.Kind,
		msg.CreatedAt,
	)
	return err
}

func (r *chatMessageRepository) ListByRoom(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	const query = `
        SELECT id, room_id, ticket_id, sender_id, sender_label, body, kind, created_at
        FROM chat_messages WHERE room_id=$1 ORDER BY created_at ASC LIMIT $2`
	return r.list(ctx, query, roomID, normalizeLimit(limit))
}

func (r *chatMessageRepository) ListByTicket(ctx context.Context, ticketID string, limit int) ([]domain.ChatMessage, error) {
	const query = `
        SELECT id, room_id, ticket_id, sender_id, sender_label, body, kind, created_at
        FROM chat_messages WHERE ticket_id=$1 ORDER BY created_at ASC LIMIT $2`
	return r.list(ctx, query, ticketID, normalizeLimit(limit))
}

func (r *chatMessageRepository) list(ctx context.Context, query string, args ...any) ([]domain.ChatMessage, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChatMessages(rows)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 200
	}
	return limit
}

func scanChatMessages(rows pgx.Rows) ([]domain.ChatMessage, error) {
	var result []domain.ChatMessage
	for rows.Next() {
		var msg domain.ChatMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.RoomID,
			&msg.TicketID,
			&msg.SenderID,
			&msg.SenderLabel,
			&msg.Body,
			&msg.Kind,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
