package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/semachat/sema/internal/domain"
)

// MessageRepo implements the chat store's conditional primitives. Every
// mutation is one statement whose WHERE clause carries the predicate; no
// method reads a row and writes it back, so concurrent acks and appends
// never overwrite each other.
type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

// messageColumns aggregates receipts into a jsonb array so a message and its
// delivery state come back in one row.
const messageColumns = `
	m.id, m.conversation_id, m.sender_id, m.content, m.nonce,
	m.edited_at, m.deleted_at, m.created_at,
	COALESCE(jsonb_agg(jsonb_build_object(
		'user_id', r.user_id,
		'delivered_at', r.delivered_at,
		'read_at', r.read_at
	)) FILTER (WHERE r.user_id IS NOT NULL), '[]')`

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var msg domain.Message
	var receipts []byte
	err := row.Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.Nonce,
		&msg.EditedAt, &msg.DeletedAt, &msg.CreatedAt, &receipts,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(receipts, &msg.Receipts); err != nil {
		return nil, fmt.Errorf("decoding receipts: %w", err)
	}
	return &msg, nil
}

func (r *MessageRepo) Append(ctx context.Context, msg *domain.Message) (*domain.Message, bool, error) {
	// Insert and summary update in one data-modifying CTE. The partial
	// unique index on (conversation_id, sender_id, nonce) makes a retried
	// send a no-op; the summary is only touched when the insert landed.
	query := `
		WITH ins AS (
			INSERT INTO messages (id, conversation_id, sender_id, content, nonce, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (conversation_id, sender_id, nonce) WHERE nonce IS NOT NULL
			DO NOTHING
			RETURNING id
		), summary AS (
			UPDATE conversations
			SET last_message = $4, last_message_at = $6
			WHERE id = $2 AND EXISTS (SELECT 1 FROM ins)
		)
		SELECT id FROM ins`

	var insertedID uuid.UUID
	err := r.pool.QueryRow(ctx, query,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.Nonce, msg.CreatedAt,
	).Scan(&insertedID)

	if errors.Is(err, pgx.ErrNoRows) {
		// Duplicate nonce: return the message stored by the first attempt.
		existing, ferr := r.getByNonce(ctx, msg.ConversationID, msg.SenderID, *msg.Nonce)
		if ferr != nil {
			return nil, false, ferr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	stored, err := r.GetByID(ctx, msg.ConversationID, insertedID)
	if err != nil {
		return nil, false, err
	}
	return stored, true, nil
}

func (r *MessageRepo) getByNonce(ctx context.Context, conversationID, senderID uuid.UUID, nonce string) (*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages m
		LEFT JOIN message_receipts r ON r.message_id = m.id
		WHERE m.conversation_id = $1 AND m.sender_id = $2 AND m.nonce = $3
		GROUP BY m.id`
	msg, err := scanMessage(r.pool.QueryRow(ctx, query, conversationID, senderID, nonce))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return msg, err
}

func (r *MessageRepo) GetByID(ctx context.Context, conversationID, messageID uuid.UUID) (*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages m
		LEFT JOIN message_receipts r ON r.message_id = m.id
		WHERE m.id = $1 AND m.conversation_id = $2
		GROUP BY m.id`
	msg, err := scanMessage(r.pool.QueryRow(ctx, query, messageID, conversationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return msg, err
}

func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID uuid.UUID, before *uuid.UUID, limit int) ([]domain.Message, error) {
	var query string
	var args []any

	if before != nil {
		query = fmt.Sprintf(`
			SELECT `+messageColumns+`
			FROM messages m
			LEFT JOIN message_receipts r ON r.message_id = m.id
			WHERE m.conversation_id = $1
				AND m.created_at < (SELECT created_at FROM messages WHERE id = $2)
			GROUP BY m.id
			ORDER BY m.created_at DESC
			LIMIT %d`, limit)
		args = []any{conversationID, *before}
	} else {
		query = fmt.Sprintf(`
			SELECT `+messageColumns+`
			FROM messages m
			LEFT JOIN message_receipts r ON r.message_id = m.id
			WHERE m.conversation_id = $1
			GROUP BY m.id
			ORDER BY m.created_at DESC
			LIMIT %d`, limit)
		args = []any{conversationID}
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order (query returns DESC)
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *MessageRepo) AddDelivered(ctx context.Context, conversationID, messageID, recipientID uuid.UUID, at time.Time) (bool, error) {
	// Conditional set-add: the primary key on (message_id, user_id) makes
	// the insert a no-op once the recipient is present, and a receipt row
	// is never created for the sender's own message.
	query := `
		INSERT INTO message_receipts (message_id, conversation_id, user_id, delivered_at)
		SELECT m.id, m.conversation_id, $3, $4
		FROM messages m
		WHERE m.id = $1 AND m.conversation_id = $2 AND m.sender_id <> $3
		ON CONFLICT (message_id, user_id) DO NOTHING`
	tag, err := r.pool.Exec(ctx, query, messageID, conversationID, recipientID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *MessageRepo) MarkRead(ctx context.Context, conversationID, readerID uuid.UUID, at time.Time) (int64, error) {
	// One batched upsert covers both the deliver-then-read path (existing
	// receipt row, read_at still NULL) and messages the reader never acked
	// delivery for. The WHERE on the conflict arm keeps already-read rows
	// untouched, so re-reading a fully read conversation affects 0 rows.
	query := `
		INSERT INTO message_receipts (message_id, conversation_id, user_id, delivered_at, read_at)
		SELECT m.id, m.conversation_id, $2, $3, $3
		FROM messages m
		WHERE m.conversation_id = $1 AND m.sender_id <> $2 AND m.deleted_at IS NULL
		ON CONFLICT (message_id, user_id)
		DO UPDATE SET
			read_at = EXCLUDED.read_at,
			delivered_at = COALESCE(message_receipts.delivered_at, EXCLUDED.delivered_at)
		WHERE message_receipts.read_at IS NULL`
	tag, err := r.pool.Exec(ctx, query, conversationID, readerID, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *MessageRepo) Edit(ctx context.Context, conversationID, messageID, editorID uuid.UUID, content string, at time.Time) (*domain.Message, error) {
	query := `
		UPDATE messages
		SET content = $4, edited_at = $5
		WHERE id = $1 AND conversation_id = $2 AND sender_id = $3 AND deleted_at IS NULL
		RETURNING id`
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, query, messageID, conversationID, editorID, content, at).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, conversationID, id)
}

func (r *MessageRepo) SoftDelete(ctx context.Context, conversationID, messageID, requesterID uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE messages
		SET deleted_at = $4
		WHERE id = $1 AND conversation_id = $2 AND sender_id = $3 AND deleted_at IS NULL`
	tag, err := r.pool.Exec(ctx, query, messageID, conversationID, requesterID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
