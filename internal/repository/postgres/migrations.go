package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate applies the schema at boot. Statements are idempotent and ordered.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id UUID PRIMARY KEY,
			user1_id UUID NOT NULL,
			user2_id UUID NOT NULL,
			last_message TEXT,
			last_message_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			CHECK (user1_id < user2_id),
			UNIQUE (user1_id, user2_id)
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY,
			conversation_id UUID NOT NULL REFERENCES conversations(id),
			sender_id UUID NOT NULL,
			content TEXT,
			nonce TEXT,
			edited_at TIMESTAMPTZ,
			deleted_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages (conversation_id, created_at)`,

		// Retried sends with the same client nonce collapse onto one row.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_nonce
			ON messages (conversation_id, sender_id, nonce)
			WHERE nonce IS NOT NULL`,

		// One receipt row per (message, recipient); the PK is what makes
		// delivery acks idempotent at the store level.
		`CREATE TABLE IF NOT EXISTS message_receipts (
			message_id UUID NOT NULL REFERENCES messages(id),
			conversation_id UUID NOT NULL,
			user_id UUID NOT NULL,
			delivered_at TIMESTAMPTZ,
			read_at TIMESTAMPTZ,
			PRIMARY KEY (message_id, user_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_receipts_conversation
			ON message_receipts (conversation_id, user_id)`,

		`CREATE TABLE IF NOT EXISTS call_log (
			id UUID PRIMARY KEY,
			caller_id UUID NOT NULL,
			callee_id UUID NOT NULL,
			media TEXT NOT NULL,
			status TEXT NOT NULL,
			reason TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL,
			duration_ms BIGINT NOT NULL DEFAULT 0
		)`,

		`CREATE INDEX IF NOT EXISTS idx_call_log_caller ON call_log (caller_id, started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_call_log_callee ON call_log (callee_id, started_at)`,
	}

	for i, m := range migrations {
		if _, err := pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
