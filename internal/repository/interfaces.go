package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/semachat/sema/internal/domain"
)

type ConversationRepository interface {
	Create(ctx context.Context, conv *domain.Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	GetByUsers(ctx context.Context, user1ID, user2ID uuid.UUID) (*domain.Conversation, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error)
	// ListPartnerIDs returns the set of users sharing a conversation with
	// userID. Used by the presence broadcaster to scope status fanout.
	ListPartnerIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// MessageRepository exposes the chat store as conditional, field-level
// primitives. None of them read a document before mutating it; the predicate
// lives inside the single statement each one issues.
type MessageRepository interface {
	// Append inserts the message and refreshes the conversation's
	// last-message summary in one statement. When the sender supplied a
	// nonce already present for this conversation, the previously stored
	// message is returned with created=false.
	Append(ctx context.Context, msg *domain.Message) (stored *domain.Message, created bool, err error)
	GetByID(ctx context.Context, conversationID, messageID uuid.UUID) (*domain.Message, error)
	ListByConversation(ctx context.Context, conversationID uuid.UUID, before *uuid.UUID, limit int) ([]domain.Message, error)
	// AddDelivered records recipientID in the message's delivered set only
	// if absent. Returns true on the first, effectful call.
	AddDelivered(ctx context.Context, conversationID, messageID, recipientID uuid.UUID, at time.Time) (bool, error)
	// MarkRead read-marks every message in the conversation not authored by
	// readerID and not already read by them, in one batched statement.
	// Returns the number of messages newly marked.
	MarkRead(ctx context.Context, conversationID, readerID uuid.UUID, at time.Time) (int64, error)
	// Edit replaces content only while editorID is the sender and the
	// message is not soft-deleted; returns nil with no error if the
	// predicate did not match.
	Edit(ctx context.Context, conversationID, messageID, editorID uuid.UUID, content string, at time.Time) (*domain.Message, error)
	// SoftDelete sets the deleted flag only while requesterID is the sender
	// and the message is not already deleted. Returns true if a row changed.
	SoftDelete(ctx context.Context, conversationID, messageID, requesterID uuid.UUID, at time.Time) (bool, error)
}

type CallLogRepository interface {
	Record(ctx context.Context, rec *domain.CallRecord) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.CallRecord, error)
}

// LastSeenRepository persists the last-seen timestamp that outlives a user's
// connections. Everything else about presence is ephemeral.
type LastSeenRepository interface {
	Touch(ctx context.Context, userID uuid.UUID, at time.Time) error
	Get(ctx context.Context, userID uuid.UUID) (time.Time, error)
}
