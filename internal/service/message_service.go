package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/semachat/sema/internal/domain"
	"github.com/semachat/sema/internal/repository"
	"github.com/semachat/sema/pkg/validator"
)

// MessageService is the delivery engine. It never mutates a message it has
// read into memory; every state change goes through one conditional store
// primitive, which is what lets both recipients' devices ack the same
// message concurrently without losing either write.
type MessageService struct {
	msgRepo  repository.MessageRepository
	convRepo repository.ConversationRepository
	notifier Notifier
}

func NewMessageService(msgRepo repository.MessageRepository, convRepo repository.ConversationRepository) *MessageService {
	return &MessageService{
		msgRepo:  msgRepo,
		convRepo: convRepo,
	}
}

// SetNotifier sets the real-time notifier (optional dependency).
func (s *MessageService) SetNotifier(n Notifier) {
	s.notifier = n
}

type MessageListResponse struct {
	Messages []domain.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
}

// Send appends a message and pushes it to the other participant. A repeated
// nonce (client retry after a dropped connection) returns the originally
// stored message without emitting new_message again.
func (s *MessageService) Send(ctx context.Context, senderID, conversationID uuid.UUID, content, nonce string) (*domain.Message, error) {
	if errs := validator.ValidateMessageContent(content); errs.HasErrors() {
		return nil, fmt.Errorf("%w: %s", ErrValidation, errs)
	}

	conv, err := s.participantCheck(ctx, senderID, conversationID)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        &content,
		CreatedAt:      time.Now(),
	}
	if nonce != "" {
		msg.Nonce = &nonce
	}

	stored, created, err := s.msgRepo.Append(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("appending message: %w", err)
	}

	if created && s.notifier != nil {
		other := conv.Other(senderID)
		s.notifier.NewMessage(other, stored.ViewFor(other))
	}
	return stored, nil
}

// AcknowledgeDelivered adds recipientID to the message's delivered set.
// Idempotent: only the first effectful ack reaches the sender.
func (s *MessageService) AcknowledgeDelivered(ctx context.Context, recipientID, conversationID, messageID uuid.UUID) error {
	conv, err := s.participantCheck(ctx, recipientID, conversationID)
	if err != nil {
		return err
	}

	first, err := s.msgRepo.AddDelivered(ctx, conversationID, messageID, recipientID, time.Now())
	if err != nil {
		return fmt.Errorf("recording delivery: %w", err)
	}

	if first && s.notifier != nil {
		// Two-party conversation: the sender is the other participant.
		s.notifier.MessageDelivered(conv.Other(recipientID), conversationID, messageID, recipientID)
	}
	return nil
}

// MarkRead read-marks every unread message not authored by readerID. Safe to
// call repeatedly and from several devices at once; messages_read only goes
// out when something actually changed.
func (s *MessageService) MarkRead(ctx context.Context, readerID, conversationID uuid.UUID) error {
	conv, err := s.participantCheck(ctx, readerID, conversationID)
	if err != nil {
		return err
	}

	marked, err := s.msgRepo.MarkRead(ctx, conversationID, readerID, time.Now())
	if err != nil {
		return fmt.Errorf("marking read: %w", err)
	}

	if marked > 0 && s.notifier != nil {
		s.notifier.MessagesRead(conv.Other(readerID), conversationID, readerID)
	}
	return nil
}

// Edit replaces the content of a message the editor authored.
func (s *MessageService) Edit(ctx context.Context, editorID, conversationID, messageID uuid.UUID, content string) (*domain.Message, error) {
	if errs := validator.ValidateMessageContent(content); errs.HasErrors() {
		return nil, fmt.Errorf("%w: %s", ErrValidation, errs)
	}

	conv, err := s.participantCheck(ctx, editorID, conversationID)
	if err != nil {
		return nil, err
	}

	updated, err := s.msgRepo.Edit(ctx, conversationID, messageID, editorID, content, time.Now())
	if err != nil {
		return nil, fmt.Errorf("updating message: %w", err)
	}
	if updated == nil {
		// Predicate didn't match; read once to classify.
		return nil, s.classifyMutationFailure(ctx, conversationID, messageID, editorID)
	}

	if s.notifier != nil {
		other := conv.Other(editorID)
		s.notifier.MessageEdited(other, updated.ViewFor(other))
		s.notifier.MessageEdited(editorID, updated.ViewFor(editorID))
	}
	return updated, nil
}

// Delete soft-deletes a message the requester authored. Recipients render a
// tombstone; only the sender's own history keeps the content.
func (s *MessageService) Delete(ctx context.Context, requesterID, conversationID, messageID uuid.UUID) error {
	conv, err := s.participantCheck(ctx, requesterID, conversationID)
	if err != nil {
		return err
	}

	changed, err := s.msgRepo.SoftDelete(ctx, conversationID, messageID, requesterID, time.Now())
	if err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}
	if !changed {
		err := s.classifyMutationFailure(ctx, conversationID, messageID, requesterID)
		if errors.Is(err, ErrAlreadyDeleted) {
			// Deleting twice is a no-op, not an error.
			return nil
		}
		return err
	}

	if s.notifier != nil {
		s.notifier.MessageDeleted(conv.Other(requesterID), conversationID, messageID)
		s.notifier.MessageDeleted(requesterID, conversationID, messageID)
	}
	return nil
}

// List returns paginated history through the same serialization the live
// push path uses.
func (s *MessageService) List(ctx context.Context, userID, conversationID uuid.UUID, before *uuid.UUID, limit int) (*MessageListResponse, error) {
	if _, err := s.participantCheck(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}

	messages, err := s.msgRepo.ListByConversation(ctx, conversationID, before, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[len(messages)-limit:]
	}

	views := make([]domain.Message, 0, len(messages))
	for _, m := range messages {
		views = append(views, m.ViewFor(userID))
	}

	return &MessageListResponse{
		Messages: views,
		HasMore:  hasMore,
	}, nil
}

func (s *MessageService) participantCheck(ctx context.Context, userID, conversationID uuid.UUID) (*domain.Conversation, error) {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

// classifyMutationFailure runs after a conditional edit/delete matched no
// row, to decide which contract error to surface.
func (s *MessageService) classifyMutationFailure(ctx context.Context, conversationID, messageID, userID uuid.UUID) error {
	msg, err := s.msgRepo.GetByID(ctx, conversationID, messageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return ErrMessageNotFound
	}
	if msg.SenderID != userID {
		return ErrNotAuthor
	}
	return ErrAlreadyDeleted
}
