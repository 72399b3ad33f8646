package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/semachat/sema/internal/domain"
	"github.com/semachat/sema/internal/repository"
)

type ConversationService struct {
	convRepo repository.ConversationRepository
}

func NewConversationService(convRepo repository.ConversationRepository) *ConversationService {
	return &ConversationService{convRepo: convRepo}
}

// GetOrCreate finds or creates the direct conversation between two users.
// User identity is taken on trust from the token; user records live in the
// auth collaborator, not here.
func (s *ConversationService) GetOrCreate(ctx context.Context, userID, otherUserID uuid.UUID) (*domain.Conversation, error) {
	if userID == otherUserID {
		return nil, fmt.Errorf("%w: cannot start a conversation with yourself", ErrCannotSelf)
	}

	u1, u2 := domain.CanonicalPair(userID, otherUserID)

	conv, err := s.convRepo.GetByUsers(ctx, u1, u2)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		conv.OtherUserID = otherUserID
		return conv, nil
	}

	conv = &domain.Conversation{
		ID:          uuid.New(),
		User1ID:     u1,
		User2ID:     u2,
		CreatedAt:   time.Now(),
		OtherUserID: otherUserID,
	}
	if err := s.convRepo.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	return conv, nil
}

// List returns all conversations of a user, most recently active first.
func (s *ConversationService) List(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error) {
	convs, err := s.convRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	return convs, nil
}
