package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/semachat/sema/internal/repository"
)

type typingKey struct {
	conversationID uuid.UUID
	userID         uuid.UUID
}

// TypingService relays typing indicators and owns their expiry. The server
// arms a timer per (conversation, typist); if the client's stop never
// arrives, the expiry synthesizes it, so an indicator can never stick after
// a dropped message. State is in-memory only and lost on restart.
type TypingService struct {
	mu     sync.Mutex
	timers map[typingKey]*time.Timer

	convRepo repository.ConversationRepository
	notifier Notifier
	ttl      time.Duration
}

func NewTypingService(convRepo repository.ConversationRepository, ttl time.Duration) *TypingService {
	return &TypingService{
		timers:   make(map[typingKey]*time.Timer),
		convRepo: convRepo,
		ttl:      ttl,
	}
}

// SetNotifier sets the real-time notifier (optional dependency).
func (s *TypingService) SetNotifier(n Notifier) {
	s.notifier = n
}

// Start broadcasts user_typing to the other participant and (re)arms the
// expiry timer.
func (s *TypingService) Start(ctx context.Context, conversationID, userID uuid.UUID) error {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return ErrConversationNotFound
	}
	if !conv.HasParticipant(userID) {
		return ErrNotParticipant
	}
	other := conv.Other(userID)

	key := typingKey{conversationID, userID}
	s.mu.Lock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
	}
	s.timers[key] = time.AfterFunc(s.ttl, func() { s.expire(key, other) })
	s.mu.Unlock()

	if s.notifier != nil {
		s.notifier.Typing(other, conversationID, userID, true)
	}
	return nil
}

// Stop cancels the timer and broadcasts user_stopped_typing.
func (s *TypingService) Stop(ctx context.Context, conversationID, userID uuid.UUID) error {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return ErrConversationNotFound
	}
	if !conv.HasParticipant(userID) {
		return ErrNotParticipant
	}

	key := typingKey{conversationID, userID}
	s.mu.Lock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
	}
	s.mu.Unlock()

	if s.notifier != nil {
		s.notifier.Typing(conv.Other(userID), conversationID, userID, false)
	}
	return nil
}

// expire fires when no stop arrived within the TTL. A race with an explicit
// stop at worst duplicates user_stopped_typing, which is harmless.
func (s *TypingService) expire(key typingKey, other uuid.UUID) {
	s.mu.Lock()
	delete(s.timers, key)
	s.mu.Unlock()

	if s.notifier != nil {
		s.notifier.Typing(other, key.conversationID, key.userID, false)
	}
}
