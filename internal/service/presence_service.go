package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/semachat/sema/internal/domain"
	"github.com/semachat/sema/internal/repository"
)

// PresenceService derives online/offline from registry changes and fans out
// status_changed to the users who share a conversation with the subject.
// "Away" is a client-reported overlay on the online state; it is discarded
// when the last connection drops.
type PresenceService struct {
	mu     sync.Mutex
	status map[uuid.UUID]domain.PresenceStatus // last broadcast status per user

	convRepo repository.ConversationRepository
	lastSeen repository.LastSeenRepository
	notifier Notifier
}

func NewPresenceService(convRepo repository.ConversationRepository, lastSeen repository.LastSeenRepository) *PresenceService {
	return &PresenceService{
		status:   make(map[uuid.UUID]domain.PresenceStatus),
		convRepo: convRepo,
		lastSeen: lastSeen,
	}
}

// SetNotifier sets the real-time notifier (optional dependency).
func (s *PresenceService) SetNotifier(n Notifier) {
	s.notifier = n
}

// HandleConnect is invoked by the registry on every register.
func (s *PresenceService) HandleConnect(userID uuid.UUID) {
	s.transition(userID, domain.PresenceOnline)
}

// HandleDisconnect is invoked on every unregister with the number of
// connections the user still holds. A multi-device user stays online until
// the last one drops.
func (s *PresenceService) HandleDisconnect(userID uuid.UUID, remaining int) {
	if remaining > 0 {
		return
	}

	now := time.Now()
	if err := s.lastSeen.Touch(context.Background(), userID, now); err != nil {
		log.Warn().Err(err).Stringer("user", userID).Msg("presence: failed to persist last seen")
	}
	s.transition(userID, domain.PresenceOffline)
}

// SetAway applies the client-reported away hint. It only overlays a computed
// online state; a hint from a user with no connections is ignored.
func (s *PresenceService) SetAway(userID uuid.UUID, away bool) {
	s.mu.Lock()
	current, ok := s.status[userID]
	s.mu.Unlock()
	if !ok || current == domain.PresenceOffline {
		return
	}

	next := domain.PresenceOnline
	if away {
		next = domain.PresenceAway
	}
	s.transition(userID, next)
}

// transition broadcasts only when the computed status actually changed.
func (s *PresenceService) transition(userID uuid.UUID, next domain.PresenceStatus) {
	s.mu.Lock()
	prev, had := s.status[userID]
	if had && prev == next {
		s.mu.Unlock()
		return
	}
	if next == domain.PresenceOffline {
		delete(s.status, userID)
	} else {
		s.status[userID] = next
	}
	s.mu.Unlock()

	s.broadcast(userID, next)
}

func (s *PresenceService) broadcast(userID uuid.UUID, status domain.PresenceStatus) {
	if s.notifier == nil {
		return
	}

	ctx := context.Background()
	partners, err := s.convRepo.ListPartnerIDs(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Stringer("user", userID).Msg("presence: failed to list partners")
		return
	}

	p := domain.Presence{UserID: userID, Status: status, LastSeenAt: time.Now()}
	for _, partner := range partners {
		s.notifier.StatusChanged(partner, p)
	}
}
