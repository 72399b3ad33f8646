package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/semachat/sema/internal/domain"
	"github.com/semachat/sema/internal/repository"
)

// CallService owns one state machine per live call and relays signaling
// between the two parties. Sessions are referenced by id, never captured in
// closures; all transitions for one call are serialized on the session's
// mutex while unrelated calls proceed in parallel.
//
// Lock order: a session mutex is never acquired while holding the coordinator
// mutex. The coordinator mutex only guards the two lookup maps, which is what
// makes the busy check-and-create atomic per user.
type CallService struct {
	mu     sync.Mutex
	calls  map[uuid.UUID]*liveCall
	byUser map[uuid.UUID]uuid.UUID // userID → active callID

	logRepo     repository.CallLogRepository
	notifier    Notifier
	ringTimeout time.Duration
	now         func() time.Time
}

type liveCall struct {
	mu        sync.Mutex
	sess      domain.CallSession
	ringTimer *time.Timer
	// mediaUp tracks which parties reported ICE/media established;
	// connecting → connected happens when both have.
	mediaUp map[uuid.UUID]bool
}

func NewCallService(logRepo repository.CallLogRepository, ringTimeout time.Duration) *CallService {
	return &CallService{
		calls:       make(map[uuid.UUID]*liveCall),
		byUser:      make(map[uuid.UUID]uuid.UUID),
		logRepo:     logRepo,
		ringTimeout: ringTimeout,
		now:         time.Now,
	}
}

// SetNotifier sets the real-time notifier (optional dependency).
func (s *CallService) SetNotifier(n Notifier) {
	s.notifier = n
}

// Request starts an outbound call. Fails with ErrBusy when either party is
// already in a non-terminal session; both parties are reserved atomically so
// two simultaneous requests cannot race into two live calls for one user.
func (s *CallService) Request(ctx context.Context, callerID, calleeID uuid.UUID, media domain.MediaKind, offer json.RawMessage) (*domain.CallSession, error) {
	if callerID == calleeID {
		return nil, fmt.Errorf("%w: cannot call yourself", ErrCannotSelf)
	}
	if media != domain.MediaVoice && media != domain.MediaVideo {
		return nil, fmt.Errorf("%w: unknown media kind %q", ErrValidation, media)
	}

	c := &liveCall{
		sess: domain.CallSession{
			ID:        uuid.New(),
			CallerID:  callerID,
			CalleeID:  calleeID,
			Media:     media,
			State:     domain.CallStateCalling,
			StartedAt: s.now(),
		},
		mediaUp: make(map[uuid.UUID]bool),
	}

	s.mu.Lock()
	if _, busy := s.byUser[callerID]; busy {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	if _, busy := s.byUser[calleeID]; busy {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.calls[c.sess.ID] = c
	s.byUser[callerID] = c.sess.ID
	s.byUser[calleeID] = c.sess.ID
	s.mu.Unlock()

	callID := c.sess.ID
	c.mu.Lock()
	c.ringTimer = time.AfterFunc(s.ringTimeout, func() { s.ringTimeoutFired(callID) })
	sess := c.sess
	c.mu.Unlock()

	log.Info().Stringer("call", callID).Stringer("caller", callerID).
		Stringer("callee", calleeID).Str("media", string(media)).Msg("call: requested")

	if s.notifier != nil {
		s.notifier.IncomingCall(calleeID, sess, offer)
	}
	return &sess, nil
}

// Ringing records the callee's client acking the offer and tells the caller
// the remote side is ringing. A late or repeated ack is ignored.
func (s *CallService) Ringing(ctx context.Context, callID, userID uuid.UUID) error {
	c, err := s.lookup(callID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if userID != c.sess.CalleeID {
		c.mu.Unlock()
		return ErrNotParticipant
	}
	if c.sess.State != domain.CallStateCalling {
		c.mu.Unlock()
		return nil
	}
	c.sess.State = domain.CallStateRinging
	caller := c.sess.CallerID
	c.mu.Unlock()

	if s.notifier != nil {
		s.notifier.CallRinging(caller, callID)
	}
	return nil
}

// Respond handles the callee accepting or rejecting the call.
func (s *CallService) Respond(ctx context.Context, callID, responderID uuid.UUID, accept bool, answer json.RawMessage) error {
	c, err := s.lookup(callID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if !c.sess.HasParticipant(responderID) {
		c.mu.Unlock()
		return ErrNotParticipant
	}
	if responderID != c.sess.CalleeID {
		c.mu.Unlock()
		return fmt.Errorf("%w: only the callee may respond", ErrInvalidState)
	}
	if c.sess.State != domain.CallStateCalling && c.sess.State != domain.CallStateRinging {
		c.mu.Unlock()
		return fmt.Errorf("%w: call is %s", ErrInvalidState, c.sess.State)
	}

	if !accept {
		sess := s.finishLocked(c, domain.CallStateEnded, domain.ReasonRejected)
		c.mu.Unlock()
		s.cleanup(ctx, sess)
		if s.notifier != nil {
			s.notifier.CallRejected(sess.CallerID, callID, domain.ReasonRejected)
		}
		return nil
	}

	c.sess.State = domain.CallStateConnecting
	if c.ringTimer != nil {
		c.ringTimer.Stop()
	}
	caller := c.sess.CallerID
	c.mu.Unlock()

	log.Info().Stringer("call", callID).Msg("call: accepted")
	if s.notifier != nil {
		s.notifier.CallAnswered(caller, callID, answer)
	}
	return nil
}

// MediaEstablished records one party reporting ICE/media up; the session
// reaches connected when both have reported.
func (s *CallService) MediaEstablished(ctx context.Context, callID, userID uuid.UUID) error {
	c, err := s.lookup(callID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sess.HasParticipant(userID) {
		return ErrNotParticipant
	}
	if c.sess.State != domain.CallStateConnecting && c.sess.State != domain.CallStateConnected {
		return fmt.Errorf("%w: call is %s", ErrInvalidState, c.sess.State)
	}

	c.mediaUp[userID] = true
	if c.sess.State == domain.CallStateConnecting && c.mediaUp[c.sess.CallerID] && c.mediaUp[c.sess.CalleeID] {
		c.sess.State = domain.CallStateConnected
		now := s.now()
		c.sess.ConnectedAt = &now
		log.Info().Stringer("call", callID).Msg("call: connected")
	}
	return nil
}

// RelayICE forwards an ICE candidate to the other party. Candidates arriving
// for an unknown or terminal call are expected and dropped quietly.
func (s *CallService) RelayICE(ctx context.Context, callID, fromID uuid.UUID, candidate json.RawMessage) {
	c, err := s.lookup(callID)
	if err != nil {
		log.Debug().Stringer("call", callID).Msg("call: ice candidate for unknown call dropped")
		return
	}

	c.mu.Lock()
	if !c.sess.HasParticipant(fromID) || c.sess.State.Terminal() {
		c.mu.Unlock()
		log.Debug().Stringer("call", callID).Msg("call: late ice candidate dropped")
		return
	}
	other := c.sess.Other(fromID)
	c.mu.Unlock()

	if s.notifier != nil {
		s.notifier.IceCandidate(other, callID, candidate)
	}
}

// End hangs up. Ending an already-terminal call is a no-op.
func (s *CallService) End(ctx context.Context, callID, requesterID uuid.UUID, reason domain.CallReason) error {
	c, err := s.lookup(callID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if !c.sess.HasParticipant(requesterID) {
		c.mu.Unlock()
		return ErrNotParticipant
	}
	if c.sess.State.Terminal() {
		c.mu.Unlock()
		return nil
	}
	if reason == "" {
		reason = domain.ReasonNormal
	}
	sess := s.finishLocked(c, domain.CallStateEnded, reason)
	c.mu.Unlock()

	s.cleanup(ctx, sess)
	if s.notifier != nil {
		s.notifier.CallEnded(sess.Other(requesterID), callID, reason)
	}
	return nil
}

// HandleOffline force-fails the user's live call when their last connection
// drops, so sessions never ring forever at a dead peer.
func (s *CallService) HandleOffline(userID uuid.UUID) {
	s.mu.Lock()
	callID, ok := s.byUser[userID]
	s.mu.Unlock()
	if !ok {
		return
	}

	c, err := s.lookup(callID)
	if err != nil {
		return
	}

	c.mu.Lock()
	if c.sess.State.Terminal() {
		c.mu.Unlock()
		return
	}
	sess := s.finishLocked(c, domain.CallStateFailed, domain.ReasonDisconnected)
	c.mu.Unlock()

	s.cleanup(context.Background(), sess)
	if s.notifier != nil {
		s.notifier.CallEnded(sess.Other(userID), callID, domain.ReasonDisconnected)
	}
	log.Info().Stringer("call", callID).Stringer("user", userID).Msg("call: party disconnected")
}

// ActiveCall returns the user's non-terminal session, if any.
func (s *CallService) ActiveCall(userID uuid.UUID) (*domain.CallSession, bool) {
	s.mu.Lock()
	callID, ok := s.byUser[userID]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	c, err := s.lookup(callID)
	if err != nil {
		return nil, false
	}
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	return &sess, true
}

// History returns the user's persisted call log.
func (s *CallService) History(ctx context.Context, userID uuid.UUID, limit int) ([]domain.CallRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	recs, err := s.logRepo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []domain.CallRecord{}
	}
	return recs, nil
}

// ringTimeoutFired is the ring timer callback. It can race a concurrent
// hangup or reject; the terminal-state check makes the loser a no-op.
func (s *CallService) ringTimeoutFired(callID uuid.UUID) {
	c, err := s.lookup(callID)
	if err != nil {
		return
	}

	c.mu.Lock()
	if c.sess.State != domain.CallStateCalling && c.sess.State != domain.CallStateRinging {
		c.mu.Unlock()
		return
	}
	sess := s.finishLocked(c, domain.CallStateEnded, domain.ReasonTimeout)
	c.mu.Unlock()

	s.cleanup(context.Background(), sess)
	if s.notifier != nil {
		s.notifier.CallEnded(sess.CallerID, callID, domain.ReasonTimeout)
		s.notifier.CallEnded(sess.CalleeID, callID, domain.ReasonTimeout)
	}
	log.Info().Stringer("call", callID).Msg("call: ring timeout")
}

func (s *CallService) lookup(callID uuid.UUID) (*liveCall, error) {
	s.mu.Lock()
	c, ok := s.calls[callID]
	s.mu.Unlock()
	if !ok {
		return nil, ErrCallNotFound
	}
	return c, nil
}

// finishLocked moves the session to a terminal state. Caller holds c.mu.
func (s *CallService) finishLocked(c *liveCall, state domain.CallState, reason domain.CallReason) domain.CallSession {
	c.sess.State = state
	c.sess.Reason = reason
	now := s.now()
	c.sess.EndedAt = &now
	if c.ringTimer != nil {
		c.ringTimer.Stop()
	}
	return c.sess
}

// cleanup removes a terminal session from live memory and persists its log
// entry. Called without any locks held.
func (s *CallService) cleanup(ctx context.Context, sess domain.CallSession) {
	s.mu.Lock()
	delete(s.calls, sess.ID)
	if s.byUser[sess.CallerID] == sess.ID {
		delete(s.byUser, sess.CallerID)
	}
	if s.byUser[sess.CalleeID] == sess.ID {
		delete(s.byUser, sess.CalleeID)
	}
	s.mu.Unlock()

	if err := s.logRepo.Record(ctx, domain.RecordOf(&sess)); err != nil {
		log.Error().Err(err).Stringer("call", sess.ID).Msg("call: failed to persist call log")
	}
}
