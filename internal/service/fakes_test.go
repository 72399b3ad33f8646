package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/semachat/sema/internal/domain"
)

// fakeNotifier records every push so tests can assert exactly which events
// went to whom.
type fakeEvent struct {
	Type string
	To   uuid.UUID
	Meta any
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []fakeEvent
}

func (n *fakeNotifier) record(eventType string, to uuid.UUID, meta any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, fakeEvent{Type: eventType, To: to, Meta: meta})
}

func (n *fakeNotifier) count(eventType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.Type == eventType {
			c++
		}
	}
	return c
}

func (n *fakeNotifier) lastTo(eventType string) (uuid.UUID, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.events) - 1; i >= 0; i-- {
		if n.events[i].Type == eventType {
			return n.events[i].To, true
		}
	}
	return uuid.Nil, false
}

func (n *fakeNotifier) NewMessage(to uuid.UUID, msg domain.Message) {
	n.record("new_message", to, msg)
}
func (n *fakeNotifier) MessageDelivered(to uuid.UUID, conversationID, messageID, recipientID uuid.UUID) {
	n.record("message_delivered", to, recipientID)
}
func (n *fakeNotifier) MessagesRead(to uuid.UUID, conversationID, readerID uuid.UUID) {
	n.record("messages_read", to, readerID)
}
func (n *fakeNotifier) MessageEdited(to uuid.UUID, msg domain.Message) {
	n.record("message_edited", to, msg)
}
func (n *fakeNotifier) MessageDeleted(to uuid.UUID, conversationID, messageID uuid.UUID) {
	n.record("message_deleted", to, messageID)
}
func (n *fakeNotifier) Typing(to uuid.UUID, conversationID, userID uuid.UUID, typing bool) {
	if typing {
		n.record("user_typing", to, userID)
	} else {
		n.record("user_stopped_typing", to, userID)
	}
}
func (n *fakeNotifier) StatusChanged(to uuid.UUID, p domain.Presence) {
	n.record("status_changed", to, p)
}
func (n *fakeNotifier) IncomingCall(to uuid.UUID, sess domain.CallSession, offer json.RawMessage) {
	n.record("incoming_call", to, sess)
}
func (n *fakeNotifier) CallRinging(to uuid.UUID, callID uuid.UUID) {
	n.record("call_ringing", to, callID)
}
func (n *fakeNotifier) CallAnswered(to uuid.UUID, callID uuid.UUID, answer json.RawMessage) {
	n.record("call_answered", to, callID)
}
func (n *fakeNotifier) CallRejected(to uuid.UUID, callID uuid.UUID, reason domain.CallReason) {
	n.record("call_rejected", to, reason)
}
func (n *fakeNotifier) IceCandidate(to uuid.UUID, callID uuid.UUID, candidate json.RawMessage) {
	n.record("ice_candidate", to, callID)
}
func (n *fakeNotifier) CallEnded(to uuid.UUID, callID uuid.UUID, reason domain.CallReason) {
	n.record("call_ended", to, reason)
}

// fakeConvRepo holds conversations in memory.
type fakeConvRepo struct {
	mu    sync.Mutex
	convs map[uuid.UUID]*domain.Conversation
}

func newFakeConvRepo() *fakeConvRepo {
	return &fakeConvRepo{convs: make(map[uuid.UUID]*domain.Conversation)}
}

func (r *fakeConvRepo) Create(_ context.Context, conv *domain.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *conv
	r.convs[conv.ID] = &cp
	return nil
}

func (r *fakeConvRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return nil, nil
	}
	cp := *conv
	return &cp, nil
}

func (r *fakeConvRepo) GetByUsers(_ context.Context, u1, u2 uuid.UUID) (*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conv := range r.convs {
		if conv.User1ID == u1 && conv.User2ID == u2 {
			cp := *conv
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeConvRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Conversation
	for _, conv := range r.convs {
		if conv.HasParticipant(userID) {
			cp := *conv
			cp.OtherUserID = conv.Other(userID)
			out = append(out, cp)
		}
	}
	return out, nil
}

func (r *fakeConvRepo) ListPartnerIDs(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []uuid.UUID
	for _, conv := range r.convs {
		if conv.HasParticipant(userID) {
			out = append(out, conv.Other(userID))
		}
	}
	return out, nil
}

// fakeMsgRepo mirrors the conditional semantics of the real store: every
// mutation checks its predicate and applies under one lock, so concurrent
// callers observe the same first-wins behavior the SQL gives.
type fakeMsgRepo struct {
	mu       sync.Mutex
	messages map[uuid.UUID]*domain.Message
	order    []uuid.UUID
	convs    *fakeConvRepo
}

func newFakeMsgRepo(convs *fakeConvRepo) *fakeMsgRepo {
	return &fakeMsgRepo{messages: make(map[uuid.UUID]*domain.Message), convs: convs}
}

func (r *fakeMsgRepo) Append(_ context.Context, msg *domain.Message) (*domain.Message, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg.Nonce != nil {
		for _, id := range r.order {
			m := r.messages[id]
			if m.ConversationID == msg.ConversationID && m.SenderID == msg.SenderID &&
				m.Nonce != nil && *m.Nonce == *msg.Nonce {
				cp := *m
				return &cp, false, nil
			}
		}
	}
	cp := *msg
	r.messages[msg.ID] = &cp
	r.order = append(r.order, msg.ID)
	out := cp
	return &out, true, nil
}

func (r *fakeMsgRepo) GetByID(_ context.Context, conversationID, messageID uuid.UUID) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[messageID]
	if !ok || m.ConversationID != conversationID {
		return nil, nil
	}
	cp := *m
	cp.Receipts = append([]domain.Receipt(nil), m.Receipts...)
	return &cp, nil
}

func (r *fakeMsgRepo) ListByConversation(_ context.Context, conversationID uuid.UUID, before *uuid.UUID, limit int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Message
	for _, id := range r.order {
		m := r.messages[id]
		if m.ConversationID == conversationID {
			out = append(out, *m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *fakeMsgRepo) AddDelivered(_ context.Context, conversationID, messageID, recipientID uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[messageID]
	if !ok || m.ConversationID != conversationID || m.SenderID == recipientID {
		return false, nil
	}
	for _, rc := range m.Receipts {
		if rc.UserID == recipientID {
			return false, nil
		}
	}
	t := at
	m.Receipts = append(m.Receipts, domain.Receipt{UserID: recipientID, DeliveredAt: &t})
	return true, nil
}

func (r *fakeMsgRepo) MarkRead(_ context.Context, conversationID, readerID uuid.UUID, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var marked int64
	for _, id := range r.order {
		m := r.messages[id]
		if m.ConversationID != conversationID || m.SenderID == readerID || m.DeletedAt != nil {
			continue
		}
		t := at
		found := false
		for i := range m.Receipts {
			if m.Receipts[i].UserID == readerID {
				found = true
				if m.Receipts[i].ReadAt == nil {
					m.Receipts[i].ReadAt = &t
					if m.Receipts[i].DeliveredAt == nil {
						m.Receipts[i].DeliveredAt = &t
					}
					marked++
				}
			}
		}
		if !found {
			m.Receipts = append(m.Receipts, domain.Receipt{UserID: readerID, DeliveredAt: &t, ReadAt: &t})
			marked++
		}
	}
	return marked, nil
}

func (r *fakeMsgRepo) Edit(_ context.Context, conversationID, messageID, editorID uuid.UUID, content string, at time.Time) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[messageID]
	if !ok || m.ConversationID != conversationID || m.SenderID != editorID || m.DeletedAt != nil {
		return nil, nil
	}
	m.Content = &content
	t := at
	m.EditedAt = &t
	cp := *m
	return &cp, nil
}

func (r *fakeMsgRepo) SoftDelete(_ context.Context, conversationID, messageID, requesterID uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[messageID]
	if !ok || m.ConversationID != conversationID || m.SenderID != requesterID || m.DeletedAt != nil {
		return false, nil
	}
	t := at
	m.DeletedAt = &t
	return true, nil
}

// fakeCallLog records persisted call-log entries.
type fakeCallLog struct {
	mu   sync.Mutex
	recs []domain.CallRecord
}

func (l *fakeCallLog) Record(_ context.Context, rec *domain.CallRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.recs {
		if r.ID == rec.ID {
			return nil
		}
	}
	l.recs = append(l.recs, *rec)
	return nil
}

func (l *fakeCallLog) ListByUser(_ context.Context, userID uuid.UUID, limit int) ([]domain.CallRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.CallRecord
	for _, r := range l.recs {
		if r.CallerID == userID || r.CalleeID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (l *fakeCallLog) all() []domain.CallRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.CallRecord(nil), l.recs...)
}

// fakeLastSeen records presence touches.
type fakeLastSeen struct {
	mu    sync.Mutex
	times map[uuid.UUID]time.Time
}

func newFakeLastSeen() *fakeLastSeen {
	return &fakeLastSeen{times: make(map[uuid.UUID]time.Time)}
}

func (f *fakeLastSeen) Touch(_ context.Context, userID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.times[userID] = at
	return nil
}

func (f *fakeLastSeen) Get(_ context.Context, userID uuid.UUID) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.times[userID], nil
}

// newConversation stores a conversation between the two given users.
func newConversation(convs *fakeConvRepo, a, b uuid.UUID) *domain.Conversation {
	u1, u2 := domain.CanonicalPair(a, b)
	conv := &domain.Conversation{ID: uuid.New(), User1ID: u1, User2ID: u2, CreatedAt: time.Now()}
	_ = convs.Create(context.Background(), conv)
	return conv
}

// twoParty builds a conversation between two fresh users.
func twoParty(convs *fakeConvRepo) (alice, bob uuid.UUID, conv *domain.Conversation) {
	alice = uuid.New()
	bob = uuid.New()
	return alice, bob, newConversation(convs, alice, bob)
}
