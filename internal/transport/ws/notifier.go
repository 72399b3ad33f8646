package ws

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/semachat/sema/internal/domain"
)

// RegistryNotifier implements service.Notifier by fanning events out to
// every live connection of the target user.
type RegistryNotifier struct {
	registry *Registry
}

func NewRegistryNotifier(registry *Registry) *RegistryNotifier {
	return &RegistryNotifier{registry: registry}
}

func (n *RegistryNotifier) NewMessage(to uuid.UUID, msg domain.Message) {
	n.registry.pushEvent(to, EventNewMessage, NewMessagePayload{
		ConversationID: msg.ConversationID,
		Message:        msg,
	})
}

func (n *RegistryNotifier) MessageDelivered(to uuid.UUID, conversationID, messageID, recipientID uuid.UUID) {
	n.registry.pushEvent(to, EventMessageDelivered, MessageDeliveredPayload{
		ConversationID: conversationID,
		MessageID:      messageID,
		RecipientID:    recipientID,
	})
}

func (n *RegistryNotifier) MessagesRead(to uuid.UUID, conversationID, readerID uuid.UUID) {
	n.registry.pushEvent(to, EventMessagesRead, MessagesReadPayload{
		ConversationID: conversationID,
		ReaderID:       readerID,
	})
}

func (n *RegistryNotifier) MessageEdited(to uuid.UUID, msg domain.Message) {
	n.registry.pushEvent(to, EventMessageEdited, NewMessagePayload{
		ConversationID: msg.ConversationID,
		Message:        msg,
	})
}

func (n *RegistryNotifier) MessageDeleted(to uuid.UUID, conversationID, messageID uuid.UUID) {
	n.registry.pushEvent(to, EventMessageDeleted, MessageDeletedPayload{
		ConversationID: conversationID,
		MessageID:      messageID,
	})
}

func (n *RegistryNotifier) Typing(to uuid.UUID, conversationID, userID uuid.UUID, typing bool) {
	eventType := EventUserTyping
	if !typing {
		eventType = EventUserStoppedTyping
	}
	n.registry.pushEvent(to, eventType, UserTypingPayload{
		ConversationID: conversationID,
		UserID:         userID,
	})
}

func (n *RegistryNotifier) StatusChanged(to uuid.UUID, p domain.Presence) {
	n.registry.pushEvent(to, EventStatusChanged, StatusChangedPayload{
		UserID:     p.UserID,
		Status:     p.Status,
		LastSeenAt: p.LastSeenAt,
	})
}

func (n *RegistryNotifier) IncomingCall(to uuid.UUID, sess domain.CallSession, offer json.RawMessage) {
	n.registry.pushEvent(to, EventIncomingCall, IncomingCallPayload{
		CallID:   sess.ID,
		CallerID: sess.CallerID,
		Media:    sess.Media,
		Offer:    offer,
	})
}

func (n *RegistryNotifier) CallRinging(to uuid.UUID, callID uuid.UUID) {
	n.registry.pushEvent(to, EventCallRinging, CallRingingPayload{CallID: callID})
}

func (n *RegistryNotifier) CallAnswered(to uuid.UUID, callID uuid.UUID, answer json.RawMessage) {
	n.registry.pushEvent(to, EventCallAnswered, CallAnsweredPayload{
		CallID: callID,
		Answer: answer,
	})
}

func (n *RegistryNotifier) CallRejected(to uuid.UUID, callID uuid.UUID, reason domain.CallReason) {
	n.registry.pushEvent(to, EventCallRejected, CallStatePayload{CallID: callID, Reason: reason})
}

func (n *RegistryNotifier) IceCandidate(to uuid.UUID, callID uuid.UUID, candidate json.RawMessage) {
	n.registry.pushEvent(to, EventIceCandidate, IceCandidatePayload{
		CallID:    callID,
		Candidate: candidate,
	})
}

func (n *RegistryNotifier) CallEnded(to uuid.UUID, callID uuid.UUID, reason domain.CallReason) {
	n.registry.pushEvent(to, EventCallEnded, CallStatePayload{CallID: callID, Reason: reason})
}
