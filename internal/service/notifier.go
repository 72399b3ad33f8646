package service

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/semachat/sema/internal/domain"
)

// Notifier pushes real-time events to every live connection of one user.
// The WebSocket layer implements it; tests substitute a fake. Push failures
// are absorbed by the implementation (a slow or gone client never fails the
// operation that triggered the event).
type Notifier interface {
	NewMessage(to uuid.UUID, msg domain.Message)
	MessageDelivered(to uuid.UUID, conversationID, messageID, recipientID uuid.UUID)
	MessagesRead(to uuid.UUID, conversationID, readerID uuid.UUID)
	MessageEdited(to uuid.UUID, msg domain.Message)
	MessageDeleted(to uuid.UUID, conversationID, messageID uuid.UUID)

	Typing(to uuid.UUID, conversationID, userID uuid.UUID, typing bool)
	StatusChanged(to uuid.UUID, p domain.Presence)

	IncomingCall(to uuid.UUID, sess domain.CallSession, offer json.RawMessage)
	CallRinging(to uuid.UUID, callID uuid.UUID)
	CallAnswered(to uuid.UUID, callID uuid.UUID, answer json.RawMessage)
	CallRejected(to uuid.UUID, callID uuid.UUID, reason domain.CallReason)
	IceCandidate(to uuid.UUID, callID uuid.UUID, candidate json.RawMessage)
	CallEnded(to uuid.UUID, callID uuid.UUID, reason domain.CallReason)
}
