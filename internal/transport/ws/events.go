package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/semachat/sema/internal/domain"
)

// Event types - Client → Server
const (
	EventSendMessage   = "send_message"
	EventDeliveredAck  = "message_delivered_ack"
	EventMarkRead      = "mark_messages_read"
	EventEditMessage   = "edit_message"
	EventDeleteMessage = "delete_message"
	EventTypingStart   = "typing_start"
	EventTypingStop    = "typing_stop"
	EventCallRequest   = "call_request"
	EventCallRinging   = "call_ringing" // callee client acks the offer; also S→C to the caller
	EventCallRespond   = "call_respond"
	EventCallConnected = "call_connected" // one side reports ICE/media established
	EventIceCandidate  = "ice_candidate"  // both directions
	EventCallEnd       = "call_end"
	EventStatusSet     = "status_set" // away/online hint
	EventPing          = "ping"
)

// Event types - Server → Client
const (
	EventNewMessage        = "new_message"
	EventMessageDelivered  = "message_delivered"
	EventMessagesRead      = "messages_read"
	EventMessageEdited     = "message_edited"
	EventMessageDeleted    = "message_deleted"
	EventUserTyping        = "user_typing"
	EventUserStoppedTyping = "user_stopped_typing"
	EventIncomingCall      = "incoming_call"
	EventCallAnswered      = "call_answered"
	EventCallRejected      = "call_rejected"
	EventCallEnded         = "call_ended"
	EventStatusChanged     = "status_changed"
	EventPong              = "pong"
	EventError             = "error"
)

// Event is the base envelope for all WebSocket messages.
type Event struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"ts,omitempty"`
}

// --- Client → Server payloads ---

type SendMessagePayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	Content        string    `json:"content"`
	// Nonce is a client-generated idempotency key; a resend after a dropped
	// connection with the same nonce does not duplicate the message.
	Nonce string `json:"nonce,omitempty"`
}

type DeliveredAckPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
}

type MarkReadPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
}

type EditMessagePayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
	NewContent     string    `json:"new_content"`
}

type DeleteMessagePayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
}

type TypingPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
}

type CallRequestPayload struct {
	CalleeID uuid.UUID        `json:"callee_id"`
	Media    domain.MediaKind `json:"media"`
	Offer    json.RawMessage  `json:"offer"`
}

type CallRingingPayload struct {
	CallID uuid.UUID `json:"call_id"`
}

type CallRespondPayload struct {
	CallID uuid.UUID       `json:"call_id"`
	Accept bool            `json:"accept"`
	Answer json.RawMessage `json:"answer,omitempty"`
}

type CallConnectedPayload struct {
	CallID uuid.UUID `json:"call_id"`
}

type IceCandidatePayload struct {
	CallID    uuid.UUID       `json:"call_id"`
	Candidate json.RawMessage `json:"candidate"`
}

type CallEndPayload struct {
	CallID uuid.UUID         `json:"call_id"`
	Reason domain.CallReason `json:"reason,omitempty"`
}

type StatusSetPayload struct {
	Status domain.PresenceStatus `json:"status"` // "online" | "away"
}

// --- Server → Client payloads ---

type NewMessagePayload struct {
	ConversationID uuid.UUID      `json:"conversation_id"`
	Message        domain.Message `json:"message"`
}

type MessageDeliveredPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
	RecipientID    uuid.UUID `json:"recipient_id"`
}

type MessagesReadPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	ReaderID       uuid.UUID `json:"reader_id"`
}

type MessageDeletedPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
}

type UserTypingPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
}

type IncomingCallPayload struct {
	CallID   uuid.UUID        `json:"call_id"`
	CallerID uuid.UUID        `json:"caller_id"`
	Media    domain.MediaKind `json:"media"`
	Offer    json.RawMessage  `json:"offer"`
}

type CallAnsweredPayload struct {
	CallID uuid.UUID       `json:"call_id"`
	Answer json.RawMessage `json:"answer"`
}

type CallStatePayload struct {
	CallID uuid.UUID         `json:"call_id"`
	Reason domain.CallReason `json:"reason,omitempty"`
}

type StatusChangedPayload struct {
	UserID     uuid.UUID             `json:"user_id"`
	Status     domain.PresenceStatus `json:"status"`
	LastSeenAt time.Time             `json:"last_seen_at"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// State carries the current canonical state on stale-client rejections
	// (ALREADY_DELETED, INVALID_STATE) so the client can resync.
	State any `json:"state,omitempty"`
}

// NewEvent creates a server→client event with the current timestamp.
func NewEvent(eventType string, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:      eventType,
		Payload:   data,
		Timestamp: time.Now().Unix(),
	}, nil
}
