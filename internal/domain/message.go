package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus is the per-(message, recipient) progression. It is derived
// from receipt timestamps, never stored as a column, so it cannot regress.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

// Receipt records one recipient's delivery/read acknowledgment of a message.
type Receipt struct {
	UserID      uuid.UUID  `json:"user_id"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

type Message struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	SenderID       uuid.UUID  `json:"sender_id"`
	Content        *string    `json:"content,omitempty"`
	Nonce          *string    `json:"-"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
	DeletedAt      *time.Time `json:"-"`
	Deleted        bool       `json:"deleted,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	Receipts       []Receipt  `json:"receipts,omitempty"`
}

// StatusFor returns the delivery status of this message for one recipient.
func (m *Message) StatusFor(recipientID uuid.UUID) DeliveryStatus {
	for _, r := range m.Receipts {
		if r.UserID != recipientID {
			continue
		}
		if r.ReadAt != nil {
			return StatusRead
		}
		if r.DeliveredAt != nil {
			return StatusDelivered
		}
	}
	return StatusSent
}

// ViewFor is the one serialization point for messages, shared by the REST
// history path and the live push path. A soft-deleted message keeps its
// content only in the sender's own view; everyone else gets a tombstone.
func (m Message) ViewFor(viewerID uuid.UUID) Message {
	if m.DeletedAt != nil {
		m.Deleted = true
		if viewerID != m.SenderID {
			m.Content = nil
		}
	}
	return m
}
