package domain

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is a direct two-party thread. User1ID < User2ID always holds
// (canonical order, enforced by a CHECK constraint) so a pair of users maps
// to exactly one row.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	User1ID   uuid.UUID `json:"user1_id"`
	User2ID   uuid.UUID `json:"user2_id"`
	CreatedAt time.Time `json:"created_at"`

	// Denormalized last-message summary for conversation listing.
	LastMessage   *string    `json:"last_message,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`

	// Joined field for frontend
	OtherUserID uuid.UUID `json:"other_user_id"`
}

// CanonicalPair orders two user IDs into the stored (user1, user2) form.
func CanonicalPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() > b.String() {
		return b, a
	}
	return a, b
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// Other returns the participant that is not userID.
func (c *Conversation) Other(userID uuid.UUID) uuid.UUID {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}
