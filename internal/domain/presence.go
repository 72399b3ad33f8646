package domain

import (
	"time"

	"github.com/google/uuid"
)

// PresenceStatus is derived from live connection count; "away" is a soft
// client-reported overlay that never changes registry membership.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceOffline PresenceStatus = "offline"
)

// Presence is the ephemeral per-user status record, recomputed on every
// registry change. Only LastSeenAt survives the process.
type Presence struct {
	UserID     uuid.UUID      `json:"user_id"`
	Status     PresenceStatus `json:"status"`
	LastSeenAt time.Time      `json:"last_seen_at"`
}
