package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type MediaKind string

const (
	MediaVoice MediaKind = "voice"
	MediaVideo MediaKind = "video"
)

// CallState is the lifecycle state of a live call session.
type CallState string

const (
	CallStateCalling    CallState = "calling"    // offer sent, waiting for callee's device to ring
	CallStateRinging    CallState = "ringing"    // callee's client acked the offer
	CallStateConnecting CallState = "connecting" // callee accepted, answer relayed
	CallStateConnected  CallState = "connected"  // both sides reported media up
	CallStateEnded      CallState = "ended"
	CallStateFailed     CallState = "failed"
)

// Terminal reports whether no further transitions may leave this state.
func (s CallState) Terminal() bool {
	return s == CallStateEnded || s == CallStateFailed
}

type CallReason string

const (
	ReasonNormal       CallReason = "normal"
	ReasonRejected     CallReason = "rejected"
	ReasonTimeout      CallReason = "timeout"
	ReasonFailed       CallReason = "failed"
	ReasonDisconnected CallReason = "disconnected"
)

// CallSession is the live state of one call attempt. It is owned by the call
// coordinator and persisted as a CallRecord once it reaches a terminal state.
type CallSession struct {
	ID          uuid.UUID  `json:"id"`
	CallerID    uuid.UUID  `json:"caller_id"`
	CalleeID    uuid.UUID  `json:"callee_id"`
	Media       MediaKind  `json:"media"`
	State       CallState  `json:"state"`
	StartedAt   time.Time  `json:"started_at"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	Reason      CallReason `json:"reason,omitempty"`
}

// HasParticipant reports whether userID is caller or callee.
func (s *CallSession) HasParticipant(userID uuid.UUID) bool {
	return s.CallerID == userID || s.CalleeID == userID
}

// Other returns the opposite party of userID.
func (s *CallSession) Other(userID uuid.UUID) uuid.UUID {
	if s.CallerID == userID {
		return s.CalleeID
	}
	return s.CallerID
}

// CallOutcome is the durable status vocabulary of the call log.
type CallOutcome string

const (
	OutcomeCompleted CallOutcome = "completed"
	OutcomeMissed    CallOutcome = "missed"
	OutcomeRejected  CallOutcome = "rejected"
	OutcomeFailed    CallOutcome = "failed"
)

// CallRecord is the durable call-log entry written when a session terminates.
type CallRecord struct {
	ID        uuid.UUID   `json:"id"`
	CallerID  uuid.UUID   `json:"caller_id"`
	CalleeID  uuid.UUID   `json:"callee_id"`
	Media     MediaKind   `json:"media"`
	Status    CallOutcome `json:"status"`
	Reason    CallReason  `json:"reason"`
	StartedAt time.Time   `json:"started_at"`
	EndedAt   time.Time   `json:"ended_at"`
	// Duration counts connected time only; zero for calls that never connected.
	Duration time.Duration `json:"duration_ms"`
}

// MarshalJSON reports duration in milliseconds for frontend consumption.
func (r CallRecord) MarshalJSON() ([]byte, error) {
	type alias CallRecord
	return json.Marshal(struct {
		alias
		Duration int64 `json:"duration_ms"`
	}{alias(r), r.Duration.Milliseconds()})
}

// RecordOf converts a terminal session into its durable log entry.
func RecordOf(s *CallSession) *CallRecord {
	rec := &CallRecord{
		ID:        s.ID,
		CallerID:  s.CallerID,
		CalleeID:  s.CalleeID,
		Media:     s.Media,
		Reason:    s.Reason,
		StartedAt: s.StartedAt,
	}
	if s.EndedAt != nil {
		rec.EndedAt = *s.EndedAt
	}
	if s.ConnectedAt != nil && s.EndedAt != nil {
		rec.Duration = s.EndedAt.Sub(*s.ConnectedAt)
	}
	switch s.Reason {
	case ReasonTimeout:
		rec.Status = OutcomeMissed
	case ReasonRejected:
		rec.Status = OutcomeRejected
	case ReasonNormal:
		rec.Status = OutcomeCompleted
	default:
		rec.Status = OutcomeFailed
	}
	return rec
}
