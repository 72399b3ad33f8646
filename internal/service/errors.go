package service

import "errors"

// Service errors map one-to-one onto transport error codes. Call-terminal
// outcomes (busy aside) are not errors; they surface as state transitions.
var (
	ErrValidation     = errors.New("validation failed")
	ErrNotParticipant = errors.New("not a participant of this conversation")
	ErrNotAuthor      = errors.New("only the message sender can perform this action")
	ErrAlreadyDeleted = errors.New("message has been deleted")
	ErrInvalidState   = errors.New("call is not in a state where this is allowed")
	ErrBusy           = errors.New("user already has an active call")
	ErrCannotSelf     = errors.New("cannot target yourself")

	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrCallNotFound         = errors.New("call not found")
)
