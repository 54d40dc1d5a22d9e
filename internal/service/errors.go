package service

import "errors"

// Sentinel errors crossing the service boundary. Handlers map these to
// HTTP statuses and WebSocket error events; anything else is a 500.
var (
	ErrChatNotAllowed    = errors.New("messaging not permitted between these users")
	ErrNotParticipant    = errors.New("user is not a participant of this conversation")
	ErrNotSender         = errors.New("only the sender may perform this action")
	ErrRateLimited       = errors.New("message rate limit exceeded")
	ErrEditWindowExpired = errors.New("edit window has expired")
	ErrMessageRetracted  = errors.New("message has been retracted")
	ErrNotEditable       = errors.New("only text messages can be edited")
	ErrAttachmentExpired = errors.New("attachment upload expired or already used")
	ErrEmptyMessage      = errors.New("message has no content")
	ErrNotExpert         = errors.New("target user is not an expert")
	ErrSelfConversation  = errors.New("cannot start a conversation with yourself")
	ErrUnavailable       = errors.New("service temporarily unavailable")
)
