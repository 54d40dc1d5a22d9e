package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// ========== Conversation DTOs ==========

type StartConversationRequest struct {
	OtherUserID uuid.UUID `json:"other_user_id" binding:"required"`
}

type StartExpertConversationRequest struct {
	ExpertID uuid.UUID `json:"expert_id" binding:"required"`
}

type StartConversationResponse struct {
	Conversation ConversationResponse `json:"conversation"`
	IsNew        bool                 `json:"is_new"`
}

// ConversationResponse decorates a conversation with the fields derived at
// read time: decrypted preview, unread count, and the counterpart projection.
type ConversationResponse struct {
	Conversation
	Preview     string        `json:"preview"`
	UnreadCount int           `json:"unread_count"`
	Counterpart *UserResponse `json:"counterpart,omitempty"`
}

type ConversationListRequest struct {
	Page  int `form:"page,default=1"`
	Limit int `form:"limit,default=20"`
}

// ========== Message DTOs ==========

// MessageContent is the polymorphic content of a send request. Text carries
// the body for text messages; URL an already-uploaded image; AttachmentID a
// pending upload to redeem.
type MessageContent struct {
	Text         string     `json:"text,omitempty"`
	URL          string     `json:"url,omitempty"`
	AttachmentID *uuid.UUID `json:"attachment_id,omitempty"`
}

type SendMessageRequest struct {
	ConversationID uuid.UUID      `json:"conversation_id" binding:"required"`
	Type           MessageType    `json:"type"`
	Content        MessageContent `json:"content"`
	ReplyToID      *uuid.UUID     `json:"reply_to_id,omitempty"`
}

type EditMessageRequest struct {
	MessageID uuid.UUID `json:"message_id" binding:"required"`
	Text      string    `json:"text" binding:"required"`
}

type ReactionRequest struct {
	MessageID uuid.UUID `json:"message_id" binding:"required"`
	Emoji     string    `json:"emoji" binding:"required"`
}

type MessageListRequest struct {
	Before string `form:"before"` // cursor: message ID, exclusive boundary
	Limit  int    `form:"limit,default=50"`
}

// ========== Device / notification DTOs ==========

type RegisterDeviceRequest struct {
	FCMToken   string `json:"fcm_token" binding:"required"`
	DeviceType string `json:"device_type" binding:"required"`
}

// ========== WebSocket events ==========

// WSEvent is the envelope for every frame on a chat connection.
type WSEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewWSEvent marshals payload into a ready-to-send event envelope.
func NewWSEvent(eventType string, payload interface{}) *OutEvent {
	return &OutEvent{Type: eventType, Payload: payload}
}

// OutEvent is the outbound counterpart of WSEvent; its payload is a value,
// marshaled once at fan-out time.
type OutEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Inbound event types
const (
	WSEventConversationJoin  = "conversation:join"
	WSEventConversationLeave = "conversation:leave"
	WSEventMessageSend       = "message:send"
	WSEventMessageSeen       = "message:seen"
	WSEventMessageDelivered  = "message:delivered"
	WSEventMessageReaction   = "message:reaction"
	WSEventMessageEdit       = "message:edit"
	WSEventMessageRetract    = "message:retract"
	WSEventTypingStart       = "typing:start"
	WSEventTypingStop        = "typing:stop"
)

// Outbound event types
const (
	WSEventConversationJoined = "conversation:joined"
	WSEventMessageNew         = "message:new"
	WSEventUserTyping         = "user:typing"
	WSEventUserStoppedTyping  = "user:stopped-typing"
	WSEventUserOnline         = "user:online"
	WSEventUserOffline        = "user:offline"
	WSEventNotification       = "notification:new"
	WSEventError              = "error"
)

type ConversationEvent struct {
	ConversationID uuid.UUID `json:"conversation_id"`
}

type SeenEvent struct {
	ConversationID uuid.UUID   `json:"conversation_id"`
	UserID         uuid.UUID   `json:"user_id"`
	MessageIDs     []uuid.UUID `json:"message_ids"`
}

type DeliveredEvent struct {
	MessageID      uuid.UUID `json:"message_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
}

type ReactionEvent struct {
	MessageID uuid.UUID `json:"message_id"`
	Message   *Message  `json:"message"`
}

type EditEvent struct {
	MessageID uuid.UUID `json:"message_id"`
	Message   *Message  `json:"message"`
}

type RetractEvent struct {
	MessageID      uuid.UUID `json:"message_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
}

type TypingEvent struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	Name           string    `json:"name"`
}

type PresenceEvent struct {
	UserID   uuid.UUID `json:"user_id"`
	IsOnline bool      `json:"is_online"`
}

// ErrorEvent is sent to the originating connection only, never broadcast to
// a conversation group.
type ErrorEvent struct {
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

// ========== Common ==========

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
