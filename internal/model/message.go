package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageType defines the type of message content
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeVoice MessageType = "voice"
	MessageTypeFile  MessageType = "file"
)

// MessageStatus is the derived rollup of a message's delivery state. For a
// direct conversation it is the furthest state the counterpart has reached;
// the per-recipient facts live in MessageDelivery / MessageRead rows.
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
)

// Message represents a chat message. When encryption is active the body
// lives in Ciphertext+Nonce and Text stays empty on disk; Text carries the
// decrypted payload in responses. Ciphertext and Nonce are never serialized.
type Message struct {
	ID             uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey"`
	ConversationID uuid.UUID     `json:"conversation_id" gorm:"type:uuid;index:idx_conv_created;not null"`
	SenderID       uuid.UUID     `json:"sender_id" gorm:"type:uuid;index;not null"`
	Type           MessageType   `json:"type" gorm:"type:varchar(20);default:'text'"`
	Text           string        `json:"text" gorm:"type:text"`
	Ciphertext     []byte        `json:"-"`
	Nonce          []byte        `json:"-"`
	Status         MessageStatus `json:"status" gorm:"type:varchar(20);default:'sent'"`

	AttachmentType string `json:"attachment_type,omitempty" gorm:"size:20"`
	AttachmentURL  string `json:"attachment_url,omitempty" gorm:"size:1000"`
	AttachmentName string `json:"attachment_name,omitempty" gorm:"size:255"`
	AttachmentSize int64  `json:"attachment_size,omitempty"`
	AttachmentMime string `json:"attachment_mime,omitempty" gorm:"size:100"`

	ReplyToID   *uuid.UUID `json:"reply_to_id,omitempty" gorm:"type:uuid"`
	IsEdited    bool       `json:"is_edited" gorm:"default:false"`
	EditedAt    *time.Time `json:"edited_at,omitempty"`
	IsRetracted bool       `json:"is_retracted" gorm:"default:false"`
	RetractedAt *time.Time `json:"retracted_at,omitempty"`

	// Unreadable marks a payload whose decryption failed; the message is
	// returned redacted rather than aborting the page.
	Unreadable bool `json:"unreadable,omitempty" gorm:"-"`

	CreatedAt time.Time      `json:"created_at" gorm:"index:idx_conv_created"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Sender       User              `json:"sender" gorm:"foreignKey:SenderID"`
	Conversation Conversation      `json:"-" gorm:"foreignKey:ConversationID"`
	ReplyTo      *Message          `json:"reply_to,omitempty" gorm:"foreignKey:ReplyToID"`
	Deliveries   []MessageDelivery `json:"delivered_to,omitempty" gorm:"foreignKey:MessageID"`
	Reads        []MessageRead     `json:"read_by,omitempty" gorm:"foreignKey:MessageID"`
	Reactions    []MessageReaction `json:"reactions,omitempty" gorm:"foreignKey:MessageID"`
}

// MessageDelivery records a recipient's delivery acknowledgment. The
// (message, user) pair is unique; re-acknowledgment is an idempotent no-op.
type MessageDelivery struct {
	ID          uuid.UUID `json:"-" gorm:"type:uuid;primaryKey"`
	MessageID   uuid.UUID `json:"-" gorm:"type:uuid;uniqueIndex:idx_delivery_user;not null"`
	UserID      uuid.UUID `json:"user_id" gorm:"type:uuid;uniqueIndex:idx_delivery_user;not null"`
	DeliveredAt time.Time `json:"delivered_at" gorm:"not null"`
}

// MessageRead records a recipient having read a message. Append-only and
// unique per (message, user); once recorded it is never removed, which
// keeps the displayed status monotonic.
type MessageRead struct {
	ID        uuid.UUID `json:"-" gorm:"type:uuid;primaryKey"`
	MessageID uuid.UUID `json:"-" gorm:"type:uuid;uniqueIndex:idx_read_user;not null"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;uniqueIndex:idx_read_user;not null"`
	ReadAt    time.Time `json:"read_at" gorm:"not null"`
}

// MessageReaction holds a user's single reaction to a message; a repeat
// reaction by the same user replaces the emoji (last write wins).
type MessageReaction struct {
	ID        uuid.UUID `json:"-" gorm:"type:uuid;primaryKey"`
	MessageID uuid.UUID `json:"-" gorm:"type:uuid;uniqueIndex:idx_reaction_user;not null"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;uniqueIndex:idx_reaction_user;not null"`
	Emoji     string    `json:"emoji" gorm:"size:32;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
