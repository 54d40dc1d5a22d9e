package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConversationKind defines whether the conversation is direct or group
type ConversationKind string

const (
	ConversationKindDirect ConversationKind = "direct"
	ConversationKindGroup  ConversationKind = "group"
)

// Conversation represents a messaging thread. Direct conversations carry a
// canonical DirectKey (sorted participant pair) backed by a unique index, so
// two concurrent start-or-get calls can never create a duplicate thread.
// Conversations are never hard-deleted, only marked inactive.
type Conversation struct {
	ID        uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	Kind      ConversationKind `json:"kind" gorm:"type:varchar(20);default:'direct'"`
	DirectKey *string          `json:"-" gorm:"size:80;uniqueIndex"`
	IsActive  bool             `json:"is_active" gorm:"default:true"`

	// Denormalized preview of the latest message for list rendering. The
	// snippet is a plaintext truncation; when encryption is on it is sealed
	// under its own nonce and the plaintext column stays empty.
	PreviewText       string     `json:"-" gorm:"size:80"`
	PreviewCiphertext []byte     `json:"-"`
	PreviewNonce      []byte     `json:"-"`
	PreviewSenderID   *uuid.UUID `json:"preview_sender_id,omitempty" gorm:"type:uuid"`
	PreviewSentAt     *time.Time `json:"preview_sent_at,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Participants []ConversationParticipant `json:"participants,omitempty" gorm:"foreignKey:ConversationID"`
}

// ParticipantRole defines the role of a participant in a conversation
type ParticipantRole string

const (
	ParticipantRoleAdmin  ParticipantRole = "admin"
	ParticipantRoleMember ParticipantRole = "member"
)

// ConversationParticipant represents a user's membership in a conversation
type ConversationParticipant struct {
	ID             uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	ConversationID uuid.UUID       `json:"conversation_id" gorm:"type:uuid;uniqueIndex:idx_conv_user;not null"`
	UserID         uuid.UUID       `json:"user_id" gorm:"type:uuid;uniqueIndex:idx_conv_user;not null"`
	Role           ParticipantRole `json:"role" gorm:"type:varchar(20);default:'member'"`
	JoinedAt       time.Time       `json:"joined_at"`
	LastReadAt     *time.Time      `json:"last_read_at,omitempty"`

	User         User         `json:"user" gorm:"foreignKey:UserID"`
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID"`
}

// DirectKey canonicalizes an unordered user pair into the unique lookup key
// for a direct conversation.
func DirectKey(a, b uuid.UUID) string {
	ids := []string{a.String(), b.String()}
	if strings.Compare(ids[0], ids[1]) > 0 {
		ids[0], ids[1] = ids[1], ids[0]
	}
	return ids[0] + ":" + ids[1]
}

// Counterpart returns the participant other than userID in a direct
// conversation, or nil when there is none.
func (c *Conversation) Counterpart(userID uuid.UUID) *ConversationParticipant {
	for i := range c.Participants {
		if c.Participants[i].UserID != userID {
			return &c.Participants[i]
		}
	}
	return nil
}
