package model

import (
	"time"

	"github.com/google/uuid"
)

// NotificationKind identifies what triggered a notification
type NotificationKind string

const (
	NotificationKindMessage NotificationKind = "message"
)

// Notification is the persisted record the side-effect dispatcher creates
// after a message is durably stored. Delivery of the record is best-effort;
// failures never roll back or delay the message send.
type Notification struct {
	ID          uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	RecipientID uuid.UUID        `json:"recipient_id" gorm:"type:uuid;not null;index:idx_notif_recipient"`
	SenderID    uuid.UUID        `json:"sender_id" gorm:"type:uuid;not null"`
	Kind        NotificationKind `json:"kind" gorm:"type:varchar(30);not null"`
	RefID       uuid.UUID        `json:"ref_id" gorm:"type:uuid;not null"`
	RefType     string           `json:"ref_type" gorm:"size:30;not null"` // conversation, message
	Text        string           `json:"text" gorm:"size:255"`
	IsRead      bool             `json:"is_read" gorm:"default:false;index:idx_notif_recipient"`
	CreatedAt   time.Time        `json:"created_at"`

	Sender User `json:"sender" gorm:"foreignKey:SenderID"`
}
