package model

import (
	"time"

	"github.com/google/uuid"
)

// PendingAttachment bridges an out-of-band upload to a later message send.
// Video and document uploads land here; the row is redeemed at most once by
// a send referencing its id and is garbage-collected after ExpiresAt
// regardless of references.
type PendingAttachment struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UploaderID  uuid.UUID `json:"uploader_id" gorm:"type:uuid;not null;index"`
	Data        []byte    `json:"-" gorm:"not null"`
	ContentType string    `json:"content_type" gorm:"size:100;not null"`
	Filename    string    `json:"filename" gorm:"size:255;default:''"`
	Size        int64     `json:"size" gorm:"not null"`
	ExpiresAt   time.Time `json:"expires_at" gorm:"not null;index"`
	CreatedAt   time.Time `json:"created_at"`
}

// Expired reports whether the attachment's time-to-live has passed.
func (p *PendingAttachment) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// UploadResponse describes an accepted chat upload. Images get an
// immediately-addressable URL; videos and documents get an opaque id
// redeemable by a subsequent message send.
type UploadResponse struct {
	ID          *uuid.UUID `json:"id,omitempty"`
	URL         string     `json:"url,omitempty"`
	Type        string     `json:"type"` // image, video, document
	ContentType string     `json:"content_type,omitempty"`
	Filename    string     `json:"filename,omitempty"`
	Size        int64      `json:"size,omitempty"`
}
