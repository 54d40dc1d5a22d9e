package model

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BeforeCreate hooks assign ids app-side so inserts behave the same on
// PostgreSQL and the in-memory SQLite used in tests.

func (u *User) BeforeCreate(*gorm.DB) error                    { ensureID(&u.ID); return nil }
func (d *UserDevice) BeforeCreate(*gorm.DB) error              { ensureID(&d.ID); return nil }
func (f *Follow) BeforeCreate(*gorm.DB) error                  { ensureID(&f.ID); return nil }
func (b *Block) BeforeCreate(*gorm.DB) error                   { ensureID(&b.ID); return nil }
func (c *Conversation) BeforeCreate(*gorm.DB) error            { ensureID(&c.ID); return nil }
func (p *ConversationParticipant) BeforeCreate(*gorm.DB) error { ensureID(&p.ID); return nil }
func (m *Message) BeforeCreate(*gorm.DB) error                 { ensureID(&m.ID); return nil }
func (d *MessageDelivery) BeforeCreate(*gorm.DB) error         { ensureID(&d.ID); return nil }
func (r *MessageRead) BeforeCreate(*gorm.DB) error             { ensureID(&r.ID); return nil }
func (r *MessageReaction) BeforeCreate(*gorm.DB) error         { ensureID(&r.ID); return nil }
func (a *PendingAttachment) BeforeCreate(*gorm.DB) error       { ensureID(&a.ID); return nil }
func (n *Notification) BeforeCreate(*gorm.DB) error            { ensureID(&n.ID); return nil }

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
