package repository

import (
	"time"

	"github.com/agrilink/chat-api/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepository handles database operations for Message and its
// per-recipient delivery/read/reaction facts. Every multi-writer update is
// a targeted set-append or field-upsert so concurrent acknowledgments from
// different recipients never overwrite each other.
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts a new message
func (r *MessageRepository) Create(msg *model.Message) error {
	return r.db.Create(msg).Error
}

// FindByID finds a message by ID with its sender, reply target and
// per-recipient state.
func (r *MessageRepository) FindByID(id uuid.UUID) (*model.Message, error) {
	var msg model.Message
	err := r.db.
		Preload("Sender").
		Preload("ReplyTo.Sender").
		Preload("Reactions").
		Preload("Deliveries").
		Preload("Reads").
		Where("id = ?", id).
		First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListBefore returns a newest-first page of messages with a strict
// exclusive created_at cursor, so concurrent inserts cannot duplicate or
// drop items across pages.
func (r *MessageRepository) ListBefore(conversationID uuid.UUID, before *uuid.UUID, limit int) ([]model.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	messages := []model.Message{}
	query := r.db.
		Preload("Sender").
		Preload("ReplyTo.Sender").
		Preload("Reactions").
		Preload("Reads").
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit)

	if before != nil {
		var cursor model.Message
		if err := r.db.Select("created_at").Where("id = ?", before).First(&cursor).Error; err != nil {
			return nil, err
		}
		query = query.Where("created_at < ?", cursor.CreatedAt)
	}

	err := query.Find(&messages).Error
	return messages, err
}

// MarkDelivered appends a recipient's delivery acknowledgment. The unique
// (message, user) pair makes re-acknowledgment a no-op, and the status
// rollup is only raised from sent, never regressed.
func (r *MessageRepository) MarkDelivered(messageID, userID uuid.UUID) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.MessageDelivery{
			MessageID:   messageID,
			UserID:      userID,
			DeliveredAt: time.Now(),
		}).Error
		if err != nil {
			return err
		}
		return tx.Model(&model.Message{}).
			Where("id = ? AND status = ?", messageID, model.MessageStatusSent).
			Update("status", model.MessageStatusDelivered).Error
	})
}

// MarkConversationSeen appends read records for every not-yet-read,
// non-retracted message from other senders and raises their rollup to
// read. Returns the ids that gained a read record.
func (r *MessageRepository) MarkConversationSeen(conversationID, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.Transaction(func(tx *gorm.DB) error {
		readSub := tx.Model(&model.MessageRead{}).Select("message_id").Where("user_id = ?", userID)
		if err := tx.Model(&model.Message{}).
			Where("conversation_id = ? AND sender_id <> ? AND is_retracted = ?", conversationID, userID, false).
			Where("id NOT IN (?)", readSub).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		now := time.Now()
		reads := make([]model.MessageRead, 0, len(ids))
		for _, id := range ids {
			reads = append(reads, model.MessageRead{MessageID: id, UserID: userID, ReadAt: now})
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&reads).Error; err != nil {
			return err
		}
		return tx.Model(&model.Message{}).
			Where("id IN ? AND status <> ?", ids, model.MessageStatusRead).
			Update("status", model.MessageStatusRead).Error
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// UpsertReaction stores a user's single reaction; a repeat replaces the
// emoji (last write wins).
func (r *MessageRepository) UpsertReaction(messageID, userID uuid.UUID, emoji string) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"emoji", "updated_at"}),
	}).Create(&model.MessageReaction{
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
	}).Error
}

// ApplyEdit rewrites a text message body in place
func (r *MessageRepository) ApplyEdit(messageID uuid.UUID, text string, ciphertext, nonce []byte) error {
	now := time.Now()
	return r.db.Model(&model.Message{}).
		Where("id = ?", messageID).
		Updates(map[string]interface{}{
			"text":       text,
			"ciphertext": ciphertext,
			"nonce":      nonce,
			"is_edited":  true,
			"edited_at":  now,
		}).Error
}

// Retract clears the payload and attachment, leaving a tombstone that
// preserves ordering and thread continuity.
func (r *MessageRepository) Retract(messageID uuid.UUID) error {
	now := time.Now()
	return r.db.Model(&model.Message{}).
		Where("id = ?", messageID).
		Updates(map[string]interface{}{
			"text":            "",
			"ciphertext":      nil,
			"nonce":           nil,
			"attachment_type": "",
			"attachment_url":  "",
			"attachment_name": "",
			"attachment_size": 0,
			"attachment_mime": "",
			"is_retracted":    true,
			"retracted_at":    now,
		}).Error
}

// CountUnread derives the unread count at read time: messages from other
// participants minus those already in the user's read set. No mutable
// counter exists to drift.
func (r *MessageRepository) CountUnread(conversationID, userID uuid.UUID) (int64, error) {
	readSub := r.db.Model(&model.MessageRead{}).Select("message_id").Where("user_id = ?", userID)
	var count int64
	err := r.db.Model(&model.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_retracted = ?", conversationID, userID, false).
		Where("id NOT IN (?)", readSub).
		Count(&count).Error
	return count, err
}
