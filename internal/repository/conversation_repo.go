package repository

import (
	"time"

	"github.com/agrilink/chat-api/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConversationRepository handles database operations for Conversation
type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create creates a new conversation with participants. For direct
// conversations the unique index on direct_key rejects a concurrent
// duplicate; callers retry the create as a lookup on conflict.
func (r *ConversationRepository) Create(conv *model.Conversation) error {
	return r.db.Create(conv).Error
}

// FindByID finds a conversation by ID with participants
func (r *ConversationRepository) FindByID(id uuid.UUID) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.
		Preload("Participants.User").
		Where("id = ?", id).
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// FindByDirectKey finds the direct conversation for a canonical pair key
func (r *ConversationRepository) FindByDirectKey(key string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.
		Preload("Participants.User").
		Where("kind = ? AND direct_key = ?", model.ConversationKindDirect, key).
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetUserConversations returns a page of active conversations the user
// participates in, ordered by most recent activity.
func (r *ConversationRepository) GetUserConversations(userID uuid.UUID, page, limit int) ([]model.Conversation, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var conversations []model.Conversation
	err := r.db.
		Joins("JOIN conversation_participants ON conversation_participants.conversation_id = conversations.id").
		Where("conversation_participants.user_id = ? AND conversations.is_active = ?", userID, true).
		Preload("Participants.User").
		Order("conversations.updated_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&conversations).Error
	return conversations, err
}

// IsParticipant checks if a user is a participant of a conversation. This
// is the sole authorization primitive for every message operation.
func (r *ConversationRepository) IsParticipant(conversationID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.Model(&model.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	return count > 0, err
}

// GetParticipantIDs returns all participant user IDs for a conversation
func (r *ConversationRepository) GetParticipantIDs(conversationID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.Model(&model.ConversationParticipant{}).
		Where("conversation_id = ?", conversationID).
		Pluck("user_id", &ids).Error
	return ids, err
}

// GetOtherParticipantID resolves the counterpart in a direct conversation
func (r *ConversationRepository) GetOtherParticipantID(conversationID, excludeUserID uuid.UUID) (uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.Model(&model.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id <> ?", conversationID, excludeUserID).
		Limit(1).
		Pluck("user_id", &ids).Error
	if err != nil {
		return uuid.Nil, err
	}
	if len(ids) == 0 {
		return uuid.Nil, gorm.ErrRecordNotFound
	}
	return ids[0], nil
}

// UpdateLastRead updates the last_read_at timestamp for a participant
func (r *ConversationRepository) UpdateLastRead(conversationID, userID uuid.UUID) error {
	return r.db.Model(&model.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update("last_read_at", time.Now()).Error
}

// UpdatePreview writes the denormalized latest-message preview as a
// targeted column update, bumping updated_at for activity ordering.
func (r *ConversationRepository) UpdatePreview(conversationID uuid.UUID, plaintext string, ciphertext, nonce []byte, senderID uuid.UUID, sentAt time.Time) error {
	return r.db.Model(&model.Conversation{}).
		Where("id = ?", conversationID).
		Updates(map[string]interface{}{
			"preview_text":       plaintext,
			"preview_ciphertext": ciphertext,
			"preview_nonce":      nonce,
			"preview_sender_id":  senderID,
			"preview_sent_at":    sentAt,
			"updated_at":         time.Now(),
		}).Error
}

// Deactivate marks a conversation inactive; conversations are never
// hard-deleted.
func (r *ConversationRepository) Deactivate(conversationID uuid.UUID) error {
	return r.db.Model(&model.Conversation{}).
		Where("id = ?", conversationID).
		Update("is_active", false).Error
}
