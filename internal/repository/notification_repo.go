package repository

import (
	"github.com/agrilink/chat-api/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationRepository handles database operations for notifications
type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a new notification
func (r *NotificationRepository) Create(n *model.Notification) error {
	return r.db.Create(n).Error
}

// ListForUser returns a user's notifications, newest first
func (r *NotificationRepository) ListForUser(userID uuid.UUID, page, limit int) ([]model.Notification, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	notifications := []model.Notification{}
	err := r.db.
		Preload("Sender").
		Where("recipient_id = ?", userID).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&notifications).Error
	return notifications, err
}

// MarkAllRead marks all of a user's notifications as read
func (r *NotificationRepository) MarkAllRead(userID uuid.UUID) error {
	return r.db.Model(&model.Notification{}).
		Where("recipient_id = ? AND is_read = ?", userID, false).
		Update("is_read", true).Error
}

// CountUnread returns the number of unread notifications
func (r *NotificationRepository) CountUnread(userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.Model(&model.Notification{}).
		Where("recipient_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}
