package repository

import (
	"time"

	"github.com/agrilink/chat-api/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AttachmentRepository handles staged attachment uploads that wait to be
// bound to a message.
type AttachmentRepository struct {
	db *gorm.DB
}

func NewAttachmentRepository(db *gorm.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

// Create stages an uploaded attachment
func (r *AttachmentRepository) Create(att *model.PendingAttachment) error {
	return r.db.Create(att).Error
}

// Redeem claims a staged attachment for its uploader. The delete inside
// the transaction makes redemption single-use: a second redeemer sees no
// row. Expired rows are refused even if the sweeper has not collected
// them yet.
func (r *AttachmentRepository) Redeem(id, uploaderID uuid.UUID) (*model.PendingAttachment, error) {
	var att model.PendingAttachment
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND uploader_id = ?", id, uploaderID).First(&att).Error; err != nil {
			return err
		}
		if att.Expired(time.Now()) {
			return gorm.ErrRecordNotFound
		}
		return tx.Delete(&model.PendingAttachment{}, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return &att, nil
}

// DeleteExpired removes staged attachments past their deadline. Run
// periodically; redemption does not depend on it.
func (r *AttachmentRepository) DeleteExpired(now time.Time) (int64, error) {
	result := r.db.Where("expires_at < ?", now).Delete(&model.PendingAttachment{})
	return result.RowsAffected, result.Error
}
