package repository

import (
	"time"

	"github.com/agrilink/chat-api/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository handles database operations for User and UserDevice
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user (seeder/tests)
func (r *UserRepository) Create(user *model.User) error {
	return r.db.Create(user).Error
}

// FindByID finds a user by ID
func (r *UserRepository) FindByID(id uuid.UUID) (*model.User, error) {
	var user model.User
	if err := r.db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateOnlineStatus sets the user's presence flag and last-seen timestamp
func (r *UserRepository) UpdateOnlineStatus(userID uuid.UUID, online bool) error {
	updates := map[string]interface{}{"is_online": online}
	if !online {
		updates["last_seen"] = time.Now()
	}
	return r.db.Model(&model.User{}).Where("id = ?", userID).Updates(updates).Error
}

// RegisterDevice upserts an FCM token for a user's device
func (r *UserRepository) RegisterDevice(device *model.UserDevice) error {
	device.LastActiveAt = time.Now()
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "fcm_token"}},
		DoUpdates: clause.AssignmentColumns([]string{"device_type", "last_active_at"}),
	}).Create(device).Error
}

// GetUserDevices returns all registered devices for a user
func (r *UserRepository) GetUserDevices(userID uuid.UUID) ([]model.UserDevice, error) {
	var devices []model.UserDevice
	err := r.db.Where("user_id = ?", userID).Find(&devices).Error
	return devices, err
}
