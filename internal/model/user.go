package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRole defines the capability level of a user
type UserRole string

const (
	UserRoleUser   UserRole = "user"
	UserRoleExpert UserRole = "expert"
)

// User is the profile projection this service works with. Account
// management and credentials live in the identity service; this table only
// carries what chat responses and the relationship gate need.
type User struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	Name      string         `json:"name" gorm:"size:100;not null"`
	Avatar    string         `json:"avatar" gorm:"size:500;default:''"`
	Role      UserRole       `json:"role" gorm:"type:varchar(20);default:'user'"`
	IsOnline  bool           `json:"is_online" gorm:"default:false"`
	LastSeen  *time.Time     `json:"last_seen"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// IsExpert reports whether the user holds the expert capability
func (u *User) IsExpert() bool {
	return u.Role == UserRoleExpert
}

// UserResponse is the display-safe projection for API responses
type UserResponse struct {
	ID       uuid.UUID  `json:"id"`
	Name     string     `json:"name"`
	Avatar   string     `json:"avatar"`
	Role     UserRole   `json:"role"`
	IsOnline bool       `json:"is_online"`
	LastSeen *time.Time `json:"last_seen"`
}

// ToResponse converts User to its display-safe projection
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:       u.ID,
		Name:     u.Name,
		Avatar:   u.Avatar,
		Role:     u.Role,
		IsOnline: u.IsOnline,
		LastSeen: u.LastSeen,
	}
}

// UserDevice represents a user's device for push notifications
type UserDevice struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID       uuid.UUID `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_user_token"`
	FCMToken     string    `json:"fcm_token" gorm:"not null;uniqueIndex:idx_user_token"`
	DeviceType   string    `json:"device_type" gorm:"size:20;default:'unknown'"` // android, ios, web
	LastActiveAt time.Time `json:"last_active_at"`
	CreatedAt    time.Time `json:"created_at"`
}
