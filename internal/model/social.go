package model

import (
	"time"

	"github.com/google/uuid"
)

// Follow is a directed edge in the social graph: follower -> following.
type Follow struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	FollowerID  uuid.UUID `json:"follower_id" gorm:"type:uuid;not null;uniqueIndex:idx_follow_pair"`
	FollowingID uuid.UUID `json:"following_id" gorm:"type:uuid;not null;uniqueIndex:idx_follow_pair"`
	CreatedAt   time.Time `json:"created_at"`

	Follower  User `json:"-" gorm:"foreignKey:FollowerID"`
	Following User `json:"-" gorm:"foreignKey:FollowingID"`
}

// Block is a directed block edge: blocker -> blocked. A block in either
// direction closes the conversation gate between the two users.
type Block struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	BlockerID uuid.UUID `json:"blocker_id" gorm:"type:uuid;not null;uniqueIndex:idx_block_pair"`
	BlockedID uuid.UUID `json:"blocked_id" gorm:"type:uuid;not null;uniqueIndex:idx_block_pair"`
	CreatedAt time.Time `json:"created_at"`

	Blocker User `json:"-" gorm:"foreignKey:BlockerID"`
	Blocked User `json:"-" gorm:"foreignKey:BlockedID"`
}
