package repository

import (
	"github.com/agrilink/chat-api/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SocialRepository reads the follow/block graph. The graph itself is owned
// by the social service; this repository only answers the two questions the
// relationship gate asks, directly against the current state (never cached).
type SocialRepository struct {
	db *gorm.DB
}

func NewSocialRepository(db *gorm.DB) *SocialRepository {
	return &SocialRepository{db: db}
}

// IsFollowing reports whether follower follows following
func (r *SocialRepository) IsFollowing(followerID, followingID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.Model(&model.Follow{}).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Count(&count).Error
	return count > 0, err
}

// IsBlocked reports whether blocker has blocked blocked
func (r *SocialRepository) IsBlocked(blockerID, blockedID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.Model(&model.Block{}).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Count(&count).Error
	return count > 0, err
}

// IsBlockedEither reports whether a block edge exists between the two users
// in either direction.
func (r *SocialRepository) IsBlockedEither(a, b uuid.UUID) (bool, error) {
	var count int64
	err := r.db.Model(&model.Block{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&count).Error
	return count > 0, err
}

// BlockedIDs returns every user id blocked by or blocking the given user,
// used to filter conversation lists.
func (r *SocialRepository) BlockedIDs(userID uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	err := r.db.Model(&model.Block{}).
		Where("blocker_id = ?", userID).
		Pluck("blocked_id", &out).Error
	if err != nil {
		return nil, err
	}
	var blockers []uuid.UUID
	err = r.db.Model(&model.Block{}).
		Where("blocked_id = ?", userID).
		Pluck("blocker_id", &blockers).Error
	if err != nil {
		return nil, err
	}
	return append(out, blockers...), nil
}

// Follow inserts a follow edge (seeder/tests)
func (r *SocialRepository) Follow(followerID, followingID uuid.UUID) error {
	return r.db.Create(&model.Follow{FollowerID: followerID, FollowingID: followingID}).Error
}

// Block inserts a block edge (seeder/tests)
func (r *SocialRepository) Block(blockerID, blockedID uuid.UUID) error {
	return r.db.Create(&model.Block{BlockerID: blockerID, BlockedID: blockedID}).Error
}
