package service

import (
	"github.com/agrilink/chat-api/internal/model"
	"github.com/agrilink/chat-api/internal/repository"
	"github.com/google/uuid"
)

// RelationshipGate decides whether two users may exchange messages based
// on the follow/block graph. A block in either direction always wins over
// any follow edge.
type RelationshipGate struct {
	socialRepo *repository.SocialRepository
	userRepo   *repository.UserRepository
}

func NewRelationshipGate(socialRepo *repository.SocialRepository, userRepo *repository.UserRepository) *RelationshipGate {
	return &RelationshipGate{socialRepo: socialRepo, userRepo: userRepo}
}

// CanMessage reports whether a may message b: distinct users, no block in
// either direction, and at least one follow edge between them.
func (g *RelationshipGate) CanMessage(a, b uuid.UUID) (bool, error) {
	if a == b {
		return false, nil
	}
	blocked, err := g.socialRepo.IsBlockedEither(a, b)
	if err != nil {
		return false, err
	}
	if blocked {
		return false, nil
	}
	follows, err := g.socialRepo.IsFollowing(a, b)
	if err != nil {
		return false, err
	}
	if follows {
		return true, nil
	}
	return g.socialRepo.IsFollowing(b, a)
}

// CanMessageExpert reports whether a may open a consultation with expert
// b. The follow requirement is waived; blocks still apply.
func (g *RelationshipGate) CanMessageExpert(a, expertID uuid.UUID) (bool, error) {
	if a == expertID {
		return false, nil
	}
	expert, err := g.userRepo.FindByID(expertID)
	if err != nil {
		return false, err
	}
	if expert.Role != model.UserRoleExpert {
		return false, ErrNotExpert
	}
	blocked, err := g.socialRepo.IsBlockedEither(a, expertID)
	if err != nil {
		return false, err
	}
	return !blocked, nil
}
