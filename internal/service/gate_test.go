package service

import (
	"testing"

	"github.com/agrilink/chat-api/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateRequiresFollowEdge(t *testing.T) {
	env := newTestEnv(t, testChatConfig())
	gate := NewRelationshipGate(env.socialRepo, env.userRepo)

	a := env.user(t, "alice", model.UserRoleUser)
	b := env.user(t, "bob", model.UserRoleUser)

	ok, err := gate.CanMessage(a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, ok, "strangers must not message")

	// A single follow edge in either direction opens the gate
	env.follow(t, b.ID, a.ID)
	ok, err = gate.CanMessage(a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = gate.CanMessage(b.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGateSelfDenied(t *testing.T) {
	env := newTestEnv(t, testChatConfig())
	gate := NewRelationshipGate(env.socialRepo, env.userRepo)
	a := env.user(t, "alice", model.UserRoleUser)

	ok, err := gate.CanMessage(a.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGateBlockWinsOverFollow(t *testing.T) {
	env := newTestEnv(t, testChatConfig())
	gate := NewRelationshipGate(env.socialRepo, env.userRepo)

	a := env.user(t, "alice", model.UserRoleUser)
	b := env.user(t, "bob", model.UserRoleUser)
	env.mutualFollow(t, a.ID, b.ID)
	env.block(t, b.ID, a.ID)

	// the block closes the gate in both directions
	ok, err := gate.CanMessage(a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = gate.CanMessage(b.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGateExpertWaivesFollow(t *testing.T) {
	env := newTestEnv(t, testChatConfig())
	gate := NewRelationshipGate(env.socialRepo, env.userRepo)

	farmer := env.user(t, "farmer", model.UserRoleUser)
	expert := env.user(t, "agronomist", model.UserRoleExpert)

	ok, err := gate.CanMessageExpert(farmer.ID, expert.ID)
	require.NoError(t, err)
	assert.True(t, ok, "expert consultations need no follow edge")
}

func TestGateExpertStillBlocked(t *testing.T) {
	env := newTestEnv(t, testChatConfig())
	gate := NewRelationshipGate(env.socialRepo, env.userRepo)

	farmer := env.user(t, "farmer", model.UserRoleUser)
	expert := env.user(t, "agronomist", model.UserRoleExpert)
	env.block(t, expert.ID, farmer.ID)

	ok, err := gate.CanMessageExpert(farmer.ID, expert.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGateExpertRoleEnforced(t *testing.T) {
	env := newTestEnv(t, testChatConfig())
	gate := NewRelationshipGate(env.socialRepo, env.userRepo)

	farmer := env.user(t, "farmer", model.UserRoleUser)
	notExpert := env.user(t, "regular", model.UserRoleUser)

	_, err := gate.CanMessageExpert(farmer.ID, notExpert.ID)
	assert.ErrorIs(t, err, ErrNotExpert)
}
