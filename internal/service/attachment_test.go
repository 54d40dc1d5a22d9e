package service

import (
	"context"
	"testing"
	"time"

	"github.com/agrilink/chat-api/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStagedAttachmentRedeemedBySend(t *testing.T) {
	env := newTestEnv(t, testChatConfig())
	a, b, conv := startConversation(t, env)

	att, err := env.svc.StageAttachment(a.ID, []byte("%PDF-1.4 ..."), "application/pdf", "soil-report.pdf")
	require.NoError(t, err)

	msg, err := env.svc.SendMessage(context.Background(), a.ID, &model.SendMessageRequest{
		ConversationID: conv.ID,
		Type:           model.MessageTypeFile,
		Content:        model.MessageContent{AttachmentID: &att.ID},
	})
	require.NoError(t, err)
	assert.Contains(t, msg.AttachmentURL, "https://files.test/")
	assert.Equal(t, "soil-report.pdf", msg.AttachmentName)
	assert.Equal(t, "application/pdf", msg.AttachmentMime)
	assert.EqualValues(t, 12, msg.AttachmentSize)

	// redemption is single-use
	_, err = env.svc.SendMessage(context.Background(), a.ID, &model.SendMessageRequest{
		ConversationID: conv.ID,
		Type:           model.MessageTypeFile,
		Content:        model.MessageContent{AttachmentID: &att.ID},
	})
	assert.ErrorIs(t, err, ErrAttachmentExpired)

	// the recipient sees the attachment descriptor
	messages, err := env.svc.ListMessages(b.ID, conv.ID, nil, 50)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "document", messages[0].AttachmentType)
}

func TestStagedAttachmentOwnership(t *testing.T) {
	env := newTestEnv(t, testChatConfig())
	a, b, conv := startConversation(t, env)

	att, err := env.svc.StageAttachment(a.ID, []byte("data"), "application/zip", "archive.zip")
	require.NoError(t, err)

	// only the uploader may redeem
	_, err = env.svc.SendMessage(context.Background(), b.ID, &model.SendMessageRequest{
		ConversationID: conv.ID,
		Type:           model.MessageTypeFile,
		Content:        model.MessageContent{AttachmentID: &att.ID},
	})
	assert.ErrorIs(t, err, ErrAttachmentExpired)
}

func TestStagedAttachmentExpiry(t *testing.T) {
	env := newTestEnv(t, testChatConfig())
	a, _, conv := startConversation(t, env)

	att, err := env.svc.StageAttachment(a.ID, []byte("data"), "application/pdf", "late.pdf")
	require.NoError(t, err)
	require.NoError(t, env.db.Model(&model.PendingAttachment{}).
		Where("id = ?", att.ID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	_, err = env.svc.SendMessage(context.Background(), a.ID, &model.SendMessageRequest{
		ConversationID: conv.ID,
		Type:           model.MessageTypeFile,
		Content:        model.MessageContent{AttachmentID: &att.ID},
	})
	assert.ErrorIs(t, err, ErrAttachmentExpired)
}

func TestSweepExpiredAttachments(t *testing.T) {
	env := newTestEnv(t, testChatConfig())
	a, _, _ := startConversation(t, env)

	fresh, err := env.svc.StageAttachment(a.ID, []byte("keep"), "application/pdf", "keep.pdf")
	require.NoError(t, err)
	stale, err := env.svc.StageAttachment(a.ID, []byte("drop"), "application/pdf", "drop.pdf")
	require.NoError(t, err)
	require.NoError(t, env.db.Model(&model.PendingAttachment{}).
		Where("id = ?", stale.ID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	env.svc.SweepExpired()

	var remaining []model.PendingAttachment
	require.NoError(t, env.db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, fresh.ID, remaining[0].ID)
}
