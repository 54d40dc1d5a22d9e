package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agrilink/chat-api/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestStartOrGetDirectIdempotent(t *testing.T) {
	env := newTestEnv(t, testChatConfig())
	a := env.user(t, "alice", model.UserRoleUser)
	b := env.user(t, "bob", model.UserRoleUser)
	env.follow(t, a.ID, b.ID)

	conv, isNew, err := env.svc.StartOrGetDirect(a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, isNew)
	require.Len(t, conv.Participants, 2)

	// repeat from the same side
	again, isNew, err := env.svc.StartOrGetDirect(a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, conv.ID, again.ID)

	// and from the other side: the unordered pair maps to the same thread
	fromB, isNew, err := env.svc.StartOrGetDirect(b.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, conv.ID, fromB.ID)
}

func TestStartOrGetDirectConcurrent(t *testing.T) {
	env := newTestEnv(t, testChatConfig())
	a := env.user(t, "alice", model.UserRoleUser)
	b := env.user(t, "bob", model.UserRoleUser)
	env.follow(t, a.ID, b.ID)

	// One connection serializes sqlite writers while still letting the
	// lookup-then-create sequences of different goroutines interleave, so
	// losers hit the unique direct_key index and fall back to the lookup.
	sqlDB, err := env.db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	const n = 8
	ids := make([]uuid.UUID, n)
	errs := make([]error, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			// alternate sides of the unordered pair
			x, y := a.ID, b.ID
			if i%2 == 1 {
				x, y = y, x
			}
			conv, _, err := env.svc.StartOrGetDirect(x, y)
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = conv.ID
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i], "every caller lands on the same thread")
	}

	var count int64
	env.db.Model(&model.Conversation{}).Count(&count)
	assert.EqualValues(t, 1, count, "exactly one conversation row exists")
}

func TestStartOrGetDirectGate(t *testing.T) {
	env := newTestEnv(t, testChatConfig())
	a := env.user(t, "alice", model.UserRoleUser)
	b := env.user(t, "bob", model.UserRoleUser)

	_, _, err := env.svc.StartOrGetDirect(a.ID, b.ID)
	assert.ErrorIs(t, err, ErrChatNotAllowed, "no follow edge, no thread")

	_, _, err = env.svc.StartOrGetDirect(a.ID, a.ID)
	assert.ErrorIs(t, err, ErrSelfConversation)

	env.mutualFollow(t, a.ID, b.ID)
	env.block(t, b.ID, a.ID)
	_, _, err = env.svc.StartOrGetDirect(a.ID, b.ID)
	assert.ErrorIs(t, err, ErrChatNotAllowed, "block overrides follow")
}

func TestStartOrGetExpert(t *testing.T) {
	env := newTestEnv(t, testChatConfig())
	farmer := env.user(t, "farmer", model.UserRoleUser)
	expert := env.user(t, "agronomist", model.UserRoleExpert)

	conv, isNew, err := env.svc.StartOrGetExpert(farmer.ID, expert.ID)
	require.NoError(t, err)
	assert.True(t, isNew)

	// the expert thread is the same direct thread the pair would share
	again, isNew, err := env.svc.StartOrGetExpert(farmer.ID, expert.ID)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, conv.ID, again.ID)

	regular := env.user(t, "regular", model.UserRoleUser)
	_, _, err = env.svc.StartOrGetExpert(farmer.ID, regular.ID)
	assert.ErrorIs(t, err, ErrNotExpert)
}

func startConversation(t *testing.T, env *testEnv) (model.User, model.User, *model.Conversation) {
	t.Helper()
	a := env.user(t, "alice", model.UserRoleUser)
	b := env.user(t, "bob", model.UserRoleUser)
	env.mutualFollow(t, a.ID, b.ID)
	conv, _, err := env.svc.StartOrGetDirect(a.ID, b.ID)
	require.NoError(t, err)
	return a, b, conv
}

func TestSendMessageEncryptsAtRest(t *testing.T) {
	env := newTestEnv(t, testChatConfig())
	a, b, conv := startConversation(t, env)

	msg, err := env.svc.SendMessage(context.Background(), a.ID, textMessage(conv.ID, "hello bob"))
	require.NoError(t, err)
	assert.Equal(t, "hello bob", msg.Text, "response carries plaintext")

	// the stored row holds only ciphertext
	var raw model.Message
	require.NoError(t, env.db.Where("id = ?", msg.ID).First(&raw).Error)
	assert.Empty(t, raw.Text)
	assert.NotEmpty(t, raw.Ciphertext)
	assert.NotEmpty(t, raw.Nonce)

	// and reads decrypt it back
	messages, err := env.svc.ListMessages(b.ID, conv.ID, nil, 50)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "hello bob", messages[0].Text)
	assert.False(t, messages[0].Unreadable)
}

func TestSendMessagePreview(t *testing.T) {
	env := newTestEnv(t, testChatConfig())
	a, b, conv := startConversation(t, env)

	long := strings.Repeat("x", 100)
	_, err := env.svc.SendMessage(context.Background(), a.ID, textMessage(conv.ID, long))
	require.NoError(t, err)

	// preview plaintext never hits the conversation row when encryption is on
	var raw model.Conversation
	require.NoError(t, env.db.Where("id = ?", conv.ID).First(&raw).Error)
	assert.Empty(t, raw.PreviewText)
	assert.NotEmpty(t, raw.PreviewCiphertext)

	list, err := env.svc.ListConversations(b.ID, 1, 20)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, strings.Repeat("x", 80), list[0].Preview, "preview truncated to 80 chars")
	assert.Equal(t, 1, list[0].UnreadCount)
	require.NotNil(t, list[0].Counterpart)
	assert.Equal(t, a.ID, list[0].Counterpart.ID)
}

func TestSendMessageValidation(t *testing.T) {
	env := newTestEnv(t, testChatConfig())
	a, _, conv := startConversation(t, env)
	stranger := env.user(t, "mallory", model.UserRoleUser)

	_, err := env.svc.SendMessage(context.Background(), stranger.ID, textMessage(conv.ID, "hi"))
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = env.svc.SendMessage(context.Background(), a.ID, textMessage(conv.ID, "   "))
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestSendMessageBlockSeversThread(t *testing.T) {
	env := newTestEnv(t, testChatConfig())
	a, b, conv := startConversation(t, env)

	env.block(t, b.ID, a.ID)

	_, err := env.svc.SendMessage(context.Background(), a.ID, textMessage(conv.ID, "hello?"))
	assert.ErrorIs(t, err, ErrChatNotAllowed)
	_, err = env.svc.SendMessage(context.Background(), b.ID, textMessage(conv.ID, "go away"))
	assert.ErrorIs(t, err, ErrChatNotAllowed, "the blocker is cut off too")
}

func TestSendMessageRateLimit(t *testing.T) {
	cfg := testChatConfig()
	cfg.RateLimitCount = 2
	env := newTestEnv(t, cfg)
	a, _, conv := startConversation(t, env)

	_, err := env.svc.SendMessage(context.Background(), a.ID, textMessage(conv.ID, "one"))
	require.NoError(t, err)
	_, err = env.svc.SendMessage(context.Background(), a.ID, textMessage(conv.ID, "two"))
	require.NoError(t, err)

	_, err = env.svc.SendMessage(context.Background(), a.ID, textMessage(conv.ID, "three"))
	assert.ErrorIs(t, err, ErrRateLimited)

	// the rejected message never reached the store
	var count int64
	env.db.Model(&model.Message{}).Where("conversation_id = ?", conv.ID).Count(&count)
	assert.EqualValues(t, 2, count)
}

func TestReplyThreading(t *testing.T) {
	env := newTestEnv(t, testChatConfig())
	a, b, conv := startConversation(t, env)

	first, err := env.svc.SendMessage(context.Background(), a.ID, textMessage(conv.ID, "question"))
	require.NoError(t, err)

	req := textMessage(conv.ID, "answer")
	req.ReplyToID = &first.ID
	reply, err := env.svc.SendMessage(context.Background(), b.ID, req)
	require.NoError(t, err)
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, "question", reply.ReplyTo.Text, "reply target decrypted")

	// a reply target from a different conversation is refused
	c := env.user(t, "carol", model.UserRoleUser)
	env.mutualFollow(t, a.ID, c.ID)
	other, _, err := env.svc.StartOrGetDirect(a.ID, c.ID)
	require.NoError(t, err)
	req2 := textMessage(other.ID, "cross-thread")
	req2.ReplyToID = &first.ID
	_, err = env.svc.SendMessage(context.Background(), a.ID, req2)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestStatusMonotonic(t *testing.T) {
	env := newTestEnv(t, testChatConfig())
	a, b, conv := startConversation(t, env)

	msg, err := env.svc.SendMessage(context.Background(), a.ID, textMessage(conv.ID, "hi"))
	require.NoError(t, err)
	assert.Equal(t, model.MessageStatusSent, msg.Status)

	// sender acknowledging their own message is a no-op
	same, err := env.svc.MarkDelivered(a.ID, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageStatusSent, same.Status)

	delivered, err := env.svc.MarkDelivered(b.ID, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageStatusDelivered, delivered.Status)

	ids, err := env.svc.MarkSeen(b.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{msg.ID.String()}, uuidStrings(ids))

	read, err := env.msgRepo.FindByID(msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageStatusRead, read.Status)

	// a late delivery receipt never regresses read
	still, err := env.svc.MarkDelivered(b.ID, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageStatusRead, still.Status)

	// marking seen again is idempotent
	ids, err = env.svc.MarkSeen(b.ID, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSeenSkipsOwnAndCountsUnread(t *testing.T) {
	env := newTestEnv(t, testChatConfig())
	a, b, conv := startConversation(t, env)

	for _, text := range []string{"one", "two", "three"} {
		_, err := env.svc.SendMessage(context.Background(), a.ID, textMessage(conv.ID, text))
		require.NoError(t, err)
	}
	_, err := env.svc.SendMessage(context.Background(), b.ID, textMessage(conv.ID, "reply"))
	require.NoError(t, err)

	list, err := env.svc.ListConversations(b.ID, 1, 20)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].UnreadCount, "own messages never count as unread")

	ids, err := env.svc.MarkSeen(b.ID, conv.ID)
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	list, err = env.svc.ListConversations(b.ID, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 0, list[0].UnreadCount)
}

func TestEditWindow(t *testing.T) {
	env := newTestEnv(t, testChatConfig())
	a, b, conv := startConversation(t, env)

	msg, err := env.svc.SendMessage(context.Background(), a.ID, textMessage(conv.ID, "originall"))
	require.NoError(t, err)

	edited, err := env.svc.EditMessage(a.ID, msg.ID, "original")
	require.NoError(t, err)
	assert.Equal(t, "original", edited.Text)
	assert.True(t, edited.IsEdited)
	require.NotNil(t, edited.EditedAt)

	// readers see the new text
	messages, err := env.svc.ListMessages(b.ID, conv.ID, nil, 50)
	require.NoError(t, err)
	assert.Equal(t, "original", messages[0].Text)

	_, err = env.svc.EditMessage(b.ID, msg.ID, "hijack")
	assert.ErrorIs(t, err, ErrNotSender)

	// push the message past the edit window
	require.NoError(t, env.db.Model(&model.Message{}).
		Where("id = ?", msg.ID).
		Update("created_at", time.Now().Add(-16*time.Minute)).Error)
	_, err = env.svc.EditMessage(a.ID, msg.ID, "too late")
	assert.ErrorIs(t, err, ErrEditWindowExpired)
}

func TestEditOnlyText(t *testing.T) {
	env := newTestEnv(t, testChatConfig())
	a, _, conv := startConversation(t, env)

	img, err := env.svc.SendMessage(context.Background(), a.ID, &model.SendMessageRequest{
		ConversationID: conv.ID,
		Type:           model.MessageTypeImage,
		Content:        model.MessageContent{URL: "https://files.test/photo.jpg"},
	})
	require.NoError(t, err)

	_, err = env.svc.EditMessage(a.ID, img.ID, "caption")
	assert.ErrorIs(t, err, ErrNotEditable)
}

func TestRetraction(t *testing.T) {
	env := newTestEnv(t, testChatConfig())
	a, b, conv := startConversation(t, env)

	msg, err := env.svc.SendMessage(context.Background(), a.ID, textMessage(conv.ID, "take this back"))
	require.NoError(t, err)

	_, err = env.svc.RetractMessage(b.ID, msg.ID)
	assert.ErrorIs(t, err, ErrNotSender)

	retracted, err := env.svc.RetractMessage(a.ID, msg.ID)
	require.NoError(t, err)
	assert.True(t, retracted.IsRetracted)
	require.NotNil(t, retracted.RetractedAt)

	// content and ciphertext are gone from the store
	var raw model.Message
	require.NoError(t, env.db.Where("id = ?", msg.ID).First(&raw).Error)
	assert.Empty(t, raw.Text)
	assert.Empty(t, raw.Ciphertext)
	assert.Empty(t, raw.Nonce)
	assert.Empty(t, raw.AttachmentURL)

	// the tombstone stays in the timeline
	messages, err := env.svc.ListMessages(b.ID, conv.ID, nil, 50)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.True(t, messages[0].IsRetracted)

	// retracted messages refuse edits and reactions
	_, err = env.svc.EditMessage(a.ID, msg.ID, "resurrect")
	assert.ErrorIs(t, err, ErrMessageRetracted)
	_, err = env.svc.React(b.ID, msg.ID, "👍")
	assert.ErrorIs(t, err, ErrMessageRetracted)

	// repeating the retraction is harmless
	again, err := env.svc.RetractMessage(a.ID, msg.ID)
	require.NoError(t, err)
	assert.True(t, again.IsRetracted)
}

func TestReactionLastWriteWins(t *testing.T) {
	env := newTestEnv(t, testChatConfig())
	a, b, conv := startConversation(t, env)

	msg, err := env.svc.SendMessage(context.Background(), a.ID, textMessage(conv.ID, "react to me"))
	require.NoError(t, err)

	first, err := env.svc.React(b.ID, msg.ID, "❤️")
	require.NoError(t, err)
	require.Len(t, first.Reactions, 1)
	assert.Equal(t, "❤️", first.Reactions[0].Emoji)

	// the same user reacting again replaces, never stacks
	second, err := env.svc.React(b.ID, msg.ID, "👍")
	require.NoError(t, err)
	require.Len(t, second.Reactions, 1)
	assert.Equal(t, "👍", second.Reactions[0].Emoji)

	// another participant adds their own
	both, err := env.svc.React(a.ID, msg.ID, "🌾")
	require.NoError(t, err)
	assert.Len(t, both.Reactions, 2)

	stranger := env.user(t, "mallory", model.UserRoleUser)
	_, err = env.svc.React(stranger.ID, msg.ID, "👀")
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestListMessagesPaging(t *testing.T) {
	env := newTestEnv(t, testChatConfig())
	a, b, conv := startConversation(t, env)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		msg, err := env.svc.SendMessage(context.Background(), a.ID, textMessage(conv.ID, string(rune('a'+i))))
		require.NoError(t, err)
		// spread creation times so the cursor has distinct boundaries
		require.NoError(t, env.db.Model(&model.Message{}).
			Where("id = ?", msg.ID).
			Update("created_at", base.Add(time.Duration(i)*time.Minute)).Error)
	}

	page1, err := env.svc.ListMessages(b.ID, conv.ID, nil, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, "e", page1[0].Text)
	assert.Equal(t, "d", page1[1].Text)

	cursor := page1[len(page1)-1].ID
	page2, err := env.svc.ListMessages(b.ID, conv.ID, &cursor, 2)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, "c", page2[0].Text)
	assert.Equal(t, "b", page2[1].Text)

	_, err = env.svc.ListMessages(env.user(t, "mallory", model.UserRoleUser).ID, conv.ID, nil, 10)
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestDecryptFailureDegradesOneMessage(t *testing.T) {
	env := newTestEnv(t, testChatConfig())
	a, b, conv := startConversation(t, env)

	good, err := env.svc.SendMessage(context.Background(), a.ID, textMessage(conv.ID, "readable"))
	require.NoError(t, err)

	corrupt := &model.Message{
		ConversationID: conv.ID,
		SenderID:       a.ID,
		Type:           model.MessageTypeText,
		Ciphertext:     []byte("not a real ciphertext"),
		Nonce:          make([]byte, 12),
		Status:         model.MessageStatusSent,
	}
	require.NoError(t, env.msgRepo.Create(corrupt))

	messages, err := env.svc.ListMessages(b.ID, conv.ID, nil, 50)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	byID := map[string]model.Message{}
	for _, m := range messages {
		byID[m.ID.String()] = m
	}
	assert.Equal(t, "readable", byID[good.ID.String()].Text)
	assert.True(t, byID[corrupt.ID.String()].Unreadable, "bad payload is redacted, not fatal")
	assert.Empty(t, byID[corrupt.ID.String()].Text)
}

func TestConversationListHidesBlocked(t *testing.T) {
	env := newTestEnv(t, testChatConfig())
	a, b, conv := startConversation(t, env)
	_ = conv

	c := env.user(t, "carol", model.UserRoleUser)
	env.mutualFollow(t, a.ID, c.ID)
	_, _, err := env.svc.StartOrGetDirect(a.ID, c.ID)
	require.NoError(t, err)

	list, err := env.svc.ListConversations(a.ID, 1, 20)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	// blocking hides the thread from the list without deleting it
	env.block(t, a.ID, b.ID)
	list, err = env.svc.ListConversations(a.ID, 1, 20)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, c.ID, list[0].Counterpart.ID)
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
