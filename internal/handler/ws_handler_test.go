package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agrilink/chat-api/internal/config"
	"github.com/agrilink/chat-api/internal/crypto"
	"github.com/agrilink/chat-api/internal/model"
	"github.com/agrilink/chat-api/internal/repository"
	"github.com/agrilink/chat-api/internal/service"
	"github.com/agrilink/chat-api/internal/ws"
	"github.com/agrilink/chat-api/pkg/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const wsTestKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

type wsTestEnv struct {
	server *httptest.Server
	svc    *service.ChatService
	jwt    *auth.JWTManager
	users  *repository.UserRepository
	social *repository.SocialRepository
}

func newWSTestEnv(t *testing.T) *wsTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Follow{},
		&model.Block{},
		&model.Conversation{},
		&model.ConversationParticipant{},
		&model.Message{},
		&model.MessageDelivery{},
		&model.MessageRead{},
		&model.MessageReaction{},
		&model.PendingAttachment{},
	))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	cipher, err := crypto.New(true, wsTestKey)
	require.NoError(t, err)

	userRepo := repository.NewUserRepository(db)
	socialRepo := repository.NewSocialRepository(db)
	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	attachRepo := repository.NewAttachmentRepository(db)

	cfg := config.ChatConfig{
		EditWindow:      15 * time.Minute,
		RateLimitCount:  60,
		RateLimitWindow: time.Minute,
		AttachmentTTL:   time.Hour,
		PreviewMaxLen:   80,
	}
	gate := service.NewRelationshipGate(socialRepo, userRepo)
	limiter := service.NewRateLimiter(cfg.RateLimitCount, cfg.RateLimitWindow)
	svc := service.NewChatService(
		convRepo, msgRepo, userRepo, socialRepo, attachRepo,
		gate, limiter, cipher, nil, cfg, zap.NewNop(),
	)

	hub := ws.NewHub(nil, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	jwtManager := auth.NewJWTManager("ws-test-secret", time.Hour)
	wsHandler := NewWSHandler(hub, svc, jwtManager, zap.NewNop())

	router := gin.New()
	router.GET("/ws", wsHandler.HandleWebSocket)
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return &wsTestEnv{server: server, svc: svc, jwt: jwtManager, users: userRepo, social: socialRepo}
}

func (e *wsTestEnv) user(t *testing.T, name string) model.User {
	t.Helper()
	u := model.User{Name: name, Role: model.UserRoleUser}
	require.NoError(t, e.users.Create(&u))
	return u
}

// wsSession is one connected client; it splits the write pump's batched
// frames back into events and skips advisory presence.
type wsSession struct {
	conn   *websocket.Conn
	queued []model.WSEvent
}

func (e *wsTestEnv) connect(t *testing.T, u model.User) *wsSession {
	t.Helper()
	token, err := e.jwt.GenerateToken(u.ID, u.Name, string(u.Role))
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &wsSession{conn: conn}
}

func (s *wsSession) send(t *testing.T, eventType string, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, s.conn.WriteJSON(model.WSEvent{Type: eventType, Payload: raw}))
}

func (s *wsSession) next(t *testing.T) model.WSEvent {
	t.Helper()
	for {
		for len(s.queued) > 0 {
			ev := s.queued[0]
			s.queued = s.queued[1:]
			if ev.Type == model.WSEventUserOnline || ev.Type == model.WSEventUserOffline {
				continue
			}
			return ev
		}
		s.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := s.conn.ReadMessage()
		require.NoError(t, err, "timed out waiting for event")
		for _, part := range bytes.Split(data, []byte("\n")) {
			if len(part) == 0 {
				continue
			}
			var ev model.WSEvent
			require.NoError(t, json.Unmarshal(part, &ev))
			s.queued = append(s.queued, ev)
		}
	}
}

func (s *wsSession) expectSilence(t *testing.T) {
	t.Helper()
	s.conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return // deadline hit, nothing arrived
		}
		for _, part := range bytes.Split(data, []byte("\n")) {
			if len(part) == 0 {
				continue
			}
			var ev model.WSEvent
			require.NoError(t, json.Unmarshal(part, &ev))
			if ev.Type == model.WSEventUserOnline || ev.Type == model.WSEventUserOffline {
				continue
			}
			t.Fatalf("unexpected event %q", ev.Type)
		}
	}
}

func TestWebSocketSendJoinSeenFlow(t *testing.T) {
	env := newWSTestEnv(t)
	aliceUser := env.user(t, "alice")
	bobUser := env.user(t, "bob")
	require.NoError(t, env.social.Follow(aliceUser.ID, bobUser.ID))
	conv, _, err := env.svc.StartOrGetDirect(aliceUser.ID, bobUser.ID)
	require.NoError(t, err)

	alice := env.connect(t, aliceUser)
	alice.send(t, model.WSEventConversationJoin, model.ConversationEvent{ConversationID: conv.ID})
	joined := alice.next(t)
	assert.Equal(t, model.WSEventConversationJoined, joined.Type)

	alice.send(t, model.WSEventMessageSend, model.SendMessageRequest{
		ConversationID: conv.ID,
		Type:           model.MessageTypeText,
		Content:        model.MessageContent{Text: "morning"},
	})
	newEv := alice.next(t)
	require.Equal(t, model.WSEventMessageNew, newEv.Type)
	var msg model.Message
	require.NoError(t, json.Unmarshal(newEv.Payload, &msg))
	assert.Equal(t, "morning", msg.Text)
	assert.Equal(t, aliceUser.ID, msg.SenderID)

	// the counterpart opening the conversation reads it, and the sender's
	// connection observes the receipt
	bob := env.connect(t, bobUser)
	bob.send(t, model.WSEventConversationJoin, model.ConversationEvent{ConversationID: conv.ID})

	seenEv := alice.next(t)
	require.Equal(t, model.WSEventMessageSeen, seenEv.Type)
	var seen model.SeenEvent
	require.NoError(t, json.Unmarshal(seenEv.Payload, &seen))
	assert.Equal(t, bobUser.ID, seen.UserID)
	assert.Equal(t, []uuid.UUID{msg.ID}, seen.MessageIDs)
}

func TestWebSocketErrorsScopedToOriginator(t *testing.T) {
	env := newWSTestEnv(t)
	aliceUser := env.user(t, "alice")
	bobUser := env.user(t, "bob")
	require.NoError(t, env.social.Follow(aliceUser.ID, bobUser.ID))
	conv, _, err := env.svc.StartOrGetDirect(aliceUser.ID, bobUser.ID)
	require.NoError(t, err)

	alice := env.connect(t, aliceUser)
	alice.send(t, model.WSEventConversationJoin, model.ConversationEvent{ConversationID: conv.ID})
	require.Equal(t, model.WSEventConversationJoined, alice.next(t).Type)

	// a stranger joining someone else's conversation is refused privately
	malloryUser := env.user(t, "mallory")
	mallory := env.connect(t, malloryUser)
	mallory.send(t, model.WSEventConversationJoin, model.ConversationEvent{ConversationID: conv.ID})

	errEv := mallory.next(t)
	require.Equal(t, model.WSEventError, errEv.Type)
	var failure model.ErrorEvent
	require.NoError(t, json.Unmarshal(errEv.Payload, &failure))
	assert.Equal(t, "not_participant", failure.Reason)

	alice.expectSilence(t)
}
