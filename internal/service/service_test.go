package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/agrilink/chat-api/internal/config"
	"github.com/agrilink/chat-api/internal/crypto"
	"github.com/agrilink/chat-api/internal/model"
	"github.com/agrilink/chat-api/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testEncryptionKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.UserDevice{},
		&model.Follow{},
		&model.Block{},
		&model.Conversation{},
		&model.ConversationParticipant{},
		&model.Message{},
		&model.MessageDelivery{},
		&model.MessageRead{},
		&model.MessageReaction{},
		&model.PendingAttachment{},
		&model.Notification{},
	))
	return db
}

func testChatConfig() config.ChatConfig {
	return config.ChatConfig{
		EditWindow:      15 * time.Minute,
		RateLimitCount:  60,
		RateLimitWindow: time.Minute,
		AttachmentTTL:   time.Hour,
		PreviewMaxLen:   80,
	}
}

type testEnv struct {
	db         *gorm.DB
	svc        *ChatService
	userRepo   *repository.UserRepository
	socialRepo *repository.SocialRepository
	msgRepo    *repository.MessageRepository
	convRepo   *repository.ConversationRepository
	attachRepo *repository.AttachmentRepository
	limiter    *RateLimiter
}

// fakeFileStore stands in for object storage during attachment tests.
type fakeFileStore struct {
	uploads int
}

func (f *fakeFileStore) UploadBytes(_ context.Context, data []byte, contentType, objectName string) (string, error) {
	f.uploads++
	return "https://files.test/" + objectName, nil
}

func newTestEnv(t *testing.T, cfg config.ChatConfig) *testEnv {
	t.Helper()
	db := setupTestDB(t)

	cipher, err := crypto.New(true, testEncryptionKey)
	require.NoError(t, err)

	userRepo := repository.NewUserRepository(db)
	socialRepo := repository.NewSocialRepository(db)
	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	attachRepo := repository.NewAttachmentRepository(db)

	gate := NewRelationshipGate(socialRepo, userRepo)
	limiter := NewRateLimiter(cfg.RateLimitCount, cfg.RateLimitWindow)

	svc := NewChatService(
		convRepo, msgRepo, userRepo, socialRepo, attachRepo,
		gate, limiter, cipher, &fakeFileStore{}, cfg, zap.NewNop(),
	)
	return &testEnv{
		db:         db,
		svc:        svc,
		userRepo:   userRepo,
		socialRepo: socialRepo,
		msgRepo:    msgRepo,
		convRepo:   convRepo,
		attachRepo: attachRepo,
		limiter:    limiter,
	}
}

func (e *testEnv) user(t *testing.T, name string, role model.UserRole) model.User {
	t.Helper()
	u := model.User{Name: name, Role: role}
	require.NoError(t, e.userRepo.Create(&u))
	return u
}

func (e *testEnv) follow(t *testing.T, follower, following uuid.UUID) {
	t.Helper()
	require.NoError(t, e.socialRepo.Follow(follower, following))
}

func (e *testEnv) block(t *testing.T, blocker, blocked uuid.UUID) {
	t.Helper()
	require.NoError(t, e.socialRepo.Block(blocker, blocked))
}

func (e *testEnv) mutualFollow(t *testing.T, a, b uuid.UUID) {
	e.follow(t, a, b)
	e.follow(t, b, a)
}

func textMessage(convID uuid.UUID, text string) *model.SendMessageRequest {
	return &model.SendMessageRequest{
		ConversationID: convID,
		Type:           model.MessageTypeText,
		Content:        model.MessageContent{Text: text},
	}
}
