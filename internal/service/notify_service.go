package service

import (
	"context"
	"time"

	"github.com/agrilink/chat-api/internal/model"
	"github.com/agrilink/chat-api/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// messageNotificationText is the only body a message notification ever
// carries; notification rows and pushes must not reveal message content.
const messageNotificationText = "sent you a message"

// Pusher delivers an event to every live connection of a user, wherever
// that connection is attached.
type Pusher interface {
	PushToUser(userID uuid.UUID, event *model.OutEvent)
}

// PushSender delivers push notifications to device tokens.
type PushSender interface {
	SendToTokens(ctx context.Context, tokens []string, title, body string, data map[string]string) error
}

// NotificationService dispatches message notifications and serves the
// notification inbox. Dispatch is best-effort: a failure is logged and
// swallowed, never surfaced to the sender.
type NotificationService struct {
	notifRepo  *repository.NotificationRepository
	userRepo   *repository.UserRepository
	socialRepo *repository.SocialRepository
	pusher     Pusher
	push       PushSender
	logger     *zap.Logger
}

func NewNotificationService(
	notifRepo *repository.NotificationRepository,
	userRepo *repository.UserRepository,
	socialRepo *repository.SocialRepository,
	pusher Pusher,
	push PushSender,
	logger *zap.Logger,
) *NotificationService {
	return &NotificationService{
		notifRepo:  notifRepo,
		userRepo:   userRepo,
		socialRepo: socialRepo,
		pusher:     pusher,
		push:       push,
		logger:     logger,
	}
}

// MessageSent fans a new-message notification out to the counterpart. Runs
// on its own goroutine; the send path never waits on it.
func (s *NotificationService) MessageSent(msg *model.Message, conv *model.Conversation) {
	counterpart := conv.Counterpart(msg.SenderID)
	if counterpart == nil || counterpart.UserID == msg.SenderID {
		return
	}
	recipientID := counterpart.UserID

	blocked, err := s.socialRepo.IsBlockedEither(recipientID, msg.SenderID)
	if err != nil {
		s.logger.Warn("notification block check failed", zap.Error(err))
		return
	}
	if blocked {
		return
	}

	// The row carries the fixed text only, never the message body: the
	// notifications table is outside the encrypted payload path and must
	// stay content-free.
	n := &model.Notification{
		RecipientID: recipientID,
		SenderID:    msg.SenderID,
		Kind:        model.NotificationKindMessage,
		RefID:       msg.ID,
		RefType:     "message",
		Text:        messageNotificationText,
	}
	if err := s.notifRepo.Create(n); err != nil {
		s.logger.Warn("notification create failed",
			zap.String("recipient_id", recipientID.String()), zap.Error(err))
		return
	}
	n.Sender = msg.Sender

	if s.pusher != nil {
		s.pusher.PushToUser(recipientID, model.NewWSEvent(model.WSEventNotification, n))
	}
	s.sendPush(recipientID, msg)
}

func (s *NotificationService) sendPush(recipientID uuid.UUID, msg *model.Message) {
	if s.push == nil {
		return
	}
	devices, err := s.userRepo.GetUserDevices(recipientID)
	if err != nil || len(devices) == 0 {
		return
	}
	tokens := make([]string, 0, len(devices))
	for _, d := range devices {
		tokens = append(tokens, d.FCMToken)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = s.push.SendToTokens(ctx, tokens, msg.Sender.Name, messageNotificationText, map[string]string{
		"type":            "message",
		"conversation_id": msg.ConversationID.String(),
		"message_id":      msg.ID.String(),
	})
	if err != nil {
		s.logger.Warn("push send failed",
			zap.String("recipient_id", recipientID.String()), zap.Error(err))
	}
}

// List returns a user's notifications, newest first.
func (s *NotificationService) List(userID uuid.UUID, page, limit int) ([]model.Notification, error) {
	return s.notifRepo.ListForUser(userID, page, limit)
}

// MarkAllRead marks the whole inbox read.
func (s *NotificationService) MarkAllRead(userID uuid.UUID) error {
	return s.notifRepo.MarkAllRead(userID)
}

// CountUnread returns the unread badge count.
func (s *NotificationService) CountUnread(userID uuid.UUID) (int64, error) {
	return s.notifRepo.CountUnread(userID)
}

// RegisterDevice upserts an FCM device token for push delivery.
func (s *NotificationService) RegisterDevice(userID uuid.UUID, req *model.RegisterDeviceRequest) error {
	return s.userRepo.RegisterDevice(&model.UserDevice{
		UserID:       userID,
		FCMToken:     req.FCMToken,
		DeviceType:   req.DeviceType,
		LastActiveAt: time.Now(),
	})
}
