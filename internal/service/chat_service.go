package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agrilink/chat-api/internal/config"
	"github.com/agrilink/chat-api/internal/crypto"
	"github.com/agrilink/chat-api/internal/model"
	"github.com/agrilink/chat-api/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FileStore persists redeemed attachment payloads and returns a public URL.
type FileStore interface {
	UploadBytes(ctx context.Context, data []byte, contentType, objectName string) (string, error)
}

// Notifier receives best-effort message notifications. Implementations must
// never block the send path.
type Notifier interface {
	MessageSent(msg *model.Message, conv *model.Conversation)
}

// ChatService implements the messaging core: conversations, sends, receipts,
// reactions, edits and retraction. All relationship and membership checks
// happen here; handlers only translate transport.
type ChatService struct {
	convRepo   *repository.ConversationRepository
	msgRepo    *repository.MessageRepository
	userRepo   *repository.UserRepository
	socialRepo *repository.SocialRepository
	attachRepo *repository.AttachmentRepository
	gate       *RelationshipGate
	limiter    *RateLimiter
	cipher     *crypto.Cipher
	files      FileStore
	notifier   Notifier
	cfg        config.ChatConfig
	logger     *zap.Logger
}

func NewChatService(
	convRepo *repository.ConversationRepository,
	msgRepo *repository.MessageRepository,
	userRepo *repository.UserRepository,
	socialRepo *repository.SocialRepository,
	attachRepo *repository.AttachmentRepository,
	gate *RelationshipGate,
	limiter *RateLimiter,
	cipher *crypto.Cipher,
	files FileStore,
	cfg config.ChatConfig,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		convRepo:   convRepo,
		msgRepo:    msgRepo,
		userRepo:   userRepo,
		socialRepo: socialRepo,
		attachRepo: attachRepo,
		gate:       gate,
		limiter:    limiter,
		cipher:     cipher,
		files:      files,
		cfg:        cfg,
		logger:     logger,
	}
}

// SetNotifier wires the async notification dispatcher after construction,
// breaking the service/hub dependency cycle.
func (s *ChatService) SetNotifier(n Notifier) {
	s.notifier = n
}

// ========== Conversations ==========

// StartOrGetDirect opens the direct conversation between two users, creating
// it if needed. Repeated calls return the same thread. The unique DirectKey
// index arbitrates concurrent creates: the loser retries as a lookup.
func (s *ChatService) StartOrGetDirect(userID, otherID uuid.UUID) (*model.Conversation, bool, error) {
	if userID == otherID {
		return nil, false, ErrSelfConversation
	}
	ok, err := s.gate.CanMessage(userID, otherID)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, ErrChatNotAllowed
	}
	return s.startOrGet(userID, otherID)
}

// StartOrGetExpert opens a consultation thread with an expert. The follow
// requirement is waived; blocks still deny.
func (s *ChatService) StartOrGetExpert(userID, expertID uuid.UUID) (*model.Conversation, bool, error) {
	if userID == expertID {
		return nil, false, ErrSelfConversation
	}
	ok, err := s.gate.CanMessageExpert(userID, expertID)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, ErrChatNotAllowed
	}
	return s.startOrGet(userID, expertID)
}

func (s *ChatService) startOrGet(a, b uuid.UUID) (*model.Conversation, bool, error) {
	key := model.DirectKey(a, b)
	if conv, err := s.convRepo.FindByDirectKey(key); err == nil {
		return conv, false, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	now := time.Now()
	conv := &model.Conversation{
		Kind:      model.ConversationKindDirect,
		DirectKey: &key,
		IsActive:  true,
		Participants: []model.ConversationParticipant{
			{UserID: a, Role: model.ParticipantRoleMember, JoinedAt: now},
			{UserID: b, Role: model.ParticipantRoleMember, JoinedAt: now},
		},
	}
	if err := s.convRepo.Create(conv); err != nil {
		// Lost the race: the other creator's row owns the key now.
		if existing, lookupErr := s.convRepo.FindByDirectKey(key); lookupErr == nil {
			return existing, false, nil
		}
		return nil, false, err
	}
	created, err := s.convRepo.FindByID(conv.ID)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// ListConversations returns the user's threads newest-activity first, each
// decorated with the decrypted preview, derived unread count and counterpart.
// Threads with a blocked counterpart are dropped from the page.
func (s *ChatService) ListConversations(userID uuid.UUID, page, limit int) ([]model.ConversationResponse, error) {
	convs, err := s.convRepo.GetUserConversations(userID, page, limit)
	if err != nil {
		return nil, err
	}
	blockedIDs, err := s.socialRepo.BlockedIDs(userID)
	if err != nil {
		return nil, err
	}
	blocked := make(map[uuid.UUID]bool, len(blockedIDs))
	for _, id := range blockedIDs {
		blocked[id] = true
	}

	out := make([]model.ConversationResponse, 0, len(convs))
	for i := range convs {
		conv := convs[i]
		counterpart := conv.Counterpart(userID)
		if counterpart != nil && blocked[counterpart.UserID] {
			continue
		}
		unread, err := s.msgRepo.CountUnread(conv.ID, userID)
		if err != nil {
			return nil, err
		}
		resp := model.ConversationResponse{
			Conversation: conv,
			Preview:      s.decryptPreview(&conv),
			UnreadCount:  int(unread),
		}
		if counterpart != nil {
			u := counterpart.User.ToResponse()
			resp.Counterpart = &u
		}
		out = append(out, resp)
	}
	return out, nil
}

// ========== Messages ==========

// SendMessage validates, persists and returns a new message. The returned
// message carries the plaintext body regardless of the at-rest mode, ready
// for fan-out. Notification dispatch is asynchronous and best-effort.
func (s *ChatService) SendMessage(ctx context.Context, senderID uuid.UUID, req *model.SendMessageRequest) (*model.Message, error) {
	if !s.limiter.Allow(senderID) {
		return nil, ErrRateLimited
	}

	conv, err := s.convRepo.FindByID(req.ConversationID)
	if err != nil {
		return nil, err
	}
	isMember, err := s.convRepo.IsParticipant(conv.ID, senderID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrNotParticipant
	}
	// A block placed after the thread opened severs messaging immediately.
	// The follow edge is not re-checked: thread existence already encodes it,
	// and expert threads never required one.
	if other, err := s.convRepo.GetOtherParticipantID(conv.ID, senderID); err == nil {
		blocked, err := s.socialRepo.IsBlockedEither(senderID, other)
		if err != nil {
			return nil, err
		}
		if blocked {
			return nil, ErrChatNotAllowed
		}
	}

	msg := &model.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		Type:           req.Type,
		Status:         model.MessageStatusSent,
	}
	if msg.Type == "" {
		msg.Type = model.MessageTypeText
	}

	var plaintext string
	switch msg.Type {
	case model.MessageTypeText:
		plaintext = strings.TrimSpace(req.Content.Text)
		if plaintext == "" {
			return nil, ErrEmptyMessage
		}
	case model.MessageTypeImage:
		if req.Content.URL == "" {
			return nil, ErrEmptyMessage
		}
		msg.AttachmentType = "image"
		msg.AttachmentURL = req.Content.URL
	case model.MessageTypeVoice, model.MessageTypeFile:
		if req.Content.AttachmentID == nil {
			return nil, ErrEmptyMessage
		}
		if err := s.attachRedeemed(ctx, msg, senderID, *req.Content.AttachmentID); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported message type %q", msg.Type)
	}

	if req.ReplyToID != nil {
		target, err := s.msgRepo.FindByID(*req.ReplyToID)
		if err != nil {
			return nil, err
		}
		if target.ConversationID != conv.ID {
			return nil, gorm.ErrRecordNotFound
		}
		msg.ReplyToID = req.ReplyToID
	}

	if plaintext != "" {
		if s.cipher.Enabled() {
			ct, nonce, err := s.cipher.Encrypt([]byte(plaintext))
			if err != nil {
				return nil, err
			}
			msg.Ciphertext = ct
			msg.Nonce = nonce
		} else {
			msg.Text = plaintext
		}
	}

	if err := s.msgRepo.Create(msg); err != nil {
		return nil, err
	}
	if err := s.updatePreview(conv.ID, msg, plaintext); err != nil {
		s.logger.Warn("preview update failed",
			zap.String("conversation_id", conv.ID.String()), zap.Error(err))
	}

	created, err := s.msgRepo.FindByID(msg.ID)
	if err != nil {
		return nil, err
	}
	created.Text = plaintext
	if created.ReplyTo != nil {
		s.decryptMessage(created.ReplyTo)
	}

	if s.notifier != nil {
		go s.notifier.MessageSent(created, conv)
	}
	return created, nil
}

func (s *ChatService) attachRedeemed(ctx context.Context, msg *model.Message, senderID, attachmentID uuid.UUID) error {
	att, err := s.attachRepo.Redeem(attachmentID, senderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAttachmentExpired
		}
		return err
	}
	if s.files == nil {
		return ErrUnavailable
	}
	objectName := fmt.Sprintf("chat/%s/%s", msg.ConversationID, att.ID)
	url, err := s.files.UploadBytes(ctx, att.Data, att.ContentType, objectName)
	if err != nil {
		return err
	}
	kind := "document"
	if strings.HasPrefix(att.ContentType, "video/") {
		kind = "video"
	}
	if msg.Type == model.MessageTypeVoice {
		kind = "voice"
	}
	msg.AttachmentType = kind
	msg.AttachmentURL = url
	msg.AttachmentName = att.Filename
	msg.AttachmentSize = att.Size
	msg.AttachmentMime = att.ContentType
	return nil
}

// ListMessages returns a newest-first page for a participant. Messages whose
// payload cannot be decrypted come back redacted with Unreadable set instead
// of failing the page.
func (s *ChatService) ListMessages(userID, conversationID uuid.UUID, before *uuid.UUID, limit int) ([]model.Message, error) {
	isMember, err := s.convRepo.IsParticipant(conversationID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrNotParticipant
	}
	messages, err := s.msgRepo.ListBefore(conversationID, before, limit)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		s.decryptMessage(&messages[i])
		if messages[i].ReplyTo != nil {
			s.decryptMessage(messages[i].ReplyTo)
		}
	}
	return messages, nil
}

// EditMessage rewrites a text message body within the edit window. Only the
// sender may edit, and only text messages qualify.
func (s *ChatService) EditMessage(senderID, messageID uuid.UUID, text string) (*model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	msg, err := s.msgRepo.FindByID(messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != senderID {
		return nil, ErrNotSender
	}
	if msg.IsRetracted {
		return nil, ErrMessageRetracted
	}
	if msg.Type != model.MessageTypeText {
		return nil, ErrNotEditable
	}
	if time.Since(msg.CreatedAt) > s.cfg.EditWindow {
		return nil, ErrEditWindowExpired
	}

	var stored string
	var ct, nonce []byte
	if s.cipher.Enabled() {
		ct, nonce, err = s.cipher.Encrypt([]byte(text))
		if err != nil {
			return nil, err
		}
	} else {
		stored = text
	}
	if err := s.msgRepo.ApplyEdit(messageID, stored, ct, nonce); err != nil {
		return nil, err
	}
	s.refreshPreviewIfLatest(msg, text)

	edited, err := s.msgRepo.FindByID(messageID)
	if err != nil {
		return nil, err
	}
	edited.Text = text
	return edited, nil
}

// RetractMessage replaces a message with a tombstone: content and attachment
// are cleared, ordering and replies stay intact. Sender-only, no window.
func (s *ChatService) RetractMessage(senderID, messageID uuid.UUID) (*model.Message, error) {
	msg, err := s.msgRepo.FindByID(messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != senderID {
		return nil, ErrNotSender
	}
	if msg.IsRetracted {
		return s.redact(msg), nil
	}
	if err := s.msgRepo.Retract(messageID); err != nil {
		return nil, err
	}
	s.refreshPreviewIfLatest(msg, "[message removed]")
	retracted, err := s.msgRepo.FindByID(messageID)
	if err != nil {
		return nil, err
	}
	return retracted, nil
}

// React records the user's reaction; a repeat by the same user replaces the
// previous emoji. Retracted messages refuse reactions.
func (s *ChatService) React(userID, messageID uuid.UUID, emoji string) (*model.Message, error) {
	msg, err := s.msgRepo.FindByID(messageID)
	if err != nil {
		return nil, err
	}
	isMember, err := s.convRepo.IsParticipant(msg.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrNotParticipant
	}
	if msg.IsRetracted {
		return nil, ErrMessageRetracted
	}
	if err := s.msgRepo.UpsertReaction(messageID, userID, emoji); err != nil {
		return nil, err
	}
	updated, err := s.msgRepo.FindByID(messageID)
	if err != nil {
		return nil, err
	}
	s.decryptMessage(updated)
	return updated, nil
}

// MarkSeen records the user as having read everything unread in the
// conversation and returns the affected message ids for fan-out. Idempotent:
// a repeated call returns an empty slice.
func (s *ChatService) MarkSeen(userID, conversationID uuid.UUID) ([]uuid.UUID, error) {
	isMember, err := s.convRepo.IsParticipant(conversationID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrNotParticipant
	}
	ids, err := s.msgRepo.MarkConversationSeen(conversationID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.convRepo.UpdateLastRead(conversationID, userID); err != nil {
		s.logger.Warn("last read update failed",
			zap.String("conversation_id", conversationID.String()), zap.Error(err))
	}
	return ids, nil
}

// MarkDelivered records a delivery acknowledgment from a recipient. A
// sender acknowledging their own message is a silent no-op, as is any
// repeat. Read state is never lowered.
func (s *ChatService) MarkDelivered(userID, messageID uuid.UUID) (*model.Message, error) {
	msg, err := s.msgRepo.FindByID(messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID == userID {
		return msg, nil
	}
	isMember, err := s.convRepo.IsParticipant(msg.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrNotParticipant
	}
	if err := s.msgRepo.MarkDelivered(messageID, userID); err != nil {
		return nil, err
	}
	return s.msgRepo.FindByID(messageID)
}

// IsParticipant exposes the membership check for transport-layer gating.
func (s *ChatService) IsParticipant(conversationID, userID uuid.UUID) (bool, error) {
	return s.convRepo.IsParticipant(conversationID, userID)
}

// ParticipantIDs returns the members of a conversation.
func (s *ChatService) ParticipantIDs(conversationID uuid.UUID) ([]uuid.UUID, error) {
	return s.convRepo.GetParticipantIDs(conversationID)
}

// ========== Attachments ==========

// StageAttachment stores an uploaded payload for later redemption by a send.
func (s *ChatService) StageAttachment(uploaderID uuid.UUID, data []byte, contentType, filename string) (*model.PendingAttachment, error) {
	att := &model.PendingAttachment{
		UploaderID:  uploaderID,
		Data:        data,
		ContentType: contentType,
		Filename:    filename,
		Size:        int64(len(data)),
		ExpiresAt:   time.Now().Add(s.cfg.AttachmentTTL),
	}
	if err := s.attachRepo.Create(att); err != nil {
		return nil, err
	}
	return att, nil
}

// SweepExpired drops expired staged attachments and stale rate buckets.
// Runs on a ticker from main.
func (s *ChatService) SweepExpired() {
	n, err := s.attachRepo.DeleteExpired(time.Now())
	if err != nil {
		s.logger.Warn("attachment sweep failed", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("expired attachments removed", zap.Int64("count", n))
	}
	s.limiter.Sweep()
}

// ========== helpers ==========

// decryptMessage resolves the stored body into msg.Text for responses. A
// failed decrypt redacts the single message instead of failing the caller.
func (s *ChatService) decryptMessage(msg *model.Message) {
	if len(msg.Ciphertext) == 0 {
		return
	}
	if !s.cipher.Enabled() {
		msg.Unreadable = true
		msg.Text = ""
		return
	}
	pt, err := s.cipher.Decrypt(msg.Ciphertext, msg.Nonce)
	if err != nil {
		s.logger.Warn("message decrypt failed", zap.String("message_id", msg.ID.String()))
		msg.Unreadable = true
		msg.Text = ""
		return
	}
	msg.Text = string(pt)
}

func (s *ChatService) decryptPreview(conv *model.Conversation) string {
	if len(conv.PreviewCiphertext) == 0 {
		return conv.PreviewText
	}
	if !s.cipher.Enabled() {
		return ""
	}
	pt, err := s.cipher.Decrypt(conv.PreviewCiphertext, conv.PreviewNonce)
	if err != nil {
		s.logger.Warn("preview decrypt failed", zap.String("conversation_id", conv.ID.String()))
		return ""
	}
	return string(pt)
}

// updatePreview refreshes the conversation's denormalized preview from the
// message just sent. The snippet is sealed separately from the body so list
// rendering never touches message ciphertext.
func (s *ChatService) updatePreview(conversationID uuid.UUID, msg *model.Message, plaintext string) error {
	snippet := previewSnippet(msg, plaintext, s.cfg.PreviewMaxLen)
	var text string
	var ct, nonce []byte
	if s.cipher.Enabled() && plaintext != "" {
		var err error
		ct, nonce, err = s.cipher.Encrypt([]byte(snippet))
		if err != nil {
			return err
		}
	} else {
		text = snippet
	}
	return s.convRepo.UpdatePreview(conversationID, text, ct, nonce, msg.SenderID, msg.CreatedAt)
}

// refreshPreviewIfLatest rewrites the preview when the affected message is
// the one the preview was taken from.
func (s *ChatService) refreshPreviewIfLatest(msg *model.Message, text string) {
	conv, err := s.convRepo.FindByID(msg.ConversationID)
	if err != nil {
		return
	}
	if conv.PreviewSentAt == nil || !conv.PreviewSentAt.Equal(msg.CreatedAt) {
		return
	}
	snippet := truncateRunes(text, s.cfg.PreviewMaxLen)
	var stored string
	var ct, nonce []byte
	if s.cipher.Enabled() {
		ct, nonce, err = s.cipher.Encrypt([]byte(snippet))
		if err != nil {
			return
		}
	} else {
		stored = snippet
	}
	if err := s.convRepo.UpdatePreview(conv.ID, stored, ct, nonce, msg.SenderID, msg.CreatedAt); err != nil {
		s.logger.Warn("preview refresh failed",
			zap.String("conversation_id", conv.ID.String()), zap.Error(err))
	}
}

func (s *ChatService) redact(msg *model.Message) *model.Message {
	msg.Text = ""
	msg.Ciphertext = nil
	msg.Nonce = nil
	return msg
}

func previewSnippet(msg *model.Message, plaintext string, maxLen int) string {
	switch msg.Type {
	case model.MessageTypeText:
		return truncateRunes(plaintext, maxLen)
	case model.MessageTypeImage:
		return "[photo]"
	case model.MessageTypeVoice:
		return "[voice message]"
	default:
		if msg.AttachmentName != "" {
			return truncateRunes("[file] "+msg.AttachmentName, maxLen)
		}
		return "[file]"
	}
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		max = 80
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
