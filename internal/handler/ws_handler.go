package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/agrilink/chat-api/internal/model"
	"github.com/agrilink/chat-api/internal/service"
	"github.com/agrilink/chat-api/internal/ws"
	"github.com/agrilink/chat-api/pkg/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin is enforced by the gateway
	},
}

// WSHandler upgrades connections and dispatches inbound chat events.
type WSHandler struct {
	hub         *ws.Hub
	chatService *service.ChatService
	jwtManager  *auth.JWTManager
	logger      *zap.Logger
}

func NewWSHandler(hub *ws.Hub, chatService *service.ChatService, jwtManager *auth.JWTManager, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		hub:         hub,
		chatService: chatService,
		jwtManager:  jwtManager,
		logger:      logger,
	}
}

// HandleWebSocket upgrades HTTP to WebSocket and manages the connection.
// Clients connect with: ws://host/ws?token=<jwt>
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	// Browsers cannot set Authorization headers on WebSocket handshakes
	tokenString := c.Query("token")
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "token required"})
		return
	}

	claims, err := h.jwtManager.ValidateToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := ws.NewClient(h.hub, conn, claims.UserID, claims.Name)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.dispatch)
}

func (h *WSHandler) dispatch(client *ws.Client, event model.WSEvent) {
	switch event.Type {
	case model.WSEventConversationJoin:
		h.handleJoin(client, event.Payload)
	case model.WSEventConversationLeave:
		h.handleLeave(client, event.Payload)
	case model.WSEventMessageSend:
		h.handleSend(client, event.Payload)
	case model.WSEventMessageSeen:
		h.handleSeen(client, event.Payload)
	case model.WSEventMessageDelivered:
		h.handleDelivered(client, event.Payload)
	case model.WSEventMessageReaction:
		h.handleReaction(client, event.Payload)
	case model.WSEventMessageEdit:
		h.handleEdit(client, event.Payload)
	case model.WSEventMessageRetract:
		h.handleRetract(client, event.Payload)
	case model.WSEventTypingStart:
		h.handleTyping(client, event.Payload, model.WSEventUserTyping)
	case model.WSEventTypingStop:
		h.handleTyping(client, event.Payload, model.WSEventUserStoppedTyping)
	default:
		h.fail(client, "unknown event type", "bad_event")
	}
}

func (h *WSHandler) handleJoin(client *ws.Client, raw json.RawMessage) {
	var payload model.ConversationEvent
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.fail(client, "malformed payload", "bad_payload")
		return
	}
	isMember, err := h.chatService.IsParticipant(payload.ConversationID, client.UserID)
	if err != nil {
		h.failErr(client, err)
		return
	}
	if !isMember {
		h.failErr(client, service.ErrNotParticipant)
		return
	}
	h.hub.JoinRoom(client, payload.ConversationID)
	h.hub.SendToClient(client, model.NewWSEvent(model.WSEventConversationJoined, payload))

	// Opening a conversation reads it
	ids, err := h.chatService.MarkSeen(client.UserID, payload.ConversationID)
	if err != nil || len(ids) == 0 {
		return
	}
	h.hub.BroadcastToRoom(payload.ConversationID, model.NewWSEvent(model.WSEventMessageSeen, model.SeenEvent{
		ConversationID: payload.ConversationID,
		UserID:         client.UserID,
		MessageIDs:     ids,
	}), uuid.Nil)
}

func (h *WSHandler) handleLeave(client *ws.Client, raw json.RawMessage) {
	var payload model.ConversationEvent
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.fail(client, "malformed payload", "bad_payload")
		return
	}
	h.hub.LeaveRoom(client, payload.ConversationID)
}

func (h *WSHandler) handleSend(client *ws.Client, raw json.RawMessage) {
	var req model.SendMessageRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.fail(client, "malformed payload", "bad_payload")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	msg, err := h.chatService.SendMessage(ctx, client.UserID, &req)
	if err != nil {
		h.failErr(client, err)
		return
	}
	h.hub.BroadcastToRoom(msg.ConversationID, model.NewWSEvent(model.WSEventMessageNew, msg), uuid.Nil)
}

func (h *WSHandler) handleSeen(client *ws.Client, raw json.RawMessage) {
	var payload model.ConversationEvent
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.fail(client, "malformed payload", "bad_payload")
		return
	}
	ids, err := h.chatService.MarkSeen(client.UserID, payload.ConversationID)
	if err != nil {
		h.failErr(client, err)
		return
	}
	if len(ids) == 0 {
		return
	}
	h.hub.BroadcastToRoom(payload.ConversationID, model.NewWSEvent(model.WSEventMessageSeen, model.SeenEvent{
		ConversationID: payload.ConversationID,
		UserID:         client.UserID,
		MessageIDs:     ids,
	}), uuid.Nil)
}

func (h *WSHandler) handleDelivered(client *ws.Client, raw json.RawMessage) {
	var payload struct {
		MessageID uuid.UUID `json:"message_id"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.fail(client, "malformed payload", "bad_payload")
		return
	}
	msg, err := h.chatService.MarkDelivered(client.UserID, payload.MessageID)
	if err != nil {
		h.failErr(client, err)
		return
	}
	if msg.SenderID == client.UserID {
		return
	}
	h.hub.BroadcastToRoom(msg.ConversationID, model.NewWSEvent(model.WSEventMessageDelivered, model.DeliveredEvent{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		UserID:         client.UserID,
	}), uuid.Nil)
}

func (h *WSHandler) handleReaction(client *ws.Client, raw json.RawMessage) {
	var req model.ReactionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.fail(client, "malformed payload", "bad_payload")
		return
	}
	msg, err := h.chatService.React(client.UserID, req.MessageID, req.Emoji)
	if err != nil {
		h.failErr(client, err)
		return
	}
	h.hub.BroadcastToRoom(msg.ConversationID, model.NewWSEvent(model.WSEventMessageReaction, model.ReactionEvent{
		MessageID: msg.ID,
		Message:   msg,
	}), uuid.Nil)
}

func (h *WSHandler) handleEdit(client *ws.Client, raw json.RawMessage) {
	var req model.EditMessageRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.fail(client, "malformed payload", "bad_payload")
		return
	}
	msg, err := h.chatService.EditMessage(client.UserID, req.MessageID, req.Text)
	if err != nil {
		h.failErr(client, err)
		return
	}
	h.hub.BroadcastToRoom(msg.ConversationID, model.NewWSEvent(model.WSEventMessageEdit, model.EditEvent{
		MessageID: msg.ID,
		Message:   msg,
	}), uuid.Nil)
}

func (h *WSHandler) handleRetract(client *ws.Client, raw json.RawMessage) {
	var payload struct {
		MessageID uuid.UUID `json:"message_id"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.fail(client, "malformed payload", "bad_payload")
		return
	}
	msg, err := h.chatService.RetractMessage(client.UserID, payload.MessageID)
	if err != nil {
		h.failErr(client, err)
		return
	}
	h.hub.BroadcastToRoom(msg.ConversationID, model.NewWSEvent(model.WSEventMessageRetract, model.RetractEvent{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
	}), uuid.Nil)
}

func (h *WSHandler) handleTyping(client *ws.Client, raw json.RawMessage, outType string) {
	var payload model.ConversationEvent
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	h.hub.BroadcastToRoom(payload.ConversationID, model.NewWSEvent(outType, model.TypingEvent{
		ConversationID: payload.ConversationID,
		UserID:         client.UserID,
		Name:           client.Name,
	}), client.UserID)
}

// fail reports a problem to the originating connection only; other
// participants never see another user's errors.
func (h *WSHandler) fail(client *ws.Client, message, reason string) {
	h.hub.SendToClient(client, model.NewWSEvent(model.WSEventError, model.ErrorEvent{
		Message: message,
		Reason:  reason,
	}))
}

func (h *WSHandler) failErr(client *ws.Client, err error) {
	reason := "internal"
	switch {
	case errors.Is(err, service.ErrRateLimited):
		reason = "rate_limited"
	case errors.Is(err, service.ErrNotParticipant):
		reason = "not_participant"
	case errors.Is(err, service.ErrChatNotAllowed):
		reason = "chat_not_allowed"
	case errors.Is(err, service.ErrNotSender):
		reason = "not_sender"
	case errors.Is(err, service.ErrEditWindowExpired):
		reason = "edit_window_expired"
	case errors.Is(err, service.ErrMessageRetracted):
		reason = "message_retracted"
	case errors.Is(err, service.ErrNotEditable):
		reason = "not_editable"
	case errors.Is(err, service.ErrAttachmentExpired):
		reason = "attachment_expired"
	case errors.Is(err, service.ErrEmptyMessage):
		reason = "empty_message"
	case errors.Is(err, gorm.ErrRecordNotFound):
		reason = "not_found"
	default:
		h.logger.Error("websocket event failed",
			zap.String("user_id", client.UserID.String()), zap.Error(err))
	}
	h.fail(client, err.Error(), reason)
}
