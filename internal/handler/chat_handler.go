package handler

import (
	"errors"
	"net/http"

	"github.com/agrilink/chat-api/internal/model"
	"github.com/agrilink/chat-api/internal/service"
	"github.com/agrilink/chat-api/internal/ws"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatHandler handles chat-related HTTP endpoints. Mutations fan their
// events out through the hub so REST and WebSocket clients observe the
// same stream.
type ChatHandler struct {
	chatService *service.ChatService
	hub         *ws.Hub
}

func NewChatHandler(chatService *service.ChatService, hub *ws.Hub) *ChatHandler {
	return &ChatHandler{chatService: chatService, hub: hub}
}

// StartDirect godoc
// @Summary Get or create a direct conversation
// @Description Open the direct thread with another user, creating it if needed. Requires a follow edge and no block.
// @Tags Conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.StartConversationRequest true "Other user"
// @Success 200 {object} model.StartConversationResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/direct [post]
func (h *ChatHandler) StartDirect(c *gin.Context) {
	var req model.StartConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	conv, isNew, err := h.chatService.StartOrGetDirect(userID, req.OtherUserID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, startResponse(conv, userID, isNew))
}

// StartExpert godoc
// @Summary Get or create an expert consultation
// @Description Open a thread with an expert. No follow edge required; blocks still deny.
// @Tags Conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.StartExpertConversationRequest true "Expert"
// @Success 200 {object} model.StartConversationResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/expert [post]
func (h *ChatHandler) StartExpert(c *gin.Context) {
	var req model.StartExpertConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	conv, isNew, err := h.chatService.StartOrGetExpert(userID, req.ExpertID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, startResponse(conv, userID, isNew))
}

// GetConversations godoc
// @Summary List the current user's conversations
// @Description Newest activity first, with decrypted preview, unread count and counterpart.
// @Tags Conversations
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page" default(1)
// @Param limit query int false "Page size" default(20)
// @Success 200 {array} model.ConversationResponse
// @Router /conversations [get]
func (h *ChatHandler) GetConversations(c *gin.Context) {
	var req model.ConversationListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	conversations, err := h.chatService.ListConversations(userID, req.Page, req.Limit)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, conversations)
}

// GetMessages godoc
// @Summary List messages in a conversation
// @Description Newest first. Pass the oldest received message id as before to page backward.
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param before query string false "Exclusive cursor: message ID"
// @Param limit query int false "Page size" default(50)
// @Success 200 {array} model.Message
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id}/messages [get]
func (h *ChatHandler) GetMessages(c *gin.Context) {
	convID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid conversation ID"})
		return
	}
	var req model.MessageListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}
	var before *uuid.UUID
	if req.Before != "" {
		id, err := uuid.Parse(req.Before)
		if err != nil {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid cursor"})
			return
		}
		before = &id
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	messages, err := h.chatService.ListMessages(userID, convID, before, req.Limit)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

// SendMessage godoc
// @Summary Send a message
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.SendMessageRequest true "Message"
// @Success 201 {object} model.Message
// @Failure 403 {object} model.ErrorResponse
// @Failure 429 {object} model.ErrorResponse
// @Router /messages [post]
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req model.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	msg, err := h.chatService.SendMessage(c.Request.Context(), userID, &req)
	if err != nil {
		respondErr(c, err)
		return
	}
	h.hub.BroadcastToRoom(msg.ConversationID, model.NewWSEvent(model.WSEventMessageNew, msg), uuid.Nil)
	c.JSON(http.StatusCreated, msg)
}

// EditMessage godoc
// @Summary Edit a text message
// @Description Sender-only, text messages only, within the edit window.
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Message ID"
// @Param body body model.EditMessageRequest true "New text"
// @Success 200 {object} model.Message
// @Failure 403 {object} model.ErrorResponse
// @Failure 409 {object} model.ErrorResponse
// @Router /messages/{id} [put]
func (h *ChatHandler) EditMessage(c *gin.Context) {
	msgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid message ID"})
		return
	}
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	msg, err := h.chatService.EditMessage(userID, msgID, req.Text)
	if err != nil {
		respondErr(c, err)
		return
	}
	h.hub.BroadcastToRoom(msg.ConversationID, model.NewWSEvent(model.WSEventMessageEdit, model.EditEvent{
		MessageID: msg.ID,
		Message:   msg,
	}), uuid.Nil)
	c.JSON(http.StatusOK, msg)
}

// RetractMessage godoc
// @Summary Retract a message
// @Description Clears content and attachment, leaving a tombstone. Sender-only, no time limit.
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Message ID"
// @Success 200 {object} model.Message
// @Failure 403 {object} model.ErrorResponse
// @Router /messages/{id} [delete]
func (h *ChatHandler) RetractMessage(c *gin.Context) {
	msgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid message ID"})
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	msg, err := h.chatService.RetractMessage(userID, msgID)
	if err != nil {
		respondErr(c, err)
		return
	}
	h.hub.BroadcastToRoom(msg.ConversationID, model.NewWSEvent(model.WSEventMessageRetract, model.RetractEvent{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
	}), uuid.Nil)
	c.JSON(http.StatusOK, msg)
}

// React godoc
// @Summary React to a message
// @Description One reaction per user per message; a repeat replaces the emoji.
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Message ID"
// @Param body body model.ReactionRequest true "Reaction"
// @Success 200 {object} model.Message
// @Failure 403 {object} model.ErrorResponse
// @Router /messages/{id}/reactions [post]
func (h *ChatHandler) React(c *gin.Context) {
	msgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid message ID"})
		return
	}
	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	msg, err := h.chatService.React(userID, msgID, req.Emoji)
	if err != nil {
		respondErr(c, err)
		return
	}
	h.hub.BroadcastToRoom(msg.ConversationID, model.NewWSEvent(model.WSEventMessageReaction, model.ReactionEvent{
		MessageID: msg.ID,
		Message:   msg,
	}), uuid.Nil)
	c.JSON(http.StatusOK, msg)
}

// MarkSeen godoc
// @Summary Mark a conversation as read
// @Description Records the caller as having read every unread message; returns the affected ids. Idempotent.
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Success 200 {object} model.SeenEvent
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id}/seen [post]
func (h *ChatHandler) MarkSeen(c *gin.Context) {
	convID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid conversation ID"})
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	ids, err := h.chatService.MarkSeen(userID, convID)
	if err != nil {
		respondErr(c, err)
		return
	}
	event := model.SeenEvent{ConversationID: convID, UserID: userID, MessageIDs: ids}
	if len(ids) > 0 {
		h.hub.BroadcastToRoom(convID, model.NewWSEvent(model.WSEventMessageSeen, event), uuid.Nil)
	}
	c.JSON(http.StatusOK, event)
}

func startResponse(conv *model.Conversation, userID uuid.UUID, isNew bool) model.StartConversationResponse {
	resp := model.StartConversationResponse{
		Conversation: model.ConversationResponse{Conversation: *conv},
		IsNew:        isNew,
	}
	if counterpart := conv.Counterpart(userID); counterpart != nil {
		u := counterpart.User.ToResponse()
		resp.Conversation.Counterpart = &u
	}
	return resp
}

// respondErr maps service sentinel errors to HTTP statuses.
func respondErr(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrChatNotAllowed),
		errors.Is(err, service.ErrNotParticipant),
		errors.Is(err, service.ErrNotSender):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, service.ErrEditWindowExpired),
		errors.Is(err, service.ErrMessageRetracted),
		errors.Is(err, service.ErrNotEditable):
		status = http.StatusConflict
	case errors.Is(err, service.ErrAttachmentExpired):
		status = http.StatusGone
	case errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrSelfConversation),
		errors.Is(err, service.ErrNotExpert):
		status = http.StatusBadRequest
	case errors.Is(err, gorm.ErrRecordNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, model.ErrorResponse{Error: err.Error()})
}
