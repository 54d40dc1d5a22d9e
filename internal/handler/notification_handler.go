package handler

import (
	"net/http"
	"strconv"

	"github.com/agrilink/chat-api/internal/model"
	"github.com/agrilink/chat-api/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// NotificationHandler serves the notification inbox and device registration.
type NotificationHandler struct {
	notifService *service.NotificationService
}

func NewNotificationHandler(notifService *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifService: notifService}
}

// List godoc
// @Summary List notifications
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page" default(1)
// @Param limit query int false "Page size" default(20)
// @Success 200 {array} model.Notification
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	notifications, err := h.notifService.List(userID, page, limit)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, notifications)
}

// MarkAllRead godoc
// @Summary Mark all notifications read
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.SuccessResponse
// @Router /notifications/read [post]
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)
	if err := h.notifService.MarkAllRead(userID); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, model.SuccessResponse{Message: "notifications marked read"})
}

// UnreadCount godoc
// @Summary Unread notification count
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]int64
// @Router /notifications/unread-count [get]
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)
	count, err := h.notifService.CountUnread(userID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// RegisterDevice godoc
// @Summary Register a device token for push notifications
// @Tags Notifications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.RegisterDeviceRequest true "Device token"
// @Success 200 {object} model.SuccessResponse
// @Router /devices [post]
func (h *NotificationHandler) RegisterDevice(c *gin.Context) {
	var req model.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	if err := h.notifService.RegisterDevice(userID, &req); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, model.SuccessResponse{Message: "device registered"})
}
