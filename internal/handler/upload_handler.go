package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/agrilink/chat-api/internal/model"
	"github.com/agrilink/chat-api/internal/service"
	"github.com/agrilink/chat-api/pkg/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Max upload size: 50MB
const maxUploadSize = 50 << 20

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

var allowedStagedTypes = map[string]bool{
	"video/mp4":          true,
	"video/webm":         true,
	"video/quicktime":    true,
	"application/pdf":    true,
	"application/msword": true,
	"application/zip":    true,
	"audio/mpeg":         true,
	"audio/ogg":          true,
	"audio/wav":          true,
}

// UploadHandler accepts chat uploads. Images go straight to object storage
// and return a URL; videos and documents are staged as pending attachments
// and return an id the client redeems with a later message send.
type UploadHandler struct {
	storage     *storage.MinIOStorage
	chatService *service.ChatService
}

func NewUploadHandler(storage *storage.MinIOStorage, chatService *service.ChatService) *UploadHandler {
	return &UploadHandler{storage: storage, chatService: chatService}
}

// UploadChatFile godoc
// @Summary Upload a chat attachment
// @Description Images return a public URL immediately. Videos and documents return an attachment id, redeemable once by a message send within its time-to-live.
// @Tags Upload
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "File to upload"
// @Success 200 {object} model.UploadResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 413 {object} model.ErrorResponse
// @Router /chat/upload [post]
func (h *UploadHandler) UploadChatFile(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		if strings.Contains(err.Error(), "request body too large") {
			c.JSON(http.StatusRequestEntityTooLarge, model.ErrorResponse{Error: "file too large (max 50MB)"})
			return
		}
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "file is required", Message: err.Error()})
		return
	}
	defer file.Close()

	contentType := strings.ToLower(header.Header.Get("Content-Type"))
	userID := c.MustGet("user_id").(uuid.UUID)

	switch {
	case allowedImageTypes[contentType]:
		if h.storage == nil {
			c.JSON(http.StatusServiceUnavailable, model.ErrorResponse{Error: "file storage unavailable"})
			return
		}
		result, err := h.storage.Upload(c.Request.Context(), file, header, "chat/images")
		if err != nil {
			c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "upload failed", Message: err.Error()})
			return
		}
		c.JSON(http.StatusOK, model.UploadResponse{
			URL:         result.URL,
			Type:        "image",
			ContentType: result.MimeType,
			Filename:    result.FileName,
			Size:        result.FileSize,
		})

	case allowedStagedTypes[contentType]:
		data, err := io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "unreadable file", Message: err.Error()})
			return
		}
		att, err := h.chatService.StageAttachment(userID, data, contentType, header.Filename)
		if err != nil {
			respondErr(c, err)
			return
		}
		kind := "document"
		if strings.HasPrefix(contentType, "video/") {
			kind = "video"
		} else if strings.HasPrefix(contentType, "audio/") {
			kind = "voice"
		}
		c.JSON(http.StatusOK, model.UploadResponse{
			ID:          &att.ID,
			Type:        kind,
			ContentType: att.ContentType,
			Filename:    att.Filename,
			Size:        att.Size,
		})

	default:
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "unsupported file type",
			Message: "allowed: jpg, png, gif, webp, mp4, webm, mov, pdf, doc, zip, mp3, ogg, wav",
		})
	}
}
