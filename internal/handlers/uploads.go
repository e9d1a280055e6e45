package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/chat-relay/internal/middleware"
	"github.com/mossy-p/chat-relay/internal/models"
)

type mediaKind struct {
	kind         models.MessageKind
	withDuration bool
	keepName     bool
}

var (
	mediaAudio = mediaKind{kind: models.KindAudio, withDuration: true}
	mediaVideo = mediaKind{kind: models.KindVideo, withDuration: true}
	mediaFile  = mediaKind{kind: models.KindFile, keepName: true}
)

// UploadMedia stores the multipart "file" field in the blob store and then
// posts a message referencing it to the conversation.
func (h *Handlers) UploadMedia(media mediaKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		header, err := c.FormFile("file")
		if err != nil {
			errorJSON(c, http.StatusBadRequest, "file required")
			return
		}
		conversationID := strings.TrimSpace(c.PostForm("conversationId"))
		if conversationID == "" {
			errorJSON(c, http.StatusBadRequest, "conversationId required")
			return
		}

		var duration *int64
		if raw := strings.TrimSpace(c.PostForm("durationMs")); media.withDuration && raw != "" {
			ms, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || ms < 0 {
				errorJSON(c, http.StatusBadRequest, "durationMs must be a non-negative integer")
				return
			}
			duration = &ms
		}

		file, err := header.Open()
		if err != nil {
			errorJSON(c, http.StatusBadRequest, "file required")
			return
		}
		defer file.Close()

		stored, err := h.Blobs.Save(header.Filename, file)
		if err != nil {
			h.Log.Error().Err(err).Str("file", header.Filename).Msg("store upload")
			errorJSON(c, http.StatusInternalServerError, "server_error")
			return
		}
		h.Log.Info().Str("blob", stored.Name).Str("mime", stored.MIME).Int64("size", stored.Size).Msg("upload stored")

		in := models.NewMessage{
			ConversationID: conversationID,
			SenderID:       middleware.UserID(c),
			Kind:           media.kind,
			MediaURL:       &stored.URL,
			DurationMs:     duration,
		}
		if media.keepName {
			in.Text = &stored.OriginalName
		}

		msg, err := h.Relay.Post(c.Request.Context(), in)
		if err != nil {
			h.Log.Error().Err(err).Msg("post upload message")
			errorJSON(c, http.StatusInternalServerError, "server_error")
			return
		}
		c.JSON(http.StatusCreated, msg)
	}
}
