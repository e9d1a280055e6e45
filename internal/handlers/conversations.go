package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/chat-relay/internal/middleware"
	"github.com/mossy-p/chat-relay/internal/models"
	"github.com/mossy-p/chat-relay/internal/store"
)

// ConversationRequest is the body of both conversation-creating endpoints.
type ConversationRequest struct {
	MemberIDs []string `json:"memberIds" binding:"required,min=2,dive,required"`
}

// PostMessageRequest is the body of a REST text message.
type PostMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// PresenceResponse reports how many connections are in a conversation's room.
type PresenceResponse struct {
	ConversationID string `json:"conversationId"`
	Online         int64  `json:"online"`
}

func (h *Handlers) CreateConversation(c *gin.Context) {
	var req ConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "memberIds (>=2) required")
		return
	}

	conv, err := h.Store.CreateConversation(c.Request.Context(), req.MemberIDs)
	if err != nil {
		h.Log.Error().Err(err).Msg("create conversation")
		errorJSON(c, http.StatusInternalServerError, "server_error")
		return
	}
	c.JSON(http.StatusOK, conv)
}

// FindOrCreateConversation returns the direct conversation between the first
// two member ids, creating it when missing.
func (h *Handlers) FindOrCreateConversation(c *gin.Context) {
	var req ConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "memberIds (>=2) required")
		return
	}
	a, b := req.MemberIDs[0], req.MemberIDs[1]
	ctx := c.Request.Context()

	conv, err := h.Store.FindDirectConversation(ctx, a, b)
	if errors.Is(err, store.ErrNotFound) {
		conv, err = h.Store.CreateConversation(ctx, []string{a, b})
	}
	if err != nil {
		h.Log.Error().Err(err).Msg("find or create conversation")
		errorJSON(c, http.StatusInternalServerError, "server_error")
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *Handlers) ListMessages(c *gin.Context) {
	messages, err := h.Store.ListMessages(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Log.Error().Err(err).Msg("list messages")
		errorJSON(c, http.StatusInternalServerError, "server_error")
		return
	}
	c.JSON(http.StatusOK, messages)
}

// PostMessage stores a text message and relays it to the conversation's room.
func (h *Handlers) PostMessage(c *gin.Context) {
	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		errorJSON(c, http.StatusBadRequest, "text required")
		return
	}

	msg, err := h.Relay.Post(c.Request.Context(), models.NewMessage{
		ConversationID: c.Param("id"),
		SenderID:       middleware.UserID(c),
		Kind:           models.KindText,
		Text:           &req.Text,
	})
	if err != nil {
		h.Log.Error().Err(err).Msg("post message")
		errorJSON(c, http.StatusInternalServerError, "server_error")
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handlers) Presence(c *gin.Context) {
	id := c.Param("id")
	online, err := h.Relay.Online(c.Request.Context(), id)
	if err != nil {
		h.Log.Error().Err(err).Msg("presence")
		errorJSON(c, http.StatusInternalServerError, "server_error")
		return
	}
	c.JSON(http.StatusOK, PresenceResponse{ConversationID: id, Online: online})
}
