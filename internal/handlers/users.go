package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/chat-relay/internal/middleware"
	"github.com/mossy-p/chat-relay/internal/store"
)

const searchLimit = 20

func (h *Handlers) Me(c *gin.Context) {
	user, err := h.Store.FindUserByID(c.Request.Context(), middleware.UserID(c))
	if errors.Is(err, store.ErrNotFound) {
		errorJSON(c, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		h.Log.Error().Err(err).Msg("find current user")
		errorJSON(c, http.StatusInternalServerError, "server_error")
		return
	}
	c.JSON(http.StatusOK, user)
}

// SearchUsers lists other users matching ?q=, or the first page of users when q is empty.
func (h *Handlers) SearchUsers(c *gin.Context) {
	users, err := h.Store.SearchUsers(c.Request.Context(), middleware.UserID(c), c.Query("q"), searchLimit)
	if err != nil {
		h.Log.Error().Err(err).Msg("search users")
		errorJSON(c, http.StatusInternalServerError, "server_error")
		return
	}
	c.JSON(http.StatusOK, users)
}
