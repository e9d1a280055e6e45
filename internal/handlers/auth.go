package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/chat-relay/internal/auth"
	"github.com/mossy-p/chat-relay/internal/models"
	"github.com/mossy-p/chat-relay/internal/store"
)

// RegisterRequest represents the register request body
type RegisterRequest struct {
	Username    string  `json:"username" binding:"required"`
	Password    string  `json:"password" binding:"required"`
	DisplayName *string `json:"displayName"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Username) == "" {
		errorJSON(c, http.StatusBadRequest, "username and password required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.Log.Error().Err(err).Msg("hash password")
		errorJSON(c, http.StatusInternalServerError, "server_error")
		return
	}

	user, err := h.Store.CreateUser(c.Request.Context(), req.Username, hash, req.DisplayName)
	if errors.Is(err, store.ErrAlreadyExists) {
		errorJSON(c, http.StatusConflict, "username_taken")
		return
	}
	if err != nil {
		h.Log.Error().Err(err).Msg("create user")
		errorJSON(c, http.StatusInternalServerError, "server_error")
		return
	}

	h.respondWithToken(c, user)
}

// Login checks the password and issues a token.
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "username and password required")
		return
	}

	user, err := h.Store.FindUserByUsername(c.Request.Context(), req.Username)
	if errors.Is(err, store.ErrNotFound) {
		errorJSON(c, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	if err != nil {
		h.Log.Error().Err(err).Msg("find user")
		errorJSON(c, http.StatusInternalServerError, "server_error")
		return
	}

	ok, err := auth.ComparePassword(req.Password, user.PasswordHash)
	if err != nil || !ok {
		errorJSON(c, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	h.respondWithToken(c, user)
}

func (h *Handlers) respondWithToken(c *gin.Context, user models.User) {
	token, err := h.Tokens.Issue(user.ID)
	if err != nil {
		h.Log.Error().Err(err).Msg("issue token")
		errorJSON(c, http.StatusInternalServerError, "server_error")
		return
	}
	c.JSON(http.StatusOK, AuthResponse{Token: token, User: user})
}
