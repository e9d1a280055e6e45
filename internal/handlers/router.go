package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/chat-relay/config"
	"github.com/mossy-p/chat-relay/internal/auth"
	"github.com/mossy-p/chat-relay/internal/blob"
	"github.com/mossy-p/chat-relay/internal/middleware"
	"github.com/mossy-p/chat-relay/internal/relay"
	"github.com/mossy-p/chat-relay/internal/store"
	"github.com/rs/zerolog"
)

// Handlers holds the collaborators shared by the HTTP and WebSocket endpoints.
type Handlers struct {
	Store  store.Store
	Tokens *auth.TokenService
	Relay  *relay.Relay
	Blobs  *blob.DiskStore
	Socket config.SocketConfig
	Log    zerolog.Logger
}

// NewRouter wires every route. ctx bounds the lifetime of WebSocket connections.
func NewRouter(ctx context.Context, cfg *config.Config, h *Handlers) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(h.Log))

	// Global CORS middleware (runs before routing)
	router.Use(OriginFilter(cfg.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	router.Static(blob.URLPrefix, h.Blobs.Dir())

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/login", h.Login)
	}

	requireAuth := middleware.JWTAuth(h.Tokens)

	users := router.Group("/users", requireAuth)
	{
		users.GET("/me", h.Me)
		users.GET("/search", h.SearchUsers)
	}

	conversations := router.Group("/conversations", requireAuth)
	{
		conversations.POST("", h.CreateConversation)
		conversations.POST("/find-or-create", h.FindOrCreateConversation)
		conversations.GET("/:id/messages", h.ListMessages)
		conversations.POST("/:id/messages", h.PostMessage)
		conversations.GET("/:id/presence", h.Presence)
	}

	uploads := router.Group("/upload", requireAuth)
	{
		uploads.POST("/audio", h.UploadMedia(mediaAudio))
		uploads.POST("/video", h.UploadMedia(mediaVideo))
		uploads.POST("/file", h.UploadMedia(mediaFile))
	}

	// Persistent relay connection; the bearer token is optional
	router.GET("/ws", h.ServeWS(ctx))

	return router
}

func errorJSON(c *gin.Context, status int, code string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code})
}
