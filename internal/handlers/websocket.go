package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mossy-p/chat-relay/config"
	"github.com/mossy-p/chat-relay/internal/auth"
	"github.com/mossy-p/chat-relay/internal/models"
	"github.com/rs/zerolog"
)

var (
	ErrClientClosed = errors.New("client closed")
	ErrBufferFull   = errors.New("send buffer full")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// Client represents a WebSocket client connection
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan []byte
	cfg  config.SocketConfig
	log  zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

func newClient(conn *websocket.Conn, cfg config.SocketConfig, logger zerolog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		ID:   id,
		conn: conn,
		send: make(chan []byte, cfg.SendBuffer),
		cfg:  cfg,
		log:  logger.With().Str("module", "ws").Str("conn", id).Logger(),
	}
}

// Deliver queues a frame without blocking. A full buffer drops the frame.
func (c *Client) Deliver(frame []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrBufferFull
	}
}

// close stops further delivery and lets the write pump send a close frame.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// handshakeToken returns the optional bearer token from ?token= or the
// Authorization header.
func handshakeToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	token, _ := auth.BearerToken(c.GetHeader("Authorization"))
	return token
}

// ServeWS upgrades to a relay connection. A missing token yields an anonymous
// connection; an invalid one is rejected before the upgrade.
func (h *Handlers) ServeWS(ctx context.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		var identity string
		if token := handshakeToken(c); token != "" {
			userID, err := h.Tokens.Verify(token)
			if err != nil {
				errorJSON(c, http.StatusUnauthorized, "unauthorized")
				return
			}
			identity = userID
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.Log.Warn().Err(err).Str("module", "ws").Msg("failed to upgrade connection")
			return
		}

		client := newClient(conn, h.Socket, h.Log)
		h.Relay.Connect(client.ID, identity, client)

		// Server shutdown closes the socket, which ends the read pump.
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		defer stop()

		go client.writePump()
		client.readPump(c.Request.Context(), h)
	}
}

// readPump handles one connection's events in arrival order. It returns on
// disconnect, after the in-flight event has finished.
func (c *Client) readPump(ctx context.Context, h *Handlers) {
	defer func() {
		h.Relay.Disconnect(context.WithoutCancel(ctx), c.ID)
		c.close()
		c.log.Info().Msg("connection closed")
	}()

	c.conn.SetReadLimit(c.cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("websocket error")
			}
			return
		}

		var evt models.Event
		if err := json.Unmarshal(message, &evt); err != nil {
			c.log.Debug().Err(err).Msg("failed to parse event")
			continue
		}
		h.Relay.Dispatch(ctx, c.ID, evt)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug().Err(err).Msg("failed to write message")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
