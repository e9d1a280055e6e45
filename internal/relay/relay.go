// Package relay routes events between connections that share a conversation
// room. Chat messages are membership-checked and persisted before fan-out;
// call-signaling payloads are passed through untouched.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mossy-p/chat-relay/internal/models"
	"github.com/mossy-p/chat-relay/internal/registry"
	"github.com/rs/zerolog"
)

var (
	ErrUnauthorized  = errors.New(models.ReasonUnauthorized)
	ErrNotMember     = errors.New(models.ReasonNotMember)
	ErrMessageFailed = errors.New(models.ReasonMessageFailed)
)

// MembershipOracle answers whether a user belongs to a conversation.
type MembershipOracle interface {
	IsMember(ctx context.Context, conversationID, userID string) (bool, error)
}

// MessageStore durably records chat messages.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg models.NewMessage) (models.Message, error)
}

// Presence mirrors room occupancy somewhere outside the process. Calls are
// best-effort and never gate the relay.
type Presence interface {
	Add(ctx context.Context, room, connID string) error
	Remove(ctx context.Context, room, connID string) error
	Count(ctx context.Context, room string) (int64, error)
}

type Relay struct {
	registry *registry.Registry
	oracle   MembershipOracle
	messages MessageStore
	presence Presence
	validate *validator.Validate
	locks    *roomLocks
	log      zerolog.Logger

	encode func(models.Message) (models.Event, error)
}

// New builds a relay. presence may be nil.
func New(reg *registry.Registry, oracle MembershipOracle, messages MessageStore, presence Presence, logger zerolog.Logger) *Relay {
	return &Relay{
		registry: reg,
		oracle:   oracle,
		messages: messages,
		presence: presence,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		locks:    newRoomLocks(),
		log:      logger.With().Str("module", "relay").Logger(),
		encode:   models.MessageEvent,
	}
}

// Connect registers a freshly accepted connection. identity is empty for
// anonymous connections.
func (r *Relay) Connect(connID, identity string, sink registry.Sink) {
	r.registry.Register(connID, sink)
	if identity != "" {
		_ = r.registry.SetIdentity(connID, identity)
	}
	r.log.Info().Str("conn", connID).Bool("authenticated", identity != "").Msg("connection registered")
}

// Disconnect removes the connection from every room it joined.
func (r *Relay) Disconnect(ctx context.Context, connID string) {
	rooms := r.registry.RemoveConnection(connID)
	for _, room := range rooms {
		if r.presence == nil {
			continue
		}
		if err := r.presence.Remove(ctx, room, connID); err != nil {
			r.log.Warn().Err(err).Str("conn", connID).Str("room", room).Msg("presence remove failed")
		}
	}
	r.log.Info().Str("conn", connID).Int("rooms", len(rooms)).Msg("connection removed")
}

// Dispatch handles one inbound event from connID. Unknown and server-only
// event types are ignored.
func (r *Relay) Dispatch(ctx context.Context, connID string, evt models.Event) {
	switch evt.Type {
	case models.EventJoin:
		r.Join(ctx, connID, evt.RoomID)
	case models.EventMessageSend:
		var payload models.SendPayload
		if len(evt.Payload) > 0 {
			if err := json.Unmarshal(evt.Payload, &payload); err != nil {
				r.log.Debug().Err(err).Str("conn", connID).Msg("bad message payload")
				r.emit(connID, models.ErrorEvent(evt.RoomID, models.ReasonMessageFailed))
				return
			}
		}
		_, _ = r.Send(ctx, connID, evt.RoomID, payload)
	case models.EventSignalOffer, models.EventSignalAnswer, models.EventSignalICE:
		r.Signal(connID, evt)
	default:
		r.log.Debug().Str("conn", connID).Str("type", string(evt.Type)).Msg("ignoring event")
	}
}

// Join moves connID into the conversation's room. Identified connections must
// be members of the conversation; anonymous connections always succeed. A
// denied join is silent. It reports whether the join happened.
func (r *Relay) Join(ctx context.Context, connID, conversationID string) bool {
	if strings.TrimSpace(conversationID) == "" {
		return false
	}
	conn, ok := r.registry.Lookup(connID)
	if !ok {
		return false
	}

	if conn.Authenticated() {
		member, err := r.oracle.IsMember(ctx, conversationID, conn.Identity)
		if err != nil {
			r.log.Error().Err(err).Str("conn", connID).Str("conversation", conversationID).Msg("membership check failed on join")
			return false
		}
		if !member {
			r.log.Info().Str("conn", connID).Str("user", conn.Identity).Str("conversation", conversationID).Msg("join denied")
			return false
		}
	}

	room := models.RoomKey(conversationID)
	if err := r.registry.RecordJoin(connID, room); err != nil {
		return false
	}
	if r.presence != nil {
		if err := r.presence.Add(ctx, room, connID); err != nil {
			r.log.Warn().Err(err).Str("conn", connID).Str("room", room).Msg("presence add failed")
		}
	}
	r.emit(connID, models.JoinedEvent(conversationID))
	r.log.Info().Str("conn", connID).Str("room", room).Msg("joined")
	return true
}

// Send handles a chat message sent over a connection. On failure the sender
// alone receives an error event and nothing is stored or fanned out.
func (r *Relay) Send(ctx context.Context, connID, conversationID string, payload models.SendPayload) (models.Message, error) {
	conn, ok := r.registry.Lookup(connID)
	if !ok {
		return models.Message{}, registry.ErrUnknownConnection
	}

	senderID := conn.Identity
	if senderID == "" {
		senderID = strings.TrimSpace(payload.SenderID)
	}
	if senderID == "" {
		return r.reject(connID, conversationID, ErrUnauthorized, nil)
	}

	if conn.Authenticated() {
		member, err := r.oracle.IsMember(ctx, conversationID, senderID)
		if err != nil {
			return r.reject(connID, conversationID, ErrMessageFailed, err)
		}
		if !member {
			return r.reject(connID, conversationID, ErrNotMember, nil)
		}
	}

	if err := r.validatePayload(conversationID, payload); err != nil {
		return r.reject(connID, conversationID, ErrMessageFailed, err)
	}

	msg, err := r.persistAndFanOut(ctx, models.NewMessage{
		ConversationID: conversationID,
		SenderID:       senderID,
		Kind:           payload.Kind,
		Text:           payload.Text,
		MediaURL:       payload.MediaURL,
		DurationMs:     payload.DurationMs,
	}, connID)
	if err != nil {
		return r.reject(connID, conversationID, ErrMessageFailed, err)
	}
	return msg, nil
}

// Post stores a message that was authorized elsewhere (REST or upload) and
// fans it out to every connection in the room.
func (r *Relay) Post(ctx context.Context, in models.NewMessage) (models.Message, error) {
	return r.persistAndFanOut(ctx, in, "")
}

// Signal relays an offer, answer or ICE candidate to the other connections in
// the room, tagged with the sender's connection id. There is no membership
// gate and nothing is stored.
func (r *Relay) Signal(connID string, evt models.Event) {
	if !evt.Type.IsSignal() || strings.TrimSpace(evt.RoomID) == "" {
		return
	}
	out := models.Event{
		Type:    evt.Type,
		RoomID:  evt.RoomID,
		From:    connID,
		Payload: evt.Payload,
	}
	n := r.fanOut(models.RoomKey(evt.RoomID), connID, out)
	r.log.Debug().Str("conn", connID).Str("type", string(evt.Type)).Int("peers", n).Msg("signal relayed")
}

// Online reports how many connections are in the conversation's room.
func (r *Relay) Online(ctx context.Context, conversationID string) (int64, error) {
	room := models.RoomKey(conversationID)
	if r.presence == nil {
		return int64(r.registry.Count(room)), nil
	}
	return r.presence.Count(ctx, room)
}

// persistAndFanOut holds the room's lock across the store call and the
// fan-out so peers observe messages in persistence order.
func (r *Relay) persistAndFanOut(ctx context.Context, in models.NewMessage, exclude string) (models.Message, error) {
	room := models.RoomKey(in.ConversationID)
	unlock := r.locks.lock(room)
	defer unlock()

	msg, err := r.messages.CreateMessage(ctx, in)
	if err != nil {
		return models.Message{}, fmt.Errorf("store message: %w", err)
	}
	evt, err := r.encode(msg)
	if err != nil {
		// Stored but not relayed; peers only see it through ListMessages.
		r.log.Error().Err(err).Str("message", msg.ID).Str("room", room).Msg("stored message not relayed")
		return msg, nil
	}
	n := r.fanOut(room, exclude, evt)
	r.log.Info().Str("room", room).Str("message", msg.ID).Str("sender", msg.SenderID).Int("peers", n).Msg("message delivered")
	return msg, nil
}

// fanOut delivers evt to every connection in room except exclude. A failed
// delivery to one peer is dropped and does not affect the others.
func (r *Relay) fanOut(room, exclude string, evt models.Event) int {
	frame, err := json.Marshal(evt)
	if err != nil {
		r.log.Error().Err(err).Str("room", room).Msg("encode event")
		return 0
	}
	delivered := 0
	for _, peer := range r.registry.Members(room, exclude) {
		if err := peer.Sink.Deliver(frame); err != nil {
			r.log.Debug().Err(err).Str("room", room).Str("peer", peer.ID).Msg("peer dropped event")
			continue
		}
		delivered++
	}
	return delivered
}

func (r *Relay) validatePayload(conversationID string, payload models.SendPayload) error {
	if strings.TrimSpace(conversationID) == "" {
		return fmt.Errorf("room id is required")
	}
	if err := r.validate.Struct(payload); err != nil {
		return err
	}
	if payload.Kind == models.KindText && strings.TrimSpace(*payload.Text) == "" {
		return fmt.Errorf("text must not be empty")
	}
	if payload.Kind != models.KindText && (payload.MediaURL == nil || strings.TrimSpace(*payload.MediaURL) == "") {
		return fmt.Errorf("media url must not be empty")
	}
	return nil
}

func (r *Relay) reject(connID, conversationID string, reason, cause error) (models.Message, error) {
	r.log.Info().Err(cause).Str("conn", connID).Str("conversation", conversationID).Str("reason", reason.Error()).Msg("send rejected")
	r.emit(connID, models.ErrorEvent(conversationID, reason.Error()))
	if cause != nil {
		return models.Message{}, fmt.Errorf("%w: %v", reason, cause)
	}
	return models.Message{}, reason
}

// emit sends evt to a single connection, best-effort.
func (r *Relay) emit(connID string, evt models.Event) {
	conn, ok := r.registry.Lookup(connID)
	if !ok {
		return
	}
	frame, err := json.Marshal(evt)
	if err != nil {
		r.log.Error().Err(err).Msg("encode event")
		return
	}
	if err := conn.Sink.Deliver(frame); err != nil {
		r.log.Debug().Err(err).Str("conn", connID).Msg("dropped event to sender")
	}
}
