package models

import "encoding/json"

// EventType names one variant of the relay's wire envelope.
type EventType string

const (
	EventJoin         EventType = "join"
	EventJoined       EventType = "joined"
	EventMessageSend  EventType = "message:send"
	EventMessageNew   EventType = "message:new"
	EventSignalOffer  EventType = "webrtc:offer"
	EventSignalAnswer EventType = "webrtc:answer"
	EventSignalICE    EventType = "webrtc:ice"
	EventError        EventType = "error"
)

// IsSignal reports whether t is one of the call-negotiation kinds.
func (t EventType) IsSignal() bool {
	switch t {
	case EventSignalOffer, EventSignalAnswer, EventSignalICE:
		return true
	}
	return false
}

// Error reasons carried by error events.
const (
	ReasonUnauthorized  = "unauthorized"
	ReasonNotMember     = "not_member"
	ReasonMessageFailed = "message_failed"
)

// Event is the JSON envelope exchanged over a relay connection.
type Event struct {
	Type    EventType       `json:"type"`
	RoomID  string          `json:"roomId,omitempty"`
	From    string          `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// SendPayload is the body of a message:send event.
type SendPayload struct {
	SenderID   string      `json:"senderId,omitempty"`
	Kind       MessageKind `json:"kind" validate:"required,oneof=TEXT AUDIO VIDEO FILE"`
	Text       *string     `json:"text,omitempty" validate:"required_if=Kind TEXT"`
	MediaURL   *string     `json:"mediaUrl,omitempty" validate:"required_unless=Kind TEXT"`
	DurationMs *int64      `json:"durationMs,omitempty" validate:"omitempty,gte=0"`
}

func JoinedEvent(roomID string) Event {
	return Event{Type: EventJoined, RoomID: roomID}
}

func ErrorEvent(roomID, reason string) Event {
	return Event{Type: EventError, RoomID: roomID, Error: reason}
}

// MessageEvent wraps a stored message as a message:new event.
func MessageEvent(msg Message) (Event, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: EventMessageNew, RoomID: msg.ConversationID, Payload: payload}, nil
}
