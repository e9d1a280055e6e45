package models

import "time"

// MessageKind is the stored type of a chat message.
type MessageKind string

const (
	KindText  MessageKind = "TEXT"
	KindAudio MessageKind = "AUDIO"
	KindVideo MessageKind = "VIDEO"
	KindFile  MessageKind = "FILE"
)

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  *string   `json:"displayName"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

type ConversationMember struct {
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	JoinedAt       time.Time `json:"joinedAt"`
}

type Conversation struct {
	ID        string               `json:"id"`
	IsGroup   bool                 `json:"isGroup"`
	CreatedAt time.Time            `json:"createdAt"`
	Members   []ConversationMember `json:"members"`
}

// Message is a durably stored chat message.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversationId"`
	SenderID       string      `json:"senderId"`
	Type           MessageKind `json:"type"`
	Text           *string     `json:"text"`
	MediaURL       *string     `json:"mediaUrl"`
	DurationMs     *int64      `json:"durationMs"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// NewMessage carries the fields needed to persist a message.
type NewMessage struct {
	ConversationID string
	SenderID       string
	Kind           MessageKind
	Text           *string
	MediaURL       *string
	DurationMs     *int64
}

// RoomKey maps a conversation id to its relay room key.
func RoomKey(conversationID string) string {
	return "conv:" + conversationID
}
