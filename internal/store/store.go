// Package store defines the durable-store contract shared by the relay and the
// REST handlers.
package store

import (
	"context"
	"errors"

	"github.com/mossy-p/chat-relay/internal/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Store is the durable store for users, conversations and messages.
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string, displayName *string) (models.User, error)
	FindUserByID(ctx context.Context, id string) (models.User, error)
	FindUserByUsername(ctx context.Context, username string) (models.User, error)
	SearchUsers(ctx context.Context, excludeID, query string, limit int) ([]models.User, error)

	CreateConversation(ctx context.Context, memberIDs []string) (models.Conversation, error)
	FindDirectConversation(ctx context.Context, a, b string) (models.Conversation, error)
	IsMember(ctx context.Context, conversationID, userID string) (bool, error)

	CreateMessage(ctx context.Context, msg models.NewMessage) (models.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
}
