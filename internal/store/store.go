// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/ashureev/fitmind/internal/domain"
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("not found")

// Repository persists profiles and chat logs.
type Repository interface {
	// GetUser retrieves a profile by user ID. It returns nil, nil when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a profile.
	UpsertUser(ctx context.Context, user *domain.User) error

	// CreateConversation stores a new conversation and its initial messages.
	CreateConversation(ctx context.Context, conv *domain.Conversation) error

	// GetConversation loads a conversation with its messages.
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)

	// LatestConversation loads the most recently updated conversation of a
	// user. It returns nil, nil when the user has none.
	LatestConversation(ctx context.Context, userID string) (*domain.Conversation, error)

	// UpdateConversationState writes the scalar state of a conversation.
	UpdateConversationState(ctx context.Context, conv *domain.Conversation) error

	// AppendMessage stores a message. Messages are returned in insertion order.
	AppendMessage(ctx context.Context, msg domain.Message) error

	// ListMessages returns the messages of a conversation ordered by creation.
	ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
