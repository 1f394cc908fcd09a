// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/smartfi/internal/domain"
)

// KV is the string-valued key/value persistence port used for session state.
type KV interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set creates or replaces the value for key.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// MessageStore persists the analysis conversation history.
type MessageStore interface {
	// AppendMessage stores one history entry.
	AppendMessage(ctx context.Context, msg *domain.AnalysisMessage) error

	// ListMessages returns the latest limit entries for a session, oldest first.
	ListMessages(ctx context.Context, sessionID string, limit int) ([]*domain.AnalysisMessage, error)

	// DeleteMessages removes a session's history.
	DeleteMessages(ctx context.Context, sessionID string) (int64, error)
}

// Repository is the full local persistence surface.
type Repository interface {
	KV
	MessageStore

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}
