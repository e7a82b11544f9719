// Package store provides session persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashureev/physics-lab/internal/domain"
)

// ErrNotFound is returned when a session id has never been stored.
var ErrNotFound = errors.New("session not found")

// SessionStore defines the interface for persisting generated experiment sessions.
type SessionStore interface {
	// Get retrieves a session by id. Returns ErrNotFound when absent.
	Get(ctx context.Context, id string) (*domain.Session, error)

	// Put creates or replaces a session keyed by its ID.
	Put(ctx context.Context, session *domain.Session) error

	// List returns all stored session ids, oldest first.
	List(ctx context.Context) ([]string, error)

	// Count returns the number of stored sessions.
	Count(ctx context.Context) (int, error)

	// Ping verifies the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases storage resources.
	Close() error
}

// Open returns the session store selected by kind ("memory" or "sqlite").
func Open(kind, dbPath string) (SessionStore, error) {
	switch kind {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return NewSQLite(dbPath)
	default:
		return nil, fmt.Errorf("unknown session store %q", kind)
	}
}
