// Package tokenstore persists serialized access tokens under a name so that
// later sessions can reopen without a new handshake.
package tokenstore

import (
	"context"
	"errors"
	"time"
)

// Common token store errors
var (
	ErrNotFound    = errors.New("token not found")
	ErrInvalidName = errors.New("token name must not be empty")
)

// Record is one stored token
type Record struct {
	Name string `json:"name"`
	// Kind is the configuration kind the token belongs to
	Kind string `json:"kind"`
	// Payload is the serialized token, possibly sealed
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store defines the interface for token persistence
type Store interface {
	// Put creates or replaces the token called name
	Put(ctx context.Context, name, kind string, payload []byte) error

	// Get returns the token called name, or ErrNotFound
	Get(ctx context.Context, name string) (*Record, error)

	// Delete removes the token called name, or returns ErrNotFound
	Delete(ctx context.Context, name string) error

	// List returns the stored names in ascending order
	List(ctx context.Context) ([]string, error)

	// Close releases the underlying connection
	Close() error
}
