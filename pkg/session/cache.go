package session

import (
	"context"
	"errors"
	"time"
)

// Common errors for cache operations.
var (
	// ErrCacheMiss is returned when a key is missing, expired, or its
	// payload could not be decoded. Callers treat all three the same:
	// rebuild the session from the durable store.
	ErrCacheMiss = errors.New("session cache miss")
	// ErrCacheClosed is returned when operating on a closed cache.
	ErrCacheClosed = errors.New("session cache is closed")
)

// DefaultTTL is the fixed retention window for cached sessions. Every
// read and write resets the window (sliding expiry).
const DefaultTTL = 7 * 24 * time.Hour

// Cache abstracts serialized-session storage keyed by thread ID.
// Implementations must be safe for concurrent use.
//
// Get is a read-refresh, not a pure read-through: on a hit the caller
// is expected to refresh LastUsed and Put the session back, extending
// the sliding window.
type Cache interface {
	// Put serializes and stores a session, unconditionally overwriting
	// any prior value and resetting the expiry window. Last writer wins.
	Put(ctx context.Context, threadID string, sess *SerializedSession) error

	// Get retrieves a session by thread ID.
	// Returns ErrCacheMiss if the key is missing, expired, or corrupt.
	Get(ctx context.Context, threadID string) (*SerializedSession, error)

	// Delete removes a session entry. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, threadID string) error

	// Ping checks the underlying connection.
	Ping(ctx context.Context) error

	// Close releases the underlying connection. Idempotent.
	Close() error
}
