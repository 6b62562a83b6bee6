// Package thread defines the conversation domain types and the durable
// store contract. The durable store is the source of truth for threads
// and messages; the session cache is always a derived view of it.
package thread

import (
	"context"
	"errors"
	"time"
)

// Role identifies who produced a conversation turn.
type Role string

const (
	// RoleUser marks a turn written by the end user.
	RoleUser Role = "user"
	// RoleAssistant marks a turn produced by the model.
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is a single conversation turn. Turns are totally ordered by
// creation time and replayed verbatim to the LLM, so ordering is
// semantically significant.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Thread is a single conversation between one user and the assistant.
type Thread struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is one durable message inside a thread. Messages are
// immutable once created; the message list is append-only.
type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"threadId"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Turn converts a durable message to its replayable form.
func (m *Message) Turn() Turn {
	return Turn{Role: m.Role, Content: m.Content}
}

// Common errors for durable storage operations.
var (
	// ErrThreadNotFound is returned when a thread doesn't exist.
	ErrThreadNotFound = errors.New("thread not found")
)

// Store abstracts durable thread persistence.
// Implementations must be safe for concurrent use.
type Store interface {
	// CreateThread creates a new thread owned by a user.
	CreateThread(ctx context.Context, userID, title string) (*Thread, error)

	// GetThread retrieves a thread by ID.
	// Returns ErrThreadNotFound if the thread doesn't exist.
	GetThread(ctx context.Context, threadID string) (*Thread, error)

	// ListThreads returns a user's threads, most recently updated first.
	ListThreads(ctx context.Context, userID string, limit int) ([]*Thread, error)

	// SetTitle updates a thread's title.
	SetTitle(ctx context.Context, threadID, title string) error

	// DeleteThread removes a thread and all its messages.
	DeleteThread(ctx context.Context, threadID string) error

	// AppendMessage appends a message to a thread (append-only).
	AppendMessage(ctx context.Context, threadID string, role Role, content string) (*Message, error)

	// LoadThreadHistory retrieves all messages for a thread in creation order.
	LoadThreadHistory(ctx context.Context, threadID string) ([]*Message, error)

	// Ping checks the underlying connection.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
