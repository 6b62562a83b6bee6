// Package store implements the durable thread store over PostgreSQL.
// It is the source of truth for threads and messages; the session
// cache is rebuilt from it after any cache loss.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatcore-dev/chatcore/pkg/thread"
)

// Postgres implements thread.Store over a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects a thread store to PostgreSQL and verifies the
// connection.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("postgres DSN is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// NewPostgresFromPool creates a store over an existing pool. The pool
// is adopted and closed by Close.
func NewPostgresFromPool(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// CreateThread creates a new thread owned by a user.
func (s *Postgres) CreateThread(ctx context.Context, userID, title string) (*thread.Thread, error) {
	t := &thread.Thread{
		ID:     uuid.New().String(),
		UserID: userID,
		Title:  title,
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO threads (id, user_id, title, created_at, updated_at)
		 VALUES ($1, $2, $3, now(), now())
		 RETURNING created_at, updated_at`,
		t.ID, t.UserID, t.Title,
	)
	if err := row.Scan(&t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}

	return t, nil
}

// GetThread retrieves a thread by ID.
func (s *Postgres) GetThread(ctx context.Context, threadID string) (*thread.Thread, error) {
	var t thread.Thread
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, title, created_at, updated_at
		 FROM threads WHERE id = $1`,
		threadID,
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, thread.ErrThreadNotFound
		}
		return nil, fmt.Errorf("get thread: %w", err)
	}
	return &t, nil
}

// ListThreads returns a user's threads, most recently updated first.
func (s *Postgres) ListThreads(ctx context.Context, userID string, limit int) ([]*thread.Thread, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, title, created_at, updated_at
		 FROM threads WHERE user_id = $1
		 ORDER BY updated_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var threads []*thread.Thread
	for rows.Next() {
		var t thread.Thread
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		threads = append(threads, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}

	return threads, nil
}

// SetTitle updates a thread's title.
func (s *Postgres) SetTitle(ctx context.Context, threadID, title string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE threads SET title = $2, updated_at = now() WHERE id = $1`,
		threadID, title,
	)
	if err != nil {
		return fmt.Errorf("set title: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return thread.ErrThreadNotFound
	}
	return nil
}

// DeleteThread removes a thread and all its messages. Callers are
// responsible for invalidating the thread's cached session.
func (s *Postgres) DeleteThread(ctx context.Context, threadID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE thread_id = $1`, threadID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM threads WHERE id = $1`, threadID)
	if err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return thread.ErrThreadNotFound
	}

	return tx.Commit(ctx)
}

// AppendMessage appends a message to a thread. Messages are immutable
// once created.
func (s *Postgres) AppendMessage(ctx context.Context, threadID string, role thread.Role, content string) (*thread.Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role: %q", role)
	}

	m := &thread.Message{
		ID:       uuid.New().String(),
		ThreadID: threadID,
		Role:     role,
		Content:  content,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx,
		`INSERT INTO messages (id, thread_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4, now())
		 RETURNING created_at`,
		m.ID, m.ThreadID, string(m.Role), m.Content,
	)
	if err := row.Scan(&m.CreatedAt); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE threads SET updated_at = now() WHERE id = $1`, threadID,
	); err != nil {
		return nil, fmt.Errorf("touch thread: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return m, nil
}

// LoadThreadHistory retrieves all messages for a thread in creation
// order. An empty history is a valid state, not an error.
func (s *Postgres) LoadThreadHistory(ctx context.Context, threadID string) ([]*thread.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, thread_id, role, content, created_at
		 FROM messages WHERE thread_id = $1
		 ORDER BY created_at ASC, id ASC`,
		threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var messages []*thread.Message
	for rows.Next() {
		var m thread.Message
		var role string
		if err := rows.Scan(&m.ID, &m.ThreadID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = thread.Role(role)
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	return messages, nil
}

// Ping checks the database connection.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}
