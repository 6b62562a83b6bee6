package session

import (
	"context"
	"errors"
	"log"

	"golang.org/x/sync/singleflight"

	"github.com/chatcore-dev/chatcore/pkg/observability"
	"github.com/chatcore-dev/chatcore/pkg/thread"
)

// DefaultSystemInstruction is applied whenever a caller supplies none.
// Once set for a thread it is not migrated on subsequent calls unless
// the caller again supplies an instruction explicitly.
const DefaultSystemInstruction = "You are a helpful assistant."

// Manager produces ready-to-use conversation handles for threads,
// hiding whether a handle came from the cache or was built fresh.
// Manager is safe for concurrent use.
//
// Cache failures never propagate: a failed read degrades to a fresh
// session (the caller rebuilds from the durable store), and a failed
// write is dropped after logging. A chat request must never fail
// solely because the cache is unavailable.
type Manager struct {
	cache Cache
	group singleflight.Group
	locks *keyedMutex
}

// NewManager creates a session manager over the given cache.
func NewManager(cache Cache) *Manager {
	return &Manager{
		cache: cache,
		locks: newKeyedMutex(),
	}
}

// Lock acquires the per-thread advisory lock and returns its unlock
// function. Callers performing a read-modify-write cycle for a thread
// hold this lock across the whole cycle.
func (m *Manager) Lock(threadID string) func() {
	return m.locks.Lock(threadID)
}

// GetOrCreate returns the thread's session from the cache, or a fresh
// empty session if none exists. On a hit the last-used timestamp is
// refreshed and the entry re-put, extending the sliding expiry window.
// Concurrent rehydrations of the same thread are deduplicated.
func (m *Manager) GetOrCreate(ctx context.Context, threadID, instruction string) *Handle {
	v, _, _ := m.group.Do(threadID, func() (any, error) {
		return m.getOrCreate(ctx, threadID, instruction), nil
	})
	return v.(*Handle)
}

func (m *Manager) getOrCreate(ctx context.Context, threadID, instruction string) *Handle {
	cached, err := m.cache.Get(ctx, threadID)
	if err == nil {
		observability.RecordCacheLookup("hit")
		h := rehydrate(cached)
		h.touch()
		m.Save(ctx, h)
		return h
	}

	if errors.Is(err, ErrCacheMiss) {
		observability.RecordCacheLookup("miss")
	} else {
		// Unavailable cache degrades to a miss.
		observability.RecordCacheLookup("error")
		log.Printf("[session] cache get for thread %s failed, rebuilding: %v", threadID, err)
	}

	if instruction == "" {
		instruction = DefaultSystemInstruction
	}

	h := newHandle(threadID, instruction, nil, nowMillis())
	m.Save(ctx, h)
	return h
}

// GetOrRebuild returns the thread's session from the cache, or seeds
// one from the caller's history loader when the cache has no usable
// entry (evicted or unreachable). The seeded handle is returned live
// even when its cache write is dropped, so a cache outage degrades to
// the rebuild-from-store path instead of losing history. The second
// result reports whether the session was rebuilt.
//
// Callers hold the per-thread lock (Lock) across this call and the
// use of the returned handle.
func (m *Manager) GetOrRebuild(ctx context.Context, threadID, instruction string, load func(context.Context) ([]thread.Turn, error)) (*Handle, bool, error) {
	cached, err := m.cache.Get(ctx, threadID)
	if err == nil {
		observability.RecordCacheLookup("hit")
		h := rehydrate(cached)
		h.touch()
		m.Save(ctx, h)
		return h, false, nil
	}

	if errors.Is(err, ErrCacheMiss) {
		observability.RecordCacheLookup("miss")
	} else {
		observability.RecordCacheLookup("error")
		log.Printf("[session] cache get for thread %s failed, rebuilding: %v", threadID, err)
	}

	turns, err := load(ctx)
	if err != nil {
		return nil, false, err
	}

	return m.InitializeWithHistory(ctx, threadID, turns, instruction), true, nil
}

// Peek reports whether the cache currently holds a session for the
// thread, returning it without creating one and without extending the
// expiry window. Callers that hold authoritative history use it to
// decide between InitializeWithHistory and GetOrCreate.
func (m *Manager) Peek(ctx context.Context, threadID string) (*Handle, bool) {
	cached, err := m.cache.Get(ctx, threadID)
	if err != nil {
		return nil, false
	}
	return rehydrate(cached), true
}

// InitializeWithHistory seeds a session from a caller-supplied turn
// list and persists it, unconditionally overwriting any cached entry.
// Callers use it when they hold authoritative history from the durable
// store (process restart, known-stale cache); it always wins over
// whatever the cache currently contains.
func (m *Manager) InitializeWithHistory(ctx context.Context, threadID string, turns []thread.Turn, instruction string) *Handle {
	if instruction == "" {
		instruction = DefaultSystemInstruction
	}

	h := newHandle(threadID, instruction, historyFromTurns(turns), nowMillis())
	m.Save(ctx, h)
	return h
}

// Save writes the session back to the cache (full round-trip
// serialize), resetting the expiry window. Write failures are dropped:
// the durable store remains the source of truth and the session will
// be rebuilt on the next access.
func (m *Manager) Save(ctx context.Context, h *Handle) {
	if err := m.cache.Put(ctx, h.ThreadID(), h.Serialize()); err != nil {
		observability.RecordCacheWriteError()
		log.Printf("[session] cache put for thread %s dropped: %v", h.ThreadID(), err)
	}
}

// Invalidate removes a thread's cached session. Used when the thread
// is deleted from the durable store, so a reused identifier can never
// observe stale session state.
func (m *Manager) Invalidate(ctx context.Context, threadID string) error {
	return m.cache.Delete(ctx, threadID)
}

// Ping reports the health of the underlying cache connection.
func (m *Manager) Ping(ctx context.Context) error {
	return m.cache.Ping(ctx)
}

// Close releases the underlying cache connection.
func (m *Manager) Close() error {
	return m.cache.Close()
}
