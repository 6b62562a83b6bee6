package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chatcore-dev/chatcore/pkg/thread"
)

func setupManager(t *testing.T) (*Manager, *RedisCache) {
	t.Helper()
	_, cache := setupMiniredis(t, time.Hour)
	return NewManager(cache), cache
}

func turns(pairs ...string) []thread.Turn {
	out := make([]thread.Turn, 0, len(pairs))
	for i, content := range pairs {
		role := thread.RoleUser
		if i%2 == 1 {
			role = thread.RoleAssistant
		}
		out = append(out, thread.Turn{Role: role, Content: content})
	}
	return out
}

func TestManager_GetOrCreate_Miss(t *testing.T) {
	m, cache := setupManager(t)
	ctx := context.Background()

	h := m.GetOrCreate(ctx, "t1", "")

	if h.ThreadID() != "t1" {
		t.Errorf("ThreadID: got %s, want t1", h.ThreadID())
	}
	if h.Len() != 0 {
		t.Errorf("expected empty history, got %d turns", h.Len())
	}
	if h.SystemInstruction() != DefaultSystemInstruction {
		t.Errorf("expected default instruction, got %q", h.SystemInstruction())
	}

	// A miss writes the fresh session through to the cache.
	if _, err := cache.Get(ctx, "t1"); err != nil {
		t.Errorf("fresh session not cached: %v", err)
	}
}

func TestManager_GetOrCreate_CustomInstruction(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	h := m.GetOrCreate(ctx, "t2", "Answer in French.")
	if h.SystemInstruction() != "Answer in French." {
		t.Errorf("instruction: got %q", h.SystemInstruction())
	}

	// The instruction is not migrated for an existing cached session.
	h2 := m.GetOrCreate(ctx, "t2", "")
	if h2.SystemInstruction() != "Answer in French." {
		t.Errorf("instruction migrated on hit: got %q", h2.SystemInstruction())
	}
}

func TestManager_MissThenRebuildEquivalence(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	seeded := turns("Hello", "Hi there", "How are you?", "Doing well!")
	m.InitializeWithHistory(ctx, "t3", seeded, "")

	h := m.GetOrCreate(ctx, "t3", "")
	got := h.Turns()

	if len(got) != len(seeded) {
		t.Fatalf("history length: got %d, want %d", len(got), len(seeded))
	}
	for i := range seeded {
		if got[i] != seeded[i] {
			t.Errorf("turn %d: got %+v, want %+v", i, got[i], seeded[i])
		}
	}
}

func TestManager_InitializeWinsOverCache(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	m.InitializeWithHistory(ctx, "t4", turns("old"), "")

	// Explicit initialization replaces whatever the cache held.
	fresh := turns("a", "b", "c", "d")
	m.InitializeWithHistory(ctx, "t4", fresh, "")

	h := m.GetOrCreate(ctx, "t4", "")
	if h.Len() != 4 {
		t.Errorf("history length: got %d, want 4", h.Len())
	}
	if h.Turns()[0].Content != "a" {
		t.Errorf("first turn: got %q, want a", h.Turns()[0].Content)
	}
}

func TestManager_GetOrCreate_HitExtendsWindow(t *testing.T) {
	mr, cache := setupMiniredis(t, time.Hour)
	m := NewManager(cache)
	ctx := context.Background()

	m.InitializeWithHistory(ctx, "t5", turns("hello"), "")

	mr.FastForward(55 * time.Minute)

	// The hit re-puts the session, extending the sliding window.
	before := m.GetOrCreate(ctx, "t5", "")
	if before.Len() != 1 {
		t.Fatalf("expected cached history, got %d turns", before.Len())
	}

	mr.FastForward(55 * time.Minute)
	h := m.GetOrCreate(ctx, "t5", "")
	if h.Len() != 1 {
		t.Errorf("entry expired despite read-refresh: got %d turns", h.Len())
	}
}

func TestManager_Invalidate(t *testing.T) {
	m, cache := setupManager(t)
	ctx := context.Background()

	m.InitializeWithHistory(ctx, "t6", turns("hello"), "")

	if err := m.Invalidate(ctx, "t6"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	if _, err := cache.Get(ctx, "t6"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss after invalidate, got %v", err)
	}
}

func TestManager_Peek(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	if _, ok := m.Peek(ctx, "t7"); ok {
		t.Error("Peek reported a session for an unknown thread")
	}

	m.InitializeWithHistory(ctx, "t7", turns("hello", "hi"), "")

	h, ok := m.Peek(ctx, "t7")
	if !ok {
		t.Fatal("Peek missed a cached session")
	}
	if h.Len() != 2 {
		t.Errorf("peeked history: got %d turns, want 2", h.Len())
	}
}

func TestManager_GetOrRebuild_Hit(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	m.InitializeWithHistory(ctx, "t9", turns("hello", "hi"), "")

	h, rebuilt, err := m.GetOrRebuild(ctx, "t9", "", func(context.Context) ([]thread.Turn, error) {
		t.Fatal("loader called despite cache hit")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("GetOrRebuild failed: %v", err)
	}
	if rebuilt {
		t.Error("hit reported as rebuild")
	}
	if h.Len() != 2 {
		t.Errorf("cached history: got %d turns, want 2", h.Len())
	}
}

func TestManager_GetOrRebuild_Miss(t *testing.T) {
	m, cache := setupManager(t)
	ctx := context.Background()

	h, rebuilt, err := m.GetOrRebuild(ctx, "t10", "", func(context.Context) ([]thread.Turn, error) {
		return turns("one", "two"), nil
	})
	if err != nil {
		t.Fatalf("GetOrRebuild failed: %v", err)
	}
	if !rebuilt {
		t.Error("miss not reported as rebuild")
	}
	if h.Len() != 2 {
		t.Errorf("rebuilt history: got %d turns, want 2", h.Len())
	}

	// The rebuilt session is written through to the cache.
	if _, err := cache.Get(ctx, "t10"); err != nil {
		t.Errorf("rebuilt session not cached: %v", err)
	}
}

func TestManager_GetOrRebuild_LoadError(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	wantErr := errors.New("store unavailable")
	_, _, err := m.GetOrRebuild(ctx, "t11", "", func(context.Context) ([]thread.Turn, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected loader error, got %v", err)
	}
}

// failingCache always errors, standing in for an unreachable Redis.
type failingCache struct{}

func (failingCache) Put(ctx context.Context, threadID string, sess *SerializedSession) error {
	return errors.New("connection refused")
}

func (failingCache) Get(ctx context.Context, threadID string) (*SerializedSession, error) {
	return nil, errors.New("connection refused")
}

func (failingCache) Delete(ctx context.Context, threadID string) error {
	return errors.New("connection refused")
}

func (failingCache) Ping(ctx context.Context) error { return errors.New("connection refused") }
func (failingCache) Close() error                   { return nil }

func TestManager_CacheFailureDegrades(t *testing.T) {
	m := NewManager(failingCache{})
	ctx := context.Background()

	// Neither reads nor writes may surface cache failures.
	h := m.GetOrCreate(ctx, "t8", "")
	if h == nil || h.Len() != 0 {
		t.Fatalf("expected fresh empty session, got %+v", h)
	}

	h = m.InitializeWithHistory(ctx, "t8", turns("hello", "hi"), "")
	if h.Len() != 2 {
		t.Errorf("seeded handle lost history: got %d turns", h.Len())
	}

	// A rebuild during an outage keeps the loaded history live even
	// though the write-through was dropped.
	h, rebuilt, err := m.GetOrRebuild(ctx, "t8", "", func(context.Context) ([]thread.Turn, error) {
		return turns("one", "two", "three", "four"), nil
	})
	if err != nil {
		t.Fatalf("GetOrRebuild failed: %v", err)
	}
	if !rebuilt {
		t.Error("outage not reported as rebuild")
	}
	if h.Len() != 4 {
		t.Errorf("rebuilt handle lost history: got %d turns, want 4", h.Len())
	}
}
