package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupMiniredis(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()

	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cache := NewRedisCacheFromClient(client, "test:", ttl)

	t.Cleanup(func() {
		_ = cache.Close()
	})

	return mr, cache
}

func sampleSession(threadID string) *SerializedSession {
	return &SerializedSession{
		ThreadID: threadID,
		History: []Content{
			{Role: WireRoleUser, Parts: []Part{{Text: "Hello"}}},
			{Role: WireRoleModel, Parts: []Part{{Text: "Hi! How can I help?"}}},
		},
		SystemInstruction: "You are a helpful assistant.",
		CreatedAt:         time.Now().UnixMilli(),
		LastUsed:          time.Now().UnixMilli(),
	}
}

func TestRedisCache_RoundTrip(t *testing.T) {
	_, cache := setupMiniredis(t, time.Hour)
	ctx := context.Background()

	sess := sampleSession("thread-1")
	if err := cache.Put(ctx, "thread-1", sess); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	loaded, err := cache.Get(ctx, "thread-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if loaded.ThreadID != sess.ThreadID {
		t.Errorf("ThreadID mismatch: got %s, want %s", loaded.ThreadID, sess.ThreadID)
	}
	if loaded.SystemInstruction != sess.SystemInstruction {
		t.Errorf("SystemInstruction mismatch: got %q, want %q", loaded.SystemInstruction, sess.SystemInstruction)
	}
	if len(loaded.History) != len(sess.History) {
		t.Fatalf("History length mismatch: got %d, want %d", len(loaded.History), len(sess.History))
	}
	for i := range sess.History {
		if loaded.History[i].Role != sess.History[i].Role {
			t.Errorf("History[%d] role mismatch: got %s, want %s", i, loaded.History[i].Role, sess.History[i].Role)
		}
		if loaded.History[i].Text() != sess.History[i].Text() {
			t.Errorf("History[%d] text mismatch: got %q, want %q", i, loaded.History[i].Text(), sess.History[i].Text())
		}
	}
}

func TestRedisCache_Get_Missing(t *testing.T) {
	_, cache := setupMiniredis(t, time.Hour)
	ctx := context.Background()

	_, err := cache.Get(ctx, "nonexistent")
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss, got %v", err)
	}
}

func TestRedisCache_TTLExpiry(t *testing.T) {
	mr, cache := setupMiniredis(t, time.Hour)
	ctx := context.Background()

	if err := cache.Put(ctx, "thread-ttl", sampleSession("thread-ttl")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	mr.FastForward(time.Hour + time.Minute)

	_, err := cache.Get(ctx, "thread-ttl")
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss after TTL, got %v", err)
	}
}

func TestRedisCache_PutResetsExpiry(t *testing.T) {
	mr, cache := setupMiniredis(t, time.Hour)
	ctx := context.Background()

	if err := cache.Put(ctx, "thread-slide", sampleSession("thread-slide")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Just before expiry, a re-put must extend the window by the full TTL.
	mr.FastForward(55 * time.Minute)
	if err := cache.Put(ctx, "thread-slide", sampleSession("thread-slide")); err != nil {
		t.Fatalf("re-Put failed: %v", err)
	}

	mr.FastForward(55 * time.Minute)
	if _, err := cache.Get(ctx, "thread-slide"); err != nil {
		t.Errorf("entry expired despite refreshed window: %v", err)
	}

	mr.FastForward(10 * time.Minute)
	if _, err := cache.Get(ctx, "thread-slide"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss after full window, got %v", err)
	}
}

func TestRedisCache_CorruptPayloadIsMiss(t *testing.T) {
	mr, cache := setupMiniredis(t, time.Hour)
	ctx := context.Background()

	mr.Set("test:thread-bad", "{not json")

	_, err := cache.Get(ctx, "thread-bad")
	if !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss for corrupt payload, got %v", err)
	}

	// The corrupt entry is discarded so the next access starts clean.
	if mr.Exists("test:thread-bad") {
		t.Error("corrupt entry was not discarded")
	}
}

func TestRedisCache_Delete(t *testing.T) {
	_, cache := setupMiniredis(t, time.Hour)
	ctx := context.Background()

	if err := cache.Put(ctx, "thread-del", sampleSession("thread-del")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := cache.Delete(ctx, "thread-del"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := cache.Get(ctx, "thread-del"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss after delete, got %v", err)
	}

	// Deleting a missing key is not an error.
	if err := cache.Delete(ctx, "thread-del"); err != nil {
		t.Errorf("Delete of missing key failed: %v", err)
	}
}

func TestRedisCache_Ping(t *testing.T) {
	_, cache := setupMiniredis(t, time.Hour)

	if err := cache.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestRedisCache_CloseIdempotent(t *testing.T) {
	_, cache := setupMiniredis(t, time.Hour)

	if err := cache.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	if err := cache.Ping(context.Background()); !errors.Is(err, ErrCacheClosed) {
		t.Errorf("expected ErrCacheClosed after close, got %v", err)
	}
}
