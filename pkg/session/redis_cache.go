package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements Cache using Redis. Expiry is delegated to
// Redis TTLs, so expired entries disappear without a janitor.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	mu     sync.RWMutex
	closed bool
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix is the key prefix for all session keys (default: "chatcore:session:").
	Prefix string
	// TTL is the session expiry window (default: DefaultTTL).
	TTL time.Duration
	// PoolSize is the connection pool size (default: 10).
	PoolSize int
	// MaxRetries bounds transient-error retries inside the client
	// (default: 3). Prevents indefinite blocking on a flaky connection.
	MaxRetries int
}

// NewRedisCache creates a Redis-backed session cache and verifies the
// connection with a bounded ping.
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "chatcore:session:"
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     poolSize,
		MaxRetries:   maxRetries,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

// NewRedisCacheFromClient creates a cache from an existing client.
// This is useful for testing with miniredis.
func NewRedisCacheFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "chatcore:session:"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (c *RedisCache) key(threadID string) string {
	return c.prefix + threadID
}

// TTL returns the configured expiry window.
func (c *RedisCache) TTL() time.Duration {
	return c.ttl
}

func (c *RedisCache) checkOpen() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrCacheClosed
	}
	return nil
}

// Put serializes and stores a session, resetting the expiry window.
func (c *RedisCache) Put(ctx context.Context, threadID string, sess *SerializedSession) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := c.client.Set(ctx, c.key(threadID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("put session: %w", err)
	}

	return nil
}

// Get retrieves a session by thread ID. A corrupt payload is discarded
// and reported as a miss, so the caller rebuilds from the durable store.
func (c *RedisCache) Get(ctx context.Context, threadID string) (*SerializedSession, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	data, err := c.client.Get(ctx, c.key(threadID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	var sess SerializedSession
	if err := json.Unmarshal(data, &sess); err != nil {
		// Corrupt entry: drop it so the next access starts clean.
		_ = c.client.Del(ctx, c.key(threadID)).Err()
		return nil, ErrCacheMiss
	}

	return &sess, nil
}

// Delete removes a session entry.
func (c *RedisCache) Delete(ctx context.Context, threadID string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	if err := c.client.Del(ctx, c.key(threadID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	return nil
}

// Ping checks if the Redis connection is alive.
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	return c.client.Ping(ctx).Err()
}

// Close releases resources held by the cache. Idempotent.
func (c *RedisCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	return c.client.Close()
}
