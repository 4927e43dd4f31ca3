// Package redis stores the checkpoint record under a single Redis key.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/paginated-scraper/internal/checkpoint"
)

// DefaultKey is used when Config.Key is empty.
const DefaultKey = "scraper:checkpoint"

// Config controls the Redis connection.
type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// client is the subset of *goredis.Client used by the backend.
type client interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
	Close() error
}

// Backend keeps the record in one key. SET replaces the value atomically.
type Backend struct {
	client client
	key    string
	addr   string
}

// New dials Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return NewWithClient(rdb, cfg.Addr, cfg.Key)
}

// NewWithClient constructs a backend from an existing client (primarily for testing).
func NewWithClient(c client, addr, key string) (*Backend, error) {
	if c == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if key == "" {
		key = DefaultKey
	}
	return &Backend{client: c, key: key, addr: addr}, nil
}

// Read fetches the record.
func (b *Backend) Read(ctx context.Context) ([]byte, error) {
	data, err := b.client.Get(ctx, b.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, checkpoint.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", b.key, err)
	}
	return data, nil
}

// Write replaces the record without expiry.
func (b *Backend) Write(ctx context.Context, data []byte) error {
	if err := b.client.Set(ctx, b.key, data, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", b.key, err)
	}
	return nil
}

// Delete removes the key.
func (b *Backend) Delete(ctx context.Context) error {
	if err := b.client.Del(ctx, b.key).Err(); err != nil {
		return fmt.Errorf("del %s: %w", b.key, err)
	}
	return nil
}

// Close closes the client.
func (b *Backend) Close() error {
	return b.client.Close()
}

// Location returns a redis:// URI.
func (b *Backend) Location() string {
	return fmt.Sprintf("redis://%s/%s", b.addr, b.key)
}
