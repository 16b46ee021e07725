// Package cache stores extracted flyer tables so an unchanged image is never
// sent to the vision model twice.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrCacheMiss indicates a cache miss.
var ErrCacheMiss = errors.New("cache miss")

// Client defines the cache interface.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	Close() error
}

// CacheKey generates a cache key from components.
func CacheKey(parts ...string) string {
	return strings.Join(parts, ":")
}

// ExtractionKey keys a table by model and image content.
func ExtractionKey(model string, image []byte) string {
	sum := sha256.Sum256(image)
	return CacheKey("extract", model, hex.EncodeToString(sum[:]))
}

// Options selects and configures a cache backend.
type Options struct {
	Driver     string // none, memory or redis
	MaxEntries int
	Redis      RedisConfig
}

// New returns the configured backend, or nil when caching is disabled.
func New(opts Options) (Client, error) {
	switch strings.ToLower(opts.Driver) {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryClient(opts.MaxEntries), nil
	case "redis":
		return NewRedisClient(opts.Redis)
	default:
		return nil, fmt.Errorf("unknown cache driver %q", opts.Driver)
	}
}
