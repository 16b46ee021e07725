package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Bens368/IGIA/internal/domain"
)

// TableCache stores item/price columns keyed by ExtractionKey.
type TableCache struct {
	client Client
	ttl    time.Duration
}

type cachedTable struct {
	Items  []string  `json:"item"`
	Prices []string  `json:"price"`
	At     time.Time `json:"cached_at"`
}

// NewTableCache wraps client. A nil client yields a cache that always misses.
func NewTableCache(client Client, ttl time.Duration) *TableCache {
	return &TableCache{client: client, ttl: ttl}
}

// Enabled reports whether a backend is configured.
func (c *TableCache) Enabled() bool {
	return c != nil && c.client != nil
}

// Get returns the cached columns for key, or ErrCacheMiss.
func (c *TableCache) Get(ctx context.Context, key string) (domain.ItemTable, error) {
	if !c.Enabled() {
		return domain.ItemTable{}, ErrCacheMiss
	}

	raw, err := c.client.Get(ctx, key)
	if err != nil {
		return domain.ItemTable{}, err
	}

	var ct cachedTable
	if err := json.Unmarshal(raw, &ct); err != nil {
		_ = c.client.Delete(ctx, key)
		return domain.ItemTable{}, ErrCacheMiss
	}

	table := domain.ItemTable{Items: ct.Items, Prices: ct.Prices}
	if !table.Valid() {
		_ = c.client.Delete(ctx, key)
		return domain.ItemTable{}, ErrCacheMiss
	}
	return table, nil
}

// Set stores a valid table's columns under key.
func (c *TableCache) Set(ctx context.Context, key string, table domain.ItemTable) error {
	if !c.Enabled() {
		return nil
	}
	if !table.Valid() {
		return errors.New("refusing to cache a table with mismatched columns")
	}

	raw, err := json.Marshal(cachedTable{Items: table.Items, Prices: table.Prices, At: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal table: %w", err)
	}
	return c.client.Set(ctx, key, raw, c.ttl)
}

// Purge drops every cached extraction.
func (c *TableCache) Purge(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.client.DeleteByPrefix(ctx, "extract:")
}
