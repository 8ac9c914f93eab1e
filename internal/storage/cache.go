package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Meta describes a cached value without decoding it.
type Meta struct {
	StoredAt  time.Time         `json:"stored_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// Fresh reports whether the entry has not yet expired at now.
func (m Meta) Fresh(now time.Time) bool {
	return now.Before(m.ExpiresAt)
}

// Age returns how long ago the entry was stored.
func (m Meta) Age(now time.Time) time.Duration {
	return now.Sub(m.StoredAt)
}

// Tag returns the tag value for name, or "".
func (m Meta) Tag(name string) string {
	return m.Tags[name]
}

type entry struct {
	Meta
	Value json.RawMessage `json:"value"`
}

// Cache is an expiring key-value store persisted as a single JSON file.
// Expired entries stay readable so callers can fall back to stale data.
type Cache struct {
	mu      sync.RWMutex
	path    string
	entries map[string]entry
	now     func() time.Time
}

// NewCache creates a cache backed by path and loads existing entries if present.
// An empty path keeps the cache in memory only.
func NewCache(path string) (*Cache, error) {
	c := &Cache{
		path:    path,
		entries: make(map[string]entry),
		now:     time.Now,
	}
	if path == "" {
		return c, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure data directory: %w", err)
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

// SetClock overrides the time source, mainly for tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Get decodes the value stored under key into dst. Entries that fail to
// decode are dropped and reported as missing.
func (c *Cache) Get(key string, dst any) (Meta, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return Meta{}, false
	}
	if err := json.Unmarshal(e.Value, dst); err != nil {
		_ = c.Delete(key)
		return Meta{}, false
	}
	return e.Meta, true
}

// Set stores value under key for ttl, measured from the cache clock, and
// persists the cache.
func (c *Cache) Set(key string, value any, ttl time.Duration, tags map[string]string) error {
	c.mu.RLock()
	now := c.now()
	c.mu.RUnlock()
	return c.SetAt(key, value, now, ttl, tags)
}

// SetAt is Set with an explicit store time. Callers that later check
// Meta.Fresh against their own clock must stamp entries with that clock.
func (c *Cache) SetAt(key string, value any, now time.Time, ttl time.Duration, tags map[string]string) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value %s: %w", key, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{
		Meta: Meta{
			StoredAt:  now,
			ExpiresAt: now.Add(ttl),
			Tags:      copyTags(tags),
		},
		Value: raw,
	}
	return c.persistLocked()
}

// Delete removes key from the cache.
func (c *Cache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return nil
	}
	delete(c.entries, key)
	return c.persistLocked()
}

// Purge drops entries that expired more than grace ago and returns how many were removed.
func (c *Cache) Purge(grace time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-grace)
	removed := 0
	for key, e := range c.entries {
		if e.ExpiresAt.Before(cutoff) {
			delete(c.entries, key)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, c.persistLocked()
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read cache: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	entries := make(map[string]entry)
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse cache: %w", err)
	}
	c.entries = entries
	return nil
}

func (c *Cache) persistLocked() error {
	if c.path == "" {
		return nil
	}
	bytes, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", c.path, time.Now().UnixNano())
	if err := os.WriteFile(tmpPath, bytes, 0o644); err != nil {
		return fmt.Errorf("write temp cache: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}

func copyTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}
