package source

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Cache stores fetched source payloads keyed by source identity. Two
// implementations exist: an ephemeral in-process map and a persistent disk
// cache. Which one a resolver gets is a configuration decision made by the
// caller, never a runtime type check.
type Cache interface {
	// Get returns a fresh entry, or false when absent or expired.
	Get(key string) ([]byte, bool)

	// GetStale returns an entry regardless of age. Offline resolution
	// prefers stale content over failure.
	GetStale(key string) ([]byte, bool)

	Set(key string, data []byte) error
}

// CacheKey derives the cache key for a source identity (url@ref or path).
func CacheKey(identity string) string {
	sum := sha256.Sum256([]byte("airule/source-cache/v1\x00" + identity))
	return hex.EncodeToString(sum[:])
}

// MemoryCache is the ephemeral fallback used when no cache directory is
// configured (and in tests).
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

// NewMemoryCache returns an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]byte)}
}

func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	return data, ok
}

// GetStale is identical to Get: in-process entries never expire.
func (c *MemoryCache) GetStale(key string) ([]byte, bool) {
	return c.Get(key)
}

func (c *MemoryCache) Set(key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = append([]byte(nil), data...)
	return nil
}

// DiskCache persists entries under a directory with a freshness stamp.
// Entries older than MaxAge are treated as absent on Get, which forces a
// refetch; the stale bytes stay on disk so offline mode can still use them
// via GetStale.
type DiskCache struct {
	Dir    string
	MaxAge time.Duration
}

type diskEntry struct {
	StoredAt time.Time `json:"stored_at"`
	Payload  []byte    `json:"payload"`
}

// NewDiskCache creates a disk cache rooted at dir with the given TTL.
func NewDiskCache(dir string, maxAge time.Duration) *DiskCache {
	return &DiskCache{Dir: dir, MaxAge: maxAge}
}

func (c *DiskCache) Get(key string) ([]byte, bool) {
	entry, ok := c.read(key)
	if !ok {
		return nil, false
	}
	if c.MaxAge > 0 && time.Since(entry.StoredAt) > c.MaxAge {
		return nil, false
	}
	return entry.Payload, true
}

// GetStale returns the entry regardless of age. Offline resolution prefers
// stale content over failure.
func (c *DiskCache) GetStale(key string) ([]byte, bool) {
	entry, ok := c.read(key)
	if !ok {
		return nil, false
	}
	return entry.Payload, true
}

func (c *DiskCache) Set(key string, data []byte) error {
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return fmt.Errorf("creating cache directory %s: %w", c.Dir, err)
	}
	entry := diskEntry{StoredAt: time.Now().UTC(), Payload: data}
	raw, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}
	path := c.path(key)
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("writing cache entry %s: %w", path, err)
	}
	return nil
}

func (c *DiskCache) read(key string) (*diskEntry, bool) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil, false
	}
	var entry diskEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		// Corrupt entry: ignore it, a refetch will overwrite.
		return nil, false
	}
	return &entry, true
}

func (c *DiskCache) path(key string) string {
	return filepath.Join(c.Dir, key+".json")
}
