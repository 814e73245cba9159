// Package cache stores JSON encoded values on disk with a time to live.
//
// Each entry is a file named after the SHA-256 of its key. Entries expire
// based on their modification time; a TTL of 0 disables expiry.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// ErrExpired is returned by Get when an entry exists but is older than the
// TTL.
var ErrExpired = errors.New("cache entry expired")

// Cache is safe for use by multiple goroutines as long as they do not write
// the same key concurrently.
type Cache struct {
	dir    string
	ttl    time.Duration
	prefix string
}

// New creates a cache in dir. An empty dir uses ~/.cache/reqsniffer.
func New(dir string, ttl time.Duration) (*Cache, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(home, ".cache", "reqsniffer")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir, ttl: ttl}, nil
}

func (c *Cache) Dir() string        { return c.dir }
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get loads the entry for key into v. It returns (false, nil) on a miss and
// (false, ErrExpired) for a stale entry. A nil Cache always misses.
func (c *Cache) Get(key string, v any) (bool, error) {
	if c == nil {
		return false, nil
	}

	path := c.keyPath(key)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if c.ttl > 0 && time.Since(info.ModTime()) > c.ttl {
		return false, ErrExpired
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores v under key, replacing any existing entry.
func (c *Cache) Set(key string, v any) error {
	if c == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	// write and rename so readers never see a partial entry
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), c.keyPath(key))
}

// Namespace returns a view of the cache that prefixes every key.
func (c *Cache) Namespace(prefix string) *Cache {
	if c == nil {
		return nil
	}
	return &Cache{dir: c.dir, ttl: c.ttl, prefix: c.prefix + prefix}
}

func (c *Cache) keyPath(key string) string {
	h := sha256.Sum256([]byte(c.prefix + key))
	return filepath.Join(c.dir, hex.EncodeToString(h[:]))
}
