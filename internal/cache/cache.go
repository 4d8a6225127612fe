// Package cache stores per-file declaration records on disk, keyed by the
// file path and validated by a BLAKE3 hash of its contents.
package cache

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"

	"github.com/panbanda/locksmith/pkg/model"
)

// schemaVersion is mixed into every key; bump it when FileDecl changes shape.
const schemaVersion = "decl-v1"

// Cache provides file-based caching of extraction results.
type Cache struct {
	dir     string
	ttl     time.Duration
	enabled bool
}

// Entry is the on-disk record.
type Entry struct {
	Hash      string          `json:"hash"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// New creates a cache under dir. A disabled cache misses every lookup and
// drops every write. ttlHours <= 0 keeps entries until their hash changes.
func New(dir string, ttlHours int, enabled bool) (*Cache, error) {
	if !enabled {
		return &Cache{enabled: false}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{
		dir:     dir,
		ttl:     time.Duration(ttlHours) * time.Hour,
		enabled: true,
	}, nil
}

// Enabled reports whether lookups can hit.
func (c *Cache) Enabled() bool { return c != nil && c.enabled }

// HashBytes computes a BLAKE3 hash of bytes and returns it as a hex string.
func HashBytes(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// GetWithHash retrieves the data stored under key when it was written for
// the same content hash and has not expired.
func (c *Cache) GetWithHash(key, hash string) ([]byte, bool) {
	if !c.Enabled() {
		return nil, false
	}

	path := c.keyPath(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		os.Remove(path)
		return nil, false
	}
	if entry.Hash != hash {
		return nil, false
	}
	if c.ttl > 0 && time.Since(entry.Timestamp) > c.ttl {
		os.Remove(path)
		return nil, false
	}
	return entry.Data, true
}

// SetWithHash stores JSON data under key. The write goes through a
// temporary file so concurrent readers never see a partial entry.
func (c *Cache) SetWithHash(key, hash string, data json.RawMessage) error {
	if !c.Enabled() {
		return nil
	}

	entryData, err := json.Marshal(Entry{Hash: hash, Timestamp: time.Now(), Data: data})
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(c.dir, ".entry-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(entryData); err != nil {
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

// Invalidate removes a cache entry.
func (c *Cache) Invalidate(key string) error {
	if !c.Enabled() {
		return nil
	}
	err := os.Remove(c.keyPath(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// LoadDecl returns the cached declarations of the file at path whose
// current contents are src.
func (c *Cache) LoadDecl(path string, src []byte) (*model.FileDecl, bool) {
	data, ok := c.GetWithHash(declKey(path), HashBytes(src))
	if !ok {
		return nil, false
	}
	var decl model.FileDecl
	if err := json.Unmarshal(data, &decl); err != nil {
		c.Invalidate(declKey(path))
		return nil, false
	}
	return &decl, true
}

// StoreDecl caches the declarations extracted from src.
func (c *Cache) StoreDecl(path string, src []byte, decl *model.FileDecl) error {
	if !c.Enabled() {
		return nil
	}
	data, err := json.Marshal(decl)
	if err != nil {
		return err
	}
	return c.SetWithHash(declKey(path), HashBytes(src), data)
}

func declKey(path string) string {
	return schemaVersion + ":" + path
}

// keyPath converts a key to a filesystem path.
func (c *Cache) keyPath(key string) string {
	hash := blake3.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(hash[:])+".json")
}
