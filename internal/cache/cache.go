// Package cache holds the persistent incremental-parsing caches and the
// in-memory bounded AST cache. The persistent side is a single bbolt file
// under the project-local cache directory; deleting that directory is always
// safe and simply forces a full re-parse on the next run.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/xxh3"
	bolt "go.etcd.io/bbolt"
)

// Bucket keys
var (
	bucketFileHashes = []byte("file_hashes")
	bucketParseIndex = []byte("parse_index")
	bucketParseBlobs = []byte("parse_blobs")
)

// Store is the bbolt database backing FileHashCache and ParseResultCache.
// One Store per indexing run; the file lives at <cacheDir>/cache.db.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the cache database under dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache dir: %w", err)
	}
	db, err := bolt.Open(filepath.Join(dir, "cache.db"), 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt open: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketFileHashes, bucketParseIndex, bucketParseBlobs} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("bbolt init: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

// hashFile computes the sha256 digest of a file's contents.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FileHashCache persists one content hash per file path and answers whether
// a file's bytes differ from the last indexed run.
type FileHashCache struct {
	store *Store
}

// NewFileHashCache returns a hash cache backed by the given store.
func NewFileHashCache(store *Store) *FileHashCache {
	return &FileHashCache{store: store}
}

// HasChanged reports whether path's content hash differs from the stored
// value. A file with no stored hash is treated as changed.
func (c *FileHashCache) HasChanged(path string) (bool, error) {
	current, err := hashFile(path)
	if err != nil {
		return true, fmt.Errorf("hash %s: %w", path, err)
	}
	var stored string
	err = c.store.db.View(func(tx *bolt.Tx) error {
		stored = string(tx.Bucket(bucketFileHashes).Get([]byte(path)))
		return nil
	})
	if err != nil {
		return true, err
	}
	return stored == "" || stored != current, nil
}

// UpdateHash recomputes and persists path's content hash.
func (c *FileHashCache) UpdateHash(path string) error {
	h, err := hashFile(path)
	if err != nil {
		return fmt.Errorf("hash %s: %w", path, err)
	}
	return c.store.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFileHashes).Put([]byte(path), []byte(h))
	})
}

// Forget removes the stored hash for path.
func (c *FileHashCache) Forget(path string) error {
	return c.store.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFileHashes).Delete([]byte(path))
	})
}

// parseIndexEntry maps a path to its content-addressed result blob.
type parseIndexEntry struct {
	BlobKey  string `json:"blob_key"`
	Language string `json:"language"`
	StoredAt int64  `json:"stored_at"`
}

// ParseResultCache persists extracted parse outputs keyed by path, with the
// payload stored once per distinct content under an xxh3 blob key. Two paths
// with identical extraction output share one blob.
type ParseResultCache struct {
	store *Store
}

// NewParseResultCache returns a result cache backed by the given store.
func NewParseResultCache(store *Store) *ParseResultCache {
	return &ParseResultCache{store: store}
}

func blobKey(result []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(result))
}

// Put stores the serialized parse result for path.
func (c *ParseResultCache) Put(path, language string, result []byte) error {
	key := blobKey(result)
	entry, err := json.Marshal(parseIndexEntry{
		BlobKey:  key,
		Language: language,
		StoredAt: time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	return c.store.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketParseBlobs).Put([]byte(key), result); err != nil {
			return err
		}
		return tx.Bucket(bucketParseIndex).Put([]byte(path), entry)
	})
}

// Get returns the cached result and language for path. ok is false when no
// entry exists. Callers must gate on FileHashCache first; a stale entry for
// a changed file is indistinguishable from a fresh one at this layer.
func (c *ParseResultCache) Get(path string) (result []byte, language string, ok bool, err error) {
	err = c.store.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketParseIndex).Get([]byte(path))
		if raw == nil {
			return nil
		}
		var entry parseIndexEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("decode index entry for %s: %w", path, err)
		}
		blob := tx.Bucket(bucketParseBlobs).Get([]byte(entry.BlobKey))
		if blob == nil {
			return nil
		}
		result = append([]byte(nil), blob...)
		language = entry.Language
		ok = true
		return nil
	})
	return result, language, ok, err
}

// Invalidate removes the cached entry for path. The blob stays; another path
// may still reference it, and orphaned blobs cost nothing but disk.
func (c *ParseResultCache) Invalidate(path string) error {
	return c.store.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketParseIndex).Delete([]byte(path))
	})
}

// Clear drops every cached parse result and blob.
func (c *ParseResultCache) Clear() error {
	return c.store.db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketParseIndex, bucketParseBlobs} {
			if err := tx.DeleteBucket(b); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(b); err != nil {
				return err
			}
		}
		return nil
	})
}

// IncrementalParsingCache composes the hash and result caches so the two
// stay consistent as a unit.
type IncrementalParsingCache struct {
	Hashes  *FileHashCache
	Results *ParseResultCache
}

// NewIncrementalParsingCache builds the composed cache over one store.
func NewIncrementalParsingCache(store *Store) *IncrementalParsingCache {
	return &IncrementalParsingCache{
		Hashes:  NewFileHashCache(store),
		Results: NewParseResultCache(store),
	}
}

// NeedsParsing reports whether path must be re-parsed: true when the file is
// new, its hash changed, or no cached result exists.
func (c *IncrementalParsingCache) NeedsParsing(path string) (bool, error) {
	changed, err := c.Hashes.HasChanged(path)
	if err != nil {
		return true, err
	}
	if changed {
		return true, nil
	}
	_, _, ok, err := c.Results.Get(path)
	if err != nil {
		return true, err
	}
	return !ok, nil
}

// CacheResult stores a fresh parse result and updates the file hash so the
// next NeedsParsing sees both sides agree.
func (c *IncrementalParsingCache) CacheResult(path, language string, result []byte) error {
	if err := c.Results.Put(path, language, result); err != nil {
		return err
	}
	return c.Hashes.UpdateHash(path)
}

// GetResult returns the cached result for path only when the file's bytes
// are unchanged since it was stored.
func (c *IncrementalParsingCache) GetResult(path string) (result []byte, language string, ok bool, err error) {
	changed, err := c.Hashes.HasChanged(path)
	if err != nil || changed {
		return nil, "", false, err
	}
	return c.Results.Get(path)
}

// Invalidate drops both the hash and the result for path.
func (c *IncrementalParsingCache) Invalidate(path string) error {
	if err := c.Hashes.Forget(path); err != nil {
		return err
	}
	return c.Results.Invalidate(path)
}

// ClearAll wipes every persisted hash and result.
func (c *IncrementalParsingCache) ClearAll() error {
	if err := c.Results.Clear(); err != nil {
		return err
	}
	return c.Hashes.store.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketFileHashes); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketFileHashes)
		return err
	})
}
