package cache

import (
	"container/list"
	"sync"
	"time"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codeatlas-dev/codeatlas/internal/lang"
)

// ASTCacheConfig bounds the in-memory AST cache. Zero values disable the
// corresponding limit.
type ASTCacheConfig struct {
	MaxEntries     int
	MaxMemoryBytes int64
	TTL            time.Duration
}

// ASTStats are cumulative counters for one cache instance.
type ASTStats struct {
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Expirations uint64
	Entries     int
	MemoryBytes int64
}

type astEntry struct {
	path       string
	tree       *tree_sitter.Tree
	language   lang.Language
	sizeBytes  int64
	insertedAt time.Time
}

// BoundedASTCache keeps parsed trees in memory with LRU ordering and three
// eviction triggers applied in order after every insert: entry count, then
// estimated memory, then TTL. Expired entries are unreachable through Get
// even before the next sweep removes them.
type BoundedASTCache struct {
	mu      sync.Mutex
	cfg     ASTCacheConfig
	order   *list.List // front = most recently used
	entries map[string]*list.Element
	bytes   int64
	stats   ASTStats
	now     func() time.Time
}

// NewBoundedASTCache builds an empty cache with the given bounds.
func NewBoundedASTCache(cfg ASTCacheConfig) *BoundedASTCache {
	return &BoundedASTCache{
		cfg:     cfg,
		order:   list.New(),
		entries: make(map[string]*list.Element),
		now:     time.Now,
	}
}

// Put inserts or replaces the tree for path. sizeBytes is the caller's size
// estimate, normally the source length; the tree itself lives in C memory
// the runtime cannot measure. The cache takes ownership of the tree and
// closes it on eviction.
func (c *BoundedASTCache) Put(path string, tree *tree_sitter.Tree, language lang.Language, sizeBytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[path]; ok {
		c.removeLocked(el, false)
	}
	el := c.order.PushFront(&astEntry{
		path:       path,
		tree:       tree,
		language:   language,
		sizeBytes:  sizeBytes,
		insertedAt: c.now(),
	})
	c.entries[path] = el
	c.bytes += sizeBytes

	c.enforceLocked()
}

// Get returns a private copy of the cached tree for path, promoting the
// entry to most recently used. The caller owns the copy and must close it;
// the cached original can then be evicted at any time without invalidating
// trees already handed out. A TTL-expired entry is removed and reported as
// a miss.
func (c *BoundedASTCache) Get(path string) (*tree_sitter.Tree, lang.Language, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[path]
	if !ok {
		c.stats.Misses++
		return nil, "", false
	}
	entry := el.Value.(*astEntry)
	if c.expiredLocked(entry) {
		c.removeLocked(el, true)
		c.stats.Expirations++
		c.stats.Misses++
		return nil, "", false
	}
	c.order.MoveToFront(el)
	c.stats.Hits++
	tree := entry.tree
	if tree != nil {
		tree = tree.Clone()
	}
	return tree, entry.language, true
}

// Delete removes path from the cache if present.
func (c *BoundedASTCache) Delete(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[path]; ok {
		c.removeLocked(el, true)
	}
}

// Purge empties the cache, closing every held tree.
func (c *BoundedASTCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.order.Len() > 0 {
		c.removeLocked(c.order.Back(), true)
	}
}

// Stats returns a snapshot of the counters.
func (c *BoundedASTCache) Stats() ASTStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = c.order.Len()
	s.MemoryBytes = c.bytes
	return s
}

func (c *BoundedASTCache) expiredLocked(e *astEntry) bool {
	return c.cfg.TTL > 0 && c.now().Sub(e.insertedAt) > c.cfg.TTL
}

// enforceLocked applies the three eviction triggers in order. LRU entries
// go first for the count and memory ceilings; the TTL sweep removes expired
// entries wherever they sit.
func (c *BoundedASTCache) enforceLocked() {
	for c.cfg.MaxEntries > 0 && c.order.Len() > c.cfg.MaxEntries {
		c.removeLocked(c.order.Back(), true)
		c.stats.Evictions++
	}
	for c.cfg.MaxMemoryBytes > 0 && c.bytes > c.cfg.MaxMemoryBytes && c.order.Len() > 0 {
		c.removeLocked(c.order.Back(), true)
		c.stats.Evictions++
	}
	if c.cfg.TTL > 0 {
		var expired []*list.Element
		for el := c.order.Back(); el != nil; el = el.Prev() {
			if c.expiredLocked(el.Value.(*astEntry)) {
				expired = append(expired, el)
			}
		}
		for _, el := range expired {
			c.removeLocked(el, true)
			c.stats.Expirations++
		}
	}
}

func (c *BoundedASTCache) removeLocked(el *list.Element, closeTree bool) {
	entry := el.Value.(*astEntry)
	c.order.Remove(el)
	delete(c.entries, entry.path)
	c.bytes -= entry.sizeBytes
	if closeTree && entry.tree != nil {
		entry.tree.Close()
	}
}
