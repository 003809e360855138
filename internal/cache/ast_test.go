package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/codeatlas-dev/codeatlas/internal/lang"
	"github.com/codeatlas-dev/codeatlas/internal/parser"
)

func TestBoundedASTCacheLRUEviction(t *testing.T) {
	c := NewBoundedASTCache(ASTCacheConfig{MaxEntries: 3})

	for i := 0; i < 3; i++ {
		c.Put(fmt.Sprintf("f%d.go", i), nil, lang.Go, 10)
	}
	// Touch f0 so f1 becomes the LRU entry.
	if _, _, ok := c.Get("f0.go"); !ok {
		t.Fatalf("expected f0.go present")
	}

	c.Put("f3.go", nil, lang.Go, 10)

	if _, _, ok := c.Get("f1.go"); ok {
		t.Errorf("f1.go should have been evicted as LRU")
	}
	if _, _, ok := c.Get("f0.go"); !ok {
		t.Errorf("f0.go should have survived eviction")
	}
	s := c.Stats()
	if s.Entries != 3 {
		t.Errorf("entries = %d, want 3", s.Entries)
	}
	if s.Evictions != 1 {
		t.Errorf("evictions = %d, want 1", s.Evictions)
	}
}

func TestBoundedASTCacheNeverExceedsMaxEntries(t *testing.T) {
	c := NewBoundedASTCache(ASTCacheConfig{MaxEntries: 5})
	for i := 0; i < 50; i++ {
		c.Put(fmt.Sprintf("f%d.py", i), nil, lang.Python, 1)
		if got := c.Stats().Entries; got > 5 {
			t.Fatalf("after insert %d: entries = %d, exceeds max 5", i, got)
		}
	}
}

func TestBoundedASTCacheMemoryCeiling(t *testing.T) {
	c := NewBoundedASTCache(ASTCacheConfig{MaxMemoryBytes: 100})

	c.Put("a.rs", nil, lang.Rust, 60)
	c.Put("b.rs", nil, lang.Rust, 60)

	if s := c.Stats(); s.MemoryBytes > 100 {
		t.Errorf("memory = %d, exceeds ceiling 100", s.MemoryBytes)
	}
	if _, _, ok := c.Get("a.rs"); ok {
		t.Errorf("a.rs should have been evicted to satisfy the memory ceiling")
	}
	if _, _, ok := c.Get("b.rs"); !ok {
		t.Errorf("b.rs should still be cached")
	}
}

func TestBoundedASTCacheTTLExpiry(t *testing.T) {
	c := NewBoundedASTCache(ASTCacheConfig{MaxEntries: 10, TTL: time.Minute})
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put("old.java", nil, lang.Java, 10)

	now = now.Add(2 * time.Minute)
	if _, _, ok := c.Get("old.java"); ok {
		t.Fatalf("entry older than TTL must be unreachable via Get")
	}
	s := c.Stats()
	if s.Expirations != 1 {
		t.Errorf("expirations = %d, want 1", s.Expirations)
	}
	if s.Entries != 0 {
		t.Errorf("entries = %d, want 0 after expiry removal", s.Entries)
	}
}

func TestBoundedASTCacheReplaceDoesNotLeakSize(t *testing.T) {
	c := NewBoundedASTCache(ASTCacheConfig{MaxEntries: 10})
	c.Put("x.c", nil, lang.C, 100)
	c.Put("x.c", nil, lang.C, 40)
	if s := c.Stats(); s.MemoryBytes != 40 {
		t.Errorf("memory = %d after replace, want 40", s.MemoryBytes)
	}
}

func TestBoundedASTCacheCopySurvivesEviction(t *testing.T) {
	c := NewBoundedASTCache(ASTCacheConfig{MaxEntries: 1})
	tree, err := parser.Parse(lang.Python, []byte("def a():\n    pass\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	c.Put("a.py", tree, lang.Python, 10)

	held, l, ok := c.Get("a.py")
	if !ok || l != lang.Python {
		t.Fatalf("Get = (%v, %v)", l, ok)
	}
	defer held.Close()

	// Evicts a.py and closes the cached original; the copy stays valid.
	c.Put("b.py", nil, lang.Python, 10)

	if held.RootNode().Kind() != "module" {
		t.Errorf("held tree root = %s", held.RootNode().Kind())
	}
}

func TestBoundedASTCacheStatsCounters(t *testing.T) {
	c := NewBoundedASTCache(ASTCacheConfig{MaxEntries: 2})
	c.Put("a.go", nil, lang.Go, 1)

	c.Get("a.go")
	c.Get("missing.go")

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 1/1", s.Hits, s.Misses)
	}
}
