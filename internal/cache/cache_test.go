package cache

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestFileHashCacheDetectsChange(t *testing.T) {
	store := newTestStore(t)
	hashes := NewFileHashCache(store)
	dir := t.TempDir()
	path := writeFile(t, dir, "main.py", "def foo():\n    pass\n")

	changed, err := hashes.HasChanged(path)
	if err != nil {
		t.Fatalf("HasChanged: %v", err)
	}
	if !changed {
		t.Errorf("file with no stored hash must report changed")
	}

	if err := hashes.UpdateHash(path); err != nil {
		t.Fatalf("UpdateHash: %v", err)
	}
	changed, err = hashes.HasChanged(path)
	if err != nil {
		t.Fatalf("HasChanged: %v", err)
	}
	if changed {
		t.Errorf("unchanged file must not report changed after UpdateHash")
	}

	// Single-byte modification flips the answer.
	writeFile(t, dir, "main.py", "def foo():\n    pasS\n")
	changed, err = hashes.HasChanged(path)
	if err != nil {
		t.Fatalf("HasChanged: %v", err)
	}
	if !changed {
		t.Errorf("modified file must report changed")
	}
}

func TestParseResultCacheRoundTrip(t *testing.T) {
	store := newTestStore(t)
	results := NewParseResultCache(store)

	payload := []byte(`{"entities":[{"name":"foo"}]}`)
	if err := results.Put("src/a.py", "python", payload); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, language, ok, err := results.Get("src/a.py")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected cached result")
	}
	if language != "python" {
		t.Errorf("language = %q, want python", language)
	}
	if string(got) != string(payload) {
		t.Errorf("result = %s, want %s", got, payload)
	}

	if err := results.Invalidate("src/a.py"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, _, ok, _ := results.Get("src/a.py"); ok {
		t.Errorf("invalidated entry still reachable")
	}
}

func TestParseResultCacheSharesIdenticalBlobs(t *testing.T) {
	store := newTestStore(t)
	results := NewParseResultCache(store)

	payload := []byte(`{"entities":[]}`)
	if err := results.Put("a.go", "go", payload); err != nil {
		t.Fatalf("Put a: %v", err)
	}
	if err := results.Put("b.go", "go", payload); err != nil {
		t.Fatalf("Put b: %v", err)
	}

	// Invalidating one path must not break the other's shared blob.
	if err := results.Invalidate("a.go"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	got, _, ok, err := results.Get("b.go")
	if err != nil || !ok {
		t.Fatalf("Get b after invalidating a: ok=%v err=%v", ok, err)
	}
	if string(got) != string(payload) {
		t.Errorf("shared blob corrupted: %s", got)
	}
}

func TestIncrementalParsingCacheLifecycle(t *testing.T) {
	store := newTestStore(t)
	inc := NewIncrementalParsingCache(store)
	dir := t.TempDir()
	path := writeFile(t, dir, "lib.rb", "def bar\nend\n")

	needs, err := inc.NeedsParsing(path)
	if err != nil {
		t.Fatalf("NeedsParsing: %v", err)
	}
	if !needs {
		t.Errorf("new file must need parsing")
	}

	if err := inc.CacheResult(path, "ruby", []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("CacheResult: %v", err)
	}
	needs, err = inc.NeedsParsing(path)
	if err != nil {
		t.Fatalf("NeedsParsing: %v", err)
	}
	if needs {
		t.Errorf("cached unchanged file must not need parsing")
	}

	result, language, ok, err := inc.GetResult(path)
	if err != nil || !ok {
		t.Fatalf("GetResult: ok=%v err=%v", ok, err)
	}
	if language != "ruby" || string(result) != `{"ok":true}` {
		t.Errorf("GetResult = %q %s", language, result)
	}

	// Modifying the file makes the cached result unreachable.
	writeFile(t, dir, "lib.rb", "def bar\n  1\nend\n")
	needs, err = inc.NeedsParsing(path)
	if err != nil {
		t.Fatalf("NeedsParsing: %v", err)
	}
	if !needs {
		t.Errorf("modified file must need parsing")
	}
	if _, _, ok, _ := inc.GetResult(path); ok {
		t.Errorf("GetResult must miss for a modified file")
	}

	if err := inc.ClearAll(); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	needs, _ = inc.NeedsParsing(path)
	if !needs {
		t.Errorf("ClearAll must force re-parse")
	}
}

func TestCacheSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	srcDir := t.TempDir()
	path := writeFile(t, srcDir, "a.ts", "export const x = 1\n")

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	inc := NewIncrementalParsingCache(s1)
	if err := inc.CacheResult(path, "typescript", []byte(`{}`)); err != nil {
		t.Fatalf("CacheResult: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	needs, err := NewIncrementalParsingCache(s2).NeedsParsing(path)
	if err != nil {
		t.Fatalf("NeedsParsing: %v", err)
	}
	if needs {
		t.Errorf("persisted cache must survive reopen")
	}
}
