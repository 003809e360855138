package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/codeatlas-dev/codeatlas/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func forcePoll(w *Watcher) {
	for _, state := range w.projects {
		state.nextPoll = time.Time{}
	}
	w.pollAll()
}

func TestSnapshotsEqual(t *testing.T) {
	now := time.Now()
	a := map[string]fileSnapshot{
		"main.go": {modTime: now, size: 100},
		"util.go": {modTime: now, size: 200},
	}

	same := map[string]fileSnapshot{
		"main.go": {modTime: now, size: 100},
		"util.go": {modTime: now, size: 200},
	}
	if !snapshotsEqual(a, same) {
		t.Error("identical snapshots should be equal")
	}

	sized := map[string]fileSnapshot{
		"main.go": {modTime: now, size: 101},
		"util.go": {modTime: now, size: 200},
	}
	if snapshotsEqual(a, sized) {
		t.Error("different size should not be equal")
	}

	touched := map[string]fileSnapshot{
		"main.go": {modTime: now.Add(time.Second), size: 100},
		"util.go": {modTime: now, size: 200},
	}
	if snapshotsEqual(a, touched) {
		t.Error("different mtime should not be equal")
	}

	if snapshotsEqual(a, map[string]fileSnapshot{"main.go": {modTime: now, size: 100}}) {
		t.Error("missing file should not be equal")
	}
	if !snapshotsEqual(map[string]fileSnapshot{}, map[string]fileSnapshot{}) {
		t.Error("both empty should be equal")
	}
}

func TestPollInterval(t *testing.T) {
	tests := []struct {
		files    int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{499, 1 * time.Second},
		{500, 2 * time.Second},
		{2000, 5 * time.Second},
		{10000, 21 * time.Second},
		{100000, 60 * time.Second},
	}
	for _, tt := range tests {
		if got := pollInterval(tt.files); got != tt.expected {
			t.Errorf("pollInterval(%d) = %v, want %v", tt.files, got, tt.expected)
		}
	}
}

func TestCaptureSnapshot(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "main.go"), []byte("package main\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	snap, err := captureSnapshot(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	s, ok := snap["main.go"]
	if !ok {
		t.Fatalf("expected main.go in snapshot, got %v", snap)
	}
	if s.size == 0 || s.modTime.IsZero() {
		t.Errorf("snapshot entry = %+v", s)
	}
}

func TestWatcherTriggersOnChange(t *testing.T) {
	s := newTestStore(t)
	tmpDir := t.TempDir()
	goFile := filepath.Join(tmpDir, "main.go")
	if err := os.WriteFile(goFile, []byte("package main\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertProject(filepath.Base(tmpDir), tmpDir); err != nil {
		t.Fatal(err)
	}

	var indexCount atomic.Int32
	w := New(s, func(_ context.Context, _, _ string) error {
		indexCount.Add(1)
		return nil
	})
	w.ctx = context.Background()

	// First poll captures a baseline without indexing.
	w.pollAll()
	if indexCount.Load() != 0 {
		t.Errorf("baseline poll triggered index %d times", indexCount.Load())
	}

	forcePoll(w)
	if indexCount.Load() != 0 {
		t.Errorf("unchanged poll triggered index %d times", indexCount.Load())
	}

	now := time.Now().Add(time.Second)
	if err := os.Chtimes(goFile, now, now); err != nil {
		t.Fatal(err)
	}
	forcePoll(w)
	if indexCount.Load() != 1 {
		t.Errorf("changed file triggered index %d times, want 1", indexCount.Load())
	}
}

func TestWatcherNewFileTriggersIndex(t *testing.T) {
	s := newTestStore(t)
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "main.go"), []byte("package main\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertProject(filepath.Base(tmpDir), tmpDir); err != nil {
		t.Fatal(err)
	}

	var indexCount atomic.Int32
	w := New(s, func(_ context.Context, _, _ string) error {
		indexCount.Add(1)
		return nil
	})
	w.ctx = context.Background()
	w.pollAll()

	if err := os.WriteFile(filepath.Join(tmpDir, "util.go"), []byte("package main\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	forcePoll(w)
	if indexCount.Load() != 1 {
		t.Errorf("new file triggered index %d times, want 1", indexCount.Load())
	}
}

func TestWatcherSkipsMissingRoot(t *testing.T) {
	s := newTestStore(t)
	if err := s.UpsertProject("ghost", "/nonexistent/path"); err != nil {
		t.Fatal(err)
	}

	var indexCount atomic.Int32
	w := New(s, func(_ context.Context, _, _ string) error {
		indexCount.Add(1)
		return nil
	})
	w.pollAll()
	if indexCount.Load() != 0 {
		t.Errorf("missing root triggered index %d times", indexCount.Load())
	}
}

func TestQuietProjectBacksOff(t *testing.T) {
	s := newTestStore(t)
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "main.go"), []byte("package main\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertProject(filepath.Base(tmpDir), tmpDir); err != nil {
		t.Fatal(err)
	}

	w := New(s, func(_ context.Context, _, _ string) error { return nil })
	w.pollAll() // baseline, interval = 1s

	forcePoll(w)
	forcePoll(w)

	for _, state := range w.projects {
		if state.interval != 4*time.Second {
			t.Errorf("interval after two quiet polls = %v, want 4s", state.interval)
		}
	}
}

func TestWatcherCancellation(t *testing.T) {
	s := newTestStore(t)
	w := New(s, func(_ context.Context, _, _ string) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not stop after context cancellation")
	}
}
