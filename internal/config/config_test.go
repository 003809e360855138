package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Project != "" || cfg.Workers != 0 || cfg.UseProcesses {
		t.Errorf("cfg = %+v, want zero values", cfg)
	}
}

func TestLoadParsesAllFields(t *testing.T) {
	dir := t.TempDir()
	content := `project: myapp
cache_dir: /tmp/atlas-cache
workers: 8
use_processes: true
batch_size: 250
grammars:
  dir: /opt/grammars
  allow_unstable: true
  disabled: [haskell, not-a-language]
ast_cache:
  max_entries: 64
  max_memory_mb: 128
  ttl_seconds: 300
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Project != "myapp" || cfg.Workers != 8 || !cfg.UseProcesses || cfg.BatchSize != 250 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Grammars.Dir != "/opt/grammars" || !cfg.Grammars.AllowUnstable {
		t.Errorf("grammars = %+v", cfg.Grammars)
	}
	if cfg.ASTCache.MaxEntries != 64 || cfg.ASTCache.MaxMemoryMB != 128 || cfg.ASTCache.TTLSeconds != 300 {
		t.Errorf("ast_cache = %+v", cfg.ASTCache)
	}

	disabled := cfg.Grammars.DisabledLanguages()
	if len(disabled) != 1 || string(disabled[0]) != "haskell" {
		t.Errorf("disabled = %v, want [haskell] with unknown names dropped", disabled)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("workers: [not an int\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("malformed yaml should fail")
	}
}
