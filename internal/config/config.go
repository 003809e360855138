// Package config loads indexer settings from a .codeatlas.yml at the
// repository root. Every field is optional; zero values fall back to
// defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/codeatlas-dev/codeatlas/internal/lang"
)

// FileName is the per-repository config file.
const FileName = ".codeatlas.yml"

// Config holds the indexer settings for one repository.
type Config struct {
	// Project overrides the name derived from the repository path.
	Project string `yaml:"project"`
	// DBPath overrides the default graph database location.
	DBPath string `yaml:"db_path"`
	// CacheDir holds the incremental parse cache. Empty falls back to
	// ~/.codeatlas/cache/<project>.
	CacheDir string `yaml:"cache_dir"`
	// Workers sets the parse parallelism. Zero means NumCPU.
	Workers int `yaml:"workers"`
	// UseProcesses parses in worker processes instead of goroutines.
	UseProcesses bool `yaml:"use_processes"`
	// BatchSize is the graph write batch size. Zero means the default.
	BatchSize int `yaml:"batch_size"`

	// Grammars configures tree-sitter grammar resolution.
	Grammars GrammarConfig `yaml:"grammars"`
	// ASTCache bounds the in-memory AST cache used for in-process parsing.
	ASTCache ASTCacheConfig `yaml:"ast_cache"`
}

// ASTCacheConfig limits the AST cache. Zero values keep the defaults.
type ASTCacheConfig struct {
	MaxEntries  int `yaml:"max_entries"`
	MaxMemoryMB int `yaml:"max_memory_mb"`
	TTLSeconds  int `yaml:"ttl_seconds"`
}

// GrammarConfig mirrors the loader options.
type GrammarConfig struct {
	Dir           string   `yaml:"dir"`
	VendorDir     string   `yaml:"vendor_dir"`
	AllowUnstable bool     `yaml:"allow_unstable"`
	Disabled      []string `yaml:"disabled"`
}

// DisabledLanguages converts the disabled list to language ids, dropping
// names that match no registered language.
func (g GrammarConfig) DisabledLanguages() []lang.Language {
	var out []lang.Language
	for _, name := range g.Disabled {
		l := lang.Language(name)
		if lang.ForLanguage(l) != nil {
			out = append(out, l)
		}
	}
	return out
}

// Load reads the config file from repoPath. A missing file yields the
// zero Config; a malformed one is an error.
func Load(repoPath string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(repoPath, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", FileName, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", FileName, err)
	}
	return &cfg, nil
}
