// Package discover walks a repository and returns the source files the
// indexer knows how to parse, honoring .gitignore and .atlasignore.
package discover

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/codeatlas-dev/codeatlas/internal/lang"
)

// ignoreDirs are directory names always skipped during discovery.
var ignoreDirs = map[string]bool{
	".cache": true, ".eggs": true, ".env": true, ".git": true,
	".gradle": true, ".hg": true, ".idea": true, ".mypy_cache": true,
	".nox": true, ".npm": true, ".pytest_cache": true, ".ruff_cache": true,
	".svn": true, ".tox": true, ".venv": true, ".vscode": true, ".yarn": true,
	"__pycache__": true, "bower_components": true, "build": true,
	"coverage": true, "dist": true, "env": true, "node_modules": true,
	"obj": true, "out": true, "site-packages": true, "target": true,
	"tmp": true, "vendor": true, "venv": true,
}

// ignoreSuffixes are file suffixes always skipped.
var ignoreSuffixes = []string{
	".tmp", "~", ".pyc", ".pyo", ".o", ".a", ".so", ".dll", ".class", ".min.js",
}

// FileInfo represents a discovered source file.
type FileInfo struct {
	Path     string        // absolute path
	RelPath  string        // relative to repo root, slash-separated
	Language lang.Language // detected language
}

// Options configures file discovery.
type Options struct {
	IgnoreFile string // explicit ignore-file path; default is <repo>/.atlasignore
}

// Discover walks a repository and returns all supported source files.
func Discover(ctx context.Context, repoPath string, opts *Options) ([]FileInfo, error) {
	repoPath, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matcher := loadIgnoreMatchers(repoPath, opts)

	var files []FileInfo
	err = filepath.Walk(repoPath, func(path string, info os.FileInfo, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			return filepath.SkipDir
		}

		rel, _ := filepath.Rel(repoPath, path)
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if rel != "." && (ignoreDirs[info.Name()] || matcher.MatchesPath(rel+"/")) {
				return filepath.SkipDir
			}
			return nil
		}

		for _, suffix := range ignoreSuffixes {
			if strings.HasSuffix(path, suffix) {
				return nil
			}
		}
		if matcher.MatchesPath(rel) {
			return nil
		}

		ext := filepath.Ext(path)
		l, ok := lang.LanguageForExtension(ext)
		if !ok {
			return nil
		}
		files = append(files, FileInfo{Path: path, RelPath: rel, Language: l})
		return nil
	})
	return files, err
}

// matcherChain combines gitignore matchers; a path is ignored if any matches.
type matcherChain []*gitignore.GitIgnore

func (c matcherChain) MatchesPath(p string) bool {
	for _, m := range c {
		if m != nil && m.MatchesPath(p) {
			return true
		}
	}
	return false
}

func loadIgnoreMatchers(repoPath string, opts *Options) matcherChain {
	var chain matcherChain
	if m, err := gitignore.CompileIgnoreFile(filepath.Join(repoPath, ".gitignore")); err == nil {
		chain = append(chain, m)
	}
	ignPath := filepath.Join(repoPath, ".atlasignore")
	if opts != nil && opts.IgnoreFile != "" {
		ignPath = opts.IgnoreFile
	}
	if m, err := gitignore.CompileIgnoreFile(ignPath); err == nil {
		chain = append(chain, m)
	}
	return chain
}
