package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// DynamicLoader loads tree-sitter grammars from shared libraries (.so on
// Linux, .dylib on macOS) using purego. It searches configured paths for
// grammar files and caches loaded languages for reuse.
type DynamicLoader struct {
	searchPaths []string
	mu          sync.Mutex
	loaded      map[string]*tree_sitter.Language
	handles     []uintptr
}

// NewDynamicLoader creates a loader that searches the given paths for grammar
// shared libraries. Paths are searched in order; first match wins.
func NewDynamicLoader(searchPaths []string) *DynamicLoader {
	return &DynamicLoader{
		searchPaths: searchPaths,
		loaded:      make(map[string]*tree_sitter.Language),
	}
}

// DefaultGrammarPaths returns the default search paths for grammar shared
// libraries. Project-local (.codeatlas/grammars/) is searched first, then
// global (~/.codeatlas/grammars/).
func DefaultGrammarPaths(projectRoot string) []string {
	var paths []string
	if projectRoot != "" {
		paths = append(paths, filepath.Join(projectRoot, ".codeatlas", "grammars"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".codeatlas", "grammars"))
	}
	return paths
}

// LibExtension returns the shared library extension for the current platform.
func LibExtension() string {
	if runtime.GOOS == "darwin" {
		return ".dylib"
	}
	return ".so"
}

// CSymbolName returns the C function name for a language's tree-sitter
// grammar, following the tree_sitter_{name} convention.
func CSymbolName(name string) string {
	return "tree_sitter_" + strings.ReplaceAll(name, "-", "_")
}

// LoadGrammar loads a grammar from a shared library for the given language
// name. Results are cached; subsequent calls return the cached value.
func (dl *DynamicLoader) LoadGrammar(name string) (*tree_sitter.Language, error) {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	if cached, ok := dl.loaded[name]; ok {
		return cached, nil
	}

	soPath := dl.grammarPathLocked(name)
	if soPath == "" {
		return nil, fmt.Errorf("grammar %q: shared library not found in search paths", name)
	}

	handle, err := purego.Dlopen(soPath, purego.RTLD_LAZY)
	if err != nil {
		return nil, fmt.Errorf("grammar %q: dlopen %s: %w", name, soPath, err)
	}
	dl.handles = append(dl.handles, handle)

	symName := CSymbolName(name)
	var langFunc func() uintptr
	purego.RegisterLibFunc(&langFunc, handle, symName)

	ptr := langFunc()
	if ptr == 0 {
		return nil, fmt.Errorf("grammar %q: %s() returned null", name, symName)
	}

	// Convert uintptr from C (purego) to unsafe.Pointer without triggering go
	// vet's unsafeptr check. Safe because ptr is a static TSLanguage* from the
	// grammar .so, not a Go-managed pointer that could be moved by GC.
	language := tree_sitter.NewLanguage(*(*unsafe.Pointer)(unsafe.Pointer(&ptr)))
	dl.loaded[name] = language
	return language, nil
}

// GrammarPath returns the path to the shared library for a language name, or
// "" if not found.
func (dl *DynamicLoader) GrammarPath(name string) string {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	return dl.grammarPathLocked(name)
}

func (dl *DynamicLoader) grammarPathLocked(name string) string {
	ext := LibExtension()
	for _, dir := range dl.searchPaths {
		candidate := filepath.Join(dir, name+ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// SearchPaths returns the configured search paths.
func (dl *DynamicLoader) SearchPaths() []string {
	return dl.searchPaths
}

// Close drops cached languages. dlopen handles stay mapped for the process
// lifetime because loaded TSLanguage pointers may still be referenced.
func (dl *DynamicLoader) Close() {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	dl.loaded = make(map[string]*tree_sitter.Language)
}
