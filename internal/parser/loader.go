package parser

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codeatlas-dev/codeatlas/internal/lang"
	"github.com/codeatlas-dev/codeatlas/internal/queries"
)

// Outcome is the per-language result of grammar resolution: either a usable
// tree-sitter Language or a reason it is unavailable.
type Outcome struct {
	Language    lang.Language
	TS          *tree_sitter.Language
	Unavailable string // empty when loaded
}

// Loaded reports whether the grammar resolved successfully.
func (o Outcome) Loaded() bool { return o.Unavailable == "" }

// LoaderConfig configures grammar resolution.
type LoaderConfig struct {
	// GrammarDir is where dynamically loaded .so files live and where native
	// builds are written. Empty means the default search paths.
	GrammarDir string
	// VendorDir holds vendored grammar source trees (<dir>/<language>/src/parser.c)
	// used for the one-time native build fallback.
	VendorDir string
	// AllowUnstable loads grammars on platforms where the spec marks them unstable.
	AllowUnstable bool
	// Disabled lists languages to skip entirely.
	Disabled []lang.Language
}

// Loader resolves grammars for the whole language matrix.
type Loader struct {
	cfg     LoaderConfig
	dynamic *DynamicLoader
}

// NewLoader creates a Loader.
func NewLoader(cfg LoaderConfig) *Loader {
	paths := DefaultGrammarPaths("")
	if cfg.GrammarDir != "" {
		paths = []string{cfg.GrammarDir}
	}
	return &Loader{cfg: cfg, dynamic: NewDynamicLoader(paths)}
}

// LoadAll resolves every configured language. Individual failures degrade to
// Unavailable outcomes; the error is non-nil only when zero languages loaded,
// at which point indexing is meaningless.
func (ld *Loader) LoadAll() (map[lang.Language]*tree_sitter.Language, []Outcome, error) {
	disabled := make(map[lang.Language]bool, len(ld.cfg.Disabled))
	for _, l := range ld.cfg.Disabled {
		disabled[l] = true
	}

	loaded := make(map[lang.Language]*tree_sitter.Language)
	var outcomes []Outcome
	for _, l := range lang.AllLanguages() {
		if disabled[l] {
			outcomes = append(outcomes, Outcome{Language: l, Unavailable: "disabled by configuration"})
			continue
		}
		o := ld.resolve(l)
		outcomes = append(outcomes, o)
		if o.Loaded() {
			loaded[l] = o.TS
			RegisterLanguage(l, o.TS)
		} else {
			slog.Warn("parser.grammar.skip", "language", l, "reason", o.Unavailable)
		}
	}
	if len(loaded) == 0 {
		return nil, outcomes, fmt.Errorf("no language grammars could be loaded")
	}
	slog.Info("parser.grammars.loaded", "loaded", len(loaded), "skipped", len(outcomes)-len(loaded))
	return loaded, outcomes, nil
}

// LoadParsers resolves the grammar matrix and builds a query engine over
// the languages that loaded, so callers get parsers and compiled queries
// from one place.
func LoadParsers(cfg LoaderConfig) (map[lang.Language]*tree_sitter.Language, *queries.Engine, []Outcome, error) {
	langs, outcomes, err := NewLoader(cfg).LoadAll()
	if err != nil {
		return nil, nil, outcomes, err
	}
	return langs, queries.NewEngine(langs), outcomes, nil
}

// resolve runs the two-stage resolution strategy for one language.
func (ld *Loader) resolve(l lang.Language) Outcome {
	if reason := ld.platformGuard(l); reason != "" {
		return Outcome{Language: l, Unavailable: reason}
	}

	if tsLang, ok := BuiltinLanguage(l); ok {
		return Outcome{Language: l, TS: tsLang}
	}

	// Fallback: dynamic shared library, building from vendored source once if
	// the .so is absent.
	name := string(l)
	tsLang, err := ld.dynamic.LoadGrammar(name)
	if err != nil && ld.cfg.VendorDir != "" {
		if buildErr := ld.buildVendored(name); buildErr != nil {
			return Outcome{Language: l, Unavailable: fmt.Sprintf("no prebuilt grammar; native build failed: %v", buildErr)}
		}
		tsLang, err = ld.dynamic.LoadGrammar(name)
	}
	if err != nil {
		return Outcome{Language: l, Unavailable: err.Error()}
	}
	return Outcome{Language: l, TS: tsLang}
}

// platformGuard returns a skip reason when the language's grammar is marked
// unstable for the current OS and the override is not set.
func (ld *Loader) platformGuard(l lang.Language) string {
	if ld.cfg.AllowUnstable {
		return ""
	}
	spec := lang.ForLanguage(l)
	if spec == nil {
		return ""
	}
	for _, goos := range spec.UnstableOn {
		if goos == runtime.GOOS {
			return fmt.Sprintf("grammar unstable on %s (set allow_unstable to override)", goos)
		}
	}
	return ""
}

// buildVendored compiles a vendored grammar source tree into a shared library
// in the grammar dir. One-time: skipped when the output already exists.
func (ld *Loader) buildVendored(name string) error {
	srcDir := filepath.Join(ld.cfg.VendorDir, name, "src")
	parserC := filepath.Join(srcDir, "parser.c")
	if _, err := os.Stat(parserC); err != nil {
		return fmt.Errorf("vendored source not found: %w", err)
	}

	outDir := ld.cfg.GrammarDir
	if outDir == "" {
		paths := ld.dynamic.SearchPaths()
		if len(paths) == 0 {
			return fmt.Errorf("no grammar dir configured")
		}
		outDir = paths[0]
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("mkdir grammar dir: %w", err)
	}
	soPath := filepath.Join(outDir, name+LibExtension())
	if _, err := os.Stat(soPath); err == nil {
		return nil
	}

	args := []string{"-shared", "-fPIC", "-I" + srcDir, "-o", soPath, parserC}
	if scannerC := filepath.Join(srcDir, "scanner.c"); fileExists(scannerC) {
		args = append(args, scannerC)
	}
	slog.Info("parser.grammar.build", "language", name, "out", soPath)
	cmd := exec.Command("cc", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("cc: %w: %s", err, out)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
