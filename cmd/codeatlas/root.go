package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codeatlas-dev/codeatlas/internal/config"
	"github.com/codeatlas-dev/codeatlas/internal/cypher"
	"github.com/codeatlas-dev/codeatlas/internal/graph"
	"github.com/codeatlas-dev/codeatlas/internal/lang"
	"github.com/codeatlas-dev/codeatlas/internal/parser"
	"github.com/codeatlas-dev/codeatlas/internal/pipeline"
	"github.com/codeatlas-dev/codeatlas/internal/queries"
	"github.com/codeatlas-dev/codeatlas/internal/store"
)

// timeUnit rounds durations in user-facing output.
const timeUnit = time.Millisecond

var (
	dbPathFlag  string
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "codeatlas",
	Short: "codeatlas indexes source repositories into a code graph",
	Long: `codeatlas parses polyglot repositories with tree-sitter and maintains a
graph of files, modules, classes, functions and the relationships between
them, queryable with a Cypher subset.`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verboseFlag {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPathFlag, "db", "", "graph database path (default ~/.codeatlas/graph.db)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "debug logging")
}

// openStore honors the --db flag, falling back to the per-repo config and
// then the default location.
func openStore(cfg *config.Config) (*store.Store, error) {
	path := dbPathFlag
	if path == "" && cfg != nil {
		path = cfg.DBPath
	}
	if path == "" {
		return store.Open()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return store.OpenPath(path)
}

func newIngestor(s *store.Store, project string, batchSize int) *graph.Ingestor {
	driver := cypher.NewEmbeddedDriver(cypher.NewExecutor(s), nil)
	if batchSize <= 0 {
		batchSize = graph.DefaultBatchSize
	}
	return graph.NewIngestor(driver, project, batchSize)
}

func repoFromArgs(args []string) (string, error) {
	repo := "."
	if len(args) > 0 {
		repo = args[0]
	}
	abs, err := filepath.Abs(repo)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", repo, err)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}
	return abs, nil
}

func projectName(cfg *config.Config, repo string) string {
	if cfg != nil && cfg.Project != "" {
		return cfg.Project
	}
	return pipeline.ProjectNameFromPath(repo)
}

// parserLoad resolves the grammar matrix and query engine for a
// repository's config.
func parserLoad(cfg *config.Config) (map[lang.Language]*tree_sitter.Language, *queries.Engine, []parser.Outcome, error) {
	return parser.LoadParsers(loaderConfig(cfg.Grammars))
}

// loaderConfig maps repo config onto loader options.
func loaderConfig(g config.GrammarConfig) parser.LoaderConfig {
	return parser.LoaderConfig{
		GrammarDir:    g.Dir,
		VendorDir:     g.VendorDir,
		AllowUnstable: g.AllowUnstable,
		Disabled:      g.DisabledLanguages(),
	}
}
