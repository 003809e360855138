package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/codeatlas-dev/codeatlas/internal/cache"
	"github.com/codeatlas-dev/codeatlas/internal/config"
	"github.com/codeatlas-dev/codeatlas/internal/pipeline"
	"github.com/codeatlas-dev/codeatlas/internal/procpool"
)

var (
	indexWorkers   int
	indexProcesses bool
	indexNoCache   bool
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a repository into the graph",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().IntVar(&indexWorkers, "workers", 0, "parse parallelism (default NumCPU)")
	indexCmd.Flags().BoolVar(&indexProcesses, "processes", false, "parse in worker processes")
	indexCmd.Flags().BoolVar(&indexNoCache, "no-cache", false, "disable the incremental parse cache")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	repo, err := repoFromArgs(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(repo)
	if err != nil {
		return err
	}

	p, cleanup, err := buildPipeline(cfg, repo)
	if err != nil {
		return err
	}
	defer cleanup()

	summary, err := p.Run(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("indexed %s: %d files (%d parsed, %d cached, %d failed)\n",
		summary.Project, summary.Files, summary.Parsed, summary.FromCache, summary.Failed)
	fmt.Printf("graph: %d nodes, %d relationships, %d calls linked (%d unresolved) in %s\n",
		summary.Graph.NodesFlushed, summary.Graph.RelsFlushed,
		summary.CallsLinked, summary.Unresolved, summary.Elapsed.Round(timeUnit))
	return nil
}

// buildPipeline assembles the store, grammar set, caches and runner for
// one repository. The returned cleanup closes everything in order.
func buildPipeline(cfg *config.Config, repo string) (*pipeline.Pipeline, func(), error) {
	s, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	closers := []func(){func() { s.Close() }}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	langs, engine, _, err := parserLoad(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	project := projectName(cfg, repo)

	var inc *cache.IncrementalParsingCache
	if !indexNoCache {
		dir := cfg.CacheDir
		if dir == "" {
			dir = defaultCacheDir(project)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("create cache dir: %w", err)
		}
		cs, err := cache.Open(dir)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, func() { cs.Close() })
		inc = cache.NewIncrementalParsingCache(cs)
	}

	workers := indexWorkers
	if workers == 0 {
		workers = cfg.Workers
	}
	if workers == 0 {
		workers = runtime.NumCPU()
	}

	var runner procpool.Runner
	if indexProcesses || cfg.UseProcesses {
		pr, err := procpool.NewProcessRunner(workerSubcommand, workers, workerArgs(cfg.Grammars)...)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("start worker processes: %w", err)
		}
		closers = append(closers, func() { pr.Close() })
		runner = pr
	}

	asts := cache.NewBoundedASTCache(astBounds(cfg.ASTCache))
	closers = append(closers, asts.Purge)

	p := pipeline.New(pipeline.Config{
		RepoPath:    repo,
		ProjectName: project,
		Ingestor:    newIngestor(s, project, cfg.BatchSize),
		Languages:   langs,
		Engine:      engine,
		Incremental: inc,
		ASTs:        asts,
		Runner:      runner,
		Workers:     workers,
	})
	return p, cleanup, nil
}

// astBounds applies defaults to the configured AST cache limits.
func astBounds(c config.ASTCacheConfig) cache.ASTCacheConfig {
	out := cache.ASTCacheConfig{
		MaxEntries:     256,
		MaxMemoryBytes: 256 << 20,
	}
	if c.MaxEntries > 0 {
		out.MaxEntries = c.MaxEntries
	}
	if c.MaxMemoryMB > 0 {
		out.MaxMemoryBytes = int64(c.MaxMemoryMB) << 20
	}
	if c.TTLSeconds > 0 {
		out.TTL = time.Duration(c.TTLSeconds) * time.Second
	}
	return out
}

func defaultCacheDir(project string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "codeatlas-cache", project)
	}
	return filepath.Join(home, ".codeatlas", "cache", project)
}
