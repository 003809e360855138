// Package pipeline orchestrates a full index run: discover files, parse
// the changed ones, extract declarations and references, and merge the
// result into the graph in two passes.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	"golang.org/x/sync/errgroup"

	"github.com/codeatlas-dev/codeatlas/internal/cache"
	"github.com/codeatlas-dev/codeatlas/internal/discover"
	"github.com/codeatlas-dev/codeatlas/internal/extract"
	"github.com/codeatlas-dev/codeatlas/internal/fqn"
	"github.com/codeatlas-dev/codeatlas/internal/graph"
	"github.com/codeatlas-dev/codeatlas/internal/lang"
	"github.com/codeatlas-dev/codeatlas/internal/procpool"
	"github.com/codeatlas-dev/codeatlas/internal/queries"
	"github.com/codeatlas-dev/codeatlas/internal/symtrie"
)

// Config wires a Pipeline together.
type Config struct {
	RepoPath    string
	ProjectName string // empty derives from RepoPath
	Ingestor    *graph.Ingestor
	Languages   map[lang.Language]*tree_sitter.Language
	// Engine supplies compiled queries; nil builds one over Languages.
	Engine *queries.Engine
	// Incremental skips re-parsing files whose content hash is unchanged.
	// Nil parses everything every run.
	Incremental *cache.IncrementalParsingCache
	// ASTs keeps parsed trees across in-process runs.
	ASTs *cache.BoundedASTCache
	// Runner parses in worker processes when set. Nil parses in-process
	// with a bounded errgroup.
	Runner  procpool.Runner
	Workers int // pool size; defaults to NumCPU
}

// Summary reports what one Run did.
type Summary struct {
	Project      string
	Languages    int
	Files        int
	Parsed       int
	FromCache    int
	Failed       int
	CallsLinked  int
	Unresolved   int
	ImportsLocal int
	Elapsed      time.Duration
	Graph        graph.Stats
}

// Pipeline indexes one repository into the graph.
type Pipeline struct {
	cfg     Config
	project string
	engine  *queries.Engine
	trie    *symtrie.Trie
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	project := cfg.ProjectName
	if project == "" {
		project = ProjectNameFromPath(cfg.RepoPath)
	}
	if cfg.Workers < 1 {
		cfg.Workers = runtime.NumCPU()
	}
	engine := cfg.Engine
	if engine == nil {
		engine = queries.NewEngine(cfg.Languages)
	}
	return &Pipeline{
		cfg:     cfg,
		project: project,
		engine:  engine,
		trie:    symtrie.New(),
	}
}

// ProjectNameFromPath derives a project name from an absolute path by
// replacing separators with dashes.
func ProjectNameFromPath(absPath string) string {
	cleaned := filepath.ToSlash(filepath.Clean(absPath))
	name := strings.TrimLeft(strings.ReplaceAll(cleaned, "/", "-"), "-")
	if name == "" {
		return "root"
	}
	return name
}

// Run executes the whole pipeline once.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	started := time.Now()
	slog.Info("pipeline.start", "project", p.project, "path", p.cfg.RepoPath)

	files, err := discover.Discover(ctx, p.cfg.RepoPath, nil)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	slog.Info("pipeline.discovered", "files", len(files))

	summary := &Summary{Project: p.project, Files: len(files), Languages: len(p.cfg.Languages)}

	toParse, cached := p.classify(files)
	summary.FromCache = len(cached)
	if len(cached) > 0 {
		slog.Info("pipeline.incremental", "changed", len(toParse), "cached", len(cached))
	}

	results, err := p.parse(ctx, toParse, summary)
	if err != nil {
		return nil, err
	}
	results = append(results, cached...)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t := time.Now()
	if err := p.passDeclarations(results); err != nil {
		return nil, fmt.Errorf("pass declarations: %w", err)
	}
	slog.Info("pass.timing", "pass", "declarations", "elapsed", time.Since(t))

	t = time.Now()
	if err := p.passReferences(results, summary); err != nil {
		return nil, fmt.Errorf("pass references: %w", err)
	}
	slog.Info("pass.timing", "pass", "references", "elapsed", time.Since(t))

	if err := p.cfg.Ingestor.Flush(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}

	summary.Graph = p.cfg.Ingestor.Stats()
	summary.Elapsed = time.Since(started)
	slog.Info("pipeline.done",
		"project", p.project,
		"parsed", summary.Parsed,
		"cached", summary.FromCache,
		"failed", summary.Failed,
		"nodes_flushed", summary.Graph.NodesFlushed,
		"rels_flushed", summary.Graph.RelsFlushed,
		"elapsed", summary.Elapsed)
	return summary, nil
}

// classify splits discovered files into ones that need parsing and cached
// results that can be replayed as-is.
func (p *Pipeline) classify(files []discover.FileInfo) ([]discover.FileInfo, []*extract.FileResult) {
	if p.cfg.Incremental == nil {
		return files, nil
	}

	var toParse []discover.FileInfo
	var cached []*extract.FileResult
	for _, f := range files {
		needs, err := p.cfg.Incremental.NeedsParsing(f.Path)
		if err != nil {
			slog.Warn("pipeline.cache.check", "path", f.RelPath, "err", err)
			needs = true
		}
		if needs {
			toParse = append(toParse, f)
			continue
		}
		blob, _, ok, err := p.cfg.Incremental.GetResult(f.Path)
		if err != nil || !ok {
			toParse = append(toParse, f)
			continue
		}
		var result extract.FileResult
		if err := json.Unmarshal(blob, &result); err != nil {
			slog.Warn("pipeline.cache.decode", "path", f.RelPath, "err", err)
			toParse = append(toParse, f)
			continue
		}
		cached = append(cached, &result)
	}
	return toParse, cached
}

// parse extracts every file in toParse, via the worker pool when a Runner
// is configured and in-process otherwise. Failures are counted, logged,
// and skipped.
func (p *Pipeline) parse(ctx context.Context, toParse []discover.FileInfo, summary *Summary) ([]*extract.FileResult, error) {
	if len(toParse) == 0 {
		return nil, nil
	}
	var results []*extract.FileResult
	var err error
	if p.cfg.Runner != nil {
		results, err = p.parsePooled(toParse, summary)
	} else {
		results, err = p.parseInProcess(ctx, toParse, summary)
	}
	if err != nil {
		return nil, err
	}

	if p.cfg.Incremental != nil {
		for i, r := range results {
			blob, mErr := json.Marshal(r)
			if mErr != nil {
				continue
			}
			if cErr := p.cfg.Incremental.CacheResult(toParse[i].Path, r.Language, blob); cErr != nil {
				slog.Warn("pipeline.cache.store", "path", r.Path, "err", cErr)
			}
		}
	}
	return results, nil
}

func (p *Pipeline) parsePooled(toParse []discover.FileInfo, summary *Summary) ([]*extract.FileResult, error) {
	pool := procpool.NewManager(p.cfg.Workers, p.cfg.Runner)
	specs := make([]procpool.JobSpec, len(toParse))
	for i, f := range toParse {
		specs[i] = procpool.JobSpec{Path: f.Path, RelPath: f.RelPath, Language: string(f.Language)}
	}
	ids, err := pool.SubmitBatch(specs)
	if err != nil {
		return nil, fmt.Errorf("submit batch: %w", err)
	}
	pool.WaitAll(0)
	defer pool.Shutdown(false, 0)

	var results []*extract.FileResult
	kept := toParse[:0]
	for i, id := range ids {
		job, _ := pool.GetJobStatus(id)
		if job.Status != procpool.StatusCompleted {
			summary.Failed++
			continue
		}
		results = append(results, job.Result)
		kept = append(kept, toParse[i])
	}
	summary.Parsed = len(results)
	copy(toParse, kept)
	return results, nil
}

func (p *Pipeline) parseInProcess(ctx context.Context, toParse []discover.FileInfo, summary *Summary) ([]*extract.FileResult, error) {
	runner := &procpool.InProcessRunner{Engine: p.engine, ASTs: p.cfg.ASTs}
	slots := make([]*extract.FileResult, len(toParse))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i, f := range toParse {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			result, err := runner.Run(procpool.JobSpec{
				Path: f.Path, RelPath: f.RelPath, Language: string(f.Language),
			})
			if err != nil {
				slog.Warn("pipeline.parse.failed", "path", f.RelPath, "err", err)
				return nil
			}
			slots[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var results []*extract.FileResult
	kept := toParse[:0]
	for i, r := range slots {
		if r == nil {
			summary.Failed++
			continue
		}
		results = append(results, r)
		kept = append(kept, toParse[i])
	}
	summary.Parsed = len(results)
	copy(toParse, kept)
	return results, nil
}

// passDeclarations merges the structural skeleton: project, folders,
// files, modules, and every declared entity, plus CONTAINS edges. It also
// loads the symbol trie pass two resolves against.
func (p *Pipeline) passDeclarations(results []*extract.FileResult) error {
	ing := p.cfg.Ingestor
	if err := ing.EnsureNodeBatch("Project", map[string]any{
		"name": p.project,
		"path": p.cfg.RepoPath,
	}); err != nil {
		return err
	}

	if err := p.mergeFolders(results); err != nil {
		return err
	}

	for _, r := range results {
		moduleQN := fqn.ModuleQN(p.project, r.Path)
		if err := ing.EnsureNodeBatch("File", map[string]any{
			"path":     r.Path,
			"name":     filepath.Base(r.Path),
			"language": r.Language,
		}); err != nil {
			return err
		}
		if err := ing.EnsureNodeBatch("Module", map[string]any{
			"qualified_name": moduleQN,
			"name":           fqn.SimpleName(moduleQN),
		}); err != nil {
			return err
		}
		if err := ing.EnsureRelationshipBatch(
			graph.EndpointSpec{Label: "File", Value: r.Path}, "CONTAINS",
			graph.EndpointSpec{Label: "Module", Value: moduleQN}, nil); err != nil {
			return err
		}
		p.trie.Insert(moduleQN, "module")

		for _, e := range r.Entities {
			label := "Function"
			if e.Kind == "class" {
				label = "Class"
			}
			qn := fqn.Compute(p.project, r.Path, e.Name)
			if err := ing.EnsureNodeBatch(label, map[string]any{
				"qualified_name": qn,
				"name":           e.Name,
				"file_path":      r.Path,
				"start_line":     e.StartLine,
				"end_line":       e.EndLine,
			}); err != nil {
				return err
			}
			if err := ing.EnsureRelationshipBatch(
				graph.EndpointSpec{Label: "Module", Value: moduleQN}, "CONTAINS",
				graph.EndpointSpec{Label: label, Value: qn}, nil); err != nil {
				return err
			}
			p.trie.Insert(qn, strings.ToLower(label))
		}
	}
	return nil
}

// mergeFolders creates Folder nodes for every directory on the path to a
// file and the CONTAINS chain from the project down to each file.
func (p *Pipeline) mergeFolders(results []*extract.FileResult) error {
	ing := p.cfg.Ingestor
	seen := map[string]bool{}
	var folders []string
	for _, r := range results {
		for dir := filepath.ToSlash(filepath.Dir(r.Path)); dir != "." && dir != "/"; dir = filepath.ToSlash(filepath.Dir(dir)) {
			if seen[dir] {
				break
			}
			seen[dir] = true
			folders = append(folders, dir)
		}
	}
	sort.Strings(folders)

	for _, dir := range folders {
		if err := ing.EnsureNodeBatch("Folder", map[string]any{"path": dir}); err != nil {
			return err
		}
		parent := filepath.ToSlash(filepath.Dir(dir))
		from := graph.EndpointSpec{Label: "Folder", Value: parent}
		if parent == "." || parent == "/" {
			from = graph.EndpointSpec{Label: "Project", Value: p.project}
		}
		if err := ing.EnsureRelationshipBatch(from, "CONTAINS",
			graph.EndpointSpec{Label: "Folder", Value: dir}, nil); err != nil {
			return err
		}
	}

	for _, r := range results {
		dir := filepath.ToSlash(filepath.Dir(r.Path))
		from := graph.EndpointSpec{Label: "Folder", Value: dir}
		if dir == "." || dir == "/" {
			from = graph.EndpointSpec{Label: "Project", Value: p.project}
		}
		if err := ing.EnsureRelationshipBatch(from, "CONTAINS",
			graph.EndpointSpec{Label: "File", Value: r.Path}, nil); err != nil {
			return err
		}
	}
	return nil
}

// passReferences resolves calls, imports and inheritance against the trie
// built in pass one and merges CALLS, IMPORTS and INHERITS edges. Names
// that resolve nowhere inside the project are counted and dropped; most
// are stdlib or third-party targets the graph does not model.
func (p *Pipeline) passReferences(results []*extract.FileResult, summary *Summary) error {
	ing := p.cfg.Ingestor
	for _, r := range results {
		moduleQN := fqn.ModuleQN(p.project, r.Path)
		for _, ref := range r.References {
			switch ref.Kind {
			case "call":
				target, ok := p.trie.Resolve(moduleQN, ref.Name)
				if !ok {
					summary.Unresolved++
					continue
				}
				if err := ing.EnsureRelationshipBatch(
					p.callerAt(r, moduleQN, ref.Line), "CALLS",
					p.endpointOf(target),
					map[string]any{"line": ref.Line}); err != nil {
					return err
				}
				summary.CallsLinked++
			case "import":
				target, ok := p.resolveImport(ref.Name)
				if !ok {
					continue // external module
				}
				if err := ing.EnsureRelationshipBatch(
					graph.EndpointSpec{Label: "Module", Value: moduleQN}, "IMPORTS",
					graph.EndpointSpec{Label: "Module", Value: target},
					map[string]any{"line": ref.Line}); err != nil {
					return err
				}
				summary.ImportsLocal++
			case "inherit":
				sub, ok := enclosingEntity(r, ref.Line, "class")
				if !ok {
					continue
				}
				target, ok := p.trie.Resolve(moduleQN, ref.Name)
				if !ok {
					summary.Unresolved++
					continue
				}
				if err := ing.EnsureRelationshipBatch(
					graph.EndpointSpec{Label: "Class", Value: fqn.Compute(p.project, r.Path, sub.Name)},
					"INHERITS", p.endpointOf(target), nil); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// callerAt attributes a reference to the innermost declared entity whose
// span covers the line, falling back to the file's module.
func (p *Pipeline) callerAt(r *extract.FileResult, moduleQN string, line int) graph.EndpointSpec {
	if e, ok := enclosingEntity(r, line, ""); ok {
		label := "Function"
		if e.Kind == "class" {
			label = "Class"
		}
		return graph.EndpointSpec{Label: label, Value: fqn.Compute(p.project, r.Path, e.Name)}
	}
	return graph.EndpointSpec{Label: "Module", Value: moduleQN}
}

// enclosingEntity returns the smallest declared entity containing line,
// optionally restricted to one kind.
func enclosingEntity(r *extract.FileResult, line int, kind string) (extract.Entity, bool) {
	var best extract.Entity
	bestSpan := -1
	for _, e := range r.Entities {
		if kind != "" && e.Kind != kind {
			continue
		}
		if line < e.StartLine || line > e.EndLine {
			continue
		}
		span := e.EndLine - e.StartLine
		if bestSpan < 0 || span < bestSpan {
			best, bestSpan = e, span
		}
	}
	return best, bestSpan >= 0
}

// endpointOf labels a resolved qualified name by its declared kind, so
// calls that construct classes point at the Class node.
func (p *Pipeline) endpointOf(qn string) graph.EndpointSpec {
	label := "Function"
	switch kind, _ := p.trie.Contains(qn); kind {
	case "class":
		label = "Class"
	case "module":
		label = "Module"
	}
	return graph.EndpointSpec{Label: label, Value: qn}
}

// resolveImport maps an import target like "core.util" or "./util" onto a
// project module qualified name.
func (p *Pipeline) resolveImport(name string) (string, bool) {
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.Trim(strings.ReplaceAll(name, "/", "."), ".")
	if name == "" {
		return "", false
	}
	matches := p.trie.FindEndingWith(name)
	if len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)
	return matches[0], true
}
