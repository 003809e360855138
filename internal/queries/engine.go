// Package queries loads declarative tree-sitter structural queries per
// language, compiles them against the loaded grammars, and caches both the
// raw definitions and the compiled queries. Captures are normalized onto
// canonical kinds (function, class, call, import, inherit) so downstream code
// stays language-agnostic.
package queries

import (
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codeatlas-dev/codeatlas/internal/lang"
)

//go:embed defs/*.scm
var defsFS embed.FS

// directive marks the start of a named query section in a defs file.
const directive = ";; query: "

// CompiledQuery is a named, compiled structural query for one language.
type CompiledQuery struct {
	Name     string
	Language lang.Language
	Raw      string
	Query    *tree_sitter.Query
}

// Stats is a snapshot of engine cache counters.
type Stats struct {
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Expirations uint64
	Compiled    int
}

// Engine compiles and caches structural queries.
type Engine struct {
	mu    sync.Mutex
	langs map[lang.Language]*tree_sitter.Language

	// DefsDir optionally overrides the embedded definitions, for live query
	// development; ReloadQueries re-reads from it.
	DefsDir string

	defs     map[lang.Language]map[string]string    // raw text per query name
	compiled map[lang.Language]map[string]*CompiledQuery

	hits, misses, evictions, expirations uint64
}

// NewEngine creates an Engine over the given loaded grammars.
func NewEngine(langs map[lang.Language]*tree_sitter.Language) *Engine {
	return &Engine{
		langs:    langs,
		defs:     make(map[lang.Language]map[string]string),
		compiled: make(map[lang.Language]map[string]*CompiledQuery),
	}
}

// LoadQueries returns all compiled queries for a language, reading and
// compiling the definitions on first call. A missing definitions file yields
// an empty map with a warning. A single pattern that fails to compile is
// omitted; sibling patterns remain usable.
func (e *Engine) LoadQueries(l lang.Language) map[string]*CompiledQuery {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadLocked(l)
}

func (e *Engine) loadLocked(l lang.Language) map[string]*CompiledQuery {
	if m, ok := e.compiled[l]; ok {
		e.hits++
		return m
	}
	e.misses++

	raw, err := e.readDefs(l)
	if err != nil {
		slog.Warn("queries.defs.missing", "language", l, "err", err)
		e.defs[l] = map[string]string{}
		e.compiled[l] = map[string]*CompiledQuery{}
		return e.compiled[l]
	}
	sections := splitSections(raw)
	e.defs[l] = sections

	tsLang := e.langs[l]
	m := make(map[string]*CompiledQuery, len(sections))
	if tsLang == nil {
		slog.Warn("queries.grammar.absent", "language", l)
		e.compiled[l] = m
		return m
	}
	for name, text := range sections {
		q, qErr := tree_sitter.NewQuery(tsLang, text)
		if qErr != nil {
			slog.Warn("queries.compile.fail", "language", l, "query", name, "err", qErr)
			continue
		}
		m[name] = &CompiledQuery{Name: name, Language: l, Raw: text, Query: q}
	}
	e.compiled[l] = m
	return m
}

// GetQuery is a cache-first lookup of one named query; a cold miss triggers
// LoadQueries for the whole language.
func (e *Engine) GetQuery(l lang.Language, name string) (*CompiledQuery, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if m, ok := e.compiled[l]; ok {
		e.hits++
		q, found := m[name]
		return q, found
	}
	m := e.loadLocked(l)
	q, found := m[name]
	return q, found
}

// ReloadQueries purges one language's cache entries and recompiles from
// source. Other languages are unaffected.
func (e *Engine) ReloadQueries(l lang.Language) map[string]*CompiledQuery {
	e.mu.Lock()
	defer e.mu.Unlock()
	if old, ok := e.compiled[l]; ok {
		e.evictions += uint64(len(old))
		for _, cq := range old {
			cq.Query.Close()
		}
	}
	delete(e.compiled, l)
	delete(e.defs, l)
	return e.loadLocked(l)
}

// DeclaredNames returns the query names declared in a language's definitions
// source, whether or not each compiled.
func (e *Engine) DeclaredNames(l lang.Language) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.defs[l]; !ok {
		e.loadLocked(l)
	}
	names := make([]string, 0, len(e.defs[l]))
	for name := range e.defs[l] {
		names = append(names, name)
	}
	return names
}

// Capture is one normalized sub-match of an executed query.
type Capture struct {
	Kind     Kind             // canonical kind
	Node     tree_sitter.Node // the captured definition/reference node
	Name     string           // text of the @name capture, if any
	NameNode *tree_sitter.Node
}

// ExecuteQuery runs a compiled query against an AST node and returns
// normalized captures. Unknown capture labels are skipped.
func (e *Engine) ExecuteQuery(l lang.Language, name string, root *tree_sitter.Node, source []byte) []Capture {
	cq, ok := e.GetQuery(l, name)
	if !ok {
		return nil
	}

	cursor := tree_sitter.NewQueryCursor()
	defer cursor.Close()

	captureNames := cq.Query.CaptureNames()
	var out []Capture
	matches := cursor.Matches(cq.Query, root, source)
	for m := matches.Next(); m != nil; m = matches.Next() {
		var match Capture
		var haveKind bool
		for _, c := range m.Captures {
			label := captureNames[c.Index]
			if label == "name" {
				node := c.Node
				match.NameNode = &node
				match.Name = node.Utf8Text(source)
				continue
			}
			if strings.HasPrefix(label, "_") {
				continue // predicate-only capture
			}
			if kind, known := Canonical(label); known {
				match.Kind = kind
				match.Node = c.Node
				haveKind = true
			}
		}
		if haveKind {
			out = append(out, match)
		}
	}
	return out
}

// Statistics returns a snapshot of the cache counters.
func (e *Engine) Statistics() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	compiled := 0
	for _, m := range e.compiled {
		compiled += len(m)
	}
	return Stats{
		Hits:        e.hits,
		Misses:      e.misses,
		Evictions:   e.evictions,
		Expirations: e.expirations,
		Compiled:    compiled,
	}
}

// readDefs reads a language's query definitions, preferring DefsDir when set.
func (e *Engine) readDefs(l lang.Language) (string, error) {
	fileName := string(l) + ".scm"
	if e.DefsDir != "" {
		b, err := os.ReadFile(filepath.Join(e.DefsDir, fileName))
		if err == nil {
			return string(b), nil
		}
	}
	b, err := defsFS.ReadFile("defs/" + fileName)
	if err != nil {
		return "", fmt.Errorf("query defs for %s: %w", l, err)
	}
	return string(b), nil
}

// splitSections splits a defs file into named sections by query directives.
// Text before the first directive is ignored.
func splitSections(src string) map[string]string {
	sections := make(map[string]string)
	var current string
	var buf strings.Builder
	flush := func() {
		if current != "" && strings.TrimSpace(buf.String()) != "" {
			sections[current] = buf.String()
		}
		buf.Reset()
	}
	for _, line := range strings.Split(src, "\n") {
		if strings.HasPrefix(line, directive) {
			flush()
			current = strings.TrimSpace(strings.TrimPrefix(line, directive))
			continue
		}
		if current != "" {
			buf.WriteString(line)
			buf.WriteString("\n")
		}
	}
	flush()
	return sections
}
