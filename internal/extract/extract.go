// Package extract turns one source file into serializable declaration and
// reference records. Workers run it in their own process and ship the
// result back as JSON; the orchestrator runs it in-process for cache-warm
// files and tests.
package extract

import (
	"fmt"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codeatlas-dev/codeatlas/internal/lang"
	"github.com/codeatlas-dev/codeatlas/internal/parser"
	"github.com/codeatlas-dev/codeatlas/internal/queries"
)

// Canonical query categories a language definition file can declare. Not
// every language has all of them; markup languages lack classes, and
// inherits exists only where the language has class inheritance.
const (
	QueryFunctions = "functions"
	QueryClasses   = "classes"
	QueryCalls     = "calls"
	QueryImports   = "imports"
	QueryInherits  = "inherits"
)

// Entity is a declaration found in a file.
type Entity struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"` // "function" or "class"
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// Reference is an outgoing symbolic reference from a file.
type Reference struct {
	Name string `json:"name"`
	Kind string `json:"kind"` // "call", "import" or "inherit"
	Line int    `json:"line"`
}

// FileResult is the full extraction output for one file.
type FileResult struct {
	Path       string      `json:"path"` // repo-relative
	Language   string      `json:"language"`
	Entities   []Entity    `json:"entities"`
	References []Reference `json:"references"`
}

// File parses source and runs the canonical query categories against the
// AST.
func File(engine *queries.Engine, l lang.Language, relPath string, source []byte) (*FileResult, error) {
	tree, err := parser.Parse(l, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", relPath, err)
	}
	defer tree.Close()

	return FromTree(engine, l, relPath, tree.RootNode(), source), nil
}

// FromTree runs extraction against an already parsed AST. The orchestrator
// uses this with the bounded AST cache so a cache hit skips re-parsing.
func FromTree(engine *queries.Engine, l lang.Language, relPath string, root *tree_sitter.Node, source []byte) *FileResult {
	result := &FileResult{Path: relPath, Language: string(l)}

	for _, query := range []string{QueryFunctions, QueryClasses} {
		for _, c := range engine.ExecuteQuery(l, query, root, source) {
			name := cleanName(c.Name)
			if name == "" {
				continue
			}
			result.Entities = append(result.Entities, Entity{
				Name:      name,
				Kind:      string(c.Kind),
				StartLine: int(c.Node.StartPosition().Row) + 1,
				EndLine:   int(c.Node.EndPosition().Row) + 1,
			})
		}
	}

	for _, query := range []string{QueryCalls, QueryImports, QueryInherits} {
		for _, c := range engine.ExecuteQuery(l, query, root, source) {
			name := cleanName(c.Name)
			if name == "" {
				continue
			}
			result.References = append(result.References, Reference{
				Name: name,
				Kind: string(c.Kind),
				Line: int(c.Node.StartPosition().Row) + 1,
			})
		}
	}

	return result
}

// cleanName strips quote and include delimiters so import targets compare
// cleanly ("fmt", <stdio.h>, 'utils').
func cleanName(name string) string {
	name = strings.TrimSpace(name)
	for len(name) >= 2 {
		first, last := name[0], name[len(name)-1]
		switch {
		case first == '"' && last == '"',
			first == '\'' && last == '\'',
			first == '`' && last == '`',
			first == '<' && last == '>':
			name = name[1 : len(name)-1]
		default:
			return name
		}
	}
	return name
}
