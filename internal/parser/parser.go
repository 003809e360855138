// Package parser resolves tree-sitter grammars per language and produces
// ASTs. Grammars come from compiled-in bindings first, then from dynamically
// loaded shared libraries, with an optional one-time native build of a
// vendored grammar source tree.
package parser

import (
	"fmt"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	tree_sitter_bash "github.com/tree-sitter/tree-sitter-bash/bindings/go"
	tree_sitter_c "github.com/tree-sitter/tree-sitter-c/bindings/go"
	tree_sitter_c_sharp "github.com/tree-sitter/tree-sitter-c-sharp/bindings/go"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"
	tree_sitter_css "github.com/tree-sitter/tree-sitter-css/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_html "github.com/tree-sitter/tree-sitter-html/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_ocaml "github.com/tree-sitter/tree-sitter-ocaml/bindings/go"
	tree_sitter_php "github.com/tree-sitter/tree-sitter-php/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_ruby "github.com/tree-sitter/tree-sitter-ruby/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_scala "github.com/tree-sitter/tree-sitter-scala/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	tree_sitter_elixir "github.com/tree-sitter/tree-sitter-elixir/bindings/go"
	tree_sitter_haskell "github.com/tree-sitter/tree-sitter-haskell/bindings/go"
	tree_sitter_kotlin "github.com/tree-sitter-grammars/tree-sitter-kotlin/bindings/go"
	tree_sitter_lua "github.com/tree-sitter-grammars/tree-sitter-lua/bindings/go"
	tree_sitter_zig "github.com/tree-sitter-grammars/tree-sitter-zig/bindings/go"

	"github.com/codeatlas-dev/codeatlas/internal/lang"
)

var (
	builtinOnce sync.Once
	builtin     map[lang.Language]*tree_sitter.Language
	parserPools map[lang.Language]*sync.Pool
	poolMu      sync.Mutex
)

func initBuiltin() {
	builtinOnce.Do(func() {
		builtin = map[lang.Language]*tree_sitter.Language{
			lang.Python:     tree_sitter.NewLanguage(tree_sitter_python.Language()),
			lang.JavaScript: tree_sitter.NewLanguage(tree_sitter_javascript.Language()),
			lang.TypeScript: tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript()),
			lang.TSX:        tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTSX()),
			lang.Go:         tree_sitter.NewLanguage(tree_sitter_go.Language()),
			lang.Rust:       tree_sitter.NewLanguage(tree_sitter_rust.Language()),
			lang.Java:       tree_sitter.NewLanguage(tree_sitter_java.Language()),
			lang.C:          tree_sitter.NewLanguage(tree_sitter_c.Language()),
			lang.CPP:        tree_sitter.NewLanguage(tree_sitter_cpp.Language()),
			lang.CSharp:     tree_sitter.NewLanguage(tree_sitter_c_sharp.Language()),
			lang.Ruby:       tree_sitter.NewLanguage(tree_sitter_ruby.Language()),
			lang.PHP:        tree_sitter.NewLanguage(tree_sitter_php.LanguagePHPOnly()),
			lang.Bash:       tree_sitter.NewLanguage(tree_sitter_bash.Language()),
			lang.Scala:      tree_sitter.NewLanguage(tree_sitter_scala.Language()),
			lang.Kotlin:     tree_sitter.NewLanguage(tree_sitter_kotlin.Language()),
			lang.Lua:        tree_sitter.NewLanguage(tree_sitter_lua.Language()),
			lang.Zig:        tree_sitter.NewLanguage(tree_sitter_zig.Language()),
			lang.OCaml:      tree_sitter.NewLanguage(tree_sitter_ocaml.LanguageOCaml()),
			lang.Haskell:    tree_sitter.NewLanguage(tree_sitter_haskell.Language()),
			lang.Elixir:     tree_sitter.NewLanguage(tree_sitter_elixir.Language()),
			lang.HTML:       tree_sitter.NewLanguage(tree_sitter_html.Language()),
			lang.CSS:        tree_sitter.NewLanguage(tree_sitter_css.Language()),
		}
		parserPools = make(map[lang.Language]*sync.Pool, len(builtin))
		for l, tsLang := range builtin {
			registerPool(l, tsLang)
		}
	})
}

func registerPool(l lang.Language, tsLang *tree_sitter.Language) {
	parserPools[l] = &sync.Pool{
		New: func() any {
			p := tree_sitter.NewParser()
			if err := p.SetLanguage(tsLang); err != nil {
				panic(fmt.Sprintf("set language: %v", err))
			}
			return p
		},
	}
}

// BuiltinLanguage returns the compiled-in tree-sitter Language for l, if any.
func BuiltinLanguage(l lang.Language) (*tree_sitter.Language, bool) {
	initBuiltin()
	tsLang, ok := builtin[l]
	return tsLang, ok
}

// RegisterLanguage makes a dynamically loaded grammar available to Parse.
func RegisterLanguage(l lang.Language, tsLang *tree_sitter.Language) {
	initBuiltin()
	poolMu.Lock()
	defer poolMu.Unlock()
	if _, exists := parserPools[l]; !exists {
		registerPool(l, tsLang)
	}
}

// Parse parses source code into a tree-sitter AST Tree.
// The caller must call tree.Close() when done.
// Parsers are pooled per language via sync.Pool to avoid per-file allocation.
func Parse(l lang.Language, source []byte) (*tree_sitter.Tree, error) {
	initBuiltin()

	poolMu.Lock()
	pool, ok := parserPools[l]
	poolMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s", l)
	}

	p, _ := pool.Get().(*tree_sitter.Parser)
	if p == nil {
		return nil, fmt.Errorf("failed to get parser for language %s", l)
	}
	tree := p.Parse(source, nil)
	pool.Put(p)

	if tree == nil {
		return nil, fmt.Errorf("parse failed for language %s", l)
	}
	return tree, nil
}

// WalkFunc is called for each node during AST traversal.
// Return false to skip children.
type WalkFunc func(node *tree_sitter.Node) bool

// Walk traverses the AST in depth-first order.
func Walk(node *tree_sitter.Node, fn WalkFunc) {
	if node == nil {
		return
	}
	if !fn(node) {
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil {
			Walk(child, fn)
		}
	}
}

// NodeText returns the text content of a node.
func NodeText(node *tree_sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}
