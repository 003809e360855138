package queries

import (
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_ruby "github.com/tree-sitter/tree-sitter-ruby/bindings/go"

	"github.com/codeatlas-dev/codeatlas/internal/lang"
)

func pythonGrammar() *tree_sitter.Language {
	return tree_sitter.NewLanguage(tree_sitter_python.Language())
}

func pythonEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(map[lang.Language]*tree_sitter.Language{lang.Python: pythonGrammar()})
}

func TestSplitSections(t *testing.T) {
	src := "preamble ignored\n" +
		";; query: functions\n(a)\n(b)\n" +
		";; query: empty\n\n" +
		";; query: calls\n(c)\n"
	got := splitSections(src)
	if len(got) != 2 {
		t.Fatalf("sections = %v", got)
	}
	if got["functions"] != "(a)\n(b)\n" {
		t.Errorf("functions section = %q", got["functions"])
	}
	if got["calls"] != "(c)\n" {
		t.Errorf("calls section = %q", got["calls"])
	}
	if _, ok := got["empty"]; ok {
		t.Error("blank section should be dropped")
	}
}

func TestCanonical(t *testing.T) {
	cases := []struct {
		label string
		want  Kind
		known bool
	}{
		{"function", KindFunction, true},
		{"definition.function", KindFunction, true},
		{"function.method", KindFunction, true},
		{"reference.call", KindCall, true},
		{"class", KindClass, true},
		{"interface", KindClass, true},
		{"import", KindImport, true},
		{"inherits", KindInherit, true},
		{"extends", KindInherit, true},
		{"base", KindInherit, true},
		{"comment", "", false},
	}
	for _, tt := range cases {
		got, known := Canonical(tt.label)
		if known != tt.known || got != tt.want {
			t.Errorf("Canonical(%q) = (%v, %v), want (%v, %v)",
				tt.label, got, known, tt.want, tt.known)
		}
	}
}

func TestLoadQueriesCompilesAllDeclared(t *testing.T) {
	e := pythonEngine(t)
	compiled := e.LoadQueries(lang.Python)
	if len(compiled) == 0 {
		t.Fatal("no compiled queries for python")
	}

	declared := e.DeclaredNames(lang.Python)
	sort.Strings(declared)
	var got []string
	for name := range compiled {
		got = append(got, name)
	}
	sort.Strings(got)
	if !reflect.DeepEqual(got, declared) {
		t.Errorf("compiled %v, declared %v", got, declared)
	}
	if _, ok := compiled["functions"]; !ok {
		t.Error("missing functions query")
	}
	if _, ok := compiled["inherits"]; !ok {
		t.Error("missing inherits query")
	}
}

func TestMissingDefsYieldEmptyMap(t *testing.T) {
	e := pythonEngine(t)
	if m := e.LoadQueries(lang.Language("fortran")); len(m) != 0 {
		t.Errorf("queries for unknown language = %v", m)
	}
}

func TestBadPatternOmittedSiblingsSurvive(t *testing.T) {
	e := pythonEngine(t)
	dir := t.TempDir()
	defs := ";; query: functions\n(function_definition) @function\n" +
		";; query: broken\n(no_such_node_kind) @call\n"
	if err := os.WriteFile(filepath.Join(dir, "python.scm"), []byte(defs), 0o644); err != nil {
		t.Fatal(err)
	}
	e.DefsDir = dir

	compiled := e.ReloadQueries(lang.Python)
	if _, ok := compiled["functions"]; !ok {
		t.Error("good pattern should compile")
	}
	if _, ok := compiled["broken"]; ok {
		t.Error("bad pattern should be omitted")
	}
	declared := e.DeclaredNames(lang.Python)
	if len(declared) != 2 {
		t.Errorf("declared = %v, want both sections", declared)
	}
}

func TestReloadPurgesOnlyOneLanguage(t *testing.T) {
	e := NewEngine(map[lang.Language]*tree_sitter.Language{
		lang.Python: pythonGrammar(),
		lang.Ruby:   tree_sitter.NewLanguage(tree_sitter_ruby.Language()),
	})
	e.LoadQueries(lang.Python)
	e.LoadQueries(lang.Ruby)
	before := e.Statistics()

	e.ReloadQueries(lang.Python)
	after := e.Statistics()
	if after.Evictions <= before.Evictions {
		t.Errorf("evictions = %d, want > %d", after.Evictions, before.Evictions)
	}
	if after.Compiled != before.Compiled {
		t.Errorf("compiled = %d after reload, want %d", after.Compiled, before.Compiled)
	}
}

func TestGetQueryCountsHitsAndMisses(t *testing.T) {
	e := pythonEngine(t)
	if _, ok := e.GetQuery(lang.Python, "functions"); !ok {
		t.Fatal("functions query should exist")
	}
	if _, ok := e.GetQuery(lang.Python, "functions"); !ok {
		t.Fatal("functions query should exist on second lookup")
	}
	stats := e.Statistics()
	if stats.Misses != 1 {
		t.Errorf("misses = %d, want 1", stats.Misses)
	}
	if stats.Hits == 0 {
		t.Error("second lookup should hit")
	}
}

func TestExecuteQueryNormalizesCaptures(t *testing.T) {
	e := pythonEngine(t)
	source := []byte("def alpha():\n    beta()\n")
	p := tree_sitter.NewParser()
	defer p.Close()
	if err := p.SetLanguage(pythonGrammar()); err != nil {
		t.Fatalf("SetLanguage: %v", err)
	}
	tree := p.Parse(source, nil)
	defer tree.Close()

	funcs := e.ExecuteQuery(lang.Python, "functions", tree.RootNode(), source)
	if len(funcs) != 1 {
		t.Fatalf("functions = %d, want 1", len(funcs))
	}
	if funcs[0].Kind != KindFunction || funcs[0].Name != "alpha" {
		t.Errorf("capture = %+v", funcs[0])
	}

	calls := e.ExecuteQuery(lang.Python, "calls", tree.RootNode(), source)
	if len(calls) != 1 || calls[0].Kind != KindCall || calls[0].Name != "beta" {
		t.Errorf("calls = %+v", calls)
	}

	if got := e.ExecuteQuery(lang.Python, "nonexistent", tree.RootNode(), source); got != nil {
		t.Errorf("unknown query returned %v", got)
	}
}
