package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codeatlas-dev/codeatlas/internal/cache"
	"github.com/codeatlas-dev/codeatlas/internal/cypher"
	"github.com/codeatlas-dev/codeatlas/internal/graph"
	"github.com/codeatlas-dev/codeatlas/internal/lang"
	"github.com/codeatlas-dev/codeatlas/internal/parser"
	"github.com/codeatlas-dev/codeatlas/internal/store"
)

type testEnv struct {
	repo string
	ing  *graph.Ingestor
	inc  *cache.IncrementalParsingCache
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	cs, err := cache.Open(t.TempDir())
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	t.Cleanup(func() { cs.Close() })

	driver := cypher.NewEmbeddedDriver(cypher.NewExecutor(s), nil)
	return &testEnv{
		repo: t.TempDir(),
		ing:  graph.NewIngestor(driver, "proj", 100),
		inc:  cache.NewIncrementalParsingCache(cs),
	}
}

func (e *testEnv) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	py, ok := parser.BuiltinLanguage(lang.Python)
	if !ok {
		t.Fatal("python grammar unavailable")
	}
	return New(Config{
		RepoPath:    e.repo,
		ProjectName: "proj",
		Ingestor:    e.ing,
		Languages:   map[lang.Language]*tree_sitter.Language{lang.Python: py},
		Incremental: e.inc,
		Workers:     2,
	})
}

func (e *testEnv) write(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(e.repo, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// nodeProp digs a property out of a whole-entity record column. The
// executor returns entities as {id, label, project, properties: {...}}.
func nodeProp(t *testing.T, record map[string]any, column, prop string) any {
	t.Helper()
	node, ok := record[column].(map[string]any)
	if !ok {
		t.Fatalf("column %s = %v, want an entity map", column, record[column])
	}
	props, ok := node["properties"].(map[string]any)
	if !ok {
		t.Fatalf("column %s has no properties: %v", column, node)
	}
	return props[prop]
}

func (e *testEnv) count(t *testing.T, query string) int {
	t.Helper()
	records, err := e.ing.FetchAll(query, nil)
	if err != nil {
		t.Fatalf("FetchAll(%s): %v", query, err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %v", records)
	}
	for _, v := range records[0] {
		if n, ok := v.(int); ok {
			return n
		}
	}
	t.Fatalf("no count in %v", records[0])
	return 0
}

func TestRunIndexesTwoFileProject(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.py", "from b import bar\n\ndef foo():\n    return bar()\n")
	env.write(t, "b.py", "def bar():\n    return 1\n")

	summary, err := env.pipeline(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Parsed != 2 || summary.Failed != 0 {
		t.Errorf("summary = %+v", summary)
	}

	if got := env.count(t, "MATCH (n:Function) RETURN count(n) AS c"); got != 2 {
		t.Errorf("functions = %d, want 2", got)
	}
	if got := env.count(t, "MATCH (n:File) RETURN count(n) AS c"); got != 2 {
		t.Errorf("files = %d, want 2", got)
	}

	calls, err := env.ing.FetchAll("MATCH (a)-[r:CALLS]->(b) RETURN a, r, b", nil)
	if err != nil {
		t.Fatalf("calls: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("calls = %v", calls)
	}
	if got := nodeProp(t, calls[0], "a", "qualified_name"); got != "proj.a.foo" {
		t.Errorf("caller = %v, want the enclosing function", got)
	}
	if got := nodeProp(t, calls[0], "b", "qualified_name"); got != "proj.b.bar" {
		t.Errorf("callee = %v", got)
	}

	imports, err := env.ing.FetchAll("MATCH (a)-[r:IMPORTS]->(b) RETURN b", nil)
	if err != nil {
		t.Fatalf("imports: %v", err)
	}
	if len(imports) != 1 {
		t.Errorf("imports = %v", imports)
	}
	if summary.CallsLinked != 1 {
		t.Errorf("CallsLinked = %d", summary.CallsLinked)
	}
}

func TestRerunWithOneChangedFileParsesOnlyIt(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.py", "from b import bar\n\ndef foo():\n    return bar()\n")
	env.write(t, "b.py", "def bar():\n    return 1\n")

	if _, err := env.pipeline(t).Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	funcsBefore := env.count(t, "MATCH (n:Function) RETURN count(n) AS c")
	callsBefore, _ := env.ing.FetchAll("MATCH (a)-[r:CALLS]->(b) RETURN r", nil)

	// Change only b.py; its declarations keep the same names.
	env.write(t, "b.py", "def bar():\n    return 2\n")

	summary, err := env.pipeline(t).Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if summary.Parsed != 1 {
		t.Errorf("Parsed = %d, want 1 (only the changed file)", summary.Parsed)
	}
	if summary.FromCache != 1 {
		t.Errorf("FromCache = %d, want 1", summary.FromCache)
	}

	if got := env.count(t, "MATCH (n:Function) RETURN count(n) AS c"); got != funcsBefore {
		t.Errorf("function count changed on re-index: %d -> %d", funcsBefore, got)
	}
	callsAfter, _ := env.ing.FetchAll("MATCH (a)-[r:CALLS]->(b) RETURN r", nil)
	if len(callsAfter) != len(callsBefore) {
		t.Errorf("call edges duplicated: %d -> %d", len(callsBefore), len(callsAfter))
	}
}

func TestNoopRerunParsesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.py", "def solo():\n    pass\n")

	if _, err := env.pipeline(t).Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	summary, err := env.pipeline(t).Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if summary.Parsed != 0 || summary.FromCache != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestFolderChainContainsFiles(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "src/core/util.py", "def helper():\n    pass\n")

	if _, err := env.pipeline(t).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := env.count(t, "MATCH (n:Folder) RETURN count(n) AS c"); got != 2 {
		t.Errorf("folders = %d, want 2 (src, src/core)", got)
	}
	contains, err := env.ing.FetchAll("MATCH (a)-[r:CONTAINS]->(b) RETURN r", nil)
	if err != nil {
		t.Fatalf("contains: %v", err)
	}
	// Project->src, src->src/core, src/core->File, File->Module, Module->Function
	if len(contains) != 5 {
		t.Errorf("CONTAINS edges = %d, want 5", len(contains))
	}
}

func TestInheritanceProducesInheritsEdge(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "base.py", "class Animal:\n    pass\n")
	env.write(t, "dog.py", "from base import Animal\n\nclass Dog(Animal):\n    pass\n")

	if _, err := env.pipeline(t).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	edges, err := env.ing.FetchAll("MATCH (a)-[r:INHERITS]->(b) RETURN a, b", nil)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("INHERITS edges = %v", edges)
	}
	sub := nodeProp(t, edges[0], "a", "qualified_name")
	base := nodeProp(t, edges[0], "b", "qualified_name")
	if sub != "proj.dog.Dog" || base != "proj.base.Animal" {
		t.Errorf("edge = %v -> %v", sub, base)
	}
}

func TestProjectNameFromPath(t *testing.T) {
	cases := map[string]string{
		"/home/dev/myrepo": "home-dev-myrepo",
		"/":                "root",
		"relative/path":    "relative-path",
	}
	for in, want := range cases {
		if got := ProjectNameFromPath(in); got != want {
			t.Errorf("ProjectNameFromPath(%q) = %q, want %q", in, got, want)
		}
	}
}
