package cypher

import (
	"testing"

	"github.com/codeatlas-dev/codeatlas/internal/store"
)

func newTestDriver(t *testing.T) *EmbeddedDriver {
	t.Helper()
	s, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewEmbeddedDriver(NewExecutor(s), nil)
}

func mergeFunctions(t *testing.T, d *EmbeddedDriver, batch []map[string]any) *Result {
	t.Helper()
	res, err := d.Run(`
		UNWIND $batch AS row
		MERGE (n:Function {qualified_name: row.qualified_name, project: row.project})
		SET n += row.props`,
		map[string]any{"batch": batch})
	if err != nil {
		t.Fatalf("merge functions: %v", err)
	}
	return res
}

func fnRow(qn string, props map[string]any) map[string]any {
	if props == nil {
		props = map[string]any{}
	}
	return map[string]any{"qualified_name": qn, "project": "p", "props": props}
}

func TestParseUnwindMergeSet(t *testing.T) {
	st, err := Parse(`UNWIND $batch AS row MERGE (n:Function {qualified_name: row.qualified_name}) SET n += row.props`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if st.Unwind == nil || st.Unwind.Param != "batch" || st.Unwind.Variable != "row" {
		t.Errorf("Unwind = %+v", st.Unwind)
	}
	if st.Merge == nil {
		t.Fatalf("Merge missing")
	}
	np := st.Merge.Pattern.Elements[0].(*NodePattern)
	if np.Label != "Function" || np.Variable != "n" {
		t.Errorf("merge node = %+v", np)
	}
	ex := np.Props["qualified_name"]
	if !ex.IsRow || ex.RowField != "qualified_name" {
		t.Errorf("merge key expr = %+v", ex)
	}
	if len(st.Sets) != 1 || st.Sets[0].Variable != "n" {
		t.Errorf("Sets = %+v", st.Sets)
	}
}

func TestParseRelationshipMerge(t *testing.T) {
	st, err := Parse(`
		UNWIND $batch AS row
		MATCH (a:Function {qualified_name: row.from_value, project: row.project})
		MATCH (b:Function {qualified_name: row.to_value, project: row.project})
		MERGE (a)-[r:CALLS]->(b)
		SET r += row.props`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(st.Matches) != 2 {
		t.Fatalf("Matches = %d, want 2", len(st.Matches))
	}
	rel := st.Merge.Pattern.Elements[1].(*RelPattern)
	if rel.Type != "CALLS" || rel.Direction != "outbound" || rel.Variable != "r" {
		t.Errorf("rel = %+v", rel)
	}
}

func TestParseErrors(t *testing.T) {
	bad := []string{
		"",
		"MERGE n:Function",
		"MATCH (n RETURN n",
		"UNWIND batch AS row MERGE (n:F {k: row.k})",
		"MATCH (n) RETURN",
	}
	for _, q := range bad {
		if _, err := Parse(q); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", q)
		}
	}
}

func TestMergeNodesCreatesAndIsIdempotent(t *testing.T) {
	d := newTestDriver(t)

	batch := []map[string]any{
		fnRow("p.mod.foo", map[string]any{"file_path": "mod.py"}),
		fnRow("p.mod.bar", nil),
	}
	res := mergeFunctions(t, d, batch)
	if res.Summary.NodesCreated != 2 {
		t.Errorf("NodesCreated = %d, want 2", res.Summary.NodesCreated)
	}

	res = mergeFunctions(t, d, batch)
	if res.Summary.NodesCreated != 0 {
		t.Errorf("NodesCreated on re-merge = %d, want 0", res.Summary.NodesCreated)
	}

	count, err := d.Run(`MATCH (n:Function {project: "p"}) RETURN count(n) AS c`, nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if got := count.Records[0]["c"]; got != 2 {
		t.Errorf("count = %v, want 2", got)
	}
}

func TestMergeRelationshipsSkipsMissingEndpoints(t *testing.T) {
	d := newTestDriver(t)
	mergeFunctions(t, d, []map[string]any{fnRow("p.foo", nil), fnRow("p.bar", nil)})

	res, err := d.Run(`
		UNWIND $batch AS row
		MATCH (a:Function {qualified_name: row.from_value, project: row.project})
		MATCH (b:Function {qualified_name: row.to_value, project: row.project})
		MERGE (a)-[r:CALLS]->(b)
		SET r += row.props`,
		map[string]any{"batch": []map[string]any{
			{"from_value": "p.foo", "to_value": "p.bar", "project": "p", "props": map[string]any{}},
			{"from_value": "p.foo", "to_value": "p.ghost", "project": "p", "props": map[string]any{}},
		}})
	if err != nil {
		t.Fatalf("merge rels: %v", err)
	}
	// The p.ghost endpoint does not exist, so only one edge is created.
	if res.Summary.RelationshipsCreated != 1 {
		t.Errorf("RelationshipsCreated = %d, want 1", res.Summary.RelationshipsCreated)
	}
}

func TestReadPathAndWhere(t *testing.T) {
	d := newTestDriver(t)
	mergeFunctions(t, d, []map[string]any{
		fnRow("p.mod.alpha", map[string]any{"file_path": "mod.py"}),
		fnRow("p.mod.beta", map[string]any{"file_path": "mod.py"}),
		fnRow("p.other.gamma", map[string]any{"file_path": "other.py"}),
	})

	res, err := d.Run(`MATCH (n:Function) WHERE n.qualified_name STARTS WITH "p.mod" RETURN n.qualified_name ORDER BY n.qualified_name`, nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(res.Records))
	}
	if res.Records[0]["n.qualified_name"] != "p.mod.alpha" {
		t.Errorf("first record = %v", res.Records[0])
	}
}

func TestReadRelationshipPattern(t *testing.T) {
	d := newTestDriver(t)
	mergeFunctions(t, d, []map[string]any{fnRow("p.foo", nil), fnRow("p.bar", nil)})
	if _, err := d.Run(`
		UNWIND $batch AS row
		MATCH (a:Function {qualified_name: row.from_value, project: row.project})
		MATCH (b:Function {qualified_name: row.to_value, project: row.project})
		MERGE (a)-[r:CALLS]->(b)`,
		map[string]any{"batch": []map[string]any{
			{"from_value": "p.foo", "to_value": "p.bar", "project": "p"},
		}}); err != nil {
		t.Fatalf("merge rels: %v", err)
	}

	res, err := d.Run(`MATCH (a)-[r:CALLS]->(b) RETURN a, r, b`, nil)
	if err != nil {
		t.Fatalf("read path: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(res.Records))
	}
	a := res.Records[0]["a"].(map[string]any)
	if props := a["properties"].(map[string]any); props["qualified_name"] != "p.foo" {
		t.Errorf("a = %v", a)
	}
	r := res.Records[0]["r"].(map[string]any)
	if r["type"] != "CALLS" {
		t.Errorf("r = %v", r)
	}
}

func TestDistinctProjectListing(t *testing.T) {
	d := newTestDriver(t)
	mergeFunctions(t, d, []map[string]any{fnRow("p.foo", nil), fnRow("p.bar", nil)})
	if _, err := d.Run(`
		UNWIND $batch AS row
		MERGE (n:Function {qualified_name: row.qualified_name, project: row.project})`,
		map[string]any{"batch": []map[string]any{
			{"qualified_name": "q.baz", "project": "q"},
		}}); err != nil {
		t.Fatalf("merge second project: %v", err)
	}

	res, err := d.Run(`MATCH (n) RETURN DISTINCT n.project AS project ORDER BY project`, nil)
	if err != nil {
		t.Fatalf("distinct: %v", err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("records = %v", res.Records)
	}
	if res.Records[0]["project"] != "p" || res.Records[1]["project"] != "q" {
		t.Errorf("projects = %v", res.Records)
	}
}

func TestDetachDelete(t *testing.T) {
	d := newTestDriver(t)
	mergeFunctions(t, d, []map[string]any{fnRow("p.foo", nil)})
	if _, err := d.Run(`
		UNWIND $batch AS row
		MERGE (n:Function {qualified_name: row.qualified_name, project: row.project})`,
		map[string]any{"batch": []map[string]any{
			{"qualified_name": "q.baz", "project": "q"},
		}}); err != nil {
		t.Fatalf("merge: %v", err)
	}

	// Project-scoped delete leaves other projects alone.
	if _, err := d.Run(`MATCH (n {project: $name}) DETACH DELETE n`, map[string]any{"name": "p"}); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	res, err := d.Run(`MATCH (n) RETURN count(n) AS c`, nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if res.Records[0]["c"] != 1 {
		t.Errorf("count after project delete = %v", res.Records[0]["c"])
	}

	// Unscoped delete wipes everything.
	if _, err := d.Run(`MATCH (n) DETACH DELETE n`, nil); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	res, err = d.Run(`MATCH (n) RETURN count(n) AS c`, nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if res.Records[0]["c"] != 0 {
		t.Errorf("count after clean = %v", res.Records[0]["c"])
	}
}

func TestSetOverlaysProperties(t *testing.T) {
	d := newTestDriver(t)
	mergeFunctions(t, d, []map[string]any{fnRow("p.foo", map[string]any{"file_path": "a.py", "start_line": 1})})
	mergeFunctions(t, d, []map[string]any{fnRow("p.foo", map[string]any{"end_line": 20})})

	res, err := d.Run(`MATCH (n:Function {qualified_name: "p.foo"}) RETURN n`, nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("records = %d", len(res.Records))
	}
	props := res.Records[0]["n"].(map[string]any)["properties"].(map[string]any)
	if props["file_path"] != "a.py" {
		t.Errorf("earlier property lost: %v", props)
	}
	if v, _ := props["end_line"].(float64); v != 20 {
		t.Errorf("end_line = %v, want 20", props["end_line"])
	}
}
