package store

import (
	"fmt"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.UpsertProject("testproj", "/tmp/testproj"); err != nil {
		t.Fatalf("UpsertProject: %v", err)
	}
	return s
}

func fn(key string, props map[string]any) *Node {
	if props == nil {
		props = map[string]any{}
	}
	props["qualified_name"] = key
	return &Node{Project: "testproj", Label: "Function", MergeKey: key, Properties: props}
}

func TestMergeNodesReportsCreatedCount(t *testing.T) {
	s := newTestStore(t)

	created, err := s.MergeNodes([]*Node{fn("p.a", nil), fn("p.b", nil)})
	if err != nil {
		t.Fatalf("MergeNodes: %v", err)
	}
	if created != 2 {
		t.Errorf("created = %d, want 2", created)
	}

	// Re-merging the same keys creates nothing.
	created, err = s.MergeNodes([]*Node{fn("p.a", nil), fn("p.b", nil), fn("p.c", nil)})
	if err != nil {
		t.Fatalf("MergeNodes: %v", err)
	}
	if created != 1 {
		t.Errorf("created on re-merge = %d, want 1", created)
	}

	count, err := s.CountNodes("testproj", "Function", nil)
	if err != nil {
		t.Fatalf("CountNodes: %v", err)
	}
	if count != 3 {
		t.Errorf("node count = %d, want 3", count)
	}
}

func TestMergeNodesOverlaysProperties(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.MergeNodes([]*Node{fn("p.a", map[string]any{"file_path": "a.py", "start_line": 1})}); err != nil {
		t.Fatalf("MergeNodes: %v", err)
	}
	if _, err := s.MergeNodes([]*Node{fn("p.a", map[string]any{"start_line": 9})}); err != nil {
		t.Fatalf("MergeNodes: %v", err)
	}

	n, err := s.FindNodeByKey("testproj", "Function", "p.a")
	if err != nil {
		t.Fatalf("FindNodeByKey: %v", err)
	}
	if n == nil {
		t.Fatalf("node missing after merge")
	}
	if n.Properties["file_path"] != "a.py" {
		t.Errorf("pre-existing property lost: %v", n.Properties)
	}
	if got, ok := n.Properties["start_line"].(float64); !ok || got != 9 {
		t.Errorf("start_line = %v, want 9", n.Properties["start_line"])
	}
}

func TestMergeEdgesIdempotent(t *testing.T) {
	s := newTestStore(t)

	ids, err := func() (map[string]int64, error) {
		if _, err := s.MergeNodes([]*Node{fn("p.foo", nil), fn("p.bar", nil)}); err != nil {
			return nil, err
		}
		return s.FindNodeIDsByKeys("testproj", "Function", []string{"p.foo", "p.bar"})
	}()
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	edge := &Edge{Project: "testproj", SourceID: ids["p.foo"], TargetID: ids["p.bar"], Type: "CALLS"}
	created, err := s.MergeEdges([]*Edge{edge})
	if err != nil {
		t.Fatalf("MergeEdges: %v", err)
	}
	if created != 1 {
		t.Errorf("created = %d, want 1", created)
	}

	created, err = s.MergeEdges([]*Edge{edge})
	if err != nil {
		t.Fatalf("MergeEdges again: %v", err)
	}
	if created != 0 {
		t.Errorf("created on re-merge = %d, want 0", created)
	}

	count, err := s.CountEdges("testproj")
	if err != nil {
		t.Fatalf("CountEdges: %v", err)
	}
	if count != 1 {
		t.Errorf("edge count = %d, want 1", count)
	}
}

func TestFindNodesPropertyFilter(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.MergeNodes([]*Node{
		fn("p.a", map[string]any{"file_path": "a.py"}),
		fn("p.b", map[string]any{"file_path": "b.py"}),
	}); err != nil {
		t.Fatalf("MergeNodes: %v", err)
	}

	nodes, err := s.FindNodes("testproj", "Function", map[string]any{"file_path": "a.py"})
	if err != nil {
		t.Fatalf("FindNodes: %v", err)
	}
	if len(nodes) != 1 || nodes[0].MergeKey != "p.a" {
		t.Errorf("FindNodes = %v", nodes)
	}
}

func TestDeleteProjectCascades(t *testing.T) {
	s := newTestStore(t)
	if err := s.UpsertProject("other", "/tmp/other"); err != nil {
		t.Fatalf("UpsertProject: %v", err)
	}

	if _, err := s.MergeNodes([]*Node{fn("p.foo", nil), fn("p.bar", nil)}); err != nil {
		t.Fatalf("MergeNodes: %v", err)
	}
	if _, err := s.MergeNodes([]*Node{{Project: "other", Label: "Function", MergeKey: "o.x"}}); err != nil {
		t.Fatalf("MergeNodes other: %v", err)
	}
	ids, err := s.FindNodeIDsByKeys("testproj", "Function", []string{"p.foo", "p.bar"})
	if err != nil {
		t.Fatalf("FindNodeIDsByKeys: %v", err)
	}
	if _, err := s.MergeEdges([]*Edge{{Project: "testproj", SourceID: ids["p.foo"], TargetID: ids["p.bar"], Type: "CALLS"}}); err != nil {
		t.Fatalf("MergeEdges: %v", err)
	}

	if err := s.DeleteProject("testproj"); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if count, _ := s.CountNodes("testproj", "", nil); count != 0 {
		t.Errorf("nodes survived project delete: %d", count)
	}
	if count, _ := s.CountEdges(""); count != 0 {
		t.Errorf("edges survived project delete: %d", count)
	}
	// The other project is untouched.
	if count, _ := s.CountNodes("other", "", nil); count != 1 {
		t.Errorf("other project damaged, nodes = %d", count)
	}
}

func TestMergeNodesLargeBatchCrossesChunkBoundary(t *testing.T) {
	s := newTestStore(t)
	var nodes []*Node
	for i := 0; i < 600; i++ {
		nodes = append(nodes, fn(fmt.Sprintf("p.mod.fn%d", i), nil))
	}
	created, err := s.MergeNodes(nodes)
	if err != nil {
		t.Fatalf("MergeNodes: %v", err)
	}
	if created != 600 {
		t.Errorf("created = %d, want 600", created)
	}
}
