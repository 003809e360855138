package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// edgesBatchSize keeps each multi-row INSERT under the 999 bind-var limit
// (5 cols x 150 = 750 vars).
const edgesBatchSize = 150

// MergeEdges applies merge semantics to a batch of edges: new
// (source_id, target_id, type) triples are created, existing ones get their
// properties overlaid. Returns the number of edges actually created.
func (s *Store) MergeEdges(edges []*Edge) (created int64, err error) {
	for i := 0; i < len(edges); i += edgesBatchSize {
		end := i + edgesBatchSize
		if end > len(edges) {
			end = len(edges)
		}
		n, err := s.mergeEdgeChunk(edges[i:end])
		if err != nil {
			return created, err
		}
		created += n
	}
	return created, nil
}

func (s *Store) mergeEdgeChunk(batch []*Edge) (int64, error) {
	var sb strings.Builder
	sb.WriteString(`INSERT OR IGNORE INTO edges (project, source_id, target_id, type, properties) VALUES `)
	args := make([]any, 0, len(batch)*5)
	for i, e := range batch {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString("(?,?,?,?,?)")
		args = append(args, e.Project, e.SourceID, e.TargetID, e.Type, marshalProps(e.Properties))
	}
	res, err := s.q.Exec(sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("merge edges: %w", err)
	}
	created, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	for _, e := range batch {
		if len(e.Properties) == 0 {
			continue
		}
		_, err := s.q.Exec(
			`UPDATE edges SET properties=json_patch(properties, ?) WHERE source_id=? AND target_id=? AND type=?`,
			marshalProps(e.Properties), e.SourceID, e.TargetID, e.Type)
		if err != nil {
			return created, fmt.Errorf("merge edge props: %w", err)
		}
	}
	return created, nil
}

// AllEdges returns every edge; project "" means all projects.
func (s *Store) AllEdges(project string) ([]*Edge, error) {
	query := `SELECT id, project, source_id, target_id, type, properties FROM edges`
	var args []any
	if project != "" {
		query += " WHERE project=?"
		args = append(args, project)
	}
	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("all edges: %w", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// FindEdgesByType returns all edges of a given type for a project.
func (s *Store) FindEdgesByType(project, edgeType string) ([]*Edge, error) {
	rows, err := s.q.Query(`SELECT id, project, source_id, target_id, type, properties
		FROM edges WHERE project=? AND type=?`, project, edgeType)
	if err != nil {
		return nil, fmt.Errorf("find edges by type: %w", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// CountEdges returns the number of edges; project "" means all projects.
func (s *Store) CountEdges(project string) (int, error) {
	query := "SELECT COUNT(*) FROM edges"
	var args []any
	if project != "" {
		query += " WHERE project=?"
		args = append(args, project)
	}
	var count int
	err := s.q.QueryRow(query, args...).Scan(&count)
	return count, err
}

// DeleteEdgesByProject deletes all edges for a project.
func (s *Store) DeleteEdgesByProject(project string) error {
	_, err := s.q.Exec("DELETE FROM edges WHERE project=?", project)
	return err
}

func scanEdges(rows *sql.Rows) ([]*Edge, error) {
	var result []*Edge
	for rows.Next() {
		var e Edge
		var props string
		if err := rows.Scan(&e.ID, &e.Project, &e.SourceID, &e.TargetID, &e.Type, &props); err != nil {
			return nil, err
		}
		e.Properties = unmarshalProps(props)
		result = append(result, &e)
	}
	return result, rows.Err()
}
