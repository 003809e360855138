package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// Formula-derived batch size: SQLite has a 999 bind variable limit.
const numNodeCols = 4
const nodesBatchSize = 999 / numNodeCols

// MergeNodes applies merge semantics to a batch of nodes sharing one label:
// rows whose (project, label, merge_key) is new are created, existing rows
// get their properties overlaid. Returns the number of rows actually
// created, which callers compare against the submitted count.
func (s *Store) MergeNodes(nodes []*Node) (created int64, err error) {
	for i := 0; i < len(nodes); i += nodesBatchSize {
		end := i + nodesBatchSize
		if end > len(nodes) {
			end = len(nodes)
		}
		n, err := s.mergeNodeChunk(nodes[i:end])
		if err != nil {
			return created, err
		}
		created += n
	}
	return created, nil
}

func (s *Store) mergeNodeChunk(batch []*Node) (int64, error) {
	// INSERT OR IGNORE first so RowsAffected counts genuine creations,
	// then a second pass overlays properties on pre-existing rows.
	var sb strings.Builder
	sb.WriteString(`INSERT OR IGNORE INTO nodes (project, label, merge_key, properties) VALUES `)
	args := make([]any, 0, len(batch)*numNodeCols)
	for i, n := range batch {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString("(?,?,?,?)")
		args = append(args, n.Project, n.Label, n.MergeKey, marshalProps(n.Properties))
	}
	res, err := s.q.Exec(sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("merge nodes: %w", err)
	}
	created, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	for _, n := range batch {
		_, err := s.q.Exec(
			`UPDATE nodes SET properties=json_patch(properties, ?) WHERE project=? AND label=? AND merge_key=?`,
			marshalProps(n.Properties), n.Project, n.Label, n.MergeKey)
		if err != nil {
			return created, fmt.Errorf("merge node props: %w", err)
		}
	}
	return created, nil
}

// FindNodeIDsByKeys resolves merge keys to row IDs for one (project, label).
// Keys with no matching node are absent from the result.
func (s *Store) FindNodeIDsByKeys(project, label string, keys []string) (map[string]int64, error) {
	result := make(map[string]int64, len(keys))
	// 2 vars for project+label, batch the IN clause under the 999 limit
	const maxPerQuery = 997
	for i := 0; i < len(keys); i += maxPerQuery {
		end := i + maxPerQuery
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[i:end]

		placeholders := make([]string, len(chunk))
		args := make([]any, 0, len(chunk)+2)
		args = append(args, project, label)
		for j, k := range chunk {
			placeholders[j] = "?"
			args = append(args, k)
		}
		query := fmt.Sprintf("SELECT merge_key, id FROM nodes WHERE project=? AND label=? AND merge_key IN (%s)",
			strings.Join(placeholders, ","))

		if err := func() error {
			rows, err := s.q.Query(query, args...)
			if err != nil {
				return fmt.Errorf("resolve node ids: %w", err)
			}
			defer rows.Close()
			for rows.Next() {
				var key string
				var id int64
				if err := rows.Scan(&key, &id); err != nil {
					return err
				}
				result[key] = id
			}
			return rows.Err()
		}(); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// FindNodeByKey returns the node for one merge key, or nil when absent.
func (s *Store) FindNodeByKey(project, label, key string) (*Node, error) {
	row := s.q.QueryRow(`SELECT id, project, label, merge_key, properties
		FROM nodes WHERE project=? AND label=? AND merge_key=?`, project, label, key)
	return scanNode(row)
}

// FindNodes returns nodes filtered by project, optional label, and optional
// property equality filters evaluated with json_extract.
func (s *Store) FindNodes(project, label string, propFilters map[string]any) ([]*Node, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, project, label, merge_key, properties FROM nodes WHERE 1=1`)
	var args []any
	if project != "" {
		sb.WriteString(" AND project=?")
		args = append(args, project)
	}
	if label != "" {
		sb.WriteString(" AND label=?")
		args = append(args, label)
	}
	for prop, val := range propFilters {
		sb.WriteString(" AND json_extract(properties, ?)=?")
		args = append(args, "$."+prop, val)
	}
	rows, err := s.q.Query(sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("find nodes: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// CountNodes counts nodes matching project, label and property filters.
func (s *Store) CountNodes(project, label string, propFilters map[string]any) (int, error) {
	nodes, err := s.FindNodes(project, label, propFilters)
	if err != nil {
		return 0, err
	}
	return len(nodes), nil
}

// DeleteNodesByProject deletes all nodes for a project; edges go with them
// via the FK cascade.
func (s *Store) DeleteNodesByProject(project string) error {
	_, err := s.q.Exec("DELETE FROM nodes WHERE project=?", project)
	return err
}

// DeleteAllNodes wipes every node and, through the cascade, every edge.
func (s *Store) DeleteAllNodes() error {
	_, err := s.q.Exec("DELETE FROM nodes")
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(row scanner) (*Node, error) {
	var n Node
	var props string
	err := row.Scan(&n.ID, &n.Project, &n.Label, &n.MergeKey, &props)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	n.Properties = unmarshalProps(props)
	return &n, nil
}

func scanNodes(rows *sql.Rows) ([]*Node, error) {
	var result []*Node
	for rows.Next() {
		var n Node
		var props string
		if err := rows.Scan(&n.ID, &n.Project, &n.Label, &n.MergeKey, &props); err != nil {
			return nil, err
		}
		n.Properties = unmarshalProps(props)
		result = append(result, &n)
	}
	return result, rows.Err()
}
