// Package graph translates extracted entities and relationships into
// idempotent, batched writes against a Cypher driver. Writes buffer in
// memory and flush as one UNWIND ... MERGE per label or relationship
// pattern, so re-indexing an unchanged repository creates nothing new.
package graph

import (
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/codeatlas-dev/codeatlas/internal/cypher"
)

// DefaultBatchSize is the buffer threshold that triggers an auto-flush.
const DefaultBatchSize = 500

// diagnosticSampleSize bounds the endpoint re-queries after a created-count
// shortfall.
const diagnosticSampleSize = 3

// EndpointSpec identifies one side of a relationship by label and the value
// of that label's unique-key property.
type EndpointSpec struct {
	Label string
	Value string
}

// relPattern groups buffered relationships that can share one MERGE.
type relPattern struct {
	FromLabel string
	FromKey   string
	Type      string
	ToLabel   string
	ToKey     string
}

type pendingRel struct {
	from    EndpointSpec
	relType string
	to      EndpointSpec
	props   map[string]any
}

// Stats accumulates over the lifetime of one ingestor.
type Stats struct {
	NodesFlushed int
	RelsFlushed  int
	NodesDropped int
	RelsDropped  int
	NodesCreated int64
	RelsCreated  int64
	Shortfalls   int
}

// Ingestor buffers graph writes for one project. It is owned by the
// orchestrator goroutine and is not safe for concurrent use.
type Ingestor struct {
	driver    cypher.Driver
	project   string
	batchSize int

	uniqueKeys map[string]string // label -> unique-key property
	nodes      map[string][]map[string]any
	nodeCount  int
	rels       []pendingRel

	stats Stats
}

// NewIngestor builds an ingestor bound to a driver and project. batchSize
// <= 0 selects the default.
func NewIngestor(driver cypher.Driver, project string, batchSize int) *Ingestor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	ing := &Ingestor{
		driver:     driver,
		project:    project,
		batchSize:  batchSize,
		uniqueKeys: make(map[string]string),
		nodes:      make(map[string][]map[string]any),
	}
	// Labels the pipeline emits out of the box.
	ing.RegisterUniqueKey("Project", "name")
	ing.RegisterUniqueKey("Folder", "path")
	ing.RegisterUniqueKey("File", "path")
	ing.RegisterUniqueKey("Module", "qualified_name")
	ing.RegisterUniqueKey("Class", "qualified_name")
	ing.RegisterUniqueKey("Function", "qualified_name")
	return ing
}

// RegisterUniqueKey declares the property that identifies nodes of a label.
// A label without a registered key cannot be flushed.
func (ing *Ingestor) RegisterUniqueKey(label, property string) {
	ing.uniqueKeys[label] = property
}

// Stats returns a snapshot of the counters.
func (ing *Ingestor) Stats() Stats {
	return ing.stats
}

// EnsureNodeBatch buffers one node write. The project tag is applied here;
// Folder and Package nodes also derive folder_path/folder_name from their
// path property. Crossing the batch threshold flushes synchronously.
func (ing *Ingestor) EnsureNodeBatch(label string, props map[string]any) error {
	if props == nil {
		props = map[string]any{}
	}
	props["project"] = ing.project

	if label == "Folder" || label == "Package" {
		if p, ok := props["path"].(string); ok {
			norm := path.Clean(strings.ReplaceAll(p, "\\", "/"))
			props["folder_path"] = norm
			props["folder_name"] = path.Base(norm)
		}
	}

	ing.nodes[label] = append(ing.nodes[label], props)
	ing.nodeCount++
	if ing.nodeCount >= ing.batchSize {
		return ing.FlushNodes()
	}
	return nil
}

// EnsureRelationshipBatch buffers one relationship write between two
// endpoint specs. Crossing the batch threshold flushes nodes first so
// endpoints exist, then relationships.
func (ing *Ingestor) EnsureRelationshipBatch(from EndpointSpec, relType string, to EndpointSpec, props map[string]any) error {
	ing.rels = append(ing.rels, pendingRel{from: from, relType: relType, to: to, props: props})
	if len(ing.rels) >= ing.batchSize {
		if err := ing.FlushNodes(); err != nil {
			return err
		}
		return ing.FlushRelationships()
	}
	return nil
}

// Flush writes out everything still buffered, nodes before relationships.
func (ing *Ingestor) Flush() error {
	if err := ing.FlushNodes(); err != nil {
		return err
	}
	return ing.FlushRelationships()
}

// FlushNodes groups buffered nodes by label and issues one batched
// UNWIND ... MERGE per label. Nodes missing their label's unique-key
// property are dropped with a warning, not an error.
func (ing *Ingestor) FlushNodes() error {
	for label, buffered := range ing.nodes {
		if len(buffered) == 0 {
			continue
		}
		keyProp, ok := ing.uniqueKeys[label]
		if !ok {
			slog.Warn("graph.flush.no_unique_key", "label", label, "dropped", len(buffered))
			ing.stats.NodesDropped += len(buffered)
			continue
		}

		batch := make([]map[string]any, 0, len(buffered))
		for _, props := range buffered {
			keyVal, ok := props[keyProp].(string)
			if !ok || keyVal == "" {
				slog.Warn("graph.flush.missing_key", "label", label, "key", keyProp)
				ing.stats.NodesDropped++
				continue
			}
			batch = append(batch, map[string]any{
				"key":     keyVal,
				"project": ing.project,
				"props":   props,
			})
		}
		if len(batch) == 0 {
			continue
		}

		query := fmt.Sprintf(
			"UNWIND $batch AS row MERGE (n:%s {%s: row.key, project: row.project}) SET n += row.props",
			label, keyProp)
		res, err := ing.driver.Run(query, map[string]any{"batch": batch})
		if err != nil {
			if isConstraintViolation(err) {
				slog.Debug("graph.flush.constraint_noop", "label", label)
				continue
			}
			return fmt.Errorf("flush nodes %s: %w", label, err)
		}
		ing.stats.NodesFlushed += len(batch)
		ing.stats.NodesCreated += res.Summary.NodesCreated
	}
	ing.nodes = make(map[string][]map[string]any)
	ing.nodeCount = 0
	return nil
}

// FlushRelationships groups buffered relationships by pattern and issues
// one batched merge per pattern. A created-count shortfall triggers a
// bounded endpoint diagnostic, never an error.
func (ing *Ingestor) FlushRelationships() error {
	groups := make(map[relPattern][]pendingRel)
	var order []relPattern
	for _, r := range ing.rels {
		fromKey, ok1 := ing.uniqueKeys[r.from.Label]
		toKey, ok2 := ing.uniqueKeys[r.to.Label]
		if !ok1 || !ok2 {
			slog.Warn("graph.rel.no_unique_key", "from", r.from.Label, "to", r.to.Label)
			ing.stats.RelsDropped++
			continue
		}
		p := relPattern{FromLabel: r.from.Label, FromKey: fromKey, Type: r.relType, ToLabel: r.to.Label, ToKey: toKey}
		if _, seen := groups[p]; !seen {
			order = append(order, p)
		}
		groups[p] = append(groups[p], r)
	}
	ing.rels = nil

	for _, pattern := range order {
		if err := ing.flushRelPattern(pattern, groups[pattern]); err != nil {
			return err
		}
	}
	return nil
}

func (ing *Ingestor) flushRelPattern(p relPattern, rels []pendingRel) error {
	batch := make([]map[string]any, 0, len(rels))
	for _, r := range rels {
		props := r.props
		if props == nil {
			props = map[string]any{}
		}
		props["project"] = ing.project
		batch = append(batch, map[string]any{
			"from_value": r.from.Value,
			"to_value":   r.to.Value,
			"project":    ing.project,
			"props":      props,
		})
	}

	query := fmt.Sprintf(`UNWIND $batch AS row
		MATCH (a:%s {%s: row.from_value, project: row.project})
		MATCH (b:%s {%s: row.to_value, project: row.project})
		MERGE (a)-[r:%s]->(b)
		SET r += row.props`,
		p.FromLabel, p.FromKey, p.ToLabel, p.ToKey, p.Type)

	res, err := ing.driver.Run(query, map[string]any{"batch": batch})
	if err != nil {
		if isConstraintViolation(err) {
			slog.Debug("graph.rel.constraint_noop", "type", p.Type)
			return nil
		}
		return fmt.Errorf("flush relationships %s: %w", p.Type, err)
	}
	ing.stats.RelsFlushed += len(batch)
	ing.stats.RelsCreated += res.Summary.RelationshipsCreated

	// Re-merging existing edges legitimately reports zero created, so a
	// shortfall is a monitoring signal, not a fault.
	if res.Summary.RelationshipsCreated < int64(len(batch)) {
		ing.stats.Shortfalls++
		ing.diagnoseShortfall(p, rels, res.Summary.RelationshipsCreated)
	}
	return nil
}

// diagnoseShortfall samples a few submitted relationships and re-queries
// each endpoint's existence, logging which side was missing.
func (ing *Ingestor) diagnoseShortfall(p relPattern, rels []pendingRel, created int64) {
	slog.Warn("graph.rel.shortfall",
		"type", p.Type, "submitted", len(rels), "created", created)

	sampled := 0
	for _, r := range rels {
		if sampled >= diagnosticSampleSize {
			break
		}
		fromOK := ing.endpointExists(p.FromLabel, p.FromKey, r.from.Value)
		toOK := ing.endpointExists(p.ToLabel, p.ToKey, r.to.Value)
		if fromOK && toOK {
			continue
		}
		sampled++
		slog.Warn("graph.rel.endpoint_missing",
			"type", p.Type,
			"from", r.from.Value, "from_exists", fromOK,
			"to", r.to.Value, "to_exists", toOK)
	}
}

func (ing *Ingestor) endpointExists(label, keyProp, value string) bool {
	query := fmt.Sprintf("MATCH (n:%s {%s: $value, project: $project}) RETURN count(n) AS c", label, keyProp)
	res, err := ing.driver.Run(query, map[string]any{"value": value, "project": ing.project})
	if err != nil || len(res.Records) == 0 {
		return false
	}
	c, _ := res.Records[0]["c"].(int)
	return c > 0
}

// FetchAll runs a read statement and returns its records.
func (ing *Ingestor) FetchAll(query string, params map[string]any) ([]map[string]any, error) {
	res, err := ing.driver.Run(query, params)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

// ExecuteWrite runs an arbitrary write statement.
func (ing *Ingestor) ExecuteWrite(query string, params map[string]any) (*cypher.Result, error) {
	res, err := ing.driver.Run(query, params)
	if err != nil && isConstraintViolation(err) {
		return &cypher.Result{}, nil
	}
	return res, err
}

// ExportGraph returns the whole graph as a JSON-serializable structure.
func (ing *Ingestor) ExportGraph() (map[string]any, error) {
	nodes, err := ing.FetchAll("MATCH (n) RETURN n", nil)
	if err != nil {
		return nil, fmt.Errorf("export nodes: %w", err)
	}
	rels, err := ing.FetchAll("MATCH (a)-[r]->(b) RETURN a, r, b", nil)
	if err != nil {
		return nil, fmt.Errorf("export relationships: %w", err)
	}
	return map[string]any{
		"nodes":         nodes,
		"relationships": rels,
		"metadata": map[string]any{
			"node_count":         len(nodes),
			"relationship_count": len(rels),
			"exported_at":        time.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

// CleanDatabase removes every node and relationship across all projects.
func (ing *Ingestor) CleanDatabase() error {
	_, err := ing.driver.Run("MATCH (n) DETACH DELETE n", nil)
	return err
}

// DeleteProject removes one project's nodes and relationships.
func (ing *Ingestor) DeleteProject(name string) error {
	_, err := ing.driver.Run("MATCH (n {project: $name}) DETACH DELETE n", map[string]any{"name": name})
	return err
}

// ListProjects returns the distinct project tags present in the graph.
func (ing *Ingestor) ListProjects() ([]string, error) {
	records, err := ing.FetchAll("MATCH (n) RETURN DISTINCT n.project AS project ORDER BY project", nil)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, r := range records {
		if name, ok := r["project"].(string); ok && name != "" {
			out = append(out, name)
		}
	}
	return out, nil
}

// isConstraintViolation reports whether an error is an "already exists"
// condition, which merge semantics treat as a no-op.
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "ConstraintValidationFailed")
}
