package cypher

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/codeatlas-dev/codeatlas/internal/store"
)

// Summary reports what a write statement actually changed.
type Summary struct {
	NodesCreated         int64
	RelationshipsCreated int64
}

// Result is the outcome of executing one statement.
type Result struct {
	Records []map[string]any
	Summary Summary
}

// Executor runs parsed statements against the SQLite store.
type Executor struct {
	store *store.Store
}

// NewExecutor returns an executor bound to the given store.
func NewExecutor(s *store.Store) *Executor {
	return &Executor{store: s}
}

// Execute dispatches a statement to the read, write or delete path.
func (e *Executor) Execute(st *Statement, params map[string]any) (*Result, error) {
	switch {
	case st.Merge != nil:
		return e.executeWrite(st, params)
	case st.Delete != nil:
		return e.executeDelete(st, params)
	default:
		return e.executeRead(st, params)
	}
}

// eval resolves an Expr against the current row and the statement params.
func eval(ex Expr, row map[string]any, params map[string]any) any {
	switch {
	case ex.Param != "":
		return params[ex.Param]
	case ex.IsRow:
		if ex.RowField == "" {
			return row
		}
		return row[ex.RowField]
	default:
		return ex.Literal
	}
}

func toString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func toPropMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case nil:
		return map[string]any{}
	default:
		return map[string]any{}
	}
}

// unwindRows materializes the UNWIND parameter as a row list. A statement
// without UNWIND executes once with an empty row.
func unwindRows(st *Statement, params map[string]any) ([]map[string]any, error) {
	if st.Unwind == nil {
		return []map[string]any{{}}, nil
	}
	val, ok := params[st.Unwind.Param]
	if !ok {
		return nil, fmt.Errorf("missing parameter $%s", st.Unwind.Param)
	}
	switch list := val.(type) {
	case []map[string]any:
		return list, nil
	case []any:
		rows := make([]map[string]any, 0, len(list))
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("UNWIND $%s: element is %T, want map", st.Unwind.Param, item)
			}
			rows = append(rows, m)
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("UNWIND $%s: parameter is %T, want list", st.Unwind.Param, val)
	}
}

// --- write path ---

func (e *Executor) executeWrite(st *Statement, params map[string]any) (*Result, error) {
	rows, err := unwindRows(st, params)
	if err != nil {
		return nil, err
	}
	elems := st.Merge.Pattern.Elements
	switch len(elems) {
	case 1:
		return e.mergeNodes(st, elems[0].(*NodePattern), rows, params)
	case 3:
		return e.mergeRelationships(st, elems, rows, params)
	default:
		return nil, fmt.Errorf("unsupported MERGE pattern with %d elements", len(elems))
	}
}

// setFor collects the SET overlays bound to one variable.
func setFor(st *Statement, variable string, row, params map[string]any) map[string]any {
	out := map[string]any{}
	for _, s := range st.Sets {
		if s.Variable != variable {
			continue
		}
		for k, v := range toPropMap(eval(s.Value, row, params)) {
			out[k] = v
		}
	}
	return out
}

// mergeKeyProp returns the property that identifies the merge target. The
// project tag rides alongside and is not a key.
func mergeKeyProp(props map[string]Expr) (string, error) {
	var key string
	for name := range props {
		if name == "project" {
			continue
		}
		if key != "" {
			return "", fmt.Errorf("MERGE pattern has multiple key properties (%s, %s)", key, name)
		}
		key = name
	}
	if key == "" {
		return "", fmt.Errorf("MERGE pattern has no key property")
	}
	return key, nil
}

func projectOf(props map[string]Expr, row, params map[string]any) string {
	if ex, ok := props["project"]; ok {
		return toString(eval(ex, row, params))
	}
	return toString(params["project"])
}

func (e *Executor) mergeNodes(st *Statement, pat *NodePattern, rows []map[string]any, params map[string]any) (*Result, error) {
	if pat.Label == "" {
		return nil, fmt.Errorf("MERGE node pattern requires a label")
	}
	keyProp, err := mergeKeyProp(pat.Props)
	if err != nil {
		return nil, err
	}

	nodes := make([]*store.Node, 0, len(rows))
	projects := map[string]bool{}
	for _, row := range rows {
		keyVal := toString(eval(pat.Props[keyProp], row, params))
		if keyVal == "" {
			continue
		}
		project := projectOf(pat.Props, row, params)
		props := setFor(st, pat.Variable, row, params)
		props[keyProp] = keyVal
		if project != "" {
			props["project"] = project
		}
		projects[project] = true
		nodes = append(nodes, &store.Node{
			Project:    project,
			Label:      pat.Label,
			MergeKey:   keyVal,
			Properties: props,
		})
	}

	var res Result
	err = e.store.WithTransaction(func(tx *store.Store) error {
		for p := range projects {
			if p == "" {
				continue
			}
			if err := tx.UpsertProject(p, ""); err != nil {
				return err
			}
		}
		created, err := tx.MergeNodes(nodes)
		if err != nil {
			return err
		}
		res.Summary.NodesCreated = created
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("merge nodes: %w", err)
	}
	return &res, nil
}

// endpointSpec is one side of a relationship merge, resolved from the MATCH
// clause that bound the variable.
type endpointSpec struct {
	label   string
	keyProp string
	keyExpr Expr
	props   map[string]Expr
}

func (e *Executor) endpointFor(st *Statement, variable string) (*endpointSpec, error) {
	for _, m := range st.Matches {
		if len(m.Pattern.Elements) != 1 {
			continue
		}
		np, ok := m.Pattern.Elements[0].(*NodePattern)
		if !ok || np.Variable != variable {
			continue
		}
		keyProp, err := mergeKeyProp(np.Props)
		if err != nil {
			return nil, fmt.Errorf("endpoint %s: %w", variable, err)
		}
		return &endpointSpec{label: np.Label, keyProp: keyProp, keyExpr: np.Props[keyProp], props: np.Props}, nil
	}
	return nil, fmt.Errorf("MERGE references unbound variable %q", variable)
}

func (e *Executor) mergeRelationships(st *Statement, elems []PatternElement, rows []map[string]any, params map[string]any) (*Result, error) {
	fromPat, ok1 := elems[0].(*NodePattern)
	rel, ok2 := elems[1].(*RelPattern)
	toPat, ok3 := elems[2].(*NodePattern)
	if !ok1 || !ok2 || !ok3 || rel.Type == "" {
		return nil, fmt.Errorf("unsupported MERGE relationship pattern")
	}

	from, err := e.endpointFor(st, fromPat.Variable)
	if err != nil {
		return nil, err
	}
	to, err := e.endpointFor(st, toPat.Variable)
	if err != nil {
		return nil, err
	}
	if rel.Direction == "inbound" {
		from, to = to, from
	}

	type pending struct {
		project string
		fromKey string
		toKey   string
		props   map[string]any
	}
	var work []pending
	fromKeys := map[string][]string{} // project -> keys
	toKeys := map[string][]string{}
	for _, row := range rows {
		fk := toString(eval(from.keyExpr, row, params))
		tk := toString(eval(to.keyExpr, row, params))
		if fk == "" || tk == "" {
			continue
		}
		project := projectOf(from.props, row, params)
		work = append(work, pending{project: project, fromKey: fk, toKey: tk, props: setFor(st, rel.Variable, row, params)})
		fromKeys[project] = append(fromKeys[project], fk)
		toKeys[project] = append(toKeys[project], tk)
	}

	var res Result
	err = e.store.WithTransaction(func(tx *store.Store) error {
		fromIDs := map[string]map[string]int64{}
		toIDs := map[string]map[string]int64{}
		for project, keys := range fromKeys {
			ids, err := tx.FindNodeIDsByKeys(project, from.label, keys)
			if err != nil {
				return err
			}
			fromIDs[project] = ids
		}
		for project, keys := range toKeys {
			ids, err := tx.FindNodeIDsByKeys(project, to.label, keys)
			if err != nil {
				return err
			}
			toIDs[project] = ids
		}

		var edges []*store.Edge
		for _, w := range work {
			srcID, okSrc := fromIDs[w.project][w.fromKey]
			tgtID, okTgt := toIDs[w.project][w.toKey]
			if !okSrc || !okTgt {
				// Missing endpoint: the row is skipped and shows up as a
				// created-count shortfall at the caller.
				continue
			}
			edges = append(edges, &store.Edge{
				Project:    w.project,
				SourceID:   srcID,
				TargetID:   tgtID,
				Type:       rel.Type,
				Properties: w.props,
			})
		}
		created, err := tx.MergeEdges(edges)
		if err != nil {
			return err
		}
		res.Summary.RelationshipsCreated = created
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("merge relationships: %w", err)
	}
	return &res, nil
}

// --- delete path ---

func (e *Executor) executeDelete(st *Statement, params map[string]any) (*Result, error) {
	if len(st.Matches) != 1 || len(st.Matches[0].Pattern.Elements) != 1 {
		return nil, fmt.Errorf("DELETE requires a single node MATCH")
	}
	pat, ok := st.Matches[0].Pattern.Elements[0].(*NodePattern)
	if !ok || pat.Variable != st.Delete.Variable {
		return nil, fmt.Errorf("DELETE variable %q is not bound by MATCH", st.Delete.Variable)
	}

	if projExpr, ok := pat.Props["project"]; ok {
		project := toString(eval(projExpr, map[string]any{}, params))
		if project == "" {
			return nil, fmt.Errorf("DELETE: empty project")
		}
		if err := e.store.DeleteProject(project); err != nil {
			return nil, fmt.Errorf("delete project: %w", err)
		}
		return &Result{}, nil
	}
	if pat.Label == "" && len(pat.Props) == 0 {
		if err := e.store.DeleteAllProjects(); err != nil {
			return nil, fmt.Errorf("delete all: %w", err)
		}
		return &Result{}, nil
	}
	return nil, fmt.Errorf("unsupported DELETE pattern")
}

// --- read path ---

// binding maps pattern variables to nodes/edges for one result row.
type binding map[string]any

func (e *Executor) executeRead(st *Statement, params map[string]any) (*Result, error) {
	if st.Return == nil {
		return nil, fmt.Errorf("read statement requires RETURN")
	}
	if len(st.Matches) != 1 {
		return nil, fmt.Errorf("read statement requires exactly one MATCH")
	}

	elems := st.Matches[0].Pattern.Elements
	var bindings []binding
	var err error
	switch len(elems) {
	case 1:
		bindings, err = e.bindNodes(elems[0].(*NodePattern), params)
	case 3:
		bindings, err = e.bindPath(elems, params)
	default:
		return nil, fmt.Errorf("unsupported MATCH pattern with %d elements", len(elems))
	}
	if err != nil {
		return nil, err
	}

	if st.Where != nil {
		bindings = filterBindings(bindings, st.Where, params)
	}
	return buildResult(bindings, st.Return)
}

// nodeFilters evaluates a pattern's inline props into (project, filters).
func nodeFilters(pat *NodePattern, params map[string]any) (string, map[string]any) {
	project := ""
	filters := map[string]any{}
	for name, ex := range pat.Props {
		v := eval(ex, map[string]any{}, params)
		if name == "project" {
			project = toString(v)
			continue
		}
		filters[name] = v
	}
	return project, filters
}

func (e *Executor) bindNodes(pat *NodePattern, params map[string]any) ([]binding, error) {
	project, filters := nodeFilters(pat, params)
	nodes, err := e.store.FindNodes(project, pat.Label, filters)
	if err != nil {
		return nil, err
	}
	out := make([]binding, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, binding{pat.Variable: n})
	}
	return out, nil
}

func (e *Executor) bindPath(elems []PatternElement, params map[string]any) ([]binding, error) {
	aPat := elems[0].(*NodePattern)
	rel := elems[1].(*RelPattern)
	bPat := elems[2].(*NodePattern)
	if rel.Direction == "inbound" {
		aPat, bPat = bPat, aPat
	}

	aProject, aFilters := nodeFilters(aPat, params)
	aNodes, err := e.store.FindNodes(aProject, aPat.Label, aFilters)
	if err != nil {
		return nil, err
	}
	bProject, bFilters := nodeFilters(bPat, params)
	bNodes, err := e.store.FindNodes(bProject, bPat.Label, bFilters)
	if err != nil {
		return nil, err
	}
	aByID := make(map[int64]*store.Node, len(aNodes))
	for _, n := range aNodes {
		aByID[n.ID] = n
	}
	bByID := make(map[int64]*store.Node, len(bNodes))
	for _, n := range bNodes {
		bByID[n.ID] = n
	}

	edges, err := e.store.AllEdges(aProject)
	if err != nil {
		return nil, err
	}
	var out []binding
	for _, edge := range edges {
		if rel.Type != "" && edge.Type != rel.Type {
			continue
		}
		src, okSrc := aByID[edge.SourceID]
		tgt, okTgt := bByID[edge.TargetID]
		if okSrc && okTgt {
			b := binding{aPat.Variable: src, bPat.Variable: tgt}
			if rel.Variable != "" {
				b[rel.Variable] = edge
			}
			out = append(out, b)
		}
		if rel.Direction == "any" {
			// Also try the reverse orientation.
			src2, okSrc2 := bByID[edge.SourceID]
			tgt2, okTgt2 := aByID[edge.TargetID]
			if okSrc2 && okTgt2 {
				b := binding{aPat.Variable: tgt2, bPat.Variable: src2}
				if rel.Variable != "" {
					b[rel.Variable] = edge
				}
				out = append(out, b)
			}
		}
	}
	return out, nil
}

func filterBindings(bindings []binding, where *WhereClause, params map[string]any) []binding {
	var out []binding
	for _, b := range bindings {
		if evalWhere(b, where, params) {
			out = append(out, b)
		}
	}
	return out
}

func evalWhere(b binding, where *WhereClause, params map[string]any) bool {
	for _, cond := range where.Conditions {
		match := evalCondition(b, cond, params)
		if where.Operator == "OR" && match {
			return true
		}
		if where.Operator != "OR" && !match {
			return false
		}
	}
	return where.Operator != "OR"
}

func evalCondition(b binding, cond Condition, params map[string]any) bool {
	entity, ok := b[cond.Variable]
	if !ok {
		return false
	}
	actual := propOf(entity, cond.Property)
	expected := eval(cond.Value, map[string]any{}, params)

	switch cond.Operator {
	case "=":
		return toString(actual) == toString(expected)
	case "CONTAINS":
		return strings.Contains(toString(actual), toString(expected))
	case "STARTS WITH":
		return strings.HasPrefix(toString(actual), toString(expected))
	case ">", "<", ">=", "<=":
		a, okA := toFloat(actual)
		x, okX := toFloat(expected)
		if !okA || !okX {
			return false
		}
		switch cond.Operator {
		case ">":
			return a > x
		case "<":
			return a < x
		case ">=":
			return a >= x
		default:
			return a <= x
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// propOf reads a property from a bound node or edge.
func propOf(entity any, prop string) any {
	switch v := entity.(type) {
	case *store.Node:
		switch prop {
		case "project":
			return v.Project
		case "label":
			return v.Label
		}
		return v.Properties[prop]
	case *store.Edge:
		switch prop {
		case "project":
			return v.Project
		case "type":
			return v.Type
		}
		return v.Properties[prop]
	}
	return nil
}

func entityToMap(entity any) map[string]any {
	switch v := entity.(type) {
	case *store.Node:
		return map[string]any{
			"id":         v.ID,
			"label":      v.Label,
			"project":    v.Project,
			"properties": v.Properties,
		}
	case *store.Edge:
		return map[string]any{
			"id":         v.ID,
			"type":       v.Type,
			"project":    v.Project,
			"source_id":  v.SourceID,
			"target_id":  v.TargetID,
			"properties": v.Properties,
		}
	}
	return nil
}

func buildResult(bindings []binding, ret *ReturnClause) (*Result, error) {
	// COUNT aggregates over all bindings into a single record.
	for _, item := range ret.Items {
		if item.Func == "COUNT" {
			name := item.Alias
			if name == "" {
				name = "count(" + item.Variable + ")"
			}
			return &Result{Records: []map[string]any{{name: len(bindings)}}}, nil
		}
	}

	records := make([]map[string]any, 0, len(bindings))
	for _, b := range bindings {
		rec := map[string]any{}
		for _, item := range ret.Items {
			entity, ok := b[item.Variable]
			if !ok {
				return nil, fmt.Errorf("RETURN references unbound variable %q", item.Variable)
			}
			name := item.Alias
			if name == "" {
				name = item.Variable
				if item.Property != "" {
					name = item.Variable + "." + item.Property
				}
			}
			if item.Property == "" {
				rec[name] = entityToMap(entity)
			} else {
				rec[name] = propOf(entity, item.Property)
			}
		}
		records = append(records, rec)
	}

	if ret.Distinct {
		records = distinctRecords(records)
	}
	if ret.OrderBy != "" {
		sortRecords(records, ret)
	}
	if ret.Limit > 0 && len(records) > ret.Limit {
		records = records[:ret.Limit]
	}
	return &Result{Records: records}, nil
}

func distinctRecords(records []map[string]any) []map[string]any {
	seen := map[string]bool{}
	var out []map[string]any
	for _, r := range records {
		key, err := json.Marshal(r)
		if err != nil {
			out = append(out, r)
			continue
		}
		if seen[string(key)] {
			continue
		}
		seen[string(key)] = true
		out = append(out, r)
	}
	return out
}

func sortRecords(records []map[string]any, ret *ReturnClause) {
	// ORDER BY matches either a record key directly or var.prop form.
	key := ret.OrderBy
	valueOf := func(r map[string]any) any {
		if v, ok := r[key]; ok {
			return v
		}
		// var.prop where the record holds the whole entity under var
		if i := strings.IndexByte(key, '.'); i > 0 {
			if ent, ok := r[key[:i]].(map[string]any); ok {
				if props, ok := ent["properties"].(map[string]any); ok {
					if v, ok := props[key[i+1:]]; ok {
						return v
					}
				}
				return ent[key[i+1:]]
			}
			if v, ok := r[key]; ok {
				return v
			}
		}
		return nil
	}
	sort.SliceStable(records, func(i, j int) bool {
		a, b := valueOf(records[i]), valueOf(records[j])
		af, aok := toFloat(a)
		bf, bok := toFloat(b)
		var less bool
		if aok && bok {
			less = af < bf
		} else {
			less = toString(a) < toString(b)
		}
		if ret.OrderDir == "DESC" {
			return !less
		}
		return less
	})
}
