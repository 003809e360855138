package cypher

// Statement is a parsed Cypher statement. Reads carry Matches plus Where
// and Return; writes add Unwind, Merge and Set; deletes carry Delete.
type Statement struct {
	Unwind  *UnwindClause
	Matches []*MatchClause
	Merge   *MergeClause
	Sets    []*SetClause
	Where   *WhereClause
	Delete  *DeleteClause
	Return  *ReturnClause
}

// UnwindClause binds each element of a list parameter to a row variable:
// UNWIND $batch AS row.
type UnwindClause struct {
	Param    string // parameter name without the $
	Variable string // row variable
}

// MatchClause holds one MATCH pattern.
type MatchClause struct {
	Pattern *Pattern
}

// Pattern is a sequence of alternating nodes and relationships.
type Pattern struct {
	Elements []PatternElement
}

// PatternElement is either a NodePattern or a RelPattern.
type PatternElement interface {
	patternElement()
}

// Expr is a value position in a statement: a literal, a $param reference,
// or a field of the UNWIND row variable (row.field). A field of "" selects
// the whole row or parameter value.
type Expr struct {
	Literal  any
	Param    string
	RowField string
	IsRow    bool
}

// NodePattern matches or merges a graph node.
type NodePattern struct {
	Variable string
	Label    string
	Props    map[string]Expr // inline property constraints
}

func (*NodePattern) patternElement() {}

// RelPattern matches or merges a relationship between the adjacent nodes.
type RelPattern struct {
	Variable  string
	Type      string
	Direction string // "outbound", "inbound", "any"
}

func (*RelPattern) patternElement() {}

// MergeClause merges either a node pattern or a relationship between two
// variables bound by earlier MATCH clauses.
type MergeClause struct {
	Pattern *Pattern
}

// SetClause overlays properties: SET v += <expr>.
type SetClause struct {
	Variable string
	Value    Expr
}

// WhereClause holds filter conditions joined by AND/OR.
type WhereClause struct {
	Conditions []Condition
	Operator   string // "AND" or "OR"
}

// Condition is a single property comparison.
type Condition struct {
	Variable string
	Property string
	Operator string // "=", ">", "<", ">=", "<=", "CONTAINS", "STARTS WITH"
	Value    Expr
}

// DeleteClause removes the matched nodes and their relationships.
type DeleteClause struct {
	Variable string
	Detach   bool
}

// ReturnClause specifies which data to return.
type ReturnClause struct {
	Items    []ReturnItem
	OrderBy  string
	OrderDir string // "ASC" or "DESC"
	Limit    int    // 0 means no limit
	Distinct bool
}

// ReturnItem is a single item in the RETURN clause.
type ReturnItem struct {
	Variable string
	Property string // empty = whole node/edge
	Alias    string
	Func     string // "COUNT" (optional aggregation)
}
