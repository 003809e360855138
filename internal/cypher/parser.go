package cypher

import (
	"fmt"
	"strconv"
)

// Parser converts a token stream into an AST.
type Parser struct {
	tokens []Token
	pos    int
}

// Parse tokenizes and parses a Cypher statement into an AST.
func Parse(input string) (*Statement, error) {
	tokens, err := Lex(input)
	if err != nil {
		return nil, fmt.Errorf("lex: %w", err)
	}
	p := &Parser{tokens: tokens}
	return p.parseStatement()
}

func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokEOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) advance() Token {
	t := p.peek()
	p.pos++
	return t
}

func (p *Parser) expect(typ TokenType) (Token, error) {
	t := p.advance()
	if t.Type != typ {
		return t, fmt.Errorf("expected token %d, got %d (%q) at pos %d", typ, t.Type, t.Value, t.Pos)
	}
	return t, nil
}

func (p *Parser) parseStatement() (*Statement, error) {
	st := &Statement{}

	if p.peek().Type == TokUnwind {
		u, err := p.parseUnwind()
		if err != nil {
			return nil, err
		}
		st.Unwind = u
	}

	for p.peek().Type == TokMatch {
		m, err := p.parseMatch()
		if err != nil {
			return nil, err
		}
		st.Matches = append(st.Matches, m)
	}

	if p.peek().Type == TokMerge {
		p.advance()
		pat, err := p.parsePattern()
		if err != nil {
			return nil, fmt.Errorf("merge pattern: %w", err)
		}
		st.Merge = &MergeClause{Pattern: pat}
	}

	if st.Merge == nil && len(st.Matches) == 0 && st.Return == nil && p.peek().Type != TokReturn {
		return nil, fmt.Errorf("expected MATCH, MERGE or RETURN at pos %d, got %q", p.peek().Pos, p.peek().Value)
	}

	for p.peek().Type == TokSet {
		s, err := p.parseSet()
		if err != nil {
			return nil, err
		}
		st.Sets = append(st.Sets, s)
	}

	if p.peek().Type == TokWhere {
		w, err := p.parseWhere()
		if err != nil {
			return nil, err
		}
		st.Where = w
	}

	if p.peek().Type == TokDetach || p.peek().Type == TokDelete {
		d, err := p.parseDelete()
		if err != nil {
			return nil, err
		}
		st.Delete = d
	}

	if p.peek().Type == TokReturn {
		r, err := p.parseReturn()
		if err != nil {
			return nil, err
		}
		st.Return = r
	}

	if t := p.peek(); t.Type != TokEOF {
		return nil, fmt.Errorf("unexpected trailing token %q at pos %d", t.Value, t.Pos)
	}
	return st, nil
}

func (p *Parser) parseUnwind() (*UnwindClause, error) {
	p.advance() // consume UNWIND
	paramTok, err := p.expect(TokParam)
	if err != nil {
		return nil, fmt.Errorf("expected parameter after UNWIND: %w", err)
	}
	if _, err := p.expect(TokAs); err != nil {
		return nil, fmt.Errorf("expected AS after UNWIND parameter: %w", err)
	}
	varTok, err := p.expect(TokIdent)
	if err != nil {
		return nil, fmt.Errorf("expected row variable after AS: %w", err)
	}
	return &UnwindClause{Param: paramTok.Value, Variable: varTok.Value}, nil
}

func (p *Parser) parseMatch() (*MatchClause, error) {
	p.advance() // consume MATCH
	pat, err := p.parsePattern()
	if err != nil {
		return nil, fmt.Errorf("match pattern: %w", err)
	}
	return &MatchClause{Pattern: pat}, nil
}

func (p *Parser) parsePattern() (*Pattern, error) {
	pat := &Pattern{}

	node, err := p.parseNodePattern()
	if err != nil {
		return nil, err
	}
	pat.Elements = append(pat.Elements, node)

	for p.peek().Type == TokDash || p.peek().Type == TokLT {
		rel, nextNode, err := p.parseRelAndNode()
		if err != nil {
			return nil, err
		}
		pat.Elements = append(pat.Elements, rel, nextNode)
	}

	return pat, nil
}

// parseRelAndNode parses -[...]->(node), <-[...]-(node) or -[...]-(node).
func (p *Parser) parseRelAndNode() (*RelPattern, *NodePattern, error) {
	rel := &RelPattern{}

	leadingArrow := false
	if p.peek().Type == TokLT {
		leadingArrow = true
		p.advance()
	}
	if _, err := p.expect(TokDash); err != nil {
		return nil, nil, fmt.Errorf("expected '-' in relationship: %w", err)
	}

	if p.peek().Type == TokLBracket {
		p.advance()
		if p.peek().Type == TokIdent {
			rel.Variable = p.advance().Value
		}
		if p.peek().Type == TokColon {
			p.advance()
			t := p.advance()
			if t.Type != TokIdent {
				return nil, nil, fmt.Errorf("expected relationship type, got %q at pos %d", t.Value, t.Pos)
			}
			rel.Type = t.Value
		}
		if _, err := p.expect(TokRBracket); err != nil {
			return nil, nil, fmt.Errorf("expected ']' to close relationship: %w", err)
		}
	}

	if _, err := p.expect(TokDash); err != nil {
		return nil, nil, fmt.Errorf("expected '-' after relationship: %w", err)
	}

	trailingArrow := false
	if p.peek().Type == TokGT {
		trailingArrow = true
		p.advance()
	}

	switch {
	case !leadingArrow && trailingArrow:
		rel.Direction = "outbound"
	case leadingArrow && !trailingArrow:
		rel.Direction = "inbound"
	default:
		rel.Direction = "any"
	}

	node, err := p.parseNodePattern()
	if err != nil {
		return nil, nil, err
	}
	return rel, node, nil
}

func (p *Parser) parseNodePattern() (*NodePattern, error) {
	if _, err := p.expect(TokLParen); err != nil {
		return nil, fmt.Errorf("expected '(' for node pattern: %w", err)
	}

	node := &NodePattern{}

	if p.peek().Type == TokIdent {
		node.Variable = p.advance().Value
	}

	if p.peek().Type == TokColon {
		p.advance()
		t := p.advance()
		if t.Type != TokIdent {
			return nil, fmt.Errorf("expected label name after ':', got %q at pos %d", t.Value, t.Pos)
		}
		node.Label = t.Value
	}

	if p.peek().Type == TokLBrace {
		props, err := p.parseInlineProps()
		if err != nil {
			return nil, err
		}
		node.Props = props
	}

	if _, err := p.expect(TokRParen); err != nil {
		return nil, fmt.Errorf("expected ')' to close node pattern: %w", err)
	}
	return node, nil
}

func (p *Parser) parseInlineProps() (map[string]Expr, error) {
	p.advance() // consume {
	props := make(map[string]Expr)

	for p.peek().Type != TokRBrace {
		if len(props) > 0 {
			if _, err := p.expect(TokComma); err != nil {
				return nil, fmt.Errorf("expected ',' between properties: %w", err)
			}
		}

		keyTok := p.advance()
		if keyTok.Type != TokIdent {
			return nil, fmt.Errorf("expected property key, got %q at pos %d", keyTok.Value, keyTok.Pos)
		}
		if _, err := p.expect(TokColon); err != nil {
			return nil, fmt.Errorf("expected ':' after property key: %w", err)
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", keyTok.Value, err)
		}
		props[keyTok.Value] = val
	}

	p.advance() // consume }
	return props, nil
}

// parseExpr parses a value position: literal string/number, $param, or
// row.field.
func (p *Parser) parseExpr() (Expr, error) {
	t := p.advance()
	switch t.Type {
	case TokString:
		return Expr{Literal: t.Value}, nil
	case TokNumber:
		if n, err := strconv.Atoi(t.Value); err == nil {
			return Expr{Literal: n}, nil
		}
		f, err := strconv.ParseFloat(t.Value, 64)
		if err != nil {
			return Expr{}, fmt.Errorf("bad number %q at pos %d", t.Value, t.Pos)
		}
		return Expr{Literal: f}, nil
	case TokParam:
		return Expr{Param: t.Value}, nil
	case TokIdent:
		// row variable reference: ident or ident.field
		e := Expr{IsRow: true}
		if p.peek().Type == TokDot {
			p.advance()
			fieldTok := p.advance()
			if fieldTok.Type != TokIdent {
				return Expr{}, fmt.Errorf("expected field after '.', got %q at pos %d", fieldTok.Value, fieldTok.Pos)
			}
			e.RowField = fieldTok.Value
		}
		return e, nil
	default:
		return Expr{}, fmt.Errorf("expected value, got %q at pos %d", t.Value, t.Pos)
	}
}

func (p *Parser) parseSet() (*SetClause, error) {
	p.advance() // consume SET
	varTok, err := p.expect(TokIdent)
	if err != nil {
		return nil, fmt.Errorf("expected variable after SET: %w", err)
	}
	if _, err := p.expect(TokPlusEQ); err != nil {
		return nil, fmt.Errorf("expected '+=' in SET: %w", err)
	}
	val, err := p.parseExpr()
	if err != nil {
		return nil, fmt.Errorf("SET value: %w", err)
	}
	return &SetClause{Variable: varTok.Value, Value: val}, nil
}

func (p *Parser) parseWhere() (*WhereClause, error) {
	p.advance() // consume WHERE
	w := &WhereClause{Operator: "AND"}

	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	w.Conditions = append(w.Conditions, cond)

	for p.peek().Type == TokAnd || p.peek().Type == TokOr {
		op := p.advance()
		if op.Type == TokOr {
			w.Operator = "OR"
		}
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		w.Conditions = append(w.Conditions, cond)
	}
	return w, nil
}

func (p *Parser) parseCondition() (Condition, error) {
	c := Condition{}

	varTok := p.advance()
	if varTok.Type != TokIdent {
		return c, fmt.Errorf("expected variable in condition, got %q at pos %d", varTok.Value, varTok.Pos)
	}
	c.Variable = varTok.Value

	if _, err := p.expect(TokDot); err != nil {
		return c, fmt.Errorf("expected '.' after variable in condition: %w", err)
	}
	propTok := p.advance()
	if propTok.Type != TokIdent {
		return c, fmt.Errorf("expected property name in condition, got %q at pos %d", propTok.Value, propTok.Pos)
	}
	c.Property = propTok.Value

	op := p.advance()
	switch op.Type {
	case TokEQ:
		c.Operator = "="
	case TokGT:
		c.Operator = ">"
	case TokLT:
		c.Operator = "<"
	case TokGTE:
		c.Operator = ">="
	case TokLTE:
		c.Operator = "<="
	case TokContains:
		c.Operator = "CONTAINS"
	case TokStarts:
		if p.peek().Type != TokWith {
			return c, fmt.Errorf("expected WITH after STARTS at pos %d", p.peek().Pos)
		}
		p.advance()
		c.Operator = "STARTS WITH"
	default:
		return c, fmt.Errorf("expected comparison operator, got %q at pos %d", op.Value, op.Pos)
	}

	val, err := p.parseExpr()
	if err != nil {
		return c, fmt.Errorf("condition value: %w", err)
	}
	c.Value = val
	return c, nil
}

func (p *Parser) parseDelete() (*DeleteClause, error) {
	d := &DeleteClause{}
	if p.peek().Type == TokDetach {
		d.Detach = true
		p.advance()
	}
	if _, err := p.expect(TokDelete); err != nil {
		return nil, fmt.Errorf("expected DELETE: %w", err)
	}
	varTok, err := p.expect(TokIdent)
	if err != nil {
		return nil, fmt.Errorf("expected variable after DELETE: %w", err)
	}
	d.Variable = varTok.Value
	return d, nil
}

func (p *Parser) parseReturn() (*ReturnClause, error) {
	p.advance() // consume RETURN
	r := &ReturnClause{OrderDir: "ASC"}

	if p.peek().Type == TokDistinct {
		r.Distinct = true
		p.advance()
	}

	item, err := p.parseReturnItem()
	if err != nil {
		return nil, err
	}
	r.Items = append(r.Items, item)

	for p.peek().Type == TokComma {
		p.advance()
		item, err := p.parseReturnItem()
		if err != nil {
			return nil, err
		}
		r.Items = append(r.Items, item)
	}

	if p.peek().Type == TokOrder {
		p.advance()
		if _, err := p.expect(TokBy); err != nil {
			return nil, fmt.Errorf("expected BY after ORDER: %w", err)
		}
		orderTok := p.advance()
		if orderTok.Type != TokIdent {
			return nil, fmt.Errorf("expected field name for ORDER BY, got %q", orderTok.Value)
		}
		orderField := orderTok.Value
		if p.peek().Type == TokDot {
			p.advance()
			propTok := p.advance()
			orderField = orderField + "." + propTok.Value
		}
		r.OrderBy = orderField

		if p.peek().Type == TokAsc {
			p.advance()
		} else if p.peek().Type == TokDesc {
			r.OrderDir = "DESC"
			p.advance()
		}
	}

	if p.peek().Type == TokLimit {
		p.advance()
		numTok := p.advance()
		if numTok.Type != TokNumber {
			return nil, fmt.Errorf("expected number after LIMIT, got %q", numTok.Value)
		}
		n, _ := strconv.Atoi(numTok.Value)
		r.Limit = n
	}

	return r, nil
}

func (p *Parser) parseReturnItem() (ReturnItem, error) {
	item := ReturnItem{}

	if p.peek().Type == TokCount {
		p.advance()
		item.Func = "COUNT"
		if _, err := p.expect(TokLParen); err != nil {
			return item, fmt.Errorf("expected '(' after COUNT: %w", err)
		}
		varTok := p.advance()
		if varTok.Type != TokIdent {
			return item, fmt.Errorf("expected variable in COUNT(), got %q", varTok.Value)
		}
		item.Variable = varTok.Value
		if _, err := p.expect(TokRParen); err != nil {
			return item, fmt.Errorf("expected ')' after COUNT variable: %w", err)
		}
	} else {
		varTok := p.advance()
		if varTok.Type != TokIdent {
			return item, fmt.Errorf("expected variable in RETURN item, got %q at pos %d", varTok.Value, varTok.Pos)
		}
		item.Variable = varTok.Value

		if p.peek().Type == TokDot {
			p.advance()
			propTok := p.advance()
			if propTok.Type != TokIdent {
				return item, fmt.Errorf("expected property after '.', got %q", propTok.Value)
			}
			item.Property = propTok.Value
		}
	}

	if p.peek().Type == TokAs {
		p.advance()
		aliasTok := p.advance()
		if aliasTok.Type != TokIdent {
			return item, fmt.Errorf("expected alias after AS, got %q", aliasTok.Value)
		}
		item.Alias = aliasTok.Value
	}

	return item, nil
}
