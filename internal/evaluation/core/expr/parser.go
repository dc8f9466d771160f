package expr

import (
	"fmt"
	"sort"
	"strings"
)

// ParseError reports a malformed metric or check expression. Offset is the
// byte position in the input where parsing failed.
type ParseError struct {
	Offset   int
	Expected string
	Got      string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %d: expected %s, got %q", e.Offset, e.Expected, e.Got)
}

// Operator joins two terms of an expression.
//
// OpPlus and OpMinus combine additive fields linearly. OpTilda treats the
// right operand as a negative-valued goal: values are subtracted but squared
// values are added.
type Operator byte

const (
	OpPlus  Operator = '+'
	OpMinus Operator = '-'
	OpTilda Operator = '~'
)

// GoalSelector is a leaf of an expression, one aggregation function applied
// to a goal slice, e.g. count(session.global.exposure) or
// value(session.unit.conversion(product=p_1)).
type GoalSelector struct {
	Func       string // "count", "value" or "unique"
	UnitType   string
	AggType    string // "unit" or "global"
	Goal       string
	Dimensions map[string]string
}

// Key identifies the goal slice the selector reads, without the aggregation
// function.
func (s GoalSelector) Key() string {
	var b strings.Builder
	b.WriteString(s.UnitType)
	b.WriteByte('.')
	b.WriteString(s.AggType)
	b.WriteByte('.')
	b.WriteString(s.Goal)
	if len(s.Dimensions) > 0 {
		names := make([]string, 0, len(s.Dimensions))
		for d := range s.Dimensions {
			names = append(names, d)
		}
		sort.Strings(names)
		b.WriteByte('(')
		for i, d := range names {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(d)
			b.WriteByte('=')
			b.WriteString(s.Dimensions[d])
		}
		b.WriteByte(')')
	}
	return b.String()
}

type leafNode struct {
	sel GoalSelector
}

type binaryNode struct {
	op          Operator
	left, right node
}

func (n *leafNode) goals(out *[]GoalSelector) { *out = append(*out, n.sel) }

func (n *binaryNode) goals(out *[]GoalSelector) {
	n.left.goals(out)
	n.right.goals(out)
}

// Expression is a compiled metric expression. It is immutable after Parse
// and safe to share across concurrent evaluations.
type Expression struct {
	root node
	src  string
}

func (e *Expression) String() string { return e.src }

// Goals returns every goal selector referenced by the expression, in order
// of appearance with duplicates removed.
func (e *Expression) Goals() []GoalSelector {
	var all []GoalSelector
	e.root.goals(&all)
	seen := make(map[string]bool, len(all))
	out := all[:0]
	for _, s := range all {
		k := s.Func + "(" + s.Key() + ")"
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}

// DimensionNames returns the distinct dimension names used by any selector
// of the expression.
func (e *Expression) DimensionNames() []string {
	seen := map[string]bool{}
	var names []string
	for _, s := range e.Goals() {
		for d := range s.Dimensions {
			if !seen[d] {
				seen[d] = true
				names = append(names, d)
			}
		}
	}
	sort.Strings(names)
	return names
}

// Parse compiles an expression of terms joined left-to-right by +, - and ~.
// Each term is aggFunc(unitType.aggType.goal) with an optional dimension
// filter (name=value, ...); parenthesised groups are accepted. Whitespace is
// insignificant.
func Parse(input string) (*Expression, error) {
	p := &parser{src: input}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, p.errorf("operator or end of expression")
	}
	return &Expression{root: root, src: input}, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) errorf(expected string) *ParseError {
	got := ""
	if p.pos < len(p.src) {
		got = p.src[p.pos:]
		if len(got) > 12 {
			got = got[:12]
		}
	}
	return &ParseError{Offset: p.pos, Expected: expected, Got: got}
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) expect(c byte, what string) error {
	p.skipSpace()
	if p.peek() != c {
		return p.errorf(what)
	}
	p.pos++
	return nil
}

func isIdentChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

func isDimValueChar(c byte) bool {
	return isIdentChar(c) || c == '-' || c == '.' || c == '%' || c == '/'
}

func (p *parser) ident() (string, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && isIdentChar(p.src[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		return "", p.errorf("identifier")
	}
	return p.src[start:p.pos], nil
}

func (p *parser) dimValue() (string, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && isDimValueChar(p.src[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		return "", p.errorf("dimension value")
	}
	return p.src[start:p.pos], nil
}

// parseExpr handles the flat left-to-right operator chain.
func (p *parser) parseExpr() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		c := p.peek()
		if c != byte(OpPlus) && c != byte(OpMinus) && c != byte(OpTilda) {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: Operator(c), left: left, right: right}
	}
}

func (p *parser) parseTerm() (node, error) {
	p.skipSpace()
	if p.peek() == '(' {
		p.pos++
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(')', "closing parenthesis"); err != nil {
			return nil, err
		}
		return inner, nil
	}

	funcOffset := p.pos
	fn, err := p.ident()
	if err != nil {
		return nil, p.errorf("aggregation function")
	}
	if fn != "count" && fn != "value" && fn != "unique" {
		return nil, &ParseError{Offset: funcOffset, Expected: "one of count, value, unique", Got: fn}
	}
	if err := p.expect('(', "opening parenthesis"); err != nil {
		return nil, err
	}

	unitType, err := p.ident()
	if err != nil {
		return nil, p.errorf("unit type")
	}
	if err := p.expect('.', "dot"); err != nil {
		return nil, err
	}
	aggOffset := p.pos
	aggType, err := p.ident()
	if err != nil {
		return nil, p.errorf("aggregation type")
	}
	if aggType != "unit" && aggType != "global" {
		return nil, &ParseError{Offset: aggOffset, Expected: "one of unit, global", Got: aggType}
	}
	if err := p.expect('.', "dot"); err != nil {
		return nil, err
	}
	goal, err := p.ident()
	if err != nil {
		return nil, p.errorf("goal name")
	}

	sel := GoalSelector{Func: fn, UnitType: unitType, AggType: aggType, Goal: goal}

	p.skipSpace()
	if p.peek() == '(' {
		p.pos++
		dims, err := p.parseDimensions()
		if err != nil {
			return nil, err
		}
		sel.Dimensions = dims
	}

	if err := p.expect(')', "closing parenthesis"); err != nil {
		return nil, err
	}
	return &leafNode{sel: sel}, nil
}

func (p *parser) parseDimensions() (map[string]string, error) {
	dims := map[string]string{}
	for {
		nameOffset := p.pos
		name, err := p.ident()
		if err != nil {
			return nil, p.errorf("dimension name")
		}
		if _, dup := dims[name]; dup {
			return nil, &ParseError{Offset: nameOffset, Expected: "unique dimension name", Got: name}
		}
		if err := p.expect('=', "equals sign"); err != nil {
			return nil, err
		}
		value, err := p.dimValue()
		if err != nil {
			return nil, err
		}
		dims[name] = value

		p.skipSpace()
		if p.peek() == ',' {
			p.pos++
			continue
		}
		break
	}
	if err := p.expect(')', "closing parenthesis"); err != nil {
		return nil, err
	}
	return dims, nil
}
