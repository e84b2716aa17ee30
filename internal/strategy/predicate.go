// Package strategy compiles and evaluates the entry/exit predicate
// sources attached to a strategy. Evaluation is tri-state: true, false,
// or unknown, where unknown is an explicit error instead of a null.
package strategy

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// View resolves metric fields by name for one (symbol, day). The second
// return is false when the field has no usable value.
type View interface {
	Value(name string) (float64, bool)
}

// Predicate is a compiled boolean expression over metric fields.
//
// Grammar:
//
//	expr   = and { "or" and }
//	and    = unit { "and" unit }
//	unit   = comparison | "(" expr ")"
//	comparison = term op term
//	term   = field | number
//	op     = ">" | ">=" | "<" | "<=" | "==" | "!="
type Predicate struct {
	source string
	root   node
}

// Compile parses a predicate source. A strategy whose source fails to
// compile evaluates as unknown for every symbol and day.
func Compile(source string) (*Predicate, error) {
	tokens, err := tokenize(source)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", source, err)
	}
	p := &parser{tokens: tokens}
	root, err := p.parseExpr()
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", source, err)
	}
	if !p.done() {
		return nil, fmt.Errorf("compile %q: unexpected token %q", source, p.peek())
	}
	return &Predicate{source: source, root: root}, nil
}

// Source returns the original predicate text.
func (p *Predicate) Source() string {
	return p.source
}

// Evaluate resolves the predicate against a metric view. An unresolvable
// field makes the result unknown, reported as a non-nil error.
func (p *Predicate) Evaluate(view View) (bool, error) {
	return p.root.eval(view)
}

type node interface {
	eval(View) (bool, error)
}

type boolNode struct {
	op          string // "and" or "or"
	left, right node
}

func (n boolNode) eval(view View) (bool, error) {
	left, err := n.left.eval(view)
	if err != nil {
		return false, err
	}
	right, err := n.right.eval(view)
	if err != nil {
		return false, err
	}
	if n.op == "and" {
		return left && right, nil
	}
	return left || right, nil
}

type cmpNode struct {
	op          string
	left, right term
}

func (n cmpNode) eval(view View) (bool, error) {
	left, err := n.left.resolve(view)
	if err != nil {
		return false, err
	}
	right, err := n.right.resolve(view)
	if err != nil {
		return false, err
	}
	if math.IsNaN(left) || math.IsNaN(right) {
		return false, fmt.Errorf("comparison %s %s %s has no value", n.left, n.op, n.right)
	}
	switch n.op {
	case ">":
		return left > right, nil
	case ">=":
		return left >= right, nil
	case "<":
		return left < right, nil
	case "<=":
		return left <= right, nil
	case "==":
		return left == right, nil
	case "!=":
		return left != right, nil
	}
	return false, fmt.Errorf("unsupported operator %q", n.op)
}

type term struct {
	field   string
	literal float64
}

func (t term) resolve(view View) (float64, error) {
	if t.field == "" {
		return t.literal, nil
	}
	value, ok := view.Value(t.field)
	if !ok {
		return 0, fmt.Errorf("field %q has no value", t.field)
	}
	return value, nil
}

func (t term) String() string {
	if t.field != "" {
		return t.field
	}
	return strconv.FormatFloat(t.literal, 'g', -1, 64)
}

type parser struct {
	tokens []string
	pos    int
}

func (p *parser) parseExpr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek() == "or" {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = boolNode{op: "or", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnit()
	if err != nil {
		return nil, err
	}
	for p.peek() == "and" {
		p.next()
		right, err := p.parseUnit()
		if err != nil {
			return nil, err
		}
		left = boolNode{op: "and", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnit() (node, error) {
	if p.peek() == "(" {
		p.next()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.peek() != ")" {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.next()
		return expr, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	op := p.peek()
	switch op {
	case ">", ">=", "<", "<=", "==", "!=":
		p.next()
	default:
		return nil, fmt.Errorf("expected comparison operator, got %q", op)
	}
	right, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	return cmpNode{op: op, left: left, right: right}, nil
}

func (p *parser) parseTerm() (term, error) {
	tok := p.peek()
	if tok == "" {
		return term{}, fmt.Errorf("unexpected end of expression")
	}
	p.next()
	if value, err := strconv.ParseFloat(tok, 64); err == nil {
		return term{literal: value}, nil
	}
	if !isField(tok) {
		return term{}, fmt.Errorf("invalid term %q", tok)
	}
	return term{field: tok}, nil
}

func (p *parser) peek() string {
	if p.pos >= len(p.tokens) {
		return ""
	}
	return p.tokens[p.pos]
}

func (p *parser) next() {
	p.pos++
}

func (p *parser) done() bool {
	return p.pos >= len(p.tokens)
}

func tokenize(source string) ([]string, error) {
	var tokens []string
	runes := []rune(source)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(' || r == ')':
			tokens = append(tokens, string(r))
			i++
		case r == '>' || r == '<' || r == '=' || r == '!':
			op := string(r)
			if i+1 < len(runes) && runes[i+1] == '=' {
				op += "="
				i++
			}
			if op == "=" || op == "!" {
				return nil, fmt.Errorf("invalid operator %q", op)
			}
			tokens = append(tokens, op)
			i++
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' || r == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) ||
				runes[j] == '.' || runes[j] == '-' || runes[j] == '_') {
				j++
			}
			tokens = append(tokens, strings.ToLower(string(runes[i:j])))
			i = j
		default:
			return nil, fmt.Errorf("invalid character %q", string(r))
		}
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty expression")
	}
	return tokens, nil
}

func isField(tok string) bool {
	if tok == "" || tok == "and" || tok == "or" {
		return false
	}
	if !unicode.IsLetter(rune(tok[0])) {
		return false
	}
	return true
}
