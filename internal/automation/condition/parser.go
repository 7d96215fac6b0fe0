package condition

import (
	"fmt"
	"strings"
)

// Identifiers a condition may reference. eventData takes a dotted path into
// the event payload. Any of them may be written with an "event." prefix.
const (
	FieldEventType        = "eventType"
	FieldSourceModule     = "sourceModule"
	FieldSourceRecordType = "sourceRecordType"
	FieldSourceRecordID   = "sourceRecordId"
	FieldEventData        = "eventData"
)

var scalarFields = map[string]struct{}{
	FieldEventType:        {},
	FieldSourceModule:     {},
	FieldSourceRecordType: {},
	FieldSourceRecordID:   {},
}

type node interface{ node() }

type literalNode struct{ value any }

type fieldNode struct {
	name string
	path []string
	pos  int
}

type notNode struct{ x node }

type compareNode struct {
	op          tokenKind
	left, right node
	pos         int
}

type logicalNode struct {
	op          tokenKind
	left, right node
}

func (literalNode) node() {}
func (fieldNode) node()   {}
func (notNode) node()     {}
func (compareNode) node() {}
func (logicalNode) node() {}

func (f fieldNode) String() string {
	if len(f.path) == 0 {
		return f.name
	}
	return f.name + "." + strings.Join(f.path, ".")
}

type parser struct {
	tokens []token
	pos    int
	fields []string
}

func parse(src string) (node, []string, error) {
	tokens, err := lex(src)
	if err != nil {
		return nil, nil, err
	}
	p := &parser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, nil, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("unexpected %s", describe(tok))}
	}
	return root, p.fields, nil
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = logicalNode{op: tokOr, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = logicalNode{op: tokAnd, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.peek().kind == tokNot {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{x: x}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	op := p.peek()
	if !isComparison(op.kind) {
		return left, nil
	}
	p.next()
	right, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); isComparison(tok.kind) {
		return nil, &SyntaxError{Pos: tok.pos, Msg: "comparisons cannot be chained"}
	}
	return compareNode{op: op.kind, left: left, right: right, pos: op.pos}, nil
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		return literalNode{value: tok.num}, nil
	case tokString:
		return literalNode{value: tok.text}, nil
	case tokTrue:
		return literalNode{value: true}, nil
	case tokFalse:
		return literalNode{value: false}, nil
	case tokNull:
		return literalNode{value: nil}, nil
	case tokIdent:
		return p.field(tok)
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, &SyntaxError{Pos: closing.pos, Msg: fmt.Sprintf("expected ) but found %s", describe(closing))}
		}
		return inner, nil
	default:
		return nil, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("unexpected %s", describe(tok))}
	}
}

func (p *parser) field(tok token) (node, error) {
	parts := strings.Split(tok.text, ".")
	if parts[0] == "event" {
		parts = parts[1:]
	}
	for _, part := range parts {
		if part == "" {
			return nil, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("malformed identifier %q", tok.text)}
		}
	}
	if len(parts) == 0 {
		return nil, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("unknown identifier %q", tok.text)}
	}

	name := parts[0]
	f := fieldNode{name: name, path: parts[1:], pos: tok.pos}
	switch {
	case name == FieldEventData:
		if len(f.path) == 0 {
			return nil, &SyntaxError{Pos: tok.pos, Msg: "eventData must be followed by a field path"}
		}
	case isScalarField(name):
		if len(f.path) != 0 {
			return nil, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("%s has no fields", name)}
		}
	default:
		return nil, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("unknown identifier %q", tok.text)}
	}
	p.fields = append(p.fields, f.String())
	return f, nil
}

func isScalarField(name string) bool {
	_, ok := scalarFields[name]
	return ok
}

func isComparison(kind tokenKind) bool {
	switch kind {
	case tokEq, tokNeq, tokLt, tokLte, tokGt, tokGte:
		return true
	}
	return false
}

func describe(tok token) string {
	switch tok.kind {
	case tokEOF:
		return tok.kind.String()
	case tokIdent, tokNumber:
		return fmt.Sprintf("%s %s", tok.kind, tok.text)
	case tokString:
		return fmt.Sprintf("string %q", tok.text)
	}
	return fmt.Sprintf("%q", tok.kind.String())
}
