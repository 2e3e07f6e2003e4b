package rule

import "fmt"

type nodeKind int

const (
	nodeAnd nodeKind = iota
	nodeOr
	nodeNot
	nodeBool
	nodeLabel
)

// node is a tagged-variant AST node. Which fields are meaningful
// depends on kind: left/right for and/or, left for not, value for
// bool literals, arg for the label() predicate.
type node struct {
	kind  nodeKind
	left  *node
	right *node
	value bool
	arg   string
}

func (n *node) eval(has func(string) bool) (bool, error) {
	switch n.kind {
	case nodeAnd:
		left, err := n.left.eval(has)
		if err != nil {
			return false, err
		}
		if !left {
			return false, nil
		}
		return n.right.eval(has)
	case nodeOr:
		left, err := n.left.eval(has)
		if err != nil {
			return false, err
		}
		if left {
			return true, nil
		}
		return n.right.eval(has)
	case nodeNot:
		v, err := n.left.eval(has)
		if err != nil {
			return false, err
		}
		return !v, nil
	case nodeBool:
		return n.value, nil
	case nodeLabel:
		return has(n.arg), nil
	default:
		return false, fmt.Errorf("corrupt expression node kind %d", n.kind)
	}
}

// Grammar (lowest to highest precedence):
//
//	expr    := andExpr { "or" andExpr }
//	andExpr := unary { "and" unary }
//	unary   := "not" unary | primary
//	primary := "(" expr ")" | "true" | "false" | "label" "(" arg ")"
type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	tok := p.next()
	if tok.kind != kind {
		return token{}, fmt.Errorf("expected %s at offset %d, got %q", what, tok.pos, tok.text)
	}
	return tok, nil
}

func (p *parser) parseExpr() (*node, error) {
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
		left = &node{kind: nodeOr, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (*node, error) {
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
		left = &node{kind: nodeAnd, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (*node, error) {
	if p.peek().kind == tokNot {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &node{kind: nodeNot, left: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (*node, error) {
	tok := p.next()
	switch tok.kind {
	case tokLParen:
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return inner, nil

	case tokTrue:
		return &node{kind: nodeBool, value: true}, nil

	case tokFalse:
		return &node{kind: nodeBool, value: false}, nil

	case tokLabel:
		if _, err := p.expect(tokLParen, "("); err != nil {
			return nil, err
		}
		arg := p.next()
		if arg.kind != tokString && arg.kind != tokIdent {
			return nil, fmt.Errorf("expected label id at offset %d, got %q", arg.pos, arg.text)
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return &node{kind: nodeLabel, arg: arg.text}, nil

	default:
		return nil, fmt.Errorf("unexpected %q at offset %d", tok.text, tok.pos)
	}
}
