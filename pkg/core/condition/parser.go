//
//  Copyright © Manetu Inc. All rights reserved.
//

package condition

import (
	"fmt"
	"strconv"
)

// parser is a recursive descent parser over the token stream:
//
//	expr    := or
//	or      := and ( OR and )*
//	and     := not ( AND not )*
//	not     := NOT not | primary
//	primary := "(" expr ")" | ident op literal
type parser struct {
	tokens []token
	pos    int
}

// Parse parses a row-filter expression into its syntax tree.
func Parse(expr string) (Node, error) {
	tokens, err := lex(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid predicate %q: %w", expr, err)
	}

	p := &parser{tokens: tokens}
	node, err := p.parseOr()
	if err != nil {
		return nil, fmt.Errorf("invalid predicate %q: %w", expr, err)
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, fmt.Errorf("invalid predicate %q: position %d: unexpected %s", expr, tok.pos, tok.kind)
	}

	return node, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) parseOr() (Node, error) {
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
		left = &Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &And{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Node, error) {
	if p.peek().kind == tokNot {
		p.next()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Not{Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.next()
	switch tok.kind {
	case tokLParen:
		node, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, fmt.Errorf("position %d: expected ')', found %s", closing.pos, closing.kind)
		}
		return node, nil

	case tokIdent:
		return p.parseComparison(tok)
	}

	return nil, fmt.Errorf("position %d: expected attribute or '(', found %s", tok.pos, tok.kind)
}

func (p *parser) parseComparison(attr token) (Node, error) {
	opTok := p.next()
	if opTok.kind != tokOp {
		return nil, fmt.Errorf("position %d: expected comparison operator after '%s', found %s", opTok.pos, attr.text, opTok.kind)
	}
	op := Op(opTok.text)

	litTok := p.next()
	var lit Literal
	switch litTok.kind {
	case tokInt:
		v, err := strconv.ParseInt(litTok.text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("position %d: integer out of range: %s", litTok.pos, litTok.text)
		}
		lit = Literal{Kind: KindInt, Int: v}
	case tokString:
		lit = Literal{Kind: KindString, Str: litTok.text}
	case tokTrue, tokFalse:
		lit = Literal{Kind: KindBool, Bool: litTok.kind == tokTrue}
	default:
		return nil, fmt.Errorf("position %d: expected literal after '%s %s', found %s", litTok.pos, attr.text, op, litTok.kind)
	}

	if lit.Kind == KindBool && op.ordering() {
		return nil, fmt.Errorf("position %d: operator %s is not defined for booleans", opTok.pos, op)
	}

	return &Comparison{Attribute: attr.text, Op: op, Value: lit}, nil
}
