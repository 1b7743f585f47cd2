//
//  Copyright © Manetu Inc. All rights reserved.
//

package condition

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokInt
	tokString
	tokTrue
	tokFalse
	tokOp
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of expression"
	case tokIdent:
		return "attribute"
	case tokInt:
		return "integer"
	case tokString:
		return "string"
	case tokTrue, tokFalse:
		return "boolean"
	case tokOp:
		return "operator"
	case tokAnd:
		return "AND"
	case tokOr:
		return "OR"
	case tokNot:
		return "NOT"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	}
	return "unknown"
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

var keywords = map[string]tokenKind{
	"and":   tokAnd,
	"or":    tokOr,
	"not":   tokNot,
	"true":  tokTrue,
	"false": tokFalse,
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r) || r == '.' || r == ':' || r == '-'
}

// lex splits a predicate into tokens.  Positions are rune offsets for error messages.
func lex(expr string) ([]token, error) {
	src := []rune(expr)
	var tokens []token

	for i := 0; i < len(src); {
		r := src[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++

		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++

		case r == '&' || r == '|':
			if i+1 >= len(src) || src[i+1] != r {
				return nil, fmt.Errorf("position %d: expected '%c%c'", i, r, r)
			}
			kind := tokAnd
			if r == '|' {
				kind = tokOr
			}
			tokens = append(tokens, token{kind: kind, text: string([]rune{r, r}), pos: i})
			i += 2

		case r == '!':
			if i+1 < len(src) && src[i+1] == '=' {
				tokens = append(tokens, token{kind: tokOp, text: "!=", pos: i})
				i += 2
			} else {
				tokens = append(tokens, token{kind: tokNot, text: "!", pos: i})
				i++
			}

		case r == '=' || r == '<' || r == '>':
			start := i
			op := string(r)
			i++
			if i < len(src) && src[i] == '=' {
				op += "="
				i++
			}
			if op == "=" {
				op = "=="
			}
			tokens = append(tokens, token{kind: tokOp, text: op, pos: start})

		case r == '\'' || r == '"':
			var sb strings.Builder
			start := i
			i++
			closed := false
			for i < len(src) {
				c := src[i]
				if c == '\\' && i+1 < len(src) {
					sb.WriteRune(src[i+1])
					i += 2
					continue
				}
				if c == r {
					closed = true
					i++
					break
				}
				sb.WriteRune(c)
				i++
			}
			if !closed {
				return nil, fmt.Errorf("position %d: unterminated string literal", start)
			}
			tokens = append(tokens, token{kind: tokString, text: sb.String(), pos: start})

		case unicode.IsDigit(r) || (r == '-' && i+1 < len(src) && unicode.IsDigit(src[i+1])):
			start := i
			i++
			for i < len(src) && unicode.IsDigit(src[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokInt, text: string(src[start:i]), pos: start})

		case isIdentStart(r):
			start := i
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			text := string(src[start:i])
			kind, ok := keywords[strings.ToLower(text)]
			if !ok {
				kind = tokIdent
			}
			tokens = append(tokens, token{kind: kind, text: text, pos: start})

		default:
			return nil, fmt.Errorf("position %d: unexpected character %q", i, r)
		}
	}

	return append(tokens, token{kind: tokEOF, pos: len(src)}), nil
}
