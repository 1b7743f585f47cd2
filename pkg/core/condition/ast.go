//
//  Copyright © Manetu Inc. All rights reserved.
//

package condition

import (
	"fmt"
	"strconv"
)

// Op is a comparison operator.
type Op string

// Supported comparison operators.
const (
	OpEq Op = "=="
	OpNe Op = "!="
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
)

func (o Op) ordering() bool {
	return o == OpLt || o == OpLe || o == OpGt || o == OpGe
}

// Kind is the type of a predicate literal.
type Kind int

// Literal kinds.
const (
	KindInt Kind = iota
	KindString
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "integer"
	case KindString:
		return "string"
	case KindBool:
		return "boolean"
	}
	return "unknown"
}

// Literal is the right-hand side of a comparison.
type Literal struct {
	Kind Kind
	Int  int64
	Str  string
	Bool bool
}

func (l Literal) String() string {
	switch l.Kind {
	case KindInt:
		return strconv.FormatInt(l.Int, 10)
	case KindBool:
		return strconv.FormatBool(l.Bool)
	}
	return strconv.Quote(l.Str)
}

// Node is a node of a parsed predicate.
type Node interface {
	String() string
}

// Comparison compares a row attribute with a literal.
type Comparison struct {
	Attribute string
	Op        Op
	Value     Literal
}

func (c *Comparison) String() string {
	return fmt.Sprintf("%s %s %s", c.Attribute, c.Op, c.Value)
}

// And is the conjunction of two nodes.
type And struct {
	Left, Right Node
}

func (a *And) String() string {
	return fmt.Sprintf("(%s AND %s)", a.Left, a.Right)
}

// Or is the disjunction of two nodes.
type Or struct {
	Left, Right Node
}

func (o *Or) String() string {
	return fmt.Sprintf("(%s OR %s)", o.Left, o.Right)
}

// Not negates a node.
type Not struct {
	Operand Node
}

func (n *Not) String() string {
	return fmt.Sprintf("NOT %s", n.Operand)
}

// comparisons returns every comparison under n, left to right.
func comparisons(n Node) []*Comparison {
	switch v := n.(type) {
	case *Comparison:
		return []*Comparison{v}
	case *And:
		return append(comparisons(v.Left), comparisons(v.Right)...)
	case *Or:
		return append(comparisons(v.Left), comparisons(v.Right)...)
	case *Not:
		return comparisons(v.Operand)
	}
	return nil
}
