//
//  Copyright © Manetu Inc. All rights reserved.
//

package condition

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	regoPackage = "dataguard.rowfilter"
	regoQuery   = "data." + regoPackage + ".allow"
)

// renderRego emits one Rego rule per node of the tree.  The root rule feeds 'allow', which
// defaults to false so that anything undefined denies the row.
func renderRego(root Node) string {
	r := &renderer{}
	top := r.node(root)

	var sb strings.Builder
	fmt.Fprintf(&sb, "package %s\n\n", regoPackage)
	sb.WriteString("default allow := false\n\n")
	fmt.Fprintf(&sb, "allow if {\n\t%s\n}\n", top)
	for _, rule := range r.rules {
		sb.WriteString("\n")
		sb.WriteString(rule)
	}
	return sb.String()
}

type renderer struct {
	rules []string
	next  int
}

func (r *renderer) name() string {
	n := fmt.Sprintf("n%d", r.next)
	r.next++
	return n
}

func (r *renderer) node(n Node) string {
	name := r.name()

	switch v := n.(type) {
	case *Comparison:
		r.rules = append(r.rules, fmt.Sprintf("%s if {\n\tinput.row[%s] %s %s\n}\n", name, quote(v.Attribute), v.Op, regoLiteral(v.Value)))

	case *And:
		left := r.node(v.Left)
		right := r.node(v.Right)
		r.rules = append(r.rules, fmt.Sprintf("%s if {\n\t%s\n\t%s\n}\n", name, left, right))

	case *Or:
		left := r.node(v.Left)
		right := r.node(v.Right)
		r.rules = append(r.rules,
			fmt.Sprintf("%s if {\n\t%s\n}\n", name, left),
			fmt.Sprintf("%s if {\n\t%s\n}\n", name, right))

	case *Not:
		operand := r.node(v.Operand)
		r.rules = append(r.rules, fmt.Sprintf("%s if {\n\tnot %s\n}\n", name, operand))
	}

	return name
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func regoLiteral(l Literal) string {
	if l.Kind == KindString {
		return quote(l.Str)
	}
	return l.String()
}
