//
//  Copyright © Manetu Inc. All rights reserved.
//

package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		expr     string
		expected string
	}{
		{expr: "count >= 80", expected: "count >= 80"},
		{expr: "word == 'hello'", expected: `word == "hello"`},
		{expr: `word != "it's"`, expected: `word != "it's"`},
		{expr: "active = true", expected: "active == true"},
		{expr: "delta > -5", expected: "delta > -5"},
		{expr: "a < 1 AND b > 2", expected: "(a < 1 AND b > 2)"},
		{expr: "a < 1 and b > 2 or c == 3", expected: "((a < 1 AND b > 2) OR c == 3)"},
		{expr: "a < 1 AND (b > 2 OR c == 3)", expected: "(a < 1 AND (b > 2 OR c == 3))"},
		{expr: "NOT a == 1 AND b == 2", expected: "(NOT a == 1 AND b == 2)"},
		{expr: "!(a == 1) || b <= 2 && c != 'x'", expected: `(NOT a == 1 OR (b <= 2 AND c != "x"))`},
		{expr: "not not a == 1", expected: "NOT NOT a == 1"},
		{expr: "cf1:count >= 10", expected: "cf1:count >= 10"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			node, err := Parse(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, node.String())
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		expr string
		msg  string
	}{
		{name: "empty", expr: "", msg: "expected attribute"},
		{name: "missing literal", expr: "count >=", msg: "expected literal"},
		{name: "missing operator", expr: "count 80", msg: "expected comparison operator"},
		{name: "literal first", expr: "80 <= count", msg: "expected attribute"},
		{name: "unbalanced", expr: "(a == 1", msg: "expected ')'"},
		{name: "trailing", expr: "a == 1 b", msg: "unexpected attribute"},
		{name: "single ampersand", expr: "a == 1 & b == 2", msg: "expected '&&'"},
		{name: "unterminated string", expr: "a == 'abc", msg: "unterminated string"},
		{name: "bool ordering", expr: "flag > true", msg: "not defined for booleans"},
		{name: "bad character", expr: "a == 1 ; b", msg: "unexpected character"},
		{name: "dangling and", expr: "a == 1 AND", msg: "expected attribute"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.expr)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestRenderRego(t *testing.T) {
	node, err := Parse("count >= 80 AND NOT word == 'x'")
	require.NoError(t, err)

	module := renderRego(node)
	assert.Contains(t, module, "package dataguard.rowfilter")
	assert.Contains(t, module, "default allow := false")
	assert.Contains(t, module, `input.row["count"] >= 80`)
	assert.Contains(t, module, `input.row["word"] == "x"`)
	assert.Contains(t, module, "not n")
}
