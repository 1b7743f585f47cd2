//
//  Copyright © Manetu Inc. All rights reserved.
//

package condition

import (
	"context"
	"strings"
)

// Filter is the conjunction of the row filters that apply to a principal.  The zero value
// passes every row.
type Filter struct {
	Predicates []*Predicate
}

// NewFilter combines predicates with AND.
func NewFilter(predicates ...*Predicate) *Filter {
	return &Filter{Predicates: predicates}
}

// Empty reports whether the filter has no predicates.
func (f *Filter) Empty() bool {
	return f == nil || len(f.Predicates) == 0
}

// Evaluate reports whether row is visible.  Every predicate must pass; a nil filter passes.
func (f *Filter) Evaluate(ctx context.Context, row map[string]interface{}) bool {
	if f == nil {
		return true
	}
	for _, p := range f.Predicates {
		if !p.Evaluate(ctx, row) {
			return false
		}
	}
	return true
}

// Apply returns the rows that pass the filter, preserving order.
func (f *Filter) Apply(ctx context.Context, rows []map[string]interface{}) []map[string]interface{} {
	if f.Empty() {
		return rows
	}
	visible := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		if f.Evaluate(ctx, row) {
			visible = append(visible, row)
		}
	}
	return visible
}

func (f *Filter) String() string {
	if f.Empty() {
		return ""
	}
	parts := make([]string, len(f.Predicates))
	for i, p := range f.Predicates {
		parts[i] = "(" + p.String() + ")"
	}
	return strings.Join(parts, " AND ")
}

// MarshalText renders the filter as its combined expression.
func (f *Filter) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}
