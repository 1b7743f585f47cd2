//
//  Copyright © Manetu Inc. All rights reserved.
//

package types

import (
	"context"
	"sort"

	"github.com/manetu/dataguard/pkg/core/condition"
)

// Outcome is the security outcome of a decision.
type Outcome string

// Outcomes.  There is no third outcome; failures to decide are errors.
const (
	Allow Outcome = "ALLOW"
	Deny  Outcome = "DENY"
)

// State is a step of the decision state machine.
type State int

// Decision states, in order.
const (
	Collecting State = iota
	EvaluatingPrincipal
	EvaluatingConditions
	Decided
)

func (s State) String() string {
	switch s {
	case Collecting:
		return "COLLECTING"
	case EvaluatingPrincipal:
		return "EVALUATING_PRINCIPAL"
	case EvaluatingConditions:
		return "EVALUATING_CONDITIONS"
	case Decided:
		return "DECIDED"
	}
	return "UNKNOWN"
}

// MarshalText renders the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Decision is the answer to an AccessRequest.  It is built fresh for every request.
type Decision struct {
	ID               string                          `json:"id"`
	Outcome          Outcome                         `json:"outcome"`
	AppliedPolicyIDs []string                        `json:"appliedPolicyIds"`
	RowFilter        *condition.Filter               `json:"rowFilter,omitempty"`
	ColumnMasks      map[string][]condition.MaskSpec `json:"columnMasks,omitempty"`
	SnapshotVersion  uint64                          `json:"snapshotVersion"`
	State            State                           `json:"state"`
	// RowMatch is set when the request carried a row context and the outcome is ALLOW: it
	// reports whether that row passes RowFilter.
	RowMatch *bool `json:"rowMatch,omitempty"`
}

// Allowed reports whether the outcome is ALLOW.
func (d *Decision) Allowed() bool {
	return d != nil && d.Outcome == Allow
}

// RowVisible reports whether the row passes the decision's row filter.  A denied decision
// hides every row.
func (d *Decision) RowVisible(ctx context.Context, row map[string]interface{}) bool {
	if !d.Allowed() {
		return false
	}
	return d.RowFilter.Evaluate(ctx, row)
}

// MaskRow returns a copy of row with the decision's column masks applied.
func (d *Decision) MaskRow(row map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(row))
	for k, v := range row {
		if specs, ok := d.ColumnMasks[k]; ok {
			v = condition.ApplyMasks(specs, v)
		}
		out[k] = v
	}
	return out
}

// MaskedColumns lists the columns with masks, sorted.
func (d *Decision) MaskedColumns() []string {
	cols := make([]string, 0, len(d.ColumnMasks))
	for c := range d.ColumnMasks {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}
