//
//  Copyright © Manetu Inc. All rights reserved.
//

package core

import (
	"context"

	"github.com/manetu/dataguard/pkg/core/condition"
	"github.com/mohae/deepcopy"
)

/************************************************************************************
 * EVALUATING_CONDITIONS: only reached on ALLOW.  Row filters of the allow-hit policies
 * that select the principal are ANDed; column masks are collected per column in policy
 * id order.
 *************************************************************************************/

func (e *evaluation) evaluateConditions(ctx context.Context) {
	principal := e.request.Principal

	var predicates []*condition.Predicate
	var masks map[string][]condition.MaskSpec

	for _, h := range e.allows {
		for _, rf := range h.policy.RowFilters {
			if rf.Predicate != nil && rf.Principals.Matches(principal) {
				predicates = append(predicates, rf.Predicate)
			}
		}
		for _, cm := range h.policy.ColumnMasks {
			if !cm.Principals.Matches(principal) {
				continue
			}
			if masks == nil {
				masks = make(map[string][]condition.MaskSpec)
			}
			masks[cm.Column] = append(masks[cm.Column], cm.Mask)
		}
	}

	if len(predicates) > 0 {
		e.decision.RowFilter = condition.NewFilter(predicates...)
	}
	e.decision.ColumnMasks = masks

	if e.request.RowContext != nil {
		// the filter may not observe or alter the caller's map
		row, _ := deepcopy.Copy(e.request.RowContext).(map[string]interface{})
		match := e.decision.RowFilter.Evaluate(ctx, row)
		e.decision.RowMatch = &match
	}

	logger.Debugf(agent, "evaluateConditions", "row filter '%s', masked columns %v",
		e.decision.RowFilter.String(), e.decision.MaskedColumns())
}
