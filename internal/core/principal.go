//
//  Copyright © Manetu Inc. All rights reserved.
//

package core

import (
	"sort"

	"github.com/manetu/dataguard/pkg/core/matcher"
	"github.com/manetu/dataguard/pkg/core/types"
)

/************************************************************************************
 * EVALUATING_PRINCIPAL: turn candidates into allow and deny hits for the principal and
 * action.  Among resource candidates, allows come from the most specific group with an
 * allow hit and denies from the most specific group with a deny hit, so a narrower allow
 * never hides a broader deny.  Tag candidates always count.  Deny hits win over allow hits.
 *************************************************************************************/

func (e *evaluation) evaluatePrincipal() {
	principal := e.request.Principal

	var allowFound, denyFound bool
	for _, g := range e.resources {
		if allowFound && denyFound {
			break
		}
		allows, denies := clauseHits(g.members, principal, e.action)
		if !allowFound && len(allows) > 0 {
			logger.Debugf(agent, "evaluatePrincipal", "resource group %s governs allows: %d", g.specificity, len(allows))
			e.allows = allows
			allowFound = true
		}
		if !denyFound && len(denies) > 0 {
			logger.Debugf(agent, "evaluatePrincipal", "resource group %s governs denies: %d", g.specificity, len(denies))
			e.denies = denies
			denyFound = true
		}
	}

	allows, denies := clauseHits(e.tagged, principal, e.action)
	e.allows = sortHits(append(e.allows, allows...))
	e.denies = sortHits(append(e.denies, denies...))

	switch {
	case len(e.denies) > 0:
		e.decision.Outcome = types.Deny
		e.decision.AppliedPolicyIDs = hitIDs(e.denies)
	case len(e.allows) > 0:
		e.decision.Outcome = types.Allow
		e.decision.AppliedPolicyIDs = hitIDs(e.allows)
	default:
		logger.Debugf(agent, "evaluatePrincipal", "no policy covers %s %s on %s; default deny",
			principal.User, e.action, e.path)
	}
}

// clauseHits returns, per candidate, whether any allow or deny clause applies.  A policy may
// appear in both lists only if validation let an allow and a deny for different principals
// both match this one.
func clauseHits(candidates []candidate, principal types.Principal, action types.Action) (allows []hit, denies []hit) {
	for _, c := range candidates {
		for i := range c.policy.Deny {
			if c.policy.Deny[i].Applies(principal, action) {
				denies = append(denies, hit{candidate: c, deny: true})
				break
			}
		}
		for i := range c.policy.Allow {
			if c.policy.Allow[i].Applies(principal, action) {
				allows = append(allows, hit{candidate: c})
				break
			}
		}
	}
	return allows, denies
}

func sortHits(hits []hit) []hit {
	sort.SliceStable(hits, func(i, j int) bool {
		return matcher.CompareIDs(hits[i].policy.ID, hits[j].policy.ID) < 0
	})
	return hits
}

func hitIDs(hits []hit) []string {
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		if n := len(ids); n > 0 && ids[n-1] == h.policy.ID {
			continue
		}
		ids = append(ids, h.policy.ID)
	}
	return ids
}
