//
//  Copyright © Manetu Inc. All rights reserved.
//

package core

import (
	"github.com/manetu/dataguard/pkg/core/matcher"
	"github.com/manetu/dataguard/pkg/core/types"
	"github.com/manetu/dataguard/pkg/events"
	"github.com/manetu/dataguard/pkg/policydomain"
	"github.com/manetu/dataguard/pkg/policydomain/registry"
)

/* Every PolicyEngine::Evaluate call walks one request through a fixed sequence of phases:
 * COLLECTING gathers resource- and tag-anchored candidates, EVALUATING_PRINCIPAL turns them into
 * allow and deny hits, EVALUATING_CONDITIONS (ALLOW only) assembles the row filter and column
 * masks, and DECIDED freezes the result.  Each phase only reads the snapshot captured at the
 * start of the request.
 */

// candidate is a policy that may govern the request, with how it was found.
type candidate struct {
	policy *policydomain.Policy
	origin events.Origin
	tag    string
}

// group is a set of resource candidates of equal specificity.
type group struct {
	specificity matcher.Specificity
	members     []candidate
}

// hit is a candidate with a clause that covers the principal and action.
type hit struct {
	candidate
	deny bool
}

// evaluation is the per-request state.  It is never shared between requests.
type evaluation struct {
	snap      *registry.Snapshot
	request   *types.AccessRequest
	path      types.ResourcePath
	action    types.Action
	hierarchy types.Hierarchy

	resources []group
	tagged    []candidate
	tags      []string

	allows []hit
	denies []hit

	state    types.State
	decision *types.Decision
}

func newEvaluation(snap *registry.Snapshot, req *types.AccessRequest, path types.ResourcePath, action types.Action) *evaluation {
	_, h, _ := snap.Service(path.Service)
	return &evaluation{
		snap:      snap,
		request:   req,
		path:      path,
		action:    action,
		hierarchy: h,
		state:     types.Collecting,
		decision: &types.Decision{
			Outcome:          types.Deny,
			AppliedPolicyIDs: []string{},
			SnapshotVersion:  snap.Version,
		},
	}
}

// advance moves to the next state.  States are only ever entered in order.
func (e *evaluation) advance(next types.State) {
	if next <= e.state {
		logger.Warnf(agent, "advance", "ignoring transition %s -> %s", e.state, next)
		return
	}
	logger.Tracef(agent, "advance", "%s -> %s", e.state, next)
	e.state = next
	e.decision.State = next
}

// references lists every hit in the record format, denies first.
func (e *evaluation) references() []events.PolicyReference {
	refs := make([]events.PolicyReference, 0, len(e.denies)+len(e.allows))
	add := func(hits []hit, d events.Decision) {
		for _, h := range hits {
			refs = append(refs, events.PolicyReference{
				ID:       h.policy.ID,
				Origin:   h.origin,
				Tag:      h.tag,
				Decision: d,
			})
		}
	}
	add(e.denies, events.Deny)
	add(e.allows, events.Allow)
	return refs
}
