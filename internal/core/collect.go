//
//  Copyright © Manetu Inc. All rights reserved.
//

package core

import (
	"sort"

	"github.com/manetu/dataguard/pkg/core/matcher"
	"github.com/manetu/dataguard/pkg/events"
)

/************************************************************************************
 * COLLECTING: find every enabled policy anchored on a pattern that matches the path,
 * grouped by specificity, plus every tag-anchored policy for the tags on the path or
 * its ancestors.
 *************************************************************************************/

func (e *evaluation) collect() {
	e.collectResources()
	e.collectTags()

	logger.Debugf(agent, "collect", "%s: %d resource group(s), %d tag candidate(s) for tags %v",
		e.path, len(e.resources), len(e.tagged), e.tags)
}

func (e *evaluation) collectResources() {
	var groups []group
	for _, p := range e.snap.ResourcePolicies(e.path.Service) {
		if !matcher.Match(e.path, p.Pattern) {
			continue
		}
		s := p.Pattern.Specificity()
		c := candidate{policy: p, origin: events.OriginResource}

		placed := false
		for i := range groups {
			if groups[i].specificity.Compare(s) == 0 {
				groups[i].members = append(groups[i].members, c)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, group{specificity: s, members: []candidate{c}})
		}
	}

	// ResourcePolicies is id ordered, so members already are; only groups need sorting.
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].specificity.Compare(groups[j].specificity) > 0
	})
	e.resources = groups
}

func (e *evaluation) collectTags() {
	e.tags = e.snap.TagsFor(e.path)

	seen := make(map[string]struct{})
	for _, tag := range e.tags {
		for _, p := range e.snap.PoliciesForTag(tag) {
			if !p.AppliesToService(e.path.Service) {
				continue
			}
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			e.tagged = append(e.tagged, candidate{policy: p, origin: events.OriginTag, tag: tag})
		}
	}
}
