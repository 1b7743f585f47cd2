//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package tags resolves the tags carried by a resource and the policies anchored on a tag.
//
// Bindings are gathered at snapshot build time from the policy domains and from an optional
// external [Source].  Lookups never perform I/O.
package tags

import (
	"sort"

	"github.com/manetu/dataguard/pkg/core/matcher"
	"github.com/manetu/dataguard/pkg/core/types"
	"github.com/manetu/dataguard/pkg/policydomain"
)

// HierarchyResolver returns the hierarchy of a named service.
type HierarchyResolver func(service string) (types.Hierarchy, bool)

// Index is an immutable view of tag bindings and tag-anchored policies.
type Index struct {
	resolve  HierarchyResolver
	bindings map[string][]string
	policies map[string][]*policydomain.Policy
	count    int
}

// NewIndex builds an index.  Only enabled tag-anchored policies are indexed.
func NewIndex(resolve HierarchyResolver, bindings []policydomain.TagBinding, policies []*policydomain.Policy) *Index {
	idx := &Index{
		resolve:  resolve,
		bindings: make(map[string][]string),
		policies: make(map[string][]*policydomain.Policy),
	}

	seen := make(map[string]map[string]struct{})
	for _, b := range bindings {
		key := b.Resource.String()
		if seen[key] == nil {
			seen[key] = make(map[string]struct{})
		}
		if _, dup := seen[key][b.Tag]; dup {
			continue
		}
		seen[key][b.Tag] = struct{}{}
		idx.bindings[key] = append(idx.bindings[key], b.Tag)
		idx.count++
	}

	for _, p := range policies {
		if p.Enabled && p.TagAnchored() {
			idx.policies[p.Tag] = append(idx.policies[p.Tag], p)
		}
	}
	for tag := range idx.policies {
		list := idx.policies[tag]
		sort.SliceStable(list, func(i, j int) bool { return matcher.CompareIDs(list[i].ID, list[j].ID) < 0 })
	}

	return idx
}

// Bindings returns the number of distinct bindings.
func (idx *Index) Bindings() int {
	return idx.count
}

// TagsFor returns the sorted, de-duplicated tags bound to path or to any of its ancestors.
func (idx *Index) TagsFor(path types.ResourcePath) []string {
	h, ok := idx.resolve(path.Service)
	if !ok {
		return nil
	}

	set := make(map[string]struct{})
	for _, a := range path.Ancestors(h) {
		for _, t := range idx.bindings[a.String()] {
			set[t] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// PoliciesForTag returns the enabled policies anchored on tag, ordered by id.
func (idx *Index) PoliciesForTag(tag string) []*policydomain.Policy {
	return idx.policies[tag]
}
