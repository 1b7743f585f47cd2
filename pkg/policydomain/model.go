//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package policydomain provides the types for parsed policy domains.
//
// Policy domains are YAML documents that declare services, policies and
// tag bindings.  They are parsed by the [parsers] package into an
// [IntermediateModel], checked by the [validation] package, and compiled
// into immutable snapshots by the [registry] package.
//
// # Key Types
//
//   - [IntermediateModel]: one parsed domain file
//   - [Service]: a named instance of a service type (hbase, hive, hdfs)
//   - [Policy]: a resource- or tag-anchored set of allow/deny clauses with
//     optional row filters and column masks
//   - [TagBinding]: a tag attached to a concrete resource
package policydomain

import (
	"github.com/manetu/dataguard/pkg/core/condition"
	"github.com/manetu/dataguard/pkg/core/matcher"
	"github.com/manetu/dataguard/pkg/core/types"
)

// Service is a named service of a known type.
type Service struct {
	Name string
	Type types.ServiceType
}

// Principals selects users and groups.  A principal matches when its user is listed or it
// belongs to any listed group.
type Principals struct {
	Users  []string
	Groups []string
}

// Empty reports whether nobody is selected.
func (p Principals) Empty() bool {
	return len(p.Users) == 0 && len(p.Groups) == 0
}

// Matches reports whether principal is selected.
func (p Principals) Matches(principal types.Principal) bool {
	for _, u := range p.Users {
		if u == principal.User {
			return true
		}
	}
	for _, g := range p.Groups {
		if principal.InGroup(g) {
			return true
		}
	}
	return false
}

// Clause grants or denies Actions to Principals.
type Clause struct {
	Principals Principals
	Actions    []string
	// ActionSet is populated by the registry when the domain is compiled.
	ActionSet types.ActionSet
}

// Applies reports whether the clause covers principal performing action.
func (c *Clause) Applies(principal types.Principal, action types.Action) bool {
	return c.ActionSet.Has(action) && c.Principals.Matches(principal)
}

// RowFilter restricts the rows Principals may observe.
type RowFilter struct {
	Principals Principals
	Expression string
	// Predicate is populated by the registry when the domain is compiled.
	Predicate *condition.Predicate
}

// ColumnMask transforms Column for Principals.
type ColumnMask struct {
	Principals Principals
	Column     string
	Mask       condition.MaskSpec
}

// Policy is a rule set anchored on a resource pattern or on a tag, never both.
type Policy struct {
	ID          string
	Service     string
	Description string
	Enabled     bool
	// Resource maps hierarchy level names (e.g. "table") to patterns.
	Resource map[string]string
	// Tag anchors the policy on every resource carrying the tag.
	Tag string
	// Tags are informational labels and never participate in matching.
	Tags        []string
	Allow       []Clause
	Deny        []Clause
	RowFilters  []RowFilter
	ColumnMasks []ColumnMask

	// Pattern is populated by the registry for resource-anchored policies.
	Pattern *matcher.Pattern
}

// TagAnchored reports whether the policy is matched through tags.
func (p *Policy) TagAnchored() bool {
	return p.Tag != ""
}

// AppliesToService reports whether a policy scoped by Service covers service.  Tag policies
// without a service apply everywhere.
func (p *Policy) AppliesToService(service string) bool {
	return p.Service == "" || p.Service == service
}

// TagBinding attaches Tag to a concrete resource.
type TagBinding struct {
	Resource types.ResourcePath
	Tag      string
}

// IntermediateModel is one parsed policy domain.
type IntermediateModel struct {
	Name     string
	Source   string
	Services map[string]Service
	// Policies keeps document order.
	Policies []Policy
	Tags     []TagBinding
	// TagErrors records tag bindings that could not be parsed; validation reports them.
	TagErrors []string
}
