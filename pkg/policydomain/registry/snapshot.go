//
//  Copyright © Manetu Inc. All rights reserved.
//

package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/manetu/dataguard/pkg/core/condition"
	"github.com/manetu/dataguard/pkg/core/matcher"
	"github.com/manetu/dataguard/pkg/core/opa"
	"github.com/manetu/dataguard/pkg/core/tags"
	"github.com/manetu/dataguard/pkg/core/types"
	"github.com/manetu/dataguard/pkg/policydomain"
	"github.com/manetu/dataguard/pkg/policydomain/validation"
)

// Snapshot is an immutable, versioned view of every loaded policy.  It must not be modified
// after it is published.
type Snapshot struct {
	Version  uint64
	LoadedAt time.Time
	Domains  []string

	services   map[string]policydomain.Service
	byService  map[string][]*policydomain.Policy
	byID       map[string]*policydomain.Policy
	tags       *tags.Resolver
	tagSources []string
}

// Service returns a declared service and its hierarchy.
func (s *Snapshot) Service(name string) (policydomain.Service, types.Hierarchy, bool) {
	svc, ok := s.services[name]
	if !ok {
		return policydomain.Service{}, types.Hierarchy{}, false
	}
	h, ok := types.HierarchyFor(svc.Type)
	return svc, h, ok
}

// Services lists declared service names, sorted.
func (s *Snapshot) Services() []string {
	names := make([]string, 0, len(s.services))
	for n := range s.services {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s *Snapshot) hierarchy(service string) (types.Hierarchy, bool) {
	_, h, ok := s.Service(service)
	return h, ok
}

// ParsePath parses "service/seg/seg" using the service's hierarchy.  Paths of recursive services
// are made absolute.
func (s *Snapshot) ParsePath(str string) (types.ResourcePath, error) {
	probe, err := types.ParsePath(str, 1)
	if err != nil {
		return types.ResourcePath{}, err
	}
	h, ok := s.hierarchy(probe.Service)
	if !ok {
		return types.ResourcePath{}, fmt.Errorf("unknown service '%s'", probe.Service)
	}
	path, err := types.ParsePath(str, h.Depth())
	if err != nil {
		return path, err
	}
	if h.Recursive && !strings.HasPrefix(path.Segments[0], "/") {
		path.Segments[0] = "/" + path.Segments[0]
	}
	return path, nil
}

// ResourcePolicies returns the enabled resource-anchored policies of a service, ordered by id.
func (s *Snapshot) ResourcePolicies(service string) []*policydomain.Policy {
	return s.byService[service]
}

// PoliciesForTag returns the enabled tag-anchored policies for tag, ordered by id.
func (s *Snapshot) PoliciesForTag(tag string) []*policydomain.Policy {
	return s.tags.Index().PoliciesForTag(tag)
}

// TagsFor returns the tags bound to path or any of its ancestors.
func (s *Snapshot) TagsFor(path types.ResourcePath) []string {
	return s.tags.TagsFor(path)
}

// Policy looks a policy up by id.
func (s *Snapshot) Policy(id string) (*policydomain.Policy, bool) {
	p, ok := s.byID[id]
	return p, ok
}

// PolicyCount returns the number of policies, enabled or not.
func (s *Snapshot) PolicyCount() int {
	return len(s.byID)
}

// TagBindingCount returns the number of distinct tag bindings.
func (s *Snapshot) TagBindingCount() int {
	return s.tags.Index().Bindings()
}

// TagSources names where external bindings came from.
func (s *Snapshot) TagSources() []string {
	return s.tagSources
}

// builder compiles a validated registry into a snapshot.
type builder struct {
	compiler *opa.Compiler
	cache    *tags.Cache
	source   tags.Source
	now      func() time.Time
}

func (b *builder) build(ctx context.Context, reg *Registry, version uint64) (*Snapshot, error) {
	snap := &Snapshot{
		Version:   version,
		LoadedAt:  b.now(),
		services:  make(map[string]policydomain.Service),
		byService: make(map[string][]*policydomain.Policy),
		byID:      make(map[string]*policydomain.Policy),
	}

	var bindings []policydomain.TagBinding
	var all []*policydomain.Policy
	errors := validation.NewValidationErrors()

	for _, d := range reg.GetDomains() {
		snap.Domains = append(snap.Domains, d.Name)
		for name, svc := range d.Services {
			snap.services[name] = svc
		}
		bindings = append(bindings, d.Tags...)
	}

	for _, d := range reg.GetDomains() {
		for i := range d.Policies {
			p := &d.Policies[i]
			if err := b.compilePolicy(ctx, snap, p); err != nil {
				errors.AddPredicateError(d.Name, p.ID, err.Error())
				continue
			}
			snap.byID[p.ID] = p
			all = append(all, p)
			if p.Enabled && !p.TagAnchored() {
				snap.byService[p.Service] = append(snap.byService[p.Service], p)
			}
		}
	}
	if errors.HasErrors() {
		return nil, errors
	}

	for svc := range snap.byService {
		list := snap.byService[svc]
		sort.SliceStable(list, func(i, j int) bool { return matcher.CompareIDs(list[i].ID, list[j].ID) < 0 })
	}

	if b.source != nil {
		extra, err := b.source.Fetch(ctx, snap.hierarchy)
		if err != nil {
			return nil, fmt.Errorf("tag source %s: %w", b.source.Name(), err)
		}
		bindings = append(bindings, extra...)
		snap.tagSources = append(snap.tagSources, b.source.Name())
	}

	snap.tags = tags.NewResolver(tags.NewIndex(snap.hierarchy, bindings, all), b.cache, version)
	return snap, nil
}

// compilePolicy fills in the derived fields of a validated policy.
func (b *builder) compilePolicy(ctx context.Context, snap *Snapshot, p *policydomain.Policy) error {
	var err error
	for i := range p.Allow {
		if p.Allow[i].ActionSet, err = types.ParseActions(p.Allow[i].Actions); err != nil {
			return err
		}
	}
	for i := range p.Deny {
		if p.Deny[i].ActionSet, err = types.ParseActions(p.Deny[i].Actions); err != nil {
			return err
		}
	}

	if !p.TagAnchored() {
		if p.Pattern, err = validation.ResourcePattern(snap.services[p.Service], p.Resource); err != nil {
			return err
		}
	}

	for i := range p.RowFilters {
		rf := &p.RowFilters[i]
		if rf.Predicate, err = condition.Compile(ctx, b.compiler, rf.Expression); err != nil {
			return err
		}
	}
	return nil
}
