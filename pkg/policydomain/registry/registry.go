//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package registry loads policy domains and publishes them as immutable snapshots.
//
// # Loading Policy Domains
//
//	store := registry.NewStore([]string{"./policies"},
//	    registry.WithTagSource(tags.NewRedisSourceFromAddr("localhost:6379", "")))
//	if err := store.Reload(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	snap := store.Snapshot()
//
// Reload builds a complete snapshot off to the side and swaps it in with one atomic store.
// A failed reload leaves the previous snapshot active.  Readers capture a snapshot once per
// request and never observe a partial update.
//
// # Validation
//
// [NewRegistry] parses and validates domains without compiling them; the lint command uses it
// to report every problem at once.
package registry

import (
	"github.com/manetu/dataguard/pkg/common"
	"github.com/manetu/dataguard/pkg/policydomain"
	"github.com/manetu/dataguard/pkg/policydomain/parsers"
	"github.com/manetu/dataguard/pkg/policydomain/validation"
)

// Registry holds parsed, validated policy domains.
type Registry struct {
	domains []*policydomain.IntermediateModel
}

// NewRegistry loads and validates policy domains from files or directories.
//
// Parse and validation failures are returned as *common.MalformedPolicyError; the cause of a
// validation failure is a *validation.Errors listing every problem.
func NewRegistry(paths []string) (*Registry, error) {
	files, err := parsers.Expand(paths)
	if err != nil {
		return nil, err
	}

	domains := make([]*policydomain.IntermediateModel, 0, len(files))
	for _, f := range files {
		model, err := parsers.Load(f)
		if err != nil {
			return nil, common.NewMalformedPolicyError(f, err)
		}
		domains = append(domains, model)
	}

	return FromDomains(domains)
}

// FromDomains validates already parsed domains.
func FromDomains(domains []*policydomain.IntermediateModel) (*Registry, error) {
	r := &Registry{domains: domains}
	if err := validation.Validate(domains); err != nil {
		return nil, common.NewMalformedPolicyError(r.sources(), err)
	}
	return r, nil
}

func (r *Registry) sources() string {
	if len(r.domains) == 1 {
		return r.domains[0].Source
	}
	return "policy domains"
}

// GetDomains returns the domains in load order
func (r *Registry) GetDomains() []*policydomain.IntermediateModel {
	return r.domains
}
