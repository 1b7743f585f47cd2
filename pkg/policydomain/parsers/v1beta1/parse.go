//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package v1beta1 parses dataguard.manetu.io/v1beta1 PolicyDomain documents.
package v1beta1

import (
	"fmt"
	"os"

	"github.com/manetu/dataguard/pkg/core/condition"
	"github.com/manetu/dataguard/pkg/core/types"
	"github.com/manetu/dataguard/pkg/policydomain"

	"gopkg.in/yaml.v3"
)

// Metadata represents the metadata section of a policy domain
type Metadata struct {
	Name string `yaml:"name"`
}

// Service declares a service and its type
type Service struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Clause represents an allow or deny entry
type Clause struct {
	Users   []string `yaml:"users"`
	Groups  []string `yaml:"groups"`
	Actions []string `yaml:"actions"`
}

// RowFilter represents a row filter entry
type RowFilter struct {
	Users      []string `yaml:"users"`
	Groups     []string `yaml:"groups"`
	Expression string   `yaml:"expression"`
}

// ColumnMask represents a column mask entry
type ColumnMask struct {
	Users    []string `yaml:"users"`
	Groups   []string `yaml:"groups"`
	Column   string   `yaml:"column"`
	Function string   `yaml:"function"`
	Args     []string `yaml:"args"`
}

// Policy represents a policy in v1beta1 format
type Policy struct {
	ID          string            `yaml:"id"`
	Service     string            `yaml:"service"`
	Description string            `yaml:"description"`
	Enabled     *bool             `yaml:"enabled"`
	Resource    map[string]string `yaml:"resource"`
	Tag         string            `yaml:"tag"`
	Tags        []string          `yaml:"tags"`
	Allow       []Clause          `yaml:"allow"`
	Deny        []Clause          `yaml:"deny"`
	RowFilters  []RowFilter       `yaml:"rowFilters"`
	ColumnMasks []ColumnMask      `yaml:"columnMasks"`
}

// TagBinding attaches a tag to a resource of a service
type TagBinding struct {
	Service  string `yaml:"service"`
	Resource string `yaml:"resource"`
	Tag      string `yaml:"tag"`
}

// Spec represents the spec section of a policy domain
type Spec struct {
	Services []Service    `yaml:"services"`
	Policies []Policy     `yaml:"policies"`
	Tags     []TagBinding `yaml:"tags"`
}

// PolicyDomain represents the complete policy domain structure
type PolicyDomain struct {
	APIVersion string   `yaml:"apiVersion"`
	Kind       string   `yaml:"kind"`
	Metadata   Metadata `yaml:"metadata"`
	Spec       Spec     `yaml:"spec"`
}

func exportPrincipals(users, groups []string) policydomain.Principals {
	return policydomain.Principals{Users: users, Groups: groups}
}

func exportClauses(defs []Clause) []policydomain.Clause {
	clauses := make([]policydomain.Clause, 0, len(defs))
	for _, def := range defs {
		clauses = append(clauses, policydomain.Clause{
			Principals: exportPrincipals(def.Users, def.Groups),
			Actions:    def.Actions,
		})
	}
	return clauses
}

func exportPolicy(def Policy) policydomain.Policy {
	enabled := true
	if def.Enabled != nil {
		enabled = *def.Enabled
	}

	p := policydomain.Policy{
		ID:          def.ID,
		Service:     def.Service,
		Description: def.Description,
		Enabled:     enabled,
		Resource:    def.Resource,
		Tag:         def.Tag,
		Tags:        def.Tags,
		Allow:       exportClauses(def.Allow),
		Deny:        exportClauses(def.Deny),
	}

	for _, rf := range def.RowFilters {
		p.RowFilters = append(p.RowFilters, policydomain.RowFilter{
			Principals: exportPrincipals(rf.Users, rf.Groups),
			Expression: rf.Expression,
		})
	}
	for _, cm := range def.ColumnMasks {
		p.ColumnMasks = append(p.ColumnMasks, policydomain.ColumnMask{
			Principals: exportPrincipals(cm.Users, cm.Groups),
			Column:     cm.Column,
			Mask: condition.MaskSpec{
				Function: condition.MaskFunction(cm.Function),
				Args:     cm.Args,
				PolicyID: def.ID,
			},
		})
	}

	return p
}

// exportTags resolves tag bindings against the services declared in the same document.
func exportTags(defs []TagBinding, services map[string]policydomain.Service) ([]policydomain.TagBinding, []string) {
	var bindings []policydomain.TagBinding
	var problems []string

	for i, def := range defs {
		svc, ok := services[def.Service]
		if !ok {
			problems = append(problems, fmt.Sprintf("tag %d ('%s'): unknown service '%s'", i, def.Tag, def.Service))
			continue
		}
		h, ok := types.HierarchyFor(svc.Type)
		if !ok {
			// reported against the service itself
			continue
		}
		path, err := types.ParsePath(def.Service+"/"+def.Resource, h.Depth())
		if err != nil {
			problems = append(problems, fmt.Sprintf("tag %d ('%s'): %v", i, def.Tag, err))
			continue
		}
		bindings = append(bindings, policydomain.TagBinding{Resource: path, Tag: def.Tag})
	}

	return bindings, problems
}

// Export converts a decoded document into the intermediate model
func Export(source string, domain *PolicyDomain) *policydomain.IntermediateModel {
	services := make(map[string]policydomain.Service, len(domain.Spec.Services))
	for _, s := range domain.Spec.Services {
		services[s.Name] = policydomain.Service{Name: s.Name, Type: types.ServiceType(s.Type)}
	}

	policies := make([]policydomain.Policy, 0, len(domain.Spec.Policies))
	for _, def := range domain.Spec.Policies {
		policies = append(policies, exportPolicy(def))
	}

	tags, problems := exportTags(domain.Spec.Tags, services)

	return &policydomain.IntermediateModel{
		Name:      domain.Metadata.Name,
		Source:    source,
		Services:  services,
		Policies:  policies,
		Tags:      tags,
		TagErrors: problems,
	}
}

// Parse decodes a v1beta1 document
func Parse(source string, data []byte) (*policydomain.IntermediateModel, error) {
	var domain PolicyDomain
	if err := yaml.Unmarshal(data, &domain); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	return Export(source, &domain), nil
}

// Load loads a policy domain from a file
func Load(path string) (*policydomain.IntermediateModel, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- policy paths come from operator configuration
	if err != nil {
		return nil, err
	}
	return Parse(path, data)
}
