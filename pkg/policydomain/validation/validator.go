//
//  Copyright © Manetu Inc. All rights reserved.
//

package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/manetu/dataguard/pkg/core/condition"
	"github.com/manetu/dataguard/pkg/core/matcher"
	"github.com/manetu/dataguard/pkg/core/types"
	"github.com/manetu/dataguard/pkg/policydomain"
)

// DomainValidator checks a set of policy domains, accumulating every problem it finds
type DomainValidator struct {
	domains []*policydomain.IntermediateModel
}

// NewDomainValidator creates a new domain validator
func NewDomainValidator(domains []*policydomain.IntermediateModel) *DomainValidator {
	return &DomainValidator{domains: domains}
}

// ValidateAll performs complete validation of all domains, accumulating all errors
func (v *DomainValidator) ValidateAll() error {
	errors := NewValidationErrors()

	services := v.validateServices(errors)
	v.validateDuplicateIDs(errors)
	for _, d := range v.domains {
		v.validateDomain(d, services, errors)
	}

	if errors.HasErrors() {
		return errors
	}
	return nil
}

// ValidateWithSummary validates and returns a detailed summary of any errors
func (v *DomainValidator) ValidateWithSummary() (bool, string) {
	err := v.ValidateAll()
	if err == nil {
		return true, "All validations passed successfully"
	}

	if validationErrors, ok := err.(*Errors); ok {
		return false, validationErrors.Summary()
	}
	return false, fmt.Sprintf("Validation failed: %v", err)
}

// GetAllValidationErrors returns all validation errors without stopping on first error
func (v *DomainValidator) GetAllValidationErrors() []*Error {
	err := v.ValidateAll()
	if err == nil {
		return nil
	}
	if validationErrors, ok := err.(*Errors); ok {
		return validationErrors.Errors
	}
	return []*Error{{Type: "unknown", Message: err.Error()}}
}

// ValidateDomain validates one domain in the context of the others
func (v *DomainValidator) ValidateDomain(domainName string) error {
	var target *policydomain.IntermediateModel
	for _, d := range v.domains {
		if d.Name == domainName {
			target = d
		}
	}
	if target == nil {
		return fmt.Errorf("domain '%s' not found", domainName)
	}

	errors := NewValidationErrors()
	services := v.validateServices(NewValidationErrors())
	v.validateDomain(target, services, errors)

	if errors.HasErrors() {
		return errors
	}
	return nil
}

// validateServices checks service declarations and returns the merged service map.  A service
// may be declared by several domains as long as the type agrees.
func (v *DomainValidator) validateServices(errors *Errors) map[string]policydomain.Service {
	services := make(map[string]policydomain.Service)
	owners := make(map[string]string)

	for _, d := range v.domains {
		for _, name := range sortedServiceNames(d.Services) {
			svc := d.Services[name]
			if svc.Name == "" {
				errors.AddSchemaError(d.Name, "service", "", "name", "service name is required")
				continue
			}
			if _, ok := types.HierarchyFor(svc.Type); !ok {
				errors.AddSchemaError(d.Name, "service", svc.Name, "type",
					fmt.Sprintf("unknown service type '%s' (expected one of %s)", svc.Type, strings.Join(types.ServiceTypes(), ", ")))
				continue
			}
			if prev, ok := services[svc.Name]; ok && prev.Type != svc.Type {
				errors.AddConflictError(d.Name, "service", svc.Name,
					fmt.Sprintf("declared as '%s' here and as '%s' in domain '%s'", svc.Type, prev.Type, owners[svc.Name]))
				continue
			}
			services[svc.Name] = svc
			owners[svc.Name] = d.Name
		}
	}
	return services
}

func sortedServiceNames(m map[string]policydomain.Service) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (v *DomainValidator) validateDuplicateIDs(errors *Errors) {
	seen := make(map[string]string)
	for _, d := range v.domains {
		for _, p := range d.Policies {
			if p.ID == "" {
				continue
			}
			if other, ok := seen[p.ID]; ok {
				errors.AddConflictError(d.Name, "policy", p.ID, fmt.Sprintf("duplicate policy id (also defined in domain '%s')", other))
				continue
			}
			seen[p.ID] = d.Name
		}
	}
}

func (v *DomainValidator) validateDomain(d *policydomain.IntermediateModel, services map[string]policydomain.Service, errors *Errors) {
	if d.Name == "" {
		errors.AddSchemaError(d.Source, "domain", "", "metadata.name", "domain name is required")
	}

	for i := range d.Policies {
		validatePolicy(d.Name, &d.Policies[i], services, errors)
	}

	for _, problem := range d.TagErrors {
		errors.AddSchemaError(d.Name, "tag", "", "resource", problem)
	}
	for _, b := range d.Tags {
		if b.Tag == "" {
			errors.AddSchemaError(d.Name, "tag", b.Resource.String(), "tag", "tag name is required")
		}
	}
}

func validatePolicy(domain string, p *policydomain.Policy, services map[string]policydomain.Service, errors *Errors) {
	if p.ID == "" {
		errors.AddSchemaError(domain, "policy", "", "id", "policy id is required")
	}

	hasResource := len(p.Resource) > 0
	switch {
	case hasResource && p.TagAnchored():
		errors.AddSchemaError(domain, "policy", p.ID, "resource", "a policy is anchored by resource or by tag, not both")
	case !hasResource && !p.TagAnchored():
		errors.AddSchemaError(domain, "policy", p.ID, "resource", "a policy requires a resource or a tag")
	}

	var svc policydomain.Service
	if p.Service != "" {
		var ok bool
		if svc, ok = services[p.Service]; !ok {
			errors.AddSchemaError(domain, "policy", p.ID, "service", fmt.Sprintf("unknown service '%s'", p.Service))
		}
	} else if hasResource {
		errors.AddSchemaError(domain, "policy", p.ID, "service", "resource policies require a service")
	}

	if hasResource && svc.Name != "" {
		if _, err := ResourcePattern(svc, p.Resource); err != nil {
			errors.AddSchemaError(domain, "policy", p.ID, "resource", err.Error())
		}
	}

	if len(p.Allow) == 0 && len(p.Deny) == 0 {
		errors.AddSchemaError(domain, "policy", p.ID, "allow", "a policy requires at least one allow or deny clause")
	}
	validateClauses(domain, p.ID, "allow", p.Allow, errors)
	validateClauses(domain, p.ID, "deny", p.Deny, errors)
	validateContradictions(domain, p, errors)

	if len(p.Allow) == 0 && (len(p.RowFilters) > 0 || len(p.ColumnMasks) > 0) {
		errors.AddSchemaError(domain, "policy", p.ID, "rowFilters", "row filters and column masks require an allow clause")
	}

	for i, rf := range p.RowFilters {
		if rf.Principals.Empty() {
			errors.AddSchemaError(domain, "policy", p.ID, fmt.Sprintf("rowFilters[%d]", i), "row filter requires users or groups")
		}
		if _, err := condition.Parse(rf.Expression); err != nil {
			errors.AddPredicateError(domain, p.ID, err.Error())
		}
	}

	for i, cm := range p.ColumnMasks {
		field := fmt.Sprintf("columnMasks[%d]", i)
		if cm.Principals.Empty() {
			errors.AddSchemaError(domain, "policy", p.ID, field, "column mask requires users or groups")
		}
		if cm.Column == "" {
			errors.AddSchemaError(domain, "policy", p.ID, field, "column mask requires a column")
		}
		if err := condition.ValidateMask(cm.Mask); err != nil {
			errors.AddSchemaError(domain, "policy", p.ID, field, err.Error())
		}
	}
}

func validateClauses(domain, id, kind string, clauses []policydomain.Clause, errors *Errors) {
	for i, c := range clauses {
		field := fmt.Sprintf("%s[%d]", kind, i)
		if c.Principals.Empty() {
			errors.AddSchemaError(domain, "policy", id, field, "clause requires users or groups")
		}
		if len(c.Actions) == 0 {
			errors.AddSchemaError(domain, "policy", id, field, "clause requires actions")
			continue
		}
		if _, err := types.ParseActions(c.Actions); err != nil {
			errors.AddSchemaError(domain, "policy", id, field, err.Error())
		}
	}
}

// validateContradictions rejects a policy that both allows and denies the same user or group
// the same action.
func validateContradictions(domain string, p *policydomain.Policy, errors *Errors) {
	for _, allow := range p.Allow {
		allowed, err := types.ParseActions(allow.Actions)
		if err != nil {
			continue
		}
		for _, deny := range p.Deny {
			denied, err := types.ParseActions(deny.Actions)
			if err != nil {
				continue
			}
			common := allowed & denied
			if common == 0 {
				continue
			}
			for _, who := range overlap(allow.Principals, deny.Principals) {
				errors.AddConflictError(domain, "policy", p.ID,
					fmt.Sprintf("contradictory clauses: %s is both allowed and denied %s", who, common))
			}
		}
	}
}

func overlap(a, b policydomain.Principals) []string {
	var out []string
	for _, u := range a.Users {
		for _, o := range b.Users {
			if u == o {
				out = append(out, "user '"+u+"'")
			}
		}
	}
	for _, g := range a.Groups {
		for _, o := range b.Groups {
			if g == o {
				out = append(out, "group '"+g+"'")
			}
		}
	}
	return out
}

// ResourcePattern orders a policy's resource map by the service hierarchy and compiles it.
// The levels given must be a contiguous prefix of the hierarchy starting at the root.
func ResourcePattern(svc policydomain.Service, resource map[string]string) (*matcher.Pattern, error) {
	h, ok := types.HierarchyFor(svc.Type)
	if !ok {
		return nil, fmt.Errorf("unknown service type '%s'", svc.Type)
	}

	for level := range resource {
		if h.Index(level) < 0 {
			return nil, fmt.Errorf("'%s' is not a level of %s resources (expected %s)", level, svc.Type, strings.Join(h.Levels, ", "))
		}
	}

	segments := make([]string, 0, len(resource))
	for i, level := range h.Levels {
		v, ok := resource[level]
		if !ok {
			if len(segments) != len(resource) {
				return nil, fmt.Errorf("'%s' must be set when deeper levels are set", h.Levels[i])
			}
			break
		}
		segments = append(segments, v)
	}

	return matcher.Compile(svc.Name, h, segments)
}
