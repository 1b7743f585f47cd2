//
//  Copyright © Manetu Inc. All rights reserved.
//

package validation

import (
	"fmt"
	"sort"
	"strings"
)

// Error represents a single validation error with context
type Error struct {
	Domain   string
	Type     string
	Entity   string
	EntityID string
	Field    string
	Message  string
	Cause    error
}

// Unwrap returns the underlying cause, if any
func (ve *Error) Unwrap() error {
	return ve.Cause
}

// Error implements the error interface
func (ve *Error) Error() string {
	parts := []string{}

	if ve.Domain != "" {
		parts = append(parts, fmt.Sprintf("domain '%s'", ve.Domain))
	}

	if ve.Entity != "" && ve.EntityID != "" {
		parts = append(parts, fmt.Sprintf("%s '%s'", ve.Entity, ve.EntityID))
	}

	if ve.Field != "" {
		parts = append(parts, fmt.Sprintf("field '%s'", ve.Field))
	}

	context := ""
	if len(parts) > 0 {
		context = "in " + strings.Join(parts, " ") + ": "
	}

	return context + ve.Message
}

// Errors represents a collection of validation errors
type Errors struct {
	Errors []*Error
}

// NewValidationErrors creates a new validation errors collection
func NewValidationErrors() *Errors {
	return &Errors{
		Errors: make([]*Error, 0),
	}
}

// Add adds a validation error to the collection
func (ve *Errors) Add(err *Error) {
	ve.Errors = append(ve.Errors, err)
}

// AddError adds a validation error with all fields
func (ve *Errors) AddError(errorType, domain, entityType, entityID, field, message string) {
	ve.Add(&Error{
		Type:     errorType,
		Domain:   domain,
		Entity:   entityType,
		EntityID: entityID,
		Field:    field,
		Message:  message,
	})
}

// AddSchemaError adds an error about a malformed field of an entity
func (ve *Errors) AddSchemaError(domain, entityType, entityID, field, message string) {
	ve.AddError("schema", domain, entityType, entityID, field, message)
}

// AddConflictError adds an error about entities that contradict each other
func (ve *Errors) AddConflictError(domain, entityType, entityID, message string) {
	ve.AddError("conflict", domain, entityType, entityID, "", message)
}

// AddPredicateError adds a row filter expression error
func (ve *Errors) AddPredicateError(domain, policyID, message string) {
	ve.AddError("predicate", domain, "policy", policyID, "rowFilters", message)
}

// Merge appends every error of other
func (ve *Errors) Merge(other *Errors) {
	if other != nil {
		ve.Errors = append(ve.Errors, other.Errors...)
	}
}

// HasErrors returns true if there are any validation errors
func (ve *Errors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// Count returns the number of validation errors
func (ve *Errors) Count() int {
	return len(ve.Errors)
}

// Error implements the error interface for the collection
func (ve *Errors) Error() string {
	switch len(ve.Errors) {
	case 0:
		return "no validation errors"
	case 1:
		return ve.Errors[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "validation failed with %d errors:\n", len(ve.Errors))
	for i, err := range ve.Errors {
		fmt.Fprintf(&sb, "  %d. [%s] %s\n", i+1, orUnknown(err.Type), err.Error())
	}
	return sb.String()
}

// Unwrap exposes every collected error to errors.Is and errors.As.
func (ve *Errors) Unwrap() []error {
	errs := make([]error, len(ve.Errors))
	for i, err := range ve.Errors {
		errs[i] = err
	}
	return errs
}

// CountBy counts errors per key, e.g. per domain or per type.  Empty keys count as "unknown".
func (ve *Errors) CountBy(key func(*Error) string) map[string]int {
	counts := make(map[string]int)
	for _, err := range ve.Errors {
		counts[orUnknown(key(err))]++
	}
	return counts
}

// ByDomain is a CountBy key.
func ByDomain(e *Error) string { return e.Domain }

// ByType is a CountBy key.
func ByType(e *Error) string { return e.Type }

// Summary counts the errors per domain and per type, in name order.
func (ve *Errors) Summary() string {
	if len(ve.Errors) == 0 {
		return "No validation errors"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Validation Summary: %d errors found\n", len(ve.Errors))
	writeCounts(&sb, "By Domain", ve.CountBy(ByDomain))
	writeCounts(&sb, "By Type", ve.CountBy(ByType))
	return sb.String()
}

func writeCounts(sb *strings.Builder, title string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(sb, "\n%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(sb, "  %s: %d errors\n", k, counts[k])
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
