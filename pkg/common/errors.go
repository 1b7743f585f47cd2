//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package common provides shared types and utilities used across the
// dataguard packages.
//
// # Error Handling
//
// Security outcomes are never errors: a denial is a [Decision] with outcome
// DENY.  Errors describe contract violations instead:
//
//   - [MalformedPolicyError] is returned when a policy domain cannot be loaded.
//     A reload that fails this way leaves the active snapshot in place.
//   - [InvalidRequestError] is returned when a caller submits a request that
//     does not fit the service's resource hierarchy or names an unknown action.
//   - [UnknownAttributeError] is produced internally when a row-filter predicate
//     references an attribute that the row does not carry.  It is logged and the
//     predicate fails closed; it never reaches the caller.
//
// [PolicyError] carries a [ReasonCode] suitable for access-log records.
package common

import (
	"fmt"
)

// ReasonCode classifies an evaluation problem for access records.
type ReasonCode string

// Reason codes recorded against access records.
const (
	ReasonNotFound       ReasonCode = "NOTFOUND_ERROR"
	ReasonEvaluation     ReasonCode = "EVALUATION_ERROR"
	ReasonCompilation    ReasonCode = "COMPILATION_ERROR"
	ReasonInvalidRequest ReasonCode = "INVALID_REQUEST"
	ReasonUnknown        ReasonCode = "UNKNOWN_ERROR"
)

// PolicyError represents an error encountered while compiling or evaluating a
// policy artifact, such as a row filter rendered to Rego.
type PolicyError struct {
	// ReasonCode is the machine-readable error classification for access logs.
	ReasonCode ReasonCode
	// Reason is a human-readable description of the error.
	Reason string
}

// Error implements the error interface, returning a formatted string
// containing both the reason message and the reason code.
func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s(code-%s)", e.Reason, e.ReasonCode)
}

// NewError creates a new [PolicyError] with the specified reason code and message.
func NewError(code ReasonCode, msg string) *PolicyError {
	return &PolicyError{ReasonCode: code, Reason: msg}
}

// MalformedPolicyError reports a policy domain that failed to parse or validate.
// Cause typically holds a *validation.Errors listing every problem found.
type MalformedPolicyError struct {
	Source string
	Cause  error
}

func (e *MalformedPolicyError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("malformed policy: %v", e.Cause)
	}
	return fmt.Sprintf("malformed policy in %s: %v", e.Source, e.Cause)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *MalformedPolicyError) Unwrap() error {
	return e.Cause
}

// NewMalformedPolicyError wraps cause as a [MalformedPolicyError] for source.
func NewMalformedPolicyError(source string, cause error) *MalformedPolicyError {
	return &MalformedPolicyError{Source: source, Cause: cause}
}

// InvalidRequestError reports a request that violates the caller contract.
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
}

// NewInvalidRequestError creates an [InvalidRequestError].
func NewInvalidRequestError(field, format string, args ...interface{}) *InvalidRequestError {
	return &InvalidRequestError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// UnknownAttributeError reports a predicate attribute that is missing from the
// row, or whose value type cannot be compared with the predicate literal.
type UnknownAttributeError struct {
	Attribute string
	Reason    string
}

func (e *UnknownAttributeError) Error() string {
	return fmt.Sprintf("unknown attribute in predicate: %s (%s)", e.Attribute, e.Reason)
}
