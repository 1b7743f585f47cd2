//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package events defines the access record emitted for every non-probe decision.
package events

import (
	"time"
)

// Decision is the recorded outcome.
type Decision string

// Recorded outcomes.
const (
	Allow Decision = "ALLOW"
	Deny  Decision = "DENY"
)

// Origin describes how a policy became a candidate.
type Origin string

// Candidate origins.
const (
	OriginResource Origin = "RESOURCE"
	OriginTag      Origin = "TAG"
)

// Metadata identifies a record.
type Metadata struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Env       map[string]string `json:"env,omitempty"`
}

// Principal is the caller as supplied in the request.
type Principal struct {
	Subject string   `json:"subject"`
	Groups  []string `json:"groups,omitempty"`
}

// PolicyReference records one policy that contributed a clause hit.
type PolicyReference struct {
	ID       string   `json:"id"`
	Origin   Origin   `json:"origin"`
	Tag      string   `json:"tag,omitempty"`
	Decision Decision `json:"decision"`
}

// AccessRecord is one audited decision.
type AccessRecord struct {
	Metadata        Metadata          `json:"metadata"`
	Principal       Principal         `json:"principal"`
	Action          string            `json:"action"`
	Resource        string            `json:"resource"`
	Tags            []string          `json:"tags,omitempty"`
	Decision        Decision          `json:"decision"`
	References      []PolicyReference `json:"references,omitempty"`
	RowFilter       string            `json:"rowFilter,omitempty"`
	MaskedColumns   []string          `json:"maskedColumns,omitempty"`
	SnapshotVersion uint64            `json:"snapshotVersion"`
	// Duration is the evaluation time in nanoseconds.
	Duration uint64 `json:"duration"`
}
