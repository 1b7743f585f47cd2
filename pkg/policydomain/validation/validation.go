//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package validation checks parsed policy domains before they are compiled.
//
// Domains are validated together: policy ids must be unique across every domain, and policies
// may reference services declared in another domain.  Every problem is collected into one
// [Errors] value rather than stopping at the first.
package validation

import (
	"github.com/manetu/dataguard/pkg/policydomain"
)

// Validate checks domains and returns *Errors when any problem was found.
func Validate(domains []*policydomain.IntermediateModel) error {
	return NewDomainValidator(domains).ValidateAll()
}
