//
//  Copyright © Manetu Inc. All rights reserved.
//

package types

// AccessRequest asks whether Principal may perform Action on Resource.  RowContext optionally
// carries row attributes for callers that evaluate the row filter inline.
type AccessRequest struct {
	Principal  Principal              `json:"principal" yaml:"principal"`
	Resource   ResourcePath           `json:"resource" yaml:"resource"`
	Action     Action                 `json:"action" yaml:"action"`
	RowContext map[string]interface{} `json:"rowContext,omitempty" yaml:"rowContext,omitempty"`
}
