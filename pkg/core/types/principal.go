//
//  Copyright © Manetu Inc. All rights reserved.
//

package types

// PublicGroup is the group every principal belongs to.
const PublicGroup = "public"

// Principal is the authenticated identity making a request.  It is resolved by the caller.
type Principal struct {
	User   string   `json:"user" yaml:"user"`
	Groups []string `json:"groups,omitempty" yaml:"groups,omitempty"`
}

// InGroup reports whether the principal is a member of group.  Everyone is in PublicGroup.
func (p Principal) InGroup(group string) bool {
	if group == PublicGroup {
		return true
	}
	for _, g := range p.Groups {
		if g == group {
			return true
		}
	}
	return false
}
