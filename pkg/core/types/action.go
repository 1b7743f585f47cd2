//
//  Copyright © Manetu Inc. All rights reserved.
//

package types

import (
	"fmt"
	"strings"
)

// Action is an operation requested on a resource.
type Action string

// Supported actions.
const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionCreate Action = "create"
	ActionDrop   Action = "drop"
	ActionAlter  Action = "alter"
	ActionAdmin  Action = "admin"

	// ActionAll may appear in policy documents and stands for every action.
	ActionAll = "all"
)

var actionBits = map[Action]ActionSet{
	ActionRead:   1 << 0,
	ActionWrite:  1 << 1,
	ActionCreate: 1 << 2,
	ActionDrop:   1 << 3,
	ActionAlter:  1 << 4,
	ActionAdmin:  1 << 5,
}

var actionOrder = []Action{ActionRead, ActionWrite, ActionCreate, ActionDrop, ActionAlter, ActionAdmin}

// ParseAction validates a request action name.  Matching is case-insensitive.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := actionBits[a]; !ok {
		return "", fmt.Errorf("unknown action '%s'", s)
	}
	return a, nil
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	_, ok := actionBits[a]
	return ok
}

// ActionSet is a set of actions.
type ActionSet uint8

// AllActions contains every action.
const AllActions ActionSet = 1<<6 - 1

// ParseActions builds a set from policy document names, accepting "all".
func ParseActions(names []string) (ActionSet, error) {
	var set ActionSet
	for _, n := range names {
		if strings.EqualFold(strings.TrimSpace(n), ActionAll) {
			set |= AllActions
			continue
		}
		a, err := ParseAction(n)
		if err != nil {
			return 0, err
		}
		set |= actionBits[a]
	}
	return set, nil
}

// Has reports whether a is in the set.
func (s ActionSet) Has(a Action) bool {
	return s&actionBits[a] != 0
}

// Actions lists the members in canonical order.
func (s ActionSet) Actions() []Action {
	var out []Action
	for _, a := range actionOrder {
		if s.Has(a) {
			out = append(out, a)
		}
	}
	return out
}

func (s ActionSet) String() string {
	names := make([]string, 0, len(actionOrder))
	for _, a := range s.Actions() {
		names = append(names, string(a))
	}
	return "[" + strings.Join(names, ",") + "]"
}
