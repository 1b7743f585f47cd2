//
//  Copyright © Manetu Inc. All rights reserved.
//

package condition

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"time"
	"unicode"
)

// MaskFunction names a column transform.
type MaskFunction string

// Supported mask functions.
const (
	MaskRedact       MaskFunction = "redact"
	MaskHash         MaskFunction = "hash"
	MaskShowLast     MaskFunction = "show_last"
	MaskShowFirst    MaskFunction = "show_first"
	MaskNullify      MaskFunction = "nullify"
	MaskNone         MaskFunction = "none"
	MaskDateShowYear MaskFunction = "date_show_year"
)

const defaultShowCount = 4

var dateRe = regexp.MustCompile(`^(\d{4})-\d{2}-\d{2}`)

// MaskSpec is a mask function bound to its arguments.  PolicyID records the policy that
// contributed it.
type MaskSpec struct {
	Function MaskFunction `json:"function" yaml:"function"`
	Args     []string     `json:"args,omitempty" yaml:"args,omitempty"`
	PolicyID string       `json:"policyId,omitempty" yaml:"policyId,omitempty"`
}

// ValidateMask checks that the function is known and its arguments are well formed.
func ValidateMask(spec MaskSpec) error {
	switch spec.Function {
	case MaskRedact, MaskHash, MaskNullify, MaskNone, MaskDateShowYear:
		if len(spec.Args) != 0 {
			return fmt.Errorf("mask function '%s' takes no arguments", spec.Function)
		}
	case MaskShowLast, MaskShowFirst:
		if len(spec.Args) > 1 {
			return fmt.Errorf("mask function '%s' takes at most one argument", spec.Function)
		}
		if _, err := showCount(spec); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown mask function '%s'", spec.Function)
	}
	return nil
}

func showCount(spec MaskSpec) (int, error) {
	if len(spec.Args) == 0 {
		return defaultShowCount, nil
	}
	n, err := strconv.Atoi(spec.Args[0])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("mask function '%s': argument must be a non-negative integer, got '%s'", spec.Function, spec.Args[0])
	}
	return n, nil
}

// ApplyMask transforms a single value.  It is pure: the same spec and value always produce the
// same result, and no other column is consulted.  A nil value stays nil.
func ApplyMask(spec MaskSpec, v interface{}) interface{} {
	if v == nil {
		return nil
	}

	switch spec.Function {
	case MaskNone:
		return v
	case MaskNullify:
		return nil
	case MaskRedact:
		return redact([]rune(stringify(v)), 0, -1)
	case MaskHash:
		sum := md5.Sum([]byte(stringify(v)))
		return hex.EncodeToString(sum[:])
	case MaskShowLast:
		n, _ := showCount(spec)
		s := []rune(stringify(v))
		return hide(s, 0, len(s)-n)
	case MaskShowFirst:
		n, _ := showCount(spec)
		s := []rune(stringify(v))
		return hide(s, n, len(s))
	case MaskDateShowYear:
		return yearOnly(v)
	}

	// unknown functions are rejected at load
	return nil
}

// ApplyMasks applies specs in order, each to the output of the previous one.
func ApplyMasks(specs []MaskSpec, v interface{}) interface{} {
	for _, spec := range specs {
		v = ApplyMask(spec, v)
	}
	return v
}

func stringify(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case time.Time:
		return s.Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}

// redact replaces upper case letters with X, lower case with x and digits with n in s[from:to].
func redact(s []rune, from, to int) string {
	if to < 0 || to > len(s) {
		to = len(s)
	}
	out := make([]rune, len(s))
	copy(out, s)
	for i := from; i < to; i++ {
		switch {
		case unicode.IsUpper(s[i]):
			out[i] = 'X'
		case unicode.IsLower(s[i]):
			out[i] = 'x'
		case unicode.IsDigit(s[i]):
			out[i] = 'n'
		}
	}
	return string(out)
}

// hide masks letters and digits in s[from:to] with 'x'.
func hide(s []rune, from, to int) string {
	if from < 0 {
		from = 0
	}
	if to > len(s) {
		to = len(s)
	}
	out := make([]rune, len(s))
	copy(out, s)
	for i := from; i < to; i++ {
		if unicode.IsLetter(s[i]) || unicode.IsDigit(s[i]) {
			out[i] = 'x'
		}
	}
	return string(out)
}

func yearOnly(v interface{}) interface{} {
	if t, ok := v.(time.Time); ok {
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location()).Format("2006-01-02")
	}
	m := dateRe.FindStringSubmatch(stringify(v))
	if m == nil {
		return nil
	}
	return m[1] + "-01-01"
}
