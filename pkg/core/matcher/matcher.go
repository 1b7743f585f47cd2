//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package matcher decides whether a concrete resource path falls under a policy's resource
// pattern, and ranks matching patterns by specificity.
//
// Patterns are matched segment by segment from the root.  A segment is one of:
//
//   - a literal, matching exactly one equal segment
//   - "*", matching any single segment
//   - a glob (containing '*', '?', '[' or '{'), matching a single segment
//
// Matching never crosses hierarchy levels.  A pattern shorter than the path covers every
// descendant of the last pattern segment; a pattern longer than the path does not match.
package matcher

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gobwas/glob"
	"github.com/manetu/dataguard/pkg/core/types"
)

type segmentKind int

const (
	literal segmentKind = iota
	wildcard
	globbed
)

// Segment is one compiled level of a pattern.
type Segment struct {
	Raw  string
	kind segmentKind
	g    glob.Glob
}

// Literal reports whether the segment is an exact name.
func (s Segment) Literal() bool {
	return s.kind == literal
}

// Pattern is a compiled resource pattern.
type Pattern struct {
	Service   string
	Segments  []Segment
	recursive bool
}

// Specificity ranks patterns: deeper first, then more literal segments.
type Specificity struct {
	Depth    int
	Literals int
}

// Compare returns a positive number when s is more specific than o, negative when less, zero
// when equal.
func (s Specificity) Compare(o Specificity) int {
	if s.Depth != o.Depth {
		return s.Depth - o.Depth
	}
	return s.Literals - o.Literals
}

func (s Specificity) String() string {
	return fmt.Sprintf("(%d,%d)", s.Depth, s.Literals)
}

func isGlob(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

// Compile builds a pattern for a service of the given hierarchy.  When the hierarchy is
// recursive the single segment is a '/' separated path and globs may span directories.
func Compile(service string, h types.Hierarchy, segments []string) (*Pattern, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("empty resource pattern")
	}
	if len(segments) > h.Depth() {
		return nil, fmt.Errorf("resource pattern has %d segments, hierarchy allows %d", len(segments), h.Depth())
	}

	p := &Pattern{Service: service, recursive: h.Recursive}
	for i, raw := range segments {
		if raw == "" {
			return nil, fmt.Errorf("empty segment for '%s'", h.Levels[i])
		}
		seg := Segment{Raw: raw, kind: literal}
		switch {
		case raw == "*":
			seg.kind = wildcard
		case isGlob(raw):
			g, err := glob.Compile(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid pattern '%s' for '%s': %w", raw, h.Levels[i], err)
			}
			seg.kind = globbed
			seg.g = g
		}
		p.Segments = append(p.Segments, seg)
	}

	return p, nil
}

// MustCompile is Compile for fixtures; it panics on error.
func MustCompile(service string, h types.Hierarchy, segments ...string) *Pattern {
	p, err := Compile(service, h, segments)
	if err != nil {
		panic(err)
	}
	return p
}

// Match reports whether path falls under pattern.
func Match(path types.ResourcePath, pattern *Pattern) bool {
	if path.Service != pattern.Service {
		return false
	}
	if len(pattern.Segments) > len(path.Segments) {
		return false
	}
	if pattern.recursive {
		return matchRecursive(path.Segments[0], pattern.Segments[0])
	}
	for i, seg := range pattern.Segments {
		if !seg.match(path.Segments[i]) {
			return false
		}
	}
	return true
}

func (s Segment) match(v string) bool {
	switch s.kind {
	case wildcard:
		return true
	case globbed:
		return s.g.Match(v)
	}
	return s.Raw == v
}

// matchRecursive matches a path segment against a path pattern.  A literal directory covers
// everything below it.
func matchRecursive(path string, seg Segment) bool {
	if seg.kind != literal {
		return seg.match(path)
	}
	if path == seg.Raw {
		return true
	}
	dir := strings.TrimSuffix(seg.Raw, "/")
	return strings.HasPrefix(path, dir+"/")
}

// Specificity returns the rank of the pattern.  For a recursive pattern depth counts the
// directories of the path.
func (p *Pattern) Specificity() Specificity {
	if p.recursive {
		seg := p.Segments[0]
		parts := strings.FieldsFunc(seg.Raw, func(r rune) bool { return r == '/' })
		s := Specificity{Depth: len(parts)}
		for _, part := range parts {
			if !isGlob(part) {
				s.Literals++
			}
		}
		return s
	}

	s := Specificity{Depth: len(p.Segments)}
	for _, seg := range p.Segments {
		if seg.Literal() {
			s.Literals++
		}
	}
	return s
}

func (p *Pattern) String() string {
	raw := make([]string, len(p.Segments))
	for i, s := range p.Segments {
		raw[i] = s.Raw
	}
	return p.Service + "/" + strings.Join(raw, "/")
}

// CompareIDs orders policy ids: numerically when both are integers, else lexically.
func CompareIDs(a, b string) int {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}
