//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package types defines the request and decision values exchanged with the engine.
package types

import (
	"fmt"
	"sort"
	"strings"
)

// ServiceType selects the resource hierarchy of a service.
type ServiceType string

// Known service types.
const (
	ServiceHBase ServiceType = "hbase"
	ServiceHive  ServiceType = "hive"
	ServiceHDFS  ServiceType = "hdfs"
)

// Hierarchy is the ordered list of segment types for a service type.  A resource path for the
// service has between one and len(Hierarchy) segments.
type Hierarchy struct {
	Levels []string
	// Recursive marks a single-level hierarchy whose segment is itself a '/' separated path.
	Recursive bool
}

var hierarchies = map[ServiceType]Hierarchy{
	ServiceHBase: {Levels: []string{"table", "column-family", "column"}},
	ServiceHive:  {Levels: []string{"database", "table", "column"}},
	ServiceHDFS:  {Levels: []string{"path"}, Recursive: true},
}

// HierarchyFor returns the hierarchy of a service type.
func HierarchyFor(t ServiceType) (Hierarchy, bool) {
	h, ok := hierarchies[t]
	return h, ok
}

// ServiceTypes lists the known service types in sorted order.
func ServiceTypes() []string {
	names := make([]string, 0, len(hierarchies))
	for t := range hierarchies {
		names = append(names, string(t))
	}
	sort.Strings(names)
	return names
}

// Depth returns the number of levels.
func (h Hierarchy) Depth() int {
	return len(h.Levels)
}

// Index returns the position of a segment type, or -1.
func (h Hierarchy) Index(level string) int {
	for i, l := range h.Levels {
		if l == level {
			return i
		}
	}
	return -1
}

// ResourcePath addresses a protected entity: a service name followed by concrete segments,
// e.g. hbase/temp/colfam1/col1.
type ResourcePath struct {
	Service  string   `json:"service" yaml:"service"`
	Segments []string `json:"segments" yaml:"segments"`
}

// NewResourcePath builds a path from a service and its segments.
func NewResourcePath(service string, segments ...string) ResourcePath {
	return ResourcePath{Service: service, Segments: segments}
}

// ParsePath splits "service/seg/seg" into a ResourcePath of at most depth segments.  For a
// recursive hierarchy (depth 1) everything after the service is one segment.
func ParsePath(s string, depth int) (ResourcePath, error) {
	if depth < 1 {
		return ResourcePath{}, fmt.Errorf("invalid hierarchy depth %d", depth)
	}
	parts := strings.SplitN(s, "/", depth+1)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return ResourcePath{}, fmt.Errorf("resource '%s' must have the form service/segment[/segment...]", s)
	}
	return ResourcePath{Service: parts[0], Segments: parts[1:]}, nil
}

// String renders the path as "service/seg/seg".
func (p ResourcePath) String() string {
	return p.Service + "/" + strings.Join(p.Segments, "/")
}

// Depth returns the number of segments.
func (p ResourcePath) Depth() int {
	return len(p.Segments)
}

// Prefix returns the path truncated to n segments.
func (p ResourcePath) Prefix(n int) ResourcePath {
	if n > len(p.Segments) {
		n = len(p.Segments)
	}
	return ResourcePath{Service: p.Service, Segments: p.Segments[:n]}
}

// Ancestors returns the path and every proper prefix of it, shortest first.  For a recursive
// hierarchy the prefixes are the parent directories of the path segment.
func (p ResourcePath) Ancestors(h Hierarchy) []ResourcePath {
	if h.Recursive && len(p.Segments) == 1 {
		return dirAncestors(p)
	}
	out := make([]ResourcePath, 0, len(p.Segments))
	for i := 1; i <= len(p.Segments); i++ {
		out = append(out, p.Prefix(i))
	}
	return out
}

func dirAncestors(p ResourcePath) []ResourcePath {
	seg := p.Segments[0]
	var out []ResourcePath
	for i := 1; i < len(seg); i++ {
		if seg[i] == '/' {
			out = append(out, NewResourcePath(p.Service, seg[:i]))
		}
	}
	if strings.HasPrefix(seg, "/") && seg != "/" {
		out = append([]ResourcePath{NewResourcePath(p.Service, "/")}, out...)
	}
	return append(out, p)
}

// Equal compares two paths.
func (p ResourcePath) Equal(o ResourcePath) bool {
	if p.Service != o.Service || len(p.Segments) != len(o.Segments) {
		return false
	}
	for i := range p.Segments {
		if p.Segments[i] != o.Segments[i] {
			return false
		}
	}
	return true
}
