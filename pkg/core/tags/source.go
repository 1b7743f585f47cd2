//
//  Copyright © Manetu Inc. All rights reserved.
//

package tags

import (
	"context"

	"github.com/manetu/dataguard/internal/logging"
	"github.com/manetu/dataguard/pkg/core/types"
	"github.com/manetu/dataguard/pkg/policydomain"
)

var logger = logging.GetLogger("tags")
var agent = "tags"

// Source provides tag bindings maintained outside the policy domains, e.g. by a metadata
// catalog.  Fetch is called once per snapshot build.
type Source interface {
	Name() string
	Fetch(ctx context.Context, resolve HierarchyResolver) ([]policydomain.TagBinding, error)
}

// StaticSource serves a fixed list of bindings.
type StaticSource struct {
	bindings []policydomain.TagBinding
}

// NewStaticSource creates a source that always returns bindings.
func NewStaticSource(bindings ...policydomain.TagBinding) *StaticSource {
	return &StaticSource{bindings: bindings}
}

// Name implements Source.
func (s *StaticSource) Name() string {
	return "static"
}

// Fetch implements Source.  Bindings for services that are not declared are dropped.
func (s *StaticSource) Fetch(_ context.Context, resolve HierarchyResolver) ([]policydomain.TagBinding, error) {
	out := make([]policydomain.TagBinding, 0, len(s.bindings))
	for _, b := range s.bindings {
		if _, ok := resolve(b.Resource.Service); !ok {
			logger.SysWarnf("static tag '%s' on %s ignored: unknown service", b.Tag, b.Resource)
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

var _ Source = &StaticSource{}

// parseMember converts "service/seg/seg" into a path using the service's hierarchy.
func parseMember(member string, resolve HierarchyResolver) (types.ResourcePath, bool) {
	head, err := types.ParsePath(member, 1)
	if err != nil {
		return types.ResourcePath{}, false
	}
	h, ok := resolve(head.Service)
	if !ok {
		return types.ResourcePath{}, false
	}
	path, err := types.ParsePath(member, h.Depth())
	if err != nil {
		return types.ResourcePath{}, false
	}
	return path, true
}
