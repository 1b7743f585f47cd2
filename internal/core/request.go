//
//  Copyright © Manetu Inc. All rights reserved.
//

package core

import (
	"strings"

	"github.com/manetu/dataguard/pkg/common"
	"github.com/manetu/dataguard/pkg/core/types"
	"github.com/manetu/dataguard/pkg/policydomain/registry"
)

// validateRequest checks the caller contract and returns a normalized copy of the resource path
// and action.  Violations are *common.InvalidRequestError, never a DENY.
func validateRequest(snap *registry.Snapshot, req *types.AccessRequest) (types.ResourcePath, types.Action, error) {
	if req == nil {
		return types.ResourcePath{}, "", common.NewInvalidRequestError("request", "missing")
	}

	if req.Principal.User == "" {
		return types.ResourcePath{}, "", common.NewInvalidRequestError("principal.user", "required")
	}

	action, err := types.ParseAction(string(req.Action))
	if err != nil {
		return types.ResourcePath{}, "", common.NewInvalidRequestError("action", "%v", err)
	}

	svc := req.Resource.Service
	_, h, ok := snap.Service(svc)
	if !ok {
		return types.ResourcePath{}, "", common.NewInvalidRequestError("resource.service", "unknown service '%s'", svc)
	}

	n := len(req.Resource.Segments)
	if n == 0 || n > h.Depth() {
		return types.ResourcePath{}, "", common.NewInvalidRequestError("resource.segments",
			"%s resources have 1 to %d segments (%s), got %d", svc, h.Depth(), strings.Join(h.Levels, "/"), n)
	}

	segments := make([]string, n)
	for i, seg := range req.Resource.Segments {
		if seg == "" {
			return types.ResourcePath{}, "", common.NewInvalidRequestError("resource.segments", "segment %d (%s) is empty", i, h.Levels[i])
		}
		if strings.ContainsAny(seg, "*?[") {
			return types.ResourcePath{}, "", common.NewInvalidRequestError("resource.segments", "segment %d ('%s') must be concrete", i, seg)
		}
		if !h.Recursive && strings.Contains(seg, "/") {
			return types.ResourcePath{}, "", common.NewInvalidRequestError("resource.segments", "segment %d ('%s') contains '/'", i, seg)
		}
		segments[i] = seg
	}
	if h.Recursive && !strings.HasPrefix(segments[0], "/") {
		segments[0] = "/" + segments[0]
	}

	return types.ResourcePath{Service: svc, Segments: segments}, action, nil
}
