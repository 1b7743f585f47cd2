//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package interceptor adapts host data systems to the decision engine.
//
// An interceptor sits on the request path of a storage or query system (an HBase
// coprocessor, a Hive authorization hook) and turns each host operation into one or more
// access requests.  Interceptors are registered by name in a [Registry] built at startup,
// mirroring how the host systems load their hooks from configuration strings:
//
//	reg := interceptor.NewRegistry()
//	set, err := reg.Build(pe, config.GetInterceptors())
//	hbase := set.Get("hbase").(*interceptor.HBase)
//
// An entry of the form "hbase=prodhbase" binds the hbase interceptor to a service declared
// as prodhbase in the policy domain; a bare name uses the interceptor name as the service.
package interceptor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/manetu/dataguard/internal/logging"
	"github.com/manetu/dataguard/pkg/core/options"
	"github.com/manetu/dataguard/pkg/core/types"
	"github.com/pkg/errors"
)

var logger = logging.GetLogger("interceptor")

// Evaluator is the part of core.PolicyEngine interceptors use.
type Evaluator interface {
	Evaluate(ctx context.Context, req *types.AccessRequest, authzOptions ...options.AuthzOptionsFunc) (*types.Decision, error)
}

// Interceptor guards one service of a host system.
type Interceptor interface {
	// Name is the registry name, e.g. "hbase".
	Name() string
	// Service is the policy domain service the interceptor asks about.
	Service() string
}

// Constructor builds an interceptor for service.
type Constructor func(engine Evaluator, service string) Interceptor

// Registry maps interceptor names to constructors.  It is built explicitly at startup and
// holds no engine state.
type Registry struct {
	ctors map[string]Constructor
}

// NewRegistry returns a registry with the built-in hbase and hive interceptors.
func NewRegistry() *Registry {
	r := &Registry{ctors: make(map[string]Constructor)}
	r.Register("hbase", func(e Evaluator, svc string) Interceptor { return NewHBase(e, svc) })
	r.Register("hive", func(e Evaluator, svc string) Interceptor { return NewHive(e, svc) })
	return r
}

// Register adds or replaces a constructor.
func (r *Registry) Register(name string, ctor Constructor) {
	r.ctors[name] = ctor
}

// Names lists the registered names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ctors))
	for n := range r.ctors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build instantiates the named interceptors against engine.  Unknown names are an error.
func (r *Registry) Build(engine Evaluator, entries []string) (*Set, error) {
	set := &Set{byName: make(map[string]Interceptor)}
	for _, entry := range entries {
		name, service, found := strings.Cut(strings.TrimSpace(entry), "=")
		if !found || service == "" {
			service = name
		}
		ctor, ok := r.ctors[name]
		if !ok {
			return nil, errors.Errorf("unknown interceptor '%s' (known: %s)", name, strings.Join(r.Names(), ", "))
		}
		if _, dup := set.byName[name]; dup {
			return nil, errors.Errorf("interceptor '%s' configured twice", name)
		}
		logger.SysInfof("registering interceptor %s for service %s", name, service)
		set.byName[name] = ctor(engine, service)
		set.order = append(set.order, name)
	}
	return set, nil
}

// Set is the interceptors built for one engine.
type Set struct {
	byName map[string]Interceptor
	order  []string
}

// Get returns the interceptor registered under name, or nil.
func (s *Set) Get(name string) Interceptor {
	if s == nil {
		return nil
	}
	return s.byName[name]
}

// Names lists the built interceptors in configuration order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	return s.order
}

// ErrAccessDenied is matched by every *AccessDeniedError.
var ErrAccessDenied = errors.New("access denied")

// AccessDeniedError reports the request a host operation was refused on.
type AccessDeniedError struct {
	User      string
	Action    types.Action
	Resource  types.ResourcePath
	PolicyIDs []string
}

func (e *AccessDeniedError) Error() string {
	msg := fmt.Sprintf("access denied: user '%s' may not %s %s", e.User, e.Action, e.Resource)
	if len(e.PolicyIDs) > 0 {
		msg += fmt.Sprintf(" (policies %s)", strings.Join(e.PolicyIDs, ","))
	}
	return msg
}

// Is makes errors.Is(err, ErrAccessDenied) hold.
func (e *AccessDeniedError) Is(target error) bool {
	return target == ErrAccessDenied
}

// guard evaluates one request and turns DENY into an *AccessDeniedError.
func guard(ctx context.Context, engine Evaluator, principal types.Principal, action types.Action, path types.ResourcePath, opts ...options.AuthzOptionsFunc) (*types.Decision, error) {
	d, err := engine.Evaluate(ctx, &types.AccessRequest{Principal: principal, Resource: path, Action: action}, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", action, path)
	}
	if !d.Allowed() {
		return d, &AccessDeniedError{User: principal.User, Action: action, Resource: path, PolicyIDs: d.AppliedPolicyIDs}
	}
	return d, nil
}
