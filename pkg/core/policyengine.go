//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package core provides the primary interface for the dataguard decision engine, which
// decides whether a principal may perform an action on a data resource (an HBase table,
// column family or column; a Hive database, table or column; an HDFS path) and, when it may,
// which row filter and column masks apply.
//
// Decisions are computed from an immutable policy snapshot captured at the start of each
// request.  Each decision is written to the access log unless probe mode is requested.
//
// # Quick Start
//
// Create an engine over local PolicyDomain files:
//
//	pe, err := core.NewLocalPolicyEngine([]string{"/etc/dataguard/hadoop.yml"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Make a decision:
//
//	d, err := pe.Evaluate(ctx, &types.AccessRequest{
//	    Principal: types.Principal{User: "dave", Groups: []string{"analysts"}},
//	    Resource:  types.NewResourcePath("hive", "default", "words"),
//	    Action:    types.ActionRead,
//	})
//	if err == nil && d.Allowed() {
//	    rows = d.RowFilter.Apply(ctx, rows)
//	}
//
// # Configuration
//
// The engine supports various configuration options via functional options:
//
//	pe, err := core.NewPolicyEngine(
//	    options.WithBackend(local.NewFactory(paths)),
//	    options.WithAccessLog(accesslog.NewSQLiteFactory("/var/lib/dataguard/audit.db")),
//	)
//
// Without options the backend and access log are chosen from configuration (see [config]).
//
// # Probe Mode
//
// To ask what a user could do without leaving an audit trail, use probe mode:
//
//	d, err := pe.Evaluate(ctx, req, options.SetProbeMode(true))
//
// See the [options] package for all available configuration options.
package core

import (
	"context"

	"github.com/manetu/dataguard/internal/core"
	"github.com/manetu/dataguard/internal/core/backend/memory"
	"github.com/manetu/dataguard/internal/logging"
	"github.com/manetu/dataguard/pkg/core/accesslog"
	"github.com/manetu/dataguard/pkg/core/backend"
	"github.com/manetu/dataguard/pkg/core/backend/local"
	"github.com/manetu/dataguard/pkg/core/config"
	"github.com/manetu/dataguard/pkg/core/options"
	"github.com/manetu/dataguard/pkg/core/tags"
	"github.com/manetu/dataguard/pkg/core/types"
	"github.com/pkg/errors"
)

var logger = logging.GetLogger("policyengine")
var agent = "policyengine"

// PolicyEngine is the primary interface for making access decisions.
//
// Implementations of PolicyEngine are safe for concurrent use by multiple
// goroutines.
type PolicyEngine interface {
	// Evaluate decides an access request.
	//
	// A DENY is a normal outcome, not an error.  An error is returned only when the request
	// itself is invalid (*common.InvalidRequestError): an unknown service, a path that does
	// not fit the service's hierarchy, a pattern instead of a concrete segment, a missing
	// user or an unknown action.
	Evaluate(ctx context.Context, req *types.AccessRequest, authzOptions ...options.AuthzOptionsFunc) (*types.Decision, error)

	// Reload rebuilds the policy snapshot.  On error the previous snapshot stays active.
	Reload(ctx context.Context) error

	// TagsFor returns the tags in effect on path, including those inherited from ancestors.
	TagsFor(path types.ResourcePath) []string

	// GetBackend returns the underlying backend service that owns the policy snapshots.
	//
	// This is useful for advanced use cases such as watching for changes or
	// policy introspection.
	GetBackend() backend.Service

	// Close releases the access log.
	Close()
}

// PolicyEngineImpl is the default implementation of the [PolicyEngine] interface.
//
// PolicyEngineImpl wraps the internal engine and can be embedded or wrapped by
// applications that need to extend the engine's behavior, such as adding middleware.
//
// Use [NewPolicyEngine] to create a properly initialized instance.
type PolicyEngineImpl struct {
	instance *core.PolicyEngine
}

// NewPolicyEngine creates and initializes a new [PolicyEngine] instance.
//
// Unless overridden by options, the backend is a local backend over the configured
// policy.paths (an empty in-memory backend when none are configured), with the tag source
// selected by tags.source, and the access log is SQLite when audit.sqlite.path is set and
// stdout otherwise.
//
// NewPolicyEngine loads configuration from environment variables and config
// files before initializing the engine. See the [config] package for details.
//
// Returns an error if configuration loading fails or if the backend cannot
// be initialized, e.g. because a policy domain is malformed.
func NewPolicyEngine(engineOptions ...options.EngineOptionsFunc) (PolicyEngine, error) {
	err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "error loading config")
	}

	opts := &options.EngineOptions{}
	for _, o := range engineOptions {
		o(opts)
	}
	if opts.AccessLogFactory == nil {
		opts.AccessLogFactory = defaultAccessLog()
	}
	if opts.BackendFactory == nil {
		opts.BackendFactory = defaultBackend(config.GetPolicyPaths())
	}

	instance, err := core.NewPolicyEngine(opts)
	if err != nil {
		return nil, errors.Wrap(err, "error creating policy engine")
	}

	return &PolicyEngineImpl{
		instance: instance,
	}, nil
}

// NewLocalPolicyEngine creates a [PolicyEngine] over local PolicyDomain files or
// directories, ignoring policy.paths.  Other defaults are inherited from [NewPolicyEngine].
func NewLocalPolicyEngine(domainPaths []string, engineOptions ...options.EngineOptionsFunc) (PolicyEngine, error) {
	err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "error loading config")
	}

	engineOptions = append(engineOptions, options.WithBackend(defaultBackend(domainPaths)))
	return NewPolicyEngine(engineOptions...)
}

func defaultAccessLog() accesslog.Factory {
	if path := config.VConfig.GetString(config.AuditSQLitePath); path != "" {
		logger.SysDebugf("access log: sqlite %s", path)
		return accesslog.NewSQLiteFactory(path)
	}
	return accesslog.NewStdoutFactory()
}

func defaultBackend(paths []string) backend.Factory {
	if len(paths) == 0 {
		logger.SysWarnf("no policy paths configured; every request will be denied")
		return memory.NewFactory(nil)
	}

	var fopts []local.FactoryOption
	switch source := config.VConfig.GetString(config.TagsSource); source {
	case config.TagsSourceRedis:
		addr := config.VConfig.GetString(config.TagsRedisAddr)
		logger.SysInfof("tag bindings from redis at %s", addr)
		fopts = append(fopts, local.WithTagSource(tags.NewRedisSourceFromAddr(addr, config.VConfig.GetString(config.TagsRedisPrefix))))
	case config.TagsSourceStatic, "":
	default:
		logger.SysWarnf("unknown tags.source '%s'; using static bindings only", source)
	}
	fopts = append(fopts, local.WithTagCacheSize(config.VConfig.GetInt64(config.TagsCacheSize)))

	return local.NewFactory(paths, fopts...)
}

// Evaluate decides an access request.
//
// Options can modify the evaluation behavior:
//
//	// Enable probe mode to skip access logging
//	d, err := pe.Evaluate(ctx, req, options.SetProbeMode(true))
func (pe *PolicyEngineImpl) Evaluate(ctx context.Context, req *types.AccessRequest, authzOptions ...options.AuthzOptionsFunc) (*types.Decision, error) {
	opts := &options.AuthzOptions{Probe: false}
	for _, o := range authzOptions {
		o(opts)
	}

	d, err := pe.instance.Evaluate(ctx, req, opts)
	if err != nil {
		return nil, err
	}
	logger.Debugf(agent, "Evaluate", "returned from evaluate(): %s", d.Outcome)

	return d, nil
}

// Reload rebuilds the policy snapshot.
func (pe *PolicyEngineImpl) Reload(ctx context.Context) error {
	if err := pe.instance.Reload(ctx); err != nil {
		return errors.Wrap(err, "reload failed; previous snapshot kept")
	}
	return nil
}

// TagsFor returns the tags in effect on path.
func (pe *PolicyEngineImpl) TagsFor(path types.ResourcePath) []string {
	return pe.instance.TagsFor(path)
}

// GetBackend returns the backend service used by this policy engine.
func (pe *PolicyEngineImpl) GetBackend() backend.Service {
	return pe.instance.GetBackend()
}

// Close releases the access log.
func (pe *PolicyEngineImpl) Close() {
	pe.instance.Close()
}
