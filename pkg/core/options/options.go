//
//  Copyright © Manetu Inc. All rights reserved.
//
// shared between pkg/core and internal/core, and thus must be in a separate package to avoid circular dependencies

package options

import (
	"github.com/manetu/dataguard/pkg/core/accesslog"
	"github.com/manetu/dataguard/pkg/core/backend"
	"github.com/manetu/dataguard/pkg/core/opa"
	"github.com/prometheus/client_golang/prometheus"
)

// EngineOptions defines the configuration options for initializing an engine, including factories for access logs and backends.
type EngineOptions struct {
	AccessLogFactory accesslog.Factory
	BackendFactory   backend.Factory
	CompilerOptions  []opa.CompilerOptionFunc
	// Registerer receives the engine's metrics.  Nil selects prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// EngineOptionsFunc is a function that modifies EngineOptions.
type EngineOptionsFunc func(*EngineOptions)

// WithAccessLog configures the access log stream for the engine.
func WithAccessLog(factory accesslog.Factory) EngineOptionsFunc {
	return func(o *EngineOptions) {
		o.AccessLogFactory = factory
	}
}

// WithBackend configures the backend factory for the engine.
func WithBackend(factory backend.Factory) EngineOptionsFunc {
	return func(o *EngineOptions) {
		o.BackendFactory = factory
	}
}

// WithCompilerOptions configures the OPA compiler options for the engine.
func WithCompilerOptions(opts ...opa.CompilerOptionFunc) EngineOptionsFunc {
	return func(o *EngineOptions) {
		o.CompilerOptions = opts
	}
}

// WithMetricsRegisterer registers the engine's collectors with r instead of the default registry.
// Tests use a fresh prometheus.NewRegistry() per engine.
func WithMetricsRegisterer(r prometheus.Registerer) EngineOptionsFunc {
	return func(o *EngineOptions) {
		o.Registerer = r
	}
}

// AuthzOptions represents configuration options for Evaluate operations.
type AuthzOptions struct {
	Probe bool
}

// AuthzOptionsFunc is a function that modifies AuthzOptions.
type AuthzOptionsFunc func(*AuthzOptions)

// SetProbeMode configures the probe mode for Evaluate operations.  Probe mode evaluates policies but does not
// log decisions, which is helpful for returning information about what a user may do without impacting
// the audit trail.  For instance, a query planner may probe whether a user could read a column before
// deciding to project it, without generating an audit record that suggests the user read it.
//
// Probe mode is disabled by default. Use with caution and only in places where you are sure that the decision doesn't
// require logging.
func SetProbeMode(probe bool) AuthzOptionsFunc {
	return func(o *AuthzOptions) {
		o.Probe = probe
	}
}
