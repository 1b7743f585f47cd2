//
//  Copyright © Manetu Inc. All rights reserved.
//

package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/manetu/dataguard/internal/logging"
	"github.com/manetu/dataguard/pkg/common"
	"github.com/manetu/dataguard/pkg/core/accesslog"
	"github.com/manetu/dataguard/pkg/core/backend"
	"github.com/manetu/dataguard/pkg/core/config"
	"github.com/manetu/dataguard/pkg/core/opa"
	"github.com/manetu/dataguard/pkg/core/options"
	"github.com/manetu/dataguard/pkg/core/types"
	"github.com/prometheus/client_golang/prometheus"
)

// PolicyEngine evaluates access requests against the backend's active snapshot.
type PolicyEngine struct {
	audit    accesslog.Stream
	backend  backend.Service
	compiler *opa.Compiler
	metrics  *metrics
	auditEnv map[string]string
	closed   sync.Once
}

var logger = logging.GetLogger("policyengine")

const agent string = "policyengine"

// NewPolicyEngine returns an engine instance.  The backend publishes its first snapshot
// before this returns.
func NewPolicyEngine(engineOptions *options.EngineOptions) (*PolicyEngine, error) {

	engineOptions.CompilerOptions = append(engineOptions.CompilerOptions, opa.WithUnsafeBuiltins(getUnsafeBuiltins()))
	compiler := opa.NewCompiler(engineOptions.CompilerOptions...)

	reg := engineOptions.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m, err := newMetrics(reg)
	if err != nil {
		return nil, err
	}

	al, err := engineOptions.AccessLogFactory.NewStream()
	if err != nil {
		return nil, err
	}

	be, err := engineOptions.BackendFactory.NewBackend(compiler)
	if err != nil {
		al.Close()
		return nil, err
	}
	be.OnReload(m.observeReload)
	m.observeSnapshot(be.Snapshot())

	return &PolicyEngine{
		audit:    al,
		backend:  be,
		compiler: compiler,
		metrics:  m,
		auditEnv: config.GetAuditEnv(),
	}, nil
}

// Evaluate decides req.  It fails only for requests that violate the caller contract
// (*common.InvalidRequestError) or when no snapshot is available; denial is an outcome, not an
// error.
func (pe *PolicyEngine) Evaluate(ctx context.Context, req *types.AccessRequest, authOptions *options.AuthzOptions) (*types.Decision, error) {
	logger.Debug(agent, "evaluate", "Enter")
	defer logger.Debug(agent, "evaluate", "Exit")

	started := time.Now()

	// one snapshot for the whole request, even if a reload publishes a new one meanwhile
	snap := pe.backend.Snapshot()
	if snap == nil {
		return nil, common.NewError(common.ReasonNotFound, "no policy snapshot loaded")
	}

	path, action, err := validateRequest(snap, req)
	if err != nil {
		pe.metrics.observeInvalid()
		logger.Debugf(agent, "evaluate", "invalid request: %v", err)
		return nil, err
	}

	e := newEvaluation(snap, req, path, action)
	e.decision.ID = uuid.New().String()

	e.collect()

	e.advance(types.EvaluatingPrincipal)
	e.evaluatePrincipal()

	if e.decision.Outcome == types.Allow {
		e.advance(types.EvaluatingConditions)
		e.evaluateConditions(ctx)
	}

	e.advance(types.Decided)

	logger.Debugf(agent, "evaluate", "%s %s %s: %s %v (snapshot %d)",
		req.Principal.User, action, path, e.decision.Outcome, e.decision.AppliedPolicyIDs, snap.Version)

	pe.auditDecision(authOptions, pe.buildRecord(e, started))
	pe.metrics.observeDecision(path.Service, e.decision.Outcome, time.Since(started))

	return e.decision, nil
}

// Reload asks the backend for a new snapshot.
func (pe *PolicyEngine) Reload(ctx context.Context) error {
	return pe.backend.Reload(ctx)
}

// TagsFor returns the tags in effect on path in the active snapshot.
func (pe *PolicyEngine) TagsFor(path types.ResourcePath) []string {
	snap := pe.backend.Snapshot()
	if snap == nil {
		return nil
	}
	return snap.TagsFor(path)
}

// GetBackend returns the backend service used by this policy engine.
func (pe *PolicyEngine) GetBackend() backend.Service {
	return pe.backend
}

// Close releases the access log stream and the backend.
func (pe *PolicyEngine) Close() {
	pe.closed.Do(func() {
		pe.backend.Close()
		if pe.audit != nil {
			pe.audit.Close()
		}
	})
}
