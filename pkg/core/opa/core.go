//
//  Copyright © Manetu Inc. All rights reserved.
//
// OPA abstraction for compiling and evaluating generated Rego

package opa

import (
	"context"
	"fmt"
	"strings"

	"github.com/manetu/dataguard/internal/logging"
	"github.com/manetu/dataguard/pkg/common"
	"github.com/mohae/deepcopy"
	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/topdown"
)

var logger = logging.GetLogger("opa")
var agent = "opa"

// Builtins is a set of builtin function names
type Builtins map[string]struct{}

// Compiler turns Rego source into compiled modules.  A single Compiler is shared by every row
// filter in a snapshot; it holds only immutable options.
type Compiler struct {
	options *CompilerOptions
}

// Ast is a compiled set of Rego modules
type Ast struct {
	name     string
	compiler *ast.Compiler
	trace    bool
}

// Query is an Ast bound to a query string and prepared for repeated evaluation.
type Query struct {
	name     string
	query    string
	prepared rego.PreparedEvalQuery
	trace    bool
}

// Modules is a map of module name to module source code
type Modules map[string]string

// CompilerOptions contains configuration options for the compiler.
type CompilerOptions struct {
	regoVersion  ast.RegoVersion
	capabilities *ast.Capabilities
	trace        bool
}

func without(builtins []*ast.Builtin, unsafe Builtins) []*ast.Builtin {
	kept := make([]*ast.Builtin, 0, len(builtins))
	for _, b := range builtins {
		if _, ok := unsafe[b.Name]; !ok {
			kept = append(kept, b)
		}
	}
	return kept
}

// CompilerOptionFunc is a function that modifies CompilerOptions.
type CompilerOptionFunc func(*CompilerOptions)

// WithRegoVersion sets the rego version for the compiler.
func WithRegoVersion(regoVersion ast.RegoVersion) CompilerOptionFunc {
	return func(o *CompilerOptions) {
		o.regoVersion = regoVersion
	}
}

// WithCapabilities sets the rego Capabilities options for the compiler.  This must come before WithUnsafeBuiltins,
// when both are used.
func WithCapabilities(capabilities *ast.Capabilities) CompilerOptionFunc {
	return func(o *CompilerOptions) {
		o.capabilities = capabilities
	}
}

// WithDefaultCapabilities resets the capabilities back to the default
func WithDefaultCapabilities() CompilerOptionFunc {
	return func(o *CompilerOptions) {
		o.capabilities = ast.CapabilitiesForThisVersion()
	}
}

// WithUnsafeBuiltins removes the named builtins from the compiler capabilities.  Generated row
// filters never call builtins beyond comparison, so anything with side effects is stripped.
func WithUnsafeBuiltins(unsafeBuiltins Builtins) CompilerOptionFunc {
	return func(o *CompilerOptions) {
		o.capabilities.Builtins = without(o.capabilities.Builtins, unsafeBuiltins)
	}
}

// WithDefaultTracing sets whether query evaluation logs a rego trace.  Defaults to the log trace level.
func WithDefaultTracing(trace bool) CompilerOptionFunc {
	return func(o *CompilerOptions) {
		o.trace = trace
	}
}

// NewCompiler creates a new Compiler with the specified options.
func NewCompiler(options ...CompilerOptionFunc) *Compiler {
	opts := &CompilerOptions{
		regoVersion:  ast.RegoV1,
		capabilities: ast.CapabilitiesForThisVersion(),
		trace:        logger.IsTraceEnabled(),
	}
	for _, o := range options {
		o(opts)
	}

	return &Compiler{options: opts}
}

// Clone creates a new instance of Compiler based on the current configuration, optionally applying additional options.
func (c *Compiler) Clone(options ...CompilerOptionFunc) *Compiler {
	opts := &CompilerOptions{
		regoVersion:  c.options.regoVersion,
		capabilities: deepcopy.Copy(c.options.capabilities).(*ast.Capabilities),
		trace:        c.options.trace,
	}
	for _, o := range options {
		o(opts)
	}

	return &Compiler{options: opts}
}

// Compile parses and compiles modules under the given name.
func (c *Compiler) Compile(name string, modules Modules) (*Ast, error) {
	parsed := make(map[string]*ast.Module, len(modules))

	for f, module := range modules {
		pm, err := ast.ParseModuleWithOpts(f, module, ast.ParserOptions{RegoVersion: c.options.regoVersion})
		if err != nil {
			return nil, err
		}
		parsed[f] = pm
	}

	compiler := ast.NewCompiler().WithCapabilities(c.options.capabilities)
	compiler.Compile(parsed)
	if compiler.Failed() {
		return nil, compiler.Errors
	}

	return &Ast{
		name:     name,
		compiler: compiler,
		trace:    c.options.trace,
	}, nil
}

// Name returns the name the Ast was compiled under.
func (p *Ast) Name() string {
	return p.name
}

// Prepare binds the Ast to queryStr so that it can be evaluated many times without re-planning.
func (p *Ast) Prepare(ctx context.Context, queryStr string) (*Query, error) {
	prepared, err := rego.New(
		rego.Query(queryStr),
		rego.Compiler(p.compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, common.NewError(common.ReasonCompilation, err.Error())
	}

	return &Query{name: p.name, query: queryStr, prepared: prepared, trace: p.trace}, nil
}

// Eval runs the prepared query against input.  When tracing is on, the rego trace is logged.
func (q *Query) Eval(ctx context.Context, input interface{}) (rego.Result, *common.PolicyError) {
	opts := []rego.EvalOption{rego.EvalInput(input)}
	var tracer *topdown.BufferTracer
	if q.trace {
		tracer = topdown.NewBufferTracer()
		opts = append(opts, rego.EvalQueryTracer(tracer))
	}

	results, err := q.prepared.Eval(ctx, opts...)
	if tracer != nil {
		regoTrace := new(strings.Builder)
		topdown.PrettyTraceWithLocation(regoTrace, *tracer)
		logger.Tracef(agent, "Eval", "%s rego trace:\n%s", q.name, regoTrace.String())
	}
	if err != nil {
		logger.Debugf(agent, "Eval", "%s: %+v", q.name, err)
		return rego.Result{}, common.NewError(common.ReasonEvaluation, err.Error())
	}
	if len(results) == 0 {
		return rego.Result{}, common.NewError(common.ReasonEvaluation, fmt.Sprintf("no opa results: %s", q.name))
	}

	return results[0], nil
}

// EvalBool runs the prepared query and requires a single boolean result.
func (q *Query) EvalBool(ctx context.Context, input interface{}) (bool, *common.PolicyError) {
	result, perr := q.Eval(ctx, input)
	if perr != nil {
		return false, perr
	}
	if len(result.Expressions) == 0 {
		return false, common.NewError(common.ReasonEvaluation, fmt.Sprintf("%s: empty result", q.name))
	}

	v, ok := result.Expressions[0].Value.(bool)
	if !ok {
		return false, common.NewError(common.ReasonEvaluation, fmt.Sprintf("%s: non-boolean result %T", q.name, result.Expressions[0].Value))
	}
	return v, nil
}
