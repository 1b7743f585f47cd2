//
//  Copyright © Manetu Inc. All rights reserved.
//

package common

import (
	"fmt"
	"io"

	"github.com/manetu/dataguard/pkg/core"
	"github.com/manetu/dataguard/pkg/core/accesslog"
	"github.com/manetu/dataguard/pkg/core/config"
	"github.com/manetu/dataguard/pkg/core/opa"
	"github.com/manetu/dataguard/pkg/core/options"
	"github.com/urfave/cli/v3"
)

// BundleFlag is shared by every command that loads PolicyDomain files.
var BundleFlag = &cli.StringSliceFlag{
	Name:    "bundle",
	Aliases: []string{"b"},
	Usage:   "Load PolicyDomain from `FILE` or directory.  Can be specified multiple times.  Defaults to policy.paths from the configuration.",
}

// DomainPaths returns the --bundle values, falling back to the configured policy.paths.
func DomainPaths(cmd *cli.Command) ([]string, error) {
	if bundles := cmd.StringSlice("bundle"); len(bundles) > 0 {
		return bundles, nil
	}

	if err := config.Load(); err != nil {
		return nil, err
	}
	if paths := config.GetPolicyPaths(); len(paths) > 0 {
		return paths, nil
	}

	return nil, fmt.Errorf("no policy domains: use --bundle or set policy.paths")
}

// NewCliPolicyEngine creates a new PolicyEngine instance configured from CLI command flags.
// Access records are written to stdout as JSON lines; extra options are applied last.
func NewCliPolicyEngine(cmd *cli.Command, stdout io.Writer, extra ...options.EngineOptionsFunc) (core.PolicyEngine, error) {
	// Enable trace logging if requested (global flag from root command)
	traceEnabled := cmd.Root().Bool("trace")

	paths, err := DomainPaths(cmd)
	if err != nil {
		return nil, err
	}

	opts := append([]options.EngineOptionsFunc{
		options.WithAccessLog(accesslog.NewIoWriterFactory(stdout)),
		options.WithCompilerOptions(opa.WithDefaultTracing(traceEnabled)),
	}, extra...)

	return core.NewLocalPolicyEngine(paths, opts...)
}
