//
//  Copyright © Manetu Inc. All rights reserved.
//

package main

import (
	"context"
	"log"
	"os"

	"github.com/manetu/dataguard/cmd/dg/common"
	"github.com/manetu/dataguard/cmd/dg/subcommands/lint"
	"github.com/manetu/dataguard/cmd/dg/subcommands/serve"
	"github.com/manetu/dataguard/cmd/dg/subcommands/tags"
	"github.com/manetu/dataguard/cmd/dg/subcommands/test"
	"github.com/manetu/dataguard/cmd/dg/version"
	"github.com/manetu/dataguard/internal/logging"
	"github.com/urfave/cli/v3"
)

var logger = logging.GetLogger("dg")

func main() {
	cmd := &cli.Command{
		Name:    "dg",
		Usage:   "A CLI application for authoring, testing and serving DataGuard access policies",
		Version: version.GetVersion(),
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "trace",
				Aliases: []string{"t"},
				Usage:   "Enable OPA trace logging output to stderr while compiling row filters and evaluating requests",
				Value:   logger.IsTraceEnabled(),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "test",
				Usage: "Evaluates access requests against one or more PolicyDomain files, simplifying authoring and verification",
				Commands: []*cli.Command{
					{
						Name:  "decision",
						Usage: "Evaluates a single access request and prints the decision",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:    "input",
								Aliases: []string{"i"},
								Usage:   "Load the request from 'FILE', or use '-' for stdin",
							},
							common.BundleFlag,
						},
						Action: test.ExecuteDecision,
					},
					{
						Name:  "decisions",
						Usage: "Runs a YAML suite of access requests and expected outcomes",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "input",
								Aliases:  []string{"i"},
								Usage:    "Load the test suite from 'FILE'",
								Required: true,
							},
							common.BundleFlag,
							&cli.StringSliceFlag{
								Name:  "test",
								Usage: "Only run tests whose name matches `PATTERN` (glob).  Can be specified multiple times.",
							},
						},
						Action: test.ExecuteDecisions,
					},
				},
			},
			{
				Name:  "serve",
				Usage: "Creates a decision-point service",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "port",
						Usage: "The TCP port to serve on.",
						Value: 9000,
					},
					&cli.StringFlag{
						Name:    "protocol",
						Aliases: []string{"p"},
						Usage:   "The protocol to serve.  Must be one of 'generic' or 'envoy'",
						Value:   serve.ProtocolGeneric,
						Action:  serve.ValidateProtocol,
					},
					common.BundleFlag,
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "Reload policies when a PolicyDomain file changes.  Overrides reload.watch.",
					},
					&cli.DurationFlag{
						Name:  "reload-interval",
						Usage: "Reload policies and tags every `DURATION`.  Overrides reload.interval.",
					},
				},
				Action: serve.Execute,
			},
			{
				Name:  "lint",
				Usage: "Validate PolicyDomain YAML files and compile their row filters",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "PolicyDomain YAML file or directory to lint (.yml, .yaml).  Can be specified multiple times.",
						Required: true,
					},
				},
				Action: lint.Execute,
			},
			{
				Name:  "tags",
				Usage: "Inspects and manages resource tags",
				Commands: []*cli.Command{
					{
						Name:  "show",
						Usage: "Prints the tags in effect on a resource, including inherited ones",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "resource",
								Aliases:  []string{"r"},
								Usage:    "The resource path, e.g. hive/db/table/column",
								Required: true,
							},
							common.BundleFlag,
						},
						Action: tags.ExecuteShow,
					},
					{
						Name:  "bind",
						Usage: "Binds a tag to a resource in the redis tag source",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "resource",
								Aliases:  []string{"r"},
								Usage:    "The resource path, e.g. hbase/table/family",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "tag",
								Usage:    "The tag to bind",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "redis-addr",
								Usage: "The redis server `HOST:PORT`.  Overrides tags.redis.addr.",
							},
							&cli.StringFlag{
								Name:  "prefix",
								Usage: "The redis key prefix.  Overrides tags.redis.prefix.",
							},
						},
						Action: tags.ExecuteBind,
					},
				},
			},
			{
				Name:  "version",
				Usage: "Prints the version",
				Action: func(_ context.Context, cmd *cli.Command) error {
					_, err := cmd.Root().Writer.Write([]byte(version.GetVersion() + "\n"))
					return err
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
