//
//  Copyright © Manetu Inc. All rights reserved.
//

package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/manetu/dataguard/cmd/dg/common"
	"github.com/manetu/dataguard/internal/logging"
	"github.com/manetu/dataguard/pkg/core"
	"github.com/manetu/dataguard/pkg/core/accesslog"
	"github.com/manetu/dataguard/pkg/core/config"
	"github.com/manetu/dataguard/pkg/core/options"
	"github.com/manetu/dataguard/pkg/core/tags"
	"github.com/manetu/dataguard/pkg/decisionpoint"
	"github.com/manetu/dataguard/pkg/decisionpoint/envoy"
	"github.com/manetu/dataguard/pkg/decisionpoint/generic"
	"github.com/manetu/dataguard/pkg/interceptor"
	"github.com/manetu/dataguard/pkg/policydomain/registry"
	"github.com/urfave/cli/v3"
)

var logger = logging.GetLogger("dataguard")

const agent string = "serve"

// Supported protocols.
const (
	ProtocolGeneric = "generic"
	ProtocolEnvoy   = "envoy"
)

const (
	shutdownTimeout = 10 * time.Second
	watchDebounce   = 250 * time.Millisecond
)

// ValidateProtocol rejects protocols other than generic and envoy.
func ValidateProtocol(_ context.Context, _ *cli.Command, s string) error {
	if s != ProtocolGeneric && s != ProtocolEnvoy {
		return fmt.Errorf("unsupported protocol: %s", s)
	}
	return nil
}

// Execute runs the serve command, starting a decision point server based on the configured protocol.
// It supports both "generic" and "envoy" protocols and gracefully shuts down on SIGINT or SIGTERM.
func Execute(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.Load(); err != nil {
		return err
	}

	var extra []options.EngineOptionsFunc
	if path := config.VConfig.GetString(config.AuditSQLitePath); path != "" {
		extra = append(extra, options.WithAccessLog(accesslog.NewSQLiteFactory(path)))
	}

	pe, err := common.NewCliPolicyEngine(cmd, os.Stdout, extra...)
	if err != nil {
		return err
	}
	defer pe.Close()

	go watch(ctx, cmd, pe)

	server, err := start(cmd, pe)
	if err != nil {
		return err
	}
	logger.Infof(agent, "start", "%s decision point listening on %s", cmd.String("protocol"), server.Addr())

	<-ctx.Done()
	logger.Info(agent, "shutdown", "Shutting down server...")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Stop(stopCtx); err != nil {
		return err
	}

	logger.Info(agent, "shutdown", "Server exited gracefully.")
	return nil
}

// watchOptions merges the reload flags with the reload.* configuration.
func watchOptions(cmd *cli.Command) registry.WatchOptions {
	opts := registry.WatchOptions{
		Files:    config.VConfig.GetBool(config.ReloadWatch),
		Interval: config.VConfig.GetDuration(config.ReloadInterval),
		Debounce: watchDebounce,
	}
	if cmd.IsSet("watch") {
		opts.Files = cmd.Bool("watch")
	}
	if cmd.IsSet("reload-interval") {
		opts.Interval = cmd.Duration("reload-interval")
	}
	return opts
}

func watch(ctx context.Context, cmd *cli.Command, pe core.PolicyEngine) {
	opts := watchOptions(cmd)
	if !opts.Files && opts.Interval <= 0 {
		return
	}

	logger.Infof(agent, "watch", "reloading policies (files: %t, interval: %s)", opts.Files, opts.Interval)
	if err := pe.GetBackend().Watch(ctx, opts); err != nil {
		logger.Errorf(agent, "watch", "policy watch stopped: %v", err)
	}
}

// tagBinder returns a writable tag source when tags come from redis.
func tagBinder() (*tags.RedisSource, bool) {
	if config.VConfig.GetString(config.TagsSource) != config.TagsSourceRedis {
		return nil, false
	}
	return tags.NewRedisSourceFromAddr(config.VConfig.GetString(config.TagsRedisAddr), config.VConfig.GetString(config.TagsRedisPrefix)), true
}

func start(cmd *cli.Command, pe core.PolicyEngine) (decisionpoint.Server, error) {
	port := cmd.Int("port")

	switch protocol := cmd.String("protocol"); protocol {
	case ProtocolGeneric:
		set, err := interceptor.NewRegistry().Build(pe, config.GetInterceptors())
		if err != nil {
			return nil, err
		}
		opts := []generic.OptionsFunc{generic.WithInterceptors(set)}
		if binder, ok := tagBinder(); ok {
			opts = append(opts, generic.WithTagBinder(binder))
		}
		logger.Infof(agent, "start", "interceptors: %v", set.Names())
		return generic.CreateServer(pe, port, opts...)
	case ProtocolEnvoy:
		return envoy.CreateServer(pe, port)
	default:
		return nil, fmt.Errorf("unsupported protocol: %s", protocol)
	}
}
