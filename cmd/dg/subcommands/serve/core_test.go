//
//  Copyright © Manetu Inc. All rights reserved.
//

package serve

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/manetu/dataguard/cmd/dg/common"
	itest "github.com/manetu/dataguard/internal/core/test"
	"github.com/manetu/dataguard/pkg/core/config"
	"github.com/manetu/dataguard/pkg/core/options"
	"github.com/manetu/dataguard/pkg/decisionpoint/envoy"
	"github.com/manetu/dataguard/pkg/decisionpoint/generic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

// buildServeCommand mirrors the flags of "dg serve" and runs action in their place.
func buildServeCommand(action cli.ActionFunc) *cli.Command {
	return &cli.Command{
		Name:  "dg",
		Flags: []cli.Flag{&cli.BoolFlag{Name: "trace"}},
		Commands: []*cli.Command{
			{
				Name: "serve",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "port", Value: 0},
					&cli.StringFlag{Name: "protocol", Value: ProtocolGeneric, Action: ValidateProtocol},
					common.BundleFlag,
					&cli.BoolFlag{Name: "watch"},
					&cli.DurationFlag{Name: "reload-interval"},
				},
				Action: action,
			},
		},
	}
}

func bundle() string {
	return filepath.Join(itest.GetTestdataPath(), "hadoop.yml")
}

func TestValidateProtocol(t *testing.T) {
	assert.NoError(t, ValidateProtocol(context.Background(), nil, "generic"))
	assert.NoError(t, ValidateProtocol(context.Background(), nil, "envoy"))
	assert.Error(t, ValidateProtocol(context.Background(), nil, "thrift"))

	err := buildServeCommand(func(context.Context, *cli.Command) error { return nil }).
		Run(context.Background(), []string{"dg", "serve", "--protocol", "thrift"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported protocol")
}

func TestWatchOptions(t *testing.T) {
	require.NoError(t, itest.ResetTestConfig())

	var opts []interface{}
	capture := func(_ context.Context, cmd *cli.Command) error {
		o := watchOptions(cmd)
		opts = append(opts, o.Files, o.Interval)
		return nil
	}

	// testdata config disables both
	require.NoError(t, buildServeCommand(capture).Run(context.Background(), []string{"dg", "serve"}))
	assert.Equal(t, []interface{}{false, time.Duration(0)}, opts)

	opts = nil
	require.NoError(t, buildServeCommand(capture).Run(context.Background(),
		[]string{"dg", "serve", "--watch", "--reload-interval", "30s"}))
	assert.Equal(t, []interface{}{true, 30 * time.Second}, opts)

	opts = nil
	config.VConfig.Set(config.ReloadInterval, "5m")
	require.NoError(t, buildServeCommand(capture).Run(context.Background(), []string{"dg", "serve"}))
	assert.Equal(t, []interface{}{false, 5 * time.Minute}, opts)
}

func TestStartProtocols(t *testing.T) {
	require.NoError(t, itest.ResetTestConfig())

	for _, protocol := range []string{ProtocolGeneric, ProtocolEnvoy} {
		t.Run(protocol, func(t *testing.T) {
			err := buildServeCommand(func(ctx context.Context, cmd *cli.Command) error {
				pe, err := common.NewCliPolicyEngine(cmd, io.Discard, options.WithMetricsRegisterer(prometheus.NewRegistry()))
				require.NoError(t, err)
				defer pe.Close()

				server, err := start(cmd, pe)
				require.NoError(t, err)
				assert.NotNil(t, server.Addr())

				switch protocol {
				case ProtocolGeneric:
					assert.IsType(t, &generic.Server{}, server)
				case ProtocolEnvoy:
					assert.IsType(t, &envoy.ExtAuthzServer{}, server)
				}

				stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				defer cancel()
				return server.Stop(stopCtx)
			}).Run(context.Background(), []string{"dg", "serve", "--protocol", protocol, "-b", bundle()})
			require.NoError(t, err)
		})
	}
}

func TestStartUnknownInterceptor(t *testing.T) {
	require.NoError(t, itest.ResetTestConfig())
	config.VConfig.Set(config.Interceptors, []string{"hbase", "cassandra"})
	t.Cleanup(func() { _ = itest.ResetTestConfig() })

	err := buildServeCommand(func(_ context.Context, cmd *cli.Command) error {
		pe, err := common.NewCliPolicyEngine(cmd, io.Discard, options.WithMetricsRegisterer(prometheus.NewRegistry()))
		require.NoError(t, err)
		defer pe.Close()

		_, err = start(cmd, pe)
		return err
	}).Run(context.Background(), []string{"dg", "serve", "-b", bundle()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cassandra")
}

func TestExecuteShutsDownOnCancel(t *testing.T) {
	require.NoError(t, itest.ResetTestConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- buildServeCommand(Execute).Run(ctx, []string{"dg", "serve", "-b", bundle(), "--reload-interval", "50ms"})
	}()

	time.Sleep(300 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after cancellation")
	}
}
