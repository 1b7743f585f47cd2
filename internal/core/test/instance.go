//
//  Copyright © Manetu Inc. All rights reserved.
//

package test

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/manetu/dataguard/internal/core/accesslog"
	"github.com/manetu/dataguard/pkg/core"
	"github.com/manetu/dataguard/pkg/core/config"
	"github.com/manetu/dataguard/pkg/core/options"
	"github.com/manetu/dataguard/pkg/events"
	"github.com/prometheus/client_golang/prometheus"
)

// TestConfigFilename is the name of the test configuration file (without extension).
const TestConfigFilename = "dg-config"

// GetTestdataPath returns the absolute path to the testdata directory.
// This uses runtime.Caller to locate the source file and compute the path
// relative to it, ensuring tests work regardless of the working directory.
func GetTestdataPath() string {
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		// Fallback to relative path if runtime.Caller fails
		return "testdata"
	}
	// thisFile is internal/core/test/instance.go
	// We need to go up 3 levels to reach the project root, then into testdata
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(filepath.Dir(thisFile))))
	return filepath.Join(projectRoot, "testdata")
}

// SetupTestConfig configures the environment to use the test configuration.
// This sets both DG_CONFIG_PATH and DG_CONFIG_FILENAME to ensure tests
// use the correct configuration regardless of user environment variables.
func SetupTestConfig() error {
	if err := os.Setenv(config.ConfigPathEnv, GetTestdataPath()); err != nil {
		return err
	}
	return os.Setenv(config.ConfigFileNameEnv, TestConfigFilename)
}

// ResetTestConfig is SetupTestConfig followed by a fresh configuration load.  It must not
// run concurrently with engine construction.
func ResetTestConfig() error {
	if err := SetupTestConfig(); err != nil {
		return err
	}
	config.ResetConfig()
	return nil
}

// NewTestPolicyEngine - instantiates an engine suitable for unit-testing.
// It uses the test configuration from the testdata directory, which loads
// testdata/hadoop.yml, and sends access records to the returned channel.
// Metrics go to a private registry.
func NewTestPolicyEngine(depth int, opts ...options.EngineOptionsFunc) (core.PolicyEngine, chan *events.AccessRecord, error) {
	if err := SetupTestConfig(); err != nil {
		return nil, nil, err
	}

	ch := make(chan *events.AccessRecord, depth)
	opts = append([]options.EngineOptionsFunc{
		options.WithAccessLog(accesslog.NewChannelLogger(ch)),
		options.WithMetricsRegisterer(prometheus.NewRegistry()),
	}, opts...)

	engine, err := core.NewPolicyEngine(opts...)
	if err != nil {
		return nil, nil, err
	}

	return engine, ch, nil
}
