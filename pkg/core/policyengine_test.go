//
//  Copyright © Manetu Inc. All rights reserved.
//

package core_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/manetu/dataguard/internal/core/test"
	"github.com/manetu/dataguard/pkg/common"
	"github.com/manetu/dataguard/pkg/core"
	"github.com/manetu/dataguard/pkg/core/accesslog"
	"github.com/manetu/dataguard/pkg/core/backend"
	"github.com/manetu/dataguard/pkg/core/config"
	"github.com/manetu/dataguard/pkg/core/opa"
	"github.com/manetu/dataguard/pkg/core/options"
	"github.com/manetu/dataguard/pkg/core/types"
	"github.com/manetu/dataguard/pkg/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createPE(t *testing.T) (core.PolicyEngine, chan *events.AccessRecord) {
	require.NoError(t, test.ResetTestConfig())
	pe, ch, err := test.NewTestPolicyEngine(1024)
	require.NoError(t, err)
	require.NotNil(t, pe)
	require.NotNil(t, ch)
	t.Cleanup(pe.Close)

	return pe, ch
}

func hive(user string, groups []string, action types.Action, segments ...string) *types.AccessRequest {
	return &types.AccessRequest{
		Principal: types.Principal{User: user, Groups: groups},
		Resource:  types.NewResourcePath("hive", segments...),
		Action:    action,
	}
}

func TestEvaluate(t *testing.T) {
	pe, ch := createPE(t)
	ctx := context.Background()

	var evaluateTests = []struct {
		name string
		req  *types.AccessRequest
		post func(d *types.Decision, record *events.AccessRecord)
	}{
		{
			name: "bob reads words unfiltered",
			req:  hive("bob", nil, types.ActionRead, "default", "words"),
			post: func(d *types.Decision, record *events.AccessRecord) {
				assert.True(t, d.Allowed())
				assert.Nil(t, d.RowFilter)
				assert.Empty(t, d.ColumnMasks)
				assert.Equal(t, events.Allow, record.Decision)
				assert.Equal(t, "hive/default/words", record.Resource)
			},
		},
		{
			name: "dave reads words through a row filter",
			req:  hive("dave", nil, types.ActionRead, "default", "words"),
			post: func(d *types.Decision, record *events.AccessRecord) {
				assert.True(t, d.Allowed())
				require.NotNil(t, d.RowFilter)
				assert.Equal(t, "(count >= 80)", record.RowFilter)
			},
		},
		{
			name: "dave may not write words",
			req:  hive("dave", nil, types.ActionWrite, "default", "words"),
			post: func(d *types.Decision, record *events.AccessRecord) {
				assert.False(t, d.Allowed())
				assert.Empty(t, d.AppliedPolicyIDs)
				assert.Equal(t, events.Deny, record.Decision)
				assert.Empty(t, record.References)
			},
		},
		{
			name: "mallory is denied explicitly",
			req:  hive("mallory", []string{"public"}, types.ActionRead, "default", "words"),
			post: func(d *types.Decision, record *events.AccessRecord) {
				assert.False(t, d.Allowed())
				assert.Equal(t, []string{"12"}, d.AppliedPolicyIDs)
				require.Len(t, record.References, 1)
				assert.Equal(t, events.Deny, record.References[0].Decision)
			},
		},
		{
			name: "jane sees hashed words",
			req:  hive("jane", nil, types.ActionRead, "default", "words"),
			post: func(d *types.Decision, record *events.AccessRecord) {
				assert.True(t, d.Allowed())
				assert.Equal(t, []string{"word"}, record.MaskedColumns)
				assert.NotEqual(t, "secret", d.MaskRow(map[string]interface{}{"word": "secret"})["word"])
			},
		},
	}

	for _, tt := range evaluateTests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := pe.Evaluate(ctx, tt.req)
			require.NoError(t, err)
			require.NotNil(t, d)
			assert.Equal(t, types.Decided, d.State)

			record := <-ch
			assert.Equal(t, d.ID, record.Metadata.ID)
			tt.post(d, record)
		})
	}
}

func TestEvaluateInvalidRequest(t *testing.T) {
	pe, ch := createPE(t)

	_, err := pe.Evaluate(context.Background(), hive("bob", nil, types.ActionRead, "default", "wor*"))
	require.Error(t, err)

	var invalid *common.InvalidRequestError
	assert.True(t, errors.As(err, &invalid))
	assert.Empty(t, ch)
}

func TestSetProbeModeSkipsAudit(t *testing.T) {
	pe, ch := createPE(t)

	d, err := pe.Evaluate(context.Background(), hive("bob", nil, types.ActionRead, "default", "words"), options.SetProbeMode(true))
	require.NoError(t, err)
	assert.True(t, d.Allowed())
	assert.Empty(t, ch)
}

func TestTagsFor(t *testing.T) {
	pe, _ := createPE(t)

	assert.Equal(t, []string{"HiveColumnTag", "HiveDatabaseTag", "HiveTableTag"},
		pe.TagsFor(types.NewResourcePath("hive", "tagdb", "tagged", "ssn")))
}

func TestNewLocalPolicyEngine(t *testing.T) {
	require.NoError(t, test.ResetTestConfig())

	pe, err := core.NewLocalPolicyEngine(
		[]string{filepath.Join(test.GetTestdataPath(), "hadoop.yml")},
		options.WithAccessLog(accesslog.NewNullFactory()),
		options.WithMetricsRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	defer pe.Close()

	d, err := pe.Evaluate(context.Background(), hive("admin", nil, types.ActionDrop, "default"))
	require.NoError(t, err)
	assert.True(t, d.Allowed())
	assert.Equal(t, []string{"13"}, d.AppliedPolicyIDs)
}

func TestNewLocalPolicyEngineMalformed(t *testing.T) {
	require.NoError(t, test.ResetTestConfig())

	_, err := core.NewLocalPolicyEngine(
		[]string{filepath.Join(test.GetTestdataPath(), "malformed.yml")},
		options.WithAccessLog(accesslog.NewNullFactory()),
		options.WithMetricsRegisterer(prometheus.NewRegistry()),
	)
	require.Error(t, err)

	var malformed *common.MalformedPolicyError
	assert.True(t, errors.As(err, &malformed))
}

func TestNoPolicyPathsDeniesEverything(t *testing.T) {
	t.Setenv(config.ConfigPathEnv, t.TempDir())
	config.ResetConfig()

	pe, err := core.NewPolicyEngine(
		options.WithAccessLog(accesslog.NewNullFactory()),
		options.WithMetricsRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	defer pe.Close()

	// no services are declared, so every resource is invalid
	_, err = pe.Evaluate(context.Background(), hive("admin", nil, types.ActionRead, "default"))
	var invalid *common.InvalidRequestError
	assert.True(t, errors.As(err, &invalid))
}

func TestReloadKeepsPreviousSnapshot(t *testing.T) {
	require.NoError(t, test.ResetTestConfig())

	dir := t.TempDir()
	domain := filepath.Join(dir, "domain.yml")
	good, err := os.ReadFile(filepath.Join(test.GetTestdataPath(), "hadoop.yml"))
	require.NoError(t, err)
	bad, err := os.ReadFile(filepath.Join(test.GetTestdataPath(), "malformed.yml"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(domain, good, 0o600))

	pe, err := core.NewLocalPolicyEngine([]string{domain},
		options.WithAccessLog(accesslog.NewNullFactory()),
		options.WithMetricsRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	defer pe.Close()
	ctx := context.Background()

	require.NoError(t, os.WriteFile(domain, bad, 0o600))
	err = pe.Reload(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "previous snapshot kept")

	var malformed *common.MalformedPolicyError
	assert.True(t, errors.As(err, &malformed))

	d, err := pe.Evaluate(ctx, hive("bob", nil, types.ActionRead, "default", "words"))
	require.NoError(t, err)
	assert.True(t, d.Allowed())
	assert.Equal(t, uint64(1), d.SnapshotVersion)
}

func TestSQLiteAccessLogFromConfig(t *testing.T) {
	require.NoError(t, test.ResetTestConfig())
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	config.VConfig.Set(config.AuditSQLitePath, dbPath)
	defer config.ResetConfig()

	pe, err := core.NewPolicyEngine(options.WithMetricsRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)

	_, err = pe.Evaluate(context.Background(), hive("bob", nil, types.ActionRead, "default", "words"))
	require.NoError(t, err)
	pe.Close()

	stream, err := accesslog.OpenSQLiteStream(dbPath)
	require.NoError(t, err)
	defer stream.Close()

	records, err := stream.Query(context.Background(), accesslog.RecordFilter{Subject: "bob"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, events.Allow, records[0].Decision)
}

// TestConcurrentPolicyEngineInit tests that multiple PolicyEngine instances can be created
// concurrently without race conditions. This simulates what happens when multiple unit tests
// run in parallel, each initializing their own PolicyEngine.
// Run with: go test -race -run TestConcurrentPolicyEngineInit
func TestConcurrentPolicyEngineInit(t *testing.T) {
	require.NoError(t, test.ResetTestConfig())

	const numGoroutines = 10

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	engines := make([]core.PolicyEngine, numGoroutines)
	errs := make([]error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(idx int) {
			defer wg.Done()
			pe, _, err := test.NewTestPolicyEngine(1024)
			engines[idx] = pe
			errs[idx] = err
		}(i)
	}

	wg.Wait()

	for i := 0; i < numGoroutines; i++ {
		assert.Nil(t, errs[i], "Engine %d should not have an error", i)
		assert.NotNil(t, engines[i], "Engine %d should not be nil", i)
	}
}

func TestConcurrentEvaluate(t *testing.T) {
	require.NoError(t, test.ResetTestConfig())
	pe, _, err := test.NewTestPolicyEngine(1024, options.WithAccessLog(accesslog.NewNullFactory()))
	require.NoError(t, err)
	defer pe.Close()

	ctx := context.Background()
	wg := &sync.WaitGroup{}
	wg.Add(100)
	for n := 0; n < 100; n++ {
		go func() {
			defer wg.Done()
			d, err := pe.Evaluate(ctx, hive("dave", nil, types.ActionRead, "default", "words"))
			assert.NoError(t, err)
			assert.True(t, d.Allowed())
		}()
	}
	wg.Wait()
}

// mockAccessLog implements accesslog.Stream for testing
type mockAccessLog struct {
	records []*events.AccessRecord
	mu      sync.Mutex
}

func (m *mockAccessLog) Send(record *events.AccessRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

func (m *mockAccessLog) Close() {
	// no-op for testing
}

func (m *mockAccessLog) GetRecords() []*events.AccessRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records
}

// mockAccessLogFactory implements accesslog.Factory for testing
type mockAccessLogFactory struct {
	stream *mockAccessLog
}

func (m *mockAccessLogFactory) NewStream() (accesslog.Stream, error) {
	return m.stream, nil
}

// mockBackendFactory implements backend.Factory for testing
type mockBackendFactory struct {
	newBackendCalled bool
}

func (m *mockBackendFactory) NewBackend(*opa.Compiler) (backend.Service, error) {
	m.newBackendCalled = true
	return nil, fmt.Errorf("mock backend")
}

// TestWithAccessLog verifies that WithAccessLog option properly configures the access log
func TestWithAccessLog(t *testing.T) {
	mockLog := &mockAccessLog{}
	mockFactory := &mockAccessLogFactory{stream: mockLog}

	opts := &options.EngineOptions{}
	optFunc := options.WithAccessLog(mockFactory)
	optFunc(opts)

	assert.Equal(t, mockFactory, opts.AccessLogFactory)
}

// TestCustomAccessLogReceivesRecords verifies that records reach a custom stream
func TestCustomAccessLogReceivesRecords(t *testing.T) {
	require.NoError(t, test.ResetTestConfig())
	mockLog := &mockAccessLog{}

	pe, err := core.NewPolicyEngine(
		options.WithAccessLog(&mockAccessLogFactory{stream: mockLog}),
		options.WithMetricsRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	defer pe.Close()

	_, err = pe.Evaluate(context.Background(), hive("bob", nil, types.ActionWrite, "default", "words"))
	require.NoError(t, err)
	require.Len(t, mockLog.GetRecords(), 1)
	assert.Equal(t, "write", mockLog.GetRecords()[0].Action)
}

// TestWithBackend verifies that WithBackend option properly configures the backend factory
func TestWithBackend(t *testing.T) {
	mockFactory := &mockBackendFactory{}

	opts := &options.EngineOptions{}
	optFunc := options.WithBackend(mockFactory)
	optFunc(opts)

	assert.Equal(t, mockFactory, opts.BackendFactory)
}

// TestBackendFailure verifies that a backend error aborts engine construction
func TestBackendFailure(t *testing.T) {
	require.NoError(t, test.ResetTestConfig())
	mockFactory := &mockBackendFactory{}

	_, err := core.NewPolicyEngine(
		options.WithBackend(mockFactory),
		options.WithAccessLog(accesslog.NewNullFactory()),
		options.WithMetricsRegisterer(prometheus.NewRegistry()),
	)
	require.Error(t, err)
	assert.True(t, mockFactory.newBackendCalled)
	assert.Contains(t, err.Error(), "mock backend")
}

// TestSetProbeMode verifies that SetProbeMode option properly configures probe mode
func TestSetProbeMode(t *testing.T) {
	tests := []struct {
		name     string
		probe    bool
		expected bool
	}{
		{
			name:     "enable probe mode",
			probe:    true,
			expected: true,
		},
		{
			name:     "disable probe mode",
			probe:    false,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := &options.AuthzOptions{}
			optFunc := options.SetProbeMode(tt.probe)
			optFunc(opts)

			assert.Equal(t, tt.expected, opts.Probe)
		})
	}
}

// TestEngineOptionsMultipleFuncs verifies that multiple option functions can be applied
func TestEngineOptionsMultipleFuncs(t *testing.T) {
	mockLog := &mockAccessLog{}
	mockLogFactory := &mockAccessLogFactory{stream: mockLog}
	mockBackendFactory := &mockBackendFactory{}
	reg := prometheus.NewRegistry()

	opts := &options.EngineOptions{}

	// Apply multiple option functions
	options.WithAccessLog(mockLogFactory)(opts)
	options.WithBackend(mockBackendFactory)(opts)
	options.WithMetricsRegisterer(reg)(opts)

	assert.Equal(t, mockLogFactory, opts.AccessLogFactory)
	assert.Equal(t, mockBackendFactory, opts.BackendFactory)
	assert.Equal(t, reg, opts.Registerer)
}

// TestWithCompilerOptions verifies that WithCompilerOptions properly configures compiler options
func TestWithCompilerOptions(t *testing.T) {
	mockCompilerOpt1 := opa.WithRegoVersion(1)
	mockCompilerOpt2 := opa.WithUnsafeBuiltins(opa.Builtins{"http.send": {}})

	opts := &options.EngineOptions{}
	optFunc := options.WithCompilerOptions(mockCompilerOpt1, mockCompilerOpt2)
	optFunc(opts)

	compilerOpts := opts.CompilerOptions
	assert.NotNil(t, compilerOpts)
	assert.Equal(t, 2, len(compilerOpts))
}

// TestWithCompilerOptionsEmpty verifies that WithCompilerOptions works with no options
func TestWithCompilerOptionsEmpty(t *testing.T) {
	opts := &options.EngineOptions{}
	optFunc := options.WithCompilerOptions()
	optFunc(opts)

	// may be nil slice, which is valid in Go
	assert.Equal(t, 0, len(opts.CompilerOptions))
}
