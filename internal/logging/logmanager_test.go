//
//  Copyright © Manetu Inc. All rights reserved.
//

package logging

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestGetLoggerDefaults(t *testing.T) {
	resetForTesting()

	l := GetLogger("engine")
	assert.NotNil(t, l)
	assert.True(t, l.IsLevelEnabled(zapcore.InfoLevel))
	assert.False(t, l.IsDebugEnabled())
	assert.Same(t, l, GetLogger("engine"))
}

func TestUpdateLogLevels(t *testing.T) {
	tests := []struct {
		name     string
		spec     string
		module   string
		enabled  zapcore.Level
		disabled *zapcore.Level
	}{
		{name: "explicit debug", spec: ".:info;registry:debug", module: "registry", enabled: zapcore.DebugLevel},
		{name: "explicit warn", spec: ".:info;tags:warn", module: "tags", enabled: zapcore.WarnLevel, disabled: levelPtr(zapcore.InfoLevel)},
		{name: "default applies", spec: ".:error", module: "interceptor", enabled: zapcore.ErrorLevel, disabled: levelPtr(zapcore.WarnLevel)},
		{name: "whitespace tolerated", spec: "  matcher: debug ; .: info ", module: "matcher", enabled: zapcore.DebugLevel},
		{name: "trace maps to debug", spec: ".:trace", module: "condition", enabled: zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetForTesting()
			assert.NoError(t, UpdateLogLevels(tt.spec))

			l := GetLogger(tt.module)
			assert.True(t, l.IsLevelEnabled(tt.enabled))
			if tt.disabled != nil {
				assert.False(t, l.IsLevelEnabled(*tt.disabled))
			}
		})
	}
}

func TestDefaultLevelUpdatesExistingLoggers(t *testing.T) {
	resetForTesting()

	l := GetLogger("store")
	assert.False(t, l.IsDebugEnabled())

	assert.NoError(t, UpdateLogLevels(".:debug"))
	assert.True(t, l.IsDebugEnabled())
	assert.True(t, l.IsTraceEnabled())
}

func TestModuleLevelsApplyToSubmodules(t *testing.T) {
	resetForTesting()

	tags := GetLogger("dataguard.tags")
	assert.NoError(t, UpdateLogLevels(".:warn;dataguard:debug;dataguard.decisionpoint:error"))

	assert.True(t, tags.IsDebugEnabled())
	assert.True(t, GetLogger("dataguard.registry").IsDebugEnabled())
	assert.False(t, GetLogger("dataguard.decisionpoint").IsLevelEnabled(zapcore.WarnLevel))
	assert.False(t, GetLogger("dataguardian").IsLevelEnabled(zapcore.InfoLevel))

	// a later spec replaces the module entries
	assert.NoError(t, UpdateLogLevels(".:info"))
	assert.False(t, tags.IsDebugEnabled())
	assert.True(t, GetLogger("dataguard.decisionpoint").IsLevelEnabled(zapcore.InfoLevel))
}

func TestUpdateLogLevelsInvalidEntries(t *testing.T) {
	resetForTesting()

	err := UpdateLogLevels("registry:loud;nocolon;matcher:debug;.:warn")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "registry:loud")
	assert.Contains(t, err.Error(), "nocolon")

	// well-formed entries still apply
	assert.True(t, GetLogger("matcher").IsDebugEnabled())
	assert.False(t, GetLogger("registry").IsLevelEnabled(zapcore.InfoLevel))
}

func TestConcurrentGetLogger(t *testing.T) {
	resetForTesting()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			GetLogger([]string{"engine", "tags", "matcher", "store"}[k%4]).SysDebug("concurrent")
		}(i)
	}
	wg.Wait()
}

func levelPtr(l zapcore.Level) *zapcore.Level {
	return &l
}
