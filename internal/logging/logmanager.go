//
//  Copyright © Manetu Inc. All rights reserved.
//

package logging

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap/zapcore"
)

// LogManager keeps track of all instantiated loggers and the configured levels.
//
// Modules are dotted names such as "dataguard.tags".  A level configured for "dataguard"
// applies to every "dataguard.*" module without a more specific entry.
type LogManager struct {
	loggers  map[string]*Logger
	levels   map[string]zapcore.Level
	defLevel zapcore.Level
}

var (
	manager *LogManager
	mu      sync.RWMutex
	once    sync.Once
)

// resetForTesting resets the manager state - only for testing
func resetForTesting() {
	mu.Lock()
	defer mu.Unlock()
	manager = nil
	once = sync.Once{}
}

func initManager() {
	manager = &LogManager{
		loggers:  make(map[string]*Logger),
		levels:   make(map[string]zapcore.Level),
		defLevel: zapcore.InfoLevel,
	}
}

// GetLogger returns a logger for the specified module
func GetLogger(module string) *Logger {
	once.Do(initManager)

	mu.RLock()
	l := manager.loggers[module]
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()

	if l := manager.loggers[module]; l != nil {
		return l
	}

	l = newLogger(module)
	l.SetLevel(manager.levelFor(module))
	manager.loggers[module] = l
	return l
}

// levelFor returns the level of the closest configured ancestor of module.  Callers hold mu.
func (m *LogManager) levelFor(module string) zapcore.Level {
	for name := module; name != ""; {
		if level, ok := m.levels[name]; ok {
			return level
		}
		i := strings.LastIndex(name, ".")
		if i < 0 {
			break
		}
		name = name[:i]
	}
	return m.defLevel
}

func parseLevel(s string) (zapcore.Level, bool) {
	switch strings.ToLower(s) {
	case "fatal":
		return zapcore.FatalLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "info":
		return zapcore.InfoLevel, true
	case "debug", "trace":
		return zapcore.DebugLevel, true
	default:
		return zapcore.InfoLevel, false
	}
}

// UpdateLogLevels replaces the module levels with those of a string of the form
// "mod1:debug;mod2:error;.:info".  The "." entry sets the default; without one the previous
// default is kept.  Whitespace is ignored.
//
// Every well-formed entry is applied.  Entries that are not "module:level" or name an unknown
// level are reported together in the returned error.
func UpdateLogLevels(spec string) error {
	once.Do(initManager)

	spec = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, spec)

	levels := make(map[string]zapcore.Level)
	var invalid []string
	var def *zapcore.Level

	for _, entry := range strings.Split(spec, ";") {
		if entry == "" {
			continue
		}
		module, name, found := strings.Cut(entry, ":")
		level, ok := parseLevel(name)
		if !found || module == "" || !ok {
			invalid = append(invalid, entry)
			continue
		}
		if module == "." {
			def = &level
			continue
		}
		levels[module] = level
	}

	mu.Lock()
	defer mu.Unlock()

	manager.levels = levels
	if def != nil {
		manager.defLevel = *def
	}
	for module, l := range manager.loggers {
		l.SetLevel(manager.levelFor(module))
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid log level entries: %s", strings.Join(invalid, ", "))
	}
	return nil
}
