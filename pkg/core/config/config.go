//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package config provides configuration management for the decision engine
// using [Viper] for flexible configuration sources.
//
// Configuration can be provided via:
//   - YAML configuration files
//   - Environment variables with the DG_ prefix
//   - Programmatic defaults
//
// # Configuration File
//
// By default, the engine looks for dg-config.yaml in the current directory.
// Override the location using environment variables:
//
//	DG_CONFIG_PATH=/etc/dataguard
//	DG_CONFIG_FILENAME=production-config
//
// Example configuration file:
//
//	log:
//	  level: ".:info"
//	policy:
//	  paths: [/etc/dataguard/policies]
//	tags:
//	  source: redis
//	  redis:
//	    addr: localhost:6379
//	reload:
//	  watch: true
//	  interval: 5m
//	audit:
//	  env:
//	    pod: HOSTNAME
//	  sqlite:
//	    path: /var/lib/dataguard/audit.db
//	interceptors: [hbase, hive]
//
// # Environment Variables
//
// All configuration keys can be set via environment variables with the DG_
// prefix. Dots in key names become underscores:
//
//	DG_LOG_LEVEL=.:debug
//	DG_TAGS_SOURCE=redis
//	DG_RELOAD_INTERVAL=30s
//
// [Viper]: https://github.com/spf13/viper
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/manetu/dataguard/internal/logging"
	"github.com/spf13/viper"
)

// Environment variable and default path constants for configuration loading.
const (
	// EnvVarPrefix is the prefix for all environment variables.
	// For example, the key "log.level" becomes DG_LOG_LEVEL.
	EnvVarPrefix string = "DG"

	// ConfigPathEnv is the environment variable that specifies the directory
	// containing the configuration file.
	ConfigPathEnv string = "DG_CONFIG_PATH"

	// ConfigFileNameEnv is the environment variable that specifies the
	// configuration file name (without extension).
	ConfigFileNameEnv string = "DG_CONFIG_FILENAME"

	// ConfigDefaultPath is the default directory to search for config files.
	ConfigDefaultPath string = "."

	// ConfigDefaultFilename is the default configuration file name (without extension).
	ConfigDefaultFilename string = "dg-config"
)

// Tag source names accepted by [TagsSource].
const (
	TagsSourceStatic = "static"
	TagsSourceRedis  = "redis"
)

// Configuration key constants for use with [VConfig].
const (
	logLevel string = "log.level"

	// PolicyPaths lists the PolicyDomain files or directories to load.  Relative
	// entries are resolved against the directory of the configuration file.
	PolicyPaths string = "policy.paths"

	// TagsSource selects where tag bindings beyond the domain files come from:
	// "static" (domain files only) or "redis".
	TagsSource string = "tags.source"

	// TagsRedisAddr is the redis server holding tag bindings.
	TagsRedisAddr string = "tags.redis.addr"

	// TagsRedisPrefix prefixes every redis key read by the tag source.
	TagsRedisPrefix string = "tags.redis.prefix"

	// TagsCacheSize bounds the number of cached TagsFor results.  Zero disables the cache.
	TagsCacheSize string = "tags.cache.size"

	// ReloadWatch reloads policies when a domain file changes.
	ReloadWatch string = "reload.watch"

	// ReloadInterval reloads policies periodically when positive.
	ReloadInterval string = "reload.interval"

	// UnsafeBuiltIns is a comma-separated list of Rego built-in function names
	// to remove from OPA capabilities.
	//
	// Default: "http.send"
	UnsafeBuiltIns string = "opa.unsafebuiltins"

	// AuditEnv defines a mapping from access log metadata keys to environment
	// variable names. The values of the specified environment variables are
	// included in every access log record.
	//
	// Example config:
	//
	//	audit:
	//	  env:
	//	    pod: HOSTNAME
	//	    region: AWS_REGION
	AuditEnv string = "audit.env"

	// AuditSQLitePath stores access records in a SQLite database instead of stdout.
	AuditSQLitePath string = "audit.sqlite.path"

	// AuditK8sPodinfo is the directory of a Kubernetes Downward API volume.  Pod labels
	// found there are added to access record metadata.
	AuditK8sPodinfo string = "audit.k8s.podinfo"

	// Interceptors lists the interceptors registered at startup.
	Interceptors string = "interceptors"
)

var (
	once     sync.Once
	loadOnce sync.Once
	loadErr  error

	// VConfig is the global Viper configuration instance.
	//
	// VConfig is initialized automatically when [Load] or [Init] is called.
	VConfig *viper.Viper
	logger  = logging.GetLogger("dataguard.config")
)

// Init initializes the configuration system without loading config files.
//
// This function is safe to call multiple times; subsequent calls are no-ops.
func Init() {
	once.Do(func() {
		doInitialize()
	})
}

func getConfigPath() string {
	configPath, ok := os.LookupEnv(ConfigPathEnv)
	if ok {
		return configPath
	}

	return ConfigDefaultPath
}

func getConfigFileName() string {
	configName, ok := os.LookupEnv(ConfigFileNameEnv)
	if ok {
		return configName
	}

	return ConfigDefaultFilename
}

func doInitialize() {
	VConfig = viper.New()

	// default is './dg-config.yaml' but can be overridden with $(DG_CONFIG_PATH)/$(DG_CONFIG_FILENAME).yaml
	VConfig.AddConfigPath(getConfigPath())
	VConfig.SetConfigName(getConfigFileName())
	VConfig.SetConfigType("yaml")

	// keys such as 'log.level' become 'DG_LOG_LEVEL'
	VConfig.SetEnvPrefix(EnvVarPrefix)
	VConfig.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	VConfig.AutomaticEnv()

	VConfig.SetDefault(logLevel, ".:info")
	VConfig.SetDefault(UnsafeBuiltIns, "http.send")
	VConfig.SetDefault(TagsSource, TagsSourceStatic)
	VConfig.SetDefault(TagsRedisAddr, "localhost:6379")
	VConfig.SetDefault(TagsRedisPrefix, "dataguard")
	VConfig.SetDefault(TagsCacheSize, 10000)
	VConfig.SetDefault(ReloadWatch, false)
	VConfig.SetDefault(ReloadInterval, "0s")
	VConfig.SetDefault(AuditK8sPodinfo, "/etc/podinfo")
	VConfig.SetDefault(Interceptors, []string{})
}

// Load initializes configuration and loads settings from files and environment.
//
// Load performs the following steps:
//  1. Calls [Init] if not already called
//  2. Reads the configuration file (if present; missing files are not an error)
//  3. Applies environment variable overrides
//  4. Updates log levels based on configuration
//
// Subsequent calls after the first load are no-ops returning the first result.
func Load() error {
	loadOnce.Do(func() {
		Init()

		// Early log level update from environment variable allows us to debug the config loading.
		earlyLoglevel := os.Getenv("DG_LOG_LEVEL")
		if earlyLoglevel != "" {
			if err := logging.UpdateLogLevels(earlyLoglevel); err != nil {
				logger.SysErrorf("Failed updating early log level %s: %+v", earlyLoglevel, err)
				loadErr = err
				return
			}
		}

		logger.SysDebugf("Loading configuration from %s/%s.yaml", getConfigPath(), getConfigFileName())
		err := VConfig.ReadInConfig()
		if err != nil {
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				logger.SysWarnf("error reading config; using defaults: %+v", err)
			}
			logger.SysDebugf("No config file found at %s/%s.yaml", getConfigPath(), getConfigFileName())
		}

		loglevel := VConfig.GetString(logLevel)
		if err := logging.UpdateLogLevels(loglevel); err != nil {
			logger.SysErrorf("Failed updating log level %s: %+v", loglevel, err)
			loadErr = err
			return
		}

		if logger.IsDebugEnabled() {
			VConfig.DebugTo(logger.Out())
		}
	})

	return loadErr
}

// ResetConfig clears all configuration and reinitializes with defaults.
//
// WARNING: This function is intended for testing only.
func ResetConfig() {
	VConfig = nil
	once = sync.Once{}
	loadOnce = sync.Once{}
	loadErr = nil
	resetK8sCache()
	Init()
	_ = Load()
}

// GetPolicyPaths returns the configured domain paths.  Relative paths are resolved against the
// directory holding the configuration file, or left as-is when no file was read.
func GetPolicyPaths() []string {
	paths := VConfig.GetStringSlice(PolicyPaths)
	base := ""
	if used := VConfig.ConfigFileUsed(); used != "" {
		base = filepath.Dir(used)
	}

	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if base != "" && !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		out = append(out, p)
	}
	return out
}

// GetInterceptors returns the configured interceptor names.  A comma-separated string, as
// supplied through DG_INTERCEPTORS, is split.
func GetInterceptors() []string {
	var names []string
	for _, n := range VConfig.GetStringSlice(Interceptors) {
		for _, part := range strings.Split(n, ",") {
			if part = strings.TrimSpace(part); part != "" {
				names = append(names, part)
			}
		}
	}
	return names
}

// GetAuditEnv returns resolved audit environment metadata for access log records.
//
// Each audit.env entry maps a metadata key to an environment variable name, e.g. with
//
//	audit:
//	  env:
//	    pod: HOSTNAME
//
// and HOSTNAME=pod-123 the result contains {"pod": "pod-123"}.  Unset variables resolve to
// the empty string.  Kubernetes pod labels from the Downward API directory are added with a
// "k8s.label." prefix when present.
func GetAuditEnv() map[string]string {
	result := make(map[string]string)

	for key, envVarName := range VConfig.GetStringMapString(AuditEnv) {
		result[key] = os.Getenv(envVarName)
	}

	for key, value := range getK8sLabels() {
		result["k8s.label."+key] = value
	}

	return result
}
