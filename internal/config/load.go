package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var builtinDefaults []byte

// layeredFile is the on-disk layout shared by the built-in profiles and the
// user config file.
type layeredFile struct {
	Default      yaml.Node            `yaml:"default"`
	Environments map[string]yaml.Node `yaml:"environments"`
}

// Overrides carries CLI flag values. Nil pointers and empty strings leave the
// resolved value unchanged.
type Overrides struct {
	Collection      string
	EnvironmentFile string
	ReportsDir      string
	DataDir         string
	IterationCount  *int
	RequestTimeout  *time.Duration
	DelayRequest    *time.Duration
	MaxRetries      *int
	RetryDelay      *time.Duration
	RunTimeout      *time.Duration
	Insecure        *bool
}

// LoadOptions controls config resolution.
type LoadOptions struct {
	// Environment selects the profile; empty means DefaultEnvironment.
	Environment string
	// File is an explicit config file. When empty, DefaultConfigFile in
	// BaseDir is used if it exists.
	File string
	// BaseDir anchors relative paths. Defaults to the working directory.
	BaseDir string
	// Getenv reads process environment variables. Nil disables the env layer.
	Getenv    func(key string) string
	Overrides Overrides
}

// ResolveEnvironment picks the profile name: the explicit value, then
// APIWATCH_ENV, then NODE_ENV, then DefaultEnvironment.
func ResolveEnvironment(explicit string, getenv func(string) string) string {
	if explicit != "" {
		return explicit
	}

	if getenv != nil {
		for _, key := range []string{EnvironmentVar, LegacyEnvironmentVar} {
			if v := strings.TrimSpace(getenv(key)); v != "" {
				return v
			}
		}
	}

	return DefaultEnvironment
}

// Load resolves the configuration. Layers apply lowest to highest: built-in
// default, built-in environment profile, file default, file environment,
// process environment, CLI overrides. Keys absent from a layer are inherited
// and lists are replaced wholesale.
func Load(log logrus.FieldLogger, opts LoadOptions) (*Config, error) {
	log = log.WithField("component", "config_loader")

	env := opts.Environment
	if env == "" {
		env = DefaultEnvironment
	}

	baseDir := opts.BaseDir
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving working directory: %w", err)
		}

		baseDir = wd
	}

	cfg := &Config{Environment: env, BaseDir: baseDir}

	builtin, err := parseLayers(builtinDefaults)
	if err != nil {
		return nil, fmt.Errorf("parsing built-in defaults: %w", err)
	}

	known, err := builtin.apply(cfg, env)
	if err != nil {
		return nil, fmt.Errorf("applying built-in defaults: %w", err)
	}

	path, err := locateFile(opts.File, baseDir)
	if err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // G304: config path supplied by the operator
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		file, err := parseLayers(data)
		if err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}

		fileKnown, err := file.apply(cfg, env)
		if err != nil {
			return nil, fmt.Errorf("applying config file %s: %w", path, err)
		}

		known = known || fileKnown
		cfg.File = path
	}

	if !known && env != DefaultEnvironment {
		log.WithField("environment", env).Warn("unknown environment, using default configuration")
	}

	if opts.Getenv != nil {
		applyEnv(cfg, env, opts.Getenv)
	}

	applyOverrides(cfg, opts.Overrides)
	resolvePaths(cfg)

	log.WithFields(logrus.Fields{
		"environment": env,
		"file":        cfg.File,
	}).Debug("configuration resolved")

	return cfg, nil
}

func parseLayers(data []byte) (*layeredFile, error) {
	var layers layeredFile

	if len(bytes.TrimSpace(data)) == 0 {
		return &layers, nil
	}

	if err := yaml.Unmarshal(data, &layers); err != nil {
		return nil, err
	}

	return &layers, nil
}

// apply decodes the default layer and then the named environment onto cfg.
// It reports whether the environment had a profile in this file.
func (l *layeredFile) apply(cfg *Config, env string) (bool, error) {
	if err := decodeLayer(&l.Default, cfg); err != nil {
		return false, fmt.Errorf("default layer: %w", err)
	}

	if env == DefaultEnvironment {
		return true, nil
	}

	node, ok := l.Environments[env]
	if !ok {
		return false, nil
	}

	if err := decodeLayer(&node, cfg); err != nil {
		return false, fmt.Errorf("environment %q: %w", env, err)
	}

	return true, nil
}

// decodeLayer merges a mapping node onto cfg. Empty or null layers are skipped
// so they cannot zero inherited values.
func decodeLayer(node *yaml.Node, cfg *Config) error {
	if node.Kind != yaml.MappingNode {
		return nil
	}

	return node.Decode(cfg)
}

func locateFile(explicit, baseDir string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}

		return explicit, nil
	}

	candidate := filepath.Join(baseDir, DefaultConfigFile)

	if _, err := os.Stat(candidate); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}

		return "", fmt.Errorf("config file: %w", err)
	}

	return candidate, nil
}

func applyEnv(cfg *Config, env string, getenv func(string) string) {
	if v := getenv(EnvEmailUser); v != "" {
		cfg.Email.Username = v
	}

	if v := getenv(EnvEmailPass); v != "" {
		cfg.Email.Password = v
	}

	if v := getenv(EnvEmailTo); v != "" {
		cfg.Email.To = splitList(v)
	}

	switch env {
	case "development":
		if v := getenv(EnvDevEmailTo); v != "" {
			cfg.Email.To = splitList(v)
		}
	case "staging":
		if v := getenv(EnvStagingEmailTo); v != "" {
			cfg.Email.To = splitList(v)
		}
	}

	if v := getenv(EnvEmailCC); v != "" {
		cfg.Email.CC = splitList(v)
	}

	if v := getenv(EnvEmailBCC); v != "" {
		cfg.Email.BCC = splitList(v)
	}

	if v := getenv(EnvSlackWebhookURL); v != "" {
		cfg.Notifications.Slack.WebhookURL = v
	}

	if v := getenv(EnvSlackChannel); v != "" {
		cfg.Notifications.Slack.Channel = v
	}

	if v := getenv(EnvTeamsWebhookURL); v != "" {
		cfg.Notifications.Teams.WebhookURL = v
	}

	if v := getenv(EnvClickHouseURL); v != "" {
		cfg.ClickHouse.URL = v
	}
}

func applyOverrides(cfg *Config, o Overrides) {
	if o.Collection != "" {
		cfg.Newman.Collection = o.Collection
	}

	if o.EnvironmentFile != "" {
		cfg.Newman.Environment = o.EnvironmentFile
	}

	if o.ReportsDir != "" {
		cfg.Reporting.ReportsDir = o.ReportsDir
	}

	if o.DataDir != "" {
		cfg.Reporting.DataDir = o.DataDir
	}

	if o.IterationCount != nil {
		cfg.Newman.IterationCount = *o.IterationCount
	}

	if o.RequestTimeout != nil {
		cfg.Newman.Timeout = *o.RequestTimeout
	}

	if o.DelayRequest != nil {
		cfg.Newman.DelayRequest = *o.DelayRequest
	}

	if o.MaxRetries != nil {
		cfg.Retry.MaxRetries = *o.MaxRetries
	}

	if o.RetryDelay != nil {
		cfg.Retry.RetryDelay = *o.RetryDelay
	}

	if o.RunTimeout != nil {
		cfg.RunTimeout = *o.RunTimeout
	}

	if o.Insecure != nil {
		cfg.Newman.Insecure = *o.Insecure
	}
}

// resolvePaths anchors relative paths at BaseDir.
func resolvePaths(cfg *Config) {
	for _, p := range []*string{
		&cfg.Newman.Collection,
		&cfg.Newman.Environment,
		&cfg.Newman.JSONExport,
		&cfg.Newman.HTMLExtra.Export,
		&cfg.Reporting.ReportsDir,
		&cfg.Reporting.DataDir,
		&cfg.Reporting.HistoryFile,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(cfg.BaseDir, *p)
		}
	}
}

// splitList parses a comma-separated list, dropping blanks.
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}

	return out
}
