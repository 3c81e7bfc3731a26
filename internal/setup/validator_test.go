package setup

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethpandaops/apiwatch/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()

	collection := filepath.Join(dir, "collection.json")
	require.NoError(t, os.WriteFile(collection, []byte(`{"info":{"name":"api"}}`), 0o600))

	environment := filepath.Join(dir, "environment.json")
	require.NoError(t, os.WriteFile(environment, []byte(`{"values":[]}`), 0o600))

	reports := filepath.Join(dir, "reports")
	require.NoError(t, os.Mkdir(reports, 0o755))

	data := filepath.Join(dir, "data")
	require.NoError(t, os.Mkdir(data, 0o755))

	return &config.Config{
		Environment: config.DefaultEnvironment,
		Newman: config.NewmanConfig{
			Binary:         "newman",
			Collection:     collection,
			Environment:    environment,
			IterationCount: 1,
			Timeout:        30 * time.Second,
		},
		Retry: config.RetryConfig{MaxRetries: 3, RetryDelay: 5 * time.Second},
		Reporting: config.ReportingConfig{
			ReportsDir:  reports,
			DataDir:     data,
			HistoryFile: filepath.Join(data, "test-history.json"),
		},
		Retention: config.RetentionConfig{MaxHistoryEntries: 100, KeepExports: 5},
	}
}

func fullEnv(name string) string {
	return map[string]string{
		config.EnvEmailUser:       "bot@example.com",
		config.EnvEmailPass:       "secret",
		config.EnvEmailTo:         "team@example.com, ops@example.com",
		config.EnvSlackWebhookURL: "https://hooks.slack.com/services/x",
		config.EnvTeamsWebhookURL: "https://example.webhook.office.com/x",
	}[name]
}

func newTestValidator(cfg *config.Config, getenv func(string) string) *Validator {
	v := NewValidator(logrus.New(), cfg, getenv)
	v.lookPath = func(name string) (string, error) {
		return "/usr/local/bin/" + name, nil
	}

	return v
}

func TestValidate_AllPass(t *testing.T) {
	t.Parallel()

	cfg := validConfig(t)
	report := newTestValidator(cfg, fullEnv).Validate()

	assert.True(t, report.Valid())

	entries, err := os.ReadDir(cfg.Reporting.ReportsDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, warned, failed := report.Counts()
	assert.Zero(t, warned)
	assert.Zero(t, failed)

	for _, section := range Sections {
		assert.NotEmpty(t, report.Section(section), section)
		assert.True(t, report.SectionValid(section), section)
	}
}

func TestValidate_Environment(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		config.EnvEmailUser: "not-an-address",
		config.EnvEmailPass: "secret",
	}

	report := newTestValidator(validConfig(t), func(k string) string { return env[k] }).Validate()

	assert.False(t, report.Valid())
	assert.False(t, report.SectionValid(SectionEnvironment))
	assert.True(t, report.SectionValid(SectionFiles))

	statuses := map[string]Status{}
	for _, c := range report.Section(SectionEnvironment) {
		statuses[c.Name] = c.Status
	}

	assert.Equal(t, StatusFail, statuses[config.EnvEmailTo])
	assert.Equal(t, StatusFail, statuses[config.EnvEmailUser+" format"])
	assert.Equal(t, StatusWarn, statuses[config.EnvSlackWebhookURL])
	assert.Equal(t, StatusWarn, statuses[config.EnvTeamsWebhookURL])
}

func TestValidate_Files(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(t *testing.T, cfg *config.Config)
		status Status
	}{
		{
			name: "missing collection",
			mutate: func(_ *testing.T, cfg *config.Config) {
				cfg.Newman.Collection = filepath.Join(filepath.Dir(cfg.Newman.Collection), "nope.json")
			},
			status: StatusFail,
		},
		{
			name: "invalid json",
			mutate: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				require.NoError(t, os.WriteFile(cfg.Newman.Collection, []byte("{not json"), 0o600))
			},
			status: StatusFail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig(t)
			tt.mutate(t, cfg)

			report := newTestValidator(cfg, fullEnv).Validate()

			checks := report.Section(SectionFiles)
			require.NotEmpty(t, checks)
			assert.Equal(t, "collection", checks[0].Name)
			assert.Equal(t, tt.status, checks[0].Status)
			assert.False(t, report.Valid())
		})
	}
}

func TestValidate_OptionalEnvironmentFile(t *testing.T) {
	t.Parallel()

	cfg := validConfig(t)
	cfg.Newman.Environment = ""

	report := newTestValidator(cfg, fullEnv).Validate()

	assert.True(t, report.Valid())
	assert.Equal(t, StatusWarn, report.Section(SectionFiles)[1].Status)
}

func TestValidate_Directories(t *testing.T) {
	t.Parallel()

	cfg := validConfig(t)
	cfg.Reporting.ReportsDir = filepath.Join(t.TempDir(), "missing")

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	cfg.Reporting.DataDir = file

	report := newTestValidator(cfg, fullEnv).Validate()

	checks := report.Section(SectionDirectories)
	require.Len(t, checks, 2)
	assert.Equal(t, StatusWarn, checks[0].Status)
	assert.Equal(t, StatusFail, checks[1].Status)
	assert.Contains(t, checks[1].Message, "not a directory")
}

func TestValidate_MissingNewman(t *testing.T) {
	t.Parallel()

	v := newTestValidator(validConfig(t), fullEnv)
	v.lookPath = func(string) (string, error) {
		return "", errors.New("executable file not found in $PATH")
	}

	report := v.Validate()

	assert.False(t, report.SectionValid(SectionDependencies))
	assert.Contains(t, report.Section(SectionDependencies)[0].Message, "npm install")
}

func TestValidate_Configuration(t *testing.T) {
	t.Parallel()

	cfg := validConfig(t)
	cfg.Retry.MaxRetries = -1
	cfg.Newman.IterationCount = 0

	report := newTestValidator(cfg, fullEnv).Validate()

	checks := report.Section(SectionConfiguration)
	assert.Len(t, checks, 2)
	assert.False(t, report.SectionValid(SectionConfiguration))
}

func TestStatus_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "pass", StatusPass.String())
	assert.Equal(t, "warn", StatusWarn.String())
	assert.Equal(t, "fail", StatusFail.String())
}
