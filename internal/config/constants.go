package config

const (
	// DefaultEnvironment is the profile used when no environment is named.
	DefaultEnvironment = "default"
	// DefaultConfigFile is the optional layered config file looked up in the base directory.
	DefaultConfigFile = "apiwatch.yaml"
	// EnvironmentVar selects the environment profile.
	EnvironmentVar = "APIWATCH_ENV"
	// LegacyEnvironmentVar is consulted when EnvironmentVar is unset.
	LegacyEnvironmentVar = "NODE_ENV"
	// LatestRunFile is written to the reports directory after every run.
	LatestRunFile = "latest-run.json"
	// ExportPattern matches history export snapshots in the data directory.
	ExportPattern = "test-export-*"
	// MigrationsTable tracks applied warehouse schema migrations.
	MigrationsTable = "apiwatch_schema_migrations"
	// NewmanBinary is the default test runner executable.
	NewmanBinary = "newman"
	// ReporterHTMLExtra is the newman reporter that produces the HTML report.
	ReporterHTMLExtra = "htmlextra"
)

// Process environment variables applied on top of file configuration.
const (
	EnvEmailUser       = "EMAIL_USER"
	EnvEmailPass       = "EMAIL_PASS"
	EnvEmailTo         = "EMAIL_TO"
	EnvEmailCC         = "EMAIL_CC"
	EnvEmailBCC        = "EMAIL_BCC"
	EnvDevEmailTo      = "DEV_EMAIL_TO"
	EnvStagingEmailTo  = "STAGING_EMAIL_TO"
	EnvSlackWebhookURL = "SLACK_WEBHOOK_URL"
	EnvSlackChannel    = "SLACK_CHANNEL"
	EnvTeamsWebhookURL = "TEAMS_WEBHOOK_URL"
	EnvClickHouseURL   = "CLICKHOUSE_URL"
)
