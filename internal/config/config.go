// Package config handles configuration loading and management
package config

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

var (
	errNegativeRetries     = errors.New("retry.maxRetries must not be negative")
	errNegativeRetryDelay  = errors.New("retry.retryDelay must not be negative")
	errIterationCount      = errors.New("newman.iterationCount must be at least 1")
	errCollectionRequired  = errors.New("newman.collection is required")
	errNegativeTimeout     = errors.New("newman.timeout must not be negative")
	errNegativeDelay       = errors.New("newman.delayRequest must not be negative")
	errRetentionCap        = errors.New("retention.maxHistoryEntries must be at least 1")
	errNegativeKeepExports = errors.New("retention.keepExports must not be negative")
	errHistoryFileRequired = errors.New("reporting.historyFile is required")
	errInvalidEmailAddress = errors.New("invalid email address")
)

// Config is the resolved, immutable application configuration. It is built
// once at startup and passed into constructors.
type Config struct {
	Environment string `yaml:"-"`
	BaseDir     string `yaml:"-"`
	File        string `yaml:"-"`

	RunTimeout    time.Duration       `yaml:"runTimeout"`
	Newman        NewmanConfig        `yaml:"newman"`
	Retry         RetryConfig         `yaml:"retry"`
	Reporting     ReportingConfig     `yaml:"reporting"`
	Retention     RetentionConfig     `yaml:"retention"`
	Email         EmailConfig         `yaml:"email"`
	Notifications NotificationsConfig `yaml:"notifications"`
	ClickHouse    ClickHouseConfig    `yaml:"clickhouse"`
}

// NewmanConfig configures the collection runner.
type NewmanConfig struct {
	Binary         string          `yaml:"binary"`
	Collection     string          `yaml:"collection"`
	Environment    string          `yaml:"environment"`
	Reporters      []string        `yaml:"reporters"`
	JSONExport     string          `yaml:"jsonExport"`
	HTMLExtra      HTMLExtraConfig `yaml:"htmlextra"`
	IterationCount int             `yaml:"iterationCount"`
	Timeout        time.Duration   `yaml:"timeout"`
	DelayRequest   time.Duration   `yaml:"delayRequest"`
	Insecure       bool            `yaml:"insecure"`
}

// HTMLExtraConfig configures the htmlextra reporter.
type HTMLExtraConfig struct {
	Export            string `yaml:"export"`
	Title             string `yaml:"title"`
	BrowserTitle      string `yaml:"browserTitle"`
	DarkTheme         bool   `yaml:"darkTheme"`
	SkipHeaders       string `yaml:"skipHeaders"`
	SkipSensitiveData bool   `yaml:"skipSensitiveData"`
}

// RetryConfig configures the run retry policy.
type RetryConfig struct {
	MaxRetries     int           `yaml:"maxRetries"`
	RetryDelay     time.Duration `yaml:"retryDelay"`
	RetryOnFailure bool          `yaml:"retryOnFailure"`
}

// EffectiveMaxRetries is zero when retries are switched off.
func (r RetryConfig) EffectiveMaxRetries() int {
	if !r.RetryOnFailure {
		return 0
	}

	return r.MaxRetries
}

// ReportingConfig locates run artifacts.
type ReportingConfig struct {
	ReportsDir     string `yaml:"reportsDir"`
	DataDir        string `yaml:"dataDir"`
	HistoryFile    string `yaml:"historyFile"`
	GenerateTrends bool   `yaml:"generateTrends"`
}

// RetentionConfig bounds on-disk artifacts.
type RetentionConfig struct {
	MaxHistoryEntries int           `yaml:"maxHistoryEntries"`
	ReportMaxAge      time.Duration `yaml:"reportMaxAge"`
	KeepExports       int           `yaml:"keepExports"`
}

// EmailConfig configures SMTP delivery.
type EmailConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	From     string   `yaml:"from"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	To       []string `yaml:"to"`
	CC       []string `yaml:"cc"`
	BCC      []string `yaml:"bcc"`
}

// Enabled reports whether credentials and at least one recipient are present.
func (e EmailConfig) Enabled() bool {
	return e.Username != "" && e.Password != "" && len(e.To) > 0
}

// Sender returns From, falling back to the SMTP username.
func (e EmailConfig) Sender() string {
	if e.From != "" {
		return e.From
	}

	return e.Username
}

// Recipients returns every envelope recipient.
func (e EmailConfig) Recipients() []string {
	out := make([]string, 0, len(e.To)+len(e.CC)+len(e.BCC))
	out = append(out, e.To...)
	out = append(out, e.CC...)
	out = append(out, e.BCC...)

	return out
}

// Addr returns host:port for net/smtp.
func (e EmailConfig) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// NotificationsConfig configures chat webhooks.
type NotificationsConfig struct {
	Slack SlackConfig `yaml:"slack"`
	Teams TeamsConfig `yaml:"teams"`
}

// SlackConfig configures the Slack incoming webhook.
type SlackConfig struct {
	WebhookURL string `yaml:"webhookUrl"`
	Channel    string `yaml:"channel"`
}

// Enabled is true when a webhook URL is configured.
func (s SlackConfig) Enabled() bool {
	return s.WebhookURL != ""
}

// TeamsConfig configures the Teams incoming webhook.
type TeamsConfig struct {
	WebhookURL string `yaml:"webhookUrl"`
}

// Enabled is true when a webhook URL is configured.
func (t TeamsConfig) Enabled() bool {
	return t.WebhookURL != ""
}

// ClickHouseConfig configures the optional run warehouse.
type ClickHouseConfig struct {
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
}

// Enabled is true when a connection URL is configured.
func (c ClickHouseConfig) Enabled() bool {
	return c.URL != ""
}

// Validate rejects configurations that cannot drive a run.
func (c *Config) Validate() error {
	var errs []error

	if c.Retry.MaxRetries < 0 {
		errs = append(errs, errNegativeRetries)
	}

	if c.Retry.RetryDelay < 0 {
		errs = append(errs, errNegativeRetryDelay)
	}

	if c.Newman.IterationCount < 1 {
		errs = append(errs, errIterationCount)
	}

	if strings.TrimSpace(c.Newman.Collection) == "" {
		errs = append(errs, errCollectionRequired)
	}

	if c.Newman.Timeout < 0 {
		errs = append(errs, errNegativeTimeout)
	}

	if c.Newman.DelayRequest < 0 {
		errs = append(errs, errNegativeDelay)
	}

	if c.Retention.MaxHistoryEntries < 1 {
		errs = append(errs, errRetentionCap)
	}

	if c.Retention.KeepExports < 0 {
		errs = append(errs, errNegativeKeepExports)
	}

	if strings.TrimSpace(c.Reporting.HistoryFile) == "" {
		errs = append(errs, errHistoryFileRequired)
	}

	for _, addr := range c.Email.Recipients() {
		if _, err := mail.ParseAddress(addr); err != nil {
			errs = append(errs, fmt.Errorf("%w %q", errInvalidEmailAddress, addr))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) String() string {
	fileDisplay := c.File
	if fileDisplay == "" {
		fileDisplay = "(built-in defaults)"
	}

	return fmt.Sprintf(`Current Configuration:
======================
Environment:          %s
Config File:          %s
Run Timeout:          %s

Newman:
  Collection:         %s
  Environment File:   %s
  Reporters:          %s
  Iterations:         %d
  Request Timeout:    %s
  Request Delay:      %s
  Insecure:           %t

Retry:
  Max Retries:        %d
  Retry Delay:        %s
  Retry On Failure:   %t

Reporting:
  Reports Dir:        %s
  Data Dir:           %s
  History File:       %s

Retention:
  Max History:        %d
  Report Max Age:     %s
  Keep Exports:       %d

Email:
  SMTP Server:        %s
  Username:           %s
  Password:           %s
  To:                 %s

Notifications:
  Slack Webhook:      %s
  Slack Channel:      %s
  Teams Webhook:      %s

ClickHouse:
  URL:                %s`,
		c.Environment,
		fileDisplay,
		displayDuration(c.RunTimeout),
		c.Newman.Collection,
		orNotSet(c.Newman.Environment),
		strings.Join(c.Newman.Reporters, ", "),
		c.Newman.IterationCount,
		c.Newman.Timeout,
		c.Newman.DelayRequest,
		c.Newman.Insecure,
		c.Retry.MaxRetries,
		c.Retry.RetryDelay,
		c.Retry.RetryOnFailure,
		c.Reporting.ReportsDir,
		c.Reporting.DataDir,
		c.Reporting.HistoryFile,
		c.Retention.MaxHistoryEntries,
		c.Retention.ReportMaxAge,
		c.Retention.KeepExports,
		c.Email.Addr(),
		orNotSet(c.Email.Username),
		mask(c.Email.Password),
		orNotSet(strings.Join(c.Email.To, ", ")),
		mask(c.Notifications.Slack.WebhookURL),
		orNotSet(c.Notifications.Slack.Channel),
		mask(c.Notifications.Teams.WebhookURL),
		maskURL(c.ClickHouse.URL),
	)
}

func mask(secret string) string {
	if secret == "" {
		return "(not set)"
	}

	return "********"
}

// maskURL hides the password in a connection URL.
func maskURL(raw string) string {
	if raw == "" {
		return "(not set)"
	}

	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return "********"
	}

	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return raw
	}

	user, _, _ := strings.Cut(creds, ":")

	return fmt.Sprintf("%s://%s:********@%s", scheme, user, host)
}

func orNotSet(s string) string {
	if s == "" {
		return "(not set)"
	}

	return s
}

func displayDuration(d time.Duration) string {
	if d <= 0 {
		return "(none)"
	}

	return d.String()
}
