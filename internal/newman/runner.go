package newman

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultBinary   = "newman"
	jsonReporter    = "json"
	htmlReporter    = "htmlextra"
	maxOutputLogged = 4096
)

var errNoCollection = errors.New("collection path is required")

// Runner is the test-execution capability: it runs a collection once and
// returns the raw run output.
type Runner interface {
	Run(ctx context.Context, opts Options) (*Summary, error)
}

// Options configures a single collection run.
type Options struct {
	Collection       string
	Environment      string
	Iterations       int
	Timeout          time.Duration
	DelayRequest     time.Duration
	Insecure         bool
	SuppressExitCode bool
	Reporters        []string
	JSONExport       string
	HTMLExtra        HTMLExtraOptions
}

// HTMLExtraOptions configures the htmlextra reporter when it is enabled.
type HTMLExtraOptions struct {
	Export            string
	Title             string
	BrowserTitle      string
	DarkTheme         bool
	SkipHeaders       string
	SkipSensitiveData bool
}

type cliRunner struct {
	binary string
	log    logrus.FieldLogger
}

// NewCLIRunner returns a Runner that shells out to the newman binary and
// reads the JSON reporter export once the process exits.
func NewCLIRunner(log logrus.FieldLogger, binary string) Runner {
	if binary == "" {
		binary = defaultBinary
	}

	return &cliRunner{
		binary: binary,
		log:    log.WithField("component", "newman_runner"),
	}
}

// Run executes the collection and decodes the JSON export.
func (r *cliRunner) Run(ctx context.Context, opts Options) (*Summary, error) {
	if opts.Collection == "" {
		return nil, errNoCollection
	}

	exportPath := opts.JSONExport
	if exportPath == "" {
		tmp, err := os.CreateTemp("", "newman-summary-*.json")
		if err != nil {
			return nil, fmt.Errorf("creating summary file: %w", err)
		}
		_ = tmp.Close()
		exportPath = tmp.Name()
		defer func() { _ = os.Remove(exportPath) }()
	}

	opts.JSONExport = exportPath

	if err := ensureParentDirs(opts); err != nil {
		return nil, err
	}

	// A stale export from a previous run must never be mistaken for this one.
	if err := os.Remove(exportPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale summary: %w", err)
	}

	args := buildArgs(opts)

	r.log.WithFields(logrus.Fields{
		"command":    fmt.Sprintf("%s %s", r.binary, strings.Join(args, " ")),
		"collection": opts.Collection,
	}).Debug("executing newman")

	start := time.Now()

	cmd := exec.CommandContext(ctx, r.binary, args...) //nolint:gosec // G204: binary and arguments come from resolved config

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("running newman: %w (stderr: %s)", err, truncate(stderr.String()))
	}

	r.log.WithFields(logrus.Fields{
		"duration": time.Since(start),
		"output":   truncate(stdout.String()),
	}).Debug("newman finished")

	file, err := os.Open(exportPath) //nolint:gosec // G304: export path is controlled by config
	if err != nil {
		return nil, fmt.Errorf("opening newman summary: %w", err)
	}
	defer func() { _ = file.Close() }()

	return ParseSummary(file)
}

// buildArgs converts options into newman CLI arguments.
func buildArgs(opts Options) []string {
	args := []string{"run", opts.Collection}

	if opts.Environment != "" {
		args = append(args, "--environment", opts.Environment)
	}

	if opts.Iterations > 0 {
		args = append(args, "--iteration-count", strconv.Itoa(opts.Iterations))
	}

	if opts.Timeout > 0 {
		args = append(args, "--timeout-request", strconv.FormatInt(opts.Timeout.Milliseconds(), 10))
	}

	if opts.DelayRequest > 0 {
		args = append(args, "--delay-request", strconv.FormatInt(opts.DelayRequest.Milliseconds(), 10))
	}

	if opts.Insecure {
		args = append(args, "--insecure")
	}

	if opts.SuppressExitCode {
		args = append(args, "--suppress-exit-code")
	}

	reporters := withJSONReporter(opts.Reporters)
	args = append(args,
		"--reporters", strings.Join(reporters, ","),
		"--reporter-json-export", opts.JSONExport,
	)

	if contains(reporters, htmlReporter) && opts.HTMLExtra.Export != "" {
		h := opts.HTMLExtra
		args = append(args, "--reporter-htmlextra-export", h.Export)

		if h.Title != "" {
			args = append(args, "--reporter-htmlextra-title", h.Title)
		}

		if h.BrowserTitle != "" {
			args = append(args, "--reporter-htmlextra-browserTitle", h.BrowserTitle)
		}

		if h.DarkTheme {
			args = append(args, "--reporter-htmlextra-darkTheme")
		}

		if h.SkipHeaders != "" {
			args = append(args, "--reporter-htmlextra-skipHeaders", h.SkipHeaders)
		}

		if h.SkipSensitiveData {
			args = append(args, "--reporter-htmlextra-skipSensitiveData")
		}
	}

	return args
}

// withJSONReporter guarantees the json reporter is enabled; the summary is read from its export.
func withJSONReporter(reporters []string) []string {
	out := make([]string, 0, len(reporters)+1)
	out = append(out, reporters...)

	if !contains(out, jsonReporter) {
		out = append(out, jsonReporter)
	}

	return out
}

func ensureParentDirs(opts Options) error {
	paths := []string{opts.JSONExport}
	if opts.HTMLExtra.Export != "" {
		paths = append(paths, opts.HTMLExtra.Export)
	}

	for _, p := range paths {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil { //nolint:gosec // G301: report directory with standard permissions
			return fmt.Errorf("creating report directory: %w", err)
		}
	}

	return nil
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}

	return false
}

func truncate(s string) string {
	if len(s) <= maxOutputLogged {
		return s
	}

	return s[:maxOutputLogged] + "..."
}
