// Package setup checks that the local environment can run collections.
package setup

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"os"
	"os/exec"
	"strings"

	"github.com/ethpandaops/apiwatch/internal/config"
	"github.com/sirupsen/logrus"
)

// Section names, reported in this order.
const (
	SectionEnvironment   = "environment"
	SectionFiles         = "files"
	SectionDirectories   = "directories"
	SectionDependencies  = "dependencies"
	SectionConfiguration = "configuration"
)

// Sections lists every section in report order.
var Sections = []string{
	SectionEnvironment,
	SectionFiles,
	SectionDirectories,
	SectionDependencies,
	SectionConfiguration,
}

// Status is the outcome of one check.
type Status int

// Check outcomes. Warnings never fail validation.
const (
	StatusPass Status = iota
	StatusWarn
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	default:
		return "fail"
	}
}

// Check is a single validation result.
type Check struct {
	Section string
	Name    string
	Status  Status
	Message string
}

// Report collects the checks of one validation pass.
type Report struct {
	Checks []Check
}

func (r *Report) add(section, name string, status Status, format string, args ...any) {
	r.Checks = append(r.Checks, Check{
		Section: section,
		Name:    name,
		Status:  status,
		Message: fmt.Sprintf(format, args...),
	})
}

// Valid is false when any check failed.
func (r *Report) Valid() bool {
	for _, c := range r.Checks {
		if c.Status == StatusFail {
			return false
		}
	}

	return true
}

// SectionValid is false when any check in section failed.
func (r *Report) SectionValid(section string) bool {
	for _, c := range r.Section(section) {
		if c.Status == StatusFail {
			return false
		}
	}

	return true
}

// Section returns the checks belonging to section.
func (r *Report) Section(section string) []Check {
	var out []Check

	for _, c := range r.Checks {
		if c.Section == section {
			out = append(out, c)
		}
	}

	return out
}

// Counts returns the number of passed, warned and failed checks.
func (r *Report) Counts() (passed, warned, failed int) {
	for _, c := range r.Checks {
		switch c.Status {
		case StatusPass:
			passed++
		case StatusWarn:
			warned++
		case StatusFail:
			failed++
		}
	}

	return passed, warned, failed
}

// Validator inspects environment variables, files, directories, tools and
// the resolved configuration.
type Validator struct {
	log      logrus.FieldLogger
	cfg      *config.Config
	getenv   func(string) string
	lookPath func(string) (string, error)
}

// NewValidator creates a validator. getenv defaults to os.Getenv.
func NewValidator(log logrus.FieldLogger, cfg *config.Config, getenv func(string) string) *Validator {
	if getenv == nil {
		getenv = os.Getenv
	}

	return &Validator{
		log:      log.WithField("component", "setup_validator"),
		cfg:      cfg,
		getenv:   getenv,
		lookPath: exec.LookPath,
	}
}

// Validate runs every section and returns the combined report.
func (v *Validator) Validate() *Report {
	report := &Report{}

	v.checkEnvironment(report)
	v.checkFiles(report)
	v.checkDirectories(report)
	v.checkDependencies(report)
	v.checkConfiguration(report)

	passed, warned, failed := report.Counts()
	v.log.WithFields(logrus.Fields{
		"passed": passed,
		"warned": warned,
		"failed": failed,
	}).Debug("setup validation finished")

	return report
}

func (v *Validator) checkEnvironment(r *Report) {
	for _, name := range []string{config.EnvEmailUser, config.EnvEmailPass, config.EnvEmailTo} {
		if strings.TrimSpace(v.getenv(name)) == "" {
			r.add(SectionEnvironment, name, StatusFail, "required variable is not set")
			continue
		}

		r.add(SectionEnvironment, name, StatusPass, "set")
	}

	for _, name := range []string{config.EnvSlackWebhookURL, config.EnvTeamsWebhookURL} {
		if strings.TrimSpace(v.getenv(name)) == "" {
			r.add(SectionEnvironment, name, StatusWarn, "not set, channel disabled")
			continue
		}

		r.add(SectionEnvironment, name, StatusPass, "set")
	}

	for _, name := range []string{config.EnvEmailUser, config.EnvEmailTo, config.EnvEmailCC} {
		value := strings.TrimSpace(v.getenv(name))
		if value == "" {
			continue
		}

		if _, err := mail.ParseAddressList(value); err != nil {
			r.add(SectionEnvironment, name+" format", StatusFail, "invalid email address: %v", err)
			continue
		}

		r.add(SectionEnvironment, name+" format", StatusPass, "valid email address")
	}
}

func (v *Validator) checkFiles(r *Report) {
	checkJSON(r, "collection", v.cfg.Newman.Collection, true)
	checkJSON(r, "environment", v.cfg.Newman.Environment, false)
}

func checkJSON(r *Report, name, path string, required bool) {
	if path == "" {
		if required {
			r.add(SectionFiles, name, StatusFail, "no path configured")
		} else {
			r.add(SectionFiles, name, StatusWarn, "no path configured")
		}

		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.add(SectionFiles, name, StatusFail, "%s does not exist", path)
		} else {
			r.add(SectionFiles, name, StatusFail, "reading %s: %v", path, err)
		}

		return
	}

	if !json.Valid(data) {
		r.add(SectionFiles, name, StatusFail, "%s is not valid JSON", path)
		return
	}

	r.add(SectionFiles, name, StatusPass, "%s", path)
}

func (v *Validator) checkDirectories(r *Report) {
	dirs := []struct{ name, path string }{
		{"reports", v.cfg.Reporting.ReportsDir},
		{"data", v.cfg.Reporting.DataDir},
	}

	for _, d := range dirs {
		info, err := os.Stat(d.path)

		switch {
		case errors.Is(err, os.ErrNotExist):
			r.add(SectionDirectories, d.name, StatusWarn, "%s does not exist, created on first run", d.path)
		case err != nil:
			r.add(SectionDirectories, d.name, StatusFail, "stat %s: %v", d.path, err)
		case !info.IsDir():
			r.add(SectionDirectories, d.name, StatusFail, "%s is not a directory", d.path)
		default:
			if err := checkWritable(d.path); err != nil {
				r.add(SectionDirectories, d.name, StatusFail, "%s is not writable: %v", d.path, err)
				continue
			}

			r.add(SectionDirectories, d.name, StatusPass, "%s", d.path)
		}
	}
}

func checkWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".apiwatch-write-check-*")
	if err != nil {
		return err
	}

	name := f.Name()
	_ = f.Close()

	return os.Remove(name)
}

func (v *Validator) checkDependencies(r *Report) {
	binary := v.cfg.Newman.Binary
	if binary == "" {
		binary = config.NewmanBinary
	}

	path, err := v.lookPath(binary)
	if err != nil {
		r.add(SectionDependencies, binary, StatusFail, "not found on PATH, install with: npm install -g newman newman-reporter-htmlextra")
		return
	}

	r.add(SectionDependencies, binary, StatusPass, "%s", path)
}

func (v *Validator) checkConfiguration(r *Report) {
	err := v.cfg.Validate()
	if err == nil {
		r.add(SectionConfiguration, "config", StatusPass, "environment %q", v.cfg.Environment)
		return
	}

	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		for _, e := range joined.Unwrap() {
			r.add(SectionConfiguration, "config", StatusFail, "%v", e)
		}

		return
	}

	r.add(SectionConfiguration, "config", StatusFail, "%v", err)
}
