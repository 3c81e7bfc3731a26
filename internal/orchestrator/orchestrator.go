// Package orchestrator runs a collection end to end: execution, extraction,
// history, trend analysis, reporting and delivery.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/ethpandaops/apiwatch/internal/config"
	"github.com/ethpandaops/apiwatch/internal/history"
	"github.com/ethpandaops/apiwatch/internal/metrics"
	"github.com/ethpandaops/apiwatch/internal/newman"
	"github.com/ethpandaops/apiwatch/internal/notify"
	"github.com/ethpandaops/apiwatch/internal/output"
	"github.com/ethpandaops/apiwatch/internal/report"
	"github.com/ethpandaops/apiwatch/internal/retention"
	"github.com/ethpandaops/apiwatch/internal/trend"
	"github.com/sirupsen/logrus"
)

// Phase names recorded in the metrics collector.
const (
	PhaseBootstrap    = "bootstrap"
	PhaseHousekeeping = "housekeeping"
	PhaseExecute      = "execute"
	PhaseExtract      = "extract"
	PhaseHistory      = "history"
	PhaseReport       = "report"
	PhaseDeliver      = "deliver"
)

// Executor runs the collection with retries.
type Executor interface {
	Execute(ctx context.Context, opts newman.Options) (*newman.Summary, error)
}

// Notifier delivers a message to every configured channel.
type Notifier interface {
	Dispatch(ctx context.Context, msg notify.Message) []*notify.DeliveryError
}

// Recorder stores a run record in long-term storage.
type Recorder interface {
	Insert(ctx context.Context, rec *report.Record, environment string) error
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Logger    logrus.FieldLogger
	Settings  *config.Config
	Executor  Executor
	Metrics   metrics.Collector
	History   *history.Store
	Retention *retention.Manager
	Notifier  Notifier
	// Recorder is optional; nil disables the warehouse.
	Recorder Recorder
	Writer   io.Writer
}

// Outcome is the result of one completed run.
type Outcome struct {
	Record        *report.Record
	Analysis      trend.Analysis
	HistorySize   int
	LatestRunPath string
	Deliveries    []*notify.DeliveryError
	WarehouseErr  error
}

// ExitCode is 0 iff no assertion failed.
func (o *Outcome) ExitCode() int {
	return o.Record.ExitCode()
}

// latestRun is the document written to the reports directory after a run.
type latestRun struct {
	Record   *report.Record `json:"record"`
	Analysis trend.Analysis `json:"analysis"`
}

// Orchestrator coordinates a single run.
type Orchestrator struct {
	log         logrus.FieldLogger
	cfg         *config.Config
	executor    Executor
	metrics     metrics.Collector
	store       *history.Store
	maintenance *Maintenance
	notifier    Notifier
	recorder    Recorder
	formatter   output.Formatter
	now         func() time.Time
}

// New creates an orchestrator.
func New(cfg *Config) *Orchestrator {
	writer := cfg.Writer
	if writer == nil {
		writer = os.Stdout
	}

	return &Orchestrator{
		log:         cfg.Logger.WithField("component", "orchestrator"),
		cfg:         cfg.Settings,
		executor:    cfg.Executor,
		metrics:     cfg.Metrics,
		store:       cfg.History,
		maintenance: NewMaintenance(cfg.Logger, cfg.Settings, cfg.History, cfg.Retention),
		notifier:    cfg.Notifier,
		recorder:    cfg.Recorder,
		formatter:   output.NewFormatter(writer),
		now:         time.Now,
	}
}

// Run executes the collection once and records, analyzes, reports and
// delivers the result. Execution and extraction failures are returned after a
// best-effort failure notification; every later failure is logged and the
// run's own outcome is still returned.
func (o *Orchestrator) Run(ctx context.Context) (*Outcome, error) {
	o.log.WithFields(logrus.Fields{
		"environment": o.cfg.Environment,
		"collection":  o.cfg.Newman.Collection,
	}).Info("starting run")

	if err := o.metrics.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting metrics collector: %w", err)
	}
	defer func() { _ = o.metrics.Stop() }()

	o.formatter.PrintPhase("Preparing")

	if err := o.timed(PhaseBootstrap, o.bootstrap); err != nil {
		return nil, err
	}

	_ = o.timed(PhaseHousekeeping, func() error {
		o.housekeeping()
		return nil
	})

	o.formatter.PrintPhase("Running collection")

	var summary *newman.Summary

	err := o.timed(PhaseExecute, func() error {
		var execErr error
		summary, execErr = o.executor.Execute(ctx, o.newmanOptions())
		return execErr
	})

	o.formatter.PrintRetryMetrics(o.metrics.GetSummary(), o.metrics.GetAttemptMetrics())

	if err != nil {
		o.formatter.PrintError("Collection run failed", err)
		o.notifyFailure(ctx, err)

		return nil, err
	}

	var rec *report.Record

	err = o.timed(PhaseExtract, func() error {
		var extractErr error
		rec, extractErr = report.Extract(summary)
		return extractErr
	})
	if err != nil {
		o.formatter.PrintError("Could not read newman output", err)
		o.notifyFailure(ctx, err)

		return nil, err
	}

	var records []report.Record

	_ = o.timed(PhaseHistory, func() error {
		records = o.appendHistory(rec)
		return nil
	})

	outcome := &Outcome{
		Record:      rec,
		Analysis:    trend.Analyze(records),
		HistorySize: len(records),
	}

	_ = o.timed(PhaseReport, func() error {
		o.render(outcome)
		return nil
	})

	_ = o.timed(PhaseDeliver, func() error {
		o.deliver(ctx, outcome)
		return nil
	})

	o.log.WithFields(logrus.Fields{
		"success_rate": rec.SuccessRate.String(),
		"failed":       rec.Stats.Assertions.Failed,
		"exit_code":    outcome.ExitCode(),
	}).Info("run complete")

	return outcome, nil
}

func (o *Orchestrator) timed(phase string, fn func() error) error {
	start := time.Now()
	err := fn()
	o.metrics.RecordPhase(phase, time.Since(start))

	return err
}

// bootstrap creates every output directory and the history file.
func (o *Orchestrator) bootstrap() error {
	dirs := []string{
		o.cfg.Reporting.ReportsDir,
		o.cfg.Reporting.DataDir,
		filepath.Dir(o.cfg.Reporting.HistoryFile),
	}

	if o.cfg.Newman.JSONExport != "" {
		dirs = append(dirs, filepath.Dir(o.cfg.Newman.JSONExport))
	}

	if o.cfg.Newman.HTMLExtra.Export != "" {
		dirs = append(dirs, filepath.Dir(o.cfg.Newman.HTMLExtra.Export))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: report directories with standard permissions
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	if err := o.store.Init(); err != nil {
		return fmt.Errorf("initializing history: %w", err)
	}

	return nil
}

// housekeeping applies retention before the run. Failures only warn.
func (o *Orchestrator) housekeeping() {
	if _, err := o.maintenance.PruneReports(false); err != nil {
		o.log.WithError(err).Warn("report cleanup failed")
	}

	if _, err := o.maintenance.TrimHistory(false); err != nil {
		o.log.WithError(err).Warn("history trim failed")
	}
}

func (o *Orchestrator) newmanOptions() newman.Options {
	n := o.cfg.Newman

	return newman.Options{
		Collection:       n.Collection,
		Environment:      n.Environment,
		Iterations:       n.IterationCount,
		Timeout:          n.Timeout,
		DelayRequest:     n.DelayRequest,
		Insecure:         n.Insecure,
		SuppressExitCode: true,
		Reporters:        n.Reporters,
		JSONExport:       n.JSONExport,
		HTMLExtra: newman.HTMLExtraOptions{
			Export:            n.HTMLExtra.Export,
			Title:             n.HTMLExtra.Title,
			BrowserTitle:      n.HTMLExtra.BrowserTitle,
			DarkTheme:         n.HTMLExtra.DarkTheme,
			SkipHeaders:       n.HTMLExtra.SkipHeaders,
			SkipSensitiveData: n.HTMLExtra.SkipSensitiveData,
		},
	}
}

// appendHistory persists rec and returns the history to analyze. A corrupt
// file is reset; any other store failure falls back to analyzing rec alone.
func (o *Orchestrator) appendHistory(rec *report.Record) []report.Record {
	records, err := o.store.Append(rec)
	if err == nil {
		return records
	}

	var corrupt *history.StoreCorruptError
	if errors.As(err, &corrupt) {
		o.log.WithError(err).WithField("path", corrupt.Path).Warn("history file corrupt, resetting")

		if resetErr := o.store.Reset(); resetErr != nil {
			o.log.WithError(resetErr).Warn("failed to reset history")
			return []report.Record{*rec}
		}

		records, err = o.store.Append(rec)
		if err == nil {
			return records
		}
	}

	o.log.WithError(err).Warn("failed to save run to history, analyzing current run only")

	return []report.Record{*rec}
}

func (o *Orchestrator) render(outcome *Outcome) {
	o.formatter.PrintRunSummary(outcome.Record)
	o.formatter.PrintFailures(outcome.Record.Failures)

	if o.cfg.Reporting.GenerateTrends {
		o.formatter.PrintTrend(outcome.Analysis)
	}

	path := filepath.Join(o.cfg.Reporting.ReportsDir, config.LatestRunFile)

	if err := writeJSON(path, latestRun{Record: outcome.Record, Analysis: outcome.Analysis}); err != nil {
		o.log.WithError(err).Warn("failed to write latest run")
		return
	}

	outcome.LatestRunPath = path
	o.formatter.PrintProgress("Saved "+path, 0)
}

// deliver writes the record to the warehouse and sends notifications. Both
// are best effort.
func (o *Orchestrator) deliver(ctx context.Context, outcome *Outcome) {
	if o.recorder != nil {
		if err := o.recorder.Insert(ctx, outcome.Record, o.cfg.Environment); err != nil {
			o.log.WithError(err).Warn("failed to store run in warehouse")
			outcome.WarehouseErr = err
		}
	}

	if o.notifier == nil {
		return
	}

	msg := notify.ResultMessage(outcome.Record, &outcome.Analysis, o.cfg.Environment, o.htmlReportPath())
	outcome.Deliveries = o.notifier.Dispatch(ctx, msg)

	for _, d := range outcome.Deliveries {
		o.formatter.PrintWarning(d.Error())
	}
}

func (o *Orchestrator) notifyFailure(ctx context.Context, err error) {
	if o.notifier == nil {
		return
	}

	// The run context may already be canceled; delivery gets its own budget.
	deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()

	for _, d := range o.notifier.Dispatch(deliverCtx, notify.FailureMessage(err, o.now(), o.cfg.Environment)) {
		o.log.WithError(d.Err).WithField("channel", d.Channel).Warn("failure notification not delivered")
	}
}

func (o *Orchestrator) htmlReportPath() string {
	if !slices.Contains(o.cfg.Newman.Reporters, config.ReporterHTMLExtra) {
		return ""
	}

	return o.cfg.Newman.HTMLExtra.Export
}
