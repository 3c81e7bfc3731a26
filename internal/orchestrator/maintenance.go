package orchestrator

import (
	"fmt"
	"time"

	"github.com/ethpandaops/apiwatch/internal/config"
	"github.com/ethpandaops/apiwatch/internal/history"
	"github.com/ethpandaops/apiwatch/internal/retention"
	"github.com/ethpandaops/apiwatch/internal/trend"
	"github.com/sirupsen/logrus"
)

// CleanupOptions selects which artifact kinds a cleanup pass touches.
type CleanupOptions struct {
	Reports bool
	History bool
	Exports bool
	DryRun  bool
}

// DefaultCleanupOptions cleans every artifact kind.
func DefaultCleanupOptions() CleanupOptions {
	return CleanupOptions{Reports: true, History: true, Exports: true}
}

// Maintenance applies retention to reports, history and exports and serves
// the read-only history commands.
type Maintenance struct {
	log       logrus.FieldLogger
	cfg       *config.Config
	store     *history.Store
	retention *retention.Manager
	now       func() time.Time
}

// NewMaintenance creates the maintenance service for cfg.
func NewMaintenance(log logrus.FieldLogger, cfg *config.Config, store *history.Store, mgr *retention.Manager) *Maintenance {
	return &Maintenance{
		log:       log.WithField("component", "maintenance"),
		cfg:       cfg,
		store:     store,
		retention: mgr,
		now:       time.Now,
	}
}

// Cleanup runs one retention pass. Failures are collected in the summary and
// never abort the pass.
func (m *Maintenance) Cleanup(opts CleanupOptions) *retention.CleanupSummary {
	summary := &retention.CleanupSummary{DryRun: opts.DryRun}

	before, err := retention.MeasureUsage(m.cfg.Reporting.DataDir, m.cfg.Reporting.ReportsDir)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Errorf("measuring storage: %w", err))
	}

	summary.Before = before

	if opts.Reports {
		result, err := m.PruneReports(opts.DryRun)
		if err != nil {
			summary.Errors = append(summary.Errors, err)
		}

		summary.Reports = result
	}

	if opts.History {
		trimmed, err := m.TrimHistory(opts.DryRun)
		summary.HistoryTrimmed = trimmed
		summary.HistoryError = err
	}

	if opts.Exports {
		result, err := m.PruneExports(opts.DryRun)
		if err != nil {
			summary.Errors = append(summary.Errors, err)
		}

		summary.Exports = result
	}

	after, err := retention.MeasureUsage(m.cfg.Reporting.DataDir, m.cfg.Reporting.ReportsDir)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Errorf("measuring storage: %w", err))
	}

	summary.After = after

	m.log.WithFields(logrus.Fields{
		"dry_run": opts.DryRun,
		"freed":   summary.Freed(),
		"errors":  summary.ErrorCount(),
	}).Info("cleanup complete")

	return summary
}

// PruneReports removes report files older than the configured maximum age.
func (m *Maintenance) PruneReports(dryRun bool) (*retention.Result, error) {
	result, err := m.retention.Prune(m.cfg.Reporting.ReportsDir, retention.Policy{
		MaxAge: m.cfg.Retention.ReportMaxAge,
		DryRun: dryRun,
	})
	if err != nil {
		return nil, fmt.Errorf("pruning reports: %w", err)
	}

	return result, nil
}

// PruneExports keeps the newest history export snapshots.
func (m *Maintenance) PruneExports(dryRun bool) (*retention.Result, error) {
	result, err := m.retention.Prune(m.cfg.Reporting.DataDir, retention.Policy{
		MaxCount: m.cfg.Retention.KeepExports,
		Pattern:  config.ExportPattern,
		DryRun:   dryRun,
	})
	if err != nil {
		return nil, fmt.Errorf("pruning exports: %w", err)
	}

	return result, nil
}

// TrimHistory cuts the history down to the retention cap. In dry-run mode it
// only reports whether a trim is due.
func (m *Maintenance) TrimHistory(dryRun bool) (bool, error) {
	if !dryRun {
		trimmed, err := m.store.Trim(m.cfg.Retention.MaxHistoryEntries)
		if err != nil {
			return false, fmt.Errorf("trimming history: %w", err)
		}

		return trimmed, nil
	}

	records, err := m.store.Load()
	if err != nil {
		return false, fmt.Errorf("loading history: %w", err)
	}

	return len(records) > m.cfg.Retention.MaxHistoryEntries, nil
}

// Export writes a snapshot of the history into the data directory.
func (m *Maintenance) Export(format history.ExportFormat) (string, error) {
	return m.store.Export(m.cfg.Reporting.DataDir, format, m.now())
}

// Summary aggregates the stored history.
func (m *Maintenance) Summary() (trend.DataSummary, error) {
	records, err := m.store.Load()
	if err != nil {
		return trend.DataSummary{}, fmt.Errorf("loading history: %w", err)
	}

	return trend.Summarize(records), nil
}

// Usage measures the data and reports directories.
func (m *Maintenance) Usage() (retention.Usage, error) {
	return retention.MeasureUsage(m.cfg.Reporting.DataDir, m.cfg.Reporting.ReportsDir)
}
