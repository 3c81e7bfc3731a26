// Package output renders run results and maintenance reports for the console.
package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethpandaops/apiwatch/internal/format"
	"github.com/ethpandaops/apiwatch/internal/metrics"
	"github.com/ethpandaops/apiwatch/internal/report"
	"github.com/ethpandaops/apiwatch/internal/retention"
	"github.com/ethpandaops/apiwatch/internal/setup"
	"github.com/ethpandaops/apiwatch/internal/trend"
	"github.com/fatih/color"
)

const (
	maxErrorLength = 80
	timeLayout     = "2006-01-02 15:04:05 MST"
)

// Formatter provides clean, human-friendly output
type Formatter interface {
	PrintPhase(phase string)
	PrintProgress(message string, duration time.Duration)
	PrintSuccess(message string)
	PrintWarning(message string)
	PrintError(message string, err error)
	PrintRunSummary(rec *report.Record)
	PrintFailures(failures []report.Failure)
	PrintTrend(analysis trend.Analysis)
	PrintRetryMetrics(summary metrics.SummaryMetric, attempts []metrics.AttemptMetric)
	PrintCleanup(summary *retention.CleanupSummary)
	PrintDataSummary(summary trend.DataSummary)
	PrintUsage(usage retention.Usage)
	PrintValidation(r *setup.Report)
}

type formatter struct {
	writer io.Writer
	colors *ColorHelper

	green  *color.Color
	red    *color.Color
	yellow *color.Color
	blue   *color.Color
	gray   *color.Color
}

// NewFormatter creates a console formatter writing to writer.
func NewFormatter(writer io.Writer) Formatter {
	return &formatter{
		writer: writer,
		colors: NewColorHelper(),
		green:  color.New(color.FgGreen),
		red:    color.New(color.FgRed),
		yellow: color.New(color.FgYellow),
		blue:   color.New(color.FgBlue),
		gray:   color.New(color.FgHiBlack),
	}
}

// PrintPhase prints phase separator
func (f *formatter) PrintPhase(phase string) {
	_, _ = f.blue.Fprintf(f.writer, "\n▸ %s\n", phase)
}

// PrintProgress prints a progress line with optional timing.
func (f *formatter) PrintProgress(message string, duration time.Duration) {
	if duration > 0 {
		_, _ = f.gray.Fprintf(f.writer, "%s (%s)\n", message, format.Duration(duration))
	} else {
		_, _ = fmt.Fprintf(f.writer, "%s\n", message)
	}
}

// PrintSuccess prints a green message.
func (f *formatter) PrintSuccess(message string) {
	_, _ = f.green.Fprintf(f.writer, "%s\n", message)
}

// PrintWarning prints a yellow message.
func (f *formatter) PrintWarning(message string) {
	_, _ = f.yellow.Fprintf(f.writer, "%s\n", message)
}

// PrintError prints a red message with error details.
func (f *formatter) PrintError(message string, err error) {
	_, _ = f.red.Fprintf(f.writer, "%s", message)
	if err != nil {
		_, _ = f.red.Fprintf(f.writer, ": %v", err)
	}
	_, _ = fmt.Fprintf(f.writer, "\n")
}

func (f *formatter) PrintRunSummary(rec *report.Record) {
	_, _ = fmt.Fprintln(f.writer, f.formatRunSummary(rec))
}

func (f *formatter) PrintFailures(failures []report.Failure) {
	if len(failures) == 0 {
		return
	}

	_, _ = fmt.Fprintln(f.writer, f.formatFailures(failures))
}

func (f *formatter) PrintTrend(analysis trend.Analysis) {
	_, _ = fmt.Fprintln(f.writer, f.formatTrend(analysis))
}

func (f *formatter) PrintRetryMetrics(summary metrics.SummaryMetric, attempts []metrics.AttemptMetric) {
	if summary.Attempts == 0 {
		return
	}

	_, _ = fmt.Fprintln(f.writer, f.formatRetryMetrics(summary, attempts))
}

func (f *formatter) PrintCleanup(summary *retention.CleanupSummary) {
	_, _ = fmt.Fprintln(f.writer, f.formatCleanup(summary))
}

func (f *formatter) PrintDataSummary(summary trend.DataSummary) {
	_, _ = fmt.Fprintln(f.writer, f.formatDataSummary(summary))
}

func (f *formatter) PrintUsage(usage retention.Usage) {
	_, _ = fmt.Fprintln(f.writer, f.formatUsage(usage))
}

func (f *formatter) PrintValidation(r *setup.Report) {
	_, _ = fmt.Fprintln(f.writer, f.formatValidation(r))
}

func (f *formatter) section(title, body string) string {
	return "\n" + f.colors.Header("▸ "+title) + "\n\n" + body
}

func (f *formatter) rate(rate report.SuccessRate) string {
	v, ok := rate.Value()

	label := rate.String()
	if ok {
		label += "%"
	}

	return f.colors.FormatRate(label, v, ok)
}

func (f *formatter) formatRunSummary(rec *report.Record) string {
	stats := rec.Stats

	var (
		headers = []string{"Metric", "Value"}
		rows    = [][]string{
			{"Status", f.colors.FormatStatus(rec.Passed())},
			{"Timestamp", rec.Timestamp.Format(timeLayout)},
			{"Duration", format.Millis(rec.Duration)},
			{"Iterations", fmt.Sprintf("%d", stats.Iterations)},
			{"Requests", f.colors.FormatAssertions(stats.Requests.Passed(), stats.Requests.Total)},
			{"Test Scripts", f.colors.FormatAssertions(stats.TestScripts.Passed(), stats.TestScripts.Total)},
			{"Assertions", f.colors.FormatAssertions(stats.Assertions.Passed(), stats.Assertions.Total)},
			{"Success Rate", f.rate(rec.SuccessRate)},
		}
	)

	return f.section("Run Summary", RenderToString(headers, rows))
}

func (f *formatter) formatFailures(failures []report.Failure) string {
	var (
		headers = []string{"#", "Source", "Error"}
		rows    = make([][]string, 0, len(failures))
	)

	for i, failure := range failures {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			failure.Source,
			f.colors.Failure(truncate(failure.Error, maxErrorLength)),
		})
	}

	return f.section(fmt.Sprintf("Failures (%d)", len(failures)), RenderToString(headers, rows))
}

func (f *formatter) formatTrend(a trend.Analysis) string {
	if a.Insufficient {
		return f.section("Trend", f.colors.Muted(a.Message)+"\n")
	}

	rateDelta := f.colors.Muted("n/a")
	if a.SuccessRate.Current.Defined() && a.SuccessRate.Previous.Defined() {
		rateDelta = format.Signed(a.SuccessRate.Delta)
	}

	var (
		headers = []string{"Metric", "Current", "Previous", "Change", "Average", "Trend"}
		rows    = [][]string{
			{
				"Success Rate",
				f.rate(a.SuccessRate.Current),
				f.rate(a.SuccessRate.Previous),
				rateDelta,
				f.rate(a.SuccessRate.Average),
				f.colors.FormatDirection(a.SuccessRate.Direction == trend.Up),
			},
			{
				"Duration",
				format.Millis(a.Duration.Current),
				format.Millis(a.Duration.Previous),
				signedMillis(a.Duration.Delta),
				format.Millis(a.Duration.Average),
				f.colors.FormatDirection(a.Duration.Direction == trend.Up),
			},
			{
				"Avg Response Time",
				"",
				"",
				"",
				fmt.Sprintf("%.2fms", a.ResponseTime.Average),
				"",
			},
		}
	)

	body := RenderToString(headers, rows) +
		fmt.Sprintf("Window: last %d runs\n", a.Window) +
		"Signals: " + f.colors.Bold(strings.Join(a.Summary, ", ")) + "\n"

	return f.section("Trend", body)
}

func (f *formatter) formatRetryMetrics(summary metrics.SummaryMetric, attempts []metrics.AttemptMetric) string {
	var (
		headers = []string{"Attempt", "Status", "Duration", "Error"}
		rows    = make([][]string, 0, len(attempts))
	)

	for _, a := range attempts {
		rows = append(rows, []string{
			fmt.Sprintf("%d", a.Attempt),
			f.colors.FormatStatus(a.Error == ""),
			format.Duration(a.Duration),
			f.colors.Muted(truncate(a.Error, maxErrorLength)),
		})
	}

	footer := fmt.Sprintf("Attempts: %d  Retries: %d  Failed: %d\n",
		summary.Attempts, summary.Retries, summary.FailedAttempts)

	return f.section("Execution Attempts", RenderToString(headers, rows)+footer)
}

func (f *formatter) formatCleanup(s *retention.CleanupSummary) string {
	title := "Cleanup Summary"
	if s.DryRun {
		title += " (dry run)"
	}

	var (
		headers = []string{"Target", "Removed", "Retained", "Freed"}
		rows    = [][]string{}
	)

	if s.Reports != nil {
		rows = append(rows, []string{
			"Reports",
			fmt.Sprintf("%d", len(s.Reports.Removed)),
			fmt.Sprintf("%d", s.Reports.Retained),
			format.Bytes(s.Reports.FreedBytes),
		})
	}

	history := f.colors.Muted("unchanged")

	switch {
	case s.HistoryError != nil:
		history = f.colors.Failure("error")
	case s.HistoryTrimmed:
		history = f.colors.Success("trimmed")
	}

	rows = append(rows, []string{"History", history, "", ""})

	if s.Exports != nil {
		rows = append(rows, []string{
			"Exports",
			fmt.Sprintf("%d", len(s.Exports.Removed)),
			fmt.Sprintf("%d", s.Exports.Retained),
			format.Bytes(s.Exports.FreedBytes),
		})
	}

	body := RenderToString(headers, rows) +
		fmt.Sprintf("Storage: %s → %s (freed %s)\n",
			format.Bytes(s.Before.Total()), format.Bytes(s.After.Total()), format.Bytes(s.Freed()))

	if n := s.ErrorCount(); n > 0 {
		body += f.colors.Failure(fmt.Sprintf("Errors: %d", n)) + "\n"
	} else {
		body += f.colors.Success("Errors: 0") + "\n"
	}

	return f.section(title, body)
}

func (f *formatter) formatDataSummary(s trend.DataSummary) string {
	if s.TotalRuns == 0 {
		return f.section("History Summary", f.colors.Muted(trend.NoRunsMessage)+"\n")
	}

	var (
		headers = []string{"Metric", "Value"}
		rows    = [][]string{
			{"Total Runs", f.colors.Bold(fmt.Sprintf("%d", s.TotalRuns))},
			{"First Run", s.First.Format(timeLayout)},
			{"Last Run", s.Last.Format(timeLayout)},
			{"Average Success Rate", f.rate(s.AverageSuccessRate)},
			{"Average Duration", format.Millis(s.AverageDuration)},
			{"Total Assertions", fmt.Sprintf("%d", s.TotalAssertions)},
			{"Total Failures", fmt.Sprintf("%d", s.TotalFailures)},
			{"Recent Trend", f.recentTrend(s.RecentTrend)},
		}
	)

	return f.section("History Summary", RenderToString(headers, rows))
}

func (f *formatter) recentTrend(t trend.RecentTrend) string {
	switch t {
	case trend.Improving:
		return f.colors.Success(string(t))
	case trend.Declining:
		return f.colors.Failure(string(t))
	case trend.Stable:
		return string(t)
	default:
		return f.colors.Muted(string(t))
	}
}

func (f *formatter) formatUsage(u retention.Usage) string {
	var (
		headers = []string{"Directory", "Size"}
		rows    = [][]string{
			{"Data", format.Bytes(u.Data)},
			{"Reports", format.Bytes(u.Reports)},
			{"Total", f.colors.Bold(format.Bytes(u.Total()))},
		}
	)

	return f.section("Storage Usage", RenderToString(headers, rows))
}

func (f *formatter) formatValidation(r *setup.Report) string {
	var b strings.Builder

	for _, section := range setup.Sections {
		checks := r.Section(section)
		if len(checks) == 0 {
			continue
		}

		rows := make([][]string, 0, len(checks))
		for _, c := range checks {
			rows = append(rows, []string{c.Name, f.checkStatus(c.Status), c.Message})
		}

		title := strings.ToUpper(section[:1]) + section[1:]
		b.WriteString(f.section(title, RenderToString([]string{"Check", "Status", "Details"}, rows)))
	}

	passed, warned, failed := r.Counts()
	summary := fmt.Sprintf("\n%d passed, %d warnings, %d failed", passed, warned, failed)

	if r.Valid() {
		b.WriteString(f.colors.Success(summary))
	} else {
		b.WriteString(f.colors.Failure(summary))
	}

	return b.String()
}

func (f *formatter) checkStatus(s setup.Status) string {
	switch s {
	case setup.StatusPass:
		return f.colors.Success("✓ pass")
	case setup.StatusWarn:
		return f.colors.Warning("! warn")
	default:
		return f.colors.Failure("✗ fail")
	}
}

func signedMillis(ms int64) string {
	if ms > 0 {
		return "+" + format.Millis(ms)
	}

	if ms < 0 {
		return "-" + format.Millis(-ms)
	}

	return format.Millis(0)
}

func truncate(s string, n int) string {
	r := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(r) <= n {
		return string(r)
	}

	return string(r[:n-3]) + "..."
}

// Compile-time interface compliance check
var _ Formatter = (*formatter)(nil)
