package output

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethpandaops/apiwatch/internal/metrics"
	"github.com/ethpandaops/apiwatch/internal/report"
	"github.com/ethpandaops/apiwatch/internal/retention"
	"github.com/ethpandaops/apiwatch/internal/setup"
	"github.com/ethpandaops/apiwatch/internal/trend"
	"github.com/stretchr/testify/assert"
)

func record(total, failed int, duration int64) report.Record {
	return report.Record{
		Timestamp: time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC),
		Duration:  duration,
		Stats: report.Stats{
			Iterations: 1,
			Requests:   report.Counter{Total: 2},
			Assertions: report.Counter{Total: total, Failed: failed},
		},
		SuccessRate: report.NewSuccessRate(total, failed),
		Executions:  []report.Execution{{Name: "get", ResponseTime: 20}},
	}
}

func TestFormatter_RunSummary(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf)

	rec := record(4, 1, 1500)
	f.PrintRunSummary(&rec)

	out := buf.String()
	assert.Contains(t, out, "Run Summary")
	assert.Contains(t, out, "✗ FAIL")
	assert.Contains(t, out, "3/4")
	assert.Contains(t, out, "75.00%")
	assert.Contains(t, out, "1.5s")
}

func TestFormatter_NoAssertionsMarker(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf)

	rec := record(0, 0, 100)
	f.PrintRunSummary(&rec)

	assert.Contains(t, buf.String(), report.NoAssertionsMarker)
	assert.NotContains(t, buf.String(), report.NoAssertionsMarker+"%")
}

func TestFormatter_Failures(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf)

	f.PrintFailures(nil)
	assert.Empty(t, buf.String())

	f.PrintFailures([]report.Failure{
		{Source: "login", Error: strings.Repeat("x", 200)},
		{Source: "profile", Error: "expected 200\ngot 500"},
	})

	out := buf.String()
	assert.Contains(t, out, "Failures (2)")
	assert.Contains(t, out, "login")
	assert.Contains(t, out, strings.Repeat("x", 77)+"...")
	assert.Contains(t, out, "expected 200 got 500")
}

func TestFormatter_Trend(t *testing.T) {
	t.Run("insufficient", func(t *testing.T) {
		var buf bytes.Buffer
		NewFormatter(&buf).PrintTrend(trend.Analyze([]report.Record{record(10, 0, 100)}))

		assert.Contains(t, buf.String(), trend.InsufficientDataMessage)
	})

	t.Run("improving", func(t *testing.T) {
		var buf bytes.Buffer
		NewFormatter(&buf).PrintTrend(trend.Analyze([]report.Record{
			record(10, 2, 2000),
			record(10, 0, 1000),
		}))

		out := buf.String()
		assert.Contains(t, out, "+20.00")
		assert.Contains(t, out, "↑ up")
		assert.Contains(t, out, "-1.0s")
		assert.Contains(t, out, trend.SignalImproved)
		assert.Contains(t, out, "last 2 runs")
	})
}

func TestFormatter_RetryMetrics(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf)

	f.PrintRetryMetrics(metrics.SummaryMetric{}, nil)
	assert.Empty(t, buf.String())

	f.PrintRetryMetrics(
		metrics.SummaryMetric{Attempts: 2, Retries: 1, FailedAttempts: 1, Succeeded: true},
		[]metrics.AttemptMetric{
			{Attempt: 1, Duration: 2 * time.Second, Error: "newman exited 2"},
			{Attempt: 2, Duration: 3 * time.Second},
		},
	)

	out := buf.String()
	assert.Contains(t, out, "newman exited 2")
	assert.Contains(t, out, "Attempts: 2  Retries: 1  Failed: 1")
}

func TestFormatter_Cleanup(t *testing.T) {
	var buf bytes.Buffer

	NewFormatter(&buf).PrintCleanup(&retention.CleanupSummary{
		DryRun:         true,
		Reports:        &retention.Result{Removed: []string{"old.html"}, Retained: 2, FreedBytes: 2048},
		HistoryTrimmed: true,
		Exports:        &retention.Result{Retained: 5, Errors: []error{errors.New("boom")}},
		Before:         retention.Usage{Data: 4096, Reports: 4096},
		After:          retention.Usage{Data: 4096, Reports: 2048},
	})

	out := buf.String()
	assert.Contains(t, out, "(dry run)")
	assert.Contains(t, out, "trimmed")
	assert.Contains(t, out, "2.0 KiB")
	assert.Contains(t, out, "Errors: 1")
}

func TestFormatter_DataSummary(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf)

	f.PrintDataSummary(trend.Summarize(nil))
	assert.Contains(t, buf.String(), trend.NoRunsMessage)

	buf.Reset()
	f.PrintDataSummary(trend.Summarize([]report.Record{record(10, 0, 100), record(10, 5, 300)}))

	out := buf.String()
	assert.Contains(t, out, "Total Runs")
	assert.Contains(t, out, "75.00%")
	assert.Contains(t, out, string(trend.InsufficientData))
}

func TestFormatter_Usage(t *testing.T) {
	var buf bytes.Buffer
	NewFormatter(&buf).PrintUsage(retention.Usage{Data: 1024, Reports: 2048})

	assert.Contains(t, buf.String(), "3.0 KiB")
}

func TestFormatter_Validation(t *testing.T) {
	var buf bytes.Buffer

	NewFormatter(&buf).PrintValidation(&setup.Report{Checks: []setup.Check{
		{Section: setup.SectionEnvironment, Name: "EMAIL_USER", Status: setup.StatusPass, Message: "set"},
		{Section: setup.SectionEnvironment, Name: "SLACK_WEBHOOK_URL", Status: setup.StatusWarn, Message: "not set"},
		{Section: setup.SectionDependencies, Name: "newman", Status: setup.StatusFail, Message: "not found"},
	}})

	out := buf.String()
	assert.Contains(t, out, "Environment")
	assert.Contains(t, out, "Dependencies")
	assert.NotContains(t, out, "Configuration")
	assert.Contains(t, out, "1 passed, 1 warnings, 1 failed")
}

func TestSignedMillis(t *testing.T) {
	assert.Equal(t, "+500ms", signedMillis(500))
	assert.Equal(t, "-1.5s", signedMillis(-1500))
	assert.Equal(t, "0µs", signedMillis(0))
}
