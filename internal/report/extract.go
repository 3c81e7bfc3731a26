package report

import (
	"time"

	"github.com/ethpandaops/apiwatch/internal/newman"
)

const (
	unknownSource = "Unknown Test"
	unknownError  = "Unknown error"
)

// Extract normalizes a newman summary into a Record. It performs no I/O and
// returns the same record for the same input.
func Extract(summary *newman.Summary) (*Record, error) {
	if summary == nil || summary.Run == nil {
		return nil, missing("run")
	}

	run := summary.Run

	stats, err := extractStats(run.Stats)
	if err != nil {
		return nil, err
	}

	if run.Timings == nil {
		return nil, missing("run.timings")
	}

	duration := run.Timings.Completed - run.Timings.Started
	if duration < 0 {
		duration = 0
	}

	return &Record{
		Timestamp:   time.UnixMilli(run.Timings.Completed).UTC(),
		Duration:    duration,
		Stats:       stats,
		SuccessRate: NewSuccessRate(stats.Assertions.Total, stats.Assertions.Failed),
		Failures:    extractFailures(run.Failures),
		Executions:  extractExecutions(run.Executions),
	}, nil
}

func extractStats(raw *newman.Stats) (Stats, error) {
	if raw == nil {
		return Stats{}, missing("run.stats")
	}

	required := []struct {
		field   string
		counter *newman.Counter
	}{
		{"run.stats.iterations", raw.Iterations},
		{"run.stats.requests", raw.Requests},
		{"run.stats.assertions", raw.Assertions},
		{"run.stats.testScripts", raw.TestScripts},
	}

	for _, r := range required {
		if r.counter == nil {
			return Stats{}, missing(r.field)
		}

		if r.counter.Total < 0 || r.counter.Failed < 0 || r.counter.Failed > r.counter.Total {
			return Stats{}, &MalformedOutputError{Field: r.field, Reason: "has failed count outside [0, total]"}
		}
	}

	return Stats{
		Iterations:  raw.Iterations.Total,
		Requests:    Counter{Total: raw.Requests.Total, Failed: raw.Requests.Failed},
		Assertions:  Counter{Total: raw.Assertions.Total, Failed: raw.Assertions.Failed},
		TestScripts: Counter{Total: raw.TestScripts.Total, Failed: raw.TestScripts.Failed},
	}, nil
}

func extractFailures(raw []newman.Failure) []Failure {
	failures := make([]Failure, 0, len(raw))

	for _, f := range raw {
		failure := Failure{Source: unknownSource, Error: unknownError}

		if f.Source != nil && f.Source.Name != "" {
			failure.Source = f.Source.Name
		}

		if f.Error != nil && f.Error.Message != "" {
			failure.Error = f.Error.Message
		}

		failures = append(failures, failure)
	}

	return failures
}

func extractExecutions(raw []newman.Execution) []Execution {
	executions := make([]Execution, 0, len(raw))

	for _, e := range raw {
		exec := Execution{
			Name:       e.Item.Name,
			Assertions: make([]AssertionOutcome, 0, len(e.Assertions)),
		}

		// No response means the request failed before anything came back.
		if e.Response != nil {
			exec.ResponseTime = e.Response.ResponseTime
			exec.ResponseCode = e.Response.Code
		}

		for _, a := range e.Assertions {
			outcome := AssertionOutcome{Assertion: a.Assertion}
			if a.Error != nil {
				outcome.Error = a.Error.Message
				if outcome.Error == "" {
					outcome.Error = unknownError
				}
			}

			exec.Assertions = append(exec.Assertions, outcome)
		}

		executions = append(executions, exec)
	}

	return executions
}
