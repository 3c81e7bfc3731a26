// Package report defines the normalized run record and its extraction from
// raw newman output.
package report

import "time"

// Record is the normalized, immutable outcome of one collection run.
type Record struct {
	Timestamp   time.Time   `json:"timestamp"`
	Duration    int64       `json:"duration"` // milliseconds
	Stats       Stats       `json:"stats"`
	SuccessRate SuccessRate `json:"successRate"`
	Failures    []Failure   `json:"failures"`
	Executions  []Execution `json:"executions"`
}

// Stats holds run counters. Failed never exceeds Total.
type Stats struct {
	Iterations  int     `json:"iterations"`
	Requests    Counter `json:"requests"`
	Assertions  Counter `json:"assertions"`
	TestScripts Counter `json:"testScripts"`
}

// Counter is a total/failed pair.
type Counter struct {
	Total  int `json:"total"`
	Failed int `json:"failed"`
}

// Passed returns Total - Failed.
func (c Counter) Passed() int {
	return c.Total - c.Failed
}

// Failure describes one failed check in discovery order.
type Failure struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// Execution is the outcome of a single request.
type Execution struct {
	Name         string             `json:"name"`
	ResponseTime int64              `json:"responseTime"`
	ResponseCode int                `json:"responseCode"`
	Assertions   []AssertionOutcome `json:"assertions"`
}

// AssertionOutcome records one assertion; Error is empty when it passed.
type AssertionOutcome struct {
	Assertion string `json:"assertion"`
	Error     string `json:"error,omitempty"`
}

// Passed reports whether the assertion held.
func (a AssertionOutcome) Passed() bool {
	return a.Error == ""
}

// Passed reports whether every assertion in the run held.
func (r *Record) Passed() bool {
	return r.Stats.Assertions.Failed == 0
}

// ExitCode maps the record onto the process exit-code contract.
func (r *Record) ExitCode() int {
	if r.Passed() {
		return 0
	}

	return 1
}
