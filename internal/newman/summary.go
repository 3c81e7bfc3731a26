// Package newman describes the raw run output produced by the newman JSON
// reporter and provides a CLI-backed runner for executing collections.
package newman

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Summary is the document written by newman's JSON reporter.
// Pointer fields stay nil when the reporter omitted them, which lets the
// extractor tell a missing section apart from a zero value.
type Summary struct {
	Collection *Collection `json:"collection,omitempty"`
	Run        *Run        `json:"run"`
}

// Collection carries collection metadata.
type Collection struct {
	Info struct {
		Name string `json:"name"`
	} `json:"info"`
}

// Run is the "run" section of the summary.
type Run struct {
	Stats      *Stats          `json:"stats"`
	Timings    *Timings        `json:"timings"`
	Executions []Execution     `json:"executions"`
	Failures   []Failure       `json:"failures"`
	Error      json.RawMessage `json:"error,omitempty"`
}

// Stats holds the per-category counters.
type Stats struct {
	Iterations        *Counter `json:"iterations"`
	Items             *Counter `json:"items,omitempty"`
	Scripts           *Counter `json:"scripts,omitempty"`
	Prerequests       *Counter `json:"prerequests,omitempty"`
	Requests          *Counter `json:"requests"`
	Tests             *Counter `json:"tests,omitempty"`
	Assertions        *Counter `json:"assertions"`
	TestScripts       *Counter `json:"testScripts"`
	PrerequestScripts *Counter `json:"prerequestScripts,omitempty"`
}

// Counter is a total/pending/failed triple.
type Counter struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
}

// Timings holds epoch-millisecond run timestamps.
type Timings struct {
	Started         int64   `json:"started"`
	Completed       int64   `json:"completed"`
	ResponseAverage float64 `json:"responseAverage"`
	ResponseMin     float64 `json:"responseMin"`
	ResponseMax     float64 `json:"responseMax"`
}

// Execution is one request execution within the run.
type Execution struct {
	Item         Item        `json:"item"`
	Response     *Response   `json:"response,omitempty"`
	Assertions   []Assertion `json:"assertions,omitempty"`
	RequestError *ErrorInfo  `json:"requestError,omitempty"`
}

// Item identifies the collection item that was executed.
type Item struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// Response is the HTTP response seen for an execution. It is absent when the
// request failed before any response arrived.
type Response struct {
	Code         int    `json:"code"`
	Status       string `json:"status,omitempty"`
	ResponseTime int64  `json:"responseTime"`
	ResponseSize int64  `json:"responseSize,omitempty"`
}

// Assertion is a single test assertion outcome.
type Assertion struct {
	Assertion string     `json:"assertion"`
	Skipped   bool       `json:"skipped,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo is newman's serialised error shape.
type ErrorInfo struct {
	Name    string `json:"name,omitempty"`
	Message string `json:"message"`
	Test    string `json:"test,omitempty"`
}

// Failure is one entry of run.failures.
type Failure struct {
	Error  *ErrorInfo `json:"error,omitempty"`
	Source *Source    `json:"source,omitempty"`
	At     string     `json:"at,omitempty"`
}

// Source identifies where a failure originated.
type Source struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// ParseSummary decodes a JSON reporter document.
func ParseSummary(r io.Reader) (*Summary, error) {
	var summary Summary
	if err := json.NewDecoder(r).Decode(&summary); err != nil {
		return nil, fmt.Errorf("decoding newman summary: %w", err)
	}

	return &summary, nil
}

// TerminalError reports an error recorded in run.error, meaning the run
// itself could not complete. Assertion failures never populate this field.
func (s *Summary) TerminalError() error {
	if s == nil || s.Run == nil {
		return nil
	}

	raw := bytes.TrimSpace(s.Run.Error)
	switch string(raw) {
	case "", "null", "[]", "{}", `""`, "false":
		return nil
	}

	var info ErrorInfo
	if err := json.Unmarshal(raw, &info); err == nil && info.Message != "" {
		return fmt.Errorf("newman execution errors: %s", info.Message) //nolint:err113 // message comes from the runner
	}

	return fmt.Errorf("newman execution errors: %s", string(raw)) //nolint:err113 // raw payload is the only detail available
}
