package warehouse

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/ethpandaops/apiwatch/internal/report"
)

// RunRow is one row of api_test_runs.
type RunRow struct {
	RunID             string
	Timestamp         time.Time
	Environment       string
	DurationMS        uint64
	SuccessRate       *float64
	Iterations        uint32
	RequestsTotal     uint32
	RequestsFailed    uint32
	AssertionsTotal   uint32
	AssertionsFailed  uint32
	TestScriptsTotal  uint32
	TestScriptsFailed uint32
	Failures          uint32
	AvgResponseTimeMS float64
}

// ExecutionRow is one row of api_test_executions.
type ExecutionRow struct {
	RunID            string
	Timestamp        time.Time
	Environment      string
	Position         uint32
	Name             string
	ResponseCode     uint16
	ResponseTimeMS   uint64
	AssertionsTotal  uint32
	AssertionsFailed uint32
}

// NewRunRow maps a record onto the runs table. An undefined success rate is
// stored as NULL.
func NewRunRow(runID, environment string, rec *report.Record) RunRow {
	row := RunRow{
		RunID:             runID,
		Timestamp:         rec.Timestamp.UTC(),
		Environment:       environment,
		DurationMS:        toUint64(rec.Duration),
		Iterations:        toUint32(rec.Stats.Iterations),
		RequestsTotal:     toUint32(rec.Stats.Requests.Total),
		RequestsFailed:    toUint32(rec.Stats.Requests.Failed),
		AssertionsTotal:   toUint32(rec.Stats.Assertions.Total),
		AssertionsFailed:  toUint32(rec.Stats.Assertions.Failed),
		TestScriptsTotal:  toUint32(rec.Stats.TestScripts.Total),
		TestScriptsFailed: toUint32(rec.Stats.TestScripts.Failed),
		Failures:          toUint32(len(rec.Failures)),
	}

	if v, ok := rec.SuccessRate.Value(); ok {
		row.SuccessRate = &v
	}

	if n := len(rec.Executions); n > 0 {
		var total int64
		for _, exec := range rec.Executions {
			total += exec.ResponseTime
		}

		row.AvgResponseTimeMS = math.Round(float64(total)/float64(n)*100) / 100
	}

	return row
}

// NewExecutionRows maps every request of a record onto the executions table,
// keeping request order in Position.
func NewExecutionRows(runID, environment string, rec *report.Record) []ExecutionRow {
	rows := make([]ExecutionRow, 0, len(rec.Executions))

	for i, exec := range rec.Executions {
		failed := 0
		for _, a := range exec.Assertions {
			if !a.Passed() {
				failed++
			}
		}

		rows = append(rows, ExecutionRow{
			RunID:            runID,
			Timestamp:        rec.Timestamp.UTC(),
			Environment:      environment,
			Position:         toUint32(i),
			Name:             exec.Name,
			ResponseCode:     toUint16(exec.ResponseCode),
			ResponseTimeMS:   toUint64(exec.ResponseTime),
			AssertionsTotal:  toUint32(len(exec.Assertions)),
			AssertionsFailed: toUint32(failed),
		})
	}

	return rows
}

// NewRunID returns a random identifier linking a run to its executions.
func NewRunID() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating run id: %w", err)
	}

	return hex.EncodeToString(buf), nil
}

func toUint64(v int64) uint64 {
	if v < 0 {
		return 0
	}

	return uint64(v)
}

func toUint32(v int) uint32 {
	if v < 0 {
		return 0
	}

	if uint64(v) > math.MaxUint32 {
		return math.MaxUint32
	}

	return uint32(v)
}

func toUint16(v int) uint16 {
	if v < 0 {
		return 0
	}

	if uint64(v) > math.MaxUint16 {
		return math.MaxUint16
	}

	return uint16(v)
}
