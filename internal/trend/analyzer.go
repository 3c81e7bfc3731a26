// Package trend derives trend signals by comparing the latest run against
// recent history. Analyses are recomputed on every run and never persisted.
package trend

import (
	"math"

	"github.com/ethpandaops/apiwatch/internal/report"
)

// DefaultWindow is the number of most recent runs averaged.
const DefaultWindow = 7

// InsufficientDataMessage is reported when fewer than two runs exist.
const InsufficientDataMessage = "Insufficient data for trend analysis"

// Summary signals, emitted in this order.
const (
	SignalImproved     = "success rate improved"
	SignalDeclined     = "success rate declined"
	SignalAboveAverage = "above average performance"
	SignalBelowAverage = "below average performance"
	SignalAllPassed    = "all checks passed"
	SignalStable       = "performance stable"
)

// Direction is the classification of a metric against the previous run.
type Direction string

// Directions.
const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Snapshot holds the headline numbers of a single run.
type Snapshot struct {
	SuccessRate      report.SuccessRate `json:"successRate"`
	Duration         int64              `json:"duration"`
	TotalAssertions  int                `json:"totalAssertions"`
	FailedAssertions int                `json:"failedAssertions"`
}

// SuccessRateTrend compares success rates. Delta is only meaningful when both
// the current and previous rates are defined.
type SuccessRateTrend struct {
	Current   report.SuccessRate `json:"current"`
	Previous  report.SuccessRate `json:"previous"`
	Delta     float64            `json:"delta"`
	Average   report.SuccessRate `json:"average"`
	Direction Direction          `json:"trend"`
}

// DurationTrend compares run durations in milliseconds. A shorter run is up.
type DurationTrend struct {
	Current   int64     `json:"current"`
	Previous  int64     `json:"previous"`
	Delta     int64     `json:"delta"`
	Average   int64     `json:"average"`
	Direction Direction `json:"trend"`
}

// ResponseTimeTrend is the mean response time over every request in the window.
type ResponseTimeTrend struct {
	Average float64 `json:"average"`
}

// Analysis is the result of comparing the latest run against history.
type Analysis struct {
	Insufficient bool              `json:"insufficient,omitempty"`
	Message      string            `json:"message,omitempty"`
	Window       int               `json:"window,omitempty"`
	Current      Snapshot          `json:"current"`
	SuccessRate  SuccessRateTrend  `json:"successRate"`
	Duration     DurationTrend     `json:"duration"`
	ResponseTime ResponseTimeTrend `json:"responseTime"`
	Summary      []string          `json:"summary,omitempty"`
}

// Analyze compares the newest entry of history (oldest first) with the one
// before it and with the rolling averages of the last DefaultWindow entries.
func Analyze(history []report.Record) Analysis {
	if len(history) < 2 {
		return Analysis{Insufficient: true, Message: InsufficientDataMessage}
	}

	window := history[max(0, len(history)-DefaultWindow):]
	current := &history[len(history)-1]
	previous := &history[len(history)-2]

	avgRate, rateDefined := averageSuccessRate(window)

	analysis := Analysis{
		Window: len(window),
		Current: Snapshot{
			SuccessRate:      current.SuccessRate,
			Duration:         current.Duration,
			TotalAssertions:  current.Stats.Assertions.Total,
			FailedAssertions: current.Stats.Assertions.Failed,
		},
		SuccessRate: SuccessRateTrend{
			Current:   current.SuccessRate,
			Previous:  previous.SuccessRate,
			Direction: successRateDirection(current.SuccessRate, previous.SuccessRate),
		},
		Duration: DurationTrend{
			Current:   current.Duration,
			Previous:  previous.Duration,
			Delta:     current.Duration - previous.Duration,
			Average:   averageDuration(window),
			Direction: durationDirection(current.Duration, previous.Duration),
		},
		ResponseTime: ResponseTimeTrend{Average: averageResponseTime(window)},
	}

	if rateDefined {
		analysis.SuccessRate.Average = report.Rate(avgRate)
	}

	cur, curOK := current.SuccessRate.Value()
	prev, prevOK := previous.SuccessRate.Value()

	if curOK && prevOK {
		analysis.SuccessRate.Delta = round2(cur - prev)
	}

	analysis.Summary = summarize(current, previous, avgRate, rateDefined)

	return analysis
}

// successRateDirection is up only when both rates are defined and the current
// rate is strictly higher.
func successRateDirection(current, previous report.SuccessRate) Direction {
	cur, curOK := current.Value()
	prev, prevOK := previous.Value()

	if curOK && prevOK && cur > prev {
		return Up
	}

	return Down
}

// durationDirection is up when the run got faster. Equal durations are down.
func durationDirection(current, previous int64) Direction {
	if current < previous {
		return Up
	}

	return Down
}

func summarize(current, previous *report.Record, avgRate float64, avgDefined bool) []string {
	var signals []string

	cur, curOK := current.SuccessRate.Value()
	prev, prevOK := previous.SuccessRate.Value()

	if curOK && prevOK {
		switch {
		case cur > prev:
			signals = append(signals, SignalImproved)
		case cur < prev:
			signals = append(signals, SignalDeclined)
		}
	}

	if curOK && avgDefined {
		switch {
		case cur > avgRate:
			signals = append(signals, SignalAboveAverage)
		case cur < avgRate:
			signals = append(signals, SignalBelowAverage)
		}
	}

	if current.Stats.Assertions.Failed == 0 {
		signals = append(signals, SignalAllPassed)
	}

	if len(signals) == 0 {
		return []string{SignalStable}
	}

	return signals
}

// averageSuccessRate averages defined rates only.
func averageSuccessRate(runs []report.Record) (float64, bool) {
	var (
		sum float64
		n   int
	)

	for i := range runs {
		if v, ok := runs[i].SuccessRate.Value(); ok {
			sum += v
			n++
		}
	}

	if n == 0 {
		return 0, false
	}

	return sum / float64(n), true
}

func averageDuration(runs []report.Record) int64 {
	if len(runs) == 0 {
		return 0
	}

	var sum int64
	for i := range runs {
		sum += runs[i].Duration
	}

	return int64(math.Round(float64(sum) / float64(len(runs))))
}

func averageResponseTime(runs []report.Record) float64 {
	var (
		total    int64
		requests int
	)

	for i := range runs {
		for _, exec := range runs[i].Executions {
			total += exec.ResponseTime
			requests++
		}
	}

	if requests == 0 {
		return 0
	}

	return round2(float64(total) / float64(requests))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
