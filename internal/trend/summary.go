package trend

import (
	"time"

	"github.com/ethpandaops/apiwatch/internal/report"
)

// RecentTrend classifies the direction of the last few runs.
type RecentTrend string

// Recent trend classifications.
const (
	Improving        RecentTrend = "improving"
	Declining        RecentTrend = "declining"
	Stable           RecentTrend = "stable"
	InsufficientData RecentTrend = "insufficient_data"
)

// NoRunsMessage is shown when the history holds no runs.
const NoRunsMessage = "No test runs recorded"

const (
	recentRuns        = 3
	recentTrendMargin = 5.0
)

// DataSummary aggregates the whole history.
type DataSummary struct {
	TotalRuns          int                `json:"totalRuns"`
	First              time.Time          `json:"first"`
	Last               time.Time          `json:"last"`
	AverageSuccessRate report.SuccessRate `json:"averageSuccessRate"`
	AverageDuration    int64              `json:"averageDuration"`
	TotalAssertions    int                `json:"totalAssertions"`
	TotalFailures      int                `json:"totalFailures"`
	RecentTrend        RecentTrend        `json:"recentTrend"`
}

// Summarize aggregates history. An empty history yields a zero summary with
// RecentTrend set to InsufficientData.
func Summarize(history []report.Record) DataSummary {
	if len(history) == 0 {
		return DataSummary{RecentTrend: InsufficientData}
	}

	summary := DataSummary{
		TotalRuns:       len(history),
		First:           history[0].Timestamp,
		Last:            history[len(history)-1].Timestamp,
		AverageDuration: averageDuration(history),
		RecentTrend:     ClassifyRecent(history[max(0, len(history)-DefaultWindow):]),
	}

	if avg, ok := averageSuccessRate(history); ok {
		summary.AverageSuccessRate = report.Rate(avg)
	}

	for i := range history {
		summary.TotalAssertions += history[i].Stats.Assertions.Total
		summary.TotalFailures += history[i].Stats.Assertions.Failed
	}

	return summary
}

// ClassifyRecent compares the average success rate of the last three runs with
// the runs before them. A gap beyond five points either way is a trend.
func ClassifyRecent(runs []report.Record) RecentTrend {
	if len(runs) < 2 {
		return InsufficientData
	}

	split := max(0, len(runs)-recentRuns)
	older := runs[:split]
	recent := runs[split:]

	if len(older) == 0 {
		return InsufficientData
	}

	recentAvg, recentOK := averageSuccessRate(recent)
	olderAvg, olderOK := averageSuccessRate(older)

	if !recentOK || !olderOK {
		return InsufficientData
	}

	switch {
	case recentAvg > olderAvg+recentTrendMargin:
		return Improving
	case recentAvg < olderAvg-recentTrendMargin:
		return Declining
	default:
		return Stable
	}
}
