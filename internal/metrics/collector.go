// Package metrics provides run execution metrics collection and aggregation.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// AttemptMetric captures one invocation of the test-execution capability.
type AttemptMetric struct {
	Attempt   int
	Duration  time.Duration
	Error     string // empty if the attempt succeeded
	Timestamp time.Time
}

// PhaseMetric captures the wall time of one orchestration phase.
type PhaseMetric struct {
	Phase     string
	Duration  time.Duration
	Timestamp time.Time
}

// SummaryMetric provides aggregate statistics for a run.
type SummaryMetric struct {
	TotalDuration  time.Duration
	Attempts       int
	FailedAttempts int
	Retries        int
	Succeeded      bool
}

// Collector interface for metrics collection
type Collector interface {
	Start(ctx context.Context) error
	Stop() error
	RecordAttempt(metric AttemptMetric)
	RecordPhase(phase string, duration time.Duration)
	GetAttemptMetrics() []AttemptMetric
	GetPhaseMetrics() []PhaseMetric
	GetSummary() SummaryMetric
}

type collector struct {
	log       logrus.FieldLogger
	mu        sync.RWMutex
	attempts  []AttemptMetric
	phases    []PhaseMetric
	startTime time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(log logrus.FieldLogger) Collector {
	return &collector{
		log:       log.WithField("component", "metrics_collector"),
		attempts:  make([]AttemptMetric, 0, 4),
		phases:    make([]PhaseMetric, 0, 8),
		startTime: time.Now(),
	}
}

func (c *collector) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startTime = time.Now()

	c.log.Debug("metrics collector started")

	return nil
}

func (c *collector) Stop() error {
	c.log.Debug("metrics collector stopped")

	return nil
}

func (c *collector) RecordAttempt(metric AttemptMetric) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts = append(c.attempts, metric)
}

func (c *collector) RecordPhase(phase string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phases = append(c.phases, PhaseMetric{
		Phase:     phase,
		Duration:  duration,
		Timestamp: time.Now(),
	})
}

func (c *collector) GetAttemptMetrics() []AttemptMetric {
	c.mu.RLock()
	defer c.mu.RUnlock()
	// Return copy to avoid race conditions
	result := make([]AttemptMetric, len(c.attempts))
	copy(result, c.attempts)
	return result
}

func (c *collector) GetPhaseMetrics() []PhaseMetric {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]PhaseMetric, len(c.phases))
	copy(result, c.phases)
	return result
}

func (c *collector) GetSummary() SummaryMetric {
	c.mu.RLock()
	defer c.mu.RUnlock()

	failed := 0
	for _, a := range c.attempts {
		if a.Error != "" {
			failed++
		}
	}

	retries := 0
	if len(c.attempts) > 1 {
		retries = len(c.attempts) - 1
	}

	return SummaryMetric{
		TotalDuration:  time.Since(c.startTime),
		Attempts:       len(c.attempts),
		FailedAttempts: failed,
		Retries:        retries,
		Succeeded:      len(c.attempts) > 0 && c.attempts[len(c.attempts)-1].Error == "",
	}
}

// Compile-time interface compliance check
var _ Collector = (*collector)(nil)
