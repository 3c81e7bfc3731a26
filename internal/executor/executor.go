// Package executor wraps the test-execution capability with bounded,
// fixed-delay retries.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/apiwatch/internal/metrics"
	"github.com/ethpandaops/apiwatch/internal/newman"
	"github.com/sirupsen/logrus"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 5 * time.Second
)

var errNoSummary = errors.New("newman returned no summary")

// Config holds the retry policy.
type Config struct {
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultConfig returns the default retry policy: 3 retries, 5s apart.
func DefaultConfig() Config {
	return Config{
		MaxRetries: defaultMaxRetries,
		RetryDelay: defaultRetryDelay,
	}
}

// ExecutionError means the run could not complete within the retry budget.
type ExecutionError struct {
	Attempts int
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("newman execution failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Executor runs a collection, retrying execution errors. It holds no
// per-run state and may be reused across runs.
type Executor struct {
	runner     newman.Runner
	maxRetries int
	retryDelay time.Duration
	metrics    metrics.Collector
	log        logrus.FieldLogger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an executor. A negative MaxRetries is treated as zero.
func NewExecutor(log logrus.FieldLogger, runner newman.Runner, collector metrics.Collector, cfg Config) *Executor {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}

	return &Executor{
		runner:     runner,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		metrics:    collector,
		log:        log.WithField("component", "run_executor"),
		sleep:      sleepContext,
	}
}

// Execute attempts the run up to MaxRetries+1 times. Assertion failures are a
// successful invocation and are returned as-is; only capability errors and
// errors reported in run.error are retried.
func (e *Executor) Execute(ctx context.Context, opts newman.Options) (*newman.Summary, error) {
	var (
		lastErr  error
		attempts int
	)

	for attempt := 1; attempt <= e.maxRetries+1; attempt++ {
		attempts = attempt

		summary, err := e.attempt(ctx, attempt, opts)
		if err == nil {
			if attempt > 1 {
				e.log.WithField("attempts", attempt).Info("newman run succeeded after retry")
			}

			return summary, nil
		}

		lastErr = err

		if attempt > e.maxRetries {
			break
		}

		e.log.WithError(err).WithFields(logrus.Fields{
			"attempt":     attempt,
			"max_retries": e.maxRetries,
			"retry_delay": e.retryDelay,
		}).Warn("newman attempt failed, retrying")

		if sleepErr := e.sleep(ctx, e.retryDelay); sleepErr != nil {
			return nil, &ExecutionError{
				Attempts: attempt,
				Err:      fmt.Errorf("retry canceled: %w (last error: %v)", sleepErr, lastErr),
			}
		}
	}

	return nil, &ExecutionError{Attempts: attempts, Err: lastErr}
}

func (e *Executor) attempt(ctx context.Context, attempt int, opts newman.Options) (*newman.Summary, error) {
	start := time.Now()

	summary, err := e.runner.Run(ctx, opts)
	if err == nil && summary == nil {
		err = errNoSummary
	}

	if err == nil {
		err = summary.TerminalError()
	}

	metric := metrics.AttemptMetric{
		Attempt:   attempt,
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	}

	if err != nil {
		metric.Error = err.Error()
	}

	if e.metrics != nil {
		e.metrics.RecordAttempt(metric)
	}

	if err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"attempt":  attempt,
		"duration": metric.Duration,
	}).Debug("newman attempt completed")

	return summary, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
