// Package notify delivers run results and failures to chat and email channels.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethpandaops/apiwatch/internal/report"
	"github.com/ethpandaops/apiwatch/internal/trend"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// FailureTitle heads every critical failure notification.
const FailureTitle = "❌ Newman Test Suite - Critical Failure"

// Message is either a run result (Record set) or a critical failure (Err set).
type Message struct {
	Record      *report.Record
	Analysis    *trend.Analysis
	Err         error
	Time        time.Time
	Environment string
	// ReportPath is the newman HTML report attached to email, if present.
	ReportPath string
}

// ResultMessage builds a notification for a completed run.
func ResultMessage(rec *report.Record, analysis *trend.Analysis, environment, reportPath string) Message {
	return Message{
		Record:      rec,
		Analysis:    analysis,
		Time:        rec.Timestamp,
		Environment: environment,
		ReportPath:  reportPath,
	}
}

// FailureMessage builds a notification for a run that could not complete.
func FailureMessage(err error, at time.Time, environment string) Message {
	return Message{Err: err, Time: at, Environment: environment}
}

// IsFailure reports whether the message describes a critical failure.
func (m Message) IsFailure() bool {
	return m.Err != nil || m.Record == nil
}

// Passed reports whether the run had no failed assertions.
func (m Message) Passed() bool {
	return !m.IsFailure() && m.Record.Passed()
}

// ErrorText returns the failure reason.
func (m Message) ErrorText() string {
	if m.Err == nil {
		return "unknown error"
	}

	return m.Err.Error()
}

// Channel delivers a message to one destination.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, msg Message) error
}

// DeliveryError records a failed delivery on one channel.
type DeliveryError struct {
	Channel string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery failed: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Dispatcher fans a message out to every channel concurrently.
type Dispatcher struct {
	channels []Channel
	log      logrus.FieldLogger
}

// NewDispatcher creates a dispatcher over channels.
func NewDispatcher(log logrus.FieldLogger, channels ...Channel) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		log:      log.WithField("component", "notify_dispatcher"),
	}
}

// Channels returns the names of the configured channels.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		names = append(names, ch.Name())
	}

	return names
}

// Dispatch delivers msg on every channel and returns the failures. One
// channel failing never cancels or fails another.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) []*DeliveryError {
	if len(d.channels) == 0 {
		d.log.Debug("no notification channels configured")
		return nil
	}

	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed []*DeliveryError
	)

	for _, ch := range d.channels {
		g.Go(func() error {
			start := time.Now()

			if err := ch.Deliver(ctx, msg); err != nil {
				d.log.WithError(err).WithField("channel", ch.Name()).Warn("notification delivery failed")

				mu.Lock()
				failed = append(failed, &DeliveryError{Channel: ch.Name(), Err: err})
				mu.Unlock()

				return nil
			}

			d.log.WithFields(logrus.Fields{
				"channel":  ch.Name(),
				"duration": time.Since(start),
			}).Info("notification sent")

			return nil
		})
	}

	_ = g.Wait()

	return failed
}
