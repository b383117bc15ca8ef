// Package notify publishes operator events such as infrastructure faults
// and aborted evaluations.
package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Kind classifies an operator event
type Kind string

// Event kinds
const (
	KindFault    Kind = "fault"    // infrastructure fault, submission will be retried
	KindAborted  Kind = "aborted"  // submission persisted as ABORTED
	KindStale    Kind = "stale"    // claim lost before the result was written
	KindShutdown Kind = "shutdown" // evaluation interrupted by shutdown and released
)

// Event is a single operator notification
type Event struct {
	Kind         Kind      `json:"kind"`
	SubmissionID string    `json:"submissionId"`
	ProblemID    string    `json:"problemId,omitempty"`
	Attempt      int       `json:"attempt"`
	Failure      string    `json:"failure,omitempty"`
	Error        string    `json:"error,omitempty"`
	Time         time.Time `json:"time"`
}

// Notifier delivers operator events
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Logger logs events with zap
type Logger struct {
	logger *zap.Logger
}

// NewLogger creates a notifier writing to logger
func NewLogger(logger *zap.Logger) *Logger {
	return &Logger{logger: logger}
}

// Notify implements Notifier
func (l *Logger) Notify(_ context.Context, e Event) error {
	fields := []zap.Field{
		zap.String("kind", string(e.Kind)),
		zap.String("submission", e.SubmissionID),
		zap.String("problem", e.ProblemID),
		zap.Int("attempt", e.Attempt),
		zap.String("failure", e.Failure),
		zap.String("error", e.Error),
	}
	switch e.Kind {
	case KindShutdown:
		l.logger.Info("operator event", fields...)
	case KindAborted, KindStale:
		l.logger.Error("operator event", fields...)
	default:
		l.logger.Warn("operator event", fields...)
	}
	return nil
}

// Multi fans an event out to every notifier
type Multi []Notifier

// Notify implements Notifier
func (m Multi) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
