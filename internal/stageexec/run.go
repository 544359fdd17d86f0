// Package stageexec runs the external-tool steps of a group's lifecycle
// (combine and trim) under one retry policy.
//
// A failed run bumps the group's attempt counter and schedules the next try
// with exponential backoff. Once the configured attempts are spent the group
// takes a sticky error and a failure notification goes out.
package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mblakley/soccer-cam/internal/config"
	"github.com/mblakley/soccer-cam/internal/logging"
	"github.com/mblakley/soccer-cam/internal/metrics"
	"github.com/mblakley/soccer-cam/internal/notifications"
	"github.com/mblakley/soccer-cam/internal/services"
	"github.com/mblakley/soccer-cam/internal/state"
)

// Policy bounds automatic retries.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
}

// PolicyFrom reads the processing section.
func PolicyFrom(cfg config.Processing) Policy {
	return Policy{
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     cfg.RetryBackoff(),
		MaxBackoff:  cfg.MaxBackoff(),
	}
}

// Delay returns the wait after the given failed attempt (1-based):
// backoff * 2^(attempt-1), capped at MaxBackoff.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.Backoff <= 0 {
		return 0
	}
	delay := p.Backoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxBackoff > 0 && delay >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		return p.MaxBackoff
	}
	return delay
}

// Counter selects the attempt counter a step owns on the group record.
type Counter func(*state.Group) *int

// CombineAttempts and TrimAttempts are the two counters.
var (
	CombineAttempts Counter = func(g *state.Group) *int { return &g.CombineAttempts }
	TrimAttempts    Counter = func(g *state.Group) *int { return &g.TrimAttempts }
)

// Options controls one step run.
type Options struct {
	Logger    *slog.Logger
	Store     *state.Store
	Notifier  notifications.Service
	Metrics   *metrics.Metrics
	Stage     state.Stage
	Operation string
	GroupID   string
	Counter   Counter
	Policy    Policy
	Now       func() time.Time
}

// Step performs the tool work. It must leave the group untouched on error.
type Step func(ctx context.Context) error

// recordedError marks a failure that Run already logged and counted against
// the group.
type recordedError struct{ err error }

func (e recordedError) Error() string { return e.err.Error() }
func (e recordedError) Unwrap() error { return e.err }

// Recorded reports whether err came back from Run or Fail after the retry
// policy handled it. Callers need not log such errors again.
func Recorded(err error) bool {
	var rec recordedError
	return errors.As(err, &rec)
}

// Due reports whether a group's retry delay has passed.
func Due(g state.Group, now time.Time) bool {
	return g.NextAttemptAt.IsZero() || !now.Before(g.NextAttemptAt)
}

// Run executes step and applies the retry policy on failure. Cancellation
// leaves the group in its stage without spending an attempt.
func Run(ctx context.Context, opts Options, step Step) error {
	if opts.Store == nil {
		return fmt.Errorf("state store is required")
	}
	if step == nil {
		return fmt.Errorf("step unavailable: %s", opts.Operation)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	stageCtx := services.WithStage(services.WithGroupID(ctx, opts.GroupID), string(opts.Stage))
	logger := logging.WithContext(stageCtx, opts.Logger)
	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("operation", opts.Operation),
	)

	started := time.Now()
	err := step(stageCtx)
	opts.Metrics.ToolRun(opts.Operation, time.Since(started), err)
	if err == nil {
		logger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.String("operation", opts.Operation),
			logging.Duration("elapsed", time.Since(started)),
		)
		return nil
	}
	if ctx.Err() != nil {
		logger.Info("stage interrupted",
			logging.String(logging.FieldEventType, "stage_interrupted"),
			logging.String("operation", opts.Operation),
		)
		return err
	}
	return handleFailure(stageCtx, logger, opts, now(), err)
}

// Fail applies the retry policy to a failure found before the tool ran, such
// as a missing input file. Errors that cannot be retried put the group in a
// sticky error at once.
func Fail(ctx context.Context, opts Options, err error) error {
	if opts.Store == nil {
		return fmt.Errorf("state store is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	stageCtx := services.WithStage(services.WithGroupID(ctx, opts.GroupID), string(opts.Stage))
	return handleFailure(stageCtx, logging.WithContext(stageCtx, opts.Logger), opts, now(), err)
}

func handleFailure(ctx context.Context, logger *slog.Logger, opts Options, now time.Time, stageErr error) error {
	message := strings.TrimSpace(stageErr.Error())
	var (
		attempt int
		sticky  bool
		reason  string
	)
	_, err := opts.Store.Update(opts.GroupID, func(g *state.Group) error {
		counter := opts.Counter(g)
		*counter++
		attempt = *counter
		if services.Retryable(stageErr) && (opts.Policy.MaxAttempts <= 0 || attempt < opts.Policy.MaxAttempts) {
			g.NextAttemptAt = now.Add(opts.Policy.Delay(attempt))
			return nil
		}
		sticky = true
		reason = state.ReasonToolFailure
		if !services.Retryable(stageErr) {
			reason = string(services.Classify(stageErr))
		}
		g.NextAttemptAt = time.Time{}
		g.Error = &state.ErrorInfo{Stage: opts.Stage, Reason: reason, Message: message, At: now}
		return nil
	})
	if err != nil {
		logger.Error("failed to persist stage failure", logging.Error(err))
		return errors.Join(stageErr, err)
	}

	if !sticky {
		logging.WarnWithContext(logger, "stage failed; will retry", "stage_retry",
			logging.String("operation", opts.Operation),
			logging.Int("attempt", attempt),
			logging.Duration("backoff", opts.Policy.Delay(attempt)),
			logging.ErrorKind(stageErr),
			logging.Error(stageErr),
			logging.String(logging.FieldImpact, "group stays in "+string(opts.Stage)),
		)
		return recordedError{stageErr}
	}

	logging.ErrorWithContext(logger, "stage failed", "stage_failure",
		logging.String("operation", opts.Operation),
		logging.Int("attempt", attempt),
		logging.String("reason", reason),
		logging.ErrorKind(stageErr),
		logging.Error(stageErr),
		logging.String(logging.FieldErrorHint, "fix the cause, then run soccercam reset "+opts.GroupID),
	)
	if opts.Notifier != nil {
		notifyErr := opts.Notifier.Publish(ctx, notifications.EventGroupFailed, notifications.Payload{
			"group":  opts.GroupID,
			"stage":  string(opts.Stage),
			"reason": reason,
			"error":  stageErr,
		})
		opts.Metrics.NotificationSent(string(notifications.EventGroupFailed), notifyErr)
		if notifyErr != nil {
			logger.Debug("stage error notification failed", logging.Error(notifyErr))
		}
	}
	return recordedError{stageErr}
}
