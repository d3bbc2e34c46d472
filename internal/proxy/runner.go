package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/getgoodtape/videoproc/internal/domain"
)

// AttemptFailure is one failed candidate.
type AttemptFailure struct {
	EndpointID string `json:"endpoint_id"`
	Kind       Kind   `json:"kind"`
	Provider   string `json:"provider"`
	Class      Class  `json:"class"`
	Err        error  `json:"-"`
}

// ExhaustedError is returned when no candidate succeeded. Attempts are in try
// order. Cause is set when the caller's context ended the loop early.
type ExhaustedError struct {
	Operation string
	Attempts  []AttemptFailure
	Cause     error
	combined  error
}

func (e *ExhaustedError) Error() string {
	prefix := e.Operation
	if prefix == "" {
		prefix = "attempt"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: stopped after %d attempts: %v", prefix, len(e.Attempts), e.Cause)
	}
	return fmt.Sprintf("%s: all %d network paths failed: %v", prefix, len(e.Attempts), e.combined)
}

// Unwrap exposes ErrAllPathsFailed, the cancellation cause, and every attempt error.
func (e *ExhaustedError) Unwrap() []error {
	errs := []error{domain.ErrAllPathsFailed}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	if e.combined != nil {
		errs = append(errs, e.combined)
	}
	return errs
}

// Classes returns the failure class of every attempt, in order.
func (e *ExhaustedError) Classes() []Class {
	out := make([]Class, len(e.Attempts))
	for i, a := range e.Attempts {
		out[i] = a.Class
	}
	return out
}

// AttemptIDs returns the endpoint IDs tried, in order.
func (e *ExhaustedError) AttemptIDs() []string {
	out := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		out[i] = a.EndpointID
	}
	return out
}

func (e *ExhaustedError) add(f AttemptFailure) {
	e.Attempts = append(e.Attempts, f)
	e.combined = multierr.Append(e.combined, fmt.Errorf("%s: %w", f.EndpointID, f.Err))
}

// AttemptEvent describes one finished attempt.
type AttemptEvent struct {
	Operation string
	URL       string
	Attempt   PathAttempt
	Success   bool
	Class     Class
	Err       error
	Duration  time.Duration
	Bytes     int64
}

// AttemptObserver is notified after every attempt (metrics, usage log).
type AttemptObserver interface {
	ObserveAttempt(ctx context.Context, ev AttemptEvent)
}

// ByteCounter is implemented by results that know how much data they moved.
type ByteCounter interface {
	TransferredBytes() int64
}

// Runner executes an operation against candidates in order until one succeeds.
type Runner struct {
	tracker       *Tracker
	onAuthFailure func()
	observers     []AttemptObserver
	classify      func(error) Class
	clock         clock.Clock
	logger        *slog.Logger

	operation string
	url       string
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithAuthFailureHook is called whenever an attempt fails with ClassAuth.
func WithAuthFailureHook(fn func()) RunnerOption {
	return func(r *Runner) { r.onAuthFailure = fn }
}

// WithObservers registers attempt observers.
func WithObservers(obs ...AttemptObserver) RunnerOption {
	return func(r *Runner) { r.observers = append(r.observers, obs...) }
}

// WithClassifier replaces Classify.
func WithClassifier(fn func(error) Class) RunnerOption {
	return func(r *Runner) { r.classify = fn }
}

// WithRunnerClock replaces the wall clock used for attempt durations.
func WithRunnerClock(c clock.Clock) RunnerOption {
	return func(r *Runner) { r.clock = c }
}

// NewRunner creates a runner recording outcomes into tracker.
func NewRunner(tracker *Tracker, logger *slog.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		tracker:  tracker,
		classify: Classify,
		clock:    clock.New(),
		logger:   logger.With("component", "runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// With returns a copy of r labelled with the operation name and source URL
// for logs and observers.
func (r *Runner) With(operation, url string) *Runner {
	c := *r
	c.operation = operation
	c.url = url
	c.logger = r.logger.With("operation", operation)
	return &c
}

// Run tries candidates sequentially, each at most once and each bounded by
// timeout. Every attempt is recorded in the tracker exactly once.
func Run[T any](
	ctx context.Context,
	r *Runner,
	candidates []PathAttempt,
	timeout time.Duration,
	op func(ctx context.Context, attempt PathAttempt) (T, error),
) (T, PathAttempt, error) {
	var zero T
	if len(candidates) == 0 {
		return zero, PathAttempt{}, domain.ErrNoNetworkPath
	}

	exhausted := &ExhaustedError{Operation: r.operation}

	for i, cand := range candidates {
		if err := ctx.Err(); err != nil {
			exhausted.Cause = err
			return zero, PathAttempt{}, exhausted
		}

		logger := r.logger.With("attempt", i+1, "of", len(candidates), "endpoint", cand.EndpointID)
		logger.Debug("trying path", "proxy", cand.Redacted())

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		start := r.clock.Now()
		result, err := op(attemptCtx, cand)
		timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		cancel()
		elapsed := r.clock.Since(start)

		if err == nil {
			r.tracker.Record(cand.EndpointID, true)
			var n int64
			if bc, ok := any(result).(ByteCounter); ok {
				n = bc.TransferredBytes()
			}
			r.notify(ctx, AttemptEvent{
				Operation: r.operation, URL: r.url, Attempt: cand,
				Success: true, Duration: elapsed, Bytes: n,
			})
			logger.Info("path succeeded", "duration_ms", elapsed.Milliseconds())
			return result, cand, nil
		}

		if timedOut && ctx.Err() == nil {
			err = fmt.Errorf("%w after %s: %w", domain.ErrAttemptTimeout, timeout, err)
		}
		class := r.classify(err)

		r.tracker.Record(cand.EndpointID, false)
		exhausted.add(AttemptFailure{
			EndpointID: cand.EndpointID,
			Kind:       cand.Kind,
			Provider:   cand.Provider,
			Class:      class,
			Err:        err,
		})
		r.notify(ctx, AttemptEvent{
			Operation: r.operation, URL: r.url, Attempt: cand,
			Class: class, Err: err, Duration: elapsed,
		})

		if ctx.Err() != nil {
			exhausted.Cause = ctx.Err()
			logger.Warn("request cancelled during attempt", "error", err)
			return zero, PathAttempt{}, exhausted
		}

		logger.Warn("path failed", "class", class, "error", err, "duration_ms", elapsed.Milliseconds())
		if class == ClassAuth && r.onAuthFailure != nil {
			r.onAuthFailure()
		}
	}

	return zero, PathAttempt{}, exhausted
}

func (r *Runner) notify(ctx context.Context, ev AttemptEvent) {
	if len(r.observers) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, o := range r.observers {
		o.ObserveAttempt(ctx, ev)
	}
}
