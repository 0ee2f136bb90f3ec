package services

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Retry defaults
const (
	DefaultMaxAttempts = 4
	DefaultRetryWait   = 1000 * time.Millisecond
)

// RetryOutcome explains why a retry loop ended
type RetryOutcome int

const (
	// RetrySucceeded means an attempt produced a result
	RetrySucceeded RetryOutcome = iota
	// RetryExhausted means every attempt failed or came back empty
	RetryExhausted
	// RetryAborted means the context was cancelled while waiting
	RetryAborted
)

func (o RetryOutcome) String() string {
	switch o {
	case RetrySucceeded:
		return "succeeded"
	case RetryExhausted:
		return "exhausted"
	case RetryAborted:
		return "aborted"
	}
	return "unknown"
}

// Operation is one attempt of a retried call. It reports ok=false when it
// produced no result; an error and an empty result both count as a failed
// attempt.
type Operation[T any] func(ctx context.Context) (result T, ok bool, err error)

// Backoff computes the wait before retry attempt n (1-indexed)
type Backoff interface {
	Delay(attempt int) time.Duration
}

// ConstantBackoff always waits the same duration
type ConstantBackoff time.Duration

// Delay returns the fixed wait
func (c ConstantBackoff) Delay(int) time.Duration {
	return time.Duration(c)
}

// ExponentialBackoff doubles the wait each attempt, capped at Max
type ExponentialBackoff struct {
	Initial time.Duration
	Max     time.Duration
}

// Delay returns Initial * 2^(attempt-1), capped at Max
func (e ExponentialBackoff) Delay(attempt int) time.Duration {
	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// RetryExecutor runs operations with a bounded number of attempts. It blocks
// the calling goroutine while waiting and performs no background work.
type RetryExecutor struct {
	maxAttempts int
	backoff     Backoff
	logger      zerolog.Logger
}

// RetryOption configures a RetryExecutor
type RetryOption func(*RetryExecutor)

// WithMaxAttempts sets the attempt limit; values below 1 are ignored
func WithMaxAttempts(n int) RetryOption {
	return func(r *RetryExecutor) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithWait sets a constant wait between attempts
func WithWait(d time.Duration) RetryOption {
	return func(r *RetryExecutor) { r.backoff = ConstantBackoff(d) }
}

// WithBackoff sets the wait strategy
func WithBackoff(b Backoff) RetryOption {
	return func(r *RetryExecutor) {
		if b != nil {
			r.backoff = b
		}
	}
}

// WithRetryLogger sets the logger that receives attempt failures
func WithRetryLogger(l zerolog.Logger) RetryOption {
	return func(r *RetryExecutor) { r.logger = l }
}

// NewRetryExecutor creates an executor with 4 attempts and a 1s constant wait
// unless overridden.
func NewRetryExecutor(opts ...RetryOption) *RetryExecutor {
	r := &RetryExecutor{
		maxAttempts: DefaultMaxAttempts,
		backoff:     ConstantBackoff(DefaultRetryWait),
		logger:      log.Logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MaxAttempts returns the attempt limit
func (r *RetryExecutor) MaxAttempts() int {
	return r.maxAttempts
}

// Do runs op until it yields a result, the attempts run out, or ctx is
// cancelled during a wait. It never returns the underlying error: failures are
// logged and the outcome says why the loop stopped.
func Do[T any](ctx context.Context, r *RetryExecutor, op Operation[T]) (T, RetryOutcome) {
	var zero T

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		result, ok, err := op(ctx)
		if err == nil && ok {
			return result, RetrySucceeded
		}

		last := attempt == r.maxAttempts
		switch {
		case err != nil && last:
			r.logger.Error().Err(err).Int("attempt", attempt).Msg("retry attempts exhausted")
		case err != nil:
			r.logger.Error().Err(err).Int("attempt", attempt).Msg("attempt failed")
		default:
			r.logger.Debug().Int("attempt", attempt).Msg("attempt returned no result")
		}
		if last {
			break
		}

		r.logger.Info().Int("attempt", attempt).Msg("waiting before next retry")
		if !wait(ctx, r.backoff.Delay(attempt)) {
			r.logger.Error().Err(ctx.Err()).Int("attempt", attempt).Msg("retry interrupted")
			return zero, RetryAborted
		}
	}

	return zero, RetryExhausted
}

// Retry runs op with the given options and reports whether a result was
// produced. Giving up and being interrupted both return ok=false.
func Retry[T any](ctx context.Context, op Operation[T], opts ...RetryOption) (T, bool) {
	result, outcome := Do(ctx, NewRetryExecutor(opts...), op)
	return result, outcome == RetrySucceeded
}

// wait sleeps for d and returns false if ctx is done first
func wait(ctx context.Context, d time.Duration) bool {
	if err := ctx.Err(); err != nil {
		return false
	}
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
