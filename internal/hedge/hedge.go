// Package hedge races one or more attempts against a slow, unreliable
// upstream under a hard wall-clock budget.
//
// An attempt is started immediately; if it has not succeeded within
// HedgeDelay, a second one is started speculatively without cancelling the
// first, and so on up to MaxAttempts. The first success wins and every other
// in-flight attempt is cancelled (best effort, via context). Two failure
// modes are distinguishable to the caller: the total budget elapsed
// (ErrTotalTimeout) or every permitted attempt failed first (AllFailedError).
package hedge

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrTotalTimeout is returned when the overall deadline elapses before any
// attempt succeeds. It is surfaced to callers as a retryable timeout,
// distinct from a generic upstream failure.
var ErrTotalTimeout = errors.New("hedge: total timeout exceeded")

// AllFailedError is returned when every started attempt failed before the
// overall deadline with no attempts left to start.
type AllFailedError struct {
	Causes []error
}

// Error implements the error interface.
func (e *AllFailedError) Error() string {
	return fmt.Sprintf("hedge: all %d attempts failed: %v", len(e.Causes), errors.Join(e.Causes...))
}

// Unwrap exposes the per-attempt causes to errors.Is/As.
func (e *AllFailedError) Unwrap() []error { return e.Causes }

// Policy configures one hedge execution. All fields come from configuration
// at process start; Validate rejects values that would degrade silently.
type Policy struct {
	// AttemptTimeout bounds the wall clock of a single attempt.
	AttemptTimeout time.Duration
	// TotalTimeout bounds the whole hedge, strictly enforced even while
	// attempts are still running.
	TotalTimeout time.Duration
	// HedgeDelay is how long to wait after the most recent attempt start
	// before speculatively starting the next one. A delay >= TotalTimeout
	// degenerates to a single non-hedged attempt.
	HedgeDelay time.Duration
	// MaxAttempts caps how many attempts may be started. 1 disables
	// hedging entirely.
	MaxAttempts int
	// RecordLate, when true, logs and counts attempt results that arrive
	// after the hedge has already resolved. They never change the result.
	RecordLate bool
}

// Validate reports whether the policy is usable.
func (p Policy) Validate() error {
	if p.AttemptTimeout <= 0 {
		return errors.New("hedge: attempt timeout must be > 0")
	}
	if p.TotalTimeout <= 0 {
		return errors.New("hedge: total timeout must be > 0")
	}
	if p.HedgeDelay < 0 {
		return errors.New("hedge: hedge delay must be >= 0")
	}
	if p.MaxAttempts < 1 {
		return errors.New("hedge: max attempts must be >= 1")
	}
	return nil
}

// AttemptFunc performs one attempt. It must honor ctx: the per-attempt
// deadline and hedge-wide cancellation both arrive through it. attempt is
// the 1-based start index.
type AttemptFunc[T any] func(ctx context.Context, attempt int) (T, error)

// outcome carries one attempt's resolution back to the hedging loop.
type outcome[T any] struct {
	attempt int
	res     T
	err     error
}

// Do runs fn under the hedging policy and returns the first success, or
// ErrTotalTimeout / *AllFailedError. Attempt start order is deterministic
// (1, 2, ...); completion order is not, and the first observed success wins
// regardless of attempt number. A success racing the total deadline
// resolves in favor of the success.
func Do[T any](ctx context.Context, p Policy, fn AttemptFunc[T]) (T, error) {
	var zero T
	if err := p.Validate(); err != nil {
		return zero, err
	}

	hctx, cancel := context.WithTimeout(ctx, p.TotalTimeout)
	defer cancel()

	// Buffered to MaxAttempts so attempt goroutines never block, even when
	// the hedge has already returned.
	results := make(chan outcome[T], p.MaxAttempts)
	var resolved atomic.Bool

	started := 0
	start := func() {
		started++
		n := started
		attemptsStarted.Inc()
		go func() {
			actx, acancel := context.WithTimeout(hctx, p.AttemptTimeout)
			defer acancel()
			res, err := fn(actx, n)
			if resolved.Load() {
				recordLate(p, n, err)
				return
			}
			results <- outcome[T]{attempt: n, res: res, err: err}
		}()
	}

	start()

	delay := time.NewTimer(p.HedgeDelay)
	defer delay.Stop()

	var causes []error
	failed := 0

	for {
		select {
		case out := <-results:
			if out.err == nil {
				resolved.Store(true)
				cancel()
				return out.res, nil
			}
			failed++
			causes = append(causes, fmt.Errorf("attempt %d: %w", out.attempt, out.err))
			if failed == started && started >= p.MaxAttempts {
				resolved.Store(true)
				// Attempts torn down by the overall deadline are a total
				// timeout, not an upstream failure streak.
				if hctx.Err() != nil && ctx.Err() == nil {
					failuresTotal.WithLabelValues("total_timeout").Inc()
					return zero, ErrTotalTimeout
				}
				if ctx.Err() != nil {
					return zero, ctx.Err()
				}
				failuresTotal.WithLabelValues("all_attempts_failed").Inc()
				return zero, &AllFailedError{Causes: causes}
			}
			// A failure frees the budget for an immediate replacement.
			if started < p.MaxAttempts {
				start()
				resetTimer(delay, p.HedgeDelay)
			}

		case <-delay.C:
			if started < p.MaxAttempts {
				start()
				resetTimer(delay, p.HedgeDelay)
			}

		case <-hctx.Done():
			// Tie break: a success that is already queued is not wasted.
			for {
				select {
				case out := <-results:
					if out.err == nil {
						resolved.Store(true)
						return out.res, nil
					}
					continue
				default:
				}
				break
			}
			resolved.Store(true)
			if ctx.Err() != nil {
				// The caller's context ended, not our budget.
				return zero, ctx.Err()
			}
			failuresTotal.WithLabelValues("total_timeout").Inc()
			return zero, ErrTotalTimeout
		}
	}
}

// recordLate optionally accounts for an attempt result that arrived after
// the hedge resolved. Wasted work is invisible unless the policy opts in.
func recordLate(p Policy, attempt int, err error) {
	if !p.RecordLate {
		return
	}
	if err == nil {
		lateResults.WithLabelValues("success").Inc()
	} else {
		lateResults.WithLabelValues("failure").Inc()
	}
	log.Debug().
		Int("attempt", attempt).
		Bool("success", err == nil).
		Msg("hedge attempt completed after resolution")
}

// resetTimer safely rearms a timer that may have fired already.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
