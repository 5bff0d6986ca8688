// Package idempotency provides the dedup guard for meal submissions.
//
// A guarded execution runs at most once per (user, key) pair: the first
// caller becomes the leader and runs the work, concurrent callers with the
// same key attach to that execution and receive its outcome, and later
// callers within the retention window replay the stored outcome without
// re-running the work.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nutrilog/go-meal-backend/internal/domain"
)

var (
	// ErrNoRecord is returned by a Store lookup when no live record exists
	// for the (user, key) pair.
	ErrNoRecord = errors.New("idempotency: no record")

	// ErrKeyTaken is returned by a Store create when another writer
	// inserted the record first.
	ErrKeyTaken = errors.New("idempotency: key taken")

	// ErrInFlightElsewhere is returned when the store shows an in-flight
	// execution this process does not own. The record may belong to
	// another instance or be an orphan from a crash; either way the
	// caller cannot safely attach and should retry after the TTL.
	ErrInFlightElsewhere = errors.New("idempotency: execution in flight elsewhere")
)

// errLeaderAborted signals followers that the call they attached to never
// acquired the store record; they re-enter the lookup loop.
var errLeaderAborted = errors.New("idempotency: leader aborted")

// Store is the persistent record table, keyed by (user, key). Lookups
// return ErrNoRecord when nothing live exists; creates return ErrKeyTaken
// when racing another writer. The guard is the only mutator of records for
// the duration of their TTL.
type Store interface {
	Get(ctx context.Context, userID, key string, now time.Time) (*domain.Idempotency, error)
	Create(ctx context.Context, userID, key string, ttl time.Duration) (*domain.Idempotency, error)
	Complete(ctx context.Context, userID, key string, status int, logID, errorCode string) error
	// PurgeExpired removes the non-in-flight record for (user, key) once
	// its retention window has passed, returning the rows removed.
	PurgeExpired(ctx context.Context, userID, key string, now time.Time) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ExecFunc is the guarded unit of work. It returns the ID of the log it
// committed.
type ExecFunc func(ctx context.Context) (logID string, err error)

// call is one in-process execution that followers can attach to.
type call struct {
	done  chan struct{}
	logID string
	err   error
}

// Guard deduplicates executions per (user, key). Zero value is not usable;
// construct with New.
type Guard struct {
	store Store
	ttl   time.Duration
	now   func() time.Time

	codeFor func(error) string
	errFor  func(code string) error

	mu    sync.Mutex
	calls map[string]*call
}

// Option customizes a Guard.
type Option func(*Guard)

// WithClock injects a deterministic clock for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// WithErrorCodec sets the mapping between execution errors and the short
// codes stored in Failed records. codeFor classifies an execution error
// into a code; errFor reconstructs the error a replayed failure surfaces.
func WithErrorCodec(codeFor func(error) string, errFor func(code string) error) Option {
	return func(g *Guard) {
		g.codeFor = codeFor
		g.errFor = errFor
	}
}

// New builds a Guard over store with the given retention window.
func New(store Store, ttl time.Duration, opts ...Option) *Guard {
	g := &Guard{
		store:   store,
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
		codeFor: func(error) string { return "internal" },
		errFor:  func(code string) error { return errors.New(code) },
		calls:   make(map[string]*call),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Do executes fn under the (userID, key) guard. An empty key disables
// deduplication entirely and fn runs unconditionally.
//
// The returned dup flag is true when the outcome came from another
// execution of the same key: a stored record, or an in-flight call this
// request attached to.
func (g *Guard) Do(ctx context.Context, userID, key string, fn ExecFunc) (logID string, dup bool, err error) {
	if strings.TrimSpace(key) == "" {
		logID, err = fn(ctx)
		return logID, false, err
	}

	ck := userID + "\x00" + key
	barrenCreates := 0
	for {
		if c, ok := g.lookupCall(ck); ok {
			logID, err = g.awaitCall(ctx, c)
			if errors.Is(err, errLeaderAborted) {
				continue
			}
			guardOutcomes.WithLabelValues("follow").Inc()
			return logID, true, err
		}

		rec, lookErr := g.store.Get(ctx, userID, key, g.now())
		switch {
		case lookErr == nil:
			switch rec.Status {
			case domain.IdemCompleted:
				guardOutcomes.WithLabelValues("replay_success").Inc()
				return rec.LogID, true, nil
			case domain.IdemFailed:
				guardOutcomes.WithLabelValues("replay_failure").Inc()
				return "", true, g.errFor(rec.ErrorCode)
			}
			// InFlight in the store; attach locally when we own the call.
			if c, ok := g.lookupCall(ck); ok {
				logID, err = g.awaitCall(ctx, c)
				if errors.Is(err, errLeaderAborted) {
					continue
				}
				guardOutcomes.WithLabelValues("follow").Inc()
				return logID, true, err
			}
			guardOutcomes.WithLabelValues("conflict").Inc()
			return "", false, ErrInFlightElsewhere
		case errors.Is(lookErr, ErrNoRecord):
			// No record: contend for leadership below.
		default:
			return "", false, lookErr
		}

		c, leader := g.registerCall(ck)
		if !leader {
			logID, err = g.awaitCall(ctx, c)
			if errors.Is(err, errLeaderAborted) {
				continue
			}
			guardOutcomes.WithLabelValues("follow").Inc()
			return logID, true, err
		}

		if _, createErr := g.store.Create(ctx, userID, key, g.ttl); createErr != nil {
			g.releaseCall(ck, c, "", errLeaderAborted)
			if errors.Is(createErr, ErrKeyTaken) {
				// The unique index is held by a record the lookup did not
				// see. Usually that is a leftover past its retention window
				// that the sweeper has not evicted yet: reclaim it so the
				// resubmission runs as a new logical request. A live record
				// (a lost insert race) is left alone and observed by the
				// re-read.
				purged, perr := g.store.PurgeExpired(ctx, userID, key, g.now())
				if perr != nil {
					return "", false, perr
				}
				if purged == 0 {
					barrenCreates++
					if barrenCreates > 1 {
						// Nothing reclaimable and nothing visible to read:
						// an expired record still marked in flight holds
						// the key. Surface the conflict instead of spinning.
						guardOutcomes.WithLabelValues("conflict").Inc()
						return "", false, ErrInFlightElsewhere
					}
				} else {
					barrenCreates = 0
				}
				continue
			}
			return "", false, createErr
		}

		guardOutcomes.WithLabelValues("lead").Inc()
		return g.lead(ctx, ck, c, userID, key, fn)
	}
}

// lead runs fn as the owning execution, records the outcome in the store,
// and then releases followers. Store completion happens before followers
// wake so a follower that immediately re-submits observes the record.
func (g *Guard) lead(ctx context.Context, ck string, c *call, userID, key string, fn ExecFunc) (string, bool, error) {
	logID, err := fn(ctx)

	// The completion write must survive a caller that gave up waiting.
	cctx := context.WithoutCancel(ctx)
	if err == nil {
		if cerr := g.store.Complete(cctx, userID, key, domain.IdemCompleted, logID, ""); cerr != nil {
			log.Warn().Err(cerr).Str("user_id", userID).Msg("idempotency: record completion failed")
		}
	} else {
		code := g.codeFor(err)
		if cerr := g.store.Complete(cctx, userID, key, domain.IdemFailed, "", code); cerr != nil {
			log.Warn().Err(cerr).Str("user_id", userID).Str("code", code).Msg("idempotency: record failure failed")
		}
	}

	g.releaseCall(ck, c, logID, err)
	return logID, false, err
}

// lookupCall returns the live in-process call for ck, if any.
func (g *Guard) lookupCall(ck string) (*call, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.calls[ck]
	return c, ok
}

// registerCall installs a new call for ck, or returns the existing one.
// leader is true when the caller installed it and owns the execution.
func (g *Guard) registerCall(ck string) (*call, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.calls[ck]; ok {
		return c, false
	}
	c := &call{done: make(chan struct{})}
	g.calls[ck] = c
	return c, true
}

// releaseCall publishes the outcome and wakes all followers of c.
func (g *Guard) releaseCall(ck string, c *call, logID string, err error) {
	g.mu.Lock()
	delete(g.calls, ck)
	g.mu.Unlock()
	c.logID, c.err = logID, err
	close(c.done)
}

// awaitCall blocks until c resolves or ctx is cancelled. The follower's own
// cancellation never cancels the leader.
func (g *Guard) awaitCall(ctx context.Context, c *call) (string, error) {
	select {
	case <-c.done:
		return c.logID, c.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
