// Package claim implements the distributed, lease-based task-claim
// engine of spec.md §4.3: cooperative partitioning of a declared job
// set across a worker fleet using the cache's atomic SET-NX-with-expiry
// as the only cross-process mutex (spec.md §5 "Shared resource
// policy").
package claim

import (
	"context"
	"fmt"
	"time"

	"github.com/btr-supply/chomp/internal/chomperr"
	"github.com/btr-supply/chomp/internal/model"
)

// kvStore is the slice of cachebus.Client the claim Service depends on,
// narrowed to an interface so tests can substitute an in-memory fake
// instead of a real Redis connection.
type kvStore interface {
	SetNX(ctx context.Context, key string, value []byte, ttlSec int) (bool, error)
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) (bool, error)
}

// Grace is added to an ingester's interval to compute the claim TTL, so
// the lease straddles one epoch and is renewed on the next (spec.md
// §4.3 "TTL rule").
const Grace = 8 * time.Second

// backoffSchedule is the claim retry ladder from spec.md §4.3
// "ensure_claim": 0.1, 0.3, 0.5, 1, 2, 5, 10, 30s, then 30s repeating.
var backoffSchedule = []time.Duration{
	100 * time.Millisecond, 300 * time.Millisecond, 500 * time.Millisecond,
	1 * time.Second, 2 * time.Second, 5 * time.Second, 10 * time.Second, 30 * time.Second,
}

// defaultEnsureClaimWindow bounds one ensure_claim call's total elapsed
// time (spec.md §4.3).
const defaultEnsureClaimWindow = 120 * time.Second

// Service implements claim/ensure_claim/is_claimed/release.
type Service struct {
	cache kvStore
	self  string // this instance's uid, the lease value

	// ensureWindow and backoff default to the spec.md §4.3 values; tests
	// shrink them to exercise the retry/force-claim paths quickly.
	ensureWindow time.Duration
	backoff      []time.Duration
}

// New binds a claim Service to a cache client and this process's
// instance uid.
func New(cache kvStore, selfUID string) *Service {
	return &Service{
		cache:        cache,
		self:         selfUID,
		ensureWindow: defaultEnsureClaimWindow,
		backoff:      backoffSchedule,
	}
}

func leaseKey(name string, interval model.Interval) string {
	return fmt.Sprintf("claim:%s:%s", name, interval)
}

// Claim atomically sets the lease iff unheld, returning true on
// success (spec.md §4.3 "claim").
func (s *Service) Claim(ctx context.Context, ing *model.Ingester, ttlSec int) (bool, error) {
	return s.cache.SetNX(ctx, leaseKey(ing.Name, ing.Interval), []byte(s.self), ttlSec)
}

// IsClaimed reports whether a lease is currently held. excludeSelf
// ignores a lease held by this instance (spec.md §4.3 "is_claimed").
func (s *Service) IsClaimed(ctx context.Context, ing *model.Ingester, excludeSelf bool) (bool, error) {
	v, ok, err := s.cache.Get(ctx, leaseKey(ing.Name, ing.Interval))
	if err != nil || !ok {
		return false, err
	}
	if excludeSelf && string(v) == s.self {
		return false, nil
	}
	return true, nil
}

// Release deletes the lease. Per spec.md §4.8 "Shutdown", this is only
// called for an orderly shutdown path; a crash relies on TTL expiry.
func (s *Service) Release(ctx context.Context, ing *model.Ingester) (bool, error) {
	return s.cache.Delete(ctx, leaseKey(ing.Name, ing.Interval))
}

// leaseTTL computes interval_sec + Grace for a normal claim.
func leaseTTL(ing *model.Ingester) (int, error) {
	sec, err := ing.Interval.Seconds()
	if err != nil {
		return 0, err
	}
	return sec + int(Grace.Seconds()), nil
}

// EnsureClaim retries Claim with the spec.md §4.3 backoff ladder until
// s.ensureWindow elapses; if still unclaimed it attempts a single
// force-claim on a parallel "<name>:<interval>:force" key, then gives
// up (returned bool is false, error is nil: contention is not an
// error, spec.md §7 kind 7).
func (s *Service) EnsureClaim(ctx context.Context, ing *model.Ingester) (bool, error) {
	ttl, err := leaseTTL(ing)
	if err != nil {
		return false, err
	}

	deadline := time.Now().Add(s.ensureWindow)
	step := 0
	for time.Now().Before(deadline) {
		ok, err := s.Claim(ctx, ing, ttl)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}

		delay := s.backoff[len(s.backoff)-1]
		if step < len(s.backoff) {
			delay = s.backoff[step]
			step++
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(delay):
		}
	}

	forceKey := leaseKey(ing.Name, ing.Interval) + ":force"
	if ok, err := s.cache.SetNX(ctx, forceKey, []byte(s.self), ttl); err == nil && ok {
		return true, nil
	}

	return false, nil
}

// RetryClaimCycle implements the worker-level retry policy of spec.md
// §4.3: up to 5 attempt windows with exponential-backed sleeps
// (30s -> 45s -> 67s -> ... capped at 300s), attempting to claim up to
// maxJobs ingesters per tick. A worker that claims zero jobs after all
// retries exits with success (ErrClaimExhausted is NOT an error
// condition for the caller to surface non-zero; it signals "stop
// retrying").
func (s *Service) RetryClaimCycle(ctx context.Context, candidates []*model.Ingester, maxJobs int, claimed func(*model.Ingester)) error {
	const maxAttempts = 5
	delay := 30 * time.Second

	for attempt := 0; attempt < maxAttempts; attempt++ {
		got := 0
		for _, ing := range candidates {
			if got >= maxJobs {
				break
			}
			already, err := s.IsClaimed(ctx, ing, false)
			if err != nil {
				return err
			}
			if already {
				continue
			}
			if !sampledIn(ing.Probability) {
				continue
			}
			ok, err := s.EnsureClaim(ctx, ing)
			if err != nil {
				return err
			}
			if ok {
				claimed(ing)
				got++
			}
		}
		if got > 0 {
			return nil
		}
		if attempt == maxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = delay * 3 / 2 // sleeps of 30s, 45s, 67.5s, 101.25s; capped below
		if delay > 300*time.Second {
			delay = 300 * time.Second
		}
	}
	return chomperr.ErrClaimExhausted
}

// sampledIn is the probability gate from spec.md §4.3: an ingester with
// probability < 1.0 is skipped with probability 1-p. SPEC_FULL.md Open
// Question #4 resolves this to gate the claim path only.
func sampledIn(p float64) bool {
	if p >= 1.0 {
		return true
	}
	return randFloat() < p
}
