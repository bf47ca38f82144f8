package ingest

import (
	"context"
	"time"
)

// FetchPolicy bounds one fetcher's retry/timeout behavior (spec.md §6
// "-r/-rc/-it" flags, §7 error kind 3 "transient fetch failure").
// Defaults match the spec's CLI defaults.
type FetchPolicy struct {
	MaxRetries int
	Cooldown   time.Duration
	Timeout    time.Duration
}

// DefaultFetchPolicy is the policy every stateless HTTP-style fetcher
// uses unless the Lifecycle Controller overrides it from config/CLI.
func DefaultFetchPolicy() FetchPolicy {
	return FetchPolicy{MaxRetries: 5, Cooldown: 2 * time.Second, Timeout: 3 * time.Second}
}

// withRetry runs op up to policy.MaxRetries+1 times, sleeping an
// exponentially growing cooldown between attempts (spec.md §7 "Retried
// up to max_retries with exponential backoff starting at
// retry_cooldown"). It returns the last error if every attempt fails,
// or nil on the first success.
func withRetry(ctx context.Context, policy FetchPolicy, op func() error) error {
	delay := policy.Cooldown
	var err error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt == policy.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
