package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWithRetrySucceedsFirstTry(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), FetchPolicy{MaxRetries: 3, Cooldown: time.Millisecond}, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestWithRetryExhausted(t *testing.T) {
	calls := 0
	sentinel := errors.New("boom")
	err := withRetry(context.Background(), FetchPolicy{MaxRetries: 2, Cooldown: time.Millisecond}, func() error {
		calls++
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 3, calls) // initial attempt + 2 retries
}

func TestWithRetryAbortsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := withRetry(ctx, FetchPolicy{MaxRetries: 5, Cooldown: time.Second}, func() error {
		return errors.New("always fails")
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestDefaultFetchPolicy(t *testing.T) {
	p := DefaultFetchPolicy()
	require.Equal(t, 5, p.MaxRetries)
	require.Equal(t, 2*time.Second, p.Cooldown)
	require.Equal(t, 3*time.Second, p.Timeout)
}
