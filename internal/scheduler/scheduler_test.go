package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/btr-supply/chomp/internal/model"
)

func TestAddRejectsDuplicateID(t *testing.T) {
	s := New(ModeAsync, 4, nil)
	job := &Job{ID: "px", Interval: model.Interval("s1"), Run: func(ctx context.Context) error { return nil }}
	require.NoError(t, s.Add(context.Background(), job, false))
	err := s.Add(context.Background(), job, false)
	require.Error(t, err)
}

func TestTickAsyncRunsJobsSequentially(t *testing.T) {
	s := New(ModeAsync, 4, nil)
	var mu sync.Mutex
	var order []string
	for _, id := range []string{"a", "b", "c"} {
		id := id
		job := &Job{ID: id, Interval: model.Interval("s1"), Run: func(ctx context.Context) error {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return nil
		}}
		require.NoError(t, s.Add(context.Background(), job, false))
	}
	s.tick(context.Background(), model.Interval("s1"))
	require.Equal(t, []string{"a", "b", "c"}, order)
}

func TestTickThreadedRunsAllJobs(t *testing.T) {
	s := New(ModeThreaded, 2, nil)
	var mu sync.Mutex
	seen := map[string]bool{}
	for _, id := range []string{"a", "b", "c", "d"} {
		id := id
		job := &Job{ID: id, Interval: model.Interval("s1"), Run: func(ctx context.Context) error {
			mu.Lock()
			seen[id] = true
			mu.Unlock()
			return nil
		}}
		require.NoError(t, s.Add(context.Background(), job, false))
	}
	s.tick(context.Background(), model.Interval("s1"))
	require.Len(t, seen, 4)
}

func TestTickReportsJobErrorWithoutStoppingOtherJobs(t *testing.T) {
	s := New(ModeAsync, 4, nil)
	var mu sync.Mutex
	var failed []string
	s.OnJobError(func(id string, err error) {
		mu.Lock()
		failed = append(failed, id)
		mu.Unlock()
	})
	require.NoError(t, s.Add(context.Background(), &Job{ID: "ok", Interval: model.Interval("s1"), Run: func(ctx context.Context) error { return nil }}, false))
	require.NoError(t, s.Add(context.Background(), &Job{ID: "bad", Interval: model.Interval("s1"), Run: func(ctx context.Context) error { return errors.New("boom") }}, false))
	s.tick(context.Background(), model.Interval("s1"))
	require.Equal(t, []string{"bad"}, failed)
}

func TestStartIntervalSchedulesAndStopCancels(t *testing.T) {
	s := New(ModeAsync, 4, nil)
	var calls int32
	var mu sync.Mutex
	job := &Job{ID: "x", Interval: model.Interval("s1"), Run: func(ctx context.Context) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	}}
	require.NoError(t, s.Add(context.Background(), job, true))
	time.Sleep(1200 * time.Millisecond)
	s.Stop()
	mu.Lock()
	got := calls
	mu.Unlock()
	require.GreaterOrEqual(t, got, int32(1))
}
