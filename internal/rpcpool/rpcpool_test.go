package rpcpool

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRequiresAtLeastOneEndpoint(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestNewAppliesDefaults(t *testing.T) {
	pool, err := New(Config{Endpoints: []string{"http://a"}})
	require.NoError(t, err)
	require.Equal(t, DefaultConfig().HealthCheckInterval, pool.cfg.HealthCheckInterval)
	require.Equal(t, DefaultConfig().MaxConsecutiveFails, pool.cfg.MaxConsecutiveFails)
}

func TestParseEndpoints(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, ParseEndpoints(" a, b ,"))
	require.Nil(t, ParseEndpoints(""))
}

func TestBestReturnsLowestLatencyHealthyEndpoint(t *testing.T) {
	pool, err := New(Config{Endpoints: []string{"http://a", "http://b"}})
	require.NoError(t, err)
	pool.MarkHealthy("http://a", 50*time.Millisecond)
	pool.MarkHealthy("http://b", 5*time.Millisecond)

	best, err := pool.Best()
	require.NoError(t, err)
	require.Equal(t, "http://b", best.URL)
}

func TestBestFallsBackWhenNoneHealthy(t *testing.T) {
	pool, err := New(Config{Endpoints: []string{"http://a"}, MaxConsecutiveFails: 1})
	require.NoError(t, err)
	pool.MarkUnhealthy("http://a")

	best, err := pool.Best()
	require.Error(t, err)
	require.Equal(t, "http://a", best.URL)
}

func TestMarkUnhealthyAfterMaxConsecutiveFails(t *testing.T) {
	pool, err := New(Config{Endpoints: []string{"http://a"}, MaxConsecutiveFails: 2})
	require.NoError(t, err)
	pool.MarkUnhealthy("http://a")
	require.Equal(t, 1, pool.HealthyCount())
	pool.MarkUnhealthy("http://a")
	require.Equal(t, 0, pool.HealthyCount())
}

func TestMarkHealthyResetsFailCountAndAverages(t *testing.T) {
	pool, err := New(Config{Endpoints: []string{"http://a"}, MaxConsecutiveFails: 1})
	require.NoError(t, err)
	pool.MarkUnhealthy("http://a")
	pool.MarkHealthy("http://a", 10*time.Millisecond)
	require.Equal(t, 1, pool.HealthyCount())

	eps := pool.Endpoints()
	require.Equal(t, 0, eps[0].ConsecutiveFails)
	require.Equal(t, 10*time.Millisecond, eps[0].AvgLatency)
}

func TestNextAdvancesRoundRobinAmongHealthy(t *testing.T) {
	pool, err := New(Config{Endpoints: []string{"http://a", "http://b"}})
	require.NoError(t, err)
	first := pool.Next()
	second := pool.Next()
	require.NotEqual(t, first.URL, second.URL)
}

func TestExecuteWithFailoverSucceedsOnFirstEndpoint(t *testing.T) {
	pool, err := New(Config{Endpoints: []string{"http://a"}})
	require.NoError(t, err)
	calls := 0
	err = pool.ExecuteWithFailover(context.Background(), 2, func(url string) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestExecuteWithFailoverAdvancesOnError(t *testing.T) {
	pool, err := New(Config{Endpoints: []string{"http://a", "http://b"}})
	require.NoError(t, err)
	var seen []string
	err = pool.ExecuteWithFailover(context.Background(), 2, func(url string) error {
		seen = append(seen, url)
		if url == "http://a" {
			return errors.New("fail")
		}
		return nil
	})
	require.NoError(t, err)
	require.Contains(t, seen, "http://a")
	require.Contains(t, seen, "http://b")
}

func TestExecuteWithFailoverExhausted(t *testing.T) {
	pool, err := New(Config{Endpoints: []string{"http://a"}})
	require.NoError(t, err)
	err = pool.ExecuteWithFailover(context.Background(), 1, func(url string) error {
		return errors.New("always fails")
	})
	require.Error(t, err)
}

func TestExecuteWithFailoverRespectsRateLimit(t *testing.T) {
	pool, err := New(Config{Endpoints: []string{"http://a"}, RequestsPerSecond: 5})
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 8; i++ { // burst is capped at RequestsPerSecond+1=6, so calls 7-8 must wait
		err := pool.ExecuteWithFailover(context.Background(), 0, func(url string) error { return nil })
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestHealthCheckLoopMarksEndpointsHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pool, err := New(Config{Endpoints: []string{srv.URL}, HealthCheckInterval: time.Hour, MaxConsecutiveFails: 1})
	require.NoError(t, err)
	pool.MarkUnhealthy(srv.URL)
	require.Equal(t, 0, pool.HealthyCount())
	pool.checkAll(context.Background())
	require.Equal(t, 1, pool.HealthyCount())
}
