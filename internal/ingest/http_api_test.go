package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/btr-supply/chomp/internal/model"
)

func fastPolicy() FetchPolicy {
	return FetchPolicy{MaxRetries: 2, Cooldown: time.Millisecond, Timeout: time.Second}
}

func TestHTTPAPIFetcherSingleTarget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"price": 42.5}`))
	}))
	defer srv.Close()

	f := NewHTTPAPIFetcherWithPolicy(fastPolicy())
	ing := &model.Ingester{Fields: []*model.Field{
		{Name: "price", Target: srv.URL, Selector: "price"},
	}}
	require.NoError(t, f.Fetch(context.Background(), ing))
	require.Equal(t, 42.5, ing.Fields[0].Value)
}

func TestHTTPAPIFetcherMissingSelector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"price": 42.5}`))
	}))
	defer srv.Close()

	f := NewHTTPAPIFetcherWithPolicy(fastPolicy())
	ing := &model.Ingester{Fields: []*model.Field{
		{Name: "volume", Target: srv.URL, Selector: "volume"},
	}}
	require.NoError(t, f.Fetch(context.Background(), ing))
	require.True(t, ing.Fields[0].IsMissing())
}

// TestHTTPAPIFetcherPartialFailure is the spec.md §7 "multicall partial
// failure" scenario: one target is down, another is healthy; only the
// fields bound to the down target come back nil.
func TestHTTPAPIFetcherPartialFailure(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"a": 1}`))
	}))
	defer healthy.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()

	f := NewHTTPAPIFetcherWithPolicy(fastPolicy())
	ing := &model.Ingester{Fields: []*model.Field{
		{Name: "a", Target: healthy.URL, Selector: "a"},
		{Name: "b", Target: down.URL, Selector: "a"},
	}}
	require.NoError(t, f.Fetch(context.Background(), ing))
	require.Equal(t, float64(1), ing.Fields[0].Value)
	require.True(t, ing.Fields[1].IsMissing())
}

func TestHTTPAPIFetcherAllTargetsFail(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()

	f := NewHTTPAPIFetcherWithPolicy(fastPolicy())
	ing := &model.Ingester{Fields: []*model.Field{
		{Name: "a", Target: down.URL, Selector: "a"},
	}}
	require.Error(t, f.Fetch(context.Background(), ing))
}

// TestHTTPAPIFetcherRetriesThenSucceeds proves a target that fails
// twice and succeeds on the third attempt still populates its fields.
func TestHTTPAPIFetcherRetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"a": 7}`))
	}))
	defer srv.Close()

	f := NewHTTPAPIFetcherWithPolicy(fastPolicy())
	ing := &model.Ingester{Fields: []*model.Field{
		{Name: "a", Target: srv.URL, Selector: "a"},
	}}
	require.NoError(t, f.Fetch(context.Background(), ing))
	require.Equal(t, float64(7), ing.Fields[0].Value)
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestHTTPAPIFetcherRawBodyWithoutSelector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`raw text`))
	}))
	defer srv.Close()

	f := NewHTTPAPIFetcherWithPolicy(fastPolicy())
	ing := &model.Ingester{Fields: []*model.Field{
		{Name: "raw", Target: srv.URL},
	}}
	require.NoError(t, f.Fetch(context.Background(), ing))
	require.Equal(t, "raw text", ing.Fields[0].Value)
}
