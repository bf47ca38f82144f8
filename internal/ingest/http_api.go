package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/btr-supply/chomp/internal/model"
)

// HTTPAPIFetcher fetches a JSON document per declared Target and
// extracts each field with its gjson Selector (spec.md §4.6 "http_api:
// GET target, apply JSONPath-style selector per field").
type HTTPAPIFetcher struct {
	Client *http.Client
	Policy FetchPolicy
}

// NewHTTPAPIFetcher builds a fetcher using the spec's default fetch
// policy (ingestion_timeout/max_retries/retry_cooldown, spec.md §6).
func NewHTTPAPIFetcher() *HTTPAPIFetcher {
	return NewHTTPAPIFetcherWithPolicy(DefaultFetchPolicy())
}

// NewHTTPAPIFetcherWithPolicy builds a fetcher over an explicit policy,
// letting the Lifecycle Controller apply CLI/config overrides.
func NewHTTPAPIFetcherWithPolicy(policy FetchPolicy) *HTTPAPIFetcher {
	return &HTTPAPIFetcher{Client: &http.Client{Timeout: policy.Timeout}, Policy: policy}
}

// Fetch gets one document per distinct Target, retrying each with
// exponential backoff (spec.md §7 error kind 3). A target that still
// fails after retries leaves every field that references it nil
// (reported missing by the caller) rather than aborting fields bound
// to other, healthy targets.
func (f *HTTPAPIFetcher) Fetch(ctx context.Context, ing *model.Ingester) error {
	bodies := map[string][]byte{}
	failed := map[string]error{}

	for _, field := range ing.Fields {
		if field.Target == "" || field.Readonly {
			continue
		}
		if _, tried := failed[field.Target]; tried {
			continue
		}
		body, ok := bodies[field.Target]
		if !ok {
			var err error
			target := field.Target
			err = withRetry(ctx, f.Policy, func() error {
				var getErr error
				body, getErr = f.get(ctx, target)
				return getErr
			})
			if err != nil {
				failed[field.Target] = err
				continue
			}
			bodies[field.Target] = body
		}

		if field.Selector == "" {
			field.Value = string(body)
			continue
		}
		result := gjson.GetBytes(body, field.Selector)
		if !result.Exists() {
			continue // left nil: reported missing by the caller
		}
		field.Value = result.Value()
	}
	if len(bodies) == 0 && len(failed) > 0 {
		for _, err := range failed {
			return fmt.Errorf("http_api: all targets failed: %w", err)
		}
	}
	return nil
}

func (f *HTTPAPIFetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("http_api: %s returned %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
