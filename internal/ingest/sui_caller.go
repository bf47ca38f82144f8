package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/btr-supply/chomp/internal/model"
	"github.com/btr-supply/chomp/internal/rpcpool"
)

// SuiCallerFetcher batches sui_multiGetObjects reads against a pooled
// set of Sui endpoints (spec.md §4.6.7 "Target is an object id, the
// selector indexes into the returned content.fields. Batched via
// sui_multiGetObjects").
type SuiCallerFetcher struct {
	Pool   *rpcpool.Pool
	Client *http.Client
}

// NewSuiCallerFetcher builds a fetcher against pool.
func NewSuiCallerFetcher(pool *rpcpool.Pool) *SuiCallerFetcher {
	return &SuiCallerFetcher{Pool: pool, Client: &http.Client{Timeout: 10 * time.Second}}
}

// Fetch batches every distinct object id referenced by ing's fields
// into one sui_multiGetObjects call and fans results back out by
// field. A per-object error in the response leaves only that object's
// fields nil; the epoch only fails if the RPC call itself failed
// outright.
func (f *SuiCallerFetcher) Fetch(ctx context.Context, ing *model.Ingester) error {
	fieldsByTarget := map[string][]*model.Field{}
	var objectIDs []string
	for _, field := range ing.Fields {
		if field.Target == "" || field.Readonly {
			continue
		}
		if _, seen := fieldsByTarget[field.Target]; !seen {
			objectIDs = append(objectIDs, field.Target)
		}
		fieldsByTarget[field.Target] = append(fieldsByTarget[field.Target], field)
	}
	if len(objectIDs) == 0 {
		return nil
	}

	objects, err := f.multiGetObjects(ctx, objectIDs)
	if err != nil {
		return fmt.Errorf("sui_caller: sui_multiGetObjects: %w", err)
	}

	for i, objectID := range objectIDs {
		fields := objects[i]
		if fields == nil {
			continue // left nil: object missing or errored
		}
		for _, field := range fieldsByTarget[objectID] {
			field.Value = dottedLookup(fields, field.Selector)
		}
	}
	return nil
}

// multiGetObjects fetches every object id's content.fields in one RPC
// call, returning a nil entry at an object's index when Sui reported an
// error for it (object missing, deleted, or unparsable).
func (f *SuiCallerFetcher) multiGetObjects(ctx context.Context, objectIDs []string) ([]map[string]any, error) {
	reqBody, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "sui_multiGetObjects",
		"params":  []any{objectIDs, map[string]any{"showContent": true}},
	})
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Result []struct {
			Data *struct {
				Content struct {
					Fields map[string]any `json:"fields"`
				} `json:"content"`
			} `json:"data"`
			Error *struct {
				Code string `json:"code"`
			} `json:"error"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	err = f.Pool.ExecuteWithFailover(ctx, 2, func(url string) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := f.Client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return json.NewDecoder(resp.Body).Decode(&decoded)
	})
	if err != nil {
		return nil, err
	}
	if decoded.Error != nil {
		return nil, fmt.Errorf("sui_multiGetObjects: %s", decoded.Error.Message)
	}

	out := make([]map[string]any, len(objectIDs))
	for i := range objectIDs {
		if i >= len(decoded.Result) {
			continue
		}
		entry := decoded.Result[i]
		if entry.Error != nil || entry.Data == nil {
			continue
		}
		out[i] = entry.Data.Content.Fields
	}
	return out, nil
}

// dottedLookup walks a "a.b.c" path through nested maps, returning nil
// at the first missing segment.
func dottedLookup(v map[string]any, path string) any {
	if path == "" {
		return v
	}
	cur := any(v)
	for _, part := range splitDots(path) {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}

func splitDots(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
