package ingest

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/btr-supply/chomp/internal/model"
)

// Resp3GetterFetcher reads a value directly from a RESP3 store (Redis or
// a protocol-compatible cache) per epoch (spec.md §4.6 "resp3_getter:
// Target is a key, Selector an optional JSON path into its value").
type Resp3GetterFetcher struct {
	RDB *redis.Client
}

// NewResp3GetterFetcher builds a fetcher against an existing client, so
// it can share a connection pool with the cache bus when pointed at the
// same Redis instance.
func NewResp3GetterFetcher(rdb *redis.Client) *Resp3GetterFetcher {
	return &Resp3GetterFetcher{RDB: rdb}
}

func (f *Resp3GetterFetcher) Fetch(ctx context.Context, ing *model.Ingester) error {
	for _, field := range ing.Fields {
		if field.Target == "" || field.Readonly {
			continue
		}
		raw, err := f.RDB.Get(ctx, field.Target).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return fmt.Errorf("resp3_getter: GET %s: %w", field.Target, err)
		}
		if field.Selector == "" {
			field.Value = raw
			continue
		}
		field.Value = jsonSelect(raw, field.Selector)
	}
	return nil
}
