package ingest

import (
	"context"
	"fmt"

	"github.com/btr-supply/chomp/internal/cachebus"
	"github.com/btr-supply/chomp/internal/model"
	"github.com/btr-supply/chomp/internal/storage"
)

// cacheWriter is the slice of cachebus.Client a CachePublisher depends
// on.
type cacheWriter interface {
	SetWithTTL(ctx context.Context, key string, value []byte, ttlSec int) (bool, error)
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)
}

// CachePublisher implements Publisher over the cache/bus adapter plus an
// optional storage.Adapter, matching spec.md §4.6 "Epoch lifecycle:
// publish" — every completed epoch is written to cache:<name> and
// broadcast on the same channel; resource types other than "value" are
// additionally persisted to storage (spec.md GLOSSARY "Resource type").
type CachePublisher struct {
	Cache   cacheWriter
	Storage storage.Adapter
	// CacheTTLSec bounds how long a cache:<name> record survives with no
	// fresh epoch; 0 disables expiry.
	CacheTTLSec int
}

// NewCachePublisher builds a Publisher writing to cache and, when store
// is non-nil, to persistent storage.
func NewCachePublisher(cache cacheWriter, store storage.Adapter, cacheTTLSec int) *CachePublisher {
	return &CachePublisher{Cache: cache, Storage: store, CacheTTLSec: cacheTTLSec}
}

func (p *CachePublisher) Publish(ctx context.Context, ing *model.Ingester, record map[string]any) error {
	data, err := cachebus.EncodeRecord(record)
	if err != nil {
		return fmt.Errorf("publish %q: encode: %w", ing.Name, err)
	}

	key := cachebus.NSCache + ing.Name
	if _, err := p.Cache.SetWithTTL(ctx, key, data, p.CacheTTLSec); err != nil {
		return fmt.Errorf("publish %q: cache set: %w", ing.Name, err)
	}
	if _, err := p.Cache.Publish(ctx, ing.Name, data); err != nil {
		return fmt.Errorf("publish %q: channel publish: %w", ing.Name, err)
	}

	if p.Storage == nil || ing.ResourceType == model.ResourceValue {
		return nil
	}
	row := storage.Row(record)
	if _, err := p.Storage.Insert(ctx, ing.Name, row); err != nil {
		return fmt.Errorf("publish %q: storage insert: %w", ing.Name, err)
	}
	return nil
}
