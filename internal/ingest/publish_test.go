package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/btr-supply/chomp/internal/model"
	"github.com/btr-supply/chomp/internal/storage"
)

type fakeCacheWriter struct {
	set       map[string][]byte
	published map[string][]byte
	setErr    error
	pubErr    error
}

func newFakeCacheWriter() *fakeCacheWriter {
	return &fakeCacheWriter{set: map[string][]byte{}, published: map[string][]byte{}}
}

func (f *fakeCacheWriter) SetWithTTL(ctx context.Context, key string, value []byte, ttlSec int) (bool, error) {
	if f.setErr != nil {
		return false, f.setErr
	}
	f.set[key] = value
	return true, nil
}

func (f *fakeCacheWriter) Publish(ctx context.Context, channel string, payload []byte) (int64, error) {
	if f.pubErr != nil {
		return 0, f.pubErr
	}
	f.published[channel] = payload
	return 1, nil
}

type fakeStorageAdapter struct {
	storage.Adapter
	inserted []storage.Row
	err      error
}

func (f *fakeStorageAdapter) Insert(ctx context.Context, table string, row storage.Row) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.inserted = append(f.inserted, row)
	return "", nil
}

func TestCachePublisherWritesCacheAndChannel(t *testing.T) {
	cache := newFakeCacheWriter()
	p := NewCachePublisher(cache, nil, 0)
	ing := &model.Ingester{Name: "px", ResourceType: model.ResourceTimeSeries}

	require.NoError(t, p.Publish(context.Background(), ing, map[string]any{"usd": 1.5}))
	require.Contains(t, cache.set, "cache:px")
	require.Contains(t, cache.published, "px")
}

func TestCachePublisherSkipsStorageForValueResource(t *testing.T) {
	cache := newFakeCacheWriter()
	store := &fakeStorageAdapter{}
	p := NewCachePublisher(cache, store, 0)
	ing := &model.Ingester{Name: "acct", ResourceType: model.ResourceValue}

	require.NoError(t, p.Publish(context.Background(), ing, map[string]any{"uid": "1"}))
	require.Empty(t, store.inserted)
}

func TestCachePublisherPersistsNonValueResource(t *testing.T) {
	cache := newFakeCacheWriter()
	store := &fakeStorageAdapter{}
	p := NewCachePublisher(cache, store, 0)
	ing := &model.Ingester{Name: "px", ResourceType: model.ResourceTimeSeries}

	require.NoError(t, p.Publish(context.Background(), ing, map[string]any{"usd": 1.5}))
	require.Len(t, store.inserted, 1)
}

func TestCachePublisherPropagatesCacheError(t *testing.T) {
	cache := newFakeCacheWriter()
	cache.setErr = errors.New("redis down")
	p := NewCachePublisher(cache, nil, 0)
	ing := &model.Ingester{Name: "px", ResourceType: model.ResourceTimeSeries}

	require.Error(t, p.Publish(context.Background(), ing, map[string]any{"usd": 1.5}))
}

func TestCachePublisherPropagatesStorageError(t *testing.T) {
	cache := newFakeCacheWriter()
	store := &fakeStorageAdapter{err: errors.New("insert failed")}
	p := NewCachePublisher(cache, store, 0)
	ing := &model.Ingester{Name: "px", ResourceType: model.ResourceTimeSeries}

	require.Error(t, p.Publish(context.Background(), ing, map[string]any{"usd": 1.5}))
}
