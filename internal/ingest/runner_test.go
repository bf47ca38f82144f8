package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/btr-supply/chomp/internal/logging"
	"github.com/btr-supply/chomp/internal/model"
)

type fakeFetcher struct {
	err error
	set func(*model.Ingester)
}

func (f *fakeFetcher) Fetch(ctx context.Context, ing *model.Ingester) error {
	if f.set != nil {
		f.set(ing)
	}
	return f.err
}

type fakePublisher struct {
	published map[string]any
	err       error
}

func (p *fakePublisher) Publish(ctx context.Context, ing *model.Ingester, record map[string]any) error {
	p.published = record
	return p.err
}

func testIngester() *model.Ingester {
	return model.NewIngester(model.Ingester{
		Name:         "prices",
		IngesterType: model.TypeHTTPAPI,
		ResourceType: model.ResourceTimeSeries,
		Fields: []*model.Field{
			{Name: "price", Type: model.TypeFloat64},
		},
	})
}

func TestRunEpochPublishesFetchedValue(t *testing.T) {
	ing := testIngester()
	fetcher := &fakeFetcher{set: func(i *model.Ingester) {
		i.SetFieldValue("price", 100.5)
	}}
	pub := &fakePublisher{}
	r := NewRunner(logging.New("test", "error", "text"), pub)

	err := r.RunEpoch(context.Background(), ing, fetcher, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 100.5, pub.published["price"])
	require.False(t, ing.LastIngested.IsZero())
}

func TestRunEpochPropagatesFetchError(t *testing.T) {
	ing := testIngester()
	fetcher := &fakeFetcher{err: errors.New("fetch failed")}
	pub := &fakePublisher{}
	r := NewRunner(logging.New("test", "error", "text"), pub)

	err := r.RunEpoch(context.Background(), ing, fetcher, nil, nil)
	require.Error(t, err)
}

func TestRunEpochPropagatesPublishError(t *testing.T) {
	ing := testIngester()
	fetcher := &fakeFetcher{set: func(i *model.Ingester) { i.SetFieldValue("price", 1.0) }}
	pub := &fakePublisher{err: errors.New("publish failed")}
	r := NewRunner(logging.New("test", "error", "text"), pub)

	err := r.RunEpoch(context.Background(), ing, fetcher, nil, nil)
	require.Error(t, err)
}

func TestRunEpochClearsFieldsBetweenEpochs(t *testing.T) {
	ing := testIngester()
	ing.Fields[0].Value = "stale"
	fetcher := &fakeFetcher{}
	pub := &fakePublisher{}
	r := NewRunner(logging.New("test", "error", "text"), pub)

	require.NoError(t, r.RunEpoch(context.Background(), ing, fetcher, nil, nil))
	require.Nil(t, ing.Fields[0].Value)
}
