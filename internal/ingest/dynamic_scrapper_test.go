package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/btr-supply/chomp/internal/model"
)

type fakeDriver struct {
	html map[string]string
	err  error
}

func (d *fakeDriver) RenderedHTML(ctx context.Context, target string) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	return d.html[target], nil
}

func TestDynamicScrapperFetcherSelectsFromRenderedDOM(t *testing.T) {
	driver := &fakeDriver{html: map[string]string{
		"http://x": `<html><body><span id="p">5.5</span></body></html>`,
	}}
	f := NewDynamicScrapperFetcher(driver)
	ing := &model.Ingester{Fields: []*model.Field{
		{Name: "p", Target: "http://x", Selector: "span#p"},
	}}
	require.NoError(t, f.Fetch(context.Background(), ing))
	require.Equal(t, "5.5", ing.Fields[0].Value)
}

func TestDynamicScrapperFetcherRequiresDriver(t *testing.T) {
	f := NewDynamicScrapperFetcher(nil)
	ing := &model.Ingester{Name: "missing-driver", Fields: []*model.Field{
		{Name: "p", Target: "http://x"},
	}}
	require.Error(t, f.Fetch(context.Background(), ing))
}

func TestDynamicScrapperFetcherPropagatesRenderError(t *testing.T) {
	driver := &fakeDriver{err: errors.New("render timeout")}
	f := NewDynamicScrapperFetcher(driver)
	ing := &model.Ingester{Fields: []*model.Field{
		{Name: "p", Target: "http://x", Selector: "span#p"},
	}}
	require.Error(t, f.Fetch(context.Background(), ing))
}
