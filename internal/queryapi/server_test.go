package queryapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/btr-supply/chomp/internal/cachebus"
	"github.com/btr-supply/chomp/internal/model"
	"github.com/btr-supply/chomp/internal/storage"
)

type fakeCache struct {
	records map[string]map[string]any
}

func (f *fakeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	name, ok := cutPrefix(key, cachebus.NSCache)
	if !ok {
		return nil, false, nil
	}
	rec, ok := f.records[name]
	if !ok {
		return nil, false, nil
	}
	data, err := cachebus.EncodeRecord(rec)
	return data, true, err
}

func cutPrefix(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || s[:len(prefix)] != prefix {
		return "", false
	}
	return s[len(prefix):], true
}

type fakeAdapter struct {
	storage.Adapter
	series map[string][]float64
}

func (f *fakeAdapter) Fetch(ctx context.Context, table, field string, r storage.Range, aggInterval time.Duration) ([]storage.Point, error) {
	values := f.series[table+"."+field]
	points := make([]storage.Point, len(values))
	for i, v := range values {
		points[i] = storage.Point{TS: r.From.Add(time.Duration(i) * time.Second), Value: v}
	}
	return points, nil
}

func newTestServer() (*Server, *fakeCache, *fakeAdapter) {
	cache := &fakeCache{records: map[string]map[string]any{
		"px": {"usd": 1.5, "eur": 1.3},
		"fx": {"usd": 100.0},
	}}
	adapter := &fakeAdapter{series: map[string][]float64{}}
	ing := model.NewIngester(model.Ingester{
		Name: "px", IngesterType: model.TypeHTTPAPI, ResourceType: model.ResourceTimeSeries, Interval: "m1",
		Fields: []*model.Field{
			{Name: "usd", Type: model.TypeFloat64},
			{Name: "eur", Type: model.TypeFloat64},
			{Name: "secret", Type: model.TypeFloat64, Protected: true},
			{Name: "scratch", Type: model.TypeFloat64, Transient: true},
		},
	})
	s := New(cache, adapter, nil, nil, nil, []*model.Ingester{ing})
	return s, cache, adapter
}

func TestHandleLastReturnsCachedRecord(t *testing.T) {
	s, _, _ := newTestServer()
	r := s.Router()
	req := httptest.NewRequest(http.MethodGet, "/last/px,fx", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, 200, w.Code)

	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 1.5, body["px"]["usd"])
	require.Equal(t, 100.0, body["fx"]["usd"])
}

func TestHandleLastReturnsNilForUnknownResource(t *testing.T) {
	s, _, _ := newTestServer()
	r := s.Router()
	req := httptest.NewRequest(http.MethodGet, "/last/ghost", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, 200, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Nil(t, body["ghost"])
}

func TestHandleSchemaHidesProtectedAndTransientByDefault(t *testing.T) {
	s, _, _ := newTestServer()
	r := s.Router()
	req := httptest.NewRequest(http.MethodGet, "/schema", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, 200, w.Code)

	var body struct {
		Resources []resourceSchema `json:"resources"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Resources, 1)
	names := map[string]bool{}
	for _, f := range body.Resources[0].Fields {
		names[f.Name] = true
	}
	require.True(t, names["usd"])
	require.False(t, names["secret"])
	require.False(t, names["scratch"])
}

func TestHandleConvertComputesRateAndAmount(t *testing.T) {
	s, _, _ := newTestServer()
	r := s.Router()
	req := httptest.NewRequest(http.MethodGet, "/convert/px.usd-px.eur?base_amount=10&precision=4", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, 200, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.InDelta(t, 1.5/1.3, body["rate"].(float64), 1e-3)
	require.InDelta(t, 10*1.5/1.3, body["quote_amount"].(float64), 1e-2)
}

func TestHandleConvertRejectsMalformedPair(t *testing.T) {
	s, _, _ := newTestServer()
	r := s.Router()
	req := httptest.NewRequest(http.MethodGet, "/convert/notapair", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, 400, w.Code)
}

func TestHandleVolatilityRendersRowTable(t *testing.T) {
	s, _, adapter := newTestServer()
	adapter.series["px.usd"] = []float64{1, 2, 3, 4, 5, 6}
	r := s.Router()
	req := httptest.NewRequest(http.MethodGet, "/volatility?resource=px&field=usd&period=2", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, 200, w.Code)

	var body struct {
		Rows []map[string]any `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Rows, 6)
}

func TestHandleHistoryRejectsBadTimeRange(t *testing.T) {
	s, _, _ := newTestServer()
	r := s.Router()
	req := httptest.NewRequest(http.MethodGet, "/history/px?from=2026-01-02T00:00:00Z&to=2026-01-01T00:00:00Z", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, 400, w.Code)
}
