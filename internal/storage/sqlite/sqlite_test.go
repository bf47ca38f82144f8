package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/btr-supply/chomp/internal/model"
	"github.com/btr-supply/chomp/internal/storage"
)

func newTestAdapter(t *testing.T) storage.Adapter {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "chomp-test.db")
	a := New()
	require.NoError(t, a.Connect(context.Background(), dsn))
	t.Cleanup(func() { a.Close() })
	return a
}

func testIngester() *model.Ingester {
	return model.NewIngester(model.Ingester{
		Name: "px", IngesterType: model.TypeHTTPAPI, ResourceType: model.ResourceTimeSeries, Interval: "m1",
		Fields: []*model.Field{
			{Name: "usd", Type: model.TypeFloat64},
		},
	})
}

func TestSQLiteAdapterRoundTrip(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()
	require.NoError(t, a.Ping(ctx))
	require.NoError(t, a.CreateTable(ctx, testIngester(), false))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []storage.Row{
		{"ts": base, "usd": 1.0},
		{"ts": base.Add(30 * time.Minute), "usd": 3.0},
		{"ts": base.Add(time.Hour), "usd": 5.0},
	}
	require.NoError(t, a.InsertMany(ctx, "px", rows, time.Time{}, time.Time{}, 0))

	points, err := a.Fetch(ctx, "px", "usd", storage.Range{From: base, To: base.Add(2 * time.Hour)}, time.Hour)
	require.NoError(t, err)
	require.Len(t, points, 2)
	require.InDelta(t, 2.0, points[0].Value, 1e-9) // avg(1.0, 3.0) in the first hour bucket
	require.InDelta(t, 5.0, points[1].Value, 1e-9)
	require.True(t, points[0].TS.Before(points[1].TS))
}

func TestSQLiteAdapterInsertHonorsDateRangeAndAggInterval(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()
	require.NoError(t, a.CreateTable(ctx, testIngester(), false))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []storage.Row{
		{"ts": base.Add(-time.Hour), "usd": 9.0}, // before fromDate, dropped
		{"ts": base.Add(5 * time.Minute), "usd": 2.0},
		{"ts": base.Add(10 * time.Minute), "usd": 4.0},
	}
	require.NoError(t, a.InsertMany(ctx, "px", rows, base, base.Add(time.Hour), time.Hour))

	points, err := a.Fetch(ctx, "px", "usd", storage.Range{From: base, To: base.Add(time.Hour)}, time.Hour)
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.InDelta(t, 3.0, points[0].Value, 1e-9) // both surviving rows rounded into the same hour bucket
}

func TestSQLiteAdapterInsertReturnsUID(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()
	ing := model.NewIngester(model.Ingester{
		Name: "acct", IngesterType: model.TypeHTTPAPI, ResourceType: model.ResourceUpdate, Interval: "m1",
		Fields: []*model.Field{{Name: "balance", Type: model.TypeFloat64}},
	})
	require.NoError(t, a.CreateTable(ctx, ing, false))

	now := time.Now().UTC()
	id, err := a.Insert(ctx, "acct", storage.Row{
		"uid": "acct-1", "created_at": now, "updated_at": now, "balance": 42.0,
	})
	require.NoError(t, err)
	require.Equal(t, "acct-1", id)

	row, err := a.FetchByID(ctx, "acct", "acct-1")
	require.NoError(t, err)
	require.Equal(t, "acct-1", row["uid"])
}

func TestSQLiteAdapterCreateTableForceRecreates(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()
	ing := testIngester()
	require.NoError(t, a.CreateTable(ctx, ing, false))
	now := time.Now().UTC()
	_, err := a.Insert(ctx, "px", storage.Row{"ts": now, "usd": 1.0})
	require.NoError(t, err)

	require.NoError(t, a.CreateTable(ctx, ing, true))
	points, err := a.Fetch(ctx, "px", "usd", storage.Range{From: now.Add(-time.Hour), To: now.Add(time.Hour)}, time.Hour)
	require.NoError(t, err)
	require.Empty(t, points, "force recreate must drop prior rows")
}

func TestSQLiteAdapterFetchBatchAlignsAcrossTables(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()
	pxIng := testIngester()
	fxIng := model.NewIngester(model.Ingester{
		Name: "fx", IngesterType: model.TypeHTTPAPI, ResourceType: model.ResourceTimeSeries, Interval: "m1",
		Fields: []*model.Field{{Name: "usd", Type: model.TypeFloat64}},
	})
	require.NoError(t, a.CreateTable(ctx, pxIng, false))
	require.NoError(t, a.CreateTable(ctx, fxIng, false))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, a.InsertMany(ctx, "px", []storage.Row{{"ts": base, "usd": 1.0}}, time.Time{}, time.Time{}, 0))
	require.NoError(t, a.InsertMany(ctx, "fx", []storage.Row{{"ts": base, "usd": 100.0}}, time.Time{}, time.Time{}, 0))

	cols, rows, err := a.FetchBatch(ctx, []string{"px", "fx"}, []string{"usd"},
		storage.Range{From: base, To: base.Add(time.Hour)}, time.Hour)
	require.NoError(t, err)
	require.Equal(t, []string{"ts", "px.usd", "fx.usd"}, cols)
	require.Len(t, rows, 1)
	require.InDelta(t, 1.0, rows[0]["px.usd"].(float64), 1e-9)
	require.InDelta(t, 100.0, rows[0]["fx.usd"].(float64), 1e-9)
}
