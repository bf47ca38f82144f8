package storage

import (
	"context"
	"time"

	"github.com/btr-supply/chomp/internal/model"
)

// stubAdapter satisfies Adapter for a named-but-undriven backend; every
// method except Close (which returns nil) reports ErrAdapterNotImplemented.
type stubAdapter struct{ name string }

func (s stubAdapter) Connect(ctx context.Context, dsn string) error { return unimplementedErr(s.name) }
func (s stubAdapter) Ping(ctx context.Context) error                { return unimplementedErr(s.name) }
func (s stubAdapter) Close() error                                  { return nil }

func (s stubAdapter) CreateDB(ctx context.Context, name string, force bool) error {
	return unimplementedErr(s.name)
}
func (s stubAdapter) UseDB(ctx context.Context, name string) error { return unimplementedErr(s.name) }
func (s stubAdapter) CreateTable(ctx context.Context, ing *model.Ingester, force bool) error {
	return unimplementedErr(s.name)
}
func (s stubAdapter) ListTables(ctx context.Context) ([]string, error) {
	return nil, unimplementedErr(s.name)
}

func (s stubAdapter) Insert(ctx context.Context, table string, row Row) (string, error) {
	return "", unimplementedErr(s.name)
}
func (s stubAdapter) InsertMany(ctx context.Context, table string, rows []Row, fromDate, toDate time.Time, aggInterval time.Duration) error {
	return unimplementedErr(s.name)
}

func (s stubAdapter) FetchByID(ctx context.Context, table, id string) (Row, error) {
	return nil, unimplementedErr(s.name)
}
func (s stubAdapter) FetchBatchByIDs(ctx context.Context, table string, ids []string) ([]Row, error) {
	return nil, unimplementedErr(s.name)
}
func (s stubAdapter) Fetch(ctx context.Context, table, field string, r Range, aggInterval time.Duration) ([]Point, error) {
	return nil, unimplementedErr(s.name)
}
func (s stubAdapter) FetchBatch(ctx context.Context, tables, columns []string, r Range, aggInterval time.Duration) ([]string, []Row, error) {
	return nil, nil, unimplementedErr(s.name)
}
