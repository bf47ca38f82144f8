// Package storage defines chomp's pluggable persistence adapter
// interface (spec.md §4.2 "Storage Adapter"), grounded on the
// context-first repository interface shape of
// infrastructure/database/repository_interface.go in the teacher.
package storage

import (
	"context"
	"time"

	"github.com/btr-supply/chomp/internal/model"
)

// Row is one persisted record: column name to value.
type Row = map[string]any

// Range bounds a historical fetch by field and time window, backing both
// the Query API's /history endpoint and the transformer engine's series
// lookback references.
type Range struct {
	From time.Time
	To   time.Time
}

// Point is one (timestamp, value) sample out of a single-field range
// fetch. Carrying the timestamp alongside the value (rather than a bare
// []float64) is what lets callers bucket by actual time instead of by
// raw slice index — the series spec.md §7 kind 3/5 allows to have gaps
// when individual epochs leave a field null.
type Point struct {
	TS    time.Time
	Value float64
}

// DefaultAggInterval is the bucket width a range fetch falls back to
// when the caller passes a zero agg_interval (spec.md §4.2 "fetch...
// default 1h if null").
const DefaultAggInterval = time.Hour

// Adapter is the uniform interface every storage backend implements
// (spec.md §4.2 "connect/ping/create_db/use_db/create_table/insert/
// insert_many/fetch_by_id/fetch_batch_by_ids/fetch/fetch_batch/
// list_tables").
type Adapter interface {
	Connect(ctx context.Context, dsn string) error
	Ping(ctx context.Context) error
	Close() error

	// CreateDB ensures database name exists. It is idempotent unless
	// force is set, in which case an existing database is dropped and
	// recreated (spec.md §4.2 "create_db(name, opts, force)").
	CreateDB(ctx context.Context, name string, force bool) error
	UseDB(ctx context.Context, name string) error
	// CreateTable ensures ing's table exists with system columns
	// followed by its non-transient declared fields. It is idempotent
	// unless force is set, in which case an existing table is dropped
	// and recreated (spec.md §4.2 "create_table(ingester, name, force)").
	CreateTable(ctx context.Context, ing *model.Ingester, force bool) error
	ListTables(ctx context.Context) ([]string, error)

	// Insert writes one row, returning its "uid" system column as the
	// insertion id, or "" when the row carries none (spec.md §4.2
	// "insert... returns insertion id or null").
	Insert(ctx context.Context, table string, row Row) (string, error)
	// InsertMany bulk-loads rows for back-fill, clipping to
	// [fromDate, toDate] when non-zero and rounding each row's ts down
	// to aggInterval when set (spec.md §4.2 "insert_many(ingester,
	// rows, from_date, to_date, agg_interval=null)").
	InsertMany(ctx context.Context, table string, rows []Row, fromDate, toDate time.Time, aggInterval time.Duration) error

	FetchByID(ctx context.Context, table, id string) (Row, error)
	FetchBatchByIDs(ctx context.Context, table string, ids []string) ([]Row, error)
	// Fetch reads one field's time series within r, averaged into
	// aggInterval-wide buckets (DefaultAggInterval when aggInterval is
	// 0), ascending by timestamp (spec.md §4.2 "fetch(table, from, to,
	// agg_interval, columns)... honors aggregation interval").
	Fetch(ctx context.Context, table, field string, r Range, aggInterval time.Duration) ([]Point, error)
	// FetchBatch reads columns across every named table within r,
	// aligned by timestamp bucket into one result set (spec.md §4.2
	// "fetch_batch(tables, from, to, agg_interval, columns)... Returns
	// aligned result"). Each returned row carries "ts" plus one entry
	// per "<table>.<column>"; columnNames lists them in that order.
	FetchBatch(ctx context.Context, tables, columns []string, r Range, aggInterval time.Duration) (columnNames []string, rows []Row, err error)
}

// Registry resolves an adapter name (spec.md's enumerated backend list)
// to a constructor. Backends with no driver available in the dependency
// pack register a stub via RegisterKnownButUnimplemented.
type Registry struct {
	factories map[string]func() Adapter
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]func() Adapter{}}
}

// Register adds a concrete adapter constructor under name.
func (r *Registry) Register(name string, factory func() Adapter) {
	r.factories[name] = factory
}

// Build returns a new Adapter instance for name, or
// chomperr.ErrAdapterNotImplemented if name is unknown.
func (r *Registry) Build(name string) (Adapter, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, unimplementedErr(name)
	}
	return factory(), nil
}

// Names lists every registered adapter name.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	return out
}
