// Package postgres implements storage.Adapter over a Timescale-flavored
// Postgres database using jmoiron/sqlx and lib/pq, with schema migration
// handled by golang-migrate/migrate/v4 (all three teacher dependencies,
// here given a home since the original repository used them against
// Supabase Postgres rather than a generic sqlx pool).
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/btr-supply/chomp/internal/chomperr"
	"github.com/btr-supply/chomp/internal/model"
	"github.com/btr-supply/chomp/internal/storage"
)

// Adapter is a storage.Adapter backed by database/sql via sqlx, talking
// to a Postgres (optionally Timescale) instance.
type Adapter struct {
	db *sqlx.DB
}

// New returns an unconnected Adapter; call Connect before use.
func New() storage.Adapter { return &Adapter{} }

func (a *Adapter) Connect(ctx context.Context, dsn string) error {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return fmt.Errorf("%w: postgres connect: %v", chomperr.ErrDependencyUnreachable, err)
	}
	a.db = db
	return nil
}

func (a *Adapter) Ping(ctx context.Context) error {
	if a.db == nil {
		return chomperr.ErrDependencyUnreachable
	}
	return a.db.PingContext(ctx)
}

func (a *Adapter) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func (a *Adapter) CreateDB(ctx context.Context, name string, force bool) error {
	if force {
		if _, err := a.db.ExecContext(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %s", pqIdent(name))); err != nil {
			return fmt.Errorf("postgres: drop database %s: %w", name, err)
		}
	}
	_, err := a.db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %s", pqIdent(name)))
	if err != nil && strings.Contains(err.Error(), "already exists") {
		return nil
	}
	return err
}

func (a *Adapter) UseDB(ctx context.Context, name string) error {
	// Postgres has no USE statement; callers connect with the target
	// database already named in the DSN. This is a no-op kept to satisfy
	// the uniform Adapter interface across backends that do support it
	// (e.g. a future MySQL-family adapter).
	return nil
}

func (a *Adapter) CreateTable(ctx context.Context, ing *model.Ingester, force bool) error {
	if force {
		if _, err := a.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", pqIdent(ing.Name))); err != nil {
			return fmt.Errorf("postgres: drop table %s: %w", ing.Name, err)
		}
	}
	cols := append([]string{}, storage.SystemColumns(ing.ResourceType)...)
	for _, f := range ing.PersistedFields() {
		cols = append(cols, fmt.Sprintf("%s %s", pqIdent(f.Name), storage.ColumnType(f.Type)))
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", pqIdent(ing.Name), strings.Join(cols, ", "))
	_, err := a.db.ExecContext(ctx, stmt)
	return err
}

func (a *Adapter) ListTables(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryxContext(ctx, `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (a *Adapter) Insert(ctx context.Context, table string, row storage.Row) (string, error) {
	if err := a.InsertMany(ctx, table, []storage.Row{row}, time.Time{}, time.Time{}, 0); err != nil {
		return "", err
	}
	return insertionID(row), nil
}

func (a *Adapter) InsertMany(ctx context.Context, table string, rows []storage.Row, fromDate, toDate time.Time, aggInterval time.Duration) error {
	rows = clipAndAlign(rows, fromDate, toDate, aggInterval)
	if len(rows) == 0 {
		return nil
	}
	cols := make([]string, 0, len(rows[0]))
	for col := range rows[0] {
		cols = append(cols, col)
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pqIdent(c)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pqIdent(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	for _, row := range rows {
		args := make([]any, len(cols))
		for i, col := range cols {
			args[i] = row[col]
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("postgres: insert into %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func (a *Adapter) FetchByID(ctx context.Context, table, id string) (storage.Row, error) {
	rows, err := a.db.QueryxContext(ctx, fmt.Sprintf("SELECT * FROM %s WHERE uid = $1", pqIdent(table)), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, nil
	}
	return scanRow(rows)
}

func (a *Adapter) FetchBatchByIDs(ctx context.Context, table string, ids []string) ([]storage.Row, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	q := fmt.Sprintf("SELECT * FROM %s WHERE uid IN (%s)", pqIdent(table), strings.Join(placeholders, ", "))
	rows, err := a.db.QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAll(rows)
}

func (a *Adapter) Fetch(ctx context.Context, table, field string, r storage.Range, aggInterval time.Duration) ([]storage.Point, error) {
	bucketSec := bucketSeconds(aggInterval)
	q := fmt.Sprintf(
		`SELECT floor(extract(epoch from ts) / %d) * %d AS bucket, AVG(%s) AS v
		 FROM %s WHERE ts BETWEEN $1 AND $2 GROUP BY bucket ORDER BY bucket`,
		bucketSec, bucketSec, pqIdent(field), pqIdent(table))
	rows, err := a.db.QueryxContext(ctx, q, r.From, r.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Point
	for rows.Next() {
		var bucket float64
		var v *float64
		if err := rows.Scan(&bucket, &v); err != nil {
			return nil, err
		}
		val := 0.0
		if v != nil {
			val = *v
		}
		out = append(out, storage.Point{TS: time.Unix(int64(bucket), 0).UTC(), Value: val})
	}
	return out, rows.Err()
}

func (a *Adapter) FetchBatch(ctx context.Context, tables, columns []string, r storage.Range, aggInterval time.Duration) ([]string, []storage.Row, error) {
	bucketSec := bucketSeconds(aggInterval)
	merged := map[int64]storage.Row{}
	var order []int64

	for _, table := range tables {
		aggCols := make([]string, len(columns))
		for i, c := range columns {
			aggCols[i] = fmt.Sprintf("AVG(%s) AS %s", pqIdent(c), pqIdent(c))
		}
		q := fmt.Sprintf(
			`SELECT floor(extract(epoch from ts) / %d) * %d AS bucket, %s
			 FROM %s WHERE ts BETWEEN $1 AND $2 GROUP BY bucket ORDER BY bucket`,
			bucketSec, bucketSec, strings.Join(aggCols, ", "), pqIdent(table))

		rows, err := a.db.QueryxContext(ctx, q, r.From, r.To)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: fetch_batch %s: %w", table, err)
		}
		err = func() error {
			defer rows.Close()
			for rows.Next() {
				scanned := storage.Row{}
				if err := rows.MapScan(scanned); err != nil {
					return err
				}
				bucket := bucketKey(scanned["bucket"])
				out, ok := merged[bucket]
				if !ok {
					out = storage.Row{"ts": time.Unix(bucket, 0).UTC()}
					merged[bucket] = out
					order = append(order, bucket)
				}
				for _, c := range columns {
					out[table+"."+c] = scanned[c]
				}
			}
			return rows.Err()
		}()
		if err != nil {
			return nil, nil, err
		}
	}

	sortInt64s(order)
	outRows := make([]storage.Row, len(order))
	for i, b := range order {
		outRows[i] = merged[b]
	}

	colNames := make([]string, 0, 1+len(tables)*len(columns))
	colNames = append(colNames, "ts")
	for _, table := range tables {
		for _, c := range columns {
			colNames = append(colNames, table+"."+c)
		}
	}
	return colNames, outRows, nil
}

func bucketSeconds(aggInterval time.Duration) int {
	if aggInterval <= 0 {
		aggInterval = storage.DefaultAggInterval
	}
	sec := int(aggInterval.Seconds())
	if sec < 1 {
		sec = 1
	}
	return sec
}

func bucketKey(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	default:
		return 0
	}
}

func sortInt64s(s []int64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// clipAndAlign drops rows whose "ts" falls outside [fromDate, toDate]
// (when set) and, when aggInterval is set, truncates each kept row's
// "ts" down to the bucket boundary it belongs to, so back-filled data
// lands on the same grid a live epoch would (spec.md §4.2
// "insert_many... agg_interval").
func clipAndAlign(rows []storage.Row, fromDate, toDate time.Time, aggInterval time.Duration) []storage.Row {
	if fromDate.IsZero() && toDate.IsZero() && aggInterval <= 0 {
		return rows
	}
	out := make([]storage.Row, 0, len(rows))
	for _, row := range rows {
		ts, ok := rowTimestamp(row)
		if !ok {
			out = append(out, row)
			continue
		}
		if !fromDate.IsZero() && ts.Before(fromDate) {
			continue
		}
		if !toDate.IsZero() && ts.After(toDate) {
			continue
		}
		if aggInterval > 0 {
			row = cloneRow(row)
			row["ts"] = ts.Truncate(aggInterval)
		}
		out = append(out, row)
	}
	return out
}

func rowTimestamp(row storage.Row) (time.Time, bool) {
	switch v := row["ts"].(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}

func cloneRow(row storage.Row) storage.Row {
	out := make(storage.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func insertionID(row storage.Row) string {
	if id, ok := row["uid"].(string); ok {
		return id
	}
	return ""
}

func scanRow(rows *sqlx.Rows) (storage.Row, error) {
	row := storage.Row{}
	if err := rows.MapScan(row); err != nil {
		return nil, err
	}
	return row, nil
}

func scanAll(rows *sqlx.Rows) ([]storage.Row, error) {
	var out []storage.Row
	for rows.Next() {
		row := storage.Row{}
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func pqIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
