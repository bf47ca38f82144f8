package queryapi

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// table is a row-aligned result set: one shared set of column names and
// one slice of equal-length rows, the shape spec.md §4.9 asks every
// analytics/history endpoint to return "in a selectable format".
type table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// render writes t in the format named by the "format" query parameter:
// "row" (default) — one JSON object per row; "column" — one array per
// column; "csv" — a text/csv body. Arrow/Parquet/Polars-native are not
// rendered: no such encoder exists anywhere in the dependency pack
// chomp draws from, so requesting one is a 501.
func (t table) render(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "row"
	}
	switch strings.ToLower(format) {
	case "row":
		rows := make([]map[string]any, len(t.Rows))
		for i, row := range t.Rows {
			m := make(map[string]any, len(t.Columns))
			for j, col := range t.Columns {
				if j < len(row) {
					m[col] = row[j]
				}
			}
			rows[i] = m
		}
		writeJSON(w, 200, map[string]any{"rows": rows})
	case "column":
		cols := make(map[string][]any, len(t.Columns))
		for j, col := range t.Columns {
			vals := make([]any, len(t.Rows))
			for i, row := range t.Rows {
				if j < len(row) {
					vals[i] = row[j]
				}
			}
			cols[col] = vals
		}
		writeJSON(w, 200, map[string]any{"columns": cols})
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.WriteHeader(200)
		cw := csv.NewWriter(w)
		cw.Write(t.Columns)
		for _, row := range t.Rows {
			rec := make([]string, len(row))
			for i, v := range row {
				rec[i] = toCSVCell(v)
			}
			cw.Write(rec)
		}
		cw.Flush()
	case "arrow", "parquet", "polars":
		errJSON(w, 501, fmt.Errorf("queryapi: format %q has no encoder in this build", format))
	default:
		errJSON(w, 400, fmt.Errorf("queryapi: unknown format %q", format))
	}
}

func toCSVCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// seriesToRows zips a set of named, equal-length float series into
// table rows with a leading index column.
func seriesToRows(indexName string, series map[string][]float64) table {
	names := make([]string, 0, len(series))
	var n int
	for name, vals := range series {
		names = append(names, name)
		if len(vals) > n {
			n = len(vals)
		}
	}
	columns := append([]string{indexName}, names...)
	rows := make([][]any, n)
	for i := 0; i < n; i++ {
		row := make([]any, len(columns))
		row[0] = i
		for j, name := range names {
			v := series[name]
			if i < len(v) {
				row[j+1] = v[i]
			}
		}
		rows[i] = row
	}
	return table{Columns: columns, Rows: rows}
}
