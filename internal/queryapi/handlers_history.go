package queryapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/btr-supply/chomp/internal/storage"
)

// defaultHistoryPoints is the target row count a history fetch is
// aggregated toward when the caller doesn't pin an explicit bucket
// interval (spec.md §4.9 "aggregation interval fits target ~400
// epochs if unspecified").
const defaultHistoryPoints = 400

// handleHistory implements "GET /history/{resources}?from&to&interval&columns"
// (spec.md §4.9): a range fetch per named column via the storage
// adapter, time-bucketed toward defaultHistoryPoints rows unless the
// caller pins an explicit interval.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	resources := splitCSV(mux.Vars(r)["resources"])
	if len(resources) == 0 {
		errJSON(w, 400, fmt.Errorf("queryapi: no resources given"))
		return
	}

	q := r.URL.Query()
	from, to, err := parseRange(q.Get("from"), q.Get("to"))
	if err != nil {
		errJSON(w, 400, err)
		return
	}
	bucketSec, err := parseBucketSeconds(q.Get("interval"), from, to)
	if err != nil {
		errJSON(w, 400, err)
		return
	}
	aggInterval := time.Duration(bucketSec) * time.Second
	requestedCols := splitCSV(q.Get("columns"))

	out := make(map[string]table, len(resources))
	for _, name := range resources {
		cols := requestedCols
		if len(cols) == 0 {
			ing, ok := s.ingesters[name]
			if !ok {
				errJSON(w, 404, fmt.Errorf("queryapi: unknown resource %q", name))
				return
			}
			for _, f := range ing.PersistedFields() {
				cols = append(cols, f.Name)
			}
		}

		var ts []time.Time
		series := make(map[string][]float64, len(cols))
		for _, col := range cols {
			points, err := s.Store.Fetch(r.Context(), name, col, storage.Range{From: from, To: to}, aggInterval)
			if err != nil {
				errJSON(w, 500, fmt.Errorf("queryapi: fetch %q.%q: %w", name, col, err))
				return
			}
			if len(points) > len(ts) {
				ts = make([]time.Time, len(points))
				for i, p := range points {
					ts[i] = p.TS
				}
			}
			values := make([]float64, len(points))
			for i, p := range points {
				values[i] = p.Value
			}
			series[col] = values
		}
		out[name] = timeSeriesToRows(ts, series)
	}

	if len(resources) == 1 {
		out[resources[0]].render(w, r)
		return
	}
	writeJSON(w, 200, out)
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseRange(fromStr, toStr string) (time.Time, time.Time, error) {
	to := time.Now()
	if toStr != "" {
		var err error
		to, err = parseTimeParam(toStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("queryapi: bad 'to': %w", err)
		}
	}
	from := to.Add(-24 * time.Hour)
	if fromStr != "" {
		var err error
		from, err = parseTimeParam(fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("queryapi: bad 'from': %w", err)
		}
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("queryapi: 'from' must be before 'to'")
	}
	return from, to, nil
}

func parseTimeParam(s string) (time.Time, error) {
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}

func parseBucketSeconds(intervalStr string, from, to time.Time) (int, error) {
	if intervalStr != "" {
		sec, err := strconv.Atoi(intervalStr)
		if err != nil || sec <= 0 {
			return 0, fmt.Errorf("queryapi: bad 'interval': %q", intervalStr)
		}
		return sec, nil
	}
	span := to.Sub(from).Seconds()
	bucket := int(span / defaultHistoryPoints)
	if bucket < 1 {
		bucket = 1
	}
	return bucket, nil
}

// timeSeriesToRows zips a set of named, equal-length float series,
// each already time-bucketed by the storage adapter, against their
// shared timestamp axis — replacing raw index alignment with the
// actual bucket boundary each point landed on.
func timeSeriesToRows(ts []time.Time, series map[string][]float64) table {
	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	columns := append([]string{"ts"}, names...)
	rows := make([][]any, len(ts))
	for i, t := range ts {
		row := make([]any, len(columns))
		row[0] = t.Unix()
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
