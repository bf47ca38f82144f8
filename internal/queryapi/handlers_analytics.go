package queryapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/btr-supply/chomp/internal/analytics"
	"github.com/btr-supply/chomp/internal/storage"
)

// defaultEstimatorPeriod is the trailing-window size every analytics
// endpoint falls back to when the caller doesn't pass "period".
const defaultEstimatorPeriod = 14

// analyticsQuery is the common "resource&field&from&to&period" shape
// the five estimator endpoints of spec.md §4.9 share.
type analyticsQuery struct {
	resource string
	field    string
	period   int
}

func (s *Server) parseAnalyticsQuery(r *http.Request) (analyticsQuery, []float64, error) {
	q := r.URL.Query()
	resource := q.Get("resource")
	field := q.Get("field")
	if resource == "" || field == "" {
		return analyticsQuery{}, nil, fmt.Errorf("queryapi: 'resource' and 'field' are required")
	}
	period := defaultEstimatorPeriod
	if p := q.Get("period"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			return analyticsQuery{}, nil, fmt.Errorf("queryapi: bad 'period': %q", p)
		}
		period = n
	}
	from, to, err := parseRange(q.Get("from"), q.Get("to"))
	if err != nil {
		return analyticsQuery{}, nil, err
	}
	points, err := s.Store.Fetch(r.Context(), resource, field, storage.Range{From: from, To: to}, time.Second)
	if err != nil {
		return analyticsQuery{}, nil, fmt.Errorf("queryapi: fetch %s.%s: %w", resource, field, err)
	}
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	return analyticsQuery{resource: resource, field: field, period: period}, values, nil
}

// handleVolatility implements "GET /volatility": the rolling standard
// deviation over period.
func (s *Server) handleVolatility(w http.ResponseWriter, r *http.Request) {
	_, values, err := s.parseAnalyticsQuery(r)
	if err != nil {
		errJSON(w, 400, err)
		return
	}
	period := defaultEstimatorPeriod
	if p := r.URL.Query().Get("period"); p != "" {
		period, _ = strconv.Atoi(p)
	}
	seriesToRows("ts", map[string][]float64{
		"stddev": analytics.RollingStdDev(values, period),
	}).render(w, r)
}

// handleTrend implements "GET /trend": the SMA-based directional
// estimator as a single scalar (spec.md "/trend").
func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	q, values, err := s.parseAnalyticsQuery(r)
	if err != nil {
		errJSON(w, 400, err)
		return
	}
	writeJSON(w, 200, map[string]any{
		"resource":  q.resource,
		"field":     q.field,
		"period":    q.period,
		"trend_pct": analytics.Trend(values, q.period),
	})
}

// handleMomentum implements "GET /momentum": MACD line/signal/histogram
// plus RSI over period.
func (s *Server) handleMomentum(w http.ResponseWriter, r *http.Request) {
	q, values, err := s.parseAnalyticsQuery(r)
	if err != nil {
		errJSON(w, 400, err)
		return
	}
	macd := analytics.MACD(values, 12, 26, 9)
	rsi := analytics.RSI(values, q.period)
	seriesToRows("ts", map[string][]float64{
		"macd":      macd.Line,
		"signal":    macd.Signal,
		"histogram": macd.Histogram,
		"rsi":       rsi,
	}).render(w, r)
}

// handleOpRange implements "GET /oprange": the ATR-style operating
// range estimator over period.
func (s *Server) handleOpRange(w http.ResponseWriter, r *http.Request) {
	_, values, err := s.parseAnalyticsQuery(r)
	if err != nil {
		errJSON(w, 400, err)
		return
	}
	period := defaultEstimatorPeriod
	if p := r.URL.Query().Get("period"); p != "" {
		period, _ = strconv.Atoi(p)
	}
	seriesToRows("ts", map[string][]float64{
		"atr": analytics.ATR(values, period),
	}).render(w, r)
}

// handleAnalysis implements "GET /analysis": the combined view —
// SMA/EWMA, Bollinger bands, MACD, RSI, and rolling stddev together —
// the "kitchen sink" estimator spec.md §4.9 describes as a thin
// wrapper combining the others.
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	q, values, err := s.parseAnalyticsQuery(r)
	if err != nil {
		errJSON(w, 400, err)
		return
	}
	bands := analytics.Bollinger(values, q.period, 2)
	macd := analytics.MACD(values, 12, 26, 9)
	seriesToRows("ts", map[string][]float64{
		"sma":    analytics.SMA(values, q.period),
		"ewma":   analytics.EWMA(values, q.period),
		"bb_mid": bands.Middle,
		"bb_up":  bands.Upper,
		"bb_low": bands.Lower,
		"macd":   macd.Line,
		"rsi":    analytics.RSI(values, q.period),
		"stddev": analytics.RollingStdDev(values, q.period),
	}).render(w, r)
}
