// Package queryapi implements the read side of spec.md §4.9: an
// HTTP façade over the cache and storage adapters, serving /last,
// /history, /convert, /schema, and the /volatility, /trend, /momentum,
// /oprange, /analysis estimator endpoints. Grounded on the teacher's
// gorilla/mux routing (infrastructure/service/runner.go) and its
// status-capturing middleware shape (infrastructure/middleware/
// metrics.go, logging.go): a *mux.Router built once at startup, one
// handler function per route, errors rendered as a JSON {error} body.
package queryapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/btr-supply/chomp/internal/cachebus"
	"github.com/btr-supply/chomp/internal/logging"
	"github.com/btr-supply/chomp/internal/metrics"
	"github.com/btr-supply/chomp/internal/model"
	"github.com/btr-supply/chomp/internal/registry"
	"github.com/btr-supply/chomp/internal/storage"
)

// cacheReader is the subset of cachebus.Client the Query API reads
// through.
type cacheReader interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
}

// Server holds every dependency the Query API's handlers read from. It
// never mutates cache or storage state; spec.md §4.9 specifies this
// side as read-only.
type Server struct {
	Cache    cacheReader
	Store    storage.Adapter
	Registry *registry.Service
	Metrics  *metrics.Metrics
	Log      *logging.Logger

	// ingesters indexes the configured ingester declarations by name,
	// the schema source for /schema and the column list for /history
	// (spec.md §4.9's contract is over configured resources, not the
	// registry's flattened summary dicts).
	ingesters map[string]*model.Ingester
}

// New builds a Server over ings, the full set of ingester declarations
// this process's config resolved (spec.md §4.2 "Ingester set").
func New(cache cacheReader, store storage.Adapter, reg *registry.Service, m *metrics.Metrics, log *logging.Logger, ings []*model.Ingester) *Server {
	idx := make(map[string]*model.Ingester, len(ings))
	for _, ing := range ings {
		idx[ing.Name] = ing
	}
	return &Server{Cache: cache, Store: store, Registry: reg, Metrics: m, Log: log, ingesters: idx}
}

// Router builds the mux.Router mounting every Query API route.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrument())

	r.HandleFunc("/last/{resources}", s.handleLast).Methods(http.MethodGet)
	r.HandleFunc("/history/{resources}", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/convert/{pair}", s.handleConvert).Methods(http.MethodGet)
	r.HandleFunc("/schema", s.handleSchema).Methods(http.MethodGet)
	r.HandleFunc("/volatility", s.handleVolatility).Methods(http.MethodGet)
	r.HandleFunc("/trend", s.handleTrend).Methods(http.MethodGet)
	r.HandleFunc("/momentum", s.handleMomentum).Methods(http.MethodGet)
	r.HandleFunc("/oprange", s.handleOpRange).Methods(http.MethodGet)
	r.HandleFunc("/analysis", s.handleAnalysis).Methods(http.MethodGet)
	return r
}

// responseWriter wraps http.ResponseWriter to capture the status code,
// mirroring the teacher's infrastructure/middleware wrapper.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// instrument records spec.md §4.9 request metrics against
// chomp_query_requests_total / chomp_query_duration_seconds, keyed by
// matched route template so cardinality stays bounded.
func (s *Server) instrument() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			if s.Metrics == nil {
				return
			}
			route := r.URL.Path
			if rt := mux.CurrentRoute(r); rt != nil {
				if tpl, err := rt.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			status := "ok"
			if wrapped.statusCode >= 400 {
				status = "error"
			}
			s.Metrics.QueryRequestsTotal.WithLabelValues(route, status).Inc()
			s.Metrics.QueryDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errJSON(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) cacheRecord(ctx context.Context, name string) (map[string]any, bool, error) {
	data, ok, err := s.Cache.Get(ctx, cachebus.NSCache+name)
	if err != nil || !ok {
		return nil, ok, err
	}
	rec, err := cachebus.DecodeRecord(data)
	return rec, true, err
}
