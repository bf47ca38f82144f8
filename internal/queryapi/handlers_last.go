package queryapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// handleLast implements "GET /last/{resources}" (spec.md §4.9): for
// each comma-separated resource name, returns the dict cached at
// cache:<name>. Protected fields never appear because the cache record
// itself was written at ScopeDefault by the Runner (internal/ingest.
// Runner.RunEpoch), which already excludes them.
func (s *Server) handleLast(w http.ResponseWriter, r *http.Request) {
	names := strings.Split(mux.Vars(r)["resources"], ",")
	out := make(map[string]any, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		record, ok, err := s.cacheRecord(r.Context(), name)
		if err != nil {
			errJSON(w, 500, fmt.Errorf("queryapi: fetch %q: %w", name, err))
			return
		}
		if !ok {
			out[name] = nil
			continue
		}
		out[name] = record
	}
	writeJSON(w, 200, out)
}
