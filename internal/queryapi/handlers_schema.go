package queryapi

import "net/http"

// fieldSchema is the per-field view /schema renders, always excluding
// protected fields: invariant 3 ("protected fields hidden in public
// scope") always applies here since this endpoint has no authenticated
// internal caller to relax it for. Transient fields appear only with
// scope=detailed.
type fieldSchema struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Tags     []string `json:"tags,omitempty"`
	Target   string   `json:"target,omitempty"`
	Selector string   `json:"selector,omitempty"`
	Params   string   `json:"params,omitempty"`
}

type resourceSchema struct {
	Name         string        `json:"name"`
	Type         string        `json:"type"`
	ResourceType string        `json:"resource_type"`
	Interval     string        `json:"interval"`
	Fields       []fieldSchema `json:"fields"`
}

// handleSchema implements "GET /schema" (spec.md §4.9): enumerates
// every configured resource, hiding transient fields in default scope
// and protected fields always (public scope).
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	detailed := r.URL.Query().Get("scope") == "detailed"

	out := make([]resourceSchema, 0, len(s.ingesters))
	for _, ing := range s.ingesters {
		rs := resourceSchema{
			Name:         ing.Name,
			Type:         string(ing.IngesterType),
			ResourceType: string(ing.ResourceType),
			Interval:     string(ing.Interval),
		}
		for _, f := range ing.Fields {
			if f.Protected {
				continue
			}
			if f.Transient && !detailed {
				continue
			}
			fs := fieldSchema{Name: f.Name, Type: string(f.Type), Tags: f.Tags}
			if detailed {
				fs.Target = f.Target
				fs.Selector = f.Selector
				fs.Params = f.Params
			}
			rs.Fields = append(rs.Fields, fs)
		}
		out = append(out, rs)
	}
	writeJSON(w, 200, map[string]any{"resources": out})
}
