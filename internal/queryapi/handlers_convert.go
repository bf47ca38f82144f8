package queryapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
)

// handleConvert implements "GET /convert/{base.field-quote.field}"
// (spec.md §4.9): reads the two latest cached field values, computes
// the base/quote rate (base value divided by quote value), and converts whichever of base_amount/
// quote_amount the caller supplied.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	baseRes, baseField, quoteRes, quoteField, err := parsePair(mux.Vars(r)["pair"])
	if err != nil {
		errJSON(w, 400, err)
		return
	}

	baseVal, err := s.latestFieldFloat(r, baseRes, baseField)
	if err != nil {
		errJSON(w, 404, err)
		return
	}
	quoteVal, err := s.latestFieldFloat(r, quoteRes, quoteField)
	if err != nil {
		errJSON(w, 404, err)
		return
	}
	if quoteVal == 0 {
		errJSON(w, 422, fmt.Errorf("queryapi: quote value for %s.%s is zero", quoteRes, quoteField))
		return
	}
	rate := baseVal / quoteVal

	precision := 8
	if p := r.URL.Query().Get("precision"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			precision = n
		}
	}

	resp := map[string]any{
		"base":  fmt.Sprintf("%s.%s", baseRes, baseField),
		"quote": fmt.Sprintf("%s.%s", quoteRes, quoteField),
		"rate":  roundTo(rate, precision),
	}
	q := r.URL.Query()
	if amt := q.Get("base_amount"); amt != "" {
		n, err := strconv.ParseFloat(amt, 64)
		if err != nil {
			errJSON(w, 400, fmt.Errorf("queryapi: bad base_amount: %w", err))
			return
		}
		resp["base_amount"] = n
		resp["quote_amount"] = roundTo(n*rate, precision)
	} else if amt := q.Get("quote_amount"); amt != "" {
		n, err := strconv.ParseFloat(amt, 64)
		if err != nil {
			errJSON(w, 400, fmt.Errorf("queryapi: bad quote_amount: %w", err))
			return
		}
		resp["quote_amount"] = n
		resp["base_amount"] = roundTo(n/rate, precision)
	}
	writeJSON(w, 200, resp)
}

// parsePair splits a "{base-resource}.{base-field}-{quote-resource}.{quote-field}"
// path segment (spec.md §4.9 "/convert/{base.field-quote.field}").
func parsePair(pair string) (baseRes, baseField, quoteRes, quoteField string, err error) {
	sides := strings.SplitN(pair, "-", 2)
	if len(sides) != 2 {
		return "", "", "", "", fmt.Errorf("queryapi: malformed pair %q, want base.field-quote.field", pair)
	}
	baseRes, baseField, ok := splitDot(sides[0])
	if !ok {
		return "", "", "", "", fmt.Errorf("queryapi: malformed base selector %q", sides[0])
	}
	quoteRes, quoteField, ok = splitDot(sides[1])
	if !ok {
		return "", "", "", "", fmt.Errorf("queryapi: malformed quote selector %q", sides[1])
	}
	return baseRes, baseField, quoteRes, quoteField, nil
}

func splitDot(s string) (string, string, bool) {
	i := strings.LastIndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

func (s *Server) latestFieldFloat(r *http.Request, resource, field string) (float64, error) {
	record, ok, err := s.cacheRecord(r.Context(), resource)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("queryapi: no cached value for %q", resource)
	}
	raw, ok := record[field]
	if !ok {
		return 0, fmt.Errorf("queryapi: %q has no field %q", resource, field)
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("queryapi: %q.%q is not numeric", resource, field)
	}
}

func roundTo(v float64, precision int) float64 {
	mul := 1.0
	for i := 0; i < precision; i++ {
		mul *= 10
	}
	return float64(int64(v*mul+sign(v)*0.5)) / mul
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
