// Package transform implements the Transformer Engine of spec.md §4.5:
// a safely-evaluated, cached, pre-compiled expression language that
// threads each field value through a sequence of transformations with
// cross-field, cross-ingester, and historical-series references.
//
// The sandboxed evaluator is github.com/dop251/goja (a pure-Go
// JavaScript VM), grounded on system/tee/script_engine.go in the
// teacher, which already uses goja to run short, securely-scoped
// scripts per request. chomp reuses that "fresh VM + injected bindings
// + no host access" shape for each compiled transformer.
package transform

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// refKind distinguishes the four placeholder forms of spec.md §4.5.1.
type refKind int

const (
	refSelf refKind = iota
	refSibling
	refDotted // <ingester>.<field>
	refSeries // <field>::<fn>(<lookback>)
)

// ref is one resolved placeholder occurrence inside a transformer
// expression.
type ref struct {
	kind     refKind
	raw      string // the full "{...}" token, used for substitution
	field    string // sibling field name, or the series field name
	ingester string // dotted-form ingester name
	attr     string // dotted-form field/attr name ("idx" means whole dict)
	fn       string // series aggregate function name
	lookback string // series lookback token, e.g. "h24"
}

var placeholderRE = regexp.MustCompile(`\{([^{}]+)\}`)
var seriesRE = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)::([a-z]+)\(([A-Za-z0-9]+)\)$`)
var dottedRE = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)$`)

// SeriesFuncs enumerates the valid rolling-aggregate functions of
// spec.md §4.5.1.
var SeriesFuncs = map[string]bool{
	"mean": true, "median": true, "min": true, "max": true, "sum": true,
	"std": true, "var": true, "prod": true, "cumsum": true,
}

// parsePlaceholders extracts every {...} token from a raw transformer
// string and classifies it.
func parsePlaceholders(raw string) ([]ref, error) {
	matches := placeholderRE.FindAllStringSubmatch(raw, -1)
	refs := make([]ref, 0, len(matches))
	for _, m := range matches {
		inner := strings.TrimSpace(m[1])
		full := m[0]

		if inner == "self" {
			refs = append(refs, ref{kind: refSelf, raw: full})
			continue
		}
		if sm := seriesRE.FindStringSubmatch(inner); sm != nil {
			fn := sm[2]
			if !SeriesFuncs[fn] {
				return nil, fmt.Errorf("transform: unknown series function %q in %q", fn, raw)
			}
			refs = append(refs, ref{kind: refSeries, raw: full, field: sm[1], fn: fn, lookback: sm[3]})
			continue
		}
		if dm := dottedRE.FindStringSubmatch(inner); dm != nil {
			refs = append(refs, ref{kind: refDotted, raw: full, ingester: dm[1], attr: dm[2]})
			continue
		}
		refs = append(refs, ref{kind: refSibling, raw: full, field: inner})
	}
	return refs, nil
}

// isNumericLiteral reports whether raw is a bare decimal integer or
// float, the first transformer form of spec.md §4.5.1.
func isNumericLiteral(raw string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	return err == nil
}

// BaseTransformers is the named-transformer vocabulary of spec.md
// §4.5.1, applied directly to the field's current value with no
// expression syntax.
var BaseTransformers = map[string]bool{
	"upper": true, "lower": true, "to_snake": true, "slugify": true,
	"round2": true, "sha256digest": true, "md5digest": true,
	"shorten_address": true, "to_json": true, "bin": true, "hex": true,
	"remove_punctuation": true, "float": true, "int": true, "str": true, "bool": true,
}

// hasPlaceholders reports whether raw contains at least one "{...}"
// token, distinguishing "arbitrary expression" from a bare named
// transformer or numeric literal.
func hasPlaceholders(raw string) bool {
	return placeholderRE.MatchString(raw)
}
