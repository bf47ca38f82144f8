package transform

import (
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// kind distinguishes the three transformer forms of spec.md §4.5.1.
type kind int

const (
	kindLiteral kind = iota
	kindBase
	kindExpr
)

// Compiled is the pre-compiled record of spec.md §4.5.3: computed once
// per process at ingester construction, then reused every epoch.
type Compiled struct {
	Raw             string
	kind            kind
	literal         float64
	baseName        string
	refs            []ref
	hasSelfRef      bool
	fieldRefs       []string // sibling field names referenced
	dottedRefs      []ref    // {ingester.field} references
	seriesSteps     []ref    // {field::fn(lookback)} references
}

const (
	defaultCacheCapacity = 2048
	defaultCacheTTL      = time.Hour
)

// Cache is the process-wide LRU of compiled transformers (spec.md
// §4.5.2 "cached (LRU, default capacity 2048, TTL 1h)").
type Cache struct {
	lru *lru.LRU[string, *Compiled]
}

// NewCache builds a Cache with the spec.md defaults.
func NewCache() *Cache {
	return &Cache{lru: lru.NewLRU[string, *Compiled](defaultCacheCapacity, nil, defaultCacheTTL)}
}

// Compile parses and statically vets raw, returning the cached
// Compiled record if present.
func (c *Cache) Compile(raw string) (*Compiled, error) {
	if cached, ok := c.lru.Get(raw); ok {
		return cached, nil
	}
	compiled, err := compile(raw)
	if err != nil {
		return nil, err
	}
	c.lru.Add(raw, compiled)
	return compiled, nil
}

func compile(raw string) (*Compiled, error) {
	trimmed := raw

	if isNumericLiteral(trimmed) {
		lit, err := strconv.ParseFloat(strings.TrimSpace(trimmed), 64)
		if err != nil {
			return nil, err
		}
		return &Compiled{Raw: raw, kind: kindLiteral, literal: lit}, nil
	}

	if !hasPlaceholders(trimmed) && BaseTransformers[trimmed] {
		return &Compiled{Raw: raw, kind: kindBase, baseName: trimmed}, nil
	}

	if err := CheckSafe(trimmed); err != nil {
		return nil, err
	}

	refs, err := parsePlaceholders(trimmed)
	if err != nil {
		return nil, err
	}

	c := &Compiled{Raw: raw, kind: kindExpr, refs: refs}
	bound := map[string]bool{}
	for _, r := range refs {
		switch r.kind {
		case refSelf:
			c.hasSelfRef = true
			bound["self"] = true
		case refSibling:
			c.fieldRefs = append(c.fieldRefs, r.field)
			bound[r.field] = true
		case refDotted:
			c.dottedRefs = append(c.dottedRefs, r)
		case refSeries:
			c.seriesSteps = append(c.seriesSteps, r)
			bound[r.field] = true
		}
	}

	if err := checkIdentifiers(stripPlaceholderBraces(trimmed), bound); err != nil {
		return nil, err
	}

	return c, nil
}

// stripPlaceholderBraces replaces every placeholder, braces included,
// with the token "self" so identifier-checking doesn't choke on the
// dotted/series punctuation inside them; the placeholders themselves were
// already individually validated by parsePlaceholders.
func stripPlaceholderBraces(raw string) string {
	return placeholderRE.ReplaceAllStringFunc(raw, func(m string) string {
		return "self" // any bound placeholder collapses to a known-safe token
	})
}
