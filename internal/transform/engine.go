package transform

import (
	"fmt"

	"github.com/btr-supply/chomp/internal/model"
)

// DepResolver reads another ingester's cache record for a {ingester.attr}
// reference; idx means "the whole dict". An ingester layer backs this
// with cachebus.Client.Get against cache:<ingester>.
type DepResolver func(ingester, attr string) (any, error)

// Engine runs the full transformer pipeline for one ingester's fields
// per epoch (spec.md §4.5.3 "transform_all"). It owns the process-wide
// compile cache so every ingester shares the same LRU.
type Engine struct {
	cache *Cache
}

// NewEngine builds an Engine with a fresh compile cache.
func NewEngine() *Engine {
	return &Engine{cache: NewCache()}
}

// RunPreTransformer evaluates an ingester's pre_transformer expression,
// if any, against the raw fetch payload before fields are populated
// (spec.md §4.5.4 pre-transform step). Pre-transformers only ever see
// {self} bound to the raw payload; siblings/dotted/series references are
// not meaningful before fields exist.
func (e *Engine) RunPreTransformer(expr string, payload any) (any, error) {
	if expr == "" {
		return payload, nil
	}
	compiled, err := e.cache.Compile(expr)
	if err != nil {
		return nil, err
	}
	return compiled.Evaluate(EvalContext{Self: payload})
}

// TransformAll runs every non-readonly field's transformer chain against
// the ingester's current field values, in declared order, so each step
// can observe earlier fields' already-transformed values as sibling
// references (spec.md §4.5.3). A field whose chain errors is marked
// missing and the error is reported through onError rather than aborting
// the run, so one bad field never blocks its siblings (spec.md §7 kind 4
// "reported as missing").
func (e *Engine) TransformAll(ing *model.Ingester, dep DepResolver, series SeriesFetcher, onError func(field string, err error)) {
	siblings := make(map[string]any, len(ing.Fields))
	for _, f := range ing.Fields {
		siblings[f.Name] = f.Value
	}

	for _, f := range ing.Fields {
		if f.Readonly || len(f.Transformers) == 0 {
			continue
		}
		value := f.Value
		for _, raw := range f.Transformers {
			compiled, err := e.cache.Compile(raw)
			if err != nil {
				f.Value = nil
				if onError != nil {
					onError(f.Name, fmt.Errorf("ingester %q field %q: %w", ing.Name, f.Name, err))
				}
				value = nil
				break
			}
			result, err := compiled.Evaluate(EvalContext{
				Self:     value,
				Siblings: siblings,
				DepCache: dep,
				Series:   series,
			})
			if err != nil {
				f.Value = nil
				if onError != nil {
					onError(f.Name, fmt.Errorf("ingester %q field %q: %w", ing.Name, f.Name, err))
				}
				value = nil
				break
			}
			value = result
		}
		f.Value = value
		siblings[f.Name] = value
	}
}
