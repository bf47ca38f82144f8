package transform

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/btr-supply/chomp/internal/model"
)

// EvalContext supplies every reference a compiled transformer may
// resolve against (spec.md §4.5.3): the field's own value, a sibling
// field map, a dependency-cache reader for {ingester.field}, and a
// series fetcher for {field::fn(lookback)}.
type EvalContext struct {
	Self     any
	Siblings map[string]any
	// DepCache reads cache:<ingester> and returns the named attribute,
	// or the whole dict when attr == "idx" (spec.md §4.5.1).
	DepCache func(ingester, attr string) (any, error)
	Series   SeriesFetcher
}

// Evaluate runs the compiled transformer against ctx, returning the
// field's new value.
func (c *Compiled) Evaluate(ctx EvalContext) (any, error) {
	switch c.kind {
	case kindLiteral:
		return c.literal, nil
	case kindBase:
		return applyBaseTransformer(c.baseName, ctx.Self)
	case kindExpr:
		return c.evaluateExpr(ctx)
	default:
		return nil, fmt.Errorf("transform: unknown compiled kind for %q", c.Raw)
	}
}

func (c *Compiled) evaluateExpr(ctx EvalContext) (any, error) {
	vm := goja.New()
	expr := c.Raw

	if c.hasSelfRef {
		if err := vm.Set("self", ctx.Self); err != nil {
			return nil, err
		}
		expr = strings.ReplaceAll(expr, "{self}", "self")
	}

	for _, name := range c.fieldRefs {
		v, ok := ctx.Siblings[name]
		if !ok {
			v = nil
		}
		if err := vm.Set(name, v); err != nil {
			return nil, err
		}
		expr = strings.ReplaceAll(expr, "{"+name+"}", name)
	}

	for i, r := range c.dottedRefs {
		if ctx.DepCache == nil {
			return nil, fmt.Errorf("transform: %q references %s.%s but no dependency cache was supplied", c.Raw, r.ingester, r.attr)
		}
		v, err := ctx.DepCache(r.ingester, r.attr)
		if err != nil {
			return nil, err
		}
		bound := fmt.Sprintf("__dep_%d", i)
		if err := vm.Set(bound, v); err != nil {
			return nil, err
		}
		expr = strings.ReplaceAll(expr, r.raw, bound)
	}

	for i, r := range c.seriesSteps {
		if ctx.Series == nil {
			return nil, fmt.Errorf("transform: %q references a series op but no series fetcher was supplied", c.Raw)
		}
		lookbackSec, err := model.ParseLookback(r.lookback)
		if err != nil {
			return nil, err
		}
		values, err := ctx.Series(r.field, lookbackSec)
		if err != nil {
			return nil, err
		}
		result, err := applySeriesOp(r.fn, values)
		if err != nil {
			return nil, err
		}
		bound := fmt.Sprintf("__series_%d", i)
		if err := vm.Set(bound, result); err != nil {
			return nil, err
		}
		expr = strings.ReplaceAll(expr, r.raw, bound)
	}

	if err := injectVettedGlobals(vm); err != nil {
		return nil, err
	}

	val, err := vm.RunString(expr)
	if err != nil {
		return nil, fmt.Errorf("transform: evaluate %q: %w", c.Raw, err)
	}
	if goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, nil
	}
	return val.Export(), nil
}
