package transform

import (
	"math"

	"github.com/dop251/goja"
)

// injectVettedGlobals binds part of the bare-name numeric/utility
// vocabulary of spec.md §4.5.2 into vm's global scope (sin, cos, sqrt,
// abs, round, min, max, mean, median, clip), so an expression can write
// "sqrt(x)" rather than "Math.sqrt(x)". The other vetted names
// (concatenate, array, zeros, arange, int, float, str, list, dict) pass
// checkIdentifiers but are not defined in the VM, so an expression that
// calls one fails at evaluation. Everything here is pure and
// stateless; none of it touches the VM's builtin Function/globalThis
// surface, which property P7 forbids expressions from reaching anyway.
func injectVettedGlobals(vm *goja.Runtime) error {
	sets := map[string]any{
		"sin":  math.Sin,
		"cos":  math.Cos,
		"sqrt": math.Sqrt,
		"abs":  math.Abs,
		"round": func(f float64) float64 { return math.Round(f) },
		"min": func(a, b float64) float64 {
			if a < b {
				return a
			}
			return b
		},
		"max": func(a, b float64) float64 {
			if a > b {
				return a
			}
			return b
		},
		"mean":   func(v []float64) float64 { return mean(v) },
		"median": func(v []float64) float64 { return median(v) },
		"clip": func(v, lo, hi float64) float64 {
			if v < lo {
				return lo
			}
			if v > hi {
				return hi
			}
			return v
		},
	}
	for name, fn := range sets {
		if err := vm.Set(name, fn); err != nil {
			return err
		}
	}
	return nil
}
