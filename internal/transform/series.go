package transform

import (
	"fmt"
	"math"
	"sort"
)

// SeriesFetcher lazily loads the history of one field over a lookback
// window, letting the transformer engine stay storage-agnostic (spec.md
// §4.5.3 "(d) a lazily-loaded series fetch"). The ingester/processor
// layer supplies an implementation backed by the storage adapter's
// range fetch.
type SeriesFetcher func(field string, lookbackSec int) ([]float64, error)

// applySeriesOp runs one rolling aggregate function over a loaded
// series (spec.md §4.5.1 series operations).
func applySeriesOp(fn string, values []float64) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	switch fn {
	case "mean":
		return mean(values), nil
	case "median":
		return median(values), nil
	case "min":
		return minOf(values), nil
	case "max":
		return maxOf(values), nil
	case "sum":
		return sum(values), nil
	case "std":
		return stddev(values), nil
	case "var":
		return variance(values), nil
	case "prod":
		p := 1.0
		for _, v := range values {
			p *= v
		}
		return p, nil
	case "cumsum":
		out := make([]float64, len(values))
		acc := 0.0
		for i, v := range values {
			acc += v
			out[i] = acc
		}
		return out, nil
	default:
		return nil, fmt.Errorf("transform: unknown series function %q", fn)
	}
}

func mean(v []float64) float64 { return sum(v) / float64(len(v)) }

func sum(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s
}

func minOf(v []float64) float64 {
	m := v[0]
	for _, x := range v[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(v []float64) float64 {
	m := v[0]
	for _, x := range v[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func median(v []float64) float64 {
	cp := append([]float64(nil), v...)
	sort.Float64s(cp)
	n := len(cp)
	if n%2 == 1 {
		return cp[n/2]
	}
	return (cp[n/2-1] + cp[n/2]) / 2
}

func variance(v []float64) float64 {
	m := mean(v)
	acc := 0.0
	for _, x := range v {
		d := x - m
		acc += d * d
	}
	return acc / float64(len(v))
}

func stddev(v []float64) float64 {
	return math.Sqrt(variance(v))
}
