package transform

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/btr-supply/chomp/internal/model"
)

func TestCompileLiteral(t *testing.T) {
	c := NewCache()
	compiled, err := c.Compile("2.5")
	require.NoError(t, err)
	v, err := compiled.Evaluate(EvalContext{})
	require.NoError(t, err)
	require.Equal(t, 2.5, v)
}

func TestCompileBaseTransformer(t *testing.T) {
	c := NewCache()
	compiled, err := c.Compile("upper")
	require.NoError(t, err)
	v, err := compiled.Evaluate(EvalContext{Self: "abc"})
	require.NoError(t, err)
	require.Equal(t, "ABC", v)
}

func TestCompileSelfExpr(t *testing.T) {
	c := NewCache()
	compiled, err := c.Compile("{self} * 2")
	require.NoError(t, err)
	v, err := compiled.Evaluate(EvalContext{Self: float64(21)})
	require.NoError(t, err)
	require.EqualValues(t, 42, v)
}

func TestCompileSiblingExpr(t *testing.T) {
	c := NewCache()
	compiled, err := c.Compile("{price} - {cost}")
	require.NoError(t, err)
	v, err := compiled.Evaluate(EvalContext{
		Siblings: map[string]any{"price": float64(10), "cost": float64(4)},
	})
	require.NoError(t, err)
	require.EqualValues(t, 6, v)
}

func TestCompileRejectsForbiddenToken(t *testing.T) {
	c := NewCache()
	_, err := c.Compile("__import__('os')")
	require.Error(t, err)
}

func TestCompileRejectsUnvettedIdentifier(t *testing.T) {
	c := NewCache()
	_, err := c.Compile("{self} + totallyUnknownThing")
	require.Error(t, err)
}

func TestCompileDottedReference(t *testing.T) {
	c := NewCache()
	compiled, err := c.Compile("{self} + {oracle.price}")
	require.NoError(t, err)
	v, err := compiled.Evaluate(EvalContext{
		Self: float64(1),
		DepCache: func(ingester, attr string) (any, error) {
			require.Equal(t, "oracle", ingester)
			require.Equal(t, "price", attr)
			return float64(99), nil
		},
	})
	require.NoError(t, err)
	require.EqualValues(t, 100, v)
}

func TestCompileSeriesReference(t *testing.T) {
	c := NewCache()
	compiled, err := c.Compile("{price::mean(h24)}")
	require.NoError(t, err)
	v, err := compiled.Evaluate(EvalContext{
		Series: func(field string, lookbackSec int) ([]float64, error) {
			require.Equal(t, "price", field)
			require.Equal(t, 24*3600, lookbackSec)
			return []float64{1, 2, 3}, nil
		},
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, v)
}

func TestCacheReturnsSameCompiledInstanceForRepeatedExpr(t *testing.T) {
	c := NewCache()
	a, err := c.Compile("{self} + 1")
	require.NoError(t, err)
	b, err := c.Compile("{self} + 1")
	require.NoError(t, err)
	require.Same(t, a, b)
}

func TestEngineTransformAllMarksFailingFieldMissingWithoutAffectingSiblings(t *testing.T) {
	eng := NewEngine()
	ing := model.NewIngester(model.Ingester{
		Name:         "test",
		ResourceType: model.ResourceValue,
		Fields: []*model.Field{
			{Name: "raw", Value: "5"},
			{Name: "doubled", Transformers: []string{"{raw} * 2"}},
			{Name: "broken", Transformers: []string{"{self} + nonExistentVar"}},
		},
	})
	ing.Fields[0].Value = float64(5)

	var failures []string
	eng.TransformAll(ing, nil, nil, func(field string, err error) {
		failures = append(failures, field)
	})

	doubled, _ := ing.FieldByName("doubled")
	require.EqualValues(t, 10, doubled.Value)

	broken, _ := ing.FieldByName("broken")
	require.True(t, broken.IsMissing())
	require.Contains(t, failures, "broken")
}

func TestEnginePreTransformer(t *testing.T) {
	eng := NewEngine()
	v, err := eng.RunPreTransformer("{self}", map[string]any{"a": 1})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"a": 1}, v)
}
