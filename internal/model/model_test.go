package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntervalSecondsMonotone(t *testing.T) {
	order := []Interval{"s1", "s30", "m1", "m30", "h1", "h12", "D1", "D3", "W1", "W2", "M1", "M6", "Y1", "Y3"}
	prev := -1
	for _, iv := range order {
		sec, err := iv.Seconds()
		require.NoError(t, err)
		require.GreaterOrEqual(t, sec, prev, "interval %q should be >= previous", iv)
		prev = sec
	}
}

func TestIntervalCronRendersExpression(t *testing.T) {
	for _, iv := range []Interval{"s5", "m15", "h6", "D1", "W1", "M3", "Y1"} {
		cron, err := iv.Cron()
		require.NoError(t, err)
		require.NotEmpty(t, cron)
	}
}

func TestIngesterIDStableAcrossProcesses(t *testing.T) {
	mk := func() *Ingester {
		return NewIngester(Ingester{
			Name:         "px",
			IngesterType: TypeHTTPAPI,
			ResourceType: ResourceTimeSeries,
			Interval:     "m1",
			Fields: []*Field{
				{Name: "usd", Type: TypeFloat64, Target: "http://x/p", Selector: ".data.usd", Transformers: []string{"float", "round2"}},
			},
		})
	}
	a, b := mk(), mk()
	require.Equal(t, a.ID(), b.ID())
}

func TestIngesterIDChangesWithFieldSignature(t *testing.T) {
	base := NewIngester(Ingester{
		Name: "px", IngesterType: TypeHTTPAPI, ResourceType: ResourceTimeSeries, Interval: "m1",
		Fields: []*Field{{Name: "usd", Type: TypeFloat64, Target: "http://x/p", Selector: ".data.usd"}},
	})
	changed := NewIngester(Ingester{
		Name: "px", IngesterType: TypeHTTPAPI, ResourceType: ResourceTimeSeries, Interval: "m1",
		Fields: []*Field{{Name: "usd", Type: TypeFloat64, Target: "http://x/p", Selector: ".data.usd2"}},
	})
	require.NotEqual(t, base.ID(), changed.ID())
}

func TestPersistedFieldsExcludesTransientAndSystem(t *testing.T) {
	ing := NewIngester(Ingester{
		Name: "px", IngesterType: TypeHTTPAPI, ResourceType: ResourceTimeSeries, Interval: "m1",
		Fields: []*Field{
			{Name: "usd", Type: TypeFloat64},
			{Name: "debug_raw", Type: TypeString, Transient: true},
		},
	})
	cols := ing.PersistedFields()
	require.Len(t, cols, 1)
	require.Equal(t, "usd", cols[0].Name)
}

func TestToDictHidesProtectedByDefault(t *testing.T) {
	ing := NewIngester(Ingester{
		Name: "acct", IngesterType: TypeHTTPAPI, ResourceType: ResourceValue, Interval: "m1",
		Fields: []*Field{
			{Name: "balance", Type: TypeFloat64, Value: 1.0},
			{Name: "secret_key", Type: TypeString, Protected: true, Value: "shh"},
		},
	})
	d := ing.ToDict(PublicScope())
	require.Contains(t, d, "balance")
	require.NotContains(t, d, "secret_key")
}

func TestFieldTargetIDStable(t *testing.T) {
	f1 := &Field{Target: "http://x", Selector: ".a", Params: "p", Transformers: []string{"upper"}}
	f2 := &Field{Target: "http://x", Selector: ".a", Params: "p", Transformers: []string{"upper"}}
	require.Equal(t, f1.TargetID(), f2.TargetID())
}
