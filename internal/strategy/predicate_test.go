package strategy

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapView resolves fields from a plain map; NaN entries behave like
// stored nulls.
type mapView map[string]float64

func (v mapView) Value(name string) (float64, bool) {
	value, ok := v[name]
	return value, ok
}

var goldenView = mapView{
	"close": 105,
	"sma7":  104,
	"sma20": 100,
	"sma50": 95,
	"rsi":   62,
}

func TestEvaluateComparisons(t *testing.T) {
	cases := []struct {
		source string
		want   bool
	}{
		{"close > 100", true},
		{"close < 100", false},
		{"close >= 105", true},
		{"close <= 104", false},
		{"rsi == 62", true},
		{"rsi != 62", false},
		{"sma7 > sma20", true},
		{"100 < close", true},
	}
	for _, tc := range cases {
		t.Run(tc.source, func(t *testing.T) {
			p, err := Compile(tc.source)
			require.NoError(t, err)

			got, err := p.Evaluate(goldenView)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvaluateBooleanOperators(t *testing.T) {
	cases := []struct {
		source string
		want   bool
	}{
		{"sma7 > sma20 and rsi < 70", true},
		{"sma7 > sma20 and rsi > 70", false},
		{"rsi > 70 or close > 100", true},
		{"rsi > 70 or close < 100", false},
		// "and" binds tighter than "or".
		{"rsi > 70 or sma7 > sma20 and close > 100", true},
		{"(rsi > 70 or sma7 > sma20) and close < 100", false},
		{"SMA7 > SMA20", true}, // field names are case-insensitive
	}
	for _, tc := range cases {
		t.Run(tc.source, func(t *testing.T) {
			p, err := Compile(tc.source)
			require.NoError(t, err)

			got, err := p.Evaluate(goldenView)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCompileRejectsBadSources(t *testing.T) {
	sources := []string{
		"",
		"close >",
		"close 100",
		"close = 100",
		"close ! 100",
		"(close > 100",
		"close > 100 extra",
		"close > 100 and",
		"and close > 100",
		"close $ 100",
	}
	for _, source := range sources {
		t.Run(source, func(t *testing.T) {
			_, err := Compile(source)
			assert.Error(t, err)
		})
	}
}

func TestEvaluateUnknownField(t *testing.T) {
	p, err := Compile("ema50 > 100")
	require.NoError(t, err)

	_, err = p.Evaluate(goldenView)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ema50")
}

func TestEvaluateNaNMetricIsUnknown(t *testing.T) {
	p, err := Compile("rsi > 50")
	require.NoError(t, err)

	view := mapView{"rsi": math.NaN()}
	_, err = p.Evaluate(view)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no value")
}

type stubSource struct {
	view  View
	err   error
	calls int
}

func (s *stubSource) Metrics(ctx context.Context, symbol string, day time.Time) (View, error) {
	s.calls++
	return s.view, s.err
}

func TestEngineEvaluate(t *testing.T) {
	source := &stubSource{view: goldenView}
	engine := NewEngine(source)
	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	got, err := engine.Evaluate(context.Background(), "sma7 > sma20", "AAPL", day)
	require.NoError(t, err)
	assert.True(t, got)

	// Second evaluation reuses the compiled predicate.
	_, err = engine.Evaluate(context.Background(), "sma7 > sma20", "AAPL", day)
	require.NoError(t, err)
	assert.Len(t, engine.compiled, 1)
}

func TestEngineUnknownNamesPredicateSource(t *testing.T) {
	source := &stubSource{view: goldenView}
	engine := NewEngine(source)

	_, err := engine.Evaluate(context.Background(), "ema50 > 100", "AAPL", time.Now())

	require.Error(t, err)
	assert.Contains(t, err.Error(), `predicate "ema50 > 100"`)
}

func TestEngineMetricsErrorIsUnknown(t *testing.T) {
	source := &stubSource{err: errors.New("no daily row")}
	engine := NewEngine(source)

	_, err := engine.Evaluate(context.Background(), "close > 0", "AAPL", time.Now())
	assert.Error(t, err)
}

func TestEngineBadSourceIsUnknownWithoutMetricsFetch(t *testing.T) {
	source := &stubSource{view: goldenView}
	engine := NewEngine(source)

	_, err := engine.Evaluate(context.Background(), "close >", "AAPL", time.Now())

	require.Error(t, err)
	assert.Zero(t, source.calls)
}
