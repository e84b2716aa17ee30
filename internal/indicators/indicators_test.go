package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertSeries compares element-wise, treating NaN == NaN.
func assertSeries(t *testing.T, want, got []float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		if math.IsNaN(want[i]) {
			assert.True(t, math.IsNaN(got[i]), "index %d: want NaN, got %v", i, got[i])
			continue
		}
		assert.InDelta(t, want[i], got[i], 1e-9, "index %d", i)
	}
}

var nan = math.NaN()

func TestSMA(t *testing.T) {
	got, err := SMA([]float64{1, 2, 3, 4, 5}, 3)
	require.NoError(t, err)
	assertSeries(t, []float64{nan, nan, 2, 3, 4}, got)
}

func TestSMAShortSeriesIsAllWarmup(t *testing.T) {
	got, err := SMA([]float64{1, 2}, 3)
	require.NoError(t, err)
	assertSeries(t, []float64{nan, nan}, got)
}

func TestSMARejectsNonPositivePeriod(t *testing.T) {
	_, err := SMA([]float64{1, 2, 3}, 0)
	assert.Error(t, err)
}

func TestEMA(t *testing.T) {
	// Seeded with the SMA of the first period values, multiplier 0.5 for
	// period 3.
	got, err := EMA([]float64{1, 2, 3, 4, 5}, 3)
	require.NoError(t, err)
	assertSeries(t, []float64{nan, nan, 2, 3, 4}, got)
}

func TestEMATracksTrendFasterThanSMA(t *testing.T) {
	values := []float64{10, 10, 10, 10, 10, 20, 20, 20}

	ema, err := EMA(values, 5)
	require.NoError(t, err)
	sma, err := SMA(values, 5)
	require.NoError(t, err)

	// After the jump the EMA sits above the SMA.
	assert.Greater(t, ema[6], sma[6])
	assert.Greater(t, ema[7], sma[7])
}

func TestRSIMonotoneGainIsHundred(t *testing.T) {
	got, err := RSI([]float64{1, 2, 3, 4}, 3)
	require.NoError(t, err)
	assertSeries(t, []float64{nan, nan, nan, 100}, got)
}

func TestRSIWilderSmoothing(t *testing.T) {
	got, err := RSI([]float64{1, 2, 3, 4, 3}, 3)
	require.NoError(t, err)

	// First smoothed step: avgGain (1*2+0)/3, avgLoss (0*2+1)/3, rs 2.
	assertSeries(t, []float64{nan, nan, nan, 100, 100 - 100.0/3.0}, got)
}

func TestRSIShortSeriesIsAllWarmup(t *testing.T) {
	got, err := RSI([]float64{1, 2, 3}, 3)
	require.NoError(t, err)
	assertSeries(t, []float64{nan, nan, nan}, got)
}

func TestRSIRejectsNonPositivePeriod(t *testing.T) {
	_, err := RSI([]float64{1, 2, 3}, -1)
	assert.Error(t, err)
}
