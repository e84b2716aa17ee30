package library

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"marana/internal/data"
	"marana/internal/store"
)

type fakeBars struct {
	bars map[string][]data.Price
	err  error
}

func (f *fakeBars) DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]data.Price, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.bars[symbol], nil
}

var (
	aapl = data.Asset{ID: "a-aapl", Symbol: "AAPL", Status: "active", Tradeable: true}
	msft = data.Asset{ID: "a-msft", Symbol: "MSFT", Status: "active", Tradeable: true}
)

func newTestLibrary(t *testing.T, bars *fakeBars) (*Library, *store.SQLite) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "marana.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.SaveAssets(context.Background(), []data.Asset{aapl, msft}))
	return New(st, bars, zap.NewNop().Sugar()), st
}

// series builds n consecutive daily bars ending at the given close.
func series(n int, lastClose float64) []data.Price {
	bars := make([]data.Price, n)
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		close := lastClose - float64(n-1-i)
		bars[i] = data.Price{
			Date: day.AddDate(0, 0, i), Open: close, High: close + 1,
			Low: close - 1, Close: close, Volume: 1000,
		}
	}
	return bars
}

func TestRefreshNowStoresMetricsAndValidity(t *testing.T) {
	bars := &fakeBars{bars: map[string][]data.Price{"AAPL": series(60, 160)}}
	lib, _ := newTestLibrary(t, bars)
	ctx := context.Background()

	before := time.Now().UTC().Add(-time.Second)
	require.NoError(t, lib.RefreshNow(ctx, []data.Asset{aapl}))

	price, err := lib.LastPrice(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 160.0, price.Close)

	validity, err := lib.Validity(ctx, aapl)
	require.NoError(t, err)
	assert.True(t, validity.After(before))

	// 60 bars of a rising series: both SMAs present, short above long.
	lastDay := series(60, 160)[59].Date
	view, err := lib.Metrics(ctx, "AAPL", lastDay)
	require.NoError(t, err)
	sma7, ok := view.Value("sma7")
	require.True(t, ok)
	sma50, ok := view.Value("sma50")
	require.True(t, ok)
	assert.Greater(t, sma7, sma50)
}

func TestRefreshNowLeavesWarmupIndicatorsNull(t *testing.T) {
	bars := &fakeBars{bars: map[string][]data.Price{"AAPL": series(10, 110)}}
	lib, _ := newTestLibrary(t, bars)
	ctx := context.Background()

	require.NoError(t, lib.RefreshNow(ctx, []data.Asset{aapl}))

	lastDay := series(10, 110)[9].Date
	view, err := lib.Metrics(ctx, "AAPL", lastDay)
	require.NoError(t, err)

	_, ok := view.Value("sma7")
	assert.True(t, ok)
	_, ok = view.Value("sma50") // needs 50 bars, only 10 stored
	assert.False(t, ok)
}

func TestRefreshNowPropagatesBarErrors(t *testing.T) {
	lib, _ := newTestLibrary(t, &fakeBars{err: errors.New("rate limited")})

	err := lib.RefreshNow(context.Background(), []data.Asset{aapl})
	assert.Error(t, err)
}

func TestRefreshNowSkipsSymbolsWithoutBars(t *testing.T) {
	bars := &fakeBars{bars: map[string][]data.Price{"AAPL": series(10, 110)}}
	lib, _ := newTestLibrary(t, bars)
	ctx := context.Background()

	// MSFT returns zero bars: skipped, not fatal, no validity stamp.
	require.NoError(t, lib.RefreshNow(ctx, []data.Asset{aapl, msft}))

	validity, err := lib.Validity(ctx, msft)
	require.NoError(t, err)
	assert.True(t, validity.IsZero())
}

func TestLastPricesOmitsAssetsWithoutSeries(t *testing.T) {
	bars := &fakeBars{bars: map[string][]data.Price{"AAPL": series(10, 110)}}
	lib, _ := newTestLibrary(t, bars)
	ctx := context.Background()
	require.NoError(t, lib.RefreshNow(ctx, []data.Asset{aapl}))

	prices, err := lib.LastPrices(ctx, []data.Asset{aapl, msft})
	require.NoError(t, err)

	require.Contains(t, prices, aapl.ID)
	assert.True(t, prices[aapl.ID].Equal(decimal.NewFromInt(110)))
	assert.NotContains(t, prices, msft.ID)
}

func TestLastPricesReportsUnusableCloseAsZero(t *testing.T) {
	lib, st := newTestLibrary(t, &fakeBars{})
	ctx := context.Background()

	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.SaveDaily(ctx, aapl.ID, []data.Metrics{
		{Price: data.Price{Date: day, Close: 0}},
	}))

	prices, err := lib.LastPrices(ctx, []data.Asset{aapl})
	require.NoError(t, err)
	require.Contains(t, prices, aapl.ID)
	assert.True(t, prices[aapl.ID].IsZero())
}

func TestLastPriceUnknownSymbol(t *testing.T) {
	lib, _ := newTestLibrary(t, &fakeBars{})

	_, err := lib.LastPrice(context.Background(), "ZZZZ")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRefreshAssetsStampsValidity(t *testing.T) {
	lib, st := newTestLibrary(t, &fakeBars{})
	ctx := context.Background()

	catalog := []data.Asset{aapl, msft, {ID: "a-tsla", Symbol: "TSLA", Status: "active"}}
	require.NoError(t, lib.RefreshAssets(ctx, catalog))

	assets, err := lib.Assets(ctx)
	require.NoError(t, err)
	assert.Len(t, assets, 3)

	validity, err := st.Validity(ctx, data.ValidityKeyAssets)
	require.NoError(t, err)
	assert.False(t, validity.IsZero())
}
