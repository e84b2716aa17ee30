// Package library is the market-data side of the system: asset lookup,
// last traded prices, metric views for predicate evaluation, and the
// dataset refresh flow that keeps validity markers current.
package library

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marana/internal/data"
	"marana/internal/indicators"
	"marana/internal/store"
	"marana/internal/strategy"
)

// Indicator periods stored with every daily series.
const (
	smaShort  = 7
	smaMid    = 20
	smaLong   = 50
	emaShort  = 7
	emaMid    = 20
	rsiPeriod = 14
)

// lookbackDays bounds the history fetched on refresh; enough for the
// longest indicator warmup with margin for holidays.
const lookbackDays = 400

// BarSource fetches daily bars from the market-data provider.
type BarSource interface {
	DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]data.Price, error)
}

type Library struct {
	store *store.SQLite
	bars  BarSource
	log   *zap.SugaredLogger
	now   func() time.Time
}

func New(st *store.SQLite, bars BarSource, log *zap.SugaredLogger) *Library {
	return &Library{
		store: st,
		bars:  bars,
		log:   log,
		now:   time.Now,
	}
}

// Assets lists the stored asset catalog.
func (l *Library) Assets(ctx context.Context) ([]data.Asset, error) {
	return l.store.Assets(ctx)
}

// LastPrice returns the most recent daily bar for a symbol.
func (l *Library) LastPrice(ctx context.Context, symbol string) (data.Price, error) {
	asset, err := l.store.AssetBySymbol(ctx, symbol)
	if err != nil {
		return data.Price{}, fmt.Errorf("resolve asset %s: %w", symbol, err)
	}
	price, err := l.store.LatestPrice(ctx, asset.ID)
	if err != nil {
		return data.Price{}, fmt.Errorf("latest price for %s: %w", symbol, err)
	}
	return price, nil
}

// LastPrices returns last closing prices keyed by asset ID. Assets with
// no stored daily series are omitted from the map; a stored bar with a
// non-positive close is reported as zero so callers can treat the price
// as unusable without losing the entry.
func (l *Library) LastPrices(ctx context.Context, assets []data.Asset) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal, len(assets))
	for _, asset := range assets {
		price, err := l.store.LatestPrice(ctx, asset.ID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("latest price for %s: %w", asset.Symbol, err)
		}
		if price.Close <= 0 || math.IsNaN(price.Close) {
			prices[asset.ID] = decimal.Zero
			continue
		}
		prices[asset.ID] = decimal.NewFromFloat(price.Close)
	}
	return prices, nil
}

// Metrics returns the predicate evaluation view for a symbol and day.
func (l *Library) Metrics(ctx context.Context, symbol string, day time.Time) (strategy.View, error) {
	asset, err := l.store.AssetBySymbol(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("resolve asset %s: %w", symbol, err)
	}
	metrics, err := l.store.Metrics(ctx, asset.ID, day)
	if err != nil {
		return nil, fmt.Errorf("metrics for %s: %w", symbol, err)
	}
	return metrics, nil
}

// Validity reports when an asset's daily dataset was last refreshed.
func (l *Library) Validity(ctx context.Context, asset data.Asset) (time.Time, error) {
	return l.store.Validity(ctx, data.ValidityKeyDaily(asset.ID))
}

// Refresh triggers a dataset refresh for the given assets and returns
// immediately. The write happens on a detached context; callers that
// need the data wait a settle interval and re-read validity.
func (l *Library) Refresh(ctx context.Context, assets []data.Asset) error {
	detached := context.WithoutCancel(ctx)
	go func() {
		if err := l.RefreshNow(detached, assets); err != nil {
			l.log.Errorw("dataset refresh failed", "error", err)
		}
	}()
	return nil
}

// RefreshNow fetches daily bars, computes indicator metrics, stores the
// series, and stamps each asset's validity marker. Synchronous variant
// used by the update command.
func (l *Library) RefreshNow(ctx context.Context, assets []data.Asset) error {
	end := l.now().UTC()
	start := end.AddDate(0, 0, -lookbackDays)

	for _, asset := range assets {
		bars, err := l.bars.DailyBars(ctx, asset.Symbol, start, end)
		if err != nil {
			return fmt.Errorf("fetch bars for %s: %w", asset.Symbol, err)
		}
		if len(bars) == 0 {
			l.log.Warnw("no bars returned", "symbol", asset.Symbol)
			continue
		}

		series, err := computeMetrics(bars)
		if err != nil {
			return fmt.Errorf("compute metrics for %s: %w", asset.Symbol, err)
		}
		if err := l.store.SaveDaily(ctx, asset.ID, series); err != nil {
			return fmt.Errorf("save daily for %s: %w", asset.Symbol, err)
		}
		if err := l.store.SetValidity(ctx, data.ValidityKeyDaily(asset.ID), l.now().UTC()); err != nil {
			return fmt.Errorf("set validity for %s: %w", asset.Symbol, err)
		}
		l.log.Infow("dataset refreshed", "symbol", asset.Symbol, "bars", len(bars))
	}
	return nil
}

// RefreshAssets replaces the stored asset catalog and stamps its
// validity marker.
func (l *Library) RefreshAssets(ctx context.Context, catalog []data.Asset) error {
	if err := l.store.SaveAssets(ctx, catalog); err != nil {
		return fmt.Errorf("save assets: %w", err)
	}
	if err := l.store.SetValidity(ctx, data.ValidityKeyAssets, l.now().UTC()); err != nil {
		return fmt.Errorf("set assets validity: %w", err)
	}
	l.log.Infow("asset catalog refreshed", "count", len(catalog))
	return nil
}

func computeMetrics(bars []data.Price) ([]data.Metrics, error) {
	closes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
	}

	sma7, err := indicators.SMA(closes, smaShort)
	if err != nil {
		return nil, err
	}
	sma20, err := indicators.SMA(closes, smaMid)
	if err != nil {
		return nil, err
	}
	sma50, err := indicators.SMA(closes, smaLong)
	if err != nil {
		return nil, err
	}
	ema7, err := indicators.EMA(closes, emaShort)
	if err != nil {
		return nil, err
	}
	ema20, err := indicators.EMA(closes, emaMid)
	if err != nil {
		return nil, err
	}
	rsi, err := indicators.RSI(closes, rsiPeriod)
	if err != nil {
		return nil, err
	}

	series := make([]data.Metrics, len(bars))
	for i, bar := range bars {
		series[i] = data.Metrics{
			Price: bar,
			SMA7:  metric(sma7[i]),
			SMA20: metric(sma20[i]),
			SMA50: metric(sma50[i]),
			EMA7:  metric(ema7[i]),
			EMA20: metric(ema20[i]),
			RSI:   metric(rsi[i]),
		}
	}
	return series, nil
}

func metric(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}
