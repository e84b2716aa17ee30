package library

import (
	"context"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"marana/internal/data"
)

// AlpacaBars adapts the Alpaca market-data client to BarSource.
type AlpacaBars struct {
	client *marketdata.Client
}

func NewAlpacaBars(opts marketdata.ClientOpts) *AlpacaBars {
	return &AlpacaBars{client: marketdata.NewClient(opts)}
}

func (a *AlpacaBars) DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]data.Price, error) {
	bars, err := a.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
	})
	if err != nil {
		return nil, err
	}

	prices := make([]data.Price, 0, len(bars))
	for _, bar := range bars {
		prices = append(prices, data.Price{
			Date:   bar.Timestamp.UTC(),
			Open:   bar.Open,
			High:   bar.High,
			Low:    bar.Low,
			Close:  bar.Close,
			Volume: float64(bar.Volume),
		})
	}
	return prices, nil
}
