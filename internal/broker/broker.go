// Package broker wraps the Alpaca trading API behind the small surface
// the automation core consumes. Broker responses are normalized into
// closed outcome sets so callers never inspect transport errors.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marana/internal/data"
	"marana/internal/id"
)

// Outcome is the normalized result of an order submission.
type Outcome string

const (
	OutcomePlaced            Outcome = "placed"
	OutcomeInsufficientFunds Outcome = "insufficient_funds"
	OutcomeFailed            Outcome = "failed"
)

const calendarLookback = 10 // days of trading calendar fetched to find the last close

type Alpaca struct {
	paper *alpaca.Client
	live  *alpaca.Client
	log   *zap.SugaredLogger
	now   func() time.Time
}

func NewAlpaca(paper, live alpaca.ClientOpts, log *zap.SugaredLogger) *Alpaca {
	return &Alpaca{
		paper: alpaca.NewClient(paper),
		live:  alpaca.NewClient(live),
		log:   log,
		now:   time.Now,
	}
}

func (b *Alpaca) client(format data.Format) *alpaca.Client {
	if format == data.Live {
		return b.live
	}
	return b.paper
}

// TradeableCash reports the account's cash balance for a format.
func (b *Alpaca) TradeableCash(ctx context.Context, format data.Format) (decimal.Decimal, error) {
	acct, err := b.client(format).GetAccount()
	if err != nil {
		b.log.Errorw("fetch account failed", "format", format, "error", err)
		return decimal.Decimal{}, fmt.Errorf("get account: %w", err)
	}
	b.log.Infow("account fetched", "format", format, "cash", acct.Cash)
	return acct.Cash, nil
}

// OpenBuyOrders lists the open, unfilled buy orders for a format.
func (b *Alpaca) OpenBuyOrders(ctx context.Context, format data.Format) ([]data.Order, error) {
	orders, err := b.client(format).GetOrders(alpaca.GetOrdersRequest{
		Status: "open",
		Limit:  500,
	})
	if err != nil {
		b.log.Errorw("fetch open orders failed", "format", format, "error", err)
		return nil, fmt.Errorf("get open orders: %w", err)
	}

	result := make([]data.Order, 0, len(orders))
	for _, order := range orders {
		if order.Side != alpaca.Buy || order.Qty == nil {
			continue
		}
		result = append(result, data.Order{
			Symbol:   order.Symbol,
			Quantity: int(order.Qty.IntPart()),
			Format:   format,
		})
	}
	b.log.Infow("open buy orders fetched", "format", format, "count", len(result))
	return result, nil
}

// Positions lists current holdings for a format.
func (b *Alpaca) Positions(ctx context.Context, format data.Format) ([]data.Position, error) {
	positions, err := b.client(format).GetPositions()
	if err != nil {
		b.log.Errorw("fetch positions failed", "format", format, "error", err)
		return nil, fmt.Errorf("get positions: %w", err)
	}

	result := make([]data.Position, 0, len(positions))
	for _, pos := range positions {
		result = append(result, data.Position{
			ID:       pos.AssetID,
			Symbol:   pos.Symbol,
			Quantity: int(pos.Qty.IntPart()),
		})
	}
	b.log.Infow("positions fetched", "format", format, "count", len(result))
	return result, nil
}

// LastMarketClose returns the close time of the most recent completed
// trading session.
func (b *Alpaca) LastMarketClose(ctx context.Context) (time.Time, error) {
	now := b.now().UTC()
	days, err := b.paper.GetCalendar(alpaca.GetCalendarRequest{
		Start: now.AddDate(0, 0, -calendarLookback),
		End:   now,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("get calendar: %w", err)
	}

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.Time{}, err
	}
	for i := len(days) - 1; i >= 0; i-- {
		closeAt, err := time.ParseInLocation("2006-01-02 15:04", days[i].Date+" "+days[i].Close, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse calendar day %q: %w", days[i].Date, err)
		}
		if closeAt.Before(now) {
			return closeAt.UTC(), nil
		}
	}
	return time.Time{}, errors.New("no completed session in calendar window")
}

// PlaceMarketBuy submits a market buy order and normalizes the result.
func (b *Alpaca) PlaceMarketBuy(ctx context.Context, format data.Format, symbol string, quantity int) (Outcome, error) {
	return b.placeMarket(format, symbol, quantity, alpaca.Buy)
}

// PlaceMarketSell submits a market sell order and normalizes the result.
func (b *Alpaca) PlaceMarketSell(ctx context.Context, format data.Format, symbol string, quantity int) (Outcome, error) {
	return b.placeMarket(format, symbol, quantity, alpaca.Sell)
}

func (b *Alpaca) placeMarket(format data.Format, symbol string, quantity int, side alpaca.Side) (Outcome, error) {
	qty := decimal.NewFromInt(int64(quantity))
	order, err := b.client(format).PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:        symbol,
		Qty:           &qty,
		Side:          side,
		Type:          alpaca.Market,
		TimeInForce:   alpaca.Day,
		ClientOrderID: id.New(),
	})
	if err != nil {
		outcome, err := mapOrderError(err)
		b.log.Errorw("place order failed", "format", format, "side", side,
			"symbol", symbol, "qty", quantity, "outcome", outcome, "error", err)
		return outcome, err
	}

	b.log.Infow("place order success", "format", format, "side", side,
		"symbol", symbol, "qty", quantity, "order_id", order.ID, "status", order.Status)
	return OutcomePlaced, nil
}

// mapOrderError folds a transport error into the closed outcome set.
// Alpaca reports insufficient buying power as HTTP 403.
func mapOrderError(err error) (Outcome, error) {
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == 403 {
		return OutcomeInsufficientFunds, fmt.Errorf("place order: %w", err)
	}
	return OutcomeFailed, fmt.Errorf("place order: %w", err)
}

// AssetCatalog fetches the active asset list from the broker. Used by
// the catalog refresh flow, not by the automation run itself.
func (b *Alpaca) AssetCatalog(ctx context.Context) ([]data.Asset, error) {
	assets, err := b.paper.GetAssets(alpaca.GetAssetsRequest{Status: "active"})
	if err != nil {
		return nil, fmt.Errorf("get assets: %w", err)
	}

	result := make([]data.Asset, 0, len(assets))
	for _, a := range assets {
		result = append(result, data.Asset{
			ID:           a.ID,
			Symbol:       a.Symbol,
			Class:        string(a.Class),
			Exchange:     a.Exchange,
			Status:       string(a.Status),
			Tradeable:    a.Tradable,
			Marginable:   a.Marginable,
			Shortable:    a.Shortable,
			EasyToBorrow: a.EasyToBorrow,
		})
	}
	return result, nil
}

// WaitForContext sleeps for delay unless the context is canceled first.
func WaitForContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
