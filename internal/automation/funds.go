package automation

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"marana/internal/data"
)

// priceSentinel stands in for an open order whose asset has a stored
// price row without a usable close. It is large enough to force any
// affordability check to fail conservatively instead of passing on an
// understated reservation.
var priceSentinel = decimal.NewFromInt(999999)

// AvailableCash derives spendable cash for a format: broker-reported
// tradeable cash minus the marked value reserved by open buy orders.
// Any unresolvable order asset or absent price makes the whole result
// unknown; partial totals are never trusted.
func (a *Automation) AvailableCash(ctx context.Context, format data.Format) (decimal.Decimal, error) {
	cash, err := a.broker.TradeableCash(ctx, format)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("tradeable cash: %w", err)
	}

	orders, err := a.broker.OpenBuyOrders(ctx, format)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("open buy orders: %w", err)
	}
	if len(orders) == 0 {
		return cash, nil
	}

	assets, err := a.library.Assets(ctx)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("asset list: %w", err)
	}
	assetBySymbol := make(map[string]data.Asset, len(assets))
	for _, asset := range assets {
		assetBySymbol[asset.Symbol] = asset
	}

	referenced := make([]data.Asset, 0, len(orders))
	for _, order := range orders {
		asset, ok := assetBySymbol[order.Symbol]
		if !ok {
			return decimal.Decimal{}, fmt.Errorf("open order asset %s not in catalog", order.Symbol)
		}
		referenced = append(referenced, asset)
	}

	prices, err := a.library.LastPrices(ctx, referenced)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("last prices: %w", err)
	}

	marked := decimal.Zero
	for _, order := range orders {
		asset := assetBySymbol[order.Symbol]
		price, ok := prices[asset.ID]
		if !ok {
			return decimal.Decimal{}, fmt.Errorf("no stored price for open order %s", order.Symbol)
		}
		if price.Sign() <= 0 {
			price = priceSentinel
		}
		marked = marked.Add(price.Mul(decimal.NewFromInt(int64(order.Quantity))))
	}

	return cash.Sub(marked), nil
}
