// Package automation is the decision core: one run per trading day
// walks the active instructions for a format and decides, per symbol,
// whether to submit a market buy or sell order.
package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marana/internal/broker"
	"marana/internal/data"
	"marana/internal/report"
)

// Store is the persistence surface the run consumes.
type Store interface {
	Instructions(ctx context.Context) ([]data.Instruction, error)
	Strategies(ctx context.Context) ([]data.Strategy, error)
}

// Library is the market-data surface the run consumes.
type Library interface {
	Assets(ctx context.Context) ([]data.Asset, error)
	LastPrice(ctx context.Context, symbol string) (data.Price, error)
	LastPrices(ctx context.Context, assets []data.Asset) (map[string]decimal.Decimal, error)
	Validity(ctx context.Context, asset data.Asset) (time.Time, error)
	Refresh(ctx context.Context, assets []data.Asset) error
}

// Broker is the trading surface the run consumes.
type Broker interface {
	TradeableCash(ctx context.Context, format data.Format) (decimal.Decimal, error)
	OpenBuyOrders(ctx context.Context, format data.Format) ([]data.Order, error)
	Positions(ctx context.Context, format data.Format) ([]data.Position, error)
	LastMarketClose(ctx context.Context) (time.Time, error)
	PlaceMarketBuy(ctx context.Context, format data.Format, symbol string, quantity int) (broker.Outcome, error)
	PlaceMarketSell(ctx context.Context, format data.Format, symbol string, quantity int) (broker.Outcome, error)
}

// Evaluator resolves one predicate source for a symbol and day. A
// non-nil error means the result is unknown.
type Evaluator interface {
	Evaluate(ctx context.Context, source, symbol string, day time.Time) (bool, error)
}

// WaitFunc pauses for the settle interval; injectable so tests can
// simulate elapsed time instead of sleeping.
type WaitFunc func(ctx context.Context, delay time.Duration) error

// DefaultSettle is how long a cycle waits after triggering a dataset
// refresh before the single validity recheck, letting the asynchronous
// writers get ahead.
const DefaultSettle = 10 * time.Second

type Options struct {
	Settle    time.Duration // defaults to DefaultSettle
	Wait      WaitFunc      // defaults to broker.WaitForContext
	UseMargin bool          // when true, affordability checks are skipped
	RunLog    *report.RunLog
	Now       func() time.Time
}

type Automation struct {
	store   Store
	library Library
	broker  Broker
	eval    Evaluator
	sink    report.Sink
	log     *zap.SugaredLogger

	settle time.Duration
	wait   WaitFunc
	margin bool
	runlog *report.RunLog
	now    func() time.Time
}

func New(st Store, lib Library, br Broker, eval Evaluator, sink report.Sink, log *zap.SugaredLogger, opts Options) *Automation {
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}
	if opts.Wait == nil {
		opts.Wait = broker.WaitForContext
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Automation{
		store:   st,
		library: lib,
		broker:  br,
		eval:    eval,
		sink:    sink,
		log:     log,
		settle:  opts.Settle,
		wait:    opts.Wait,
		margin:  opts.UseMargin,
		runlog:  opts.RunLog,
		now:     opts.Now,
	}
}

// Run executes one automation pass over all instructions for a format.
// Precondition failures abort the whole run; anything that goes wrong
// inside a single instruction's cycle is reported and the run moves on.
func (a *Automation) Run(ctx context.Context, format data.Format, day time.Time) error {
	a.sink.Line("")
	a.sink.Line("%s", a.now().Format("2006-01-02 15:04"))
	a.sink.Line(">>> Running automated rules for %s instructions", format)

	all, err := a.store.Instructions(ctx)
	if err != nil {
		return a.abort("Unable to retrieve instructions from the store. Aborting.", err)
	}
	var instructions []data.Instruction
	for _, ins := range all {
		if ins.Format == format {
			instructions = append(instructions, ins)
		}
	}

	strategies, err := a.store.Strategies(ctx)
	if err != nil {
		return a.abort("Unable to retrieve strategies from the store. Aborting.", err)
	}

	assets, err := a.library.Assets(ctx)
	if err != nil {
		return a.abort("Unable to retrieve asset list. Aborting.", err)
	}

	positions, err := a.broker.Positions(ctx, format)
	if err != nil {
		return a.abort("Unable to retrieve current trade positions from the broker. Aborting.", err)
	}

	orders, err := a.broker.OpenBuyOrders(ctx, format)
	if err != nil {
		return a.abort("Unable to retrieve current open orders from the broker. Aborting.", err)
	}

	if len(assets) == 0 {
		return a.abort("No assets found in the catalog. Aborting.", nil)
	}
	if len(instructions) == 0 {
		return a.abort("No automated instruction rules found. Aborting.", nil)
	}
	if len(strategies) == 0 {
		return a.abort("No automation strategies found. Aborting.", nil)
	}

	strategyByName := make(map[string]data.Strategy, len(strategies))
	for _, st := range strategies {
		strategyByName[st.Name] = st
	}
	assetBySymbol := make(map[string]data.Asset, len(assets))
	for _, asset := range assets {
		assetBySymbol[asset.Symbol] = asset
	}

	for i, ins := range instructions {
		// Cancellation halts between instructions, never mid-cycle.
		if err := ctx.Err(); err != nil {
			return a.abort("Run canceled. Aborting.", err)
		}

		a.sink.Line("")
		a.sink.Line("[%04d / %04d] %s (%s): %s x %d @ %s (%s)",
			i+1, len(instructions), ins.Description, ins.Format,
			ins.Symbol, ins.Quantity, ins.Strategy, ins.Frequency)

		strat, ok := strategyByName[ins.Strategy]
		if !ok {
			a.sink.Line("Strategy '%s' not found in catalog. Skipping.", ins.Strategy)
			a.record(ins, cycleResult{Outcome: OutcomeSkipped, Reason: "strategy_not_found"})
			continue
		}

		asset, ok := assetBySymbol[ins.Symbol]
		if !ok {
			a.sink.Line("Asset '%s' not found in catalog. Skipping.", ins.Symbol)
			a.record(ins, cycleResult{Outcome: OutcomeSkipped, Reason: "asset_not_found"})
			continue
		}

		if !ins.Active {
			a.sink.Line("Instruction marked as 'Inactive'. Skipping.")
			a.record(ins, cycleResult{Outcome: OutcomeSkipped, Reason: "inactive"})
			continue
		}

		if ins.Frequency != data.Daily {
			a.sink.Line("Instruction frequency '%s' not handled by the daily run. Skipping.", ins.Frequency)
			a.record(ins, cycleResult{Outcome: OutcomeSkipped, Reason: "not_daily"})
			continue
		}

		position := matchPosition(positions, ins.Symbol)
		order := matchOrder(orders, ins)

		result := a.runDaily(ctx, ins, strat, day, asset, position, order)
		if result.Err != nil {
			a.log.Warnw("instruction cycle ended with error",
				"symbol", ins.Symbol, "outcome", result.Outcome, "error", result.Err)
		}
		a.record(ins, result)
	}

	a.sink.Line("")
	a.sink.Line("%s", a.now().Format("2006-01-02 15:04"))
	a.sink.Line(">>> Completed running automated rules for %s instructions", format)
	return nil
}

func (a *Automation) abort(message string, err error) error {
	a.sink.Line("%s", message)
	if err != nil {
		a.log.Errorw("run aborted", "reason", message, "error", err)
		return fmt.Errorf("%s: %w", message, err)
	}
	a.log.Errorw("run aborted", "reason", message)
	return fmt.Errorf("%s", message)
}

func (a *Automation) record(ins data.Instruction, result cycleResult) {
	if a.runlog == nil {
		return
	}
	record := report.Record{
		Timestamp:    a.now().UTC(),
		Format:       string(ins.Format),
		Symbol:       ins.Symbol,
		Strategy:     ins.Strategy,
		Quantity:     ins.Quantity,
		Outcome:      string(result.Outcome),
		Reason:       result.Reason,
		OrderOutcome: string(result.OrderOutcome),
	}
	if result.Err != nil {
		record.Error = result.Err.Error()
	}
	a.runlog.Append(record)
}

// matchPosition finds the holding for a symbol, nil when none exists.
func matchPosition(positions []data.Position, symbol string) *data.Position {
	for i := range positions {
		if positions[i].Symbol == symbol {
			return &positions[i]
		}
	}
	return nil
}

// matchOrder finds an open buy order matching the instruction by symbol
// AND quantity, nil when none exists. A matching order means this
// instruction already acted and must not buy again.
func matchOrder(orders []data.Order, ins data.Instruction) *data.Order {
	for i := range orders {
		if orders[i].Symbol == ins.Symbol && orders[i].Quantity == ins.Quantity {
			return &orders[i]
		}
	}
	return nil
}
