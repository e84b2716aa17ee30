package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"marana/internal/broker"
	"marana/internal/data"
)

// Outcome is the terminal result of one instruction's daily cycle.
type Outcome string

const (
	OutcomeIdle     Outcome = "idle"
	OutcomeBuy      Outcome = "buy"
	OutcomeSellGain Outcome = "sell_gain"
	OutcomeSellLoss Outcome = "sell_loss"
	OutcomeStale    Outcome = "stale"
	OutcomeAborted  Outcome = "aborted"
	OutcomeSkipped  Outcome = "skipped"
)

// cycleState drives the daily decision cycle:
//
//	CheckFreshness -> {Stale -> TriggerUpdate -> Settle -> Recheck -> Evaluate
//	                  | Fresh -> Evaluate}
//	Evaluate -> {Idle | Buy | SellGain | SellLoss} -> Done
type cycleState int

const (
	stateCheckFreshness cycleState = iota
	stateTriggerUpdate
	stateSettle
	stateRecheck
	stateEvaluate
)

type cycleResult struct {
	Outcome      Outcome
	Reason       string
	OrderOutcome broker.Outcome
	Err          error
}

// runDaily executes the decision cycle for one resolved, active, daily
// instruction. Every failure is folded into the returned result; the
// run continues with the next instruction regardless.
func (a *Automation) runDaily(ctx context.Context, ins data.Instruction, strat data.Strategy,
	day time.Time, asset data.Asset, position *data.Position, order *data.Order) cycleResult {

	lastClose := a.lastMarketClose(ctx)

	state := stateCheckFreshness
	for {
		switch state {
		case stateCheckFreshness:
			validity, err := a.library.Validity(ctx, asset)
			if err != nil {
				return cycleResult{Outcome: OutcomeAborted, Reason: "validity_unavailable", Err: err}
			}
			// Fresh only when strictly newer than the last close;
			// equality goes through the refresh branch like the
			// recheck below.
			if validity.After(lastClose) {
				state = stateEvaluate
			} else {
				a.sink.Line("Latest market data for this symbol needs updating. Updating now.")
				state = stateTriggerUpdate
			}

		case stateTriggerUpdate:
			if err := a.library.Refresh(ctx, []data.Asset{asset}); err != nil {
				return cycleResult{Outcome: OutcomeAborted, Reason: "refresh_failed", Err: err}
			}
			state = stateSettle

		case stateSettle:
			// One coarse synchronization point for the fire-and-forget
			// refresh; not a polling loop.
			if err := a.wait(ctx, a.settle); err != nil {
				return cycleResult{Outcome: OutcomeAborted, Reason: "canceled", Err: err}
			}
			state = stateRecheck

		case stateRecheck:
			validity, err := a.library.Validity(ctx, asset)
			if err != nil {
				return cycleResult{Outcome: OutcomeAborted, Reason: "validity_unavailable", Err: err}
			}
			// One refresh, one recheck. Still stale means not
			// actionable today, not an error.
			if !validity.After(lastClose) {
				a.sink.Line("Market data still stale after refresh; nothing to do today.")
				return cycleResult{Outcome: OutcomeStale, Reason: "stale_data"}
			}
			state = stateEvaluate

		case stateEvaluate:
			return a.evaluate(ctx, ins, strat, day, position, order)
		}
	}
}

// lastMarketClose asks the broker for the last completed session close,
// falling back to 24 hours ago when the clock query fails.
func (a *Automation) lastMarketClose(ctx context.Context) time.Time {
	lastClose, err := a.broker.LastMarketClose(ctx)
	if err != nil {
		a.log.Warnw("last market close unavailable, using 24h fallback", "error", err)
		return a.now().UTC().Add(-24 * time.Hour)
	}
	return lastClose
}

// evaluate resolves the three predicates and dispatches the decision.
func (a *Automation) evaluate(ctx context.Context, ins data.Instruction, strat data.Strategy,
	day time.Time, position *data.Position, order *data.Order) cycleResult {

	entry, entryErr := a.eval.Evaluate(ctx, strat.Entry, ins.Symbol, day)
	exitGain, gainErr := a.eval.Evaluate(ctx, strat.ExitGain, ins.Symbol, day)
	exitLoss, lossErr := a.eval.Evaluate(ctx, strat.ExitLoss, ins.Symbol, day)

	for _, err := range []error{entryErr, gainErr, lossErr} {
		if err != nil {
			a.sink.Line("Error evaluating strategy predicates. Please validate the strategy. Skipping.")
			return cycleResult{Outcome: OutcomeAborted, Reason: "predicate_error", Err: err}
		}
	}

	if entry && (exitGain || exitLoss) {
		// Simultaneous buy and sell triggers point at a broken
		// strategy definition; never trade on conflicting signals.
		a.sink.Line("Buy AND sell triggers met; doing nothing. Check strategy for errors?")
		return cycleResult{Outcome: OutcomeAborted, Reason: "conflicting_triggers"}
	}

	switch {
	case entry:
		return a.buy(ctx, ins, position, order)
	case exitGain || exitLoss:
		return a.sell(ctx, ins, position, exitGain, exitLoss)
	default:
		a.sink.Line("  No triggers detected.")
		return cycleResult{Outcome: OutcomeIdle, Reason: "no_triggers"}
	}
}

func (a *Automation) buy(ctx context.Context, ins data.Instruction, position *data.Position, order *data.Order) cycleResult {
	if position != nil && position.Quantity > 0 {
		a.sink.Line("  Buy trigger detected; active position already exists; doing nothing.")
		return cycleResult{Outcome: OutcomeIdle, Reason: "position_exists"}
	}
	if order != nil {
		a.sink.Line("  Buy trigger detected; identical open buy order already exists; doing nothing.")
		return cycleResult{Outcome: OutcomeIdle, Reason: "open_order_exists"}
	}

	a.sink.Line("  Buy trigger detected; no current position owned; placing buy order.")

	if !a.margin {
		available, err := a.AvailableCash(ctx, ins.Format)
		if err != nil {
			a.sink.Line("    Error calculating available cash; margin trading disabled; aborting.")
			return cycleResult{Outcome: OutcomeAborted, Reason: "unknown_affordability", Err: err}
		}

		price, err := a.library.LastPrice(ctx, ins.Symbol)
		if err != nil || price.Close <= 0 {
			a.sink.Line("    Error estimating cost of buy order; unable to verify affordability; aborting.")
			if err == nil {
				err = fmt.Errorf("no usable last price for %s", ins.Symbol)
			}
			return cycleResult{Outcome: OutcomeAborted, Reason: "unknown_cost", Err: err}
		}

		cost := decimal.NewFromFloat(price.Close).Mul(decimal.NewFromInt(int64(ins.Quantity)))
		if available.LessThan(cost) {
			a.sink.Line("    Available cash $%s insufficient for buy order $%s; aborting.",
				available.StringFixed(2), cost.StringFixed(2))
			return cycleResult{Outcome: OutcomeAborted, Reason: "insufficient_funds"}
		}
		a.sink.Line("    Available cash $%s sufficient for buy order $%s.",
			available.StringFixed(2), cost.StringFixed(2))
	}

	outcome, err := a.broker.PlaceMarketBuy(ctx, ins.Format, ins.Symbol, ins.Quantity)
	a.reportOrder(outcome)
	return cycleResult{Outcome: OutcomeBuy, Reason: "entry", OrderOutcome: outcome, Err: err}
}

func (a *Automation) sell(ctx context.Context, ins data.Instruction, position *data.Position, exitGain, exitLoss bool) cycleResult {
	trigger := "gain"
	outcome := OutcomeSellGain
	switch {
	case exitGain && exitLoss:
		trigger = "both"
	case exitLoss:
		trigger = "stop-loss"
		outcome = OutcomeSellLoss
	}

	if position == nil || position.Quantity <= 0 {
		a.sink.Line("  Sell trigger detected (%s); no current position owned; doing nothing.", trigger)
		return cycleResult{Outcome: OutcomeIdle, Reason: "no_position"}
	}

	a.sink.Line("  Sell trigger detected (%s); active position found; placing sell order.", trigger)

	// Sell the held quantity, not the instruction's configured quantity,
	// so holdings that diverged from policy are neither over- nor
	// under-sold.
	orderOutcome, err := a.broker.PlaceMarketSell(ctx, ins.Format, ins.Symbol, position.Quantity)
	a.reportOrder(orderOutcome)
	return cycleResult{Outcome: outcome, Reason: "exit_" + trigger, OrderOutcome: orderOutcome, Err: err}
}

func (a *Automation) reportOrder(outcome broker.Outcome) {
	switch outcome {
	case broker.OutcomePlaced:
		a.sink.Line(">> Order successfully placed.")
	case broker.OutcomeInsufficientFunds:
		a.sink.Line(">> Order placement unsuccessful; insufficient available funds.")
	default:
		a.sink.Line(">> Order placement unsuccessful.")
	}
}
