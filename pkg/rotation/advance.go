package rotation

import (
	"fmt"

	"rotor-api/pkg/broker"
)

// Pure stage decisions. Each consumes an immutable view of the market and
// returns a plan for the imperative shell to execute, which keeps the saga
// transitions unit-testable without a broker in the loop.

type sellOutPlan struct {
	submitSell   bool
	sellPrice    float64
	sellQuantity int64
	advance      bool
}

// decideSellOut resolves the SELL_OUT stage for one tick. Holding units that
// are not yet available stalls; available units trigger one full-available
// sell; a flat position advances the saga.
func decideSellOut(st SwitchState, pos broker.Position, quote *broker.Quote) sellOutPlan {
	if pos.Quantity > 0 && pos.Available == 0 {
		return sellOutPlan{} // units held but not yet sellable
	}
	if pos.Available > 0 && !st.SellSubmitted {
		if quote == nil || !quote.Tradable() {
			return sellOutPlan{} // cannot price the liquidation yet
		}
		return sellOutPlan{
			submitSell:   true,
			sellPrice:    quote.Price,
			sellQuantity: pos.Available,
		}
	}
	if pos.Quantity == 0 {
		return sellOutPlan{advance: true}
	}
	return sellOutPlan{} // sell in flight, await the fill
}

type waitQuotePlan struct {
	advance       bool
	lotSize       int64
	awaitingQuote bool
}

// decideWaitQuote blocks until a live price and lot size exist for the
// candidate.
func decideWaitQuote(st SwitchState, quote *broker.Quote) waitQuotePlan {
	if quote != nil && quote.Tradable() {
		return waitQuotePlan{advance: true, lotSize: quote.LotSize}
	}
	return waitQuotePlan{awaitingQuote: true}
}

type rebuyPlan struct {
	submitBuy   bool
	buyPrice    float64
	buyQuantity int64
	skipReason  string
}

// decideRebuy sizes the repurchase from the realized sell notional, falling
// back to the default notional, floored to whole board lots.
func decideRebuy(st SwitchState, quote *broker.Quote, defaultNotional float64) rebuyPlan {
	if quote == nil || !quote.Tradable() {
		return rebuyPlan{skipReason: "no live quote for candidate"}
	}
	notional := defaultNotional
	if st.SellNotional != nil && *st.SellNotional > 0 {
		notional = *st.SellNotional
	}
	lots := int64(notional / quote.Price / float64(quote.LotSize))
	qty := lots * quote.LotSize
	if qty <= 0 {
		return rebuyPlan{skipReason: fmt.Sprintf("notional %.2f buys less than one lot of %d at %.4f", notional, quote.LotSize, quote.Price)}
	}
	return rebuyPlan{submitBuy: true, buyPrice: quote.Price, buyQuantity: qty}
}
