package engine

import (
	"math"
	"time"

	"github.com/google/uuid"

	"arbsim/internal/market"
	"arbsim/pkg/types"
)

// fundsTolerance forgives float drift in balance comparisons, mirroring the
// ledger's debit tolerance.
const fundsTolerance = 1e-9

// evaluatePair scores one directed pair: buy at buyBook's asks, sell into
// sellBook's bids. Caller holds the engine mutex. simVolumeUSD > 0 overrides
// the configured trade size with a USD notional priced at the buy side's
// best ask.
//
// Every outcome returns a fully-populated record; nothing here mutates
// engine state.
func (e *Engine) evaluatePair(buyBook, sellBook *types.OrderBook, simVolumeUSD float64, now time.Time) types.Opportunity {
	opp := types.Opportunity{
		ID:                uuid.NewString(),
		Timestamp:         now.UTC(),
		Symbol:            buyBook.Symbol,
		BuyExchange:       buyBook.Exchange,
		SellExchange:      sellBook.Exchange,
		LatencyMS:         decisionLatencyMS(buyBook, sellBook, now),
		BuyBookUpdatedAt:  buyBook.ReceivedTS,
		SellBookUpdatedAt: sellBook.ReceivedTS,
	}

	bestAsk, ok := buyBook.BestAsk()
	if !ok || bestAsk <= 0 {
		opp.Status = types.StatusDiscarded
		opp.Reason = types.ReasonInvalidTradeSize
		return opp
	}
	size := e.cfg.TradeSize
	if simVolumeUSD > 0 {
		size = simVolumeUSD / bestAsk
	}
	if size <= 0 {
		opp.Status = types.StatusDiscarded
		opp.Reason = types.ReasonInvalidTradeSize
		return opp
	}
	opp.TradeSize = size

	buyVWAP, buyFilled := market.VWAPBuy(buyBook.Asks, size)
	sellVWAP, sellFilled := market.VWAPSell(sellBook.Bids, size)
	opp.BuyVWAP = buyVWAP
	opp.SellVWAP = sellVWAP
	if math.Min(buyFilled, sellFilled)+fundsTolerance < size {
		opp.Status = types.StatusInsufficientLiquidity
		opp.Reason = types.ReasonInsufficientDepth
		return opp
	}

	buyUnit := buyVWAP * (1 + e.fees[buyBook.Exchange])
	sellUnit := sellVWAP * (1 - e.fees[sellBook.Exchange])
	buyCost := buyUnit * size

	base, _ := market.SplitSymbol(opp.Symbol)
	transferCost := e.transferCostLocked(base, buyBook.Exchange)
	netProfit := (sellUnit-buyUnit)*size - transferCost

	if buyVWAP > 0 {
		opp.GrossSpreadPct = (sellVWAP - buyVWAP) / buyVWAP * 100
	}
	if buyCost > 0 {
		opp.NetSpreadPct = netProfit / buyCost * 100
	}
	opp.ExpectedProfitUSD = netProfit

	switch {
	case buyCost > e.ledger.QuoteBalance(buyBook.Exchange)+fundsTolerance:
		opp.Status = types.StatusNoFunds
		opp.Reason = types.ReasonInsufficientQuote
	case e.ledger.BaseBalance(sellBook.Exchange, base)+fundsTolerance < size:
		opp.Status = types.StatusNoFunds
		opp.Reason = types.ReasonInsufficientBase
	case netProfit <= 0:
		opp.Status = types.StatusDiscarded
		opp.Reason = types.ReasonFeesFiltered
	default:
		opp.Status = types.StatusAccepted
		opp.Reason = types.ReasonProfitable
	}
	return opp
}

// decisionLatencyMS is the age of the fresher leg's book at decision time,
// clamped at zero.
func decisionLatencyMS(buyBook, sellBook *types.OrderBook, now time.Time) float64 {
	newest := buyBook.ReceivedTS
	if sellBook.ReceivedTS.After(newest) {
		newest = sellBook.ReceivedTS
	}
	if newest.IsZero() {
		return 0
	}
	ms := float64(now.Sub(newest)) / float64(time.Millisecond)
	if ms < 0 {
		return 0
	}
	return ms
}

// transferCostLocked prices one venue-to-venue transfer of an asset in USD:
// the fixed per-asset on-chain units times the asset's USD price. Assets
// without a units entry fall back to the flat configured cost.
func (e *Engine) transferCostLocked(asset, venue string) float64 {
	units, ok := market.TransferUnits(asset)
	if !ok {
		return e.cfg.TransferCostUSD
	}
	return units * e.usdPriceLocked(asset, venue)
}

// usdPriceLocked derives an asset's USD price from a stable-quoted book on
// the given venue when one is tracked, preferring the mid and degrading to
// whichever side exists. Falls back to the static reference table.
func (e *Engine) usdPriceLocked(asset, venue string) float64 {
	if market.IsStable(asset) {
		return 1.0
	}
	for _, stable := range market.StableQuotes() {
		book := e.books[asset+stable][venue]
		if book == nil {
			continue
		}
		bid, hasBid := book.BestBid()
		ask, hasAsk := book.BestAsk()
		switch {
		case hasBid && hasAsk && bid > 0 && ask > 0:
			return (bid + ask) / 2
		case hasAsk && ask > 0:
			return ask
		case hasBid && bid > 0:
			return bid
		}
	}
	return market.ReferencePrice(asset)
}
