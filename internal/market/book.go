// Package market provides order-book mathematics and symbol conventions.
//
// The functions here are pure: VWAP walks over one side of a book, depth
// reservation for the execution simulator, and the split/pricing tables the
// engine uses to derive base assets, reference prices, and per-asset
// transfer units. Book state itself lives in the engine, which keeps the
// latest normalized book per (symbol, venue) under its own mutex.
package market

import (
	"arbsim/pkg/types"
)

// VWAPBuy walks asks (ascending) consuming up to quantity and returns the
// volume-weighted average price together with the quantity actually filled.
// A partial fill returns filled < quantity; an empty side returns (0, 0).
func VWAPBuy(asks []types.Level, quantity float64) (avg, filled float64) {
	return walk(asks, quantity)
}

// VWAPSell walks bids (descending) consuming up to quantity. Same contract
// as VWAPBuy.
func VWAPSell(bids []types.Level, quantity float64) (avg, filled float64) {
	return walk(bids, quantity)
}

func walk(levels []types.Level, quantity float64) (avg, filled float64) {
	remaining := quantity
	total := 0.0
	for _, lvl := range levels {
		if remaining <= 0 {
			break
		}
		take := lvl.Quantity
		if take > remaining {
			take = remaining
		}
		if take <= 0 {
			continue
		}
		total += lvl.Price * take
		remaining -= take
		filled += take
	}
	if filled <= 0 {
		return 0, 0
	}
	return total / filled, filled
}

// Reserve consumes quantity from the front of a side and returns the
// remaining levels with exhausted entries dropped. Only the simulator calls
// this, always against a working copy of the book.
func Reserve(levels []types.Level, quantity float64) []types.Level {
	remaining := quantity
	out := levels[:0]
	for _, lvl := range levels {
		if remaining > 0 && lvl.Quantity > 0 {
			consume := lvl.Quantity
			if consume > remaining {
				consume = remaining
			}
			lvl.Quantity -= consume
			remaining -= consume
		}
		if lvl.Quantity > 0 {
			out = append(out, lvl)
		}
	}
	return out
}

// DepthAvailable sums the quantity across all levels of one side.
func DepthAvailable(levels []types.Level) float64 {
	total := 0.0
	for _, lvl := range levels {
		if lvl.Quantity > 0 {
			total += lvl.Quantity
		}
	}
	return total
}

// TruncateLevels caps a side to its top n levels. Adapters call this before
// emitting so downstream consumers never see more than the agreed depth.
func TruncateLevels(levels []types.Level, n int) []types.Level {
	if n <= 0 || len(levels) <= n {
		return levels
	}
	return levels[:n]
}

// IsCrossed reports whether a bid/ask pair is unusable: missing, negative,
// or bid at-or-above ask. The polled ticker adapter drops such samples.
func IsCrossed(bid, ask float64) bool {
	if bid <= 0 || ask <= 0 {
		return true
	}
	return bid >= ask
}
