// levels.go holds the shared helpers for turning venue depth payloads into
// normalized, sorted book sides.
package exchange

import (
	"sort"

	"arbsim/internal/market"
	"arbsim/pkg/types"
)

// bookDepthLevels caps every emitted side. Venues that stream more depth are
// truncated so downstream math sees a uniform view.
const bookDepthLevels = 20

// parseLevels converts [price, quantity] string pairs into levels, dropping
// malformed entries and zero quantities.
func parseLevels(raw [][]string) []types.Level {
	levels := make([]types.Level, 0, len(raw))
	for _, entry := range raw {
		if len(entry) < 2 {
			continue
		}
		price, err := market.ParsePrice(entry[0])
		if err != nil {
			continue
		}
		qty, err := market.ParsePrice(entry[1])
		if err != nil || qty <= 0 {
			continue
		}
		levels = append(levels, types.Level{Price: price, Quantity: qty})
	}
	return levels
}

// applyDeltas merges [price, quantity] string pairs into a price-keyed side.
// Zero quantity removes the level, the incremental-book convention shared by
// the venues we stream deltas from.
func applyDeltas(side map[float64]float64, raw [][]string) {
	for _, entry := range raw {
		if len(entry) < 2 {
			continue
		}
		price, err := market.ParsePrice(entry[0])
		if err != nil {
			continue
		}
		qty, err := market.ParsePrice(entry[1])
		if err != nil {
			continue
		}
		if qty <= 0 {
			delete(side, price)
			continue
		}
		side[price] = qty
	}
}

// assembleSide flattens a side map into sorted levels, descending for bids.
func assembleSide(side map[float64]float64, descending bool) []types.Level {
	levels := make([]types.Level, 0, len(side))
	for price, qty := range side {
		levels = append(levels, types.Level{Price: price, Quantity: qty})
	}
	sort.Slice(levels, func(i, j int) bool {
		if descending {
			return levels[i].Price > levels[j].Price
		}
		return levels[i].Price < levels[j].Price
	})
	return levels
}
