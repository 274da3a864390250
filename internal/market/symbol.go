package market

import (
	"strings"

	"github.com/shopspring/decimal"
)

// knownQuotes are the recognized quote suffixes, longest first so that
// SplitSymbol always prefers the longest match (USDT over USD, and so on).
var knownQuotes = []string{
	"USDT", "USDC", "LINK", "AVAX",
	"USD", "EUR", "BTC", "ETH", "SOL", "BNB", "ADA", "XRP", "DOT",
}

// stableQuotes are the quote assets treated as USD-equivalent when deriving
// an in-book USD price for transfer costing.
var stableQuotes = []string{"USDT", "USDC", "USD", "EUR"}

// referencePrices is the static fallback table for USD pricing when no
// stable-quoted book is available for an asset. Product-policy constants.
var referencePrices = map[string]float64{
	"BTC":  72000.0,
	"ETH":  3000.0,
	"SOL":  180.0,
	"BNB":  600.0,
	"ADA":  0.8,
	"XRP":  0.6,
	"DOT":  7.0,
	"LINK": 18.0,
	"AVAX": 35.0,
	"USDT": 1.0,
	"USDC": 1.0,
	"USD":  1.0,
	"EUR":  1.0,
}

// transferUnits maps an asset to the fixed on-chain quantity one
// venue-to-venue transfer consumes. Assets outside this table fall back to
// the flat configured transfer cost.
var transferUnits = map[string]float64{
	"BTC":  0.0004,
	"ETH":  0.003,
	"USDT": 1.0,
	"USDC": 1.0,
	"USD":  1.0,
	"EUR":  1.0,
}

// SplitSymbol divides an exchange symbol into base and quote by the longest
// recognized quote suffix. Unparseable symbols degrade to ("BASE", "USDT")
// so simulation can proceed with neutral defaults.
func SplitSymbol(symbol string) (base, quote string) {
	value := strings.ToUpper(strings.TrimSpace(symbol))
	for _, q := range knownQuotes {
		if strings.HasSuffix(value, q) && len(value) > len(q) {
			return value[:len(value)-len(q)], q
		}
	}
	return "BASE", "USDT"
}

// StableQuotes returns the USD-equivalent quote assets in preference order.
func StableQuotes() []string {
	return stableQuotes
}

// IsStable reports whether an asset is treated as USD-equivalent.
func IsStable(asset string) bool {
	for _, s := range stableQuotes {
		if asset == s {
			return true
		}
	}
	return false
}

// ReferencePrice returns the static USD price for an asset, 1.0 when the
// asset is unknown.
func ReferencePrice(asset string) float64 {
	if p, ok := referencePrices[strings.ToUpper(asset)]; ok {
		return p
	}
	return 1.0
}

// TransferUnits returns the fixed on-chain units one transfer of the asset
// consumes, and whether the asset has an entry at all.
func TransferUnits(asset string) (float64, bool) {
	u, ok := transferUnits[strings.ToUpper(asset)]
	return u, ok
}

// ParsePrice converts a venue price string to a float64, rejecting empty or
// malformed values. Decimal parsing keeps venue payloads with exotic
// exponents or trailing zeros from silently truncating.
func ParsePrice(s string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}
