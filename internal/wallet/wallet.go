// Package wallet tracks per-venue asset balances for the execution simulator.
//
// A Ledger holds one Wallet per venue: a quote-asset balance plus a mapping
// from base asset to balance. The Ledger itself is not synchronized; the
// engine mutates it only inside its own critical section, which is the only
// writer. Transfers move balances between venues; the transfer COST is
// charged by the engine against its PnL counters, never against the wallet
// balances themselves.
package wallet

import (
	"math"
	"sort"

	"arbsim/internal/market"
)

// debitTolerance forgives float drift when checking whether a balance can
// cover a debit.
const debitTolerance = 1e-9

// Wallet is one venue's holdings. Serialized to JSON for the state snapshot
// written at shutdown.
type Wallet struct {
	Quote float64            `json:"quote"`
	Base  map[string]float64 `json:"base"`
}

// Ledger is the full inventory: one wallet per venue, sharing a single
// designated quote asset.
type Ledger struct {
	quoteAsset string
	wallets    map[string]*Wallet
}

// NewLedger allocates the initial inventory: every venue receives quoteUSD
// of the quote asset and, for each base asset, quoteUSD worth of units at
// the static reference price.
func NewLedger(quoteAsset string, venues, baseAssets []string, quoteUSD float64) *Ledger {
	l := &Ledger{
		quoteAsset: quoteAsset,
		wallets:    make(map[string]*Wallet, len(venues)),
	}
	for _, v := range venues {
		w := &Wallet{Quote: quoteUSD, Base: make(map[string]float64, len(baseAssets))}
		for _, a := range baseAssets {
			w.Base[a] = quoteUSD / market.ReferencePrice(a)
		}
		l.wallets[v] = w
	}
	return l
}

// QuoteAsset returns the ledger's designated quote asset.
func (l *Ledger) QuoteAsset() string { return l.quoteAsset }

// Venues returns the venue names in sorted order.
func (l *Ledger) Venues() []string {
	out := make([]string, 0, len(l.wallets))
	for v := range l.wallets {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// QuoteBalance returns a venue's quote balance, 0 for unknown venues.
func (l *Ledger) QuoteBalance(venue string) float64 {
	if w, ok := l.wallets[venue]; ok {
		return w.Quote
	}
	return 0
}

// BaseBalance returns a venue's balance of one base asset.
func (l *Ledger) BaseBalance(venue, asset string) float64 {
	if w, ok := l.wallets[venue]; ok {
		return w.Base[asset]
	}
	return 0
}

// EnsureBase guarantees a base-asset entry exists in every wallet,
// allocating usdAlloc worth at the reference price on first sight. Called
// when a symbol change introduces a base asset the ledger has not held yet.
func (l *Ledger) EnsureBase(asset string, usdAlloc float64) {
	for _, w := range l.wallets {
		if _, ok := w.Base[asset]; !ok {
			w.Base[asset] = usdAlloc / market.ReferencePrice(asset)
		}
	}
}

// DebitQuote removes amount from a venue's quote balance. A shortfall
// within the tolerance is forgiven; anything larger fails without mutating.
func (l *Ledger) DebitQuote(venue string, amount float64) bool {
	w, ok := l.wallets[venue]
	if !ok || amount < 0 || w.Quote+debitTolerance < amount {
		return false
	}
	w.Quote = math.Max(0, w.Quote-amount)
	return true
}

// CreditQuote adds amount to a venue's quote balance.
func (l *Ledger) CreditQuote(venue string, amount float64) {
	if w, ok := l.wallets[venue]; ok && amount > 0 {
		w.Quote += amount
	}
}

// DebitBase removes amount of a base asset. Same tolerance rule as
// DebitQuote.
func (l *Ledger) DebitBase(venue, asset string, amount float64) bool {
	w, ok := l.wallets[venue]
	if !ok || amount < 0 || w.Base[asset]+debitTolerance < amount {
		return false
	}
	w.Base[asset] = math.Max(0, w.Base[asset]-amount)
	return true
}

// CreditBase adds amount of a base asset.
func (l *Ledger) CreditBase(venue, asset string, amount float64) {
	if w, ok := l.wallets[venue]; ok && amount > 0 {
		w.Base[asset] += amount
	}
}

// TransferQuote moves quote balance between venues. The move is atomic:
// either both sides mutate or neither does.
func (l *Ledger) TransferQuote(from, to string, amount float64) bool {
	if _, ok := l.wallets[to]; !ok {
		return false
	}
	if !l.DebitQuote(from, amount) {
		return false
	}
	l.CreditQuote(to, amount)
	return true
}

// TransferBase moves base-asset balance between venues.
func (l *Ledger) TransferBase(from, to, asset string, amount float64) bool {
	if _, ok := l.wallets[to]; !ok {
		return false
	}
	if !l.DebitBase(from, asset, amount) {
		return false
	}
	l.CreditBase(to, asset, amount)
	return true
}

// TotalUSD estimates a venue's holdings in USD: quote at par plus each base
// balance at the static reference price.
func (l *Ledger) TotalUSD(venue string) float64 {
	w, ok := l.wallets[venue]
	if !ok {
		return 0
	}
	total := w.Quote
	for asset, bal := range w.Base {
		total += bal * market.ReferencePrice(asset)
	}
	return total
}

// rebalanceTolerance is how close to the mean every quote balance must end
// up before RebalanceQuotes stops.
const rebalanceTolerance = 0.01

// RebalanceQuotes iteratively moves quote balance from the richest venue to
// the poorest until every wallet sits within the tolerance of the mean.
// Returns the number of moves, the total amount moved, and the target
// (mean) per wallet. The caller charges one transfer cost per move.
func (l *Ledger) RebalanceQuotes() (moves int, totalMoved, target float64) {
	venues := l.Venues()
	if len(venues) < 2 {
		return 0, 0, l.meanQuote(venues)
	}
	target = l.meanQuote(venues)

	// Bounded iteration: each pass fully levels either the richest or the
	// poorest wallet, so convergence is quick; the cap guards float drift.
	for i := 0; i < 10*len(venues); i++ {
		rich, poor := l.extremes(venues)
		excess := l.wallets[rich].Quote - target
		deficit := target - l.wallets[poor].Quote
		if excess <= rebalanceTolerance && deficit <= rebalanceTolerance {
			break
		}
		amount := math.Min(excess, deficit)
		if amount <= 0 {
			break
		}
		if !l.TransferQuote(rich, poor, amount) {
			break
		}
		moves++
		totalMoved += amount
	}
	return moves, totalMoved, target
}

func (l *Ledger) meanQuote(venues []string) float64 {
	if len(venues) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range venues {
		sum += l.wallets[v].Quote
	}
	return sum / float64(len(venues))
}

// extremes returns the richest and poorest venues by quote balance; ties
// resolve to the first in sorted venue order so rebalancing is
// deterministic.
func (l *Ledger) extremes(venues []string) (rich, poor string) {
	rich, poor = venues[0], venues[0]
	for _, v := range venues[1:] {
		if l.wallets[v].Quote > l.wallets[rich].Quote {
			rich = v
		}
		if l.wallets[v].Quote < l.wallets[poor].Quote {
			poor = v
		}
	}
	return rich, poor
}

// State returns a deep copy of all wallets, keyed by venue. Used for the
// shutdown snapshot and the engine's inventory view.
func (l *Ledger) State() map[string]*Wallet {
	out := make(map[string]*Wallet, len(l.wallets))
	for v, w := range l.wallets {
		c := &Wallet{Quote: w.Quote, Base: make(map[string]float64, len(w.Base))}
		for a, b := range w.Base {
			c.Base[a] = b
		}
		out[v] = c
	}
	return out
}

// Restore replaces wallet balances from a saved state. Venues present in
// the ledger but absent from the state keep their current balances.
func (l *Ledger) Restore(state map[string]*Wallet) {
	for v, saved := range state {
		w, ok := l.wallets[v]
		if !ok || saved == nil {
			continue
		}
		w.Quote = saved.Quote
		for a, b := range saved.Base {
			w.Base[a] = b
		}
	}
}
