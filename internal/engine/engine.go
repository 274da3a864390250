// Package engine is the single-writer core of the arbitrage simulator.
//
// It wires together all subsystems:
//
//  1. A feed supervisor runs one adapter per enabled venue; every normalized
//     book lands in OnOrderBook.
//  2. Each update replaces the stored book for its (symbol, venue) and
//     re-evaluates every directed venue pair on that symbol.
//  3. Accepted opportunities above the profit threshold are executed against
//     the per-venue wallet ledger when auto-simulation is on.
//  4. Accepted opportunities and simulated trades stream to an optional
//     persistence Submitter; an optional History serves reads once the
//     in-memory rings are empty.
//
// One mutex guards books, ledger, fees, rings and PnL counters. It is held
// for the entire OnOrderBook body, so every pair evaluation sees a
// consistent view. Persistence submission is a non-blocking enqueue.
//
// Lifecycle: New() → Start() → [runs until SIGINT] → Stop()
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"arbsim/internal/config"
	"arbsim/internal/exchange"
	"arbsim/internal/market"
	"arbsim/internal/metrics"
	"arbsim/internal/wallet"
	"arbsim/pkg/types"
)

const (
	// Ring capacities; oldest entries drop on overflow.
	opportunityRingMax = 600
	tradeRingMax       = 300
	metricRingMax      = 600

	// defaultQuotePerVenueUSD seeds every venue wallet: this much quote
	// asset plus this much USD worth of each base asset.
	defaultQuotePerVenueUSD = 2000.0

	// lowFundsQuoteUSD is the display threshold below which a wallet's
	// snapshot status flips to "low_funds".
	lowFundsQuoteUSD = defaultQuotePerVenueUSD / 10

	// defaultListLimit applies when a listing call passes limit <= 0.
	defaultListLimit = 100
)

// Submitter enqueues records for asynchronous persistence. Implementations
// must not block; the return value reports whether the event was queued.
type Submitter interface {
	SubmitOpportunity(opp types.Opportunity) bool
	SubmitTrade(trade types.SimulatedTrade) bool
}

// History reads back persisted records. The engine falls back to it when a
// listing call finds the in-memory ring empty.
type History interface {
	ListOpportunities(ctx context.Context, limit int, symbols []string) ([]types.Opportunity, error)
	ListTrades(ctx context.Context, limit int, symbols []string) ([]types.SimulatedTrade, error)
}

// Engine owns all simulator state and the feed supervisor. All exported
// methods are safe for concurrent use.
type Engine struct {
	cfg       config.Config
	logger    *slog.Logger
	submitter Submitter
	history   History
	sup       *exchange.Supervisor

	mu sync.Mutex

	// Everything below is guarded by mu.
	symbol     string
	symbols    []string
	baseAsset  string
	quoteAsset string

	// books holds the latest normalized book per symbol, then per venue.
	books  map[string]map[string]*types.OrderBook
	ledger *wallet.Ledger

	// fees and enabled are keyed by lowercased venue name and cover every
	// configured feed, active or not.
	fees    map[string]float64
	enabled map[string]bool

	simVolumeUSD float64
	balanceUSD   float64
	totalPnLUSD  float64

	opportunities ring[types.Opportunity]
	trades        ring[types.SimulatedTrade]
	metricsLog    ring[types.MetricPoint]

	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New wires the engine and its feed supervisor from configuration. Either of
// submitter and history may be nil, which disables that path.
func New(cfg config.Config, submitter Submitter, history History, logger *slog.Logger) *Engine {
	symbol := strings.ToUpper(strings.TrimSpace(cfg.Symbol))

	fees := make(map[string]float64, len(cfg.Feeds))
	enabled := make(map[string]bool, len(cfg.Feeds))
	venues := make([]string, 0, len(cfg.Feeds))
	for _, f := range cfg.Feeds {
		name := strings.ToLower(strings.TrimSpace(f.Name))
		if name == "" {
			continue
		}
		fees[name] = f.Fee
		enabled[name] = f.IsEnabled()
		venues = append(venues, name)
	}

	symbols := uniqueSymbols(symbol, cfg.Symbols)
	bases := make([]string, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		base, _ := market.SplitSymbol(s)
		if !seen[base] {
			seen[base] = true
			bases = append(bases, base)
		}
	}
	base, quote := market.SplitSymbol(symbol)

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		cfg:           cfg,
		logger:        logger.With("component", "engine"),
		submitter:     submitter,
		history:       history,
		symbol:        symbol,
		symbols:       symbols,
		baseAsset:     base,
		quoteAsset:    quote,
		books:         make(map[string]map[string]*types.OrderBook),
		ledger:        wallet.NewLedger(quote, venues, bases, defaultQuotePerVenueUSD),
		fees:          fees,
		enabled:       enabled,
		balanceUSD:    cfg.StartingBalanceUSD,
		opportunities: newRing[types.Opportunity](opportunityRingMax),
		trades:        newRing[types.SimulatedTrade](tradeRingMax),
		metricsLog:    newRing[types.MetricPoint](metricRingMax),
		ctx:           ctx,
		cancel:        cancel,
	}
	e.sup = exchange.NewSupervisor(cfg.Feeds, e.OnOrderBook, logger)

	metrics.SetBalanceUSD(e.balanceUSD)
	metrics.SetTotalPnLUSD(e.totalPnLUSD)
	return e
}

// Start launches the feed adapters for the configured symbol.
func (e *Engine) Start() {
	e.mu.Lock()
	e.started = true
	symbol := e.symbol
	active := e.activeFeedsLocked()
	e.mu.Unlock()

	e.sup.Start(e.ctx, symbol, active)
	e.logger.Info("engine started", "symbol", symbol, "feeds", len(active))
}

// Stop terminates the feed adapters and releases the engine context. State
// export is the caller's responsibility before process exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.started = false
	e.mu.Unlock()

	e.sup.Stop()
	e.cancel()
	e.logger.Info("engine stopped")
}

// ————————————————————————————————————————————————————————————————————————
// Book ingestion and evaluation
// ————————————————————————————————————————————————————————————————————————

// OnOrderBook accepts one normalized book from a feed adapter, replaces the
// stored state for its (symbol, venue) and evaluates every directed pair on
// that symbol. Safe to call from any goroutine.
func (e *Engine) OnOrderBook(book *types.OrderBook) {
	if book == nil {
		return
	}
	venue := strings.ToLower(strings.TrimSpace(book.Exchange))
	symbol := strings.ToUpper(strings.TrimSpace(book.Symbol))
	if venue == "" || symbol == "" {
		return
	}
	metrics.BookReceived(venue)

	e.mu.Lock()
	defer e.mu.Unlock()

	// A freshly-disabled venue's adapter may still have a book in flight.
	if !e.enabled[venue] {
		return
	}

	clone := book.Clone()
	clone.Exchange = venue
	clone.Symbol = symbol
	if clone.ReceivedTS.IsZero() {
		clone.ReceivedTS = time.Now()
	}
	byVenue := e.books[symbol]
	if byVenue == nil {
		byVenue = make(map[string]*types.OrderBook)
		e.books[symbol] = byVenue
	}
	byVenue[venue] = clone

	base, _ := market.SplitSymbol(symbol)
	e.ledger.EnsureBase(base, defaultQuotePerVenueUSD)

	e.evaluateSymbolLocked(symbol, venue, time.Now())
}

// evaluateSymbolLocked walks every directed venue pair for one symbol in
// deterministic (sorted) order, recording each outcome and simulating
// qualifying accepted ones.
func (e *Engine) evaluateSymbolLocked(symbol, trigger string, now time.Time) {
	byVenue := e.books[symbol]
	if len(byVenue) < 2 {
		return
	}
	venues := sortedKeys(byVenue)

	for _, buy := range venues {
		for _, sell := range venues {
			if buy == sell {
				continue
			}
			opp := e.evaluatePair(byVenue[buy], byVenue[sell], e.simVolumeUSD, now)
			e.opportunities.push(opp)
			metrics.ObserveOpportunity(string(opp.Status))
			e.metricsLog.push(types.MetricPoint{
				Timestamp:         opp.Timestamp,
				SpreadGrossPct:    opp.GrossSpreadPct,
				SpreadNetPct:      opp.NetSpreadPct,
				ExpectedProfitUSD: opp.ExpectedProfitUSD,
				Status:            string(opp.Status),
				Reason:            opp.Reason,
				Pair:              buy + "->" + sell,
				TriggerExchange:   trigger,
				LatencyMS:         opp.LatencyMS,
			})
			if opp.Status != types.StatusAccepted {
				continue
			}
			if e.submitter != nil {
				e.submitter.SubmitOpportunity(opp)
			}
			if e.cfg.AutoSimulateExecution && opp.ExpectedProfitUSD >= e.cfg.OpportunityThresholdUSD {
				e.simulateLocked(opp, byVenue[buy], byVenue[sell])
			}
		}
	}
}

// simulateLocked executes an accepted opportunity against the ledger: top up
// shortfalls by transferring between venues, move quote and base through
// both wallets, consume the reserved depth, and record the trade. Abandons
// silently when inventory stays insufficient after the transfer attempts.
func (e *Engine) simulateLocked(opp types.Opportunity, buyBook, sellBook *types.OrderBook) {
	size := opp.TradeSize
	base, _ := market.SplitSymbol(opp.Symbol)
	buyCost := opp.BuyVWAP * size * (1 + e.fees[opp.BuyExchange])
	sellValue := opp.SellVWAP * size * (1 - e.fees[opp.SellExchange])

	if e.ledger.QuoteBalance(opp.BuyExchange)+fundsTolerance < buyCost {
		shortfall := buyCost - e.ledger.QuoteBalance(opp.BuyExchange)
		if e.ledger.TransferQuote(opp.SellExchange, opp.BuyExchange, shortfall) {
			e.chargeTransferLocked(e.ledger.QuoteAsset(), opp.BuyExchange)
		}
		if e.ledger.QuoteBalance(opp.BuyExchange)+fundsTolerance < buyCost {
			return
		}
	}
	if e.ledger.BaseBalance(opp.SellExchange, base)+fundsTolerance < size {
		shortfall := size - e.ledger.BaseBalance(opp.SellExchange, base)
		if e.ledger.TransferBase(opp.BuyExchange, opp.SellExchange, base, shortfall) {
			e.chargeTransferLocked(base, opp.BuyExchange)
		}
		if e.ledger.BaseBalance(opp.SellExchange, base)+fundsTolerance < size {
			return
		}
	}

	if !e.ledger.DebitQuote(opp.BuyExchange, buyCost) {
		return
	}
	if !e.ledger.DebitBase(opp.SellExchange, base, size) {
		e.ledger.CreditQuote(opp.BuyExchange, buyCost)
		return
	}
	e.ledger.CreditBase(opp.BuyExchange, base, size)
	e.ledger.CreditQuote(opp.SellExchange, sellValue)

	buyBook.Asks = market.Reserve(buyBook.Asks, size)
	sellBook.Bids = market.Reserve(sellBook.Bids, size)

	e.totalPnLUSD += opp.ExpectedProfitUSD
	e.balanceUSD += opp.ExpectedProfitUSD
	metrics.SetTotalPnLUSD(e.totalPnLUSD)
	metrics.SetBalanceUSD(e.balanceUSD)

	trade := types.SimulatedTrade{
		ID:           uuid.NewString(),
		Timestamp:    opp.Timestamp,
		Symbol:       opp.Symbol,
		BuyExchange:  opp.BuyExchange,
		SellExchange: opp.SellExchange,
		Size:         size,
		PnLUSD:       opp.ExpectedProfitUSD,
		LatencyMS:    opp.LatencyMS,
	}
	e.trades.push(trade)
	metrics.ObserveTrade()
	if e.submitter != nil {
		e.submitter.SubmitTrade(trade)
	}

	e.logger.Info("trade simulated",
		"symbol", opp.Symbol,
		"buy", opp.BuyExchange,
		"sell", opp.SellExchange,
		"size", size,
		"pnl_usd", opp.ExpectedProfitUSD)
}

// chargeTransferLocked books the USD cost of one executed transfer against
// both PnL counters. Wallet balances are never touched by the cost itself.
func (e *Engine) chargeTransferLocked(asset, venue string) {
	cost := e.transferCostLocked(asset, venue)
	e.totalPnLUSD -= cost
	e.balanceUSD -= cost
	metrics.SetTotalPnLUSD(e.totalPnLUSD)
	metrics.SetBalanceUSD(e.balanceUSD)
}

// ————————————————————————————————————————————————————————————————————————
// Read surface
// ————————————————————————————————————————————————————————————————————————

// Snapshot returns the engine's point-in-time view for the façade.
func (e *Engine) Snapshot() types.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := types.Snapshot{
		Timestamp:           time.Now().UTC(),
		Symbol:              e.symbol,
		Symbols:             append([]string(nil), e.symbols...),
		TradeSize:           e.cfg.TradeSize,
		SimulationVolumeUSD: e.simVolumeUSD,
		BalanceUSD:          e.balanceUSD,
		TotalPnLUSD:         e.totalPnLUSD,
		ActiveExchanges:     sortedKeys(e.books[e.symbol]),
		ExchangeStates:      make([]types.ExchangeState, 0, len(e.enabled)),
		BaseAsset:           e.baseAsset,
		QuoteAsset:          e.quoteAsset,
		Inventory:           make([]types.WalletView, 0, len(e.fees)),
	}
	for _, name := range sortedKeys(e.enabled) {
		snap.ExchangeStates = append(snap.ExchangeStates, types.ExchangeState{
			Exchange: name,
			Enabled:  e.enabled[name],
		})
	}
	for _, venue := range e.ledger.Venues() {
		quote := e.ledger.QuoteBalance(venue)
		status := "ok"
		if quote < lowFundsQuoteUSD {
			status = "low_funds"
		}
		snap.Inventory = append(snap.Inventory, types.WalletView{
			Exchange:     venue,
			BaseBalance:  e.ledger.BaseBalance(venue, e.baseAsset),
			QuoteBalance: quote,
			TotalUSD:     e.ledger.TotalUSD(venue),
			Status:       status,
			Enabled:      e.enabled[venue],
		})
	}
	if last, ok := e.opportunities.last(); ok {
		snap.LatestOpportunity = &last
	}
	return snap
}

// ListOpportunities returns up to limit recent records, oldest first,
// filtered by the symbol set when one is given. simVolumeUSD > 0 instead
// synthesizes fresh evaluations of the current books at that USD notional,
// touching neither rings nor persistence. An empty ring falls back to the
// History store; store errors degrade to an empty list.
func (e *Engine) ListOpportunities(ctx context.Context, limit int, symbols []string, simVolumeUSD float64) []types.Opportunity {
	if limit <= 0 {
		limit = defaultListLimit
	}
	filter := newSymbolFilter(symbols)

	e.mu.Lock()
	if simVolumeUSD > 0 {
		out := e.synthesizeLocked(limit, filter, simVolumeUSD)
		e.mu.Unlock()
		return out
	}
	empty := e.opportunities.len() == 0
	items := filterTail(e.opportunities.all(), limit, func(o types.Opportunity) bool {
		return filter.match(o.Symbol)
	})
	e.mu.Unlock()

	if empty && e.history != nil {
		rows, err := e.history.ListOpportunities(ctx, limit, symbols)
		if err != nil {
			e.logger.Warn("opportunity history read failed", "error", err)
			return []types.Opportunity{}
		}
		return rows
	}
	return items
}

// ListTrades returns up to limit recent simulated trades, oldest first, with
// the same ring-then-history semantics as ListOpportunities.
func (e *Engine) ListTrades(ctx context.Context, limit int, symbols []string) []types.SimulatedTrade {
	if limit <= 0 {
		limit = defaultListLimit
	}
	filter := newSymbolFilter(symbols)

	e.mu.Lock()
	empty := e.trades.len() == 0
	items := filterTail(e.trades.all(), limit, func(t types.SimulatedTrade) bool {
		return filter.match(t.Symbol)
	})
	e.mu.Unlock()

	if empty && e.history != nil {
		rows, err := e.history.ListTrades(ctx, limit, symbols)
		if err != nil {
			e.logger.Warn("trade history read failed", "error", err)
			return []types.SimulatedTrade{}
		}
		return rows
	}
	return items
}

// synthesizeLocked re-evaluates every tracked pair at the given USD notional
// and returns the newest limit results. Purely speculative: no ring append,
// no persistence, no simulation.
func (e *Engine) synthesizeLocked(limit int, filter symbolFilter, simVolumeUSD float64) []types.Opportunity {
	now := time.Now()
	out := make([]types.Opportunity, 0, limit)
	for _, symbol := range sortedKeys(e.books) {
		if !filter.match(symbol) {
			continue
		}
		byVenue := e.books[symbol]
		venues := sortedKeys(byVenue)
		for _, buy := range venues {
			for _, sell := range venues {
				if buy == sell {
					continue
				}
				out = append(out, e.evaluatePair(byVenue[buy], byVenue[sell], simVolumeUSD, now))
			}
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// SpreadSeries returns the newest limit metric samples, oldest first.
// limit <= 0 returns the whole ring.
func (e *Engine) SpreadSeries(limit int) []types.MetricPoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metricsLog.tail(limit)
}

// ————————————————————————————————————————————————————————————————————————
// Control surface
// ————————————————————————————————————————————————————————————————————————

// SetSimulationVolumeUSD sets the USD-notional sizing override. v <= 0
// clears it and evaluation returns to the configured trade size.
func (e *Engine) SetSimulationVolumeUSD(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v <= 0 {
		v = 0
	}
	e.simVolumeUSD = v
}

// SetSymbol switches the traded symbol: feeds stop, books and the spread
// series reset, feeds restart against the new symbol. Inventory is retained;
// the new base asset is allocated on first sight.
func (e *Engine) SetSymbol(symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return fmt.Errorf("symbol is required")
	}

	e.mu.Lock()
	same := symbol == e.symbol
	e.mu.Unlock()
	if same {
		return nil
	}

	// Never hold the mutex across Stop: adapters may be blocked in
	// OnOrderBook waiting for it.
	e.sup.Stop()

	e.mu.Lock()
	e.symbol = symbol
	e.symbols = uniqueSymbols(symbol, e.cfg.Symbols)
	e.baseAsset, e.quoteAsset = market.SplitSymbol(symbol)
	e.books = make(map[string]map[string]*types.OrderBook)
	e.metricsLog.clear()
	e.ledger.EnsureBase(e.baseAsset, defaultQuotePerVenueUSD)
	started := e.started
	active := e.activeFeedsLocked()
	e.mu.Unlock()

	if started {
		e.sup.Start(e.ctx, symbol, active)
	}
	e.logger.Info("symbol changed", "symbol", symbol)
	return nil
}

// SetExchangeEnabled toggles one venue. Disabling drops its books across all
// symbols and stops its adapter; enabling starts one. Returns false for a
// venue that is not configured.
func (e *Engine) SetExchangeEnabled(venue string, enable bool) bool {
	venue = strings.ToLower(strings.TrimSpace(venue))

	e.mu.Lock()
	if _, ok := e.enabled[venue]; !ok {
		e.mu.Unlock()
		return false
	}
	e.mu.Unlock()

	e.sup.Stop()

	e.mu.Lock()
	e.enabled[venue] = enable
	if !enable {
		for _, byVenue := range e.books {
			delete(byVenue, venue)
		}
	}
	symbol := e.symbol
	started := e.started
	active := e.activeFeedsLocked()
	e.mu.Unlock()

	if started {
		e.sup.Start(e.ctx, symbol, active)
	}
	e.logger.Info("exchange toggled", "exchange", venue, "enabled", enable)
	return true
}

// RebalanceQuotes levels the quote balances across venues, charging one
// quote-asset transfer cost per move against the PnL counters.
func (e *Engine) RebalanceQuotes() types.RebalanceReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	moves, moved, target := e.ledger.RebalanceQuotes()
	if moves > 0 {
		cost := e.transferCostLocked(e.ledger.QuoteAsset(), "") * float64(moves)
		e.totalPnLUSD -= cost
		e.balanceUSD -= cost
		metrics.SetTotalPnLUSD(e.totalPnLUSD)
		metrics.SetBalanceUSD(e.balanceUSD)
	}
	e.logger.Info("quotes rebalanced", "moves", moves, "total_moved_usd", moved)

	return types.RebalanceReport{
		Moves:           moves,
		TotalMovedUSD:   moved,
		TargetPerWallet: target,
	}
}

// ————————————————————————————————————————————————————————————————————————
// Helpers
// ————————————————————————————————————————————————————————————————————————

// activeFeedsLocked lists the lowercased names of enabled feeds in
// configuration order, for the supervisor.
func (e *Engine) activeFeedsLocked() []string {
	out := make([]string, 0, len(e.cfg.Feeds))
	for _, f := range e.cfg.Feeds {
		name := strings.ToLower(strings.TrimSpace(f.Name))
		if e.enabled[name] {
			out = append(out, name)
		}
	}
	return out
}

func uniqueSymbols(primary string, watch []string) []string {
	seen := map[string]bool{primary: true}
	out := []string{primary}
	for _, s := range watch {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

type symbolFilter map[string]bool

func newSymbolFilter(symbols []string) symbolFilter {
	if len(symbols) == 0 {
		return nil
	}
	f := make(symbolFilter, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			f[s] = true
		}
	}
	return f
}

// match reports whether a symbol passes the filter; a nil filter passes
// everything.
func (f symbolFilter) match(symbol string) bool {
	return len(f) == 0 || f[symbol]
}

// filterTail collects the newest limit entries matching the predicate,
// returned oldest first.
func filterTail[T any](items []T, limit int, match func(T) bool) []T {
	out := make([]T, 0, limit)
	for i := len(items) - 1; i >= 0 && len(out) < limit; i-- {
		if match(items[i]) {
			out = append(out, items[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
