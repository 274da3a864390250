// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the simulator: normalized order
// books, opportunity and trade records, metric samples, and the dashboard
// WebSocket payloads. It has no dependencies on internal packages, so it can
// be imported by any layer.
package types

import (
	"time"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// OpportunityStatus classifies one evaluation of a directed venue pair.
type OpportunityStatus string

const (
	StatusAccepted              OpportunityStatus = "accepted"
	StatusDiscarded             OpportunityStatus = "discarded"
	StatusNoFunds               OpportunityStatus = "no_funds"
	StatusInsufficientLiquidity OpportunityStatus = "insufficient_liquidity"
)

// Reason codes attached to an opportunity alongside its status. Closed set;
// free-form detail belongs in logs, not in the record.
const (
	ReasonProfitable        = "profitable"
	ReasonFeesFiltered      = "fees_and_transfer_filtered"
	ReasonInvalidTradeSize  = "invalid_trade_size"
	ReasonInsufficientDepth = "insufficient_depth"
	ReasonInsufficientQuote = "insufficient_quote_balance"
	ReasonInsufficientBase  = "insufficient_base_balance"
)

// FeedKind selects the adapter implementation for a configured feed.
type FeedKind string

const (
	FeedBinanceWS    FeedKind = "binance_ws"
	FeedKrakenWS     FeedKind = "kraken_ws"
	FeedBybitWS      FeedKind = "bybit_ws"
	FeedUpholdTicker FeedKind = "uphold_ticker"
	FeedSimulated    FeedKind = "simulated"
)

// ————————————————————————————————————————————————————————————————————————
// Order book
// ————————————————————————————————————————————————————————————————————————

// Level is a single bid or ask entry. Quantity is always positive in a
// retained book; adapters drop zero-quantity levels before emitting.
type Level struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBook is the normalized depth snapshot one adapter emits per update.
// Bids are sorted descending by price, asks ascending. ExchangeTS carries the
// venue-reported event time when the payload includes one, else the local
// receive time; ReceivedTS is always the local clock at normalization.
type OrderBook struct {
	Exchange   string    `json:"exchange"`
	Symbol     string    `json:"symbol"`
	Bids       []Level   `json:"bids"`
	Asks       []Level   `json:"asks"`
	ExchangeTS time.Time `json:"exchange_timestamp"`
	ReceivedTS time.Time `json:"received_timestamp"`
}

// BestBid returns the top bid price, or false when the side is empty.
func (b *OrderBook) BestBid() (float64, bool) {
	if len(b.Bids) == 0 {
		return 0, false
	}
	return b.Bids[0].Price, true
}

// BestAsk returns the top ask price, or false when the side is empty.
func (b *OrderBook) BestAsk() (float64, bool) {
	if len(b.Asks) == 0 {
		return 0, false
	}
	return b.Asks[0].Price, true
}

// Clone returns a deep copy. The simulator reserves depth against its own
// working copy; upstream consumers must never see those mutations.
func (b *OrderBook) Clone() *OrderBook {
	c := *b
	c.Bids = append([]Level(nil), b.Bids...)
	c.Asks = append([]Level(nil), b.Asks...)
	return &c
}

// ————————————————————————————————————————————————————————————————————————
// Evaluation records
// ————————————————————————————————————————————————————————————————————————

// Opportunity is the immutable record of one directed-pair evaluation.
// Accepted opportunities are forwarded to persistence; every outcome lands
// in the in-memory ring regardless of status.
type Opportunity struct {
	ID                string            `json:"id"`
	Timestamp         time.Time         `json:"timestamp"`
	Status            OpportunityStatus `json:"status"`
	Reason            string            `json:"reason"`
	Symbol            string            `json:"symbol"`
	BuyExchange       string            `json:"buy_exchange"`
	SellExchange      string            `json:"sell_exchange"`
	TradeSize         float64           `json:"trade_size"`
	GrossSpreadPct    float64           `json:"gross_spread_pct"`
	NetSpreadPct      float64           `json:"net_spread_pct"`
	ExpectedProfitUSD float64           `json:"expected_profit_usd"`
	LatencyMS         float64           `json:"latency_ms"`
	BuyVWAP           float64           `json:"buy_vwap"`
	SellVWAP          float64           `json:"sell_vwap"`
	BuyBookUpdatedAt  time.Time         `json:"buy_book_updated_at"`
	SellBookUpdatedAt time.Time         `json:"sell_book_updated_at"`
}

// SimulatedTrade records one simulated execution of an accepted opportunity.
type SimulatedTrade struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Symbol       string    `json:"symbol"`
	BuyExchange  string    `json:"buy_exchange"`
	SellExchange string    `json:"sell_exchange"`
	Size         float64   `json:"size"`
	PnLUSD       float64   `json:"pnl_usd"`
	LatencyMS    float64   `json:"latency_ms"`
}

// MetricPoint is one sample of the spread time series, emitted per
// evaluation for dashboard charting.
type MetricPoint struct {
	Timestamp         time.Time `json:"timestamp"`
	SpreadGrossPct    float64   `json:"spread_gross_pct"`
	SpreadNetPct      float64   `json:"spread_net_pct"`
	ExpectedProfitUSD float64   `json:"expected_profit_usd"`
	Status            string    `json:"status"`
	Reason            string    `json:"reason"`
	Pair              string    `json:"pair"` // "buy->sell"
	TriggerExchange   string    `json:"trigger_exchange"`
	LatencyMS         float64   `json:"latency_ms"`
}

// ————————————————————————————————————————————————————————————————————————
// Snapshot and control payloads
// ————————————————————————————————————————————————————————————————————————

// ExchangeState reports whether a configured feed is currently enabled.
type ExchangeState struct {
	Exchange string `json:"exchange"`
	Enabled  bool   `json:"enabled"`
}

// WalletView is the snapshot projection of one venue's inventory. Status is
// a display hint: "ok", or "low_funds" when the quote balance has fallen
// below a tenth of its initial allocation.
type WalletView struct {
	Exchange     string  `json:"exchange"`
	BaseBalance  float64 `json:"base_balance"`
	QuoteBalance float64 `json:"quote_balance"`
	TotalUSD     float64 `json:"total_usd"`
	Status       string  `json:"status"`
	Enabled      bool    `json:"enabled"`
}

// Snapshot is the engine's point-in-time view served over HTTP and pushed
// to dashboard WebSocket clients.
type Snapshot struct {
	Timestamp           time.Time       `json:"timestamp"`
	Symbol              string          `json:"symbol"`
	Symbols             []string        `json:"symbols,omitempty"`
	TradeSize           float64         `json:"trade_size"`
	SimulationVolumeUSD float64         `json:"simulation_volume_usd"`
	BalanceUSD          float64         `json:"balance_usd"`
	TotalPnLUSD         float64         `json:"total_pnl_usd"`
	ActiveExchanges     []string        `json:"active_exchanges"`
	ExchangeStates      []ExchangeState `json:"exchange_states"`
	BaseAsset           string          `json:"base_asset"`
	QuoteAsset          string          `json:"quote_asset"`
	Inventory           []WalletView    `json:"exchange_inventory"`
	LatestOpportunity   *Opportunity    `json:"latest_opportunity"`
}

// RebalanceReport summarizes one rebalance_quotes run.
type RebalanceReport struct {
	Moves           int     `json:"moves"`
	TotalMovedUSD   float64 `json:"total_moved_usd"`
	TargetPerWallet float64 `json:"target_per_wallet"`
}

// ————————————————————————————————————————————————————————————————————————
// Dashboard WebSocket events
// ————————————————————————————————————————————————————————————————————————

// DashboardEvent is the envelope pushed to dashboard WebSocket clients once
// per second by the broadcaster.
type DashboardEvent struct {
	Type         string        `json:"type"` // "arbitrage_snapshot"
	Snapshot     *Snapshot     `json:"snapshot"`
	SpreadSeries []MetricPoint `json:"spread_series"`
}

// EventArbitrageSnapshot is the only event type the broadcaster emits today.
const EventArbitrageSnapshot = "arbitrage_snapshot"
