package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestOrderBookBestBidAsk(t *testing.T) {
	t.Parallel()

	book := &OrderBook{
		Bids: []Level{{Price: 100.5, Quantity: 2}, {Price: 100.0, Quantity: 1}},
		Asks: []Level{{Price: 101.0, Quantity: 3}},
	}

	if bid, ok := book.BestBid(); !ok || bid != 100.5 {
		t.Errorf("BestBid() = %v, %v, want 100.5, true", bid, ok)
	}
	if ask, ok := book.BestAsk(); !ok || ask != 101.0 {
		t.Errorf("BestAsk() = %v, %v, want 101.0, true", ask, ok)
	}

	empty := &OrderBook{}
	if _, ok := empty.BestBid(); ok {
		t.Error("BestBid() on empty book should report !ok")
	}
	if _, ok := empty.BestAsk(); ok {
		t.Error("BestAsk() on empty book should report !ok")
	}
}

func TestOrderBookCloneIsIndependent(t *testing.T) {
	t.Parallel()

	orig := &OrderBook{
		Exchange: "binance",
		Symbol:   "BTCUSDT",
		Bids:     []Level{{Price: 100, Quantity: 1}},
		Asks:     []Level{{Price: 101, Quantity: 1}},
	}

	clone := orig.Clone()
	clone.Bids[0].Quantity = 99
	clone.Asks = clone.Asks[:0]

	if orig.Bids[0].Quantity != 1 {
		t.Errorf("mutating clone changed original bid quantity: %v", orig.Bids[0].Quantity)
	}
	if len(orig.Asks) != 1 {
		t.Errorf("mutating clone changed original asks: %d levels", len(orig.Asks))
	}
}

func TestOpportunityJSONRoundTrip(t *testing.T) {
	t.Parallel()

	opp := Opportunity{
		ID:                "abc123",
		Timestamp:         time.Date(2025, 6, 1, 12, 30, 0, 500000000, time.UTC),
		Status:            StatusAccepted,
		Reason:            ReasonProfitable,
		Symbol:            "BTCUSDT",
		BuyExchange:       "binance",
		SellExchange:      "kraken",
		TradeSize:         0.05,
		GrossSpreadPct:    1.0,
		NetSpreadPct:      0.79,
		ExpectedProfitUSD: 0.799,
		LatencyMS:         12.5,
		BuyVWAP:           100.0,
		SellVWAP:          101.0,
		BuyBookUpdatedAt:  time.Date(2025, 6, 1, 12, 29, 59, 0, time.UTC),
		SellBookUpdatedAt: time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC),
	}

	data, err := json.Marshal(opp)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got Opportunity
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != opp {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, opp)
	}
}

func TestSimulatedTradeJSONRoundTrip(t *testing.T) {
	t.Parallel()

	trade := SimulatedTrade{
		ID:           "t1",
		Timestamp:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Symbol:       "ETHUSDT",
		BuyExchange:  "sim_exchange",
		SellExchange: "binance",
		Size:         1.5,
		PnLUSD:       2.34,
		LatencyMS:    8,
	}

	data, err := json.Marshal(trade)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got SimulatedTrade
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != trade {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, trade)
	}
}
