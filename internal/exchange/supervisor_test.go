package exchange

import (
	"context"
	"testing"
	"time"

	"arbsim/internal/config"
	"arbsim/pkg/types"
)

func TestSupervisorStartStop(t *testing.T) {
	t.Parallel()

	feeds := []config.FeedConfig{
		{Name: "sim_a", Kind: types.FeedSimulated, PriceOffset: 100, Volatility: 2, DepthLevels: 5},
		{Name: "sim_b", Kind: types.FeedSimulated, PriceOffset: -100, Volatility: 2, DepthLevels: 5},
		{Name: "mystery", Kind: types.FeedKind("mystery")},
	}

	books := make(chan *types.OrderBook, 64)
	callback := func(b *types.OrderBook) {
		select {
		case books <- b:
		default:
		}
	}

	sup := NewSupervisor(feeds, callback, testLogger())
	sup.Start(context.Background(), "ETHUSDT", []string{"sim_a", "mystery"})
	defer sup.Stop()

	select {
	case book := <-books:
		if book.Exchange != "sim_a" {
			t.Errorf("book from %q, want sim_a", book.Exchange)
		}
		if book.Symbol != "ETHUSDT" {
			t.Errorf("symbol = %q, want ETHUSDT", book.Symbol)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no book emitted")
	}

	// A second Start while running must not launch more adapters.
	sup.Start(context.Background(), "BTCUSDT", []string{"sim_a", "sim_b"})
	sup.mu.Lock()
	n := len(sup.running)
	sup.mu.Unlock()
	if n != 1 {
		t.Errorf("running = %d feeds after duplicate Start, want 1", n)
	}

	sup.Stop()

	for len(books) > 0 {
		<-books
	}
	select {
	case b := <-books:
		t.Errorf("book from %q after Stop", b.Exchange)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestSupervisorSkipsInactiveFeeds(t *testing.T) {
	t.Parallel()

	feeds := []config.FeedConfig{
		{Name: "sim_a", Kind: types.FeedSimulated, Volatility: 2, DepthLevels: 5},
	}

	sup := NewSupervisor(feeds, func(*types.OrderBook) {}, testLogger())
	sup.Start(context.Background(), "BTCUSDT", nil)
	defer sup.Stop()

	sup.mu.Lock()
	n := len(sup.running)
	sup.mu.Unlock()
	if n != 0 {
		t.Errorf("running = %d feeds with empty active set, want 0", n)
	}
}
