// sim.go implements the simulated depth feed.
//
// The feed renders a full synthetic book every 200ms around a random-walk
// mid price. A per-feed price offset biases the walk so two simulated venues
// sit on opposite sides of a spread, which keeps the evaluation pipeline
// exercised without any live connectivity.
package exchange

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"arbsim/pkg/types"
)

const (
	simTickInterval = 200 * time.Millisecond
	simBasePrice    = 50000.0
	simPriceFloor   = 1000.0
)

// SimulatedFeed generates random-walk depth snapshots for one symbol.
type SimulatedFeed struct {
	runner

	name        string
	symbol      string
	volatility  float64
	depthLevels int
	price       float64
	rng         *rand.Rand
	logger      *slog.Logger
}

// NewSimulatedFeed creates a synthetic feed. priceOffset shifts the walk's
// starting mid away from the shared base price; volatility bounds the
// per-tick drift in dollars.
func NewSimulatedFeed(name, symbol string, priceOffset, volatility float64, depthLevels int, logger *slog.Logger) *SimulatedFeed {
	if volatility <= 0 {
		volatility = 2.0
	}
	if depthLevels <= 0 {
		depthLevels = bookDepthLevels
	}
	return &SimulatedFeed{
		name:        name,
		symbol:      strings.ToUpper(strings.TrimSpace(symbol)),
		volatility:  volatility,
		depthLevels: depthLevels,
		price:       simBasePrice + priceOffset,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:      logger.With("feed", name),
	}
}

func (f *SimulatedFeed) Name() string { return f.name }

// Start launches the tick loop. No-op if already running.
func (f *SimulatedFeed) Start(ctx context.Context, callback Callback) {
	f.start(ctx, func(ctx context.Context) {
		f.run(ctx, callback)
	})
}

// Stop cancels the loop and waits for it to exit.
func (f *SimulatedFeed) Stop() { f.stop() }

func (f *SimulatedFeed) run(ctx context.Context, callback Callback) {
	ticker := time.NewTicker(simTickInterval)
	defer ticker.Stop()

	// Emit immediately so consumers have a book before the first tick.
	for {
		callback(f.nextBook())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// nextBook advances the walk one step and renders a fresh snapshot around
// the new mid.
func (f *SimulatedFeed) nextBook() *types.OrderBook {
	f.price += f.rng.Float64()*2*f.volatility - f.volatility
	if f.price < simPriceFloor {
		f.price = simPriceFloor
	}
	spread := math.Max(0.5, 1+f.rng.Float64()*4)
	bestBid := f.price - spread/2
	bestAsk := f.price + spread/2

	bids := make([]types.Level, 0, f.depthLevels)
	asks := make([]types.Level, 0, f.depthLevels)
	for i := 0; i < f.depthLevels; i++ {
		step := float64(i) * (0.2 + f.rng.Float64())
		bids = append(bids, types.Level{
			Price:    round2(bestBid - step),
			Quantity: round5(0.02 + f.rng.Float64()*0.58),
		})
		asks = append(asks, types.Level{
			Price:    round2(bestAsk + step),
			Quantity: round5(0.02 + f.rng.Float64()*0.58),
		})
	}
	// Step sizes are drawn independently, so the sides need an explicit
	// sort before emit.
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })

	now := time.Now()
	return &types.OrderBook{
		Exchange:   f.name,
		Symbol:     f.symbol,
		Bids:       bids,
		Asks:       asks,
		ExchangeTS: now,
		ReceivedTS: now,
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round5(v float64) float64 { return math.Round(v*100000) / 100000 }
