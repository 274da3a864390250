// uphold.go implements the polled Uphold ticker feed.
//
// Uphold has no public depth stream, so this adapter polls the REST ticker
// about once per second and synthesizes a one-level book from the quoted
// bid/ask. Uphold lists dollar pairs, so tether-quoted symbols poll the USD
// ticker under the configured symbol's name.
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"arbsim/internal/market"
	"arbsim/pkg/types"
)

const (
	upholdBaseURL = "https://api.uphold.com"

	// upholdLevelQty is the synthetic depth behind the quoted prices. A
	// ticker has no size information, so the level is made deep enough that
	// evaluation is never liquidity-limited by this venue.
	upholdLevelQty = 100.0

	// upholdRetryWait spaces retries after a failed fetch, on top of the
	// token bucket's normal pacing.
	upholdRetryWait = 2 * time.Second
)

// UpholdFeed polls one ticker pair and emits a synthetic one-level book per
// good sample. Crossed or non-positive quotes are dropped without a retry
// penalty.
type UpholdFeed struct {
	runner

	name   string
	symbol string
	pair   string
	http   *resty.Client
	bucket *TokenBucket
	logger *slog.Logger
}

// NewUpholdFeed creates a polled ticker feed for one pair.
func NewUpholdFeed(name, symbol string, logger *slog.Logger) *UpholdFeed {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	return &UpholdFeed{
		name:   name,
		symbol: symbol,
		pair:   upholdPair(symbol),
		http: resty.New().
			SetBaseURL(upholdBaseURL).
			SetTimeout(10 * time.Second),
		bucket: NewTokenBucket(1, 1),
		logger: logger.With("feed", name),
	}
}

// upholdPair maps the configured symbol onto Uphold's listing: BTCUSDT
// polls the BTCUSD ticker.
func upholdPair(symbol string) string {
	if strings.HasSuffix(symbol, "USDT") {
		return strings.TrimSuffix(symbol, "USDT") + "USD"
	}
	return symbol
}

func (f *UpholdFeed) Name() string { return f.name }

// Start launches the poll loop. No-op if already running.
func (f *UpholdFeed) Start(ctx context.Context, callback Callback) {
	f.start(ctx, func(ctx context.Context) {
		f.run(ctx, callback)
	})
}

// Stop cancels the loop and waits for it to exit.
func (f *UpholdFeed) Stop() { f.stop() }

func (f *UpholdFeed) run(ctx context.Context, callback Callback) {
	for {
		if err := f.bucket.Wait(ctx); err != nil {
			return
		}
		book, err := f.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.logger.Warn("ticker fetch failed", "pair", f.pair, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(upholdRetryWait):
			}
			continue
		}
		if book != nil {
			callback(book)
		}
	}
}

type upholdTicker struct {
	Ask      string `json:"ask"`
	Bid      string `json:"bid"`
	Currency string `json:"currency"`
}

// fetch polls the ticker once. A (nil, nil) return means the sample was
// unusable but the venue is healthy.
func (f *UpholdFeed) fetch(ctx context.Context) (*types.OrderBook, error) {
	var ticker upholdTicker
	resp, err := f.http.R().
		SetContext(ctx).
		SetResult(&ticker).
		Get("/v0/ticker/" + f.pair)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("ticker request failed: status %d: %s", resp.StatusCode(), resp.String())
	}

	bid, err := market.ParsePrice(ticker.Bid)
	if err != nil {
		return nil, fmt.Errorf("bad bid %q: %w", ticker.Bid, err)
	}
	ask, err := market.ParsePrice(ticker.Ask)
	if err != nil {
		return nil, fmt.Errorf("bad ask %q: %w", ticker.Ask, err)
	}
	if market.IsCrossed(bid, ask) {
		return nil, nil
	}

	now := time.Now()
	return &types.OrderBook{
		Exchange:   f.name,
		Symbol:     f.symbol,
		Bids:       []types.Level{{Price: bid, Quantity: upholdLevelQty}},
		Asks:       []types.Level{{Price: ask, Quantity: upholdLevelQty}},
		ExchangeTS: now,
		ReceivedTS: now,
	}, nil
}
