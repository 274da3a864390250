// binance.go implements the Binance partial book depth stream.
//
// The stream name (<symbol>@depth20@100ms) carries the subscription, so no
// subscribe frame is sent. Every message is a complete 20-level snapshot;
// there is no delta state to track across messages.
package exchange

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"arbsim/internal/market"
	"arbsim/pkg/types"
)

// Binance publishes the same streams on three hosts; the feed rotates
// through them across reconnect attempts.
var binanceHosts = []string{
	"wss://stream.binance.com:443/ws/",
	"wss://stream.binance.com:9443/ws/",
	"wss://data-stream.binance.vision/ws/",
}

type binanceSession struct {
	symbol string
	stream string
}

// NewBinanceFeed creates a WebSocket feed for one Binance spot symbol.
func NewBinanceFeed(name, symbol string, logger *slog.Logger) *WSFeed {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	return newWSFeed(name, &binanceSession{
		symbol: symbol,
		stream: strings.ToLower(symbol) + "@depth20@100ms",
	}, logger)
}

func (s *binanceSession) urls() []string {
	urls := make([]string, len(binanceHosts))
	for i, host := range binanceHosts {
		urls[i] = host + s.stream
	}
	return urls
}

func (s *binanceSession) subscribe(*websocket.Conn) error { return nil }

func (s *binanceSession) reset() {}

func (s *binanceSession) pingMessage() []byte { return nil }

type binanceDepth struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	EventTimeMS  int64      `json:"E"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

func (s *binanceSession) handle(msg []byte) *types.OrderBook {
	var depth binanceDepth
	if err := json.Unmarshal(msg, &depth); err != nil {
		return nil
	}

	bids := parseLevels(depth.Bids)
	asks := parseLevels(depth.Asks)
	if len(bids) == 0 || len(asks) == 0 {
		return nil
	}

	book := &types.OrderBook{
		Symbol: s.symbol,
		Bids:   market.TruncateLevels(bids, bookDepthLevels),
		Asks:   market.TruncateLevels(asks, bookDepthLevels),
	}
	if depth.EventTimeMS > 0 {
		book.ExchangeTS = time.UnixMilli(depth.EventTimeMS)
	}
	return book
}
