// kraken.go implements the Kraken WebSocket v2 book channel.
//
// Kraken sends one full snapshot after subscribe and price-keyed deltas from
// then on; a zero qty removes the level. The session keeps the book in price
// maps and emits a sorted view after every applied message.
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

const krakenURL = "wss://ws.kraken.com/v2"

// krakenBookDepth is the subscribed depth. Kraken only accepts fixed tiers;
// 25 is the smallest that covers our 20-level emit.
const krakenBookDepth = 25

type krakenSession struct {
	symbol string // normalized form, e.g. BTCUSDT
	pair   string // venue form, e.g. BTC/USDT
	bids   map[float64]float64
	asks   map[float64]float64
}

// NewKrakenFeed creates a WebSocket feed for one Kraken spot pair.
func NewKrakenFeed(name, symbol string, logger *slog.Logger) *WSFeed {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	base, quote := market.SplitSymbol(symbol)
	return newWSFeed(name, &krakenSession{
		symbol: symbol,
		pair:   base + "/" + quote,
	}, logger)
}

func (s *krakenSession) urls() []string { return []string{krakenURL} }

func (s *krakenSession) subscribe(conn *websocket.Conn) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(map[string]any{
		"method": "subscribe",
		"params": map[string]any{
			"channel": "book",
			"symbol":  []string{s.pair},
			"depth":   krakenBookDepth,
		},
	})
}

func (s *krakenSession) reset() {
	s.bids = make(map[float64]float64)
	s.asks = make(map[float64]float64)
}

func (s *krakenSession) pingMessage() []byte { return nil }

type krakenLevel struct {
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

type krakenBookData struct {
	Bids      []krakenLevel `json:"bids"`
	Asks      []krakenLevel `json:"asks"`
	Timestamp string        `json:"timestamp"`
}

type krakenMessage struct {
	Channel string           `json:"channel"`
	Type    string           `json:"type"`
	Data    []krakenBookData `json:"data"`
}

func (s *krakenSession) handle(msg []byte) *types.OrderBook {
	var m krakenMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return nil
	}
	// Subscribe acks, status and heartbeat frames carry no book data.
	if m.Channel != "book" || len(m.Data) == 0 {
		return nil
	}
	if m.Type == "snapshot" {
		s.reset()
	}

	var eventTS time.Time
	for _, d := range m.Data {
		applyKrakenSide(s.bids, d.Bids)
		applyKrakenSide(s.asks, d.Asks)
		if d.Timestamp != "" {
			if ts, err := time.Parse(time.RFC3339Nano, d.Timestamp); err == nil {
				eventTS = ts
			}
		}
	}

	bids := assembleSide(s.bids, true)
	asks := assembleSide(s.asks, false)
	if len(bids) == 0 || len(asks) == 0 {
		return nil
	}
	return &types.OrderBook{
		Symbol:     s.symbol,
		Bids:       market.TruncateLevels(bids, bookDepthLevels),
		Asks:       market.TruncateLevels(asks, bookDepthLevels),
		ExchangeTS: eventTS,
	}
}

func applyKrakenSide(side map[float64]float64, levels []krakenLevel) {
	for _, lvl := range levels {
		if lvl.Qty <= 0 {
			delete(side, lvl.Price)
			continue
		}
		side[lvl.Price] = lvl.Qty
	}
}
