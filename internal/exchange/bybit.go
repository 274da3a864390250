// bybit.go implements the Bybit v5 public spot orderbook stream.
//
// After an explicit subscribe, Bybit sends a snapshot followed by deltas
// with the usual zero-qty-removes convention. Bybit expects an application
// level {"op":"ping"} rather than a protocol ping.
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

const bybitURL = "wss://stream.bybit.com/v5/public/spot"

type bybitSession struct {
	symbol string
	topic  string
	bids   map[float64]float64
	asks   map[float64]float64
}

// NewBybitFeed creates a WebSocket feed for one Bybit spot symbol.
func NewBybitFeed(name, symbol string, logger *slog.Logger) *WSFeed {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	return newWSFeed(name, &bybitSession{
		symbol: symbol,
		topic:  "orderbook.50." + symbol,
	}, logger)
}

func (s *bybitSession) urls() []string { return []string{bybitURL} }

func (s *bybitSession) subscribe(conn *websocket.Conn) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(map[string]any{
		"op":   "subscribe",
		"args": []string{s.topic},
	})
}

func (s *bybitSession) reset() {
	s.bids = make(map[float64]float64)
	s.asks = make(map[float64]float64)
}

func (s *bybitSession) pingMessage() []byte {
	return []byte(`{"op":"ping"}`)
}

type bybitMessage struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	TSMS  int64  `json:"ts"`
	Data  struct {
		Bids [][]string `json:"b"`
		Asks [][]string `json:"a"`
	} `json:"data"`
}

func (s *bybitSession) handle(msg []byte) *types.OrderBook {
	var m bybitMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return nil
	}
	// Subscribe acks and pong replies have no topic.
	if !strings.HasPrefix(m.Topic, "orderbook.") {
		return nil
	}
	if m.Type == "snapshot" {
		s.reset()
	}
	applyDeltas(s.bids, m.Data.Bids)
	applyDeltas(s.asks, m.Data.Asks)

	bids := assembleSide(s.bids, true)
	asks := assembleSide(s.asks, false)
	if len(bids) == 0 || len(asks) == 0 {
		return nil
	}
	book := &types.OrderBook{
		Symbol: s.symbol,
		Bids:   market.TruncateLevels(bids, bookDepthLevels),
		Asks:   market.TruncateLevels(asks, bookDepthLevels),
	}
	if m.TSMS > 0 {
		book.ExchangeTS = time.UnixMilli(m.TSMS)
	}
	return book
}
