// ws.go implements the shared WebSocket feed loop.
//
// Venue specifics (endpoint URLs, subscribe frames, message parsing, ping
// convention) live behind the wsSession interface; this file owns the
// connection lifecycle: dial, subscribe, keepalive pings, a per-read stale
// deadline, and automatic reconnection with jittered exponential backoff
// (1s → 30s max). Backoff resets to the minimum after the first successful
// read on a connection, not merely after a successful dial, so an endpoint
// that accepts connections and then stalls still backs off.
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/gorilla/websocket"

	"arbsim/internal/metrics"
	"arbsim/pkg/types"
)

const (
	pingInterval     = 20 * time.Second // how often we send PING to keep alive
	staleReadTimeout = 10 * time.Second // a depth stream silent this long is dead
	backoffMin       = time.Second      // initial reconnect delay
	backoffMax       = 30 * time.Second // cap on exponential backoff
	backoffFactor    = 2.0              // growth per failed cycle
	backoffJitter    = 0.3              // ±30% randomization on each delay
	writeTimeout     = 10 * time.Second // deadline for outgoing messages
)

// wsSession is the venue-specific half of a WebSocket feed.
//
// handle is called once per raw frame and returns a normalized book when the
// frame completes one, or nil for partial updates, acks and heartbeats.
// reset is called after every (re)connect, before subscribe, so incremental
// sessions can discard state from the previous connection.
type wsSession interface {
	urls() []string
	subscribe(conn *websocket.Conn) error
	reset()
	handle(msg []byte) *types.OrderBook

	// pingMessage returns the venue's application-level ping frame, or nil
	// when a protocol-level ping control frame suffices.
	pingMessage() []byte
}

// WSFeed runs one wsSession with reconnection. It handles connection
// lifecycle, keepalive, stale detection, and hands every normalized book to
// the supervisor callback stamped with the feed name and receive time.
type WSFeed struct {
	runner

	name    string
	session wsSession
	logger  *slog.Logger
}

func newWSFeed(name string, session wsSession, logger *slog.Logger) *WSFeed {
	return &WSFeed{
		name:    name,
		session: session,
		logger:  logger.With("feed", name),
	}
}

func (f *WSFeed) Name() string { return f.name }

// Start launches the connect/read loop. No-op if already running.
func (f *WSFeed) Start(ctx context.Context, callback Callback) {
	f.start(ctx, func(ctx context.Context) {
		f.run(ctx, callback)
	})
}

// Stop cancels the loop and waits for it to exit.
func (f *WSFeed) Stop() { f.stop() }

// run cycles through connect → read until ctx is cancelled. Endpoints rotate
// across attempts so one unreachable host does not pin the feed.
func (f *WSFeed) run(ctx context.Context, callback Callback) {
	urls := f.session.urls()
	backoff := backoffMin

	for attempt := 0; ; attempt++ {
		url := urls[attempt%len(urls)]

		err := f.connectAndRead(ctx, url, callback, &backoff)
		if ctx.Err() != nil {
			return
		}

		metrics.FeedReconnect(f.name)
		f.logger.Warn("websocket disconnected, reconnecting",
			"url", url,
			"backoff", backoff,
			"error", err)

		// Jitter spreads reconnect storms when several feeds drop at once.
		delay := time.Duration(float64(backoff) * (1 + backoffJitter*(2*rand.Float64()-1)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		backoff = time.Duration(float64(backoff) * backoffFactor)
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

// connectAndRead dials url, subscribes, and reads until the connection dies
// or ctx is cancelled. It resets *backoff to the minimum after the first
// successful read.
func (f *WSFeed) connectAndRead(ctx context.Context, url string, callback Callback, backoff *time.Duration) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	// Closing the conn is the only way to unblock a pending ReadMessage.
	stopWatch := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopWatch()

	f.session.reset()
	if err := f.session.subscribe(conn); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	f.logger.Info("websocket connected", "url", url)

	pingDone := make(chan struct{})
	defer close(pingDone)
	go f.pingLoop(conn, pingDone)

	for {
		conn.SetReadDeadline(time.Now().Add(staleReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		*backoff = backoffMin

		book := f.session.handle(msg)
		if book == nil {
			continue
		}
		now := time.Now()
		book.Exchange = f.name
		book.ReceivedTS = now
		if book.ExchangeTS.IsZero() {
			book.ExchangeTS = now
		}
		callback(book)
	}
}

// pingLoop sends keepalives until done closes. Venues with an application
// ping convention get their JSON frame; the rest get a control ping.
func (f *WSFeed) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			var err error
			if msg := f.session.pingMessage(); msg != nil {
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				err = conn.WriteMessage(websocket.TextMessage, msg)
			} else {
				err = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			}
			if err != nil {
				// Force the read loop to notice.
				conn.Close()
				return
			}
		}
	}
}
