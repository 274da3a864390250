// Package exchange implements the market-data feed adapters and their
// supervisor.
//
// Every adapter is a long-lived producer bound to one (venue, symbol). It
// normalizes whatever the venue speaks into *types.OrderBook and hands each
// book to a single callback; serialization happens downstream. Adapters
// never surface errors to their consumer: transport and parse failures are
// logged and absorbed into the reconnect/retry loop.
//
// Four adapter families exist: WebSocket depth streams (Binance snapshots,
// Kraken v2 and Bybit v5 incremental books), a polled REST ticker (Uphold)
// paced by a token bucket, and a random-walk simulated depth feed.
package exchange

import (
	"context"
	"sync"

	"arbsim/pkg/types"
)

// Callback receives each normalized book. It must be safe to invoke from
// many feed goroutines concurrently.
type Callback func(*types.OrderBook)

// Feed is one long-lived book producer. Start is idempotent while running;
// Stop cancels the producer goroutine and joins it, and is idempotent too.
type Feed interface {
	Name() string
	Start(ctx context.Context, callback Callback)
	Stop()
}

// runner owns the lifecycle of one producer goroutine. Embedded by every
// adapter so Start/Stop idempotency lives in a single place.
type runner struct {
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// start launches loop in its own goroutine under a derived context. A
// second call while running is a no-op.
func (r *runner) start(ctx context.Context, loop func(ctx context.Context)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.running = true
	r.cancel = cancel
	r.done = done

	go func() {
		defer close(done)
		loop(ctx)
	}()
}

// stop cancels the goroutine and waits for it to return.
func (r *runner) stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.running = false
	r.cancel = nil
	r.done = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}
