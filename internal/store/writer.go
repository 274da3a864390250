package store

import (
	"context"
	"log/slog"
	"time"

	"arbsim/internal/metrics"
	"arbsim/pkg/types"
)

const (
	// defaultQueueCap bounds the persist queue; overflow drops rather than
	// blocking the evaluation path.
	defaultQueueCap = 5000

	// writeTimeout bounds a single insert so a stalled database cannot wedge
	// the worker forever.
	writeTimeout = 5 * time.Second
)

// event is one queued persistence job. Exactly one of opp/trade is set;
// stop is the shutdown sentinel.
type event struct {
	opp   *types.Opportunity
	trade *types.SimulatedTrade
	stop  bool
}

// Writer drains a bounded queue of records into the Store on a single
// goroutine. Submission never blocks: when the queue is full the record is
// dropped with a warning, and the in-memory rings remain the authoritative
// recent history.
type Writer struct {
	store  *Store
	events chan event
	done   chan struct{}
	logger *slog.Logger
}

// NewWriter builds a writer over the store with the given queue capacity
// (<= 0 selects the default). Call Run in a goroutine to start draining.
func NewWriter(store *Store, capacity int, logger *slog.Logger) *Writer {
	if capacity <= 0 {
		capacity = defaultQueueCap
	}
	return &Writer{
		store:  store,
		events: make(chan event, capacity),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Run processes queued events until the Stop sentinel arrives. Write
// failures are logged and the event discarded; there is no retry queue.
func (w *Writer) Run() {
	defer close(w.done)
	for ev := range w.events {
		if ev.stop {
			return
		}
		w.write(ev)
		metrics.SetPersistQueueDepth(len(w.events))
	}
}

// SubmitOpportunity enqueues one opportunity record. Returns false when the
// queue was full and the record dropped.
func (w *Writer) SubmitOpportunity(opp types.Opportunity) bool {
	return w.submit(event{opp: &opp})
}

// SubmitTrade enqueues one simulated trade record. Returns false when the
// queue was full and the record dropped.
func (w *Writer) SubmitTrade(trade types.SimulatedTrade) bool {
	return w.submit(event{trade: &trade})
}

// Stop enqueues a sentinel and waits for the worker to observe it. Events
// queued ahead of the sentinel are still written.
func (w *Writer) Stop() {
	w.events <- event{stop: true}
	<-w.done
}

func (w *Writer) submit(ev event) bool {
	select {
	case w.events <- ev:
		metrics.SetPersistQueueDepth(len(w.events))
		return true
	default:
		metrics.PersistDropped()
		w.logger.Warn("persist queue full, dropping event")
		return false
	}
}

func (w *Writer) write(ev event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var err error
	switch {
	case ev.opp != nil:
		err = w.store.InsertOpportunity(ctx, *ev.opp)
	case ev.trade != nil:
		err = w.store.InsertTrade(ctx, *ev.trade)
	}
	if err != nil {
		w.logger.Error("persist write failed", "error", err)
	}
}
