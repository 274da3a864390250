// supervisor.go builds and owns the running feed set.
//
// The engine drives the supervisor through Start/Stop cycles: every symbol
// change or venue toggle stops all adapters, then starts a fresh set for the
// new (symbol, venues) pair. Adapters are cheap to construct, so rebuilding
// beats reconfiguring them in place.
package exchange

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"arbsim/internal/config"
	"arbsim/pkg/types"
)

// Supervisor turns the configured feed list into running adapters, all
// funneling books into a single callback.
type Supervisor struct {
	feeds    []config.FeedConfig
	callback Callback
	logger   *slog.Logger

	mu      sync.Mutex
	running []Feed
}

// NewSupervisor creates a supervisor over the configured feeds. Nothing runs
// until Start.
func NewSupervisor(feeds []config.FeedConfig, callback Callback, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		feeds:    feeds,
		callback: callback,
		logger:   logger.With("component", "feeds"),
	}
}

// Start launches one adapter per named active feed, subscribed to symbol.
// A supervisor that is already running is left untouched; callers apply new
// settings with Stop then Start.
func (s *Supervisor) Start(ctx context.Context, symbol string, active []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.running) > 0 {
		return
	}

	want := make(map[string]bool, len(active))
	for _, name := range active {
		want[strings.ToLower(name)] = true
	}

	for _, fc := range s.feeds {
		name := strings.ToLower(fc.Name)
		if !want[name] {
			continue
		}
		feed := s.build(name, symbol, fc)
		if feed == nil {
			s.logger.Warn("unknown feed kind, skipping", "feed", name, "kind", fc.Kind)
			continue
		}
		feed.Start(ctx, s.callback)
		s.running = append(s.running, feed)
	}
	s.logger.Info("feeds started", "symbol", symbol, "count", len(s.running))
}

func (s *Supervisor) build(name, symbol string, fc config.FeedConfig) Feed {
	switch fc.Kind {
	case types.FeedBinanceWS:
		return NewBinanceFeed(name, symbol, s.logger)
	case types.FeedKrakenWS:
		return NewKrakenFeed(name, symbol, s.logger)
	case types.FeedBybitWS:
		return NewBybitFeed(name, symbol, s.logger)
	case types.FeedUpholdTicker:
		return NewUpholdFeed(name, symbol, s.logger)
	case types.FeedSimulated:
		return NewSimulatedFeed(name, symbol, fc.PriceOffset, fc.Volatility, fc.DepthLevels, s.logger)
	}
	return nil
}

// Stop shuts down every running adapter and joins them. Safe to call when
// nothing is running.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	running := s.running
	s.running = nil
	s.mu.Unlock()

	for _, feed := range running {
		feed.Stop()
	}
	if len(running) > 0 {
		s.logger.Info("feeds stopped", "count", len(running))
	}
}
