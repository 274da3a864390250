// Arbitrage Simulator — watches order books across real and simulated crypto
// venues, evaluates cross-venue spreads with VWAP pricing, and executes
// paper trades against per-venue wallets.
//
// Architecture:
//
//	main.go                — entry point: loads config, wires store → engine → api, waits for SIGINT/SIGTERM
//	engine/engine.go       — orchestrator: single writer over books and wallets, evaluates on every book update
//	engine/evaluate.go     — pairwise VWAP evaluation with fee, transfer-cost, liquidity and funds gates
//	exchange/supervisor.go — builds the per-venue feed set, rebuilt on symbol or venue changes
//	exchange/ws.go         — WebSocket feed core: dial, subscribe, ping, reconnect with jittered backoff
//	exchange/binance.go    — venue adapters (with kraken.go, bybit.go, uphold.go, sim.go)
//	market/book.go         — order book VWAP walks, depth reservation, crossed-book checks
//	wallet/wallet.go       — per-venue base/quote ledger with transfers and quote rebalancing
//	store/store.go         — sqlite/postgres history for opportunities and trades
//	store/writer.go        — bounded async persist queue so evaluation never blocks on the database
//	api/server.go          — REST + WebSocket dashboard API with a 1 Hz snapshot broadcast
//
// Nothing here places real orders. Execution debits and credits in-memory
// wallets, charges the configured fees and transfer costs, and records the
// trade. The wallets persist across restarts via a state file.
package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"arbsim/internal/api"
	"arbsim/internal/config"
	"arbsim/internal/engine"
	"arbsim/internal/store"
)

func main() {
	var (
		cfgPath  = flag.String("config", "", "path to config file (default: configs/config.json)")
		listen   = flag.String("listen", ":8000", "dashboard listen address")
		logLevel = flag.String("log-level", "info", "log level: debug, info, warn, error")
		logJSON  = flag.Bool("log-json", false, "log as JSON instead of text")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", *cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Set up logger
	opts := &slog.HandlerOptions{Level: parseLogLevel(*logLevel)}
	var handler slog.Handler
	if *logJSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	// Open the history store: postgres when DATABASE_URL is set, sqlite otherwise
	st, err := store.Open(os.Getenv("DATABASE_URL"), cfg.DataDir)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}

	writer := store.NewWriter(st, 0, logger)
	go writer.Run()

	eng := engine.New(*cfg, writer, st, logger)

	// Restore wallet balances and PnL from the previous run, if any
	stateFile, err := store.NewStateFile(cfg.DataDir)
	if err != nil {
		logger.Error("failed to prepare state file", "error", err)
		os.Exit(1)
	}
	if prev, err := stateFile.Load(); err != nil {
		logger.Warn("could not load saved state", "error", err)
	} else {
		eng.RestoreState(prev)
	}

	eng.Start()

	apiServer := api.NewServer(*listen, eng, corsOrigins(), logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("dashboard server failed", "error", err)
		}
	}()

	logger.Info("arbitrage simulator started",
		"symbol", cfg.Symbol,
		"feeds", len(cfg.Feeds),
		"trade_size", cfg.TradeSize,
		"listen", *listen,
	)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	// Stop dashboard first
	if err := apiServer.Stop(); err != nil {
		logger.Error("failed to stop dashboard", "error", err)
	}

	eng.Stop()

	if err := stateFile.Save(eng.ExportState()); err != nil {
		logger.Error("failed to save state", "error", err)
	}

	writer.Stop()
	if err := st.Close(); err != nil {
		logger.Error("failed to close store", "error", err)
	}

	logger.Info("shutdown complete")
}

// corsOrigins reads CORS_ORIGINS (comma separated). The default covers a
// local Vite dev server.
func corsOrigins() []string {
	raw := os.Getenv("CORS_ORIGINS")
	if raw == "" {
		return []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	}
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
