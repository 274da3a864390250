package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"arbsim/internal/metrics"
	"arbsim/pkg/types"
)

// snapshotBroadcastInterval is how often the hub pushes a fresh snapshot to
// connected dashboard clients.
const snapshotBroadcastInterval = time.Second

// Server runs the HTTP/WebSocket API for the dashboard
type Server struct {
	svc      Service
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger

	cancel context.CancelFunc
}

// NewServer creates a new API server listening on addr.
func NewServer(addr string, svc Service, allowedOrigins []string, logger *slog.Logger) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(svc, hub, allowedOrigins, logger)

	r := mux.NewRouter()

	// Read routes
	r.HandleFunc("/", handlers.HandleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", handlers.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/snapshot", handlers.HandleSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/api/opportunities", handlers.HandleOpportunities).Methods(http.MethodGet)
	r.HandleFunc("/api/trades", handlers.HandleTrades).Methods(http.MethodGet)
	r.HandleFunc("/api/spreads", handlers.HandleSpreads).Methods(http.MethodGet)
	r.HandleFunc("/api/exchanges", handlers.HandleExchanges).Methods(http.MethodGet)

	// Control routes
	r.HandleFunc("/api/symbol", handlers.HandleSetSymbol).Methods(http.MethodPost)
	r.HandleFunc("/api/exchanges/{name}", handlers.HandleSetExchange).Methods(http.MethodPost)
	r.HandleFunc("/api/simulation-volume", handlers.HandleSetSimulationVolume).Methods(http.MethodPost)
	r.HandleFunc("/api/rebalance", handlers.HandleRebalance).Methods(http.MethodPost)

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/ws", handlers.HandleWebSocket)

	server := &http.Server{
		Addr:         addr,
		Handler:      corsHandler(allowedOrigins, r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		svc:      svc,
		hub:      hub,
		handlers: handlers,
		server:   server,
		logger:   logger.With("component", "api-server"),
	}
}

// Start starts the hub, the snapshot broadcaster and the HTTP listener. It
// blocks until the listener fails or Stop is called.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	// Start WebSocket hub
	go s.hub.Run(ctx)

	// Start snapshot broadcaster
	go s.broadcastLoop(ctx)

	s.logger.Info("dashboard server starting", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop() error {
	s.logger.Info("stopping dashboard server")

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// broadcastLoop pushes the current snapshot and spread series to all
// connected clients once per interval.
func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(snapshotBroadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := s.svc.Snapshot()
			s.hub.BroadcastEvent(types.DashboardEvent{
				Type:         types.EventArbitrageSnapshot,
				Snapshot:     &snap,
				SpreadSeries: s.svc.SpreadSeries(defaultSpreadSamples),
			})
		}
	}
}

// corsHandler wraps the router with the dashboard's CORS policy.
func corsHandler(allowed []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && isOriginAllowed(origin, allowed, r.Host) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
