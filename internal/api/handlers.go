package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"arbsim/pkg/types"
)

// defaultSpreadSamples is how many spread points /api/spreads and the
// WebSocket seed return when the client does not ask for a count.
const defaultSpreadSamples = 120

// Service is the engine surface the API exposes. *engine.Engine satisfies it.
type Service interface {
	Snapshot() types.Snapshot
	ListOpportunities(ctx context.Context, limit int, symbols []string, simVolumeUSD float64) []types.Opportunity
	ListTrades(ctx context.Context, limit int, symbols []string) []types.SimulatedTrade
	SpreadSeries(limit int) []types.MetricPoint
	SetSymbol(symbol string) error
	SetExchangeEnabled(venue string, enable bool) bool
	SetSimulationVolumeUSD(volumeUSD float64)
	RebalanceQuotes() types.RebalanceReport
}

// Handlers holds all HTTP handler dependencies
type Handlers struct {
	svc      Service
	hub      *Hub
	upgrader websocket.Upgrader
	started  time.Time
	logger   *slog.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(svc Service, hub *Hub, allowedOrigins []string, logger *slog.Logger) *Handlers {
	return &Handlers{
		svc:     svc,
		hub:     hub,
		started: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return isOriginAllowed(r.Header.Get("Origin"), allowedOrigins, r.Host)
			},
		},
		logger: logger.With("component", "api-handlers"),
	}
}

// isOriginAllowed implements the dashboard's origin policy: non-browser
// clients (no Origin header), same-host requests and localhost are always
// accepted, anything else must match the configured allow list.
func isOriginAllowed(origin string, allowed []string, reqHost string) bool {
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSuffix(a, "/"), strings.TrimSuffix(origin, "/")) {
			return true
		}
	}
	if strings.EqualFold(u.Host, reqHost) {
		return true
	}
	hostname := u.Hostname()
	return hostname == "localhost" || hostname == "127.0.0.1"
}

// HandleRoot identifies the service
func (h *Handlers) HandleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"service": "arbsim", "status": "ok"})
}

// HandleHealth returns a simple health check response
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"uptime_seconds": time.Since(h.started).Seconds(),
	})
}

// HandleSnapshot returns the current arbitrage state
func (h *Handlers) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.svc.Snapshot())
}

// HandleOpportunities returns recent opportunities, optionally filtered by
// symbols and re-evaluated at a caller-supplied simulation volume.
func (h *Handlers) HandleOpportunities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opps := h.svc.ListOpportunities(
		r.Context(),
		intParam(q, "limit", 0),
		csvParam(q, "symbols"),
		floatParam(q, "simulation_volume_usd"),
	)
	h.writeJSON(w, opps)
}

// HandleTrades returns recent simulated trades, optionally filtered by symbols.
func (h *Handlers) HandleTrades(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	trades := h.svc.ListTrades(r.Context(), intParam(q, "limit", 0), csvParam(q, "symbols"))
	h.writeJSON(w, trades)
}

// HandleSpreads returns the tail of the per-pair spread series
func (h *Handlers) HandleSpreads(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r.URL.Query(), "limit", defaultSpreadSamples)
	h.writeJSON(w, h.svc.SpreadSeries(limit))
}

// HandleExchanges returns venue states together with the wallet inventory
func (h *Handlers) HandleExchanges(w http.ResponseWriter, r *http.Request) {
	snap := h.svc.Snapshot()
	h.writeJSON(w, map[string]any{
		"exchanges": snap.ExchangeStates,
		"inventory": snap.Inventory,
	})
}

// HandleSetSymbol switches the traded symbol and returns the fresh snapshot
func (h *Handlers) HandleSetSymbol(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol string `json:"symbol"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.svc.SetSymbol(req.Symbol); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.writeJSON(w, h.svc.Snapshot())
}

// HandleSetExchange enables or disables one venue and returns the fresh snapshot
func (h *Handlers) HandleSetExchange(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		http.Error(w, "enabled is required", http.StatusBadRequest)
		return
	}
	if !h.svc.SetExchangeEnabled(name, *req.Enabled) {
		http.Error(w, "unknown exchange", http.StatusNotFound)
		return
	}
	h.writeJSON(w, h.svc.Snapshot())
}

// HandleSetSimulationVolume overrides the per-trade USD volume and returns
// the fresh snapshot. Zero or negative volume restores config-driven sizing.
func (h *Handlers) HandleSetSimulationVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VolumeUSD float64 `json:"volume_usd"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.svc.SetSimulationVolumeUSD(req.VolumeUSD)
	h.writeJSON(w, h.svc.Snapshot())
}

// HandleRebalance evens out quote balances across venues
func (h *Handlers) HandleRebalance(w http.ResponseWriter, r *http.Request) {
	report := h.svc.RebalanceQuotes()
	h.writeJSON(w, map[string]any{
		"report":   report,
		"snapshot": h.svc.Snapshot(),
	})
}

// HandleWebSocket upgrades the connection and creates a new WebSocket client
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	// Create new client
	client := NewClient(h.hub, conn)

	// Seed the client so the dashboard renders before the next broadcast tick
	snap := h.svc.Snapshot()
	evt := types.DashboardEvent{
		Type:         types.EventArbitrageSnapshot,
		Snapshot:     &snap,
		SpreadSeries: h.svc.SpreadSeries(defaultSpreadSamples),
	}

	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("failed to marshal initial snapshot", "error", err)
		return
	}

	select {
	case client.send <- data:
	default:
		h.logger.Warn("failed to send initial snapshot to client")
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func intParam(q url.Values, key string, def int) int {
	raw := q.Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func floatParam(q url.Values, key string) float64 {
	v, err := strconv.ParseFloat(q.Get(key), 64)
	if err != nil {
		return 0
	}
	return v
}

func csvParam(q url.Values, key string) []string {
	raw := q.Get(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
