package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"arbsim/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeService records what the handlers pass through to the engine.
type fakeService struct {
	symbol    string
	symbolErr error
	venues    map[string]bool
	volumeUSD float64

	gotLimit   int
	gotSymbols []string
	gotVolume  float64
	rebalanced bool
}

func newFakeService() *fakeService {
	return &fakeService{
		symbol: "SOLUSDT",
		venues: map[string]bool{"binance": true, "kraken": true},
	}
}

func (f *fakeService) Snapshot() types.Snapshot {
	return types.Snapshot{
		Timestamp:  time.Now().UTC(),
		Symbol:     f.symbol,
		BaseAsset:  "SOL",
		QuoteAsset: "USDT",
		BalanceUSD: 10000,
		ExchangeStates: []types.ExchangeState{
			{Exchange: "binance", Enabled: f.venues["binance"]},
			{Exchange: "kraken", Enabled: f.venues["kraken"]},
		},
		Inventory: []types.WalletView{
			{Exchange: "binance", QuoteBalance: 2000, Status: "ok"},
		},
	}
}

func (f *fakeService) ListOpportunities(_ context.Context, limit int, symbols []string, simVolumeUSD float64) []types.Opportunity {
	f.gotLimit, f.gotSymbols, f.gotVolume = limit, symbols, simVolumeUSD
	return []types.Opportunity{{ID: "opp-1", Symbol: f.symbol}}
}

func (f *fakeService) ListTrades(_ context.Context, limit int, symbols []string) []types.SimulatedTrade {
	f.gotLimit, f.gotSymbols = limit, symbols
	return []types.SimulatedTrade{{ID: "trade-1"}}
}

func (f *fakeService) SpreadSeries(limit int) []types.MetricPoint {
	f.gotLimit = limit
	return []types.MetricPoint{{Pair: "binance->kraken"}}
}

func (f *fakeService) SetSymbol(symbol string) error {
	if f.symbolErr != nil {
		return f.symbolErr
	}
	f.symbol = symbol
	return nil
}

func (f *fakeService) SetExchangeEnabled(venue string, enable bool) bool {
	if _, ok := f.venues[venue]; !ok {
		return false
	}
	f.venues[venue] = enable
	return true
}

func (f *fakeService) SetSimulationVolumeUSD(volumeUSD float64) {
	f.volumeUSD = volumeUSD
}

func (f *fakeService) RebalanceQuotes() types.RebalanceReport {
	f.rebalanced = true
	return types.RebalanceReport{Moves: 2, TotalMovedUSD: 300, TargetPerWallet: 1500}
}

// serve runs one request through the full handler stack, CORS wrapper included.
func serve(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestIsOriginAllowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		origin  string
		allowed []string
		reqHost string
		want    bool
	}{
		{
			name:    "empty origin is allowed",
			origin:  "",
			reqHost: "localhost:8080",
			want:    true,
		},
		{
			name:    "localhost origin allowed by default",
			origin:  "http://localhost:8080",
			reqHost: "localhost:8080",
			want:    true,
		},
		{
			name:    "loopback origin allowed by default",
			origin:  "http://127.0.0.1:5173",
			reqHost: "localhost:8080",
			want:    true,
		},
		{
			name:    "non-local origin denied by default",
			origin:  "https://evil.example",
			reqHost: "localhost:8080",
			want:    false,
		},
		{
			name:    "allowlist permits exact origin",
			origin:  "https://dash.example.com",
			allowed: []string{"https://dash.example.com"},
			reqHost: "0.0.0.0:8080",
			want:    true,
		},
		{
			name:    "allowlist tolerates trailing slash",
			origin:  "https://dash.example.com",
			allowed: []string{"https://dash.example.com/"},
			reqHost: "0.0.0.0:8080",
			want:    true,
		},
		{
			name:    "allowlist denies everything else",
			origin:  "https://evil.example",
			allowed: []string{"https://dash.example.com"},
			reqHost: "0.0.0.0:8080",
			want:    false,
		},
		{
			name:    "same host allowed when no allowlist",
			origin:  "https://arb.internal:8080",
			reqHost: "arb.internal:8080",
			want:    true,
		},
		{
			name:    "opaque origin denied",
			origin:  "null",
			reqHost: "localhost:8080",
			want:    false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isOriginAllowed(tt.origin, tt.allowed, tt.reqHost); got != tt.want {
				t.Fatalf("isOriginAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestHandleHealth(t *testing.T) {
	srv := NewServer("127.0.0.1:0", newFakeService(), nil, testLogger())

	rec := serve(srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode health body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want %q", body["status"], "ok")
	}
	if _, ok := body["uptime_seconds"]; !ok {
		t.Error("health body missing uptime_seconds")
	}
}

func TestHandleSnapshot(t *testing.T) {
	srv := NewServer("127.0.0.1:0", newFakeService(), nil, testLogger())

	rec := serve(srv, http.MethodGet, "/api/snapshot", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var snap types.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Symbol != "SOLUSDT" {
		t.Errorf("symbol = %q, want %q", snap.Symbol, "SOLUSDT")
	}
	if snap.BalanceUSD != 10000 {
		t.Errorf("balance = %v, want 10000", snap.BalanceUSD)
	}
}

func TestHandleOpportunitiesQuery(t *testing.T) {
	svc := newFakeService()
	srv := NewServer("127.0.0.1:0", svc, nil, testLogger())

	rec := serve(srv, http.MethodGet, "/api/opportunities?limit=5&symbols=BTCUSDT,ETHUSDT&simulation_volume_usd=1500", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if svc.gotLimit != 5 {
		t.Errorf("limit = %d, want 5", svc.gotLimit)
	}
	if len(svc.gotSymbols) != 2 || svc.gotSymbols[0] != "BTCUSDT" || svc.gotSymbols[1] != "ETHUSDT" {
		t.Errorf("symbols = %v, want [BTCUSDT ETHUSDT]", svc.gotSymbols)
	}
	if svc.gotVolume != 1500 {
		t.Errorf("simulation volume = %v, want 1500", svc.gotVolume)
	}

	var opps []types.Opportunity
	if err := json.NewDecoder(rec.Body).Decode(&opps); err != nil {
		t.Fatalf("decode opportunities: %v", err)
	}
	if len(opps) != 1 || opps[0].ID != "opp-1" {
		t.Errorf("opportunities = %v", opps)
	}
}

func TestHandleTradesDefaults(t *testing.T) {
	svc := newFakeService()
	srv := NewServer("127.0.0.1:0", svc, nil, testLogger())

	rec := serve(srv, http.MethodGet, "/api/trades", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if svc.gotLimit != 0 {
		t.Errorf("limit = %d, want 0", svc.gotLimit)
	}
	if svc.gotSymbols != nil {
		t.Errorf("symbols = %v, want nil", svc.gotSymbols)
	}
}

func TestHandleSpreadsDefaultLimit(t *testing.T) {
	svc := newFakeService()
	srv := NewServer("127.0.0.1:0", svc, nil, testLogger())

	if rec := serve(srv, http.MethodGet, "/api/spreads", ""); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if svc.gotLimit != defaultSpreadSamples {
		t.Errorf("default limit = %d, want %d", svc.gotLimit, defaultSpreadSamples)
	}

	if rec := serve(srv, http.MethodGet, "/api/spreads?limit=10", ""); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if svc.gotLimit != 10 {
		t.Errorf("limit = %d, want 10", svc.gotLimit)
	}
}

func TestHandleExchanges(t *testing.T) {
	srv := NewServer("127.0.0.1:0", newFakeService(), nil, testLogger())

	rec := serve(srv, http.MethodGet, "/api/exchanges", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body struct {
		Exchanges []types.ExchangeState `json:"exchanges"`
		Inventory []types.WalletView    `json:"inventory"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode exchanges: %v", err)
	}
	if len(body.Exchanges) != 2 {
		t.Errorf("exchanges = %v, want 2 entries", body.Exchanges)
	}
	if len(body.Inventory) != 1 || body.Inventory[0].Exchange != "binance" {
		t.Errorf("inventory = %v", body.Inventory)
	}
}

func TestHandleSetSymbol(t *testing.T) {
	svc := newFakeService()
	srv := NewServer("127.0.0.1:0", svc, nil, testLogger())

	rec := serve(srv, http.MethodPost, "/api/symbol", `{"symbol":"ETHUSDT"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if svc.symbol != "ETHUSDT" {
		t.Errorf("symbol = %q, want %q", svc.symbol, "ETHUSDT")
	}
	var snap types.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Symbol != "ETHUSDT" {
		t.Errorf("snapshot symbol = %q, want %q", snap.Symbol, "ETHUSDT")
	}

	if rec := serve(srv, http.MethodPost, "/api/symbol", "{"); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	svc.symbolErr = errors.New("symbol required")
	if rec := serve(srv, http.MethodPost, "/api/symbol", `{"symbol":""}`); rec.Code != http.StatusBadRequest {
		t.Errorf("rejected symbol status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleSetExchange(t *testing.T) {
	svc := newFakeService()
	srv := NewServer("127.0.0.1:0", svc, nil, testLogger())

	rec := serve(srv, http.MethodPost, "/api/exchanges/kraken", `{"enabled":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if svc.venues["kraken"] {
		t.Error("kraken still enabled after disable request")
	}

	if rec := serve(srv, http.MethodPost, "/api/exchanges/mystery", `{"enabled":true}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown venue status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	if rec := serve(srv, http.MethodPost, "/api/exchanges/kraken", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing enabled status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleSetSimulationVolume(t *testing.T) {
	svc := newFakeService()
	srv := NewServer("127.0.0.1:0", svc, nil, testLogger())

	rec := serve(srv, http.MethodPost, "/api/simulation-volume", `{"volume_usd":2500}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if svc.volumeUSD != 2500 {
		t.Errorf("volume = %v, want 2500", svc.volumeUSD)
	}

	if rec := serve(srv, http.MethodPost, "/api/simulation-volume", "not json"); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleRebalance(t *testing.T) {
	svc := newFakeService()
	srv := NewServer("127.0.0.1:0", svc, nil, testLogger())

	rec := serve(srv, http.MethodPost, "/api/rebalance", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !svc.rebalanced {
		t.Error("rebalance not forwarded to the engine")
	}
	var body struct {
		Report   types.RebalanceReport `json:"report"`
		Snapshot types.Snapshot        `json:"snapshot"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode rebalance response: %v", err)
	}
	if body.Report.Moves != 2 || body.Report.TargetPerWallet != 1500 {
		t.Errorf("report = %+v", body.Report)
	}
	if body.Snapshot.Symbol != "SOLUSDT" {
		t.Errorf("snapshot symbol = %q, want %q", body.Snapshot.Symbol, "SOLUSDT")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := NewServer("127.0.0.1:0", newFakeService(), nil, testLogger())

	if rec := serve(srv, http.MethodPost, "/api/snapshot", "{}"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST snapshot status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
	if rec := serve(srv, http.MethodGet, "/api/rebalance", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET rebalance status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestCORSHeaders(t *testing.T) {
	srv := NewServer("127.0.0.1:0", newFakeService(), []string{"https://dash.example.com"}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/snapshot", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	rec := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example.com" {
		t.Errorf("allow-origin = %q, want allowlisted origin echoed", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/symbol", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	rec = httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, http.MethodPost) {
		t.Errorf("allow-methods = %q, want POST included", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/snapshot", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("allow-origin = %q for denied origin, want empty", got)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("denied-origin status = %d, want %d (CORS is browser-enforced)", rec.Code, http.StatusOK)
	}
}

func TestWebSocketStream(t *testing.T) {
	svc := newFakeService()
	srv := NewServer("127.0.0.1:0", svc, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.hub.Run(ctx)

	ts := httptest.NewServer(srv.server.Handler)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Every new client is seeded with one snapshot event.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt types.DashboardEvent
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read seed event: %v", err)
	}
	if evt.Type != types.EventArbitrageSnapshot {
		t.Errorf("seed event type = %q, want %q", evt.Type, types.EventArbitrageSnapshot)
	}
	if evt.Snapshot == nil || evt.Snapshot.Symbol != "SOLUSDT" {
		t.Fatalf("seed snapshot = %+v", evt.Snapshot)
	}

	// A hub broadcast reaches the connected client.
	snap := types.Snapshot{Timestamp: time.Now().UTC(), Symbol: "ETHUSDT"}
	srv.hub.BroadcastEvent(types.DashboardEvent{
		Type:     types.EventArbitrageSnapshot,
		Snapshot: &snap,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read broadcast event: %v", err)
	}
	if evt.Snapshot == nil || evt.Snapshot.Symbol != "ETHUSDT" {
		t.Fatalf("broadcast snapshot = %+v", evt.Snapshot)
	}
}
