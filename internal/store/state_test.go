package store

import (
	"testing"
	"time"

	"arbsim/internal/engine"
	"arbsim/internal/wallet"
)

func TestStateFileSaveAndLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	f, err := NewStateFile(dir)
	if err != nil {
		t.Fatalf("NewStateFile: %v", err)
	}

	st := engine.State{
		Symbol:              "BTCUSDT",
		SimulationVolumeUSD: 1000,
		BalanceUSD:          10500.25,
		TotalPnLUSD:         500.25,
		Wallets: map[string]*wallet.Wallet{
			"binance": {Quote: 1800.5, Base: map[string]float64{"BTC": 0.031}},
			"kraken":  {Quote: 2200.0, Base: map[string]float64{"BTC": 0.024}},
		},
		SavedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	if err := f.Save(st); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := f.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil {
		t.Fatal("Load returned nil")
	}

	if loaded.Symbol != st.Symbol {
		t.Errorf("Symbol = %q, want %q", loaded.Symbol, st.Symbol)
	}
	if loaded.BalanceUSD != st.BalanceUSD {
		t.Errorf("BalanceUSD = %v, want %v", loaded.BalanceUSD, st.BalanceUSD)
	}
	if loaded.TotalPnLUSD != st.TotalPnLUSD {
		t.Errorf("TotalPnLUSD = %v, want %v", loaded.TotalPnLUSD, st.TotalPnLUSD)
	}
	if got := loaded.Wallets["binance"].Quote; got != 1800.5 {
		t.Errorf("binance quote = %v, want 1800.5", got)
	}
	if got := loaded.Wallets["kraken"].Base["BTC"]; got != 0.024 {
		t.Errorf("kraken BTC = %v, want 0.024", got)
	}
}

func TestStateFileLoadMissing(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	f, err := NewStateFile(dir)
	if err != nil {
		t.Fatalf("NewStateFile: %v", err)
	}

	loaded, err := f.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded != nil {
		t.Errorf("expected nil for missing state, got %+v", loaded)
	}
}

func TestStateFileSaveOverwrites(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	f, err := NewStateFile(dir)
	if err != nil {
		t.Fatalf("NewStateFile: %v", err)
	}

	_ = f.Save(engine.State{Symbol: "BTCUSDT", BalanceUSD: 10000})
	_ = f.Save(engine.State{Symbol: "ETHUSDT", BalanceUSD: 12000})

	loaded, err := f.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Symbol != "ETHUSDT" {
		t.Errorf("Symbol = %q, want ETHUSDT (latest save)", loaded.Symbol)
	}
	if loaded.BalanceUSD != 12000 {
		t.Errorf("BalanceUSD = %v, want 12000 (latest save)", loaded.BalanceUSD)
	}
}
