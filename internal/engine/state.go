package engine

import (
	"time"

	"arbsim/internal/metrics"
	"arbsim/internal/wallet"
)

// State is the durable slice of engine state written to disk at shutdown and
// restored at the next start: inventory plus the PnL counters. Books, rings
// and fee tables are rebuilt from live feeds and configuration.
type State struct {
	Symbol              string                    `json:"symbol"`
	SimulationVolumeUSD float64                   `json:"simulation_volume_usd"`
	BalanceUSD          float64                   `json:"balance_usd"`
	TotalPnLUSD         float64                   `json:"total_pnl_usd"`
	Wallets             map[string]*wallet.Wallet `json:"wallets"`
	SavedAt             time.Time                 `json:"saved_at"`
}

// ExportState captures the current inventory and counters.
func (e *Engine) ExportState() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return State{
		Symbol:              e.symbol,
		SimulationVolumeUSD: e.simVolumeUSD,
		BalanceUSD:          e.balanceUSD,
		TotalPnLUSD:         e.totalPnLUSD,
		Wallets:             e.ledger.State(),
		SavedAt:             time.Now().UTC(),
	}
}

// RestoreState applies a saved snapshot. The configured symbol wins over the
// saved one; State.Symbol is informational only. Venues no longer configured
// are ignored by the ledger.
func (e *Engine) RestoreState(st *State) {
	if st == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if st.Wallets != nil {
		e.ledger.Restore(st.Wallets)
	}
	e.balanceUSD = st.BalanceUSD
	e.totalPnLUSD = st.TotalPnLUSD
	if st.SimulationVolumeUSD > 0 {
		e.simVolumeUSD = st.SimulationVolumeUSD
	}
	metrics.SetBalanceUSD(e.balanceUSD)
	metrics.SetTotalPnLUSD(e.totalPnLUSD)

	e.logger.Info("state restored",
		"balance_usd", e.balanceUSD,
		"total_pnl_usd", e.totalPnLUSD,
		"saved_at", st.SavedAt)
}
