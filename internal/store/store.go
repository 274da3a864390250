// Package store persists accepted opportunities and simulated trades to a
// relational database, off the evaluation hot path.
//
// Open selects the backend from the database URL: postgres:// URLs use the
// lib/pq driver, anything else falls back to a SQLite file under the data
// directory (WAL mode, so the read handlers and the writer goroutine do not
// block each other). All writes flow through the bounded async Writer; the
// engine never touches the pool directly.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"arbsim/pkg/types"
)

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite3"

	// maxListLimit caps history queries regardless of what the caller asks
	// for.
	maxListLimit = 5000
)

// Store wraps the SQL connection pool and hides driver differences
// (placeholder syntax, auto-increment keys) from callers.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the database named by databaseURL. URLs with a
// postgres:// or postgresql:// scheme go through lib/pq; any other value,
// including the empty string, falls back to a SQLite file at
// dataDir/arbsim.db, creating the directory if needed. The schema is
// migrated on every open.
func Open(databaseURL, dataDir string) (*Store, error) {
	driver := driverSQLite
	dsn := databaseURL
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		driver = driverPostgres
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "arbsim.db") + "?_busy_timeout=5000&_journal_mode=WAL"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	pk := "BIGSERIAL PRIMARY KEY"
	if s.driver == driverSQLite {
		pk = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS opportunities (
			id %s,
			timestamp TIMESTAMP NOT NULL,
			status TEXT NOT NULL,
			reason TEXT NOT NULL,
			symbol TEXT NOT NULL,
			buy_exchange TEXT NOT NULL,
			sell_exchange TEXT NOT NULL,
			trade_size DOUBLE PRECISION NOT NULL,
			gross_spread_pct DOUBLE PRECISION NOT NULL,
			net_spread_pct DOUBLE PRECISION NOT NULL,
			expected_profit_usd DOUBLE PRECISION NOT NULL,
			latency_ms DOUBLE PRECISION NOT NULL,
			buy_vwap DOUBLE PRECISION NOT NULL,
			sell_vwap DOUBLE PRECISION NOT NULL
		)`, pk),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS trades (
			id %s,
			timestamp TIMESTAMP NOT NULL,
			symbol TEXT NOT NULL,
			buy_exchange TEXT NOT NULL,
			sell_exchange TEXT NOT NULL,
			size DOUBLE PRECISION NOT NULL,
			pnl_usd DOUBLE PRECISION NOT NULL,
			latency_ms DOUBLE PRECISION NOT NULL
		)`, pk),
		`CREATE INDEX IF NOT EXISTS idx_opportunities_timestamp ON opportunities (timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_opportunities_status ON opportunities (status)`,
		`CREATE INDEX IF NOT EXISTS idx_opportunities_symbol ON opportunities (symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_opportunities_buy_exchange ON opportunities (buy_exchange)`,
		`CREATE INDEX IF NOT EXISTS idx_opportunities_sell_exchange ON opportunities (sell_exchange)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trades (timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades (symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_buy_exchange ON trades (buy_exchange)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_sell_exchange ON trades (sell_exchange)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders into $1..$n when the backend is postgres.
// Queries in this package are written with ? throughout.
func (s *Store) rebind(query string) string {
	if s.driver != driverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// InsertOpportunity writes one evaluation record. The row id is assigned by
// the database; the in-memory record id is not persisted.
func (s *Store) InsertOpportunity(ctx context.Context, opp types.Opportunity) error {
	query := s.rebind(`INSERT INTO opportunities
		(timestamp, status, reason, symbol, buy_exchange, sell_exchange,
		 trade_size, gross_spread_pct, net_spread_pct, expected_profit_usd,
		 latency_ms, buy_vwap, sell_vwap)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		opp.Timestamp.UTC(),
		string(opp.Status),
		opp.Reason,
		opp.Symbol,
		opp.BuyExchange,
		opp.SellExchange,
		opp.TradeSize,
		opp.GrossSpreadPct,
		opp.NetSpreadPct,
		opp.ExpectedProfitUSD,
		opp.LatencyMS,
		opp.BuyVWAP,
		opp.SellVWAP,
	)
	if err != nil {
		return fmt.Errorf("insert opportunity: %w", err)
	}
	return nil
}

// InsertTrade writes one simulated execution record.
func (s *Store) InsertTrade(ctx context.Context, trade types.SimulatedTrade) error {
	query := s.rebind(`INSERT INTO trades
		(timestamp, symbol, buy_exchange, sell_exchange, size, pnl_usd, latency_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		trade.Timestamp.UTC(),
		trade.Symbol,
		trade.BuyExchange,
		trade.SellExchange,
		trade.Size,
		trade.PnLUSD,
		trade.LatencyMS,
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// ListOpportunities returns up to limit persisted opportunities, optionally
// filtered by symbol. Rows are fetched newest-first and returned
// oldest-first. The limit is clamped to [1, 5000].
func (s *Store) ListOpportunities(ctx context.Context, limit int, symbols []string) ([]types.Opportunity, error) {
	limit = clampLimit(limit)

	query := `SELECT id, timestamp, status, reason, symbol, buy_exchange, sell_exchange,
		trade_size, gross_spread_pct, net_spread_pct, expected_profit_usd,
		latency_ms, buy_vwap, sell_vwap
		FROM opportunities`
	args := make([]any, 0, len(symbols)+1)
	if len(symbols) > 0 {
		query += ` WHERE symbol IN (` + placeholders(len(symbols)) + `)`
		for _, sym := range symbols {
			args = append(args, strings.ToUpper(sym))
		}
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list opportunities: %w", err)
	}
	defer rows.Close()

	var out []types.Opportunity
	for rows.Next() {
		var (
			id     int64
			status string
			opp    types.Opportunity
		)
		err := rows.Scan(
			&id,
			&opp.Timestamp,
			&status,
			&opp.Reason,
			&opp.Symbol,
			&opp.BuyExchange,
			&opp.SellExchange,
			&opp.TradeSize,
			&opp.GrossSpreadPct,
			&opp.NetSpreadPct,
			&opp.ExpectedProfitUSD,
			&opp.LatencyMS,
			&opp.BuyVWAP,
			&opp.SellVWAP,
		)
		if err != nil {
			return nil, fmt.Errorf("scan opportunity: %w", err)
		}
		opp.ID = strconv.FormatInt(id, 10)
		opp.Status = types.OpportunityStatus(status)
		out = append(out, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list opportunities: %w", err)
	}

	reverse(out)
	return out, nil
}

// ListTrades returns up to limit persisted trades, oldest-first, optionally
// filtered by symbol. The limit is clamped to [1, 5000].
func (s *Store) ListTrades(ctx context.Context, limit int, symbols []string) ([]types.SimulatedTrade, error) {
	limit = clampLimit(limit)

	query := `SELECT id, timestamp, symbol, buy_exchange, sell_exchange, size, pnl_usd, latency_ms
		FROM trades`
	args := make([]any, 0, len(symbols)+1)
	if len(symbols) > 0 {
		query += ` WHERE symbol IN (` + placeholders(len(symbols)) + `)`
		for _, sym := range symbols {
			args = append(args, strings.ToUpper(sym))
		}
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var out []types.SimulatedTrade
	for rows.Next() {
		var (
			id    int64
			trade types.SimulatedTrade
		)
		err := rows.Scan(
			&id,
			&trade.Timestamp,
			&trade.Symbol,
			&trade.BuyExchange,
			&trade.SellExchange,
			&trade.Size,
			&trade.PnLUSD,
			&trade.LatencyMS,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trade.ID = strconv.FormatInt(id, 10)
		out = append(out, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}

	reverse(out)
	return out, nil
}

func clampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
