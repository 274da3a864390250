// Package config defines all configuration for the arbitrage simulator.
// Config is loaded from a JSON file (default: configs/config.json) with
// fields overridable via ARB_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"arbsim/pkg/types"
)

// Config is the top-level configuration. Maps directly to the JSON file structure.
type Config struct {
	Symbol                  string       `mapstructure:"symbol"`
	Symbols                 []string     `mapstructure:"symbols"`
	TradeSize               float64      `mapstructure:"trade_size"`
	TransferCostUSD         float64      `mapstructure:"transfer_cost_usd"`
	StartingBalanceUSD      float64      `mapstructure:"starting_balance_usd"`
	AutoSimulateExecution   bool         `mapstructure:"auto_simulate_execution"`
	OpportunityThresholdUSD float64      `mapstructure:"opportunity_threshold_usd"`
	DataDir                 string       `mapstructure:"data_dir"`
	Feeds                   []FeedConfig `mapstructure:"feeds"`
}

// FeedConfig describes one venue feed.
//
//   - Kind selects the adapter (binance_ws, kraken_ws, bybit_ws,
//     uphold_ticker, simulated).
//   - Fee is the taker fee rate applied on both legs (0.001 = 10 bps).
//   - Enabled defaults to true when omitted.
//   - PriceOffset, Volatility and DepthLevels only apply to simulated feeds.
type FeedConfig struct {
	Name        string         `mapstructure:"name"`
	Kind        types.FeedKind `mapstructure:"kind"`
	Fee         float64        `mapstructure:"fee"`
	Enabled     *bool          `mapstructure:"enabled"`
	PriceOffset float64        `mapstructure:"price_offset"`
	Volatility  float64        `mapstructure:"volatility"`
	DepthLevels int            `mapstructure:"depth_levels"`
}

// IsEnabled reports whether the feed should be started.
func (f FeedConfig) IsEnabled() bool {
	return f.Enabled == nil || *f.Enabled
}

// Load reads config from a JSON file with env var overrides. An empty path
// searches configs/ and the working directory; a missing file there is not an
// error and the defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("json")
		v.AddConfigPath("configs")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("ARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()

	return &cfg, nil
}

// Default returns the built-in configuration: one Binance feed plus two
// simulated venues straddling it.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: decode defaults: %v", err))
	}
	cfg.normalize()
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("symbol", "BTCUSDT")
	v.SetDefault("symbols", []string{})
	v.SetDefault("trade_size", 0.05)
	v.SetDefault("transfer_cost_usd", 1.0)
	v.SetDefault("starting_balance_usd", 10000.0)
	v.SetDefault("auto_simulate_execution", true)
	v.SetDefault("opportunity_threshold_usd", 0.01)
	v.SetDefault("data_dir", "data")
	v.SetDefault("feeds", []map[string]any{
		{"name": "binance", "kind": string(types.FeedBinanceWS), "fee": 0.001},
		{"name": "sim_exchange", "kind": string(types.FeedSimulated), "fee": 0.0015, "price_offset": 220.0, "volatility": 3.5},
		{"name": "sim_exchange_b", "kind": string(types.FeedSimulated), "fee": 0.0012, "price_offset": -220.0, "volatility": 3.0},
	})
}

// normalize uppercases symbols, lowercases feed names and fills per-feed
// defaults for fields the file omitted.
func (c *Config) normalize() {
	c.Symbol = strings.ToUpper(strings.TrimSpace(c.Symbol))
	for i, s := range c.Symbols {
		c.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	for i := range c.Feeds {
		f := &c.Feeds[i]
		f.Name = strings.ToLower(strings.TrimSpace(f.Name))
		if f.Volatility <= 0 {
			f.Volatility = 2.0
		}
		if f.DepthLevels <= 0 {
			f.DepthLevels = 20
		}
	}
}

// AllSymbols returns the configured symbol followed by the watchlist,
// uppercased and deduplicated.
func (c *Config) AllSymbols() []string {
	seen := make(map[string]bool, len(c.Symbols)+1)
	out := make([]string, 0, len(c.Symbols)+1)
	for _, s := range append([]string{c.Symbol}, c.Symbols...) {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if c.TradeSize <= 0 {
		return fmt.Errorf("trade_size must be > 0")
	}
	if c.TransferCostUSD < 0 {
		return fmt.Errorf("transfer_cost_usd must be >= 0")
	}
	if c.StartingBalanceUSD <= 0 {
		return fmt.Errorf("starting_balance_usd must be > 0")
	}
	if c.OpportunityThresholdUSD < 0 {
		return fmt.Errorf("opportunity_threshold_usd must be >= 0")
	}
	if len(c.Feeds) == 0 {
		return fmt.Errorf("at least one feed is required")
	}
	names := make(map[string]bool, len(c.Feeds))
	for _, f := range c.Feeds {
		if f.Name == "" {
			return fmt.Errorf("feed name is required")
		}
		if names[f.Name] {
			return fmt.Errorf("duplicate feed name %q", f.Name)
		}
		names[f.Name] = true
		switch f.Kind {
		case types.FeedBinanceWS, types.FeedKrakenWS, types.FeedBybitWS, types.FeedUpholdTicker, types.FeedSimulated:
		default:
			return fmt.Errorf("feed %q: unknown kind %q", f.Name, f.Kind)
		}
		if f.Fee < 0 || f.Fee >= 1 {
			return fmt.Errorf("feed %q: fee must be in [0, 1)", f.Name)
		}
	}
	return nil
}
