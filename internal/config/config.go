package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/smclabs/smcrun/internal/market"
)

// ErrInvalidConfiguration is returned when a configuration value is
// outside its permitted range. It is fatal and checked at construction.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Config is the immutable run configuration. It is passed into each
// component constructor; there is no process-wide settings state.
type Config struct {
	Symbol           string           `yaml:"symbol" json:"symbol"`
	PrimaryTimeframe market.Timeframe `yaml:"primary_timeframe" json:"primary_timeframe"`

	// Detection
	SwingStrength         int     `yaml:"swing_strength" json:"swing_strength"`
	FVGMinPips            float64 `yaml:"fvg_min_pips" json:"fvg_min_pips"`
	LiquidityTolerancePct float64 `yaml:"liquidity_tolerance_pct" json:"liquidity_tolerance_pct"`

	// Signal quality
	MinConfluenceFactors   int     `yaml:"min_confluence_factors" json:"min_confluence_factors"`
	MinRiskReward          float64 `yaml:"min_risk_reward" json:"min_risk_reward"`
	QualityAcceptThreshold float64 `yaml:"quality_accept_threshold" json:"quality_accept_threshold"`

	// Execution
	RiskPerTradePct    float64 `yaml:"risk_per_trade_pct" json:"risk_per_trade_pct"`
	InitialBalance     float64 `yaml:"initial_balance" json:"initial_balance"`
	CommissionPerTrade float64 `yaml:"commission_per_trade" json:"commission_per_trade"`
	MaxSpreadPips      float64 `yaml:"max_spread_pips" json:"max_spread_pips"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Symbol:                 "EURUSD",
		PrimaryTimeframe:       market.H1,
		SwingStrength:          5,
		FVGMinPips:             3.0,
		LiquidityTolerancePct:  0.05,
		MinConfluenceFactors:   3,
		MinRiskReward:          2.0,
		QualityAcceptThreshold: 0.70,
		RiskPerTradePct:        1.0,
		InitialBalance:         10000.0,
		CommissionPerTrade:     0.0,
		MaxSpreadPips:          2.0,
	}
}

// Load reads a YAML configuration file over the defaults and validates
// the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every option against its permitted range.
func (c *Config) Validate() error {
	switch {
	case c.Symbol == "":
		return fmt.Errorf("%w: symbol must be set", ErrInvalidConfiguration)
	case !c.PrimaryTimeframe.Valid():
		return fmt.Errorf("%w: unknown primary timeframe %q", ErrInvalidConfiguration, c.PrimaryTimeframe)
	case c.SwingStrength < 1:
		return fmt.Errorf("%w: swing_strength must be >= 1, got %d", ErrInvalidConfiguration, c.SwingStrength)
	case c.FVGMinPips < 0:
		return fmt.Errorf("%w: fvg_min_pips must be >= 0, got %g", ErrInvalidConfiguration, c.FVGMinPips)
	case c.LiquidityTolerancePct <= 0:
		return fmt.Errorf("%w: liquidity_tolerance_pct must be > 0, got %g", ErrInvalidConfiguration, c.LiquidityTolerancePct)
	case c.MinConfluenceFactors < 3:
		return fmt.Errorf("%w: min_confluence_factors must be >= 3, got %d", ErrInvalidConfiguration, c.MinConfluenceFactors)
	case c.MinRiskReward <= 0:
		return fmt.Errorf("%w: min_risk_reward must be > 0, got %g", ErrInvalidConfiguration, c.MinRiskReward)
	case c.QualityAcceptThreshold < 0 || c.QualityAcceptThreshold > 1:
		return fmt.Errorf("%w: quality_accept_threshold must be in [0,1], got %g", ErrInvalidConfiguration, c.QualityAcceptThreshold)
	case c.RiskPerTradePct <= 0 || c.RiskPerTradePct > 100:
		return fmt.Errorf("%w: risk_per_trade_pct must be in (0,100], got %g", ErrInvalidConfiguration, c.RiskPerTradePct)
	case c.InitialBalance <= 0:
		return fmt.Errorf("%w: initial_balance must be > 0, got %g", ErrInvalidConfiguration, c.InitialBalance)
	case c.CommissionPerTrade < 0:
		return fmt.Errorf("%w: commission_per_trade must be >= 0, got %g", ErrInvalidConfiguration, c.CommissionPerTrade)
	case c.MaxSpreadPips < 0:
		return fmt.Errorf("%w: max_spread_pips must be >= 0, got %g", ErrInvalidConfiguration, c.MaxSpreadPips)
	}
	return nil
}

// RequiredBars returns the minimum series length the configured swing
// window needs before a replay can produce meaningful structure.
func (c *Config) RequiredBars() int {
	return 2*c.SwingStrength + 10
}
