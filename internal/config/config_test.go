package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smclabs/smcrun/internal/market"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "EURUSD", cfg.Symbol)
	assert.Equal(t, market.H1, cfg.PrimaryTimeframe)
	assert.Equal(t, 20, cfg.RequiredBars())
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty symbol", func(c *Config) { c.Symbol = "" }},
		{"unknown timeframe", func(c *Config) { c.PrimaryTimeframe = "H2" }},
		{"zero swing strength", func(c *Config) { c.SwingStrength = 0 }},
		{"negative fvg floor", func(c *Config) { c.FVGMinPips = -1 }},
		{"zero liquidity tolerance", func(c *Config) { c.LiquidityTolerancePct = 0 }},
		{"too few confluence factors", func(c *Config) { c.MinConfluenceFactors = 2 }},
		{"zero risk reward", func(c *Config) { c.MinRiskReward = 0 }},
		{"quality threshold above one", func(c *Config) { c.QualityAcceptThreshold = 1.2 }},
		{"risk percent above hundred", func(c *Config) { c.RiskPerTradePct = 150 }},
		{"zero balance", func(c *Config) { c.InitialBalance = 0 }},
		{"negative commission", func(c *Config) { c.CommissionPerTrade = -0.5 }},
		{"negative spread", func(c *Config) { c.MaxSpreadPips = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfiguration)
		})
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smcrun.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
symbol: USDJPY
primary_timeframe: H4
swing_strength: 3
min_risk_reward: 3.0
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "USDJPY", cfg.Symbol)
	assert.Equal(t, market.H4, cfg.PrimaryTimeframe)
	assert.Equal(t, 3, cfg.SwingStrength)
	assert.Equal(t, 3.0, cfg.MinRiskReward)
	// Untouched fields keep their defaults.
	assert.Equal(t, 0.70, cfg.QualityAcceptThreshold)
	assert.Equal(t, 10000.0, cfg.InitialBalance)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("swing_strength: 0\n"), 0o644))
	_, err = Load(bad)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}
