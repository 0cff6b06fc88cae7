// Package config loads the lab's YAML configuration file. The file
// bundles backtest parameters, the strategy list, and the external
// service endpoints used by the commands.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"ashare-backtest-lab/internal/domain"
	"ashare-backtest-lab/internal/strategy"
)

// Config is the complete lab configuration.
type Config struct {
	Backtest   BacktestConfig    `yaml:"backtest"`
	Strategies []strategy.Config `yaml:"strategies"`
	Optimize   OptimizeConfig    `yaml:"optimize"`
	Storage    StorageConfig     `yaml:"storage"`
	Ingest     IngestConfig      `yaml:"ingest"`
}

// BacktestConfig mirrors domain.BacktestConfig with YAML tags. Zero
// fields fall back to the defaults.
type BacktestConfig struct {
	InitialCapital       float64 `yaml:"initial_capital"`
	Slippage             float64 `yaml:"slippage"`
	TrailingStopPct      float64 `yaml:"trailing_stop_pct"`
	MaxHoldingDays       int     `yaml:"max_holding_days"`
	MinProfitRatio       float64 `yaml:"min_profit_ratio"`
	MaxPositionRatio     float64 `yaml:"max_position_ratio"`
	RiskPerTrade         float64 `yaml:"risk_per_trade"`
	ATRMultipleMin       float64 `yaml:"atr_multiple_min"`
	ATRMultipleMax       float64 `yaml:"atr_multiple_max"`
	RiskFreeRate         float64 `yaml:"risk_free_rate"`
	VolatilityPercentile float64 `yaml:"volatility_percentile"`
}

// OptimizeConfig parameterizes grid evaluation.
type OptimizeConfig struct {
	Workers int `yaml:"workers"`
}

// StorageConfig holds database endpoints. Empty DSNs mean the command
// runs with in-memory stores only.
type StorageConfig struct {
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`
}

// IngestConfig holds the market data feed endpoint.
type IngestConfig struct {
	WSURL   string   `yaml:"ws_url"`
	Symbols []string `yaml:"symbols"`
}

// LoadFromFile loads and validates configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Domain().Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Domain converts the YAML backtest section to the engine's config
// type, applying defaults for unset fields.
func (c *Config) Domain() domain.BacktestConfig {
	def := domain.DefaultConfig()
	b := c.Backtest

	out := domain.BacktestConfig{
		InitialCapital:       defaultFloat(b.InitialCapital, def.InitialCapital),
		Slippage:             defaultFloat(b.Slippage, def.Slippage),
		TrailingStopPct:      defaultFloat(b.TrailingStopPct, def.TrailingStopPct),
		MaxHoldingDays:       defaultInt(b.MaxHoldingDays, def.MaxHoldingDays),
		MinProfitRatio:       defaultFloat(b.MinProfitRatio, def.MinProfitRatio),
		MaxPositionRatio:     defaultFloat(b.MaxPositionRatio, def.MaxPositionRatio),
		RiskPerTrade:         defaultFloat(b.RiskPerTrade, def.RiskPerTrade),
		ATRMultipleMin:       defaultFloat(b.ATRMultipleMin, def.ATRMultipleMin),
		ATRMultipleMax:       defaultFloat(b.ATRMultipleMax, def.ATRMultipleMax),
		RiskFreeRate:         defaultFloat(b.RiskFreeRate, def.RiskFreeRate),
		VolatilityPercentile: defaultFloat(b.VolatilityPercentile, def.VolatilityPercentile),
	}
	return out
}

func defaultFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func defaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
