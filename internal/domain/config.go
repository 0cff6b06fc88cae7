package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig marks configuration errors. These are fatal: a run
// never starts with an invalid configuration.
var ErrInvalidConfig = errors.New("invalid backtest configuration")

// BacktestConfig holds the parameters of a single backtest run. One
// config is bound to one run; independent runs never share state.
type BacktestConfig struct {
	InitialCapital   float64 // starting cash
	Slippage         float64 // fractional price degradation per fill, [0,1)
	TrailingStopPct  float64 // trailing stop distance as fraction of price
	MaxHoldingDays   int     // time stop threshold
	MinProfitRatio   float64 // base risk/reward ratio for take-profit
	MaxPositionRatio float64 // max fraction of capital in one position
	RiskPerTrade     float64 // fraction of capital risked per trade
	ATRMultipleMin   float64 // lower clamp on the stop-distance multiplier
	ATRMultipleMax   float64 // upper clamp on the stop-distance multiplier
	RiskFreeRate     float64 // annualized, for Sharpe

	// VolatilityPercentile is the market-volatility percentile supplied
	// by the excluded indicator layer, in [0,1].
	VolatilityPercentile float64
}

// DefaultConfig returns the parameter set the original system shipped
// with for A-share daily bars.
func DefaultConfig() BacktestConfig {
	return BacktestConfig{
		InitialCapital:       1_000_000,
		Slippage:             0.001,
		TrailingStopPct:      0.05,
		MaxHoldingDays:       10,
		MinProfitRatio:       3.5,
		MaxPositionRatio:     0.08,
		RiskPerTrade:         0.02,
		ATRMultipleMin:       1.0,
		ATRMultipleMax:       4.0,
		RiskFreeRate:         0.03,
		VolatilityPercentile: 0.5,
	}
}

// Validate checks the configuration. All failures wrap ErrInvalidConfig
// and are surfaced to the caller before the run starts.
func (c BacktestConfig) Validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("%w: initial capital must be positive, got %f", ErrInvalidConfig, c.InitialCapital)
	}
	if c.Slippage < 0 || c.Slippage >= 1 {
		return fmt.Errorf("%w: slippage must be in [0,1), got %f", ErrInvalidConfig, c.Slippage)
	}
	if c.TrailingStopPct <= 0 || c.TrailingStopPct >= 1 {
		return fmt.Errorf("%w: trailing stop pct must be in (0,1), got %f", ErrInvalidConfig, c.TrailingStopPct)
	}
	if c.MaxHoldingDays <= 0 {
		return fmt.Errorf("%w: max holding days must be positive, got %d", ErrInvalidConfig, c.MaxHoldingDays)
	}
	if c.MinProfitRatio <= 0 {
		return fmt.Errorf("%w: min profit ratio must be positive, got %f", ErrInvalidConfig, c.MinProfitRatio)
	}
	if c.MaxPositionRatio <= 0 || c.MaxPositionRatio > 1 {
		return fmt.Errorf("%w: max position ratio must be in (0,1], got %f", ErrInvalidConfig, c.MaxPositionRatio)
	}
	if c.RiskPerTrade <= 0 || c.RiskPerTrade > 1 {
		return fmt.Errorf("%w: risk per trade must be in (0,1], got %f", ErrInvalidConfig, c.RiskPerTrade)
	}
	if c.ATRMultipleMin <= 0 || c.ATRMultipleMax < c.ATRMultipleMin {
		return fmt.Errorf("%w: ATR multiple bounds [%f,%f] invalid", ErrInvalidConfig, c.ATRMultipleMin, c.ATRMultipleMax)
	}
	if c.VolatilityPercentile < 0 || c.VolatilityPercentile > 1 {
		return fmt.Errorf("%w: volatility percentile must be in [0,1], got %f", ErrInvalidConfig, c.VolatilityPercentile)
	}
	return nil
}
