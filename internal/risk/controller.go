// Package risk computes stop-loss and take-profit targets and evaluates
// trailing and time stops for open positions. The controller never
// mutates the ledger; it only inspects positions and reports forced
// exits for the driver to execute.
package risk

import (
	"math"

	"ashare-backtest-lab/internal/domain"
)

// ExitReason identifies which rule forced an exit.
type ExitReason string

// Forced-exit reasons, in priority order.
const (
	ExitNone     ExitReason = ""
	ExitStopLoss ExitReason = domain.ReasonStopLoss
	ExitTimeStop ExitReason = domain.ReasonTimeStop
)

// Controller evaluates risk rules for one run's positions.
type Controller struct {
	cfg domain.BacktestConfig
}

// NewController creates a controller bound to a run configuration.
// The configuration is assumed validated by the driver.
func NewController(cfg domain.BacktestConfig) *Controller {
	return &Controller{cfg: cfg}
}

// UpdateTrailingStop initializes or ratchets the position's trailing
// stop and reports whether the current price has hit it. The stop only
// ever moves up: while the position is in profit the candidate
// price*(1-trailingPct) replaces the stop only when higher.
func (c *Controller) UpdateTrailingStop(pos *domain.Position, currentPrice float64) (hit bool) {
	if pos.StopLoss <= 0 {
		pos.StopLoss = pos.EntryPrice * (1 - c.cfg.TrailingStopPct)
	}

	if currentPrice > pos.EntryPrice {
		candidate := currentPrice * (1 - c.cfg.TrailingStopPct)
		if candidate > pos.StopLoss {
			pos.StopLoss = candidate
		}
	}

	return currentPrice <= pos.StopLoss
}

// TimeStopHit reports whether the position has been held for at least
// the configured maximum, independent of price.
func (c *Controller) TimeStopHit(pos *domain.Position, nowMs int64) bool {
	return pos.HoldingDays(nowMs) >= c.cfg.MaxHoldingDays
}

// Check runs both rules for a position at the given bar. Forced exits
// take priority over any new entry signal for the same symbol in the
// same time step; the stop-loss rule is checked first.
func (c *Controller) Check(pos *domain.Position, currentPrice float64, nowMs int64) ExitReason {
	if c.UpdateTrailingStop(pos, currentPrice) {
		return ExitStopLoss
	}
	if c.TimeStopHit(pos, nowMs) {
		return ExitTimeStop
	}
	return ExitNone
}

// StopLoss computes the entry stop-loss price from supplied volatility
// (an ATR-like value), trend strength in [-1,1] and signal quality in
// [0,1]. The ATR multiple widens with market volatility percentile,
// with absolute trend strength, and with lower signal quality, clamped
// to the configured band.
func (c *Controller) StopLoss(price, volatility, trendStrength, quality float64) float64 {
	base := 1.5 + c.cfg.VolatilityPercentile*0.03
	trendFactor := 1.0 + math.Abs(trendStrength)*0.5
	qualityFactor := 1.0 + (1.0-quality)*0.5

	multiple := base * trendFactor * qualityFactor
	if multiple < c.cfg.ATRMultipleMin {
		multiple = c.cfg.ATRMultipleMin
	}
	if multiple > c.cfg.ATRMultipleMax {
		multiple = c.cfg.ATRMultipleMax
	}

	stop := price - volatility*multiple
	if stop < 0 {
		stop = 0
	}
	return stop
}

// TakeProfit computes the entry take-profit price from the stop-loss
// distance: price + risk * riskReward, where riskReward scales up from
// the configured minimum with trend strength and signal quality.
func (c *Controller) TakeProfit(price, stopLoss, trendStrength, quality float64) float64 {
	risk := price - stopLoss
	trendFactor := 1.0 + math.Abs(trendStrength)
	qualityFactor := 0.8 + quality*0.4
	riskReward := c.cfg.MinProfitRatio * trendFactor * qualityFactor
	return price + risk*riskReward
}
