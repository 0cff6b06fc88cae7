// Package strategy produces trading signals from price history. Each
// strategy implements the engine's Strategy interface: given the
// candles up to and including the current bar, emit the next signal.
// One driver replaces the per-indicator backtest loops the system used
// to carry; the strategies differ only in how they read the tape.
package strategy

import (
	"ashare-backtest-lab/internal/domain"
	"ashare-backtest-lab/internal/indicators"
)

// trendPeriod is the lookback used for trend-strength context on all
// strategies.
const trendPeriod = 20

// atrPeriod is the lookback for the volatility estimate attached to
// entry signals.
const atrPeriod = 14

// buildSignal assembles a signal with trend and condition context
// computed from the history. quality is the strategy's confidence in
// the trigger, in [0,1].
func buildSignal(history []*domain.Candle, action domain.Action, quality float64, reason string) *domain.Signal {
	current := history[len(history)-1]
	closes := indicators.Closes(history)
	trend := indicators.TrendStrength(closes, trendPeriod)
	strength := trend[len(trend)-1]

	condition := domain.ConditionNeutral
	if strength > 0.3 {
		condition = domain.ConditionBullish
	} else if strength < -0.3 {
		condition = domain.ConditionBearish
	}

	return &domain.Signal{
		TimestampMs:   current.TimestampMs,
		Symbol:        current.Symbol,
		Action:        action,
		Price:         current.Close,
		Quality:       quality,
		TrendStrength: strength,
		Condition:     condition,
		Reason:        reason,
	}
}

// hold returns a hold signal for the current bar.
func hold(history []*domain.Candle) *domain.Signal {
	current := history[len(history)-1]
	return domain.Hold(current.TimestampMs, current.Symbol)
}
