package strategy

import (
	"context"
	"fmt"

	"ashare-backtest-lab/internal/domain"
	"ashare-backtest-lab/internal/indicators"
)

// MACrossStrategy trades moving-average crossovers: buy when the fast
// average crosses above the slow one, sell on the opposite cross.
type MACrossStrategy struct {
	FastPeriod int
	SlowPeriod int
}

// NewMACrossStrategy creates a new MACrossStrategy.
func NewMACrossStrategy(fast, slow int) *MACrossStrategy {
	return &MACrossStrategy{FastPeriod: fast, SlowPeriod: slow}
}

// ID returns the strategy identifier including parameters.
func (s *MACrossStrategy) ID() string {
	return fmt.Sprintf("MA_CROSS_%d_%d", s.FastPeriod, s.SlowPeriod)
}

// Next emits a signal when the fast and slow averages cross on the
// current bar.
func (s *MACrossStrategy) Next(_ context.Context, history []*domain.Candle) (*domain.Signal, error) {
	n := len(history)
	if n < s.SlowPeriod+1 {
		return hold(history), nil
	}

	closes := indicators.Closes(history)
	fast := indicators.SMA(closes, s.FastPeriod)
	slow := indicators.SMA(closes, s.SlowPeriod)

	prevDiff := fast[n-2] - slow[n-2]
	currDiff := fast[n-1] - slow[n-1]

	switch {
	case prevDiff <= 0 && currDiff > 0:
		quality := crossQuality(currDiff, slow[n-1])
		return buildSignal(history, domain.ActionBuy, quality,
			fmt.Sprintf("MA%d crossed above MA%d", s.FastPeriod, s.SlowPeriod)), nil
	case prevDiff >= 0 && currDiff < 0:
		quality := crossQuality(-currDiff, slow[n-1])
		return buildSignal(history, domain.ActionSell, quality,
			fmt.Sprintf("MA%d crossed below MA%d", s.FastPeriod, s.SlowPeriod)), nil
	default:
		return hold(history), nil
	}
}

// crossQuality rates a crossover by its separation relative to the
// slow average: a decisive cross scores higher than a graze.
func crossQuality(separation, base float64) float64 {
	if base <= 0 {
		return 0.5
	}
	q := 0.6 + separation/base*20
	if q > 0.95 {
		q = 0.95
	}
	return q
}
