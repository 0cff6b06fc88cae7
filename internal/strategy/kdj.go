package strategy

import (
	"context"
	"fmt"

	"ashare-backtest-lab/internal/domain"
	"ashare-backtest-lab/internal/indicators"
)

// KDJStrategy trades stochastic reversals: buy when K crosses above D
// in the oversold zone, sell when K crosses below D in the overbought
// zone.
type KDJStrategy struct {
	Period     int
	Oversold   float64 // K/D level considered oversold, e.g. 20
	Overbought float64 // K/D level considered overbought, e.g. 80
}

// NewKDJStrategy creates a new KDJStrategy.
func NewKDJStrategy(period int, oversold, overbought float64) *KDJStrategy {
	return &KDJStrategy{Period: period, Oversold: oversold, Overbought: overbought}
}

// ID returns the strategy identifier including parameters.
func (s *KDJStrategy) ID() string {
	return fmt.Sprintf("KDJ_%d_%.0f_%.0f", s.Period, s.Oversold, s.Overbought)
}

// Next emits a signal on K/D crosses inside the extreme zones.
func (s *KDJStrategy) Next(_ context.Context, history []*domain.Candle) (*domain.Signal, error) {
	n := len(history)
	if n < s.Period+1 {
		return hold(history), nil
	}

	k, d, j := indicators.KDJ(history, s.Period)

	prevDiff := k[n-2] - d[n-2]
	currDiff := k[n-1] - d[n-1]

	switch {
	case prevDiff <= 0 && currDiff > 0 && d[n-1] < s.Oversold:
		return buildSignal(history, domain.ActionBuy, zoneQuality(s.Oversold-j[n-1], s.Oversold),
			fmt.Sprintf("K crossed above D at %.1f (oversold)", d[n-1])), nil
	case prevDiff >= 0 && currDiff < 0 && d[n-1] > s.Overbought:
		return buildSignal(history, domain.ActionSell, zoneQuality(j[n-1]-s.Overbought, 100-s.Overbought),
			fmt.Sprintf("K crossed below D at %.1f (overbought)", d[n-1])), nil
	default:
		return hold(history), nil
	}
}

// zoneQuality rates a reversal by how deep into the extreme zone the J
// line reached.
func zoneQuality(depth, zone float64) float64 {
	if zone <= 0 || depth <= 0 {
		return 0.6
	}
	q := 0.6 + depth/zone*0.35
	if q > 0.95 {
		q = 0.95
	}
	return q
}
