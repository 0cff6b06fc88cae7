package strategy

import (
	"context"
	"fmt"

	"ashare-backtest-lab/internal/domain"
	"ashare-backtest-lab/internal/indicators"
)

// BollingerStrategy trades band touches as mean reversion: buy when the
// close drops through the lower band, sell when it pushes through the
// upper band.
type BollingerStrategy struct {
	Period int
	Mult   float64 // band width in standard deviations
}

// NewBollingerStrategy creates a new BollingerStrategy.
func NewBollingerStrategy(period int, mult float64) *BollingerStrategy {
	return &BollingerStrategy{Period: period, Mult: mult}
}

// ID returns the strategy identifier including parameters.
func (s *BollingerStrategy) ID() string {
	return fmt.Sprintf("BOLL_%d_%.1f", s.Period, s.Mult)
}

// Next emits a signal when the close crosses a band on the current bar.
func (s *BollingerStrategy) Next(_ context.Context, history []*domain.Candle) (*domain.Signal, error) {
	n := len(history)
	if n < s.Period+1 {
		return hold(history), nil
	}

	closes := indicators.Closes(history)
	middle, upper, lower := indicators.Bollinger(closes, s.Period, s.Mult)

	prev, curr := closes[n-2], closes[n-1]

	switch {
	case prev >= lower[n-2] && curr < lower[n-1]:
		return buildSignal(history, domain.ActionBuy, bandQuality(lower[n-1]-curr, middle[n-1]-lower[n-1]),
			fmt.Sprintf("close %.2f broke lower band %.2f", curr, lower[n-1])), nil
	case prev <= upper[n-2] && curr > upper[n-1]:
		return buildSignal(history, domain.ActionSell, bandQuality(curr-upper[n-1], upper[n-1]-middle[n-1]),
			fmt.Sprintf("close %.2f broke upper band %.2f", curr, upper[n-1])), nil
	default:
		return hold(history), nil
	}
}

// bandQuality rates a break by its overshoot relative to the band
// half-width.
func bandQuality(overshoot, halfWidth float64) float64 {
	if halfWidth <= 0 || overshoot <= 0 {
		return 0.6
	}
	q := 0.6 + overshoot/halfWidth*0.3
	if q > 0.95 {
		q = 0.95
	}
	return q
}
