package strategy

import (
	"context"
	"fmt"
	"math"

	"ashare-backtest-lab/internal/domain"
	"ashare-backtest-lab/internal/indicators"
)

// MACDStrategy trades MACD histogram sign flips: buy when the
// histogram turns positive, sell when it turns negative.
type MACDStrategy struct {
	FastPeriod   int
	SlowPeriod   int
	SignalPeriod int
}

// NewMACDStrategy creates a new MACDStrategy.
func NewMACDStrategy(fast, slow, signal int) *MACDStrategy {
	return &MACDStrategy{FastPeriod: fast, SlowPeriod: slow, SignalPeriod: signal}
}

// ID returns the strategy identifier including parameters.
func (s *MACDStrategy) ID() string {
	return fmt.Sprintf("MACD_%d_%d_%d", s.FastPeriod, s.SlowPeriod, s.SignalPeriod)
}

// Next emits a signal when the histogram changes sign on the current
// bar.
func (s *MACDStrategy) Next(_ context.Context, history []*domain.Candle) (*domain.Signal, error) {
	n := len(history)
	if n < s.SlowPeriod+s.SignalPeriod {
		return hold(history), nil
	}

	closes := indicators.Closes(history)
	_, _, histogram := indicators.MACD(closes, s.FastPeriod, s.SlowPeriod, s.SignalPeriod)

	prev, curr := histogram[n-2], histogram[n-1]
	price := closes[n-1]

	switch {
	case prev <= 0 && curr > 0:
		return buildSignal(history, domain.ActionBuy, histQuality(curr, price), "MACD histogram turned positive"), nil
	case prev >= 0 && curr < 0:
		return buildSignal(history, domain.ActionSell, histQuality(curr, price), "MACD histogram turned negative"), nil
	default:
		return hold(history), nil
	}
}

// histQuality rates a flip by the histogram's magnitude relative to
// price.
func histQuality(hist, price float64) float64 {
	if price <= 0 {
		return 0.5
	}
	q := 0.6 + math.Abs(hist)/price*50
	if q > 0.95 {
		q = 0.95
	}
	return q
}
