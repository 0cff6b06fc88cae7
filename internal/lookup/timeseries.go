package lookup

import (
	"errors"

	"ashare-backtest-lab/internal/domain"
)

// ErrNoCandleData is returned when a lookup is attempted on an empty series.
var ErrNoCandleData = errors.New("no candle data available")

// CandleAt returns the candle at or before the target timestamp.
// If no candle exists before the target, the first candle is returned.
// Returns ErrNoCandleData if the slice is empty.
func CandleAt(target int64, candles []*domain.Candle) (*domain.Candle, error) {
	if len(candles) == 0 {
		return nil, ErrNoCandleData
	}

	// Find closest candle at or before target
	for i := len(candles) - 1; i >= 0; i-- {
		if candles[i].TimestampMs <= target {
			return candles[i], nil
		}
	}

	// If no candle before target, use first available
	return candles[0], nil
}

// CloseAt returns the close price at or before the target timestamp.
func CloseAt(target int64, candles []*domain.Candle) (float64, error) {
	c, err := CandleAt(target, candles)
	if err != nil {
		return 0, err
	}
	return c.Close, nil
}

// Window returns the sub-series within [start, end] (inclusive).
// The input is assumed time-ordered; the result shares backing storage.
func Window(start, end int64, candles []*domain.Candle) []*domain.Candle {
	lo := 0
	for lo < len(candles) && candles[lo].TimestampMs < start {
		lo++
	}
	hi := lo
	for hi < len(candles) && candles[hi].TimestampMs <= end {
		hi++
	}
	return candles[lo:hi]
}
