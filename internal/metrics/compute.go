// Package metrics derives summary statistics from a finished run's
// trade log and per-step return series. Everything here is a pure
// function: calling it twice on the same inputs yields identical
// results, and nothing in this package holds state between calls.
package metrics

import (
	"math"
	"time"

	"ashare-backtest-lab/internal/domain"
)

// TradingDaysPerYear is the annualization factor for daily bars.
const TradingDaysPerYear = 252

// Compute builds a BacktestResult from the ordered trade list, the
// per-step return series and the run's initial capital. trades must be
// in chronological order; only sell trades carry realized profit.
func Compute(trades []*domain.TradeRecord, stepReturns []float64, initialCapital, riskFreeRate float64) *domain.BacktestResult {
	result := &domain.BacktestResult{
		Trades:         trades,
		MonthlyReturns: make(map[string]float64),
	}

	sells := sellTrades(trades)

	result.TradeCount = len(sells)
	for _, t := range sells {
		result.TotalProfit += t.Profit
		if t.Profit > 0 {
			result.WinCount++
		} else {
			result.LossCount++
		}
	}
	if result.TradeCount > 0 {
		result.WinRate = float64(result.WinCount) / float64(result.TradeCount)
	}

	// Max drawdown: cash changes only at executions, so the largest
	// drawdown the ledger ever saw is the largest recorded on a trade.
	for _, t := range trades {
		if t.Drawdown > result.MaxDrawdown {
			result.MaxDrawdown = t.Drawdown
		}
	}

	result.AvgWin = avgWin(sells)
	result.AvgLoss = avgLoss(sells)
	result.MaxWin, result.MaxLoss = extremeProfits(sells)
	result.ProfitFactor = profitFactor(sells)
	result.Expectancy = result.WinRate*result.AvgWin - (1-result.WinRate)*result.AvgLoss

	if result.MaxDrawdown > 0 {
		result.RecoveryFactor = result.TotalProfit / result.MaxDrawdown
	} else {
		result.RecoveryFactor = math.Inf(1)
	}

	result.MaxConsecutiveWins, result.MaxConsecutiveLosses = consecutiveStreaks(sells)
	result.AvgHoldingDays = avgHoldingDays(sells)

	result.AnnualizedReturn, result.Volatility, result.SharpeRatio = returnStats(stepReturns, riskFreeRate)
	result.MonthlyReturns = monthlyReturns(sells)
	result.DrawdownPeriods = drawdownPeriods(stepReturns, initialCapital)

	return result
}

// sellTrades filters the log to sell trades, preserving order.
func sellTrades(trades []*domain.TradeRecord) []*domain.TradeRecord {
	var sells []*domain.TradeRecord
	for _, t := range trades {
		if t.Action == domain.ActionSell {
			sells = append(sells, t)
		}
	}
	return sells
}

// avgWin is the mean of positive sell profits, 0 when there are none.
func avgWin(sells []*domain.TradeRecord) float64 {
	sum, n := 0.0, 0
	for _, t := range sells {
		if t.Profit > 0 {
			sum += t.Profit
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// avgLoss is the absolute mean of negative sell profits. Returns 1.0
// when there are no losing trades so expectancy and profit-ratio
// denominators never divide by zero.
func avgLoss(sells []*domain.TradeRecord) float64 {
	sum, n := 0.0, 0
	for _, t := range sells {
		if t.Profit < 0 {
			sum += -t.Profit
			n++
		}
	}
	if n == 0 {
		return 1.0
	}
	return sum / float64(n)
}

// extremeProfits returns the largest single win and the most negative
// single loss.
func extremeProfits(sells []*domain.TradeRecord) (maxWin, maxLoss float64) {
	for _, t := range sells {
		if t.Profit > maxWin {
			maxWin = t.Profit
		}
		if t.Profit < maxLoss {
			maxLoss = t.Profit
		}
	}
	return maxWin, maxLoss
}

// profitFactor is gross winning profit over gross losing loss, +Inf
// when there are no losing trades.
func profitFactor(sells []*domain.TradeRecord) float64 {
	totalWin, totalLoss := 0.0, 0.0
	for _, t := range sells {
		if t.Profit > 0 {
			totalWin += t.Profit
		} else if t.Profit < 0 {
			totalLoss += -t.Profit
		}
	}
	if totalLoss == 0 {
		return math.Inf(1)
	}
	return totalWin / totalLoss
}

// consecutiveStreaks scans sell trades in chronological order with a
// signed streak counter that resets sign on a flip. Breakeven trades
// count as losses.
func consecutiveStreaks(sells []*domain.TradeRecord) (maxWins, maxLosses int) {
	streak := 0
	for _, t := range sells {
		if t.Profit > 0 {
			if streak > 0 {
				streak++
			} else {
				streak = 1
			}
			if streak > maxWins {
				maxWins = streak
			}
		} else {
			if streak < 0 {
				streak--
			} else {
				streak = -1
			}
			if -streak > maxLosses {
				maxLosses = -streak
			}
		}
	}
	return maxWins, maxLosses
}

// avgHoldingDays is the mean holding period of sell trades.
func avgHoldingDays(sells []*domain.TradeRecord) float64 {
	if len(sells) == 0 {
		return 0
	}
	sum := 0
	for _, t := range sells {
		sum += t.HoldingDays
	}
	return float64(sum) / float64(len(sells))
}

// returnStats annualizes the per-step return series: mean × 252 for
// return, stdev × √252 for volatility, and Sharpe against the given
// risk-free rate (0 when volatility is 0).
func returnStats(stepReturns []float64, riskFreeRate float64) (annualized, volatility, sharpe float64) {
	n := len(stepReturns)
	if n == 0 {
		return 0, 0, 0
	}

	mean := 0.0
	for _, r := range stepReturns {
		mean += r
	}
	mean /= float64(n)

	variance := 0.0
	for _, r := range stepReturns {
		diff := r - mean
		variance += diff * diff
	}
	variance /= float64(n)

	annualized = mean * TradingDaysPerYear
	volatility = math.Sqrt(variance) * math.Sqrt(TradingDaysPerYear)
	if volatility > 0 {
		sharpe = (annualized - riskFreeRate) / volatility
	}
	return annualized, volatility, sharpe
}

// monthlyReturns sums sell profit per calendar month of the sell
// timestamp, keyed "2006-01".
func monthlyReturns(sells []*domain.TradeRecord) map[string]float64 {
	monthly := make(map[string]float64)
	for _, t := range sells {
		key := time.UnixMilli(t.TimestampMs).UTC().Format("2006-01")
		monthly[key] += t.Profit
	}
	return monthly
}

// drawdownPeriods scans the cumulative-capital series implied by the
// per-step returns. A period starts when capital first drops below the
// running peak and ends when a new peak is reached; a period still open
// at the end of the series is closed at the final step.
func drawdownPeriods(stepReturns []float64, initialCapital float64) []domain.DrawdownPeriod {
	var periods []domain.DrawdownPeriod

	inDrawdown := false
	startIdx := 0
	peak := initialCapital

	for i, ret := range stepReturns {
		capital := initialCapital * (1 + ret)

		switch {
		case capital > peak:
			if inDrawdown {
				prev := initialCapital * (1 + stepReturns[i-1])
				periods = append(periods, domain.DrawdownPeriod{
					StartIndex: startIdx,
					EndIndex:   i - 1,
					Duration:   i - startIdx,
					Depth:      (peak - prev) / peak,
				})
				inDrawdown = false
			}
			peak = capital
		case capital < peak && !inDrawdown:
			inDrawdown = true
			startIdx = i
		}
	}

	if inDrawdown && len(stepReturns) > 0 {
		last := initialCapital * (1 + stepReturns[len(stepReturns)-1])
		periods = append(periods, domain.DrawdownPeriod{
			StartIndex: startIdx,
			EndIndex:   len(stepReturns) - 1,
			Duration:   len(stepReturns) - startIdx,
			Depth:      (peak - last) / peak,
		})
	}

	return periods
}
