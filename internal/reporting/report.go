package reporting

import "time"

// Report is the render-ready view of one backtest run.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	RunID       string
	Symbol      string
	StrategyID  string

	Summary Summary

	// Monthly returns sorted by month ascending
	MonthlyReturns []MonthlyReturnRow

	// Drawdown periods in series order
	DrawdownPeriods []DrawdownPeriodRow

	// All trades in execution order
	Trades []TradeRow
}

// Summary contains the headline metrics table.
type Summary struct {
	InitialCapital float64
	FinalCapital   float64
	TotalProfit    float64
	MaxDrawdown    float64

	TradeCount int
	WinCount   int
	LossCount  int
	WinRate    float64

	AvgWin       float64
	AvgLoss      float64
	MaxWin       float64
	MaxLoss      float64
	ProfitFactor float64
	Expectancy   float64

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int

	AvgHoldingDays   float64
	AnnualizedReturn float64
	Volatility       float64
	SharpeRatio      float64
}

// MonthlyReturnRow is one month's summed sell profit.
type MonthlyReturnRow struct {
	Month  string // "2006-01"
	Profit float64
}

// DrawdownPeriodRow is one below-peak stretch of the capital series.
type DrawdownPeriodRow struct {
	StartIndex int
	EndIndex   int
	Duration   int
	Depth      float64
}

// TradeRow is one executed trade.
type TradeRow struct {
	TradeID     string
	TimestampMs int64
	Action      string
	Price       float64
	Volume      float64
	Profit      float64
	HoldingDays int
	Reason      string
}
