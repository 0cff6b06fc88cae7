package domain

// DrawdownPeriod describes one stretch of the capital series spent
// below a running peak. A period starts when capital first drops below
// the peak and ends when a new peak is reached (or the series ends).
type DrawdownPeriod struct {
	StartIndex int
	EndIndex   int
	Duration   int
	Depth      float64 // (peak - trough) / peak
}

// BacktestResult is the snapshot of all derived metrics plus the full
// ordered trade list. It is built once when a run finishes and is
// read-only afterward; this is the sole surface the optimizer and
// reporting layers consume.
type BacktestResult struct {
	RunID      string
	Symbol     string
	StrategyID string

	Trades []*TradeRecord

	TotalProfit float64
	MaxDrawdown float64

	TradeCount int
	WinCount   int
	LossCount  int
	WinRate    float64

	AvgWin         float64
	AvgLoss        float64
	MaxWin         float64
	MaxLoss        float64
	ProfitFactor   float64 // +Inf when no losing trades
	RecoveryFactor float64 // +Inf when max drawdown is zero
	Expectancy     float64

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int

	AvgHoldingDays   float64
	AnnualizedReturn float64
	Volatility       float64
	SharpeRatio      float64

	MonthlyReturns  map[string]float64 // "2006-01" → summed sell profit
	DrawdownPeriods []DrawdownPeriod
}
