package domain

// BacktestRun is the persisted summary of one completed run: identity,
// the window it covered, and the headline metrics. The full trade list
// lives in trade_records keyed by RunID.
type BacktestRun struct {
	RunID      string
	Symbol     string
	StrategyID string
	StartMs    int64
	EndMs      int64

	InitialCapital float64
	FinalCapital   float64
	TotalProfit    float64
	MaxDrawdown    float64

	TradeCount       int
	WinRate          float64
	ProfitFactor     float64
	Expectancy       float64
	AnnualizedReturn float64
	SharpeRatio      float64

	CreatedAtMs int64
}

// NewBacktestRun builds a run summary from a finished result.
// createdAtMs records when the run was persisted, not when it traded.
func NewBacktestRun(res *BacktestResult, startMs, endMs int64, initialCapital float64, createdAtMs int64) *BacktestRun {
	return &BacktestRun{
		RunID:            res.RunID,
		Symbol:           res.Symbol,
		StrategyID:       res.StrategyID,
		StartMs:          startMs,
		EndMs:            endMs,
		InitialCapital:   initialCapital,
		FinalCapital:     initialCapital + res.TotalProfit,
		TotalProfit:      res.TotalProfit,
		MaxDrawdown:      res.MaxDrawdown,
		TradeCount:       res.TradeCount,
		WinRate:          res.WinRate,
		ProfitFactor:     res.ProfitFactor,
		Expectancy:       res.Expectancy,
		AnnualizedReturn: res.AnnualizedReturn,
		SharpeRatio:      res.SharpeRatio,
		CreatedAtMs:      createdAtMs,
	}
}
