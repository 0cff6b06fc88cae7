package domain

// TradeRecord represents one executed simulated trade with full
// execution details. Records are created exclusively by the trade
// executor and never mutated afterward; the run's trade log owns them.
type TradeRecord struct {
	TradeID string // deterministic hash
	RunID   string // owning backtest run

	TimestampMs int64   // execution timestamp (ms)
	Symbol      string  // instrument identifier
	Action      Action  // buy | sell
	Price       float64 // requested price before slippage
	Volume      float64 // executed volume

	Position float64 // position volume after execution
	Profit   float64 // realized profit (0 for buys)
	Drawdown float64 // ledger drawdown at execution time

	EntryPrice  float64 // position entry price
	ExitPrice   float64 // requested exit price (sell only)
	HoldingDays int     // holding period length (sell only)
	StopLoss    float64 // stop-loss in force at execution
	TakeProfit  float64 // take-profit in force at execution

	Quality   float64 // signal quality score in [0,1]
	Condition string  // market condition tag
	Reason    string  // free-text reason
}

// Exit reason tags used on forced sells.
const (
	ReasonStopLoss    = "stop_loss"
	ReasonTimeStop    = "time_stop"
	ReasonEndOfPeriod = "end_of_period"
)
