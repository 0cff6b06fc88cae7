package domain

// Action represents a proposed trading action.
type Action string

// Action constants.
const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Valid reports whether the action is one the executor accepts.
func (a Action) Valid() bool {
	return a == ActionBuy || a == ActionSell
}

// Market condition tags carried by signals and trade records.
const (
	ConditionBullish = "bullish"
	ConditionBearish = "bearish"
	ConditionNeutral = "neutral"
)

// Signal is one time step's proposed action plus its confidence and
// context metadata. Signals are produced by the strategy layer and
// aligned 1:1 with the price series.
type Signal struct {
	TimestampMs   int64   // Unix timestamp in milliseconds
	Symbol        string  // instrument identifier
	Action        Action  // buy | sell | hold
	Price         float64 // proposed execution price
	Volume        float64 // requested volume (sell only; 0 = full position)
	StopLoss      float64 // explicit stop-loss (0 = let the risk controller compute one)
	Quality       float64 // signal quality score in [0,1]
	TrendStrength float64 // trend strength in [-1,1]
	Condition     string  // market condition tag
	Reason        string  // free-text rationale
}

// Hold returns a hold signal for the given bar.
func Hold(ts int64, symbol string) *Signal {
	return &Signal{TimestampMs: ts, Symbol: symbol, Action: ActionHold}
}
