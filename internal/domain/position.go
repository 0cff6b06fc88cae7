package domain

// Position is one open holding. A position exists only while volume > 0:
// it is created on the first buy for a symbol, cost-averaged on
// subsequent buys, reduced on sells, and removed from the ledger when
// volume reaches zero.
type Position struct {
	Symbol      string
	Volume      float64
	Cost        float64 // accumulated cost at effective prices
	AvgPrice    float64 // Cost / Volume
	EntryPrice  float64 // effective price of the opening buy
	EntryTimeMs int64   // timestamp of the opening buy (ms)
	StopLoss    float64 // current stop-loss (0 = unset)
	TakeProfit  float64 // current take-profit (0 = unset)
}

// HoldingDays returns whole days held as of now (ms).
func (p *Position) HoldingDays(nowMs int64) int {
	if nowMs <= p.EntryTimeMs {
		return 0
	}
	return int((nowMs - p.EntryTimeMs) / MillisPerDay)
}
