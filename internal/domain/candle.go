package domain

// Candle represents one step of a cleaned, time-ordered price series.
// The series arrives already normalized by the data layer; ATR is
// supplied alongside the bar rather than computed here.
type Candle struct {
	Symbol      string // instrument identifier, e.g. "600519"
	TimestampMs int64  // Unix timestamp in milliseconds
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	ATR         float64 // average true range at this bar
}

// MillisPerDay converts millisecond timestamps to holding days.
const MillisPerDay = 24 * 60 * 60 * 1000
