// Package ledger maintains the capital and position state of a single
// backtest run. A Ledger is owned by exactly one run and is mutated
// only through the trade executor; it is not safe for concurrent use
// and does not need to be.
package ledger

import (
	"errors"

	"ashare-backtest-lab/internal/domain"
)

// Ledger errors. Both are recoverable at the run level: the offending
// trade is skipped and the simulation continues.
var (
	ErrInsufficientCapital  = errors.New("insufficient capital")
	ErrInsufficientPosition = errors.New("insufficient position")
)

// Ledger holds cash, open positions and running drawdown state.
// Invariants: cash never goes negative (a violating trade is rejected,
// not executed); at most one Position per symbol; peak cash is
// monotonically non-decreasing.
type Ledger struct {
	initialCapital float64
	cash           float64
	peakCash       float64
	drawdown       float64
	maxDrawdown    float64

	positions map[string]*domain.Position

	consecutiveLosses int
	totalProfit       float64
}

// New creates a ledger with the given starting cash.
func New(initialCapital float64) *Ledger {
	return &Ledger{
		initialCapital: initialCapital,
		cash:           initialCapital,
		peakCash:       initialCapital,
		positions:      make(map[string]*domain.Position),
	}
}

// ApplyBuy deducts cost from cash and creates or cost-averages the
// symbol's position. price is the effective (slippage-adjusted) price.
// Returns ErrInsufficientCapital without mutating anything if the cost
// exceeds available cash.
func (l *Ledger) ApplyBuy(symbol string, price, volume float64, timestampMs int64) error {
	cost := price * volume
	if cost > l.cash {
		return ErrInsufficientCapital
	}

	l.cash -= cost

	if pos, ok := l.positions[symbol]; ok {
		pos.Cost += cost
		pos.Volume += volume
		pos.AvgPrice = pos.Cost / pos.Volume
	} else {
		l.positions[symbol] = &domain.Position{
			Symbol:      symbol,
			Volume:      volume,
			Cost:        cost,
			AvgPrice:    price,
			EntryPrice:  price,
			EntryTimeMs: timestampMs,
		}
	}

	l.updateDrawdown()
	return nil
}

// ApplySell credits proceeds to cash and reduces the symbol's position,
// removing it entirely at zero volume. price is the effective
// (slippage-adjusted) price. Returns the realized profit against the
// position's average price, or ErrInsufficientPosition without mutating
// anything if the requested volume exceeds the held volume.
func (l *Ledger) ApplySell(symbol string, price, volume float64) (float64, error) {
	pos, ok := l.positions[symbol]
	if !ok || volume > pos.Volume {
		return 0, ErrInsufficientPosition
	}

	profit := (price - pos.AvgPrice) * volume
	l.cash += price * volume

	pos.Volume -= volume
	pos.Cost -= pos.AvgPrice * volume
	if pos.Volume <= 0 {
		delete(l.positions, symbol)
	}

	l.totalProfit += profit
	if profit > 0 {
		l.consecutiveLosses = 0
	} else {
		l.consecutiveLosses++
	}

	l.updateDrawdown()
	return profit, nil
}

// updateDrawdown recomputes peak cash and drawdown after a mutation.
func (l *Ledger) updateDrawdown() {
	if l.cash > l.peakCash {
		l.peakCash = l.cash
	}
	l.drawdown = l.peakCash - l.cash
	if l.drawdown < 0 {
		l.drawdown = 0
	}
	if l.drawdown > l.maxDrawdown {
		l.maxDrawdown = l.drawdown
	}
}

// Snapshot returns the current cash, drawdown and max drawdown.
func (l *Ledger) Snapshot() (cash, drawdown, maxDrawdown float64) {
	return l.cash, l.drawdown, l.maxDrawdown
}

// Cash returns available cash.
func (l *Ledger) Cash() float64 { return l.cash }

// InitialCapital returns the starting cash.
func (l *Ledger) InitialCapital() float64 { return l.initialCapital }

// TotalProfit returns cumulative realized profit.
func (l *Ledger) TotalProfit() float64 { return l.totalProfit }

// ConsecutiveLosses returns the current losing streak length.
func (l *Ledger) ConsecutiveLosses() int { return l.consecutiveLosses }

// Position returns the open position for symbol, or nil.
func (l *Ledger) Position(symbol string) *domain.Position {
	return l.positions[symbol]
}

// OpenSymbols returns the symbols with open positions.
func (l *Ledger) OpenSymbols() []string {
	symbols := make([]string, 0, len(l.positions))
	for s := range l.positions {
		symbols = append(symbols, s)
	}
	return symbols
}

// OpenPositionCount returns the number of open positions.
func (l *Ledger) OpenPositionCount() int { return len(l.positions) }
