// Package execution validates and applies single trades against the
// ledger. The executor is the only component that mutates ledger
// state; everything else reads it or requests actions through it.
package execution

import (
	"errors"

	"ashare-backtest-lab/internal/domain"
	"ashare-backtest-lab/internal/idhash"
	"ashare-backtest-lab/internal/ledger"
)

// ErrInvalidSignal is returned for non-positive price or volume, or an
// action outside {buy, sell}. Recoverable: the driver skips the step.
var ErrInvalidSignal = errors.New("invalid signal")

// Request carries everything the executor needs for one trade.
type Request struct {
	TimestampMs int64
	Symbol      string
	Action      domain.Action
	Price       float64
	Volume      float64
	StopLoss    float64 // buy only: arms the position's stop-loss
	TakeProfit  float64 // buy only: arms the position's take-profit
	Quality     float64
	Condition   string
	Reason      string
}

// Executor applies trades to a ledger and appends immutable trade
// records. One executor serves exactly one run.
type Executor struct {
	runID    string
	slippage float64
	ledger   *ledger.Ledger
	trades   []*domain.TradeRecord
}

// New creates an executor for a run. slippage is the flat fractional
// execution cost applied against the trade.
func New(runID string, slippage float64, l *ledger.Ledger) *Executor {
	return &Executor{
		runID:    runID,
		slippage: slippage,
		ledger:   l,
		trades:   make([]*domain.TradeRecord, 0),
	}
}

// Execute validates the request, applies it to the ledger at the
// slippage-adjusted price and returns the resulting trade record. On
// any failure the ledger is untouched and no record is created.
func (e *Executor) Execute(req Request) (*domain.TradeRecord, error) {
	if req.Price <= 0 || req.Volume <= 0 || !req.Action.Valid() {
		return nil, ErrInvalidSignal
	}

	switch req.Action {
	case domain.ActionBuy:
		return e.executeBuy(req)
	default:
		return e.executeSell(req)
	}
}

func (e *Executor) executeBuy(req Request) (*domain.TradeRecord, error) {
	effective := req.Price * (1 + e.slippage)

	if err := e.ledger.ApplyBuy(req.Symbol, effective, req.Volume, req.TimestampMs); err != nil {
		return nil, err
	}

	pos := e.ledger.Position(req.Symbol)
	if req.StopLoss > 0 {
		pos.StopLoss = req.StopLoss
	}
	if req.TakeProfit > 0 {
		pos.TakeProfit = req.TakeProfit
	}
	_, drawdown, _ := e.ledger.Snapshot()

	trade := &domain.TradeRecord{
		TradeID:     idhash.ComputeTradeID(e.runID, req.Symbol, string(req.Action), req.TimestampMs, len(e.trades)),
		RunID:       e.runID,
		TimestampMs: req.TimestampMs,
		Symbol:      req.Symbol,
		Action:      req.Action,
		Price:       req.Price,
		Volume:      req.Volume,
		Position:    pos.Volume,
		Drawdown:    drawdown,
		EntryPrice:  pos.EntryPrice,
		StopLoss:    pos.StopLoss,
		TakeProfit:  pos.TakeProfit,
		Quality:     req.Quality,
		Condition:   req.Condition,
		Reason:      req.Reason,
	}
	e.trades = append(e.trades, trade)
	return trade, nil
}

func (e *Executor) executeSell(req Request) (*domain.TradeRecord, error) {
	pos := e.ledger.Position(req.Symbol)
	if pos == nil {
		return nil, ledger.ErrInsufficientPosition
	}

	// Capture entry details before the sell removes the position.
	entryPrice := pos.EntryPrice
	holdingDays := pos.HoldingDays(req.TimestampMs)
	stopLoss := pos.StopLoss
	takeProfit := pos.TakeProfit

	effective := req.Price * (1 - e.slippage)
	profit, err := e.ledger.ApplySell(req.Symbol, effective, req.Volume)
	if err != nil {
		return nil, err
	}

	remaining := 0.0
	if p := e.ledger.Position(req.Symbol); p != nil {
		remaining = p.Volume
	}
	_, drawdown, _ := e.ledger.Snapshot()

	trade := &domain.TradeRecord{
		TradeID:     idhash.ComputeTradeID(e.runID, req.Symbol, string(req.Action), req.TimestampMs, len(e.trades)),
		RunID:       e.runID,
		TimestampMs: req.TimestampMs,
		Symbol:      req.Symbol,
		Action:      req.Action,
		Price:       req.Price,
		Volume:      req.Volume,
		Position:    remaining,
		Profit:      profit,
		Drawdown:    drawdown,
		EntryPrice:  entryPrice,
		ExitPrice:   req.Price,
		HoldingDays: holdingDays,
		StopLoss:    stopLoss,
		TakeProfit:  takeProfit,
		Quality:     req.Quality,
		Condition:   req.Condition,
		Reason:      req.Reason,
	}
	e.trades = append(e.trades, trade)
	return trade, nil
}

// Trades returns the ordered trade log.
func (e *Executor) Trades() []*domain.TradeRecord { return e.trades }
