// Package engine runs backtest simulations. The driver makes a single
// pass over a time-ordered candle/signal pair, runs risk checks before
// signal processing on every step, executes trades through the
// executor, and hands the finished run to the metrics calculator.
//
// A driver run is strictly single-threaded: each step observes the
// ledger state left by the previous step. Parallelism belongs one
// level up, across independent runs that share nothing.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"

	"ashare-backtest-lab/internal/domain"
	"ashare-backtest-lab/internal/execution"
	"ashare-backtest-lab/internal/idhash"
	"ashare-backtest-lab/internal/ledger"
	"ashare-backtest-lab/internal/metrics"
	"ashare-backtest-lab/internal/observability"
	"ashare-backtest-lab/internal/risk"
)

// State of a simulation run.
type State int

// Run states. A run moves Running → Finished exactly once; recoverable
// per-step errors never leave the Running state early.
const (
	StateRunning State = iota
	StateFinished
)

// Strategy produces the next signal given the history up to now. The
// last element of history is the current bar. Implementations live in
// the strategy package; the driver only consumes the interface.
type Strategy interface {
	Next(ctx context.Context, history []*domain.Candle) (*domain.Signal, error)

	// ID returns the strategy identifier (includes parameters).
	ID() string
}

// Driver executes backtest runs for one configuration.
type Driver struct {
	cfg     domain.BacktestConfig
	verbose bool
}

// NewDriver validates the configuration and creates a driver. An
// invalid configuration is the only fatal error in this package: it is
// returned here, before any run starts.
func NewDriver(cfg domain.BacktestConfig) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Driver{cfg: cfg}, nil
}

// SetVerbose enables per-step skip logging.
func (d *Driver) SetVerbose(v bool) { d.verbose = v }

// Run executes one simulation over candles with a pre-computed signal
// stream aligned 1:1 with the series. A BacktestResult is always
// returned once the run starts; per-step trade rejections are logged
// and skipped, never aborting the pass.
func (d *Driver) Run(ctx context.Context, symbol, strategyID string, candles []*domain.Candle, signals []*domain.Signal) (*domain.BacktestResult, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: empty price series", domain.ErrInvalidConfig)
	}
	if len(signals) != len(candles) {
		return nil, fmt.Errorf("%w: %d signals for %d candles", domain.ErrInvalidConfig, len(signals), len(candles))
	}
	for i := 1; i < len(candles); i++ {
		if candles[i].TimestampMs <= candles[i-1].TimestampMs {
			return nil, fmt.Errorf("%w: timestamps not strictly increasing at index %d", domain.ErrInvalidConfig, i)
		}
	}

	runID := idhash.ComputeRunID(symbol, strategyID, candles[0].TimestampMs, candles[len(candles)-1].TimestampMs)

	run := &run{
		driver:     d,
		runID:      runID,
		symbol:     symbol,
		strategyID: strategyID,
		ledger:     ledger.New(d.cfg.InitialCapital),
		controller: risk.NewController(d.cfg),
		state:      StateRunning,
	}
	run.executor = execution.New(runID, d.cfg.Slippage, run.ledger)

	for i, candle := range candles {
		observability.DefaultMetrics.CandlesProcessed.Inc()
		run.checkStops(candle)
		run.handleSignal(candle, signals[i])
		if i == len(candles)-1 {
			run.liquidate(candle)
		}
		run.recordReturn()
	}
	run.state = StateFinished

	result := metrics.Compute(run.executor.Trades(), run.stepReturns, d.cfg.InitialCapital, d.cfg.RiskFreeRate)
	result.RunID = runID
	result.Symbol = symbol
	result.StrategyID = strategyID
	return result, nil
}

// RunStrategy generates the signal stream bar by bar from a strategy
// and then drives it like Run. The strategy sees history up to and
// including the current bar; a strategy error on a bar degrades to a
// hold signal.
func (d *Driver) RunStrategy(ctx context.Context, symbol string, candles []*domain.Candle, strat Strategy) (*domain.BacktestResult, error) {
	signals := make([]*domain.Signal, len(candles))
	for i, c := range candles {
		sig, err := strat.Next(ctx, candles[:i+1])
		if err != nil || sig == nil {
			if err != nil {
				d.logf("strategy %s: bar %d: %v (holding)", strat.ID(), i, err)
			}
			sig = domain.Hold(c.TimestampMs, symbol)
		}
		signals[i] = sig
	}
	return d.Run(ctx, symbol, strat.ID(), candles, signals)
}

// run holds the mutable state of one simulation pass.
type run struct {
	driver     *Driver
	runID      string
	symbol     string
	strategyID string

	ledger     *ledger.Ledger
	executor   *execution.Executor
	controller *risk.Controller

	stepReturns []float64
	state       State
}

// checkStops evaluates trailing and time stops for every open position
// and force-exits the ones that hit. Forced exits run before signal
// processing, so they take priority over a same-step entry.
func (r *run) checkStops(candle *domain.Candle) {
	symbols := r.ledger.OpenSymbols()
	sort.Strings(symbols)

	for _, symbol := range symbols {
		pos := r.ledger.Position(symbol)
		if pos == nil {
			continue
		}

		reason := r.controller.Check(pos, candle.Close, candle.TimestampMs)
		if reason == risk.ExitNone {
			continue
		}

		_, err := r.executor.Execute(execution.Request{
			TimestampMs: candle.TimestampMs,
			Symbol:      symbol,
			Action:      domain.ActionSell,
			Price:       candle.Close,
			Volume:      pos.Volume,
			Quality:     0.9,
			Condition:   domain.ConditionNeutral,
			Reason:      string(reason),
		})
		if err != nil {
			r.logf("forced exit %s (%s): %v (skipped)", symbol, reason, err)
			observability.RecordSkippedSignal("forced_exit_rejected")
			continue
		}
		observability.RecordTrade(string(domain.ActionSell), string(reason))
	}
}

// handleSignal applies the bar's signal. Rejected trades are logged and
// skipped; the loop always continues.
func (r *run) handleSignal(candle *domain.Candle, sig *domain.Signal) {
	if sig == nil || sig.Action == domain.ActionHold {
		return
	}

	price := sig.Price
	if price <= 0 {
		price = candle.Close
	}

	switch sig.Action {
	case domain.ActionBuy:
		r.handleBuy(candle, sig, price)
	case domain.ActionSell:
		r.handleSell(sig, price)
	default:
		r.logf("step %d: %v (skipped)", candle.TimestampMs, execution.ErrInvalidSignal)
		observability.RecordSkippedSignal("invalid_action")
	}
}

// handleBuy opens a position when the symbol is flat: compute the stop,
// size the position against it, execute, then arm take-profit.
func (r *run) handleBuy(candle *domain.Candle, sig *domain.Signal, price float64) {
	if r.ledger.Position(sig.Symbol) != nil {
		return // one position per symbol; scaling in is not modeled
	}

	stop := sig.StopLoss
	if stop <= 0 || stop >= price {
		volatility := candle.ATR
		if volatility <= 0 {
			volatility = price * 0.02
		}
		stop = r.controller.StopLoss(price, volatility, sig.TrendStrength, sig.Quality)
	}
	takeProfit := r.controller.TakeProfit(price, stop, sig.TrendStrength, sig.Quality)

	volume := r.positionSize(price, stop, sig.Quality, sig.Condition)
	if volume <= 0 {
		r.logf("buy %s at %d: zero volume after sizing (skipped)", sig.Symbol, sig.TimestampMs)
		observability.RecordSkippedSignal("zero_volume")
		return
	}

	_, err := r.executor.Execute(execution.Request{
		TimestampMs: sig.TimestampMs,
		Symbol:      sig.Symbol,
		Action:      domain.ActionBuy,
		Price:       price,
		Volume:      volume,
		StopLoss:    stop,
		TakeProfit:  takeProfit,
		Quality:     sig.Quality,
		Condition:   sig.Condition,
		Reason:      sig.Reason,
	})
	if err != nil {
		r.logf("buy %s at %d: %v (skipped)", sig.Symbol, sig.TimestampMs, err)
		observability.RecordSkippedSignal("buy_rejected")
		return
	}
	observability.RecordTrade(string(domain.ActionBuy), sig.Reason)
}

// handleSell closes all or part of an existing position. A sell with no
// position is silently a no-op for the step.
func (r *run) handleSell(sig *domain.Signal, price float64) {
	pos := r.ledger.Position(sig.Symbol)
	if pos == nil {
		return
	}

	volume := pos.Volume
	if sig.Volume > 0 && sig.Volume < pos.Volume {
		volume = sig.Volume
	}

	_, err := r.executor.Execute(execution.Request{
		TimestampMs: sig.TimestampMs,
		Symbol:      sig.Symbol,
		Action:      domain.ActionSell,
		Price:       price,
		Volume:      volume,
		Quality:     sig.Quality,
		Condition:   sig.Condition,
		Reason:      sig.Reason,
	})
	if err != nil {
		r.logf("sell %s at %d: %v (skipped)", sig.Symbol, sig.TimestampMs, err)
		observability.RecordSkippedSignal("sell_rejected")
		return
	}
	observability.RecordTrade(string(domain.ActionSell), sig.Reason)
}

// positionSize computes buy volume in whole shares: the risk-per-trade
// fraction divided by the relative stop distance, scaled by signal
// quality and market condition, capped at the max position ratio.
func (r *run) positionSize(price, stop, quality float64, condition string) float64 {
	stopDistance := (price - stop) / price
	if stopDistance <= 0 {
		return 0
	}

	fraction := r.driver.cfg.RiskPerTrade / stopDistance
	fraction *= qualityFactor(quality)
	fraction *= conditionFactor(condition)
	if fraction > r.driver.cfg.MaxPositionRatio {
		fraction = r.driver.cfg.MaxPositionRatio
	}

	effective := price * (1 + r.driver.cfg.Slippage)
	return math.Floor(r.ledger.Cash() * fraction / effective)
}

// qualityFactor scales size by signal confidence, 0.5 at quality 0 up
// to 1.0 at quality 1.
func qualityFactor(quality float64) float64 {
	if quality < 0 {
		quality = 0
	}
	if quality > 1 {
		quality = 1
	}
	return 0.5 + 0.5*quality
}

// conditionFactor scales size by the market-condition tag.
func conditionFactor(condition string) float64 {
	switch condition {
	case domain.ConditionBullish:
		return 1.2
	case domain.ConditionBearish:
		return 0.7
	default:
		return 1.0
	}
}

// liquidate force-closes every remaining position at the last bar's
// close. After this the ledger's position map is empty.
func (r *run) liquidate(last *domain.Candle) {
	symbols := r.ledger.OpenSymbols()
	sort.Strings(symbols)

	for _, symbol := range symbols {
		pos := r.ledger.Position(symbol)
		if pos == nil {
			continue
		}
		_, err := r.executor.Execute(execution.Request{
			TimestampMs: last.TimestampMs,
			Symbol:      symbol,
			Action:      domain.ActionSell,
			Price:       last.Close,
			Volume:      pos.Volume,
			Quality:     0.5,
			Condition:   domain.ConditionNeutral,
			Reason:      domain.ReasonEndOfPeriod,
		})
		if err != nil {
			r.logf("liquidate %s: %v", symbol, err)
			continue
		}
		observability.RecordTrade(string(domain.ActionSell), domain.ReasonEndOfPeriod)
	}
}

// recordReturn samples the cumulative cash return relative to initial
// capital. Metrics later annualize this series.
func (r *run) recordReturn() {
	cash, _, _ := r.ledger.Snapshot()
	r.stepReturns = append(r.stepReturns, (cash-r.ledger.InitialCapital())/r.ledger.InitialCapital())
}

func (r *run) logf(format string, args ...any) {
	r.driver.logf(format, args...)
}

func (d *Driver) logf(format string, args ...any) {
	if d.verbose {
		log.Printf("[engine] "+format, args...)
	}
}

// IsRecoverable reports whether a trade error is one the driver skips.
func IsRecoverable(err error) bool {
	return errors.Is(err, ledger.ErrInsufficientCapital) ||
		errors.Is(err, ledger.ErrInsufficientPosition) ||
		errors.Is(err, execution.ErrInvalidSignal)
}
