package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"ashare-backtest-lab/internal/domain"
	"ashare-backtest-lab/internal/execution"
	"ashare-backtest-lab/internal/ledger"
	"ashare-backtest-lab/internal/observability"
)

func testConfig() domain.BacktestConfig {
	cfg := domain.DefaultConfig()
	cfg.Slippage = 0
	return cfg
}

// flatCandles builds a daily series at the given closes, one candle per
// day starting at t=0.
func flatCandles(symbol string, closes ...float64) []*domain.Candle {
	candles := make([]*domain.Candle, len(closes))
	for i, c := range closes {
		candles[i] = &domain.Candle{
			Symbol:      symbol,
			TimestampMs: int64(i) * domain.MillisPerDay,
			Open:        c,
			High:        c * 1.01,
			Low:         c * 0.99,
			Close:       c,
			Volume:      10_000,
			ATR:         2.0,
		}
	}
	return candles
}

// holds returns an all-hold signal stream aligned with candles.
func holds(candles []*domain.Candle) []*domain.Signal {
	signals := make([]*domain.Signal, len(candles))
	for i, c := range candles {
		signals[i] = domain.Hold(c.TimestampMs, c.Symbol)
	}
	return signals
}

func buySignal(c *domain.Candle, stop float64) *domain.Signal {
	return &domain.Signal{
		TimestampMs: c.TimestampMs,
		Symbol:      c.Symbol,
		Action:      domain.ActionBuy,
		StopLoss:    stop,
		Quality:     1.0,
		Condition:   domain.ConditionNeutral,
		Reason:      "test entry",
	}
}

func sellSignal(c *domain.Candle) *domain.Signal {
	return &domain.Signal{
		TimestampMs: c.TimestampMs,
		Symbol:      c.Symbol,
		Action:      domain.ActionSell,
		Quality:     1.0,
		Condition:   domain.ConditionNeutral,
		Reason:      "test exit",
	}
}

func TestNewDriver_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Slippage = 1.5

	if _, err := NewDriver(cfg); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestRun_InputValidation(t *testing.T) {
	driver, err := NewDriver(testConfig())
	if err != nil {
		t.Fatalf("NewDriver failed: %v", err)
	}
	ctx := context.Background()

	if _, err := driver.Run(ctx, "600519", "s", nil, nil); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("empty series: expected ErrInvalidConfig, got %v", err)
	}

	candles := flatCandles("600519", 100, 101)
	if _, err := driver.Run(ctx, "600519", "s", candles, holds(candles)[:1]); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("signal mismatch: expected ErrInvalidConfig, got %v", err)
	}

	candles[1].TimestampMs = candles[0].TimestampMs
	if _, err := driver.Run(ctx, "600519", "s", candles, holds(candles)); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("non-increasing timestamps: expected ErrInvalidConfig, got %v", err)
	}
}

func TestRun_BuyThenSell(t *testing.T) {
	driver, err := NewDriver(testConfig())
	if err != nil {
		t.Fatalf("NewDriver failed: %v", err)
	}

	candles := flatCandles("600519", 100, 100, 110, 110, 110)
	signals := holds(candles)
	signals[0] = buySignal(candles[0], 95)
	signals[2] = sellSignal(candles[2])

	result, err := driver.Run(context.Background(), "600519", "test", candles, signals)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(result.Trades))
	}

	// Sizing: risk 2% over a 5% stop distance is 40%, capped at the 8%
	// position ratio: floor(1,000,000 * 0.08 / 100) = 800 shares.
	buy := result.Trades[0]
	if buy.Action != domain.ActionBuy || buy.Volume != 800 {
		t.Errorf("unexpected buy: action=%s volume=%.0f", buy.Action, buy.Volume)
	}
	if buy.StopLoss != 95 {
		t.Errorf("explicit stop not used: %.2f", buy.StopLoss)
	}

	sell := result.Trades[1]
	if sell.Action != domain.ActionSell || sell.Reason != "test exit" {
		t.Errorf("unexpected sell: action=%s reason=%q", sell.Action, sell.Reason)
	}
	if sell.Profit != 8000 {
		t.Errorf("expected profit 8000, got %.2f", sell.Profit)
	}
	if result.TotalProfit != 8000 {
		t.Errorf("expected total profit 8000, got %.2f", result.TotalProfit)
	}
	if result.TradeCount != 1 || result.WinCount != 1 {
		t.Errorf("expected one winning round trip, got count=%d wins=%d", result.TradeCount, result.WinCount)
	}
}

func TestRun_TrailingStopForcedExit(t *testing.T) {
	driver, err := NewDriver(testConfig())
	if err != nil {
		t.Fatalf("NewDriver failed: %v", err)
	}

	// Entry at 100, rally to 120 ratchets the stop to 114, the drop to
	// 110 hits it.
	candles := flatCandles("600519", 100, 120, 110, 110, 110)
	signals := holds(candles)
	signals[0] = buySignal(candles[0], 95)

	result, err := driver.Run(context.Background(), "600519", "test", candles, signals)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(result.Trades))
	}
	exit := result.Trades[1]
	if exit.Reason != domain.ReasonStopLoss {
		t.Errorf("expected stop_loss exit, got %q", exit.Reason)
	}
	if exit.TimestampMs != candles[2].TimestampMs {
		t.Errorf("exit on wrong bar: %d", exit.TimestampMs)
	}
	if exit.Price != 110 {
		t.Errorf("forced exit not at bar close: %.2f", exit.Price)
	}
	if exit.Profit != 8000 {
		t.Errorf("expected profit 8000, got %.2f", exit.Profit)
	}
}

func TestRun_TimeStopForcedExit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxHoldingDays = 5
	driver, err := NewDriver(cfg)
	if err != nil {
		t.Fatalf("NewDriver failed: %v", err)
	}

	// Flat tape: nothing else can force the exit.
	closes := make([]float64, 9)
	for i := range closes {
		closes[i] = 100
	}
	candles := flatCandles("600519", closes...)
	signals := holds(candles)
	signals[0] = buySignal(candles[0], 95)

	result, err := driver.Run(context.Background(), "600519", "test", candles, signals)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(result.Trades))
	}
	exit := result.Trades[1]
	if exit.Reason != domain.ReasonTimeStop {
		t.Errorf("expected time_stop exit, got %q", exit.Reason)
	}
	if exit.HoldingDays != 5 {
		t.Errorf("expected exit after 5 days, got %d", exit.HoldingDays)
	}
}

func TestRun_EndOfPeriodLiquidation(t *testing.T) {
	driver, err := NewDriver(testConfig())
	if err != nil {
		t.Fatalf("NewDriver failed: %v", err)
	}

	candles := flatCandles("600519", 100, 102, 104)
	signals := holds(candles)
	signals[0] = buySignal(candles[0], 95)

	result, err := driver.Run(context.Background(), "600519", "test", candles, signals)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(result.Trades))
	}
	exit := result.Trades[1]
	if exit.Reason != domain.ReasonEndOfPeriod {
		t.Errorf("expected end_of_period exit, got %q", exit.Reason)
	}
	if exit.Price != 104 || exit.TimestampMs != candles[2].TimestampMs {
		t.Errorf("liquidation not at last close: price=%.2f ts=%d", exit.Price, exit.TimestampMs)
	}
	if exit.Position != 0 {
		t.Errorf("position not flat after liquidation: %.0f", exit.Position)
	}
}

func TestRun_ForcedExitBeforeSameBarEntry(t *testing.T) {
	driver, err := NewDriver(testConfig())
	if err != nil {
		t.Fatalf("NewDriver failed: %v", err)
	}

	// Bar 1 drops through the stop and also carries a new entry signal:
	// the forced exit runs first, then the entry finds the book flat.
	candles := flatCandles("600519", 100, 90, 90, 90)
	signals := holds(candles)
	signals[0] = buySignal(candles[0], 95)
	signals[1] = buySignal(candles[1], 85)

	result, err := driver.Run(context.Background(), "600519", "test", candles, signals)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// buy, forced sell, re-entry buy, end-of-period liquidation.
	if len(result.Trades) != 4 {
		t.Fatalf("expected 4 trades, got %d", len(result.Trades))
	}
	if result.Trades[1].Action != domain.ActionSell || result.Trades[1].Reason != domain.ReasonStopLoss {
		t.Errorf("bar 1 first trade is not the forced exit: %+v", result.Trades[1])
	}
	if result.Trades[2].Action != domain.ActionBuy {
		t.Errorf("bar 1 second trade is not the re-entry: %+v", result.Trades[2])
	}
	if result.Trades[1].TimestampMs != result.Trades[2].TimestampMs {
		t.Error("forced exit and re-entry not on the same bar")
	}
}

func TestRun_SkipAndContinue(t *testing.T) {
	driver, err := NewDriver(testConfig())
	if err != nil {
		t.Fatalf("NewDriver failed: %v", err)
	}

	candles := flatCandles("600519", 100, 100, 100, 110, 110)
	signals := holds(candles)
	signals[0] = sellSignal(candles[0]) // no position yet: no-op
	signals[1] = buySignal(candles[1], 95)
	signals[2] = buySignal(candles[2], 95) // already positioned: no-op
	signals[3] = sellSignal(candles[3])

	result, err := driver.Run(context.Background(), "600519", "test", candles, signals)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Trades) != 2 {
		t.Fatalf("expected 2 trades after skipped steps, got %d", len(result.Trades))
	}
	if result.Trades[0].Action != domain.ActionBuy || result.Trades[1].Action != domain.ActionSell {
		t.Errorf("unexpected trade sequence: %s, %s", result.Trades[0].Action, result.Trades[1].Action)
	}
	if result.TotalProfit != 8000 {
		t.Errorf("expected profit 8000, got %.2f", result.TotalProfit)
	}
}

func TestRun_SlippageConservation(t *testing.T) {
	cfg := testConfig()
	cfg.Slippage = 0.001
	driver, err := NewDriver(cfg)
	if err != nil {
		t.Fatalf("NewDriver failed: %v", err)
	}

	candles := flatCandles("600519", 100, 100, 110)
	signals := holds(candles)
	signals[0] = buySignal(candles[0], 95)
	signals[2] = sellSignal(candles[2])

	result, err := driver.Run(context.Background(), "600519", "test", candles, signals)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(result.Trades))
	}

	// volume = floor(1,000,000 * 0.08 / (100 * 1.001)) = 799. Profit is
	// computed at effective prices on both legs.
	volume := result.Trades[0].Volume
	if volume != 799 {
		t.Errorf("expected 799 shares after slippage-adjusted sizing, got %.0f", volume)
	}
	wantProfit := volume * (110*(1-cfg.Slippage) - 100*(1+cfg.Slippage))
	if math.Abs(result.TotalProfit-wantProfit) > 1e-6 {
		t.Errorf("expected profit %.4f, got %.4f", wantProfit, result.TotalProfit)
	}
}

func TestRun_Deterministic(t *testing.T) {
	driver, err := NewDriver(testConfig())
	if err != nil {
		t.Fatalf("NewDriver failed: %v", err)
	}

	run := func() *domain.BacktestResult {
		candles := flatCandles("600519", 100, 105, 110, 102, 108)
		signals := holds(candles)
		signals[0] = buySignal(candles[0], 95)
		signals[2] = sellSignal(candles[2])

		result, err := driver.Run(context.Background(), "600519", "test", candles, signals)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		return result
	}

	a, b := run(), run()
	if a.RunID != b.RunID {
		t.Errorf("run IDs differ: %s vs %s", a.RunID, b.RunID)
	}
	if len(a.Trades) != len(b.Trades) {
		t.Fatalf("trade counts differ: %d vs %d", len(a.Trades), len(b.Trades))
	}
	for i := range a.Trades {
		if a.Trades[i].TradeID != b.Trades[i].TradeID {
			t.Errorf("trade %d IDs differ", i)
		}
	}
	if a.TotalProfit != b.TotalProfit || a.SharpeRatio != b.SharpeRatio {
		t.Error("results differ between identical runs")
	}
}

// scriptedStrategy buys on one bar and sells on another, by history
// length.
type scriptedStrategy struct {
	buyBar  int
	sellBar int
}

func (s *scriptedStrategy) ID() string { return "SCRIPTED" }

func (s *scriptedStrategy) Next(_ context.Context, history []*domain.Candle) (*domain.Signal, error) {
	current := history[len(history)-1]
	switch len(history) - 1 {
	case s.buyBar:
		return &domain.Signal{
			TimestampMs: current.TimestampMs,
			Symbol:      current.Symbol,
			Action:      domain.ActionBuy,
			StopLoss:    current.Close * 0.95,
			Quality:     1.0,
			Condition:   domain.ConditionNeutral,
		}, nil
	case s.sellBar:
		return &domain.Signal{
			TimestampMs: current.TimestampMs,
			Symbol:      current.Symbol,
			Action:      domain.ActionSell,
			Quality:     1.0,
		}, nil
	default:
		return domain.Hold(current.TimestampMs, current.Symbol), nil
	}
}

func TestRunStrategy(t *testing.T) {
	driver, err := NewDriver(testConfig())
	if err != nil {
		t.Fatalf("NewDriver failed: %v", err)
	}

	candles := flatCandles("600519", 100, 100, 105, 110, 110)
	result, err := driver.RunStrategy(context.Background(), "600519", candles, &scriptedStrategy{buyBar: 1, sellBar: 3})
	if err != nil {
		t.Fatalf("RunStrategy failed: %v", err)
	}

	if result.StrategyID != "SCRIPTED" {
		t.Errorf("unexpected strategy ID %q", result.StrategyID)
	}
	if len(result.Trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(result.Trades))
	}
	if result.TotalProfit <= 0 {
		t.Errorf("expected a profitable round trip, got %.2f", result.TotalProfit)
	}
}

// failingStrategy errors on every bar.
type failingStrategy struct{}

func (failingStrategy) ID() string { return "FAILING" }

func (failingStrategy) Next(_ context.Context, history []*domain.Candle) (*domain.Signal, error) {
	return nil, fmt.Errorf("no signal available")
}

func TestRunStrategy_ErrorDegradesToHold(t *testing.T) {
	driver, err := NewDriver(testConfig())
	if err != nil {
		t.Fatalf("NewDriver failed: %v", err)
	}

	candles := flatCandles("600519", 100, 101, 102)
	result, err := driver.RunStrategy(context.Background(), "600519", candles, failingStrategy{})
	if err != nil {
		t.Fatalf("RunStrategy failed: %v", err)
	}
	if result.TradeCount != 0 || len(result.Trades) != 0 {
		t.Errorf("erroring strategy produced trades: %d", len(result.Trades))
	}
}

func TestIsRecoverable(t *testing.T) {
	for _, err := range []error{
		ledger.ErrInsufficientCapital,
		ledger.ErrInsufficientPosition,
		execution.ErrInvalidSignal,
		fmt.Errorf("wrapped: %w", ledger.ErrInsufficientCapital),
	} {
		if !IsRecoverable(err) {
			t.Errorf("expected %v to be recoverable", err)
		}
	}

	if IsRecoverable(domain.ErrInvalidConfig) {
		t.Error("config errors must not be recoverable")
	}
}

func TestRun_RecordsStepMetrics(t *testing.T) {
	m := observability.DefaultMetrics
	candlesBefore := testutil.ToFloat64(m.CandlesProcessed)
	buysBefore := testutil.ToFloat64(m.TradesExecuted.WithLabelValues("buy", "test entry"))
	exitsBefore := testutil.ToFloat64(m.TradesExecuted.WithLabelValues("sell", domain.ReasonEndOfPeriod))
	skipsBefore := testutil.ToFloat64(m.SignalsSkipped.WithLabelValues("invalid_action"))

	candles := flatCandles("600519", 100, 102, 104)
	signals := holds(candles)
	signals[0] = buySignal(candles[0], 95)
	signals[1] = &domain.Signal{
		TimestampMs: candles[1].TimestampMs,
		Symbol:      "600519",
		Action:      domain.Action("short"),
	}

	d, err := NewDriver(testConfig())
	if err != nil {
		t.Fatalf("NewDriver failed: %v", err)
	}
	if _, err := d.Run(context.Background(), "600519", "test-strategy", candles, signals); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := testutil.ToFloat64(m.CandlesProcessed) - candlesBefore; got != 3 {
		t.Errorf("expected 3 candles counted, got %v", got)
	}
	if got := testutil.ToFloat64(m.TradesExecuted.WithLabelValues("buy", "test entry")) - buysBefore; got != 1 {
		t.Errorf("expected 1 buy counted, got %v", got)
	}
	if got := testutil.ToFloat64(m.TradesExecuted.WithLabelValues("sell", domain.ReasonEndOfPeriod)) - exitsBefore; got != 1 {
		t.Errorf("expected 1 liquidation counted, got %v", got)
	}
	if got := testutil.ToFloat64(m.SignalsSkipped.WithLabelValues("invalid_action")) - skipsBefore; got != 1 {
		t.Errorf("expected 1 skipped signal counted, got %v", got)
	}
}
