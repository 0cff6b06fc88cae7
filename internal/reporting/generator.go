package reporting

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"ashare-backtest-lab/internal/domain"
	"ashare-backtest-lab/internal/storage"
)

// Generator produces reports from stored runs.
type Generator struct {
	runStore   storage.BacktestRunStore
	tradeStore storage.TradeRecordStore
	now        func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(runStore storage.BacktestRunStore, tradeStore storage.TradeRecordStore) *Generator {
	return &Generator{
		runStore:   runStore,
		tradeStore: tradeStore,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds a report for a stored run. The persisted run carries
// only headline metrics, so per-month and drawdown sections come out
// empty; use FromResult for the full view of an in-memory run.
func (g *Generator) Generate(ctx context.Context, runID string) (*Report, error) {
	run, err := g.runStore.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}

	trades, err := g.tradeStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load trades for run %s: %w", runID, err)
	}

	report := &Report{
		GeneratedAt: g.now(),
		RunID:       run.RunID,
		Symbol:      run.Symbol,
		StrategyID:  run.StrategyID,
		Summary: Summary{
			InitialCapital:   run.InitialCapital,
			FinalCapital:     run.FinalCapital,
			TotalProfit:      run.TotalProfit,
			MaxDrawdown:      run.MaxDrawdown,
			TradeCount:       run.TradeCount,
			WinRate:          run.WinRate,
			ProfitFactor:     run.ProfitFactor,
			Expectancy:       run.Expectancy,
			AnnualizedReturn: run.AnnualizedReturn,
			SharpeRatio:      run.SharpeRatio,
		},
		Trades: tradeRows(trades),
	}

	return report, nil
}

// FromResult builds a report directly from a finished in-memory run.
func FromResult(res *domain.BacktestResult, initialCapital float64, now time.Time) *Report {
	report := &Report{
		GeneratedAt: now,
		RunID:       res.RunID,
		Symbol:      res.Symbol,
		StrategyID:  res.StrategyID,
		Summary: Summary{
			InitialCapital:       initialCapital,
			FinalCapital:         initialCapital + res.TotalProfit,
			TotalProfit:          res.TotalProfit,
			MaxDrawdown:          res.MaxDrawdown,
			TradeCount:           res.TradeCount,
			WinCount:             res.WinCount,
			LossCount:            res.LossCount,
			WinRate:              res.WinRate,
			AvgWin:               res.AvgWin,
			AvgLoss:              res.AvgLoss,
			MaxWin:               res.MaxWin,
			MaxLoss:              res.MaxLoss,
			ProfitFactor:         res.ProfitFactor,
			Expectancy:           res.Expectancy,
			MaxConsecutiveWins:   res.MaxConsecutiveWins,
			MaxConsecutiveLosses: res.MaxConsecutiveLosses,
			AvgHoldingDays:       res.AvgHoldingDays,
			AnnualizedReturn:     res.AnnualizedReturn,
			Volatility:           res.Volatility,
			SharpeRatio:          res.SharpeRatio,
		},
		MonthlyReturns:  monthlyRows(res.MonthlyReturns),
		DrawdownPeriods: drawdownRows(res.DrawdownPeriods),
		Trades:          tradeRows(res.Trades),
	}

	return report
}

func monthlyRows(monthly map[string]float64) []MonthlyReturnRow {
	rows := make([]MonthlyReturnRow, 0, len(monthly))
	for month, profit := range monthly {
		rows = append(rows, MonthlyReturnRow{Month: month, Profit: profit})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Month < rows[j].Month })
	return rows
}

func drawdownRows(periods []domain.DrawdownPeriod) []DrawdownPeriodRow {
	rows := make([]DrawdownPeriodRow, 0, len(periods))
	for _, p := range periods {
		rows = append(rows, DrawdownPeriodRow{
			StartIndex: p.StartIndex,
			EndIndex:   p.EndIndex,
			Duration:   p.Duration,
			Depth:      p.Depth,
		})
	}
	return rows
}

func tradeRows(trades []*domain.TradeRecord) []TradeRow {
	rows := make([]TradeRow, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, TradeRow{
			TradeID:     t.TradeID,
			TimestampMs: t.TimestampMs,
			Action:      string(t.Action),
			Price:       t.Price,
			Volume:      t.Volume,
			Profit:      t.Profit,
			HoldingDays: t.HoldingDays,
			Reason:      t.Reason,
		})
	}
	return rows
}

// formatRatio renders possibly-infinite ratios for display.
func formatRatio(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.4f", v)
}
