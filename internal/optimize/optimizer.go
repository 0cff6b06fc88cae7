// Package optimize runs the same candle series through a grid of
// strategy parameterizations and ranks the outcomes. Each run is
// independent, so they execute on a bounded worker pool.
package optimize

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"ashare-backtest-lab/internal/domain"
	"ashare-backtest-lab/internal/engine"
	"ashare-backtest-lab/internal/observability"
	"ashare-backtest-lab/internal/strategy"
)

// ErrNoOutcomes is returned when every run in the grid failed.
var ErrNoOutcomes = errors.New("no successful runs in grid")

// Outcome pairs a strategy configuration with its finished result.
type Outcome struct {
	Config strategy.Config
	Result *domain.BacktestResult
}

// RunResult contains everything the optimizer produced: ranked
// outcomes plus the errors of runs that were skipped.
type RunResult struct {
	Outcomes []Outcome // ranked best-first
	Errors   []string
}

// Best returns the top-ranked outcome.
func (r *RunResult) Best() Outcome {
	return r.Outcomes[0]
}

// Optimizer evaluates strategy grids against a fixed backtest config.
type Optimizer struct {
	cfg     domain.BacktestConfig
	workers int
	verbose bool
}

// Options for creating an Optimizer.
type Options struct {
	Config  domain.BacktestConfig
	Workers int // defaults to 4 when <= 0
	Verbose bool
}

// New creates a new Optimizer. The backtest config is validated once
// here rather than per grid entry.
func New(opts Options) (*Optimizer, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Optimizer{cfg: opts.Config, workers: workers, verbose: opts.Verbose}, nil
}

// Run evaluates every config in the grid against the candle series.
// Failed runs are skipped and reported in RunResult.Errors; the grid
// keeps going. Outcomes are ranked by Sharpe ratio, ties broken by
// total profit, then strategy ID for determinism.
func (o *Optimizer) Run(ctx context.Context, symbol string, candles []*domain.Candle, grid []strategy.Config) (*RunResult, error) {
	if len(grid) == 0 {
		return nil, fmt.Errorf("empty strategy grid")
	}

	o.log("Evaluating %d configurations on %s (%d candles, %d workers)",
		len(grid), symbol, len(candles), o.workers)
	observability.DefaultMetrics.GridSize.Set(float64(len(grid)))
	started := time.Now()
	defer func() {
		observability.DefaultMetrics.OptimizeDuration.Observe(time.Since(started).Seconds())
	}()

	type job struct {
		idx int
		cfg strategy.Config
	}
	type slot struct {
		outcome *Outcome
		err     string
	}

	jobs := make(chan job)
	slots := make([]slot, len(grid))

	var wg sync.WaitGroup
	for w := 0; w < o.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				outcome, errMsg := o.runOne(ctx, symbol, candles, j.cfg)
				slots[j.idx] = slot{outcome: outcome, err: errMsg}
			}
		}()
	}

	for i, cfg := range grid {
		jobs <- job{idx: i, cfg: cfg}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &RunResult{}
	for _, s := range slots {
		if s.outcome != nil {
			result.Outcomes = append(result.Outcomes, *s.outcome)
		}
		if s.err != "" {
			result.Errors = append(result.Errors, s.err)
		}
	}

	if len(result.Outcomes) == 0 {
		return nil, fmt.Errorf("%w: %d configurations failed", ErrNoOutcomes, len(result.Errors))
	}

	rank(result.Outcomes)

	o.log("Done: %d outcomes, %d errors; best %s (sharpe %.3f, profit %.2f)",
		len(result.Outcomes), len(result.Errors),
		result.Best().Result.StrategyID,
		result.Best().Result.SharpeRatio,
		result.Best().Result.TotalProfit)

	return result, nil
}

// runOne builds the strategy and drives a full backtest for one grid
// entry. Returns either an outcome or an error string, never both.
func (o *Optimizer) runOne(ctx context.Context, symbol string, candles []*domain.Candle, cfg strategy.Config) (*Outcome, string) {
	strat, err := strategy.FromConfig(cfg)
	if err != nil {
		return nil, fmt.Sprintf("build %s: %v", cfg.Type, err)
	}

	// Each run gets its own driver; drivers carry per-run ledger state.
	driver, err := engine.NewDriver(o.cfg)
	if err != nil {
		return nil, fmt.Sprintf("driver for %s: %v", strat.ID(), err)
	}

	res, err := driver.RunStrategy(ctx, symbol, candles, strat)
	if err != nil {
		observability.RecordGridRun("error")
		return nil, fmt.Sprintf("run %s: %v", strat.ID(), err)
	}

	observability.RecordGridRun("ok")
	return &Outcome{Config: cfg, Result: res}, ""
}

// rank orders outcomes best-first.
func rank(outcomes []Outcome) {
	sort.Slice(outcomes, func(i, j int) bool {
		a, b := outcomes[i].Result, outcomes[j].Result
		if a.SharpeRatio != b.SharpeRatio {
			return a.SharpeRatio > b.SharpeRatio
		}
		if a.TotalProfit != b.TotalProfit {
			return a.TotalProfit > b.TotalProfit
		}
		return a.StrategyID < b.StrategyID
	})
}

func (o *Optimizer) log(format string, args ...any) {
	if o.verbose {
		log.Printf("[optimize] "+format, args...)
	}
}
