// Command backtest runs one strategy over a candle series and prints
// the result. Candles come from a CSV file or from ClickHouse; with
// --persist the run summary and trade records are written to Postgres.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ashare-backtest-lab/internal/candlefile"
	"ashare-backtest-lab/internal/config"
	"ashare-backtest-lab/internal/domain"
	"ashare-backtest-lab/internal/engine"
	"ashare-backtest-lab/internal/lookup"
	"ashare-backtest-lab/internal/observability"
	"ashare-backtest-lab/internal/reporting"
	chstore "ashare-backtest-lab/internal/storage/clickhouse"
	"ashare-backtest-lab/internal/storage/migrations"
	pgstore "ashare-backtest-lab/internal/storage/postgres"
	"ashare-backtest-lab/internal/strategy"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file (optional)")
		symbol     = flag.String("symbol", "", "Instrument symbol, e.g. 600519 (required)")

		strategyType = flag.String("strategy", strategy.TypeMACross, "Strategy type: MA_CROSS, MACD, KDJ, BOLLINGER")
		fastPeriod   = flag.Int("fast", 0, "Fast period (MA_CROSS, MACD)")
		slowPeriod   = flag.Int("slow", 0, "Slow period (MA_CROSS, MACD)")
		signalPeriod = flag.Int("signal", 0, "Signal period (MACD)")
		period       = flag.Int("period", 0, "Lookback period (KDJ, BOLLINGER)")
		oversold     = flag.Float64("oversold", 0, "Oversold band (KDJ)")
		overbought   = flag.Float64("overbought", 0, "Overbought band (KDJ)")
		bandMult     = flag.Float64("band-mult", 0, "Band width multiplier (BOLLINGER)")

		candlesPath   = flag.String("candles", "", "Path to candle CSV file")
		clickhouseDSN = flag.String("clickhouse-dsn", "", "ClickHouse DSN to load candles from")
		startMs       = flag.Int64("start-ms", 0, "Range start for ClickHouse loads (unix ms, 0 = open)")
		endMs         = flag.Int64("end-ms", 0, "Range end for ClickHouse loads (unix ms, 0 = open)")

		persistResult = flag.Bool("persist", false, "Persist run summary and trades to Postgres")
		postgresDSN   = flag.String("postgres-dsn", "", "PostgreSQL DSN (required with --persist)")

		outputFormat = flag.String("output", "text", "Output format: text, markdown, csv, json")
		verbose      = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[backtest] ", log.LstdFlags)

	if *symbol == "" {
		logger.Fatal("--symbol is required")
	}
	if *candlesPath == "" && *clickhouseDSN == "" {
		logger.Fatal("either --candles or --clickhouse-dsn is required")
	}
	if *persistResult && *postgresDSN == "" {
		logger.Fatal("--persist requires --postgres-dsn")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Println("Shutting down...")
		cancel()
	}()

	// Backtest parameters from config file, defaults otherwise
	backtestCfg := domain.DefaultConfig()
	if *configPath != "" {
		cfg, err := config.LoadFromFile(*configPath)
		if err != nil {
			logger.Fatalf("load config: %v", err)
		}
		backtestCfg = cfg.Domain()
	}

	strat, err := strategy.FromConfig(strategy.Config{
		Type:         strings.ToUpper(*strategyType),
		FastPeriod:   *fastPeriod,
		SlowPeriod:   *slowPeriod,
		SignalPeriod: *signalPeriod,
		Period:       *period,
		Oversold:     *oversold,
		Overbought:   *overbought,
		BandMult:     *bandMult,
	})
	if err != nil {
		logger.Fatalf("build strategy: %v", err)
	}

	candles, err := loadCandles(ctx, *candlesPath, *clickhouseDSN, *symbol, *startMs, *endMs)
	if err != nil {
		logger.Fatalf("load candles: %v", err)
	}
	if len(candles) == 0 {
		logger.Fatalf("no candles for symbol %s", *symbol)
	}
	logger.Printf("Loaded %d candles for %s", len(candles), *symbol)

	driver, err := engine.NewDriver(backtestCfg)
	if err != nil {
		logger.Fatalf("create driver: %v", err)
	}
	driver.SetVerbose(*verbose)

	started := time.Now()
	result, err := driver.RunStrategy(ctx, *symbol, candles, strat)
	if err != nil {
		observability.RecordRun(strat.ID(), "error", time.Since(started).Seconds())
		logger.Fatalf("backtest failed: %v", err)
	}
	observability.RecordRun(strat.ID(), "ok", time.Since(started).Seconds())
	observability.DefaultMetrics.LastSuccessfulRun.SetToCurrentTime()
	logger.Printf("Run %s finished: %d trades in %s", result.RunID, result.TradeCount, time.Since(started))

	if *persistResult {
		if err := persist(ctx, *postgresDSN, result, candles, backtestCfg.InitialCapital); err != nil {
			logger.Fatalf("persist result: %v", err)
		}
		logger.Printf("Persisted run %s", result.RunID)
	}

	if err := render(result, backtestCfg.InitialCapital, *outputFormat); err != nil {
		logger.Fatalf("render result: %v", err)
	}
}

// loadCandles reads the series from a CSV file or from ClickHouse.
// The start/end bounds apply on both paths; a zero end means "up to now".
func loadCandles(ctx context.Context, path, dsn, symbol string, startMs, endMs int64) ([]*domain.Candle, error) {
	if path != "" {
		candles, err := candlefile.LoadCSV(path)
		if err != nil {
			return nil, err
		}
		if startMs != 0 || endMs != 0 {
			if endMs == 0 {
				endMs = time.Now().UnixMilli()
			}
			candles = lookup.Window(startMs, endMs, candles)
		}
		return candles, nil
	}

	conn, err := chstore.NewConn(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	defer conn.Close()

	store := chstore.NewCandleStore(conn)
	if startMs != 0 || endMs != 0 {
		if endMs == 0 {
			endMs = time.Now().UnixMilli()
		}
		return store.GetByTimeRange(ctx, symbol, startMs, endMs)
	}
	return store.GetBySymbol(ctx, symbol)
}

// persist writes the run summary and its trade records to Postgres.
// A rerun of the same range hits the run-summary duplicate key and is
// reported as a conflict rather than silently rewritten.
func persist(ctx context.Context, dsn string, result *domain.BacktestResult, candles []*domain.Candle, initialCapital float64) error {
	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	run := domain.NewBacktestRun(
		result,
		candles[0].TimestampMs,
		candles[len(candles)-1].TimestampMs,
		initialCapital,
		time.Now().UnixMilli(),
	)
	if err := pgstore.NewBacktestRunStore(pool).Insert(ctx, run); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if len(result.Trades) > 0 {
		if err := pgstore.NewTradeRecordStore(pool).InsertBulk(ctx, result.Trades); err != nil {
			return fmt.Errorf("insert trades: %w", err)
		}
	}
	return nil
}

// render writes the result to stdout in the requested format.
func render(result *domain.BacktestResult, initialCapital float64, format string) error {
	report := reporting.FromResult(result, initialCapital, time.Now())

	switch strings.ToLower(format) {
	case "json":
		output, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(output))
	case "markdown":
		fmt.Print(reporting.RenderMarkdown(report))
		observability.RecordReport("markdown")
	case "csv":
		fmt.Print(reporting.RenderCSV(report.Trades))
		observability.RecordReport("csv")
	case "text":
		printSummary(result, initialCapital)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
	return nil
}

// printSummary outputs a human-readable result summary.
func printSummary(r *domain.BacktestResult, initialCapital float64) {
	fmt.Println()
	fmt.Println("=== Backtest Result ===")
	fmt.Printf("Run ID:              %s\n", r.RunID)
	fmt.Printf("Symbol:              %s\n", r.Symbol)
	fmt.Printf("Strategy:            %s\n", r.StrategyID)
	fmt.Println()
	fmt.Printf("Initial Capital:     %.2f\n", initialCapital)
	fmt.Printf("Final Capital:       %.2f\n", initialCapital+r.TotalProfit)
	fmt.Printf("Total Profit:        %.2f\n", r.TotalProfit)
	fmt.Printf("Max Drawdown:        %.2f%%\n", r.MaxDrawdown*100)
	fmt.Println()
	fmt.Printf("Trades:              %d (%d wins, %d losses)\n", r.TradeCount, r.WinCount, r.LossCount)
	fmt.Printf("Win Rate:            %.2f%%\n", r.WinRate*100)
	fmt.Printf("Profit Factor:       %.2f\n", r.ProfitFactor)
	fmt.Printf("Expectancy:          %.2f\n", r.Expectancy)
	fmt.Printf("Avg Holding Days:    %.1f\n", r.AvgHoldingDays)
	fmt.Println()
	fmt.Printf("Annualized Return:   %.2f%%\n", r.AnnualizedReturn*100)
	fmt.Printf("Volatility:          %.2f%%\n", r.Volatility*100)
	fmt.Printf("Sharpe Ratio:        %.2f\n", r.SharpeRatio)
}
