// Command optimize evaluates a parameter grid for one strategy family
// over a candle series and prints the outcomes ranked best first.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"ashare-backtest-lab/internal/candlefile"
	"ashare-backtest-lab/internal/config"
	"ashare-backtest-lab/internal/domain"
	"ashare-backtest-lab/internal/optimize"
	chstore "ashare-backtest-lab/internal/storage/clickhouse"
	"ashare-backtest-lab/internal/strategy"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file (optional)")
		symbol     = flag.String("symbol", "", "Instrument symbol (required)")

		strategyType = flag.String("strategy", strategy.TypeMACross, "Strategy family: MA_CROSS, MACD, BOLLINGER")
		fasts        = flag.String("fasts", "3,5,8,10", "Comma-separated fast periods (MA_CROSS, MACD)")
		slows        = flag.String("slows", "15,20,30,60", "Comma-separated slow periods (MA_CROSS, MACD)")
		signals      = flag.String("signals", "9", "Comma-separated signal periods (MACD)")
		periods      = flag.String("periods", "10,20,30", "Comma-separated lookback periods (BOLLINGER)")
		mults        = flag.String("mults", "1.5,2,2.5", "Comma-separated band multipliers (BOLLINGER)")

		candlesPath   = flag.String("candles", "", "Path to candle CSV file")
		clickhouseDSN = flag.String("clickhouse-dsn", "", "ClickHouse DSN to load candles from")

		workers    = flag.Int("workers", 0, "Concurrent evaluations (0 = config or default)")
		topN       = flag.Int("top", 10, "Number of ranked outcomes to print")
		outputJSON = flag.Bool("json", false, "Output ranked outcomes as JSON")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[optimize] ", log.LstdFlags)

	if *symbol == "" {
		logger.Fatal("--symbol is required")
	}
	if *candlesPath == "" && *clickhouseDSN == "" {
		logger.Fatal("either --candles or --clickhouse-dsn is required")
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

	backtestCfg := domain.DefaultConfig()
	if *configPath != "" {
		cfg, err := config.LoadFromFile(*configPath)
		if err != nil {
			logger.Fatalf("load config: %v", err)
		}
		backtestCfg = cfg.Domain()
		if *workers == 0 {
			*workers = cfg.Optimize.Workers
		}
	}

	grid, err := buildGrid(strings.ToUpper(*strategyType), *fasts, *slows, *signals, *periods, *mults)
	if err != nil {
		logger.Fatalf("build grid: %v", err)
	}
	if len(grid) == 0 {
		logger.Fatal("empty parameter grid")
	}

	candles, err := loadCandles(ctx, *candlesPath, *clickhouseDSN, *symbol)
	if err != nil {
		logger.Fatalf("load candles: %v", err)
	}
	if len(candles) == 0 {
		logger.Fatalf("no candles for symbol %s", *symbol)
	}
	logger.Printf("Evaluating %d configs over %d candles (%d workers)", len(grid), len(candles), *workers)

	optimizer, err := optimize.New(optimize.Options{
		Config:  backtestCfg,
		Workers: *workers,
		Verbose: *verbose,
	})
	if err != nil {
		logger.Fatalf("create optimizer: %v", err)
	}

	started := time.Now()
	result, err := optimizer.Run(ctx, *symbol, candles, grid)
	if err != nil {
		logger.Fatalf("optimization failed: %v", err)
	}
	logger.Printf("Evaluated %d configs in %s (%d failed)", len(result.Outcomes), time.Since(started), len(result.Errors))

	for _, msg := range result.Errors {
		logger.Printf("skipped: %s", msg)
	}

	if *outputJSON {
		output, _ := json.MarshalIndent(result.Outcomes, "", "  ")
		fmt.Println(string(output))
		return
	}
	printRanking(result, *topN)
}

// buildGrid expands the flag lists into strategy configs for the family.
func buildGrid(strategyType, fasts, slows, signals, periods, mults string) ([]strategy.Config, error) {
	switch strategyType {
	case strategy.TypeMACross:
		f, err := parseInts(fasts)
		if err != nil {
			return nil, err
		}
		s, err := parseInts(slows)
		if err != nil {
			return nil, err
		}
		return optimize.MACrossGrid(f, s), nil

	case strategy.TypeMACD:
		f, err := parseInts(fasts)
		if err != nil {
			return nil, err
		}
		s, err := parseInts(slows)
		if err != nil {
			return nil, err
		}
		sig, err := parseInts(signals)
		if err != nil {
			return nil, err
		}
		return optimize.MACDGrid(f, s, sig), nil

	case strategy.TypeBollinger:
		p, err := parseInts(periods)
		if err != nil {
			return nil, err
		}
		m, err := parseFloats(mults)
		if err != nil {
			return nil, err
		}
		return optimize.BollingerGrid(p, m), nil

	default:
		return nil, fmt.Errorf("no grid for strategy type %s", strategyType)
	}
}

func parseInts(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", part)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseFloats(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", part)
		}
		out = append(out, v)
	}
	return out, nil
}

func loadCandles(ctx context.Context, path, dsn, symbol string) ([]*domain.Candle, error) {
	if path != "" {
		return candlefile.LoadCSV(path)
	}

	conn, err := chstore.NewConn(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	defer conn.Close()

	return chstore.NewCandleStore(conn).GetBySymbol(ctx, symbol)
}

// printRanking outputs the top outcomes as a fixed-width table.
func printRanking(result *optimize.RunResult, topN int) {
	fmt.Println()
	fmt.Println("=== Grid Ranking ===")
	fmt.Printf("%-4s %-28s %8s %12s %10s %8s %7s\n",
		"#", "Strategy", "Sharpe", "Profit", "Drawdown", "WinRate", "Trades")

	n := len(result.Outcomes)
	if topN > 0 && topN < n {
		n = topN
	}
	for i := 0; i < n; i++ {
		r := result.Outcomes[i].Result
		fmt.Printf("%-4d %-28s %8.2f %12.2f %9.2f%% %7.1f%% %7d\n",
			i+1, r.StrategyID, r.SharpeRatio, r.TotalProfit,
			r.MaxDrawdown*100, r.WinRate*100, r.TradeCount)
	}

	best := result.Best()
	fmt.Println()
	fmt.Printf("Best: %s (sharpe=%.2f, profit=%.2f)\n",
		best.Result.StrategyID, best.Result.SharpeRatio, best.Result.TotalProfit)
}
