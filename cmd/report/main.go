// Command report generates Markdown and CSV reports for persisted
// backtest runs. Runs are read from Postgres by run ID, or listed by
// symbol.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"ashare-backtest-lab/internal/observability"
	"ashare-backtest-lab/internal/reporting"
	pgstore "ashare-backtest-lab/internal/storage/postgres"
)

func main() {
	var (
		postgresDSN = flag.String("postgres-dsn", "", "PostgreSQL DSN (required)")
		runID       = flag.String("run-id", "", "Run ID to report on")
		symbol      = flag.String("symbol", "", "List persisted runs for a symbol instead")
		outputDir   = flag.String("output-dir", "", "Write report files here instead of stdout")
		withCSV     = flag.Bool("csv", false, "Also write the trade list as CSV (requires --output-dir)")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[report] ", log.LstdFlags)

	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}
	if *runID == "" && *symbol == "" {
		logger.Fatal("either --run-id or --symbol is required")
	}
	if *withCSV && *outputDir == "" {
		logger.Fatal("--csv requires --output-dir")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("connect to postgres: %v", err)
	}
	defer pool.Close()

	runStore := pgstore.NewBacktestRunStore(pool)
	tradeStore := pgstore.NewTradeRecordStore(pool)

	if *runID == "" {
		if err := listRuns(ctx, runStore, *symbol); err != nil {
			logger.Fatalf("list runs: %v", err)
		}
		return
	}

	generator := reporting.NewGenerator(runStore, tradeStore)
	report, err := generator.Generate(ctx, *runID)
	if err != nil {
		logger.Fatalf("generate report: %v", err)
	}

	markdown := reporting.RenderMarkdown(report)
	observability.RecordReport("markdown")

	if *outputDir == "" {
		fmt.Print(markdown)
		return
	}

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		logger.Fatalf("create output dir: %v", err)
	}

	mdPath := filepath.Join(*outputDir, fmt.Sprintf("run_%s.md", *runID))
	if err := os.WriteFile(mdPath, []byte(markdown), 0o644); err != nil {
		logger.Fatalf("write markdown: %v", err)
	}
	logger.Printf("Wrote %s", mdPath)

	if *withCSV {
		csvPath := filepath.Join(*outputDir, fmt.Sprintf("run_%s_trades.csv", *runID))
		if err := os.WriteFile(csvPath, []byte(reporting.RenderCSV(report.Trades)), 0o644); err != nil {
			logger.Fatalf("write csv: %v", err)
		}
		observability.RecordReport("csv")
		logger.Printf("Wrote %s", csvPath)
	}
}

// listRuns prints the persisted runs for a symbol, oldest first.
func listRuns(ctx context.Context, store *pgstore.BacktestRunStore, symbol string) error {
	runs, err := store.GetBySymbol(ctx, symbol)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Printf("No runs for symbol %s\n", symbol)
		return nil
	}

	fmt.Printf("%-36s %-24s %12s %10s %8s\n", "Run ID", "Strategy", "Profit", "Drawdown", "Trades")
	for _, r := range runs {
		fmt.Printf("%-36s %-24s %12.2f %9.2f%% %8d\n",
			r.RunID, r.StrategyID, r.TotalProfit, r.MaxDrawdown*100, r.TradeCount)
	}
	fmt.Printf("\n%d runs (created through %s)\n",
		len(runs), time.UnixMilli(runs[len(runs)-1].CreatedAtMs).Format(time.RFC3339))
	return nil
}
