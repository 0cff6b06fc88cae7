// Command ingest subscribes to a candle feed over WebSocket and writes
// the stream to the candle store. It runs until interrupted and serves
// Prometheus metrics while running.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ashare-backtest-lab/internal/config"
	"ashare-backtest-lab/internal/ingest"
	"ashare-backtest-lab/internal/observability"
	"ashare-backtest-lab/internal/storage"
	chstore "ashare-backtest-lab/internal/storage/clickhouse"
	"ashare-backtest-lab/internal/storage/memory"
	"ashare-backtest-lab/internal/storage/migrations"
)

func main() {
	var (
		configPath    = flag.String("config", "", "Path to YAML config file (optional)")
		wsURL         = flag.String("ws-url", "", "Candle feed WebSocket endpoint")
		symbols       = flag.String("symbols", "", "Comma-separated symbols to subscribe")
		clickhouseDSN = flag.String("clickhouse-dsn", "", "ClickHouse DSN for the candle store")
		useMemory     = flag.Bool("use-memory", false, "Use an in-memory candle store (dry run)")
		batchSize     = flag.Int("batch-size", 100, "Candles per storage batch")
		flushInterval = flag.Duration("flush-interval", 5*time.Second, "Max time a partial batch waits")
		metricsAddr   = flag.String("metrics-addr", ":9100", "Prometheus metrics listen address (empty = disabled)")
		verbose       = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[ingest] ", log.LstdFlags)

	if *configPath != "" {
		cfg, err := config.LoadFromFile(*configPath)
		if err != nil {
			logger.Fatalf("load config: %v", err)
		}
		if *wsURL == "" {
			*wsURL = cfg.Ingest.WSURL
		}
		if *symbols == "" {
			*symbols = strings.Join(cfg.Ingest.Symbols, ",")
		}
		if *clickhouseDSN == "" {
			*clickhouseDSN = cfg.Storage.ClickhouseDSN
		}
	}

	if *wsURL == "" {
		logger.Fatal("--ws-url is required")
	}
	symbolList := splitSymbols(*symbols)
	if len(symbolList) == 0 {
		logger.Fatal("--symbols is required")
	}
	if !*useMemory && *clickhouseDSN == "" {
		logger.Fatal("--clickhouse-dsn is required unless --use-memory is set")
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

	var store storage.CandleStore
	if *useMemory {
		logger.Println("Using in-memory candle store")
		store = memory.NewCandleStore()
	} else {
		conn, err := migrations.RunClickhouseMigrations(ctx, *clickhouseDSN)
		if err != nil {
			logger.Fatalf("clickhouse migrations: %v", err)
		}
		defer conn.Close()
		store = chstore.NewCandleStore(conn)
	}

	if *metricsAddr != "" {
		go serveMetrics(logger, *metricsAddr)
	}

	logger.Printf("Connecting to %s (%d symbols)", *wsURL, len(symbolList))
	client, err := ingest.NewWSClient(ctx, *wsURL, symbolList, nil)
	if err != nil {
		logger.Fatalf("connect feed: %v", err)
	}
	defer client.Close()

	service := ingest.NewService(ingest.ServiceOptions{
		Store:         store,
		BatchSize:     *batchSize,
		FlushInterval: *flushInterval,
		Verbose:       *verbose,
	})

	stats, err := service.Run(ctx, client.Candles())
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("ingest stopped: %v", err)
	}
	logger.Printf("Done: stored=%d duplicates=%d errors=%d", stats.Stored, stats.Duplicates, stats.Errors)
}

func splitSymbols(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func serveMetrics(logger *log.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	logger.Printf("Metrics on %s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Printf("metrics server: %v", err)
	}
}
