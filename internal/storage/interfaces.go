package storage

import (
	"context"

	"ashare-backtest-lab/internal/domain"
)

// CandleStore provides access to daily candle storage.
type CandleStore interface {
	// InsertBulk adds multiple candles. Fails entire batch on duplicate (symbol, timestamp_ms).
	InsertBulk(ctx context.Context, candles []*domain.Candle) error

	// GetBySymbol retrieves all candles for a symbol, ordered by timestamp ASC.
	GetBySymbol(ctx context.Context, symbol string) ([]*domain.Candle, error)

	// GetByTimeRange retrieves candles for a symbol within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, symbol string, start, end int64) ([]*domain.Candle, error)
}

// TradeRecordStore provides access to trade_records storage.
type TradeRecordStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, t *domain.TradeRecord) error

	// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, trades []*domain.TradeRecord) error

	// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error)

	// GetByRunID retrieves all trades for a run, ordered by timestamp ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.TradeRecord, error)

	// GetBySymbol retrieves all trades for a symbol across runs, ordered by timestamp ASC.
	GetBySymbol(ctx context.Context, symbol string) ([]*domain.TradeRecord, error)
}

// BacktestRunStore provides access to backtest_runs storage.
type BacktestRunStore interface {
	// Insert adds a new run summary. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, r *domain.BacktestRun) error

	// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.BacktestRun, error)

	// GetBySymbol retrieves all runs for a symbol, ordered by created_at ASC.
	GetBySymbol(ctx context.Context, symbol string) ([]*domain.BacktestRun, error)

	// GetAll retrieves all run summaries.
	GetAll(ctx context.Context) ([]*domain.BacktestRun, error)
}
