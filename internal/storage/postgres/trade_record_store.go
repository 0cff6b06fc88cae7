package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"ashare-backtest-lab/internal/domain"
	"ashare-backtest-lab/internal/storage"
)

// TradeRecordStore implements storage.TradeRecordStore using PostgreSQL.
type TradeRecordStore struct {
	pool *Pool
}

// NewTradeRecordStore creates a new TradeRecordStore.
func NewTradeRecordStore(pool *Pool) *TradeRecordStore {
	return &TradeRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeRecordStore = (*TradeRecordStore)(nil)

const insertTradeQuery = `
	INSERT INTO trade_records (
		trade_id, run_id, timestamp_ms, symbol, action, price, volume,
		position, profit, drawdown,
		entry_price, exit_price, holding_days, stop_loss, take_profit,
		quality, condition, reason
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7,
		$8, $9, $10,
		$11, $12, $13, $14, $15,
		$16, $17, $18
	)
`

const selectTradeColumns = `
	trade_id, run_id, timestamp_ms, symbol, action, price, volume,
	position, profit, drawdown,
	entry_price, exit_price, holding_days, stop_loss, take_profit,
	quality, condition, reason
`

func tradeArgs(t *domain.TradeRecord) []any {
	return []any{
		t.TradeID, t.RunID, t.TimestampMs, t.Symbol, string(t.Action), t.Price, t.Volume,
		t.Position, t.Profit, t.Drawdown,
		t.EntryPrice, t.ExitPrice, t.HoldingDays, t.StopLoss, t.TakeProfit,
		t.Quality, t.Condition, t.Reason,
	}
}

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeRecordStore) Insert(ctx context.Context, t *domain.TradeRecord) error {
	start := time.Now()
	_, err := s.pool.Exec(ctx, insertTradeQuery, tradeArgs(t)...)
	observeQuery("insert_trade", start, err)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade record: %w", err)
	}
	return nil
}

// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
func (s *TradeRecordStore) InsertBulk(ctx context.Context, trades []*domain.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	start := time.Now()
	err := s.insertBulk(ctx, trades)
	observeQuery("insert_trades_bulk", start, err)
	return err
}

func (s *TradeRecordStore) insertBulk(ctx context.Context, trades []*domain.TradeRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, t := range trades {
		if _, err := tx.Exec(ctx, insertTradeQuery, tradeArgs(t)...); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert trade record in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeRecordStore) GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error) {
	query := `SELECT ` + selectTradeColumns + ` FROM trade_records WHERE trade_id = $1`

	row := s.pool.QueryRow(ctx, query, tradeID)
	t, err := scanTradeRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade record by id: %w", err)
	}
	return t, nil
}

// GetByRunID retrieves all trades for a run, ordered by timestamp ASC.
func (s *TradeRecordStore) GetByRunID(ctx context.Context, runID string) ([]*domain.TradeRecord, error) {
	query := `
		SELECT ` + selectTradeColumns + `
		FROM trade_records
		WHERE run_id = $1
		ORDER BY timestamp_ms ASC, trade_id ASC
	`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, runID)
	observeQuery("get_trades_by_run", start, err)
	if err != nil {
		return nil, fmt.Errorf("get trade records by run id: %w", err)
	}
	defer rows.Close()

	return scanTradeRecords(rows)
}

// GetBySymbol retrieves all trades for a symbol across runs, ordered by timestamp ASC.
func (s *TradeRecordStore) GetBySymbol(ctx context.Context, symbol string) ([]*domain.TradeRecord, error) {
	query := `
		SELECT ` + selectTradeColumns + `
		FROM trade_records
		WHERE symbol = $1
		ORDER BY timestamp_ms ASC, trade_id ASC
	`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, symbol)
	observeQuery("get_trades_by_symbol", start, err)
	if err != nil {
		return nil, fmt.Errorf("get trade records by symbol: %w", err)
	}
	defer rows.Close()

	return scanTradeRecords(rows)
}

// scanTradeRecord scans a single row into a TradeRecord.
func scanTradeRecord(row pgx.Row) (*domain.TradeRecord, error) {
	var t domain.TradeRecord
	var action string

	err := row.Scan(
		&t.TradeID, &t.RunID, &t.TimestampMs, &t.Symbol, &action, &t.Price, &t.Volume,
		&t.Position, &t.Profit, &t.Drawdown,
		&t.EntryPrice, &t.ExitPrice, &t.HoldingDays, &t.StopLoss, &t.TakeProfit,
		&t.Quality, &t.Condition, &t.Reason,
	)
	if err != nil {
		return nil, err
	}

	t.Action = domain.Action(action)
	return &t, nil
}

// scanTradeRecords scans multiple rows into a slice of TradeRecord.
func scanTradeRecords(rows pgx.Rows) ([]*domain.TradeRecord, error) {
	var trades []*domain.TradeRecord

	for rows.Next() {
		t, err := scanTradeRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade record row: %w", err)
		}
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade record rows: %w", err)
	}

	return trades, nil
}
