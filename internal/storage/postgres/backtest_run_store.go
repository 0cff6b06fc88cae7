package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"ashare-backtest-lab/internal/domain"
	"ashare-backtest-lab/internal/storage"
)

// BacktestRunStore implements storage.BacktestRunStore using PostgreSQL.
type BacktestRunStore struct {
	pool *Pool
}

// NewBacktestRunStore creates a new BacktestRunStore.
func NewBacktestRunStore(pool *Pool) *BacktestRunStore {
	return &BacktestRunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BacktestRunStore = (*BacktestRunStore)(nil)

const selectRunColumns = `
	run_id, symbol, strategy_id, start_ms, end_ms,
	initial_capital, final_capital, total_profit, max_drawdown,
	trade_count, win_rate, profit_factor, expectancy,
	annualized_return, sharpe_ratio, created_at_ms
`

// Insert adds a new run summary. Returns ErrDuplicateKey if run_id exists.
func (s *BacktestRunStore) Insert(ctx context.Context, r *domain.BacktestRun) error {
	query := `
		INSERT INTO backtest_runs (
			run_id, symbol, strategy_id, start_ms, end_ms,
			initial_capital, final_capital, total_profit, max_drawdown,
			trade_count, win_rate, profit_factor, expectancy,
			annualized_return, sharpe_ratio, created_at_ms
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13,
			$14, $15, $16
		)
	`

	start := time.Now()
	_, err := s.pool.Exec(ctx, query,
		r.RunID, r.Symbol, r.StrategyID, r.StartMs, r.EndMs,
		r.InitialCapital, r.FinalCapital, r.TotalProfit, r.MaxDrawdown,
		r.TradeCount, r.WinRate, r.ProfitFactor, r.Expectancy,
		r.AnnualizedReturn, r.SharpeRatio, r.CreatedAtMs,
	)
	observeQuery("insert_run", start, err)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert backtest run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *BacktestRunStore) GetByID(ctx context.Context, runID string) (*domain.BacktestRun, error) {
	query := `SELECT ` + selectRunColumns + ` FROM backtest_runs WHERE run_id = $1`

	row := s.pool.QueryRow(ctx, query, runID)
	r, err := scanBacktestRun(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get backtest run by id: %w", err)
	}
	return r, nil
}

// GetBySymbol retrieves all runs for a symbol, ordered by created_at ASC.
func (s *BacktestRunStore) GetBySymbol(ctx context.Context, symbol string) ([]*domain.BacktestRun, error) {
	query := `
		SELECT ` + selectRunColumns + `
		FROM backtest_runs
		WHERE symbol = $1
		ORDER BY created_at_ms ASC, run_id ASC
	`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, symbol)
	observeQuery("get_runs_by_symbol", start, err)
	if err != nil {
		return nil, fmt.Errorf("get backtest runs by symbol: %w", err)
	}
	defer rows.Close()

	return scanBacktestRuns(rows)
}

// GetAll retrieves all run summaries.
func (s *BacktestRunStore) GetAll(ctx context.Context) ([]*domain.BacktestRun, error) {
	query := `
		SELECT ` + selectRunColumns + `
		FROM backtest_runs
		ORDER BY created_at_ms ASC, run_id ASC
	`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query)
	observeQuery("get_all_runs", start, err)
	if err != nil {
		return nil, fmt.Errorf("get all backtest runs: %w", err)
	}
	defer rows.Close()

	return scanBacktestRuns(rows)
}

// scanBacktestRun scans a single row into a BacktestRun.
func scanBacktestRun(row pgx.Row) (*domain.BacktestRun, error) {
	var r domain.BacktestRun

	err := row.Scan(
		&r.RunID, &r.Symbol, &r.StrategyID, &r.StartMs, &r.EndMs,
		&r.InitialCapital, &r.FinalCapital, &r.TotalProfit, &r.MaxDrawdown,
		&r.TradeCount, &r.WinRate, &r.ProfitFactor, &r.Expectancy,
		&r.AnnualizedReturn, &r.SharpeRatio, &r.CreatedAtMs,
	)
	if err != nil {
		return nil, err
	}

	return &r, nil
}

// scanBacktestRuns scans multiple rows into a slice of BacktestRun.
func scanBacktestRuns(rows pgx.Rows) ([]*domain.BacktestRun, error) {
	var runs []*domain.BacktestRun

	for rows.Next() {
		r, err := scanBacktestRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backtest run row: %w", err)
		}
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backtest run rows: %w", err)
	}

	return runs, nil
}
