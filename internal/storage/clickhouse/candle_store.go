package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"ashare-backtest-lab/internal/domain"
	"ashare-backtest-lab/internal/storage"
)

// CandleStore implements storage.CandleStore using ClickHouse.
type CandleStore struct {
	conn *Conn
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// InsertBulk adds multiple candles. Fails entire batch on duplicate (symbol, timestamp_ms).
func (s *CandleStore) InsertBulk(ctx context.Context, candles []*domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		symbol      string
		timestampMs int64
	}
	seen := make(map[key]struct{})
	for _, c := range candles {
		if c == nil || c.Symbol == "" {
			return storage.ErrInvalidInput
		}
		k := key{c.Symbol, c.TimestampMs}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, c := range candles {
		exists, err := s.exists(ctx, c.Symbol, c.TimestampMs)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	start := time.Now()
	err := s.sendBatch(ctx, candles)
	observeQuery("insert_candles", start, err)
	return err
}

// sendBatch writes the candles through one prepared batch insert.
func (s *CandleStore) sendBatch(ctx context.Context, candles []*domain.Candle) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO candles (
			symbol, timestamp_ms, open, high, low, close, volume, atr
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, c := range candles {
		err = batch.Append(
			c.Symbol, uint64(c.TimestampMs),
			c.Open, c.High, c.Low, c.Close, c.Volume, c.ATR,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetBySymbol retrieves all candles for a symbol, ordered by timestamp ASC.
func (s *CandleStore) GetBySymbol(ctx context.Context, symbol string) ([]*domain.Candle, error) {
	query := `
		SELECT symbol, timestamp_ms, open, high, low, close, volume, atr
		FROM candles
		WHERE symbol = ?
		ORDER BY timestamp_ms ASC
	`

	start := time.Now()
	rows, err := s.conn.Query(ctx, query, symbol)
	observeQuery("get_by_symbol", start, err)
	if err != nil {
		return nil, fmt.Errorf("query by symbol: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// GetByTimeRange retrieves candles for a symbol within [start, end] (inclusive).
func (s *CandleStore) GetByTimeRange(ctx context.Context, symbol string, start, end int64) ([]*domain.Candle, error) {
	query := `
		SELECT symbol, timestamp_ms, open, high, low, close, volume, atr
		FROM candles
		WHERE symbol = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	began := time.Now()
	rows, err := s.conn.Query(ctx, query, symbol, uint64(start), uint64(end))
	observeQuery("get_by_time_range", began, err)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// exists checks if a candle with the given key exists.
func (s *CandleStore) exists(ctx context.Context, symbol string, timestampMs int64) (bool, error) {
	query := `
		SELECT count(*) FROM candles
		WHERE symbol = ? AND timestamp_ms = ?
	`

	var count uint64
	row := s.conn.QueryRow(ctx, query, symbol, uint64(timestampMs))
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("scan count: %w", err)
	}

	return count > 0, nil
}

// scanCandles scans rows into a slice of Candle.
func scanCandles(rows driver.Rows) ([]*domain.Candle, error) {
	var candles []*domain.Candle

	for rows.Next() {
		var c domain.Candle
		var timestampMs uint64

		err := rows.Scan(
			&c.Symbol, &timestampMs,
			&c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.ATR,
		)
		if err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}

		c.TimestampMs = int64(timestampMs)
		candles = append(candles, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}

	return candles, nil
}
