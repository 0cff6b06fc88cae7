package memory

import (
	"context"
	"sort"
	"sync"

	"ashare-backtest-lab/internal/domain"
	"ashare-backtest-lab/internal/storage"
)

// CandleStore is an in-memory implementation of storage.CandleStore.
type CandleStore struct {
	mu   sync.RWMutex
	data map[candleKey]*domain.Candle
}

type candleKey struct {
	symbol      string
	timestampMs int64
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{
		data: make(map[candleKey]*domain.Candle),
	}
}

// InsertBulk adds multiple candles. Fails entire batch on duplicate (symbol, timestamp_ms).
func (s *CandleStore) InsertBulk(_ context.Context, candles []*domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[candleKey]struct{}, len(candles))

	for _, c := range candles {
		if c == nil || c.Symbol == "" {
			return storage.ErrInvalidInput
		}

		k := candleKey{c.Symbol, c.TimestampMs}
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[k]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[k] = struct{}{}
	}

	for _, c := range candles {
		copy := *c
		s.data[candleKey{c.Symbol, c.TimestampMs}] = &copy
	}

	return nil
}

// GetBySymbol retrieves all candles for a symbol, ordered by timestamp ASC.
func (s *CandleStore) GetBySymbol(_ context.Context, symbol string) ([]*domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Candle
	for k, c := range s.data {
		if k.symbol == symbol {
			copy := *c
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}

// GetByTimeRange retrieves candles for a symbol within [start, end] (inclusive).
func (s *CandleStore) GetByTimeRange(_ context.Context, symbol string, start, end int64) ([]*domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Candle
	for k, c := range s.data {
		if k.symbol == symbol && k.timestampMs >= start && k.timestampMs <= end {
			copy := *c
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}

var _ storage.CandleStore = (*CandleStore)(nil)
