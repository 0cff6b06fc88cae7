package ingest

import (
	"context"
	"errors"
	"log"
	"time"

	"ashare-backtest-lab/internal/domain"
	"ashare-backtest-lab/internal/observability"
	"ashare-backtest-lab/internal/storage"
)

// Service drains a candle message stream into the candle store in
// batches. Duplicates are expected on reconnect replays and are
// dropped one at a time.
type Service struct {
	store         storage.CandleStore
	batchSize     int
	flushInterval time.Duration
	verbose       bool
}

// ServiceOptions for creating a Service.
type ServiceOptions struct {
	Store         storage.CandleStore
	BatchSize     int           // defaults to 100
	FlushInterval time.Duration // defaults to 5s
	Verbose       bool
}

// NewService creates a new ingest service.
func NewService(opts ServiceOptions) *Service {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushInterval := opts.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Service{
		store:         opts.Store,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		verbose:       opts.Verbose,
	}
}

// Stats counts what one Run call did.
type Stats struct {
	Stored     int
	Duplicates int
	Errors     int
}

// Run consumes the stream until it closes or the context is cancelled,
// flushing batches by size and by interval. The final partial batch is
// flushed before returning.
func (s *Service) Run(ctx context.Context, candles <-chan CandleMessage) (*Stats, error) {
	stats := &Stats{}
	batch := make([]*domain.Candle, 0, s.batchSize)

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flush(ctx, batch, stats)
			return stats, ctx.Err()

		case <-ticker.C:
			s.flush(ctx, batch, stats)
			batch = batch[:0]

		case msg, ok := <-candles:
			if !ok {
				s.flush(ctx, batch, stats)
				return stats, nil
			}

			batch = append(batch, toCandle(msg))
			if len(batch) >= s.batchSize {
				s.flush(ctx, batch, stats)
				batch = batch[:0]
			}
		}
	}
}

// flush writes one batch. On a duplicate the batch is retried row by
// row so one replayed candle does not discard its neighbors.
func (s *Service) flush(ctx context.Context, batch []*domain.Candle, stats *Stats) {
	if len(batch) == 0 {
		return
	}

	err := s.store.InsertBulk(ctx, batch)
	if err == nil {
		s.recordStored(batch, stats, len(batch))
		return
	}
	if !errors.Is(err, storage.ErrDuplicateKey) {
		s.logf("flush batch of %d: %v", len(batch), err)
		observability.RecordIngestError("store")
		stats.Errors += len(batch)
		return
	}

	for _, c := range batch {
		err := s.store.InsertBulk(ctx, []*domain.Candle{c})
		switch {
		case err == nil:
			s.recordStored([]*domain.Candle{c}, stats, 1)
		case errors.Is(err, storage.ErrDuplicateKey):
			stats.Duplicates++
		default:
			s.logf("store candle %s@%d: %v", c.Symbol, c.TimestampMs, err)
			observability.RecordIngestError("store")
			stats.Errors++
		}
	}
}

func (s *Service) recordStored(batch []*domain.Candle, stats *Stats, n int) {
	stats.Stored += n
	for _, c := range batch {
		observability.RecordCandleIngested(c.Symbol)
	}
	observability.DefaultMetrics.LastSuccessfulIngest.Set(float64(time.Now().Unix()))
}

func toCandle(msg CandleMessage) *domain.Candle {
	return &domain.Candle{
		Symbol:      msg.Symbol,
		TimestampMs: msg.TimestampMs,
		Open:        msg.Open,
		High:        msg.High,
		Low:         msg.Low,
		Close:       msg.Close,
		Volume:      msg.Volume,
		ATR:         msg.ATR,
	}
}

func (s *Service) logf(format string, args ...any) {
	if s.verbose {
		log.Printf("[ingest] "+format, args...)
	}
}
