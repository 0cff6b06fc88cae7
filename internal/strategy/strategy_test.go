package strategy

import (
	"context"
	"errors"
	"testing"

	"ashare-backtest-lab/internal/domain"
)

// candlesFromCloses builds a daily series where high/low bracket the
// close.
func candlesFromCloses(closes ...float64) []*domain.Candle {
	candles := make([]*domain.Candle, len(closes))
	for i, c := range closes {
		candles[i] = &domain.Candle{
			Symbol:      "600519",
			TimestampMs: int64(i) * domain.MillisPerDay,
			Open:        c,
			High:        c * 1.01,
			Low:         c * 0.99,
			Close:       c,
			Volume:      10_000,
			ATR:         2.0,
		}
	}
	return candles
}

func TestFromConfig(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		wantID string
		Err    error
	}{
		{"ma cross defaults", Config{Type: TypeMACross}, "MA_CROSS_5_20", nil},
		{"ma cross explicit", Config{Type: TypeMACross, FastPeriod: 3, SlowPeriod: 15}, "MA_CROSS_3_15", nil},
		{"ma cross inverted", Config{Type: TypeMACross, FastPeriod: 20, SlowPeriod: 5}, "", ErrInvalidPeriods},
		{"macd defaults", Config{Type: TypeMACD}, "MACD_12_26_9", nil},
		{"macd inverted", Config{Type: TypeMACD, FastPeriod: 26, SlowPeriod: 12}, "", ErrInvalidPeriods},
		{"kdj defaults", Config{Type: TypeKDJ}, "KDJ_9_20_80", nil},
		{"kdj bad bands", Config{Type: TypeKDJ, Oversold: 80, Overbought: 20}, "", ErrInvalidBands},
		{"kdj overbought too high", Config{Type: TypeKDJ, Oversold: 20, Overbought: 100}, "", ErrInvalidBands},
		{"bollinger defaults", Config{Type: TypeBollinger}, "BOLL_20_2.0", nil},
		{"bollinger bad mult", Config{Type: TypeBollinger, BandMult: -1}, "", ErrInvalidPeriods},
		{"unknown type", Config{Type: "VWAP"}, "", ErrUnknownStrategyType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strat, err := FromConfig(tt.cfg)
			if tt.Err != nil {
				if !errors.Is(err, tt.Err) {
					t.Fatalf("expected %v, got %v", tt.Err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FromConfig failed: %v", err)
			}
			if strat.ID() != tt.wantID {
				t.Errorf("ID = %q, want %q", strat.ID(), tt.wantID)
			}
		})
	}
}

func TestMACross_BuyOnUpCross(t *testing.T) {
	s := NewMACrossStrategy(2, 3)
	history := candlesFromCloses(100, 90, 80, 110)

	sig, err := s.Next(context.Background(), history)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if sig.Action != domain.ActionBuy {
		t.Fatalf("expected buy, got %s (%s)", sig.Action, sig.Reason)
	}
	if sig.Price != 110 {
		t.Errorf("signal price %.2f, want current close 110", sig.Price)
	}
	if sig.Quality <= 0 || sig.Quality > 0.95 {
		t.Errorf("quality %.4f outside (0,0.95]", sig.Quality)
	}
	if sig.Symbol != "600519" || sig.TimestampMs != history[3].TimestampMs {
		t.Errorf("signal not bound to current bar: %+v", sig)
	}
}

func TestMACross_SellOnDownCross(t *testing.T) {
	s := NewMACrossStrategy(2, 3)
	history := candlesFromCloses(80, 110, 120, 90)

	sig, err := s.Next(context.Background(), history)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if sig.Action != domain.ActionSell {
		t.Errorf("expected sell, got %s", sig.Action)
	}
}

func TestMACross_HoldCases(t *testing.T) {
	s := NewMACrossStrategy(2, 3)

	// Not enough history for the slow average plus one bar.
	sig, err := s.Next(context.Background(), candlesFromCloses(100, 100, 100))
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if sig.Action != domain.ActionHold {
		t.Errorf("expected hold during warmup, got %s", sig.Action)
	}

	// No cross on a flat tape.
	sig, _ = s.Next(context.Background(), candlesFromCloses(100, 100, 100, 100, 100))
	if sig.Action != domain.ActionHold {
		t.Errorf("expected hold with no cross, got %s", sig.Action)
	}
}

func TestMACD_SignalsOnHistogramFlip(t *testing.T) {
	s := NewMACDStrategy(12, 26, 9)

	// 40 flat bars keep the histogram at zero; the jump flips it
	// positive on the final bar.
	closes := make([]float64, 41)
	for i := range closes {
		closes[i] = 100
	}
	closes[40] = 110
	sig, err := s.Next(context.Background(), candlesFromCloses(closes...))
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if sig.Action != domain.ActionBuy {
		t.Errorf("expected buy on positive flip, got %s", sig.Action)
	}

	closes[40] = 90
	sig, _ = s.Next(context.Background(), candlesFromCloses(closes...))
	if sig.Action != domain.ActionSell {
		t.Errorf("expected sell on negative flip, got %s", sig.Action)
	}

	closes[40] = 100
	sig, _ = s.Next(context.Background(), candlesFromCloses(closes...))
	if sig.Action != domain.ActionHold {
		t.Errorf("expected hold with no flip, got %s", sig.Action)
	}
}

func TestKDJ_BuyInOversoldZone(t *testing.T) {
	s := NewKDJStrategy(3, 30, 70)

	// A string of closes at the bottom of the range drags K below D
	// deep into the oversold zone; the strong final bar crosses K back
	// above D.
	history := make([]*domain.Candle, 0, 6)
	for i := 0; i < 5; i++ {
		history = append(history, &domain.Candle{
			Symbol: "600519", TimestampMs: int64(i) * domain.MillisPerDay,
			High: 110, Low: 90, Close: 90,
		})
	}
	history = append(history, &domain.Candle{
		Symbol: "600519", TimestampMs: 5 * domain.MillisPerDay,
		High: 110, Low: 90, Close: 105,
	})

	sig, err := s.Next(context.Background(), history)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if sig.Action != domain.ActionBuy {
		t.Errorf("expected buy, got %s (%s)", sig.Action, sig.Reason)
	}
}

func TestBollinger_BandBreaks(t *testing.T) {
	s := NewBollingerStrategy(3, 1.0)

	sig, err := s.Next(context.Background(), candlesFromCloses(100, 100, 100, 100, 90))
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if sig.Action != domain.ActionBuy {
		t.Errorf("expected buy on lower-band break, got %s (%s)", sig.Action, sig.Reason)
	}

	sig, _ = s.Next(context.Background(), candlesFromCloses(100, 100, 100, 100, 110))
	if sig.Action != domain.ActionSell {
		t.Errorf("expected sell on upper-band break, got %s", sig.Action)
	}

	sig, _ = s.Next(context.Background(), candlesFromCloses(100, 100, 100, 100, 100))
	if sig.Action != domain.ActionHold {
		t.Errorf("expected hold inside the bands, got %s", sig.Action)
	}
}

func TestBuildSignal_ConditionTags(t *testing.T) {
	// A steep rise pushes trend strength past the bullish threshold.
	rising := make([]float64, 30)
	for i := range rising {
		rising[i] = 100 + float64(i)*2
	}
	sig := buildSignal(candlesFromCloses(rising...), domain.ActionBuy, 0.8, "test")
	if sig.Condition != domain.ConditionBullish {
		t.Errorf("expected bullish condition, got %q (trend %.4f)", sig.Condition, sig.TrendStrength)
	}
	if sig.TrendStrength <= 0.3 {
		t.Errorf("trend strength %.4f not above bullish threshold", sig.TrendStrength)
	}

	falling := make([]float64, 30)
	for i := range falling {
		falling[i] = 160 - float64(i)*2
	}
	sig = buildSignal(candlesFromCloses(falling...), domain.ActionSell, 0.8, "test")
	if sig.Condition != domain.ConditionBearish {
		t.Errorf("expected bearish condition, got %q", sig.Condition)
	}

	flat := make([]float64, 30)
	for i := range flat {
		flat[i] = 100
	}
	sig = buildSignal(candlesFromCloses(flat...), domain.ActionBuy, 0.8, "test")
	if sig.Condition != domain.ConditionNeutral {
		t.Errorf("expected neutral condition, got %q", sig.Condition)
	}
}
