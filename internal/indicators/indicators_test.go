package indicators

import (
	"math"
	"testing"

	"ashare-backtest-lab/internal/domain"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	out := SMA(values, 3)

	// Warmup positions average what is available so far.
	want := []float64{1, 1.5, 2, 3, 4}
	for i := range want {
		if !almostEqual(out[i], want[i]) {
			t.Errorf("SMA[%d] = %.4f, want %.4f", i, out[i], want[i])
		}
	}
}

func TestEMA(t *testing.T) {
	values := []float64{10, 10, 10, 10}
	out := EMA(values, 5)
	for i, v := range out {
		if !almostEqual(v, 10) {
			t.Errorf("EMA of constant series: [%d] = %.4f", i, v)
		}
	}

	// Seeded with the first value, alpha = 2/(period+1).
	out = EMA([]float64{10, 20}, 3)
	if !almostEqual(out[1], 0.5*20+0.5*10) {
		t.Errorf("EMA[1] = %.4f, want 15", out[1])
	}

	if out := EMA(nil, 5); len(out) != 0 {
		t.Errorf("EMA of empty series has length %d", len(out))
	}
}

func TestMACD(t *testing.T) {
	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = 100
	}
	line, signal, histogram := MACD(closes, 12, 26, 9)
	for i := range closes {
		if !almostEqual(line[i], 0) || !almostEqual(signal[i], 0) || !almostEqual(histogram[i], 0) {
			t.Fatalf("MACD of constant series nonzero at %d", i)
		}
	}

	// A rising tape keeps the fast EMA above the slow one.
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	line, _, _ = MACD(closes, 12, 26, 9)
	if line[len(line)-1] <= 0 {
		t.Errorf("MACD line not positive on a rising tape: %.4f", line[len(line)-1])
	}
}

func TestRSI(t *testing.T) {
	flat := []float64{100, 100, 100, 100, 100}
	for i, v := range RSI(flat, 3) {
		if !almostEqual(v, 50) {
			t.Errorf("RSI of flat series: [%d] = %.4f", i, v)
		}
	}

	rising := []float64{100, 101, 102, 103, 104, 105}
	out := RSI(rising, 3)
	if !almostEqual(out[len(out)-1], 100) {
		t.Errorf("RSI of all-gain series = %.4f, want 100", out[len(out)-1])
	}

	falling := []float64{105, 104, 103, 102, 101, 100}
	out = RSI(falling, 3)
	if !almostEqual(out[len(out)-1], 0) {
		t.Errorf("RSI of all-loss series = %.4f, want 0", out[len(out)-1])
	}
}

func TestKDJ(t *testing.T) {
	candles := []*domain.Candle{
		{High: 110, Low: 90, Close: 110},
		{High: 110, Low: 90, Close: 110},
		{High: 110, Low: 90, Close: 110},
	}
	k, d, j := KDJ(candles, 3)

	// Closing at the top of the range pulls K up from its 50 seed
	// toward 100, D lags K, and J leads above both.
	if k[2] <= k[0] {
		t.Errorf("K not rising: %v", k)
	}
	if d[2] >= k[2] {
		t.Errorf("D not lagging K: k=%.2f d=%.2f", k[2], d[2])
	}
	if j[2] <= k[2] {
		t.Errorf("J not leading: k=%.2f j=%.2f", k[2], j[2])
	}

	// Degenerate flat range reads neutral.
	flat := []*domain.Candle{{High: 100, Low: 100, Close: 100}}
	k, _, _ = KDJ(flat, 3)
	if !almostEqual(k[0], 50) {
		t.Errorf("flat-range K = %.4f, want 50", k[0])
	}
}

func TestBollinger(t *testing.T) {
	closes := []float64{100, 100, 100, 100, 100}
	middle, upper, lower := Bollinger(closes, 3, 2)
	for i := range closes {
		if !almostEqual(middle[i], 100) || !almostEqual(upper[i], 100) || !almostEqual(lower[i], 100) {
			t.Fatalf("constant series bands not collapsed at %d", i)
		}
	}

	closes = []float64{98, 102, 98, 102, 98, 102}
	middle, upper, lower = Bollinger(closes, 4, 2)
	last := len(closes) - 1
	if !almostEqual(middle[last], 100) {
		t.Errorf("middle band %.4f, want 100", middle[last])
	}
	// Population stdev of {98,102,98,102} is 2: bands at 100 ± 4.
	if !almostEqual(upper[last], 104) || !almostEqual(lower[last], 96) {
		t.Errorf("bands %.4f / %.4f, want 104 / 96", upper[last], lower[last])
	}
}

func TestATR(t *testing.T) {
	candles := []*domain.Candle{
		{High: 102, Low: 98, Close: 100},
		{High: 103, Low: 99, Close: 101},
		{High: 104, Low: 100, Close: 102},
	}
	out := ATR(candles, 3)

	// Every true range is 4 (the gap never exceeds the bar range).
	for i, v := range out {
		if !almostEqual(v, 4) {
			t.Errorf("ATR[%d] = %.4f, want 4", i, v)
		}
	}

	// A gap up makes |high - prevClose| the true range.
	candles = []*domain.Candle{
		{High: 102, Low: 98, Close: 100},
		{High: 110, Low: 108, Close: 109},
	}
	out = ATR(candles, 1)
	if !almostEqual(out[1], 10) {
		t.Errorf("gap ATR = %.4f, want 10", out[1])
	}
}

func TestTrendStrength(t *testing.T) {
	flat := []float64{100, 100, 100, 100}
	for i, v := range TrendStrength(flat, 3) {
		if v != 0 {
			t.Errorf("flat series trend strength [%d] = %.4f", i, v)
		}
	}

	rising := make([]float64, 30)
	for i := range rising {
		rising[i] = 100 + float64(i)
	}
	out := TrendStrength(rising, 20)
	last := out[len(out)-1]
	if last <= 0 || last > 1 {
		t.Errorf("rising series trend strength %.4f outside (0,1]", last)
	}

	falling := make([]float64, 30)
	for i := range falling {
		falling[i] = 100 - float64(i)
	}
	out = TrendStrength(falling, 20)
	last = out[len(out)-1]
	if last >= 0 || last < -1 {
		t.Errorf("falling series trend strength %.4f outside [-1,0)", last)
	}
}

func TestCloses(t *testing.T) {
	candles := []*domain.Candle{{Close: 1}, {Close: 2}}
	out := Closes(candles)
	if len(out) != 2 || out[0] != 1 || out[1] != 2 {
		t.Errorf("unexpected closes: %v", out)
	}
}
