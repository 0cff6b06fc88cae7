package execution

import (
	"errors"
	"math"
	"testing"

	"ashare-backtest-lab/internal/domain"
	"ashare-backtest-lab/internal/ledger"
)

func TestExecute_InvalidSignal(t *testing.T) {
	e := New("run1", 0, ledger.New(1_000_000))

	tests := []struct {
		name string
		req  Request
	}{
		{"zero price", Request{Symbol: "600519", Action: domain.ActionBuy, Price: 0, Volume: 100}},
		{"negative price", Request{Symbol: "600519", Action: domain.ActionBuy, Price: -1, Volume: 100}},
		{"zero volume", Request{Symbol: "600519", Action: domain.ActionBuy, Price: 100, Volume: 0}},
		{"hold action", Request{Symbol: "600519", Action: domain.ActionHold, Price: 100, Volume: 100}},
		{"unknown action", Request{Symbol: "600519", Action: "short", Price: 100, Volume: 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.Execute(tt.req); !errors.Is(err, ErrInvalidSignal) {
				t.Errorf("expected ErrInvalidSignal, got %v", err)
			}
		})
	}

	if len(e.Trades()) != 0 {
		t.Errorf("invalid signals produced %d trade records", len(e.Trades()))
	}
}

func TestExecute_BuyAppliesSlippage(t *testing.T) {
	l := ledger.New(1_000_000)
	e := New("run1", 0.001, l)

	trade, err := e.Execute(Request{
		TimestampMs: 1000,
		Symbol:      "600519",
		Action:      domain.ActionBuy,
		Price:       100,
		Volume:      1000,
		StopLoss:    95,
		TakeProfit:  120,
		Quality:     0.8,
		Condition:   domain.ConditionBullish,
		Reason:      "entry",
	})
	if err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	// Cash is debited at the effective price, the record keeps the
	// requested price.
	wantCash := 1_000_000 - 100*1.001*1000
	if math.Abs(l.Cash()-wantCash) > 1e-6 {
		t.Errorf("expected cash %.2f, got %.2f", wantCash, l.Cash())
	}
	if trade.Price != 100 {
		t.Errorf("record price altered by slippage: %.4f", trade.Price)
	}

	pos := l.Position("600519")
	if pos == nil {
		t.Fatal("no position after buy")
	}
	if pos.StopLoss != 95 || pos.TakeProfit != 120 {
		t.Errorf("stops not armed: stop=%.2f take=%.2f", pos.StopLoss, pos.TakeProfit)
	}
	if trade.Position != 1000 || trade.Profit != 0 {
		t.Errorf("unexpected buy record: position=%.0f profit=%.2f", trade.Position, trade.Profit)
	}
}

func TestExecute_SellRecord(t *testing.T) {
	l := ledger.New(1_000_000)
	e := New("run1", 0, l)

	if _, err := e.Execute(Request{
		TimestampMs: 0, Symbol: "600519", Action: domain.ActionBuy,
		Price: 100, Volume: 1000, StopLoss: 95, TakeProfit: 120,
	}); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	trade, err := e.Execute(Request{
		TimestampMs: 3 * domain.MillisPerDay,
		Symbol:      "600519",
		Action:      domain.ActionSell,
		Price:       110,
		Volume:      1000,
		Reason:      domain.ReasonEndOfPeriod,
	})
	if err != nil {
		t.Fatalf("sell failed: %v", err)
	}

	if trade.Profit != 10_000 {
		t.Errorf("expected profit 10000, got %.2f", trade.Profit)
	}
	if trade.Position != 0 {
		t.Errorf("expected flat position after full sell, got %.0f", trade.Position)
	}
	if trade.ExitPrice != 110 || trade.EntryPrice != 100 {
		t.Errorf("entry/exit prices wrong: entry=%.2f exit=%.2f", trade.EntryPrice, trade.ExitPrice)
	}
	if trade.HoldingDays != 3 {
		t.Errorf("expected 3 holding days, got %d", trade.HoldingDays)
	}
	// Stops in force at exit survive on the record even though the
	// position is gone.
	if trade.StopLoss != 95 || trade.TakeProfit != 120 {
		t.Errorf("stops not captured: stop=%.2f take=%.2f", trade.StopLoss, trade.TakeProfit)
	}
	if trade.Reason != domain.ReasonEndOfPeriod {
		t.Errorf("unexpected reason %q", trade.Reason)
	}
}

func TestExecute_RoundTripConservation(t *testing.T) {
	const (
		slippage = 0.002
		p1       = 100.0
		p2       = 108.0
		volume   = 500.0
	)

	l := ledger.New(1_000_000)
	e := New("run1", slippage, l)

	if _, err := e.Execute(Request{TimestampMs: 0, Symbol: "600519", Action: domain.ActionBuy, Price: p1, Volume: volume}); err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	if _, err := e.Execute(Request{TimestampMs: 1000, Symbol: "600519", Action: domain.ActionSell, Price: p2, Volume: volume}); err != nil {
		t.Fatalf("sell failed: %v", err)
	}

	// Cash change over the round trip is exactly the effective-price
	// difference; slippage is the only friction.
	wantDelta := volume * (p2*(1-slippage) - p1*(1+slippage))
	gotDelta := l.Cash() - 1_000_000
	if math.Abs(gotDelta-wantDelta) > 1e-6 {
		t.Errorf("conservation violated: got %.6f, want %.6f", gotDelta, wantDelta)
	}
}

func TestExecute_RejectedTradeLeavesNoRecord(t *testing.T) {
	l := ledger.New(1000)
	e := New("run1", 0, l)

	_, err := e.Execute(Request{Symbol: "600519", Action: domain.ActionBuy, Price: 100, Volume: 1000})
	if !errors.Is(err, ledger.ErrInsufficientCapital) {
		t.Fatalf("expected ErrInsufficientCapital, got %v", err)
	}
	if len(e.Trades()) != 0 {
		t.Errorf("rejected buy left %d records", len(e.Trades()))
	}
	if l.Cash() != 1000 {
		t.Errorf("rejected buy mutated cash: %.2f", l.Cash())
	}

	_, err = e.Execute(Request{Symbol: "600519", Action: domain.ActionSell, Price: 100, Volume: 10})
	if !errors.Is(err, ledger.ErrInsufficientPosition) {
		t.Fatalf("expected ErrInsufficientPosition, got %v", err)
	}
	if len(e.Trades()) != 0 {
		t.Errorf("rejected sell left %d records", len(e.Trades()))
	}
}

func TestExecute_TradeIDsDeterministicAndUnique(t *testing.T) {
	run := func() []string {
		l := ledger.New(1_000_000)
		e := New("run1", 0, l)
		// Two trades of the same symbol in the same time step.
		e.Execute(Request{TimestampMs: 1000, Symbol: "600519", Action: domain.ActionBuy, Price: 100, Volume: 100})
		e.Execute(Request{TimestampMs: 1000, Symbol: "600519", Action: domain.ActionSell, Price: 100, Volume: 100})
		e.Execute(Request{TimestampMs: 1000, Symbol: "600519", Action: domain.ActionBuy, Price: 100, Volume: 100})

		ids := make([]string, 0, 3)
		for _, tr := range e.Trades() {
			ids = append(ids, tr.TradeID)
		}
		return ids
	}

	first, second := run(), run()
	if len(first) != 3 {
		t.Fatalf("expected 3 trades, got %d", len(first))
	}

	seen := make(map[string]bool)
	for i, id := range first {
		if seen[id] {
			t.Errorf("duplicate trade ID %s", id)
		}
		seen[id] = true
		if id != second[i] {
			t.Errorf("trade ID %d not deterministic: %s vs %s", i, id, second[i])
		}
	}
}
