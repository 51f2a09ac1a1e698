package router

import (
	"context"
	"testing"
)

func TestCalculateCost(t *testing.T) {
	got := CalculateCost(1_000_000, 500_000, 3.0, 15.0)
	want := 3.0 + 7.5
	if got != want {
		t.Errorf("CalculateCost = %v, want %v", got, want)
	}
}

func TestCostLedgerLocalFallback(t *testing.T) {
	ledger := NewCostLedger(nil, "", 10)
	ctx := context.Background()

	if err := ledger.Record(ctx, CostEntry{CostUSD: 1.5}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := ledger.Record(ctx, CostEntry{CostUSD: 0.25}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	spend, err := ledger.DailySpend(ctx)
	if err != nil {
		t.Fatalf("DailySpend: %v", err)
	}
	if spend != 1.75 {
		t.Errorf("DailySpend = %v, want 1.75", spend)
	}
}

func TestCostLedgerRecentRingBuffer(t *testing.T) {
	ledger := NewCostLedger(nil, "", 2)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = ledger.Record(ctx, CostEntry{Model: string(rune('a' + i))})
	}
	recent := ledger.Recent(10)
	if len(recent) != 2 {
		t.Fatalf("Recent = %d entries, want 2 (ring buffer cap)", len(recent))
	}
	if recent[0].Model != "b" || recent[1].Model != "c" {
		t.Errorf("Recent = %+v, want [b, c]", recent)
	}
}
