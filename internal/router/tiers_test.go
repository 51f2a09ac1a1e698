package router

import "testing"

func TestSelectTierBaseMapping(t *testing.T) {
	cases := map[Complexity]string{
		Simple:   TierLocalQuality, // PreferLocal defaults false -> bumped
		Moderate: TierAPIFallback,
		Complex:  TierAPIFallback,
	}
	for complexity, want := range cases {
		got := SelectTier(complexity, SelectionOptions{})
		if got != want {
			t.Errorf("SelectTier(%v, {}) = %v, want %v", complexity, got, want)
		}
	}
}

func TestSelectTierPreferLocalKeepsBaseTier(t *testing.T) {
	got := SelectTier(Simple, SelectionOptions{PreferLocal: true})
	if got != TierLocalFast {
		t.Errorf("SelectTier(Simple, PreferLocal) = %v, want %v", got, TierLocalFast)
	}
}

func TestSelectTierQualityCriticalForcesAPIFallback(t *testing.T) {
	got := SelectTier(Simple, SelectionOptions{PreferLocal: true, QualityCritical: true})
	if got != TierAPIFallback {
		t.Errorf("SelectTier with QualityCritical = %v, want %v", got, TierAPIFallback)
	}
}

func TestTierTableFirstEnabled(t *testing.T) {
	table := TierTable{
		TierLocalFast: {
			{Name: "m1", Enabled: false},
			{Name: "m2", Enabled: true},
		},
	}
	m, err := table.FirstEnabled(TierLocalFast)
	if err != nil {
		t.Fatalf("FirstEnabled: %v", err)
	}
	if m.Name != "m2" {
		t.Errorf("FirstEnabled = %q, want m2", m.Name)
	}
}

func TestTierTableFirstEnabledErrorsWhenNoneEnabled(t *testing.T) {
	table := TierTable{TierLocalFast: {{Name: "m1", Enabled: false}}}
	if _, err := table.FirstEnabled(TierLocalFast); err == nil {
		t.Fatal("expected error when no model enabled")
	}
}

func TestTierTableNextInTier(t *testing.T) {
	table := TierTable{
		TierAPIFallback: {
			{Name: "a", Enabled: true},
			{Name: "b", Enabled: false},
			{Name: "c", Enabled: true},
		},
	}
	next, ok := table.NextInTier(TierAPIFallback, "a")
	if !ok || next.Name != "c" {
		t.Errorf("NextInTier after a = %v,%v, want c,true", next, ok)
	}
	if _, ok := table.NextInTier(TierAPIFallback, "c"); ok {
		t.Error("expected no next model after the last enabled entry")
	}
}
