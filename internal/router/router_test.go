package router

import (
	"context"
	"errors"
	"testing"
)

type scriptedProvider struct {
	responses []Response
	errs      []error
	calls     int
}

func (p *scriptedProvider) Complete(ctx context.Context, req Request) (Response, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return Response{}, p.errs[i]
	}
	if i < len(p.responses) {
		return p.responses[i], nil
	}
	return p.responses[len(p.responses)-1], nil
}

func testTiers() TierTable {
	return TierTable{
		TierLocalFast: {
			{Name: "local-1", Provider: "fake-local", ModelID: "local-1", Enabled: true},
		},
		TierAPIFallback: {
			{Name: "api-1", Provider: "fake-api", ModelID: "api-1", Enabled: true},
			{Name: "api-2", Provider: "fake-api", ModelID: "api-2", Enabled: true},
		},
	}
}

func TestRouteReturnsGoodFirstResponse(t *testing.T) {
	r := New(Config{Tiers: testTiers()}, NewCostLedger(nil, "", 10))
	local := &scriptedProvider{responses: []Response{{Text: "a clean complete coherent answer with plenty of words"}}}
	r.RegisterProvider("fake-local", local, 600000, 600000)

	route, err := r.Route(context.Background(), Request{Prompt: "hi"}, RouteOptions{
		ActionType:       "classification",
		MinWords:         3,
		SelectionOptions: SelectionOptions{PreferLocal: true},
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if route.Tier != TierLocalFast {
		t.Errorf("Tier = %q, want %q", route.Tier, TierLocalFast)
	}
	if route.FallbackSteps != 0 {
		t.Errorf("FallbackSteps = %d, want 0", route.FallbackSteps)
	}
}

func TestRouteFallsBackWhenQualityTooLow(t *testing.T) {
	r := New(Config{Tiers: testTiers(), QualityThreshold: 0.99}, NewCostLedger(nil, "", 10))
	local := &scriptedProvider{responses: []Response{{Text: "I cannot do that."}}}
	api := &scriptedProvider{responses: []Response{{Text: "a clean complete coherent answer with plenty of words here"}}}
	r.RegisterProvider("fake-local", local, 600000, 600000)
	r.RegisterProvider("fake-api", api, 600000, 600000)

	route, err := r.Route(context.Background(), Request{Prompt: "hi"}, RouteOptions{
		ActionType:       "classification",
		MinWords:         3,
		SelectionOptions: SelectionOptions{PreferLocal: true},
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if route.Tier != TierAPIFallback {
		t.Errorf("Tier = %q, want fallback to %q", route.Tier, TierAPIFallback)
	}
	if route.FallbackSteps == 0 {
		t.Error("expected at least one fallback step recorded")
	}
}

func TestRouteErrorsWhenProviderUnregistered(t *testing.T) {
	r := New(Config{Tiers: testTiers()}, nil)
	if _, err := r.Route(context.Background(), Request{Prompt: "hi"}, RouteOptions{ActionType: "classification"}); err == nil {
		t.Fatal("expected error when no provider registered for any tier")
	}
}

func TestRouteAdvancesToNextModelWithinAPIFallbackTier(t *testing.T) {
	r := New(Config{Tiers: testTiers(), QualityThreshold: 0.5, MaxFallbackAttempts: 3}, nil)
	api := &scriptedProvider{errs: []error{errors.New("boom"), nil}, responses: []Response{{}, {Text: "a clean complete coherent answer with plenty of words"}}}
	r.RegisterProvider("fake-api", api, 600000, 600000)

	opts := SelectionOptions{QualityCritical: true}
	route, err := r.Route(context.Background(), Request{Prompt: "hi"}, RouteOptions{ActionType: "orchestration", SelectionOptions: opts, MinWords: 3})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if route.Model != "api-2" {
		t.Errorf("Model = %q, want api-2 (next model in tier after api-1 failed)", route.Model)
	}
}
