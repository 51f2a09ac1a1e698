package router

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Config wires a Router's tier table, complexity overrides, quality gate,
// and cost/budget accounting.
type Config struct {
	Tiers              TierTable
	ComplexityOverride map[string]Complexity
	QualityThreshold   float64
	MaxFallbackAttempts int
	DailyBudgetUSD     float64
}

// Route is the outcome of one Router.Route call: which model answered, its
// response, the quality score it earned, and whether a fallback chain had to
// run to get there.
type Route struct {
	Tier          string
	Model         string
	Response      Response
	Quality       QualityScore
	FallbackSteps int
}

// Router ties together classification, tier selection, provider dispatch,
// quality-checked fallback, rate limiting, and cost accounting, per
// spec.md §4.6.
type Router struct {
	mu sync.RWMutex

	cfg       Config
	providers map[string]Provider // keyed by ModelConfig.Provider
	limiters  map[string]*AdaptiveRateLimiter
	ledger    *CostLedger
	critic    Provider // optional fast-tier model used for self-critique
}

func New(cfg Config, ledger *CostLedger) *Router {
	if cfg.QualityThreshold <= 0 {
		cfg.QualityThreshold = DefaultQualityThreshold
	}
	if cfg.MaxFallbackAttempts <= 0 {
		cfg.MaxFallbackAttempts = DefaultMaxFallbackAttempts
	}
	return &Router{
		cfg:       cfg,
		providers: make(map[string]Provider),
		limiters:  make(map[string]*AdaptiveRateLimiter),
		ledger:    ledger,
	}
}

// RegisterProvider wires a Provider implementation under the name used by
// ModelConfig.Provider ("anthropic", "openai", "bedrock", "local").
func (r *Router) RegisterProvider(name string, p Provider, initialTPM, maxTPM float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
	r.limiters[name] = NewAdaptiveRateLimiter(initialTPM, maxTPM)
}

// SetSelfCritic wires the optional fast model used for quality.go's
// self-critique signal.
func (r *Router) SetSelfCritic(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.critic = p
}

// RouteOptions carries the per-call overrides spec.md §4.6 allows on top of
// the action-type classification.
type RouteOptions struct {
	ActionType      string
	SelectionOptions
	QualitySchema []byte
	MinWords      int
}

// Route classifies actionType, selects a tier and model, completes against
// it, quality-checks the response, and walks the fallback chain (trying the
// next tier, then the next model within api_fallback) until a response
// clears the quality threshold or attempts are exhausted.
func (r *Router) Route(ctx context.Context, req Request, opts RouteOptions) (Route, error) {
	complexity := Classify(opts.ActionType, r.cfg.ComplexityOverride)
	tier := SelectTier(complexity, opts.SelectionOptions)

	if r.ledger != nil && r.cfg.DailyBudgetUSD > 0 {
		spent, err := r.ledger.DailySpend(ctx)
		if err == nil && spent >= r.cfg.DailyBudgetUSD {
			// Over budget: force the cheapest tier regardless of complexity.
			tier = TierLocalFast
		}
	}

	attempts := 0
	tiersToTry := append([]string{tier}, FallbackChain(tier)...)

	var lastErr error
	for _, t := range tiersToTry {
		model, err := r.cfg.Tiers.FirstEnabled(t)
		if err != nil {
			lastErr = err
			continue
		}
		for {
			route, quality, err := r.complete(ctx, t, model, req, opts)
			attempts++
			if err == nil && quality.Overall >= r.cfg.QualityThreshold {
				route.FallbackSteps = attempts - 1
				return route, nil
			}
			if err != nil {
				lastErr = err
			}
			if attempts >= r.cfg.MaxFallbackAttempts+1 {
				if err == nil {
					route.FallbackSteps = attempts - 1
					return route, nil // exhausted attempts, return best-effort response
				}
				break
			}
			if t != TierAPIFallback {
				break // move to the next tier rather than retrying within this one
			}
			next, ok := r.cfg.Tiers.NextInTier(t, model.Name)
			if !ok {
				break
			}
			model = next
		}
	}

	if lastErr != nil {
		return Route{}, fmt.Errorf("router: route exhausted fallback chain: %w", lastErr)
	}
	return Route{}, fmt.Errorf("router: no enabled model available for tier %q", tier)
}

func (r *Router) complete(ctx context.Context, tier string, model ModelConfig, req Request, opts RouteOptions) (Route, QualityScore, error) {
	r.mu.RLock()
	provider, ok := r.providers[model.Provider]
	limiter := r.limiters[model.Provider]
	critic := r.critic
	r.mu.RUnlock()
	if !ok {
		return Route{}, QualityScore{}, fmt.Errorf("router: no provider registered for %q", model.Provider)
	}

	callReq := req
	callReq.Model = model.ModelID

	if limiter != nil {
		if err := limiter.Wait(ctx, estimateTokens(callReq)); err != nil {
			return Route{}, QualityScore{}, fmt.Errorf("router: rate limit wait: %w", err)
		}
	}

	callCtx := ctx
	if model.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, time.Duration(model.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	resp, err := provider.Complete(callCtx, callReq)
	if limiter != nil {
		limiter.Observe(err)
	}
	if err != nil {
		return Route{}, QualityScore{}, err
	}

	quality, _ := CheckQuality(ctx, resp, QualityOptions{
		Schema:       opts.QualitySchema,
		MinWords:     opts.MinWords,
		SelfCritique: critic,
	})

	if r.ledger != nil {
		cost := CalculateCost(resp.InputTokens, resp.OutputTokens, model.CostPer1kTokens*1000, model.CostPer1kTokens*1000)
		_ = r.ledger.Record(ctx, CostEntry{
			Tier:         tier,
			Provider:     model.Provider,
			Model:        model.Name,
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
			CostUSD:      cost,
			At:           time.Now().UTC(),
		})
	}

	return Route{Tier: tier, Model: model.Name, Response: resp, Quality: quality}, quality, nil
}
