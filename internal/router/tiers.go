package router

import "fmt"

// Tier names, ordered cheapest/fastest to most capable/expensive.
const (
	TierLocalFast    = "local_fast"
	TierLocalQuality = "local_quality"
	TierAPIFallback  = "api_fallback"
)

// ModelConfig is one entry in a tier's ordered model list:
// {name, provider, model_id, cost_per_1k_tokens, timeout_s, context_window, enabled}.
type ModelConfig struct {
	Name            string
	Provider        string // "anthropic", "openai", "bedrock", "local"
	ModelID         string
	CostPer1kTokens float64
	TimeoutSeconds  int
	ContextWindow   int
	Enabled         bool
}

// TierTable holds the three tiers' ordered model lists.
type TierTable map[string][]ModelConfig

// SelectionOptions carries the overrides spec.md §4.6 defines on top of the
// base complexity -> tier mapping.
type SelectionOptions struct {
	QualityCritical bool // context.quality_critical=true forces api_fallback
	PreferLocal     bool // config.prefer_local=false forces next-highest tier
}

// SelectTier implements "SIMPLE -> local_fast; MODERATE -> local_quality;
// COMPLEX -> api_fallback" plus the two override rules.
func SelectTier(complexity Complexity, opts SelectionOptions) string {
	if opts.QualityCritical {
		return TierAPIFallback
	}

	base := TierAPIFallback
	switch complexity {
	case Simple:
		base = TierLocalFast
	case Moderate:
		base = TierLocalQuality
	case Complex:
		base = TierAPIFallback
	}

	if !opts.PreferLocal {
		return nextHighestTier(base)
	}
	return base
}

func nextHighestTier(tier string) string {
	switch tier {
	case TierLocalFast:
		return TierLocalQuality
	case TierLocalQuality:
		return TierAPIFallback
	default:
		return TierAPIFallback
	}
}

// FirstEnabled returns the first enabled model in tier's list.
func (t TierTable) FirstEnabled(tier string) (ModelConfig, error) {
	for _, m := range t[tier] {
		if m.Enabled {
			return m, nil
		}
	}
	return ModelConfig{}, fmt.Errorf("router: no enabled model in tier %q", tier)
}

// NextInTier returns the enabled model after current's position in tier's
// list, backing the "api_fallback -> next model in the same tier" rule.
func (t TierTable) NextInTier(tier, currentName string) (ModelConfig, bool) {
	models := t[tier]
	found := false
	for _, m := range models {
		if found && m.Enabled {
			return m, true
		}
		if m.Name == currentName {
			found = true
		}
	}
	return ModelConfig{}, false
}
