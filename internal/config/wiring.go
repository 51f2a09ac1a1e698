package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/antigravity-dev/memoryos/internal/firewall"
	"github.com/antigravity-dev/memoryos/internal/router"
)

// TierTable converts router.tiers.* TOML entries into the router.TierTable
// Router.New expects.
func (rc RouterConfig) TierTable() router.TierTable {
	table := make(router.TierTable, len(rc.Tiers))
	for tier, models := range rc.Tiers {
		converted := make([]router.ModelConfig, len(models))
		for i, m := range models {
			converted[i] = router.ModelConfig{
				Name:            m.Name,
				Provider:        m.Provider,
				ModelID:         m.ModelID,
				CostPer1kTokens: m.CostPer1kTokens,
				TimeoutSeconds:  m.TimeoutSeconds,
				ContextWindow:   m.ContextWindow,
				Enabled:         m.Enabled,
			}
		}
		table[tier] = converted
	}
	return table
}

// BuildProviders constructs a router.Provider for every entry in
// router.providers, keyed the same way so Router.RegisterProvider can be
// called directly with the result.
func (rc RouterConfig) BuildProviders() (map[string]router.Provider, error) {
	providers := make(map[string]router.Provider, len(rc.Providers))
	for name, p := range rc.Providers {
		timeout := time.Duration(p.TimeoutSeconds) * time.Second
		switch p.Kind {
		case "anthropic":
			provider, err := router.NewAnthropicProvider(p.APIKey, p.DefaultModel)
			if err != nil {
				return nil, fmt.Errorf("router provider %q: %w", name, err)
			}
			providers[name] = provider
		case "openai":
			provider, err := router.NewOpenAIProvider(p.APIKey, p.DefaultModel)
			if err != nil {
				return nil, fmt.Errorf("router provider %q: %w", name, err)
			}
			providers[name] = provider
		case "openai_compatible":
			provider, err := router.NewOpenAICompatibleProvider(p.BaseURL, p.APIKey, p.DefaultModel)
			if err != nil {
				return nil, fmt.Errorf("router provider %q: %w", name, err)
			}
			providers[name] = provider
		case "local":
			providers[name] = router.NewLocalProvider(p.BaseURL, p.DefaultModel, timeout)
		case "bedrock":
			// Bedrock needs an AWS SDK runtime client wired by the caller
			// (credentials resolution belongs to cmd/memoryosd's bootstrap,
			// not this config package); skip here and let the caller inject
			// it via router.NewBedrockProvider directly.
			continue
		default:
			return nil, fmt.Errorf("router provider %q: unknown kind %q", name, p.Kind)
		}
	}
	return providers, nil
}

// BuildCostLedger wires a router.CostLedger against rc.Redis when an addr is
// configured, falling back to the process-local ledger otherwise.
func (rc RouterConfig) BuildCostLedger(maxLog int) *router.CostLedger {
	var rdb *redis.Client
	if addr := strings.TrimSpace(rc.Redis.Addr); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
	}
	return router.NewCostLedger(rdb, rc.Redis.KeyPrefix, maxLog)
}

// RouterSettings returns the router.Config fields RouterConfig owns, for
// embedding into a caller-assembled router.Config alongside Tiers/ledger.
func (rc RouterConfig) RouterSettings() (qualityThreshold float64, maxFallbackAttempts int, dailyBudgetUSD float64) {
	return rc.QualityThreshold, rc.MaxFallbackAttempts, rc.DailyBudgetUSD
}

// Budget converts FirewallConfig's execution ceilings into firewall.Budget.
func (fc FirewallConfig) Budget() firewall.Budget {
	return firewall.Budget{
		MaxSteps:     fc.MaxSteps,
		MaxSeconds:   fc.MaxSeconds,
		MaxRecursion: fc.MaxRecursion,
	}
}

// ApplyPolicyOverrides layers firewall.policy.* TOML overrides on top of fw's
// existing (default) policy table.
func (fc FirewallConfig) ApplyPolicyOverrides(fw *firewall.Firewall) {
	for tool, p := range fc.PolicyOverrides {
		fw.SetPolicy(tool, firewall.Policy{
			Tier:             strings.ToLower(strings.TrimSpace(p.Tier)),
			RequiresApproval: p.RequiresApproval,
			Sandboxed:        p.Sandboxed,
			AllowDomains:     p.AllowDomains,
			MaxBytes:         p.MaxBytes,
			TimeoutSeconds:   p.TimeoutSeconds,
		})
	}
}
