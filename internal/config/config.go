// Package config loads and validates the memoryos TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration that unmarshals from TOML strings like "60s" or "2m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	General  General        `toml:"general"`
	Runtime  RuntimeConfig  `toml:"runtime"`
	Firewall FirewallConfig `toml:"firewall"`
	Router   RouterConfig   `toml:"router"`
}

// General holds process-wide settings read by cmd/memoryosd's tick loop and
// the glyph store bootstrap shared by every binary.
type General struct {
	TickInterval Duration `toml:"tick_interval"`
	MaxPerTick   int      `toml:"max_per_tick"` // claims started per tick, see cmd/memoryosd
	LogLevel     string   `toml:"log_level"`
	StateDB      string   `toml:"state_db"`
}

// RuntimeConfig configures internal/runtime.Runtime: the sandbox an
// executor's file tools are confined to, the iteration ceiling for
// Runtime.Run, and the role/routing defaults planner and executor loops
// start from.
type RuntimeConfig struct {
	SandboxRoot   string `toml:"sandbox_root"`
	MaxIterations int    `toml:"max_iterations"`
	PlannerRole   string `toml:"planner_role"`
	ExecutorRole  string `toml:"executor_role"`
	ActionType    string `toml:"action_type"`
	PreferLocal   bool   `toml:"prefer_local"`
}

// FirewallConfig configures internal/firewall.Firewall's execution budget
// and per-tool policy overrides on top of firewall.DefaultPolicies.
type FirewallConfig struct {
	MaxSteps        int                   `toml:"max_steps"`
	MaxSeconds      int                   `toml:"max_seconds"`
	MaxRecursion    int                   `toml:"max_recursion"`
	PolicyOverrides map[string]ToolPolicy `toml:"policy"`
}

// ToolPolicy mirrors internal/firewall.Policy so it can round-trip through
// TOML without internal/config importing internal/firewall's package for
// the struct shape itself (only the conversion helpers below reach into it).
type ToolPolicy struct {
	Tier             string   `toml:"tier"`
	RequiresApproval bool     `toml:"requires_approval"`
	Sandboxed        bool     `toml:"sandboxed"`
	AllowDomains     []string `toml:"allow_domains"`
	MaxBytes         int64    `toml:"max_bytes"`
	TimeoutSeconds   int      `toml:"timeout_seconds"`
}

// RouterConfig configures internal/router.Router: the quality gate, the
// daily spend cap, the three-tier model table, and the credentials each
// named provider dials out with.
type RouterConfig struct {
	QualityThreshold    float64                         `toml:"quality_threshold"`
	MaxFallbackAttempts int                             `toml:"max_fallback_attempts"`
	DailyBudgetUSD      float64                         `toml:"daily_budget_usd"`
	Tiers               map[string][]RouterModelConfig  `toml:"tiers"`
	Providers           map[string]RouterProviderConfig `toml:"providers"`
	Redis               RouterRedis                     `toml:"redis"`
}

// RouterModelConfig is one TOML entry in a router.tiers.<tier> array.
type RouterModelConfig struct {
	Name            string  `toml:"name"`
	Provider        string  `toml:"provider"` // key into router.providers
	ModelID         string  `toml:"model_id"`
	CostPer1kTokens float64 `toml:"cost_per_1k_tokens"`
	TimeoutSeconds  int     `toml:"timeout_seconds"`
	ContextWindow   int     `toml:"context_window"`
	Enabled         bool    `toml:"enabled"`
}

// RouterProviderConfig names which router.Provider implementation to
// construct and the credentials/endpoint it needs. Kind is one of
// "anthropic", "openai", "openai_compatible", "bedrock", "local".
type RouterProviderConfig struct {
	Kind           string  `toml:"kind"`
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	DefaultModel   string  `toml:"default_model"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	InitialTPM     float64 `toml:"initial_tpm"`
	MaxTPM         float64 `toml:"max_tpm"`
}

// RouterRedis configures the optional shared cost ledger backing store.
type RouterRedis struct {
	Addr      string `toml:"addr"`
	KeyPrefix string `toml:"key_prefix"`
}

// Clone returns a deep copy of cfg so callers can safely mutate the result.
func (cfg *Config) Clone() *Config {
	if cfg == nil {
		return nil
	}

	cloned := *cfg
	cloned.Firewall.PolicyOverrides = cloneToolPolicyMap(cfg.Firewall.PolicyOverrides)
	cloned.Router.Tiers = cloneRouterTiers(cfg.Router.Tiers)
	cloned.Router.Providers = cloneRouterProviders(cfg.Router.Providers)
	return &cloned
}

func cloneToolPolicyMap(in map[string]ToolPolicy) map[string]ToolPolicy {
	if in == nil {
		return nil
	}
	out := make(map[string]ToolPolicy, len(in))
	for key, policy := range in {
		policy.AllowDomains = cloneStringSlice(policy.AllowDomains)
		out[key] = policy
	}
	return out
}

func cloneRouterTiers(in map[string][]RouterModelConfig) map[string][]RouterModelConfig {
	if in == nil {
		return nil
	}
	out := make(map[string][]RouterModelConfig, len(in))
	for tier, models := range in {
		cloned := make([]RouterModelConfig, len(models))
		copy(cloned, models)
		out[tier] = cloned
	}
	return out
}

func cloneRouterProviders(in map[string]RouterProviderConfig) map[string]RouterProviderConfig {
	if in == nil {
		return nil
	}
	out := make(map[string]RouterProviderConfig, len(in))
	for key, provider := range in {
		out[key] = provider
	}
	return out
}

func cloneStringSlice(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// Load reads and validates a memoryos TOML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyDefaults(&cfg)
	normalizePaths(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Reload reads and validates a memoryos TOML configuration file.
//
// This mirrors Load but is intentionally named to reflect runtime refresh paths.
func Reload(path string) (*Config, error) {
	return Load(path)
}

// LoadManager reads config from path and returns an RWMutex-backed thread-safe manager.
func LoadManager(path string) (ConfigManager, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}

	cfg, err := Reload(path)
	if err != nil {
		return nil, err
	}
	return NewRWMutexManager(cfg), nil
}

func applyDefaults(cfg *Config) {
	if cfg.General.TickInterval.Duration == 0 {
		cfg.General.TickInterval.Duration = 60 * time.Second
	}
	if cfg.General.MaxPerTick == 0 {
		cfg.General.MaxPerTick = 3
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}

	// Runtime defaults
	if cfg.Runtime.MaxIterations == 0 {
		cfg.Runtime.MaxIterations = 25
	}
	if cfg.Runtime.PlannerRole == "" {
		cfg.Runtime.PlannerRole = "planner"
	}
	if cfg.Runtime.ExecutorRole == "" {
		cfg.Runtime.ExecutorRole = "coder"
	}
	if cfg.Runtime.ActionType == "" {
		cfg.Runtime.ActionType = "reasoning"
	}

	// Firewall budget defaults mirror internal/firewall.DefaultBudget.
	if cfg.Firewall.MaxSteps == 0 {
		cfg.Firewall.MaxSteps = 200
	}
	if cfg.Firewall.MaxSeconds == 0 {
		cfg.Firewall.MaxSeconds = 1800
	}
	if cfg.Firewall.MaxRecursion == 0 {
		cfg.Firewall.MaxRecursion = 3
	}

	// Router defaults mirror internal/router.DefaultQualityThreshold and
	// DefaultMaxFallbackAttempts.
	if cfg.Router.QualityThreshold == 0 {
		cfg.Router.QualityThreshold = 0.7
	}
	if cfg.Router.MaxFallbackAttempts == 0 {
		cfg.Router.MaxFallbackAttempts = 2
	}
	if cfg.Router.Redis.KeyPrefix == "" {
		cfg.Router.Redis.KeyPrefix = "router:spend:"
	}
	for name, provider := range cfg.Router.Providers {
		if provider.TimeoutSeconds == 0 {
			provider.TimeoutSeconds = 30
		}
		if provider.InitialTPM == 0 {
			provider.InitialTPM = 10000
		}
		if provider.MaxTPM == 0 {
			provider.MaxTPM = 100000
		}
		cfg.Router.Providers[name] = provider
	}
}

// normalizePaths expands "~" and trims whitespace for configured filesystem paths.
func normalizePaths(cfg *Config) {
	if cfg == nil {
		return
	}

	cfg.General.StateDB = ExpandHome(strings.TrimSpace(cfg.General.StateDB))
	cfg.Runtime.SandboxRoot = ExpandHome(strings.TrimSpace(cfg.Runtime.SandboxRoot))
}

func validate(cfg *Config) error {
	if cfg.General.StateDB != "" {
		dir := ExpandHome(filepath.Dir(cfg.General.StateDB))
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("state_db directory %q does not exist: %w", dir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("state_db parent path %q is not a directory", dir)
		}
	}

	if err := validateRuntimeConfig(cfg.Runtime); err != nil {
		return fmt.Errorf("runtime configuration: %w", err)
	}
	if err := validateFirewallConfig(cfg.Firewall); err != nil {
		return fmt.Errorf("firewall configuration: %w", err)
	}
	if err := validateRouterConfig(cfg.Router); err != nil {
		return fmt.Errorf("router configuration: %w", err)
	}

	return nil
}

var knownFirewallTiers = map[string]struct{}{
	"safe": {}, "moderate": {}, "dangerous": {},
}

func validateRuntimeConfig(rc RuntimeConfig) error {
	if rc.MaxIterations < 0 {
		return fmt.Errorf("max_iterations cannot be negative")
	}
	return nil
}

func validateFirewallConfig(fc FirewallConfig) error {
	if fc.MaxSteps < 0 || fc.MaxSeconds < 0 || fc.MaxRecursion < 0 {
		return fmt.Errorf("max_steps, max_seconds, and max_recursion cannot be negative")
	}
	for tool, policy := range fc.PolicyOverrides {
		if _, ok := knownFirewallTiers[strings.ToLower(strings.TrimSpace(policy.Tier))]; !ok {
			return fmt.Errorf("policy[%q].tier %q must be one of safe, moderate, dangerous", tool, policy.Tier)
		}
		if policy.MaxBytes < 0 {
			return fmt.Errorf("policy[%q].max_bytes cannot be negative", tool)
		}
		if policy.TimeoutSeconds < 0 {
			return fmt.Errorf("policy[%q].timeout_seconds cannot be negative", tool)
		}
	}
	return nil
}

func validateRouterConfig(rc RouterConfig) error {
	if rc.QualityThreshold < 0 || rc.QualityThreshold > 1 {
		return fmt.Errorf("quality_threshold must be between 0 and 1")
	}
	if rc.MaxFallbackAttempts < 0 {
		return fmt.Errorf("max_fallback_attempts cannot be negative")
	}
	if rc.DailyBudgetUSD < 0 {
		return fmt.Errorf("daily_budget_usd cannot be negative")
	}

	knownProviderKinds := map[string]struct{}{
		"anthropic": {}, "openai": {}, "openai_compatible": {}, "bedrock": {}, "local": {},
	}
	for name, provider := range rc.Providers {
		if _, ok := knownProviderKinds[provider.Kind]; !ok {
			return fmt.Errorf("providers[%q].kind %q must be one of anthropic, openai, openai_compatible, bedrock, local", name, provider.Kind)
		}
	}

	validTierNames := map[string]struct{}{
		"local_fast": {}, "local_quality": {}, "api_fallback": {},
	}
	for tier, models := range rc.Tiers {
		if _, ok := validTierNames[tier]; !ok {
			return fmt.Errorf("tiers[%q]: unknown tier, must be one of local_fast, local_quality, api_fallback", tier)
		}
		for _, model := range models {
			if model.Name == "" {
				return fmt.Errorf("tiers[%q]: model entry missing name", tier)
			}
			if _, ok := rc.Providers[model.Provider]; !ok {
				return fmt.Errorf("tiers[%q] model %q references undefined providers.%s", tier, model.Name, model.Provider)
			}
		}
	}
	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if len(path) == 0 {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
