// Command memoryos-worker is the sub-agent entrypoint
// internal/dispatch.Dispatcher spawns: it loads one objective, runs the
// Agent Runtime loop against it, and exits. One process handles exactly one
// task per spec.md §4.4's spawn() contract.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/antigravity-dev/memoryos/internal/config"
	"github.com/antigravity-dev/memoryos/internal/dispatch"
	"github.com/antigravity-dev/memoryos/internal/firewall"
	"github.com/antigravity-dev/memoryos/internal/glyph"
	"github.com/antigravity-dev/memoryos/internal/orchestrator"
	"github.com/antigravity-dev/memoryos/internal/retrieval"
	"github.com/antigravity-dev/memoryos/internal/router"
	"github.com/antigravity-dev/memoryos/internal/runtime"
	"github.com/antigravity-dev/memoryos/internal/tasks"
)

func main() {
	configPath := flag.String("config", "memoryos.toml", "path to config file")
	objectiveFile := flag.String("objective-file", "", "path to a file containing the objective text")
	role := flag.String("role", "coder", "actor role this worker runs as (also selects planner vs executor mode)")
	chatID := flag.String("chat-id", "", "chat/session id this worker belongs to, for scoped memory lookups")
	sandboxRoot := flag.String("sandbox-root", "", "filesystem root the executor's file tools are confined to")
	taskID := flag.String("task-id", "", "task glyph id to update on completion, if any")
	topic := flag.String("topic", "", "memory topic for prompt assembly, defaults to role when empty")
	maxIterations := flag.Int("max-iterations", 0, "override runtime.max_iterations from config (0 uses config default)")
	dev := flag.Bool("dev", false, "use text log format (default is JSON)")
	flag.Parse()

	logger := configureLogger(*dev)
	slog.SetDefault(logger)

	if err := run(*configPath, *objectiveFile, *role, *chatID, *sandboxRoot, *taskID, *topic, *maxIterations, logger); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func configureLogger(useDev bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if useDev {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func run(configPath, objectiveFile, role, chatID, sandboxRoot, taskID, topic string, maxIterationsFlag int, logger *slog.Logger) error {
	if strings.TrimSpace(objectiveFile) == "" {
		return fmt.Errorf("worker: --objective-file is required")
	}
	objectiveBytes, err := os.ReadFile(objectiveFile)
	if err != nil {
		return fmt.Errorf("worker: read objective file: %w", err)
	}
	objective := strings.TrimSpace(string(objectiveBytes))

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("worker: load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := glyph.Open(config.ExpandHome(cfg.General.StateDB))
	if err != nil {
		return fmt.Errorf("worker: open glyph store: %w", err)
	}
	defer store.Close()

	registry, err := tasks.NewRegistry(store)
	if err != nil {
		return fmt.Errorf("worker: new task registry: %w", err)
	}

	fw, err := firewall.New(store, cfg.Firewall.Budget())
	if err != nil {
		return fmt.Errorf("worker: new firewall: %w", err)
	}
	cfg.Firewall.ApplyPolicyOverrides(fw)

	engine := retrieval.NewEngine(store, nil, nil)
	recorder := orchestrator.NewRecorder(store)
	dispatcher := dispatch.NewDispatcher()

	ledger := cfg.Router.BuildCostLedger(1000)
	rt, err := buildRouter(cfg, ledger)
	if err != nil {
		return fmt.Errorf("worker: build router: %w", err)
	}

	root := sandboxRoot
	if root == "" {
		root = cfg.Runtime.SandboxRoot
	}
	iterations := maxIterationsFlag
	if iterations <= 0 {
		iterations = cfg.Runtime.MaxIterations
	}
	actorTopic := topic
	if actorTopic == "" {
		actorTopic = role
	}

	mode := runtime.ModeExecutor
	if strings.EqualFold(role, cfg.Runtime.PlannerRole) {
		mode = runtime.ModePlanner
	}

	agent := &runtime.Runtime{
		Engine:        engine,
		Registry:      registry,
		Store:         store,
		Firewall:      fw,
		Router:        rt,
		Recorder:      recorder,
		Dispatcher:    dispatcher,
		Mode:          mode,
		ActorRole:     role,
		AgentID:       chatID,
		SandboxRoot:   root,
		WorkDir:       root,
		MaxIterations: iterations,
		ActionType:    cfg.Runtime.ActionType,
		PreferLocal:   cfg.Runtime.PreferLocal,
	}

	logger.Info("worker starting", "role", role, "mode", mode, "task_id", taskID, "sandbox_root", root)

	results, runErr := agent.Run(ctx, taskID, actorTopic, objective)
	logger.Info("worker finished", "iterations", len(results), "error", runErr)
	if runErr != nil && runErr != runtime.ErrBudgetExceeded {
		return runErr
	}
	return nil
}

// buildRouter constructs an internal/router.Router from the resolved config,
// registering every non-Bedrock provider config.RouterConfig.BuildProviders
// can construct outright. Bedrock providers need a live AWS SDK client and
// are not registered here.
func buildRouter(cfg *config.Config, ledger *router.CostLedger) (*router.Router, error) {
	providers, err := cfg.Router.BuildProviders()
	if err != nil {
		return nil, err
	}

	r := router.New(router.Config{
		Tiers:               cfg.Router.TierTable(),
		QualityThreshold:    cfg.Router.QualityThreshold,
		MaxFallbackAttempts: cfg.Router.MaxFallbackAttempts,
		DailyBudgetUSD:      cfg.Router.DailyBudgetUSD,
	}, ledger)

	for name, p := range providers {
		providerCfg := cfg.Router.Providers[name]
		r.RegisterProvider(name, p, providerCfg.InitialTPM, providerCfg.MaxTPM)
	}
	return r, nil
}
