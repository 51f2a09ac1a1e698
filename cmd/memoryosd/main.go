// Command memoryosd is the long-running daemon: it hosts the Temporal
// worker that runs ImplementAuditFixWorkflow executions and a tick loop
// that claims open tasks and starts one execution per claim, mirroring the
// shape of cmd/cortex's main() (config manager + SIGHUP reload + signal-
// driven graceful shutdown) narrowed to spec.md §4.4's orchestration loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/antigravity-dev/memoryos/internal/config"
	"github.com/antigravity-dev/memoryos/internal/dispatch"
	"github.com/antigravity-dev/memoryos/internal/glyph"
	"github.com/antigravity-dev/memoryos/internal/orchestrator"
	"github.com/antigravity-dev/memoryos/internal/tasks"
)

// claimTTL is how long a daemon instance holds a task claim before another
// daemon (or this one, after a crash) is free to reclaim it.
const claimTTL = 10 * time.Minute

func main() {
	configPath := flag.String("config", "memoryos.toml", "path to config file")
	temporalHostPort := flag.String("temporal-hostport", "127.0.0.1:7233", "Temporal frontend address")
	dev := flag.Bool("dev", false, "use text log format (default is JSON)")
	once := flag.Bool("once", false, "run a single claim/dispatch tick and exit, skipping the worker and ticker loop")
	flag.Parse()

	logger := configureLogger(*dev)
	slog.SetDefault(logger)

	if err := run(*configPath, *temporalHostPort, *once, logger); err != nil {
		logger.Error("memoryosd exited with error", "error", err)
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

func run(configPath, temporalHostPort string, once bool, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("memoryosd: load config: %w", err)
	}
	mgr := config.NewManager(cfg)

	lockPath := cfg.General.StateDB + ".memoryosd.lock"
	lockFile, err := acquireLock(lockPath)
	if err != nil {
		return fmt.Errorf("memoryosd: %w", err)
	}
	defer releaseLock(lockFile)

	store, err := glyph.Open(config.ExpandHome(cfg.General.StateDB))
	if err != nil {
		return fmt.Errorf("memoryosd: open glyph store: %w", err)
	}
	defer store.Close()

	registry, err := tasks.NewRegistry(store)
	if err != nil {
		return fmt.Errorf("memoryosd: new task registry: %w", err)
	}

	dispatcher := dispatch.NewDispatcher()
	acts := orchestrator.NewActivities(store, registry, dispatcher)

	temporalClient, err := client.Dial(client.Options{HostPort: temporalHostPort})
	if err != nil {
		return fmt.Errorf("memoryosd: dial temporal at %s: %w", temporalHostPort, err)
	}
	defer temporalClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if once {
		n, err := tickOnce(ctx, mgr.Get(), registry, temporalClient, logger)
		logger.Info("single tick complete", "started", n)
		return err
	}

	w := orchestrator.StartWorker(temporalClient, acts)
	// Run(nil) rather than worker.InterruptCh(): shutdown is driven by w.Stop()
	// below once ctx is cancelled, not by the worker's own signal handling.
	workerErrCh := make(chan error, 1)
	go func() {
		workerErrCh <- w.Run(nil)
	}()

	reloadCh := make(chan os.Signal, 1)
	signal.Notify(reloadCh, syscall.SIGHUP)
	defer signal.Stop(reloadCh)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tickLoop(ctx, configPath, mgr, registry, temporalClient, reloadCh, logger)
	}()

	select {
	case <-ctx.Done():
		logger.Info("memoryosd shutting down", "reason", "signal received")
	case err := <-workerErrCh:
		if err != nil {
			logger.Error("temporal worker stopped unexpectedly", "error", err)
		}
		stop()
	}

	w.Stop()
	wg.Wait()
	return nil
}

// tickLoop fires every General.TickInterval, releasing expired claims, then
// claiming and starting orchestration runs for up to General.MaxPerTick of
// the oldest open tasks (see tickOnce). A
// SIGHUP on reloadCh reloads config before the next tick, matching
// cmd/cortex's reload-on-SIGHUP convention.
func tickLoop(ctx context.Context, configPath string, mgr config.ConfigManager, registry *tasks.Registry, c client.Client, reloadCh <-chan os.Signal, logger *slog.Logger) {
	cfg := mgr.Get()
	ticker := time.NewTicker(cfg.General.TickInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reloadCh:
			if err := mgr.Reload(configPath); err != nil {
				logger.Error("config reload failed", "error", err)
				continue
			}
			cfg = mgr.Get()
			ticker.Reset(cfg.General.TickInterval.Duration)
			logger.Info("config reloaded")
		case <-ticker.C:
			started, err := tickOnce(ctx, cfg, registry, c, logger)
			if err != nil {
				logger.Error("tick failed", "error", err)
				continue
			}
			if started > 0 {
				logger.Info("tick started orchestration", "count", started)
			}
		}
	}
}

// tickOnce releases expired claims then claims and starts up to
// cfg.General.MaxPerTick ImplementAuditFixWorkflow executions, one per open
// task, stopping early once the open queue runs dry. Returns how many runs
// it started.
func tickOnce(ctx context.Context, cfg *config.Config, registry *tasks.Registry, c client.Client, logger *slog.Logger) (int, error) {
	if _, err := registry.ReleaseExpiredClaims(); err != nil {
		return 0, fmt.Errorf("release expired claims: %w", err)
	}

	limit := cfg.General.MaxPerTick
	if limit <= 0 {
		limit = 1
	}

	started := 0
	for i := 0; i < limit; i++ {
		ok, err := claimAndStart(ctx, cfg, registry, c, logger)
		if err != nil {
			return started, err
		}
		if !ok {
			break
		}
		started++
	}
	return started, nil
}

// claimAndStart claims the oldest open task and starts one
// ImplementAuditFixWorkflow execution for it, reporting whether a task was
// available to claim.
func claimAndStart(ctx context.Context, cfg *config.Config, registry *tasks.Registry, c client.Client, logger *slog.Logger) (bool, error) {
	owner := fmt.Sprintf("memoryosd-%d", os.Getpid())
	task, err := registry.ClaimNextOpen(owner, cfg.Runtime.ExecutorRole, "", "", claimTTL)
	if err != nil {
		return false, fmt.Errorf("claim next open task: %w", err)
	}
	if task == nil {
		return false, nil
	}

	req := orchestrator.Request{
		Objective:     task.Text,
		RepoRoot:      cfg.Runtime.SandboxRoot,
		MaxIterations: cfg.Runtime.MaxIterations,
		MaxRounds:     orchestrator.DefaultMaxRounds,
		AgentRole:     cfg.Runtime.ExecutorRole,
		TaskID:        task.TaskID,
	}

	opts := client.StartWorkflowOptions{
		ID:        fmt.Sprintf("implement-audit-fix-%s", task.TaskID),
		TaskQueue: orchestrator.TaskQueue,
	}
	run, err := c.ExecuteWorkflow(ctx, opts, orchestrator.ImplementAuditFixWorkflow, req)
	if err != nil {
		return false, fmt.Errorf("start workflow for task %s: %w", task.TaskID, err)
	}
	logger.Info("started orchestration", "task_id", task.TaskID, "workflow_id", run.GetID(), "run_id", run.GetRunID())
	return true, nil
}

// acquireLock and releaseLock implement single-instance locking via an
// advisory flock, the same mechanism the teacher's internal/health package
// uses (health.AcquireFlock) — copied in directly rather than imported
// since internal/health's other responsibilities (bead gateway/zombie
// checks) have no SPEC_FULL.md counterpart.
func acquireLock(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("lock: open %s: %w", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("another memoryosd instance is running (lock: %s)", path)
	}
	f.Truncate(0)
	f.Seek(0, 0)
	fmt.Fprintf(f, "%d\n", os.Getpid())
	return f, nil
}

func releaseLock(f *os.File) {
	if f == nil {
		return
	}
	syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	name := f.Name()
	f.Close()
	os.Remove(name)
}
