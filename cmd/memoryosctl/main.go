// Command memoryosctl is the operator CLI: direct read/write access to the
// glyph store, the task registry, and the firewall's approval queue,
// without going through the daemon or a sub-agent. Command implementations
// are split across cmd_*.go files, mirroring codeNERD's cmd/nerd layout
// (main.go holds rootCmd + global flags; each concern gets its own file).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/antigravity-dev/memoryos/internal/config"
	"github.com/antigravity-dev/memoryos/internal/firewall"
	"github.com/antigravity-dev/memoryos/internal/glyph"
	"github.com/antigravity-dev/memoryos/internal/retrieval"
	"github.com/antigravity-dev/memoryos/internal/tasks"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "memoryosctl",
	Short: "Operator CLI for the memory store, task registry, and firewall",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "memoryos.toml", "path to config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app bundles the components every command needs; opened lazily per command
// invocation since memoryosctl is a short-lived process, not the daemon.
type app struct {
	cfg      *config.Config
	store    *glyph.Store
	engine   *retrieval.Engine
	registry *tasks.Registry
	fw       *firewall.Firewall
}

func openApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	store, err := glyph.Open(config.ExpandHome(cfg.General.StateDB))
	if err != nil {
		return nil, fmt.Errorf("open glyph store: %w", err)
	}

	registry, err := tasks.NewRegistry(store)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("new task registry: %w", err)
	}

	fw, err := firewall.New(store, cfg.Firewall.Budget())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("new firewall: %w", err)
	}
	cfg.Firewall.ApplyPolicyOverrides(fw)

	engine := retrieval.NewEngine(store, nil, nil)

	return &app{cfg: cfg, store: store, engine: engine, registry: registry, fw: fw}, nil
}

func (a *app) Close() {
	if a == nil {
		return
	}
	a.store.Close()
}

// withApp opens an app for the duration of fn and always closes it
// afterward, so each RunE in the cmd_*.go files stays a one-liner.
func withApp(fn func(*app) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
