package runtime

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/antigravity-dev/memoryos/internal/dispatch"
	"github.com/antigravity-dev/memoryos/internal/firewall"
	"github.com/antigravity-dev/memoryos/internal/glyph"
	"github.com/antigravity-dev/memoryos/internal/orchestrator"
)

// toolForAction maps an Action.Kind to the firewall tool name its policy is
// registered under (firewall/policy.go's DefaultPolicies table). "done" has
// no tool entry — it never reaches the firewall, it terminates the loop.
var toolForAction = map[string]string{
	ActionListFiles:   "list_files",
	ActionReadFile:    "read_file",
	ActionSearchText:  "search_text",
	ActionWriteMemory: "memory_write",
	ActionOrchStatus:  "status_check",
	ActionSpawnDaemon: "spawn_unbounded",
	ActionRun:         "run_tests",
	ActionExec:        "shell_exec",
	ActionHTTPRequest: "net_request",
	ActionEditFile:    "edit_file",
}

// DispatchDeps bundles the collaborators Dispatch needs to execute an
// allowed action. Fields are optional; an action whose dependency is nil
// returns an error instead of panicking.
type DispatchDeps struct {
	FW         *firewall.Firewall
	Store      *glyph.Store
	Recorder   *orchestrator.Recorder
	Dispatcher dispatch.DispatcherInterface

	ActorRole   string
	AgentID     string
	Depth       int
	SandboxRoot string
	WorkDir     string
}

// DispatchOutcome is what one guarded action produced: the firewall's
// decision plus (for allowed safe/moderate actions) the tool's own result
// text, or an error if execution itself failed.
type DispatchOutcome struct {
	Decision  string
	PendingID int64
	Output    string
	Err       error
}

// Dispatch converts action into a firewall.Action, guards it, and on Allow
// executes the corresponding tool. Escalate and Deny return immediately
// without executing anything, per firewall.GuardAction's contract that only
// Allow decisions run.
func Dispatch(ctx context.Context, action Action, deps DispatchDeps) DispatchOutcome {
	if action.Kind == ActionDone {
		return DispatchOutcome{Decision: firewall.Allow, Output: action.Summary}
	}

	tool, ok := toolForAction[action.Kind]
	if !ok {
		return DispatchOutcome{Err: fmt.Errorf("runtime: no firewall tool mapped for action %q", action.Kind)}
	}

	fwAction := firewall.Action{
		Tool:        tool,
		Payload:     actionPayload(action),
		AgentID:     deps.AgentID,
		Depth:       deps.Depth,
		SandboxRoot: deps.SandboxRoot,
		TargetPath:  targetPath(action),
		ByteSize:    int64(len(action.Content) + len(action.Text)),
	}

	result, err := deps.FW.GuardAction(fwAction, deps.ActorRole)
	if err != nil {
		return DispatchOutcome{Err: fmt.Errorf("runtime: guard action %q: %w", action.Kind, err)}
	}
	if result.Decision != firewall.Allow {
		return DispatchOutcome{Decision: result.Decision, PendingID: result.PendingID}
	}

	output, err := execute(ctx, action, deps)
	return DispatchOutcome{Decision: firewall.Allow, Output: output, Err: err}
}

func actionPayload(a Action) map[string]any {
	payload := map[string]any{"action": a.Kind}
	if a.Path != "" {
		payload["path"] = a.Path
	}
	if a.Pattern != "" {
		payload["pattern"] = a.Pattern
	}
	if a.Command != "" {
		payload["command"] = a.Command
	}
	if a.URL != "" {
		payload["url"] = a.URL
	}
	return payload
}

func targetPath(a Action) string {
	switch a.Kind {
	case ActionListFiles, ActionReadFile, ActionEditFile:
		return a.Path
	default:
		return ""
	}
}

// execute runs the actual tool behind an allowed action. run/exec/
// http_request are dangerous-tier actions that this runtime does not
// execute: even when the firewall allows them, execute returns an error, so
// the iteration is handled as a failed action.
func execute(ctx context.Context, action Action, deps DispatchDeps) (string, error) {
	switch action.Kind {
	case ActionListFiles:
		return listFiles(deps.SandboxRoot, action.Path)
	case ActionReadFile:
		return readFile(deps.SandboxRoot, action.Path)
	case ActionSearchText:
		return searchText(deps.SandboxRoot, action.Pattern)
	case ActionEditFile:
		return "", editFile(deps.SandboxRoot, action.Path, action.Content)
	case ActionWriteMemory:
		return writeMemory(deps.Store, action)
	case ActionOrchStatus:
		return orchStatus(deps.Recorder, action.OrchID)
	case ActionSpawnDaemon:
		return spawnDaemon(ctx, deps, action)
	case ActionRun, ActionExec, ActionHTTPRequest:
		return "", fmt.Errorf("runtime: action %q is not executed in-runtime", action.Kind)
	default:
		return "", fmt.Errorf("runtime: unhandled action kind %q", action.Kind)
	}
}

func listFiles(sandboxRoot, path string) (string, error) {
	resolved, err := firewall.GuardPath(sandboxRoot, path)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return "", fmt.Errorf("runtime: list_files: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return strings.Join(names, "\n"), nil
}

func readFile(sandboxRoot, path string) (string, error) {
	resolved, err := firewall.GuardPath(sandboxRoot, path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("runtime: read_file: %w", err)
	}
	return string(data), nil
}

func editFile(sandboxRoot, path, content string) error {
	resolved, err := firewall.GuardPath(sandboxRoot, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("runtime: edit_file: mkdir: %w", err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return fmt.Errorf("runtime: edit_file: %w", err)
	}
	return nil
}

func searchText(sandboxRoot, pattern string) (string, error) {
	root, err := firewall.GuardPath(sandboxRoot, ".")
	if err != nil {
		return "", err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("runtime: search_text: invalid pattern: %w", err)
	}

	var matches []string
	err = filepath.WalkDir(root, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		data, readErr := os.ReadFile(p)
		if readErr != nil {
			return nil
		}
		if re.Match(data) {
			rel, _ := filepath.Rel(root, p)
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("runtime: search_text: %w", err)
	}
	return strings.Join(matches, "\n"), nil
}

func writeMemory(store *glyph.Store, action Action) (string, error) {
	if store == nil {
		return "", fmt.Errorf("runtime: write_memory: no store configured")
	}
	id, err := store.Append(glyph.NewGlyphFields{
		Type:   action.MemoryType,
		Topic:  action.Topic,
		Text:   action.Text,
		TaskID: action.Path, // unused for this kind; reserved
		Source: "runtime",
	})
	if err != nil {
		return "", fmt.Errorf("runtime: write_memory: %w", err)
	}
	return fmt.Sprintf("wrote glyph id=%d", id), nil
}

func orchStatus(rec *orchestrator.Recorder, orchID string) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("runtime: orch_status: no recorder configured")
	}
	phase, err := rec.CurrentPhase(orchID)
	if err != nil {
		return "", fmt.Errorf("runtime: orch_status: %w", err)
	}
	return phase, nil
}

func spawnDaemon(ctx context.Context, deps DispatchDeps, action Action) (string, error) {
	if deps.Dispatcher == nil {
		return "", fmt.Errorf("runtime: spawn_daemon: no dispatcher configured")
	}
	maxIterations := action.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 25
	}
	pid, err := deps.Dispatcher.Dispatch(ctx, action.Objective, deps.ActorRole, "", deps.SandboxRoot, maxIterations, deps.WorkDir)
	if err != nil {
		return "", fmt.Errorf("runtime: spawn_daemon: %w", err)
	}
	return fmt.Sprintf("spawned pid=%d", pid), nil
}
