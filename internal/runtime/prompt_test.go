package runtime

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/antigravity-dev/memoryos/internal/glyph"
	"github.com/antigravity-dev/memoryos/internal/retrieval"
	"github.com/antigravity-dev/memoryos/internal/tasks"
)

func tempPromptContext(t *testing.T) (PromptContext, *glyph.Store) {
	t.Helper()
	store, err := glyph.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	registry, err := tasks.NewRegistry(store)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	engine := retrieval.NewEngine(store, nil, nil)

	return PromptContext{
		Engine:       engine,
		Registry:     registry,
		Role:         "worker",
		Scope:        glyph.ScopeAgent,
		Topic:        "build",
		Objective:    "fix the flaky test",
		HistoryLines: DefaultHistoryLines,
	}, store
}

func TestAssemblePromptIncludesObjectiveAndOpenTasks(t *testing.T) {
	pc, _ := tempPromptContext(t)
	if _, err := pc.Registry.AddTask("T1", glyph.TypeTodo, "build", "fix the flaky test", "H"); err != nil {
		t.Fatalf("add task: %v", err)
	}

	out, err := AssemblePrompt(pc)
	if err != nil {
		t.Fatalf("AssemblePrompt: %v", err)
	}
	if !strings.Contains(out, "fix the flaky test") {
		t.Errorf("expected objective/task text in prompt, got:\n%s", out)
	}
	if !strings.Contains(out, "== Objective ==") {
		t.Errorf("expected objective section header, got:\n%s", out)
	}
}

func TestAssemblePromptIncludesHistoryForTask(t *testing.T) {
	pc, _ := tempPromptContext(t)
	pc.Registry.AddTask("T1", glyph.TypeTodo, "build", "fix it", "M")
	pc.TaskID = "T1"
	if _, err := pc.Registry.LogAttempt("T1", "tried approach one", "test"); err != nil {
		t.Fatalf("log attempt: %v", err)
	}

	out, err := AssemblePrompt(pc)
	if err != nil {
		t.Fatalf("AssemblePrompt: %v", err)
	}
	if !strings.Contains(out, "tried approach one") {
		t.Errorf("expected history line in prompt, got:\n%s", out)
	}
}

func TestAssemblePromptNoHistorySectionWithoutTaskID(t *testing.T) {
	pc, _ := tempPromptContext(t)
	out, err := AssemblePrompt(pc)
	if err != nil {
		t.Fatalf("AssemblePrompt: %v", err)
	}
	if strings.Contains(out, "== Recent history ==") {
		t.Errorf("did not expect history section without TaskID, got:\n%s", out)
	}
}
