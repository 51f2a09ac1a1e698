package runtime

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/antigravity-dev/memoryos/internal/firewall"
	"github.com/antigravity-dev/memoryos/internal/glyph"
	"github.com/antigravity-dev/memoryos/internal/retrieval"
	"github.com/antigravity-dev/memoryos/internal/router"
	"github.com/antigravity-dev/memoryos/internal/tasks"
)

type fixedProvider struct {
	text string
}

func (p *fixedProvider) Complete(ctx context.Context, req router.Request) (router.Response, error) {
	return router.Response{Text: p.text}, nil
}

func tempRuntime(t *testing.T, mode Mode, providerText string) *Runtime {
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
	fw, err := firewall.New(store, firewall.Budget{})
	if err != nil {
		t.Fatalf("new firewall: %v", err)
	}
	engine := retrieval.NewEngine(store, nil, nil)

	r := router.New(router.Config{Tiers: router.TierTable{
		router.TierLocalFast: {{Name: "fake", Provider: "fake", ModelID: "fake", Enabled: true}},
	}}, nil)
	r.RegisterProvider("fake", &fixedProvider{text: providerText}, 600000, 600000)

	return &Runtime{
		Engine:        engine,
		Registry:      registry,
		Store:         store,
		Firewall:      fw,
		Router:        r,
		Mode:          mode,
		ActorRole:     "worker",
		SandboxRoot:   t.TempDir(),
		MaxIterations: 5,
		ActionType:    "classification",
		PreferLocal:   true,
	}
}

func TestRunIterationDoneMarksTaskComplete(t *testing.T) {
	rt := tempRuntime(t, ModeExecutor, `{"action":"done","summary":"finished"}`)
	if _, err := rt.Registry.AddTask("T1", glyph.TypeTodo, "build", "do the thing", "H"); err != nil {
		t.Fatalf("add task: %v", err)
	}
	if _, err := rt.Registry.UpdateStatus("T1", glyph.StatusInProgress, false); err != nil {
		t.Fatalf("start task: %v", err)
	}
	rt.Registry.LogResult("T1", true, "ok", "", "test")

	res, err := rt.RunIteration(context.Background(), "T1", "build", "finish the task")
	if err != nil {
		t.Fatalf("RunIteration: %v", err)
	}
	if !res.Done {
		t.Fatal("expected Done result")
	}
	task, err := rt.Registry.Get("T1")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task.Status != glyph.StatusDone {
		t.Errorf("Status = %q, want DONE", task.Status)
	}
}

func TestRunIterationExecutorFailureBlocksTask(t *testing.T) {
	rt := tempRuntime(t, ModeExecutor, `{"action":"read_file","path":"does-not-exist.txt"}`)
	if _, err := rt.Registry.AddTask("T2", glyph.TypeTodo, "build", "read config", "M"); err != nil {
		t.Fatalf("add task: %v", err)
	}
	if _, err := rt.Registry.UpdateStatus("T2", glyph.StatusInProgress, false); err != nil {
		t.Fatalf("start task: %v", err)
	}

	if _, err := rt.RunIteration(context.Background(), "T2", "build", "read the config file"); err != nil {
		t.Fatalf("RunIteration: %v", err)
	}
	task, err := rt.Registry.Get("T2")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task.Status != glyph.StatusBlocked {
		t.Errorf("Status = %q, want BLOCKED", task.Status)
	}
}

func TestRunIterationPlannerLogsAttemptResultLesson(t *testing.T) {
	output := "ATTEMPT: checked the logs\n" +
		"RESULT: success the root cause was a stale cache\n" +
		"LESSON[topic=build]: clear caches between runs\n"
	rt := tempRuntime(t, ModePlanner, output)
	if _, err := rt.Registry.AddTask("T3", glyph.TypeTodo, "build", "diagnose failure", "H"); err != nil {
		t.Fatalf("add task: %v", err)
	}
	if _, err := rt.Registry.UpdateStatus("T3", glyph.StatusInProgress, false); err != nil {
		t.Fatalf("start task: %v", err)
	}

	res, err := rt.RunIteration(context.Background(), "T3", "build", "diagnose the build failure")
	if err != nil {
		t.Fatalf("RunIteration: %v", err)
	}
	if len(res.Planner.Attempts) != 1 || len(res.Planner.Results) != 1 || len(res.Planner.Lessons) != 1 {
		t.Fatalf("got %+v", res.Planner)
	}
	task, err := rt.Registry.Get("T3")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task.Status != glyph.StatusDone {
		t.Errorf("Status = %q, want DONE", task.Status)
	}
}

func TestRunBudgetExceededWithoutDoneAction(t *testing.T) {
	rt := tempRuntime(t, ModeExecutor, `{"action":"list_files","path":"."}`)
	rt.MaxIterations = 2

	_, err := rt.Run(context.Background(), "", "build", "loop forever")
	if err != ErrBudgetExceeded {
		t.Fatalf("err = %v, want ErrBudgetExceeded", err)
	}
}
