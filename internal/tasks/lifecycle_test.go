package tasks

import (
	"path/filepath"
	"testing"

	"github.com/antigravity-dev/memoryos/internal/glyph"
)

func tempRegistry(t *testing.T) *Registry {
	t.Helper()
	store, err := glyph.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	r, err := NewRegistry(store)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return r
}

func TestAddTaskRejectsDuplicateActiveTaskID(t *testing.T) {
	r := tempRegistry(t)
	if _, err := r.AddTask("T1", glyph.TypeTodo, "build", "do the thing", "H"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.AddTask("T1", glyph.TypeTodo, "build", "do it again", "H"); err == nil {
		t.Fatal("expected error for duplicate active task_id")
	}
}

func TestGetReturnsMostRecentGlyphForTaskID(t *testing.T) {
	r := tempRegistry(t)
	r.AddTask("T1", glyph.TypeTodo, "build", "do the thing", "M")
	if _, err := r.UpdateStatus("T1", glyph.StatusInProgress, false); err != nil {
		t.Fatal(err)
	}
	task, err := r.Get("T1")
	if err != nil {
		t.Fatal(err)
	}
	if task == nil || task.Status != glyph.StatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %+v", task)
	}
}

func TestUpdateStatusRejectsIllegalTransition(t *testing.T) {
	r := tempRegistry(t)
	r.AddTask("T1", glyph.TypeTodo, "build", "x", "M")
	if _, err := r.UpdateStatus("T1", glyph.StatusDone, false); err == nil {
		t.Fatal("expected error transitioning OPEN -> DONE directly")
	}
}

func TestUpdateStatusRequiresElevationToReopenFromBlocked(t *testing.T) {
	r := tempRegistry(t)
	r.AddTask("T1", glyph.TypeTodo, "build", "x", "M")
	r.UpdateStatus("T1", glyph.StatusInProgress, false)
	r.UpdateStatus("T1", glyph.StatusBlocked, false)

	if _, err := r.UpdateStatus("T1", glyph.StatusOpen, false); err == nil {
		t.Fatal("expected error re-opening BLOCKED task without elevation")
	}
	if _, err := r.UpdateStatus("T1", glyph.StatusOpen, true); err != nil {
		t.Fatalf("expected elevated re-open to succeed, got %v", err)
	}
}

func TestUpdateStatusToDoneRequiresSuccessResult(t *testing.T) {
	r := tempRegistry(t)
	r.AddTask("T1", glyph.TypeTodo, "build", "x", "M")
	r.UpdateStatus("T1", glyph.StatusInProgress, false)

	if _, err := r.UpdateStatus("T1", glyph.StatusDone, false); err == nil {
		t.Fatal("expected error transitioning to DONE without a success result")
	}

	r.LogResult("T1", true, "all tests passed", "tests_passed=12/12", "worker")
	if _, err := r.UpdateStatus("T1", glyph.StatusDone, false); err != nil {
		t.Fatalf("expected DONE transition to succeed with success result, got %v", err)
	}
}

func TestListOrdersByStatusBandThenImportanceThenRecency(t *testing.T) {
	r := tempRegistry(t)
	r.AddTask("done-task", glyph.TypeTodo, "", "x", "H")
	r.UpdateStatus("done-task", glyph.StatusInProgress, false)
	r.LogResult("done-task", true, "ok", "", "worker")
	r.UpdateStatus("done-task", glyph.StatusDone, false)

	r.AddTask("blocked-task", glyph.TypeTodo, "", "x", "L")
	r.UpdateStatus("blocked-task", glyph.StatusInProgress, false)
	r.UpdateStatus("blocked-task", glyph.StatusBlocked, false)

	r.AddTask("open-high", glyph.TypeTodo, "", "x", "H")
	r.AddTask("open-low", glyph.TypeTodo, "", "x", "L")

	tasks, err := r.List("", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 4 {
		t.Fatalf("expected 4 tasks, got %d", len(tasks))
	}
	if tasks[0].TaskID != "blocked-task" {
		t.Errorf("expected BLOCKED task first, got %q", tasks[0].TaskID)
	}
	if tasks[len(tasks)-1].TaskID != "done-task" {
		t.Errorf("expected DONE task last, got %q", tasks[len(tasks)-1].TaskID)
	}
}
