package tasks

import "testing"

func TestDoomLoopCheckRequiresNConsecutiveMatchingFailures(t *testing.T) {
	r := tempRegistry(t)
	r.AddTask("T1", "todo", "", "x", "M")
	r.UpdateStatus("T1", "IN_PROGRESS", false)

	r.LogResult("T1", false, "TypeError: X is undefined", "", "worker")
	looping, _, err := DoomLoopCheck(r.store, "T1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if looping {
		t.Fatal("expected no doom loop with only 1 failure")
	}

	r.LogResult("T1", false, "TypeError: X is undefined", "", "worker")
	r.LogResult("T1", false, "TypeError: X is undefined", "", "worker")
	looping, sig, err := DoomLoopCheck(r.store, "T1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if !looping {
		t.Fatal("expected doom loop after 3 identical failures")
	}
	if sig == "" {
		t.Error("expected a non-empty error signature")
	}
}

func TestDoomLoopCheckRequiresSameSignature(t *testing.T) {
	r := tempRegistry(t)
	r.AddTask("T1", "todo", "", "x", "M")
	r.UpdateStatus("T1", "IN_PROGRESS", false)

	r.LogResult("T1", false, "TypeError: X is undefined", "", "worker")
	r.LogResult("T1", false, "ReferenceError: Y is undefined", "", "worker")
	r.LogResult("T1", false, "TypeError: X is undefined", "", "worker")

	looping, _, err := DoomLoopCheck(r.store, "T1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if looping {
		t.Fatal("expected no doom loop when failure signatures differ")
	}
}

func TestAutoBlockOnDoomLoopTransitionsAndEmitsGlyphs(t *testing.T) {
	r := tempRegistry(t)
	r.AddTask("T1", "todo", "", "x", "M")
	r.UpdateStatus("T1", "IN_PROGRESS", false)
	for i := 0; i < 3; i++ {
		r.LogResult("T1", false, "TypeError: X is undefined", "", "worker")
	}

	sig, err := r.AutoBlockOnDoomLoop("T1", 3, true)
	if err != nil {
		t.Fatal(err)
	}
	if sig == "" {
		t.Fatal("expected a signature back from a successful auto-block")
	}

	task, err := r.Get("T1")
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != "BLOCKED" {
		t.Fatalf("expected task auto-blocked, got %q", task.Status)
	}

	history, err := r.History("T1")
	if err != nil {
		t.Fatal(err)
	}
	var sawLesson, sawPhase bool
	for _, g := range history {
		if g.Type == "lesson" {
			sawLesson = true
		}
		if g.Type == "phase" {
			sawPhase = true
		}
	}
	if !sawLesson {
		t.Error("expected a lesson glyph from the auto-block")
	}
	if !sawPhase {
		t.Error("expected a phase glyph from the auto-block with orchestration context")
	}
}

func TestClaimNextOpenDoesNotReturnBlockedTask(t *testing.T) {
	r := tempRegistry(t)
	r.AddTask("T1", "todo", "", "x", "M")
	r.UpdateStatus("T1", "IN_PROGRESS", false)
	for i := 0; i < 3; i++ {
		r.LogResult("T1", false, "TypeError: X is undefined", "", "worker")
	}
	r.AutoBlockOnDoomLoop("T1", 3, false)

	candidates, err := r.oldestOpenCandidates("")
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range candidates {
		if c.TaskID == "T1" {
			t.Fatal("blocked task must not be claimable via claim_next_open")
		}
	}
}
