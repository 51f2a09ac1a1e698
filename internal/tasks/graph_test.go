package tasks

import "testing"

func TestFilterUnblockedOpenExcludesTasksWithOpenDependencies(t *testing.T) {
	r := tempRegistry(t)
	r.AddTask("dep", "todo", "", "prerequisite", "M")
	r.AddTaskWithDeps("dependent", "todo", "", "needs dep first", "M", []string{"dep"})

	all, err := r.List("", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	graph := BuildDepGraph(all)
	unblocked := FilterUnblockedOpen(all, graph)

	for _, task := range unblocked {
		if task.TaskID == "dependent" {
			t.Fatal("expected 'dependent' to be excluded while 'dep' is still OPEN")
		}
	}
}

func TestFilterUnblockedOpenIncludesTaskOnceDependencyIsDone(t *testing.T) {
	r := tempRegistry(t)
	r.AddTask("dep", "todo", "", "prerequisite", "M")
	r.AddTaskWithDeps("dependent", "todo", "", "needs dep first", "M", []string{"dep"})

	r.UpdateStatus("dep", "IN_PROGRESS", false)
	r.LogResult("dep", true, "done", "", "worker")
	r.UpdateStatus("dep", "DONE", false)

	all, err := r.List("", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	graph := BuildDepGraph(all)
	unblocked := FilterUnblockedOpen(all, graph)

	found := false
	for _, task := range unblocked {
		if task.TaskID == "dependent" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected 'dependent' to be unblocked once 'dep' is DONE")
	}
}
