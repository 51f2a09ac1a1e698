package tasks

import "sort"

// DepGraph is a directed dependency graph built from Task.depends_on edges
// (stored in each task glyph's Links field). Adapted from
// internal/graph/graph.go's bead-ID dependency graph, rebound to task_id.
type DepGraph struct {
	nodes   map[string]Task
	forward map[string][]string // task -> depends on these
	reverse map[string][]string // task -> blocks these
}

// BuildDepGraph constructs a dependency graph from a task list, typically
// the result of Registry.List.
func BuildDepGraph(tasks []Task) *DepGraph {
	g := &DepGraph{
		nodes:   make(map[string]Task, len(tasks)),
		forward: make(map[string][]string),
		reverse: make(map[string][]string),
	}
	for _, t := range tasks {
		g.nodes[t.TaskID] = t
	}
	for _, t := range tasks {
		deps := dependsOnIDs(t)
		if len(deps) == 0 {
			continue
		}
		g.forward[t.TaskID] = append(g.forward[t.TaskID], deps...)
		for _, dep := range deps {
			g.reverse[dep] = append(g.reverse[dep], t.TaskID)
		}
	}
	return g
}

// DependsOnIDs returns the task IDs this task depends on.
func (g *DepGraph) DependsOnIDs(taskID string) []string {
	if g == nil {
		return nil
	}
	return append([]string(nil), g.forward[taskID]...)
}

// BlocksIDs returns the task IDs blocked by this task.
func (g *DepGraph) BlocksIDs(taskID string) []string {
	if g == nil {
		return nil
	}
	return append([]string(nil), g.reverse[taskID]...)
}

// FilterUnblockedOpen returns OPEN tasks whose dependencies all exist and
// are DONE, sorted by importance band then by oldest first — the task
// equivalent of graph.FilterUnblockedOpen's priority/estimate ordering,
// swapped for the importance/recency axes this domain actually has.
func FilterUnblockedOpen(tasks []Task, graph *DepGraph) []Task {
	var result []Task
	for _, t := range tasks {
		if t.Status != "OPEN" {
			continue
		}
		if isBlockedByDeps(t, graph) {
			continue
		}
		result = append(result, t)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if bi, bj := importanceBandOf(result[i].Importance), importanceBandOf(result[j].Importance); bi != bj {
			return bi < bj
		}
		return result[i].Glyph.Timestamp.Before(result[j].Glyph.Timestamp)
	})
	return result
}

func isBlockedByDeps(t Task, graph *DepGraph) bool {
	deps := dependsOnIDs(t)
	if len(deps) == 0 {
		return false
	}
	for _, depID := range deps {
		dep, exists := graph.nodes[depID]
		if !exists || dep.Status != "DONE" {
			return true
		}
	}
	return false
}
