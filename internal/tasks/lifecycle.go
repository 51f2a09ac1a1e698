package tasks

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/antigravity-dev/memoryos/internal/glyph"
)

// AddTask writes a new todo/goal with choice=OPEN. Fails if an active task
// with the same task_id already exists, matching the teacher's
// insert-checks-uniqueness-first pattern for keyed records.
func (r *Registry) AddTask(taskID, typ, topic, text, importance string) (int64, error) {
	if strings.TrimSpace(taskID) == "" {
		return 0, fmt.Errorf("tasks: add_task: task_id is required")
	}
	if typ != glyph.TypeTodo && typ != glyph.TypeGoal {
		return 0, fmt.Errorf("tasks: add_task: type must be todo or goal, got %q", typ)
	}
	existing, err := r.Get(taskID)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return 0, fmt.Errorf("tasks: add_task: active task %q already exists", taskID)
	}
	return r.store.Append(glyph.NewGlyphFields{
		Type:       typ,
		Topic:      topic,
		Text:       text,
		Choice:     glyph.StatusOpen,
		Importance: importance,
		TaskID:     taskID,
	})
}

// linksPayload is the Links field's JSON shape for todo/goal glyphs: the
// only key the registry itself writes is depends_on, a supplemental
// enrichment beyond spec.md's literal add_task signature (not exercised by
// add_task itself, but by AddTaskWithDeps) that lets FilterUnblockedOpen
// adapt the teacher's dependency-graph shape to task_id links.
type linksPayload struct {
	DependsOn []string `json:"depends_on,omitempty"`
}

// AddTaskWithDeps is AddTask plus a depends_on edge list, recorded in the
// glyph's Links field. Blocking on dependencies is advisory at the registry
// level (it doesn't forbid claim_next_open from selecting the task) and is
// meant to be consulted by callers via BuildDepGraph/FilterUnblockedOpen
// before presenting a task as workable, mirroring the teacher's
// graph.FilterUnblockedOpen shape.
func (r *Registry) AddTaskWithDeps(taskID, typ, topic, text, importance string, dependsOn []string) (int64, error) {
	if strings.TrimSpace(taskID) == "" {
		return 0, fmt.Errorf("tasks: add_task: task_id is required")
	}
	if typ != glyph.TypeTodo && typ != glyph.TypeGoal {
		return 0, fmt.Errorf("tasks: add_task: type must be todo or goal, got %q", typ)
	}
	existing, err := r.Get(taskID)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return 0, fmt.Errorf("tasks: add_task: active task %q already exists", taskID)
	}
	links := ""
	if len(dependsOn) > 0 {
		raw, err := json.Marshal(linksPayload{DependsOn: dependsOn})
		if err != nil {
			return 0, fmt.Errorf("tasks: add_task: encode links: %w", err)
		}
		links = string(raw)
	}
	return r.store.Append(glyph.NewGlyphFields{
		Type:       typ,
		Topic:      topic,
		Text:       text,
		Choice:     glyph.StatusOpen,
		Importance: importance,
		TaskID:     taskID,
		Links:      links,
	})
}

// dependsOnIDs decodes a task's Links payload into its depends_on list, or
// nil if the task carries no dependency edges.
func dependsOnIDs(t Task) []string {
	if t.Glyph.Links == "" {
		return nil
	}
	var payload linksPayload
	if err := json.Unmarshal([]byte(t.Glyph.Links), &payload); err != nil {
		return nil
	}
	return payload.DependsOn
}

// Get returns the most recent active todo/goal glyph for task_id, or nil if
// none exists.
func (r *Registry) Get(taskID string) (*Task, error) {
	glyphs, err := r.store.QueryWhere(
		`task_id = ? AND status = 'active' AND type IN ('todo', 'goal')`,
		`timestamp DESC, id DESC`, 1, taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("tasks: get %q: %w", taskID, err)
	}
	if len(glyphs) == 0 {
		return nil, nil
	}
	t := taskFromGlyph(glyphs[0])
	return &t, nil
}

// List returns tasks ordered by status band (BLOCKED < IN_PROGRESS < OPEN <
// DONE), then by importance (H < M < L), then by newest, optionally
// filtered by topic and/or status. Only the most recent glyph per task_id is
// considered, since update_status works by appending a new todo glyph with
// the same task_id.
func (r *Registry) List(topic, status string, limit int) ([]Task, error) {
	where := `type IN ('todo', 'goal') AND status = 'active'`
	var args []any
	if topic != "" {
		where += ` AND topic = ?`
		args = append(args, topic)
	}

	glyphs, err := r.store.QueryWhere(where, `timestamp DESC, id DESC`, 0, args...)
	if err != nil {
		return nil, fmt.Errorf("tasks: list: %w", err)
	}

	latest := map[string]glyph.Glyph{}
	order := []string{}
	for _, g := range glyphs {
		if _, seen := latest[g.TaskID]; !seen {
			latest[g.TaskID] = g
			order = append(order, g.TaskID)
		}
	}

	var tasks []Task
	for _, id := range order {
		g := latest[id]
		if status != "" && g.Choice != status {
			continue
		}
		tasks = append(tasks, taskFromGlyph(g))
	}

	sortTasksByBandThenImportanceThenRecency(tasks)

	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

var statusBand = map[string]int{
	glyph.StatusBlocked:    0,
	glyph.StatusInProgress: 1,
	glyph.StatusOpen:       2,
	glyph.StatusDone:       3,
}

func bandOf(status string) int {
	if b, ok := statusBand[status]; ok {
		return b
	}
	return len(statusBand)
}

var importanceBand = map[string]int{
	glyph.ImportanceCritical: 0,
	glyph.ImportanceHigh:     0,
	glyph.ImportanceMedium:   1,
	glyph.ImportanceLow:      2,
}

func importanceBandOf(importance string) int {
	if b, ok := importanceBand[importance]; ok {
		return b
	}
	return len(importanceBand)
}

func sortTasksByBandThenImportanceThenRecency(tasks []Task) {
	// Insertion sort: task lists are small and this keeps ties stable,
	// matching retrieval.sortByImportanceThenRecency's approach.
	for i := 1; i < len(tasks); i++ {
		j := i
		for j > 0 && lessTask(tasks[j], tasks[j-1]) {
			tasks[j], tasks[j-1] = tasks[j-1], tasks[j]
			j--
		}
	}
}

func lessTask(a, b Task) bool {
	if ba, bb := bandOf(a.Status), bandOf(b.Status); ba != bb {
		return ba < bb
	}
	if ia, ib := importanceBandOf(a.Importance), importanceBandOf(b.Importance); ia != ib {
		return ia < ib
	}
	return a.Glyph.Timestamp.After(b.Glyph.Timestamp)
}

// allowedTransitions enumerates the transition table from spec.md §4.3.
// BLOCKED -> OPEN and IN_PROGRESS -> OPEN both require an elevated actor.
var allowedTransitions = map[string][]string{
	glyph.StatusOpen:       {glyph.StatusInProgress},
	glyph.StatusInProgress: {glyph.StatusDone, glyph.StatusBlocked, glyph.StatusOpen},
	glyph.StatusBlocked:    {glyph.StatusOpen},
}

var elevatedOnlyTransitions = map[[2]string]bool{
	{glyph.StatusInProgress, glyph.StatusOpen}: true,
	{glyph.StatusBlocked, glyph.StatusOpen}:    true,
}

// UpdateStatus appends a new todo/goal glyph for task_id carrying new_status
// as its choice, after validating the transition is legal. elevated must be
// true for re-open transitions (IN_PROGRESS/BLOCKED -> OPEN); workers must
// never pass elevated=true for themselves. Transitioning to DONE requires a
// result glyph with choice=success already linked to this task_id.
func (r *Registry) UpdateStatus(taskID, newStatus string, elevated bool) (int64, error) {
	current, err := r.Get(taskID)
	if err != nil {
		return 0, err
	}
	if current == nil {
		return 0, fmt.Errorf("tasks: update_status: no active task %q", taskID)
	}

	allowed := false
	for _, s := range allowedTransitions[current.Status] {
		if s == newStatus {
			allowed = true
			break
		}
	}
	if !allowed {
		return 0, fmt.Errorf("tasks: update_status: %q -> %q is not a permitted transition", current.Status, newStatus)
	}
	if elevatedOnlyTransitions[[2]string{current.Status, newStatus}] && !elevated {
		return 0, fmt.Errorf("tasks: update_status: %q -> %q requires an elevated actor", current.Status, newStatus)
	}

	if newStatus == glyph.StatusDone {
		ok, err := r.hasSuccessResult(taskID)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("tasks: update_status: %q -> DONE requires a result glyph with choice=success", taskID)
		}
	}

	return r.store.Append(glyph.NewGlyphFields{
		Type:       current.Type,
		Topic:      current.Topic,
		Text:       current.Text,
		Choice:     newStatus,
		Importance: current.Importance,
		TaskID:     taskID,
	})
}

func (r *Registry) hasSuccessResult(taskID string) (bool, error) {
	results, err := r.store.QueryWhere(
		`task_id = ? AND type = ? AND choice = ? AND status = 'active'`,
		`timestamp DESC`, 1, taskID, glyph.TypeResult, glyph.ResultSuccess,
	)
	if err != nil {
		return false, fmt.Errorf("tasks: check success result for %q: %w", taskID, err)
	}
	return len(results) > 0, nil
}
