package firewall

import (
	"fmt"
	"sync"
	"time"
)

// Budget is the execution budget ceiling for one agent process: max_steps,
// max_seconds, max_recursion (spawn depth), per spec.md §4.5.
type Budget struct {
	MaxSteps     int
	MaxSeconds   int
	MaxRecursion int
}

// DefaultBudget is a single agent's ceiling rather than a whole
// orchestration round's.
var DefaultBudget = Budget{MaxSteps: 200, MaxSeconds: 1800, MaxRecursion: 3}

type budgetState struct {
	steps     int
	startedAt time.Time
}

// BudgetTracker enforces Budget ceilings per agent, keyed by an opaque
// agent/session identifier. It is the in-memory analog of the claim ledger
// in internal/tasks: mutable state that does not belong in the append-only
// glyph log.
type BudgetTracker struct {
	mu     sync.Mutex
	limits Budget
	states map[string]*budgetState
}

func NewBudgetTracker(limits Budget) *BudgetTracker {
	if limits.MaxSteps <= 0 {
		limits.MaxSteps = DefaultBudget.MaxSteps
	}
	if limits.MaxSeconds <= 0 {
		limits.MaxSeconds = DefaultBudget.MaxSeconds
	}
	if limits.MaxRecursion <= 0 {
		limits.MaxRecursion = DefaultBudget.MaxRecursion
	}
	return &BudgetTracker{limits: limits, states: map[string]*budgetState{}}
}

// Consume records one step against agentID at the given spawn depth and
// reports whether the action may proceed. A false return means the guard
// must deny further actions until the caller resets the agent's budget.
func (t *BudgetTracker) Consume(agentID string, depth int) (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[agentID]
	if !ok {
		state = &budgetState{startedAt: Now()}
		t.states[agentID] = state
	}

	if depth > t.limits.MaxRecursion {
		return false, fmt.Sprintf("max_recursion exceeded: depth %d > %d", depth, t.limits.MaxRecursion)
	}
	if elapsed := Now().Sub(state.startedAt); elapsed > time.Duration(t.limits.MaxSeconds)*time.Second {
		return false, fmt.Sprintf("max_seconds exceeded: %s > %ds", elapsed.Round(time.Second), t.limits.MaxSeconds)
	}
	if state.steps+1 > t.limits.MaxSteps {
		return false, fmt.Sprintf("max_steps exceeded: %d > %d", state.steps+1, t.limits.MaxSteps)
	}

	state.steps++
	return true, ""
}

// Reset clears agentID's budget state, used when an agent process exits and
// a new one reuses the same logical agent identifier.
func (t *BudgetTracker) Reset(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, agentID)
}

// Now is overridable in tests.
var Now = func() time.Time { return time.Now().UTC() }
