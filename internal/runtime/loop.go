package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/antigravity-dev/memoryos/internal/dispatch"
	"github.com/antigravity-dev/memoryos/internal/firewall"
	"github.com/antigravity-dev/memoryos/internal/glyph"
	"github.com/antigravity-dev/memoryos/internal/orchestrator"
	"github.com/antigravity-dev/memoryos/internal/retrieval"
	"github.com/antigravity-dev/memoryos/internal/router"
	"github.com/antigravity-dev/memoryos/internal/tasks"
)

// Mode selects which half of spec.md §4.7's Agent Runtime an instance plays:
// a Planner decomposes work into ATTEMPT/RESULT/LESSON narration without
// touching tools beyond the safe tier, an Executor carries out one task's
// actions directly.
type Mode string

const (
	ModePlanner  Mode = "planner"
	ModeExecutor Mode = "executor"
)

// ErrBudgetExceeded is returned by Run when the configured
// iteration ceiling is reached without the model emitting a done action.
var ErrBudgetExceeded = errors.New("runtime: iteration budget exceeded")

// Runtime owns one agent's loop: it assembles a prompt, asks the router for
// a completion, parses the resulting action, guards and dispatches it, and
// applies spec.md §4.7's state-transition rules to the task registry.
type Runtime struct {
	Engine     *retrieval.Engine
	Registry   *tasks.Registry
	Store      *glyph.Store
	Firewall   *firewall.Firewall
	Router     *router.Router
	Recorder   *orchestrator.Recorder
	Dispatcher dispatch.DispatcherInterface

	Mode          Mode
	ActorRole     string
	AgentID       string
	SandboxRoot   string
	WorkDir       string
	MaxIterations int // default 25 if zero

	// ActionType classifies each iteration's routing call (router.Classify's
	// vocabulary); defaults to "reasoning" (MODERATE) if empty.
	ActionType string
	// PreferLocal is forwarded to router.SelectionOptions as is. Its zero
	// value is false, under which the router moves each call to the
	// next-highest tier, so callers set it explicitly from configuration.
	PreferLocal bool
}

// IterationResult is what one pass through RunIteration produced: the raw
// model text, the decoded action, the dispatch outcome, and (for planner
// mode) the parsed narration lines.
type IterationResult struct {
	ModelText string
	Action    Action
	Dispatch  DispatchOutcome
	Planner   PlannerLines
	Done      bool
}

// RunIteration executes exactly one loop turn for taskID: assemble the
// prompt, route it through the model, parse the emitted action, guard and
// dispatch it, then apply the outcome to the task's lifecycle status.
func (rt *Runtime) RunIteration(ctx context.Context, taskID, topic, objective string) (IterationResult, error) {
	prompt, err := AssemblePrompt(PromptContext{
		Engine:    rt.Engine,
		Registry:  rt.Registry,
		Role:      rt.ActorRole,
		Scope:     glyph.ScopeAgent,
		Topic:     topic,
		TaskID:    taskID,
		Objective: objective,
	})
	if err != nil {
		return IterationResult{}, fmt.Errorf("runtime: run iteration: %w", err)
	}

	actionType := rt.ActionType
	if actionType == "" {
		actionType = "reasoning"
	}
	route, err := rt.Router.Route(ctx, router.Request{Prompt: prompt}, router.RouteOptions{
		ActionType:       actionType,
		SelectionOptions: router.SelectionOptions{PreferLocal: rt.PreferLocal},
	})
	if err != nil {
		return IterationResult{}, fmt.Errorf("runtime: route iteration: %w", err)
	}
	result := IterationResult{ModelText: route.Response.Text}

	// Planner mode narrates ATTEMPT/RESULT/LESSON lines directly; it never
	// emits the action protocol JSON executor mode does, per spec.md §4.7's
	// split between planning narration and tool dispatch.
	if rt.Mode == ModePlanner {
		lines := ParsePlannerOutput(route.Response.Text)
		result.Planner = lines
		result.Done = len(lines.Results) > 0
		if err := rt.applyPlannerLines(taskID, lines); err != nil {
			return result, err
		}
		return result, nil
	}

	action, err := ParseAction([]byte(route.Response.Text))
	if err != nil {
		return IterationResult{}, fmt.Errorf("runtime: parse model action: %w", err)
	}
	result.Action = action

	if action.Kind == ActionDone {
		result.Done = true
		if err := rt.applyOutcome(taskID, true, action.Summary, nil); err != nil {
			return result, err
		}
		return result, nil
	}

	outcome := Dispatch(ctx, action, DispatchDeps{
		FW:          rt.Firewall,
		Store:       rt.Store,
		Recorder:    rt.Recorder,
		Dispatcher:  rt.Dispatcher,
		ActorRole:   rt.ActorRole,
		AgentID:     rt.AgentID,
		SandboxRoot: rt.SandboxRoot,
		WorkDir:     rt.WorkDir,
	})
	result.Dispatch = outcome

	if outcome.Decision == firewall.Escalate {
		// Escalations pause the loop for operator approval; the caller is
		// responsible for resuming once firewall.Approvals() resolves it.
		return result, nil
	}

	success := outcome.Decision == firewall.Allow && outcome.Err == nil
	var text string
	if outcome.Err != nil {
		text = outcome.Err.Error()
	} else {
		text = outcome.Output
	}
	if err := rt.applyOutcome(taskID, success, text, nil); err != nil {
		return result, err
	}
	return result, nil
}

// applyPlannerLines records every ATTEMPT/RESULT/LESSON line the planner
// emitted and transitions the task per spec.md §4.7: a result carrying
// choice=success moves the task to DONE, a failure moves it to BLOCKED.
func (rt *Runtime) applyPlannerLines(taskID string, lines PlannerLines) error {
	for _, a := range lines.Attempts {
		if _, err := rt.Registry.LogAttempt(taskID, a, "runtime"); err != nil {
			return fmt.Errorf("runtime: log attempt: %w", err)
		}
	}
	for _, les := range lines.Lessons {
		if _, err := rt.Registry.LogLesson(taskID, les.Topic, les.Text, "runtime"); err != nil {
			return fmt.Errorf("runtime: log lesson: %w", err)
		}
	}
	for _, res := range lines.Results {
		if err := rt.applyOutcome(taskID, res.Success, res.Text, &res.Metric); err != nil {
			return err
		}
	}
	return nil
}

// applyOutcome logs a result glyph for taskID and advances its status:
// success -> DONE, failure -> BLOCKED, per spec.md §4.7's planner/executor
// state-transition rules. metric is optional.
func (rt *Runtime) applyOutcome(taskID string, success bool, text string, metric *string) error {
	if taskID == "" {
		return nil
	}
	m := ""
	if metric != nil {
		m = *metric
	}
	if _, err := rt.Registry.LogResult(taskID, success, text, m, "runtime"); err != nil {
		return fmt.Errorf("runtime: log result: %w", err)
	}
	newStatus := glyph.StatusBlocked
	if success {
		newStatus = glyph.StatusDone
	}
	if _, err := rt.Registry.UpdateStatus(taskID, newStatus, false); err != nil {
		return fmt.Errorf("runtime: update status: %w", err)
	}
	return nil
}

// Run drives RunIteration until the model emits a done action, the
// iteration budget is exhausted, or ctx is cancelled (an operator kill, in
// practice, since the dispatcher delivers that as process termination of
// the worker owning this context).
func (rt *Runtime) Run(ctx context.Context, taskID, topic, objective string) ([]IterationResult, error) {
	maxIter := rt.MaxIterations
	if maxIter <= 0 {
		maxIter = 25
	}

	var results []IterationResult
	for i := 0; i < maxIter; i++ {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		res, err := rt.RunIteration(ctx, taskID, topic, objective)
		results = append(results, res)
		if err != nil {
			return results, err
		}
		if res.Done || res.Dispatch.Decision == firewall.Escalate {
			return results, nil
		}
	}
	return results, ErrBudgetExceeded
}
