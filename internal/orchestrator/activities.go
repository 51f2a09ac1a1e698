package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/antigravity-dev/memoryos/internal/dispatch"
	"github.com/antigravity-dev/memoryos/internal/glyph"
	"github.com/antigravity-dev/memoryos/internal/tasks"
)

// Activities bundles the dependencies ImplementAuditFixWorkflow's activities
// need, mirroring the teacher's Activities{Store, Tiers, DAG} shape
// (internal/temporal/activities.go).
type Activities struct {
	Store      *glyph.Store
	Recorder   *Recorder
	Registry   *tasks.Registry
	Dispatcher dispatch.DispatcherInterface
}

// NewActivities wires an Activities bundle from a shared glyph store.
func NewActivities(store *glyph.Store, registry *tasks.Registry, d dispatch.DispatcherInterface) *Activities {
	return &Activities{
		Store:      store,
		Recorder:   NewRecorder(store),
		Registry:   registry,
		Dispatcher: d,
	}
}

// SpawnAndWaitActivity implements spec.md §4.4's spawn(objective, repo_root,
// max_iterations, wait=true, timeout) contract: launch a worker for
// objective and block until it exits or the phase timeout elapses.
func (a *Activities) SpawnAndWaitActivity(ctx context.Context, req Request, objective string, timeout time.Duration) (SpawnOutcome, error) {
	spawnCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pid, err := a.Dispatcher.Dispatch(spawnCtx, objective, req.AgentRole, req.ChatID, req.RepoRoot, req.MaxIterations, req.RepoRoot)
	if err != nil {
		return SpawnOutcome{
			SubStatus: "error",
			SubResult: err.Error(),
			ErrorSig:  tasks.ErrorSignature(err.Error()),
		}, nil
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !a.Dispatcher.IsAlive(pid) {
			state := a.Dispatcher.GetProcessState(pid)
			if state.ExitCode == 0 {
				return SpawnOutcome{SubStatus: "done", SubResult: "exit_code=0"}, nil
			}
			result := fmt.Sprintf("exit_code=%d", state.ExitCode)
			return SpawnOutcome{
				SubStatus: "error",
				SubResult: result,
				ErrorSig:  tasks.ErrorSignature(result),
			}, nil
		}
		select {
		case <-spawnCtx.Done():
			a.Dispatcher.Kill(pid)
			return SpawnOutcome{
				SubStatus: "killed",
				SubResult: "timeout exceeded",
				ErrorSig:  tasks.ErrorSignature("timeout"),
			}, nil
		case <-time.After(500 * time.Millisecond):
		}
	}

	a.Dispatcher.Kill(pid)
	return SpawnOutcome{
		SubStatus: "killed",
		SubResult: "timeout exceeded",
		ErrorSig:  tasks.ErrorSignature("timeout"),
	}, nil
}

// RecordPhaseActivity appends a phase glyph, per spec.md §4.4's "the
// orchestrator writes a phase glyph before and after each spawn".
func (a *Activities) RecordPhaseActivity(ctx context.Context, orchID, taskID, from, to string, round int, errSig string) error {
	_, err := a.Recorder.RecordPhase(orchID, taskID, from, to, round, errSig)
	return err
}

// LastTwoAuditFailSignaturesActivity backs the repeated_error_signature
// anti-loop guard.
func (a *Activities) LastTwoAuditFailSignaturesActivity(ctx context.Context, orchID string) ([]string, error) {
	return a.Recorder.LastTwoAuditFailSignatures(orchID)
}
