package orchestrator

import (
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// TaskQueue is the Temporal task queue every ImplementAuditFixWorkflow run
// and its activities are dispatched on.
const TaskQueue = "memoryos-orchestrator"

// StartWorker connects to a local Temporal server and runs the orchestrator
// worker until ctx's interrupt channel fires, registering
// ImplementAuditFixWorkflow and every Activities method it calls. Grounded
// on the teacher's chum-task-queue worker bootstrap
// (internal/temporal/worker.go's StartWorker), narrowed from its dozen
// bead/groom/learner workflows down to the one state machine spec.md §4.4
// defines.
func StartWorker(c client.Client, acts *Activities) worker.Worker {
	w := worker.New(c, TaskQueue, worker.Options{})

	w.RegisterWorkflow(ImplementAuditFixWorkflow)

	w.RegisterActivity(acts.SpawnAndWaitActivity)
	w.RegisterActivity(acts.RecordPhaseActivity)
	w.RegisterActivity(acts.LastTwoAuditFailSignaturesActivity)

	return w
}
