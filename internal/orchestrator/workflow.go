package orchestrator

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// ImplementAuditFixWorkflow drives spec.md §4.4's state machine:
//
//  1. IMPLEMENT — spawn a sub-agent to work the objective.
//  2. AUDIT     — spawn a sub-agent to verify the implementation.
//  3. DONE      — on audit:pass.
//     FIX       — on audit:fail, spawn a sub-agent to address the failure,
//                 then return to AUDIT.
//  4. ESCALATED — on max_rounds exceeded, repeated_error_signature, or an
//                 explicit escalate choice.
//
// Grounded on CortexAgentWorkflow's phase-activity-plus-recordOutcome shape
// (internal/temporal/workflow.go), generalized from its fixed PLAN/EXECUTE/
// REVIEW/DOD pipeline to the dynamic-round IMPLEMENT/AUDIT/FIX loop.
func ImplementAuditFixWorkflow(ctx workflow.Context, req Request) (Outcome, error) {
	logger := workflow.GetLogger(ctx)
	orchID := OrchID(req.Objective)

	maxRounds := req.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}

	var a *Activities

	implementOpts := workflow.ActivityOptions{
		StartToCloseTimeout: DefaultImplementTimeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}
	auditOpts := workflow.ActivityOptions{
		StartToCloseTimeout: DefaultAuditTimeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}
	fixOpts := workflow.ActivityOptions{
		StartToCloseTimeout: DefaultFixTimeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}
	recordOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	}

	outcome := Outcome{OrchID: orchID}
	phase := PhaseImplement
	round := 0
	var failures []string

	recordPhase := func(from, to, errSig string) {
		recordCtx := workflow.WithActivityOptions(ctx, recordOpts)
		_ = workflow.ExecuteActivity(recordCtx, a.RecordPhaseActivity, orchID, req.TaskID, from, to, round, errSig).Get(ctx, nil)
	}

	for {
		switch phase {
		case PhaseImplement:
			logger.Info("orchestrator: IMPLEMENT", "orch_id", orchID)
			implCtx := workflow.WithActivityOptions(ctx, implementOpts)
			var result SpawnOutcome
			err := workflow.ExecuteActivity(implCtx, a.SpawnAndWaitActivity, req, req.Objective, DefaultImplementTimeout).Get(ctx, &result)

			if err != nil || result.SubStatus != "done" {
				sig := result.ErrorSig
				if sig == "" {
					sig = "implement_spawn_failed"
				}
				failures = append(failures, fmt.Sprintf("implement round %d: %s", round, result.SubResult))
				recordPhase(PhaseImplement, ChoiceAuditFail, sig)
				phase = PhaseFix
				continue
			}

			recordPhase(PhaseImplement, ChoiceImplementDone, "")
			phase = PhaseAudit

		case PhaseAudit:
			round++
			if round > maxRounds {
				logger.Warn("orchestrator: max_rounds exceeded, escalating", "orch_id", orchID, "rounds", round-1)
				recordPhase(PhaseAudit, ChoiceEscalate, "max_rounds_exceeded")
				outcome.Escalated = true
				outcome.FinalPhase = PhaseEscalated
				outcome.Rounds = round - 1
				outcome.Failures = failures
				return outcome, fmt.Errorf("orchestration %s escalated: max_rounds (%d) exceeded", orchID, maxRounds)
			}

			logger.Info("orchestrator: AUDIT", "orch_id", orchID, "round", round)
			auditCtx := workflow.WithActivityOptions(ctx, auditOpts)
			var result SpawnOutcome
			err := workflow.ExecuteActivity(auditCtx, a.SpawnAndWaitActivity, req, req.Objective, DefaultAuditTimeout).Get(ctx, &result)

			if err != nil || result.SubStatus != "done" {
				sig := result.ErrorSig
				if sig == "" {
					sig = "audit_spawn_failed"
				}
				failures = append(failures, fmt.Sprintf("audit round %d: %s", round, result.SubResult))
				recordPhase(PhaseAudit, ChoiceAuditFail, sig)

				if repeated, err := lastTwoSignaturesMatch(ctx, a, orchID); err == nil && repeated {
					logger.Warn("orchestrator: repeated_error_signature, escalating", "orch_id", orchID, "signature", sig)
					recordPhase(PhaseAudit, ChoiceEscalate, "repeated_error_signature")
					outcome.Escalated = true
					outcome.FinalPhase = PhaseEscalated
					outcome.Rounds = round
					outcome.Failures = failures
					return outcome, fmt.Errorf("orchestration %s escalated: repeated error signature %s", orchID, sig)
				}

				phase = PhaseFix
				continue
			}

			recordPhase(PhaseAudit, ChoiceAuditPass, "")
			outcome.FinalPhase = PhaseDone
			outcome.Rounds = round
			outcome.Failures = failures
			return outcome, nil

		case PhaseFix:
			logger.Info("orchestrator: FIX", "orch_id", orchID, "round", round)
			fixCtx := workflow.WithActivityOptions(ctx, fixOpts)
			var result SpawnOutcome
			err := workflow.ExecuteActivity(fixCtx, a.SpawnAndWaitActivity, req, req.Objective, DefaultFixTimeout).Get(ctx, &result)

			if err != nil || result.SubStatus != "done" {
				sig := result.ErrorSig
				if sig == "" {
					sig = "fix_spawn_failed"
				}
				failures = append(failures, fmt.Sprintf("fix round %d: %s", round, result.SubResult))
				recordPhase(PhaseFix, ChoiceEscalate, sig)
				outcome.Escalated = true
				outcome.FinalPhase = PhaseEscalated
				outcome.Rounds = round
				outcome.Failures = failures
				return outcome, fmt.Errorf("orchestration %s escalated: fix spawn failed: %s", orchID, result.SubResult)
			}

			recordPhase(PhaseFix, ChoiceFixDone, "")
			phase = PhaseAudit
		}
	}
}

// lastTwoSignaturesMatch implements the repeated_error_signature anti-loop
// guard: escalate if the last two audit:fail phase glyphs carry the same
// links.error.
func lastTwoSignaturesMatch(ctx workflow.Context, a *Activities, orchID string) (bool, error) {
	var sigs []string
	readCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})
	if err := workflow.ExecuteActivity(readCtx, a.LastTwoAuditFailSignaturesActivity, orchID).Get(ctx, &sigs); err != nil {
		return false, err
	}
	if len(sigs) < 2 {
		return false, nil
	}
	return sigs[0] != "" && sigs[0] == sigs[1], nil
}
