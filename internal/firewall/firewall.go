package firewall

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/antigravity-dev/memoryos/internal/glyph"
)

// Decision outcomes. Callers must execute only Allow decisions, per
// spec.md §4.5's guard contract.
const (
	Allow    = "allow"
	Escalate = "escalate"
	Deny     = "deny"
)

// Action describes one agent tool call submitted to the firewall.
type Action struct {
	Tool        string
	Payload     map[string]any
	AgentID     string // budget-tracking key; typically the spawned process/session id
	Depth       int    // spawn depth, checked against max_recursion
	SandboxRoot string // required when the resolved policy is Sandboxed
	TargetPath  string // path operand, checked through GuardPath when Sandboxed
	Domain      string // network operand, checked against AllowDomains
	ByteSize    int64  // payload/file size, checked against MaxBytes
}

// Result is GuardAction's return value:
// {decision, sanitized_payload, pending_id?}.
type Result struct {
	Decision         string
	SanitizedPayload string
	PendingID        int64
}

// Firewall enforces policy.go's tier table, sandbox.go's path guard,
// budget.go's execution ceilings, approval.go's escalation queue and
// audit.go's decision log for every action handed to GuardAction.
type Firewall struct {
	mu       sync.RWMutex
	policies map[string]Policy
	budgets  *BudgetTracker
	approval *ApprovalQueue
	audit    *AuditLog
}

// New wires a Firewall from a shared glyph store, creating the approval
// queue and audit log tables if they do not already exist.
func New(store *glyph.Store, budget Budget) (*Firewall, error) {
	approval, err := newApprovalQueue(store)
	if err != nil {
		return nil, err
	}
	audit, err := newAuditLog(store)
	if err != nil {
		return nil, err
	}
	return &Firewall{
		policies: DefaultPolicies(),
		budgets:  NewBudgetTracker(budget),
		approval: approval,
		audit:    audit,
	}, nil
}

// SetPolicy overrides or adds a tool's policy entry.
func (f *Firewall) SetPolicy(tool string, p Policy) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.policies[tool] = p
}

// Approvals exposes the approval queue for operator-facing surfaces
// (cmd/memoryosctl).
func (f *Firewall) Approvals() *ApprovalQueue { return f.approval }

// AuditLog exposes the audit log for read-side surfaces.
func (f *Firewall) AuditLog() *AuditLog { return f.audit }

// GuardAction implements spec.md §4.5's guard_action(action, actor_role) ->
// {decision, sanitized_payload, pending_id?} contract. Any panic raised by
// policy evaluation itself (not by the tool — GuardAction never executes
// the tool) is recovered and recorded as deny, per the failure-semantics
// requirement that no uncaught exception escapes the guard.
func (f *Firewall) GuardAction(action Action, actorRole string) (result Result, err error) {
	actionData, marshalErr := json.Marshal(action.Payload)
	if marshalErr != nil {
		actionData = []byte(fmt.Sprintf("%v", action.Payload))
	}

	defer func() {
		if r := recover(); r != nil {
			result = Result{Decision: Deny, SanitizedPayload: string(actionData)}
			err = nil
			f.recordAudit(action.Tool, string(actionData), Deny, fmt.Sprintf("panic: %v", r), actorRole)
		}
	}()

	// An operator replaying an approved action executes unconditionally:
	// spec.md §4.5 "on approval the action is replayed within the firewall
	// with actor_role=operator".
	if actorRole == "operator" {
		result = Result{Decision: Allow, SanitizedPayload: string(actionData)}
		f.recordAudit(action.Tool, string(actionData), Allow, "operator replay", actorRole)
		return result, nil
	}

	f.mu.RLock()
	policy, known := lookupPolicy(f.policies, action.Tool)
	f.mu.RUnlock()

	if policy.Sandboxed && action.TargetPath != "" {
		if _, violation := GuardPath(action.SandboxRoot, action.TargetPath); violation != nil {
			reason := violation.Error()
			f.recordAudit(action.Tool, string(actionData), Deny, reason, actorRole)
			return Result{Decision: Deny, SanitizedPayload: string(actionData)}, nil
		}
	}

	if action.AgentID != "" {
		if ok, reason := f.budgets.Consume(action.AgentID, action.Depth); !ok {
			f.recordAudit(action.Tool, string(actionData), Deny, reason, actorRole)
			return Result{Decision: Deny, SanitizedPayload: string(actionData)}, nil
		}
	}

	if policy.MaxBytes > 0 && action.ByteSize > policy.MaxBytes {
		reason := fmt.Sprintf("payload size %d exceeds max_bytes %d", action.ByteSize, policy.MaxBytes)
		f.recordAudit(action.Tool, string(actionData), Deny, reason, actorRole)
		return Result{Decision: Deny, SanitizedPayload: string(actionData)}, nil
	}

	if len(policy.AllowDomains) > 0 && action.Domain != "" && !domainAllowed(policy.AllowDomains, action.Domain) {
		reason := fmt.Sprintf("domain %q not in allow_domains", action.Domain)
		f.recordAudit(action.Tool, string(actionData), Deny, reason, actorRole)
		return Result{Decision: Deny, SanitizedPayload: string(actionData)}, nil
	}

	if !known {
		pendingID, proposeErr := f.approval.Propose(action.Tool, string(actionData), actorRole)
		if proposeErr != nil {
			f.recordAudit(action.Tool, string(actionData), Deny, proposeErr.Error(), actorRole)
			return Result{Decision: Deny, SanitizedPayload: string(actionData)}, nil
		}
		f.recordAudit(action.Tool, string(actionData), Escalate, "unknown tool escalates by default", actorRole)
		return Result{Decision: Escalate, SanitizedPayload: string(actionData), PendingID: pendingID}, nil
	}

	if policy.RequiresApproval {
		pendingID, proposeErr := f.approval.Propose(action.Tool, string(actionData), actorRole)
		if proposeErr != nil {
			f.recordAudit(action.Tool, string(actionData), Deny, proposeErr.Error(), actorRole)
			return Result{Decision: Deny, SanitizedPayload: string(actionData)}, nil
		}
		f.recordAudit(action.Tool, string(actionData), Escalate, fmt.Sprintf("tier %q requires approval", policy.Tier), actorRole)
		return Result{Decision: Escalate, SanitizedPayload: string(actionData), PendingID: pendingID}, nil
	}

	f.recordAudit(action.Tool, string(actionData), Allow, "", actorRole)
	return Result{Decision: Allow, SanitizedPayload: string(actionData)}, nil
}

func (f *Firewall) recordAudit(actionType, actionData, decision, reason, actor string) {
	_ = f.audit.Record(actionType, actionData, decision, reason, actor)
}

func domainAllowed(allow []string, domain string) bool {
	for _, d := range allow {
		if d == domain {
			return true
		}
	}
	return false
}
