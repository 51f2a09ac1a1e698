package firewall

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/antigravity-dev/memoryos/internal/glyph"
)

// Pending approval statuses.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

const approvalSchema = `
CREATE TABLE IF NOT EXISTS pending_changes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	action_type TEXT NOT NULL,
	action_data TEXT NOT NULL,
	proposed_by TEXT NOT NULL,
	proposed_at DATETIME NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	decided_by TEXT NOT NULL DEFAULT '',
	decided_at DATETIME
);
`

// PendingChange is one row of the approval queue: {action_type, action_data,
// proposed_by, proposed_at, status}, per spec.md §4.5.
type PendingChange struct {
	ID         int64
	ActionType string
	ActionData string
	ProposedBy string
	ProposedAt time.Time
	Status     string
	DecidedBy  string
	DecidedAt  sql.NullTime
}

// ApprovalQueue wraps the pending_changes table — the one other deliberate
// mutable table in this system besides internal/tasks' claim ledger, because
// an operator decision overwrites a row rather than appending a new one.
type ApprovalQueue struct {
	db *sql.DB
}

func newApprovalQueue(store *glyph.Store) (*ApprovalQueue, error) {
	if _, err := store.DB().Exec(approvalSchema); err != nil {
		return nil, fmt.Errorf("firewall: create approval queue: %w", err)
	}
	return &ApprovalQueue{db: store.DB()}, nil
}

// Propose writes a pending row and returns its id, the pending_id surfaced
// in GuardAction's escalate decision.
func (q *ApprovalQueue) Propose(actionType, actionData, proposedBy string) (int64, error) {
	res, err := q.db.Exec(
		`INSERT INTO pending_changes (action_type, action_data, proposed_by, proposed_at, status)
		 VALUES (?, ?, ?, ?, ?)`,
		actionType, actionData, proposedBy, Now(), ApprovalPending,
	)
	if err != nil {
		return 0, fmt.Errorf("firewall: propose: %w", err)
	}
	return res.LastInsertId()
}

// Get fetches one pending_changes row by id.
func (q *ApprovalQueue) Get(id int64) (*PendingChange, error) {
	row := q.db.QueryRow(
		`SELECT id, action_type, action_data, proposed_by, proposed_at, status, decided_by, decided_at
		 FROM pending_changes WHERE id = ?`, id,
	)
	var pc PendingChange
	if err := row.Scan(&pc.ID, &pc.ActionType, &pc.ActionData, &pc.ProposedBy, &pc.ProposedAt, &pc.Status, &pc.DecidedBy, &pc.DecidedAt); err != nil {
		return nil, fmt.Errorf("firewall: get pending change %d: %w", id, err)
	}
	return &pc, nil
}

// List returns pending_changes rows matching status, newest first. An empty
// status returns every row.
func (q *ApprovalQueue) List(status string) ([]PendingChange, error) {
	query := `SELECT id, action_type, action_data, proposed_by, proposed_at, status, decided_by, decided_at FROM pending_changes`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY proposed_at DESC`

	rows, err := q.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("firewall: list pending changes: %w", err)
	}
	defer rows.Close()

	var out []PendingChange
	for rows.Next() {
		var pc PendingChange
		if err := rows.Scan(&pc.ID, &pc.ActionType, &pc.ActionData, &pc.ProposedBy, &pc.ProposedAt, &pc.Status, &pc.DecidedBy, &pc.DecidedAt); err != nil {
			return nil, fmt.Errorf("firewall: scan pending change: %w", err)
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

// decide flips a pending row's status exactly once; a second call on an
// already-decided row is rejected rather than overwritten.
func (q *ApprovalQueue) decide(id int64, status, decidedBy string) (*PendingChange, error) {
	res, err := q.db.Exec(
		`UPDATE pending_changes SET status = ?, decided_by = ?, decided_at = ?
		 WHERE id = ? AND status = ?`,
		status, decidedBy, Now(), id, ApprovalPending,
	)
	if err != nil {
		return nil, fmt.Errorf("firewall: decide pending change %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("firewall: decide pending change %d: rows affected: %w", id, err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("firewall: pending change %d is not pending", id)
	}
	return q.Get(id)
}

// Approve marks a pending change approved by operator.
func (q *ApprovalQueue) Approve(id int64, operator string) (*PendingChange, error) {
	return q.decide(id, ApprovalApproved, operator)
}

// Reject marks a pending change rejected by operator.
func (q *ApprovalQueue) Reject(id int64, operator string) (*PendingChange, error) {
	return q.decide(id, ApprovalRejected, operator)
}
