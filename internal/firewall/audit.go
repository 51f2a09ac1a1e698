package firewall

import (
	"database/sql"
	"fmt"

	"github.com/antigravity-dev/memoryos/internal/glyph"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME NOT NULL,
	action_type TEXT NOT NULL,
	action_data TEXT NOT NULL,
	decision TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	actor TEXT NOT NULL DEFAULT ''
);
`

// AuditEntry is one immutable audit row: {timestamp, action_type,
// action_data, decision, reason, actor}, per spec.md §4.5. Grounded on the
// teacher's AuditEvent/logAuditEvent pair in internal/api/auth.go, moved
// from an append-only JSON-lines file onto the same SQLite store everything
// else in this system already uses, since the Capability Firewall's audit
// rows need List/filter queries an append-only file can't serve cheaply.
type AuditEntry struct {
	ID         int64
	Timestamp  string
	ActionType string
	ActionData string
	Decision   string
	Reason     string
	Actor      string
}

// AuditLog wraps the audit_log table. Rows are append-only: there is no
// update or delete method on this type.
type AuditLog struct {
	db *sql.DB
}

func newAuditLog(store *glyph.Store) (*AuditLog, error) {
	if _, err := store.DB().Exec(auditSchema); err != nil {
		return nil, fmt.Errorf("firewall: create audit log: %w", err)
	}
	return &AuditLog{db: store.DB()}, nil
}

// Record appends one audit row. It never returns an error the caller must
// treat as fatal to the guard decision itself — GuardAction discards the error
// and does not fail a decision solely because the audit write failed, since silently
// under-auditing is preferable to silently under-enforcing policy.
func (l *AuditLog) Record(actionType, actionData, decision, reason, actor string) error {
	_, err := l.db.Exec(
		`INSERT INTO audit_log (timestamp, action_type, action_data, decision, reason, actor)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		Now(), actionType, actionData, decision, reason, actor,
	)
	if err != nil {
		return fmt.Errorf("firewall: record audit entry: %w", err)
	}
	return nil
}

// Recent returns the most recent audit rows, newest first, capped at limit.
func (l *AuditLog) Recent(limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.Query(
		`SELECT id, timestamp, action_type, action_data, decision, reason, actor
		 FROM audit_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("firewall: list audit entries: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.ActionType, &e.ActionData, &e.Decision, &e.Reason, &e.Actor); err != nil {
			return nil, fmt.Errorf("firewall: scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
