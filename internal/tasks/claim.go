package tasks

import (
	"fmt"
	"time"

	"github.com/antigravity-dev/memoryos/internal/glyph"
)

// ClaimNextOpen atomically hands the oldest OPEN task (optionally filtered
// by topic) to one caller. The claim ledger row is the single point of
// contention: the INSERT ... ON CONFLICT DO UPDATE ... WHERE clause below is
// one atomic SQLite statement, so of any number of concurrent callers racing
// the same task_id, exactly one sees rows-affected > 0. This generalizes the
// teacher's UpsertClaimLease (internal/store/store.go) from bead IDs to
// task_id, adding the WHERE guard so a live claim held by a different owner
// is never silently overwritten.
//
// A repeated claim by the same owner within the TTL is idempotent: the WHERE
// clause's owner-match arm refreshes the expiry and returns the same task,
// satisfying spec.md §4.3's failure-semantics requirement.
func (r *Registry) ClaimNextOpen(owner, role, chatID, topic string, ttl time.Duration) (*Task, error) {
	if owner == "" {
		return nil, fmt.Errorf("tasks: claim_next_open: owner is required")
	}

	candidates, err := r.oldestOpenCandidates(topic)
	if err != nil {
		return nil, err
	}

	now := Now()
	expiresAt := now.Add(ttl)

	for _, candidate := range candidates {
		res, err := r.store.DB().Exec(
			`INSERT INTO task_claims (task_id, owner, role, chat_id, claimed_at, expires_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(task_id) DO UPDATE SET
				owner = excluded.owner, role = excluded.role, chat_id = excluded.chat_id,
				claimed_at = excluded.claimed_at, expires_at = excluded.expires_at
			 WHERE task_claims.expires_at < excluded.claimed_at OR task_claims.owner = excluded.owner`,
			candidate.TaskID, owner, role, chatID, now, expiresAt,
		)
		if err != nil {
			return nil, fmt.Errorf("tasks: claim_next_open: claim %q: %w", candidate.TaskID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("tasks: claim_next_open: rows affected: %w", err)
		}
		if affected == 0 {
			continue // held by another live owner; try the next candidate
		}

		if _, err := r.store.Append(glyph.NewGlyphFields{
			Type:       candidate.Type,
			Topic:      candidate.Topic,
			Text:       candidate.Text,
			Choice:     glyph.StatusInProgress,
			Importance: candidate.Importance,
			TaskID:     candidate.TaskID,
			AgentRole:  role,
			ChatID:     chatID,
		}); err != nil {
			return nil, fmt.Errorf("tasks: claim_next_open: stamp in-progress: %w", err)
		}

		claimed, err := r.Get(candidate.TaskID)
		if err != nil {
			return nil, err
		}
		return claimed, nil
	}

	return nil, nil
}

// oldestOpenCandidates returns OPEN tasks ordered oldest-first by their
// most recent glyph timestamp, the order claim_next_open tries them in.
// Unlike List, this ignores importance banding: claim order is pure FIFO
// per spec.md §4.3.
func (r *Registry) oldestOpenCandidates(topic string) ([]Task, error) {
	where := `type IN ('todo', 'goal') AND status = 'active'`
	var args []any
	if topic != "" {
		where += ` AND topic = ?`
		args = append(args, topic)
	}

	glyphs, err := r.store.QueryWhere(where, `timestamp DESC, id DESC`, 0, args...)
	if err != nil {
		return nil, fmt.Errorf("tasks: claim_next_open: list candidates: %w", err)
	}

	latest := map[string]glyph.Glyph{}
	order := []string{}
	for _, g := range glyphs {
		if _, seen := latest[g.TaskID]; !seen {
			latest[g.TaskID] = g
			order = append(order, g.TaskID)
		}
	}

	var open []Task
	for _, id := range order {
		g := latest[id]
		if g.Choice == glyph.StatusOpen {
			open = append(open, taskFromGlyph(g))
		}
	}
	for i, j := 0, len(open)-1; i < j; i, j = i+1, j-1 {
		open[i], open[j] = open[j], open[i]
	}
	return open, nil
}

// ReleaseExpiredClaims removes claim ledger rows past their expiry, letting
// their tasks be claimed again even if claim_next_open is never called with
// a matching task_id (e.g. after an operator manually re-opens a task).
func (r *Registry) ReleaseExpiredClaims() (int64, error) {
	res, err := r.store.DB().Exec(`DELETE FROM task_claims WHERE expires_at < ?`, Now())
	if err != nil {
		return 0, fmt.Errorf("tasks: release expired claims: %w", err)
	}
	return res.RowsAffected()
}
