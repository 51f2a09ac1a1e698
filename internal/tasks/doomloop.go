package tasks

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/antigravity-dev/memoryos/internal/glyph"
)

// DefaultDoomLoopThreshold is N in spec.md §4.3's "same signature N times
// consecutively" rule.
const DefaultDoomLoopThreshold = 3

// ErrorSignature computes the short deterministic hash spec.md §4.3 calls
// for: a repeated-failure fingerprint derived from a result glyph's failure
// text. Truncated to 12 hex characters — long enough to avoid collisions
// across the handful of distinct failure modes one task accumulates, short
// enough to read in a metric string.
func ErrorSignature(failureText string) string {
	sum := sha256.Sum256([]byte(failureText))
	return hex.EncodeToString(sum[:])[:12]
}

// DoomLoopCheck reports whether the last n result glyphs for task_id are all
// failures sharing the same error signature.
func DoomLoopCheck(store *glyph.Store, taskID string, n int) (looping bool, signature string, err error) {
	if n <= 0 {
		n = DefaultDoomLoopThreshold
	}
	results, err := store.QueryWhere(
		`task_id = ? AND status = 'active' AND type = ?`,
		`timestamp DESC, id DESC`, n, taskID, glyph.TypeResult,
	)
	if err != nil {
		return false, "", fmt.Errorf("tasks: doom loop check %q: %w", taskID, err)
	}
	if len(results) < n {
		return false, "", nil
	}

	sig := ErrorSignature(results[0].Text)
	for _, g := range results {
		if g.Choice != glyph.ResultFailure || ErrorSignature(g.Text) != sig {
			return false, "", nil
		}
	}
	return true, sig, nil
}

// AutoBlockOnDoomLoop implements spec.md §4.3's doom-loop auto-block: if the
// last n result glyphs for task_id share an error signature, transitions the
// task IN_PROGRESS -> BLOCKED and emits the required result/lesson/phase
// glyph set. hasOrchestrationContext controls whether the AUDIT->BLOCKED
// phase glyph is emitted, since not every task runs under an Orchestrator.
// Returns the signature if a block occurred, or "" if the task was not
// doom-looping (or was not IN_PROGRESS).
func (r *Registry) AutoBlockOnDoomLoop(taskID string, n int, hasOrchestrationContext bool) (string, error) {
	looping, sig, err := DoomLoopCheck(r.store, taskID, n)
	if err != nil {
		return "", err
	}
	if !looping {
		return "", nil
	}

	current, err := r.Get(taskID)
	if err != nil {
		return "", err
	}
	if current == nil || current.Status != glyph.StatusInProgress {
		return "", nil // already blocked elsewhere, or reopened since the check began
	}

	if _, err := r.UpdateStatus(taskID, glyph.StatusBlocked, false); err != nil {
		return "", fmt.Errorf("tasks: auto-block %q: %w", taskID, err)
	}
	if _, err := r.LogResult(taskID, false, "doom loop detected: repeated error signature",
		"blocked_reason=repeated_error_signature:"+sig, "doom_loop_detector"); err != nil {
		return "", fmt.Errorf("tasks: auto-block %q: log result: %w", taskID, err)
	}
	if _, err := r.LogLesson(taskID, current.Topic,
		fmt.Sprintf("task %q auto-blocked after repeating error signature %s %d times", taskID, sig, n),
		"doom_loop_detector"); err != nil {
		return "", fmt.Errorf("tasks: auto-block %q: log lesson: %w", taskID, err)
	}
	if hasOrchestrationContext {
		if _, err := r.LogPhase(taskID, "AUDIT->BLOCKED", "doom_loop_detector"); err != nil {
			return "", fmt.Errorf("tasks: auto-block %q: log phase: %w", taskID, err)
		}
	}
	return sig, nil
}
