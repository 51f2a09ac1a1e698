// Package tasks implements the Task Registry: todo/goal lifecycle, atomic
// single-claimer acquisition, attempt/result/lesson provenance, and
// doom-loop detection. Every record it manages is a glyph in the underlying
// glyph.Store — this package only adds lifecycle rules and a claim ledger on
// top, the same way the rest of the system layers meaning onto the same
// append-only log.
package tasks

import (
	"fmt"
	"time"

	"github.com/antigravity-dev/memoryos/internal/glyph"
)

// Registry manages task lifecycle glyphs plus a side ledger of active
// claims. The claim ledger is a small mutable table — the one deliberate
// exception to "everything is an append-only glyph" in this system, because
// single-claimer acquisition needs a row that can be atomically overwritten,
// not appended to.
type Registry struct {
	store *glyph.Store
}

const claimSchema = `
CREATE TABLE IF NOT EXISTS task_claims (
	task_id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT '',
	chat_id TEXT NOT NULL DEFAULT '',
	claimed_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);
`

// NewRegistry wraps a glyph.Store, ensuring the claim ledger table exists.
func NewRegistry(store *glyph.Store) (*Registry, error) {
	if _, err := store.DB().Exec(claimSchema); err != nil {
		return nil, fmt.Errorf("tasks: create claim ledger: %w", err)
	}
	return &Registry{store: store}, nil
}

// Task is the projection of a todo/goal glyph the registry hands callers:
// current status plus the glyph it was derived from.
type Task struct {
	TaskID     string
	Type       string
	Topic      string
	Text       string
	Status     string
	Importance string
	Glyph      glyph.Glyph
}

func taskFromGlyph(g glyph.Glyph) Task {
	return Task{
		TaskID:     g.TaskID,
		Type:       g.Type,
		Topic:      g.Topic,
		Text:       g.Text,
		Status:     g.Choice,
		Importance: g.Importance,
		Glyph:      g,
	}
}

// Now is overridable in tests, matching glyph.Now's seam.
var Now = func() time.Time { return time.Now().UTC() }
