package orchestrator

import (
	"encoding/json"
	"fmt"

	"github.com/antigravity-dev/memoryos/internal/glyph"
)

// PhaseLinks is the Links JSON payload spec.md §4.4 requires on every phase
// glyph: `links={"from":…,"to":…,"round":k,"error":…}`.
type PhaseLinks struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Round int    `json:"round"`
	Error string `json:"error,omitempty"`
}

// Recorder persists phase-transition glyphs and reads back the
// authoritative current phase, grounded on the teacher's recordOutcome
// helper (internal/temporal/workflow.go) — one small append per transition,
// no separate state table, since the latest phase glyph by (timestamp, id)
// is authoritative per spec.md §5.
type Recorder struct {
	store *glyph.Store
}

// NewRecorder wraps a glyph store for phase-glyph bookkeeping.
func NewRecorder(store *glyph.Store) *Recorder {
	return &Recorder{store: store}
}

// RecordPhase appends a phase glyph for orchID transitioning from -> to at
// round, with an optional error signature for audit:fail transitions.
func (r *Recorder) RecordPhase(orchID, taskID, from, to string, round int, errSig string) (int64, error) {
	links, err := json.Marshal(PhaseLinks{From: from, To: to, Round: round, Error: errSig})
	if err != nil {
		return 0, fmt.Errorf("orchestrator: encode phase links: %w", err)
	}
	return r.store.Append(glyph.NewGlyphFields{
		Type:   glyph.TypePhase,
		Topic:  Topic(orchID),
		Text:   from + "->" + to,
		Choice: to,
		Links:  string(links),
		TaskID: taskID,
	})
}

// CurrentPhase returns the most recent phase glyph's "to" state for orchID,
// or PhaseImplement if no phase glyph exists yet (the initial state).
func (r *Recorder) CurrentPhase(orchID string) (string, error) {
	glyphs, err := r.store.QueryWhere(
		`topic = ? AND type = ? AND status = 'active'`,
		`timestamp DESC, id DESC`, 1, Topic(orchID), glyph.TypePhase,
	)
	if err != nil {
		return "", fmt.Errorf("orchestrator: current phase %q: %w", orchID, err)
	}
	if len(glyphs) == 0 {
		return PhaseImplement, nil
	}
	var links PhaseLinks
	if err := json.Unmarshal([]byte(glyphs[0].Links), &links); err != nil {
		return glyphs[0].Choice, nil
	}
	return links.To, nil
}

// History returns every phase glyph for orchID in chronological order.
func (r *Recorder) History(orchID string) ([]glyph.Glyph, error) {
	glyphs, err := r.store.QueryWhere(
		`topic = ? AND type = ? AND status = 'active'`,
		`timestamp ASC, id ASC`, 0, Topic(orchID), glyph.TypePhase,
	)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: history %q: %w", orchID, err)
	}
	return glyphs, nil
}

// LastTwoAuditFailSignatures returns the error signatures of the last two
// audit:fail phase glyphs for orchID, most recent first, for the
// repeated_error_signature anti-loop guard (spec.md §4.4). Returns fewer
// than 2 strings if history is shorter.
func (r *Recorder) LastTwoAuditFailSignatures(orchID string) ([]string, error) {
	glyphs, err := r.store.QueryWhere(
		`topic = ? AND type = ? AND choice = ? AND status = 'active'`,
		`timestamp DESC, id DESC`, 2, Topic(orchID), glyph.TypePhase, ChoiceAuditFail,
	)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: last audit:fail signatures %q: %w", orchID, err)
	}
	var sigs []string
	for _, g := range glyphs {
		var links PhaseLinks
		if err := json.Unmarshal([]byte(g.Links), &links); err == nil && links.Error != "" {
			sigs = append(sigs, links.Error)
		}
	}
	return sigs, nil
}
