package tasks

import (
	"fmt"

	"github.com/antigravity-dev/memoryos/internal/glyph"
)

// LogAttempt records an attempt glyph linked to task_id.
func (r *Registry) LogAttempt(taskID, text, source string) (int64, error) {
	return r.store.Append(glyph.NewGlyphFields{
		Type:   glyph.TypeAttempt,
		Text:   text,
		TaskID: taskID,
		Source: source,
	})
}

// LogResult records a result glyph linked to task_id, with choice=success or
// choice=failure and an optional structured metric string.
func (r *Registry) LogResult(taskID string, success bool, text, metric, source string) (int64, error) {
	choice := glyph.ResultFailure
	if success {
		choice = glyph.ResultSuccess
	}
	return r.store.Append(glyph.NewGlyphFields{
		Type:   glyph.TypeResult,
		Text:   text,
		Choice: choice,
		Metric: metric,
		TaskID: taskID,
		Source: source,
	})
}

// LogLesson records a lesson glyph, optionally linked to task_id.
func (r *Registry) LogLesson(taskID, topic, text, source string) (int64, error) {
	return r.store.Append(glyph.NewGlyphFields{
		Type:   glyph.TypeLesson,
		Topic:  topic,
		Text:   text,
		TaskID: taskID,
		Source: source,
	})
}

// LogPhase records a phase-transition glyph linked to task_id (used by the
// doom-loop auto-block path; the Orchestrator logs its own phase glyphs
// against orch_id topics independently).
func (r *Registry) LogPhase(taskID, choice, source string) (int64, error) {
	return r.store.Append(glyph.NewGlyphFields{
		Type:   glyph.TypePhase,
		Text:   choice,
		Choice: choice,
		TaskID: taskID,
		Source: source,
	})
}

// History returns the chronological attempt/result/lesson/phase glyphs for
// task_id.
func (r *Registry) History(taskID string) ([]glyph.Glyph, error) {
	glyphs, err := r.store.QueryWhere(
		`task_id = ? AND status = 'active' AND type IN ('attempt', 'result', 'lesson', 'phase')`,
		`timestamp ASC, id ASC`, 0, taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("tasks: history %q: %w", taskID, err)
	}
	return glyphs, nil
}
