package glyph

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"
)

const glyphCols = `id, type, topic, text, choice, rationale, timestamp, scope, chat_id, agent_role, visibility, project, importance, due, links, task_id, metric, session, source, status, superseded_by, superseded_at, embedding, embedding_model, embedding_dim`

// dedupHash implements the testable-property dedup key: identical
// (type, topic, text) collapses to the same hash so a deduplicating
// consolidation pass (or idempotent mirror-log replay) can detect repeats.
func dedupHash(typ, topic, text string) string {
	h := sha256.Sum256([]byte(typ + "\x00" + topic + "\x00" + text))
	return hex.EncodeToString(h[:])
}

// Append atomically inserts a glyph and returns its ID. It does not itself
// write to the mirror log — callers that want the mirror-log side effect
// (the normal path for every write in the running system) should use
// AppendMirrored, which wraps Append with a MirrorWriter.Write call and
// rolls the insert back if the mirror append fails, per spec.md §4.1's
// failure semantics.
func (s *Store) Append(f NewGlyphFields) (int64, error) {
	if strings.TrimSpace(f.Type) == "" {
		return 0, fmt.Errorf("glyph: append: type is required")
	}
	if strings.TrimSpace(f.Text) == "" {
		return 0, fmt.Errorf("glyph: append: text is required")
	}
	scope := f.Scope
	if scope == "" {
		scope = ScopeShared
	}
	visibility := f.Visibility
	if visibility == "" {
		visibility = VisibilityPublic
	}

	now := Now()
	res, err := s.db.Exec(
		`INSERT INTO glyphs (type, topic, text, choice, rationale, timestamp, scope, chat_id, agent_role, visibility, project, importance, due, links, task_id, metric, session, source, status, dedup_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'active', ?)`,
		f.Type, f.Topic, f.Text, f.Choice, f.Rationale, now, scope, f.ChatID, f.AgentRole, visibility,
		f.Project, f.Importance, f.Due, f.Links, f.TaskID, f.Metric, f.Session, f.Source,
		dedupHash(f.Type, f.Topic, f.Text),
	)
	if err != nil {
		return 0, fmt.Errorf("glyph: append: %w", err)
	}
	return res.LastInsertId()
}

// Supersede marks old as superseded by new, recording the reason in
// rationale-adjacent storage is intentionally NOT done here — reason is
// logged by the caller (retrieval/tasks) as a note glyph if needed. This
// keeps Supersede idempotent under repeated application with the same
// (old, new) pair, per spec.md §8's testable invariant.
func (s *Store) Supersede(oldID, newID int64) error {
	_, err := s.db.Exec(
		`UPDATE glyphs SET status = ?, superseded_by = ?, superseded_at = ?
		 WHERE id = ? AND status = 'active'`,
		RowSuperseded, newID, Now(), oldID,
	)
	if err != nil {
		return fmt.Errorf("glyph: supersede %d -> %d: %w", oldID, newID, err)
	}
	return nil
}

// MarkStatus flips a glyph's row-lifecycle status without supersession
// (used by consolidation to mark duplicates, and by operators to deprecate).
func (s *Store) MarkStatus(id int64, status string) error {
	switch status {
	case RowActive, RowSuperseded, RowDeprecated, RowDuplicate:
	default:
		return fmt.Errorf("glyph: mark status: unknown status %q", status)
	}
	_, err := s.db.Exec(`UPDATE glyphs SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("glyph: mark status: %w", err)
	}
	return nil
}

// SetEmbedding populates a glyph's vector after the fact (the only other
// mutation path besides Supersede, per spec.md §3 Lifecycle).
func (s *Store) SetEmbedding(id int64, vec []byte, model string, dim int) error {
	if dim*4 != len(vec) {
		return fmt.Errorf("glyph: set embedding %d: dim %d does not match byte length %d", id, dim, len(vec))
	}
	_, err := s.db.Exec(
		`UPDATE glyphs SET embedding = ?, embedding_model = ?, embedding_dim = ? WHERE id = ?`,
		vec, model, dim, id,
	)
	if err != nil {
		return fmt.Errorf("glyph: set embedding: %w", err)
	}
	return nil
}

// GetByID fetches a single glyph.
func (s *Store) GetByID(id int64) (*Glyph, error) {
	glyphs, err := s.queryGlyphs(`SELECT `+glyphCols+` FROM glyphs WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(glyphs) == 0 {
		return nil, fmt.Errorf("glyph: not found: %d", id)
	}
	return &glyphs[0], nil
}

func (s *Store) queryGlyphs(query string, args ...any) ([]Glyph, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("glyph: query: %w", err)
	}
	defer rows.Close()

	var glyphs []Glyph
	for rows.Next() {
		g, err := scanGlyph(rows)
		if err != nil {
			return nil, err
		}
		glyphs = append(glyphs, g)
	}
	return glyphs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGlyph(rows rowScanner) (Glyph, error) {
	var g Glyph
	if err := rows.Scan(
		&g.ID, &g.Type, &g.Topic, &g.Text, &g.Choice, &g.Rationale, &g.Timestamp,
		&g.Scope, &g.ChatID, &g.AgentRole, &g.Visibility, &g.Project, &g.Importance,
		&g.Due, &g.Links, &g.TaskID, &g.Metric, &g.Session, &g.Source, &g.Status,
		&g.SupersededBy, &g.SupersededAt, &g.Embedding, &g.EmbeddingModel, &g.EmbeddingDim,
	); err != nil {
		return Glyph{}, fmt.Errorf("glyph: scan: %w", err)
	}
	return g, nil
}

// Prune deletes glyphs whose row-status is non-active and whose
// superseded_at is older than horizon. dry_run reports what would be
// deleted without mutating.
type PruneResult struct {
	Candidates int64
	Deleted    int64
}

func (s *Store) Prune(horizon time.Duration, dryRun bool) (PruneResult, error) {
	cutoff := Now().Add(-horizon)

	var count int64
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM glyphs WHERE status != 'active' AND superseded_at IS NOT NULL AND superseded_at < ?`,
		cutoff,
	).Scan(&count); err != nil {
		return PruneResult{}, fmt.Errorf("glyph: prune: count candidates: %w", err)
	}

	if dryRun {
		return PruneResult{Candidates: count}, nil
	}

	res, err := s.db.Exec(
		`DELETE FROM glyphs WHERE status != 'active' AND superseded_at IS NOT NULL AND superseded_at < ?`,
		cutoff,
	)
	if err != nil {
		return PruneResult{}, fmt.Errorf("glyph: prune: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return PruneResult{}, fmt.Errorf("glyph: prune: rows affected: %w", err)
	}
	return PruneResult{Candidates: count, Deleted: deleted}, nil
}

// Status summarizes store health: counts by type, embedding coverage, sync
// lag, top topics and freshness buckets, per spec.md §4.1.
type StatusReport struct {
	CountsByType     map[string]int64
	TotalActive      int64
	EmbeddedActive   int64
	TopTopics        []TopicCount
	FreshnessBuckets FreshnessBuckets
	SyncLag          map[string]int64 // source -> lines behind (best-effort, 0 if unknown)
}

type TopicCount struct {
	Topic string
	Count int64
}

type FreshnessBuckets struct {
	UnderOneHour   int64
	UnderOneDay    int64
	UnderOneWeek   int64
	OlderThanWeek  int64
}

func (s *Store) Status() (StatusReport, error) {
	report := StatusReport{CountsByType: map[string]int64{}, SyncLag: map[string]int64{}}

	rows, err := s.db.Query(`SELECT type, COUNT(*) FROM glyphs WHERE status = 'active' GROUP BY type`)
	if err != nil {
		return report, fmt.Errorf("glyph: status: counts by type: %w", err)
	}
	for rows.Next() {
		var typ string
		var count int64
		if err := rows.Scan(&typ, &count); err != nil {
			rows.Close()
			return report, fmt.Errorf("glyph: status: scan type count: %w", err)
		}
		report.CountsByType[typ] = count
		report.TotalActive += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return report, err
	}

	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM glyphs WHERE status = 'active' AND embedding IS NOT NULL`,
	).Scan(&report.EmbeddedActive); err != nil {
		return report, fmt.Errorf("glyph: status: embedding coverage: %w", err)
	}

	topicRows, err := s.db.Query(
		`SELECT topic, COUNT(*) c FROM glyphs WHERE status = 'active' AND topic != '' GROUP BY topic ORDER BY c DESC LIMIT 10`,
	)
	if err != nil {
		return report, fmt.Errorf("glyph: status: top topics: %w", err)
	}
	for topicRows.Next() {
		var tc TopicCount
		if err := topicRows.Scan(&tc.Topic, &tc.Count); err != nil {
			topicRows.Close()
			return report, fmt.Errorf("glyph: status: scan topic: %w", err)
		}
		report.TopTopics = append(report.TopTopics, tc)
	}
	topicRows.Close()
	if err := topicRows.Err(); err != nil {
		return report, err
	}

	now := Now()
	buckets := []struct {
		dest *int64
		cut  time.Time
	}{
		{&report.FreshnessBuckets.UnderOneHour, now.Add(-time.Hour)},
		{&report.FreshnessBuckets.UnderOneDay, now.Add(-24 * time.Hour)},
		{&report.FreshnessBuckets.UnderOneWeek, now.Add(-7 * 24 * time.Hour)},
	}
	for _, b := range buckets {
		if err := s.db.QueryRow(
			`SELECT COUNT(*) FROM glyphs WHERE status = 'active' AND timestamp >= ?`, b.cut,
		).Scan(b.dest); err != nil {
			return report, fmt.Errorf("glyph: status: freshness bucket: %w", err)
		}
	}
	report.FreshnessBuckets.OlderThanWeek = report.TotalActive - report.FreshnessBuckets.UnderOneWeek

	syncRows, err := s.db.Query(`SELECT source, last_line FROM glyph_sync_state`)
	if err != nil {
		return report, fmt.Errorf("glyph: status: sync state: %w", err)
	}
	for syncRows.Next() {
		var source string
		var lastLine int64
		if err := syncRows.Scan(&source, &lastLine); err != nil {
			syncRows.Close()
			return report, fmt.Errorf("glyph: status: scan sync state: %w", err)
		}
		var lag int64
		if f, err := os.Open(source); err == nil {
			var total int64
			sc := bufio.NewScanner(f)
			sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
			for sc.Scan() {
				total++
			}
			f.Close()
			if total > lastLine {
				lag = total - lastLine
			}
		}
		report.SyncLag[source] = lag
	}
	syncRows.Close()

	return report, syncRows.Err()
}
