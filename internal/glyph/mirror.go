package glyph

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// mirrorRecord is the §6.2 wire tuple: a JSON array, one per line.
// [type, topic, text, choice, rationale, timestamp, session, source, importance, due, links, task_id, metric]
type mirrorRecord struct {
	Type       string
	Topic      *string
	Text       string
	Choice     *string
	Rationale  *string
	Timestamp  string
	Session    *string
	Source     *string
	Importance *string
	Due        *string
	Links      *string
	TaskID     *string
	Metric     *string
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func strVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func (r mirrorRecord) MarshalJSON() ([]byte, error) {
	arr := []any{
		r.Type, ptrAny(r.Topic), r.Text, ptrAny(r.Choice), ptrAny(r.Rationale),
		r.Timestamp, ptrAny(r.Session), ptrAny(r.Source), ptrAny(r.Importance),
		ptrAny(r.Due), ptrAny(r.Links), ptrAny(r.TaskID), ptrAny(r.Metric),
	}
	return json.Marshal(arr)
}

func ptrAny(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func (r *mirrorRecord) UnmarshalJSON(data []byte) error {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) < 13 {
		return fmt.Errorf("mirror record: expected at least 13 fields, got %d", len(arr))
	}
	// Extra trailing fields (len > 13) are reserved for forward compatibility
	// and ignored.
	if err := json.Unmarshal(arr[0], &r.Type); err != nil {
		return fmt.Errorf("mirror record: type: %w", err)
	}
	if err := unmarshalNullableString(arr[1], &r.Topic); err != nil {
		return fmt.Errorf("mirror record: topic: %w", err)
	}
	if err := json.Unmarshal(arr[2], &r.Text); err != nil {
		return fmt.Errorf("mirror record: text: %w", err)
	}
	if err := unmarshalNullableString(arr[3], &r.Choice); err != nil {
		return fmt.Errorf("mirror record: choice: %w", err)
	}
	if err := unmarshalNullableString(arr[4], &r.Rationale); err != nil {
		return fmt.Errorf("mirror record: rationale: %w", err)
	}
	if err := json.Unmarshal(arr[5], &r.Timestamp); err != nil {
		return fmt.Errorf("mirror record: timestamp: %w", err)
	}
	if err := unmarshalNullableString(arr[6], &r.Session); err != nil {
		return fmt.Errorf("mirror record: session: %w", err)
	}
	if err := unmarshalNullableString(arr[7], &r.Source); err != nil {
		return fmt.Errorf("mirror record: source: %w", err)
	}
	if err := unmarshalNullableString(arr[8], &r.Importance); err != nil {
		return fmt.Errorf("mirror record: importance: %w", err)
	}
	if err := unmarshalNullableString(arr[9], &r.Due); err != nil {
		return fmt.Errorf("mirror record: due: %w", err)
	}
	if err := unmarshalNullableString(arr[10], &r.Links); err != nil {
		return fmt.Errorf("mirror record: links: %w", err)
	}
	if err := unmarshalNullableString(arr[11], &r.TaskID); err != nil {
		return fmt.Errorf("mirror record: task_id: %w", err)
	}
	if err := unmarshalNullableString(arr[12], &r.Metric); err != nil {
		return fmt.Errorf("mirror record: metric: %w", err)
	}
	return nil
}

func unmarshalNullableString(raw json.RawMessage, dest **string) error {
	if string(raw) == "null" {
		*dest = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	*dest = &s
	return nil
}

// MirrorWriter appends one JSON-array line per glyph to an append-only file.
// One MirrorWriter instance per process guards the file with a mutex; the
// file itself is append-only and safe across processes at the OS level
// because each write is a single buffered line write under O_APPEND.
type MirrorWriter struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

func OpenMirror(path string) (*MirrorWriter, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("glyph: open mirror log %s: %w", path, err)
	}
	return &MirrorWriter{path: path, f: f}, nil
}

func (m *MirrorWriter) Close() error {
	if m == nil || m.f == nil {
		return nil
	}
	return m.f.Close()
}

// Append writes one line to the mirror log for the given fields.
func (m *MirrorWriter) Append(f NewGlyphFields, timestamp time.Time) error {
	if m == nil {
		return nil
	}
	rec := mirrorRecord{
		Type:       f.Type,
		Topic:      strPtr(f.Topic),
		Text:       f.Text,
		Choice:     strPtr(f.Choice),
		Rationale:  strPtr(f.Rationale),
		Timestamp:  timestamp.UTC().Format(time.RFC3339Nano),
		Session:    strPtr(f.Session),
		Source:     strPtr(f.Source),
		Importance: strPtr(f.Importance),
		Due:        strPtr(f.Due),
		Links:      strPtr(f.Links),
		TaskID:     strPtr(f.TaskID),
		Metric:     strPtr(f.Metric),
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("glyph: marshal mirror record: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("glyph: write mirror log: %w", err)
	}
	return m.f.Sync()
}

// AppendMirrored performs Append followed by a mirror-log write, rolling
// back the store insert if the mirror append fails — spec.md §4.1's
// failure semantics: "A write that succeeds in the indexed store but fails
// to append to the mirror log is rolled back in the store."
func (s *Store) AppendMirrored(mirror *MirrorWriter, f NewGlyphFields) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("glyph: append mirrored: begin: %w", err)
	}

	now := Now()
	scope := f.Scope
	if scope == "" {
		scope = ScopeShared
	}
	visibility := f.Visibility
	if visibility == "" {
		visibility = VisibilityPublic
	}
	if strings.TrimSpace(f.Type) == "" {
		tx.Rollback()
		return 0, fmt.Errorf("glyph: append mirrored: type is required")
	}
	if strings.TrimSpace(f.Text) == "" {
		tx.Rollback()
		return 0, fmt.Errorf("glyph: append mirrored: text is required")
	}

	res, err := tx.Exec(
		`INSERT INTO glyphs (type, topic, text, choice, rationale, timestamp, scope, chat_id, agent_role, visibility, project, importance, due, links, task_id, metric, session, source, status, dedup_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'active', ?)`,
		f.Type, f.Topic, f.Text, f.Choice, f.Rationale, now, scope, f.ChatID, f.AgentRole, visibility,
		f.Project, f.Importance, f.Due, f.Links, f.TaskID, f.Metric, f.Session, f.Source,
		dedupHash(f.Type, f.Topic, f.Text),
	)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("glyph: append mirrored: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("glyph: append mirrored: last insert id: %w", err)
	}

	if err := mirror.Append(f, now); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("glyph: append mirrored: mirror write failed, rolled back: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("glyph: append mirrored: commit: %w", err)
	}
	return id, nil
}

// Sync replays mirror-log entries past the recorded last_line for source,
// inserting any missing records. Dedup is by the (type, topic, text) hash
// together with an exact timestamp match, so replaying an already-ingested line is a no-op — Sync is idempotent
// under replay per spec.md §8.
func (s *Store) Sync(source string) (inserted int, err error) {
	f, err := os.Open(source)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("glyph: sync: open %s: %w", source, err)
	}
	defer f.Close()

	var lastLine int64
	err = s.db.QueryRow(`SELECT last_line FROM glyph_sync_state WHERE source = ?`, source).Scan(&lastLine)
	if err != nil && !isNoRows(err) {
		return 0, fmt.Errorf("glyph: sync: read sync state: %w", err)
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var lineNum int64
	for scanner.Scan() {
		lineNum++
		if lineNum <= lastLine {
			continue
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec mirrorRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			// Malformed lines are warnings, not fatal, per spec.md §4.1.
			slog.Warn("glyph: sync: skipping malformed mirror line", "source", source, "line", lineNum, "error", err)
			continue
		}

		ts, parseErr := time.Parse(time.RFC3339Nano, rec.Timestamp)
		if parseErr != nil {
			ts = Now()
		}

		hash := dedupHash(rec.Type, strVal(rec.Topic), rec.Text)
		var exists int
		if err := s.db.QueryRow(
			`SELECT COUNT(*) FROM glyphs WHERE dedup_hash = ? AND timestamp = ?`, hash, ts,
		).Scan(&exists); err != nil {
			return inserted, fmt.Errorf("glyph: sync: dedup check: %w", err)
		}
		if exists > 0 {
			continue
		}

		if _, err := s.db.Exec(
			`INSERT INTO glyphs (type, topic, text, choice, rationale, timestamp, scope, visibility, task_id, metric, session, source, importance, due, links, status, dedup_hash)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'active', ?)`,
			rec.Type, strVal(rec.Topic), rec.Text, strVal(rec.Choice), strVal(rec.Rationale), ts,
			ScopeShared, VisibilityPublic, strVal(rec.TaskID), strVal(rec.Metric), strVal(rec.Session),
			strVal(rec.Source), strVal(rec.Importance), strVal(rec.Due), strVal(rec.Links), hash,
		); err != nil {
			return inserted, fmt.Errorf("glyph: sync: insert: %w", err)
		}
		inserted++
	}
	if err := scanner.Err(); err != nil {
		return inserted, fmt.Errorf("glyph: sync: scan: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO glyph_sync_state (source, last_line, last_sync) VALUES (?, ?, ?)
		 ON CONFLICT(source) DO UPDATE SET last_line = excluded.last_line, last_sync = excluded.last_sync`,
		source, lineNum, Now(),
	)
	if err != nil {
		return inserted, fmt.Errorf("glyph: sync: update sync state: %w", err)
	}
	return inserted, nil
}

func isNoRows(err error) bool {
	return err != nil && err.Error() == "sql: no rows in result set"
}
