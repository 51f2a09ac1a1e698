package glyph

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for the glyph log.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS glyphs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	type TEXT NOT NULL,
	topic TEXT NOT NULL DEFAULT '',
	text TEXT NOT NULL,
	choice TEXT NOT NULL DEFAULT '',
	rationale TEXT NOT NULL DEFAULT '',
	timestamp DATETIME NOT NULL,
	scope TEXT NOT NULL DEFAULT 'shared',
	chat_id TEXT NOT NULL DEFAULT '',
	agent_role TEXT NOT NULL DEFAULT '',
	visibility TEXT NOT NULL DEFAULT 'public',
	project TEXT NOT NULL DEFAULT '',
	importance TEXT NOT NULL DEFAULT '',
	due TEXT NOT NULL DEFAULT '',
	links TEXT NOT NULL DEFAULT '',
	task_id TEXT NOT NULL DEFAULT '',
	metric TEXT NOT NULL DEFAULT '',
	session TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active',
	superseded_by INTEGER,
	superseded_at DATETIME,
	embedding BLOB,
	embedding_model TEXT NOT NULL DEFAULT '',
	embedding_dim INTEGER NOT NULL DEFAULT 0,
	dedup_hash TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS glyph_sync_state (
	source TEXT PRIMARY KEY,
	last_line INTEGER NOT NULL DEFAULT 0,
	last_sync DATETIME
);

CREATE TABLE IF NOT EXISTS topic_index (
	topic TEXT PRIMARY KEY,
	mean_embedding BLOB,
	dim INTEGER NOT NULL DEFAULT 0,
	glyph_count INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_glyphs_type ON glyphs(type);
CREATE INDEX IF NOT EXISTS idx_glyphs_topic ON glyphs(topic);
CREATE INDEX IF NOT EXISTS idx_glyphs_task_id ON glyphs(task_id);
CREATE INDEX IF NOT EXISTS idx_glyphs_status ON glyphs(status);
CREATE INDEX IF NOT EXISTS idx_glyphs_timestamp ON glyphs(timestamp);
CREATE INDEX IF NOT EXISTS idx_glyphs_scope_chat ON glyphs(scope, chat_id);
CREATE INDEX IF NOT EXISTS idx_glyphs_project ON glyphs(project);
CREATE INDEX IF NOT EXISTS idx_glyphs_dedup ON glyphs(dedup_hash);
`

// Open creates or opens a SQLite database at the given path and ensures the
// schema exists. Mirrors the teacher's pragma string (WAL + busy_timeout)
// so concurrent OS-process writers don't immediately collide.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("glyph: open %s: %w", dbPath, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("glyph: create schema: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("glyph: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// migrate applies additive-only schema evolution for existing databases:
// new columns get defaults, new tables/indices get created. Never drops or
// renames, per spec.md §4.1.
func migrate(db *sql.DB) error {
	if err := addColumnIfMissing(db, "glyphs", "dedup_hash", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return err
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_glyphs_dedup ON glyphs(dedup_hash)`); err != nil {
		return fmt.Errorf("create dedup index: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS glyph_sync_state (
			source TEXT PRIMARY KEY,
			last_line INTEGER NOT NULL DEFAULT 0,
			last_sync DATETIME
		)`); err != nil {
		return fmt.Errorf("create glyph_sync_state table: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS topic_index (
			topic TEXT PRIMARY KEY,
			mean_embedding BLOB,
			dim INTEGER NOT NULL DEFAULT 0,
			glyph_count INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME
		)`); err != nil {
		return fmt.Errorf("create topic_index table: %w", err)
	}
	return nil
}

// addColumnIfMissing probes pragma_table_info and ALTER TABLEs the column in,
// matching the teacher's migrate() probing idiom exactly.
func addColumnIfMissing(db *sql.DB, table, column, ddl string) error {
	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("check %s.%s column: %w", table, column, err)
	}
	if count == 0 {
		if _, err := db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, ddl)); err != nil {
			return fmt.Errorf("add %s.%s column: %w", table, column, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying sql.DB for advanced queries by sibling
// packages (retrieval, tasks) that need transactional control beyond what
// Store exposes directly.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Now is overridable in tests; production code always uses time.Now().UTC().
var Now = func() time.Time { return time.Now().UTC() }
