// Package glyph implements the durable, append-only typed record log that
// backs every other subsystem in the memory operating system. A Glyph is the
// single record type in the store; everything else (tasks, phase
// transitions, decisions, lessons) is a Glyph with a particular Type and
// Choice.
package glyph

import (
	"database/sql"
	"time"
)

// Core types are written lowercase by external callers; task-centric types
// are written uppercase in CLI/action payloads but stored lowercase here —
// the type column itself is always lowercase, matching spec.md's "first
// seven are core (lowercase), remaining six are task-centric (uppercase)"
// convention at the presentation layer only.
const (
	TypeDecision     = "decision"
	TypeQuestion     = "question"
	TypeFact         = "fact"
	TypeAction       = "action"
	TypeNote         = "note"
	TypeConversation = "conversation"
	TypeIdea         = "idea"
	TypeTodo         = "todo"
	TypeGoal         = "goal"
	TypeAttempt      = "attempt"
	TypeResult       = "result"
	TypeLesson       = "lesson"
	TypePhase        = "phase"
)

// CoreTypes and TaskTypes partition the fixed tag set per spec.md §3.
var CoreTypes = []string{TypeDecision, TypeQuestion, TypeFact, TypeAction, TypeNote, TypeConversation, TypeIdea}
var TaskTypes = []string{TypeTodo, TypeGoal, TypeAttempt, TypeResult, TypeLesson, TypePhase}

// Task status values, held in Choice for todo/goal glyphs.
const (
	StatusOpen       = "OPEN"
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusBlocked    = "BLOCKED"
)

// Result outcomes, held in Choice for result glyphs.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Scope values.
const (
	ScopeShared = "shared"
	ScopeChat   = "chat"
	ScopeAgent  = "agent"
	ScopeTeam   = "team"
)

// Visibility values.
const (
	VisibilityPublic   = "public"
	VisibilityPrivate  = "private"
	VisibilityInternal = "internal"
)

// Lifecycle status of the glyph row itself (distinct from task Choice status).
const (
	RowActive     = "active"
	RowSuperseded = "superseded"
	RowDeprecated = "deprecated"
	RowDuplicate  = "duplicate"
)

// Importance bands, high to low.
const (
	ImportanceHigh     = "H"
	ImportanceMedium   = "M"
	ImportanceLow      = "L"
	ImportanceCritical = "critical"
)

// Glyph is one immutable append-only record in the store.
type Glyph struct {
	ID             int64
	Type           string
	Topic          string
	Text           string
	Choice         string
	Rationale      string
	Timestamp      time.Time
	Scope          string
	ChatID         string
	AgentRole      string
	Visibility     string
	Project        string
	Importance     string
	Due            string
	Links          string // raw JSON payload, decoded lazily by callers
	TaskID         string
	Metric         string
	Session        string
	Source         string
	Status         string
	SupersededBy   sql.NullInt64
	SupersededAt   sql.NullTime
	Embedding      []byte
	EmbeddingModel string
	EmbeddingDim   int
}

// NewGlyphFields is the set of fields a caller supplies to Append; the store
// fills in ID, Timestamp (always the time of the write) and Status.
type NewGlyphFields struct {
	Type       string
	Topic      string
	Text       string
	Choice     string
	Rationale  string
	Scope      string
	ChatID     string
	AgentRole  string
	Visibility string
	Project    string
	Importance string
	Due        string
	Links      string
	TaskID     string
	Metric     string
	Session    string
	Source     string
}
