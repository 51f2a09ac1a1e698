package glyph

import (
	"path/filepath"
	"testing"
)

func TestAppendMirroredRoundTrips(t *testing.T) {
	s := tempStore(t)
	mirrorPath := filepath.Join(t.TempDir(), "mirror.jsonl")
	mw, err := OpenMirror(mirrorPath)
	if err != nil {
		t.Fatal(err)
	}
	defer mw.Close()

	id, err := s.AppendMirrored(mw, NewGlyphFields{Type: TypeFact, Topic: "t", Text: "hello world"})
	if err != nil {
		t.Fatal(err)
	}
	g, err := s.GetByID(id)
	if err != nil {
		t.Fatal(err)
	}
	if g.Text != "hello world" {
		t.Errorf("unexpected text %q", g.Text)
	}
}

func TestSyncReplaysMissingLines(t *testing.T) {
	s := tempStore(t)
	mirrorPath := filepath.Join(t.TempDir(), "mirror.jsonl")
	mw, err := OpenMirror(mirrorPath)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.AppendMirrored(mw, NewGlyphFields{Type: TypeFact, Text: "a"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AppendMirrored(mw, NewGlyphFields{Type: TypeFact, Text: "b"}); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	// Fresh store: the mirror log has two entries it has never seen.
	s2 := tempStore(t)
	inserted, err := s2.Sync(mirrorPath)
	if err != nil {
		t.Fatal(err)
	}
	if inserted != 2 {
		t.Fatalf("expected 2 inserted, got %d", inserted)
	}

	// Idempotent under replay.
	inserted, err = s2.Sync(mirrorPath)
	if err != nil {
		t.Fatal(err)
	}
	if inserted != 0 {
		t.Fatalf("expected 0 on second sync, got %d", inserted)
	}
}

func TestSyncNonexistentFileIsNoop(t *testing.T) {
	s := tempStore(t)
	inserted, err := s.Sync(filepath.Join(t.TempDir(), "missing.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if inserted != 0 {
		t.Fatalf("expected 0, got %d", inserted)
	}
}
