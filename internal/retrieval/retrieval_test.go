package retrieval

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/antigravity-dev/memoryos/internal/glyph"
)

func tempEngine(t *testing.T, embedder Embedder) (*Engine, *glyph.Store) {
	t.Helper()
	s, err := glyph.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewEngine(s, embedder, nil), s
}

// fakeEmbedder maps fixed strings to fixed vectors so cosine similarity is
// deterministic in tests.
type fakeEmbedder struct {
	vectors map[string][]float32
	dim     int
}

func (f *fakeEmbedder) Name() string     { return "fake" }
func (f *fakeEmbedder) Dimensions() int  { return f.dim }
func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return make([]float32, f.dim), nil
}

func TestParseFiltersRejectsUnknownKey(t *testing.T) {
	_, err := ParseFilters(map[string]string{"bogus": "x"})
	if err == nil {
		t.Fatal("expected error for unknown filter key")
	}
}

func TestQueryDefaultOrderIsTimestampDesc(t *testing.T) {
	engine, store := tempEngine(t, nil)
	store.Append(glyph.NewGlyphFields{Type: glyph.TypeFact, Text: "first"})
	store.Append(glyph.NewGlyphFields{Type: glyph.TypeFact, Text: "second"})

	results, err := engine.Query(Filters{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].Text != "second" {
		t.Fatalf("expected newest first, got %+v", results)
	}
}

func TestQueryImportanceFilterSelectsExactBand(t *testing.T) {
	engine, store := tempEngine(t, nil)
	store.Append(glyph.NewGlyphFields{Type: glyph.TypeFact, Text: "low", Importance: "L"})
	store.Append(glyph.NewGlyphFields{Type: glyph.TypeFact, Text: "high", Importance: "H"})

	results, err := engine.Query(Filters{Importance: "H"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Text != "high" {
		t.Fatalf("expected only the high-importance glyph, got %+v", results)
	}
}

func TestRenderIncludesFreshMarker(t *testing.T) {
	engine, store := tempEngine(t, nil)
	store.Append(glyph.NewGlyphFields{Type: glyph.TypeNote, Text: "just happened"})

	lines, err := engine.Render(Filters{}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[FRESH]") {
		t.Errorf("expected [FRESH] marker, got %q", lines[0])
	}
}

func TestSemanticSearchDegradesToKeywordWithoutEmbeddings(t *testing.T) {
	engine, store := tempEngine(t, &fakeEmbedder{dim: 4})
	store.Append(glyph.NewGlyphFields{Type: glyph.TypeFact, Text: "the quick brown fox"})
	store.Append(glyph.NewGlyphFields{Type: glyph.TypeFact, Text: "a slow green turtle"})

	results, err := engine.SemanticSearch("quick fox", Filters{}, 10, DefaultSearchParams())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 keyword match, got %d", len(results))
	}
	if results[0].Glyph.Text != "the quick brown fox" {
		t.Errorf("unexpected match: %q", results[0].Glyph.Text)
	}
}

func TestSemanticSearchRanksByCosineWhenEmbedded(t *testing.T) {
	embedder := &fakeEmbedder{dim: 2, vectors: map[string][]float32{
		"query":    {1, 0},
		"aligned":  {1, 0},
		"opposite": {0, 1},
	}}
	engine, store := tempEngine(t, embedder)

	id1, _ := store.Append(glyph.NewGlyphFields{Type: glyph.TypeFact, Text: "aligned"})
	id2, _ := store.Append(glyph.NewGlyphFields{Type: glyph.TypeFact, Text: "opposite"})
	store.SetEmbedding(id1, encodeFloat32Blob(embedder.vectors["aligned"]), "fake", 2)
	store.SetEmbedding(id2, encodeFloat32Blob(embedder.vectors["opposite"]), "fake", 2)

	results, err := engine.SemanticSearch("query", Filters{}, 10, DefaultSearchParams())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Glyph.Text != "aligned" {
		t.Errorf("expected aligned vector to rank first, got %q", results[0].Glyph.Text)
	}
}
