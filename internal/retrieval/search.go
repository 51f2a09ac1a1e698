package retrieval

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/antigravity-dev/memoryos/internal/glyph"
)

// SearchParams carries semantic_search's tunables, defaulted per spec.md §4.2.
type SearchParams struct {
	TauDays float64
	Beta    float64
	Alpha   float64
}

// DefaultSearchParams matches spec.md's documented defaults.
func DefaultSearchParams() SearchParams {
	return SearchParams{TauDays: 7, Beta: 0.3, Alpha: 0.0}
}

// Scored pairs a glyph with its ranking score.
type Scored struct {
	Glyph glyph.Glyph
	Score float64
}

// SemanticSearch ranks active glyphs by a hybrid of cosine similarity,
// temporal decay, keyword overlap, and importance, per spec.md §4.2. If no
// candidate glyph carries an embedding, it degrades to pure keyword ranking
// over the same filter set, matching the testable property in spec.md §8.
func (e *Engine) SemanticSearch(queryText string, f Filters, limit int, params SearchParams) ([]Scored, error) {
	if params.TauDays <= 0 {
		params.TauDays = DefaultSearchParams().TauDays
	}

	where, args, err := f.buildWhere(e.now())
	if err != nil {
		return nil, err
	}
	candidates, err := e.store.QueryWhere(where, "timestamp DESC, id DESC", 0, args...)
	if err != nil {
		return nil, err
	}

	var queryVec []float32
	haveEmbeddings := false
	for _, g := range candidates {
		if len(g.Embedding) > 0 {
			haveEmbeddings = true
			break
		}
	}
	if haveEmbeddings && e.embedder != nil {
		queryVec, err = e.embedder.Embed(context.Background(), queryText)
		if err != nil {
			haveEmbeddings = false
		}
	} else {
		haveEmbeddings = false
	}

	now := e.now()
	results := make([]Scored, 0, len(candidates))

	if !haveEmbeddings || len(queryVec) == 0 {
		return keywordRank(candidates, queryText, limit), nil
	}

	queryKeywords := tokenize(queryText)
	for _, g := range candidates {
		vec, err := glyphVector(g)
		if err != nil || len(vec) == 0 {
			continue
		}
		cos := cosineSimilarity(queryVec, vec)
		ageDays := now.Sub(g.Timestamp).Hours() / 24
		decay := math.Exp(-ageDays / params.TauDays)
		kwBoost := 1 + params.Beta*float64(keywordOverlap(queryKeywords, g.Text))
		impBoost := importanceBoost(g.Importance)
		penalty := 1 - params.Alpha*deprecationPenalty(g)
		score := cos * decay * kwBoost * impBoost * penalty
		results = append(results, Scored{Glyph: g, Score: score})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// keywordRank is the degrade path: rank by raw keyword overlap count, newest
// first on ties.
func keywordRank(candidates []glyph.Glyph, queryText string, limit int) []Scored {
	queryKeywords := tokenize(queryText)
	results := make([]Scored, 0, len(candidates))
	for _, g := range candidates {
		overlap := keywordOverlap(queryKeywords, g.Text)
		if overlap == 0 && queryText != "" && !strings.Contains(strings.ToLower(g.Text), strings.ToLower(queryText)) {
			continue
		}
		results = append(results, Scored{Glyph: g, Score: float64(overlap)})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Glyph.Timestamp.After(results[j].Glyph.Timestamp)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		af, bf := float64(a[i]), float64(b[i])
		dot += af * bf
		na += af * af
		nb += bf * bf
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func tokenize(s string) map[string]bool {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.Trim(w, ".,!?;:\"'()[]{}")] = true
	}
	return set
}

func keywordOverlap(queryKeywords map[string]bool, text string) int {
	textKeywords := tokenize(text)
	count := 0
	for k := range queryKeywords {
		if k != "" && textKeywords[k] {
			count++
		}
	}
	return count
}

func importanceBoost(importance string) float64 {
	switch importance {
	case "H", "critical":
		return 1.3
	case "M":
		return 1.1
	case "L":
		return 1.0
	default:
		return 0.9
	}
}

// deprecationPenalty is a hook for a future soft-deprecation signal; active
// glyphs (the only ones semantic_search ever ranks) carry none today, so
// this is always 0 and the alpha term is a no-op until such a signal exists.
func deprecationPenalty(g glyph.Glyph) float64 {
	_ = g
	return 0
}
