package retrieval

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/antigravity-dev/memoryos/internal/glyph"
)

const nearDuplicateCosine = 0.95

// ConsolidateResult reports consolidate's outcome.
type ConsolidateResult struct {
	ClustersFound     int
	GlyphsSuperseded  int
	ConsolidatedGlyph []int64
	DryRun            bool
}

// Consolidate finds clusters of near-duplicate glyphs (cosine >= 0.95, or
// identical topic + content hash) within scope, synthesizes one new glyph
// summarizing each cluster via the configured Summarizer, and supersedes
// the cluster members. The new glyph is marked source=consolidation.
// Dry runs never mutate, per spec.md §4.2's failure semantics.
func (e *Engine) Consolidate(scope Filters, dryRun bool) (ConsolidateResult, error) {
	where, args, err := scope.buildWhere(e.now())
	if err != nil {
		return ConsolidateResult{}, err
	}
	candidates, err := e.store.QueryWhere(where, "topic ASC, timestamp ASC, id ASC", 0, args...)
	if err != nil {
		return ConsolidateResult{}, fmt.Errorf("retrieval: consolidate: query: %w", err)
	}

	clusters := clusterNearDuplicates(candidates)
	result := ConsolidateResult{ClustersFound: len(clusters), DryRun: dryRun}
	if dryRun {
		for _, c := range clusters {
			result.GlyphsSuperseded += len(c) - 1
		}
		return result, nil
	}

	for _, cluster := range clusters {
		if len(cluster) < 2 {
			continue
		}
		if e.summarizer == nil {
			continue // no summarizer wired; leave the cluster untouched rather than fabricate text
		}

		texts := make([]string, len(cluster))
		for i, g := range cluster {
			texts[i] = g.Text
		}
		summary, err := e.summarizer.Summarize(texts)
		if err != nil {
			continue
		}

		newID, err := e.store.Append(glyph.NewGlyphFields{
			Type:   cluster[0].Type,
			Topic:  cluster[0].Topic,
			Text:   summary,
			Scope:  cluster[0].Scope,
			Source: "consolidation",
		})
		if err != nil {
			continue
		}
		result.ConsolidatedGlyph = append(result.ConsolidatedGlyph, newID)

		for _, g := range cluster {
			if err := e.store.Supersede(g.ID, newID); err == nil {
				result.GlyphsSuperseded++
			}
		}
	}
	return result, nil
}

// clusterNearDuplicates groups glyphs whose embeddings are cosine-close
// (>= 0.95) or whose (topic, content-hash) exactly match. Candidates must
// already be sorted by topic to make the exact-match grouping a single pass.
func clusterNearDuplicates(candidates []glyph.Glyph) [][]glyph.Glyph {
	assigned := make([]bool, len(candidates))
	var clusters [][]glyph.Glyph

	contentHash := make([]string, len(candidates))
	for i, g := range candidates {
		h := sha256.Sum256([]byte(g.Topic + "\x00" + g.Text))
		contentHash[i] = hex.EncodeToString(h[:])
	}

	for i := range candidates {
		if assigned[i] {
			continue
		}
		cluster := []glyph.Glyph{candidates[i]}
		assigned[i] = true
		vecI, _ := glyphVector(candidates[i])

		for j := i + 1; j < len(candidates); j++ {
			if assigned[j] {
				continue
			}
			if contentHash[j] == contentHash[i] {
				cluster = append(cluster, candidates[j])
				assigned[j] = true
				continue
			}
			if len(vecI) == 0 {
				continue
			}
			vecJ, _ := glyphVector(candidates[j])
			if len(vecJ) == 0 {
				continue
			}
			if cosineSimilarity(vecI, vecJ) >= nearDuplicateCosine {
				cluster = append(cluster, candidates[j])
				assigned[j] = true
			}
		}
		if len(cluster) > 1 {
			clusters = append(clusters, cluster)
		}
	}
	return clusters
}
