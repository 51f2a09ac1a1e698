package retrieval

import (
	"context"
	"fmt"

	"github.com/antigravity-dev/memoryos/internal/glyph"
)

// Embedder generates a vector for a piece of text. Implementations wrap a
// local embedding model or an API-backed one; the LLM Router's local_fast
// tier is the default embedder in production.
type Embedder interface {
	Name() string
	Dimensions() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedResult reports per-batch outcomes of Embed.
type EmbedResult struct {
	Candidates int
	Embedded   int
	Failed     int
	DryRun     bool
}

// Embed generates vectors for glyphs lacking one (or all, if force), scoped
// optionally to a project/session via scope filters. An embedding failure
// for one glyph never blocks the batch, per spec.md §4.2's failure
// semantics; the glyph is simply left without a vector.
func (e *Engine) Embed(ctx context.Context, scope Filters, force, dryRun bool) (EmbedResult, error) {
	if e.embedder == nil {
		return EmbedResult{}, fmt.Errorf("retrieval: embed: no embedder configured")
	}

	where, args, err := scope.buildWhere(e.now())
	if err != nil {
		return EmbedResult{}, err
	}
	if !force {
		where += " AND (embedding IS NULL OR embedding_model != ?)"
		args = append(args, e.embedder.Name())
	}

	candidates, err := e.store.QueryWhere(where, "id ASC", 0, args...)
	if err != nil {
		return EmbedResult{}, fmt.Errorf("retrieval: embed: query candidates: %w", err)
	}

	result := EmbedResult{Candidates: len(candidates), DryRun: dryRun}
	if dryRun {
		return result, nil
	}

	for _, g := range candidates {
		vec, err := e.embedder.Embed(ctx, g.Text)
		if err != nil {
			result.Failed++
			continue
		}
		blob := encodeFloat32Blob(vec)
		if err := e.store.SetEmbedding(g.ID, blob, e.embedder.Name(), len(vec)); err != nil {
			result.Failed++
			continue
		}
		result.Embedded++
	}
	return result, nil
}

// glyphVector fetches and decodes a glyph's stored embedding, returning
// (nil, nil) if the glyph has none.
func glyphVector(g glyph.Glyph) ([]float32, error) {
	if len(g.Embedding) == 0 {
		return nil, nil
	}
	return decodeFloat32Blob(g.Embedding)
}
