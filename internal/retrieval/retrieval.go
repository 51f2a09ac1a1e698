// Package retrieval implements the Retrieval Engine: structured/substring
// query, prompt-ready rendering, embedding generation, hybrid semantic
// search, topic indexing, and near-duplicate consolidation over the glyph
// log.
package retrieval

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/antigravity-dev/memoryos/internal/glyph"
)

// Engine binds a glyph Store to the embedder and LLM summarizer it needs for
// embed() and consolidate().
type Engine struct {
	store      *glyph.Store
	embedder   Embedder
	summarizer Summarizer
	now        func() time.Time
}

// Summarizer composes a single glyph's text summarizing a cluster of near
// duplicates, used by Consolidate. The LLM Router implements this at
// tier=moderate per spec.
type Summarizer interface {
	Summarize(texts []string) (string, error)
}

// NewEngine constructs a retrieval Engine. embedder and summarizer may be
// nil; Embed returns an error if invoked without an embedder, and
// Consolidate without a summarizer reports clusters but leaves them
// untouched.
func NewEngine(store *glyph.Store, embedder Embedder, summarizer Summarizer) *Engine {
	return &Engine{store: store, embedder: embedder, summarizer: summarizer, now: func() time.Time { return glyph.Now() }}
}

// encodeFloat32Blob little-endian-packs a vector, matching the byte-packed
// blob format glyph.Store.SetEmbedding expects.
func encodeFloat32Blob(vec []float32) []byte {
	buf := &bytes.Buffer{}
	buf.Grow(len(vec) * 4)
	_ = binary.Write(buf, binary.LittleEndian, vec)
	return buf.Bytes()
}

// decodeFloat32Blob is the inverse of encodeFloat32Blob.
func decodeFloat32Blob(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("retrieval: embedding blob length %d not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, &vec); err != nil {
		return nil, fmt.Errorf("retrieval: decode embedding blob: %w", err)
	}
	return vec, nil
}
