package retrieval

import (
	"fmt"
	"math"

	"github.com/antigravity-dev/memoryos/internal/glyph"
)

// TopicIndexResult reports topic_index_build's outcome.
type TopicIndexResult struct {
	TopicsConsidered int
	TopicsUpdated    int
	DryRun           bool
}

// TopicIndexBuild groups embeddings by topic, computes the L2-normalized
// mean vector per topic, and upserts into the topic index, per spec.md
// §4.2. Used for hierarchical retrieval: rank topics by cosine against
// topic means before retrieving within the top-K topics.
func (e *Engine) TopicIndexBuild(dryRun bool) (TopicIndexResult, error) {
	topics, err := e.store.DistinctEmbeddedTopics()
	if err != nil {
		return TopicIndexResult{}, fmt.Errorf("retrieval: topic index build: %w", err)
	}

	result := TopicIndexResult{TopicsConsidered: len(topics), DryRun: dryRun}
	if dryRun {
		return result, nil
	}

	for _, topic := range topics {
		glyphs, err := e.store.QueryWhere(
			"status = 'active' AND topic = ? AND embedding IS NOT NULL", "", 0, topic,
		)
		if err != nil {
			return result, fmt.Errorf("retrieval: topic index build: query %q: %w", topic, err)
		}
		if len(glyphs) == 0 {
			continue
		}

		var sum []float64
		dim := 0
		for _, g := range glyphs {
			vec, err := glyphVector(g)
			if err != nil || len(vec) == 0 {
				continue
			}
			if dim == 0 {
				dim = len(vec)
				sum = make([]float64, dim)
			}
			if len(vec) != dim {
				continue // dimension mismatch across embedder versions; skip the outlier
			}
			for i, v := range vec {
				sum[i] += float64(v)
			}
		}
		if dim == 0 {
			continue
		}

		mean := make([]float32, dim)
		var norm float64
		for i, v := range sum {
			m := v / float64(len(glyphs))
			mean[i] = float32(m)
			norm += m * m
		}
		norm = math.Sqrt(norm)
		if norm > 0 {
			for i := range mean {
				mean[i] = float32(float64(mean[i]) / norm)
			}
		}

		meanBlob := encodeFloat32Blob(mean)
		err = e.store.UpsertTopicMean(glyph.TopicMean{
			Topic: topic, MeanEmbedding: meanBlob, Dim: dim, GlyphCount: int64(len(glyphs)),
		})
		if err != nil {
			return result, err
		}
		result.TopicsUpdated++
	}
	return result, nil
}

// RankTopics returns topics ordered by cosine similarity of their mean
// vector against queryVec, descending, for the hierarchical-retrieval
// top-K-topics step.
func (e *Engine) RankTopics(queryVec []float32) ([]TopicScore, error) {
	means, err := e.store.ListTopicMeans()
	if err != nil {
		return nil, err
	}
	scores := make([]TopicScore, 0, len(means))
	for _, m := range means {
		vec, err := decodeFloat32Blob(m.MeanEmbedding)
		if err != nil {
			continue
		}
		scores = append(scores, TopicScore{Topic: m.Topic, Score: cosineSimilarity(queryVec, vec), GlyphCount: m.GlyphCount})
	}
	for i := 1; i < len(scores); i++ {
		j := i
		for j > 0 && scores[j].Score > scores[j-1].Score {
			scores[j], scores[j-1] = scores[j-1], scores[j]
			j--
		}
	}
	return scores, nil
}

// TopicScore pairs a topic with its similarity against a query vector.
type TopicScore struct {
	Topic      string
	Score      float64
	GlyphCount int64
}
