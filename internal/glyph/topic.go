package glyph

import "fmt"

// TopicMean is one row of the topic_index table: the L2-normalized mean
// embedding for all active, embedded glyphs sharing a topic.
type TopicMean struct {
	Topic         string
	MeanEmbedding []byte
	Dim           int
	GlyphCount    int64
}

// UpsertTopicMean writes or replaces a topic's mean embedding.
func (s *Store) UpsertTopicMean(t TopicMean) error {
	_, err := s.db.Exec(
		`INSERT INTO topic_index (topic, mean_embedding, dim, glyph_count, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(topic) DO UPDATE SET mean_embedding = excluded.mean_embedding, dim = excluded.dim,
			glyph_count = excluded.glyph_count, updated_at = excluded.updated_at`,
		t.Topic, t.MeanEmbedding, t.Dim, t.GlyphCount, Now(),
	)
	if err != nil {
		return fmt.Errorf("glyph: upsert topic mean %q: %w", t.Topic, err)
	}
	return nil
}

// ListTopicMeans returns every topic's mean embedding, for the
// hierarchical-retrieval topic ranking step.
func (s *Store) ListTopicMeans() ([]TopicMean, error) {
	rows, err := s.db.Query(`SELECT topic, mean_embedding, dim, glyph_count FROM topic_index`)
	if err != nil {
		return nil, fmt.Errorf("glyph: list topic means: %w", err)
	}
	defer rows.Close()

	var out []TopicMean
	for rows.Next() {
		var t TopicMean
		if err := rows.Scan(&t.Topic, &t.MeanEmbedding, &t.Dim, &t.GlyphCount); err != nil {
			return nil, fmt.Errorf("glyph: scan topic mean: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DistinctEmbeddedTopics returns every topic with at least one active,
// embedded glyph, for topic_index_build to iterate over.
func (s *Store) DistinctEmbeddedTopics() ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT topic FROM glyphs WHERE status = 'active' AND topic != '' AND embedding IS NOT NULL`,
	)
	if err != nil {
		return nil, fmt.Errorf("glyph: distinct embedded topics: %w", err)
	}
	defer rows.Close()

	var topics []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("glyph: scan topic: %w", err)
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}
