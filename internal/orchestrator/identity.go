package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
)

// OrchID derives an orchestration identifier from its objective, per
// spec.md §4.4 ("orch_id = short_hash(objective)"). Truncated the same way
// tasks.ErrorSignature is, for the same reason: short enough to embed in a
// topic string, long enough that two distinct objectives essentially never
// collide.
func OrchID(objective string) string {
	sum := sha256.Sum256([]byte(objective))
	return hex.EncodeToString(sum[:])[:12]
}

// Topic returns the orch_<id> topic every glyph for this orchestration
// carries, per spec.md §6.3.
func Topic(orchID string) string {
	return "orch_" + orchID
}
