package router

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// refusalMarkers and contradictionMarkers back the coherence signal: text
// that hedges this heavily reads as a non-answer rather than a completion.
var (
	refusalMarkers = regexp.MustCompile(`(?i)\b(I (can't|cannot|won't)|I'm not able to|as an AI language model)\b`)
	contradictionMarkers = regexp.MustCompile(`(?i)\b(however, this contradicts|but this is incorrect)\b`)
)

// QualityScore mirrors internal/learner's QualityScore shape (0.0-1.0
// weighted multi-signal score) but scores a single router completion
// against the response's own request rather than a dispatch transcript.
type QualityScore struct {
	Overall         float64
	FormatValid     bool
	Completeness    float64
	Coherent        bool
	SelfCritiquePass *bool
}

// QualityOptions configures CheckQuality, mirroring spec.md §4.6's
// quality-check weights and optional self-critique pass.
type QualityOptions struct {
	// Schema, when non-nil, is the JSON schema the response text must parse
	// and validate against for format validity (30% weight). When nil,
	// format validity defaults to true (plain-text responses have no schema
	// to fail).
	Schema []byte
	// MinWords is the minimum word count treated as "complete" (20% weight).
	MinWords int
	// SelfCritique, when set, is asked a yes/no question about the response
	// by a fast-tier model (20% weight, optional per spec.md §4.6).
	SelfCritique Provider
}

// CheckQuality scores a completion the way internal/learner.ScoreDispatch
// scores a dispatch transcript: independent boolean/float signals combined
// with fixed weights, clamped to [0,1].
func CheckQuality(ctx context.Context, resp Response, opts QualityOptions) (QualityScore, error) {
	score := QualityScore{}

	score.FormatValid = validateFormat(resp.Text, opts.Schema)
	score.Completeness = completeness(resp.Text, opts.MinWords)
	score.Coherent = isCoherent(resp.Text)

	var selfCritique *bool
	if opts.SelfCritique != nil {
		ok, err := runSelfCritique(ctx, opts.SelfCritique, resp.Text)
		if err == nil {
			selfCritique = &ok
		}
	}
	score.SelfCritiquePass = selfCritique

	score.Overall = qualityWeightedScore(score)
	return score, nil
}

func validateFormat(text string, schemaBytes []byte) bool {
	if len(schemaBytes) == 0 {
		return true
	}
	var schemaDoc any
	if err := json.Unmarshal(schemaBytes, &schemaDoc); err != nil {
		return false
	}
	var payloadDoc any
	if err := json.Unmarshal([]byte(text), &payloadDoc); err != nil {
		return false
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("response.json", schemaDoc); err != nil {
		return false
	}
	schema, err := c.Compile("response.json")
	if err != nil {
		return false
	}
	return schema.Validate(payloadDoc) == nil
}

func completeness(text string, minWords int) float64 {
	if minWords <= 0 {
		minWords = 10
	}
	words := len(strings.Fields(text))
	return qualityClamp01(float64(words) / float64(minWords))
}

func isCoherent(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	if refusalMarkers.MatchString(text) || contradictionMarkers.MatchString(text) {
		return false
	}
	return true
}

func runSelfCritique(ctx context.Context, critic Provider, text string) (bool, error) {
	resp, err := critic.Complete(ctx, Request{
		SystemPrompt: "Answer only 'yes' or 'no'.",
		Prompt:       "Is the following response coherent, complete, and free of contradictions?\n\n" + text,
		MaxTokens:    8,
	})
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(resp.Text))
	return strings.HasPrefix(answer, "yes"), nil
}

// qualityWeightedScore applies spec.md §4.6's weights: format validity 30%,
// completeness 20%, coherence 30%, self-critique 20% (only when run).
func qualityWeightedScore(s QualityScore) float64 {
	var total, weight float64

	total += boolToScore(s.FormatValid) * 0.3
	weight += 0.3

	total += s.Completeness * 0.2
	weight += 0.2

	total += boolToScore(s.Coherent) * 0.3
	weight += 0.3

	if s.SelfCritiquePass != nil {
		total += boolToScore(*s.SelfCritiquePass) * 0.2
		weight += 0.2
	}

	if weight == 0 {
		return 0.5
	}
	return qualityClamp01(total / weight)
}

func boolToScore(v bool) float64 {
	if v {
		return 1.0
	}
	return 0.0
}

func qualityClamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// DefaultQualityThreshold is the score below which a response triggers the
// fallback chain, per spec.md §4.6's default of 0.7.
const DefaultQualityThreshold = 0.7

// DefaultMaxFallbackAttempts bounds how many additional models the fallback
// chain tries before giving up, per spec.md §4.6's default of 2.
const DefaultMaxFallbackAttempts = 2
