package router

import (
	"context"
	"testing"
)

func TestCheckQualityNoSchemaDefaultsFormatValid(t *testing.T) {
	score, err := CheckQuality(context.Background(), Response{Text: "a complete and coherent answer with enough words in it"}, QualityOptions{MinWords: 5})
	if err != nil {
		t.Fatalf("CheckQuality: %v", err)
	}
	if !score.FormatValid {
		t.Error("expected FormatValid true with no schema configured")
	}
	if !score.Coherent {
		t.Error("expected Coherent true for plain answer")
	}
	if score.Overall < DefaultQualityThreshold {
		t.Errorf("Overall = %v, want >= threshold for a clean answer", score.Overall)
	}
}

func TestCheckQualityDetectsRefusal(t *testing.T) {
	score, err := CheckQuality(context.Background(), Response{Text: "I cannot help with that request."}, QualityOptions{MinWords: 3})
	if err != nil {
		t.Fatalf("CheckQuality: %v", err)
	}
	if score.Coherent {
		t.Error("expected Coherent false for a refusal")
	}
}

func TestCheckQualitySchemaValidation(t *testing.T) {
	schema := []byte(`{"type":"object","required":["ok"],"properties":{"ok":{"type":"boolean"}}}`)

	valid, err := CheckQuality(context.Background(), Response{Text: `{"ok": true}`}, QualityOptions{Schema: schema, MinWords: 1})
	if err != nil {
		t.Fatalf("CheckQuality: %v", err)
	}
	if !valid.FormatValid {
		t.Error("expected FormatValid true for a schema-conforming payload")
	}

	invalid, err := CheckQuality(context.Background(), Response{Text: `{"nope": 1}`}, QualityOptions{Schema: schema, MinWords: 1})
	if err != nil {
		t.Fatalf("CheckQuality: %v", err)
	}
	if invalid.FormatValid {
		t.Error("expected FormatValid false for a non-conforming payload")
	}
}

type fakeCritic struct {
	answer string
}

func (f *fakeCritic) Complete(ctx context.Context, req Request) (Response, error) {
	return Response{Text: f.answer}, nil
}

func TestCheckQualitySelfCritique(t *testing.T) {
	score, err := CheckQuality(context.Background(), Response{Text: "a coherent enough answer for this case"}, QualityOptions{
		MinWords:     3,
		SelfCritique: &fakeCritic{answer: "yes"},
	})
	if err != nil {
		t.Fatalf("CheckQuality: %v", err)
	}
	if score.SelfCritiquePass == nil || !*score.SelfCritiquePass {
		t.Error("expected SelfCritiquePass true")
	}
}

func TestCompletenessScalesWithWordCount(t *testing.T) {
	if got := completeness("one two three", 10); got < 0.29 || got > 0.31 {
		t.Errorf("completeness = %v, want ~0.3", got)
	}
	if got := completeness("one two three four five six seven eight nine ten eleven", 10); got != 1 {
		t.Errorf("completeness over minWords = %v, want 1 (clamped)", got)
	}
}
