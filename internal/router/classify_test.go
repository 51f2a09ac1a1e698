package router

import "testing"

func TestClassifyBuiltinTable(t *testing.T) {
	cases := map[string]Complexity{
		"classification": Simple,
		"yes_no":         Simple,
		"code_gen":       Moderate,
		"summarization":  Moderate,
		"orchestration":  Complex,
		"multi_file":     Complex,
	}
	for action, want := range cases {
		if got := Classify(action, nil); got != want {
			t.Errorf("Classify(%q) = %v, want %v", action, got, want)
		}
	}
}

func TestClassifyUnknownDefaultsToComplex(t *testing.T) {
	if got := Classify("some_unheard_of_action", nil); got != Complex {
		t.Errorf("Classify(unknown) = %v, want Complex", got)
	}
}

func TestClassifyOverrideTakesPrecedence(t *testing.T) {
	overrides := map[string]Complexity{"code_gen": Complex}
	if got := Classify("code_gen", overrides); got != Complex {
		t.Errorf("Classify with override = %v, want Complex", got)
	}
}

func TestClassifyIsCaseAndSpaceInsensitive(t *testing.T) {
	if got := Classify("  Yes_No  ", nil); got != Simple {
		t.Errorf("Classify(trimmed/cased) = %v, want Simple", got)
	}
}
