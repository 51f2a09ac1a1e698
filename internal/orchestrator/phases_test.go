package orchestrator

import (
	"path/filepath"
	"testing"

	"github.com/antigravity-dev/memoryos/internal/glyph"
)

func tempRecorder(t *testing.T) *Recorder {
	t.Helper()
	store, err := glyph.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewRecorder(store)
}

func TestCurrentPhaseDefaultsToImplementWhenNoHistory(t *testing.T) {
	r := tempRecorder(t)
	phase, err := r.CurrentPhase("orch-1")
	if err != nil {
		t.Fatal(err)
	}
	if phase != PhaseImplement {
		t.Fatalf("expected %q, got %q", PhaseImplement, phase)
	}
}

func TestRecordPhaseAdvancesCurrentPhase(t *testing.T) {
	r := tempRecorder(t)
	if _, err := r.RecordPhase("orch-1", "", PhaseImplement, ChoiceImplementDone, 0, ""); err != nil {
		t.Fatal(err)
	}
	phase, err := r.CurrentPhase("orch-1")
	if err != nil {
		t.Fatal(err)
	}
	if phase != ChoiceImplementDone {
		t.Fatalf("expected current phase %q, got %q", ChoiceImplementDone, phase)
	}
}

func TestHistoryReturnsChronologicalPhaseGlyphs(t *testing.T) {
	r := tempRecorder(t)
	if _, err := r.RecordPhase("orch-1", "", PhaseImplement, ChoiceImplementDone, 0, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := r.RecordPhase("orch-1", "", PhaseAudit, ChoiceAuditFail, 1, "sig-1"); err != nil {
		t.Fatal(err)
	}
	history, err := r.History("orch-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 phase glyphs, got %d", len(history))
	}
	if history[0].Choice != ChoiceImplementDone || history[1].Choice != ChoiceAuditFail {
		t.Fatalf("unexpected history order: %+v", history)
	}
}

func TestLastTwoAuditFailSignaturesReturnsMostRecentFirst(t *testing.T) {
	r := tempRecorder(t)
	if _, err := r.RecordPhase("orch-1", "", PhaseAudit, ChoiceAuditFail, 1, "sig-a"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.RecordPhase("orch-1", "", PhaseAudit, ChoiceAuditFail, 2, "sig-b"); err != nil {
		t.Fatal(err)
	}
	sigs, err := r.LastTwoAuditFailSignatures("orch-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(sigs) != 2 {
		t.Fatalf("expected 2 signatures, got %d: %v", len(sigs), sigs)
	}
	if sigs[0] != "sig-b" || sigs[1] != "sig-a" {
		t.Fatalf("expected [sig-b, sig-a], got %v", sigs)
	}
}

func TestOrchIDIsDeterministicPerObjective(t *testing.T) {
	id1 := OrchID("fix the flaky test")
	id2 := OrchID("fix the flaky test")
	id3 := OrchID("fix a different test")
	if id1 != id2 {
		t.Fatalf("expected same objective to produce same orch_id: %q vs %q", id1, id2)
	}
	if id1 == id3 {
		t.Fatal("expected different objectives to produce different orch_ids")
	}
	if Topic(id1) != "orch_"+id1 {
		t.Fatalf("unexpected topic: %q", Topic(id1))
	}
}
