package runtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/antigravity-dev/memoryos/internal/firewall"
	"github.com/antigravity-dev/memoryos/internal/glyph"
)

func tempFirewall(t *testing.T) (*firewall.Firewall, *glyph.Store) {
	t.Helper()
	store, err := glyph.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	fw, err := firewall.New(store, firewall.Budget{})
	if err != nil {
		t.Fatalf("new firewall: %v", err)
	}
	return fw, store
}

func TestDispatchDoneNeverTouchesFirewall(t *testing.T) {
	out := Dispatch(context.Background(), Action{Kind: ActionDone, Summary: "all set"}, DispatchDeps{})
	if out.Decision != firewall.Allow || out.Output != "all set" {
		t.Errorf("got %+v", out)
	}
}

func TestDispatchListFilesAllowedWithinSandbox(t *testing.T) {
	fw, _ := tempFirewall(t)
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	out := Dispatch(context.Background(), Action{Kind: ActionListFiles, Path: "."}, DispatchDeps{
		FW:          fw,
		ActorRole:   "worker",
		SandboxRoot: root,
	})
	if out.Decision != firewall.Allow {
		t.Fatalf("decision = %q, err = %v", out.Decision, out.Err)
	}
	if out.Output != "a.txt" {
		t.Errorf("Output = %q", out.Output)
	}
}

func TestDispatchReadFileEscapingSandboxDenied(t *testing.T) {
	fw, _ := tempFirewall(t)
	root := t.TempDir()

	out := Dispatch(context.Background(), Action{Kind: ActionReadFile, Path: "../../etc/passwd"}, DispatchDeps{
		FW:          fw,
		ActorRole:   "worker",
		SandboxRoot: root,
	})
	if out.Decision != firewall.Deny {
		t.Errorf("Decision = %q, want deny", out.Decision)
	}
}

func TestDispatchEditFileWritesContent(t *testing.T) {
	fw, _ := tempFirewall(t)
	root := t.TempDir()

	out := Dispatch(context.Background(), Action{Kind: ActionEditFile, Path: "out.txt", Content: "hello"}, DispatchDeps{
		FW:          fw,
		ActorRole:   "worker",
		SandboxRoot: root,
	})
	if out.Decision != firewall.Allow || out.Err != nil {
		t.Fatalf("got %+v", out)
	}
	data, err := os.ReadFile(filepath.Join(root, "out.txt"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("content = %q", data)
	}
}

func TestDispatchWriteMemoryAppendsGlyph(t *testing.T) {
	fw, store := tempFirewall(t)

	out := Dispatch(context.Background(), Action{
		Kind: ActionWriteMemory, MemoryType: glyph.TypeFact, Topic: "build", Text: "ci is green",
	}, DispatchDeps{FW: fw, Store: store, ActorRole: "worker"})
	if out.Decision != firewall.Allow || out.Err != nil {
		t.Fatalf("got %+v", out)
	}

	glyphs, err := store.QueryWhere(`type = ? AND status = 'active'`, `id DESC`, 1, glyph.TypeFact)
	if err != nil || len(glyphs) != 1 {
		t.Fatalf("expected one fact glyph, got %d err=%v", len(glyphs), err)
	}
	if glyphs[0].Text != "ci is green" {
		t.Errorf("Text = %q", glyphs[0].Text)
	}
}

func TestDispatchExecIsNotExecutedInRuntime(t *testing.T) {
	fw, _ := tempFirewall(t)
	out := Dispatch(context.Background(), Action{Kind: ActionExec, Command: "rm -rf /"}, DispatchDeps{
		FW:        fw,
		ActorRole: "operator",
	})
	if out.Err == nil {
		t.Fatal("expected exec to report it is not executed in-runtime")
	}
}
