package firewall

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGuardPathRejectsDotDot(t *testing.T) {
	root := t.TempDir()
	if _, err := GuardPath(root, "../etc/passwd"); err == nil {
		t.Fatal("expected rejection for .. traversal")
	}
}

func TestGuardPathRejectsAbsoluteOutsideRoot(t *testing.T) {
	root := t.TempDir()
	if _, err := GuardPath(root, "/etc/passwd"); err == nil {
		t.Fatal("expected rejection for absolute path outside sandbox_root")
	}
}

func TestGuardPathAllowsRelativeInsideRoot(t *testing.T) {
	root := t.TempDir()
	resolved, err := GuardPath(root, "notes/todo.txt")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if filepath.Dir(resolved) != filepath.Join(root, "notes") {
		t.Fatalf("unexpected resolved path: %s", resolved)
	}
}

func TestGuardPathRejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	outsideFile := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(outsideFile, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(root, "link.txt")
	if err := os.Symlink(outsideFile, link); err != nil {
		t.Skipf("symlinks unsupported in this environment: %v", err)
	}

	if _, err := GuardPath(root, "link.txt"); err == nil {
		t.Fatal("expected rejection for symlink escaping sandbox_root")
	}
}

func TestGuardPathRequiresSandboxRoot(t *testing.T) {
	if _, err := GuardPath("", "foo.txt"); err == nil {
		t.Fatal("expected error for empty sandbox_root")
	}
}
