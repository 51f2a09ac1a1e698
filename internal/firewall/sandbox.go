package firewall

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SandboxViolation explains why a path operation was rejected.
type SandboxViolation struct {
	Path   string
	Reason string
}

func (v *SandboxViolation) Error() string {
	return fmt.Sprintf("firewall: sandbox violation for %q: %s", v.Path, v.Reason)
}

// GuardPath resolves target against sandboxRoot and rejects:
//   - paths containing ".." or non-normalized components,
//   - symlinks whose targets escape sandbox_root,
//   - any absolute path outside sandbox_root,
//
// per spec.md §4.5. It returns the resolved absolute path on success.
func GuardPath(sandboxRoot, target string) (string, error) {
	if strings.TrimSpace(sandboxRoot) == "" {
		return "", fmt.Errorf("firewall: sandbox_root is required")
	}
	root, err := filepath.Abs(sandboxRoot)
	if err != nil {
		return "", fmt.Errorf("firewall: resolve sandbox_root: %w", err)
	}

	if containsDotDot(target) {
		return "", &SandboxViolation{Path: target, Reason: "path contains .. components"}
	}
	clean := filepath.Clean(target)
	if target != "" && clean != target {
		return "", &SandboxViolation{Path: target, Reason: "path is not normalized"}
	}

	var resolved string
	if filepath.IsAbs(clean) {
		resolved = clean
	} else {
		resolved = filepath.Join(root, clean)
	}

	if !withinRoot(root, resolved) {
		return "", &SandboxViolation{Path: target, Reason: "absolute path escapes sandbox_root"}
	}

	if real, err := filepath.EvalSymlinks(resolved); err == nil {
		// Only enforced when the path already exists; a not-yet-created
		// write target has nothing to resolve.
		if !withinRoot(root, real) {
			return "", &SandboxViolation{Path: target, Reason: "symlink target escapes sandbox_root"}
		}
		return real, nil
	}

	return resolved, nil
}

func containsDotDot(p string) bool {
	for _, part := range strings.Split(filepath.ToSlash(p), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

func withinRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}
