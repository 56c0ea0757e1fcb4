package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidate_InsideRoot(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	g, err := NewGuard(root)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	canon, err := g.Validate(filepath.Join(root, "a.go"))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if canon == "" {
		t.Errorf("Validate returned empty canonical path")
	}
}

func TestValidate_OutsideRoot(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()
	g, err := NewGuard(root)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	if _, err := g.Validate(filepath.Join(other, "a.go")); err == nil {
		t.Errorf("Validate did not reject a path outside the workspace root")
	}
}

func TestValidate_NotYetExistingFinalComponent(t *testing.T) {
	root := t.TempDir()
	g, err := NewGuard(root)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	if _, err := g.Validate(filepath.Join(root, "new.go")); err != nil {
		t.Errorf("Validate rejected a not-yet-existing path inside the root: %v", err)
	}
}

func TestValidate_ForbiddenAncestor(t *testing.T) {
	root := t.TempDir()
	forbidden := filepath.Join(root, "cache")
	if err := os.MkdirAll(forbidden, 0o755); err != nil {
		t.Fatal(err)
	}
	g, err := NewGuard(root)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	g.AddForbidden(forbidden)
	if _, err := g.Validate(filepath.Join(forbidden, "x.go")); err == nil {
		t.Errorf("Validate did not reject a path under a forbidden ancestor")
	}
}
