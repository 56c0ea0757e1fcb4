package edit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"patchkit.dev/workspace"
)

func mustGuard(t *testing.T, root string) *workspace.Guard {
	t.Helper()
	g, err := workspace.NewGuard(root)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	return g
}

func TestVerificationMatches(t *testing.T) {
	v := ExactMatch("hello")
	if !v.Matches("hello") {
		t.Errorf("ExactMatch did not match identical text")
	}
	if v.Matches("world") {
		t.Errorf("ExactMatch matched different text")
	}

	h := HashMatch(hashOf("hello"))
	if !h.Matches("hello") {
		t.Errorf("HashMatch did not match identical text")
	}
	if h.Matches("world") {
		t.Errorf("HashMatch matched different text")
	}
}

func TestNewVerification_SelectsBySpanSize(t *testing.T) {
	small := NewVerification("short")
	if small.hashed {
		t.Errorf("NewVerification used a hash witness for a short span")
	}
	long := strings.Repeat("x", exactMatchMaxLen+1)
	big := NewVerification(long)
	if !big.hashed {
		t.Errorf("NewVerification used an exact witness for an oversized span")
	}
}

func TestApply_ReplacesSpan(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "f.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}
	g := mustGuard(t, root)

	e, err := New(path, 6, 11, "there", ExactMatch("world"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := e.Apply(g)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !result.Applied {
		t.Errorf("result.Applied = false, want true")
	}
	got, _ := os.ReadFile(path)
	if string(got) != "hello there" {
		t.Errorf("file contents = %q, want %q", got, "hello there")
	}
}

func TestApply_Idempotent(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "f.txt")
	if err := os.WriteFile(path, []byte("hello there"), 0o644); err != nil {
		t.Fatal(err)
	}
	g := mustGuard(t, root)

	e, err := New(path, 6, 11, "there", ExactMatch("there"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := e.Apply(g)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.Applied {
		t.Errorf("result.Applied = true for a no-op edit, want false")
	}
}

func TestApply_BeforeTextMismatch(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "f.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}
	g := mustGuard(t, root)

	e, err := New(path, 6, 11, "there", ExactMatch("WORLD"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := e.Apply(g); err == nil {
		t.Errorf("Apply succeeded despite a verification mismatch")
	}
}

func TestApplyBatch_OrdersAndDetectsOverlap(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "f.txt")
	if err := os.WriteFile(path, []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}
	g := mustGuard(t, root)

	e1, _ := New(path, 0, 2, "AB", ExactMatch("01"))
	e2, _ := New(path, 5, 7, "CD", ExactMatch("56"))
	results, err := ApplyBatch([]*Edit{e1, e2}, g)
	if err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1 (single file group)", len(results))
	}
	got, _ := os.ReadFile(path)
	if string(got) != "AB234CD789" {
		t.Errorf("file contents = %q, want %q", got, "AB234CD789")
	}

	e3, _ := New(path, 1, 6, "X", ExactMatch("B234C"))
	e4, _ := New(path, 4, 8, "Y", ExactMatch("4CD7"))
	if _, err := ApplyBatch([]*Edit{e3, e4}, g); err == nil {
		t.Errorf("ApplyBatch did not reject overlapping edits")
	}
}
