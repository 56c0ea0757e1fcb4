package structural

import (
	"testing"

	"patchkit.dev/cst"
	"patchkit.dev/patcherr"
)

const src = `package p

// Widget is a thing.
type Widget struct {
	Name string
}

const MaxWidgets = 10

func resolve(id string) (*Widget, error) {
	return nil, nil
}

func (w *Widget) Validate() error {
	return nil
}
`

func parse(t *testing.T) *cst.Tree {
	t.Helper()
	tree, err := cst.Parse("p.go", []byte(src))
	if err != nil {
		t.Fatalf("cst.Parse: %v", err)
	}
	return tree
}

func TestLocate_Function(t *testing.T) {
	tree := parse(t)
	span, err := Locate(tree, Function("resolve"))
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	got := src[span.Start:span.End]
	if got[:4] != "func" {
		t.Errorf("span does not start at the func keyword: %q", got)
	}
}

func TestLocate_Struct(t *testing.T) {
	tree := parse(t)
	span, err := Locate(tree, Struct("Widget"))
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if src[span.Start:span.End] == "" {
		t.Errorf("empty span for Widget struct")
	}
}

func TestLocate_Const(t *testing.T) {
	tree := parse(t)
	span, err := Locate(tree, Const("MaxWidgets"))
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if src[span.Start:span.End] != "MaxWidgets = 10" {
		t.Errorf("span = %q, want %q", src[span.Start:span.End], "MaxWidgets = 10")
	}
}

func TestLocate_Impl(t *testing.T) {
	tree := parse(t)
	span, err := Locate(tree, Impl("Widget", ""))
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if src[span.Start:span.Start+4] != "func" {
		t.Errorf("span does not start at func: %q", src[span.Start:span.End])
	}
}

func TestLocate_NoMatch(t *testing.T) {
	tree := parse(t)
	_, err := Locate(tree, Function("doesNotExist"))
	if !patcherr.Is(err, patcherr.NoMatch) {
		t.Errorf("Locate error = %v, want NoMatch", err)
	}
}

func TestLocate_Ambiguous(t *testing.T) {
	dup := `package p

func helper() {}
func helper() {}
`
	tree, err := cst.Parse("dup.go", []byte(dup))
	if err != nil {
		t.Fatalf("cst.Parse: %v", err)
	}
	_, err = Locate(tree, Function("helper"))
	if !patcherr.Is(err, patcherr.AmbiguousMatch) {
		t.Errorf("Locate error = %v, want AmbiguousMatch", err)
	}
}
