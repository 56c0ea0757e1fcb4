package structural

import (
	"testing"

	"patchkit.dev/patcherr"
)

func TestParseSExpr_Function(t *testing.T) {
	target, err := ParseSExpr(`(function name: "resolve")`)
	if err != nil {
		t.Fatalf("ParseSExpr: %v", err)
	}
	want := Function("resolve")
	if target != want {
		t.Errorf("ParseSExpr = %+v, want %+v", target, want)
	}
}

func TestParseSExpr_Struct(t *testing.T) {
	target, err := ParseSExpr(`(struct name: "Widget")`)
	if err != nil {
		t.Fatalf("ParseSExpr: %v", err)
	}
	if target != Struct("Widget") {
		t.Errorf("ParseSExpr = %+v, want %+v", target, Struct("Widget"))
	}
}

func TestParseSExpr_Impl(t *testing.T) {
	target, err := ParseSExpr(`(impl type: "Widget" trait: "Validator")`)
	if err != nil {
		t.Fatalf("ParseSExpr: %v", err)
	}
	if target != Impl("Widget", "Validator") {
		t.Errorf("ParseSExpr = %+v, want %+v", target, Impl("Widget", "Validator"))
	}
}

func TestParseSExpr_Const(t *testing.T) {
	target, err := ParseSExpr(`(const name: "MaxRetries")`)
	if err != nil {
		t.Fatalf("ParseSExpr: %v", err)
	}
	if target != Const("MaxRetries") {
		t.Errorf("ParseSExpr = %+v, want %+v", target, Const("MaxRetries"))
	}
}

func TestParseSExpr_ModuleIsUnsupported(t *testing.T) {
	_, err := ParseSExpr(`(module path: "x")`)
	if err == nil {
		t.Fatalf("ParseSExpr accepted a module selector")
	}
	if !patcherr.Is(err, patcherr.Unsupported) {
		t.Errorf("ParseSExpr(module) error = %v, want Unsupported", err)
	}
}

func TestParseSExpr_UnknownConstruct(t *testing.T) {
	_, err := ParseSExpr(`(enum name: "x")`)
	if err == nil {
		t.Fatalf("ParseSExpr accepted an unknown construct kind")
	}
	if !patcherr.Is(err, patcherr.InvalidConfig) {
		t.Errorf("ParseSExpr(enum) error = %v, want InvalidConfig", err)
	}
}

func TestParseSExpr_Empty(t *testing.T) {
	if _, err := ParseSExpr(`()`); err == nil {
		t.Errorf("ParseSExpr accepted an empty query")
	}
}
