package obslog

import (
	"context"
	"log/slog"
	"testing"
)

func TestWithPatch_CarriesRunScopeForward(t *testing.T) {
	ctx := context.Background()
	ctx = WithRun(ctx, "abc", "/work")
	ctx = WithPatch(ctx, "xyz")

	s := ScopeFrom(ctx)
	if s.RunID != "abc" || s.Workspace != "/work" || s.PatchID != "xyz" {
		t.Fatalf("ScopeFrom = %+v, want {abc /work xyz}", s)
	}
}

func TestWithPatch_DoesNotMutateParentContext(t *testing.T) {
	parent := context.Background()
	parent = WithRun(parent, "run1", "/a")
	child := WithPatch(parent, "p1")

	if ScopeFrom(parent).PatchID != "" {
		t.Errorf("parent context was mutated by a derived WithPatch call: %+v", ScopeFrom(parent))
	}
	if ScopeFrom(child).PatchID != "p1" {
		t.Errorf("ScopeFrom(child).PatchID = %q, want p1", ScopeFrom(child).PatchID)
	}
}

func TestScope_Attrs_OmitsUnsetFields(t *testing.T) {
	attrs := Scope{RunID: "abc"}.Attrs()
	if len(attrs) != 1 || attrs[0].Key != "run_id" {
		t.Errorf("Attrs = %v, want just [run_id]", attrs)
	}
}

func TestWrap_InjectsScopeAttrs(t *testing.T) {
	var captured []slog.Attr
	base := slog.NewTextHandler(discard{}, nil)
	h := Wrap(recordingHandler{Handler: base, out: &captured})

	ctx := WithRun(context.Background(), "abc", "/work")
	logger := slog.New(h)
	logger.InfoContext(ctx, "hello")

	found := false
	for _, a := range captured {
		if a.Key == "run_id" && a.Value.String() == "abc" {
			found = true
		}
	}
	if !found {
		t.Errorf("Wrap did not propagate the run scope into the record: %v", captured)
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

type recordingHandler struct {
	slog.Handler
	out *[]slog.Attr
}

func (h recordingHandler) Handle(ctx context.Context, r slog.Record) error {
	r.Attrs(func(a slog.Attr) bool {
		*h.out = append(*h.out, a)
		return true
	})
	return h.Handler.Handle(ctx, r)
}

func (h recordingHandler) Enabled(ctx context.Context, level slog.Level) bool { return true }
