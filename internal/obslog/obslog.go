// Package obslog carries the handful of log attributes patchkit actually
// needs — a run id, the workspace root, and (once a patch is selected) a
// patch id — through a context.Context so the applicator and locators can
// log with slog without threading a *slog.Logger through every call.
//
// Unlike the teacher repo's skribe package, which accumulates an arbitrary
// []slog.Attr slice, obslog carries a fixed, typed scope: patchkit only
// ever has these three fields to log, so there is no need for an
// open-ended attrs list or an append-and-clone step on every call.
package obslog

import (
	"context"
	"log/slog"
)

// Scope is the log identity attached to a context: which run, which
// workspace, and (once known) which patch within it.
type Scope struct {
	RunID     string
	Workspace string
	PatchID   string
}

// Attrs renders s as slog attributes, omitting any field that is still
// unset (PatchID before a patch has been selected).
func (s Scope) Attrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, 3)
	if s.RunID != "" {
		attrs = append(attrs, slog.String("run_id", s.RunID))
	}
	if s.Workspace != "" {
		attrs = append(attrs, slog.String("workspace", s.Workspace))
	}
	if s.PatchID != "" {
		attrs = append(attrs, slog.String("patch_id", s.PatchID))
	}
	return attrs
}

type scopeKey struct{}

// WithRun opens a new scope for one ApplyPatches run, identified by runID
// and rooted at workspace. Call this once per run, before any per-patch
// context is derived from it.
func WithRun(ctx context.Context, runID, workspace string) context.Context {
	return context.WithValue(ctx, scopeKey{}, Scope{RunID: runID, Workspace: workspace})
}

// WithPatch derives a context scoped to one patch within ctx's run,
// carrying the enclosing run's RunID/Workspace forward alongside patchID.
func WithPatch(ctx context.Context, patchID string) context.Context {
	s := ScopeFrom(ctx)
	s.PatchID = patchID
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFrom returns the Scope accumulated in ctx, the zero Scope if none.
func ScopeFrom(ctx context.Context) Scope {
	s, _ := ctx.Value(scopeKey{}).(Scope)
	return s
}

// Wrap returns a slog.Handler that adds ctx's Scope to every record it
// handles, before delegating to h.
func Wrap(h slog.Handler) slog.Handler {
	return &scopeHandler{Handler: h}
}

type scopeHandler struct {
	slog.Handler
}

func (h *scopeHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(ScopeFrom(ctx).Attrs()...)
	return h.Handler.Handle(ctx, r)
}
