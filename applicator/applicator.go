// Package applicator implements the top-level orchestrator from spec.md
// §4.9: for each patch, version-gate, locate, plan an Edit without any
// I/O mutation, then batch-apply per file and report a terminal status
// per patch. It never aborts a run because one patch failed.
package applicator

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/dustin/go-humanize"

	"patchkit.dev/cst"
	"patchkit.dev/edit"
	"patchkit.dev/internal/obslog"
	"patchkit.dev/internal/runid"
	"patchkit.dev/locator/pattern"
	"patchkit.dev/locator/structural"
	"patchkit.dev/locator/tomledit"
	"patchkit.dev/patchconfig"
	"patchkit.dev/patcherr"
	"patchkit.dev/semverfilter"
	"patchkit.dev/validator"
	"patchkit.dev/workspace"
)

// Status is a patch's terminal outcome, per spec.md §4.9's state machine.
type Status int

const (
	StatusApplied Status = iota
	StatusAlreadyApplied
	StatusSkippedVersion
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusApplied:
		return "Applied"
	case StatusAlreadyApplied:
		return "AlreadyApplied"
	case StatusSkippedVersion:
		return "SkippedVersion"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// PatchResult is one patch's outcome.
type PatchResult struct {
	ID           string
	Status       Status
	File         string
	Reason       string
	BytesChanged int // signed; 0 for patches that never reached Applied
}

// FormatBytesChanged renders a signed byte delta as a human-readable
// count (e.g. "+152 B", "-1.3 kB"), the same "make a raw integer legible"
// role humanize.Comma plays for token counts in the teacher's termui.
func FormatBytesChanged(n int) string {
	sign := "+"
	abs := n
	if n < 0 {
		sign = "-"
		abs = -n
	}
	return sign + humanize.Bytes(uint64(abs))
}

// ApplyPatches runs every patch in cfg against workspaceRoot, gated by
// workspaceVersion, and returns one PatchResult per patch in declaration
// order. This is the `apply_patches` external interface of spec.md §6.
func ApplyPatches(ctx context.Context, cfg *patchconfig.PatchConfig, workspaceRoot, workspaceVersion string) []PatchResult {
	guard, err := workspace.NewGuard(workspaceRoot)
	if err != nil {
		results := make([]PatchResult, len(cfg.Patches))
		for i, p := range cfg.Patches {
			results[i] = PatchResult{ID: p.ID, Status: StatusFailed, Reason: err.Error()}
		}
		return results
	}

	ctx = obslog.WithRun(ctx, runid.New(), guard.Root())
	slog.InfoContext(ctx, "applying patches", slog.Int("count", len(cfg.Patches)))

	plans := make([]*plan, len(cfg.Patches))
	preimages := map[string][]byte{}
	fileIsToml := map[string]bool{}

	for i, p := range cfg.Patches {
		plans[i] = planPatch(ctx, guard, cfg.Meta, p, workspaceVersion, preimages, fileIsToml)
	}

	commitByFile(ctx, guard, plans, preimages, fileIsToml)

	results := make([]PatchResult, len(plans))
	for i, pl := range plans {
		results[i] = PatchResult{ID: pl.patch.ID, Status: pl.status, File: pl.file, Reason: pl.reason, BytesChanged: pl.bytesChanged}
	}
	return results
}

// plan is one patch's progress through Pending → VersionChecked →
// Located → Planned → Verified → (terminal). A nil edit with a non-Failed
// status means the patch reached a terminal state during planning itself
// (SkippedVersion, or AlreadyApplied via a TOML NoOp / idempotent
// delete); a non-nil edit means it still needs batch commit.
type plan struct {
	patch        patchconfig.Patch
	file         string
	edit         *edit.Edit
	status       Status
	reason       string
	bytesChanged int
}

func failPlan(p patchconfig.Patch, file string, err error) *plan {
	return &plan{patch: p, file: file, status: StatusFailed, reason: err.Error()}
}

func planPatch(ctx context.Context, guard *workspace.Guard, meta patchconfig.Meta, p patchconfig.Patch, workspaceVersion string, preimages map[string][]byte, fileIsToml map[string]bool) *plan {
	ctx = obslog.WithPatch(ctx, p.ID)

	ok, err := semverfilter.Matches(workspaceVersion, meta.VersionRange)
	if err != nil {
		return failPlan(p, "", err)
	}
	if !ok {
		slog.DebugContext(ctx, "skipping patch: version requirement not satisfied", slog.String("version_range", meta.VersionRange))
		return &plan{patch: p, status: StatusSkippedVersion, reason: "workspace version does not satisfy " + meta.VersionRange}
	}

	rawPath := p.File
	if meta.WorkspaceRelativeOrDefault() && !filepath.IsAbs(rawPath) {
		rawPath = filepath.Join(guard.Root(), rawPath)
	}
	canon, err := guard.Validate(rawPath)
	if err != nil {
		return failPlan(p, "", err)
	}

	isToml := p.Query.IsToml()
	if existing, ok := fileIsToml[canon]; ok && existing != isToml {
		return failPlan(p, canon, patcherr.New(patcherr.InvalidConfig, "patches targeting "+canon+" mix TOML and source queries"))
	}
	fileIsToml[canon] = isToml

	src, ok := preimages[canon]
	if !ok {
		src, err = os.ReadFile(canon)
		if err != nil {
			return failPlan(p, canon, patcherr.Wrap(patcherr.IO, "reading "+canon, err))
		}
		preimages[canon] = src
	}

	if isToml {
		return planToml(ctx, canon, src, p)
	}
	return planSource(ctx, canon, src, p)
}

func planToml(ctx context.Context, canon string, src []byte, p patchconfig.Patch) *plan {
	q := tomledit.Query{
		Section:       tomledit.ParseSectionPath(p.Query.Section),
		Key:           p.Query.Key,
		EnsureAbsent:  boolOr(p.Query.EnsureAbsent),
		EnsurePresent: boolOr(p.Query.EnsurePresent),
	}
	op, err := tomlOperation(p.Operation)
	if err != nil {
		return failPlan(p, canon, err)
	}
	result, err := tomledit.Plan(src, q, op)
	if err != nil {
		return failPlan(p, canon, err)
	}
	if result.NoOp {
		slog.DebugContext(ctx, "toml plan is a no-op", slog.String("reason", result.Reason))
		return &plan{patch: p, file: canon, status: StatusAlreadyApplied, reason: result.Reason}
	}
	result.Edit.Path = canon
	return verifyAndFinish(p, canon, src, result.Edit)
}

func tomlOperation(o patchconfig.OperationConfig) (tomledit.Operation, error) {
	switch o.Type {
	case "insert-section":
		return tomledit.Operation{Kind: tomledit.OpInsertSection, Text: o.Text, Positioning: tomlPositioning(o)}, nil
	case "append-section":
		return tomledit.Operation{Kind: tomledit.OpAppendSection, Text: o.Text}, nil
	case "replace-value":
		return tomledit.Operation{Kind: tomledit.OpReplaceValue, Value: o.Value}, nil
	case "replace-key":
		return tomledit.Operation{Kind: tomledit.OpReplaceKey, NewKey: o.NewKey}, nil
	case "delete-section":
		return tomledit.Operation{Kind: tomledit.OpDeleteSection}, nil
	default:
		return tomledit.Operation{}, patcherr.New(patcherr.InvalidConfig, "unsupported TOML operation "+o.Type)
	}
}

func tomlPositioning(o patchconfig.OperationConfig) tomledit.Positioning {
	return tomledit.Positioning{
		AfterSection:  tomledit.ParseSectionPath(o.AfterSection),
		BeforeSection: tomledit.ParseSectionPath(o.BeforeSection),
		AtEnd:         o.AtEnd,
		AtBeginning:   o.AtBeginning,
	}
}

func planSource(ctx context.Context, canon string, src []byte, p patchconfig.Patch) *plan {
	tree, err := cst.Parse(canon, src)
	if err != nil {
		return failPlan(p, canon, patcherr.Wrap(patcherr.IO, "parsing "+canon, err))
	}

	switch p.Query.Type {
	case "ast-grep":
		return planPattern(ctx, canon, src, tree, p)
	case "tree-sitter":
		return planStructural(ctx, canon, src, tree, p)
	default:
		return failPlan(p, canon, patcherr.New(patcherr.InvalidConfig, "unknown query type "+p.Query.Type))
	}
}

func planPattern(ctx context.Context, canon string, src []byte, tree *cst.Tree, p patchconfig.Patch) *plan {
	pat, err := pattern.Compile(p.Query.Pattern)
	if err != nil {
		return failPlan(p, canon, err)
	}
	matches, err := pat.FindAll(tree)
	if err != nil {
		return failPlan(p, canon, err)
	}
	if len(matches) == 0 && p.Operation.Type == "delete" {
		slog.DebugContext(ctx, "pattern no longer matches: treating delete as already applied")
		return &plan{patch: p, file: canon, status: StatusAlreadyApplied, reason: "pattern no longer matches"}
	}
	m, err := validator.Unique(matches, "pattern match")
	if err != nil {
		return failPlan(p, canon, err)
	}

	var start, end int
	var newText string
	switch p.Operation.Type {
	case "replace":
		if err := validator.ValidateSnippet(p.Operation.Text, snippetCategoryFor(pat.Category)); err != nil {
			return failPlan(p, canon, err)
		}
		start, end, newText = m.Start, m.End, p.Operation.Text

	case "replace-capture":
		node, ok := m.Captures[p.Operation.Capture]
		if !ok {
			return failPlan(p, canon, patcherr.New(patcherr.NoMatch, "capture "+p.Operation.Capture+" not bound"))
		}
		if err := validator.ValidateSnippet(p.Operation.Text, validator.CategoryExpression); err != nil {
			return failPlan(p, canon, err)
		}
		start, end = tree.Offset(node.Pos()), tree.Offset(node.End())
		newText = p.Operation.Text

	case "delete":
		start, end = m.Start, m.End
		newText = deletionText(p.Operation.InsertComment)

	default:
		return failPlan(p, canon, patcherr.New(patcherr.InvalidConfig, "unsupported source operation "+p.Operation.Type))
	}

	e, err := edit.New(canon, start, end, newText, edit.NewVerification(string(src[start:end])))
	if err != nil {
		return failPlan(p, canon, err)
	}
	return verifyAndFinish(p, canon, src, e)
}

func planStructural(ctx context.Context, canon string, src []byte, tree *cst.Tree, p patchconfig.Patch) *plan {
	target, err := structural.ParseSExpr(p.Query.Pattern)
	if err != nil {
		return failPlan(p, canon, err)
	}
	span, err := structural.Locate(tree, target)
	if err != nil {
		if patcherr.Is(err, patcherr.NoMatch) && p.Operation.Type == "delete" {
			slog.DebugContext(ctx, "construct no longer present: treating delete as already applied")
			return &plan{patch: p, file: canon, status: StatusAlreadyApplied, reason: "construct no longer present"}
		}
		return failPlan(p, canon, err)
	}

	var newText string
	switch p.Operation.Type {
	case "replace":
		if err := validator.ValidateSnippet(p.Operation.Text, validator.CategoryItem); err != nil {
			return failPlan(p, canon, err)
		}
		newText = p.Operation.Text
	case "delete":
		newText = deletionText(p.Operation.InsertComment)
	default:
		return failPlan(p, canon, patcherr.New(patcherr.InvalidConfig, "unsupported Cst operation "+p.Operation.Type))
	}

	e, err := edit.New(canon, span.Start, span.End, newText, edit.NewVerification(string(src[span.Start:span.End])))
	if err != nil {
		return failPlan(p, canon, err)
	}
	return verifyAndFinish(p, canon, src, e)
}

func deletionText(marker string) string {
	if marker == "" {
		return ""
	}
	return "// " + marker + "\n"
}

func snippetCategoryFor(c pattern.Category) validator.SnippetCategory {
	switch c {
	case pattern.CategoryExpr:
		return validator.CategoryExpression
	case pattern.CategoryStmt:
		return validator.CategoryStatement
	case pattern.CategoryFile:
		return validator.CategoryFile
	default:
		return validator.CategoryItem
	}
}

// verifyAndFinish applies any explicit Verify witness from the patch
// config, checks it and idempotency against the shared pre-image (both
// planning-time checks, per spec.md §4.9 steps 4-5 — no I/O yet), and
// returns a terminal AlreadyApplied/Failed plan or a Planned one still
// carrying its Edit for commitByFile.
func verifyAndFinish(p patchconfig.Patch, canon string, src []byte, e *edit.Edit) *plan {
	if p.Verify != nil {
		v, err := buildVerification(*p.Verify)
		if err != nil {
			return failPlan(p, canon, err)
		}
		e.Verify = v
	}
	before := string(src[e.Start:e.End])
	if !e.Verify.Matches(before) {
		return failPlan(p, canon, patcherr.New(patcherr.BeforeTextMismatch, "pre-image does not match verification witness"))
	}
	if before == e.NewText {
		return &plan{patch: p, file: canon, status: StatusAlreadyApplied}
	}
	delta := len(e.NewText) - (e.End - e.Start)
	return &plan{patch: p, file: canon, edit: e, status: StatusApplied, bytesChanged: delta}
}

func buildVerification(v patchconfig.VerifyConfig) (edit.Verification, error) {
	switch v.Method {
	case "exact_match":
		return edit.ExactMatch(v.ExpectedText), nil
	case "hash":
		h, err := strconv.ParseUint(v.Expected, 16, 64)
		if err != nil {
			return edit.Verification{}, patcherr.Wrap(patcherr.InvalidConfig, "parsing expected hash", err)
		}
		return edit.HashMatch(h), nil
	default:
		return edit.Verification{}, patcherr.New(patcherr.InvalidConfig, "unknown verify method "+v.Method)
	}
}

func boolOr(p *bool) bool { return p != nil && *p }

// commitByFile groups every plan that still carries an Edit by file,
// applies each file's group as one atomic batch, and rolls a source
// file's batch back to its pre-image if the edited buffer introduces new
// parse errors (spec.md §4.9 step 7). TOML files skip this check: the
// re-parse oracle already ran per edit inside tomledit.Plan.
func commitByFile(ctx context.Context, guard *workspace.Guard, plans []*plan, preimages map[string][]byte, fileIsToml map[string]bool) {
	byFile := map[string][]*plan{}
	var order []string
	for _, pl := range plans {
		if pl.edit == nil {
			continue
		}
		if _, ok := byFile[pl.file]; !ok {
			order = append(order, pl.file)
		}
		byFile[pl.file] = append(byFile[pl.file], pl)
	}
	sort.Strings(order) // deterministic across runs; cross-file ordering is unspecified per spec.md §5

	for _, file := range order {
		group := byFile[file]
		edits := make([]*edit.Edit, len(group))
		for i, pl := range group {
			edits[i] = pl.edit
		}

		if !fileIsToml[file] {
			candidate, err := spliceCandidate(preimages[file], edits)
			if err != nil {
				failAll(group, err)
				continue
			}
			if err := validator.PostParse(file, preimages[file], candidate); err != nil {
				slog.ErrorContext(ctx, "rolling back batch: post-edit parse errors introduced", slog.String("file", file))
				failAll(group, err)
				continue
			}
		}

		if _, err := edit.ApplyBatch(edits, guard); err != nil {
			failAll(group, err)
			continue
		}
		for _, pl := range group {
			slog.InfoContext(ctx, "applied patch", slog.String("patch_id", pl.patch.ID), slog.String("file", pl.file),
				slog.String("bytes_changed", FormatBytesChanged(pl.bytesChanged)))
		}
	}
}

func failAll(group []*plan, err error) {
	for _, pl := range group {
		pl.status = StatusFailed
		pl.reason = err.Error()
		pl.edit = nil
		pl.bytesChanged = 0
	}
}

// spliceCandidate replicates edit.ApplyBatch's splice-without-write half
// so the post-edit buffer can be validated before anything is committed
// to disk.
func spliceCandidate(orig []byte, edits []*edit.Edit) ([]byte, error) {
	sorted := append([]*edit.Edit(nil), edits...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start > sorted[j].Start })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].End > sorted[i-1].Start {
			return nil, patcherr.New(patcherr.OverlappingEdits, "overlapping edit spans in the same file batch")
		}
	}
	content := orig
	for _, e := range sorted {
		if e.End > len(content) {
			return nil, patcherr.New(patcherr.InvalidByteRange, "edit span exceeds file length")
		}
		spliced := make([]byte, 0, len(content)-(e.End-e.Start)+len(e.NewText))
		spliced = append(spliced, content[:e.Start]...)
		spliced = append(spliced, e.NewText...)
		spliced = append(spliced, content[e.End:]...)
		content = spliced
	}
	return content, nil
}
