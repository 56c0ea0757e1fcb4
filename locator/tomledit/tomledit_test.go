package tomledit

import "testing"

const cargoToml = `[package]
name = "widget"
version = "0.1.0"

[dependencies]
serde = "1.0"

[dev-dependencies]
criterion = "0.5"
`

func applyPlan(t *testing.T, src string, q Query, op Operation) (string, Plan) {
	t.Helper()
	plan, err := Plan([]byte(src), q, op)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.NoOp {
		return src, plan
	}
	e := plan.Edit
	out := src[:e.Start] + e.NewText + src[e.End:]
	return out, plan
}

func TestPlan_ReplaceValue(t *testing.T) {
	out, _ := applyPlan(t, cargoToml,
		Query{Section: ParseSectionPath("dependencies"), Key: "serde"},
		Operation{Kind: OpReplaceValue, Value: `"1.2.3"`})
	if !contains(out, `serde = "1.2.3"`) {
		t.Errorf("output missing updated value:\n%s", out)
	}
}

func TestPlan_ReplaceValue_NoOpWhenAlreadyApplied(t *testing.T) {
	_, plan := applyPlan(t, cargoToml,
		Query{Section: ParseSectionPath("dependencies"), Key: "serde"},
		Operation{Kind: OpReplaceValue, Value: `"1.0"`})
	if !plan.NoOp {
		t.Errorf("Plan did not report a no-op for an already-applied value")
	}
}

func TestPlan_InsertSection_AfterSection(t *testing.T) {
	out, _ := applyPlan(t, cargoToml,
		Query{Section: ParseSectionPath("dependencies.tokio")},
		Operation{
			Kind:        OpInsertSection,
			Text:        "[dependencies.tokio]\nversion = \"1\"",
			Positioning: Positioning{AfterSection: ParseSectionPath("dependencies")},
		})
	if !contains(out, "[dependencies.tokio]") {
		t.Errorf("output missing inserted section:\n%s", out)
	}
	if indexOf(out, "[dependencies.tokio]") < indexOf(out, "[dependencies]") {
		t.Errorf("inserted section was not placed after [dependencies]")
	}
	if indexOf(out, "[dependencies.tokio]") > indexOf(out, "[dev-dependencies]") {
		t.Errorf("inserted section was not placed before [dev-dependencies]")
	}
}

// TestPlan_InsertSection_BlankLineSeparator is spec.md §8 scenario 3,
// checked byte-for-byte: the inserted section must be separated from its
// preceding neighbor by exactly one blank line, and a second run against
// the already-patched file must report AlreadyApplied.
func TestPlan_InsertSection_BlankLineSeparator(t *testing.T) {
	src := "[profile.release]\nopt-level = 3\n"
	q := Query{Section: ParseSectionPath("profile.fast"), EnsureAbsent: true}
	op := Operation{
		Kind:        OpInsertSection,
		Text:        "[profile.fast]\ninherits = \"release\"\nlto = \"fat\"\n",
		Positioning: Positioning{AfterSection: ParseSectionPath("profile.release")},
	}

	out, plan := applyPlan(t, src, q, op)
	if plan.NoOp {
		t.Fatalf("first run reported NoOp, want an applied edit")
	}
	want := "[profile.release]\nopt-level = 3\n\n[profile.fast]\ninherits = \"release\"\nlto = \"fat\"\n"
	if out != want {
		t.Fatalf("output =\n%q\nwant\n%q", out, want)
	}

	_, plan2 := applyPlan(t, out, q, op)
	if !plan2.NoOp {
		t.Errorf("second run did not report NoOp (AlreadyApplied) for an existing section")
	}
}

func TestPlan_InsertSection_BeforeSection_BlankLineSeparator(t *testing.T) {
	src := "[package]\nname = \"widget\"\n\n[dependencies]\nserde = \"1.0\"\n"
	out, _ := applyPlan(t, src,
		Query{Section: ParseSectionPath("meta")},
		Operation{
			Kind:        OpInsertSection,
			Text:        "[meta]\nauthor = \"me\"\n",
			Positioning: Positioning{BeforeSection: ParseSectionPath("dependencies")},
		})
	want := "[package]\nname = \"widget\"\n\n[meta]\nauthor = \"me\"\n\n[dependencies]\nserde = \"1.0\"\n"
	if out != want {
		t.Fatalf("output =\n%q\nwant\n%q", out, want)
	}
}

func TestPlan_InsertSection_AlreadyExists(t *testing.T) {
	_, err := Plan([]byte(cargoToml),
		Query{Section: ParseSectionPath("dependencies")},
		Operation{Kind: OpInsertSection, Text: "[dependencies]\n", Positioning: Positioning{AtEnd: true}})
	if err == nil {
		t.Errorf("Plan did not reject inserting a section that already exists")
	}
}

func TestPlan_InsertSection_EnsureAbsentNoOp(t *testing.T) {
	_, plan := applyPlan(t, cargoToml,
		Query{Section: ParseSectionPath("dependencies"), EnsureAbsent: true},
		Operation{Kind: OpInsertSection, Text: "[dependencies]\n", Positioning: Positioning{AtEnd: true}})
	if !plan.NoOp {
		t.Errorf("Plan did not report NoOp for ensure_absent against an existing section")
	}
}

func TestPlan_DeleteSection(t *testing.T) {
	out, _ := applyPlan(t, cargoToml,
		Query{Section: ParseSectionPath("dev-dependencies")},
		Operation{Kind: OpDeleteSection})
	if contains(out, "[dev-dependencies]") {
		t.Errorf("output still contains deleted section:\n%s", out)
	}
}

func TestPlan_DeleteSection_AlreadyAbsent(t *testing.T) {
	_, plan := applyPlan(t, cargoToml,
		Query{Section: ParseSectionPath("does-not-exist"), EnsureAbsent: true},
		Operation{Kind: OpDeleteSection})
	if !plan.NoOp {
		t.Errorf("Plan did not report NoOp deleting an already-absent section")
	}
}

func TestPlan_ReplaceKey(t *testing.T) {
	out, _ := applyPlan(t, cargoToml,
		Query{Section: ParseSectionPath("package"), Key: "name"},
		Operation{Kind: OpReplaceKey, NewKey: "pkg_name"})
	if !contains(out, "pkg_name = \"widget\"") {
		t.Errorf("output missing renamed key:\n%s", out)
	}
}

func TestPlan_SectionNotFound(t *testing.T) {
	_, err := Plan([]byte(cargoToml),
		Query{Section: ParseSectionPath("nonexistent"), Key: "x"},
		Operation{Kind: OpReplaceValue, Value: "1"})
	if err == nil {
		t.Errorf("Plan did not report an error for a missing section")
	}
}

func TestParseSectionPath_Empty(t *testing.T) {
	if p := ParseSectionPath(""); p != nil {
		t.Errorf("ParseSectionPath(\"\") = %#v, want nil", p)
	}
}

func TestParseSectionPath_Dotted(t *testing.T) {
	p := ParseSectionPath("dependencies.tokio")
	if len(p) != 2 || p[0] != "dependencies" || p[1] != "tokio" {
		t.Errorf("ParseSectionPath = %#v, want [dependencies tokio]", p)
	}
}

func contains(s, substr string) bool { return indexOf(s, substr) >= 0 }

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
