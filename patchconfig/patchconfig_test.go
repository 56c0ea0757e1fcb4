package patchconfig

import "testing"

const validConfig = `
[meta]
name = "test patch set"
version_range = ">=1.0.0"

[[patches]]
id = "rename-foo"
file = "main.go"

[patches.query]
type = "ast-grep"
pattern = "foo()"

[patches.operation]
type = "replace"
text = "bar()"
`

func TestLoadFromStr_Valid(t *testing.T) {
	cfg, err := LoadFromStr(validConfig)
	if err != nil {
		t.Fatalf("LoadFromStr: %v", err)
	}
	if len(cfg.Patches) != 1 {
		t.Fatalf("len(cfg.Patches) = %d, want 1", len(cfg.Patches))
	}
	if !cfg.Meta.WorkspaceRelativeOrDefault() {
		t.Errorf("WorkspaceRelativeOrDefault() = false, want true (default)")
	}
}

func TestLoadFromStr_NoPatches(t *testing.T) {
	_, err := LoadFromStr(`[meta]
name = "empty"
`)
	if err == nil {
		t.Errorf("LoadFromStr accepted a config with no patches")
	}
}

func TestLoadFromStr_DuplicateID(t *testing.T) {
	_, err := LoadFromStr(validConfig + `
[[patches]]
id = "rename-foo"
file = "other.go"

[patches.query]
type = "ast-grep"
pattern = "baz()"

[patches.operation]
type = "replace"
text = "qux()"
`)
	if err == nil {
		t.Errorf("LoadFromStr accepted duplicate patch ids")
	}
}

func TestLoadFromStr_QueryOperationTypeMismatch(t *testing.T) {
	_, err := LoadFromStr(`
[[patches]]
id = "bad"
file = "Cargo.toml"

[patches.query]
type = "toml"
section = "dependencies"

[patches.operation]
type = "replace"
text = "x"
`)
	if err == nil {
		t.Errorf("LoadFromStr accepted a TOML query paired with a non-TOML operation")
	}
}

func TestLoadFromStr_AmbiguousPositioning(t *testing.T) {
	_, err := LoadFromStr(`
[[patches]]
id = "bad"
file = "Cargo.toml"

[patches.query]
type = "toml"
section = "dependencies"

[patches.operation]
type = "insert-section"
text = "[dependencies.foo]\nversion = \"1.0\""
after_section = "dependencies"
at_end = true
`)
	if err == nil {
		t.Errorf("LoadFromStr accepted more than one positioning directive")
	}
}
