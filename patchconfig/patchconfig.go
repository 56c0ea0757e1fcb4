// Package patchconfig implements the PatchConfig schema and loader from
// spec.md §6: a declarative TOML patch file, decoded with BurntSushi/toml
// the same way the rest of this corpus's manifest-reading code decodes
// its own TOML config (see DESIGN.md), then checked against the
// structural invariants spec.md §3 requires of a PatchConfig.
package patchconfig

import (
	"os"

	"github.com/BurntSushi/toml"

	"patchkit.dev/patcherr"
)

// Meta is a patch file's [meta] table.
type Meta struct {
	Name               string `toml:"name"`
	Description        string `toml:"description"`
	VersionRange       string `toml:"version_range"`
	WorkspaceRelative  *bool  `toml:"workspace_relative"`
}

// WorkspaceRelativeOrDefault returns m.WorkspaceRelative, defaulting to
// true when unset (spec.md §6: "default true").
func (m Meta) WorkspaceRelativeOrDefault() bool {
	if m.WorkspaceRelative == nil {
		return true
	}
	return *m.WorkspaceRelative
}

// QueryConfig is a [patches.query] table. Only the fields relevant to
// Type are meaningful; see validate.
type QueryConfig struct {
	Type          string `toml:"type"` // "ast-grep" | "tree-sitter" | "toml"
	Pattern       string `toml:"pattern"`
	Section       string `toml:"section"`
	Key           string `toml:"key"`
	EnsureAbsent  *bool  `toml:"ensure_absent"`
	EnsurePresent *bool  `toml:"ensure_present"`
}

func (q QueryConfig) IsToml() bool { return q.Type == "toml" }

// OperationConfig is a [patches.operation] table.
type OperationConfig struct {
	Type          string `toml:"type"`
	Text          string `toml:"text"`
	Capture       string `toml:"capture"`
	Value         string `toml:"value"`
	NewKey        string `toml:"new_key"`
	InsertComment string `toml:"insert_comment"`
	AfterSection  string `toml:"after_section"`
	BeforeSection string `toml:"before_section"`
	AtEnd         bool   `toml:"at_end"`
	AtBeginning   bool   `toml:"at_beginning"`
}

var tomlOperationTypes = map[string]bool{
	"insert-section": true,
	"append-section": true,
	"replace-value":  true,
	"replace-key":    true,
	"delete-section": true,
}

func (o OperationConfig) IsToml() bool { return tomlOperationTypes[o.Type] }

func (o OperationConfig) positioningCount() int {
	n := 0
	if o.AfterSection != "" {
		n++
	}
	if o.BeforeSection != "" {
		n++
	}
	if o.AtEnd {
		n++
	}
	if o.AtBeginning {
		n++
	}
	return n
}

// VerifyConfig is an optional [patches.verify] table.
type VerifyConfig struct {
	Method       string `toml:"method"` // "exact_match" | "hash"
	ExpectedText string `toml:"expected_text"`
	Algorithm    string `toml:"algorithm"` // only "xxh3" is defined
	Expected     string `toml:"expected"`  // hex u64
}

// Patch is one [[patches]] entry.
type Patch struct {
	ID        string          `toml:"id"`
	File      string          `toml:"file"`
	Query     QueryConfig     `toml:"query"`
	Operation OperationConfig `toml:"operation"`
	Verify    *VerifyConfig   `toml:"verify"`
}

// PatchConfig is a fully decoded and validated patch file.
type PatchConfig struct {
	Meta    Meta    `toml:"meta"`
	Patches []Patch `toml:"patches"`
}

// LoadFromPath reads path and decodes+validates it as a PatchConfig.
func LoadFromPath(path string) (*PatchConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, patcherr.Wrap(patcherr.IO, "reading patch config "+path, err)
	}
	return LoadFromStr(string(data))
}

// LoadFromStr decodes+validates text as a PatchConfig.
func LoadFromStr(text string) (*PatchConfig, error) {
	var cfg PatchConfig
	if _, err := toml.Decode(text, &cfg); err != nil {
		return nil, patcherr.Wrap(patcherr.InvalidConfig, "decoding patch config", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate enforces spec.md §3's PatchConfig invariants: non-empty patch
// list, unique ids, query/operation type pairing, singular positioning.
func validate(cfg *PatchConfig) error {
	if len(cfg.Patches) == 0 {
		return patcherr.New(patcherr.InvalidConfig, "patch config has no patches")
	}
	seen := make(map[string]bool, len(cfg.Patches))
	for _, p := range cfg.Patches {
		if p.ID == "" {
			return patcherr.New(patcherr.InvalidConfig, "patch is missing an id")
		}
		if seen[p.ID] {
			return patcherr.New(patcherr.InvalidConfig, "duplicate patch id "+p.ID)
		}
		seen[p.ID] = true

		if p.Query.IsToml() != p.Operation.IsToml() {
			return patcherr.New(patcherr.InvalidConfig, "patch "+p.ID+": TOML queries require a TOML operation, and vice versa")
		}
		if p.Operation.Type == "insert-section" || p.Operation.Type == "append-section" {
			if p.Operation.positioningCount() > 1 {
				return patcherr.New(patcherr.InvalidPositioning, "patch "+p.ID+": more than one positioning directive")
			}
		}
		if p.Query.EnsureAbsent != nil && p.Query.EnsurePresent != nil && *p.Query.EnsureAbsent && *p.Query.EnsurePresent {
			return patcherr.New(patcherr.InvalidConfig, "patch "+p.ID+": ensure_absent and ensure_present are mutually exclusive")
		}
	}
	return nil
}
