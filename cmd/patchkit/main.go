// Command patchkit applies a declarative TOML patch file to a workspace:
// the external entry point for the apply_patches interface of spec.md §6.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pkg/diff"

	"patchkit.dev/applicator"
	"patchkit.dev/internal/obslog"
	"patchkit.dev/patchconfig"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("patchkit", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to the TOML patch config (required)")
	workspaceRoot := fs.String("workspace", ".", "workspace root that patch file paths are resolved against")
	workspaceVersion := fs.String("workspace-version", "", "workspace version string checked against each patch's version_range")
	showDiff := fs.Bool("diff", false, "print a unified diff for each changed file")
	verbose := fs.Bool("v", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "patchkit: -config is required")
		return 2
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	handler := obslog.Wrap(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(slog.New(handler))

	cfg, err := patchconfig.LoadFromPath(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "patchkit: loading config: %v\n", err)
		return 2
	}

	var befores map[string][]byte
	if *showDiff {
		befores = snapshot(cfg, *workspaceRoot)
	}

	results := applicator.ApplyPatches(context.Background(), cfg, *workspaceRoot, *workspaceVersion)

	failed := 0
	totalBytesChanged := 0
	for _, r := range results {
		fmt.Printf("%-8s %-20s %s", r.Status, r.ID, r.File)
		if r.Status == applicator.StatusApplied {
			fmt.Printf("  (%s)", applicator.FormatBytesChanged(r.BytesChanged))
		}
		if r.Reason != "" {
			fmt.Printf("  (%s)", r.Reason)
		}
		fmt.Println()
		if r.Status == applicator.StatusFailed {
			failed++
		}
		totalBytesChanged += r.BytesChanged
	}

	if *showDiff {
		printDiffs(befores)
	}

	fmt.Printf("\n%d patch(es): %d applied, %d failed, %s total\n",
		len(results), len(results)-failed, failed, applicator.FormatBytesChanged(totalBytesChanged))
	if failed > 0 {
		return 1
	}
	return 0
}

// snapshot reads every distinct target file's current contents before
// ApplyPatches runs, keyed by the file path joined onto workspaceRoot as
// given (relative when workspaceRoot is relative), so run can print a
// before/after diff afterward.
func snapshot(cfg *patchconfig.PatchConfig, workspaceRoot string) map[string][]byte {
	out := map[string][]byte{}
	for _, p := range cfg.Patches {
		full := p.File
		if cfg.Meta.WorkspaceRelativeOrDefault() && !filepath.IsAbs(full) {
			full = filepath.Join(workspaceRoot, full)
		}
		if _, ok := out[full]; ok {
			continue
		}
		data, err := os.ReadFile(full)
		if err != nil {
			continue
		}
		out[full] = data
	}
	return out
}

func printDiffs(befores map[string][]byte) {
	for path, before := range befores {
		after, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if bytes.Equal(before, after) {
			continue
		}
		var buf bytes.Buffer
		if err := diff.Text(path, path, before, after, &buf); err != nil {
			continue
		}
		fmt.Println(buf.String())
	}
}
