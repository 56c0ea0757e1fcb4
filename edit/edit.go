// Package edit implements the universal write primitive of patchkit: a
// half-open byte-range replacement with a pre-apply verification witness,
// workspace-sandboxed atomic writes, and batch ordering so a file's edits
// never invalidate each other's offsets.
package edit

import (
	"os"
	"path/filepath"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"patchkit.dev/patcherr"
	"patchkit.dev/workspace"
)

// exactMatchMaxLen is the span-size threshold below which a Verification
// stores the literal expected text instead of a hash, per spec.md §3.
const exactMatchMaxLen = 1024

// Verification is the witness for what a span's before-text must contain.
type Verification struct {
	exact string // used when isSet && !hashed
	hash  uint64
	isSet bool
	hashed bool
}

// ExactMatch builds a Verification that requires the span's current bytes
// to equal text exactly.
func ExactMatch(text string) Verification {
	return Verification{exact: text, isSet: true}
}

// HashMatch builds a Verification from a precomputed xxh3-class hash.
func HashMatch(h uint64) Verification {
	return Verification{hash: h, isSet: true, hashed: true}
}

// NewVerification selects ExactMatch or HashMatch for text automatically,
// based on span size, per spec.md §3's "Selection is by span size."
func NewVerification(text string) Verification {
	if len(text) <= exactMatchMaxLen {
		return ExactMatch(text)
	}
	return HashMatch(hashOf(text))
}

// Matches reports whether text is consistent with the witness. It must be
// cheap: a hash comparison or a direct byte comparison.
func (v Verification) Matches(text string) bool {
	if !v.isSet {
		return true // no witness requested: anything matches
	}
	if v.hashed {
		return hashOf(text) == v.hash
	}
	return v.exact == text
}

func hashOf(text string) uint64 {
	return xxhash.Sum64String(text)
}

// Result is the outcome of applying a single Edit.
type Result struct {
	File         string
	Applied      bool // false means AlreadyApplied
	BytesChanged int
}

// Edit is a single byte-range replacement, created by a locator and
// consumed exactly once by the applicator (directly, or via ApplyBatch).
type Edit struct {
	Path     string
	Start    int
	End      int
	NewText  string
	Verify   Verification
}

// New constructs an Edit, checking the basic structural invariants from
// spec.md §3 (start <= end, replacement text is valid UTF-8). File-bound
// invariants (path inside workspace, pre-image consistency) are checked
// at Apply time, since they require reading the file.
func New(path string, start, end int, newText string, expectedBefore Verification) (*Edit, error) {
	if start < 0 || start > end {
		return nil, patcherr.New(patcherr.InvalidByteRange, "start must be in [0, end]")
	}
	if !utf8.ValidString(newText) {
		return nil, patcherr.New(patcherr.InvalidByteRange, "replacement text is not valid UTF-8")
	}
	return &Edit{Path: path, Start: start, End: end, NewText: newText, Verify: expectedBefore}, nil
}

// Apply validates e's path through g, checks the witness against the
// current file contents, and — unless the new bytes already equal the
// current ones — splices in NewText and writes the file back atomically.
func (e *Edit) Apply(g *workspace.Guard) (Result, error) {
	canon, err := g.Validate(e.Path)
	if err != nil {
		return Result{}, err
	}
	orig, err := os.ReadFile(canon)
	if err != nil {
		return Result{}, patcherr.Wrap(patcherr.IO, "reading "+canon, err)
	}
	return applyOne(canon, orig, e)
}

// applyOne performs the read-already-done half of Apply; it's shared with
// ApplyBatch, which reads each file only once regardless of how many
// edits target it.
func applyOne(canon string, orig []byte, e *Edit) (Result, error) {
	if e.End > len(orig) {
		return Result{}, patcherr.New(patcherr.InvalidByteRange, "edit span exceeds file length")
	}
	before := string(orig[e.Start:e.End])
	if !e.Verify.Matches(before) {
		return Result{}, patcherr.New(patcherr.BeforeTextMismatch, "pre-image does not match verification witness for "+canon)
	}
	if before == e.NewText {
		return Result{File: canon, Applied: false}, nil
	}
	newContent := make([]byte, 0, len(orig)-len(before)+len(e.NewText))
	newContent = append(newContent, orig[:e.Start]...)
	newContent = append(newContent, e.NewText...)
	newContent = append(newContent, orig[e.End:]...)
	if !utf8.Valid(newContent) {
		return Result{}, patcherr.New(patcherr.InvalidByteRange, "resulting file is not valid UTF-8")
	}
	if err := atomicWrite(canon, newContent); err != nil {
		return Result{}, err
	}
	return Result{File: canon, Applied: true, BytesChanged: len(newContent) - len(orig)}, nil
}

// ApplyBatch groups edits by canonicalized target file, sorts each
// group's edits by Start descending, and applies them end-to-beginning so
// earlier edits never invalidate later offsets (spec.md §4.1). Each
// file's group is read once, spliced entirely in memory, and written
// once. Overlapping spans within a group fail the whole batch with
// OverlappingEdits.
func ApplyBatch(edits []*Edit, g *workspace.Guard) ([]Result, error) {
	type group struct {
		canon string
		edits []*Edit
	}
	groups := map[string]*group{}
	var order []string
	for _, e := range edits {
		canon, err := g.Validate(e.Path)
		if err != nil {
			return nil, err
		}
		gr, ok := groups[canon]
		if !ok {
			gr = &group{canon: canon}
			groups[canon] = gr
			order = append(order, canon)
		}
		gr.edits = append(gr.edits, e)
	}

	var results []Result
	for _, canon := range order {
		gr := groups[canon]
		sort.Slice(gr.edits, func(i, j int) bool { return gr.edits[i].Start > gr.edits[j].Start })
		if err := checkNoOverlap(gr.edits); err != nil {
			return nil, err
		}
		orig, err := os.ReadFile(canon)
		if err != nil {
			return nil, patcherr.Wrap(patcherr.IO, "reading "+canon, err)
		}
		content := orig
		changed := false
		var bytesChanged int
		for _, e := range gr.edits {
			if e.End > len(content) {
				return nil, patcherr.New(patcherr.InvalidByteRange, "edit span exceeds file length for "+canon)
			}
			before := string(content[e.Start:e.End])
			if !e.Verify.Matches(before) {
				return nil, patcherr.New(patcherr.BeforeTextMismatch, "pre-image does not match verification witness for "+canon)
			}
			if before == e.NewText {
				continue
			}
			spliced := make([]byte, 0, len(content)-len(before)+len(e.NewText))
			spliced = append(spliced, content[:e.Start]...)
			spliced = append(spliced, e.NewText...)
			spliced = append(spliced, content[e.End:]...)
			content = spliced
			changed = true
		}
		if !utf8.Valid(content) {
			return nil, patcherr.New(patcherr.InvalidByteRange, "resulting file is not valid UTF-8: "+canon)
		}
		if changed {
			bytesChanged = len(content) - len(orig)
			if err := atomicWrite(canon, content); err != nil {
				return nil, err
			}
			results = append(results, Result{File: canon, Applied: true, BytesChanged: bytesChanged})
		} else {
			results = append(results, Result{File: canon, Applied: false})
		}
	}
	return results, nil
}

// checkNoOverlap assumes edits is sorted by Start descending.
func checkNoOverlap(edits []*Edit) error {
	for i := 1; i < len(edits); i++ {
		if edits[i].End > edits[i-1].Start {
			return patcherr.New(patcherr.OverlappingEdits, "overlapping edit spans in the same file batch")
		}
	}
	return nil
}

// atomicWrite implements the protocol of spec.md §4.1: write to a
// temp file in the target's directory (same filesystem), fsync, rename
// over the target, then bump mtime. Grounded on the teacher repo's
// SafeWriteFile (dockerimg/local_sshimmer.go): temp file in the same
// directory, Sync before Close, rename last.
func atomicWrite(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*."+uuid.NewString()+".tmp")
	if err != nil {
		return patcherr.Wrap(patcherr.IO, "creating temp file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return patcherr.Wrap(patcherr.IO, "writing temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return patcherr.Wrap(patcherr.IO, "fsyncing temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return patcherr.Wrap(patcherr.IO, "closing temp file", err)
	}
	if info, err := os.Stat(path); err == nil {
		if err := os.Chmod(tmpName, info.Mode()); err != nil {
			return patcherr.Wrap(patcherr.IO, "preserving file mode", err)
		}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return patcherr.Wrap(patcherr.IO, "renaming temp file into place", err)
	}
	now := time.Now()
	_ = os.Chtimes(path, now, now)
	return nil
}
