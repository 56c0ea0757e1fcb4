// Package cst parses Go source into a concrete-syntax-tree stand-in:
// Go's own AST plus the token.FileSet needed to recover exact byte
// offsets and comments. See SPEC_FULL.md's "Target language note" for
// why Go is used as the one curly-brace systems language this patcher
// targets.
package cst

import (
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"sync"
)

// Tree is a parsed source buffer: the AST, the file set needed to map
// tree positions back to byte offsets, and the original bytes (a match
// or locator never outlives the Tree it was produced from, per
// SPEC_FULL.md §9's "acquired-together, released-together" guidance).
type Tree struct {
	File   *ast.File
	FSet   *token.FileSet
	Src    []byte
	Errors scanner.ErrorList
}

// fsetPool amortizes token.FileSet construction across parses in a run,
// per spec.md §9's "global parser pool" note. A FileSet accumulates file
// entries forever, and a Tree keeps its FileSet for as long as it lives,
// so a set handed to a Tree is never put back; only a set from a failed
// parse is returned to the pool. Callers don't need to know this, they
// just call Parse.
var fsetPool = sync.Pool{
	New: func() any { return token.NewFileSet() },
}

// Parse parses src as a Go source file and returns its Tree. Parse
// errors are not returned as an error value: HasErrors reports them,
// matching spec.md's "flag parse errors" rather than "fail parse
// errors" framing, since a patch target may legitimately be mid-edit
// when first read.
func Parse(filename string, src []byte) (*Tree, error) {
	fset := fsetPool.Get().(*token.FileSet)
	f, err := parser.ParseFile(fset, filename, src, parser.ParseComments|parser.AllErrors)
	var errList scanner.ErrorList
	if err != nil {
		if el, ok := err.(scanner.ErrorList); ok {
			errList = el
		} else {
			// Unrecoverable parse failure: no partial AST to work with.
			fsetPool.Put(fset)
			return nil, err
		}
	}
	if f == nil {
		fsetPool.Put(fset)
		return nil, errList
	}
	return &Tree{File: f, FSet: fset, Src: src, Errors: errList}, nil
}

// HasErrors reports whether t's parse produced any error nodes.
func (t *Tree) HasErrors() bool {
	return t != nil && len(t.Errors) > 0
}

// Offset returns the zero-based byte offset of pos within t's source.
func (t *Tree) Offset(pos token.Pos) int {
	return t.FSet.Position(pos).Offset
}

// Span converts the positions start and end into the half-open byte range
// [start, end) of t's source. It does not extend the range to doc
// comments; DeclSpan does that for declarations.
func Span(t *Tree, start, end token.Pos) (int, int) {
	return t.Offset(start), t.Offset(end)
}

// DeclSpan returns the byte span of decl, extended to include decl's doc
// comment (if any), matching spec.md §4.4's "including attributes and
// doc comments that immediately precede it".
func DeclSpan(t *Tree, decl ast.Decl) (int, int) {
	start := decl.Pos()
	switch d := decl.(type) {
	case *ast.GenDecl:
		if d.Doc != nil {
			start = d.Doc.Pos()
		}
	case *ast.FuncDecl:
		if d.Doc != nil {
			start = d.Doc.Pos()
		}
	}
	return t.Offset(start), t.Offset(decl.End())
}
