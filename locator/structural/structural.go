// Package structural resolves a named Go construct (function, struct,
// impl/method, const) to a byte span via the CST, per spec.md §4.4.
package structural

import (
	"go/ast"

	"patchkit.dev/cst"
	"patchkit.dev/validator"
)

// Target is a tagged selector for a named construct. Exactly one of the
// fields relevant to Kind is set; see the constructors below.
type Target struct {
	Kind    Kind
	Name    string // Function, Struct, Const
	Type    string // Impl: receiver type name
	Trait   string // Impl: optional interface/trait the method serves (name-only check)
}

type Kind int

const (
	KindFunction Kind = iota
	KindStruct
	KindImpl
	KindConst
)

func Function(name string) Target    { return Target{Kind: KindFunction, Name: name} }
func Struct(name string) Target      { return Target{Kind: KindStruct, Name: name} }
func Impl(typ, trait string) Target  { return Target{Kind: KindImpl, Type: typ, Trait: trait} }
func Const(name string) Target       { return Target{Kind: KindConst, Name: name} }

// Span is a located construct's byte range plus its node, for callers
// that need more than the raw offsets.
type Span struct {
	Start, End int
	Node       ast.Node
}

// Locate finds the unique construct matching target in t. It fails with
// NoMatch if there are zero matches and AmbiguousMatch if there is more
// than one (selector uniqueness is mandatory, per spec.md §4.4).
func Locate(t *cst.Tree, target Target) (Span, error) {
	var matches []Span
	for _, decl := range t.File.Decls {
		switch target.Kind {
		case KindFunction:
			fd, ok := decl.(*ast.FuncDecl)
			if !ok || fd.Recv != nil || fd.Name.Name != target.Name {
				continue
			}
			start, end := cst.DeclSpan(t, fd)
			matches = append(matches, Span{Start: start, End: end, Node: fd})

		case KindImpl:
			fd, ok := decl.(*ast.FuncDecl)
			if !ok || fd.Recv == nil || len(fd.Recv.List) != 1 {
				continue
			}
			if receiverTypeName(fd.Recv.List[0].Type) != target.Type {
				continue
			}
			if target.Trait != "" && !methodServesTrait(fd, target.Trait) {
				continue
			}
			start, end := cst.DeclSpan(t, fd)
			matches = append(matches, Span{Start: start, End: end, Node: fd})

		case KindStruct:
			gd, ok := decl.(*ast.GenDecl)
			if !ok {
				continue
			}
			for _, spec := range gd.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok || ts.Name.Name != target.Name {
					continue
				}
				if _, ok := ts.Type.(*ast.StructType); !ok {
					continue
				}
				start, end := cst.DeclSpan(t, gd)
				matches = append(matches, Span{Start: start, End: end, Node: gd})
			}

		case KindConst:
			gd, ok := decl.(*ast.GenDecl)
			if !ok {
				continue
			}
			if gd.Tok.String() != "const" {
				continue
			}
			for _, spec := range gd.Specs {
				vs, ok := spec.(*ast.ValueSpec)
				if !ok {
					continue
				}
				for _, n := range vs.Names {
					if n.Name != target.Name {
						continue
					}
					start, end := t.Offset(vs.Pos()), t.Offset(vs.End())
					if vs.Doc != nil {
						start = t.Offset(vs.Doc.Pos())
					}
					matches = append(matches, Span{Start: start, End: end, Node: vs})
				}
			}
		}
	}

	return validator.Unique(matches, "construct selector")
}

// receiverTypeName extracts the bare type name from a method receiver
// expression, which may be a plain identifier (value receiver) or a
// pointer to one.
func receiverTypeName(expr ast.Expr) string {
	switch e := expr.(type) {
	case *ast.Ident:
		return e.Name
	case *ast.StarExpr:
		return receiverTypeName(e.X)
	case *ast.IndexExpr: // generic receiver: Type[T]
		return receiverTypeName(e.X)
	default:
		return ""
	}
}

// methodServesTrait is a name-only heuristic: it checks whether fd's doc
// comment mentions trait, since Go has no nominal "implements" keyword to
// inspect without full type-checking (which is an explicit Non-goal).
func methodServesTrait(fd *ast.FuncDecl, trait string) bool {
	if fd.Doc == nil {
		return false
	}
	for _, c := range fd.Doc.List {
		if containsWord(c.Text, trait) {
			return true
		}
	}
	return false
}

func containsWord(haystack, word string) bool {
	if word == "" {
		return false
	}
	for i := 0; i+len(word) <= len(haystack); i++ {
		if haystack[i:i+len(word)] == word {
			return true
		}
	}
	return false
}
