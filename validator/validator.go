// Package validator implements the Validator component from spec.md
// §4.7: post-edit parse validation, snippet validation for structural
// replacement text, and the selector-uniqueness helper every locator
// funnels through.
package validator

import (
	"go/parser"
	"go/token"

	"patchkit.dev/cst"
	"patchkit.dev/patcherr"
)

// PostParse parses before and after with the same filename and reports
// whether after introduces parse errors that before did not have. A
// buffer that was already unparsable before the edit is not penalized
// for staying that way — only newly introduced errors trigger rollback.
func PostParse(filename string, before, after []byte) error {
	beforeTree, err := cst.Parse(filename, before)
	if err != nil {
		return patcherr.Wrap(patcherr.IO, "parsing pre-image of "+filename, err)
	}
	afterTree, err := cst.Parse(filename, after)
	if err != nil {
		return patcherr.Wrap(patcherr.IO, "parsing post-image of "+filename, err)
	}
	if len(afterTree.Errors) > len(beforeTree.Errors) {
		return patcherr.New(patcherr.ParseErrorIntroduced, "edited buffer introduces new parse errors")
	}
	return nil
}

// SnippetCategory is the syntactic role a replacement snippet must parse
// as, per spec.md §4.7.
type SnippetCategory int

const (
	CategoryItem SnippetCategory = iota
	CategoryExpression
	CategoryType
	CategoryFile
	// CategoryStatement covers a replacement that occupies a statement or
	// statement list inside a function body — not one of spec.md §4.7's
	// four listed categories, but required for Go specifically since a
	// statement is not valid at item scope. Added as a fifth category
	// rather than shoehorned into CategoryItem; see DESIGN.md.
	CategoryStatement
)

// ValidateSnippet parses text as category and fails with InvalidSnippet
// if it doesn't fit. It never mutates a tree; it only checks parseability
// of the replacement text in isolation, before that text is spliced in.
func ValidateSnippet(text string, category SnippetCategory) error {
	fset := token.NewFileSet()
	var err error
	switch category {
	case CategoryFile:
		_, err = parser.ParseFile(fset, "snippet", text, 0)
	case CategoryItem:
		_, err = parser.ParseFile(fset, "snippet", "package p\n"+text, 0)
	case CategoryType:
		_, err = parser.ParseFile(fset, "snippet", "package p\nvar patchkitSnippet "+text+"\n", 0)
	case CategoryExpression:
		_, err = parser.ParseFile(fset, "snippet", "package p\nvar patchkitSnippet = "+text+"\n", 0)
	case CategoryStatement:
		_, err = parser.ParseFile(fset, "snippet", "package p\nfunc patchkitSnippet() {\n"+text+"\n}\n", 0)
	default:
		return patcherr.New(patcherr.Unsupported, "unknown snippet category")
	}
	if err != nil {
		return patcherr.Wrap(patcherr.InvalidSnippet, "replacement text does not parse as the expected syntactic category", err)
	}
	return nil
}

// Unique fails fast on zero or multiple matches, the centralized helper
// every locator's Find*/Locate funnels through per spec.md §4.7. T is
// whatever match type the calling locator produces.
func Unique[T any](matches []T, describe string) (T, error) {
	var zero T
	switch len(matches) {
	case 0:
		return zero, patcherr.New(patcherr.NoMatch, describe+" has no matches")
	case 1:
		return matches[0], nil
	default:
		return zero, patcherr.New(patcherr.AmbiguousMatch, describe+" matches more than once")
	}
}

// ReparseTree is a convenience that reparses a candidate buffer into a
// fresh *cst.Tree so post-edit checks (HasErrors) can run the same way
// pre-edit checks did.
func ReparseTree(filename string, src []byte) (*cst.Tree, error) {
	return cst.Parse(filename, src)
}
