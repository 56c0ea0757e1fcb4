// Package pattern implements the PatternMatcher locator: CST-structural
// matching of a pattern containing metavariables (spec.md §4.5) against a
// parsed Go source tree. $NAME binds exactly one node, $$$NAME binds a
// (possibly empty) contiguous run of sibling nodes, and $_ is an
// anonymous single-node wildcard.
//
// There is no tree-sitter/ast-grep style "structural diff with holes"
// library anywhere in this corpus's dependency surface, so this is the
// one locator built directly on go/ast and reflect rather than a
// third-party library (see DESIGN.md). Patterns are compiled once by
// rewriting metavariables into synthetic identifiers that go/parser can
// tokenize, then matched by walking the pattern and a candidate subtree
// in lockstep with reflect, intercepting synthetic identifiers as binding
// sites instead of requiring literal equality.
package pattern

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"reflect"
	"regexp"
	"strings"

	"patchkit.dev/cst"
	"patchkit.dev/locator/structural"
	"patchkit.dev/patcherr"
	"patchkit.dev/validator"
)

const (
	seqPrefix = "patchkitSeq_"
	onePrefix = "patchkitOne_"
	anyPrefix = "patchkitAny_"
)

type metaKind int

const (
	kindOne metaKind = iota
	kindAny
)

var (
	reSeqVar = regexp.MustCompile(`\$\$\$(\w+)`)
	reAnyVar = regexp.MustCompile(`\$_\b`)
	reOneVar = regexp.MustCompile(`\$(\w+)`)
)

// rewriteMetavars replaces $$$NAME, $_ and $NAME with identifiers
// go/parser can tokenize, in that order so $$$NAME isn't partially
// consumed by the $NAME pass.
func rewriteMetavars(src string) (string, map[string]bool) {
	names := map[string]bool{}
	out := reSeqVar.ReplaceAllStringFunc(src, func(m string) string {
		name := reSeqVar.FindStringSubmatch(m)[1]
		names[name] = true
		return seqPrefix + name
	})
	counter := 0
	out = reAnyVar.ReplaceAllStringFunc(out, func(string) string {
		counter++
		return fmt.Sprintf("%s%d", anyPrefix, counter)
	})
	out = reOneVar.ReplaceAllStringFunc(out, func(m string) string {
		name := reOneVar.FindStringSubmatch(m)[1]
		names[name] = true
		return onePrefix + name
	})
	return out, names
}

func metaOneName(id *ast.Ident) (string, metaKind, bool) {
	if n, ok := strings.CutPrefix(id.Name, onePrefix); ok {
		return n, kindOne, true
	}
	if n, ok := strings.CutPrefix(id.Name, anyPrefix); ok {
		return n, kindAny, true
	}
	return "", 0, false
}

func metaSeqName(id *ast.Ident) (string, bool) {
	return strings.CutPrefix(id.Name, seqPrefix)
}

// Category is the syntactic shape a compiled Pattern matches against.
type Category int

const (
	CategoryFile Category = iota
	CategoryDecl
	CategoryDeclSeq
	CategoryStmt
	CategoryExpr
)

// Pattern is a compiled, cacheable pattern. Compile it once; Find* many
// times, per spec.md §4.5's "Patterns must be compiled once" guidance.
type Pattern struct {
	Category Category
	Names    map[string]bool
	Src      string

	file     *ast.File
	declOne  ast.Decl
	declSeq  []ast.Decl
	stmts    []ast.Stmt
	expr     ast.Expr
}

// Compile tries, in order, to parse patternSrc as a whole file, as one or
// more top-level declarations, as a single expression, and as a list of
// statements — the first wrapping that parses wins. Expressions are tried
// before statements because every expression also parses as an
// expression statement.
func Compile(patternSrc string) (*Pattern, error) {
	rewritten, names := rewriteMetavars(patternSrc)

	if f, err := parser.ParseFile(token.NewFileSet(), "pattern", rewritten, parser.ParseComments); err == nil && f.Name != nil {
		return &Pattern{Category: CategoryFile, Names: names, Src: patternSrc, file: f}, nil
	}
	if f, err := parser.ParseFile(token.NewFileSet(), "pattern", "package patchkitpattern\n"+rewritten, parser.ParseComments); err == nil {
		if len(f.Decls) == 1 {
			return &Pattern{Category: CategoryDecl, Names: names, Src: patternSrc, declOne: f.Decls[0]}, nil
		}
		if len(f.Decls) > 1 {
			return &Pattern{Category: CategoryDeclSeq, Names: names, Src: patternSrc, declSeq: f.Decls}, nil
		}
	}
	wrappedExpr := "package patchkitpattern\nvar patchkitWrapper = " + rewritten + "\n"
	if f, err := parser.ParseFile(token.NewFileSet(), "pattern", wrappedExpr, parser.ParseComments); err == nil {
		gd := f.Decls[0].(*ast.GenDecl)
		vs := gd.Specs[0].(*ast.ValueSpec)
		return &Pattern{Category: CategoryExpr, Names: names, Src: patternSrc, expr: vs.Values[0]}, nil
	}
	wrappedStmt := "package patchkitpattern\nfunc patchkitWrapper() {\n" + rewritten + "\n}\n"
	if f, err := parser.ParseFile(token.NewFileSet(), "pattern", wrappedStmt, parser.ParseComments); err == nil {
		fd := f.Decls[0].(*ast.FuncDecl)
		return &Pattern{Category: CategoryStmt, Names: names, Src: patternSrc, stmts: fd.Body.List}, nil
	}
	return nil, patcherr.New(patcherr.InvalidSnippet, "pattern does not parse as a file, declaration, statement list, or expression")
}

// Match is one location the pattern matched, with its captures.
type Match struct {
	Start, End  int
	Captures    map[string]ast.Node
	SeqCaptures map[string][]ast.Node
}

// FindAll returns every match of p in t.
func (p *Pattern) FindAll(t *cst.Tree) ([]Match, error) {
	switch p.Category {
	case CategoryFile:
		return p.matchFile(t), nil
	case CategoryDecl:
		return p.matchDecl(t), nil
	case CategoryDeclSeq:
		return p.matchDeclSeq(t), nil
	case CategoryStmt:
		return p.matchStmt(t), nil
	case CategoryExpr:
		return p.matchExpr(t), nil
	default:
		return nil, patcherr.New(patcherr.Unsupported, "unknown pattern category")
	}
}

// FindUnique fails unless p matches exactly once in t.
func (p *Pattern) FindUnique(t *cst.Tree) (Match, error) {
	matches, err := p.FindAll(t)
	if err != nil {
		return Match{}, err
	}
	return validator.Unique(matches, "pattern "+p.Src)
}

// FindIn restricts matching to descendants of enclosing (byte-range
// containment), per spec.md §4.5's find_in.
func (p *Pattern) FindIn(t *cst.Tree, enclosing structural.Span) ([]Match, error) {
	all, err := p.FindAll(t)
	if err != nil {
		return nil, err
	}
	var within []Match
	for _, m := range all {
		if m.Start >= enclosing.Start && m.End <= enclosing.End {
			within = append(within, m)
		}
	}
	return within, nil
}

func (p *Pattern) matchFile(t *cst.Tree) []Match {
	caps := newCaptures()
	if !matchSlice(reflect.ValueOf(p.file.Decls), reflect.ValueOf(t.File.Decls), caps) {
		return nil
	}
	return []Match{caps.toMatch(t.Offset(t.File.Pos()), t.Offset(t.File.End()))}
}

func (p *Pattern) matchDecl(t *cst.Tree) []Match {
	var matches []Match
	for _, d := range t.File.Decls {
		if reflect.TypeOf(d) != reflect.TypeOf(p.declOne) {
			continue
		}
		caps := newCaptures()
		if equalNode(reflect.ValueOf(p.declOne).Elem(), reflect.ValueOf(d).Elem(), caps) {
			start, end := cst.DeclSpan(t, d)
			matches = append(matches, caps.toMatch(start, end))
		}
	}
	return matches
}

func (p *Pattern) matchDeclSeq(t *cst.Tree) []Match {
	n := len(p.declSeq)
	decls := t.File.Decls
	var matches []Match
	for start := 0; start+n <= len(decls); start++ {
		window := decls[start : start+n]
		caps := newCaptures()
		ok := true
		for i := range p.declSeq {
			if reflect.TypeOf(p.declSeq[i]) != reflect.TypeOf(window[i]) {
				ok = false
				break
			}
			if !equalNode(reflect.ValueOf(p.declSeq[i]).Elem(), reflect.ValueOf(window[i]).Elem(), caps) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		s, _ := cst.DeclSpan(t, window[0])
		_, e := cst.DeclSpan(t, window[n-1])
		matches = append(matches, caps.toMatch(s, e))
	}
	return matches
}

func (p *Pattern) matchStmt(t *cst.Tree) []Match {
	minLen, hasWild := minStmtLen(p.stmts)
	var matches []Match
	ast.Inspect(t.File, func(n ast.Node) bool {
		blk, ok := n.(*ast.BlockStmt)
		if !ok {
			return true
		}
		list := blk.List
		for start := 0; start <= len(list); start++ {
			for end := start; end <= len(list); end++ {
				length := end - start
				if hasWild {
					if length < minLen {
						continue
					}
				} else if length != minLen {
					continue
				}
				window := list[start:end]
				caps := newCaptures()
				if !matchSlice(reflect.ValueOf(p.stmts), reflect.ValueOf(window), caps) {
					continue
				}
				var s, e int
				if length == 0 {
					s = t.Offset(blk.Lbrace) + 1
					e = s
				} else {
					s, e = t.Offset(window[0].Pos()), t.Offset(window[len(window)-1].End())
				}
				matches = append(matches, caps.toMatch(s, e))
			}
		}
		return true
	})
	return matches
}

func (p *Pattern) matchExpr(t *cst.Tree) []Match {
	var matches []Match
	if id, ok := p.expr.(*ast.Ident); ok {
		if name, kind, ok2 := metaOneName(id); ok2 {
			ast.Inspect(t.File, func(n ast.Node) bool {
				expr, ok := n.(ast.Expr)
				if !ok {
					return true
				}
				caps := newCaptures()
				if caps.bindOne(kind, name, expr) {
					matches = append(matches, caps.toMatch(t.Offset(expr.Pos()), t.Offset(expr.End())))
				}
				return true
			})
			return matches
		}
	}
	ast.Inspect(t.File, func(n ast.Node) bool {
		expr, ok := n.(ast.Expr)
		if !ok || reflect.TypeOf(expr) != reflect.TypeOf(p.expr) {
			return true
		}
		caps := newCaptures()
		if equalNode(reflect.ValueOf(p.expr).Elem(), reflect.ValueOf(expr).Elem(), caps) {
			matches = append(matches, caps.toMatch(t.Offset(expr.Pos()), t.Offset(expr.End())))
		}
		return true
	})
	return matches
}

func minStmtLen(stmts []ast.Stmt) (int, bool) {
	count, hasWild := 0, false
	v := reflect.ValueOf(stmts)
	for i := 0; i < v.Len(); i++ {
		if _, ok := seqWildcardName(v.Index(i)); ok {
			hasWild = true
			continue
		}
		count++
	}
	return count, hasWild
}
