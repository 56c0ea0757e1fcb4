package pattern

import (
	"go/ast"
	"go/token"
	"reflect"
)

var (
	posType              = reflect.TypeOf(token.Pos(0))
	commentGroupPtrType  = reflect.TypeOf((*ast.CommentGroup)(nil))
	objectPtrType        = reflect.TypeOf((*ast.Object)(nil))
	scopePtrType         = reflect.TypeOf((*ast.Scope)(nil))
)

// captures accumulates metavariable bindings while two subtrees are
// compared. A name bound twice (the same metavariable appearing more
// than once in a pattern) must bind structurally equal subtrees both
// times, per spec.md §4.5.
type captures struct {
	one map[string]ast.Node
	seq map[string][]ast.Node
}

func newCaptures() *captures {
	return &captures{one: map[string]ast.Node{}, seq: map[string][]ast.Node{}}
}

func (c *captures) bindOne(kind metaKind, name string, v any) bool {
	node, ok := v.(ast.Node)
	if !ok {
		return false
	}
	if kind == kindAny {
		return true
	}
	if existing, ok := c.one[name]; ok {
		return structurallyEqual(existing, node)
	}
	c.one[name] = node
	return true
}

func (c *captures) bindSeq(name string, nodes []ast.Node) bool {
	if existing, ok := c.seq[name]; ok {
		if len(existing) != len(nodes) {
			return false
		}
		for i := range existing {
			if !structurallyEqual(existing[i], nodes[i]) {
				return false
			}
		}
		return true
	}
	c.seq[name] = nodes
	return true
}

func (c *captures) toMatch(start, end int) Match {
	one := make(map[string]ast.Node, len(c.one))
	for k, v := range c.one {
		one[k] = v
	}
	seq := make(map[string][]ast.Node, len(c.seq))
	for k, v := range c.seq {
		seq[k] = v
	}
	return Match{Start: start, End: end, Captures: one, SeqCaptures: seq}
}

// structurallyEqual compares two already-resolved target subtrees (no
// metavariables on either side), used to enforce repeated-capture
// consistency.
func structurallyEqual(a, b ast.Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	return equalNode(reflect.ValueOf(a).Elem(), reflect.ValueOf(b).Elem(), newCaptures())
}

// equalNode walks pv (pattern side) and tv (target side) in lockstep.
// Whenever pv is, or wraps, a synthetic metavariable identifier it binds
// instead of recursing structurally.
func equalNode(pv, tv reflect.Value, caps *captures) bool {
	if !pv.IsValid() || !tv.IsValid() {
		return pv.IsValid() == tv.IsValid()
	}
	switch pv.Kind() {
	case reflect.Interface:
		if pv.IsNil() || tv.IsNil() {
			return pv.IsNil() == tv.IsNil()
		}
		pc, tc := pv.Elem(), tv.Elem()
		if id, ok := pc.Interface().(*ast.Ident); ok {
			if name, kind, ok2 := metaOneName(id); ok2 {
				return caps.bindOne(kind, name, tc.Interface())
			}
		}
		if es, ok := pc.Interface().(*ast.ExprStmt); ok {
			if id, ok2 := es.X.(*ast.Ident); ok2 {
				if name, kind, ok3 := metaOneName(id); ok3 {
					return caps.bindOne(kind, name, tc.Interface())
				}
			}
		}
		if pc.Type() != tc.Type() {
			return false
		}
		return equalNode(pc, tc, caps)

	case reflect.Ptr:
		if pv.IsNil() || tv.IsNil() {
			return pv.IsNil() == tv.IsNil()
		}
		return equalNode(pv.Elem(), tv.Elem(), caps)

	case reflect.Struct:
		t := pv.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() || skipField(f) {
				continue
			}
			if !equalNode(pv.Field(i), tv.Field(i), caps) {
				return false
			}
		}
		return true

	case reflect.Slice:
		return matchSlice(pv, tv, caps)

	default:
		if !pv.Type().Comparable() {
			return true
		}
		return pv.Interface() == tv.Interface()
	}
}

func skipField(f reflect.StructField) bool {
	switch f.Type {
	case posType, commentGroupPtrType, objectPtrType, scopePtrType:
		return true
	default:
		return false
	}
}

// seqWildcardName reports whether elem is a "$$$NAME" placeholder in
// whatever slice it came from (statement list, field list, expression
// list): an *ast.Ident with the seq prefix, an ExprStmt wrapping one, or
// an unnamed *ast.Field whose type is one.
func seqWildcardName(elem reflect.Value) (string, bool) {
	v := elem
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return "", false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return "", false
	}
	switch n := v.Interface().(type) {
	case *ast.Ident:
		return metaSeqName(n)
	case *ast.ExprStmt:
		if id, ok := n.X.(*ast.Ident); ok {
			return metaSeqName(id)
		}
	case *ast.Field:
		if n.Names == nil {
			if id, ok := n.Type.(*ast.Ident); ok {
				return metaSeqName(id)
			}
		}
	}
	return "", false
}

func sliceElemNode(v reflect.Value) ast.Node {
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if !v.IsValid() || !v.CanInterface() {
		return nil
	}
	n, _ := v.Interface().(ast.Node)
	return n
}

// matchSlice compares a pattern slice against a target slice. If the
// pattern slice contains one "$$$NAME" element, everything before and
// after it is matched positionally against the target's head and tail,
// and the run of target elements in between (possibly empty) is bound
// as a sequence capture; otherwise the two slices must have equal
// length and match element-wise.
func matchSlice(pv, tv reflect.Value, caps *captures) bool {
	n := pv.Len()
	wildIdx, wildName := -1, ""
	for i := 0; i < n; i++ {
		if name, ok := seqWildcardName(pv.Index(i)); ok {
			wildIdx, wildName = i, name
			break
		}
	}
	if wildIdx == -1 {
		if pv.Len() != tv.Len() {
			return false
		}
		for i := 0; i < n; i++ {
			if !equalNode(pv.Index(i), tv.Index(i), caps) {
				return false
			}
		}
		return true
	}

	before, after := wildIdx, n-wildIdx-1
	if tv.Len() < before+after {
		return false
	}
	for i := 0; i < before; i++ {
		if !equalNode(pv.Index(i), tv.Index(i), caps) {
			return false
		}
	}
	for i := 0; i < after; i++ {
		if !equalNode(pv.Index(n-1-i), tv.Index(tv.Len()-1-i), caps) {
			return false
		}
	}
	mid := tv.Len() - after
	seq := make([]ast.Node, 0, mid-before)
	for i := before; i < mid; i++ {
		if node := sliceElemNode(tv.Index(i)); node != nil {
			seq = append(seq, node)
		}
	}
	return caps.bindSeq(wildName, seq)
}
