package structural

import (
	"strings"

	"patchkit.dev/patcherr"
)

// ParseSExpr parses the low-level Cst query's s-expression form, e.g.
// `(function name: "resolve")`, `(struct name: "Session")`,
// `(impl type: "Patcher" trait: "Applier")`, `(const name: "MaxRetries")`.
// This is the "tree-sitter"-style counterpart to PatternMatcher's
// "ast-grep"-style $NAME patterns: predicates over named constructs
// rather than a structural hole-matcher.
func ParseSExpr(query string) (Target, error) {
	q := strings.TrimSpace(query)
	q = strings.TrimPrefix(q, "(")
	q = strings.TrimSuffix(q, ")")
	fields := joinKeyValueTokens(tokenizeSExpr(q))
	if len(fields) == 0 {
		return Target{}, patcherr.New(patcherr.InvalidConfig, "empty Cst query")
	}
	kind := fields[0]
	attrs := map[string]string{}
	for _, f := range fields[1:] {
		k, v, ok := strings.Cut(f, ":")
		if !ok {
			continue
		}
		attrs[strings.TrimSpace(k)] = unquote(strings.TrimSpace(v))
	}

	switch kind {
	case "function":
		return Function(attrs["name"]), nil
	case "struct":
		return Struct(attrs["name"]), nil
	case "impl":
		return Impl(attrs["type"], attrs["trait"]), nil
	case "const":
		return Const(attrs["name"]), nil
	case "module":
		// Go has no nested-module path construct matching a module-path
		// selector; left unimplemented rather than forced onto package
		// scoping (Open Question, resolved: see DESIGN.md).
		return Target{}, patcherr.New(patcherr.Unsupported, "module selector has no Go equivalent")
	default:
		return Target{}, patcherr.New(patcherr.InvalidConfig, "unknown Cst query construct "+kind)
	}
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// joinKeyValueTokens merges a bare "key:" token produced by tokenizeSExpr
// with the value token that follows it, so "name:" "\"resolve\"" becomes
// one "name: \"resolve\"" field regardless of the space after the colon.
func joinKeyValueTokens(tokens []string) []string {
	var out []string
	for i := 0; i < len(tokens); i++ {
		if strings.HasSuffix(tokens[i], ":") && i+1 < len(tokens) {
			out = append(out, tokens[i]+" "+tokens[i+1])
			i++
			continue
		}
		out = append(out, tokens[i])
	}
	return out
}

// tokenizeSExpr splits on whitespace outside double quotes, so a quoted
// attribute value containing a space is kept as one token.
func tokenizeSExpr(s string) []string {
	var fields []string
	var cur strings.Builder
	inQuote := false
	flush := func() {
		if cur.Len() > 0 {
			fields = append(fields, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case r == ' ' && !inQuote:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return fields
}
