package parser

import (
	"strings"

	"github.com/goliatone/go-wyrm/pkg/ast"
)

// splitWord splits the leading word from the rest of a line body.
func splitWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i], strings.TrimSpace(s[i+1:])
	}
	return s, ""
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// scanTop walks s calling fn for every byte at top level (outside quotes and
// brackets). Returning false from fn stops the walk at that index, which is
// then reported; -1 means the walk ran to the end.
func scanTop(s string, fn func(i int, c byte) bool) int {
	bracket := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
			continue
		case '(', '[', '{':
			bracket++
			continue
		case ')', ']', '}':
			if bracket > 0 {
				bracket--
			}
			continue
		}
		if bracket == 0 && !fn(i, c) {
			return i
		}
	}
	return -1
}

// splitTop splits s on a separator byte found at top level.
func splitTop(s string, sep byte) []string {
	var parts []string
	start := 0
	scanTop(s, func(i int, c byte) bool {
		if c == sep {
			parts = append(parts, s[start:i])
			start = i + 1
		}
		return true
	})
	parts = append(parts, s[start:])
	return parts
}

// fieldsTop splits s on runs of top-level spaces. Spaces inside quotes or
// brackets do not split.
func fieldsTop(s string) []string {
	var fields []string
	bracket := 0
	var quote byte
	start := -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '(', '[', '{':
			bracket++
		case ')', ']', '}':
			if bracket > 0 {
				bracket--
			}
		case ' ', '\t':
			if bracket == 0 {
				if start >= 0 {
					fields = append(fields, s[start:i])
					start = -1
				}
				continue
			}
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		fields = append(fields, s[start:])
	}
	return fields
}

// indexKeywordTop finds a bare keyword at top level, delimited by spaces.
func indexKeywordTop(s, kw string) int {
	found := -1
	scanTop(s, func(i int, c byte) bool {
		if c != kw[0] {
			return true
		}
		if i+len(kw) > len(s) || s[i:i+len(kw)] != kw {
			return true
		}
		if i > 0 && s[i-1] != ' ' && s[i-1] != '\t' {
			return true
		}
		end := i + len(kw)
		if end < len(s) && s[end] != ' ' && s[end] != '\t' {
			return true
		}
		found = i
		return false
	})
	return found
}

func parseNameList(s string, line int) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var names []string
	for _, part := range strings.Split(s, ",") {
		name := strings.TrimSpace(part)
		if !isIdent(name) {
			return nil, errf(line, "invalid name %q", name)
		}
		names = append(names, name)
	}
	return names, nil
}

// parseFor splits `VARS in EXPR`, with possible multi-name unpacking on the
// left of the keyword.
func parseFor(s string, line int) ([]string, string, error) {
	at := indexKeywordTop(s, "in")
	if at < 0 {
		return nil, "", errf(line, "`for` requires the keyword `in`")
	}
	vars, err := parseNameList(s[:at], line)
	if err != nil {
		return nil, "", err
	}
	if len(vars) == 0 {
		return nil, "", errf(line, "`for` requires at least one loop variable")
	}
	expr := strings.TrimSpace(s[at+len("in"):])
	if expr == "" {
		return nil, "", errf(line, "`for` requires an iterable expression")
	}
	return vars, expr, nil
}

// parseWithArgs handles `[only] name=expr, name=expr ...`.
func parseWithArgs(s string, line int) (bool, []ast.Arg, error) {
	only := false
	if word, rest := splitWord(s); word == "only" {
		only = true
		s = rest
	}
	if strings.TrimSpace(s) == "" {
		return only, nil, nil
	}
	var args []ast.Arg
	for _, part := range splitTop(s, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			return false, nil, errf(line, "empty `with` binding")
		}
		eq := scanTop(part, func(_ int, c byte) bool { return c != '=' })
		if eq < 0 {
			return false, nil, errf(line, "`with` bindings take the form name=expression, got %q", part)
		}
		name := strings.TrimSpace(part[:eq])
		expr := strings.TrimSpace(part[eq+1:])
		if !isIdent(name) || expr == "" {
			return false, nil, errf(line, "`with` bindings take the form name=expression, got %q", part)
		}
		args = append(args, ast.Arg{Name: name, Expr: expr})
	}
	return only, args, nil
}

// parseInclude handles `TARGET [with [only] name=expr, ...]`. A quoted or
// path-shaped target is a literal; anything else is treated as an
// expression evaluated at resolution time.
func parseInclude(s string, line int) (*ast.Include, error) {
	if strings.TrimSpace(s) == "" {
		return nil, errf(line, "`include` requires a target")
	}
	n := &ast.Include{}
	target := s
	if at := indexKeywordTop(s, "with"); at >= 0 {
		target = strings.TrimSpace(s[:at])
		only, args, err := parseWithArgs(strings.TrimSpace(s[at+len("with"):]), line)
		if err != nil {
			return nil, err
		}
		n.Only = only
		n.Args = args
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, errf(line, "`include` requires a target")
	}
	switch {
	case len(target) >= 2 && (target[0] == '"' || target[0] == '\''):
		if target[len(target)-1] != target[0] {
			return nil, errf(line, "unterminated string in `include` target")
		}
		n.Path = target[1 : len(target)-1]
	case isPath(target):
		n.Path = target
	default:
		n.Expr = target
	}
	return n, nil
}

// isPath accepts bare include targets like `layouts/base` or `base-page`.
func isPath(s string) bool {
	for _, r := range s {
		switch {
		case r == '/', r == '.', r == '-', r == '_':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		default:
			return false
		}
	}
	// Bare names are literals; wrap the target in parentheses to force
	// expression evaluation instead.
	return s != "" && s[0] != '.'
}

// parseHTML handles `[SELECTOR] [attr=expr ...]` for the html command.
func parseHTML(s string, line int) (*ast.HTML, error) {
	n := &ast.HTML{}
	fields := fieldsTop(s)

	i := 0
	if len(fields) > 0 {
		switch fields[0] {
		case "5", "1.1":
			n.Doctype = fields[0]
			i = 1
		case "4", "1":
			n.Doctype = fields[0] + " strict"
			i = 1
			if len(fields) > 1 && isDoctypeVariant(fields[1]) {
				n.Doctype = fields[0] + " " + fields[1]
				i = 2
			}
		}
	}
	attrs, err := parseAttrs(fields[i:], line)
	if err != nil {
		return nil, err
	}
	n.Attrs = attrs
	return n, nil
}

func isDoctypeVariant(s string) bool {
	return s == "strict" || s == "transitional" || s == "frameset"
}

// parseTag handles `[name][#id][.class ...] [attr=expr ...]`. The name
// defaults to div when omitted but at least one shortcut is present.
func parseTag(s string, line int) (*ast.Tag, error) {
	n := &ast.Tag{}
	fields := fieldsTop(s)

	i := 0
	for ; i < len(fields); i++ {
		f := fields[i]
		if scanTop(f, func(_ int, c byte) bool { return c != '=' }) >= 0 {
			break
		}
		if err := parseShortcuts(n, f, i == 0, line); err != nil {
			return nil, err
		}
	}
	if n.Name == "" {
		if n.ID == "" && len(n.Classes) == 0 {
			return nil, errf(line, "missing tag name")
		}
		n.Name = "div"
	}
	attrs, err := parseAttrs(fields[i:], line)
	if err != nil {
		return nil, err
	}
	n.Attrs = attrs
	return n, nil
}

// parseShortcuts consumes `name#id.class` chunks. Only the first chunk may
// carry the element name.
func parseShortcuts(n *ast.Tag, chunk string, allowName bool, line int) error {
	rest := chunk
	if rest != "" && rest[0] != '#' && rest[0] != '.' {
		if !allowName || n.Name != "" {
			return errf(line, "unexpected token %q in tag", chunk)
		}
		end := strings.IndexAny(rest, "#.")
		if end < 0 {
			end = len(rest)
		}
		n.Name = rest[:end]
		rest = rest[end:]
		if !isTagName(n.Name) {
			return errf(line, "invalid tag name %q", n.Name)
		}
	}
	for rest != "" {
		marker := rest[0]
		rest = rest[1:]
		end := strings.IndexAny(rest, "#.")
		if end < 0 {
			end = len(rest)
		}
		val := rest[:end]
		rest = rest[end:]
		if val == "" {
			return errf(line, "empty id or class shortcut in tag")
		}
		switch marker {
		case '#':
			n.ID = val
		case '.':
			n.Classes = append(n.Classes, val)
		}
	}
	return nil
}

func isTagName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case (r >= '0' && r <= '9' || r == '-') && i > 0:
		default:
			return false
		}
	}
	return true
}

func parseAttrs(fields []string, line int) ([]ast.Attr, error) {
	var attrs []ast.Attr
	for _, f := range fields {
		eq := scanTop(f, func(_ int, c byte) bool { return c != '=' })
		if eq < 0 {
			return nil, errf(line, "malformed attribute %q: expected name=expression", f)
		}
		name, expr := f[:eq], f[eq+1:]
		if name == "" || expr == "" {
			return nil, errf(line, "malformed attribute %q: expected name=expression", f)
		}
		attrs = append(attrs, ast.Attr{Name: name, Expr: expr})
	}
	return attrs, nil
}
