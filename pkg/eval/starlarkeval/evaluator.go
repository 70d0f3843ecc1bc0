// Package starlarkeval is the default expression evaluator, backed by
// go.starlark.net. Template contexts convert to Starlark values on the way
// in; results flow back to the engine as opaque eval.Values.
package starlarkeval

import (
	"context"
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/goliatone/go-wyrm/pkg/eval"
)

// Evaluator evaluates expression text with starlark.Eval. It is stateless
// and safe for concurrent use; each evaluation runs on a fresh thread.
type Evaluator struct{}

var _ eval.Evaluator = (*Evaluator)(nil)

// New constructs the default evaluator.
func New() *Evaluator { return &Evaluator{} }

// Evaluate runs expr against the scope. Identifiers the scope does not
// cover are bound to an empty string, implementing the engine's
// undefined-defaults-to-empty rule; `require` is the guard against relying
// on that silently.
func (e *Evaluator) Evaluate(ctx context.Context, expr string, scope map[string]eval.Value) (eval.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	env := make(starlark.StringDict, len(scope)+3)
	for name, v := range scope {
		if !isStarlarkIdent(name) {
			continue
		}
		sv, err := toStarlark(v)
		if err != nil {
			return nil, fmt.Errorf("starlarkeval: convert %q: %w", name, err)
		}
		env[name] = sv
	}
	// Lowercase literal aliases, so templates can write `checked=true`.
	for name, v := range map[string]starlark.Value{
		"true":  starlark.True,
		"false": starlark.False,
		"null":  starlark.None,
	} {
		if _, taken := env[name]; !taken {
			env[name] = v
		}
	}

	parsed, err := syntax.ParseExpr("<expr>", expr, 0)
	if err != nil {
		return nil, fmt.Errorf("starlarkeval: parse %q: %w", expr, err)
	}
	for _, name := range freeIdents(parsed) {
		if _, bound := env[name]; !bound {
			env[name] = starlark.String("")
		}
	}

	thread := &starlark.Thread{Name: "wyrm-expr"}
	v, err := starlark.Eval(thread, "<expr>", expr, env)
	if err != nil {
		return nil, fmt.Errorf("starlarkeval: eval %q: %w", expr, err)
	}
	return v, nil
}

// Truthy follows Starlark truth semantics: empty strings, zero numbers,
// empty collections and None are false.
func (e *Evaluator) Truthy(v eval.Value) bool {
	sv, err := toStarlark(v)
	if err != nil {
		return false
	}
	return bool(sv.Truth())
}

// Iterate materializes a sequence. Starlark strings are not iterable, which
// keeps `for c in name` from silently walking characters.
func (e *Evaluator) Iterate(v eval.Value) ([]eval.Value, error) {
	sv, err := toStarlark(v)
	if err != nil {
		return nil, fmt.Errorf("starlarkeval: %w", err)
	}
	it, ok := sv.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("%w: %s", eval.ErrNotIterable, sv.Type())
	}
	iter := it.Iterate()
	defer iter.Done()

	var out []eval.Value
	var item starlark.Value
	for iter.Next(&item) {
		out = append(out, item)
	}
	return out, nil
}

// Unpack splits a value into exactly n parts for multi-name `for` loops.
func (e *Evaluator) Unpack(v eval.Value, n int) ([]eval.Value, error) {
	items, err := e.Iterate(v)
	if err != nil {
		return nil, &eval.ArityError{Want: n, Got: 1}
	}
	if len(items) != n {
		return nil, &eval.ArityError{Want: n, Got: len(items)}
	}
	return items, nil
}

// Display renders a value for interpolation output: strings unquoted, None
// as empty, everything else in Starlark notation.
func (e *Evaluator) Display(v eval.Value) string {
	sv, err := toStarlark(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	switch sv := sv.(type) {
	case starlark.String:
		return string(sv)
	case starlark.NoneType:
		return ""
	default:
		return sv.String()
	}
}

// Attribute applies the boolean attribute coercion: true repeats the
// attribute name, false and None omit the attribute, anything else is
// stringified.
func (e *Evaluator) Attribute(v eval.Value) eval.AttrValue {
	sv, err := toStarlark(v)
	if err != nil {
		return eval.AttrValue{Present: true, Value: fmt.Sprint(v)}
	}
	switch sv := sv.(type) {
	case starlark.Bool:
		if bool(sv) {
			return eval.AttrValue{Present: true, Repeat: true}
		}
		return eval.AttrValue{}
	case starlark.NoneType:
		return eval.AttrValue{}
	default:
		return eval.AttrValue{Present: true, Value: e.Display(sv)}
	}
}

func isStarlarkIdent(s string) bool {
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

// freeIdents collects every identifier mentioned in the expression. It
// over-approximates (attribute names come along too); binding an unused
// predeclared name is harmless.
func freeIdents(expr syntax.Expr) []string {
	var names []string
	seen := map[string]bool{}
	syntax.Walk(expr, func(n syntax.Node) bool {
		if id, ok := n.(*syntax.Ident); ok && !seen[id.Name] {
			seen[id.Name] = true
			names = append(names, id.Name)
		}
		return true
	})
	return names
}
