package starlarkeval

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-wyrm/pkg/eval"
	"github.com/goliatone/go-wyrm/pkg/testsupport"
)

func evaluate(t *testing.T, expr string, scope map[string]eval.Value) eval.Value {
	t.Helper()
	v, err := New().Evaluate(testsupport.Context(), expr, scope)
	if err != nil {
		t.Fatalf("Evaluate(%q): %v", expr, err)
	}
	return v
}

func TestEvaluateDisplay(t *testing.T) {
	e := New()
	tests := []struct {
		name  string
		expr  string
		scope map[string]eval.Value
		want  string
	}{
		{name: "arithmetic", expr: "6 * 7", want: "42"},
		{name: "string stays unquoted", expr: "'hi'", want: "hi"},
		{name: "concatenation", expr: "'a' + b", scope: map[string]eval.Value{"b": "c"}, want: "ac"},
		{name: "method call", expr: "name.upper()", scope: map[string]eval.Value{"name": "ada"}, want: "ADA"},
		{name: "index", expr: "items[1]", scope: map[string]eval.Value{"items": []int{5, 6}}, want: "6"},
		{name: "dict access", expr: "user['name']", scope: map[string]eval.Value{
			"user": map[string]eval.Value{"name": "Ada"},
		}, want: "Ada"},
		{name: "undefined name is empty", expr: "missing", want: ""},
		{name: "null displays empty", expr: "null", want: ""},
		{name: "lowercase booleans", expr: "true", want: "True"},
		{name: "float", expr: "1.5", want: "1.5"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := e.Display(evaluate(t, tc.expr, tc.scope))
			if got != tc.want {
				t.Errorf("Display = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestEvaluateParseError(t *testing.T) {
	if _, err := New().Evaluate(testsupport.Context(), "1 +", nil); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestTruthy(t *testing.T) {
	e := New()
	tests := []struct {
		name string
		v    eval.Value
		want bool
	}{
		{name: "nil", v: nil, want: false},
		{name: "empty string", v: "", want: false},
		{name: "string", v: "x", want: true},
		{name: "zero", v: 0, want: false},
		{name: "int", v: 3, want: true},
		{name: "empty slice", v: []int{}, want: false},
		{name: "slice", v: []int{1}, want: true},
		{name: "false", v: false, want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := e.Truthy(tc.v); got != tc.want {
				t.Errorf("Truthy(%v) = %v, want %v", tc.v, got, tc.want)
			}
		})
	}
}

func TestIterate(t *testing.T) {
	e := New()

	t.Run("go slice", func(t *testing.T) {
		items, err := e.Iterate([]string{"a", "b"})
		if err != nil {
			t.Fatalf("Iterate: %v", err)
		}
		if len(items) != 2 {
			t.Fatalf("len = %d, want 2", len(items))
		}
		if e.Display(items[0]) != "a" || e.Display(items[1]) != "b" {
			t.Errorf("items = %v", items)
		}
	})

	t.Run("starlark list", func(t *testing.T) {
		items, err := e.Iterate(evaluate(t, "[1, 2, 3]", nil))
		if err != nil {
			t.Fatalf("Iterate: %v", err)
		}
		if len(items) != 3 {
			t.Errorf("len = %d, want 3", len(items))
		}
	})

	t.Run("int is not iterable", func(t *testing.T) {
		_, err := e.Iterate(5)
		if !errors.Is(err, eval.ErrNotIterable) {
			t.Errorf("err = %v, want ErrNotIterable", err)
		}
	})

	t.Run("string is not iterable", func(t *testing.T) {
		_, err := e.Iterate("abc")
		if !errors.Is(err, eval.ErrNotIterable) {
			t.Errorf("err = %v, want ErrNotIterable", err)
		}
	})
}

func TestUnpack(t *testing.T) {
	e := New()
	pair := evaluate(t, "('a', 1)", nil)

	parts, err := e.Unpack(pair, 2)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if e.Display(parts[0]) != "a" || e.Display(parts[1]) != "1" {
		t.Errorf("parts = %v", parts)
	}

	_, err = e.Unpack(pair, 3)
	var aerr *eval.ArityError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected *eval.ArityError, got %v", err)
	}
	if aerr.Want != 3 || aerr.Got != 2 {
		t.Errorf("arity = %+v", aerr)
	}
}

func TestAttribute(t *testing.T) {
	e := New()
	tests := []struct {
		name string
		v    eval.Value
		want eval.AttrValue
	}{
		{name: "true repeats", v: true, want: eval.AttrValue{Present: true, Repeat: true}},
		{name: "false omits", v: false, want: eval.AttrValue{}},
		{name: "nil omits", v: nil, want: eval.AttrValue{}},
		{name: "string", v: "text", want: eval.AttrValue{Present: true, Value: "text"}},
		{name: "int", v: 3, want: eval.AttrValue{Present: true, Value: "3"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := e.Attribute(tc.v); got != tc.want {
				t.Errorf("Attribute = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestStructAccess(t *testing.T) {
	type page struct {
		Title string
		Count int
	}
	scope := map[string]eval.Value{"page": page{Title: "Home", Count: 2}}

	e := New()
	if got := e.Display(evaluate(t, "page.title", scope)); got != "Home" {
		t.Errorf("page.title = %q", got)
	}
	if got := e.Display(evaluate(t, "page.count + 1", scope)); got != "3" {
		t.Errorf("page.count + 1 = %q", got)
	}
}

func TestScopeShadowsAliases(t *testing.T) {
	// A template variable named `true` outranks the literal alias.
	scope := map[string]eval.Value{"true": "custom"}
	if got := New().Display(evaluate(t, "true", scope)); got != "custom" {
		t.Errorf("got %q", got)
	}
}

func TestContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().Evaluate(ctx, "1", nil); err == nil {
		t.Fatal("expected a context error")
	}
}
