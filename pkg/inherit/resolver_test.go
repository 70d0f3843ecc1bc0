package inherit

import (
	"errors"
	"strings"
	"testing"

	"github.com/goliatone/go-wyrm/pkg/ast"
	"github.com/goliatone/go-wyrm/pkg/eval"
	"github.com/goliatone/go-wyrm/pkg/eval/starlarkeval"
	"github.com/goliatone/go-wyrm/pkg/loader"
	"github.com/goliatone/go-wyrm/pkg/parser"
	"github.com/goliatone/go-wyrm/pkg/render"
	"github.com/goliatone/go-wyrm/pkg/testsupport"
)

// resolveAndRender runs the rest of the pipeline so assertions can work on
// final output instead of tree shapes.
func resolveAndRender(t *testing.T, files loader.Map, entry string, vars map[string]eval.Value) string {
	t.Helper()
	resolved := resolve(t, files, entry, vars)
	r := &render.Renderer{Evaluator: starlarkeval.New()}
	out, err := r.Render(testsupport.Context(), resolved, vars)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	return out
}

func resolve(t *testing.T, files loader.Map, entry string, vars map[string]eval.Value) *ast.ResolvedTemplate {
	t.Helper()
	resolved, err := tryResolve(files, entry, vars)
	if err != nil {
		t.Fatalf("resolve %q: %v", entry, err)
	}
	return resolved
}

func tryResolve(files loader.Map, entry string, vars map[string]eval.Value) (*ast.ResolvedTemplate, error) {
	src, err := files.Load(testsupport.Context(), entry+DefaultExtension)
	if err != nil {
		return nil, err
	}
	tpl, err := parser.ParseSource(entry, src, 0)
	if err != nil {
		return nil, err
	}
	rs := &Resolver{Loader: files, Evaluator: starlarkeval.New()}
	return rs.Resolve(testsupport.Context(), tpl, vars)
}

func TestResolveInclude(t *testing.T) {
	files := loader.Map{
		"main.wyrm":    ":include partial\nafter",
		"partial.wyrm": "% p: from partial",
	}
	got := resolveAndRender(t, files, "main", nil)
	if got != "<p>from partial</p>\nafter" {
		t.Errorf("output = %q", got)
	}
}

func TestResolveOverride(t *testing.T) {
	files := loader.Map{
		"base.wyrm": "header\n" +
			":block content\n" +
			"    base content\n" +
			"footer",
		"page.wyrm": ":include base\n" +
			"    :block content\n" +
			"        page content",
	}
	got := resolveAndRender(t, files, "page", nil)
	want := "header\npage content\nfooter"
	if got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestResolveDefaultBlockContent(t *testing.T) {
	files := loader.Map{
		"base.wyrm": ":block content\n    base content",
		"page.wyrm": ":include base",
	}
	got := resolveAndRender(t, files, "page", nil)
	if got != "base content" {
		t.Errorf("output = %q", got)
	}
}

func TestResolveMultiLevel(t *testing.T) {
	files := loader.Map{
		"base.wyrm": ":block title\n    A",
		"middle.wyrm": ":include base\n" +
			"    :block title\n" +
			"        B",
		"child.wyrm": ":include middle\n" +
			"    :block title\n" +
			"        C",
		"sibling.wyrm": ":include middle",
	}

	t.Run("child override wins", func(t *testing.T) {
		if got := resolveAndRender(t, files, "child", nil); got != "C" {
			t.Errorf("output = %q, want %q", got, "C")
		}
	})

	t.Run("middle override survives without a child override", func(t *testing.T) {
		if got := resolveAndRender(t, files, "sibling", nil); got != "B" {
			t.Errorf("output = %q, want %q", got, "B")
		}
	})
}

func TestResolveNestedBlockOverride(t *testing.T) {
	// The override target sits inside a tag of the base template.
	files := loader.Map{
		"base.wyrm": "% div\n" +
			"    :block inner\n" +
			"        old",
		"page.wyrm": ":include base\n" +
			"    :block inner\n" +
			"        new",
	}
	got := resolveAndRender(t, files, "page", nil)
	if got != "<div>new</div>" {
		t.Errorf("output = %q", got)
	}
}

func TestResolveUnmatchedOverride(t *testing.T) {
	files := loader.Map{
		"base.wyrm": ":block content\n    x",
		"page.wyrm": ":include base\n" +
			"    :block missing\n" +
			"        y",
	}
	_, err := tryResolve(files, "page", nil)
	var ierr *Error
	if !errors.As(err, &ierr) {
		t.Fatalf("expected *inherit.Error, got %v", err)
	}
	if !strings.Contains(ierr.Msg, "missing") {
		t.Errorf("error should name the block: %v", ierr)
	}
}

func TestResolveCycle(t *testing.T) {
	files := loader.Map{
		"a.wyrm": ":include b",
		"b.wyrm": ":include a",
	}
	_, err := tryResolve(files, "a", nil)
	var ierr *Error
	if !errors.As(err, &ierr) {
		t.Fatalf("expected *inherit.Error, got %v", err)
	}
	if !strings.Contains(ierr.Msg, "cyclic") {
		t.Errorf("error = %v, want cycle diagnosis", ierr)
	}
}

func TestResolveSelfInclude(t *testing.T) {
	files := loader.Map{"a.wyrm": ":include a"}
	if _, err := tryResolve(files, "a", nil); err == nil {
		t.Fatal("expected a cycle error")
	}
}

func TestResolveMissingTarget(t *testing.T) {
	files := loader.Map{"main.wyrm": ":include nowhere"}
	_, err := tryResolve(files, "main", nil)
	var ierr *Error
	if !errors.As(err, &ierr) {
		t.Fatalf("expected *inherit.Error, got %v", err)
	}
	if !errors.Is(err, loader.ErrNotFound) {
		t.Errorf("cause should wrap loader.ErrNotFound: %v", err)
	}
}

func TestResolveIncludeArgs(t *testing.T) {
	files := loader.Map{
		"card.wyrm": ":require title\n{title}",
		"main.wyrm": ":include card with title='Hi'",
	}

	t.Run("bindings reach the included template", func(t *testing.T) {
		got := resolveAndRender(t, files, "main", nil)
		if got != "Hi" {
			t.Errorf("output = %q", got)
		}
	})

	t.Run("only isolates the included template", func(t *testing.T) {
		isolated := loader.Map{
			"card.wyrm": "{title}{secret}",
			"main.wyrm": ":include card with only title='Hi'",
		}
		got := resolveAndRender(t, isolated, "main", map[string]eval.Value{"secret": "s3"})
		if got != "Hi" {
			t.Errorf("output = %q, want %q", got, "Hi")
		}
	})
}

func TestResolveDynamicTarget(t *testing.T) {
	files := loader.Map{
		"main.wyrm":     ":include (which)",
		"greeting.wyrm": "hello",
	}
	vars := map[string]eval.Value{"which": "greeting"}

	resolved := resolve(t, files, "main", vars)
	if !resolved.Dynamic {
		t.Error("expression target should mark the template dynamic")
	}

	r := &render.Renderer{Evaluator: starlarkeval.New()}
	got, err := r.Render(testsupport.Context(), resolved, vars)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if got != "hello" {
		t.Errorf("output = %q", got)
	}
}

func TestResolveStaticTargetIsNotDynamic(t *testing.T) {
	files := loader.Map{
		"main.wyrm":    ":include partial",
		"partial.wyrm": "hi",
	}
	resolved := resolve(t, files, "main", nil)
	if resolved.Dynamic {
		t.Error("literal include chain must stay cacheable")
	}
}

func TestResolveCustomExtension(t *testing.T) {
	files := loader.Map{"partial.tpl": "hi"}
	tpl, err := parser.ParseSource("main", ":include partial", 0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	rs := &Resolver{Loader: files, Evaluator: starlarkeval.New(), Extension: ".tpl"}
	if _, err := rs.Resolve(testsupport.Context(), tpl, nil); err != nil {
		t.Fatalf("resolve: %v", err)
	}
}

func TestResolveNoLoader(t *testing.T) {
	tpl, err := parser.ParseSource("main", ":include partial", 0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	rs := &Resolver{Evaluator: starlarkeval.New()}
	_, err = rs.Resolve(testsupport.Context(), tpl, nil)
	var ierr *Error
	if !errors.As(err, &ierr) {
		t.Fatalf("expected *inherit.Error, got %v", err)
	}
}

func TestResolveSharedSiblingInclude(t *testing.T) {
	// The same partial included twice in sequence is not a cycle.
	files := loader.Map{
		"main.wyrm":    ":include partial\n:include partial",
		"partial.wyrm": "x",
	}
	got := resolveAndRender(t, files, "main", nil)
	if got != "x\nx" {
		t.Errorf("output = %q", got)
	}
}

func TestResolveIndexesBlocksAndRequires(t *testing.T) {
	files := loader.Map{
		"base.wyrm": ":require user\n:block content\n    x",
		"main.wyrm": ":include base",
	}
	resolved := resolve(t, files, "main", nil)
	if _, ok := resolved.Blocks["content"]; !ok {
		t.Error("resolved template should index blocks from the base")
	}
	found := false
	for _, name := range resolved.RequiredVars {
		if name == "user" {
			found = true
		}
	}
	if !found {
		t.Errorf("required vars = %v, want to include %q", resolved.RequiredVars, "user")
	}
}
