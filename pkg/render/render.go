// Package render walks a resolved template depth first, evaluating control
// flow against a scoped context chain and emitting the output document.
// A render either succeeds completely or returns an error with no partial
// output; the buffer is private and discarded on failure.
package render

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/goliatone/go-wyrm/pkg/ast"
	"github.com/goliatone/go-wyrm/pkg/eval"
	"github.com/goliatone/go-wyrm/pkg/loader"
	"github.com/goliatone/go-wyrm/pkg/markdown"
)

// ErrorKind discriminates render failures.
type ErrorKind string

const (
	ErrMissingRequired ErrorKind = "missing-required-variable"
	ErrNotIterable     ErrorKind = "not-iterable"
	ErrUnpackArity     ErrorKind = "unpack-arity-mismatch"
	ErrExpression      ErrorKind = "expression-evaluation"
	ErrAssetNotFound   ErrorKind = "asset-not-found"
	ErrVoidChildren    ErrorKind = "void-tag-children"
)

// Error is a runtime render failure. Unlike lex/parse/inheritance errors it
// depends on context values and must never be cached.
type Error struct {
	Kind     ErrorKind
	Template string
	Line     int
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("render: template %q line %d: %s: %s", e.Template, e.Line, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Renderer holds the collaborators a render needs. The zero value is not
// usable; Evaluator is mandatory, Loader and Markdown only when templates
// use `md` with a filename or inline markdown.
type Renderer struct {
	Evaluator eval.Evaluator
	Loader    loader.Loader
	Markdown  markdown.Converter

	// DefaultDoctype is a selector from the doctype table ("5", "4 strict",
	// ...); empty means HTML5.
	DefaultDoctype string
	Logger         *slog.Logger
}

// Render walks the resolved template against vars and returns the output
// document. The trailing line terminator is trimmed so single-line
// templates round-trip exactly.
func (r *Renderer) Render(ctx context.Context, tpl *ast.ResolvedTemplate, vars map[string]eval.Value) (string, error) {
	if r.Logger != nil {
		r.Logger.DebugContext(ctx, "rendering template", "template", tpl.Name, "vars", len(vars))
	}
	st := &state{r: r, ctx: ctx, tpl: tpl, buf: &bytes.Buffer{}}
	if err := st.nodes(tpl.Nodes, newScope(vars)); err != nil {
		return "", err
	}
	return strings.TrimSuffix(st.buf.String(), "\n"), nil
}

type state struct {
	r   *Renderer
	ctx context.Context
	tpl *ast.ResolvedTemplate
	buf *bytes.Buffer
}

func (st *state) errf(kind ErrorKind, line int, err error, format string, args ...any) *Error {
	return &Error{
		Kind:     kind,
		Template: st.tpl.Name,
		Line:     line,
		Msg:      fmt.Sprintf(format, args...),
		Err:      err,
	}
}

func (st *state) eval(expr string, line int, sc *scope) (eval.Value, error) {
	v, err := st.r.Evaluator.Evaluate(st.ctx, expr, sc.flatten())
	if err != nil {
		return nil, st.errf(ErrExpression, line, err, "evaluate %q", expr)
	}
	return v, nil
}

// capture renders nodes into a side buffer, for emitters that post-process
// their children's output.
func (st *state) capture(nodes []ast.Node, sc *scope) (string, error) {
	saved := st.buf
	st.buf = &bytes.Buffer{}
	err := st.nodes(nodes, sc)
	out := st.buf.String()
	st.buf = saved
	if err != nil {
		return "", err
	}
	return out, nil
}

func (st *state) nodes(nodes []ast.Node, sc *scope) error {
	for _, n := range nodes {
		if err := st.node(n, sc); err != nil {
			return err
		}
	}
	return nil
}

func (st *state) node(n ast.Node, sc *scope) error {
	switch v := n.(type) {
	case *ast.Text:
		out, err := st.segments(v.Segments, v.Pos(), sc)
		if err != nil {
			return err
		}
		st.buf.WriteString(out)
		st.buf.WriteByte('\n')
		return nil

	case *ast.Comment:
		return nil

	case *ast.HTMLComment:
		return st.htmlComment(v, sc)

	case *ast.Output:
		val, err := st.eval(v.Expr, v.Pos(), sc)
		if err != nil {
			return err
		}
		st.buf.WriteString(st.r.Evaluator.Display(val))
		return nil

	case *ast.Require:
		for _, name := range v.Vars {
			if _, ok := sc.lookup(name); !ok {
				return st.errf(ErrMissingRequired, v.Pos(), nil, "variable %q not in context", name)
			}
		}
		return nil

	case *ast.If:
		for _, cond := range v.Conds {
			val, err := st.eval(cond.Expr, cond.Pos(), sc)
			if err != nil {
				return err
			}
			if st.r.Evaluator.Truthy(val) {
				return st.nodes(cond.Children, sc)
			}
		}
		if v.HasElse {
			return st.nodes(v.Else, sc)
		}
		return nil

	case *ast.For:
		return st.forLoop(v, sc)

	case *ast.With:
		vars, err := st.evalArgs(v.Args, v.Pos(), sc)
		if err != nil {
			return err
		}
		return st.nodes(v.Children, sc.child(vars, v.Only))

	case *ast.Block:
		return st.nodes(v.Children, sc)

	case *ast.Tag:
		return st.tag(v, sc)

	case *ast.HTML:
		return st.htmlRoot(v, sc)

	case *ast.Resource:
		return st.resource(v, sc)
	}
	return st.errf(ErrExpression, n.Pos(), nil, "unexpected node %T in resolved template", n)
}

func (st *state) segments(segs []ast.Segment, line int, sc *scope) (string, error) {
	var b strings.Builder
	for _, seg := range segs {
		if !seg.IsExpr {
			b.WriteString(seg.Text)
			continue
		}
		val, err := st.eval(seg.Expr, line, sc)
		if err != nil {
			return "", err
		}
		b.WriteString(st.r.Evaluator.Display(val))
	}
	return b.String(), nil
}

// evalArgs evaluates keyword bindings in the current scope, before any new
// scope they introduce takes effect.
func (st *state) evalArgs(args []ast.Arg, line int, sc *scope) (map[string]eval.Value, error) {
	vars := make(map[string]eval.Value, len(args))
	for _, arg := range args {
		val, err := st.eval(arg.Expr, line, sc)
		if err != nil {
			return nil, err
		}
		vars[arg.Name] = val
	}
	return vars, nil
}

func (st *state) forLoop(v *ast.For, sc *scope) error {
	val, err := st.eval(v.Expr, v.Pos(), sc)
	if err != nil {
		return err
	}
	items, err := st.r.Evaluator.Iterate(val)
	if err != nil {
		return st.errf(ErrNotIterable, v.Pos(), err, "cannot iterate %q", v.Expr)
	}

	if len(items) == 0 {
		if v.HasEmpty {
			return st.nodes(v.Empty, sc)
		}
		return nil
	}

	parent := sc.loopRecord()
	for i, item := range items {
		vars := make(map[string]eval.Value, len(v.Vars)+1)
		if len(v.Vars) == 1 {
			vars[v.Vars[0]] = item
		} else {
			parts, err := st.r.Evaluator.Unpack(item, len(v.Vars))
			if err != nil {
				return st.errf(ErrUnpackArity, v.Pos(), err, "unpack item %d of %q", i, v.Expr)
			}
			for j, name := range v.Vars {
				vars[name] = parts[j]
			}
		}
		vars["loop"] = newLoopRecord(i, len(items), parent)
		if err := st.nodes(v.Body, sc.child(vars, false)); err != nil {
			return err
		}
	}

	if v.HasElse {
		return st.nodes(v.Else, sc)
	}
	return nil
}

func (st *state) htmlComment(v *ast.HTMLComment, sc *scope) error {
	if len(v.Segments) > 0 {
		out, err := st.segments(v.Segments, v.Pos(), sc)
		if err != nil {
			return err
		}
		fmt.Fprintf(st.buf, "<!-- %s -->\n", out)
		return nil
	}
	body, err := st.capture(v.Children, sc)
	if err != nil {
		return err
	}
	st.buf.WriteString("<!--\n")
	st.buf.WriteString(body)
	st.buf.WriteString("-->\n")
	return nil
}

func (st *state) tag(v *ast.Tag, sc *scope) error {
	attrs, err := st.renderAttrs(v.ID, v.Classes, v.Attrs, v.Pos(), sc)
	if err != nil {
		return err
	}

	if voidElements[v.Name] {
		if len(v.Children) > 0 {
			return st.errf(ErrVoidChildren, v.Pos(), nil, "void element <%s> cannot have children", v.Name)
		}
		fmt.Fprintf(st.buf, "<%s%s>\n", v.Name, attrs)
		return nil
	}

	body, err := st.capture(v.Children, sc)
	if err != nil {
		return err
	}
	fmt.Fprintf(st.buf, "<%s%s>%s</%s>\n", v.Name, attrs, compact(body), v.Name)
	return nil
}

func (st *state) htmlRoot(v *ast.HTML, sc *scope) error {
	selector := v.Doctype
	if selector == "" {
		selector = st.r.DefaultDoctype
	}
	if selector == "" {
		selector = DefaultDoctype
	}
	doctype, ok := doctypes[selector]
	if !ok {
		return st.errf(ErrExpression, v.Pos(), nil, "unknown doctype selector %q", selector)
	}

	attrs, err := st.renderAttrs("", nil, v.Attrs, v.Pos(), sc)
	if err != nil {
		return err
	}
	body, err := st.capture(v.Children, sc)
	if err != nil {
		return err
	}
	st.buf.WriteString(doctype)
	st.buf.WriteByte('\n')
	fmt.Fprintf(st.buf, "<html%s>%s</html>\n", attrs, compact(body))
	return nil
}

func (st *state) resource(v *ast.Resource, sc *scope) error {
	if v.Src != "" {
		val, err := st.eval(v.Src, v.Pos(), sc)
		if err != nil {
			return err
		}
		name := st.r.Evaluator.Display(val)
		switch v.Kind {
		case ast.ResourceCSS:
			fmt.Fprintf(st.buf, "<link rel=\"stylesheet\" type=\"text/css\" href=\"%s.css\">\n", html.EscapeString(name))
		case ast.ResourceJS:
			fmt.Fprintf(st.buf, "<script src=\"%s.js\"></script>\n", html.EscapeString(name))
		case ast.ResourceMarkdown:
			if st.r.Loader == nil {
				return st.errf(ErrAssetNotFound, v.Pos(), nil, "no asset loader configured for %q", name)
			}
			src, err := st.r.Loader.Load(st.ctx, name+".md")
			if err != nil {
				return st.errf(ErrAssetNotFound, v.Pos(), err, "markdown asset %q", name)
			}
			return st.emitMarkdown(src, v.Pos())
		}
		return nil
	}

	body, err := st.capture(v.Children, sc)
	if err != nil {
		return err
	}
	switch v.Kind {
	case ast.ResourceCSS:
		fmt.Fprintf(st.buf, "<style>%s</style>\n", compact(body))
	case ast.ResourceJS:
		fmt.Fprintf(st.buf, "<script>%s</script>\n", compact(body))
	case ast.ResourceMarkdown:
		return st.emitMarkdown(body, v.Pos())
	}
	return nil
}

func (st *state) emitMarkdown(src string, line int) error {
	if st.r.Markdown == nil {
		return st.errf(ErrAssetNotFound, line, nil, "no markdown converter configured")
	}
	out, err := st.r.Markdown.Convert(src)
	if err != nil {
		return st.errf(ErrExpression, line, err, "convert markdown")
	}
	st.buf.WriteString(out)
	st.buf.WriteByte('\n')
	return nil
}

// renderAttrs assembles the attribute string for a tag: id first (the
// shortcut wins over an explicit id attribute), then classes (explicit
// class value first, shortcuts appended), then the remaining attributes in
// source order. Boolean true repeats the attribute name; boolean false
// omits the attribute.
func (st *state) renderAttrs(id string, classes []string, attrs []ast.Attr, line int, sc *scope) (string, error) {
	classList := append([]string(nil), classes...)

	var b strings.Builder
	var rest []string
	for _, attr := range attrs {
		switch attr.Name {
		case "id":
			if id != "" {
				continue
			}
			val, err := st.eval(attr.Expr, line, sc)
			if err != nil {
				return "", err
			}
			if av := st.r.Evaluator.Attribute(val); av.Present && !av.Repeat {
				id = av.Value
			}
			continue
		case "class":
			val, err := st.eval(attr.Expr, line, sc)
			if err != nil {
				return "", err
			}
			if av := st.r.Evaluator.Attribute(val); av.Present && !av.Repeat {
				classList = append([]string{av.Value}, classList...)
			}
			continue
		}

		val, err := st.eval(attr.Expr, line, sc)
		if err != nil {
			return "", err
		}
		av := st.r.Evaluator.Attribute(val)
		if !av.Present {
			continue
		}
		if av.Repeat {
			rest = append(rest, fmt.Sprintf("%s=\"%s\"", attr.Name, attr.Name))
			continue
		}
		rest = append(rest, fmt.Sprintf("%s=\"%s\"", attr.Name, html.EscapeString(av.Value)))
	}

	if id != "" {
		fmt.Fprintf(&b, " id=\"%s\"", html.EscapeString(id))
	}
	if len(classList) > 0 {
		fmt.Fprintf(&b, " class=\"%s\"", html.EscapeString(strings.Join(classList, " ")))
	}
	for _, attr := range rest {
		b.WriteByte(' ')
		b.WriteString(attr)
	}
	return b.String(), nil
}

// compact trims the final line terminator from a child chunk so bodies
// that rendered to a single line collapse onto their parent's line.
func compact(s string) string {
	return strings.TrimSuffix(s, "\n")
}
