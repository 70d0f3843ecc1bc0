// Package wyrm is an indentation-based HTML templating engine. Source text
// is lexed and parsed into a tree, inherited templates are merged through
// named-block overriding, and the resolved tree is rendered against a
// runtime context.
//
// The engine delegates expression evaluation, template lookup, and
// markdown conversion to capability interfaces; defaults cover common use
// (a Starlark expression evaluator, a directory loader, a CommonMark
// converter) while callers can inject their own.
package wyrm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goliatone/go-wyrm/pkg/ast"
	"github.com/goliatone/go-wyrm/pkg/eval"
	"github.com/goliatone/go-wyrm/pkg/eval/starlarkeval"
	"github.com/goliatone/go-wyrm/pkg/inherit"
	"github.com/goliatone/go-wyrm/pkg/loader"
	"github.com/goliatone/go-wyrm/pkg/markdown"
	"github.com/goliatone/go-wyrm/pkg/parser"
	"github.com/goliatone/go-wyrm/pkg/render"
)

// Vars is the variable set a template renders against.
type Vars = map[string]eval.Value

// Option customises engine construction.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLoader injects a custom template/asset loader.
func WithLoader(l loader.Loader) Option {
	return func(e *Engine) { e.loader = l }
}

// WithEvaluator injects a custom expression evaluator.
func WithEvaluator(ev eval.Evaluator) Option {
	return func(e *Engine) { e.evaluator = ev }
}

// WithMarkdown injects a custom markdown converter.
func WithMarkdown(c markdown.Converter) Option {
	return func(e *Engine) { e.markdown = c }
}

// WithLogger sets the structured logger; slog.Default is used otherwise.
func WithLogger(lg *slog.Logger) Option {
	return func(e *Engine) { e.logger = lg }
}

// Engine coordinates the full pipeline from template source to rendered
// output. Engines are immutable after construction and safe for concurrent
// use; the internal template cache deduplicates concurrent compiles.
type Engine struct {
	cfg       Config
	loader    loader.Loader
	evaluator eval.Evaluator
	markdown  markdown.Converter
	logger    *slog.Logger
	cache     *templateCache
}

// New constructs an engine, applying defaults for any collaborator not
// supplied: a Starlark evaluator, a search-directory loader, and a
// CommonMark markdown converter (sanitized when the configuration asks).
func New(options ...Option) (*Engine, error) {
	e := &Engine{cfg: DefaultConfig(), cache: newTemplateCache()}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(e)
	}

	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	if e.evaluator == nil {
		e.evaluator = starlarkeval.New()
	}
	if e.loader == nil && len(e.cfg.SearchDirs) > 0 {
		e.loader = loader.Dir(e.cfg.SearchDirs...)
	}
	if e.markdown == nil {
		conv := markdown.New()
		if e.cfg.SanitizeMarkdown {
			conv = markdown.Sanitized(conv)
		}
		e.markdown = conv
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e, nil
}

func (e *Engine) resolver() *inherit.Resolver {
	return &inherit.Resolver{
		Loader:    e.loader,
		Evaluator: e.evaluator,
		TabWidth:  e.cfg.tabWidth(),
		Logger:    e.logger,
	}
}

func (e *Engine) renderer() *render.Renderer {
	return &render.Renderer{
		Evaluator:      e.evaluator,
		Loader:         e.loader,
		Markdown:       e.markdown,
		DefaultDoctype: e.cfg.doctypeSelector(),
		Logger:         e.logger,
	}
}

// Compile loads, parses and resolves the named template, caching the
// result. Templates whose include chain is fully static are built at most
// once per engine; vars only matter when an include target is an
// expression.
func (e *Engine) Compile(ctx context.Context, name string, vars Vars) (*ast.ResolvedTemplate, error) {
	if e.loader == nil {
		return nil, fmt.Errorf("wyrm: no loader configured; set SearchDirs or WithLoader")
	}
	return e.cache.do(name, func() (*ast.ResolvedTemplate, error) {
		e.logger.DebugContext(ctx, "compiling template", "template", name)
		src, err := e.loader.Load(ctx, name+inherit.DefaultExtension)
		if err != nil {
			return nil, fmt.Errorf("wyrm: load %q: %w", name, err)
		}
		tpl, err := parser.ParseSource(name, src, e.cfg.tabWidth())
		if err != nil {
			return nil, fmt.Errorf("wyrm: template %q: %w", name, err)
		}
		return e.resolver().Resolve(ctx, tpl, vars)
	})
}

// RenderFile compiles the named template and renders it against vars.
func (e *Engine) RenderFile(ctx context.Context, name string, vars Vars) (string, error) {
	tpl, err := e.Compile(ctx, name, vars)
	if err != nil {
		return "", err
	}
	return e.renderer().Render(ctx, tpl, vars)
}

// RenderString parses source text directly and renders it against vars.
// Includes still resolve through the engine's loader. Nothing is cached.
func (e *Engine) RenderString(ctx context.Context, source string, vars Vars) (string, error) {
	tpl, err := parser.ParseSource("<string>", source, e.cfg.tabWidth())
	if err != nil {
		return "", err
	}
	resolved, err := e.resolver().Resolve(ctx, tpl, vars)
	if err != nil {
		return "", err
	}
	return e.renderer().Render(ctx, resolved, vars)
}

// RenderString is a convenience for one-shot rendering of inline source.
func RenderString(ctx context.Context, source string, vars Vars, options ...Option) (string, error) {
	e, err := New(options...)
	if err != nil {
		return "", err
	}
	return e.RenderString(ctx, source, vars)
}

// RenderFile is a convenience for one-shot rendering of a template file.
func RenderFile(ctx context.Context, name string, vars Vars, options ...Option) (string, error) {
	e, err := New(options...)
	if err != nil {
		return "", err
	}
	return e.RenderFile(ctx, name, vars)
}
