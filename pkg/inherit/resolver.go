// Package inherit flattens template inheritance. It recursively resolves
// include chains through a loader, substitutes named block overrides, and
// produces an override-free tree ready for rendering. Base templates
// resolve before their overriders, so multi-level chains compose the way
// template inheritance is expected to: grandparent, then parent, then
// child.
package inherit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goliatone/go-wyrm/pkg/ast"
	"github.com/goliatone/go-wyrm/pkg/eval"
	"github.com/goliatone/go-wyrm/pkg/loader"
	"github.com/goliatone/go-wyrm/pkg/parser"
)

// DefaultExtension is appended to include targets before they reach the
// loader.
const DefaultExtension = ".wyrm"

// Error is an inheritance failure: a missing include target, an unmatched
// block override, or a cyclic inclusion chain. Permanent per inclusion
// chain.
type Error struct {
	Template string
	Line     int
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("inherit: template %q line %d: %s", e.Template, e.Line, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Resolver wires the collaborators resolution needs. The Evaluator is only
// consulted for expression-valued include targets.
type Resolver struct {
	Loader    loader.Loader
	Evaluator eval.Evaluator
	TabWidth  int
	Extension string
	Logger    *slog.Logger
}

// Resolve flattens tpl. vars is the resolution-time context used to
// evaluate expression include targets; it is usually the same variable set
// the caller will render with.
func (r *Resolver) Resolve(ctx context.Context, tpl *ast.Template, vars map[string]eval.Value) (*ast.ResolvedTemplate, error) {
	rs := &resolution{
		r:        r,
		vars:     vars,
		visiting: map[string]bool{tpl.Name: true},
	}
	nodes, err := rs.resolveNodes(ctx, tpl.Name, tpl.Nodes)
	if err != nil {
		return nil, err
	}

	out := &ast.ResolvedTemplate{Dynamic: rs.dynamic}
	out.Name = tpl.Name
	out.Nodes = nodes
	out.Blocks = map[string]*ast.Block{}
	indexResolved(nodes, &out.Template)
	return out, nil
}

type resolution struct {
	r        *Resolver
	vars     map[string]eval.Value
	visiting map[string]bool
	dynamic  bool
}

func (rs *resolution) extension() string {
	if rs.r.Extension != "" {
		return rs.r.Extension
	}
	return DefaultExtension
}

// resolveNodes deep-copies nodes, replacing every Include with its resolved
// content. Source templates stay untouched so parsed forms can be cached.
func (rs *resolution) resolveNodes(ctx context.Context, tplName string, nodes []ast.Node) ([]ast.Node, error) {
	out := make([]ast.Node, 0, len(nodes))
	for _, n := range nodes {
		switch v := n.(type) {
		case *ast.Include:
			resolved, err := rs.resolveInclude(ctx, tplName, v)
			if err != nil {
				return nil, err
			}
			out = append(out, resolved...)

		case *ast.If:
			c := &ast.If{Base: v.Base, HasElse: v.HasElse}
			for _, cond := range v.Conds {
				children, err := rs.resolveNodes(ctx, tplName, cond.Children)
				if err != nil {
					return nil, err
				}
				c.Conds = append(c.Conds, &ast.Cond{Base: cond.Base, Expr: cond.Expr, Children: children})
			}
			elseNodes, err := rs.resolveNodes(ctx, tplName, v.Else)
			if err != nil {
				return nil, err
			}
			c.Else = elseNodes
			out = append(out, c)

		case *ast.For:
			c := &ast.For{Base: v.Base, Vars: v.Vars, Expr: v.Expr, HasEmpty: v.HasEmpty, HasElse: v.HasElse}
			var err error
			if c.Body, err = rs.resolveNodes(ctx, tplName, v.Body); err != nil {
				return nil, err
			}
			if c.Empty, err = rs.resolveNodes(ctx, tplName, v.Empty); err != nil {
				return nil, err
			}
			if c.Else, err = rs.resolveNodes(ctx, tplName, v.Else); err != nil {
				return nil, err
			}
			out = append(out, c)

		case *ast.With:
			children, err := rs.resolveNodes(ctx, tplName, v.Children)
			if err != nil {
				return nil, err
			}
			out = append(out, &ast.With{Base: v.Base, Only: v.Only, Args: v.Args, Children: children})

		case *ast.Block:
			children, err := rs.resolveNodes(ctx, tplName, v.Children)
			if err != nil {
				return nil, err
			}
			out = append(out, &ast.Block{Base: v.Base, Name: v.Name, Children: children})

		case *ast.Tag:
			children, err := rs.resolveNodes(ctx, tplName, v.Children)
			if err != nil {
				return nil, err
			}
			out = append(out, &ast.Tag{Base: v.Base, Name: v.Name, ID: v.ID, Classes: v.Classes, Attrs: v.Attrs, Children: children})

		case *ast.HTML:
			children, err := rs.resolveNodes(ctx, tplName, v.Children)
			if err != nil {
				return nil, err
			}
			out = append(out, &ast.HTML{Base: v.Base, Doctype: v.Doctype, Attrs: v.Attrs, Children: children})

		case *ast.HTMLComment:
			children, err := rs.resolveNodes(ctx, tplName, v.Children)
			if err != nil {
				return nil, err
			}
			out = append(out, &ast.HTMLComment{Base: v.Base, Segments: v.Segments, Children: children})

		case *ast.Resource:
			children, err := rs.resolveNodes(ctx, tplName, v.Children)
			if err != nil {
				return nil, err
			}
			out = append(out, &ast.Resource{Base: v.Base, Kind: v.Kind, Src: v.Src, Children: children})

		default:
			// Leaf variants (Text, Output, Comment, Require) are immutable
			// and carry no include structure; share them.
			out = append(out, n)
		}
	}
	return out, nil
}

// resolveInclude loads, parses, and recursively resolves one include, then
// substitutes its block overrides. The result is spliced in place of the
// include node, wrapped in a With scope when the include carries keyword
// bindings or `only`.
func (rs *resolution) resolveInclude(ctx context.Context, tplName string, inc *ast.Include) ([]ast.Node, error) {
	target, inline, err := rs.includeTarget(ctx, tplName, inc)
	if err != nil {
		return nil, err
	}

	var nodes []ast.Node
	switch {
	case inline != nil:
		// The evaluator produced an already-parsed template value.
		nodes, err = rs.resolveNodes(ctx, inline.Name, inline.Nodes)
		if err != nil {
			return nil, err
		}

	default:
		if rs.visiting[target] {
			return nil, &Error{Template: tplName, Line: inc.Pos(), Msg: fmt.Sprintf("cyclic inclusion of %q", target)}
		}
		if rs.r.Loader == nil {
			return nil, &Error{Template: tplName, Line: inc.Pos(), Msg: "no template loader configured"}
		}
		src, err := rs.r.Loader.Load(ctx, target+rs.extension())
		if err != nil {
			return nil, &Error{Template: tplName, Line: inc.Pos(), Msg: fmt.Sprintf("include target %q not found", target), Err: err}
		}
		sub, err := parser.ParseSource(target, src, rs.r.TabWidth)
		if err != nil {
			return nil, &Error{Template: tplName, Line: inc.Pos(), Msg: fmt.Sprintf("parse included template %q", target), Err: err}
		}
		if rs.r.Logger != nil {
			rs.r.Logger.DebugContext(ctx, "resolved include", "template", tplName, "target", target)
		}
		rs.visiting[target] = true
		nodes, err = rs.resolveNodes(ctx, target, sub.Nodes)
		delete(rs.visiting, target)
		if err != nil {
			return nil, err
		}
	}

	// Substitute block overrides into the fully resolved target.
	for _, o := range inc.Overrides {
		override := o.(*ast.Block)
		replacement, err := rs.resolveNodes(ctx, tplName, override.Children)
		if err != nil {
			return nil, err
		}
		blk := findBlock(nodes, override.Name)
		if blk == nil {
			return nil, &Error{Template: tplName, Line: override.Pos(), Msg: fmt.Sprintf("no block %q to override in %q", override.Name, targetName(target, inline))}
		}
		blk.Children = replacement
	}

	if inc.Only || len(inc.Args) > 0 {
		return []ast.Node{&ast.With{Base: inc.Base, Only: inc.Only, Args: inc.Args, Children: nodes}}, nil
	}
	return nodes, nil
}

// includeTarget computes the include target. Literal paths pass through;
// expressions evaluate against the resolution-time context and may yield a
// path string or a pre-parsed template.
func (rs *resolution) includeTarget(ctx context.Context, tplName string, inc *ast.Include) (string, *ast.Template, error) {
	if inc.Path != "" {
		return inc.Path, nil, nil
	}
	rs.dynamic = true
	v, err := rs.r.Evaluator.Evaluate(ctx, inc.Expr, rs.vars)
	if err != nil {
		return "", nil, &Error{Template: tplName, Line: inc.Pos(), Msg: fmt.Sprintf("include target %q", inc.Expr), Err: err}
	}
	switch t := v.(type) {
	case *ast.Template:
		return "", t, nil
	case *ast.ResolvedTemplate:
		return "", &t.Template, nil
	}
	return rs.r.Evaluator.Display(v), nil, nil
}

func targetName(target string, inline *ast.Template) string {
	if inline != nil {
		return inline.Name
	}
	return target
}

// findBlock locates the first block with the given name anywhere in the
// tree, depth first.
func findBlock(nodes []ast.Node, name string) *ast.Block {
	for _, n := range nodes {
		if b, ok := n.(*ast.Block); ok && b.Name == name {
			return b
		}
		for _, group := range childGroups(n) {
			if b := findBlock(group, name); b != nil {
				return b
			}
		}
	}
	return nil
}

// childGroups enumerates every child slice a node owns.
func childGroups(n ast.Node) [][]ast.Node {
	switch v := n.(type) {
	case *ast.If:
		groups := make([][]ast.Node, 0, len(v.Conds)+1)
		for _, c := range v.Conds {
			groups = append(groups, c.Children)
		}
		return append(groups, v.Else)
	case *ast.For:
		return [][]ast.Node{v.Body, v.Empty, v.Else}
	case *ast.With:
		return [][]ast.Node{v.Children}
	case *ast.Block:
		return [][]ast.Node{v.Children}
	case *ast.Tag:
		return [][]ast.Node{v.Children}
	case *ast.HTML:
		return [][]ast.Node{v.Children}
	case *ast.HTMLComment:
		return [][]ast.Node{v.Children}
	case *ast.Resource:
		return [][]ast.Node{v.Children}
	}
	return nil
}

// indexResolved rebuilds the block index and required-variable union over a
// flattened tree.
func indexResolved(nodes []ast.Node, tpl *ast.Template) {
	for _, n := range nodes {
		switch v := n.(type) {
		case *ast.Block:
			if _, taken := tpl.Blocks[v.Name]; !taken {
				tpl.Blocks[v.Name] = v
			}
		case *ast.Require:
			for _, name := range v.Vars {
				seen := false
				for _, have := range tpl.RequiredVars {
					if have == name {
						seen = true
						break
					}
				}
				if !seen {
					tpl.RequiredVars = append(tpl.RequiredVars, name)
				}
			}
		}
		for _, group := range childGroups(n) {
			indexResolved(group, tpl)
		}
	}
}
