// Package parser consumes the lexer's line sequence and builds a single
// template tree. It owns the indentation stack, inline-block expansion,
// control-chain placement rules (elif/else/empty), and the collection of
// required variables and block definitions.
package parser

import (
	"fmt"

	"github.com/goliatone/go-wyrm/pkg/ast"
	"github.com/goliatone/go-wyrm/pkg/lexer"
)

// Error is a structural failure. Parse errors are permanent for a given
// source text.
type Error struct {
	Line int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("parser: line %d: %s", e.Line, e.Msg)
}

func errf(line int, format string, args ...any) *Error {
	return &Error{Line: line, Msg: fmt.Sprintf(format, args...)}
}

// Parse builds a Template from the given logical lines.
func Parse(name string, lines []ast.Line) (*ast.Template, error) {
	p := &parser{tpl: &ast.Template{Name: name, Blocks: map[string]*ast.Block{}}}
	if err := p.run(lines); err != nil {
		return nil, err
	}
	if err := p.collect(p.tpl.Nodes, false); err != nil {
		return nil, err
	}
	return p.tpl, nil
}

// ParseSource lexes and parses in one step.
func ParseSource(name, source string, tabWidth int) (*ast.Template, error) {
	lines, err := lexer.Lex(source, tabWidth)
	if err != nil {
		return nil, err
	}
	return Parse(name, lines)
}

type parser struct {
	tpl *ast.Template
}

// frame is one open nesting level. children is where siblings at this depth
// land; last tracks the most recent sibling for control-chain checks and
// lastSlot is where a deeper block would nest (nil when last cannot parent).
type frame struct {
	depth    int
	children *[]ast.Node
	last     ast.Node
	lastSlot *[]ast.Node
}

func (p *parser) run(lines []ast.Line) error {
	stack := []*frame{{depth: -1, children: &p.tpl.Nodes}}
	top := func() *frame { return stack[len(stack)-1] }

	for i := range lines {
		ln := &lines[i]

		if ln.Kind == ast.LineBlank {
			// Blank lines become empty text at the current depth and do
			// not interrupt control chains.
			t := top()
			*t.children = append(*t.children, &ast.Text{Base: ast.Base{Line: ln.Number}})
			continue
		}

		if stack[0].depth < 0 && len(stack) == 1 {
			stack[0].depth = ln.Depth
		}

		for len(stack) > 1 && ln.Depth < top().depth {
			stack = stack[:len(stack)-1]
		}

		t := top()
		switch {
		case ln.Depth == t.depth:
			// Sibling at the current level.
		case ln.Depth > t.depth:
			if t.last == nil {
				return errf(ln.Number, "unexpected indent")
			}
			if t.lastSlot == nil {
				return errf(ln.Number, "%s cannot take children", nodeName(t.last))
			}
			if len(*t.lastSlot) > 0 {
				return errf(ln.Number, "inconsistent indentation: depth %d does not match any enclosing block", ln.Depth)
			}
			stack = append(stack, &frame{depth: ln.Depth, children: t.lastSlot})
			t = top()
		default:
			return errf(ln.Number, "inconsistent indentation: depth %d does not match any enclosing block", ln.Depth)
		}

		var slot *[]ast.Node
		keyword, rest := splitWord(ln.Content)
		if ln.Kind == ast.LineControl && isChainKeyword(keyword) {
			s, err := p.continueChain(t, keyword, rest, ln)
			if err != nil {
				return err
			}
			slot = s
		} else {
			node, s, err := p.buildNode(ln)
			if err != nil {
				return err
			}
			*t.children = append(*t.children, node)
			t.last = node
			slot = s
		}

		// Inline-block expansion: each inline segment nests one level
		// deeper than the previous node; a following indented block nests
		// under the deepest inlined node.
		for cur := ln.Inline; cur != nil; cur = cur.Inline {
			if slot == nil {
				return errf(ln.Number, "inline block not allowed here")
			}
			kw, _ := splitWord(cur.Content)
			if cur.Kind == ast.LineControl && isChainKeyword(kw) {
				return errf(ln.Number, "`%s` must start its own line", kw)
			}
			node, s, err := p.buildNode(cur)
			if err != nil {
				return err
			}
			*slot = append(*slot, node)
			slot = s
		}
		t.lastSlot = slot
	}
	return nil
}

func isChainKeyword(kw string) bool {
	return kw == "elif" || kw == "else" || kw == "empty"
}

// continueChain attaches an elif/else/empty clause to the immediately
// preceding if or for at the same depth.
func (p *parser) continueChain(t *frame, keyword, rest string, ln *ast.Line) (*[]ast.Node, error) {
	if keyword != "elif" && rest != "" {
		return nil, errf(ln.Number, "`%s` clause takes no arguments", keyword)
	}
	switch keyword {
	case "elif":
		prev, ok := t.last.(*ast.If)
		if !ok {
			return nil, errf(ln.Number, "`elif` must follow an `if` or `elif` at the same depth")
		}
		if prev.HasElse {
			return nil, errf(ln.Number, "`elif` after `else`")
		}
		if rest == "" {
			return nil, errf(ln.Number, "`elif` requires a condition")
		}
		cond := &ast.Cond{Base: ast.Base{Line: ln.Number}, Expr: rest}
		prev.Conds = append(prev.Conds, cond)
		return &cond.Children, nil

	case "else":
		switch prev := t.last.(type) {
		case *ast.If:
			if prev.HasElse {
				return nil, errf(ln.Number, "duplicate `else`")
			}
			prev.HasElse = true
			return &prev.Else, nil
		case *ast.For:
			if prev.HasElse {
				return nil, errf(ln.Number, "duplicate `else`")
			}
			prev.HasElse = true
			return &prev.Else, nil
		}
		return nil, errf(ln.Number, "`else` must follow an `if` or `for` at the same depth")

	case "empty":
		prev, ok := t.last.(*ast.For)
		if !ok {
			return nil, errf(ln.Number, "`empty` must follow a `for` at the same depth")
		}
		if prev.HasEmpty {
			return nil, errf(ln.Number, "duplicate `empty`")
		}
		prev.HasEmpty = true
		return &prev.Empty, nil
	}
	return nil, errf(ln.Number, "unknown clause `%s`", keyword)
}

// buildNode turns one logical line into its node variant plus the child
// slot a nested block would attach to (nil when the node cannot parent).
func (p *parser) buildNode(ln *ast.Line) (ast.Node, *[]ast.Node, error) {
	base := ast.Base{Line: ln.Number}

	switch ln.Kind {
	case ast.LinePlainText:
		return &ast.Text{Base: base, Segments: ln.Segments}, nil, nil

	case ast.LineComment:
		n := &ast.Comment{Base: base}
		if ln.Content == "" {
			return n, &n.Children, nil
		}
		return n, nil, nil

	case ast.LineHTMLComment:
		n := &ast.HTMLComment{Base: base, Segments: ln.Segments}
		if len(ln.Segments) == 0 {
			return n, &n.Children, nil
		}
		return n, nil, nil

	case ast.LineOutput:
		if ln.Content == "" {
			return nil, nil, errf(ln.Number, "`=` requires an expression")
		}
		return &ast.Output{Base: base, Expr: ln.Content}, nil, nil

	case ast.LineTag:
		return p.buildTag(ln)

	case ast.LineControl:
		return p.buildControl(ln)

	case ast.LineCommand:
		return p.buildCommand(ln)
	}
	return nil, nil, errf(ln.Number, "unsupported line kind %q", ln.Kind)
}

func (p *parser) buildControl(ln *ast.Line) (ast.Node, *[]ast.Node, error) {
	base := ast.Base{Line: ln.Number}
	keyword, rest := splitWord(ln.Content)

	switch keyword {
	case "if":
		if rest == "" {
			return nil, nil, errf(ln.Number, "`if` requires a condition")
		}
		cond := &ast.Cond{Base: base, Expr: rest}
		return &ast.If{Base: base, Conds: []*ast.Cond{cond}}, &cond.Children, nil

	case "for":
		vars, expr, err := parseFor(rest, ln.Number)
		if err != nil {
			return nil, nil, err
		}
		n := &ast.For{Base: base, Vars: vars, Expr: expr}
		return n, &n.Body, nil

	case "with":
		only, args, err := parseWithArgs(rest, ln.Number)
		if err != nil {
			return nil, nil, err
		}
		n := &ast.With{Base: base, Only: only, Args: args}
		return n, &n.Children, nil
	}
	return nil, nil, errf(ln.Number, "unknown control `%s`", keyword)
}

func (p *parser) buildCommand(ln *ast.Line) (ast.Node, *[]ast.Node, error) {
	base := ast.Base{Line: ln.Number}
	keyword, rest := splitWord(ln.Content)

	switch keyword {
	case "require":
		vars, err := parseNameList(rest, ln.Number)
		if err != nil {
			return nil, nil, err
		}
		if len(vars) == 0 {
			return nil, nil, errf(ln.Number, "`require` needs at least one name")
		}
		return &ast.Require{Base: base, Vars: vars}, nil, nil

	case "include":
		n, err := parseInclude(rest, ln.Number)
		if err != nil {
			return nil, nil, err
		}
		n.Base = base
		return n, &n.Overrides, nil

	case "block":
		if !isIdent(rest) {
			return nil, nil, errf(ln.Number, "`block` takes a single identifier, got %q", rest)
		}
		n := &ast.Block{Base: base, Name: rest}
		return n, &n.Children, nil

	case "html":
		n, err := parseHTML(rest, ln.Number)
		if err != nil {
			return nil, nil, err
		}
		n.Base = base
		return n, &n.Children, nil

	case "css", "js", "md":
		n := &ast.Resource{Base: base, Kind: ast.ResourceKind(keyword), Src: rest}
		if rest == "" {
			return n, &n.Children, nil
		}
		return n, nil, nil
	}
	return nil, nil, errf(ln.Number, "unknown command `%s`", keyword)
}

func (p *parser) buildTag(ln *ast.Line) (ast.Node, *[]ast.Node, error) {
	n, err := parseTag(ln.Content, ln.Number)
	if err != nil {
		return nil, nil, err
	}
	n.Base = ast.Base{Line: ln.Number}
	return n, &n.Children, nil
}

// collect walks the finished tree, indexing block definitions, unioning
// require lists, and validating include children. Blocks nested inside an
// include are override targets and stay out of the definition index.
func (p *parser) collect(nodes []ast.Node, inOverride bool) error {
	for _, n := range nodes {
		switch v := n.(type) {
		case *ast.Require:
			p.addRequired(v.Vars)
		case *ast.Block:
			if !inOverride {
				if _, dup := p.tpl.Blocks[v.Name]; dup {
					return errf(v.Pos(), "duplicate block identifier %q", v.Name)
				}
				p.tpl.Blocks[v.Name] = v
			}
			if err := p.collect(v.Children, inOverride); err != nil {
				return err
			}
		case *ast.Include:
			for _, o := range v.Overrides {
				blk, ok := o.(*ast.Block)
				if !ok {
					return errf(o.Pos(), "children of `include` must be `block` overrides")
				}
				if err := p.collect(blk.Children, true); err != nil {
					return err
				}
			}
		case *ast.If:
			for _, c := range v.Conds {
				if err := p.collect(c.Children, inOverride); err != nil {
					return err
				}
			}
			if err := p.collect(v.Else, inOverride); err != nil {
				return err
			}
		case *ast.For:
			for _, group := range [][]ast.Node{v.Body, v.Empty, v.Else} {
				if err := p.collect(group, inOverride); err != nil {
					return err
				}
			}
		case *ast.With:
			if err := p.collect(v.Children, inOverride); err != nil {
				return err
			}
		case *ast.Tag:
			if err := p.collect(v.Children, inOverride); err != nil {
				return err
			}
		case *ast.HTML:
			if err := p.collect(v.Children, inOverride); err != nil {
				return err
			}
		case *ast.HTMLComment:
			if err := p.collect(v.Children, inOverride); err != nil {
				return err
			}
		case *ast.Resource:
			if err := p.collect(v.Children, inOverride); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *parser) addRequired(vars []string) {
	for _, v := range vars {
		seen := false
		for _, have := range p.tpl.RequiredVars {
			if have == v {
				seen = true
				break
			}
		}
		if !seen {
			p.tpl.RequiredVars = append(p.tpl.RequiredVars, v)
		}
	}
}

func nodeName(n ast.Node) string {
	switch n.(type) {
	case *ast.Text:
		return "text"
	case *ast.Output:
		return "`=` output"
	case *ast.Require:
		return "`require`"
	case *ast.Comment:
		return "comment"
	case *ast.HTMLComment:
		return "html comment"
	case *ast.Resource:
		return "resource command"
	default:
		return "node"
	}
}
