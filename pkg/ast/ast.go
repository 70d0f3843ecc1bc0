// Package ast defines the structural tree produced by the lexer and parser
// and consumed by the inheritance resolver and renderer. Templates are
// immutable once built and safe to share across concurrent renders.
package ast

// LineKind classifies a logical source line by its leading indicator.
type LineKind string

const (
	LineCommand     LineKind = "command"      // `:`
	LineControl     LineKind = "control"      // `-`
	LineOutput      LineKind = "output"       // `=`
	LineComment     LineKind = "comment"      // `/`
	LineHTMLComment LineKind = "html-comment" // `/!`
	LineTag         LineKind = "tag"          // `%`
	LinePlainText   LineKind = "text"         // no indicator
	LineBlank       LineKind = "blank"        // whitespace only
)

// Line is one logical line of source. A multi-line interpolation span counts
// as a single logical line; Number refers to the physical line it started on.
type Line struct {
	// Depth is the indentation measured in normalized columns, after tab
	// expansion and text-run pinning.
	Depth  int
	Kind   LineKind
	Number int

	// Content holds the raw line body after the indicator for command,
	// control, output and tag lines. Text and HTML comment lines carry
	// Segments instead.
	Content  string
	Segments []Segment

	// Inline is the logical line carried after an inline `:` operator,
	// nested one level deeper than this line. Chained inline operators
	// nest further.
	Inline *Line
}

// Segment is one piece of a text run: either literal text or the source of
// an interpolation expression.
type Segment struct {
	Text   string
	Expr   string
	IsExpr bool
}

// Literal builds a literal segment.
func Literal(text string) Segment { return Segment{Text: text} }

// Interp builds an interpolation segment from expression source.
func Interp(expr string) Segment { return Segment{Expr: expr, IsExpr: true} }

// Node is the tagged variant implemented by every tree node. Children are
// owned exclusively by their parent; templates never share nodes.
type Node interface {
	// Pos reports the physical line the node came from, for error messages.
	Pos() int
	node()
}

// Base carries source position shared by all node variants.
type Base struct {
	Line int
}

func (b Base) Pos() int { return b.Line }
func (Base) node()      {}

// Text is a run of literal text and interpolation segments.
type Text struct {
	Base
	Segments []Segment
}

// Comment is an engine comment; it renders nothing. Nested children are
// parsed for structure and then discarded at render time.
type Comment struct {
	Base
	Children []Node
}

// HTMLComment renders `<!-- ... -->`. The inline form carries Segments; the
// block form carries Children rendered between the comment markers.
type HTMLComment struct {
	Base
	Segments []Segment
	Children []Node
}

// Attr is one tag attribute; Expr is expression source evaluated at render
// time.
type Attr struct {
	Name string
	Expr string
}

// Tag is an HTML element. ID and Classes come from `#id`/`.class` shortcuts;
// Attrs preserves source order.
type Tag struct {
	Base
	Name     string
	ID       string
	Classes  []string
	Attrs    []Attr
	Children []Node
}

// Output evaluates a single expression and emits its display string.
type Output struct {
	Base
	Expr string
}

// Cond is one `if`/`elif` branch of an If chain.
type Cond struct {
	Base
	Expr     string
	Children []Node
}

// If is a full conditional chain. Exactly one branch renders: the first
// truthy Cond, or Else when HasElse is set and no Cond fired.
type If struct {
	Base
	Conds   []*Cond
	Else    []Node
	HasElse bool
}

// For iterates an expression. Empty renders instead of the body when the
// iterable yields nothing; Else renders after a non-empty iteration.
type For struct {
	Base
	Vars     []string
	Expr     string
	Body     []Node
	Empty    []Node
	HasEmpty bool
	Else     []Node
	HasElse  bool
}

// Arg is a keyword binding used by `with` and `include ... with`.
type Arg struct {
	Name string
	Expr string
}

// With renders its children in a child scope holding Args. Only truncates
// the scope chain: lookups inside do not see the outer context.
type With struct {
	Base
	Only     bool
	Args     []Arg
	Children []Node
}

// Require fails the render when any listed name is absent from the current
// context.
type Require struct {
	Base
	Vars []string
}

// Include pulls in another template. Target is a literal path when Path is
// set; otherwise Expr is evaluated at resolution time. Overrides replace
// same-named blocks anywhere in the resolved target; every entry is a
// *Block, enforced by the parser.
type Include struct {
	Base
	Path      string
	Expr      string
	Args      []Arg
	Only      bool
	Overrides []Node
}

// Block is a named, overridable section. Children are the default content,
// kept unless an including template supplies an override.
type Block struct {
	Base
	Name     string
	Children []Node
}

// HTML emits a doctype followed by an `<html ...>` element. Doctype holds
// the selector as written (`5`, `4 strict`, `1.1`, ...); empty means the
// configured default.
type HTML struct {
	Base
	Doctype  string
	Attrs    []Attr
	Children []Node
}

// ResourceKind selects the behavior of a CSS/JS/Markdown resource node.
type ResourceKind string

const (
	ResourceCSS      ResourceKind = "css"
	ResourceJS       ResourceKind = "js"
	ResourceMarkdown ResourceKind = "md"
)

// Resource is a `css`, `js` or `md` command. Src is an expression naming an
// external file (extension appended per kind); when empty the nested
// children supply the content inline.
type Resource struct {
	Base
	Kind     ResourceKind
	Src      string
	Children []Node
}

// Template is a parsed, single-file template. Blocks indexes every Block
// definition by identifier; RequiredVars unions all `require` lists.
type Template struct {
	Name         string
	Nodes        []Node
	RequiredVars []string
	Blocks       map[string]*Block
}

// ResolvedTemplate is a Template whose include/override structure has been
// flattened. It contains no Include nodes and is safe to cache and share
// across concurrent renders. Dynamic marks a template resolved through at
// least one expression-valued include target; such results depend on the
// resolution context and must not be cached by path alone.
type ResolvedTemplate struct {
	Template
	Dynamic bool
}
