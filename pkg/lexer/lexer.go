// Package lexer turns raw template source into a sequence of classified
// logical lines. It owns indentation normalization, indicator detection,
// backslash escaping, bracket-balanced interpolation spans, and inline `:`
// operator detection; tree building is left to the parser.
package lexer

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-wyrm/pkg/ast"
)

// DefaultTabWidth is the column width a tab expands to when the caller does
// not configure one.
const DefaultTabWidth = 4

// Error is a lexical failure. Lex errors are permanent for a given source
// text and may be cached as failures.
type Error struct {
	Line int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("lexer: line %d: %s", e.Line, e.Msg)
}

// Lex scans source into logical lines. A multi-line interpolation span is
// folded into the logical line that opened it.
func Lex(source string, tabWidth int) ([]ast.Line, error) {
	if tabWidth <= 0 {
		tabWidth = DefaultTabWidth
	}
	lx := &lexer{src: source, line: 1, tabWidth: tabWidth, textDepth: -1}
	return lx.run()
}

type lexer struct {
	src      string
	pos      int
	line     int
	tabWidth int

	// textDepth pins continuation lines of a text run to the depth of the
	// run's first line; -1 when no run is open.
	textDepth int

	out []ast.Line
}

func (lx *lexer) run() ([]ast.Line, error) {
	for lx.pos < len(lx.src) {
		start := lx.line
		depth := lx.scanIndent()

		if lx.atLineEnd() {
			lx.consumeNewline()
			lx.textDepth = -1
			lx.out = append(lx.out, ast.Line{Kind: ast.LineBlank, Number: start})
			continue
		}

		ln, err := lx.scanBody()
		if err != nil {
			return nil, err
		}
		ln.Number = start

		if ln.Kind == ast.LinePlainText {
			if lx.textDepth >= 0 && depth > lx.textDepth {
				depth = lx.textDepth
			} else {
				lx.textDepth = depth
			}
		} else {
			lx.textDepth = -1
		}
		ln.Depth = depth

		lx.consumeNewline()
		lx.out = append(lx.out, ln)
	}
	return lx.out, nil
}

// scanIndent consumes leading whitespace and reports its width in columns,
// expanding tabs to the configured width.
func (lx *lexer) scanIndent() int {
	col := 0
	for lx.pos < len(lx.src) {
		switch lx.src[lx.pos] {
		case ' ':
			col++
		case '\t':
			col = (col/lx.tabWidth + 1) * lx.tabWidth
		default:
			return col
		}
		lx.pos++
	}
	return col
}

func (lx *lexer) atLineEnd() bool {
	if lx.pos >= len(lx.src) {
		return true
	}
	c := lx.src[lx.pos]
	return c == '\n' || (c == '\r' && lx.pos+1 < len(lx.src) && lx.src[lx.pos+1] == '\n')
}

func (lx *lexer) consumeNewline() {
	if lx.pos < len(lx.src) && lx.src[lx.pos] == '\r' {
		lx.pos++
	}
	if lx.pos < len(lx.src) && lx.src[lx.pos] == '\n' {
		lx.pos++
		lx.line++
	}
}

// scanBody classifies the line body at the current position and consumes it
// up to (not including) the line terminator, except where an interpolation
// span swallows following physical lines. It recurses for inline segments.
func (lx *lexer) scanBody() (ast.Line, error) {
	var ln ast.Line

	switch {
	case lx.peekByte() == '\\':
		// Escaped first character forces plain text.
		lx.pos++
		ln.Kind = ast.LinePlainText
		segs, err := lx.scanSegments()
		if err != nil {
			return ln, err
		}
		ln.Segments = segs
		return ln, nil

	case strings.HasPrefix(lx.rest(), "/!"):
		lx.pos += 2
		lx.skipOneSpace()
		ln.Kind = ast.LineHTMLComment
		segs, err := lx.scanSegments()
		if err != nil {
			return ln, err
		}
		ln.Segments = segs
		return ln, nil

	case lx.peekByte() == '/':
		lx.pos++
		lx.skipOneSpace()
		ln.Kind = ast.LineComment
		ln.Content = lx.scanRawLine()
		return ln, nil

	case lx.peekByte() == '%':
		lx.pos++
		lx.skipOneSpace()
		ln.Kind = ast.LineTag

	case lx.peekByte() == '=':
		lx.pos++
		lx.skipOneSpace()
		ln.Kind = ast.LineOutput

	case lx.peekByte() == '-':
		lx.pos++
		lx.skipOneSpace()
		ln.Kind = ast.LineControl

	case lx.peekByte() == ':':
		lx.pos++
		lx.skipOneSpace()
		ln.Kind = ast.LineCommand

	default:
		ln.Kind = ast.LinePlainText
		segs, err := lx.scanSegments()
		if err != nil {
			return ln, err
		}
		ln.Segments = segs
		return ln, nil
	}

	content, hasInline := lx.scanStructured()
	ln.Content = strings.TrimRight(content, " \t")
	if hasInline {
		start := lx.line
		inline, err := lx.scanBody()
		if err != nil {
			return ln, err
		}
		inline.Number = start
		ln.Inline = &inline
	}
	return ln, nil
}

func (lx *lexer) peekByte() byte {
	if lx.pos >= len(lx.src) {
		return 0
	}
	return lx.src[lx.pos]
}

func (lx *lexer) rest() string { return lx.src[lx.pos:] }

func (lx *lexer) skipOneSpace() {
	if lx.pos < len(lx.src) && lx.src[lx.pos] == ' ' {
		lx.pos++
	}
}

func (lx *lexer) scanRawLine() string {
	start := lx.pos
	for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
		lx.pos++
	}
	return strings.TrimSuffix(lx.src[start:lx.pos], "\r")
}

// scanSegments scans text content, splitting it into literal and
// interpolation segments. An unclosed `{` span consumes following physical
// lines verbatim until its matching `}`.
func (lx *lexer) scanSegments() ([]ast.Segment, error) {
	var segs []ast.Segment
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, ast.Literal(lit.String()))
			lit.Reset()
		}
	}

	for !lx.atLineEnd() {
		c := lx.src[lx.pos]
		if c == '\\' && lx.pos+1 < len(lx.src) && lx.src[lx.pos+1] == '{' {
			lit.WriteByte('{')
			lx.pos += 2
			continue
		}
		if c == '{' {
			flush()
			lx.pos++
			expr, err := lx.scanSpan()
			if err != nil {
				return nil, err
			}
			segs = append(segs, ast.Interp(expr))
			continue
		}
		lit.WriteByte(c)
		lx.pos++
	}
	flush()
	return segs, nil
}

// scanSpan consumes expression source after an opening `{` until the
// matching `}`, using plain depth counting. Newlines inside the span are
// kept verbatim as expression text.
func (lx *lexer) scanSpan() (string, error) {
	startLine := lx.line
	depth := 1
	var b strings.Builder
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				lx.pos++
				return b.String(), nil
			}
		case '\n':
			lx.line++
		}
		b.WriteByte(c)
		lx.pos++
	}
	return "", &Error{Line: startLine, Msg: "unterminated interpolation span"}
}

// scanStructured consumes a tag/output/control/command body up to the line
// end or an inline `:` operator found outside quotes and brackets. It
// reports whether an inline segment follows; the caller then classifies it.
func (lx *lexer) scanStructured() (string, bool) {
	var b strings.Builder
	bracket := 0
	var quote byte

	for !lx.atLineEnd() {
		c := lx.src[lx.pos]

		if quote != 0 {
			if c == '\\' && lx.pos+1 < len(lx.src) {
				b.WriteByte(c)
				lx.pos++
				b.WriteByte(lx.src[lx.pos])
				lx.pos++
				continue
			}
			if c == quote {
				quote = 0
			}
			b.WriteByte(c)
			lx.pos++
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
		case ':':
			if bracket == 0 {
				lx.pos++
				for lx.pos < len(lx.src) && lx.src[lx.pos] == ' ' {
					lx.pos++
				}
				return b.String(), true
			}
		}
		b.WriteByte(c)
		lx.pos++
	}
	return b.String(), false
}
