package lexer

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-wyrm/pkg/ast"
)

func TestLexIndicators(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []ast.Line
	}{
		{
			name: "command",
			src:  ":require first, second",
			want: []ast.Line{
				{Kind: ast.LineCommand, Number: 1, Content: "require first, second"},
			},
		},
		{
			name: "control",
			src:  "- if user",
			want: []ast.Line{
				{Kind: ast.LineControl, Number: 1, Content: "if user"},
			},
		},
		{
			name: "output",
			src:  "= 1 + 2",
			want: []ast.Line{
				{Kind: ast.LineOutput, Number: 1, Content: "1 + 2"},
			},
		},
		{
			name: "comment",
			src:  "/ internal note",
			want: []ast.Line{
				{Kind: ast.LineComment, Number: 1, Content: "internal note"},
			},
		},
		{
			name: "html comment",
			src:  "/! build {v}",
			want: []ast.Line{
				{Kind: ast.LineHTMLComment, Number: 1, Segments: []ast.Segment{
					ast.Literal("build "), ast.Interp("v"),
				}},
			},
		},
		{
			name: "tag",
			src:  "% div.wide",
			want: []ast.Line{
				{Kind: ast.LineTag, Number: 1, Content: "div.wide"},
			},
		},
		{
			name: "plain text",
			src:  "just words",
			want: []ast.Line{
				{Kind: ast.LinePlainText, Number: 1, Segments: []ast.Segment{
					ast.Literal("just words"),
				}},
			},
		},
		{
			name: "escaped indicator",
			src:  `\% not a tag`,
			want: []ast.Line{
				{Kind: ast.LinePlainText, Number: 1, Segments: []ast.Segment{
					ast.Literal("% not a tag"),
				}},
			},
		},
		{
			name: "blank line",
			src:  "a\n\nb",
			want: []ast.Line{
				{Kind: ast.LinePlainText, Number: 1, Segments: []ast.Segment{ast.Literal("a")}},
				{Kind: ast.LineBlank, Number: 2},
				{Kind: ast.LinePlainText, Number: 3, Segments: []ast.Segment{ast.Literal("b")}},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Lex(tc.src, 0)
			if err != nil {
				t.Fatalf("Lex: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("lines mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLexInterpolation(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []ast.Segment
	}{
		{
			name: "single span",
			src:  "Hello {name}!",
			want: []ast.Segment{ast.Literal("Hello "), ast.Interp("name"), ast.Literal("!")},
		},
		{
			name: "escaped brace is literal",
			src:  `a \{b} c`,
			want: []ast.Segment{ast.Literal("a {b} c")},
		},
		{
			name: "nested braces balance",
			src:  `sum {total({"a": 1})} end`,
			want: []ast.Segment{ast.Literal("sum "), ast.Interp(`total({"a": 1})`), ast.Literal(" end")},
		},
		{
			name: "adjacent spans",
			src:  "{a}{b}",
			want: []ast.Segment{ast.Interp("a"), ast.Interp("b")},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Lex(tc.src, 0)
			if err != nil {
				t.Fatalf("Lex: %v", err)
			}
			if len(got) != 1 {
				t.Fatalf("expected a single line, got %d", len(got))
			}
			if diff := cmp.Diff(tc.want, got[0].Segments); diff != "" {
				t.Errorf("segments mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLexSpanAcrossLines(t *testing.T) {
	src := "Nor do these {lines\n}."
	got, err := Lex(src, 0)
	if err != nil {
		t.Fatalf("Lex: %v", err)
	}
	want := []ast.Line{
		{Kind: ast.LinePlainText, Number: 1, Segments: []ast.Segment{
			ast.Literal("Nor do these "), ast.Interp("lines\n"), ast.Literal("."),
		}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
}

func TestLexSpanTracksPhysicalLines(t *testing.T) {
	src := "before {a\n+ b\n+ c} after\nnext"
	got, err := Lex(src, 0)
	if err != nil {
		t.Fatalf("Lex: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 logical lines, got %d", len(got))
	}
	if got[0].Number != 1 {
		t.Errorf("first logical line number = %d, want 1", got[0].Number)
	}
	if got[1].Number != 4 {
		t.Errorf("line after span numbered %d, want 4", got[1].Number)
	}
}

func TestLexUnterminatedSpan(t *testing.T) {
	_, err := Lex("hello {name", 0)
	var lerr *Error
	if !errors.As(err, &lerr) {
		t.Fatalf("expected *lexer.Error, got %v", err)
	}
	if lerr.Line != 1 {
		t.Errorf("error line = %d, want 1", lerr.Line)
	}
}

func TestLexTextRunPinning(t *testing.T) {
	// Continuation lines of a text run keep the depth of the run's first
	// line, however deep their own indentation goes.
	src := "  first\n    deeper\n      deepest"
	got, err := Lex(src, 0)
	if err != nil {
		t.Fatalf("Lex: %v", err)
	}
	for i, ln := range got {
		if ln.Depth != 2 {
			t.Errorf("line %d depth = %d, want 2", i+1, ln.Depth)
		}
	}
}

func TestLexTextRunResets(t *testing.T) {
	src := "  first\n/ break\n      second"
	got, err := Lex(src, 0)
	if err != nil {
		t.Fatalf("Lex: %v", err)
	}
	if got[0].Depth != 2 {
		t.Errorf("first run depth = %d, want 2", got[0].Depth)
	}
	if got[2].Depth != 6 {
		t.Errorf("depth after comment = %d, want 6 (new run)", got[2].Depth)
	}
}

func TestLexTabExpansion(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		tabWidth int
		want     int
	}{
		{name: "default width", src: "\tx", tabWidth: 0, want: 4},
		{name: "explicit width", src: "\tx", tabWidth: 8, want: 8},
		{name: "tab after spaces rounds up", src: "  \tx", tabWidth: 4, want: 4},
		{name: "mixed", src: "\t  x", tabWidth: 4, want: 6},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Lex(tc.src, tc.tabWidth)
			if err != nil {
				t.Fatalf("Lex: %v", err)
			}
			if got[0].Depth != tc.want {
				t.Errorf("depth = %d, want %d", got[0].Depth, tc.want)
			}
		})
	}
}

func TestLexInlineOperator(t *testing.T) {
	t.Run("tag with inline text", func(t *testing.T) {
		got, err := Lex("% p: Hello {name}", 0)
		if err != nil {
			t.Fatalf("Lex: %v", err)
		}
		want := []ast.Line{{
			Kind: ast.LineTag, Number: 1, Content: "p",
			Inline: &ast.Line{Kind: ast.LinePlainText, Number: 1, Segments: []ast.Segment{
				ast.Literal("Hello "), ast.Interp("name"),
			}},
		}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("lines mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("doubled colon yields inline command", func(t *testing.T) {
		got, err := Lex("% li:: css 'site'", 0)
		if err != nil {
			t.Fatalf("Lex: %v", err)
		}
		inline := got[0].Inline
		if inline == nil {
			t.Fatal("expected an inline segment")
		}
		if inline.Kind != ast.LineCommand {
			t.Errorf("inline kind = %q, want command", inline.Kind)
		}
		if inline.Content != "css 'site'" {
			t.Errorf("inline content = %q, want %q", inline.Content, "css 'site'")
		}
	})

	t.Run("quoted colon does not split", func(t *testing.T) {
		got, err := Lex(`% a href="http://x"`, 0)
		if err != nil {
			t.Fatalf("Lex: %v", err)
		}
		if got[0].Inline != nil {
			t.Fatalf("unexpected inline segment %+v", got[0].Inline)
		}
		if got[0].Content != `a href="http://x"` {
			t.Errorf("content = %q", got[0].Content)
		}
	})

	t.Run("bracketed colon does not split", func(t *testing.T) {
		got, err := Lex("= {1: 2}", 0)
		if err != nil {
			t.Fatalf("Lex: %v", err)
		}
		if got[0].Inline != nil {
			t.Fatalf("unexpected inline segment %+v", got[0].Inline)
		}
		if got[0].Content != "{1: 2}" {
			t.Errorf("content = %q", got[0].Content)
		}
	})

	t.Run("chained inline segments", func(t *testing.T) {
		got, err := Lex("% ul: % li: one", 0)
		if err != nil {
			t.Fatalf("Lex: %v", err)
		}
		ul := got[0]
		if ul.Content != "ul" || ul.Inline == nil {
			t.Fatalf("outer line = %+v", ul)
		}
		li := ul.Inline
		if li.Kind != ast.LineTag || li.Content != "li" || li.Inline == nil {
			t.Fatalf("first inline = %+v", li)
		}
		text := li.Inline
		if text.Kind != ast.LinePlainText {
			t.Errorf("deepest inline kind = %q, want plain text", text.Kind)
		}
	})
}

func TestLexCRLF(t *testing.T) {
	got, err := Lex("a\r\nb\r\n", 0)
	if err != nil {
		t.Fatalf("Lex: %v", err)
	}
	want := []ast.Line{
		{Kind: ast.LinePlainText, Number: 1, Segments: []ast.Segment{ast.Literal("a")}},
		{Kind: ast.LinePlainText, Number: 2, Segments: []ast.Segment{ast.Literal("b")}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
}
