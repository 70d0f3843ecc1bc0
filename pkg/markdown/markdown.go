// Package markdown defines the Markdown conversion capability used by the
// `md` command, with a gomarkdown-backed default and an optional
// sanitizing wrapper.
package markdown

import (
	"strings"

	md "github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	mdparser "github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

// Converter turns Markdown text into HTML.
type Converter interface {
	Convert(source string) (string, error)
}

// New builds the default converter with CommonMark-style extensions.
func New() Converter { return &gomarkdown{} }

type gomarkdown struct{}

var _ Converter = (*gomarkdown)(nil)

func (g *gomarkdown) Convert(source string) (string, error) {
	p := mdparser.NewWithExtensions(mdparser.CommonExtensions)
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags})
	out := md.ToHTML([]byte(source), p, renderer)
	return strings.TrimRight(string(out), "\n"), nil
}

// Sanitized wraps a converter with bluemonday's UGC policy, stripping
// scripts and event handlers from the produced HTML. The `md` command
// inserts its result unescaped, so untrusted markdown should come through
// here.
func Sanitized(c Converter) Converter {
	return &sanitized{next: c, policy: bluemonday.UGCPolicy()}
}

type sanitized struct {
	next   Converter
	policy *bluemonday.Policy
}

var _ Converter = (*sanitized)(nil)

func (s *sanitized) Convert(source string) (string, error) {
	out, err := s.next.Convert(source)
	if err != nil {
		return "", err
	}
	return s.policy.Sanitize(out), nil
}
