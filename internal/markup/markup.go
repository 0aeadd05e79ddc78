// Package markup converts model answers into the small HTML surface the chat
// page renders.
package markup

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dyike/StockChat/config"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

type Renderer interface {
	Render(text string) string
}

// New returns the renderer registered under name.
func New(name string) (Renderer, error) {
	switch name {
	case "", config.FormatterSubset:
		return Subset{}, nil
	case config.FormatterGoldmark:
		return NewGoldmark(), nil
	default:
		return nil, fmt.Errorf("unknown formatter %q", name)
	}
}

// Subset handles headings, paragraphs, bold and italics only. Markers do not
// nest and an unpaired single marker is left as is.
type Subset struct{}

func (Subset) Render(text string) string {
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			b.WriteString("<br>")
			continue
		}
		b.WriteString(inline(block(line)))
	}
	return b.String()
}

func block(line string) string {
	switch {
	case strings.HasPrefix(line, "### "):
		return "<h3>" + strings.TrimSpace(line[4:]) + "</h3>"
	case strings.HasPrefix(line, "## "):
		return "<h2>" + strings.TrimSpace(line[3:]) + "</h2>"
	case strings.HasPrefix(line, "# "):
		return "<h1>" + strings.TrimSpace(line[2:]) + "</h1>"
	default:
		return "<p>" + strings.TrimSpace(line) + "</p>"
	}
}

func inline(line string) string {
	for strings.Contains(line, "**") {
		line = pair(line, "**", "<b>", "</b>")
	}
	for strings.Contains(line, "__") {
		line = pair(line, "__", "<b>", "</b>")
	}
	for strings.Count(line, "*") >= 2 {
		line = pair(line, "*", "<i>", "</i>")
	}
	for strings.Count(line, "_") >= 2 && !strings.Contains(line, "__") {
		line = pair(line, "_", "<i>", "</i>")
	}
	return line
}

// pair swaps the first marker for open and the next one for close.
func pair(line, marker, open, close string) string {
	line = strings.Replace(line, marker, open, 1)
	return strings.Replace(line, marker, close, 1)
}

// Goldmark renders full CommonMark, lists and links included.
type Goldmark struct {
	md goldmark.Markdown
}

func NewGoldmark() *Goldmark {
	return &Goldmark{
		md: goldmark.New(
			goldmark.WithExtensions(extension.Strikethrough, extension.Linkify),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
}

func (g *Goldmark) Render(text string) string {
	var buf bytes.Buffer
	if err := g.md.Convert([]byte(text), &buf); err != nil {
		return Subset{}.Render(text)
	}
	return strings.TrimSpace(buf.String())
}
