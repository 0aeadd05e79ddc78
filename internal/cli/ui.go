package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/lipgloss"
)

// UI styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Background(lipgloss.Color("#1F2937")).
			Padding(0, 1).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 2).
			Width(80)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	completedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8B5CF6")).
			Bold(true)

	tickerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true).
			Width(8)

	priceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981"))
)

// DisplayWelcomeBanner shows the welcome banner
func DisplayWelcomeBanner(w io.Writer, provider, market string) {
	banner := `
 ____  _             _     ____ _           _
/ ___|| |_ ___   ___| | __/ ___| |__   __ _| |_
\___ \| __/ _ \ / __| |/ / |   | '_ \ / _' | __|
 ___) | || (_) | (__|   <| |___| | | | (_| | |_
|____/ \__\___/ \___|_|\_\\____|_| |_|\__,_|\__|
`

	welcomeStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7C3AED")).
		Bold(true).
		Width(80)

	taglineStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#3B82F6")).
		Italic(true).
		Width(80).
		MarginBottom(1)

	fmt.Fprintln(w, welcomeStyle.Render(banner))
	fmt.Fprintln(w, taglineStyle.Render("Ask about stocks, cryptocurrency or trading. Type exit to quit."))
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Model: %s | Prices: %s", provider, market)))
}

var blockTags = map[string]bool{
	"p": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "pre": true, "blockquote": true, "tr": true,
}

// PlainText turns formatted reply HTML into terminal text. Block elements end
// with a line break, <br> becomes one, and inline markup is dropped. Stray
// '<' and '>' in the answer survive as text.
func PlainText(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}

	var b strings.Builder
	writeText(&b, doc.Find("body"))

	out := b.String()
	for strings.Contains(out, "\n\n\n") {
		out = strings.ReplaceAll(out, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(out)
}

func writeText(b *strings.Builder, sel *goquery.Selection) {
	sel.Contents().Each(func(_ int, node *goquery.Selection) {
		name := goquery.NodeName(node)
		switch {
		case name == "#text":
			text := node.Text()
			if strings.TrimSpace(text) == "" && strings.Contains(text, "\n") {
				return
			}
			b.WriteString(text)
		case name == "br":
			b.WriteString("\n")
		case blockTags[name]:
			writeText(b, node)
			b.WriteString("\n")
		default:
			writeText(b, node)
		}
	})
}

// ClearScreen clears the terminal screen
func ClearScreen(w io.Writer) {
	fmt.Fprint(w, "\033[2J\033[H")
}
