package markup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubsetRender(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bold", "**Hi** there", "<p><b>Hi</b> there</p>"},
		{"underscore bold", "__Hi__ there", "<p><b>Hi</b> there</p>"},
		{"italic", "an *odd* day", "<p>an <i>odd</i> day</p>"},
		{"odd star stays literal", "a *b* c*", "<p>a <i>b</i> c*</p>"},
		{"underscore italic", "_x_ and _y", "<p><i>x</i> and _y</p>"},
		{"lone bold opens", "**x", "<p><b>x</p>"},
		{"headings", "# One\n## Two\n### Three", "<h1>One</h1><h2>Two</h2><h3>Three</h3>"},
		{"blank lines", "a\n\n  \nb", "<p>a</p><br><br><p>b</p>"},
		{"indented heading is paragraph", "  # x", "<p># x</p>"},
		{"plain number", "123.4", "<p>123.4</p>"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Subset{}.Render(tc.in))
		})
	}
}

func TestNewRenderer(t *testing.T) {
	r, err := New("subset")
	require.NoError(t, err)
	assert.IsType(t, Subset{}, r)

	r, err = New("goldmark")
	require.NoError(t, err)
	out := r.Render("- **AAPL** $150.25\n- [MSFT](https://example.com)")
	assert.Contains(t, out, "<li><strong>AAPL</strong> $150.25</li>")
	assert.Contains(t, out, `<a href="https://example.com">MSFT</a>`)

	_, err = New("rst")
	assert.Error(t, err)
}
