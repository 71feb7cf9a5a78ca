package render

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestLinesToPlainStrings(t *testing.T) {
	lines := []Line{
		{
			Spans: []Span{
				{Text: "• ", Style: lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))},
				{Text: "hello", Style: lipgloss.NewStyle().Bold(true)},
			},
		},
		{Spans: []Span{}},
	}

	got := LinesToPlainStrings(lines)
	assert.Equal(t, []string{"• hello", ""}, got)
	for i, l := range got {
		assert.False(t, strings.Contains(l, "\x1b"), "line %d contains ANSI sequences", i)
	}
}

func TestPrefixLines(t *testing.T) {
	body := []Line{{Spans: []Span{{Text: "a"}}}, {Spans: []Span{{Text: "b"}}}}
	got := LinesToPlainStrings(PrefixLines(body, Span{Text: "> "}, Span{Text: "  "}))
	assert.Equal(t, []string{"> a", "  b"}, got)
}
