package tui

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"

	"github.com/sprite-ai/redline/internal/model"
)

// DefaultTheme is the chroma style used when none is configured.
const DefaultTheme = "dracula"

// kindTokens picks the chroma token whose colour a kind borrows. Kinds not
// listed use fallbackToken.
var kindTokens = map[model.Kind]chroma.TokenType{
	model.KindPerson:   chroma.NameFunction,
	model.KindOrg:      chroma.KeywordType,
	model.KindLocation: chroma.NameTag,
	model.KindEmail:    chroma.LiteralString,
	model.KindPhone:    chroma.LiteralNumber,
	model.KindManual:   chroma.GenericDeleted,
}

const fallbackToken = chroma.Comment

// Theme maps redaction kinds to highlight styles.
type Theme struct {
	name     string
	kinds    map[model.Kind]lipgloss.Style
	fallback lipgloss.Style
}

// NewTheme builds a theme from a chroma style name. Unknown names fall back
// to chroma's default style.
func NewTheme(name string) *Theme {
	if name == "" {
		name = DefaultTheme
	}
	style := styles.Get(name)
	if style == nil {
		style = styles.Fallback
	}

	t := &Theme{
		name:     style.Name,
		kinds:    make(map[model.Kind]lipgloss.Style, len(kindTokens)),
		fallback: highlightStyle(style, fallbackToken, colorDim),
	}
	for kind, tt := range kindTokens {
		t.kinds[kind] = highlightStyle(style, tt, colorOrange)
	}
	return t
}

// Name returns the chroma style the theme was built from.
func (t *Theme) Name() string {
	return t.name
}

// Style returns the highlight style for a kind.
func (t *Theme) Style(k model.Kind) lipgloss.Style {
	if s, ok := t.kinds[k]; ok {
		return s
	}
	return t.fallback
}

// ThemeNames lists the available chroma styles.
func ThemeNames() []string {
	return styles.Names()
}

func highlightStyle(style *chroma.Style, tt chroma.TokenType, def lipgloss.Color) lipgloss.Style {
	bg := def
	if entry := style.Get(tt); entry.Colour.IsSet() {
		bg = lipgloss.Color(entry.Colour.String())
	}
	return lipgloss.NewStyle().
		Background(bg).
		Foreground(lipgloss.Color("#282a36")).
		Bold(true)
}
